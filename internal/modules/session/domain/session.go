package domain

import (
	"fmt"
	"time"
)

// Surface tags which device a session mutation came from.
type Surface string

const (
	SurfacePrimary   Surface = "primary"
	SurfaceCompanion Surface = "companion"
)

func (s Surface) Validate() error {
	switch s {
	case SurfacePrimary, SurfaceCompanion:
		return nil
	default:
		return fmt.Errorf("unknown surface %q", string(s))
	}
}

// ActiveSession is the single in-progress reading session. At most one may
// exist system-wide; the store enforces that, not this type.
type ActiveSession struct {
	ID          string
	BookID      string
	StartedAt   time.Time
	StartPage   int
	CurrentPage int
	Paused      bool
	// PausedAt is set while Paused and zero otherwise.
	PausedAt time.Time
	// PausedTotal accumulates completed pause intervals. The current pause,
	// if any, is not included until resume.
	PausedTotal time.Duration
	LastUpdated time.Time
	Origin      Surface
}

// Elapsed derives reading time from timestamps on demand. It is frozen while
// paused and clamped to zero so clock skew can never produce a negative
// duration.
func (s ActiveSession) Elapsed(now time.Time) time.Duration {
	end := now
	if s.Paused {
		end = s.PausedAt
	}
	elapsed := end.Sub(s.StartedAt) - s.PausedTotal
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// PagesRead is the page progress so far, clamped to zero when the reader
// moved backward.
func (s ActiveSession) PagesRead() int {
	pages := s.CurrentPage - s.StartPage
	if pages < 0 {
		return 0
	}
	return pages
}

func (s *ActiveSession) Pause(now time.Time) error {
	if s.Paused {
		return fmt.Errorf("session is already paused")
	}
	s.Paused = true
	s.PausedAt = now
	return nil
}

// Resume closes the current pause interval. A pausedAt in the future (clock
// skew) contributes zero rather than a negative interval.
func (s *ActiveSession) Resume(now time.Time) error {
	if !s.Paused {
		return fmt.Errorf("session is not paused")
	}
	interval := now.Sub(s.PausedAt)
	if interval > 0 {
		s.PausedTotal += interval
	}
	s.Paused = false
	s.PausedAt = time.Time{}
	return nil
}

// SetPage moves the bookmark. When the book's page count is known the target
// is clamped to [startPage, totalPages]; with an unknown count only the lower
// bound applies.
func (s *ActiveSession) SetPage(page, totalPages int) {
	if page < s.StartPage {
		page = s.StartPage
	}
	if totalPages > 0 && page > totalPages {
		page = totalPages
	}
	s.CurrentPage = page
}

// SessionSource records how a completed session entered the history.
type SessionSource string

const (
	SourceManual   SessionSource = "manual"
	SourceAuto     SessionSource = "auto"
	SourceImported SessionSource = "imported"
)

// CompletedSession is immutable once created. AwardedReward is a one-way
// latch: once set, the reward engine is never invoked again for this record.
type CompletedSession struct {
	ID              string
	BookID          string
	StartedAt       time.Time
	EndedAt         time.Time
	StartPage       int
	EndPage         int
	PagesRead       int
	DurationMinutes int
	PointsAwarded   int
	AwardedReward   bool
	Source          SessionSource
	CountsInStats   bool
	Origin          Surface
}

// Finish derives the immutable completed record from the live session.
// Points and the reward latch are applied by the caller in the same step.
func (s ActiveSession) Finish(now time.Time) CompletedSession {
	endedAt := now
	if endedAt.Before(s.StartedAt) {
		endedAt = s.StartedAt
	}
	return CompletedSession{
		ID:              s.ID,
		BookID:          s.BookID,
		StartedAt:       s.StartedAt,
		EndedAt:         endedAt,
		StartPage:       s.StartPage,
		EndPage:         s.CurrentPage,
		PagesRead:       s.PagesRead(),
		DurationMinutes: int(s.Elapsed(now).Minutes()),
		Source:          SourceAuto,
		CountsInStats:   true,
		Origin:          s.Origin,
	}
}
