package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	rewarddomain "leaflog/internal/modules/reward/domain"
	"leaflog/internal/modules/session/domain"
	sessionout "leaflog/internal/modules/session/port/out"
	"leaflog/internal/platform/clock"
	apperrors "leaflog/internal/platform/errors"
	"leaflog/internal/platform/id"
)

type SessionService struct {
	clock clock.Clock
	idGen id.Generator
	store sessionout.Store
}

func NewSessionService(clock clock.Clock, idGen id.Generator, store sessionout.Store) *SessionService {
	return &SessionService{clock: clock, idGen: idGen, store: store}
}

func (s *SessionService) Current(ctx context.Context) (domain.ActiveSession, error) {
	return s.store.Current(ctx)
}

func (s *SessionService) Start(ctx context.Context, bookID string, startPage int, origin domain.Surface) (domain.ActiveSession, error) {
	if strings.TrimSpace(bookID) == "" {
		return domain.ActiveSession{}, fmt.Errorf("book id is required: %w", apperrors.ErrInvalidInput)
	}
	if startPage < 0 {
		startPage = 0
	}
	now := s.clock.Now()
	session := domain.ActiveSession{
		ID:          s.idGen.New(),
		BookID:      bookID,
		StartedAt:   now,
		StartPage:   startPage,
		CurrentPage: startPage,
		LastUpdated: now,
		Origin:      origin,
	}
	if err := s.store.Create(ctx, session); err != nil {
		return domain.ActiveSession{}, err
	}
	return session, nil
}

func (s *SessionService) Pause(ctx context.Context) (domain.ActiveSession, error) {
	session, err := s.store.Current(ctx)
	if err != nil {
		return domain.ActiveSession{}, err
	}
	now := s.clock.Now()
	if err := session.Pause(now); err != nil {
		return domain.ActiveSession{}, fmt.Errorf("%s: %w", err, apperrors.ErrInvalidInput)
	}
	session.LastUpdated = now
	if err := s.store.Mutate(ctx, session); err != nil {
		return domain.ActiveSession{}, err
	}
	return session, nil
}

func (s *SessionService) Resume(ctx context.Context) (domain.ActiveSession, error) {
	session, err := s.store.Current(ctx)
	if err != nil {
		return domain.ActiveSession{}, err
	}
	now := s.clock.Now()
	if err := session.Resume(now); err != nil {
		return domain.ActiveSession{}, fmt.Errorf("%s: %w", err, apperrors.ErrInvalidInput)
	}
	session.LastUpdated = now
	if err := s.store.Mutate(ctx, session); err != nil {
		return domain.ActiveSession{}, err
	}
	return session, nil
}

func (s *SessionService) SetPage(ctx context.Context, page, totalPages int) (domain.ActiveSession, error) {
	session, err := s.store.Current(ctx)
	if err != nil {
		return domain.ActiveSession{}, err
	}
	session.SetPage(page, totalPages)
	session.LastUpdated = s.clock.Now()
	if err := s.store.Mutate(ctx, session); err != nil {
		return domain.ActiveSession{}, err
	}
	return session, nil
}

// FinishResult carries what the finish transition produced. Applied is false
// when no matching active session existed, which callers treat as success:
// someone else already finished it.
type FinishResult struct {
	Applied      bool
	Completed    domain.CompletedSession
	Profile      rewarddomain.Profile
	Achievements []rewarddomain.AchievementType
}

// Finish runs the single reward-awarding transition. The reward engine is
// invoked once, the latch is set on the record before it is persisted, and
// the store's transaction makes sure a racing second finisher observes no
// active session instead of a double award.
func (s *SessionService) Finish(ctx context.Context, sessionID string, policy rewarddomain.GracePolicy) (FinishResult, error) {
	session, err := s.store.Current(ctx)
	if errors.Is(err, apperrors.ErrNoActiveSession) {
		return FinishResult{}, nil
	}
	if err != nil {
		return FinishResult{}, err
	}
	if sessionID != "" && session.ID != sessionID {
		// Stale reference: the target was finished or discarded already.
		return FinishResult{}, nil
	}

	now := s.clock.Now()
	completed := session.Finish(now)
	completed.PointsAwarded = rewarddomain.Points(completed.PagesRead, completed.DurationMinutes)
	completed.AwardedReward = true

	profile, err := s.store.Profile(ctx)
	if err != nil {
		return FinishResult{}, err
	}
	events, err := s.store.StreakEvents(ctx)
	if err != nil {
		return FinishResult{}, err
	}

	update := rewarddomain.AdvanceStreak(profile, completed.StartedAt, policy, events)
	var grace *rewarddomain.StreakEvent
	if update.GraceUsed {
		grace = &rewarddomain.StreakEvent{
			ID:          s.idGen.New(),
			GapDate:     update.GapDate,
			UsedAt:      now,
			StreakAtUse: update.Streak,
		}
		profile.LastGraceDate = rewarddomain.Day(now)
	}
	profile.CurrentStreak = update.Streak
	profile.LongestStreak = update.Longest
	if sessionDay := rewarddomain.Day(completed.StartedAt); sessionDay.After(profile.LastReadDate) {
		profile.LastReadDate = sessionDay
	}
	profile.TotalPoints += completed.PointsAwarded

	stats, err := s.store.Stats(ctx)
	if err != nil {
		return FinishResult{}, err
	}
	stats.TotalSessions++
	stats.TotalPages += completed.PagesRead
	stats.TotalMinutes += completed.DurationMinutes
	if completed.DurationMinutes > stats.LongestSessionMins {
		stats.LongestSessionMins = completed.DurationMinutes
	}
	stats.CurrentStreak = profile.CurrentStreak
	stats.TotalPoints = profile.TotalPoints

	unlocked, err := s.store.Unlocked(ctx)
	if err != nil {
		return FinishResult{}, err
	}
	achievements := rewarddomain.EvaluateAchievements(stats, unlocked)

	err = s.store.Finish(ctx, session.ID, sessionout.FinishRecord{
		Completed:    completed,
		Profile:      profile,
		GraceEvent:   grace,
		Achievements: achievements,
	})
	if errors.Is(err, apperrors.ErrSessionNotFound) {
		// Lost the race to another surface; their award stands.
		return FinishResult{}, nil
	}
	if err != nil {
		return FinishResult{}, err
	}
	return FinishResult{Applied: true, Completed: completed, Profile: profile, Achievements: achievements}, nil
}

// Discard throws away the session without history or reward. A missing
// session means it was already handled.
func (s *SessionService) Discard(ctx context.Context, sessionID string) (domain.ActiveSession, bool, error) {
	session, err := s.store.Current(ctx)
	if errors.Is(err, apperrors.ErrNoActiveSession) {
		return domain.ActiveSession{}, false, nil
	}
	if err != nil {
		return domain.ActiveSession{}, false, err
	}
	if sessionID != "" && session.ID != sessionID {
		return domain.ActiveSession{}, false, nil
	}
	err = s.store.Discard(ctx, session.ID)
	if errors.Is(err, apperrors.ErrSessionNotFound) {
		return domain.ActiveSession{}, false, nil
	}
	if err != nil {
		return domain.ActiveSession{}, false, err
	}
	return session, true, nil
}

// AutoExpire discards a session abandoned longer than the threshold.
func (s *SessionService) AutoExpire(ctx context.Context, threshold time.Duration) (domain.ActiveSession, bool, error) {
	session, err := s.store.Current(ctx)
	if errors.Is(err, apperrors.ErrNoActiveSession) {
		return domain.ActiveSession{}, false, nil
	}
	if err != nil {
		return domain.ActiveSession{}, false, err
	}
	if s.clock.Now().Sub(session.LastUpdated) <= threshold {
		return domain.ActiveSession{}, false, nil
	}
	err = s.store.Discard(ctx, session.ID)
	if errors.Is(err, apperrors.ErrSessionNotFound) {
		return domain.ActiveSession{}, false, nil
	}
	if err != nil {
		return domain.ActiveSession{}, false, err
	}
	return session, true, nil
}

func (s *SessionService) Profile(ctx context.Context) (rewarddomain.Profile, error) {
	return s.store.Profile(ctx)
}

func (s *SessionService) History(ctx context.Context) ([]domain.CompletedSession, error) {
	return s.store.History(ctx)
}

// Recompute rebuilds the streak and point totals from the full history plus
// the recorded grace events, repairing drift after data loss. It must agree
// with what incremental updates produced.
func (s *SessionService) Recompute(ctx context.Context) (rewarddomain.Profile, error) {
	history, err := s.store.History(ctx)
	if err != nil {
		return rewarddomain.Profile{}, err
	}
	events, err := s.store.StreakEvents(ctx)
	if err != nil {
		return rewarddomain.Profile{}, err
	}

	dates := make([]time.Time, 0, len(history))
	total := 0
	for _, completed := range history {
		if !completed.CountsInStats {
			continue
		}
		dates = append(dates, completed.StartedAt)
		total += completed.PointsAwarded
	}
	profile := rewarddomain.RecomputeStreak(dates, events)
	profile.TotalPoints = total
	if err := s.store.SaveProfile(ctx, profile); err != nil {
		return rewarddomain.Profile{}, err
	}
	return profile, nil
}
