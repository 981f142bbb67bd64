package service

import (
	"time"

	rewarddomain "leaflog/internal/modules/reward/domain"
	sessiondomain "leaflog/internal/modules/session/domain"
	"leaflog/internal/modules/sync/domain"
)

func sessionState(session sessiondomain.ActiveSession) *domain.SessionState {
	return &domain.SessionState{
		ID:              session.ID,
		BookID:          session.BookID,
		StartedAt:       session.StartedAt,
		StartPage:       session.StartPage,
		CurrentPage:     session.CurrentPage,
		Paused:          session.Paused,
		PausedAt:        session.PausedAt,
		PausedTotalSecs: int64(session.PausedTotal / time.Second),
		LastUpdated:     session.LastUpdated,
		Origin:          string(session.Origin),
	}
}

func activeFromState(state *domain.SessionState) sessiondomain.ActiveSession {
	return sessiondomain.ActiveSession{
		ID:          state.ID,
		BookID:      state.BookID,
		StartedAt:   state.StartedAt,
		StartPage:   state.StartPage,
		CurrentPage: state.CurrentPage,
		Paused:      state.Paused,
		PausedAt:    state.PausedAt,
		PausedTotal: time.Duration(state.PausedTotalSecs) * time.Second,
		LastUpdated: state.LastUpdated,
		Origin:      sessiondomain.Surface(state.Origin),
	}
}

func completedState(completed sessiondomain.CompletedSession) *domain.CompletedState {
	return &domain.CompletedState{
		ID:              completed.ID,
		BookID:          completed.BookID,
		StartedAt:       completed.StartedAt,
		EndedAt:         completed.EndedAt,
		StartPage:       completed.StartPage,
		EndPage:         completed.EndPage,
		PagesRead:       completed.PagesRead,
		DurationMinutes: completed.DurationMinutes,
		PointsAwarded:   completed.PointsAwarded,
		Origin:          string(completed.Origin),
	}
}

// completedFromState rebuilds the history record. The reward latch is set:
// points were awarded where the session finished and are never re-awarded on
// the receiving side.
func completedFromState(state *domain.CompletedState) sessiondomain.CompletedSession {
	return sessiondomain.CompletedSession{
		ID:              state.ID,
		BookID:          state.BookID,
		StartedAt:       state.StartedAt,
		EndedAt:         state.EndedAt,
		StartPage:       state.StartPage,
		EndPage:         state.EndPage,
		PagesRead:       state.PagesRead,
		DurationMinutes: state.DurationMinutes,
		PointsAwarded:   state.PointsAwarded,
		AwardedReward:   true,
		Source:          sessiondomain.SourceImported,
		CountsInStats:   true,
		Origin:          sessiondomain.Surface(state.Origin),
	}
}

func profileState(profile rewarddomain.Profile, at time.Time) *domain.ProfileState {
	return &domain.ProfileState{
		CurrentStreak: profile.CurrentStreak,
		LongestStreak: profile.LongestStreak,
		LastReadDate:  profile.LastReadDate,
		LastGraceDate: profile.LastGraceDate,
		TotalPoints:   profile.TotalPoints,
		UpdatedAt:     at,
	}
}

func profileFromState(state *domain.ProfileState) rewarddomain.Profile {
	return rewarddomain.Profile{
		CurrentStreak: state.CurrentStreak,
		LongestStreak: state.LongestStreak,
		LastReadDate:  state.LastReadDate,
		LastGraceDate: state.LastGraceDate,
		TotalPoints:   state.TotalPoints,
	}
}
