package out

import (
	"context"

	rewarddomain "leaflog/internal/modules/reward/domain"
	"leaflog/internal/modules/session/domain"
)

// FinishRecord bundles everything the atomic finish transaction persists:
// the completed session with its reward latch set, the updated profile, the
// grace audit event when one was consumed, and newly unlocked achievements.
type FinishRecord struct {
	Completed    domain.CompletedSession
	Profile      rewarddomain.Profile
	GraceEvent   *rewarddomain.StreakEvent
	Achievements []rewarddomain.AchievementType
}

// Store is the shared persistent store all surfaces write through. It is the
// only true mutual exclusion in the system.
type Store interface {
	// Current returns the active session or ErrNoActiveSession. If a fault
	// left multiple rows behind, the store keeps the most recently updated
	// and discards the rest.
	Current(ctx context.Context) (domain.ActiveSession, error)
	// Create fails with ErrSessionConflict when an active session exists.
	Create(ctx context.Context, session domain.ActiveSession) error
	// Mutate persists the session; callers stamp LastUpdated first so every
	// mutation carries a fresh staleness marker.
	Mutate(ctx context.Context, session domain.ActiveSession) error
	// Finish atomically deletes the active row and persists the record, or
	// neither. ErrSessionNotFound when the id is no longer active.
	Finish(ctx context.Context, sessionID string, rec FinishRecord) error
	// Discard deletes the active row without creating history.
	// ErrSessionNotFound when the id is no longer active.
	Discard(ctx context.Context, sessionID string) error
	// ImportCompleted records a session finished on another surface. Keyed on
	// the session id: a record already present is left untouched, so replayed
	// messages are no-ops. The active row and profile are not involved.
	ImportCompleted(ctx context.Context, completed domain.CompletedSession) error

	Profile(ctx context.Context) (rewarddomain.Profile, error)
	SaveProfile(ctx context.Context, profile rewarddomain.Profile) error
	History(ctx context.Context) ([]domain.CompletedSession, error)
	StreakEvents(ctx context.Context) ([]rewarddomain.StreakEvent, error)
	Unlocked(ctx context.Context) (map[rewarddomain.AchievementType]struct{}, error)
	Stats(ctx context.Context) (rewarddomain.CumulativeStats, error)
}

// Listener observes transitions synchronously, in emission order.
type Listener interface {
	HandleEvent(event domain.Event)
}

// Fanout propagates state to the other surfaces. Calls are fire-and-forget:
// implementations queue or drop, and never fail the local transition.
type Fanout interface {
	SessionStarted(ctx context.Context, session domain.ActiveSession)
	SessionUpdated(ctx context.Context, session domain.ActiveSession)
	SessionEnded(ctx context.Context, completed domain.CompletedSession)
	SessionDiscarded(ctx context.Context, sessionID string)
	ProfileStats(ctx context.Context, profile rewarddomain.Profile)
}
