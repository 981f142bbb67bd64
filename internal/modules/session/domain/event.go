package domain

import "time"

// EventKind names a state-machine transition.
type EventKind string

const (
	EventStarted      EventKind = "started"
	EventPaused       EventKind = "paused"
	EventResumed      EventKind = "resumed"
	EventPageAdjusted EventKind = "page_adjusted"
	EventFinished     EventKind = "finished"
	EventDiscarded    EventKind = "discarded"
	EventExpired      EventKind = "expired"
)

// Event is emitted synchronously after each transition so observers see an
// exact, ordered sequence instead of an ambient broadcast.
type Event struct {
	Kind      EventKind
	SessionID string
	BookID    string
	Page      int
	At        time.Time
	Origin    Surface
}
