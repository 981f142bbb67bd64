package apperrors

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")

	// ErrSessionConflict means an active session already exists somewhere in
	// the system. It is recoverable only through an explicit user choice
	// (take over or abort), never auto-resolved.
	ErrSessionConflict = errors.New("an active session already exists")

	// ErrNoActiveSession is returned when an operation needs an active
	// session and none exists.
	ErrNoActiveSession = errors.New("no active session")

	// ErrSessionNotFound means a finish/discard targeted a session id that is
	// no longer present. Callers treat it as already handled, not fatal.
	ErrSessionNotFound = errors.New("session not found")

	// ErrChannelUnavailable means the companion device is unreachable.
	// Propagation is queued or skipped; the local transition never fails.
	ErrChannelUnavailable = errors.New("sync channel unavailable")

	ErrNotPaired        = errors.New("devices are not paired")
	ErrDaemonNotRunning = errors.New("sync daemon is not running")
)
