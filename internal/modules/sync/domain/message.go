package domain

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidMessage     = errors.New("invalid sync message")
	ErrInvalidAuthTag     = errors.New("invalid message auth tag")
	ErrPairMismatch       = errors.New("message pair id does not match")
	ErrInvalidPeerAddress = errors.New("invalid peer address")
	ErrNotPaired          = errors.New("device is not paired")
)

// Kind identifies the payload a message carries. Full-state kinds replace the
// receiver's view of the session; page_delta is additive and order-tolerant.
type Kind string

const (
	KindSessionStarted   Kind = "session_started"
	KindSessionUpdated   Kind = "session_updated"
	KindSessionEnded     Kind = "session_ended"
	KindSessionDiscarded Kind = "session_discarded"
	KindPageDelta        Kind = "page_delta"
	KindProfileStats     Kind = "profile_stats"
)

func (k Kind) Validate() error {
	switch k {
	case KindSessionStarted, KindSessionUpdated, KindSessionEnded, KindSessionDiscarded, KindPageDelta, KindProfileStats:
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidMessage, string(k))
	}
}

// SessionState is the full active-session payload. LastUpdated is the
// last-write-wins marker: a receiver applies the state only when it is newer
// than what it already holds.
type SessionState struct {
	ID              string    `json:"id"`
	BookID          string    `json:"book_id"`
	StartedAt       time.Time `json:"started_at"`
	StartPage       int       `json:"start_page"`
	CurrentPage     int       `json:"current_page"`
	Paused          bool      `json:"paused"`
	PausedAt        time.Time `json:"paused_at,omitempty"`
	PausedTotalSecs int64     `json:"paused_total_secs"`
	LastUpdated     time.Time `json:"last_updated"`
	Origin          string    `json:"origin"`
}

// CompletedState mirrors a finished session. Points travel with the record:
// the receiver stores them as-is and never re-awards.
type CompletedState struct {
	ID              string    `json:"id"`
	BookID          string    `json:"book_id"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	StartPage       int       `json:"start_page"`
	EndPage         int       `json:"end_page"`
	PagesRead       int       `json:"pages_read"`
	DurationMinutes int       `json:"duration_minutes"`
	PointsAwarded   int       `json:"points_awarded"`
	Origin          string    `json:"origin"`
}

// ProfileState carries the full reward profile for last-write-wins sync.
type ProfileState struct {
	CurrentStreak int       `json:"current_streak"`
	LongestStreak int       `json:"longest_streak"`
	LastReadDate  time.Time `json:"last_read_date"`
	LastGraceDate time.Time `json:"last_grace_date"`
	TotalPoints   int       `json:"total_points"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Message is the unit exchanged between paired devices. Exactly one payload
// field is set, matching Kind. AuthTag is an HMAC over the encoded message
// with the tag field cleared, keyed by the shared pairing key.
type Message struct {
	ID        string          `json:"id"`
	PairID    string          `json:"pair_id"`
	Kind      Kind            `json:"kind"`
	Origin    string          `json:"origin"`
	SentAt    time.Time       `json:"sent_at"`
	Session   *SessionState   `json:"session,omitempty"`
	Completed *CompletedState `json:"completed,omitempty"`
	Profile   *ProfileState   `json:"profile,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	PageDelta int             `json:"page_delta,omitempty"`
	AuthTag   string          `json:"auth_tag,omitempty"`
}

func (m Message) Validate() error {
	if strings.TrimSpace(m.ID) == "" || strings.TrimSpace(m.PairID) == "" {
		return ErrInvalidMessage
	}
	if err := m.Kind.Validate(); err != nil {
		return err
	}
	switch m.Kind {
	case KindSessionStarted, KindSessionUpdated:
		if m.Session == nil {
			return fmt.Errorf("%w: %s without session payload", ErrInvalidMessage, m.Kind)
		}
	case KindSessionEnded:
		if m.Completed == nil {
			return fmt.Errorf("%w: session_ended without completed payload", ErrInvalidMessage)
		}
	case KindSessionDiscarded:
		if strings.TrimSpace(m.SessionID) == "" {
			return fmt.Errorf("%w: session_discarded without session id", ErrInvalidMessage)
		}
	case KindProfileStats:
		if m.Profile == nil {
			return fmt.Errorf("%w: profile_stats without profile payload", ErrInvalidMessage)
		}
	}
	return nil
}

// Signed returns a copy carrying the HMAC tag for the given pairing key.
func (m Message) Signed(key []byte) (Message, error) {
	tag, err := m.computeTag(key)
	if err != nil {
		return Message{}, err
	}
	m.AuthTag = tag
	return m, nil
}

// Verify checks the tag against the pairing key.
func (m Message) Verify(key []byte) error {
	if strings.TrimSpace(m.AuthTag) == "" {
		return ErrInvalidAuthTag
	}
	expected, err := m.computeTag(key)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(expected), []byte(m.AuthTag)) {
		return ErrInvalidAuthTag
	}
	return nil
}

func (m Message) computeTag(key []byte) (string, error) {
	if len(key) == 0 {
		return "", ErrNotPaired
	}
	clone := m
	clone.AuthTag = ""
	payload, err := json.Marshal(clone)
	if err != nil {
		return "", fmt.Errorf("encode message for signing: %w", err)
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil)), nil
}
