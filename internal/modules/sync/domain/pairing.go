package domain

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// Pairing is the shared secret both surfaces hold. Messages signed with a
// different pairing key are dropped.
type Pairing struct {
	PairID    string    `json:"pair_id"`
	KeyBase64 string    `json:"key_base64"`
	CreatedAt time.Time `json:"created_at"`
}

func (p Pairing) Key() ([]byte, error) {
	if strings.TrimSpace(p.KeyBase64) == "" {
		return nil, ErrNotPaired
	}
	key, err := base64.StdEncoding.DecodeString(p.KeyBase64)
	if err != nil {
		return nil, fmt.Errorf("decode pairing key: %w", err)
	}
	if len(key) < 32 {
		return nil, fmt.Errorf("pairing key too short: %d bytes", len(key))
	}
	return key, nil
}

// DeviceIdentity is this device's stable network identity. The private key
// never leaves the local sync directory.
type DeviceIdentity struct {
	DeviceID   string `json:"device_id"`
	PrivateKey string `json:"-"`
	Surface    string `json:"surface"`
}

// Peer is the paired companion device's dial address.
type Peer struct {
	PeerID  string    `json:"peer_id"`
	Address string    `json:"address"`
	AddedAt time.Time `json:"added_at"`
}

// ActivityKind labels one line of the sync activity log.
type ActivityKind string

const (
	ActivitySent       ActivityKind = "sent"
	ActivityReceived   ActivityKind = "received"
	ActivityQueued     ActivityKind = "queued"
	ActivityDropped    ActivityKind = "dropped"
	ActivityReconciled ActivityKind = "reconciled"
	ActivityFault      ActivityKind = "fault"
)

// ActivityEvent is one auditable sync occurrence, appended to a local log so
// conflicts and drops stay explainable after the fact.
type ActivityEvent struct {
	ID         string       `json:"id"`
	Kind       ActivityKind `json:"kind"`
	MessageID  string       `json:"message_id,omitempty"`
	Detail     string       `json:"detail"`
	OccurredAt time.Time    `json:"occurred_at"`
}
