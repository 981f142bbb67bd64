package dto

import "time"

type PairOutput struct {
	PairID    string    `json:"pair_id"`
	KeyBase64 string    `json:"key_base64"`
	DeviceID  string    `json:"device_id"`
	Surface   string    `json:"surface"`
	CreatedAt time.Time `json:"created_at"`
}

type PeerOutput struct {
	PeerID  string    `json:"peer_id"`
	Address string    `json:"address"`
	AddedAt time.Time `json:"added_at"`
}

type CountersOutput struct {
	InvalidAuthTag      int64 `json:"invalid_auth_tag"`
	PairMismatch        int64 `json:"pair_mismatch"`
	UnauthenticatedPeer int64 `json:"unauthenticated_peer"`
	DecodeErrors        int64 `json:"decode_errors"`
	SendErrors          int64 `json:"send_errors"`
	ReconnectAttempts   int64 `json:"reconnect_attempts"`
	ReconnectSuccesses  int64 `json:"reconnect_successes"`
}

type StatusOutput struct {
	Running        bool           `json:"running"`
	PID            int            `json:"pid"`
	DeviceID       string         `json:"device_id"`
	PairID         string         `json:"pair_id"`
	Online         bool           `json:"online"`
	PeerCount      int            `json:"peer_count"`
	QueuedMessages int            `json:"queued_messages"`
	LastSyncAt     time.Time      `json:"last_sync_at"`
	ListenAddrs    []string       `json:"listen_addrs"`
	Counters       CountersOutput `json:"counters"`
}

type SyncNowOutput struct {
	Flushed int `json:"flushed"`
}

type ActivityOutput struct {
	Kind       string    `json:"kind"`
	MessageID  string    `json:"message_id,omitempty"`
	Detail     string    `json:"detail"`
	OccurredAt time.Time `json:"occurred_at"`
}
