package out

import (
	"context"
	"time"

	"leaflog/internal/modules/sync/domain"
)

// PairStore persists the pairing secret and this device's identity.
type PairStore interface {
	// Init creates the pairing material if absent and returns it. Calling
	// Init on an already paired device is a no-op returning the existing
	// material.
	Init(ctx context.Context, surface string) (domain.Pairing, domain.DeviceIdentity, error)
	// Load returns domain.ErrNotPaired when no pairing exists.
	Load(ctx context.Context) (domain.Pairing, domain.DeviceIdentity, error)
}

// PeerStore persists the companion device addresses.
type PeerStore interface {
	Add(ctx context.Context, addr string) (domain.Peer, error)
	Remove(ctx context.Context, peerID string) error
	List(ctx context.Context) ([]domain.Peer, error)
}

// QueueStore buffers outbound messages while the channel is down. Append is
// called from foreground commands and must never block on the network.
type QueueStore interface {
	Append(ctx context.Context, msg domain.Message) error
	List(ctx context.Context) ([]domain.Message, error)
	// Replace swaps the whole queue for the given messages in one step, so a
	// crash mid-drain leaves either the old queue or the new one, never less.
	Replace(ctx context.Context, msgs []domain.Message) error
	Clear(ctx context.Context) error
}

// ActivityQuery filters the activity tail.
type ActivityQuery struct {
	Limit int
	Kind  domain.ActivityKind
}

// ActivityStore is the append-only sync audit log.
type ActivityStore interface {
	Append(ctx context.Context, event domain.ActivityEvent) error
	Tail(ctx context.Context, query ActivityQuery) ([]domain.ActivityEvent, error)
}

// ValidationCounters tracks messages the transport refused.
type ValidationCounters struct {
	InvalidAuthTag      int64 `json:"invalid_auth_tag"`
	PairMismatch        int64 `json:"pair_mismatch"`
	UnauthenticatedPeer int64 `json:"unauthenticated_peer"`
	DecodeErrors        int64 `json:"decode_errors"`
	SendErrors          int64 `json:"send_errors"`
	ReconnectAttempts   int64 `json:"reconnect_attempts"`
	ReconnectSuccesses  int64 `json:"reconnect_successes"`
}

// NetworkStatus is a point-in-time view of the transport.
type NetworkStatus struct {
	Online      bool               `json:"online"`
	PeerCount   int                `json:"peer_count"`
	LastSyncAt  time.Time          `json:"last_sync_at"`
	ListenAddrs []string           `json:"listen_addrs"`
	Counters    ValidationCounters `json:"counters"`
}

type TransportStartInput struct {
	Pairing  domain.Pairing
	Identity domain.DeviceIdentity
	Peers    []domain.Peer
}

// TransportHandlers receive inbound traffic. OnMessage is called only with
// messages that passed pair and auth-tag checks.
type TransportHandlers struct {
	OnMessage func(msg domain.Message)
	OnStatus  func(status NetworkStatus)
}

// RuntimeTransport is a started transport bound to the daemon lifetime.
type RuntimeTransport interface {
	// Send delivers to every connected peer. An offline channel returns
	// apperrors.ErrChannelUnavailable so callers can queue instead.
	Send(ctx context.Context, msg domain.Message) error
	AddPeer(ctx context.Context, peer domain.Peer) error
	RemovePeer(ctx context.Context, peerID string) error
	Status() NetworkStatus
	Stop() error
}

// Transport builds the network layer. Start returns after listeners are up;
// peer dialing continues in the background with reconnect backoff.
type Transport interface {
	Start(ctx context.Context, input TransportStartInput, handlers TransportHandlers) (RuntimeTransport, error)
}

// DaemonStatus is what the daemon reports over IPC.
type DaemonStatus struct {
	Running        bool               `json:"running"`
	PID            int                `json:"pid"`
	DeviceID       string             `json:"device_id"`
	PairID         string             `json:"pair_id"`
	Online         bool               `json:"online"`
	PeerCount      int                `json:"peer_count"`
	QueuedMessages int                `json:"queued_messages"`
	LastSyncAt     time.Time          `json:"last_sync_at"`
	ListenAddrs    []string           `json:"listen_addrs"`
	Counters       ValidationCounters `json:"counters"`
}

// IPCHandler is implemented by the daemon and exposed over the local socket.
type IPCHandler interface {
	Status(ctx context.Context) (DaemonStatus, error)
	SyncNow(ctx context.Context) (int, error)
	Stop(ctx context.Context) error
}

type IPCServer interface {
	Serve(ctx context.Context, socketPath string, handler IPCHandler) error
}

type IPCClient interface {
	Status(ctx context.Context, socketPath string) (DaemonStatus, error)
	SyncNow(ctx context.Context, socketPath string) (int, error)
	Stop(ctx context.Context, socketPath string) error
}

// DaemonStore tracks the background process bookkeeping files.
type DaemonStore interface {
	WritePID(ctx context.Context, pid int) error
	ReadPID(ctx context.Context) (int, error)
	ClearPID(ctx context.Context) error
	SocketPath() string
	LogPath() string
}
