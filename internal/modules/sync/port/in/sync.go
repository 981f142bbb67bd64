package in

import (
	"context"

	"leaflog/internal/modules/sync/dto"
)

// Usecase is the surface the CLI drives the sync channel through.
type Usecase interface {
	PairInit(ctx context.Context, surface string) (dto.PairOutput, error)
	PairShow(ctx context.Context) (dto.PairOutput, error)

	AddPeer(ctx context.Context, addr string) (dto.PeerOutput, error)
	RemovePeer(ctx context.Context, peerID string) error
	ListPeers(ctx context.Context) ([]dto.PeerOutput, error)

	// RunDaemon blocks until the context is cancelled or Stop arrives over
	// IPC. It is the entry point of the re-exec'd daemon process.
	RunDaemon(ctx context.Context) error
	StartDaemon(ctx context.Context) (dto.StatusOutput, error)
	StopDaemon(ctx context.Context) error
	Status(ctx context.Context) (dto.StatusOutput, error)

	// SyncNow flushes the outbound queue and republishes the authoritative
	// local state, returning the number of messages sent.
	SyncNow(ctx context.Context) (dto.SyncNowOutput, error)
	Activity(ctx context.Context, limit int, kind string) ([]dto.ActivityOutput, error)
}
