package in

import (
	"context"

	"leaflog/internal/modules/sync/dto"
	syncin "leaflog/internal/modules/sync/port/in"
)

type CLIHandler struct {
	usecase syncin.Usecase
}

func NewCLIHandler(usecase syncin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) PairInit(ctx context.Context, surface string) (dto.PairOutput, error) {
	return h.usecase.PairInit(ctx, surface)
}

func (h CLIHandler) PairShow(ctx context.Context) (dto.PairOutput, error) {
	return h.usecase.PairShow(ctx)
}

func (h CLIHandler) AddPeer(ctx context.Context, addr string) (dto.PeerOutput, error) {
	return h.usecase.AddPeer(ctx, addr)
}

func (h CLIHandler) RemovePeer(ctx context.Context, peerID string) error {
	return h.usecase.RemovePeer(ctx, peerID)
}

func (h CLIHandler) ListPeers(ctx context.Context) ([]dto.PeerOutput, error) {
	return h.usecase.ListPeers(ctx)
}

func (h CLIHandler) RunDaemon(ctx context.Context) error {
	return h.usecase.RunDaemon(ctx)
}

func (h CLIHandler) StartDaemon(ctx context.Context) (dto.StatusOutput, error) {
	return h.usecase.StartDaemon(ctx)
}

func (h CLIHandler) StopDaemon(ctx context.Context) error {
	return h.usecase.StopDaemon(ctx)
}

func (h CLIHandler) Status(ctx context.Context) (dto.StatusOutput, error) {
	return h.usecase.Status(ctx)
}

func (h CLIHandler) SyncNow(ctx context.Context) (dto.SyncNowOutput, error) {
	return h.usecase.SyncNow(ctx)
}

func (h CLIHandler) Activity(ctx context.Context, limit int, kind string) ([]dto.ActivityOutput, error) {
	return h.usecase.Activity(ctx, limit, kind)
}
