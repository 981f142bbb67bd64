package usecase

import (
	"context"

	"leaflog/internal/modules/sync/domain"
	"leaflog/internal/modules/sync/dto"
	syncin "leaflog/internal/modules/sync/port/in"
	syncout "leaflog/internal/modules/sync/port/out"
	"leaflog/internal/modules/sync/service"
)

type Interactor struct {
	svc *service.SyncService
}

func NewInteractor(svc *service.SyncService) syncin.Usecase {
	return &Interactor{svc: svc}
}

func (i *Interactor) PairInit(ctx context.Context, surface string) (dto.PairOutput, error) {
	pairing, identity, err := i.svc.PairInit(ctx, surface)
	if err != nil {
		return dto.PairOutput{}, err
	}
	return pairOutput(pairing, identity), nil
}

func (i *Interactor) PairShow(ctx context.Context) (dto.PairOutput, error) {
	pairing, identity, err := i.svc.PairShow(ctx)
	if err != nil {
		return dto.PairOutput{}, err
	}
	return pairOutput(pairing, identity), nil
}

func (i *Interactor) AddPeer(ctx context.Context, addr string) (dto.PeerOutput, error) {
	peer, err := i.svc.AddPeer(ctx, addr)
	if err != nil {
		return dto.PeerOutput{}, err
	}
	return peerOutput(peer), nil
}

func (i *Interactor) RemovePeer(ctx context.Context, peerID string) error {
	return i.svc.RemovePeer(ctx, peerID)
}

func (i *Interactor) ListPeers(ctx context.Context) ([]dto.PeerOutput, error) {
	peers, err := i.svc.ListPeers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]dto.PeerOutput, 0, len(peers))
	for _, peer := range peers {
		out = append(out, peerOutput(peer))
	}
	return out, nil
}

func (i *Interactor) RunDaemon(ctx context.Context) error {
	return i.svc.RunDaemon(ctx)
}

func (i *Interactor) StartDaemon(ctx context.Context) (dto.StatusOutput, error) {
	status, err := i.svc.StartDaemon(ctx)
	if err != nil {
		return dto.StatusOutput{}, err
	}
	return statusOutput(status), nil
}

func (i *Interactor) StopDaemon(ctx context.Context) error {
	return i.svc.StopDaemon(ctx)
}

func (i *Interactor) Status(ctx context.Context) (dto.StatusOutput, error) {
	status, err := i.svc.Status(ctx)
	if err != nil {
		return dto.StatusOutput{}, err
	}
	return statusOutput(status), nil
}

func (i *Interactor) SyncNow(ctx context.Context) (dto.SyncNowOutput, error) {
	flushed, err := i.svc.SyncNow(ctx)
	if err != nil {
		return dto.SyncNowOutput{}, err
	}
	return dto.SyncNowOutput{Flushed: flushed}, nil
}

func (i *Interactor) Activity(ctx context.Context, limit int, kind string) ([]dto.ActivityOutput, error) {
	events, err := i.svc.Activity(ctx, syncout.ActivityQuery{Limit: limit, Kind: domain.ActivityKind(kind)})
	if err != nil {
		return nil, err
	}
	out := make([]dto.ActivityOutput, 0, len(events))
	for _, event := range events {
		out = append(out, dto.ActivityOutput{
			Kind:       string(event.Kind),
			MessageID:  event.MessageID,
			Detail:     event.Detail,
			OccurredAt: event.OccurredAt,
		})
	}
	return out, nil
}

func pairOutput(pairing domain.Pairing, identity domain.DeviceIdentity) dto.PairOutput {
	return dto.PairOutput{
		PairID:    pairing.PairID,
		KeyBase64: pairing.KeyBase64,
		DeviceID:  identity.DeviceID,
		Surface:   identity.Surface,
		CreatedAt: pairing.CreatedAt,
	}
}

func peerOutput(peer domain.Peer) dto.PeerOutput {
	return dto.PeerOutput{PeerID: peer.PeerID, Address: peer.Address, AddedAt: peer.AddedAt}
}

func statusOutput(status syncout.DaemonStatus) dto.StatusOutput {
	return dto.StatusOutput{
		Running:        status.Running,
		PID:            status.PID,
		DeviceID:       status.DeviceID,
		PairID:         status.PairID,
		Online:         status.Online,
		PeerCount:      status.PeerCount,
		QueuedMessages: status.QueuedMessages,
		LastSyncAt:     status.LastSyncAt,
		ListenAddrs:    status.ListenAddrs,
		Counters: dto.CountersOutput{
			InvalidAuthTag:      status.Counters.InvalidAuthTag,
			PairMismatch:        status.Counters.PairMismatch,
			UnauthenticatedPeer: status.Counters.UnauthenticatedPeer,
			DecodeErrors:        status.Counters.DecodeErrors,
			SendErrors:          status.Counters.SendErrors,
			ReconnectAttempts:   status.Counters.ReconnectAttempts,
			ReconnectSuccesses:  status.Counters.ReconnectSuccesses,
		},
	}
}
