package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	sessionout "leaflog/internal/modules/session/port/out"
	"leaflog/internal/modules/sync/domain"
	syncout "leaflog/internal/modules/sync/port/out"
	"leaflog/internal/platform/clock"
	apperrors "leaflog/internal/platform/errors"
	"leaflog/internal/platform/id"
)

// Deps bundles the outbound ports the service is wired with.
type Deps struct {
	Pairs     syncout.PairStore
	Peers     syncout.PeerStore
	Queue     syncout.QueueStore
	Activity  syncout.ActivityStore
	Daemons   syncout.DaemonStore
	Transport syncout.Transport
	IPCServer syncout.IPCServer
	IPCClient syncout.IPCClient
}

// SyncService runs the cross-surface channel. The session store stays the
// single authority: inbound messages are reconciled into it, and the local
// state it holds is what gets republished.
type SyncService struct {
	dataPath string
	clock    clock.Clock
	idGen    id.Generator
	sessions sessionout.Store
	deps     Deps

	mu         sync.Mutex
	runtime    syncout.RuntimeTransport
	runCancel  context.CancelFunc
	lastStatus syncout.NetworkStatus
	pairing    domain.Pairing
	identity   domain.DeviceIdentity
	key        []byte
}

func NewSyncService(dataPath string, clk clock.Clock, idGen id.Generator, sessions sessionout.Store, deps Deps) *SyncService {
	return &SyncService{
		dataPath: dataPath,
		clock:    clk,
		idGen:    idGen,
		sessions: sessions,
		deps:     deps,
	}
}

func (s *SyncService) PairInit(ctx context.Context, surface string) (domain.Pairing, domain.DeviceIdentity, error) {
	if strings.TrimSpace(surface) == "" {
		surface = "primary"
	}
	return s.deps.Pairs.Init(ctx, surface)
}

func (s *SyncService) PairShow(ctx context.Context) (domain.Pairing, domain.DeviceIdentity, error) {
	pairing, identity, err := s.deps.Pairs.Load(ctx)
	if errors.Is(err, domain.ErrNotPaired) {
		return domain.Pairing{}, domain.DeviceIdentity{}, apperrors.ErrNotPaired
	}
	return pairing, identity, err
}

func (s *SyncService) AddPeer(ctx context.Context, addr string) (domain.Peer, error) {
	peer, err := s.deps.Peers.Add(ctx, addr)
	if err != nil {
		return domain.Peer{}, err
	}
	s.mu.Lock()
	runtime := s.runtime
	s.mu.Unlock()
	if runtime != nil {
		if err := runtime.AddPeer(ctx, peer); err != nil {
			s.note(domain.ActivityFault, "", fmt.Sprintf("dial new peer: %v", err))
		}
	}
	return peer, nil
}

func (s *SyncService) RemovePeer(ctx context.Context, peerID string) error {
	if err := s.deps.Peers.Remove(ctx, peerID); err != nil {
		return err
	}
	s.mu.Lock()
	runtime := s.runtime
	s.mu.Unlock()
	if runtime != nil {
		if err := runtime.RemovePeer(ctx, peerID); err != nil {
			s.note(domain.ActivityFault, "", fmt.Sprintf("drop peer: %v", err))
		}
	}
	return nil
}

func (s *SyncService) ListPeers(ctx context.Context) ([]domain.Peer, error) {
	return s.deps.Peers.List(ctx)
}

func (s *SyncService) Activity(ctx context.Context, query syncout.ActivityQuery) ([]domain.ActivityEvent, error) {
	return s.deps.Activity.Tail(ctx, query)
}

// SyncNow flushes from wherever it is called: directly when this process
// hosts the daemon, over IPC otherwise.
func (s *SyncService) SyncNow(ctx context.Context) (int, error) {
	s.mu.Lock()
	runtime := s.runtime
	s.mu.Unlock()
	if runtime != nil {
		return s.flushAndRepublish(ctx)
	}
	socket := s.deps.Daemons.SocketPath()
	if socketReachable(socket) {
		return s.deps.IPCClient.SyncNow(ctx, socket)
	}
	return 0, apperrors.ErrDaemonNotRunning
}

// Status resolves in order: in-process runtime, the daemon over IPC, then the
// on-disk bookkeeping files.
func (s *SyncService) Status(ctx context.Context) (syncout.DaemonStatus, error) {
	s.mu.Lock()
	runtime := s.runtime
	s.mu.Unlock()
	if runtime != nil {
		return s.runtimeStatus(ctx), nil
	}
	socket := s.deps.Daemons.SocketPath()
	if socketReachable(socket) {
		if status, err := s.deps.IPCClient.Status(ctx, socket); err == nil {
			return status, nil
		}
	}

	status := syncout.DaemonStatus{}
	if pairing, identity, err := s.deps.Pairs.Load(ctx); err == nil {
		status.PairID = pairing.PairID
		status.DeviceID = identity.DeviceID
	}
	if queued, err := s.deps.Queue.List(ctx); err == nil {
		status.QueuedMessages = len(queued)
	}
	if pid, err := s.deps.Daemons.ReadPID(ctx); err == nil && processAlive(pid) {
		status.Running = true
		status.PID = pid
	}
	return status, nil
}

// ingestRemote reconciles one verified inbound message into the session
// store. The store stays authoritative; on concurrent edits the newer
// LastUpdated wins.
func (s *SyncService) ingestRemote(msg domain.Message) {
	ctx := context.Background()
	if err := msg.Validate(); err != nil {
		s.note(domain.ActivityDropped, msg.ID, err.Error())
		return
	}
	detail, err := s.apply(ctx, msg)
	if err != nil {
		s.note(domain.ActivityFault, msg.ID, fmt.Sprintf("apply %s: %v", msg.Kind, err))
		return
	}
	s.note(domain.ActivityReconciled, msg.ID, detail)
}

func (s *SyncService) apply(ctx context.Context, msg domain.Message) (string, error) {
	switch msg.Kind {
	case domain.KindSessionStarted, domain.KindSessionUpdated:
		return s.applyFullState(ctx, msg)
	case domain.KindPageDelta:
		return s.applyPageDelta(ctx, msg)
	case domain.KindSessionEnded:
		return s.applyEnded(ctx, msg)
	case domain.KindSessionDiscarded:
		if err := s.sessions.Discard(ctx, msg.SessionID); err != nil {
			if errors.Is(err, apperrors.ErrSessionNotFound) {
				return "discard already handled", nil
			}
			return "", err
		}
		return fmt.Sprintf("discarded session %s", msg.SessionID), nil
	case domain.KindProfileStats:
		return s.applyProfile(ctx, msg)
	default:
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidMessage, msg.Kind)
	}
}

func (s *SyncService) applyFullState(ctx context.Context, msg domain.Message) (string, error) {
	incoming := activeFromState(msg.Session)
	current, err := s.sessions.Current(ctx)
	if errors.Is(err, apperrors.ErrNoActiveSession) {
		if err := s.sessions.Create(ctx, incoming); err != nil {
			return "", err
		}
		return fmt.Sprintf("adopted remote session %s", incoming.ID), nil
	}
	if err != nil {
		return "", err
	}

	if current.ID == incoming.ID {
		if !incoming.LastUpdated.After(current.LastUpdated) {
			return "stale update, kept local state", nil
		}
		if err := s.sessions.Mutate(ctx, incoming); err != nil {
			return "", err
		}
		return fmt.Sprintf("applied newer state for %s", incoming.ID), nil
	}

	// Two different active sessions means both surfaces started one while
	// apart. The newer write wins; the loser is discarded, never finished.
	if !incoming.LastUpdated.After(current.LastUpdated) {
		return fmt.Sprintf("conflict with %s resolved for local state", current.ID), nil
	}
	if err := s.sessions.Discard(ctx, current.ID); err != nil && !errors.Is(err, apperrors.ErrSessionNotFound) {
		return "", err
	}
	if err := s.sessions.Create(ctx, incoming); err != nil {
		return "", err
	}
	return fmt.Sprintf("conflict resolved: replaced %s with %s", current.ID, incoming.ID), nil
}

func (s *SyncService) applyPageDelta(ctx context.Context, msg domain.Message) (string, error) {
	current, err := s.sessions.Current(ctx)
	if errors.Is(err, apperrors.ErrNoActiveSession) {
		return "no active session for page delta", nil
	}
	if err != nil {
		return "", err
	}
	// A late delta for a session that is no longer current must not move
	// whatever replaced it.
	if msg.SessionID != "" && msg.SessionID != current.ID {
		return fmt.Sprintf("page delta for %s skipped, current is %s", msg.SessionID, current.ID), nil
	}
	// Deltas are additive, so applying them in either order converges. The
	// book's page count is not known here; the floor clamp still applies.
	current.SetPage(current.CurrentPage+msg.PageDelta, 0)
	if msg.SentAt.After(current.LastUpdated) {
		current.LastUpdated = msg.SentAt
	}
	if err := s.sessions.Mutate(ctx, current); err != nil {
		return "", err
	}
	return fmt.Sprintf("applied page delta %+d to %s", msg.PageDelta, current.ID), nil
}

func (s *SyncService) applyEnded(ctx context.Context, msg domain.Message) (string, error) {
	profile, err := s.sessions.Profile(ctx)
	if err != nil {
		return "", err
	}
	completed := completedFromState(msg.Completed)
	rec := sessionout.FinishRecord{Completed: completed, Profile: profile}
	if err := s.sessions.Finish(ctx, completed.ID, rec); err != nil {
		if errors.Is(err, apperrors.ErrSessionNotFound) {
			// No matching active row: either the finish already landed, or
			// this device never saw the session start. Messages carry the
			// full record, so the history row can be written either way;
			// the import is keyed on the id and replays change nothing.
			if err := s.sessions.ImportCompleted(ctx, completed); err != nil {
				return "", err
			}
			return fmt.Sprintf("imported remote finish of %s", completed.ID), nil
		}
		return "", err
	}
	return fmt.Sprintf("recorded remote finish of %s", completed.ID), nil
}

func (s *SyncService) applyProfile(ctx context.Context, msg domain.Message) (string, error) {
	local, err := s.sessions.Profile(ctx)
	if err != nil {
		return "", err
	}
	incoming := profileFromState(msg.Profile)
	// Points only ever grow, so a lower total marks a stale snapshot.
	if incoming.TotalPoints < local.TotalPoints {
		return "stale profile snapshot, kept local", nil
	}
	if err := s.sessions.SaveProfile(ctx, incoming); err != nil {
		return "", err
	}
	return "applied remote profile stats", nil
}

// flushAndRepublish drains the outbound queue, then resends the authoritative
// local state so a reconnecting companion converges even if it missed queued
// traffic.
func (s *SyncService) flushAndRepublish(ctx context.Context) (int, error) {
	sent, err := s.flushQueue(ctx)
	if err != nil {
		return sent, err
	}
	republished, err := s.republish(ctx)
	return sent + republished, err
}

func (s *SyncService) flushQueue(ctx context.Context) (int, error) {
	s.mu.Lock()
	runtime := s.runtime
	s.mu.Unlock()
	if runtime == nil {
		return 0, apperrors.ErrDaemonNotRunning
	}
	queued, err := s.deps.Queue.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(queued) == 0 {
		return 0, nil
	}
	for i, msg := range queued {
		if err := runtime.Send(ctx, msg); err != nil {
			// Swap in the unsent tail in one step; the next tick retries.
			if rerr := s.deps.Queue.Replace(ctx, queued[i:]); rerr != nil {
				return i, rerr
			}
			if !errors.Is(err, apperrors.ErrChannelUnavailable) {
				s.note(domain.ActivityFault, msg.ID, fmt.Sprintf("send: %v", err))
			}
			return i, nil
		}
		s.note(domain.ActivitySent, msg.ID, string(msg.Kind))
	}
	if err := s.deps.Queue.Clear(ctx); err != nil {
		return len(queued), err
	}
	return len(queued), nil
}

func (s *SyncService) republish(ctx context.Context) (int, error) {
	s.mu.Lock()
	runtime := s.runtime
	pairing := s.pairing
	identity := s.identity
	key := s.key
	s.mu.Unlock()
	if runtime == nil {
		return 0, apperrors.ErrDaemonNotRunning
	}

	sent := 0
	if current, err := s.sessions.Current(ctx); err == nil {
		msg := domain.Message{
			ID:      s.idGen.New(),
			PairID:  pairing.PairID,
			Kind:    domain.KindSessionUpdated,
			Origin:  identity.Surface,
			SentAt:  s.clock.Now(),
			Session: sessionState(current),
		}
		if err := s.send(ctx, runtime, msg, key); err == nil {
			sent++
		}
	} else if !errors.Is(err, apperrors.ErrNoActiveSession) {
		return sent, err
	}

	profile, err := s.sessions.Profile(ctx)
	if err != nil {
		return sent, err
	}
	if profile.TotalPoints > 0 || profile.CurrentStreak > 0 {
		msg := domain.Message{
			ID:      s.idGen.New(),
			PairID:  pairing.PairID,
			Kind:    domain.KindProfileStats,
			Origin:  identity.Surface,
			SentAt:  s.clock.Now(),
			Profile: profileState(profile, s.clock.Now()),
		}
		if err := s.send(ctx, runtime, msg, key); err == nil {
			sent++
		}
	}
	return sent, nil
}

func (s *SyncService) send(ctx context.Context, runtime syncout.RuntimeTransport, msg domain.Message, key []byte) error {
	signed, err := msg.Signed(key)
	if err != nil {
		return err
	}
	if err := runtime.Send(ctx, signed); err != nil {
		if !errors.Is(err, apperrors.ErrChannelUnavailable) {
			s.note(domain.ActivityFault, msg.ID, fmt.Sprintf("send: %v", err))
		}
		return err
	}
	s.note(domain.ActivitySent, msg.ID, string(msg.Kind))
	return nil
}

func (s *SyncService) runtimeStatus(ctx context.Context) syncout.DaemonStatus {
	s.mu.Lock()
	runtime := s.runtime
	pairing := s.pairing
	identity := s.identity
	s.mu.Unlock()

	network := runtime.Status()
	queued := 0
	if msgs, err := s.deps.Queue.List(ctx); err == nil {
		queued = len(msgs)
	}
	return syncout.DaemonStatus{
		Running:        true,
		PID:            currentPID(),
		DeviceID:       identity.DeviceID,
		PairID:         pairing.PairID,
		Online:         network.Online,
		PeerCount:      network.PeerCount,
		QueuedMessages: queued,
		LastSyncAt:     network.LastSyncAt,
		ListenAddrs:    network.ListenAddrs,
		Counters:       network.Counters,
	}
}

func (s *SyncService) note(kind domain.ActivityKind, messageID, detail string) {
	event := domain.ActivityEvent{
		ID:         s.idGen.New(),
		Kind:       kind,
		MessageID:  messageID,
		Detail:     detail,
		OccurredAt: s.clock.Now(),
	}
	// The audit trail is best-effort; a full disk must not break the channel.
	_ = s.deps.Activity.Append(context.Background(), event)
}

func socketReachable(path string) bool {
	conn, err := net.DialTimeout("unix", path, 150*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
