package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	rewarddomain "leaflog/internal/modules/reward/domain"
	sessiondomain "leaflog/internal/modules/session/domain"
	"leaflog/internal/modules/sync/domain"
	syncout "leaflog/internal/modules/sync/port/out"
	"leaflog/internal/platform/clock"
	"leaflog/internal/platform/id"
)

// Publisher turns session transitions into signed sync messages. It only
// appends to the local queue and nudges the daemon; it never touches the
// network itself, so a foreground command can never block on it. An unpaired
// device publishes nothing.
type Publisher struct {
	pairs    syncout.PairStore
	queue    syncout.QueueStore
	activity syncout.ActivityStore
	daemons  syncout.DaemonStore
	ipc      syncout.IPCClient
	clock    clock.Clock
	idGen    id.Generator

	mu      sync.Mutex
	loaded  bool
	pairing domain.Pairing
	key     []byte
	origin  string
}

func NewPublisher(pairs syncout.PairStore, queue syncout.QueueStore, activity syncout.ActivityStore, daemons syncout.DaemonStore, ipc syncout.IPCClient, clk clock.Clock, idGen id.Generator) *Publisher {
	return &Publisher{
		pairs:    pairs,
		queue:    queue,
		activity: activity,
		daemons:  daemons,
		ipc:      ipc,
		clock:    clk,
		idGen:    idGen,
	}
}

func (p *Publisher) SessionStarted(ctx context.Context, session sessiondomain.ActiveSession) {
	p.publish(ctx, domain.KindSessionStarted, func(msg *domain.Message) {
		msg.Session = sessionState(session)
	})
}

func (p *Publisher) SessionUpdated(ctx context.Context, session sessiondomain.ActiveSession) {
	p.publish(ctx, domain.KindSessionUpdated, func(msg *domain.Message) {
		msg.Session = sessionState(session)
	})
}

func (p *Publisher) SessionEnded(ctx context.Context, completed sessiondomain.CompletedSession) {
	p.publish(ctx, domain.KindSessionEnded, func(msg *domain.Message) {
		msg.Completed = completedState(completed)
	})
}

func (p *Publisher) SessionDiscarded(ctx context.Context, sessionID string) {
	p.publish(ctx, domain.KindSessionDiscarded, func(msg *domain.Message) {
		msg.SessionID = sessionID
	})
}

func (p *Publisher) ProfileStats(ctx context.Context, profile rewarddomain.Profile) {
	now := p.clock.Now()
	p.publish(ctx, domain.KindProfileStats, func(msg *domain.Message) {
		msg.Profile = profileState(profile, now)
	})
}

func (p *Publisher) publish(ctx context.Context, kind domain.Kind, fill func(*domain.Message)) {
	pairing, key, origin, ok := p.material(ctx)
	if !ok {
		return
	}
	msg := domain.Message{
		ID:     p.idGen.New(),
		PairID: pairing.PairID,
		Kind:   kind,
		Origin: origin,
		SentAt: p.clock.Now(),
	}
	fill(&msg)
	signed, err := msg.Signed(key)
	if err != nil {
		p.note(msg.ID, domain.ActivityFault, fmt.Sprintf("sign %s: %v", kind, err))
		return
	}
	if err := p.queue.Append(ctx, signed); err != nil {
		p.note(msg.ID, domain.ActivityDropped, fmt.Sprintf("queue %s: %v", kind, err))
		return
	}
	p.note(msg.ID, domain.ActivityQueued, string(kind))
	p.nudge()
}

func (p *Publisher) material(ctx context.Context) (domain.Pairing, []byte, string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loaded {
		return p.pairing, p.key, p.origin, true
	}
	pairing, identity, err := p.pairs.Load(ctx)
	if err != nil {
		return domain.Pairing{}, nil, "", false
	}
	key, err := pairing.Key()
	if err != nil {
		return domain.Pairing{}, nil, "", false
	}
	p.loaded = true
	p.pairing = pairing
	p.key = key
	p.origin = identity.Surface
	return pairing, key, p.origin, true
}

// nudge asks a running daemon to flush soon. Best effort only.
func (p *Publisher) nudge() {
	socket := p.daemons.SocketPath()
	if !socketReachable(socket) {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_, _ = p.ipc.SyncNow(ctx, socket)
	}()
}

func (p *Publisher) note(messageID string, kind domain.ActivityKind, detail string) {
	_ = p.activity.Append(context.Background(), domain.ActivityEvent{
		ID:         p.idGen.New(),
		Kind:       kind,
		MessageID:  messageID,
		Detail:     detail,
		OccurredAt: p.clock.Now(),
	})
}
