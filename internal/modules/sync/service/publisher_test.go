package service

import (
	"context"
	"encoding/base64"
	"os"
	"testing"
	"time"

	rewarddomain "leaflog/internal/modules/reward/domain"
	sessiondomain "leaflog/internal/modules/session/domain"
	"leaflog/internal/modules/sync/domain"
	syncout "leaflog/internal/modules/sync/port/out"
)

type memPairStore struct {
	pairing  domain.Pairing
	identity domain.DeviceIdentity
	paired   bool
}

func (m *memPairStore) Init(_ context.Context, surface string) (domain.Pairing, domain.DeviceIdentity, error) {
	m.paired = true
	m.identity.Surface = surface
	return m.pairing, m.identity, nil
}

func (m *memPairStore) Load(context.Context) (domain.Pairing, domain.DeviceIdentity, error) {
	if !m.paired {
		return domain.Pairing{}, domain.DeviceIdentity{}, domain.ErrNotPaired
	}
	return m.pairing, m.identity, nil
}

type memDaemonStore struct{}

func (memDaemonStore) WritePID(context.Context, int) error  { return nil }
func (memDaemonStore) ReadPID(context.Context) (int, error) { return 0, os.ErrNotExist }
func (memDaemonStore) ClearPID(context.Context) error       { return nil }
func (memDaemonStore) SocketPath() string             { return "/nonexistent/leaflog-test.sock" }
func (memDaemonStore) LogPath() string                { return "/nonexistent/leaflog-test.log" }

type noopIPCClient struct{}

func (noopIPCClient) Status(context.Context, string) (syncout.DaemonStatus, error) {
	return syncout.DaemonStatus{}, nil
}
func (noopIPCClient) SyncNow(context.Context, string) (int, error) { return 0, nil }
func (noopIPCClient) Stop(context.Context, string) error           { return nil }

func newTestPublisher(paired bool) (*Publisher, *memQueue, *memActivity) {
	pairs := &memPairStore{
		pairing: domain.Pairing{
			PairID:    "pair-1",
			KeyBase64: base64.StdEncoding.EncodeToString(testKey()),
			CreatedAt: syncBase,
		},
		identity: domain.DeviceIdentity{DeviceID: "dev-1", Surface: "primary"},
		paired:   paired,
	}
	queue := &memQueue{}
	activity := &memActivity{}
	p := NewPublisher(pairs, queue, activity, memDaemonStore{}, noopIPCClient{}, &fakeClock{now: syncBase}, &fakeID{})
	return p, queue, activity
}

func TestPublisherQueuesSignedFullState(t *testing.T) {
	t.Parallel()
	p, queue, activity := newTestPublisher(true)
	ctx := context.Background()

	session := sessiondomain.ActiveSession{
		ID:          "s1",
		BookID:      "b1",
		StartedAt:   syncBase.Add(-30 * time.Minute),
		StartPage:   10,
		CurrentPage: 25,
		LastUpdated: syncBase,
		Origin:      sessiondomain.SurfacePrimary,
	}
	p.SessionStarted(ctx, session)
	p.SessionUpdated(ctx, session)
	p.SessionEnded(ctx, session.Finish(syncBase))
	p.SessionDiscarded(ctx, "s1")
	p.ProfileStats(ctx, rewarddomain.Profile{CurrentStreak: 2, TotalPoints: 300})

	msgs, err := queue.List(ctx)
	if err != nil {
		t.Fatalf("list queue: %v", err)
	}
	if len(msgs) != 5 {
		t.Fatalf("queued %d messages, want 5", len(msgs))
	}
	wantKinds := []domain.Kind{
		domain.KindSessionStarted,
		domain.KindSessionUpdated,
		domain.KindSessionEnded,
		domain.KindSessionDiscarded,
		domain.KindProfileStats,
	}
	for i, msg := range msgs {
		if msg.Kind != wantKinds[i] {
			t.Fatalf("msg[%d].Kind = %s, want %s", i, msg.Kind, wantKinds[i])
		}
		if msg.PairID != "pair-1" || msg.Origin != "primary" {
			t.Fatalf("msg[%d] envelope = %+v", i, msg)
		}
		if err := msg.Verify(testKey()); err != nil {
			t.Fatalf("msg[%d] not signed: %v", i, err)
		}
		if err := msg.Validate(); err != nil {
			t.Fatalf("msg[%d] invalid: %v", i, err)
		}
	}
	if msgs[0].Session == nil || msgs[0].Session.CurrentPage != 25 {
		t.Fatalf("full state payload = %+v", msgs[0].Session)
	}
	if msgs[2].Completed == nil || msgs[2].Completed.PagesRead != 15 {
		t.Fatalf("completed payload = %+v", msgs[2].Completed)
	}

	for _, kind := range activity.kinds() {
		if kind != domain.ActivityQueued {
			t.Fatalf("activity kind = %s, want only queued entries", kind)
		}
	}
}

func TestPublisherIsSilentWhenUnpaired(t *testing.T) {
	t.Parallel()
	p, queue, activity := newTestPublisher(false)
	ctx := context.Background()

	p.SessionDiscarded(ctx, "s1")
	p.ProfileStats(ctx, rewarddomain.Profile{TotalPoints: 100})

	if msgs, _ := queue.List(ctx); len(msgs) != 0 {
		t.Fatalf("unpaired device queued %d messages", len(msgs))
	}
	if len(activity.events) != 0 {
		t.Fatalf("unpaired device logged %d events", len(activity.events))
	}
}
