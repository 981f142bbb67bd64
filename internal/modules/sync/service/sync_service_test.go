package service

import (
	"context"
	"errors"
	"testing"
	"time"

	rewarddomain "leaflog/internal/modules/reward/domain"
	sessiondomain "leaflog/internal/modules/session/domain"
	sessionout "leaflog/internal/modules/session/port/out"
	"leaflog/internal/modules/sync/domain"
	syncout "leaflog/internal/modules/sync/port/out"
	apperrors "leaflog/internal/platform/errors"
)

var syncBase = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type fakeID struct {
	n int
}

func (f *fakeID) New() string {
	f.n++
	return string(rune('a'+f.n-1)) + "-id"
}

type memSessionStore struct {
	active   *sessiondomain.ActiveSession
	profile  rewarddomain.Profile
	history  []sessiondomain.CompletedSession
	events   []rewarddomain.StreakEvent
	unlocked map[rewarddomain.AchievementType]struct{}
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{unlocked: map[rewarddomain.AchievementType]struct{}{}}
}

func (m *memSessionStore) Current(context.Context) (sessiondomain.ActiveSession, error) {
	if m.active == nil {
		return sessiondomain.ActiveSession{}, apperrors.ErrNoActiveSession
	}
	return *m.active, nil
}

func (m *memSessionStore) Create(_ context.Context, s sessiondomain.ActiveSession) error {
	if m.active != nil {
		return apperrors.ErrSessionConflict
	}
	m.active = &s
	return nil
}

func (m *memSessionStore) Mutate(_ context.Context, s sessiondomain.ActiveSession) error {
	if m.active == nil || m.active.ID != s.ID {
		return apperrors.ErrSessionNotFound
	}
	m.active = &s
	return nil
}

func (m *memSessionStore) Finish(_ context.Context, sessionID string, rec sessionout.FinishRecord) error {
	if m.active == nil || m.active.ID != sessionID {
		return apperrors.ErrSessionNotFound
	}
	m.active = nil
	m.history = append(m.history, rec.Completed)
	m.profile = rec.Profile
	if rec.GraceEvent != nil {
		m.events = append(m.events, *rec.GraceEvent)
	}
	for _, a := range rec.Achievements {
		m.unlocked[a] = struct{}{}
	}
	return nil
}

func (m *memSessionStore) Discard(_ context.Context, sessionID string) error {
	if m.active == nil || m.active.ID != sessionID {
		return apperrors.ErrSessionNotFound
	}
	m.active = nil
	return nil
}

func (m *memSessionStore) ImportCompleted(_ context.Context, completed sessiondomain.CompletedSession) error {
	for _, existing := range m.history {
		if existing.ID == completed.ID {
			return nil
		}
	}
	m.history = append(m.history, completed)
	return nil
}

func (m *memSessionStore) Profile(context.Context) (rewarddomain.Profile, error) {
	return m.profile, nil
}

func (m *memSessionStore) SaveProfile(_ context.Context, p rewarddomain.Profile) error {
	m.profile = p
	return nil
}

func (m *memSessionStore) History(context.Context) ([]sessiondomain.CompletedSession, error) {
	return m.history, nil
}

func (m *memSessionStore) StreakEvents(context.Context) ([]rewarddomain.StreakEvent, error) {
	return m.events, nil
}

func (m *memSessionStore) Unlocked(context.Context) (map[rewarddomain.AchievementType]struct{}, error) {
	return m.unlocked, nil
}

func (m *memSessionStore) Stats(context.Context) (rewarddomain.CumulativeStats, error) {
	return rewarddomain.CumulativeStats{}, nil
}

type memQueue struct {
	msgs []domain.Message
}

func (q *memQueue) Append(_ context.Context, msg domain.Message) error {
	q.msgs = append(q.msgs, msg)
	return nil
}

func (q *memQueue) List(context.Context) ([]domain.Message, error) {
	out := make([]domain.Message, len(q.msgs))
	copy(out, q.msgs)
	return out, nil
}

func (q *memQueue) Replace(_ context.Context, msgs []domain.Message) error {
	q.msgs = append([]domain.Message(nil), msgs...)
	return nil
}

func (q *memQueue) Clear(context.Context) error {
	q.msgs = nil
	return nil
}

type memActivity struct {
	events []domain.ActivityEvent
}

func (a *memActivity) Append(_ context.Context, event domain.ActivityEvent) error {
	a.events = append(a.events, event)
	return nil
}

func (a *memActivity) Tail(_ context.Context, query syncout.ActivityQuery) ([]domain.ActivityEvent, error) {
	out := []domain.ActivityEvent{}
	for _, event := range a.events {
		if query.Kind != "" && event.Kind != query.Kind {
			continue
		}
		out = append(out, event)
	}
	return out, nil
}

func (a *memActivity) kinds() []domain.ActivityKind {
	out := make([]domain.ActivityKind, 0, len(a.events))
	for _, event := range a.events {
		out = append(out, event.Kind)
	}
	return out
}

type fakeRuntime struct {
	sent      []domain.Message
	failAfter int
	status    syncout.NetworkStatus
}

func (r *fakeRuntime) Send(_ context.Context, msg domain.Message) error {
	if r.failAfter >= 0 && len(r.sent) >= r.failAfter {
		return apperrors.ErrChannelUnavailable
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *fakeRuntime) AddPeer(context.Context, domain.Peer) error { return nil }
func (r *fakeRuntime) RemovePeer(context.Context, string) error   { return nil }
func (r *fakeRuntime) Status() syncout.NetworkStatus              { return r.status }
func (r *fakeRuntime) Stop() error                                { return nil }

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	return key
}

func newTestService(t *testing.T) (*SyncService, *memSessionStore, *memQueue, *memActivity, *fakeRuntime) {
	t.Helper()
	sessions := newMemSessionStore()
	queue := &memQueue{}
	activity := &memActivity{}
	runtime := &fakeRuntime{failAfter: -1, status: syncout.NetworkStatus{Online: true}}
	svc := NewSyncService("/tmp/leaflog-test", &fakeClock{now: syncBase}, &fakeID{}, sessions, Deps{
		Queue:    queue,
		Activity: activity,
	})
	svc.runtime = runtime
	svc.pairing = domain.Pairing{PairID: "pair-1"}
	svc.identity = domain.DeviceIdentity{DeviceID: "dev-1", Surface: "primary"}
	svc.key = testKey()
	return svc, sessions, queue, activity, runtime
}

func remoteSession(id string, page int, lastUpdated time.Time) *domain.SessionState {
	return &domain.SessionState{
		ID:          id,
		BookID:      "b1",
		StartedAt:   lastUpdated.Add(-time.Hour),
		StartPage:   10,
		CurrentPage: page,
		LastUpdated: lastUpdated,
		Origin:      "companion",
	}
}

func message(kind domain.Kind) domain.Message {
	return domain.Message{ID: "m1", PairID: "pair-1", Kind: kind, Origin: "companion", SentAt: syncBase}
}

func TestIngestAdoptsRemoteSessionWhenIdle(t *testing.T) {
	t.Parallel()
	svc, sessions, _, _, _ := newTestService(t)

	msg := message(domain.KindSessionStarted)
	msg.Session = remoteSession("s-remote", 20, syncBase)
	svc.ingestRemote(msg)

	current, err := sessions.Current(context.Background())
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if current.ID != "s-remote" || current.CurrentPage != 20 {
		t.Fatalf("adopted = %+v", current)
	}
}

func TestIngestLastWriteWinsOnSameSession(t *testing.T) {
	t.Parallel()
	svc, sessions, _, _, _ := newTestService(t)
	local := sessiondomain.ActiveSession{ID: "s1", BookID: "b1", StartPage: 10, CurrentPage: 30, LastUpdated: syncBase.Add(time.Minute)}
	sessions.active = &local

	stale := message(domain.KindSessionUpdated)
	stale.Session = remoteSession("s1", 15, syncBase)
	svc.ingestRemote(stale)
	if sessions.active.CurrentPage != 30 {
		t.Fatalf("stale update must not win, page = %d", sessions.active.CurrentPage)
	}

	newer := message(domain.KindSessionUpdated)
	newer.ID = "m2"
	newer.Session = remoteSession("s1", 55, syncBase.Add(5*time.Minute))
	svc.ingestRemote(newer)
	if sessions.active.CurrentPage != 55 {
		t.Fatalf("newer update must win, page = %d", sessions.active.CurrentPage)
	}
}

func TestIngestConflictReplacesOlderSession(t *testing.T) {
	t.Parallel()
	svc, sessions, _, _, _ := newTestService(t)
	local := sessiondomain.ActiveSession{ID: "s-local", BookID: "b1", StartPage: 1, CurrentPage: 5, LastUpdated: syncBase}
	sessions.active = &local

	msg := message(domain.KindSessionStarted)
	msg.Session = remoteSession("s-remote", 12, syncBase.Add(time.Minute))
	svc.ingestRemote(msg)

	current, err := sessions.Current(context.Background())
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if current.ID != "s-remote" {
		t.Fatalf("newer session must replace the older, got %s", current.ID)
	}
	if len(sessions.history) != 0 {
		t.Fatal("the losing session is discarded, never finished into history")
	}
}

func TestIngestRemoteFinishNeverReawards(t *testing.T) {
	t.Parallel()
	svc, sessions, _, _, _ := newTestService(t)
	sessions.active = &sessiondomain.ActiveSession{ID: "s1", BookID: "b1", StartPage: 10, CurrentPage: 34, LastUpdated: syncBase}
	sessions.profile = rewarddomain.Profile{TotalPoints: 500}

	msg := message(domain.KindSessionEnded)
	msg.Completed = &domain.CompletedState{ID: "s1", BookID: "b1", StartedAt: syncBase.Add(-time.Hour), EndedAt: syncBase, StartPage: 10, EndPage: 34, PagesRead: 24, DurationMinutes: 75, PointsAwarded: 290, Origin: "companion"}
	svc.ingestRemote(msg)

	if sessions.active != nil {
		t.Fatal("active session must be cleared by a remote finish")
	}
	if len(sessions.history) != 1 {
		t.Fatalf("history = %d records, want 1", len(sessions.history))
	}
	got := sessions.history[0]
	if got.PointsAwarded != 290 || !got.AwardedReward || got.Source != sessiondomain.SourceImported {
		t.Fatalf("imported record = %+v", got)
	}
	if sessions.profile.TotalPoints != 500 {
		t.Fatalf("a remote finish must not touch local points, got %d", sessions.profile.TotalPoints)
	}

	// The same finish arriving again is already handled.
	svc.ingestRemote(msg)
	if len(sessions.history) != 1 {
		t.Fatalf("history grew to %d on duplicate finish", len(sessions.history))
	}
}

func TestIngestRemoteFinishWithoutLocalActiveSession(t *testing.T) {
	t.Parallel()
	svc, sessions, _, activity, _ := newTestService(t)
	sessions.profile = rewarddomain.Profile{TotalPoints: 500}

	// This surface never saw the session start; the ended message alone must
	// be enough to land the record in history.
	msg := message(domain.KindSessionEnded)
	msg.Completed = &domain.CompletedState{ID: "s-unseen", BookID: "b1", StartedAt: syncBase.Add(-time.Hour), EndedAt: syncBase, StartPage: 10, EndPage: 34, PagesRead: 24, DurationMinutes: 75, PointsAwarded: 290, Origin: "companion"}
	svc.ingestRemote(msg)

	if len(sessions.history) != 1 {
		t.Fatalf("history = %d records, want the imported completion", len(sessions.history))
	}
	got := sessions.history[0]
	if got.ID != "s-unseen" || got.PointsAwarded != 290 || !got.AwardedReward || got.Source != sessiondomain.SourceImported {
		t.Fatalf("imported record = %+v", got)
	}
	if sessions.profile.TotalPoints != 500 {
		t.Fatalf("import must not touch local points, got %d", sessions.profile.TotalPoints)
	}
	kinds := activity.kinds()
	if len(kinds) != 1 || kinds[0] != domain.ActivityReconciled {
		t.Fatalf("activity = %v, want a single reconciled entry", kinds)
	}

	// A replay of the same message changes nothing.
	svc.ingestRemote(msg)
	if len(sessions.history) != 1 {
		t.Fatalf("history grew to %d on replay", len(sessions.history))
	}
}

func TestIngestPageDeltaForAnotherSessionIsSkipped(t *testing.T) {
	t.Parallel()
	svc, sessions, _, _, _ := newTestService(t)
	sessions.active = &sessiondomain.ActiveSession{ID: "s-new", BookID: "b1", StartPage: 10, CurrentPage: 20, LastUpdated: syncBase}

	late := message(domain.KindPageDelta)
	late.SessionID = "s-discarded"
	late.PageDelta = 7
	svc.ingestRemote(late)

	if sessions.active.CurrentPage != 20 {
		t.Fatalf("a delta for another session moved the page to %d", sessions.active.CurrentPage)
	}
}

func TestIngestPageDeltaIsAdditiveWithFloorClamp(t *testing.T) {
	t.Parallel()
	svc, sessions, _, _, _ := newTestService(t)
	sessions.active = &sessiondomain.ActiveSession{ID: "s1", BookID: "b1", StartPage: 10, CurrentPage: 20, LastUpdated: syncBase.Add(-time.Minute)}

	up := message(domain.KindPageDelta)
	up.SessionID = "s1"
	up.PageDelta = 7
	svc.ingestRemote(up)
	if sessions.active.CurrentPage != 27 {
		t.Fatalf("page = %d after +7, want 27", sessions.active.CurrentPage)
	}

	down := message(domain.KindPageDelta)
	down.ID = "m2"
	down.SessionID = "s1"
	down.PageDelta = -100
	svc.ingestRemote(down)
	if sessions.active.CurrentPage != 10 {
		t.Fatalf("page = %d, want clamp at the start page", sessions.active.CurrentPage)
	}
}

func TestIngestStaleProfileSnapshotIsDropped(t *testing.T) {
	t.Parallel()
	svc, sessions, _, _, _ := newTestService(t)
	sessions.profile = rewarddomain.Profile{CurrentStreak: 4, TotalPoints: 800}

	stale := message(domain.KindProfileStats)
	stale.Profile = &domain.ProfileState{CurrentStreak: 2, TotalPoints: 500, UpdatedAt: syncBase}
	svc.ingestRemote(stale)
	if sessions.profile.TotalPoints != 800 {
		t.Fatalf("stale snapshot applied, points = %d", sessions.profile.TotalPoints)
	}

	fresh := message(domain.KindProfileStats)
	fresh.ID = "m2"
	fresh.Profile = &domain.ProfileState{CurrentStreak: 5, LongestStreak: 5, TotalPoints: 950, UpdatedAt: syncBase}
	svc.ingestRemote(fresh)
	if sessions.profile.TotalPoints != 950 || sessions.profile.CurrentStreak != 5 {
		t.Fatalf("fresh snapshot not applied: %+v", sessions.profile)
	}
}

func TestFlushQueueSendsInOrderAndClears(t *testing.T) {
	t.Parallel()
	svc, _, queue, _, runtime := newTestService(t)
	ctx := context.Background()
	for _, id := range []string{"q1", "q2", "q3"} {
		queue.msgs = append(queue.msgs, domain.Message{ID: id, PairID: "pair-1", Kind: domain.KindSessionDiscarded, SessionID: "s1"})
	}

	sent, err := svc.flushQueue(ctx)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if sent != 3 || len(runtime.sent) != 3 {
		t.Fatalf("sent %d, transport saw %d, want 3", sent, len(runtime.sent))
	}
	if runtime.sent[0].ID != "q1" || runtime.sent[2].ID != "q3" {
		t.Fatalf("order lost: %s..%s", runtime.sent[0].ID, runtime.sent[2].ID)
	}
	if remaining, _ := queue.List(ctx); len(remaining) != 0 {
		t.Fatalf("%d messages still queued after flush", len(remaining))
	}
}

func TestFlushQueueKeepsUnsentTailOnFailure(t *testing.T) {
	t.Parallel()
	svc, _, queue, _, runtime := newTestService(t)
	ctx := context.Background()
	runtime.failAfter = 1
	for _, id := range []string{"q1", "q2", "q3"} {
		queue.msgs = append(queue.msgs, domain.Message{ID: id, PairID: "pair-1", Kind: domain.KindSessionDiscarded, SessionID: "s1"})
	}

	sent, err := svc.flushQueue(ctx)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if sent != 1 {
		t.Fatalf("sent = %d, want 1 before the channel dropped", sent)
	}
	remaining, _ := queue.List(ctx)
	if len(remaining) != 2 || remaining[0].ID != "q2" {
		t.Fatalf("remaining = %+v, want q2 and q3 in order", remaining)
	}
}

func TestRepublishSendsAuthoritativeState(t *testing.T) {
	t.Parallel()
	svc, sessions, _, _, runtime := newTestService(t)
	sessions.active = &sessiondomain.ActiveSession{ID: "s1", BookID: "b1", StartPage: 10, CurrentPage: 20, LastUpdated: syncBase}
	sessions.profile = rewarddomain.Profile{CurrentStreak: 3, TotalPoints: 600}

	sent, err := svc.republish(context.Background())
	if err != nil {
		t.Fatalf("republish: %v", err)
	}
	if sent != 2 || len(runtime.sent) != 2 {
		t.Fatalf("sent = %d, want session state plus profile", sent)
	}
	if runtime.sent[0].Kind != domain.KindSessionUpdated || runtime.sent[1].Kind != domain.KindProfileStats {
		t.Fatalf("kinds = %s, %s", runtime.sent[0].Kind, runtime.sent[1].Kind)
	}
	if err := runtime.sent[0].Verify(testKey()); err != nil {
		t.Fatalf("republished message must be signed: %v", err)
	}
}

func TestIngestInvalidMessageIsDroppedAndLogged(t *testing.T) {
	t.Parallel()
	svc, sessions, _, activity, _ := newTestService(t)

	msg := message(domain.KindSessionUpdated) // no payload
	svc.ingestRemote(msg)

	if _, err := sessions.Current(context.Background()); !errors.Is(err, apperrors.ErrNoActiveSession) {
		t.Fatalf("invalid message must not mutate state, got %v", err)
	}
	kinds := activity.kinds()
	if len(kinds) != 1 || kinds[0] != domain.ActivityDropped {
		t.Fatalf("activity = %v, want a single dropped entry", kinds)
	}
}
