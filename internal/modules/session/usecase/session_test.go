package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	catalogdto "leaflog/internal/modules/catalog/dto"
	rewarddomain "leaflog/internal/modules/reward/domain"
	"leaflog/internal/modules/session/domain"
	"leaflog/internal/modules/session/dto"
	sessionout "leaflog/internal/modules/session/port/out"
	"leaflog/internal/modules/session/service"
	apperrors "leaflog/internal/platform/errors"
)

type fakeClock struct {
	values []time.Time
	index  int
}

func (f *fakeClock) Now() time.Time {
	if f.index >= len(f.values) {
		return f.values[len(f.values)-1]
	}
	value := f.values[f.index]
	f.index++
	return value
}

type fakeID struct {
	next int
}

func (f *fakeID) New() string {
	f.next++
	return string(rune('0' + f.next))
}

type fakeCatalog struct {
	books map[string]catalogdto.BookOutput
}

func (f *fakeCatalog) AddBook(_ context.Context, _ catalogdto.AddBookInput) (catalogdto.BookOutput, error) {
	return catalogdto.BookOutput{}, nil
}

func (f *fakeCatalog) GetBook(_ context.Context, id string) (catalogdto.BookOutput, error) {
	book, ok := f.books[id]
	if !ok {
		return catalogdto.BookOutput{}, apperrors.ErrNotFound
	}
	return book, nil
}

func (f *fakeCatalog) ListBooks(_ context.Context) ([]catalogdto.BookOutput, error) {
	return nil, nil
}

// memStore implements the store port in memory with the same contract the
// sqlite adapter honors: one active session, atomic finish by id.
type memStore struct {
	active       *domain.ActiveSession
	history      []domain.CompletedSession
	profile      rewarddomain.Profile
	streakEvents []rewarddomain.StreakEvent
	unlocked     map[rewarddomain.AchievementType]struct{}
	finishCalls  int
}

func newMemStore() *memStore {
	return &memStore{unlocked: map[rewarddomain.AchievementType]struct{}{}}
}

func (m *memStore) Current(_ context.Context) (domain.ActiveSession, error) {
	if m.active == nil {
		return domain.ActiveSession{}, apperrors.ErrNoActiveSession
	}
	return *m.active, nil
}

func (m *memStore) Create(_ context.Context, session domain.ActiveSession) error {
	if m.active != nil {
		return apperrors.ErrSessionConflict
	}
	m.active = &session
	return nil
}

func (m *memStore) Mutate(_ context.Context, session domain.ActiveSession) error {
	if m.active == nil || m.active.ID != session.ID {
		return apperrors.ErrSessionNotFound
	}
	m.active = &session
	return nil
}

func (m *memStore) Finish(_ context.Context, sessionID string, rec sessionout.FinishRecord) error {
	if m.active == nil || m.active.ID != sessionID {
		return apperrors.ErrSessionNotFound
	}
	m.finishCalls++
	m.active = nil
	m.history = append(m.history, rec.Completed)
	m.profile = rec.Profile
	if rec.GraceEvent != nil {
		m.streakEvents = append(m.streakEvents, *rec.GraceEvent)
	}
	for _, a := range rec.Achievements {
		m.unlocked[a] = struct{}{}
	}
	return nil
}

func (m *memStore) Discard(_ context.Context, sessionID string) error {
	if m.active == nil || m.active.ID != sessionID {
		return apperrors.ErrSessionNotFound
	}
	m.active = nil
	return nil
}

func (m *memStore) ImportCompleted(_ context.Context, completed domain.CompletedSession) error {
	for _, existing := range m.history {
		if existing.ID == completed.ID {
			return nil
		}
	}
	m.history = append(m.history, completed)
	return nil
}

func (m *memStore) Profile(_ context.Context) (rewarddomain.Profile, error) {
	return m.profile, nil
}

func (m *memStore) SaveProfile(_ context.Context, profile rewarddomain.Profile) error {
	m.profile = profile
	return nil
}

func (m *memStore) History(_ context.Context) ([]domain.CompletedSession, error) {
	return m.history, nil
}

func (m *memStore) StreakEvents(_ context.Context) ([]rewarddomain.StreakEvent, error) {
	return m.streakEvents, nil
}

func (m *memStore) Unlocked(_ context.Context) (map[rewarddomain.AchievementType]struct{}, error) {
	out := map[rewarddomain.AchievementType]struct{}{}
	for k := range m.unlocked {
		out[k] = struct{}{}
	}
	return out, nil
}

func (m *memStore) Stats(_ context.Context) (rewarddomain.CumulativeStats, error) {
	stats := rewarddomain.CumulativeStats{CurrentStreak: m.profile.CurrentStreak, TotalPoints: m.profile.TotalPoints}
	for _, completed := range m.history {
		if !completed.CountsInStats {
			continue
		}
		stats.TotalSessions++
		stats.TotalPages += completed.PagesRead
		stats.TotalMinutes += completed.DurationMinutes
		if completed.DurationMinutes > stats.LongestSessionMins {
			stats.LongestSessionMins = completed.DurationMinutes
		}
	}
	return stats, nil
}

type recordingFanout struct {
	started   []string
	updated   []string
	ended     []string
	discarded []string
	profiles  int
}

func (r *recordingFanout) SessionStarted(_ context.Context, s domain.ActiveSession) {
	r.started = append(r.started, s.ID)
}
func (r *recordingFanout) SessionUpdated(_ context.Context, s domain.ActiveSession) {
	r.updated = append(r.updated, s.ID)
}
func (r *recordingFanout) SessionEnded(_ context.Context, c domain.CompletedSession) {
	r.ended = append(r.ended, c.ID)
}
func (r *recordingFanout) SessionDiscarded(_ context.Context, id string) {
	r.discarded = append(r.discarded, id)
}
func (r *recordingFanout) ProfileStats(_ context.Context, _ rewarddomain.Profile) {
	r.profiles++
}

type recordingListener struct {
	kinds []domain.EventKind
}

func (r *recordingListener) HandleEvent(event domain.Event) {
	r.kinds = append(r.kinds, event.Kind)
}

var start = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	interactor *Interactor
	store      *memStore
	fanout     *recordingFanout
	listener   *recordingListener
}

func newFixture(t *testing.T, times ...time.Time) fixture {
	t.Helper()
	if len(times) == 0 {
		times = []time.Time{start}
	}
	store := newMemStore()
	fanout := &recordingFanout{}
	listener := &recordingListener{}
	clk := &fakeClock{values: times}
	svc := service.NewSessionService(clk, &fakeID{}, store)
	catalog := &fakeCatalog{books: map[string]catalogdto.BookOutput{
		"b1": {ID: "b1", Title: "Dune", TotalPages: 412},
	}}
	interactor := NewInteractor(svc, catalog, clk, Options{
		Policy:          rewarddomain.GracePolicy{WindowDays: 7, MinStreakDays: 2},
		ExpireThreshold: 12 * time.Hour,
		DebounceQuiet:   0, // propagate immediately in tests
		Fanout:          fanout,
		Listeners:       []sessionout.Listener{listener},
	}).(*Interactor)
	return fixture{interactor: interactor, store: store, fanout: fanout, listener: listener}
}

func TestStartConflictNeverOverwrites(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()

	if _, err := fx.interactor.Start(ctx, dto.StartInput{BookID: "b1", StartPage: 10}); err != nil {
		t.Fatalf("first start: %v", err)
	}
	first := fx.store.active.ID

	_, err := fx.interactor.Start(ctx, dto.StartInput{BookID: "b1", StartPage: 20})
	if !errors.Is(err, apperrors.ErrSessionConflict) {
		t.Fatalf("expected ErrSessionConflict, got %v", err)
	}
	if fx.store.active.ID != first {
		t.Fatal("conflicting start must not replace the existing session")
	}
}

func TestStartTakeoverDiscardsExisting(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()

	if _, err := fx.interactor.Start(ctx, dto.StartInput{BookID: "b1", StartPage: 10}); err != nil {
		t.Fatalf("first start: %v", err)
	}
	old := fx.store.active.ID

	out, err := fx.interactor.Start(ctx, dto.StartInput{BookID: "b1", StartPage: 50, Takeover: true})
	if err != nil {
		t.Fatalf("takeover start: %v", err)
	}
	if out.ID == old {
		t.Fatal("takeover must create a new session")
	}
	if len(fx.store.history) != 0 {
		t.Fatal("takeover discards, it must not create history")
	}
	if len(fx.fanout.discarded) != 1 || fx.fanout.discarded[0] != old {
		t.Fatalf("discard fanout = %v, want [%s]", fx.fanout.discarded, old)
	}
	wantKinds := []domain.EventKind{domain.EventStarted, domain.EventDiscarded, domain.EventStarted}
	if len(fx.listener.kinds) != len(wantKinds) {
		t.Fatalf("event kinds = %v, want %v", fx.listener.kinds, wantKinds)
	}
	for i, kind := range wantKinds {
		if fx.listener.kinds[i] != kind {
			t.Fatalf("event kinds = %v, want %v", fx.listener.kinds, wantKinds)
		}
	}
}

func TestFinishAwardsExactlyOnce(t *testing.T) {
	t.Parallel()
	// start at T, finish reads clock at T+75m.
	fx := newFixture(t, start, start, start.Add(75*time.Minute))
	ctx := context.Background()

	if _, err := fx.interactor.Start(ctx, dto.StartInput{BookID: "b1", StartPage: 10}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := fx.interactor.AdjustPage(ctx, dto.AdjustPageInput{Page: 34, Absolute: true}); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	sessionID := fx.store.active.ID

	first, err := fx.interactor.Finish(ctx, sessionID)
	if err != nil {
		t.Fatalf("first finish: %v", err)
	}
	if !first.Applied {
		t.Fatal("first finish must apply")
	}
	if first.Session.PointsAwarded != 290 {
		t.Fatalf("points = %d, want 290 (24 pages * 10 + 50 hour bonus)", first.Session.PointsAwarded)
	}
	if !fx.store.history[0].AwardedReward {
		t.Fatal("reward latch must be set on the persisted record")
	}

	second, err := fx.interactor.Finish(ctx, sessionID)
	if err != nil {
		t.Fatalf("second finish must be a no-op, got %v", err)
	}
	if second.Applied {
		t.Fatal("second finish must not apply")
	}
	if fx.store.finishCalls != 1 {
		t.Fatalf("store finish ran %d times, want 1", fx.store.finishCalls)
	}
	if fx.store.profile.TotalPoints != 290 {
		t.Fatalf("total points = %d, want 290 after double finish", fx.store.profile.TotalPoints)
	}
}

func TestPauseFreezesAccounting(t *testing.T) {
	t.Parallel()
	// start T, pause T+10m, resume T+15m, finish clock T+35m.
	fx := newFixture(t, start, start.Add(10*time.Minute), start.Add(15*time.Minute), start.Add(35*time.Minute))
	ctx := context.Background()

	if _, err := fx.interactor.Start(ctx, dto.StartInput{BookID: "b1", StartPage: 0}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := fx.interactor.Pause(ctx); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := fx.interactor.Resume(ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}
	out, err := fx.interactor.Finish(ctx, "")
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if out.Session.DurationMinutes != 30 {
		t.Fatalf("duration = %d, want 30 (5 of 35 minutes paused)", out.Session.DurationMinutes)
	}
	if out.Session.PointsAwarded != 0 {
		t.Fatalf("points = %d, want 0 (no pages, under an hour)", out.Session.PointsAwarded)
	}
}

func TestFinishWithNoSessionIsIdempotentSuccess(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	out, err := fx.interactor.Finish(context.Background(), "gone")
	if err != nil {
		t.Fatalf("finish without session: %v", err)
	}
	if out.Applied {
		t.Fatal("nothing to finish, must not apply")
	}
}

func TestAutoExpireDiscardsAbandonedSession(t *testing.T) {
	t.Parallel()
	// start T; expire check reads the clock at T+13h.
	fx := newFixture(t, start, start.Add(13*time.Hour))
	ctx := context.Background()

	if _, err := fx.interactor.Start(ctx, dto.StartInput{BookID: "b1"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	out, err := fx.interactor.AutoExpire(ctx)
	if err != nil {
		t.Fatalf("auto expire: %v", err)
	}
	if !out.Expired {
		t.Fatal("13h idle session must expire")
	}
	if fx.store.active != nil {
		t.Fatal("expired session must be deleted")
	}
	if len(fx.store.history) != 0 {
		t.Fatal("expired session must not enter history")
	}
	last := fx.listener.kinds[len(fx.listener.kinds)-1]
	if last != domain.EventExpired {
		t.Fatalf("last event = %s, want expired", last)
	}
}

func TestAutoExpireKeepsFreshSession(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, start, start.Add(time.Hour))
	ctx := context.Background()

	if _, err := fx.interactor.Start(ctx, dto.StartInput{BookID: "b1"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	out, err := fx.interactor.AutoExpire(ctx)
	if err != nil {
		t.Fatalf("auto expire: %v", err)
	}
	if out.Expired {
		t.Fatal("fresh session must not expire")
	}
	if fx.store.active == nil {
		t.Fatal("fresh session must survive the expiry check")
	}
}

func TestPageAdjustmentClampsToBook(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()

	if _, err := fx.interactor.Start(ctx, dto.StartInput{BookID: "b1", StartPage: 10}); err != nil {
		t.Fatalf("start: %v", err)
	}
	out, err := fx.interactor.AdjustPage(ctx, dto.AdjustPageInput{Page: 9999, Absolute: true})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if out.CurrentPage != 412 {
		t.Fatalf("page = %d, want clamp to the book's 412", out.CurrentPage)
	}
	if out.ProjectedPoints != rewarddomain.Points(402, out.ElapsedMinutes) {
		t.Fatal("preview must use the same reward function as the finish path")
	}
}

func TestStreakAdvancesAcrossDays(t *testing.T) {
	t.Parallel()
	dayOne := start
	dayTwo := start.AddDate(0, 0, 1)
	dayFive := start.AddDate(0, 0, 4)
	fx := newFixture(t,
		dayOne, dayOne, // start + finish
		dayTwo, dayTwo,
		dayFive, dayFive,
	)
	ctx := context.Background()

	run := func(wantStreak int) {
		t.Helper()
		if _, err := fx.interactor.Start(ctx, dto.StartInput{BookID: "b1"}); err != nil {
			t.Fatalf("start: %v", err)
		}
		out, err := fx.interactor.Finish(ctx, "")
		if err != nil {
			t.Fatalf("finish: %v", err)
		}
		if out.Profile.CurrentStreak != wantStreak {
			t.Fatalf("streak = %d, want %d", out.Profile.CurrentStreak, wantStreak)
		}
	}
	run(1) // first ever session
	run(2) // next day increments
	run(1) // three-day gap is beyond any grace: reset
}

func TestDiscardTellsEverySurface(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()

	if _, err := fx.interactor.Start(ctx, dto.StartInput{BookID: "b1"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	id := fx.store.active.ID
	out, err := fx.interactor.Discard(ctx, "")
	if err != nil {
		t.Fatalf("discard: %v", err)
	}
	if !out.Discarded || out.SessionID != id {
		t.Fatalf("discard output = %+v", out)
	}
	if len(fx.fanout.discarded) != 1 {
		t.Fatal("discard must propagate so no surface keeps a stale indicator")
	}

	again, err := fx.interactor.Discard(ctx, id)
	if err != nil {
		t.Fatalf("second discard must be a no-op, got %v", err)
	}
	if again.Discarded {
		t.Fatal("second discard must not apply")
	}
}

func TestRecomputeMatchesIncrementalProfile(t *testing.T) {
	t.Parallel()
	days := []int{0, 1, 2, 3, 5, 6, 10}
	times := make([]time.Time, 0, len(days)*2)
	for _, d := range days {
		at := start.AddDate(0, 0, d)
		times = append(times, at, at)
	}
	fx := newFixture(t, times...)
	ctx := context.Background()

	for range days {
		if _, err := fx.interactor.Start(ctx, dto.StartInput{BookID: "b1"}); err != nil {
			t.Fatalf("start: %v", err)
		}
		if _, err := fx.interactor.Finish(ctx, ""); err != nil {
			t.Fatalf("finish: %v", err)
		}
	}
	incremental := fx.store.profile

	recomputed, err := fx.interactor.Recompute(ctx)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if recomputed.CurrentStreak != incremental.CurrentStreak {
		t.Fatalf("recomputed streak %d != incremental %d", recomputed.CurrentStreak, incremental.CurrentStreak)
	}
	if recomputed.LongestStreak != incremental.LongestStreak {
		t.Fatalf("recomputed longest %d != incremental %d", recomputed.LongestStreak, incremental.LongestStreak)
	}
	if recomputed.TotalPoints != incremental.TotalPoints {
		t.Fatalf("recomputed points %d != incremental %d", recomputed.TotalPoints, incremental.TotalPoints)
	}
}
