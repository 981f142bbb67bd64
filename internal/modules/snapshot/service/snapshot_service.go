package service

import (
	"context"
	"errors"

	catalogin "leaflog/internal/modules/catalog/port/in"
	rewarddomain "leaflog/internal/modules/reward/domain"
	sessiondomain "leaflog/internal/modules/session/domain"
	sessionout "leaflog/internal/modules/session/port/out"
	"leaflog/internal/modules/snapshot/domain"
	snapshotout "leaflog/internal/modules/snapshot/port/out"
	"leaflog/internal/platform/clock"
	apperrors "leaflog/internal/platform/errors"
)

// SnapshotService projects the shared store into the export file. It also
// implements the session listener port, so every state transition rewrites
// the snapshot without the session module knowing about this package.
type SnapshotService struct {
	clock    clock.Clock
	sessions sessionout.Store
	catalog  catalogin.Usecase
	writer   snapshotout.Writer
}

func NewSnapshotService(clk clock.Clock, sessions sessionout.Store, catalog catalogin.Usecase, writer snapshotout.Writer) *SnapshotService {
	return &SnapshotService{clock: clk, sessions: sessions, catalog: catalog, writer: writer}
}

func (s *SnapshotService) Build(ctx context.Context) (domain.Snapshot, error) {
	now := s.clock.Now()
	snapshot := domain.Snapshot{GeneratedAt: now}

	session, err := s.sessions.Current(ctx)
	switch {
	case err == nil:
		snapshot.Active = true
		snapshot.Paused = session.Paused
		snapshot.BookID = session.BookID
		snapshot.CurrentPage = session.CurrentPage
		if book, berr := s.catalog.GetBook(ctx, session.BookID); berr == nil {
			snapshot.BookTitle = book.Title
			snapshot.TotalPages = book.TotalPages
		}
	case errors.Is(err, apperrors.ErrNoActiveSession):
		// Nothing being read; the snapshot still carries streak and points.
	default:
		return domain.Snapshot{}, err
	}

	profile, err := s.sessions.Profile(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snapshot.Streak = profile.CurrentStreak

	history, err := s.sessions.History(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	today := rewarddomain.Day(now)
	for _, completed := range history {
		if rewarddomain.Day(completed.EndedAt).Equal(today) {
			snapshot.TodayPoints += completed.PointsAwarded
		}
	}
	return snapshot, nil
}

func (s *SnapshotService) Export(ctx context.Context) (domain.Snapshot, error) {
	snapshot, err := s.Build(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if err := s.writer.Write(ctx, snapshot); err != nil {
		return domain.Snapshot{}, err
	}
	return snapshot, nil
}

func (s *SnapshotService) Show(ctx context.Context) (domain.Snapshot, error) {
	return s.writer.Read(ctx)
}

// HandleEvent rewrites the snapshot after every transition. A failed export
// never fails the transition that triggered it.
func (s *SnapshotService) HandleEvent(_ sessiondomain.Event) {
	_, _ = s.Export(context.Background())
}
