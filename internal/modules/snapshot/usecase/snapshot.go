package usecase

import (
	"context"

	"leaflog/internal/modules/snapshot/domain"
	"leaflog/internal/modules/snapshot/dto"
	snapshotin "leaflog/internal/modules/snapshot/port/in"
	"leaflog/internal/modules/snapshot/service"
)

type Interactor struct {
	svc *service.SnapshotService
}

func NewInteractor(svc *service.SnapshotService) snapshotin.Usecase {
	return &Interactor{svc: svc}
}

func (i *Interactor) Export(ctx context.Context) (dto.SnapshotOutput, error) {
	snapshot, err := i.svc.Export(ctx)
	if err != nil {
		return dto.SnapshotOutput{}, err
	}
	return snapshotOutput(snapshot), nil
}

func (i *Interactor) Show(ctx context.Context) (dto.SnapshotOutput, error) {
	snapshot, err := i.svc.Show(ctx)
	if err != nil {
		return dto.SnapshotOutput{}, err
	}
	return snapshotOutput(snapshot), nil
}

func snapshotOutput(snapshot domain.Snapshot) dto.SnapshotOutput {
	return dto.SnapshotOutput{
		GeneratedAt: snapshot.GeneratedAt,
		Active:      snapshot.Active,
		Paused:      snapshot.Paused,
		BookID:      snapshot.BookID,
		BookTitle:   snapshot.BookTitle,
		CurrentPage: snapshot.CurrentPage,
		TotalPages:  snapshot.TotalPages,
		TodayPoints: snapshot.TodayPoints,
		Streak:      snapshot.Streak,
	}
}
