package in

import (
	"context"

	"leaflog/internal/modules/snapshot/dto"
	snapshotin "leaflog/internal/modules/snapshot/port/in"
)

type CLIHandler struct {
	usecase snapshotin.Usecase
}

func NewCLIHandler(usecase snapshotin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) Export(ctx context.Context) (dto.SnapshotOutput, error) {
	return h.usecase.Export(ctx)
}

func (h CLIHandler) Show(ctx context.Context) (dto.SnapshotOutput, error) {
	return h.usecase.Show(ctx)
}
