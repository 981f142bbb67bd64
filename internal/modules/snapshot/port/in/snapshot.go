package in

import (
	"context"

	"leaflog/internal/modules/snapshot/dto"
)

type Usecase interface {
	// Export rebuilds the projection from the store and writes it out.
	Export(ctx context.Context) (dto.SnapshotOutput, error)
	// Show returns the last exported snapshot without rebuilding.
	Show(ctx context.Context) (dto.SnapshotOutput, error)
}
