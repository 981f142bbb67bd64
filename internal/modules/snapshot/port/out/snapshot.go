package out

import (
	"context"

	"leaflog/internal/modules/snapshot/domain"
)

// Writer persists the projection. Write must be atomic: a concurrent reader
// sees either the previous snapshot or the new one, never a torn file.
type Writer interface {
	Write(ctx context.Context, snapshot domain.Snapshot) error
	Read(ctx context.Context) (domain.Snapshot, error)
}
