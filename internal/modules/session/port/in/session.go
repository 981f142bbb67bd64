package in

import (
	"context"

	"leaflog/internal/modules/session/dto"
)

type Usecase interface {
	Start(ctx context.Context, input dto.StartInput) (dto.SessionOutput, error)
	Pause(ctx context.Context) (dto.SessionOutput, error)
	Resume(ctx context.Context) (dto.SessionOutput, error)
	AdjustPage(ctx context.Context, input dto.AdjustPageInput) (dto.SessionOutput, error)
	// Finish targets the given session id, or the current session when the
	// id is empty. A missing session is an idempotent no-op, not an error.
	Finish(ctx context.Context, sessionID string) (dto.FinishOutput, error)
	Discard(ctx context.Context, sessionID string) (dto.DiscardOutput, error)
	Status(ctx context.Context) (dto.SessionOutput, error)
	// AutoExpire discards a session whose last mutation is older than the
	// configured threshold. Runs on launch/foreground, not on a timer.
	AutoExpire(ctx context.Context) (dto.ExpireOutput, error)
	Profile(ctx context.Context) (dto.ProfileOutput, error)
	History(ctx context.Context) ([]dto.CompletedOutput, error)
	Recompute(ctx context.Context) (dto.ProfileOutput, error)
}
