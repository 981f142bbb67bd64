package in

import (
	"context"

	"leaflog/internal/modules/session/dto"
	sessionin "leaflog/internal/modules/session/port/in"
)

type CLIHandler struct {
	usecase sessionin.Usecase
}

func NewCLIHandler(usecase sessionin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) Start(ctx context.Context, bookID string, startPage int, origin string, takeover bool) (dto.SessionOutput, error) {
	return h.usecase.Start(ctx, dto.StartInput{BookID: bookID, StartPage: startPage, Origin: origin, Takeover: takeover})
}

func (h CLIHandler) Pause(ctx context.Context) (dto.SessionOutput, error) {
	return h.usecase.Pause(ctx)
}

func (h CLIHandler) Resume(ctx context.Context) (dto.SessionOutput, error) {
	return h.usecase.Resume(ctx)
}

func (h CLIHandler) Nudge(ctx context.Context, delta int) (dto.SessionOutput, error) {
	return h.usecase.AdjustPage(ctx, dto.AdjustPageInput{Delta: delta})
}

func (h CLIHandler) SetPage(ctx context.Context, page int) (dto.SessionOutput, error) {
	return h.usecase.AdjustPage(ctx, dto.AdjustPageInput{Page: page, Absolute: true})
}

func (h CLIHandler) Finish(ctx context.Context) (dto.FinishOutput, error) {
	return h.usecase.Finish(ctx, "")
}

func (h CLIHandler) Discard(ctx context.Context) (dto.DiscardOutput, error) {
	return h.usecase.Discard(ctx, "")
}

func (h CLIHandler) Status(ctx context.Context) (dto.SessionOutput, error) {
	return h.usecase.Status(ctx)
}

func (h CLIHandler) AutoExpire(ctx context.Context) (dto.ExpireOutput, error) {
	return h.usecase.AutoExpire(ctx)
}

func (h CLIHandler) Profile(ctx context.Context) (dto.ProfileOutput, error) {
	return h.usecase.Profile(ctx)
}

func (h CLIHandler) History(ctx context.Context) ([]dto.CompletedOutput, error) {
	return h.usecase.History(ctx)
}

func (h CLIHandler) Recompute(ctx context.Context) (dto.ProfileOutput, error) {
	return h.usecase.Recompute(ctx)
}
