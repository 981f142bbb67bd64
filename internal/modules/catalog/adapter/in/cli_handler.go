package in

import (
	"context"

	"leaflog/internal/modules/catalog/dto"
	catalogin "leaflog/internal/modules/catalog/port/in"
)

type CLIHandler struct {
	usecase catalogin.Usecase
}

func NewCLIHandler(usecase catalogin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) AddBook(ctx context.Context, title, author string, totalPages int) (dto.BookOutput, error) {
	return h.usecase.AddBook(ctx, dto.AddBookInput{Title: title, Author: author, TotalPages: totalPages})
}

func (h CLIHandler) GetBook(ctx context.Context, id string) (dto.BookOutput, error) {
	return h.usecase.GetBook(ctx, id)
}

func (h CLIHandler) ListBooks(ctx context.Context) ([]dto.BookOutput, error) {
	return h.usecase.ListBooks(ctx)
}
