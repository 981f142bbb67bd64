package in

import (
	"context"

	"leaflog/internal/modules/catalog/dto"
)

type Usecase interface {
	AddBook(ctx context.Context, input dto.AddBookInput) (dto.BookOutput, error)
	GetBook(ctx context.Context, id string) (dto.BookOutput, error)
	ListBooks(ctx context.Context) ([]dto.BookOutput, error)
}
