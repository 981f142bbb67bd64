package out

import (
	"context"

	"leaflog/internal/modules/catalog/domain"
)

type BookStore interface {
	Upsert(ctx context.Context, book domain.Book) error
	FindByID(ctx context.Context, id string) (domain.Book, error)
	List(ctx context.Context) ([]domain.Book, error)
}
