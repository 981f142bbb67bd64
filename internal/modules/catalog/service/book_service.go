package service

import (
	"context"
	"fmt"
	"strings"

	"leaflog/internal/modules/catalog/domain"
	catalogout "leaflog/internal/modules/catalog/port/out"
	"leaflog/internal/platform/clock"
	"leaflog/internal/platform/id"
)

type BookService struct {
	clock clock.Clock
	idGen id.Generator
	store catalogout.BookStore
}

func NewBookService(clock clock.Clock, idGen id.Generator, store catalogout.BookStore) *BookService {
	return &BookService{clock: clock, idGen: idGen, store: store}
}

func (s *BookService) AddBook(ctx context.Context, title, author string, totalPages int) (domain.Book, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Book{}, fmt.Errorf("title is required")
	}
	now := s.clock.Now()
	book := domain.Book{
		ID:         s.idGen.New(),
		Title:      title,
		Author:     strings.TrimSpace(author),
		TotalPages: totalPages,
		AddedAt:    now,
		UpdatedAt:  now,
	}
	if err := book.Validate(); err != nil {
		return domain.Book{}, err
	}
	if err := s.store.Upsert(ctx, book); err != nil {
		return domain.Book{}, err
	}
	return book, nil
}

func (s *BookService) GetBook(ctx context.Context, bookID string) (domain.Book, error) {
	return s.store.FindByID(ctx, bookID)
}

func (s *BookService) ListBooks(ctx context.Context) ([]domain.Book, error) {
	return s.store.List(ctx)
}
