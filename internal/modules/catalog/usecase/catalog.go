package usecase

import (
	"context"

	"leaflog/internal/modules/catalog/dto"
	catalogin "leaflog/internal/modules/catalog/port/in"
	"leaflog/internal/modules/catalog/service"
)

type Interactor struct {
	svc *service.BookService
}

func NewInteractor(svc *service.BookService) catalogin.Usecase {
	return &Interactor{svc: svc}
}

func (i *Interactor) AddBook(ctx context.Context, input dto.AddBookInput) (dto.BookOutput, error) {
	book, err := i.svc.AddBook(ctx, input.Title, input.Author, input.TotalPages)
	if err != nil {
		return dto.BookOutput{}, err
	}
	return dto.BookOutput{ID: book.ID, Title: book.Title, Author: book.Author, TotalPages: book.TotalPages, AddedAt: book.AddedAt}, nil
}

func (i *Interactor) GetBook(ctx context.Context, id string) (dto.BookOutput, error) {
	book, err := i.svc.GetBook(ctx, id)
	if err != nil {
		return dto.BookOutput{}, err
	}
	return dto.BookOutput{ID: book.ID, Title: book.Title, Author: book.Author, TotalPages: book.TotalPages, AddedAt: book.AddedAt}, nil
}

func (i *Interactor) ListBooks(ctx context.Context) ([]dto.BookOutput, error) {
	books, err := i.svc.ListBooks(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]dto.BookOutput, 0, len(books))
	for _, book := range books {
		out = append(out, dto.BookOutput{ID: book.ID, Title: book.Title, Author: book.Author, TotalPages: book.TotalPages, AddedAt: book.AddedAt})
	}
	return out, nil
}
