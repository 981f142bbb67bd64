package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"leaflog/internal/modules/catalog/domain"
	"leaflog/internal/modules/catalog/dto"
	"leaflog/internal/modules/catalog/service"
	apperrors "leaflog/internal/platform/errors"
)

type fakeClock struct {
	now time.Time
}

func (f fakeClock) Now() time.Time { return f.now }

type fakeID struct {
	next int
}

func (f *fakeID) New() string {
	f.next++
	return string(rune('a' + f.next - 1))
}

type memBookStore struct {
	books map[string]domain.Book
}

func newMemBookStore() *memBookStore {
	return &memBookStore{books: map[string]domain.Book{}}
}

func (m *memBookStore) Upsert(_ context.Context, book domain.Book) error {
	m.books[book.ID] = book
	return nil
}

func (m *memBookStore) FindByID(_ context.Context, id string) (domain.Book, error) {
	book, ok := m.books[id]
	if !ok {
		return domain.Book{}, apperrors.ErrNotFound
	}
	return book, nil
}

func (m *memBookStore) List(_ context.Context) ([]domain.Book, error) {
	out := make([]domain.Book, 0, len(m.books))
	for _, book := range m.books {
		out = append(out, book)
	}
	return out, nil
}

func newInteractor(store *memBookStore) *Interactor {
	svc := service.NewBookService(fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}, &fakeID{}, store)
	return &Interactor{svc: svc}
}

func TestAddBookRoundTrip(t *testing.T) {
	t.Parallel()
	interactor := newInteractor(newMemBookStore())

	added, err := interactor.AddBook(context.Background(), dto.AddBookInput{Title: "Dune", Author: "Frank Herbert", TotalPages: 412})
	if err != nil {
		t.Fatalf("add book: %v", err)
	}
	if added.ID == "" {
		t.Fatal("expected generated id")
	}

	got, err := interactor.GetBook(context.Background(), added.ID)
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if got.Title != "Dune" || got.TotalPages != 412 {
		t.Fatalf("unexpected book %+v", got)
	}
}

func TestAddBookRejectsEmptyTitle(t *testing.T) {
	t.Parallel()
	interactor := newInteractor(newMemBookStore())

	if _, err := interactor.AddBook(context.Background(), dto.AddBookInput{Title: "   "}); err == nil {
		t.Fatal("expected error for empty title")
	}
}

func TestGetBookNotFound(t *testing.T) {
	t.Parallel()
	interactor := newInteractor(newMemBookStore())

	_, err := interactor.GetBook(context.Background(), "missing")
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
