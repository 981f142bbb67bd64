package out

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"leaflog/internal/modules/catalog/domain"
	catalogout "leaflog/internal/modules/catalog/port/out"
	apperrors "leaflog/internal/platform/errors"
)

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

type SQLiteBookStore struct {
	db *sql.DB
}

func NewSQLiteBookStore(db *sql.DB) (catalogout.BookStore, error) {
	store := &SQLiteBookStore{db: db}
	if err := store.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLiteBookStore) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS books (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  author TEXT,
  total_pages INTEGER NOT NULL,
  added_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create books table: %w", err)
	}
	return nil
}

func (s *SQLiteBookStore) Upsert(ctx context.Context, book domain.Book) error {
	const stmt = `
INSERT INTO books (id, title, author, total_pages, added_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  title=excluded.title,
  author=excluded.author,
  total_pages=excluded.total_pages,
  updated_at=excluded.updated_at;
`
	_, err := s.db.ExecContext(ctx, stmt,
		book.ID,
		book.Title,
		book.Author,
		book.TotalPages,
		book.AddedAt.Format(timeLayout),
		book.UpdatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("upsert book: %w", err)
	}
	return nil
}

func (s *SQLiteBookStore) FindByID(ctx context.Context, id string) (domain.Book, error) {
	const query = `SELECT id, title, author, total_pages, added_at, updated_at FROM books WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)
	book, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Book{}, fmt.Errorf("book %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return domain.Book{}, fmt.Errorf("find book: %w", err)
	}
	return book, nil
}

func (s *SQLiteBookStore) List(ctx context.Context) ([]domain.Book, error) {
	const query = `SELECT id, title, author, total_pages, added_at, updated_at FROM books ORDER BY added_at`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()
	var books []domain.Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (domain.Book, error) {
	var book domain.Book
	var addedAt, updatedAt string
	if err := row.Scan(&book.ID, &book.Title, &book.Author, &book.TotalPages, &addedAt, &updatedAt); err != nil {
		return domain.Book{}, err
	}
	var err error
	if book.AddedAt, err = time.Parse(timeLayout, addedAt); err != nil {
		return domain.Book{}, fmt.Errorf("parse added_at: %w", err)
	}
	if book.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return domain.Book{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return book, nil
}
