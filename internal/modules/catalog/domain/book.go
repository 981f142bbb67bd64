package domain

import (
	"fmt"
	"strings"
	"time"
)

// Book is an already-resolved catalog record. Sessions reference books by id
// and never own them.
type Book struct {
	ID         string
	Title      string
	Author     string
	TotalPages int
	AddedAt    time.Time
	UpdatedAt  time.Time
}

func (b Book) Validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(b.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if b.TotalPages < 0 {
		return fmt.Errorf("total pages must be non-negative")
	}
	return nil
}
