package domain

import "time"

// Snapshot is the read-only projection other programs consume: a status bar,
// a widget, a shell prompt. It carries everything needed to render "what is
// being read right now" without opening the database.
type Snapshot struct {
	GeneratedAt time.Time `json:"generated_at"`
	Active      bool      `json:"active"`
	Paused      bool      `json:"paused"`
	BookID      string    `json:"book_id,omitempty"`
	BookTitle   string    `json:"book_title,omitempty"`
	CurrentPage int       `json:"current_page"`
	TotalPages  int       `json:"total_pages"`
	TodayPoints int       `json:"today_points"`
	Streak      int       `json:"streak"`
}
