package dto

import "time"

type SnapshotOutput struct {
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
