package dto

import "time"

type AddBookInput struct {
	Title      string
	Author     string
	TotalPages int
}

type BookOutput struct {
	ID         string
	Title      string
	Author     string
	TotalPages int
	AddedAt    time.Time
}
