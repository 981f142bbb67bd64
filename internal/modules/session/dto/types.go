package dto

import "time"

type StartInput struct {
	BookID    string
	StartPage int
	Origin    string
	// Takeover discards an existing active session before starting; without
	// it a conflict is surfaced for the user to resolve.
	Takeover bool
}

type AdjustPageInput struct {
	// Delta nudges the bookmark relative to the current page.
	Delta int
	// Page sets the bookmark directly when Absolute is true.
	Page     int
	Absolute bool
}

type SessionOutput struct {
	ID              string
	BookID          string
	BookTitle       string
	StartPage       int
	CurrentPage     int
	TotalPages      int
	Paused          bool
	StartedAt       time.Time
	ElapsedMinutes  int
	ProjectedPoints int
	Origin          string
}

type CompletedOutput struct {
	ID              string
	BookID          string
	StartedAt       time.Time
	EndedAt         time.Time
	StartPage       int
	EndPage         int
	PagesRead       int
	DurationMinutes int
	PointsAwarded   int
	Origin          string
}

type FinishOutput struct {
	// Applied is false when no matching active session existed; the finish
	// was already handled elsewhere and the call is an idempotent no-op.
	Applied         bool
	Session         CompletedOutput
	Profile         ProfileOutput
	NewAchievements []string
}

type DiscardOutput struct {
	Discarded bool
	SessionID string
}

type ExpireOutput struct {
	Expired   bool
	SessionID string
}

type ProfileOutput struct {
	CurrentStreak int
	LongestStreak int
	LastReadDate  time.Time
	TotalPoints   int
	Level         int
}
