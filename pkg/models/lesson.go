package models

import "time"

// Lesson is the static metadata of one lesson
type Lesson struct {
	ID                 int        `json:"id"`
	Module             ModuleType `json:"module"`
	Title              string     `json:"title"`
	MinPassRate        float64    `json:"min_pass_rate"`
	MiniReviewInterval int        `json:"mini_review_interval"` // chunk size for mini-reviews
	RoundCount         int        `json:"round_count"`          // 1..3
	MaxRetries         int        `json:"max_retries"`          // retries of a failed round before force-advance
}

// LessonCompletion records that a user finished a lesson
type LessonCompletion struct {
	UserID       string    `json:"user_id" db:"user_id"`
	LessonID     int       `json:"lesson_id" db:"lesson_id"`
	Rounds       int       `json:"rounds" db:"rounds"`
	LastPassRate float64   `json:"last_pass_rate" db:"last_pass_rate"`
	CompletedAt  time.Time `json:"completed_at" db:"completed_at"`
}
