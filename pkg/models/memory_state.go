package models

import "time"

// MasteryLevel is the coarse memory-strength bucket of a learning item
type MasteryLevel string

const (
	MasteryUnfamiliar MasteryLevel = "unfamiliar"
	MasteryFuzzy      MasteryLevel = "fuzzy"
	MasteryRemembered MasteryLevel = "remembered"
)

// IsValid reports whether m is one of the known mastery levels
func (m MasteryLevel) IsValid() bool {
	switch m {
	case MasteryUnfamiliar, MasteryFuzzy, MasteryRemembered:
		return true
	}
	return false
}

// MemoryState tracks a user's memory of a single learning item using SM-2.
// One row per user and item; rows are never deleted, only marked skipped.
type MemoryState struct {
	UserID          string       `json:"user_id" db:"user_id"`
	ItemID          string       `json:"item_id" db:"item_id"`
	Module          ModuleType   `json:"module" db:"module"`
	MasteryLevel    MasteryLevel `json:"mastery_level" db:"mastery_level"`
	EasinessFactor  float64      `json:"easiness_factor" db:"easiness_factor"`   // never below 1.3
	IntervalDays    int          `json:"interval_days" db:"interval_days"`       // current interval in days
	RepetitionCount int          `json:"repetition_count" db:"repetition_count"` // consecutive successful reviews
	LastQuality     int          `json:"last_quality" db:"last_quality"`         // 1-5 rating of last recall
	LastReviewedAt  *time.Time   `json:"last_reviewed_at" db:"last_reviewed_at"`
	NextReviewAt    *time.Time   `json:"next_review_at" db:"next_review_at"`
	Skipped         bool         `json:"skipped" db:"skipped"`
	UpdatedAt       time.Time    `json:"updated_at" db:"updated_at"`
}
