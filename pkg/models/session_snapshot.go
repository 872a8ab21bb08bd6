package models

import "time"

// SessionStatus is the lifecycle status of a snapshot
type SessionStatus string

const (
	StatusInProgress SessionStatus = "IN_PROGRESS"
	StatusCompleted  SessionStatus = "COMPLETED"
)

// RoundEvaluation is computed at the ROUND_EVALUATION boundary
type RoundEvaluation struct {
	Round    int     `json:"round"`
	PassRate float64 `json:"pass_rate"`
	Promote  bool    `json:"promote"`
}

// SessionSnapshot is the resumable position of a user inside a lesson.
// At most one snapshot is live per user and lesson.
type SessionSnapshot struct {
	SessionID     string        `json:"session_id"`
	UserID        string        `json:"user_id"`
	LessonID      int           `json:"lesson_id"`
	Round         int           `json:"round"`
	Phase         string        `json:"phase"`
	AnsweredCount int           `json:"answered_count"`
	CurrentIndex  int           `json:"current_index"` // cursor into the round queue
	RemedyIndex   int           `json:"remedy_index"`  // cursor into the active remedy list
	Status        SessionStatus `json:"status"`
	Retries       int           `json:"retries"` // retries spent on the current round

	// Inputs the round queue was built from. The queue is rebuilt from these
	// alone, so later edits to lesson content do not move the cursor.
	// Carryover holds the previous-round review items: due items in round 1,
	// the prior round's final-review misses afterwards.
	RoundItems      []LearningItemRef `json:"round_items"`
	Carryover       []LearningItemRef `json:"carryover"`
	YesterdayMisses []LearningItemRef `json:"yesterday_misses"`
	FinalMisses     []LearningItemRef `json:"final_misses"`
	FinalCorrect    int               `json:"final_correct"`
	FinalTotal      int               `json:"final_total"`

	Evaluation *RoundEvaluation `json:"evaluation,omitempty"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Clone returns a deep copy so a transition can be computed without
// touching the snapshot it started from.
func (s SessionSnapshot) Clone() SessionSnapshot {
	c := s
	c.RoundItems = append([]LearningItemRef(nil), s.RoundItems...)
	c.Carryover = append([]LearningItemRef(nil), s.Carryover...)
	c.YesterdayMisses = append([]LearningItemRef(nil), s.YesterdayMisses...)
	c.FinalMisses = append([]LearningItemRef(nil), s.FinalMisses...)
	if s.Evaluation != nil {
		e := *s.Evaluation
		c.Evaluation = &e
	}
	return c
}
