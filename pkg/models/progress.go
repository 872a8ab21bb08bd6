package models

// AggregateProgress summarizes a user's progress across modules
type AggregateProgress struct {
	LetterCompleted bool    `json:"letter_completed"`
	LetterProgress  float64 `json:"letter_progress"` // 0..1 share of letter lessons completed
	WordMastery     float64 `json:"word_mastery"`
	SentenceMastery float64 `json:"sentence_mastery"`

	// Previous is the last unlock state granted to the user.
	Previous UnlockInfo `json:"previous"`
}

// UnlockInfo is the cross-module unlock state
type UnlockInfo struct {
	WordUnlocked     bool    `json:"word_unlocked" db:"word_unlocked"`
	SentenceUnlocked bool    `json:"sentence_unlocked" db:"sentence_unlocked"`
	ArticleUnlocked  bool    `json:"article_unlocked" db:"article_unlocked"`
	LetterProgress   float64 `json:"letter_progress" db:"letter_progress"`
}

// Statistics summarizes a user's memory states
type Statistics struct {
	TotalItems     int                  `json:"total_items"`
	DueToday       int                  `json:"due_today"`
	Skipped        int                  `json:"skipped"`
	ByMastery      map[MasteryLevel]int `json:"by_mastery"`
	AvgEasiness    float64              `json:"avg_easiness_factor"`
	CompletedCount int                  `json:"completed_lessons"`
}
