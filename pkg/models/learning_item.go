package models

// ModuleType names one of the learning modules a content item belongs to
type ModuleType string

const (
	ModuleLetter   ModuleType = "letter"
	ModuleWord     ModuleType = "word"
	ModuleSentence ModuleType = "sentence"
	ModuleArticle  ModuleType = "article"
)

// IsValid reports whether m is a known module
func (m ModuleType) IsValid() bool {
	switch m {
	case ModuleLetter, ModuleWord, ModuleSentence, ModuleArticle:
		return true
	}
	return false
}

// LearningItemRef references exactly one content item
type LearningItemRef struct {
	ID     string     `json:"id" db:"id"`
	Module ModuleType `json:"module" db:"module"`
}

// LearningItem is a content row as stored in the item table
type LearningItem struct {
	ID       string     `json:"id" db:"id"`
	Module   ModuleType `json:"module" db:"module"`
	LessonID int        `json:"lesson_id" db:"lesson_id"`
	Position int        `json:"position" db:"position"`
	Prompt   string     `json:"prompt" db:"prompt"`
	Answer   string     `json:"answer" db:"answer"`
}

// Ref returns the reference used by the queue builder
func (i LearningItem) Ref() LearningItemRef {
	return LearningItemRef{ID: i.ID, Module: i.Module}
}
