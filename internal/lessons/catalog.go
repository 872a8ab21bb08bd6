// Package lessons holds the static lesson metadata table.
package lessons

import (
	"sort"

	"github.com/example/studyflow/internal/apperr"
	"github.com/example/studyflow/pkg/models"
)

const (
	defaultMiniReviewInterval = 3
	defaultRoundCount         = 3
	defaultMaxRetries         = 1
)

// Catalog is a read-only lesson table keyed by lesson id
type Catalog struct {
	lessons map[int]models.Lesson
}

// NewCatalog builds a catalog, filling zero-valued policy fields with defaults
func NewCatalog(list []models.Lesson) (*Catalog, error) {
	c := &Catalog{lessons: make(map[int]models.Lesson, len(list))}
	for _, l := range list {
		if l.MiniReviewInterval == 0 {
			l.MiniReviewInterval = defaultMiniReviewInterval
		}
		if l.RoundCount == 0 {
			l.RoundCount = defaultRoundCount
		}
		if l.MaxRetries == 0 {
			l.MaxRetries = defaultMaxRetries
		}
		if err := validate(l); err != nil {
			return nil, err
		}
		if _, dup := c.lessons[l.ID]; dup {
			return nil, apperr.InvalidInput("NewCatalog", "duplicate lesson id %d", l.ID)
		}
		c.lessons[l.ID] = l
	}
	return c, nil
}

func validate(l models.Lesson) error {
	switch {
	case l.ID <= 0:
		return apperr.InvalidInput("NewCatalog", "lesson id %d must be positive", l.ID)
	case !l.Module.IsValid():
		return apperr.InvalidInput("NewCatalog", "lesson %d has unknown module %q", l.ID, l.Module)
	case l.MinPassRate <= 0 || l.MinPassRate > 1:
		return apperr.InvalidInput("NewCatalog", "lesson %d pass rate %v outside (0,1]", l.ID, l.MinPassRate)
	case l.RoundCount < 1 || l.RoundCount > 3:
		return apperr.InvalidInput("NewCatalog", "lesson %d round count %d outside 1..3", l.ID, l.RoundCount)
	case l.MiniReviewInterval < 1:
		return apperr.InvalidInput("NewCatalog", "lesson %d mini-review interval must be positive", l.ID)
	case l.MaxRetries < 0:
		return apperr.InvalidInput("NewCatalog", "lesson %d max retries must not be negative", l.ID)
	}
	return nil
}

// Default returns the built-in lesson table. Letter lessons tighten their
// pass rate from 0.95 for lesson 1 down to 0.80 for lesson 7.
func Default() *Catalog {
	c, err := NewCatalog([]models.Lesson{
		{ID: 1, Module: models.ModuleLetter, Title: "Letters 1", MinPassRate: 0.95},
		{ID: 2, Module: models.ModuleLetter, Title: "Letters 2", MinPassRate: 0.925},
		{ID: 3, Module: models.ModuleLetter, Title: "Letters 3", MinPassRate: 0.90},
		{ID: 4, Module: models.ModuleLetter, Title: "Letters 4", MinPassRate: 0.875},
		{ID: 5, Module: models.ModuleLetter, Title: "Letters 5", MinPassRate: 0.85},
		{ID: 6, Module: models.ModuleLetter, Title: "Letters 6", MinPassRate: 0.825},
		{ID: 7, Module: models.ModuleLetter, Title: "Letters 7", MinPassRate: 0.80},
		{ID: 8, Module: models.ModuleWord, Title: "Words 1", MinPassRate: 0.80, RoundCount: 2},
		{ID: 9, Module: models.ModuleWord, Title: "Words 2", MinPassRate: 0.80, RoundCount: 2},
		{ID: 10, Module: models.ModuleSentence, Title: "Sentences", MinPassRate: 0.80, RoundCount: 1, MiniReviewInterval: 2},
		{ID: 11, Module: models.ModuleArticle, Title: "Articles", MinPassRate: 0.75, RoundCount: 1, MiniReviewInterval: 1},
	})
	if err != nil {
		panic(err)
	}
	return c
}

// Get returns the lesson with the given id
func (c *Catalog) Get(id int) (models.Lesson, error) {
	l, ok := c.lessons[id]
	if !ok {
		return models.Lesson{}, apperr.NotFound("GetLesson", "lesson %d", id)
	}
	return l, nil
}

// ByModule returns the lessons of one module ordered by id
func (c *Catalog) ByModule(module models.ModuleType) []models.Lesson {
	var out []models.Lesson
	for _, l := range c.lessons {
		if l.Module == module {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// All returns every lesson ordered by id
func (c *Catalog) All() []models.Lesson {
	out := make([]models.Lesson, 0, len(c.lessons))
	for _, l := range c.lessons {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
