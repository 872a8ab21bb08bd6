package engine

import (
	"context"
	"time"

	"github.com/example/studyflow/internal/apperr"
	sr "github.com/example/studyflow/internal/spaced_repetition"
	"github.com/example/studyflow/pkg/models"
)

// Unlocks derives the user's module unlocks from completed letter lessons
// and word and sentence mastery. Newly granted unlocks are stored; nothing
// is ever revoked.
func (e *Engine) Unlocks(ctx context.Context, userID string) (models.UnlockInfo, error) {
	if userID == "" {
		return models.UnlockInfo{}, apperr.InvalidInput("Unlocks", "user id is required")
	}

	prev, err := e.progress.LoadUnlocks(ctx, userID)
	if err != nil {
		return models.UnlockInfo{}, err
	}

	letters := len(e.catalog.ByModule(models.ModuleLetter))
	completed, err := e.progress.CountCompleted(ctx, userID, models.ModuleLetter)
	if err != nil {
		return models.UnlockInfo{}, err
	}
	wordMastery, err := e.mastery(ctx, userID, models.ModuleWord)
	if err != nil {
		return models.UnlockInfo{}, err
	}
	sentenceMastery, err := e.mastery(ctx, userID, models.ModuleSentence)
	if err != nil {
		return models.UnlockInfo{}, err
	}

	progress := models.AggregateProgress{
		LetterCompleted: letters > 0 && completed >= letters,
		WordMastery:     wordMastery,
		SentenceMastery: sentenceMastery,
		Previous:        prev,
	}
	if letters > 0 {
		progress.LetterProgress = float64(min(completed, letters)) / float64(letters)
	}

	info := e.gate.Evaluate(progress)
	if info != prev {
		if err := e.progress.SaveUnlocks(ctx, userID, info, e.now()); err != nil {
			return models.UnlockInfo{}, err
		}
		e.logger.Info("unlocks updated",
			"user_id", userID,
			"word", info.WordUnlocked,
			"sentence", info.SentenceUnlocked,
			"article", info.ArticleUnlocked,
			"letter_progress", info.LetterProgress)
	}
	return info, nil
}

// mastery is the share of a module's items the user remembers
func (e *Engine) mastery(ctx context.Context, userID string, module models.ModuleType) (float64, error) {
	total, err := e.content.CountByModule(ctx, module)
	if err != nil || total == 0 {
		return 0, err
	}
	remembered, err := e.states.CountRemembered(ctx, userID, module)
	if err != nil {
		return 0, err
	}
	return float64(remembered) / float64(total), nil
}

// Stats summarizes the user's memory states for the current UTC day
func (e *Engine) Stats(ctx context.Context, userID string) (*models.Statistics, error) {
	if userID == "" {
		return nil, apperr.InvalidInput("Stats", "user id is required")
	}
	stats, err := e.states.Statistics(ctx, userID, sr.EndOfDay(e.now()))
	if err != nil {
		return nil, err
	}
	stats.CompletedCount, err = e.progress.CountCompleted(ctx, userID, "")
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// SkipItem hides an item from the user's future due and new-item lists.
// Its memory state is kept.
func (e *Engine) SkipItem(ctx context.Context, userID, itemID string) error {
	if userID == "" || itemID == "" {
		return apperr.InvalidInput("SkipItem", "user id and item id are required")
	}
	item, err := e.content.Get(ctx, itemID)
	if err != nil {
		return err
	}
	if err := e.states.Skip(ctx, userID, item.Ref(), e.now()); err != nil {
		return err
	}
	e.logger.Info("item skipped", "user_id", userID, "item_id", itemID)
	return nil
}

// NewItems lists up to limit items of module the user has not seen yet
func (e *Engine) NewItems(ctx context.Context, userID string, module models.ModuleType, limit int) ([]models.LearningItemRef, error) {
	if !module.IsValid() {
		return nil, apperr.InvalidInput("NewItems", "unknown module %q", module)
	}
	return e.content.ListNewItems(ctx, userID, module, limit)
}

// DueItems lists the user's items of module due today, hardest first
func (e *Engine) DueItems(ctx context.Context, userID string, module models.ModuleType) ([]models.LearningItemRef, error) {
	if !module.IsValid() {
		return nil, apperr.InvalidInput("DueItems", "unknown module %q", module)
	}
	return e.content.ListDueItems(ctx, userID, module, sr.EndOfDay(e.now()))
}

// DueCounts returns, per user, how many items are due by the end of the
// current UTC day
func (e *Engine) DueCounts(ctx context.Context) (map[string]int, error) {
	return e.states.CountDueByUser(ctx, sr.EndOfDay(e.now()))
}

// Now exposes the engine clock to collaborators such as the reminder job
func (e *Engine) Now() time.Time {
	return e.now()
}

// Item returns the content of one learning item
func (e *Engine) Item(ctx context.Context, itemID string) (*models.LearningItem, error) {
	if itemID == "" {
		return nil, apperr.InvalidInput("Item", "item id is required")
	}
	return e.content.Get(ctx, itemID)
}
