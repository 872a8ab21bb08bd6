package database

import (
	"context"
	"time"

	"github.com/example/studyflow/internal/apperr"
	"github.com/example/studyflow/pkg/models"
)

// ItemRepository provides learning content to the session engine
type ItemRepository struct {
	db *DB
}

// NewItemRepository creates a new repository instance
func NewItemRepository(db *DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// Upsert creates or replaces a content item
func (r *ItemRepository) Upsert(ctx context.Context, item models.LearningItem) error {
	if item.ID == "" {
		return apperr.InvalidInput("UpsertItem", "item id is required")
	}
	if !item.Module.IsValid() {
		return apperr.InvalidInput("UpsertItem", "item %s has unknown module %q", item.ID, item.Module)
	}
	return r.db.Upsert(ctx, "learning_items", Doc{"id": item.ID}, Doc{
		"module":    string(item.Module),
		"lesson_id": item.LessonID,
		"position":  item.Position,
		"prompt":    item.Prompt,
		"answer":    item.Answer,
	})
}

// Get returns an item by ID
func (r *ItemRepository) Get(ctx context.Context, id string) (*models.LearningItem, error) {
	var item models.LearningItem
	if err := r.db.FindOne(ctx, &item, "learning_items", Doc{"id": id}); err != nil {
		return nil, err
	}
	return &item, nil
}

// ListLessonItems returns a lesson's items in presentation order
func (r *ItemRepository) ListLessonItems(ctx context.Context, lessonID int) ([]models.LearningItem, error) {
	query := r.db.x.Rebind("SELECT * FROM learning_items WHERE lesson_id = ? ORDER BY position, id")

	var items []models.LearningItem
	err := r.db.retry(ctx, "ListLessonItems", func() error {
		items = items[:0]
		return r.db.x.SelectContext(ctx, &items, query, lessonID)
	})
	return items, err
}

// ListNewItems returns items of module the user has never reviewed or
// skipped, in lesson order
func (r *ItemRepository) ListNewItems(ctx context.Context, userID string, module models.ModuleType, limit int) ([]models.LearningItemRef, error) {
	query := `SELECT li.id, li.module FROM learning_items li
		LEFT JOIN memory_states ms ON ms.item_id = li.id AND ms.user_id = ?
		WHERE li.module = ? AND ms.item_id IS NULL
		ORDER BY li.lesson_id, li.position, li.id`
	args := []any{userID, string(module)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	query = r.db.x.Rebind(query)

	var refs []models.LearningItemRef
	err := r.db.retry(ctx, "ListNewItems", func() error {
		refs = refs[:0]
		return r.db.x.SelectContext(ctx, &refs, query, args...)
	})
	return refs, err
}

// ListDueItems returns the user's items of module that are due before the
// bound, hardest first
func (r *ItemRepository) ListDueItems(ctx context.Context, userID string, module models.ModuleType, before time.Time) ([]models.LearningItemRef, error) {
	query := r.db.x.Rebind(`SELECT li.id, li.module FROM memory_states ms
		JOIN learning_items li ON li.id = ms.item_id
		WHERE ms.user_id = ? AND li.module = ? AND ms.skipped = ?
			AND ms.next_review_at IS NOT NULL AND ms.next_review_at < ?
		ORDER BY ms.easiness_factor, ms.next_review_at, li.id`)

	var refs []models.LearningItemRef
	err := r.db.retry(ctx, "ListDueItems", func() error {
		refs = refs[:0]
		return r.db.x.SelectContext(ctx, &refs, query, userID, string(module), false, before.UTC())
	})
	return refs, err
}

// CountByModule returns how many items belong to module
func (r *ItemRepository) CountByModule(ctx context.Context, module models.ModuleType) (int, error) {
	return r.db.Count(ctx, "learning_items", Doc{"module": string(module)})
}
