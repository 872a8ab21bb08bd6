package database

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/example/studyflow/internal/apperr"
	"github.com/example/studyflow/pkg/models"
)

// CompletionRepository records finished lessons and granted unlocks
type CompletionRepository struct {
	db *DB
}

// NewCompletionRepository creates a new repository instance
func NewCompletionRepository(db *DB) *CompletionRepository {
	return &CompletionRepository{db: db}
}

// Record stores that a user finished a lesson. Finishing again overwrites
// the earlier record.
func (r *CompletionRepository) Record(ctx context.Context, c models.LessonCompletion, module models.ModuleType) error {
	return r.db.Upsert(ctx, "lesson_completions",
		Doc{"user_id": c.UserID, "lesson_id": c.LessonID},
		Doc{
			"module":         string(module),
			"rounds":         c.Rounds,
			"last_pass_rate": c.LastPassRate,
			"completed_at":   c.CompletedAt.UTC(),
		})
}

// CountCompleted returns how many lessons of module the user finished
func (r *CompletionRepository) CountCompleted(ctx context.Context, userID string, module models.ModuleType) (int, error) {
	filter := Doc{"user_id": userID}
	if module != "" {
		filter["module"] = string(module)
	}
	return r.db.Count(ctx, "lesson_completions", filter)
}

// ListByUser returns the user's completions ordered by lesson
func (r *CompletionRepository) ListByUser(ctx context.Context, userID string) ([]models.LessonCompletion, error) {
	query := r.db.x.Rebind(`SELECT user_id, lesson_id, rounds, last_pass_rate, completed_at
		FROM lesson_completions WHERE user_id = ? ORDER BY lesson_id`)

	var out []models.LessonCompletion
	err := r.db.retry(ctx, "ListCompletions", func() error {
		out = out[:0]
		return r.db.x.SelectContext(ctx, &out, query, userID)
	})
	for i := range out {
		out[i].CompletedAt = out[i].CompletedAt.UTC()
	}
	return out, err
}

// unlockRow mirrors the user_unlocks table
type unlockRow struct {
	UserID string `db:"user_id"`
	models.UnlockInfo
	UpdatedAt time.Time `db:"updated_at"`
}

// LoadUnlocks returns the last unlock state granted to the user. A user
// without a stored state has nothing unlocked.
func (r *CompletionRepository) LoadUnlocks(ctx context.Context, userID string) (models.UnlockInfo, error) {
	var row unlockRow
	err := r.db.FindOne(ctx, &row, "user_unlocks", Doc{"user_id": userID})
	if errors.Is(err, apperr.ErrNotFound) {
		return models.UnlockInfo{}, nil
	}
	return row.UnlockInfo, err
}

// SaveUnlocks stores the unlock state granted to the user
func (r *CompletionRepository) SaveUnlocks(ctx context.Context, userID string, info models.UnlockInfo, now time.Time) error {
	return r.db.Upsert(ctx, "user_unlocks", Doc{"user_id": userID}, Doc{
		"word_unlocked":     info.WordUnlocked,
		"sentence_unlocked": info.SentenceUnlocked,
		"article_unlocked":  info.ArticleUnlocked,
		"letter_progress":   info.LetterProgress,
		"updated_at":        now.UTC(),
	})
}
