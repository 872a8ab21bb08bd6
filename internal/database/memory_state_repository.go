package database

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/example/studyflow/internal/apperr"
	"github.com/example/studyflow/pkg/models"
)

// MemoryStateRepository handles database operations for memory states
type MemoryStateRepository struct {
	db *DB
}

// NewMemoryStateRepository creates a new repository instance
func NewMemoryStateRepository(db *DB) *MemoryStateRepository {
	return &MemoryStateRepository{db: db}
}

// Find returns the state of one item, or nil if the user never reviewed it
func (r *MemoryStateRepository) Find(ctx context.Context, userID, itemID string) (*models.MemoryState, error) {
	var state models.MemoryState
	err := r.db.FindOne(ctx, &state, "memory_states", Doc{"user_id": userID, "item_id": itemID})
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	normalizeState(&state)
	return &state, nil
}

// Upsert writes state, creating the row on first review
func (r *MemoryStateRepository) Upsert(ctx context.Context, state models.MemoryState) error {
	key := Doc{"user_id": state.UserID, "item_id": state.ItemID}
	patch := Doc{
		"module":           string(state.Module),
		"mastery_level":    string(state.MasteryLevel),
		"easiness_factor":  state.EasinessFactor,
		"interval_days":    state.IntervalDays,
		"repetition_count": state.RepetitionCount,
		"last_quality":     state.LastQuality,
		"last_reviewed_at": utcPtr(state.LastReviewedAt),
		"next_review_at":   utcPtr(state.NextReviewAt),
		"skipped":          state.Skipped,
		"updated_at":       state.UpdatedAt.UTC(),
	}
	return r.db.Upsert(ctx, "memory_states", key, patch)
}

// Skip marks an item as skipped so it is never offered again. An item the
// user never reviewed gets a fresh, skipped state.
func (r *MemoryStateRepository) Skip(ctx context.Context, userID string, item models.LearningItemRef, now time.Time) error {
	key := Doc{"user_id": userID, "item_id": item.ID}
	matched, err := r.db.UpdateOne(ctx, "memory_states", key, Doc{"skipped": true, "updated_at": now.UTC()})
	if err != nil || matched > 0 {
		return err
	}
	return r.Upsert(ctx, models.MemoryState{
		UserID:         userID,
		ItemID:         item.ID,
		Module:         item.Module,
		MasteryLevel:   models.MasteryUnfamiliar,
		EasinessFactor: 2.5,
		Skipped:        true,
		UpdatedAt:      now.UTC(),
	})
}

// ListByUser returns every state of a user, optionally limited to one module
func (r *MemoryStateRepository) ListByUser(ctx context.Context, userID string, module models.ModuleType) ([]models.MemoryState, error) {
	query := "SELECT * FROM memory_states WHERE user_id = ?"
	args := []any{userID}
	if module != "" {
		query += " AND module = ?"
		args = append(args, string(module))
	}
	query = r.db.x.Rebind(query + " ORDER BY item_id")

	var states []models.MemoryState
	err := r.db.retry(ctx, "ListMemoryStates", func() error {
		states = states[:0]
		return r.db.x.SelectContext(ctx, &states, query, args...)
	})
	if err != nil {
		return nil, err
	}
	for i := range states {
		normalizeState(&states[i])
	}
	return states, nil
}

// ListDue returns the user's states due before the given exclusive bound,
// hardest first (lowest easiness factor, then earliest due). A limit of 0
// returns all of them.
func (r *MemoryStateRepository) ListDue(ctx context.Context, userID string, module models.ModuleType, before time.Time, limit int) ([]models.MemoryState, error) {
	query := `SELECT * FROM memory_states
		WHERE user_id = ? AND skipped = ? AND next_review_at IS NOT NULL AND next_review_at < ?`
	args := []any{userID, false, before.UTC()}
	if module != "" {
		query += " AND module = ?"
		args = append(args, string(module))
	}
	query += " ORDER BY easiness_factor ASC, next_review_at ASC, item_id ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	query = r.db.x.Rebind(query)

	var states []models.MemoryState
	err := r.db.retry(ctx, "ListDueStates", func() error {
		states = states[:0]
		return r.db.x.SelectContext(ctx, &states, query, args...)
	})
	if err != nil {
		return nil, err
	}
	for i := range states {
		normalizeState(&states[i])
	}
	return states, nil
}

// CountRemembered returns how many items of module the user remembers
func (r *MemoryStateRepository) CountRemembered(ctx context.Context, userID string, module models.ModuleType) (int, error) {
	return r.db.Count(ctx, "memory_states", Doc{
		"user_id":       userID,
		"module":        string(module),
		"mastery_level": string(models.MasteryRemembered),
	})
}

// Statistics returns statistics about a user's memory states. The due count
// covers everything due before the end of now's UTC day.
func (r *MemoryStateRepository) Statistics(ctx context.Context, userID string, endOfDay time.Time) (*models.Statistics, error) {
	stats := &models.Statistics{ByMastery: make(map[models.MasteryLevel]int)}

	total, err := r.db.Count(ctx, "memory_states", Doc{"user_id": userID})
	if err != nil {
		return nil, err
	}
	stats.TotalItems = total

	skipped, err := r.db.Count(ctx, "memory_states", Doc{"user_id": userID, "skipped": true})
	if err != nil {
		return nil, err
	}
	stats.Skipped = skipped

	dueQuery := r.db.x.Rebind(`SELECT COUNT(*) FROM memory_states
		WHERE user_id = ? AND skipped = ? AND next_review_at IS NOT NULL AND next_review_at < ?`)
	err = r.db.retry(ctx, "CountDue", func() error {
		return r.db.x.GetContext(ctx, &stats.DueToday, dueQuery, userID, false, endOfDay.UTC())
	})
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Level models.MasteryLevel `db:"mastery_level"`
		N     int                 `db:"n"`
	}
	levelQuery := r.db.x.Rebind(`SELECT mastery_level, COUNT(*) AS n FROM memory_states
		WHERE user_id = ? GROUP BY mastery_level`)
	err = r.db.retry(ctx, "CountByMastery", func() error {
		rows = rows[:0]
		return r.db.x.SelectContext(ctx, &rows, levelQuery, userID)
	})
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		stats.ByMastery[row.Level] = row.N
	}

	avgQuery := r.db.x.Rebind("SELECT COALESCE(AVG(easiness_factor), 2.5) FROM memory_states WHERE user_id = ?")
	err = r.db.retry(ctx, "AverageEasiness", func() error {
		return r.db.x.GetContext(ctx, &stats.AvgEasiness, avgQuery, userID)
	})
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// CountDueByUser returns, per user, how many items are due before the bound.
// Users with nothing due are omitted.
func (r *MemoryStateRepository) CountDueByUser(ctx context.Context, before time.Time) (map[string]int, error) {
	query := r.db.x.Rebind(`SELECT user_id, COUNT(*) AS n FROM memory_states
		WHERE skipped = ? AND next_review_at IS NOT NULL AND next_review_at < ?
		GROUP BY user_id`)

	var rows []struct {
		UserID string `db:"user_id"`
		N      int    `db:"n"`
	}
	err := r.db.retry(ctx, "CountDueByUser", func() error {
		rows = rows[:0]
		return r.db.x.SelectContext(ctx, &rows, query, false, before.UTC())
	})
	if err != nil {
		return nil, err
	}

	due := make(map[string]int, len(rows))
	for _, row := range rows {
		due[row.UserID] = row.N
	}
	return due, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func normalizeState(s *models.MemoryState) {
	s.LastReviewedAt = utcPtr(s.LastReviewedAt)
	s.NextReviewAt = utcPtr(s.NextReviewAt)
	s.UpdatedAt = s.UpdatedAt.UTC()
}
