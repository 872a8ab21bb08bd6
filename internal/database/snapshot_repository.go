package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/example/studyflow/internal/apperr"
	"github.com/example/studyflow/pkg/models"
)

// snapshotRow is the stored form of a session snapshot. Item lists and the
// evaluation are kept as JSON text so the table stays portable.
type snapshotRow struct {
	UserID          string    `db:"user_id"`
	LessonID        int       `db:"lesson_id"`
	SessionID       string    `db:"session_id"`
	Round           int       `db:"round"`
	Phase           string    `db:"phase"`
	AnsweredCount   int       `db:"answered_count"`
	CurrentIndex    int       `db:"current_index"`
	RemedyIndex     int       `db:"remedy_index"`
	Status          string    `db:"status"`
	Retries         int       `db:"retries"`
	RoundItems      string    `db:"round_items"`
	Carryover       string    `db:"carryover"`
	YesterdayMisses string    `db:"yesterday_misses"`
	FinalMisses     string    `db:"final_misses"`
	FinalCorrect    int       `db:"final_correct"`
	FinalTotal      int       `db:"final_total"`
	Evaluation      string    `db:"evaluation"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// SnapshotRepository stores one resumable snapshot per user and lesson.
// It implements recovery.Store.
type SnapshotRepository struct {
	db *DB
}

// NewSnapshotRepository creates a new repository instance
func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Save writes snap, replacing any earlier snapshot of the same lesson
func (r *SnapshotRepository) Save(ctx context.Context, snap models.SessionSnapshot) error {
	patch, err := snapshotDoc(snap)
	if err != nil {
		return err
	}
	key := Doc{"user_id": snap.UserID, "lesson_id": snap.LessonID}
	return r.db.Upsert(ctx, "session_snapshots", key, patch)
}

// Load returns the snapshot of a lesson, or nil if there is none
func (r *SnapshotRepository) Load(ctx context.Context, userID string, lessonID int) (*models.SessionSnapshot, error) {
	var row snapshotRow
	err := r.db.FindOne(ctx, &row, "session_snapshots", Doc{"user_id": userID, "lesson_id": lessonID})
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.snapshot()
}

// Clear removes the snapshot of a lesson
func (r *SnapshotRepository) Clear(ctx context.Context, userID string, lessonID int) error {
	return r.db.DeleteOne(ctx, "session_snapshots", Doc{"user_id": userID, "lesson_id": lessonID})
}

// FindLive returns the user's most recently updated in-progress snapshot
func (r *SnapshotRepository) FindLive(ctx context.Context, userID string) (*models.SessionSnapshot, error) {
	query := r.db.x.Rebind(`SELECT * FROM session_snapshots
		WHERE user_id = ? AND status = ?
		ORDER BY updated_at DESC, lesson_id ASC LIMIT 1`)

	var rows []snapshotRow
	err := r.db.retry(ctx, "FindLiveSnapshot", func() error {
		rows = rows[:0]
		return r.db.x.SelectContext(ctx, &rows, query, userID, string(models.StatusInProgress))
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].snapshot()
}

func snapshotDoc(s models.SessionSnapshot) (Doc, error) {
	roundItems, err := encodeRefs(s.RoundItems)
	if err != nil {
		return nil, err
	}
	carry, err := encodeRefs(s.Carryover)
	if err != nil {
		return nil, err
	}
	yesterday, err := encodeRefs(s.YesterdayMisses)
	if err != nil {
		return nil, err
	}
	final, err := encodeRefs(s.FinalMisses)
	if err != nil {
		return nil, err
	}
	eval := ""
	if s.Evaluation != nil {
		b, err := json.Marshal(s.Evaluation)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode evaluation")
		}
		eval = string(b)
	}

	return Doc{
		"session_id":       s.SessionID,
		"round":            s.Round,
		"phase":            s.Phase,
		"answered_count":   s.AnsweredCount,
		"current_index":    s.CurrentIndex,
		"remedy_index":     s.RemedyIndex,
		"status":           string(s.Status),
		"retries":          s.Retries,
		"round_items":      roundItems,
		"carryover":        carry,
		"yesterday_misses": yesterday,
		"final_misses":     final,
		"final_correct":    s.FinalCorrect,
		"final_total":      s.FinalTotal,
		"evaluation":       eval,
		"updated_at":       s.UpdatedAt.UTC(),
	}, nil
}

func (row snapshotRow) snapshot() (*models.SessionSnapshot, error) {
	s := &models.SessionSnapshot{
		SessionID:     row.SessionID,
		UserID:        row.UserID,
		LessonID:      row.LessonID,
		Round:         row.Round,
		Phase:         row.Phase,
		AnsweredCount: row.AnsweredCount,
		CurrentIndex:  row.CurrentIndex,
		RemedyIndex:   row.RemedyIndex,
		Status:        models.SessionStatus(row.Status),
		Retries:       row.Retries,
		FinalCorrect:  row.FinalCorrect,
		FinalTotal:    row.FinalTotal,
		UpdatedAt:     row.UpdatedAt.UTC(),
	}

	var err error
	if s.RoundItems, err = decodeRefs(row.RoundItems); err != nil {
		return nil, err
	}
	if s.Carryover, err = decodeRefs(row.Carryover); err != nil {
		return nil, err
	}
	if s.YesterdayMisses, err = decodeRefs(row.YesterdayMisses); err != nil {
		return nil, err
	}
	if s.FinalMisses, err = decodeRefs(row.FinalMisses); err != nil {
		return nil, err
	}
	if row.Evaluation != "" {
		s.Evaluation = &models.RoundEvaluation{}
		if err := json.Unmarshal([]byte(row.Evaluation), s.Evaluation); err != nil {
			return nil, apperr.New("LoadSnapshot", apperr.ErrInvariantViolation, errors.Wrap(err, "corrupt evaluation"))
		}
	}
	return s, nil
}

// encodeRefs stores an empty list as "" so it decodes back to nil
func encodeRefs(refs []models.LearningItemRef) (string, error) {
	if len(refs) == 0 {
		return "", nil
	}
	b, err := json.Marshal(refs)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode item list")
	}
	return string(b), nil
}

func decodeRefs(s string) ([]models.LearningItemRef, error) {
	if s == "" {
		return nil, nil
	}
	var refs []models.LearningItemRef
	if err := json.Unmarshal([]byte(s), &refs); err != nil {
		return nil, apperr.New("LoadSnapshot", apperr.ErrInvariantViolation, errors.Wrap(err, "corrupt item list"))
	}
	return refs, nil
}
