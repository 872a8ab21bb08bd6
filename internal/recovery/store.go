// Package recovery persists resumable session snapshots and guards against
// building a fresh queue over a live one.
package recovery

import (
	"context"

	"github.com/example/studyflow/internal/apperr"
	"github.com/example/studyflow/pkg/models"
)

// Store persists one snapshot per user and lesson.
//
// Save is idempotent and last-write-wins. Load right after Save returns
// exactly what was saved. Load and FindLive return nil, nil when nothing
// is stored.
type Store interface {
	// Save stores snap, replacing any snapshot for the same user and lesson.
	Save(ctx context.Context, snap models.SessionSnapshot) error

	// Load returns the snapshot for a user and lesson.
	Load(ctx context.Context, userID string, lessonID int) (*models.SessionSnapshot, error)

	// Clear removes the snapshot for a user and lesson. Clearing nothing is not an error.
	Clear(ctx context.Context, userID string, lessonID int) error

	// FindLive returns the user's most recently updated IN_PROGRESS snapshot.
	FindLive(ctx context.Context, userID string) (*models.SessionSnapshot, error)
}

// Guard enforces resume-or-restart before a new queue is built. With a live
// snapshot present it fails unless restart is set, in which case the stale
// snapshot is cleared. Completed snapshots never block.
func Guard(ctx context.Context, store Store, userID string, lessonID int, restart bool) error {
	existing, err := store.Load(ctx, userID, lessonID)
	if err != nil {
		return err
	}
	if existing == nil || existing.Status != models.StatusInProgress {
		return nil
	}
	if !restart {
		return apperr.InvariantViolation("StartSession",
			"lesson %d has a session in progress (phase %s, round %d); resume or restart it",
			lessonID, existing.Phase, existing.Round)
	}
	return store.Clear(ctx, userID, lessonID)
}
