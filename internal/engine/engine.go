// Package engine exposes the learning operations a front-end calls: start or
// resume a lesson, fetch the next item, submit an answer, and read progress.
//
// The engine keeps no per-user state in memory. Each call loads the session
// snapshot, rebuilds the traversal, applies the change and persists it.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/studyflow/internal/apperr"
	"github.com/example/studyflow/internal/lessons"
	"github.com/example/studyflow/internal/recovery"
	sr "github.com/example/studyflow/internal/spaced_repetition"
	"github.com/example/studyflow/internal/unlock"
	"github.com/example/studyflow/pkg/models"
)

// ContentProvider supplies learning items
type ContentProvider interface {
	Get(ctx context.Context, id string) (*models.LearningItem, error)
	ListLessonItems(ctx context.Context, lessonID int) ([]models.LearningItem, error)
	ListDueItems(ctx context.Context, userID string, module models.ModuleType, before time.Time) ([]models.LearningItemRef, error)
	ListNewItems(ctx context.Context, userID string, module models.ModuleType, limit int) ([]models.LearningItemRef, error)
	CountByModule(ctx context.Context, module models.ModuleType) (int, error)
}

// StateStore persists per-item memory states
type StateStore interface {
	Find(ctx context.Context, userID, itemID string) (*models.MemoryState, error)
	Upsert(ctx context.Context, state models.MemoryState) error
	Skip(ctx context.Context, userID string, item models.LearningItemRef, now time.Time) error
	CountRemembered(ctx context.Context, userID string, module models.ModuleType) (int, error)
	Statistics(ctx context.Context, userID string, endOfDay time.Time) (*models.Statistics, error)
	CountDueByUser(ctx context.Context, before time.Time) (map[string]int, error)
}

// ProgressStore records lesson completions and granted unlocks
type ProgressStore interface {
	Record(ctx context.Context, c models.LessonCompletion, module models.ModuleType) error
	CountCompleted(ctx context.Context, userID string, module models.ModuleType) (int, error)
	LoadUnlocks(ctx context.Context, userID string) (models.UnlockInfo, error)
	SaveUnlocks(ctx context.Context, userID string, info models.UnlockInfo, now time.Time) error
}

// Options wires an Engine. Catalog, Content, States, Snapshots and Progress
// are required.
type Options struct {
	Catalog   *lessons.Catalog
	Content   ContentProvider
	States    StateStore
	Snapshots recovery.Store
	Progress  ProgressStore

	Scheduler     *sr.SM2          // defaults to NewSM2
	Gate          *unlock.Gate     // defaults to unlock.NewGate
	QualityPolicy sr.QualityPolicy // raw score handling, defaults to clamp
	Clock         func() time.Time // defaults to time.Now
	Logger        *slog.Logger     // defaults to slog.Default
}

// Engine implements the learner-facing operations
type Engine struct {
	catalog   *lessons.Catalog
	content   ContentProvider
	states    StateStore
	snapshots recovery.Store
	progress  ProgressStore

	scheduler *sr.SM2
	gate      unlock.Gate
	policy    sr.QualityPolicy
	clock     func() time.Time
	logger    *slog.Logger
}

// New creates an Engine
func New(opts Options) (*Engine, error) {
	if opts.Catalog == nil || opts.Content == nil || opts.States == nil ||
		opts.Snapshots == nil || opts.Progress == nil {
		return nil, apperr.InvalidInput("NewEngine", "catalog, content, states, snapshots and progress are required")
	}

	e := &Engine{
		catalog:   opts.Catalog,
		content:   opts.Content,
		states:    opts.States,
		snapshots: opts.Snapshots,
		progress:  opts.Progress,
		scheduler: opts.Scheduler,
		policy:    opts.QualityPolicy,
		clock:     opts.Clock,
		logger:    opts.Logger,
	}
	if e.scheduler == nil {
		e.scheduler = sr.NewSM2()
	}
	if opts.Gate != nil {
		e.gate = *opts.Gate
	} else {
		e.gate = unlock.NewGate()
	}
	if e.policy == "" {
		e.policy = sr.ClampPolicy
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e, nil
}

// now returns the current UTC time at the precision every backend stores
func (e *Engine) now() time.Time {
	return e.clock().UTC().Truncate(time.Microsecond)
}

// Lessons returns the lesson catalog
func (e *Engine) Lessons() *lessons.Catalog {
	return e.catalog
}
