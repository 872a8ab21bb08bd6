package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/example/studyflow/internal/apperr"
	"github.com/example/studyflow/internal/grading"
	"github.com/example/studyflow/internal/recovery"
	"github.com/example/studyflow/internal/session"
	sr "github.com/example/studyflow/internal/spaced_repetition"
	"github.com/example/studyflow/internal/unlock"
	"github.com/example/studyflow/pkg/models"
)

// MaxCarryover bounds how many due items are reviewed before a lesson
const MaxCarryover = 30

// NextItem is the item a learner should answer now
type NextItem struct {
	models.QueueItem
	Content models.LearningItem
	Phase   session.Phase
	Attempt int // 1-indexed presentation count of this item in the round
}

// AnswerResult reports the effect of one answer
type AnswerResult struct {
	ItemID       string
	Quality      sr.QualityResponse
	Mastery      models.MasteryLevel
	NextReviewAt time.Time
	Phase        session.Phase
	Round        int
	Evaluation   *models.RoundEvaluation // set once the round awaits evaluation
}

// StartSession builds round 1 of a lesson. A lesson with a session in
// progress fails with ErrInvariantViolation unless restart is set.
func (e *Engine) StartSession(ctx context.Context, userID string, lessonID int, restart bool) (*models.SessionSnapshot, error) {
	const op = "StartSession"
	if userID == "" {
		return nil, apperr.InvalidInput(op, "user id is required")
	}
	lesson, err := e.catalog.Get(lessonID)
	if err != nil {
		return nil, err
	}

	unlocks, err := e.Unlocks(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !unlock.Allows(unlocks, lesson.Module) {
		return nil, apperr.InvalidInput(op, "%s lessons are still locked", lesson.Module)
	}

	if err := recovery.Guard(ctx, e.snapshots, userID, lessonID, restart); err != nil {
		return nil, err
	}

	now := e.now()
	var (
		items []models.LearningItem
		due   []models.LearningItemRef
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = e.content.ListLessonItems(gctx, lessonID)
		return err
	})
	g.Go(func() error {
		var err error
		due, err = e.content.ListDueItems(gctx, userID, lesson.Module, sr.EndOfDay(now))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	refs := itemRefs(items)
	sess, err := session.New(lesson, refs, carryover(due, refs), uuid.NewString(), userID, now)
	if err != nil {
		return nil, err
	}

	snap := sess.Snapshot()
	if err := e.snapshots.Save(ctx, snap); err != nil {
		return nil, err
	}

	e.logger.Info("session started",
		"user_id", userID,
		"lesson_id", lessonID,
		"session_id", snap.SessionID,
		"items", len(refs),
		"carryover", len(snap.Carryover),
		"restart", restart)
	return &snap, nil
}

// GetSessionState returns the stored snapshot of a lesson, or nil
func (e *Engine) GetSessionState(ctx context.Context, userID string, lessonID int) (*models.SessionSnapshot, error) {
	if userID == "" {
		return nil, apperr.InvalidInput("GetSessionState", "user id is required")
	}
	return e.snapshots.Load(ctx, userID, lessonID)
}

// LiveSession returns the session the user most recently worked on, or nil
func (e *Engine) LiveSession(ctx context.Context, userID string) (*models.SessionSnapshot, error) {
	return e.snapshots.FindLive(ctx, userID)
}

// GetNextItem returns the item to present next. A pending round evaluation
// is applied first. It returns nil once the lesson is finished.
func (e *Engine) GetNextItem(ctx context.Context, userID string, lessonID int) (*NextItem, error) {
	const op = "GetNextItem"
	snap, err := e.snapshots.Load(ctx, userID, lessonID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, apperr.NotFound(op, "no session for lesson %d", lessonID)
	}
	if snap.Status == models.StatusCompleted {
		return nil, nil
	}

	sess, err := e.restore(*snap)
	if err != nil {
		return nil, err
	}

	if sess.Phase() == session.RoundEvaluation {
		if sess, err = e.advance(ctx, sess); err != nil {
			return nil, err
		}
		if sess.Phase() == session.Finished {
			return nil, nil
		}
	}

	cur := sess.Current()
	if cur == nil {
		return nil, nil
	}
	item, err := e.content.Get(ctx, cur.Item.ID)
	if err != nil {
		return nil, err
	}

	return &NextItem{
		QueueItem: *cur,
		Content:   *item,
		Phase:     sess.Phase(),
		Attempt:   sess.Attempt(),
	}, nil
}

// SubmitAnswer grades the learner's self-report for the current item of
// their live session, reschedules the item and moves the session on.
// attempts is the presentation count reported with the item by GetNextItem;
// a lower count than the session has recorded is not honoured.
func (e *Engine) SubmitAnswer(ctx context.Context, userID, itemID string, outcome any, attempts int) (*AnswerResult, error) {
	const op = "SubmitAnswer"
	o, err := grading.ParseOutcome(outcome)
	if err != nil {
		return nil, err
	}
	if attempts < 1 {
		return nil, apperr.InvalidInput(op, "attempts must be at least 1, got %d", attempts)
	}
	return e.answer(ctx, userID, itemID, func(presented int) sr.QualityResponse {
		if attempts != presented {
			e.logger.Warn("attempt count mismatch",
				"user_id", userID,
				"item_id", itemID,
				"reported", attempts,
				"presented", presented)
		}
		return grading.Grade(o, max(attempts, presented))
	})
}

// SubmitQuality records a raw 1-5 score for the current item. Out-of-range
// integers are clamped or rejected according to the configured policy.
func (e *Engine) SubmitQuality(ctx context.Context, userID, itemID string, score any) (*AnswerResult, error) {
	q, err := sr.ParseQuality(score, e.policy)
	if err != nil {
		return nil, err
	}
	return e.answer(ctx, userID, itemID, func(int) sr.QualityResponse { return q })
}

// answer grades the current item with grade, which receives the number of
// times the session has presented it this round
func (e *Engine) answer(ctx context.Context, userID, itemID string, grade func(presented int) sr.QualityResponse) (*AnswerResult, error) {
	const op = "SubmitAnswer"
	if userID == "" || itemID == "" {
		return nil, apperr.InvalidInput(op, "user id and item id are required")
	}

	snap, err := e.snapshots.FindLive(ctx, userID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, apperr.NotFound(op, "user %s has no session in progress", userID)
	}

	sess, err := e.restore(*snap)
	if err != nil {
		return nil, err
	}
	cur := sess.Current()
	if cur == nil {
		return nil, apperr.InvariantViolation(op, "round %d awaits evaluation; fetch the next item first", sess.Round())
	}
	if cur.Item.ID != itemID {
		return nil, apperr.InvalidInput(op, "answered item %q but %q is current", itemID, cur.Item.ID)
	}

	q := grade(sess.Attempt())
	now := e.now()
	next, err := sess.Answer(itemID, q, now)
	if err != nil {
		return nil, err
	}

	prev, err := e.states.Find(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}
	state, err := e.scheduler.Schedule(prev, q, now)
	if err != nil {
		return nil, err
	}
	state.UserID = userID
	state.ItemID = itemID
	state.Module = cur.Item.Module

	// The memory state goes first: a lost snapshot write replays the
	// answer from the previous position on the next call.
	if err := e.states.Upsert(ctx, state); err != nil {
		return nil, err
	}
	nextSnap := next.Snapshot()
	if err := e.snapshots.Save(ctx, nextSnap); err != nil {
		return nil, err
	}

	if next.Phase() != sess.Phase() {
		e.logger.Info("phase changed",
			"user_id", userID,
			"session_id", nextSnap.SessionID,
			"from", sess.Phase(),
			"to", next.Phase(),
			"round", next.Round())
	}
	if next.Phase() == session.RoundEvaluation && nextSnap.Evaluation != nil {
		e.logger.Info("round evaluated",
			"user_id", userID,
			"lesson_id", nextSnap.LessonID,
			"round", nextSnap.Evaluation.Round,
			"pass_rate", nextSnap.Evaluation.PassRate,
			"promote", nextSnap.Evaluation.Promote)
	}

	return &AnswerResult{
		ItemID:       itemID,
		Quality:      q,
		Mastery:      state.MasteryLevel,
		NextReviewAt: *state.NextReviewAt,
		Phase:        next.Phase(),
		Round:        next.Round(),
		Evaluation:   nextSnap.Evaluation,
	}, nil
}

// advance applies a pending round evaluation and persists the result. A
// finished lesson is recorded as completed and may unlock the next module.
func (e *Engine) advance(ctx context.Context, sess *session.Session) (*session.Session, error) {
	now := e.now()
	eval := *sess.Snapshot().Evaluation

	next, tr, err := sess.Advance(now)
	if err != nil {
		return nil, err
	}
	snap := next.Snapshot()

	if tr.Phase == session.Finished {
		lesson := next.Lesson()
		completion := models.LessonCompletion{
			UserID:       snap.UserID,
			LessonID:     lesson.ID,
			Rounds:       snap.Round,
			LastPassRate: eval.PassRate,
			CompletedAt:  now,
		}
		if err := e.progress.Record(ctx, completion, lesson.Module); err != nil {
			return nil, err
		}
	}
	if err := e.snapshots.Save(ctx, snap); err != nil {
		return nil, err
	}

	e.logger.Info("round transition",
		"user_id", snap.UserID,
		"session_id", snap.SessionID,
		"to", tr.Phase,
		"round", tr.Round,
		"retry", tr.Retry)

	if tr.Phase == session.Finished {
		if _, err := e.Unlocks(ctx, snap.UserID); err != nil {
			return nil, err
		}
	}
	return next, nil
}

// restore rebuilds a session from its snapshot. Lesson content is not
// consulted, so imports during a session leave its queue untouched.
func (e *Engine) restore(snap models.SessionSnapshot) (*session.Session, error) {
	lesson, err := e.catalog.Get(snap.LessonID)
	if err != nil {
		return nil, err
	}
	return session.Restore(lesson, snap)
}

func itemRefs(items []models.LearningItem) []models.LearningItemRef {
	refs := make([]models.LearningItemRef, len(items))
	for i, it := range items {
		refs[i] = it.Ref()
	}
	return refs
}

// carryover keeps due items that are not part of the lesson itself
func carryover(due, lesson []models.LearningItemRef) []models.LearningItemRef {
	inLesson := make(map[string]bool, len(lesson))
	for _, r := range lesson {
		inLesson[r.ID] = true
	}
	var out []models.LearningItemRef
	for _, r := range due {
		if inLesson[r.ID] {
			continue
		}
		out = append(out, r)
		if len(out) == MaxCarryover {
			break
		}
	}
	return out
}
