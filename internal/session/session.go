package session

import (
	"time"

	"github.com/example/studyflow/internal/apperr"
	"github.com/example/studyflow/internal/queue"
	sr "github.com/example/studyflow/internal/spaced_repetition"
	"github.com/example/studyflow/pkg/models"
)

// Session is an in-memory view of one learner's progress through a lesson.
// It is rebuilt from a snapshot on every call, and every mutation returns a
// new Session so the caller decides when the result is persisted.
type Session struct {
	lesson  models.Lesson
	machine Machine

	snap   models.SessionSnapshot
	queue  []models.QueueItem
	remedy []models.QueueItem
}

// New starts round 1 of lesson. Carryover items are reviewed first.
func New(lesson models.Lesson, items, carryover []models.LearningItemRef, sessionID, userID string, now time.Time) (*Session, error) {
	if len(items) == 0 {
		return nil, apperr.InvalidInput("StartSession", "lesson %d has no items", lesson.ID)
	}

	s := &Session{lesson: lesson}
	s.snap = models.SessionSnapshot{
		SessionID:  sessionID,
		UserID:     userID,
		LessonID:   lesson.ID,
		Round:      1,
		Phase:      string(s.machine.Begin(len(carryover) > 0)),
		Status:     models.StatusInProgress,
		RoundItems: append([]models.LearningItemRef(nil), items...),
		Carryover:  append([]models.LearningItemRef(nil), carryover...),
		UpdatedAt:  now.UTC(),
	}

	if err := s.buildQueue(); err != nil {
		return nil, err
	}
	return s, nil
}

// Restore rebuilds a session from a persisted snapshot. The queue is built
// from the item lists stored in the snapshot, never from current lesson
// content, so identical snapshots always yield the same position.
func Restore(lesson models.Lesson, snap models.SessionSnapshot) (*Session, error) {
	const op = "RestoreSession"

	phase := Phase(snap.Phase)
	if !phase.IsValid() {
		return nil, apperr.InvariantViolation(op, "unknown phase %q", snap.Phase)
	}
	if snap.LessonID != lesson.ID {
		return nil, apperr.InvariantViolation(op, "snapshot is for lesson %d, not %d", snap.LessonID, lesson.ID)
	}
	if len(snap.RoundItems) == 0 {
		return nil, apperr.InvariantViolation(op, "snapshot of lesson %d has no round items", lesson.ID)
	}

	s := &Session{
		lesson: lesson,
		snap:   snap.Clone(),
	}
	if err := s.buildQueue(); err != nil {
		return nil, err
	}
	if snap.CurrentIndex < 0 || snap.CurrentIndex > len(s.queue) {
		return nil, apperr.InvariantViolation(op, "cursor %d outside queue of %d", snap.CurrentIndex, len(s.queue))
	}

	switch phase {
	case YesterdayRemedy:
		s.remedy = queue.BuildRemedy(s.snap.YesterdayMisses, s.snap.Round)
	case TodayRemedy:
		s.remedy = queue.BuildRemedy(s.snap.FinalMisses, s.snap.Round)
	}
	if phase.IsRemedy() && (snap.RemedyIndex < 0 || snap.RemedyIndex >= len(s.remedy)) {
		return nil, apperr.InvariantViolation(op, "remedy cursor %d outside list of %d", snap.RemedyIndex, len(s.remedy))
	}
	return s, nil
}

func (s *Session) buildQueue() error {
	q, err := queue.Build(s.snap.RoundItems, s.snap.Carryover, s.snap.Round, s.lesson.MiniReviewInterval)
	if err != nil {
		return err
	}
	s.queue = q
	return nil
}

func (s *Session) clone() *Session {
	return &Session{
		lesson: s.lesson,
		snap:   s.snap.Clone(),
		queue:  s.queue,
		remedy: s.remedy,
	}
}

// Snapshot returns a copy of the persisted form of the session
func (s *Session) Snapshot() models.SessionSnapshot { return s.snap.Clone() }

// Phase returns the current phase
func (s *Session) Phase() Phase { return Phase(s.snap.Phase) }

// Round returns the current round number
func (s *Session) Round() int { return s.snap.Round }

// Lesson returns the lesson being studied
func (s *Session) Lesson() models.Lesson { return s.lesson }

// Queue returns a copy of the current round queue
func (s *Session) Queue() []models.QueueItem {
	return append([]models.QueueItem(nil), s.queue...)
}

// Current returns the item awaiting an answer, or nil at ROUND_EVALUATION
// and FINISHED.
func (s *Session) Current() *models.QueueItem {
	switch p := s.Phase(); {
	case p == RoundEvaluation || p == Finished:
		return nil
	case p.IsRemedy():
		if s.snap.RemedyIndex < len(s.remedy) {
			item := s.remedy[s.snap.RemedyIndex]
			return &item
		}
		return nil
	}
	if s.snap.CurrentIndex < len(s.queue) {
		item := s.queue[s.snap.CurrentIndex]
		return &item
	}
	return nil
}

// Attempt returns how many times the current item has been presented this
// round, counting the current presentation.
func (s *Session) Attempt() int {
	cur := s.Current()
	if cur == nil {
		return 0
	}

	n := 0
	mainEnd := s.snap.CurrentIndex
	if !s.Phase().IsRemedy() {
		mainEnd++
	}
	for _, q := range s.queue[:min(mainEnd, len(s.queue))] {
		if q.Item.ID == cur.Item.ID {
			n++
		}
	}
	if s.Phase().IsRemedy() {
		for _, q := range s.remedy[:s.snap.RemedyIndex+1] {
			if q.Item.ID == cur.Item.ID {
				n++
			}
		}
	}
	return n
}

// Answer records quality for the current item and moves the cursor. The
// receiver is left untouched.
func (s *Session) Answer(itemID string, quality sr.QualityResponse, now time.Time) (*Session, error) {
	const op = "SubmitAnswer"

	if !quality.IsValid() {
		return nil, apperr.InvalidInput(op, "quality %d outside %d..%d", quality, sr.MinQuality, sr.MaxQuality)
	}
	cur := s.Current()
	if cur == nil {
		return nil, apperr.InvariantViolation(op, "no item awaits an answer in phase %s", s.Phase())
	}
	if cur.Item.ID != itemID {
		return nil, apperr.InvalidInput(op, "answered item %q but %q is current", itemID, cur.Item.ID)
	}

	n := s.clone()
	n.snap.AnsweredCount++
	n.snap.UpdatedAt = now.UTC()

	prev := s.Phase()
	switch prev {
	case YesterdayReview:
		if !quality.IsCorrect() {
			n.snap.YesterdayMisses = append(n.snap.YesterdayMisses, cur.Item)
		}
	case TodayFinalReview:
		n.snap.FinalTotal++
		if quality.IsCorrect() {
			n.snap.FinalCorrect++
		} else {
			n.snap.FinalMisses = append(n.snap.FinalMisses, cur.Item)
		}
	}

	if prev.IsRemedy() {
		n.snap.RemedyIndex++
		if n.snap.RemedyIndex < len(n.remedy) {
			return n, nil
		}
		n.remedy = nil
		n.snap.RemedyIndex = 0
	} else {
		n.snap.CurrentIndex++
	}

	n.settle(prev)
	return n, nil
}

// settle picks the phase that follows prev given the current cursors
func (s *Session) settle(prev Phase) {
	if prev == YesterdayReview && len(s.snap.YesterdayMisses) > 0 && !s.atSource(models.SourcePreviousRoundReview) {
		s.enterRemedy(YesterdayRemedy, s.snap.YesterdayMisses)
		return
	}
	if s.snap.CurrentIndex < len(s.queue) {
		s.snap.Phase = string(s.machine.PhaseFor(s.queue[s.snap.CurrentIndex].Source))
		return
	}
	if prev != TodayRemedy && len(s.snap.FinalMisses) > 0 {
		s.enterRemedy(TodayRemedy, s.snap.FinalMisses)
		return
	}

	eval := s.machine.Evaluate(s.snap.Round, s.snap.FinalCorrect, s.snap.FinalTotal, s.lesson.MinPassRate)
	s.snap.Phase = string(RoundEvaluation)
	s.snap.Evaluation = &eval
}

func (s *Session) atSource(src models.QueueSource) bool {
	return s.snap.CurrentIndex < len(s.queue) && s.queue[s.snap.CurrentIndex].Source == src
}

func (s *Session) enterRemedy(phase Phase, misses []models.LearningItemRef) {
	s.snap.Phase = string(phase)
	s.snap.RemedyIndex = 0
	s.remedy = queue.BuildRemedy(misses, s.snap.Round)
}

// Advance applies the pending round evaluation: the round is retried, the
// next round starts, or the session finishes. The final-review misses of
// the round just evaluated open the next queue as previous-round review.
func (s *Session) Advance(now time.Time) (*Session, Transition, error) {
	if s.Phase() != RoundEvaluation || s.snap.Evaluation == nil {
		return nil, Transition{}, apperr.InvariantViolation("AdvanceRound", "no pending evaluation in phase %s", s.Phase())
	}

	t := s.machine.AfterEvaluation(s.lesson, s.snap.Round, s.snap.Retries, *s.snap.Evaluation)

	n := s.clone()
	n.snap.UpdatedAt = now.UTC()
	if t.Phase == Finished {
		n.snap.Phase = string(Finished)
		n.snap.Status = models.StatusCompleted
		return n, t, nil
	}

	previous := distinct(s.snap.FinalMisses)
	t.Phase = s.machine.Begin(len(previous) > 0)

	n.snap.Round = t.Round
	n.snap.Retries = t.Retries
	n.snap.Phase = string(t.Phase)
	n.snap.CurrentIndex = 0
	n.snap.RemedyIndex = 0
	n.snap.Carryover = previous
	n.snap.YesterdayMisses = nil
	n.snap.FinalMisses = nil
	n.snap.FinalCorrect = 0
	n.snap.FinalTotal = 0
	n.snap.Evaluation = nil
	n.remedy = nil
	if err := n.buildQueue(); err != nil {
		return nil, Transition{}, err
	}
	return n, t, nil
}

// distinct drops repeated items, keeping first-seen order
func distinct(refs []models.LearningItemRef) []models.LearningItemRef {
	seen := make(map[string]bool, len(refs))
	var out []models.LearningItemRef
	for _, r := range refs {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out
}
