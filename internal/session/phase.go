// Package session drives a learner through the macro-phases of a lesson.
//
// Phases run in this order, looping per round:
//
//	YESTERDAY_REVIEW -> YESTERDAY_REMEDY -> TODAY_LEARNING <-> TODAY_MINI_REVIEW
//	  -> TODAY_FINAL_REVIEW -> TODAY_REMEDY -> ROUND_EVALUATION -> next round | FINISHED
//
// The yesterday phases are skipped without carryover, and each remedy phase is
// skipped when the review before it had no incorrect answers. Every transition
// is computed in memory; persisting it is the caller's job.
package session

import (
	"github.com/example/studyflow/internal/queue"
	"github.com/example/studyflow/pkg/models"
)

// Phase is one macro-phase of a learning session
type Phase string

const (
	YesterdayReview  Phase = "YESTERDAY_REVIEW"
	YesterdayRemedy  Phase = "YESTERDAY_REMEDY"
	TodayLearning    Phase = "TODAY_LEARNING"
	TodayMiniReview  Phase = "TODAY_MINI_REVIEW"
	TodayFinalReview Phase = "TODAY_FINAL_REVIEW"
	TodayRemedy      Phase = "TODAY_REMEDY"
	RoundEvaluation  Phase = "ROUND_EVALUATION"
	Finished         Phase = "FINISHED"
)

// IsValid reports whether p is a known phase
func (p Phase) IsValid() bool {
	switch p {
	case YesterdayReview, YesterdayRemedy, TodayLearning, TodayMiniReview,
		TodayFinalReview, TodayRemedy, RoundEvaluation, Finished:
		return true
	}
	return false
}

// IsRemedy reports whether p walks a remedy list instead of the round queue
func (p Phase) IsRemedy() bool {
	return p == YesterdayRemedy || p == TodayRemedy
}

// passRateEpsilon absorbs float noise so 9/10 meets a 0.90 threshold
const passRateEpsilon = 1e-9

// Machine holds the transition rules. It has no state of its own.
type Machine struct{}

// Transition is the outcome of a round evaluation
type Transition struct {
	Phase   Phase
	Round   int
	Retries int
	Retry   bool // the same round is repeated
}

// Begin returns the first phase of a round
func (Machine) Begin(hasCarryover bool) Phase {
	if hasCarryover {
		return YesterdayReview
	}
	return TodayLearning
}

// PhaseFor maps a queue entry's source to the phase presenting it
func (Machine) PhaseFor(source models.QueueSource) Phase {
	switch source {
	case models.SourcePreviousRoundReview:
		return YesterdayReview
	case models.SourceNew:
		return TodayLearning
	case models.SourceMiniReview:
		return TodayMiniReview
	case models.SourceFinalReview:
		return TodayFinalReview
	}
	return TodayRemedy
}

// Evaluate computes the pass rate of a round's final review. A round with no
// final-review items passes.
func (Machine) Evaluate(round, correct, total int, minPassRate float64) models.RoundEvaluation {
	rate := 1.0
	if total > 0 {
		rate = float64(correct) / float64(total)
	}
	return models.RoundEvaluation{
		Round:    round,
		PassRate: rate,
		Promote:  rate+passRateEpsilon >= minPassRate,
	}
}

// AfterEvaluation decides what follows ROUND_EVALUATION. A failed round is
// retried while retries remain and then force-advanced; after the lesson's
// last round the session is finished.
func (Machine) AfterEvaluation(lesson models.Lesson, round, retries int, eval models.RoundEvaluation) Transition {
	if !eval.Promote && retries < lesson.MaxRetries {
		return Transition{Phase: TodayLearning, Round: round, Retries: retries + 1, Retry: true}
	}

	last := min(lesson.RoundCount, queue.MaxRound)
	if round >= last {
		return Transition{Phase: Finished, Round: round, Retries: retries}
	}
	return Transition{Phase: TodayLearning, Round: round + 1}
}
