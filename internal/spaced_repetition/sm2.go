package spaced_repetition

import (
	"math"
	"sort"
	"time"

	"github.com/example/studyflow/internal/apperr"
	"github.com/example/studyflow/pkg/models"
)

// SM-2 constants
const (
	DefaultEasinessFactor = 2.5
	MinEasinessFactor     = 1.3
	FirstInterval         = 1
	SecondInterval        = 6
	LapseInterval         = 1
)

// SM2 implements the SuperMemo-2 algorithm for spaced repetition
type SM2 struct {
	// MaxInterval caps a newly computed interval in days; zero disables the cap
	MaxInterval int
}

// NewSM2 creates a new SM2 with default settings. Intervals are uncapped.
func NewSM2() *SM2 {
	return &SM2{}
}

// Schedule computes the next memory state for an answered item. A nil state
// means the item has never been answered. The input state is not modified.
func (sm *SM2) Schedule(state *models.MemoryState, quality QualityResponse, now time.Time) (models.MemoryState, error) {
	if !quality.IsValid() {
		return models.MemoryState{}, apperr.InvalidInput("Schedule", "quality %d outside [%d,%d]", quality, MinQuality, MaxQuality)
	}

	var next models.MemoryState
	if state != nil {
		next = *state
	} else {
		next = models.MemoryState{
			EasinessFactor: DefaultEasinessFactor,
			MasteryLevel:   models.MasteryUnfamiliar,
		}
	}

	q := float64(quality)
	next.EasinessFactor = math.Max(MinEasinessFactor, next.EasinessFactor+(0.1-(5-q)*(0.08+(5-q)*0.02)))

	if !quality.IsCorrect() {
		// Lapse: restart the interval ladder
		next.RepetitionCount = 0
		next.IntervalDays = LapseInterval
		next.MasteryLevel = models.MasteryUnfamiliar
	} else {
		next.RepetitionCount++
		next.IntervalDays = sm.nextInterval(next.RepetitionCount, next.IntervalDays, next.EasinessFactor)
		if quality == QualityCorrectDifficult {
			next.MasteryLevel = models.MasteryFuzzy
		} else {
			next.MasteryLevel = models.MasteryRemembered
		}
	}

	reviewed := now.UTC()
	due := reviewed.AddDate(0, 0, next.IntervalDays)
	next.LastReviewedAt = &reviewed
	next.NextReviewAt = &due
	next.LastQuality = int(quality)
	next.UpdatedAt = reviewed

	return next, nil
}

// nextInterval walks the interval ladder: 1 day, 6 days, then previous*EF
func (sm *SM2) nextInterval(repetition, previous int, ef float64) int {
	var interval int
	switch repetition {
	case 1:
		interval = FirstInterval
	case 2:
		interval = SecondInterval
	default:
		interval = int(math.Round(float64(previous) * ef))
	}

	if sm.MaxInterval > 0 && interval > sm.MaxInterval {
		// a successful review never shortens the interval
		interval = max(sm.MaxInterval, previous)
	}
	return interval
}

// StartOfDay returns midnight UTC of the day containing t
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the first instant of the next UTC day. Due comparisons
// use it as an exclusive bound.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1)
}

// IsDue reports whether the state is due for review on the UTC day of now
func IsDue(state *models.MemoryState, now time.Time) bool {
	if state == nil || state.Skipped {
		return false
	}
	if state.NextReviewAt == nil {
		return true
	}
	return state.NextReviewAt.Before(EndOfDay(now))
}

// DueStates returns states due on the UTC day of now, most urgent first.
// Ordering: lowest easiness factor first, then earliest due date, then item id.
func DueStates(states []models.MemoryState, now time.Time, limit int) []models.MemoryState {
	var due []models.MemoryState
	for i := range states {
		if IsDue(&states[i], now) {
			due = append(due, states[i])
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		if due[i].EasinessFactor != due[j].EasinessFactor {
			return due[i].EasinessFactor < due[j].EasinessFactor
		}
		ti, tj := due[i].NextReviewAt, due[j].NextReviewAt
		switch {
		case ti == nil && tj != nil:
			return true
		case ti != nil && tj == nil:
			return false
		case ti != nil && tj != nil && !ti.Equal(*tj):
			return ti.Before(*tj)
		}
		return due[i].ItemID < due[j].ItemID
	})

	if limit > 0 && len(due) > limit {
		return due[:limit]
	}
	return due
}

// IsMastered determines if an item is considered mastered: remembered on the
// last review with an interval of at least three weeks
func IsMastered(state *models.MemoryState) bool {
	return state != nil &&
		state.MasteryLevel == models.MasteryRemembered &&
		state.IntervalDays >= 21
}
