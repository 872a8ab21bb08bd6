package spaced_repetition

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/studyflow/internal/apperr"
	"github.com/example/studyflow/pkg/models"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func TestScheduleFirstAnswer(t *testing.T) {
	sm := NewSM2()

	got, err := sm.Schedule(nil, QualityPerfect, testNow)
	require.NoError(t, err)

	assert.InDelta(t, 2.6, got.EasinessFactor, 1e-9)
	assert.Equal(t, 1, got.RepetitionCount)
	assert.Equal(t, 1, got.IntervalDays)
	assert.Equal(t, models.MasteryRemembered, got.MasteryLevel)
	require.NotNil(t, got.NextReviewAt)
	assert.Equal(t, testNow.AddDate(0, 0, 1), *got.NextReviewAt)
	assert.Equal(t, testNow, *got.LastReviewedAt)
}

func TestScheduleLadder(t *testing.T) {
	sm := &SM2{}
	var state *models.MemoryState
	var intervals []int

	for i := 0; i < 4; i++ {
		next, err := sm.Schedule(state, QualityPerfect, testNow)
		require.NoError(t, err)
		intervals = append(intervals, next.IntervalDays)
		state = &next
	}

	// EF climbs 2.6, 2.7, 2.8, 2.9: 1, 6, round(6*2.8)=17, round(17*2.9)=49
	assert.Equal(t, []int{1, 6, 17, 49}, intervals)
}

func TestScheduleFuzzyMastery(t *testing.T) {
	got, err := NewSM2().Schedule(nil, QualityCorrectDifficult, testNow)
	require.NoError(t, err)
	assert.Equal(t, models.MasteryFuzzy, got.MasteryLevel)
	assert.InDelta(t, 2.36, got.EasinessFactor, 1e-9)
}

func TestScheduleMonotonicForGoodAnswers(t *testing.T) {
	sm := NewSM2()
	qualities := []QualityResponse{4, 5, 4, 4, 5, 5, 4, 5, 4, 4, 5, 4}
	var state *models.MemoryState
	prev := 0

	for i, q := range qualities {
		next, err := sm.Schedule(state, q, testNow.AddDate(0, 0, i))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, next.IntervalDays, prev, "step %d", i)
		prev = next.IntervalDays
		state = &next
	}
}

func TestScheduleLapseResets(t *testing.T) {
	sm := NewSM2()
	var state *models.MemoryState
	for i := 0; i < 6; i++ {
		next, err := sm.Schedule(state, QualityPerfect, testNow)
		require.NoError(t, err)
		state = &next
	}
	require.Greater(t, state.IntervalDays, 6)

	for _, q := range []QualityResponse{QualityIncorrect, QualityIncorrectFamiliar} {
		lapsed, err := sm.Schedule(state, q, testNow)
		require.NoError(t, err)
		assert.Equal(t, 0, lapsed.RepetitionCount)
		assert.Equal(t, 1, lapsed.IntervalDays)
		assert.Equal(t, models.MasteryUnfamiliar, lapsed.MasteryLevel)
	}
}

func TestEasinessFloor(t *testing.T) {
	sm := NewSM2()
	var state *models.MemoryState
	sequence := []QualityResponse{1, 1, 2, 1, 3, 1, 2, 2, 1, 1, 3, 1, 1, 1, 1, 1, 1, 1}

	for _, q := range sequence {
		next, err := sm.Schedule(state, q, testNow)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, next.EasinessFactor, MinEasinessFactor)
		state = &next
	}
	assert.Equal(t, MinEasinessFactor, state.EasinessFactor)
}

func TestScheduleDoesNotMutateInput(t *testing.T) {
	original := models.MemoryState{EasinessFactor: 2.5, IntervalDays: 6, RepetitionCount: 2}
	copyOf := original

	_, err := NewSM2().Schedule(&original, QualityIncorrect, testNow)
	require.NoError(t, err)
	assert.Equal(t, copyOf, original)
}

func TestScheduleRejectsOutOfRange(t *testing.T) {
	for _, q := range []QualityResponse{0, 6, -1} {
		_, err := NewSM2().Schedule(nil, q, testNow)
		assert.True(t, errors.Is(err, apperr.ErrInvalidInput), "quality %d", q)
	}
}

func TestScheduleUncappedByDefault(t *testing.T) {
	state := &models.MemoryState{EasinessFactor: 2.5, IntervalDays: 300, RepetitionCount: 5}

	next, err := NewSM2().Schedule(state, QualityPerfect, testNow)
	require.NoError(t, err)
	assert.InDelta(t, 2.6, next.EasinessFactor, 1e-9)
	assert.Equal(t, 780, next.IntervalDays)
	assert.Equal(t, testNow.AddDate(0, 0, 780), *next.NextReviewAt)
}

func TestMaxIntervalNeverShrinks(t *testing.T) {
	sm := &SM2{MaxInterval: 30}
	state := &models.MemoryState{EasinessFactor: 2.5, IntervalDays: 25, RepetitionCount: 5}

	next, err := sm.Schedule(state, QualityPerfect, testNow)
	require.NoError(t, err)
	assert.Equal(t, 30, next.IntervalDays)

	legacy := &models.MemoryState{EasinessFactor: 2.5, IntervalDays: 40, RepetitionCount: 5}
	next, err = sm.Schedule(legacy, QualityPerfect, testNow)
	require.NoError(t, err)
	assert.Equal(t, 40, next.IntervalDays)
}

func TestParseQuality(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		policy QualityPolicy
		want   QualityResponse
		ok     bool
	}{
		{"int", 4, ClampPolicy, 4, true},
		{"numeric string", "5", ClampPolicy, 5, true},
		{"padded string", " 3 ", RejectPolicy, 3, true},
		{"float integral", 2.0, RejectPolicy, 2, true},
		{"legacy zero clamped", 0, ClampPolicy, 1, true},
		{"legacy six clamped", "6", ClampPolicy, 5, true},
		{"zero rejected", 0, RejectPolicy, 0, false},
		{"six rejected", 6, RejectPolicy, 0, false},
		{"float string", "5.0", RejectPolicy, 5, true},
		{"huge float clamped", 1e30, ClampPolicy, 5, true},
		{"huge negative float clamped", -1e30, ClampPolicy, 1, true},
		{"huge float rejected", 1e30, RejectPolicy, 0, false},
		{"huge string clamped", "99999999999999999999", ClampPolicy, 5, true},
		{"fractional string", "4.5", ClampPolicy, 0, false},
		{"nan string", "NaN", ClampPolicy, 0, false},
		{"fractional", 3.5, ClampPolicy, 0, false},
		{"word", "good", ClampPolicy, 0, false},
		{"nil", nil, ClampPolicy, 0, false},
		{"bool", true, ClampPolicy, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseQuality(tt.in, tt.policy)
			if !tt.ok {
				assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseQualityPolicy(t *testing.T) {
	p, err := ParseQualityPolicy("Reject")
	require.NoError(t, err)
	assert.Equal(t, RejectPolicy, p)

	_, err = ParseQualityPolicy("ignore")
	assert.Error(t, err)
}

func TestIsDueUsesUTCDay(t *testing.T) {
	lateToday := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	tomorrow := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	assert.True(t, IsDue(&models.MemoryState{NextReviewAt: &lateToday}, testNow))
	assert.False(t, IsDue(&models.MemoryState{NextReviewAt: &tomorrow}, testNow))
	assert.True(t, IsDue(&models.MemoryState{}, testNow))
	assert.False(t, IsDue(&models.MemoryState{Skipped: true}, testNow))
	assert.False(t, IsDue(nil, testNow))

	// a local clock east of UTC still resolves to the UTC day
	tokyo := time.FixedZone("JST", 9*3600)
	assert.Equal(t, tomorrow, EndOfDay(time.Date(2026, 3, 15, 8, 0, 0, 0, tokyo)))
}

func TestDueStatesOrdering(t *testing.T) {
	past := testNow.Add(-48 * time.Hour)
	earlier := testNow.Add(-72 * time.Hour)
	future := testNow.AddDate(0, 0, 3)

	states := []models.MemoryState{
		{ItemID: "c", EasinessFactor: 2.5, NextReviewAt: &past},
		{ItemID: "a", EasinessFactor: 1.8, NextReviewAt: &past},
		{ItemID: "b", EasinessFactor: 2.5, NextReviewAt: &earlier},
		{ItemID: "d", EasinessFactor: 1.3, NextReviewAt: &future},
		{ItemID: "e", EasinessFactor: 1.3, NextReviewAt: &past, Skipped: true},
	}

	due := DueStates(states, testNow, 0)
	ids := make([]string, 0, len(due))
	for _, s := range due {
		ids = append(ids, s.ItemID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
	assert.Len(t, DueStates(states, testNow, 2), 2)
}

func TestIsMastered(t *testing.T) {
	assert.True(t, IsMastered(&models.MemoryState{MasteryLevel: models.MasteryRemembered, IntervalDays: 21}))
	assert.False(t, IsMastered(&models.MemoryState{MasteryLevel: models.MasteryFuzzy, IntervalDays: 40}))
	assert.False(t, IsMastered(nil))
}
