package queue

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/studyflow/internal/apperr"
	"github.com/example/studyflow/pkg/models"
)

func refs(ids ...string) []models.LearningItemRef {
	out := make([]models.LearningItemRef, len(ids))
	for i, id := range ids {
		out[i] = models.LearningItemRef{ID: id, Module: models.ModuleLetter}
	}
	return out
}

func letters(n int) []models.LearningItemRef {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = string(rune('a' + i))
	}
	return refs(ids...)
}

func idsWithSource(q []models.QueueItem, source models.QueueSource) []string {
	var out []string
	for _, item := range q {
		if item.Source == source {
			out = append(out, item.Item.ID)
		}
	}
	return out
}

func TestBuildLengthLaw(t *testing.T) {
	for n := 0; n <= 13; n++ {
		for p := 0; p <= 4; p++ {
			t.Run(fmt.Sprintf("N=%d,P=%d", n, p), func(t *testing.T) {
				q, err := Build(letters(n), refs(make([]string, p)...), 1, DefaultChunkSize)
				require.NoError(t, err)
				assert.Len(t, q, p+n+3*(n/3)+n)
				assert.Equal(t, ExpectedLength(n, p, DefaultChunkSize), len(q))
			})
		}
	}
}

func TestBuildLessonOne(t *testing.T) {
	q, err := Build(letters(9), nil, 1, DefaultChunkSize)
	require.NoError(t, err)
	assert.Len(t, q, 27)

	all := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"}
	assert.Equal(t, all, idsWithSource(q, models.SourceMiniReview))
	assert.Equal(t, all, idsWithSource(q, models.SourceFinalReview))
	assert.Equal(t, all, idsWithSource(q, models.SourceNew))
}

func TestBuildInterleavesChunks(t *testing.T) {
	q, err := Build(letters(4), refs("x"), 2, DefaultChunkSize)
	require.NoError(t, err)

	var got []string
	for _, item := range q {
		assert.Equal(t, 2, item.Round)
		got = append(got, fmt.Sprintf("%s:%s", item.Source, item.Item.ID))
	}
	assert.Equal(t, []string{
		"PREVIOUS_ROUND_REVIEW:x",
		"NEW:a", "NEW:b", "NEW:c",
		"MINI_REVIEW:a", "MINI_REVIEW:b", "MINI_REVIEW:c",
		"NEW:d",
		"FINAL_REVIEW:a", "FINAL_REVIEW:b", "FINAL_REVIEW:c", "FINAL_REVIEW:d",
	}, got)
}

func TestBuildTrailingChunkNotMiniReviewed(t *testing.T) {
	q, err := Build(letters(10), nil, 1, DefaultChunkSize)
	require.NoError(t, err)

	mini := idsWithSource(q, models.SourceMiniReview)
	assert.NotContains(t, mini, "j")
	assert.Len(t, mini, 9)
}

func TestBuildDeterministic(t *testing.T) {
	a, err := Build(letters(8), refs("p", "q"), 1, DefaultChunkSize)
	require.NoError(t, err)
	b, err := Build(letters(8), refs("p", "q"), 1, DefaultChunkSize)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBuildDoesNotAliasInput(t *testing.T) {
	items := letters(3)
	q, err := Build(items, nil, 1, DefaultChunkSize)
	require.NoError(t, err)

	items[0].ID = "changed"
	assert.Equal(t, "a", q[0].Item.ID)
}

func TestBuildCustomChunk(t *testing.T) {
	q, err := Build(letters(5), nil, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, idsWithSource(q, models.SourceMiniReview))
	assert.Len(t, q, ExpectedLength(5, 0, 2))
}

func TestBuildRejectsBadInput(t *testing.T) {
	for _, round := range []int{0, 4} {
		_, err := Build(letters(3), nil, round, DefaultChunkSize)
		assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
	}
	_, err := Build(letters(3), nil, 1, 0)
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
}

func TestBuildRemedy(t *testing.T) {
	q := BuildRemedy(refs("c", "a", "c", "b", "a"), 2)
	assert.Equal(t, []string{"c", "a", "b"}, idsWithSource(q, models.SourceRemedy))
	for _, item := range q {
		assert.Equal(t, 2, item.Round)
	}
	assert.Empty(t, BuildRemedy(nil, 1))
}
