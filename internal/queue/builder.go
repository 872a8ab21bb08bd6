// Package queue builds the ordered item queue for one round of a lesson.
//
// A round queue is laid out as
//
//	PREVIOUS_ROUND_REVIEW... | NEW x chunk, MINI_REVIEW x chunk, ... | FINAL_REVIEW...
//
// Build is pure and deterministic: identical inputs give identical queues.
// A queue is never patched; a new one is built when the round changes.
package queue

import (
	"github.com/example/studyflow/internal/apperr"
	"github.com/example/studyflow/pkg/models"
)

// DefaultChunkSize is the number of new items introduced before a mini-review
const DefaultChunkSize = 3

// MaxRound is the highest round number a lesson can reach
const MaxRound = 3

// Build returns the queue for one round. Every complete chunk of chunkSize
// new items is followed by a mini-review of the same items; a trailing
// partial chunk is not mini-reviewed.
func Build(newItems, previousRoundItems []models.LearningItemRef, round, chunkSize int) ([]models.QueueItem, error) {
	if round < 1 || round > MaxRound {
		return nil, apperr.InvalidInput("BuildQueue", "round %d outside 1..%d", round, MaxRound)
	}
	if chunkSize < 1 {
		return nil, apperr.InvalidInput("BuildQueue", "chunk size %d must be positive", chunkSize)
	}

	q := make([]models.QueueItem, 0, ExpectedLength(len(newItems), len(previousRoundItems), chunkSize))

	for _, item := range previousRoundItems {
		q = append(q, models.QueueItem{Item: item, Source: models.SourcePreviousRoundReview, Round: round})
	}

	for i, item := range newItems {
		q = append(q, models.QueueItem{Item: item, Source: models.SourceNew, Round: round})
		if (i+1)%chunkSize == 0 {
			for _, reviewed := range newItems[i+1-chunkSize : i+1] {
				q = append(q, models.QueueItem{Item: reviewed, Source: models.SourceMiniReview, Round: round})
			}
		}
	}

	for _, item := range newItems {
		q = append(q, models.QueueItem{Item: item, Source: models.SourceFinalReview, Round: round})
	}

	return q, nil
}

// BuildRemedy returns one REMEDY entry per distinct item, in first-seen order
func BuildRemedy(items []models.LearningItemRef, round int) []models.QueueItem {
	seen := make(map[string]bool, len(items))
	q := make([]models.QueueItem, 0, len(items))
	for _, item := range items {
		if seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		q = append(q, models.QueueItem{Item: item, Source: models.SourceRemedy, Round: round})
	}
	return q
}

// ExpectedLength is the queue length law: P + N + chunk*floor(N/chunk) + N
func ExpectedLength(newCount, previousCount, chunkSize int) int {
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}
	return previousCount + newCount + chunkSize*(newCount/chunkSize) + newCount
}
