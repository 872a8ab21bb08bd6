package grading

import (
	"fmt"

	sr "github.com/example/studyflow/internal/spaced_repetition"
)

// Grade maps an outcome and the 1-indexed attempt count of the item within
// the current round to a quality score. Attempts below 1 count as a first
// attempt. An invalid outcome is a programming error and panics.
func Grade(outcome Outcome, attempts int) sr.QualityResponse {
	repeat := attempts > 1

	switch outcome {
	case Know:
		if repeat {
			return sr.QualityCorrectHesitation
		}
		return sr.QualityPerfect
	case Fuzzy:
		if repeat {
			return sr.QualityIncorrectFamiliar
		}
		return sr.QualityCorrectDifficult
	case Forget:
		return sr.QualityIncorrect
	}
	panic(fmt.Sprintf("grading: unrecognized outcome %d", int(outcome)))
}
