package spaced_repetition

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/example/studyflow/internal/apperr"
)

// QualityResponse represents the quality of response in SM-2
type QualityResponse int

const (
	// Complete blackout, unable to recall
	QualityBlackout QualityResponse = 0
	// Incorrect response but remembered upon seeing the correct answer
	QualityIncorrect QualityResponse = 1
	// Incorrect response but the correct answer felt familiar
	QualityIncorrectFamiliar QualityResponse = 2
	// Correct response but required significant effort
	QualityCorrectDifficult QualityResponse = 3
	// Correct response after some hesitation
	QualityCorrectHesitation QualityResponse = 4
	// Perfect response with no hesitation
	QualityPerfect QualityResponse = 5
)

// MinQuality and MaxQuality bound the scores the scheduler accepts
const (
	MinQuality = QualityIncorrect
	MaxQuality = QualityPerfect
)

// IsValid reports whether q is inside [MinQuality, MaxQuality]
func (q QualityResponse) IsValid() bool {
	return q >= MinQuality && q <= MaxQuality
}

// IsCorrect reports whether q counts as a successful recall
func (q QualityResponse) IsCorrect() bool {
	return q >= QualityCorrectDifficult
}

// QualityPolicy decides what happens to integral scores outside [1,5]
type QualityPolicy string

const (
	// ClampPolicy maps legacy 0 to 1 and anything above 5 to 5
	ClampPolicy QualityPolicy = "clamp"
	// RejectPolicy refuses out-of-range scores
	RejectPolicy QualityPolicy = "reject"
)

// ParseQualityPolicy parses a configured policy name
func ParseQualityPolicy(s string) (QualityPolicy, error) {
	switch p := QualityPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case ClampPolicy, RejectPolicy:
		return p, nil
	}
	return "", apperr.InvalidInput("ParseQualityPolicy", "unknown quality policy %q", s)
}

// ParseQuality coerces a boundary value into a QualityResponse. It accepts
// integers, integral floats and numeric strings such as "5" or "5.0".
// Everything else is rejected; there is no silent fallback.
func ParseQuality(v any, policy QualityPolicy) (QualityResponse, error) {
	const op = "ParseQuality"

	var n int64
	switch x := v.(type) {
	case QualityResponse:
		n = int64(x)
	case int:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case float64:
		parsed, err := integral(x)
		if err != nil {
			return 0, err
		}
		n = parsed
	case string:
		s := strings.TrimSpace(x)
		if parsed, err := strconv.ParseInt(s, 10, 64); err == nil {
			n = parsed
			break
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, apperr.InvalidInput(op, "quality %q is not numeric", x)
		}
		if n, err = integral(f); err != nil {
			return 0, err
		}
	default:
		return 0, apperr.InvalidInput(op, "unsupported quality type %T", v)
	}

	if n >= int64(MinQuality) && n <= int64(MaxQuality) {
		return QualityResponse(n), nil
	}
	if policy != ClampPolicy {
		return 0, apperr.InvalidInput(op, "quality %d outside [%d,%d]", n, MinQuality, MaxQuality)
	}
	if n < int64(MinQuality) {
		return MinQuality, nil
	}
	return MaxQuality, nil
}

// integralLimit keeps float conversion well inside the int64 range
const integralLimit = 1 << 53

// integral converts a whole-number float. Magnitudes past integralLimit are
// pinned to it; they are out of range either way.
func integral(x float64) (int64, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) || x != math.Trunc(x) {
		return 0, apperr.InvalidInput("ParseQuality", "quality %v is not an integer", x)
	}
	switch {
	case x > integralLimit:
		return integralLimit, nil
	case x < -integralLimit:
		return -integralLimit, nil
	}
	return int64(x), nil
}

func (q QualityResponse) String() string {
	return fmt.Sprintf("Quality(%d)", int(q))
}
