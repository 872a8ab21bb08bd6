// Package grading maps a learner's self-report to an SM-2 quality score.
package grading

import (
	"fmt"
	"strings"

	"github.com/example/studyflow/internal/apperr"
)

// Outcome is the learner's self-report for one presented item
type Outcome int

const (
	Know   Outcome = iota + 1 // Recalled the item.
	Fuzzy                     // Recalled with doubt.
	Forget                    // Did not recall.
)

var (
	outcomeNames  = [...]string{Know: "know", Fuzzy: "fuzzy", Forget: "forget"}
	outcomeByName = map[string]Outcome{
		"know":   Know,
		"fuzzy":  Fuzzy,
		"forget": Forget,
	}
)

// IsValid reports whether o is Know, Fuzzy or Forget
func (o Outcome) IsValid() bool {
	return o >= Know && o <= Forget
}

func (o Outcome) String() string {
	if o.IsValid() {
		return outcomeNames[o]
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// MarshalText implements encoding.TextMarshaler
func (o Outcome) MarshalText() ([]byte, error) {
	if !o.IsValid() {
		return nil, apperr.InvalidInput("MarshalText", "invalid outcome %d", int(o))
	}
	return []byte(outcomeNames[o]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (o *Outcome) UnmarshalText(text []byte) error {
	v, err := ParseOutcome(string(text))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// ParseOutcome is the single coercion point from boundary values to Outcome.
// It accepts an Outcome or one of the labels know, fuzzy, forget in any case.
// Numbers and other types are rejected.
func ParseOutcome(v any) (Outcome, error) {
	switch x := v.(type) {
	case Outcome:
		if x.IsValid() {
			return x, nil
		}
		return 0, apperr.InvalidInput("ParseOutcome", "invalid outcome %d", int(x))
	case string:
		if o, ok := outcomeByName[strings.ToLower(strings.TrimSpace(x))]; ok {
			return o, nil
		}
		return 0, apperr.InvalidInput("ParseOutcome", "unknown outcome %q", x)
	}
	return 0, apperr.InvalidInput("ParseOutcome", "unsupported outcome type %T", v)
}
