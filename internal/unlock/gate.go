// Package unlock derives which learning modules a user may enter.
package unlock

import "github.com/example/studyflow/pkg/models"

// DefaultThreshold is the mastery share required to unlock the next module
const DefaultThreshold = 0.8

// Gate unlocks word, sentence and article modules in order. Once granted an
// unlock is never revoked, so Evaluate ORs its result with progress.Previous.
type Gate struct {
	SentenceThreshold float64 // word mastery needed for sentences
	ArticleThreshold  float64 // sentence mastery needed for articles
}

// NewGate returns a gate with both thresholds at DefaultThreshold
func NewGate() Gate {
	return Gate{SentenceThreshold: DefaultThreshold, ArticleThreshold: DefaultThreshold}
}

// Evaluate computes the unlock state for progress
func (g Gate) Evaluate(progress models.AggregateProgress) models.UnlockInfo {
	prev := progress.Previous

	word := progress.LetterCompleted || prev.WordUnlocked
	sentence := (word && progress.WordMastery >= g.SentenceThreshold) || prev.SentenceUnlocked
	article := (sentence && progress.SentenceMastery >= g.ArticleThreshold) || prev.ArticleUnlocked

	return models.UnlockInfo{
		WordUnlocked:     word,
		SentenceUnlocked: sentence,
		ArticleUnlocked:  article,
		LetterProgress:   max(clamp01(progress.LetterProgress), prev.LetterProgress),
	}
}

// Allows reports whether module is open under info. Letters are always open.
func Allows(info models.UnlockInfo, module models.ModuleType) bool {
	switch module {
	case models.ModuleLetter:
		return true
	case models.ModuleWord:
		return info.WordUnlocked
	case models.ModuleSentence:
		return info.SentenceUnlocked
	case models.ModuleArticle:
		return info.ArticleUnlocked
	}
	return false
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
