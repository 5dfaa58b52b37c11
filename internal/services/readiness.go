package services

import (
	"fmt"
	"strings"

	"github.com/frankbria/auto-author-sub003/internal/models"
)

// ReadinessEvaluator decides whether a summary carries enough information to
// drive outline generation. It is a pure function of text features so the
// same summary always produces the same verdict, and generation stays gated
// at the state-machine level rather than in the UI.
type ReadinessEvaluator struct {
	MinWords     int
	MinSentences int
}

func NewReadinessEvaluator(minWords int) *ReadinessEvaluator {
	if minWords <= 0 {
		minWords = 50
	}
	return &ReadinessEvaluator{
		MinWords:     minWords,
		MinSentences: 3,
	}
}

// Words whose density suggests the summary says little concrete.
var vagueTerms = map[string]bool{
	"stuff":     true,
	"things":    true,
	"thing":     true,
	"whatever":  true,
	"something": true,
	"somehow":   true,
	"etc":       true,
}

// Placeholder fragments that mean the summary was never actually written.
var flaggedTerms = []string{
	"lorem ipsum",
	"placeholder",
	"tbd",
	"todo",
	"fill this in",
}

func (e *ReadinessEvaluator) Evaluate(text string) models.ReadinessReport {
	report := models.ReadinessReport{Reasons: []string{}}

	trimmed := strings.TrimSpace(text)
	words := strings.Fields(trimmed)
	wordCount := len(words)
	sentenceCount := countSentences(trimmed)

	if wordCount < e.MinWords {
		report.Reasons = append(report.Reasons,
			fmt.Sprintf("summary is too short: %d words, need at least %d", wordCount, e.MinWords))
	}
	if sentenceCount < e.MinSentences {
		report.Reasons = append(report.Reasons,
			fmt.Sprintf("summary needs at least %d sentences, found %d", e.MinSentences, sentenceCount))
	}

	vagueCount := 0
	for _, w := range words {
		if vagueTerms[normalizeWord(w)] {
			vagueCount++
		}
	}
	if wordCount > 0 && float64(vagueCount)/float64(wordCount) > 0.08 {
		report.Reasons = append(report.Reasons,
			fmt.Sprintf("summary is too vague: %d filler words out of %d", vagueCount, wordCount))
	}

	lower := strings.ToLower(trimmed)
	for _, term := range flaggedTerms {
		if strings.Contains(lower, term) {
			report.Reasons = append(report.Reasons,
				fmt.Sprintf("summary contains placeholder text: %q", term))
		}
	}

	report.Score = e.score(wordCount, sentenceCount, vagueCount, len(report.Reasons))
	report.Ready = len(report.Reasons) == 0
	return report
}

// score lands in [0, 1]. Length and sentence structure dominate; each
// distinct problem subtracts a fixed penalty.
func (e *ReadinessEvaluator) score(wordCount, sentenceCount, vagueCount, problems int) float64 {
	lengthScore := float64(wordCount) / float64(e.MinWords*2)
	if lengthScore > 0.5 {
		lengthScore = 0.5
	}

	sentenceScore := float64(sentenceCount) / float64(e.MinSentences*2)
	if sentenceScore > 0.3 {
		sentenceScore = 0.3
	}

	clarityScore := 0.2
	if wordCount > 0 {
		clarityScore -= float64(vagueCount) / float64(wordCount)
		if clarityScore < 0 {
			clarityScore = 0
		}
	}

	score := lengthScore + sentenceScore + clarityScore - 0.1*float64(problems)
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

func countSentences(text string) int {
	count := 0
	inSentence := false
	for _, r := range text {
		switch r {
		case '.', '!', '?':
			if inSentence {
				count++
				inSentence = false
			}
		default:
			if !isSpaceRune(r) {
				inSentence = true
			}
		}
	}
	if inSentence {
		count++
	}
	return count
}

func isSpaceRune(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

func normalizeWord(w string) string {
	return strings.ToLower(strings.Trim(w, ".,;:!?\"'()"))
}
