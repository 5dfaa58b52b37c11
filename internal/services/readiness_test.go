package services

import (
	"strings"
	"testing"
)

func TestEvaluate_ShortSummaryIsNotReady(t *testing.T) {
	e := NewReadinessEvaluator(50)

	// 15 words must always be rejected.
	report := e.Evaluate("A young detective moves to a small coastal town and uncovers a decades old conspiracy.")

	if report.Ready {
		t.Error("Expected 15-word summary to be not ready")
	}
	if len(report.Reasons) == 0 {
		t.Error("Expected a structured reason for rejection")
	}
	if !strings.Contains(report.Reasons[0], "too short") {
		t.Errorf("Expected a too-short reason, got %q", report.Reasons[0])
	}
}

func TestEvaluate_SufficientSummaryIsReady(t *testing.T) {
	e := NewReadinessEvaluator(50)

	text := strings.TrimSpace(strings.Repeat(
		"The protagonist investigates a mystery in her home town while balancing family obligations. ", 8))

	report := e.Evaluate(text)

	if !report.Ready {
		t.Errorf("Expected summary to be ready, reasons: %v", report.Reasons)
	}
	if report.Score <= 0 {
		t.Errorf("Expected positive score, got %f", report.Score)
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	e := NewReadinessEvaluator(50)
	text := "Some things happen and stuff goes on. It is about whatever."

	first := e.Evaluate(text)
	second := e.Evaluate(text)

	if first.Ready != second.Ready || first.Score != second.Score {
		t.Errorf("Expected identical verdicts, got %+v vs %+v", first, second)
	}
	if len(first.Reasons) != len(second.Reasons) {
		t.Errorf("Expected identical reasons, got %v vs %v", first.Reasons, second.Reasons)
	}
}

func TestEvaluate_FlagsPlaceholderText(t *testing.T) {
	e := NewReadinessEvaluator(5)

	report := e.Evaluate("This is the story of a hero. TBD: write the rest later. It will be great. Trust me on this one.")

	if report.Ready {
		t.Error("Expected placeholder text to block readiness")
	}
	var sawFlag bool
	for _, r := range report.Reasons {
		if strings.Contains(r, "placeholder") {
			sawFlag = true
		}
	}
	if !sawFlag {
		t.Errorf("Expected a placeholder reason, got %v", report.Reasons)
	}
}

func TestEvaluate_VagueSummary(t *testing.T) {
	e := NewReadinessEvaluator(5)

	report := e.Evaluate("Things happen. Stuff occurs with things. Something does whatever somehow. Things and stuff. More things happen somehow.")

	if report.Ready {
		t.Error("Expected vague summary to be not ready")
	}
}

func TestCountSentences(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected int
	}{
		{"empty", "", 0},
		{"single", "One sentence.", 1},
		{"three", "One. Two! Three?", 3},
		{"trailing text without terminator", "One. Two", 2},
		{"ellipsis collapses", "Wait... what?", 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := countSentences(tc.text); got != tc.expected {
				t.Errorf("Expected %d sentences, got %d", tc.expected, got)
			}
		})
	}
}
