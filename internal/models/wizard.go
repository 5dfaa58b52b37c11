package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WizardState names a state of the TOC generation wizard.
type WizardState string

const (
	WizardIdle              WizardState = "idle"
	WizardCheckingReadiness WizardState = "checking_readiness"
	WizardNotReady          WizardState = "not_ready"
	WizardAwaitingQuestions WizardState = "awaiting_questions"
	WizardCollectingAnswers WizardState = "collecting_answers"
	WizardGenerating        WizardState = "generating"
	WizardReviewing         WizardState = "reviewing"
	WizardRegenerating      WizardState = "regenerating"
	WizardAccepted          WizardState = "accepted"
	WizardFailed            WizardState = "failed"
)

// WizardRun is the persisted state of one wizard pass for a book. A book has
// at most one run; regeneration resets the same row rather than stacking runs.
// RequestSeq increases on every generation request and guards against stale
// AI responses being applied after the user moved on.
type WizardRun struct {
	ID               uuid.UUID       `json:"id"`
	BookID           uuid.UUID       `json:"book_id"`
	State            WizardState     `json:"state"`
	ReadinessScore   float64         `json:"readiness_score"`
	ReadinessReasons []string        `json:"readiness_reasons"`
	FailureCode      *string         `json:"failure_code"`
	Retryable        bool            `json:"retryable"`
	CandidateJSON    json.RawMessage `json:"candidate,omitempty"`
	RequestSeq       int64           `json:"request_seq"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// ClarifyingQuestion is generated once per wizard run and immutable after
// creation; regeneration replaces the whole set.
type ClarifyingQuestion struct {
	ID       uuid.UUID `json:"id"`
	RunID    uuid.UUID `json:"run_id"`
	Text     string    `json:"text"`
	Order    int       `json:"order"`
	Category *string   `json:"category"`
}

type QuestionResponse struct {
	QuestionID uuid.UUID `json:"question_id"`
	RunID      uuid.UUID `json:"run_id"`
	Answer     string    `json:"answer"`
	Rating     *int      `json:"rating"`
	Skipped    bool      `json:"skipped"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type SubmitResponseRequest struct {
	Answer  string `json:"answer"`
	Rating  *int   `json:"rating"`
	Skipped bool   `json:"skipped"`
}

// ReadinessReport is the deterministic verdict on whether a summary carries
// enough information to drive outline generation.
type ReadinessReport struct {
	Ready   bool     `json:"ready"`
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons"`
}
