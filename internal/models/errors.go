package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// RuleViolation describes a single structural rule broken by a TOC mutation.
type RuleViolation struct {
	ItemID  uuid.UUID `json:"item_id,omitempty"`
	Field   string    `json:"field"`
	Rule    string    `json:"rule"`
	Message string    `json:"message"`
}

// ValidationError carries every violated rule, not just the first one found.
type ValidationError struct {
	Violations []RuleViolation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// ConflictError is returned when a write targets a stale document version.
// CurrentVersion is the version actually persisted, so the caller can
// reload-and-retry or force-overwrite.
type ConflictError struct {
	CurrentVersion  int64
	ExpectedVersion int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict: expected %d, current is %d", e.ExpectedVersion, e.CurrentVersion)
}

// DepthLimitError is returned when a reorder would nest an item beyond the
// supported two-level hierarchy.
type DepthLimitError struct {
	ItemID uuid.UUID
}

func (e *DepthLimitError) Error() string {
	return fmt.Sprintf("item %s cannot be nested beyond the subchapter level", e.ItemID)
}

// AiCollaboratorError wraps a failure of the generation service after its
// bounded retry has been exhausted. Retryable tells the UI whether offering
// a manual retry makes sense.
type AiCollaboratorError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *AiCollaboratorError) Error() string {
	return fmt.Sprintf("ai collaborator failed during %s: %v", e.Op, e.Err)
}

func (e *AiCollaboratorError) Unwrap() error { return e.Err }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type ForbiddenError struct{ Message string }

func (e *ForbiddenError) Error() string { return e.Message }

type UnauthorizedError struct{ Message string }

func (e *UnauthorizedError) Error() string { return e.Message }

// InvalidStateError is returned when a wizard action is attempted from a
// state that does not permit it.
type InvalidStateError struct {
	Action string
	State  string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("action %q is not allowed in wizard state %q", e.Action, e.State)
}
