package models

import (
	"time"

	"github.com/google/uuid"
)

type Summary struct {
	ID        uuid.UUID `json:"id"`
	BookID    uuid.UUID `json:"book_id"`
	Text      string    `json:"text"`
	WordCount int       `json:"word_count"`
	CharCount int       `json:"char_count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SummaryRevision is an immutable snapshot taken before each summary update.
type SummaryRevision struct {
	ID        uuid.UUID `json:"id"`
	SummaryID uuid.UUID `json:"summary_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type UpdateSummaryRequest struct {
	Text string `json:"text"`
}
