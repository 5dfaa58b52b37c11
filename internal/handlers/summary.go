package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/frankbria/auto-author-sub003/internal/models"
)

type summaryRepository interface {
	GetByBook(ctx context.Context, bookID uuid.UUID) (*models.Summary, error)
	UpdateText(ctx context.Context, bookID uuid.UUID, text string) (*models.Summary, error)
	ListRevisions(ctx context.Context, summaryID uuid.UUID, limit int) ([]*models.SummaryRevision, error)
}

type SummaryHandler struct {
	summaryRepo summaryRepository
	bookRepo    bookRepository
}

func NewSummaryHandler(summaryRepo summaryRepository, bookRepo bookRepository) *SummaryHandler {
	return &SummaryHandler{summaryRepo: summaryRepo, bookRepo: bookRepo}
}

func (h *SummaryHandler) Get(w http.ResponseWriter, r *http.Request) {
	book, ok := requireOwnedBook(w, r, h.bookRepo)
	if !ok {
		return
	}

	summary, err := h.summaryRepo.GetByBook(r.Context(), book.ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Update replaces the summary text, snapshotting the previous text as a
// revision. The client auto-saves on a debounce; identical text is a no-op.
func (h *SummaryHandler) Update(w http.ResponseWriter, r *http.Request) {
	book, ok := requireOwnedBook(w, r, h.bookRepo)
	if !ok {
		return
	}

	var req models.UpdateSummaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	summary, err := h.summaryRepo.UpdateText(r.Context(), book.ID, req.Text)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *SummaryHandler) ListRevisions(w http.ResponseWriter, r *http.Request) {
	book, ok := requireOwnedBook(w, r, h.bookRepo)
	if !ok {
		return
	}

	summary, err := h.summaryRepo.GetByBook(r.Context(), book.ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	revisions, err := h.summaryRepo.ListRevisions(r.Context(), summary.ID, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list revisions", r))
		return
	}
	if revisions == nil {
		revisions = []*models.SummaryRevision{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"revisions": revisions})
}
