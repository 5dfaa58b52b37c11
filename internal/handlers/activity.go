package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/frankbria/auto-author-sub003/internal/models"
)

type accessLogReader interface {
	ListRecent(ctx context.Context, bookID uuid.UUID, limit int) ([]*models.AccessLogEntry, error)
}

// ActivityHandler reports recent chapter activity: the access log plus a
// per-status chapter count derived from the current outline. Advisory data
// only; nothing here feeds back into state.
type ActivityHandler struct {
	access   accessLogReader
	tocRepo  tocRepository
	bookRepo bookRepository
}

func NewActivityHandler(access accessLogReader, tocRepo tocRepository, bookRepo bookRepository) *ActivityHandler {
	return &ActivityHandler{access: access, tocRepo: tocRepo, bookRepo: bookRepo}
}

func (h *ActivityHandler) Get(w http.ResponseWriter, r *http.Request) {
	book, ok := requireOwnedBook(w, r, h.bookRepo)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.access.ListRecent(r.Context(), book.ID, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list activity", r))
		return
	}
	if entries == nil {
		entries = []*models.AccessLogEntry{}
	}

	statusCounts := map[string]int{}
	doc, err := h.tocRepo.Get(r.Context(), book.ID)
	if err != nil {
		var notFound *models.NotFoundError
		if !errors.As(err, &notFound) {
			writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to read outline", r))
			return
		}
	} else {
		for _, ch := range doc.Chapters() {
			statusCounts[ch.Status]++
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"recent":        entries,
		"status_counts": statusCounts,
	})
}
