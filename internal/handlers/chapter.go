package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/frankbria/auto-author-sub003/internal/middleware"
	"github.com/frankbria/auto-author-sub003/internal/models"
	"github.com/frankbria/auto-author-sub003/internal/services"
)

// ChapterHandler covers per-chapter actions: requesting an AI prose draft
// and recording access events.
type ChapterHandler struct {
	tocRepo  tocRepository
	bookRepo bookRepository
	tabs     *services.TabStateService
	queue    services.JobEnqueuer
}

func NewChapterHandler(tocRepo tocRepository, bookRepo bookRepository, tabs *services.TabStateService, queue services.JobEnqueuer) *ChapterHandler {
	return &ChapterHandler{tocRepo: tocRepo, bookRepo: bookRepo, tabs: tabs, queue: queue}
}

// RequestDraft enqueues chapter prose generation. 202 with a job id; the
// draft lands on the outline item through a version-checked write and
// progress arrives over the book's update stream.
func (h *ChapterHandler) RequestDraft(w http.ResponseWriter, r *http.Request) {
	book, ok := requireOwnedBook(w, r, h.bookRepo)
	if !ok {
		return
	}
	itemID, ok := uuidParam(w, r, "itemID")
	if !ok {
		return
	}

	doc, err := h.tocRepo.Get(r.Context(), book.ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if doc.Find(itemID) == nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Outline item not found", r))
		return
	}

	config, _ := json.Marshal(map[string]interface{}{"chapter_id": itemID})
	job := &models.Job{
		UserID:      middleware.GetUserID(r.Context()),
		Type:        models.JobChapterDraft,
		ReferenceID: book.ID,
		ConfigJSON:  config,
	}
	if err := h.queue.Enqueue(r.Context(), job); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to enqueue draft job", r))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{"job_id": job.ID})
}

func (h *ChapterHandler) RecordAccess(w http.ResponseWriter, r *http.Request) {
	book, ok := requireOwnedBook(w, r, h.bookRepo)
	if !ok {
		return
	}
	itemID, ok := uuidParam(w, r, "itemID")
	if !ok {
		return
	}

	var req struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	entry, err := h.tabs.RecordAccess(r.Context(), middleware.GetUserID(r.Context()), book.ID, itemID, req.Action)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}
