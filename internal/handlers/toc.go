package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/frankbria/auto-author-sub003/internal/models"
	"github.com/frankbria/auto-author-sub003/internal/services"
)

type tocRepository interface {
	Get(ctx context.Context, bookID uuid.UUID) (*models.TocDocument, error)
	Version(ctx context.Context, bookID uuid.UUID) (int64, error)
	Write(ctx context.Context, bookID uuid.UUID, doc *models.TocDocument, expectedVersion int64) (*models.TocDocument, models.StructuralChange, error)
}

type syncPublisher interface {
	Publish(ctx context.Context, change models.StructuralChange)
	CachedVersion(ctx context.Context, bookID uuid.UUID) (int64, error)
}

// TocHandler serves the outline document. Every mutation goes through the
// same path: compute the new item set, write it with the version the client
// last saw, publish the structural diff. A stale write returns 409 with the
// current version so the client can reload and retry.
type TocHandler struct {
	tocRepo     tocRepository
	bookRepo    bookRepository
	bus         syncPublisher
	pollSeconds int
}

func NewTocHandler(tocRepo tocRepository, bookRepo bookRepository, bus syncPublisher, pollSeconds int) *TocHandler {
	return &TocHandler{tocRepo: tocRepo, bookRepo: bookRepo, bus: bus, pollSeconds: pollSeconds}
}

func (h *TocHandler) Get(w http.ResponseWriter, r *http.Request) {
	book, ok := requireOwnedBook(w, r, h.bookRepo)
	if !ok {
		return
	}

	doc, err := h.tocRepo.Get(r.Context(), book.ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// GetVersion is the polling fallback: cheap enough to hit every few seconds.
// The Redis cache answers when warm; Postgres remains authoritative. The
// response carries the server's recommended poll interval so clients without
// a live socket know how often to come back.
func (h *TocHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	book, ok := requireOwnedBook(w, r, h.bookRepo)
	if !ok {
		return
	}

	version, err := h.bus.CachedVersion(r.Context(), book.ID)
	if err != nil || version == 0 {
		version, err = h.tocRepo.Version(r.Context(), book.ID)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to read version", r))
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"version":      version,
		"poll_seconds": int64(h.pollSeconds),
	})
}

type putTocRequest struct {
	Items           []models.TocItem `json:"items"`
	ExpectedVersion int64            `json:"expected_version"`
}

func (h *TocHandler) Put(w http.ResponseWriter, r *http.Request) {
	book, ok := requireOwnedBook(w, r, h.bookRepo)
	if !ok {
		return
	}

	var req putTocRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	doc := &models.TocDocument{BookID: book.ID, Items: req.Items}
	saved, change, err := h.tocRepo.Write(r.Context(), book.ID, doc, req.ExpectedVersion)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.bus.Publish(r.Context(), change)
	writeJSON(w, http.StatusOK, saved)
}

type reorderRequest struct {
	ItemID          uuid.UUID  `json:"item_id"`
	NewParentID     *uuid.UUID `json:"new_parent_id"`
	TargetIndex     int        `json:"target_index"`
	ExpectedVersion int64      `json:"expected_version"`
}

func (h *TocHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	book, ok := requireOwnedBook(w, r, h.bookRepo)
	if !ok {
		return
	}

	var req reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	doc, err := h.tocRepo.Get(r.Context(), book.ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	moved, err := services.ReorderToc(doc, req.ItemID, req.NewParentID, req.TargetIndex)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	saved, change, err := h.tocRepo.Write(r.Context(), book.ID, moved, req.ExpectedVersion)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.bus.Publish(r.Context(), change)
	writeJSON(w, http.StatusOK, saved)
}

type updateItemRequest struct {
	Title           *string `json:"title"`
	Description     *string `json:"description"`
	ExpectedVersion int64   `json:"expected_version"`
}

// UpdateItem edits a single item's title/description through the same
// versioned write path. Content edits classify as empty structural changes,
// so other tabs see only a version bump.
func (h *TocHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	book, ok := requireOwnedBook(w, r, h.bookRepo)
	if !ok {
		return
	}
	itemID, ok := uuidParam(w, r, "itemID")
	if !ok {
		return
	}

	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	h.mutateItem(w, r, book.ID, itemID, req.ExpectedVersion, func(item *models.TocItem) {
		if req.Title != nil {
			item.Title = *req.Title
		}
		if req.Description != nil {
			item.Description = *req.Description
		}
	})
}

type updateStatusRequest struct {
	Status          string `json:"status"`
	ExpectedVersion int64  `json:"expected_version"`
}

func (h *TocHandler) UpdateItemStatus(w http.ResponseWriter, r *http.Request) {
	book, ok := requireOwnedBook(w, r, h.bookRepo)
	if !ok {
		return
	}
	itemID, ok := uuidParam(w, r, "itemID")
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	h.mutateItem(w, r, book.ID, itemID, req.ExpectedVersion, func(item *models.TocItem) {
		item.Status = req.Status
	})
}

func (h *TocHandler) mutateItem(w http.ResponseWriter, r *http.Request, bookID, itemID uuid.UUID, expectedVersion int64, mutate func(*models.TocItem)) {
	doc, err := h.tocRepo.Get(r.Context(), bookID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	item := doc.Find(itemID)
	if item == nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Outline item not found", r))
		return
	}
	mutate(item)

	saved, change, err := h.tocRepo.Write(r.Context(), bookID, doc, expectedVersion)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.bus.Publish(r.Context(), change)
	writeJSON(w, http.StatusOK, saved)
}
