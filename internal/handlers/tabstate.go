package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/frankbria/auto-author-sub003/internal/models"
	"github.com/frankbria/auto-author-sub003/internal/services"
)

// TabStateHandler serves per-session tab arrangements. The session key is
// client-generated (one per browser tab set); two browsers editing the same
// book keep independent arrangements that see the same chapter structure.
type TabStateHandler struct {
	tabs     *services.TabStateService
	bookRepo bookRepository
}

func NewTabStateHandler(tabs *services.TabStateService, bookRepo bookRepository) *TabStateHandler {
	return &TabStateHandler{tabs: tabs, bookRepo: bookRepo}
}

func (h *TabStateHandler) Get(w http.ResponseWriter, r *http.Request) {
	book, ok := requireOwnedBook(w, r, h.bookRepo)
	if !ok {
		return
	}
	sessionKey := strings.TrimSpace(r.URL.Query().Get("session_key"))
	if sessionKey == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "session_key is required", r))
		return
	}

	state, err := h.tabs.Load(r.Context(), book.ID, sessionKey)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *TabStateHandler) Put(w http.ResponseWriter, r *http.Request) {
	book, ok := requireOwnedBook(w, r, h.bookRepo)
	if !ok {
		return
	}

	var req models.SaveTabStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if strings.TrimSpace(req.SessionKey) == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "session_key is required", r))
		return
	}

	state, err := h.tabs.Save(r.Context(), book.ID, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// Sync forces a reconcile against the current outline. Equivalent to Get,
// kept as an explicit action for the "my tabs look wrong" escape hatch.
func (h *TabStateHandler) Sync(w http.ResponseWriter, r *http.Request) {
	book, ok := requireOwnedBook(w, r, h.bookRepo)
	if !ok {
		return
	}

	var req struct {
		SessionKey string `json:"session_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.SessionKey) == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "session_key is required", r))
		return
	}

	state, err := h.tabs.Load(r.Context(), book.ID, req.SessionKey)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}
