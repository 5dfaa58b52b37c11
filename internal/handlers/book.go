package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/frankbria/auto-author-sub003/internal/middleware"
	"github.com/frankbria/auto-author-sub003/internal/models"
)

type bookRepository interface {
	Create(ctx context.Context, b *models.Book) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Book, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Book, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type BookHandler struct {
	bookRepo bookRepository
}

func NewBookHandler(bookRepo bookRepository) *BookHandler {
	return &BookHandler{bookRepo: bookRepo}
}

func (h *BookHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if strings.TrimSpace(req.Title) == "" {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"title": "Title is required"}, r))
		return
	}

	book := &models.Book{
		UserID:   middleware.GetUserID(r.Context()),
		Title:    strings.TrimSpace(req.Title),
		Genre:    strings.TrimSpace(req.Genre),
		Audience: strings.TrimSpace(req.Audience),
	}
	if err := h.bookRepo.Create(r.Context(), book); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create book", r))
		return
	}

	writeJSON(w, http.StatusCreated, book)
}

func (h *BookHandler) List(w http.ResponseWriter, r *http.Request) {
	books, err := h.bookRepo.ListByUser(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list books", r))
		return
	}
	if books == nil {
		books = []*models.Book{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"books": books})
}

func (h *BookHandler) Get(w http.ResponseWriter, r *http.Request) {
	book, ok := h.requireBook(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *BookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	book, ok := h.requireBook(w, r)
	if !ok {
		return
	}
	if err := h.bookRepo.Delete(r.Context(), book.ID); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to delete book", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Book deleted"})
}

func (h *BookHandler) requireBook(w http.ResponseWriter, r *http.Request) (*models.Book, bool) {
	return requireOwnedBook(w, r, h.bookRepo)
}

// requireOwnedBook loads the book from the route and enforces ownership. A
// foreign book reads as not-found rather than forbidden, so book ids do not
// leak across accounts.
func requireOwnedBook(w http.ResponseWriter, r *http.Request, books bookRepository) (*models.Book, bool) {
	id, ok := bookIDParam(w, r)
	if !ok {
		return nil, false
	}
	book, err := books.GetByID(r.Context(), id)
	if err != nil || book.UserID != middleware.GetUserID(r.Context()) {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Book not found", r))
		return nil, false
	}
	return book, true
}
