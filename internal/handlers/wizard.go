package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/frankbria/auto-author-sub003/internal/middleware"
	"github.com/frankbria/auto-author-sub003/internal/models"
	"github.com/frankbria/auto-author-sub003/internal/services"
)

type WizardHandler struct {
	wizard   *services.WizardService
	bookRepo bookRepository
}

func NewWizardHandler(wizard *services.WizardService, bookRepo bookRepository) *WizardHandler {
	return &WizardHandler{wizard: wizard, bookRepo: bookRepo}
}

func (h *WizardHandler) Status(w http.ResponseWriter, r *http.Request) {
	book, ok := requireOwnedBook(w, r, h.bookRepo)
	if !ok {
		return
	}

	status, err := h.wizard.Status(r.Context(), book.ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if status.Questions == nil {
		status.Questions = []*models.ClarifyingQuestion{}
	}
	if status.Responses == nil {
		status.Responses = []*models.QuestionResponse{}
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *WizardHandler) CheckReadiness(w http.ResponseWriter, r *http.Request) {
	book, ok := requireOwnedBook(w, r, h.bookRepo)
	if !ok {
		return
	}

	report, err := h.wizard.CheckReadiness(r.Context(), book.ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *WizardHandler) RequestQuestions(w http.ResponseWriter, r *http.Request) {
	book, ok := requireOwnedBook(w, r, h.bookRepo)
	if !ok {
		return
	}

	job, err := h.wizard.RequestQuestions(r.Context(), middleware.GetUserID(r.Context()), book.ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"job_id": job.ID})
}

func (h *WizardHandler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	book, ok := requireOwnedBook(w, r, h.bookRepo)
	if !ok {
		return
	}

	status, err := h.wizard.Status(r.Context(), book.ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	questions := status.Questions
	if questions == nil {
		questions = []*models.ClarifyingQuestion{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"questions": questions})
}

// SubmitResponse is a PUT: answering, re-answering, or skipping a question is
// an idempotent upsert keyed by question id.
func (h *WizardHandler) SubmitResponse(w http.ResponseWriter, r *http.Request) {
	book, ok := requireOwnedBook(w, r, h.bookRepo)
	if !ok {
		return
	}
	questionID, ok := uuidParam(w, r, "questionID")
	if !ok {
		return
	}

	var req models.SubmitResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	resp, err := h.wizard.SubmitAnswer(r.Context(), book.ID, questionID, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *WizardHandler) Generate(w http.ResponseWriter, r *http.Request) {
	book, ok := requireOwnedBook(w, r, h.bookRepo)
	if !ok {
		return
	}

	job, err := h.wizard.Generate(r.Context(), middleware.GetUserID(r.Context()), book.ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"job_id": job.ID})
}

func (h *WizardHandler) Candidate(w http.ResponseWriter, r *http.Request) {
	book, ok := requireOwnedBook(w, r, h.bookRepo)
	if !ok {
		return
	}

	items, err := h.wizard.Candidate(r.Context(), book.ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (h *WizardHandler) Accept(w http.ResponseWriter, r *http.Request) {
	book, ok := requireOwnedBook(w, r, h.bookRepo)
	if !ok {
		return
	}

	doc, err := h.wizard.Accept(r.Context(), book.ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *WizardHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	book, ok := requireOwnedBook(w, r, h.bookRepo)
	if !ok {
		return
	}

	run, err := h.wizard.Regenerate(r.Context(), book.ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
