package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/frankbria/auto-author-sub003/internal/middleware"
	"github.com/frankbria/auto-author-sub003/internal/models"
)

type jobRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

type JobHandler struct {
	jobRepo jobRepository
}

func NewJobHandler(jobRepo jobRepository) *JobHandler {
	return &JobHandler{jobRepo: jobRepo}
}

func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	job, err := h.jobRepo.GetByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if job.UserID != middleware.GetUserID(r.Context()) {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Job not found", r))
		return
	}
	writeJSON(w, http.StatusOK, job)
}
