package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/frankbria/auto-author-sub003/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			Fields:    fields,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

// handleServiceError maps the typed domain errors onto the HTTP envelope.
// Conflicts carry the current version so a client can reload and retry;
// validation failures carry every violated rule, not just the first.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := r.Header.Get("X-Request-ID")

	var validation *models.ValidationError
	var conflict *models.ConflictError
	var depth *models.DepthLimitError
	var invalidState *models.InvalidStateError
	var aiErr *models.AiCollaboratorError
	var notFound *models.NotFoundError
	var forbidden *models.ForbiddenError
	var unauthorized *models.UnauthorizedError

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: models.APIError{
			Code:       "VALIDATION_ERROR",
			Message:    "Validation failed",
			Violations: validation.Violations,
			RequestID:  requestID,
		}})
	case errors.As(err, &conflict):
		current := conflict.CurrentVersion
		writeJSON(w, http.StatusConflict, models.ErrorResponse{Error: models.APIError{
			Code:           "VERSION_CONFLICT",
			Message:        err.Error(),
			CurrentVersion: &current,
			RequestID:      requestID,
		}})
	case errors.As(err, &depth):
		writeJSON(w, http.StatusBadRequest, errorResp("DEPTH_LIMIT", err.Error(), r))
	case errors.As(err, &invalidState):
		writeJSON(w, http.StatusConflict, errorResp("INVALID_STATE", err.Error(), r))
	case errors.As(err, &aiErr):
		retryable := aiErr.Retryable
		writeJSON(w, http.StatusBadGateway, models.ErrorResponse{Error: models.APIError{
			Code:      "AI_COLLABORATOR_FAILED",
			Message:   err.Error(),
			Retryable: &retryable,
			RequestID: requestID,
		}})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", err.Error(), r))
	case errors.As(err, &forbidden):
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", err.Error(), r))
	case errors.As(err, &unauthorized):
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", err.Error(), r))
	default:
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
	}
}

// bookIDParam parses the {id} route parameter. A zero uuid return means the
// response was already written.
func bookIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid book id", r))
		return uuid.Nil, false
	}
	return id, true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid "+name, r))
		return uuid.Nil, false
	}
	return id, true
}
