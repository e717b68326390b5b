package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"schoolhub-backend/internal/middleware"
	"schoolhub-backend/internal/models"
	"schoolhub-backend/internal/services"
)

// Shared helpers

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
			RequestID: middleware.GetRequestID(r.Context()),
		},
	}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	resp := errorResp(code, message, r)
	resp.Error.Fields = fields
	return resp
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *services.ValidationError
		notFound   *services.NotFoundError
		forbidden  *services.ForbiddenError
		limited    *services.RateLimitError
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", validation.Fields, r))
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", notFound.Message, r))
	case errors.As(err, &forbidden):
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", forbidden.Message, r))
	case errors.As(err, &limited):
		writeJSON(w, http.StatusTooManyRequests, errorResp("RATE_LIMITED", limited.Message, r))
	default:
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
	}
}
