package handler

import (
	"encoding/json"
	"net/http"

	"sessiongate/internal/middleware"
	"sessiongate/pkg/errors"
	"sessiongate/pkg/logger"
)

// writeJSON writes v as a JSON response with status
func writeJSON(w http.ResponseWriter, status int, v interface{}, logger *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Error("Failed to encode response")
	}
}

// writeErrorResponse writes an error response to the client
func writeErrorResponse(w http.ResponseWriter, r *http.Request, appErr *errors.AppError, logger *logger.Logger) {
	log := logger.WithError(appErr).WithField("path", r.URL.Path)
	if appErr.StatusCode >= http.StatusInternalServerError {
		log.Error("Request error")
	} else {
		log.Debug("Request rejected")
	}

	if err := errors.WriteJSON(w, appErr, middleware.RequestIDFromContext(r.Context())); err != nil {
		logger.WithError(err).Error("Failed to encode error response")
	}
}
