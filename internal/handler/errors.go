// Package handler provides the HTTP handlers for the project service's
// exposed contract.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/perimetra/projects-service/internal/client"
	"github.com/perimetra/projects-service/internal/service"
	"github.com/perimetra/projects-service/internal/storage"
)

// ErrorCode represents application-specific error codes.
type ErrorCode string

const (
	ErrorCodeUnknown             ErrorCode = "UNKNOWN"
	ErrorCodeInvalidRequest      ErrorCode = "INVALID_REQUEST"
	ErrorCodeInternalError       ErrorCode = "INTERNAL_ERROR"
	ErrorCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrorCodeVersionConflict     ErrorCode = "VERSION_CONFLICT"
	ErrorCodeConstraintViolation ErrorCode = "CONSTRAINT_VIOLATION"
	ErrorCodeSubscriptionLimit   ErrorCode = "SUBSCRIPTION_LIMIT"
	ErrorCodeInvalidKeyPrefix    ErrorCode = "INVALID_KEY_PREFIX"
)

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Status    string    `json:"status"`
	ErrorCode ErrorCode `json:"error_code"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id,omitempty"`
}

// ErrorWriter maps domain errors to HTTP responses. Each typed error gets a
// distinct response category: conflict, bad input, not found, unmodified.
type ErrorWriter struct {
	logger *zap.Logger
}

// NewErrorWriter creates an error writer.
func NewErrorWriter(logger *zap.Logger) *ErrorWriter {
	return &ErrorWriter{logger: logger}
}

// WriteError classifies err and writes the matching response.
func (e *ErrorWriter) WriteError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := r.Header.Get("X-Request-ID")

	var conflict *storage.ConcurrencyError
	var constraint *storage.ConstraintError

	switch {
	case errors.Is(err, storage.ErrNoChanges):
		// 304 carries no body.
		w.WriteHeader(http.StatusNotModified)
	case errors.As(err, &conflict):
		e.write(w, http.StatusConflict, ErrorCodeVersionConflict, conflict.Error(), requestID)
	case errors.As(err, &constraint):
		e.write(w, http.StatusConflict, ErrorCodeConstraintViolation, constraint.Error(), requestID)
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, client.ErrNotFound):
		e.write(w, http.StatusNotFound, ErrorCodeNotFound, "the requested resource was not found", requestID)
	case errors.Is(err, service.ErrSubscriptionInactive), errors.Is(err, service.ErrProjectLimitReached):
		e.write(w, http.StatusForbidden, ErrorCodeSubscriptionLimit, err.Error(), requestID)
	case errors.Is(err, service.ErrInvalidKeyPrefix):
		e.write(w, http.StatusBadRequest, ErrorCodeInvalidKeyPrefix, err.Error(), requestID)
	default:
		e.logger.Error("Request failed",
			zap.String("request_id", requestID),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		e.write(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal server error", requestID)
	}
}

// WriteValidationError writes a 400 for malformed input.
func (e *ErrorWriter) WriteValidationError(w http.ResponseWriter, message, requestID string) {
	e.write(w, http.StatusBadRequest, ErrorCodeInvalidRequest, message, requestID)
}

func (e *ErrorWriter) write(w http.ResponseWriter, statusCode int, code ErrorCode, message, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Status:    "error",
		ErrorCode: code,
		Message:   message,
		RequestID: requestID,
	}); err != nil {
		e.logger.Error("Failed to write error response", zap.Error(err))
	}
}
