package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/nutrition-bot/internal/errors"
	"github.com/nutrition-bot/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	_ = json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// Common error codes
const (
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeRateLimited        = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// mapServiceError maps service errors to HTTP status codes.
func mapServiceError(err error) (int, string, string) {
	catErr := apperrors.Categorize(err)
	if catErr == nil {
		return http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred"
	}

	switch catErr.Category {
	case apperrors.CategoryNotFound:
		return http.StatusNotFound, ErrCodeNotFound, catErr.Message
	case apperrors.CategoryValidation:
		return http.StatusBadRequest, ErrCodeInvalidInput, catErr.Message
	case apperrors.CategoryConflict:
		return http.StatusConflict, ErrCodeConflict, catErr.Message
	case apperrors.CategoryAuthorization:
		return http.StatusUnauthorized, ErrCodeUnauthorized, catErr.Message
	case apperrors.CategoryDatabase, apperrors.CategoryCache, apperrors.CategoryProvider:
		return http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "A dependency is unavailable"
	default:
		return http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred"
	}
}
