// Package errors categorises failures inside the core. Categories drive logging
// and HTTP status mapping; public core operations collapse them to false/zero.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/nutrition-bot/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryNotFound represents missing users or plans
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryDatabase represents transient storage failures
	CategoryDatabase ErrorCategory = "database"
	// CategoryCache represents Redis failures
	CategoryCache ErrorCategory = "cache"
	// CategoryValidation represents malformed input
	CategoryValidation ErrorCategory = "validation"
	// CategoryConflict represents a lost conditional update
	CategoryConflict ErrorCategory = "conflict"
	// CategoryProvider represents analyzer or analytics failures
	CategoryProvider ErrorCategory = "provider"
	// CategoryAuthorization represents authorization errors
	CategoryAuthorization ErrorCategory = "authorization"
	// CategoryRateLimit represents throttled requests
	CategoryRateLimit ErrorCategory = "rate_limit"
	// CategorySystem represents everything else
	CategorySystem ErrorCategory = "system"
)

// Sentinel errors returned by the storage layer and wrapped by CategorizedError.
var (
	ErrUserNotFound     = stderrors.New("user not found")
	ErrPlanNotFound     = stderrors.New("plan not found")
	ErrNoTrialPlan      = stderrors.New("no free plan for promo code")
	ErrPromoAlreadyUsed = stderrors.New("promo code already used")
	ErrStaleDay         = stderrors.New("streak already updated for this day")
	ErrInvalidPromoCode = stderrors.New("invalid promo code")
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// NewUserNotFoundError creates a not found error for a user id
func NewUserNotFoundError(userID int64) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "USER_NOT_FOUND",
		Message:    fmt.Sprintf("user not found: %d", userID),
		Cause:      ErrUserNotFound,
		Details: map[string]interface{}{
			"userId": userID,
		},
	}
}

// NewPlanNotFoundError creates a not found error for a plan id
func NewPlanNotFoundError(planID int64) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "PLAN_NOT_FOUND",
		Message:    fmt.Sprintf("plan not found: %d", planID),
		Cause:      ErrPlanNotFound,
		Details: map[string]interface{}{
			"planId": planID,
		},
	}
}

// NewNoTrialPlanError reports a promo code without any free plan
func NewNoTrialPlanError(code string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NO_TRIAL_PLAN",
		Message:    fmt.Sprintf("no free plan for promo code %q", code),
		Cause:      ErrNoTrialPlan,
		Details: map[string]interface{}{
			"promoCode": code,
		},
	}
}

// NewPromoAlreadyUsedError reports a consumed promo code
func NewPromoAlreadyUsedError(userID int64, code string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       "PROMO_ALREADY_USED",
		Message:    fmt.Sprintf("promo code %q already used", code),
		Cause:      ErrPromoAlreadyUsed,
		Details: map[string]interface{}{
			"userId":    userID,
			"promoCode": code,
		},
	}
}

// NewValidationError creates a validation error
func NewValidationError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(retryAfter int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "rate limit exceeded",
		Details: map[string]interface{}{
			"retryAfter": retryAfter,
		},
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewCacheError creates a cache error
func NewCacheError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCache,
		StatusCode: http.StatusInternalServerError,
		Code:       "CACHE_ERROR",
		Message:    fmt.Sprintf("cache error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewProviderError creates an external provider error
func NewProviderError(provider string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryProvider,
		StatusCode: http.StatusBadGateway,
		Code:       "PROVIDER_ERROR",
		Message:    fmt.Sprintf("provider error: %s", provider),
		Cause:      cause,
		Details: map[string]interface{}{
			"provider": provider,
		},
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if stderrors.As(err, &svcErr) {
		return &CategorizedError{
			Category:   CategorySystem,
			StatusCode: http.StatusInternalServerError,
			Code:       svcErr.Code,
			Message:    svcErr.Message,
			Details:    svcErr.Details,
		}
	}

	switch {
	case stderrors.Is(err, ErrUserNotFound), stderrors.Is(err, ErrPlanNotFound), stderrors.Is(err, ErrNoTrialPlan):
		return &CategorizedError{Category: CategoryNotFound, StatusCode: http.StatusNotFound, Code: "NOT_FOUND", Message: err.Error(), Cause: err}
	case stderrors.Is(err, ErrPromoAlreadyUsed), stderrors.Is(err, ErrStaleDay):
		return &CategorizedError{Category: CategoryConflict, StatusCode: http.StatusConflict, Code: "CONFLICT", Message: err.Error(), Cause: err}
	case stderrors.Is(err, ErrInvalidPromoCode):
		return &CategorizedError{Category: CategoryValidation, StatusCode: http.StatusBadRequest, Code: "INVALID_PARAMETER", Message: err.Error(), Cause: err}
	}

	return NewInternalError("unexpected error", err)
}

// CategoryOf returns the category of err, or "" for nil.
func CategoryOf(err error) ErrorCategory {
	if catErr := Categorize(err); catErr != nil {
		return catErr.Category
	}
	return ""
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool {
	return CategoryOf(err) == CategoryNotFound
}

// IsConflict reports whether err is a lost conditional update
func IsConflict(err error) bool {
	return CategoryOf(err) == CategoryConflict
}

// IsRetryable determines if an error is retryable
func IsRetryable(err error) bool {
	switch CategoryOf(err) {
	case CategoryProvider, CategoryDatabase, CategoryCache:
		return true
	default:
		return false
	}
}
