// Package errors provides custom error types for the Moara API.
// All service-layer errors should use AppError to ensure consistent,
// secure error responses that never leak internal details to clients.
package errors

import "net/http"

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, and optional internal error.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string { return e.Message }

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// General errors.
var (
	ErrUnauthorized   = &AppError{Code: "UNAUTHORIZED", Message: "Authentication required", StatusCode: http.StatusUnauthorized}
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// Account and ledger errors.
var (
	ErrAccountNotFound     = &AppError{Code: "ACCOUNT_NOT_FOUND", Message: "Account not found", StatusCode: http.StatusNotFound}
	ErrAccountInactive     = &AppError{Code: "ACCOUNT_INACTIVE", Message: "Account is inactive", StatusCode: http.StatusBadRequest}
	ErrInvalidAmount       = &AppError{Code: "INVALID_AMOUNT", Message: "Amount must be positive with at most two decimal places", StatusCode: http.StatusBadRequest}
	ErrInsufficientBalance = &AppError{Code: "INSUFFICIENT_BALANCE", Message: "Insufficient account balance", StatusCode: http.StatusBadRequest}
	ErrLimitExceeded       = &AppError{Code: "LIMIT_EXCEEDED", Message: "Transfer limit exceeded", StatusCode: http.StatusBadRequest}
	ErrSameAccountTransfer = &AppError{Code: "SAME_ACCOUNT_TRANSFER", Message: "Cannot transfer to the same account", StatusCode: http.StatusBadRequest}
)

// Savings plan errors.
var (
	ErrPlanNotFound       = &AppError{Code: "PLAN_NOT_FOUND", Message: "Savings plan not found", StatusCode: http.StatusNotFound}
	ErrPlanInactive       = &AppError{Code: "PLAN_INACTIVE", Message: "Savings plan is inactive", StatusCode: http.StatusBadRequest}
	ErrPlanAccountMissing = &AppError{Code: "PLAN_ACCOUNT_MISSING", Message: "Savings plan references a missing account", StatusCode: http.StatusConflict}
	ErrMissingCadenceDay  = &AppError{Code: "MISSING_CADENCE_DAY", Message: "Cadence requires a day of month or weekday", StatusCode: http.StatusBadRequest}
	ErrInvalidPlanWindow  = &AppError{Code: "INVALID_PLAN_WINDOW", Message: "Plan end date must not precede start date", StatusCode: http.StatusBadRequest}
)

// Schedule and settlement errors.
var (
	ErrScheduleNotFound     = &AppError{Code: "SCHEDULE_NOT_FOUND", Message: "Schedule item not found", StatusCode: http.StatusNotFound}
	ErrScheduleNotRetryable = &AppError{Code: "SCHEDULE_NOT_RETRYABLE", Message: "Only failed schedule items can be retried", StatusCode: http.StatusConflict}
	ErrSettlementNotFound   = &AppError{Code: "SETTLEMENT_NOT_FOUND", Message: "Settlement record not found", StatusCode: http.StatusNotFound}
	ErrGatewayFailed        = &AppError{Code: "GATEWAY_FAILED", Message: "Banking gateway rejected the transfer", StatusCode: http.StatusBadGateway}
)
