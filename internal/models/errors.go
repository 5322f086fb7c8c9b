package models

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Criptoruim/jackalmultibuy/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorCode represents standardized error codes
type ErrorCode string

const (
	// Authentication errors
	ErrorCodeMissingAPIKey  ErrorCode = "MISSING_API_KEY"
	ErrorCodeInvalidAPIKey  ErrorCode = "INVALID_API_KEY"
	ErrorCodeInactiveAPIKey ErrorCode = "INACTIVE_API_KEY"

	// Rate limiting errors
	ErrorCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Validation errors
	ErrorCodeInvalidRequest   ErrorCode = "INVALID_REQUEST"
	ErrorCodeInvalidWallet    ErrorCode = "INVALID_WALLET_ADDRESS"
	ErrorCodeEmptyWalletArray ErrorCode = "EMPTY_WALLET_ARRAY"
	ErrorCodeMalformedJSON    ErrorCode = "MALFORMED_JSON"

	// Backend errors
	ErrorCodeBackendSetup   ErrorCode = "BACKEND_SETUP_FAILED"
	ErrorCodePurchaseFailed ErrorCode = "PURCHASE_FAILED"
	ErrorCodeWalletConnect  ErrorCode = "WALLET_CONNECT_FAILED"
	ErrorCodeIdempotencyKey ErrorCode = "IDEMPOTENCY_KEY_REUSED"

	// Internal errors
	ErrorCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrorCodeDatabaseError ErrorCode = "DATABASE_ERROR"
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// HTTPStatusCode returns the HTTP status code for each error code
func (e ErrorCode) HTTPStatusCode() int {
	switch e {
	case ErrorCodeMissingAPIKey, ErrorCodeInvalidAPIKey, ErrorCodeInactiveAPIKey:
		return http.StatusUnauthorized
	case ErrorCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrorCodeInvalidRequest, ErrorCodeInvalidWallet, ErrorCodeEmptyWalletArray, ErrorCodeMalformedJSON:
		return http.StatusBadRequest
	case ErrorCodeBackendSetup:
		return http.StatusServiceUnavailable
	case ErrorCodePurchaseFailed, ErrorCodeWalletConnect:
		return http.StatusBadGateway
	case ErrorCodeIdempotencyKey:
		return http.StatusConflict
	case ErrorCodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ValidationError is raised for malformed input before any backend call
type ValidationError struct {
	Field   string
	Message string
	// Index is the position of the offending address, -1 when not address-specific
	Index int
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message, Index: -1}
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Code picks the most specific error code for the failed field
func (e *ValidationError) Code() ErrorCode {
	switch {
	case e.Field == "target_addresses" && e.Index >= 0:
		return ErrorCodeInvalidWallet
	case e.Field == "target_addresses":
		return ErrorCodeEmptyWalletArray
	default:
		return ErrorCodeInvalidRequest
	}
}

// BackendSetupError means the storage backend session could not be established
type BackendSetupError struct {
	Step  string
	Cause error
}

func (e *BackendSetupError) Error() string {
	return fmt.Sprintf("storage backend setup failed at %s: %v", e.Step, e.Cause)
}

func (e *BackendSetupError) Unwrap() error {
	return e.Cause
}

// TotalFailureError is returned when no target wallet received a plan.
// Outcomes carries every per-address failure.
type TotalFailureError struct {
	Outcomes []PurchaseOutcome
}

func (e *TotalFailureError) Error() string {
	return fmt.Sprintf("failed to purchase storage for any wallet (%d attempted)", len(e.Outcomes))
}

// ErrPurchaseNotFound is returned when no record exists for a batch ID
var ErrPurchaseNotFound = errors.New("purchase record not found")

func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

func IsBackendSetupError(err error) bool {
	var serr *BackendSetupError
	return errors.As(err, &serr)
}

func IsTotalFailure(err error) bool {
	var terr *TotalFailureError
	return errors.As(err, &terr)
}

// ErrorDetail represents detailed error information
type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

// ErrorResponse represents the standardized error response format
type ErrorResponse struct {
	Error         ErrorDetail       `json:"error"`
	Outcomes      []PurchaseOutcome `json:"outcomes,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
	CorrelationID string            `json:"correlation_id,omitempty"`
}

// AppError is an error carrying everything needed to render an HTTP response
type AppError struct {
	Code       ErrorCode
	Message    string
	Details    string
	Cause      error
	Outcomes   []PurchaseOutcome
	Context    map[string]interface{}
	StatusCode int
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: code.HTTPStatusCode(),
		Context:    make(map[string]interface{}),
	}
}

func NewAppErrorWithCause(code ErrorCode, message string, cause error) *AppError {
	appErr := NewAppError(code, message)
	appErr.Cause = cause
	return appErr
}

func NewAppErrorWithDetails(code ErrorCode, message, details string) *AppError {
	appErr := NewAppError(code, message)
	appErr.Details = details
	return appErr
}

// ToAppError maps domain errors onto their API representation
func ToAppError(err error) *AppError {
	var (
		appErr   *AppError
		verr     *ValidationError
		setupErr *BackendSetupError
		totalErr *TotalFailureError
	)
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.As(err, &verr):
		return NewAppErrorWithDetails(verr.Code(), verr.Message, verr.Field)
	case errors.Is(err, ErrPurchaseNotFound):
		return NewAppError(ErrorCodeNotFound, "Purchase record not found")
	case errors.As(err, &setupErr):
		return NewAppErrorWithCause(ErrorCodeBackendSetup, "Storage backend unavailable", setupErr)
	case errors.As(err, &totalErr):
		appErr = NewAppErrorWithDetails(ErrorCodePurchaseFailed, "Failed to purchase storage for any wallet", totalErr.Error())
		appErr.Outcomes = totalErr.Outcomes
		return appErr
	default:
		return NewAppErrorWithCause(ErrorCodeInternalError, "Internal server error", err)
	}
}

// HandleError logs err and writes the matching JSON error response
func HandleError(c *gin.Context, err error, log *logger.Logger) {
	appErr := ToAppError(err)
	correlationID := logger.GetCorrelationIDFromContext(c.Request.Context())

	appErr.WithContext("method", c.Request.Method).
		WithContext("path", c.Request.URL.Path).
		WithContext("client_ip", c.ClientIP())

	if log != nil {
		fields := []zap.Field{
			zap.String("error_code", string(appErr.Code)),
			zap.String("error_message", appErr.Message),
			zap.Any("error_context", appErr.Context),
		}
		if appErr.Cause != nil {
			fields = append(fields, zap.Error(appErr.Cause))
		}
		if appErr.StatusCode >= 500 {
			log.Error("Application error", fields...)
		} else {
			log.Warn("Client error", fields...)
		}
	}

	c.JSON(appErr.StatusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		},
		Outcomes:      appErr.Outcomes,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
	})
}
