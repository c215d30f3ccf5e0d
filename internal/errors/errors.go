package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Registry resolution (user-correctable, surfaced verbatim)
	ErrCodeNoAccounts     ErrorCode = "NO_ACCOUNTS"
	ErrCodeUnknownAccount ErrorCode = "UNKNOWN_ACCOUNT"
	ErrCodeInvalidIndex   ErrorCode = "INVALID_INDEX"

	// Extraction pipeline (surfaced as a generic retry notice, detail logged)
	ErrCodeExtractionExhausted ErrorCode = "EXTRACTION_EXHAUSTED"
	ErrCodeNoJSONFound         ErrorCode = "NO_JSON_FOUND"
	ErrCodeMalformedJSON       ErrorCode = "MALFORMED_JSON"

	// Commit (per candidate, never aborts siblings)
	ErrCodeCommitFailed ErrorCode = "COMMIT_FAILED"

	// Persistence (logged only, never surfaced)
	ErrCodePersistenceWrite ErrorCode = "PERSISTENCE_WRITE_FAILED"

	// Authorization flow
	ErrCodeInvalidState ErrorCode = "INVALID_AUTH_STATE"

	// Validation
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeExternal ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

// AppError is a structured error that can be surfaced to the chat user
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func NoAccounts() *AppError {
	return New(ErrCodeNoAccounts, "No calendar accounts are connected")
}

func UnknownAccount(accountID int) *AppError {
	return New(ErrCodeUnknownAccount, fmt.Sprintf("Account %d is not connected", accountID))
}

// InvalidIndex names the valid range so the user can correct the reference.
func InvalidIndex(index, max int) *AppError {
	return New(ErrCodeInvalidIndex, fmt.Sprintf("Calendar index %d is out of range (valid: 1-%d)", index, max))
}

func ExtractionExhausted() *AppError {
	return New(ErrCodeExtractionExhausted, "All generation backends failed")
}

func NoJSONFound() *AppError {
	return New(ErrCodeNoJSONFound, "No JSON payload found in backend response")
}

func MalformedJSON(cause error) *AppError {
	return Wrap(ErrCodeMalformedJSON, "Backend response contained unparseable JSON", cause)
}

func CommitFailed(title string, cause error) *AppError {
	return Wrap(ErrCodeCommitFailed, fmt.Sprintf("Failed to create event %q", title), cause)
}

func InvalidAuthState() *AppError {
	return New(ErrCodeInvalidState, "Invalid or expired authorization state")
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func External(service string, cause error) *AppError {
	return Wrap(ErrCodeExternal, fmt.Sprintf("External service error: %s", service), cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}
