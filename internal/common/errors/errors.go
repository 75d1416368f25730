// Package errors provides standardized error handling for the notification core.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeTemplateNotFound ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeTemplateInvalid  ErrorCode = "TEMPLATE_INVALID"
	ErrCodeMissingVariable  ErrorCode = "MISSING_VARIABLE"

	ErrCodePreferenceInvalid    ErrorCode = "PREFERENCE_INVALID"
	ErrCodePreferenceLoadFailed ErrorCode = "PREFERENCE_LOAD_FAILED"
	ErrCodePreferenceSaveFailed ErrorCode = "PREFERENCE_SAVE_FAILED"

	ErrCodeEventInvalid        ErrorCode = "EVENT_INVALID"
	ErrCodeTransportSendFailed ErrorCode = "TRANSPORT_SEND_FAILED"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeIndexWriteFailed         ErrorCode = "INDEX_WRITE_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// HasCode reports whether err is a StandardError carrying the given code.
func HasCode(err error, code ErrorCode) bool {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// AsStandard is errors.As specialized to StandardError, for callers that
// import this package under the errors name.
func AsStandard(err error, target **StandardError) bool {
	return stderrors.As(err, target)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewTemplateNotFoundError creates a non-retryable template lookup error.
// A missing template is a configuration bug; retrying cannot change the outcome.
func NewTemplateNotFoundError(eventType, channel string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateNotFound,
		Message:   "Template not registered",
		Details:   fmt.Sprintf("eventType: %s, channel: %s", eventType, channel),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTemplateInvalidError creates a non-retryable template registration error.
func NewTemplateInvalidError(templateID, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateInvalid,
		Message:   "Template rejected at registration",
		Details:   fmt.Sprintf("templateId: %s, %s", templateID, details),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMissingVariableError creates a deterministic render-time error. The same
// context always fails the same way, so it is never retryable.
func NewMissingVariableError(name string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMissingVariable,
		Message:   "Required template variable absent from context",
		Details:   fmt.Sprintf("variable: %s", name),
		Retryable: false,
		Metadata:  map[string]interface{}{"variable": name},
		Timestamp: time.Now().UTC(),
	}
}

// NewPreferenceInvalidError creates a non-retryable preference update error.
func NewPreferenceInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodePreferenceInvalid,
		Message:   "Preference update rejected",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPreferenceLoadFailedError creates a retryable preference store error.
func NewPreferenceLoadFailedError(recipientID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePreferenceLoadFailed,
		Message:   "Preference load failed",
		Details:   fmt.Sprintf("recipientId: %s, error: %s", recipientID, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewPreferenceSaveFailedError creates a retryable preference store error.
func NewPreferenceSaveFailedError(recipientID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePreferenceSaveFailed,
		Message:   "Preference save failed",
		Details:   fmt.Sprintf("recipientId: %s, error: %s", recipientID, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewEventInvalidError creates a non-retryable event validation error.
func NewEventInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeEventInvalid,
		Message:   "Notification event rejected",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTransportSendFailedError creates a retryable transport error. Retry
// policy belongs to the transport provider, not this core.
func NewTransportSendFailedError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTransportSendFailed,
		Message:   "Transport hand-off failed",
		Details:   fmt.Sprintf("channel: %s, error: %s", channel, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryExecutionFailed,
		Message:   "Database query execution error",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewIndexWriteFailedError creates a retryable search index error.
func NewIndexWriteFailedError(index string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeIndexWriteFailed,
		Message:   "Search index write error",
		Details:   fmt.Sprintf("index: %s, error: %s", index, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}
