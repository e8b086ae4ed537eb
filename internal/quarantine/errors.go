package quarantine

import (
	"fmt"

	errors "github.com/Laisky/errors/v2"
)

// ErrorCode identifies a machine-stable quarantine error code.
type ErrorCode string

const (
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodePayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"
	ErrCodeStorageFailure  ErrorCode = "STORAGE_FAILURE"
	ErrCodeScanUnavailable ErrorCode = "SCAN_UNAVAILABLE"
	ErrCodeResourceBusy    ErrorCode = "RESOURCE_BUSY"
	ErrCodeNotDownloadable ErrorCode = "NOT_DOWNLOADABLE"
	ErrCodeInvalidState    ErrorCode = "INVALID_STATE"
)

// Error captures a typed quarantine error with retryability metadata.
type Error struct {
	Code      ErrorCode
	Message   string
	Retryable bool
}

// Error returns the error message.
func (e *Error) Error() string {
	if e == nil {
		return "quarantine error: <nil>"
	}
	if e.Message == "" {
		return fmt.Sprintf("quarantine error: %s", e.Code)
	}
	return e.Message
}

// NewError constructs a typed quarantine error.
func NewError(code ErrorCode, message string, retryable bool) *Error {
	return &Error{Code: code, Message: message, Retryable: retryable}
}

// AsError extracts a typed quarantine error from the error chain.
func AsError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed, true
	}
	return nil, false
}

// IsCode reports whether the error chain contains the given code.
func IsCode(err error, code ErrorCode) bool {
	if typed, ok := AsError(err); ok {
		return typed.Code == code
	}
	return false
}
