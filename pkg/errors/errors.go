package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code for stable testing and
// programmatic handling. Codes, not messages, are the contract.
type ErrorCode string

const (
	// General errors
	ErrUnknown      ErrorCode = "UNKNOWN"
	ErrInternal     ErrorCode = "INTERNAL"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrNotFound     ErrorCode = "NOT_FOUND"

	// Content store errors
	ErrHashMismatch    ErrorCode = "HASH_MISMATCH"
	ErrContentNotFound ErrorCode = "CONTENT_NOT_FOUND"

	// Materialization errors
	ErrCrossVolume          ErrorCode = "CROSS_VOLUME"
	ErrPlatformNotSupported ErrorCode = "PLATFORM_NOT_SUPPORTED"
	ErrAccessDenied         ErrorCode = "ACCESS_DENIED"
	ErrInsufficientSpace    ErrorCode = "INSUFFICIENT_SPACE"

	// Manifest errors
	ErrManifestInvalid ErrorCode = "MANIFEST_INVALID"

	// Reconciliation errors
	ErrRequiredFileUnresolvable ErrorCode = "REQUIRED_FILE_UNRESOLVABLE"

	// Workspace errors
	ErrWorkspaceBusy    ErrorCode = "WORKSPACE_BUSY"
	ErrWorkspaceInvalid ErrorCode = "WORKSPACE_INVALID"
	ErrDownloadFailed   ErrorCode = "DOWNLOAD_FAILED"

	// Persisted state errors
	ErrStateLoad ErrorCode = "STATE_LOAD"
	ErrStateSave ErrorCode = "STATE_SAVE"
)

// LoadoutError represents a structured error with code and details.
type LoadoutError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *LoadoutError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *LoadoutError) Unwrap() error {
	return e.Wrapped
}

// Is matches two LoadoutErrors by code, so errors.Is can be used with
// sentinel values created by New.
func (e *LoadoutError) Is(target error) bool {
	var targetErr *LoadoutError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new LoadoutError with the given code and message
func New(code ErrorCode, message string) *LoadoutError {
	return &LoadoutError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new LoadoutError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *LoadoutError {
	return &LoadoutError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with a LoadoutError
func Wrap(err error, code ErrorCode, message string) *LoadoutError {
	if err == nil {
		return nil
	}
	return &LoadoutError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *LoadoutError {
	if err == nil {
		return nil
	}
	return &LoadoutError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *LoadoutError) WithDetail(key string, value interface{}) *LoadoutError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var lerr *LoadoutError
	if errors.As(err, &lerr) {
		return lerr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if not a LoadoutError
func GetErrorCode(err error) ErrorCode {
	var lerr *LoadoutError
	if errors.As(err, &lerr) {
		return lerr.Code
	}
	return ErrUnknown
}

// GetErrorDetails returns the details from an error, or nil if not a LoadoutError
func GetErrorDetails(err error) map[string]interface{} {
	var lerr *LoadoutError
	if errors.As(err, &lerr) {
		return lerr.Details
	}
	return nil
}
