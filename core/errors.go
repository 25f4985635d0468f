package core

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrBackendNotConfigured = errors.New("completion backend not configured")
	ErrAgentNotFound        = errors.New("agent not found")
	ErrInvalidUpdate        = errors.New("invalid agent update")
	ErrCallLimitExceeded    = errors.New("exceeded max backend calls")
	ErrRunNotFound          = errors.New("run not found")
	ErrEmptyDocument        = errors.New("empty document")
)

// ErrorCode is a stable machine-readable error classification.
type ErrorCode string

const (
	CodeBackendNotConfigured ErrorCode = "BACKEND_NOT_CONFIGURED"
	CodeAgentTimeout         ErrorCode = "AGENT_TIMEOUT"
	CodeAgentBackendError    ErrorCode = "AGENT_BACKEND_ERROR"
	CodeAgentParseError      ErrorCode = "AGENT_PARSE_ERROR"
	CodeAgentSchemaError     ErrorCode = "AGENT_SCHEMA_ERROR"
	CodeCallLimitExceeded    ErrorCode = "CALL_LIMIT_EXCEEDED"
	CodePreprocessFailed     ErrorCode = "PREPROCESS_FAILED"
	CodeUnknown              ErrorCode = "UNKNOWN_ERROR"
)

// Error is a coded error carrying an optional cause.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// NewError creates a coded error.
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// ErrorCodeOf classifies err into an ErrorCode.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var ce *Error
	switch {
	case errors.As(err, &ce):
		return ce.Code
	case errors.Is(err, ErrBackendNotConfigured):
		return CodeBackendNotConfigured
	case errors.Is(err, ErrCallLimitExceeded):
		return CodeCallLimitExceeded
	case errors.Is(err, context.DeadlineExceeded):
		return CodeAgentTimeout
	default:
		return CodeUnknown
	}
}
