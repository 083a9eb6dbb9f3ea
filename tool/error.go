package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	// ErrorCodeConfiguration marks a server that cannot be used as configured.
	ErrorCodeConfiguration = "CONFIGURATION_ERROR"
	// ErrorCodeDiscoveryFailure marks an unreachable or malformed discovery endpoint.
	ErrorCodeDiscoveryFailure = "DISCOVERY_FAILURE"
	// ErrorCodeExecutionFailure is returned for failed jobs and non-success responses.
	ErrorCodeExecutionFailure = "EXECUTION_FAILURE"
	// ErrorCodeTimeout is returned when the call deadline passes before a terminal status.
	ErrorCodeTimeout = "TIMEOUT"
	// ErrorCodeNotFound is returned for unknown tool names.
	ErrorCodeNotFound = "NOT_FOUND"
	// ErrorCodeUnsupportedProtocol is returned by reserved protocol handlers.
	ErrorCodeUnsupportedProtocol = "UNSUPPORTED_PROTOCOL"
	// ErrorCodeTransportFailure is returned when transport I/O fails.
	ErrorCodeTransportFailure = "TRANSPORT_FAILURE"
	// ErrorCodeDecodeFailure is returned when a response body cannot be decoded.
	ErrorCodeDecodeFailure = "DECODE_FAILURE"
	// ErrorCodeInvalidRequest is returned when a request cannot be built.
	ErrorCodeInvalidRequest = "INVALID_REQUEST"
	// ErrorCodeCancelled is returned when the caller cancels before a result arrives.
	ErrorCodeCancelled = "CANCELLED"
)

// ToolError is a structured error that carries a machine-readable code across
// handlers, the dispatcher and the bridge.
type ToolError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
	Cause     error          `json:"-"`
}

func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	code := strings.TrimSpace(e.Code)
	msg := strings.TrimSpace(e.Message)
	switch {
	case code == "" && msg == "":
		return ErrorCodeExecutionFailure
	case code == "":
		return msg
	case msg == "":
		return code
	default:
		return fmt.Sprintf("%s: %s", code, msg)
	}
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewError builds a ToolError. An empty message falls back to the cause text.
func NewError(code, message string, retryable bool, cause error) *ToolError {
	cleanCode := strings.TrimSpace(code)
	if cleanCode == "" {
		cleanCode = ErrorCodeExecutionFailure
	}
	cleanMsg := strings.TrimSpace(message)
	if cleanMsg == "" && cause != nil {
		cleanMsg = cause.Error()
	}
	return &ToolError{
		Code:      cleanCode,
		Message:   cleanMsg,
		Retryable: retryable,
		Cause:     cause,
	}
}

// WithDetails merges details into err and returns it.
func WithDetails(err *ToolError, details map[string]any) *ToolError {
	if err == nil || len(details) == 0 {
		return err
	}
	if err.Details == nil {
		err.Details = make(map[string]any, len(details))
	}
	for key, value := range details {
		err.Details[key] = value
	}
	return err
}

// AsToolError extracts a *ToolError from an error chain.
func AsToolError(err error) (*ToolError, bool) {
	if err == nil {
		return nil, false
	}
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr, true
	}
	return nil, false
}

// ErrorCode returns the code of the first ToolError in err's chain, or "".
func ErrorCode(err error) string {
	if toolErr, ok := AsToolError(err); ok && toolErr != nil {
		return toolErr.Code
	}
	return ""
}

// ErrorCodeOrDefault returns ErrorCode(err), or fallback when err carries none.
func ErrorCodeOrDefault(err error, fallback string) string {
	if code := ErrorCode(err); code != "" {
		return code
	}
	if strings.TrimSpace(fallback) == "" {
		return ErrorCodeExecutionFailure
	}
	return fallback
}

// IsNotFound reports whether err is an unknown-tool error.
func IsNotFound(err error) bool { return ErrorCode(err) == ErrorCodeNotFound }

// IsTimeout reports whether err is a deadline expiry while waiting for a result.
func IsTimeout(err error) bool { return ErrorCode(err) == ErrorCodeTimeout }

// IsExecutionFailure reports whether err is an upstream execution failure.
func IsExecutionFailure(err error) bool { return ErrorCode(err) == ErrorCodeExecutionFailure }

// IsConfigurationError reports whether err is a server configuration error.
func IsConfigurationError(err error) bool { return ErrorCode(err) == ErrorCodeConfiguration }

// IsCancelled reports whether err is a caller cancellation.
func IsCancelled(err error) bool { return ErrorCode(err) == ErrorCodeCancelled }

// transportError classifies a failed HTTP exchange. Context expiry keeps its
// identity so the dispatcher can tell a deadline from a broken connection.
func transportError(op string, err error) *ToolError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(ErrorCodeTimeout, op+": deadline exceeded", true, err)
	case errors.Is(err, context.Canceled):
		return NewError(ErrorCodeCancelled, op+": cancelled", false, err)
	default:
		return NewError(ErrorCodeTransportFailure, fmt.Sprintf("%s: %v", op, err), true, err)
	}
}
