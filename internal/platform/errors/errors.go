package errors

import (
	"errors"

	"google.golang.org/grpc/status"
)

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Internal message (for logs/telemetry)
	Metadata map[string]string // Additional context, e.g. field → violation
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a simple domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WithMetadata creates a domain error with per-field metadata.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Metadata: metadata,
	}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode extracts the error code from any error.
// Returns CodeUnknown if the error is not a domain error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// GetMetadata extracts metadata from an error if present.
// Returns nil if the error is not a domain error or has no metadata.
func GetMetadata(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Metadata
	}
	return nil
}

// ToGRPCStatus converts the error to a gRPC status carrying the internal
// message. Callers presenting to users should pair this with UserMessage.
func (e *Error) ToGRPCStatus() error {
	return status.Error(e.Code.GRPCCode(), e.Message)
}

// UserMessage maps any error to one of the human-readable message classes.
// Raw backend error text is never included.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	code := GetCode(err)
	switch code.GRPCCode().String() {
	case "InvalidArgument":
		return "Some of the entered values are invalid. Please review and try again."
	case "FailedPrecondition", "NotFound", "Aborted":
		return "That change conflicts with the current plan state. Reload and try again."
	case "Unauthenticated", "PermissionDenied":
		return "Your session has expired. Please sign in again."
	case "Unavailable", "DeadlineExceeded":
		return "The service is taking too long to respond. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}
