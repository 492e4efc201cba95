package errors

import (
	"net/http"
)

type ErrorType string

const (
	ErrorTypeNotFound   ErrorType = "NOT_FOUND"
	ErrorTypeValidation ErrorType = "VALIDATION"
	ErrorTypeStorage    ErrorType = "STORAGE"
	ErrorTypeConflict   ErrorType = "CONFLICT"
	ErrorTypeScope      ErrorType = "SCOPE"
)

type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Details any       `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

func NotFound(message string) *Error {
	return &Error{
		Type:    ErrorTypeNotFound,
		Message: message,
		Code:    http.StatusNotFound,
	}
}

func ValidationError(message string, details any) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Message: message,
		Code:    http.StatusBadRequest,
		Details: details,
	}
}

func StorageError(message string, details any) *Error {
	return &Error{
		Type:    ErrorTypeStorage,
		Message: message,
		Code:    http.StatusInsufficientStorage,
		Details: details,
	}
}

func Conflict(message string) *Error {
	return &Error{
		Type:    ErrorTypeConflict,
		Message: message,
		Code:    http.StatusConflict,
	}
}

// ScopeError marks operations attempted outside, or against, the currently
// bound (repository, branch) scope: unbound access and import mismatches.
func ScopeError(message string) *Error {
	return &Error{
		Type:    ErrorTypeScope,
		Message: message,
		Code:    http.StatusPreconditionFailed,
	}
}

// IsType reports whether err is an *Error of the given type.
func IsType(err error, t ErrorType) bool {
	e, ok := err.(*Error)
	return ok && e.Type == t
}
