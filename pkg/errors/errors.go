package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError provides a structured error that can be rendered to API consumers.
// Internal carries the wrapped cause for logging; it is never serialised.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}
	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}
	cpy := *e
	cpy.Internal = err
	return &cpy
}

// New builds a new application error with the provided metadata.
func New(code, message string, statusCode int) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: statusCode}
}

// Sentinels shared across services. Compared by identity, so callers must
// return them directly or via WithInternal copies matched with errors.As.
var (
	ErrUnauthorized       = New("UNAUTHORIZED", "Authentication required", http.StatusUnauthorized)
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", "Invalid email or password", http.StatusUnauthorized)
	ErrEmailNotVerified   = New("EMAIL_NOT_VERIFIED", "Email address has not been verified", http.StatusUnauthorized)
	ErrInvalidToken       = New("INVALID_TOKEN", "Token is invalid or has expired", http.StatusUnauthorized)
	ErrForbidden          = New("FORBIDDEN", "Permission denied", http.StatusForbidden)
	ErrNotFound           = New("NOT_FOUND", "Resource not found", http.StatusNotFound)
	ErrBadRequest         = New("BAD_REQUEST", "Invalid request", http.StatusBadRequest)
	ErrDuplicateEmail     = New("DUPLICATE_EMAIL", "Email address is already registered", http.StatusConflict)
	ErrDuplicateUsername  = New("DUPLICATE_USERNAME", "Username is already taken", http.StatusConflict)
	ErrAlreadyMember      = New("ALREADY_MEMBER", "User is already a member of this team", http.StatusConflict)
	ErrInternalServer     = New("INTERNAL_SERVER_ERROR", "Internal server error", http.StatusInternalServerError)
)

// NewBadRequest builds a 400 with a caller-supplied message, typically from
// request validation.
func NewBadRequest(message string) *AppError {
	return New(ErrBadRequest.Code, message, ErrBadRequest.StatusCode)
}

// Wrap turns any error into an AppError while keeping the original for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// FromError converts a generic error into an AppError, defaulting to
// ErrInternalServer so unexpected failures never leak detail to clients.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}
