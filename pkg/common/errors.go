package common

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds shared by every component. AppError unwraps to one of these so
// callers can branch with errors.Is.
var (
	ErrNetwork               = errors.New("network error")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrNotFound              = errors.New("resource not found")
	ErrValidation            = errors.New("validation error")
	ErrDecode                = errors.New("decode error")
	ErrLocationUnresolved    = errors.New("location unresolved")
	ErrAlreadyInProgress     = errors.New("already in progress")
	ErrRouteUnavailable      = errors.New("route unavailable")
	ErrAnnotationUnavailable = errors.New("safety annotation unavailable")
	ErrInvalidTransition     = errors.New("invalid state transition")
	ErrInternalServer        = errors.New("internal server error")
)

// AppError represents an application error with HTTP status code
type AppError struct {
	Code      int    `json:"code"`
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message"`
	Err       error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil && e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap exposes the wrapped kind or cause.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{
		Code:      code,
		ErrorCode: errorCodeFor(err),
		Message:   message,
		Err:       err,
	}
}

// wrapKind joins a kind sentinel with an optional underlying cause.
func wrapKind(kind, cause error) error {
	if cause == nil {
		return kind
	}
	if errors.Is(cause, kind) {
		return cause
	}
	return fmt.Errorf("%w: %w", kind, cause)
}

func NewNetworkError(message string, cause error) *AppError {
	return NewAppError(http.StatusBadGateway, message, wrapKind(ErrNetwork, cause))
}

func NewUnauthorizedError(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, message, ErrUnauthorized)
}

// NewAuthError reports a credential the upstream refused.
func NewAuthError(message string, cause error) *AppError {
	return NewAppError(http.StatusUnauthorized, message, wrapKind(ErrUnauthorized, cause))
}

func NewNotFoundError(message string, cause error) *AppError {
	return NewAppError(http.StatusNotFound, message, wrapKind(ErrNotFound, cause))
}

func NewValidationError(message string) *AppError {
	return NewAppError(http.StatusBadRequest, message, ErrValidation)
}

func NewDecodeError(message string, cause error) *AppError {
	return NewAppError(http.StatusUnprocessableEntity, message, wrapKind(ErrDecode, cause))
}

func NewLocationUnresolvedError(message string, cause error) *AppError {
	return NewAppError(http.StatusServiceUnavailable, message, wrapKind(ErrLocationUnresolved, cause))
}

func NewAlreadyInProgressError(message string) *AppError {
	return NewAppError(http.StatusConflict, message, ErrAlreadyInProgress)
}

func NewRouteUnavailableError(message string, cause error) *AppError {
	return NewAppError(http.StatusBadGateway, message, wrapKind(ErrRouteUnavailable, cause))
}

func NewAnnotationUnavailableError(message string, cause error) *AppError {
	return NewAppError(http.StatusBadGateway, message, wrapKind(ErrAnnotationUnavailable, cause))
}

func NewInvalidTransitionError(message string) *AppError {
	return NewAppError(http.StatusConflict, message, ErrInvalidTransition)
}

func NewInternalError(message string, cause error) *AppError {
	return NewAppError(http.StatusInternalServerError, message, wrapKind(ErrInternalServer, cause))
}

// errorCodeFor returns the stable machine-readable code for an error kind.
func errorCodeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLocationUnresolved):
		return "LOCATION_UNRESOLVED"
	case errors.Is(err, ErrAlreadyInProgress):
		return "ALREADY_IN_PROGRESS"
	case errors.Is(err, ErrRouteUnavailable):
		return "ROUTE_UNAVAILABLE"
	case errors.Is(err, ErrAnnotationUnavailable):
		return "ANNOTATION_UNAVAILABLE"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrValidation):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrDecode):
		return "DECODE_ERROR"
	case errors.Is(err, ErrNetwork):
		return "NETWORK_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}
