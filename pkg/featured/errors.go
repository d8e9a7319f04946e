package featured

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind string

const (
	KindConfig      Kind = "CONFIG"
	KindAuth        Kind = "AUTH"
	KindValidation  Kind = "VALIDATION"
	KindNotFound    Kind = "NOT_FOUND"
	KindRateLimited Kind = "RATE_LIMITED"
	KindUpstream    Kind = "UPSTREAM"
	KindPersistence Kind = "PERSISTENCE"
)

// Error is a classified error with a stable code and HTTP status.
//
// Two Errors match under errors.Is when Kind and Code are equal, so a
// sentinel still matches after WithCause or WithResetAt produced a copy.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Status  int
	// ResetAt is set for RATE_LIMITED errors.
	ResetAt *time.Time
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Code == e.Code
}

// WithCause returns a copy of e wrapping err.
func (e *Error) WithCause(err error) *Error {
	c := *e
	c.Err = err
	return &c
}

// WithResetAt returns a copy of e carrying the window reset time.
func (e *Error) WithResetAt(t time.Time) *Error {
	c := *e
	c.ResetAt = &t
	return &c
}

// NewError builds a classified error. Status defaults from the kind.
func NewError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Status: statusForKind(kind)}
}

func statusForKind(kind Kind) int {
	switch kind {
	case KindConfig:
		return http.StatusServiceUnavailable
	case KindAuth:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUpstream:
		return http.StatusBadGateway
	case KindPersistence:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

var (
	// ErrJobNotFound is returned when the job does not exist.
	ErrJobNotFound = NewError(KindNotFound, "JOB_NOT_FOUND", "job not found")

	// ErrPurchaseNotFound is returned when no purchase matches the session id.
	ErrPurchaseNotFound = NewError(KindNotFound, "PURCHASE_NOT_FOUND", "purchase not found")

	// ErrForbidden is returned when the caller does not own the job.
	ErrForbidden = NewError(KindAuth, "FORBIDDEN", "job is not owned by this employer")

	// ErrUnauthorized is returned when no principal was resolved.
	ErrUnauthorized = &Error{Kind: KindAuth, Code: "UNAUTHORIZED", Message: "authentication required", Status: http.StatusUnauthorized}

	// ErrRateLimited is returned when the caller exceeded its window.
	ErrRateLimited = NewError(KindRateLimited, "RATE_LIMITED", "too many requests")

	// ErrInvalidRequest is returned for malformed request bodies.
	ErrInvalidRequest = NewError(KindValidation, "INVALID_REQUEST", "invalid request")

	// ErrStorage is returned when the store of record fails.
	ErrStorage = NewError(KindPersistence, "DB_ERROR", "database error")

	// ErrSearchNotConfigured is returned when an operation needs a search backend.
	ErrSearchNotConfigured = NewError(KindConfig, "SEARCH_NOT_CONFIGURED", "search backend not configured")

	// ErrSearchUnavailable is returned when the search backend call failed.
	ErrSearchUnavailable = NewError(KindUpstream, "SEARCH_ERROR", "search backend error")
)

// KindOf returns the kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StatusOf returns the HTTP status for err. Unclassified errors map to 500.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}

// CodeOf returns the stable error code for err.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL"
}

// ErrorResponse is the JSON error envelope shared by every HTTP surface.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the stable code, message and optional reset time.
type ErrorBody struct {
	Code    string     `json:"code"`
	Message string     `json:"message"`
	ResetAt *time.Time `json:"resetAt,omitempty"`
}

// NewErrorResponse builds the envelope for err. Unclassified errors get a
// generic message so internal details do not leak.
func NewErrorResponse(err error) ErrorResponse {
	var e *Error
	if errors.As(err, &e) {
		return ErrorResponse{Error: ErrorBody{Code: e.Code, Message: e.Message, ResetAt: e.ResetAt}}
	}
	return ErrorResponse{Error: ErrorBody{Code: "INTERNAL", Message: "internal error"}}
}
