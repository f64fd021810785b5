package provider

import "fmt"

// ErrorKind is the typed taxonomy the agent loop's retry authority
// dispatches on. Providers classify their own wire-level errors into
// this set; the loop never inspects vendor-specific status codes.
type ErrorKind string

const (
	ErrUnauthorized ErrorKind = "unauthorized"
	ErrRateLimited  ErrorKind = "rate_limited"
	ErrBadRequest   ErrorKind = "bad_request"
	ErrServiceError ErrorKind = "service_error"
	ErrNetwork      ErrorKind = "network"
	ErrOther        ErrorKind = "other"
)

// Error is the normalized error type every adapter returns instead of
// a raw HTTP or transport error.
type Error struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	Message    string
	RetryAfter int // seconds, 0 if unspecified
	Cause      error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the agent loop's backoff authority should
// retry this error at all. Bad requests and auth failures never are.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case ErrRateLimited, ErrServiceError, ErrNetwork:
		return true
	default:
		return false
	}
}

// classifyStatus maps an HTTP status code to an ErrorKind. Shared by
// every HTTP-based adapter.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return ErrUnauthorized
	case status == 429:
		return ErrRateLimited
	case status >= 400 && status < 500:
		return ErrBadRequest
	case status >= 500:
		return ErrServiceError
	default:
		return ErrOther
	}
}
