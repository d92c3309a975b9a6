package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies backend failures for the retry policy.
type ErrorKind string

const (
	KindRateLimited ErrorKind = "rate_limited"
	KindOther       ErrorKind = "other"
)

// BackendError is returned by every Gateway on transport or API failure.
type BackendError struct {
	Provider   Provider
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *BackendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s backend error (%s, status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s backend error (%s): %v", e.Provider, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether err is a transient rate-limit failure.
func IsRateLimited(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.Kind == KindRateLimited
}

func newBackendError(provider Provider, status int, err error) *BackendError {
	kind := KindOther
	if status == http.StatusTooManyRequests {
		kind = KindRateLimited
	}
	return &BackendError{Provider: provider, Kind: kind, StatusCode: status, Err: err}
}
