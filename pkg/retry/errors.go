package retry

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/seermedical/seer-client-go/pkg/auth"
)

// Common errors returned by Do.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during backoff.
	ErrContextCancelled = errors.New("context cancelled")
)

// Class represents a classification of request errors.
type Class string

const (
	// ClassTransient marks network failures, timeouts and retriable HTTP statuses.
	ClassTransient Class = "transient"

	// ClassAuth marks authentication failures. They invalidate every
	// request sharing the session and are never retried here.
	ClassAuth Class = "auth"

	// ClassPermanent marks everything else.
	ClassPermanent Class = "permanent"
)

// TransientRequestError is a single request failure that may succeed if
// repeated: a network error, a timeout, or a 429/5xx response.
type TransientRequestError struct {
	Op         string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *TransientRequestError) Error() string {
	if e.StatusCode > 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s: transient failure (status %d): %v", e.Op, e.StatusCode, e.Err)
		}
		return fmt.Sprintf("%s: transient failure (status %d)", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransientRequestError) Unwrap() error {
	return e.Err
}

// IsRetriableStatus reports whether an HTTP status code should be retried.
func IsRetriableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// Classify categorizes an error for retry decisions.
func Classify(err error) Class {
	if err == nil {
		return ""
	}
	if errors.Is(err, auth.ErrAuthentication) {
		return ClassAuth
	}
	var transient *TransientRequestError
	if errors.As(err, &transient) {
		return ClassTransient
	}
	return ClassPermanent
}
