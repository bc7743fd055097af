package client

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by the client.
var (
	// ErrNotAuthenticated marks a response in which the server rejected
	// the session.
	ErrNotAuthenticated = errors.New("NOT_AUTHENTICATED")

	// ErrNotFound is returned when a queried object does not exist or is
	// not visible to the current user.
	ErrNotFound = errors.New("not found")
)

// APIError is an HTTP failure that is not worth retrying.
type APIError struct {
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("seer api error (status %d): %s: %v", e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("seer api error (status %d): %s", e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// GraphQLError carries the errors array of a GraphQL response.
type GraphQLError struct {
	Messages []string
	Codes    []string
}

// Error implements the error interface.
func (e *GraphQLError) Error() string {
	return "graphql: " + strings.Join(e.Messages, "; ")
}

// NotAuthenticated reports whether the server rejected the session.
func (e *GraphQLError) NotAuthenticated() bool {
	for _, code := range e.Codes {
		if code == ErrNotAuthenticated.Error() {
			return true
		}
	}
	for _, msg := range e.Messages {
		if strings.Contains(msg, ErrNotAuthenticated.Error()) {
			return true
		}
	}
	return false
}

// Is makes errors.Is(err, ErrNotAuthenticated) true for a rejected session.
func (e *GraphQLError) Is(target error) bool {
	return target == ErrNotAuthenticated && e.NotAuthenticated()
}

// snippet shortens a response body for an error message.
func snippet(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
