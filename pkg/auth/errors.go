package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication matches every *AuthenticationError via errors.Is.
	ErrAuthentication = errors.New("authentication failed")

	// ErrMissingCredentials is wrapped when no credential source was found.
	ErrMissingCredentials = errors.New("no credentials found")

	// ErrSessionInactive is returned when the verify endpoint does not
	// report an active session.
	ErrSessionInactive = errors.New("session not active")
)

// AuthenticationError reports that no usable session could be obtained:
// credentials are missing, or (re-)authentication failed repeatedly.
type AuthenticationError struct {
	Kind Kind
	Err  error
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("authentication failed: %v", e.Err)
	}
	return fmt.Sprintf("authentication failed (source %s): %v", e.Kind, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrAuthentication) true for any AuthenticationError.
func (e *AuthenticationError) Is(target error) bool {
	return target == ErrAuthentication
}

// MalformedCredentialError reports a key or credentials file that could
// not be read or parsed. It is raised before any network call.
type MalformedCredentialError struct {
	// Path is the offending file, or "<inline>" for a raw key string.
	Path string
	Err  error
}

// Error implements the error interface.
func (e *MalformedCredentialError) Error() string {
	return fmt.Sprintf("malformed credential %s: %v", e.Path, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *MalformedCredentialError) Unwrap() error {
	return e.Err
}
