package reconciler

import (
	"errors"
	"fmt"
)

var (
	// ErrTokenFetch is returned when a credential could not be obtained.
	ErrTokenFetch = errors.New("token fetch failed")
	// ErrRequestTimedOut is returned when the credential request exceeds FetchTimeout.
	ErrRequestTimedOut = errors.New("token request timed out")
	// ErrTransportConnect is returned when a valid credential could not connect.
	ErrTransportConnect = errors.New("transport connect failed")
	// ErrMediaAcquisition is reported when a camera or microphone is unavailable. It never fails a join.
	ErrMediaAcquisition = errors.New("media device unavailable")
	// ErrInvalidState is returned for a command the current state does not accept.
	ErrInvalidState = errors.New("invalid state for command")
	// ErrInvalidChat is returned for an empty or oversized chat message.
	ErrInvalidChat = errors.New("invalid chat message")
	// ErrStopped is returned after Run has exited.
	ErrStopped = errors.New("reconciler stopped")
)

// FetchError is a non-2xx or malformed token endpoint response.
type FetchError struct {
	Status  int
	Message string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("token endpoint returned %d: %s", e.Status, e.Message)
}

// Unwrap lets errors.Is match ErrTokenFetch.
func (e *FetchError) Unwrap() error {
	return ErrTokenFetch
}
