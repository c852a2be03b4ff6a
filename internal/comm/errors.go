package comm

import (
	"errors"
	"fmt"
)

var (
	// ErrNoParentWindow is returned by Initialize when the frame has neither a
	// parent, an opener nor a native bridge.
	ErrNoParentWindow = errors.New("Initialization Failed. No Parent window found.")

	// ErrNotInitialized is returned by the public send helpers before the
	// handshake has completed.
	ErrNotInitialized = errors.New("The library has not yet been initialized")

	// ErrAlreadyInitialized is returned by Initialize when a handshake is in
	// flight or done.
	ErrAlreadyInitialized = errors.New("communication already initialized")

	// ErrCommunicationClosed settles futures that were still pending when the
	// communicator was torn down.
	ErrCommunicationClosed = errors.New("communication uninitialized before a response arrived")

	// ErrHandshakeTimeout is returned by Initialize when Options.HandshakeTimeout
	// elapses without an initialize response.
	ErrHandshakeTimeout = errors.New("initialize handshake timed out")
)

// RejectionError carries a truthy first argument of an error-or-result
// response that is not an SdkError, e.g. a bare true. Such responses are
// treated as failures.
type RejectionError struct {
	Value any
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("request rejected with %v", e.Value)
}

// IsRejection reports whether err is a RejectionError.
func IsRejection(err error) bool {
	var re *RejectionError
	return errors.As(err, &re)
}
