package synth

import (
	"errors"
	"fmt"
)

// RejectedError means the speech service answered with a non-success status.
type RejectedError struct {
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("speech rejected (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// TransportError means the request never produced a complete response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("speech transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsRejected reports whether err is a *RejectedError.
func IsRejected(err error) bool {
	var rej *RejectedError
	return errors.As(err, &rej)
}

// IsTransport reports whether err is a *TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
