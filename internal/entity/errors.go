package entity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// NetworkError means the request may not have reached the store or its
// answer was lost: connection failures, timeouts, rate limits and 5xx
// responses. Reads may retry it; writes surface it.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error (%s): %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RejectedError means the store understood the request and refused it.
// Retrying will not help.
type RejectedError struct {
	Op      string
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("rejected (%s, %d): %s", e.Op, e.Status, e.Message)
}

// IsNetworkError reports whether err (or any error in its chain) is a
// NetworkError. A context deadline counts as one.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded)
}

// IsRejected reports whether err (or any error in its chain) is a
// RejectedError.
func IsRejected(err error) bool {
	var rejErr *RejectedError
	return errors.As(err, &rejErr)
}

// IsNotFound reports whether the store rejected the request because the
// record does not exist.
func IsNotFound(err error) bool {
	var rejErr *RejectedError
	return errors.As(err, &rejErr) && rejErr.Status == http.StatusNotFound
}

func notFound(op string, kind Kind, id string) error {
	return &RejectedError{
		Op:      op,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("%s %s not found", kind, id),
	}
}
