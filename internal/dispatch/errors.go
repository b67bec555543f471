package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// ErrorCategory classifies a single failed attempt. Every category is
// retryable; only exhaustion of the retry budget is terminal.
type ErrorCategory string

const (
	// CategoryTimeout marks an attempt that exceeded its timeout.
	CategoryTimeout ErrorCategory = "timeout"

	// CategoryRejected marks a response with a non-success status code.
	CategoryRejected ErrorCategory = "rejected"

	// CategoryTransport marks a network or connection failure.
	CategoryTransport ErrorCategory = "transport"
)

// UnregisteredToolError is returned when a call names a tool that is
// not in the registry. It is a caller error and records no metrics.
type UnregisteredToolError struct {
	Tool string
}

func (e *UnregisteredToolError) Error() string {
	return fmt.Sprintf("tool %s not registered", e.Tool)
}

// ExecutionFailedError is the terminal dispatch error: every retry
// attempt failed. It carries enough to diagnose the failure without
// exposing per-attempt mechanics.
type ExecutionFailedError struct {
	Tool      string
	Attempts  int
	LastError string
}

func (e *ExecutionFailedError) Error() string {
	return fmt.Sprintf("tool %s failed after %d attempts: %s", e.Tool, e.Attempts, e.LastError)
}

// AttemptError describes one failed attempt. It never crosses the
// dispatcher's public boundary; its message becomes the lastError text
// of an ExecutionFailedError.
type AttemptError struct {
	Category   ErrorCategory
	HTTPStatus int
	Message    string
	Err        error
}

func (e *AttemptError) Error() string {
	return e.Message
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// rejectedError builds the attempt error for a non-success response.
func rejectedError(status int) *AttemptError {
	return &AttemptError{
		Category:   CategoryRejected,
		HTTPStatus: status,
		Message:    fmt.Sprintf("tool returned status %d", status),
	}
}

// classifyAttemptError maps a transport-level error from the HTTP client
// to an attempt category. Deadline errors become timeouts; everything
// else is a transport failure.
func classifyAttemptError(err error) *AttemptError {
	if attemptErr := (*AttemptError)(nil); errors.As(err, &attemptErr) {
		return attemptErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &AttemptError{
			Category: CategoryTimeout,
			Message:  "tool execution timed out",
			Err:      err,
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return &AttemptError{
			Category: CategoryTimeout,
			Message:  "tool execution timed out",
			Err:      err,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &AttemptError{
			Category: CategoryTimeout,
			Message:  "tool execution timed out",
			Err:      err,
		}
	}

	return &AttemptError{
		Category: CategoryTransport,
		Message:  err.Error(),
		Err:      err,
	}
}
