package provider

import (
	"context"
	"errors"
	"fmt"
)

// Classification splits send failures into the two retry classes.
type Classification string

const (
	// ClassTransient errors (timeouts, rate limiting, flaky network) are
	// retried under the campaign's backoff policy.
	ClassTransient Classification = "transient"
	// ClassPermanent errors (bad destination, rejected content,
	// authorization) fail the job immediately.
	ClassPermanent Classification = "permanent"
)

// Client sends one message to one destination. Implementations must
// respect ctx cancellation and return *SendError for classified failures.
type Client interface {
	Send(ctx context.Context, target, message string) error
	Name() string
}

// SendError is a classified provider failure.
type SendError struct {
	Classification Classification
	Message        string
	Err            error
}

func (e *SendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s send failure: %s: %v", e.Classification, e.Message, e.Err)
	}
	return fmt.Sprintf("%s send failure: %s", e.Classification, e.Message)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Transient builds a retryable send error.
func Transient(message string, err error) *SendError {
	return &SendError{Classification: ClassTransient, Message: message, Err: err}
}

// Permanent builds a non-retryable send error.
func Permanent(message string, err error) *SendError {
	return &SendError{Classification: ClassPermanent, Message: message, Err: err}
}

// IsPermanent reports whether err is a classified permanent failure.
// Unclassified errors (including context deadline timeouts) count as
// transient, which keeps them inside the retry budget.
func IsPermanent(err error) bool {
	var se *SendError
	if errors.As(err, &se) {
		return se.Classification == ClassPermanent
	}
	return false
}
