package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrPositionExists = errors.New("live position already exists")
	ErrStateConflict  = errors.New("position status conflict")
	ErrLockHeld       = errors.New("lock already held")
	ErrStalePrice     = errors.New("stale price update")
)

// ErrorKind classifies an exchange failure for retry handling.
type ErrorKind string

const (
	// KindTransient covers network faults and timeouts; the caller may retry
	// with backoff up to its budget.
	KindTransient ErrorKind = "transient"
	// KindRejected means the exchange refused the request (for example
	// insufficient balance); retrying is pointless.
	KindRejected ErrorKind = "rejected"
)

// ExchangeError wraps a failure returned by the execution gateway or the
// exchange state puller, tagged with a retry classification.
type ExchangeError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("exchange: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// Transient builds a retryable exchange error.
func Transient(op string, err error) *ExchangeError {
	return &ExchangeError{Kind: KindTransient, Op: op, Err: err}
}

// Rejected builds a non-retryable exchange error.
func Rejected(op string, err error) *ExchangeError {
	return &ExchangeError{Kind: KindRejected, Op: op, Err: err}
}

// IsTransient reports whether err is an exchange error that may be retried.
func IsTransient(err error) bool {
	var ee *ExchangeError
	return errors.As(err, &ee) && ee.Kind == KindTransient
}

// IsRejected reports whether err is a definitive exchange rejection.
func IsRejected(err error) bool {
	var ee *ExchangeError
	return errors.As(err, &ee) && ee.Kind == KindRejected
}
