package resilient

import (
	"errors"
)

var (
	// ErrRejected marks an error as a terminal refusal by the remote.
	ErrRejected = errors.New("rejected by remote")

	ErrOffline       = errors.New("no network connection")
	ErrInvalidPolicy = errors.New("invalid retry policy")
)

type rejectedError struct {
	err error
}

func (e *rejectedError) Error() string {
	return e.err.Error()
}

func (e *rejectedError) Unwrap() []error {
	return []error{e.err, ErrRejected}
}

// Reject wraps err so the executor returns it without retrying.
func Reject(err error) error {
	if err == nil {
		return nil
	}
	return &rejectedError{err: err}
}

func IsRejected(err error) bool {
	return errors.Is(err, ErrRejected)
}
