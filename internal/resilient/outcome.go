package resilient

import "fmt"

type ErrorKind int

const (
	// Offline means the probe reported no usable network path.
	Offline ErrorKind = iota + 1
	// Transport means the network was reachable but the call failed.
	Transport
	// Rejected means the remote refused the request. Never retried.
	Rejected
	// Configuration means the caller passed an invalid policy. Never retried.
	Configuration
	// Canceled means the caller's context ended before an outcome.
	Canceled
)

func (k ErrorKind) String() string {
	switch k {
	case Offline:
		return "offline"
	case Transport:
		return "transport"
	case Rejected:
		return "rejected"
	case Configuration:
		return "configuration"
	case Canceled:
		return "canceled"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

func (k ErrorKind) Retryable() bool {
	return k == Offline || k == Transport
}

// Failure describes why a call produced no value.
type Failure struct {
	Kind     ErrorKind
	Message  string
	Attempts int
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s after %d attempt(s): %s", f.Kind, f.Attempts, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Outcome is either a value or a Failure, never both.
type Outcome[T any] struct {
	value   T
	failure *Failure
}

func Success[T any](v T) Outcome[T] {
	return Outcome[T]{value: v}
}

func Fail[T any](f *Failure) Outcome[T] {
	return Outcome[T]{failure: f}
}

// FailWith is Fail for a failure raised without any attempt.
func FailWith[T any](kind ErrorKind, err error) Outcome[T] {
	return Fail[T](&Failure{Kind: kind, Message: err.Error(), Err: err})
}

func (o Outcome[T]) OK() bool {
	return o.failure == nil
}

func (o Outcome[T]) Value() T {
	return o.value
}

func (o Outcome[T]) Failure() *Failure {
	return o.failure
}

// Err returns the failure as an error, or nil on success.
func (o Outcome[T]) Err() error {
	if o.failure == nil {
		return nil
	}
	return o.failure
}

// Kind returns the failure kind, or zero on success.
func (o Outcome[T]) Kind() ErrorKind {
	if o.failure == nil {
		return 0
	}
	return o.failure.Kind
}

// Map carries a failure over to another value type.
func Map[T, U any](o Outcome[T], fn func(T) U) Outcome[U] {
	if o.failure != nil {
		return Outcome[U]{failure: o.failure}
	}
	return Success(fn(o.value))
}
