package resilient

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Probe gates every attempt on network availability.
type Probe interface {
	IsOnline(ctx context.Context) bool
}

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Option func(*Executor)

func WithSleep(sleep SleepFunc) Option {
	return func(e *Executor) {
		e.sleep = sleep
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(e *Executor) {
		if log != nil {
			e.log = log
		}
	}
}

// Executor runs remote calls under a RetryPolicy. It holds no per-call state
// and is safe for concurrent use.
type Executor struct {
	probe Probe
	log   *zap.Logger
	sleep SleepFunc
}

func New(probe Probe, opts ...Option) *Executor {
	e := &Executor{
		probe: probe,
		log:   zap.NewNop(),
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Execute invokes op at most policy.MaxAttempts times, strictly one after
// another, and returns the first success or the last failure.
func Execute[T any](ctx context.Context, e *Executor, policy RetryPolicy, op func(ctx context.Context) (T, error)) Outcome[T] {
	if err := policy.Validate(); err != nil {
		return FailWith[T](Configuration, err)
	}

	var last *Failure
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Fail[T](canceled(err, attempt-1))
		}

		if !e.probe.IsOnline(ctx) {
			e.log.Debug("skipping attempt, offline", zap.Int("attempt", attempt), zap.Int("max_attempts", policy.MaxAttempts))
			last = &Failure{Kind: Offline, Message: ErrOffline.Error(), Attempts: attempt, Err: ErrOffline}
		} else {
			e.log.Debug("attempting request", zap.Int("attempt", attempt), zap.Int("max_attempts", policy.MaxAttempts))
			v, err := op(ctx)
			if err == nil {
				return Success(v)
			}
			last = classify(ctx, err, attempt)
			if !last.Kind.Retryable() {
				e.log.Debug("request not retried", zap.Stringer("kind", last.Kind), zap.Error(err))
				return Fail[T](last)
			}
		}

		if attempt < policy.MaxAttempts {
			d := policy.Delay(attempt)
			e.log.Debug("retrying request",
				zap.Int("attempt", attempt),
				zap.Duration("delay", d),
				zap.Stringer("kind", last.Kind),
			)
			if err := e.sleep(ctx, d); err != nil {
				return Fail[T](canceled(err, attempt))
			}
		}
	}

	e.log.Warn("request failed",
		zap.Int("attempts", last.Attempts),
		zap.Stringer("kind", last.Kind),
		zap.Error(last.Err),
	)
	return Fail[T](last)
}

// Run is Execute for calls that return no value.
func Run(ctx context.Context, e *Executor, policy RetryPolicy, op func(ctx context.Context) error) Outcome[struct{}] {
	return Execute(ctx, e, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
}

// classify sorts a failed attempt. Only Rejected and context errors stop
// the loop, anything else is assumed to be a transport problem.
func classify(ctx context.Context, err error, attempt int) *Failure {
	switch {
	case IsRejected(err):
		return &Failure{Kind: Rejected, Message: err.Error(), Attempts: attempt, Err: err}
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return canceled(err, attempt)
	default:
		return &Failure{Kind: Transport, Message: err.Error(), Attempts: attempt, Err: err}
	}
}

func canceled(err error, attempts int) *Failure {
	return &Failure{Kind: Canceled, Message: err.Error(), Attempts: attempts, Err: err}
}
