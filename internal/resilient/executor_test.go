package resilient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProbe struct {
	mu     sync.Mutex
	online []bool
	calls  int
}

func (p *fakeProbe) IsOnline(_ context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	p.calls++
	if len(p.online) == 0 {
		return true
	}
	if i >= len(p.online) {
		return p.online[len(p.online)-1]
	}
	return p.online[i]
}

func online() *fakeProbe {
	return &fakeProbe{online: []bool{true}}
}

func offline() *fakeProbe {
	return &fakeProbe{online: []bool{false}}
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func newTestExecutor(p Probe) (*Executor, *sleepRecorder) {
	rec := &sleepRecorder{}
	return New(p, WithSleep(rec.sleep)), rec
}

var errTransport = errors.New("connection reset by peer")

func TestExecute_offlineNeverInvokes(t *testing.T) {
	for _, n := range []int{1, 2, 3, 7} {
		assert := assert.New(t)

		e, rec := newTestExecutor(offline())
		calls := 0
		out := Execute(context.Background(), e, RetryPolicy{MaxAttempts: n, BaseDelay: 10 * time.Millisecond}, func(context.Context) (int, error) {
			calls++
			return 1, nil
		})

		assert.False(out.OK())
		assert.Equal(0, calls)
		assert.Equal(Offline, out.Failure().Kind)
		assert.Equal(n, out.Failure().Attempts)
		assert.ErrorIs(out.Err(), ErrOffline)
		assert.Len(rec.delays, n-1)
	}
}

func TestExecute_rejectedShortCircuits(t *testing.T) {
	for _, n := range []int{1, 3, 10} {
		assert := assert.New(t)

		e, rec := newTestExecutor(online())
		calls := 0
		out := Execute(context.Background(), e, RetryPolicy{MaxAttempts: n, BaseDelay: time.Second}, func(context.Context) (string, error) {
			calls++
			return "", Reject(errors.New("invalid login credentials"))
		})

		assert.False(out.OK())
		assert.Equal(1, calls)
		assert.Empty(rec.delays)
		assert.Equal(Rejected, out.Kind())
		assert.Equal(1, out.Failure().Attempts)
		assert.Equal("invalid login credentials", out.Failure().Message)
	}
}

func TestExecute_succeedsOnAttemptK(t *testing.T) {
	for k := 1; k <= 4; k++ {
		assert := assert.New(t)

		e, _ := newTestExecutor(online())
		calls := 0
		out := Execute(context.Background(), e, RetryPolicy{MaxAttempts: 4, BaseDelay: time.Millisecond}, func(context.Context) (int, error) {
			calls++
			if calls < k {
				return 0, errTransport
			}
			return calls, nil
		})

		assert.True(out.OK())
		assert.Nil(out.Err())
		assert.Equal(k, calls)
		assert.Equal(k, out.Value())
	}
}

func TestExecute_linearBackoffScenario(t *testing.T) {
	assert := assert.New(t)

	e, rec := newTestExecutor(online())
	calls := 0
	out := Execute(context.Background(), e, RetryPolicy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond}, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errTransport
		}
		return 42, nil
	})

	assert.True(out.OK())
	assert.Equal(42, out.Value())
	assert.Equal(3, calls)
	assert.Equal([]time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, rec.delays)
}

func TestExecute_realSleepElapsed(t *testing.T) {
	assert := assert.New(t)

	e := New(online())
	calls := 0
	start := time.Now()
	out := Execute(context.Background(), e, RetryPolicy{MaxAttempts: 3, BaseDelay: 20 * time.Millisecond}, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errTransport
		}
		return 42, nil
	})

	assert.True(out.OK())
	assert.GreaterOrEqual(time.Since(start), 60*time.Millisecond)
}

func TestExecute_exhaustedKeepsLastError(t *testing.T) {
	assert := assert.New(t)

	e, rec := newTestExecutor(&fakeProbe{online: []bool{false, true, true}})
	calls := 0
	out := Run(context.Background(), e, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		return errTransport
	})

	assert.False(out.OK())
	assert.Equal(2, calls)
	assert.Equal(Transport, out.Kind())
	assert.Equal(3, out.Failure().Attempts)
	assert.ErrorIs(out.Err(), errTransport)
	assert.Equal([]time.Duration{time.Millisecond, 2 * time.Millisecond}, rec.delays)
}

func TestExecute_invalidPolicy(t *testing.T) {
	for _, p := range []RetryPolicy{{MaxAttempts: 0}, {MaxAttempts: -1}, {MaxAttempts: 2, BaseDelay: -time.Second}} {
		assert := assert.New(t)

		probe := online()
		e, _ := newTestExecutor(probe)
		calls := 0
		out := Run(context.Background(), e, p, func(context.Context) error {
			calls++
			return nil
		})

		assert.Equal(Configuration, out.Kind())
		assert.Equal(0, out.Failure().Attempts)
		assert.ErrorIs(out.Err(), ErrInvalidPolicy)
		assert.Equal(0, calls)
		assert.Equal(0, probe.calls)
	}
}

func TestExecute_canceledDuringBackoff(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	e := New(online())

	calls := 0
	done := make(chan Outcome[struct{}])
	go func() {
		done <- Run(ctx, e, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Hour}, func(context.Context) error {
			calls++
			return errTransport
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case out := <-done:
		assert.Equal(Canceled, out.Kind())
		assert.Equal(1, out.Failure().Attempts)
		assert.ErrorIs(out.Err(), context.Canceled)
	case <-time.After(time.Second):
		require.Fail("backoff sleep was not canceled")
	}
	assert.Equal(1, calls)
}

func TestExecute_canceledBeforeStart(t *testing.T) {
	assert := assert.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e, _ := newTestExecutor(online())
	calls := 0
	out := Run(ctx, e, DefaultPolicy, func(context.Context) error {
		calls++
		return nil
	})

	assert.Equal(Canceled, out.Kind())
	assert.Equal(0, calls)
}

func TestExecute_opContextErrorIsCanceled(t *testing.T) {
	assert := assert.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	e, rec := newTestExecutor(online())
	out := Run(ctx, e, DefaultPolicy, func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	})

	assert.Equal(Canceled, out.Kind())
	assert.Empty(rec.delays)
}

func TestExecute_concurrentCallsIndependent(t *testing.T) {
	assert := assert.New(t)

	e, _ := newTestExecutor(online())
	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			calls := 0
			out := Execute(context.Background(), e, RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond}, func(context.Context) (int, error) {
				calls++
				if calls <= i%4 {
					return 0, errTransport
				}
				return calls, nil
			})
			results[i] = out.Value()
		}(i)
	}
	wg.Wait()

	for i, got := range results {
		assert.Equal(i%4+1, got)
	}
}

func TestOutcome(t *testing.T) {
	assert := assert.New(t)

	ok := Success(7)
	assert.True(ok.OK())
	assert.Equal(ErrorKind(0), ok.Kind())
	assert.Equal("7", Map(ok, func(v int) string { return "7" }).Value())

	f := Fail[int](&Failure{Kind: Transport, Message: "boom", Attempts: 2})
	assert.False(f.OK())
	mapped := Map(f, func(v int) string { return "x" })
	assert.False(mapped.OK())
	assert.Equal("transport after 2 attempt(s): boom", mapped.Err().Error())
}

func TestErrorKind(t *testing.T) {
	assert := assert.New(t)

	assert.True(Offline.Retryable())
	assert.True(Transport.Retryable())
	assert.False(Rejected.Retryable())
	assert.False(Configuration.Retryable())
	assert.False(Canceled.Retryable())
	assert.Equal("rejected", Rejected.String())
}

func TestReject(t *testing.T) {
	assert := assert.New(t)

	base := errors.New("bad password")
	err := Reject(base)
	assert.True(IsRejected(err))
	assert.ErrorIs(err, base)
	assert.Equal("bad password", err.Error())
	assert.False(IsRejected(base))
	assert.Nil(Reject(nil))
}
