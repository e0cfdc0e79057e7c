package orderfeed

import (
	"context"
	"time"
)

const DefaultInterval = 60 * time.Second

// Strategy decides when a subscription refreshes. Run blocks until ctx is
// done and never calls refresh concurrently with itself.
type Strategy interface {
	Run(ctx context.Context, refresh func(ctx context.Context))
}

// Poller refreshes at start and then every Interval.
type Poller struct {
	Interval time.Duration
}

func (p Poller) Run(ctx context.Context, refresh func(ctx context.Context)) {
	refresh(ctx)

	ticker := time.NewTicker(orDefault(p.Interval))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh(ctx)
		}
	}
}

// ChangeSource opens a stream of change signals. The channel closes when
// the stream breaks.
type ChangeSource interface {
	Watch(ctx context.Context) (<-chan struct{}, error)
}

// Pusher refreshes at start and on every change signal. While the stream
// is down it polls every Fallback and tries to reopen it on each tick.
type Pusher struct {
	Source   ChangeSource
	Fallback time.Duration
}

func (p Pusher) Run(ctx context.Context, refresh func(ctx context.Context)) {
	refresh(ctx)

	fallback := orDefault(p.Fallback)
	for {
		changes, err := p.Source.Watch(ctx)
		if err == nil {
			p.follow(ctx, changes, refresh)
		}
		if ctx.Err() != nil {
			return
		}

		t := time.NewTimer(fallback)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		refresh(ctx)
	}
}

func (p Pusher) follow(ctx context.Context, changes <-chan struct{}, refresh func(ctx context.Context)) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			refresh(ctx)
		}
	}
}

func orDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultInterval
	}
	return d
}
