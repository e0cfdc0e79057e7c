package orderfeed

import (
	"context"
	"sync"

	"github.com/ghaggin/courier/internal/model"
)

// Subscription delivers Updates on C until stopped. C is closed once the
// subscription has fully shut down.
type Subscription struct {
	C <-chan Update

	c      chan Update
	feed   *Feed
	filter model.OrderFilter
	cancel context.CancelFunc
	kick   chan struct{}
	done   chan struct{}

	refreshMu sync.Mutex
	stopOnce  sync.Once
}

func (s *Subscription) Filter() model.OrderFilter {
	return s.filter
}

// Stop cancels the subscription and waits for it to finish. No Update is
// delivered after Stop returns.
func (s *Subscription) Stop() {
	s.stopOnce.Do(s.cancel)
	<-s.done
}

// Refresh asks for an out of band refresh.
func (s *Subscription) Refresh() {
	s.kickNow()
}

func (s *Subscription) kickNow() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Subscription) refresh(ctx context.Context) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	u := s.feed.fetch(ctx, s.filter)
	if ctx.Err() != nil {
		return
	}
	select {
	case s.c <- u:
	case <-ctx.Done():
	}
}
