package orderfeed

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/ghaggin/courier/internal/auth"
	"github.com/ghaggin/courier/internal/model"
	"github.com/ghaggin/courier/internal/remote"
	"github.com/ghaggin/courier/internal/resilient"
	"go.uber.org/zap"
)

// Identity is the part of the auth controller the feed depends on.
type Identity interface {
	Session() (model.Session, bool)
	OnChange(fn func(auth.Change)) func()
}

// Update is one refresh result. Failure is set when the list could not be
// fetched, Orders is empty when there is no session.
type Update struct {
	Orders  []model.Order
	Failure *resilient.Failure
	At      time.Time
}

type Option func(*Feed)

func WithStrategy(s Strategy) Option {
	return func(f *Feed) {
		if s != nil {
			f.strategy = s
		}
	}
}

// WithPush follows the backend change stream, polling every fallback while
// it is unavailable.
func WithPush(fallback time.Duration) Option {
	return func(f *Feed) {
		f.strategy = Pusher{Source: f, Fallback: fallback}
	}
}

func WithPolicy(p resilient.RetryPolicy) Option {
	return func(f *Feed) {
		f.policy = p
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(f *Feed) {
		if log != nil {
			f.log = log
		}
	}
}

// Feed serves the driver's order lists through the executor.
type Feed struct {
	ident    Identity
	remote   remote.Service
	exec     *resilient.Executor
	policy   resilient.RetryPolicy
	strategy Strategy
	log      *zap.Logger
	now      func() time.Time

	mu   sync.Mutex
	subs map[*Subscription]struct{}

	unsubscribe func()
}

func New(ident Identity, svc remote.Service, exec *resilient.Executor, opts ...Option) *Feed {
	f := &Feed{
		ident:    ident,
		remote:   svc,
		exec:     exec,
		policy:   resilient.DefaultPolicy,
		strategy: Poller{Interval: DefaultInterval},
		log:      zap.NewNop(),
		now:      time.Now,
		subs:     map[*Subscription]struct{}{},
	}
	for _, opt := range opts {
		opt(f)
	}
	f.unsubscribe = ident.OnChange(f.sessionChanged)
	return f
}

// Close detaches the feed from session changes. Live subscriptions keep
// running until stopped.
func (f *Feed) Close() {
	f.unsubscribe()
}

func (f *Feed) sessionChanged(c auth.Change) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log.Debug("session changed, refreshing subscriptions", zap.Stringer("state", c.To), zap.Int("subscriptions", len(f.subs)))
	for s := range f.subs {
		s.kickNow()
	}
}

// Subscribe starts delivering updates for filter until Stop or ctx ends.
func (f *Feed) Subscribe(ctx context.Context, filter model.OrderFilter) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	c := make(chan Update)
	s := &Subscription{
		C:      c,
		c:      c,
		feed:   f,
		filter: filter,
		cancel: cancel,
		kick:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	f.mu.Lock()
	f.subs[s] = struct{}{}
	f.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		f.strategy.Run(ctx, s.refresh)
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.kick:
				s.refresh(ctx)
			}
		}
	}()
	go func() {
		wg.Wait()
		f.mu.Lock()
		delete(f.subs, s)
		f.mu.Unlock()
		close(s.c)
		close(s.done)
	}()
	return s
}

// fetch returns nothing when there is no session.
func (f *Feed) fetch(ctx context.Context, filter model.OrderFilter) Update {
	session, ok := f.ident.Session()
	if !ok {
		return Update{At: f.now()}
	}
	out := resilient.Execute(ctx, f.exec, f.policy, func(ctx context.Context) ([]model.Order, error) {
		return f.remote.ListOrders(ctx, session.AccessToken, filter)
	})
	if !out.OK() {
		f.log.Warn("error fetching orders", zap.Stringer("kind", out.Kind()), zap.Error(out.Err()))
		return Update{Failure: out.Failure(), At: f.now()}
	}
	return Update{Orders: out.Value(), At: f.now()}
}

func (f *Feed) session() (model.Session, *resilient.Failure) {
	s, ok := f.ident.Session()
	if !ok {
		return model.Session{}, &resilient.Failure{Kind: resilient.Rejected, Message: auth.ErrNoSession.Error(), Err: auth.ErrNoSession}
	}
	return s, nil
}

// Watch opens the backend change stream for the current session.
func (f *Feed) Watch(ctx context.Context) (<-chan struct{}, error) {
	s, fail := f.session()
	if fail != nil {
		return nil, fail
	}
	changes, err := f.remote.WatchOrders(ctx, s.AccessToken)
	if err != nil {
		f.log.Info("order stream unavailable", zap.Error(err))
		return nil, err
	}
	return changes, nil
}

// UpdateStatus moves an order along its lifecycle as the signed-in driver.
func (f *Feed) UpdateStatus(ctx context.Context, orderID string, status model.OrderStatus) resilient.Outcome[struct{}] {
	if !status.Valid() {
		_, err := model.ParseOrderStatus(string(status))
		return resilient.FailWith[struct{}](resilient.Rejected, err)
	}
	s, fail := f.session()
	if fail != nil {
		return resilient.Fail[struct{}](fail)
	}
	out := resilient.Run(ctx, f.exec, f.policy, func(ctx context.Context) error {
		return f.remote.UpdateOrderStatus(ctx, s.AccessToken, orderID, status)
	})
	if out.OK() {
		f.log.Info("order status updated", zap.String("order_id", orderID), zap.String("status", string(status)))
	}
	return out
}

func (f *Feed) History(ctx context.Context, filter model.OrderFilter) resilient.Outcome[[]model.Order] {
	s, fail := f.session()
	if fail != nil {
		return resilient.Fail[[]model.Order](fail)
	}
	filter.MineOnly = true
	filter.WithHistory = true
	return resilient.Execute(ctx, f.exec, f.policy, func(ctx context.Context) ([]model.Order, error) {
		return f.remote.ListOrders(ctx, s.AccessToken, filter)
	})
}

func (f *Feed) Profile(ctx context.Context) resilient.Outcome[model.Profile] {
	s, fail := f.session()
	if fail != nil {
		return resilient.Fail[model.Profile](fail)
	}
	return resilient.Execute(ctx, f.exec, f.policy, func(ctx context.Context) (model.Profile, error) {
		return f.remote.GetProfile(ctx, s.AccessToken)
	})
}

func (f *Feed) SaveProfile(ctx context.Context, p model.Profile) resilient.Outcome[model.Profile] {
	s, fail := f.session()
	if fail != nil {
		return resilient.Fail[model.Profile](fail)
	}
	return resilient.Execute(ctx, f.exec, f.policy, func(ctx context.Context) (model.Profile, error) {
		return f.remote.SaveProfile(ctx, s.AccessToken, p)
	})
}

// Restaurants lists the distinct restaurant names in orders, sorted.
func Restaurants(orders []model.Order) []string {
	names := make([]string, 0, len(orders))
	for _, o := range orders {
		if o.RestaurantName != "" {
			names = append(names, o.RestaurantName)
		}
	}
	slices.Sort(names)
	return slices.Compact(names)
}
