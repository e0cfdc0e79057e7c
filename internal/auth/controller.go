package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ghaggin/courier/internal/model"
	"github.com/ghaggin/courier/internal/remote"
	"github.com/ghaggin/courier/internal/resilient"
	"go.uber.org/zap"
)

var (
	ErrNotRestored        = errors.New("auth: restore has not run")
	ErrNoSession          = errors.New("auth: no session")
	ErrMissingCredentials = errors.New("auth: email and password are required")
	ErrMissingEmail       = errors.New("auth: email is required")
	ErrMissingResetInput  = errors.New("auth: reset token and new password are required")
	errNoRefreshToken     = errors.New("auth: session cannot be refreshed")
)

// SessionStore is where the session survives restarts.
type SessionStore interface {
	Load(ctx context.Context) (model.Session, bool, error)
	Save(ctx context.Context, session model.Session) error
	Clear(ctx context.Context) error
}

type Option func(*Controller)

func WithPolicy(p resilient.RetryPolicy) Option {
	return func(c *Controller) {
		c.policy = p
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// Controller owns the driver's identity. The session is the only state it
// shares: reads take mu, every change additionally holds transition so
// observers are notified in the order changes happen.
type Controller struct {
	remote remote.Service
	store  SessionStore
	exec   *resilient.Executor
	policy resilient.RetryPolicy
	log    *zap.Logger
	now    func() time.Time

	transition sync.Mutex

	mu      sync.RWMutex
	state   State
	session *model.Session

	obsMu     sync.Mutex
	observers map[int]func(Change)
	nextObs   int
}

func New(svc remote.Service, store SessionStore, exec *resilient.Executor, opts ...Option) *Controller {
	c := &Controller{
		remote:    svc,
		store:     store,
		exec:      exec,
		policy:    resilient.DefaultPolicy,
		log:       zap.NewNop(),
		now:       time.Now,
		observers: map[int]func(Change){},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) Session() (model.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return model.Session{}, false
	}
	return *c.session, true
}

// OnChange registers fn for every Change. fn runs synchronously on the
// goroutine making the change and must not call back into transitions.
func (c *Controller) OnChange(fn func(Change)) func() {
	c.obsMu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.obsMu.Unlock()

	return func() {
		c.obsMu.Lock()
		delete(c.observers, id)
		c.obsMu.Unlock()
	}
}

// set must be called with transition held.
func (c *Controller) set(to State, session *model.Session) {
	c.mu.Lock()
	from := c.state
	prev := c.session
	c.state = to
	if session != nil {
		s := *session
		c.session = &s
	} else {
		c.session = nil
	}
	c.mu.Unlock()

	if from == to && sameSession(prev, session) {
		return
	}
	c.log.Debug("auth state changed", zap.Stringer("from", from), zap.Stringer("to", to))

	var snapshot *model.Session
	if session != nil {
		s := *session
		snapshot = &s
	}
	c.obsMu.Lock()
	fns := make([]func(Change), 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	c.obsMu.Unlock()

	for _, fn := range fns {
		fn(Change{From: from, To: to, Session: snapshot})
	}
}

func sameSession(a, b *model.Session) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Restore resolves the stored session once per process. Later calls return
// the current state. The remote checks run without holding transition, so
// a sign-in or sign-out made meanwhile wins over the restored result.
func (c *Controller) Restore(ctx context.Context) State {
	c.transition.Lock()
	if st := c.State(); st != Uninitialized {
		c.transition.Unlock()
		return st
	}
	c.set(Restoring, nil)
	c.transition.Unlock()

	stored, ok, err := c.store.Load(ctx)
	if err != nil {
		c.log.Warn("error loading stored session", zap.Error(err))
	}
	var out resilient.Outcome[model.Session]
	if ok {
		out = c.resolve(ctx, stored)
	}

	c.transition.Lock()
	defer c.transition.Unlock()
	if st := c.State(); st != Restoring {
		c.log.Info("restore superseded", zap.Stringer("state", st))
		return st
	}

	switch {
	case !ok:
		c.set(Anonymous, nil)
	case out.OK():
		session := out.Value()
		if session != stored {
			c.save(ctx, session)
		}
		c.log.Info("session restored", zap.String("user_id", session.UserID))
		c.set(Authenticated, &session)
	case out.Kind() == resilient.Rejected:
		c.log.Info("stored session rejected", zap.Error(out.Err()))
		c.clear(ctx)
		c.set(Anonymous, nil)
	default:
		// keep the stored session for the next start
		c.log.Warn("could not restore session", zap.Stringer("kind", out.Kind()), zap.Error(out.Err()))
		c.set(Anonymous, nil)
	}
	return c.State()
}

func (c *Controller) resolve(ctx context.Context, stored model.Session) resilient.Outcome[model.Session] {
	if stored.Expired(c.now()) {
		return c.refresh(ctx, stored)
	}

	out := resilient.Execute(ctx, c.exec, c.policy, func(ctx context.Context) (string, error) {
		return c.remote.ValidateSession(ctx, stored.AccessToken)
	})
	if out.Kind() == resilient.Rejected && stored.RefreshToken != "" {
		return c.refresh(ctx, stored)
	}
	return resilient.Map(out, func(string) model.Session { return stored })
}

func (c *Controller) refresh(ctx context.Context, s model.Session) resilient.Outcome[model.Session] {
	if s.RefreshToken == "" {
		return resilient.FailWith[model.Session](resilient.Rejected, errNoRefreshToken)
	}
	return resilient.Execute(ctx, c.exec, c.policy, func(ctx context.Context) (model.Session, error) {
		return c.remote.RefreshSession(ctx, s.RefreshToken)
	})
}

func (c *Controller) save(ctx context.Context, s model.Session) {
	if err := c.store.Save(ctx, s); err != nil {
		c.log.Error("error saving session", zap.Error(err))
	}
}

func (c *Controller) clear(ctx context.Context) {
	if err := c.store.Clear(ctx); err != nil {
		c.log.Error("error clearing session", zap.Error(err))
	}
}

// credentials trims the email only. The password is sent as typed.
func credentials(email, password string) (string, string, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return "", "", ErrMissingCredentials
	}
	return email, password, nil
}

func (c *Controller) SignIn(ctx context.Context, email, password string) resilient.Outcome[model.Session] {
	if c.State() == Uninitialized {
		return resilient.FailWith[model.Session](resilient.Configuration, ErrNotRestored)
	}
	email, password, err := credentials(email, password)
	if err != nil {
		return resilient.FailWith[model.Session](resilient.Rejected, err)
	}

	out := resilient.Execute(ctx, c.exec, c.policy, func(ctx context.Context) (model.Session, error) {
		return c.remote.SignIn(ctx, email, password)
	})
	if !out.OK() {
		c.log.Info("sign in failed", zap.Stringer("kind", out.Kind()), zap.Error(out.Err()))
		return out
	}

	session := out.Value()
	c.transition.Lock()
	defer c.transition.Unlock()
	c.save(ctx, session)
	c.set(Authenticated, &session)
	return out
}

// SignUp registers an account. A result waiting for email confirmation
// leaves the state as it was.
func (c *Controller) SignUp(ctx context.Context, email, password string) resilient.Outcome[model.SignUpResult] {
	if c.State() == Uninitialized {
		return resilient.FailWith[model.SignUpResult](resilient.Configuration, ErrNotRestored)
	}
	email, password, err := credentials(email, password)
	if err != nil {
		return resilient.FailWith[model.SignUpResult](resilient.Rejected, err)
	}

	out := resilient.Execute(ctx, c.exec, c.policy, func(ctx context.Context) (model.SignUpResult, error) {
		return c.remote.SignUp(ctx, email, password)
	})
	if !out.OK() {
		c.log.Info("sign up failed", zap.Stringer("kind", out.Kind()), zap.Error(out.Err()))
		return out
	}

	res := out.Value()
	if res.PendingConfirmation || res.Session == nil {
		c.log.Info("sign up waiting for email confirmation", zap.String("user_id", res.UserID))
		return out
	}

	c.transition.Lock()
	defer c.transition.Unlock()
	c.save(ctx, *res.Session)
	c.set(Authenticated, res.Session)
	return out
}

// SignOut ends the session locally whatever the backend answers. The
// outcome reports the remote call only. Before Restore it only clears the
// stored session, leaving Restore to run in full.
func (c *Controller) SignOut(ctx context.Context) resilient.Outcome[struct{}] {
	c.transition.Lock()
	if c.State() == Uninitialized {
		defer c.transition.Unlock()
		c.clear(context.WithoutCancel(ctx))
		return resilient.FailWith[struct{}](resilient.Configuration, ErrNotRestored)
	}
	c.transition.Unlock()

	out := resilient.Success(struct{}{})
	if s, ok := c.Session(); ok {
		out = resilient.Run(ctx, c.exec, c.policy, func(ctx context.Context) error {
			return c.remote.SignOut(ctx, s.AccessToken)
		})
		if !out.OK() {
			c.log.Warn("remote sign out failed", zap.Stringer("kind", out.Kind()), zap.Error(out.Err()))
		}
	}

	c.transition.Lock()
	defer c.transition.Unlock()
	c.clear(context.WithoutCancel(ctx))
	c.set(Anonymous, nil)
	return out
}

// Refresh exchanges the refresh token for a new session. A rejected
// refresh destroys the session.
func (c *Controller) Refresh(ctx context.Context) resilient.Outcome[model.Session] {
	current, ok := c.Session()
	if !ok {
		return resilient.FailWith[model.Session](resilient.Rejected, ErrNoSession)
	}

	out := c.refresh(ctx, current)

	c.transition.Lock()
	defer c.transition.Unlock()
	if latest, ok := c.Session(); !ok || latest != current {
		// replaced while refreshing, the newer session wins
		return out
	}
	switch {
	case out.OK():
		session := out.Value()
		c.save(ctx, session)
		c.set(Authenticated, &session)
	case out.Kind() == resilient.Rejected:
		c.log.Info("session refresh rejected", zap.Error(out.Err()))
		c.clear(context.WithoutCancel(ctx))
		c.set(Anonymous, nil)
	}
	return out
}

func (c *Controller) ResetPassword(ctx context.Context, email string) resilient.Outcome[struct{}] {
	email = strings.TrimSpace(email)
	if email == "" {
		return resilient.FailWith[struct{}](resilient.Rejected, ErrMissingEmail)
	}
	return resilient.Run(ctx, c.exec, c.policy, func(ctx context.Context) error {
		return c.remote.ResetPassword(ctx, email)
	})
}

func (c *Controller) CompletePasswordReset(ctx context.Context, resetToken, newPassword string) resilient.Outcome[struct{}] {
	resetToken = strings.TrimSpace(resetToken)
	if resetToken == "" || strings.TrimSpace(newPassword) == "" {
		return resilient.FailWith[struct{}](resilient.Rejected, ErrMissingResetInput)
	}
	return resilient.Run(ctx, c.exec, c.policy, func(ctx context.Context) error {
		return c.remote.CompletePasswordReset(ctx, resetToken, newPassword)
	})
}
