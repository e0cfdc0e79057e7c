package driver

import (
	"context"

	"github.com/ghaggin/courier/internal/auth"
	"github.com/ghaggin/courier/internal/config"
	"github.com/ghaggin/courier/internal/model"
	"github.com/ghaggin/courier/internal/orderfeed"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Driver is the headless driver app: it restores or opens a session and
// follows the active order list.
type Driver struct {
	log    *zap.Logger
	config config.Driver
	auth   *auth.Controller
	feed   *orderfeed.Feed

	cancel context.CancelFunc
	done   chan struct{}
}

type Params struct {
	fx.In

	Log    *zap.Logger
	Config *config.Config
	Auth   *auth.Controller
	Feed   *orderfeed.Feed
}

func New(p Params) *Driver {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Driver{
		log:    log,
		config: p.Config.Driver,
		auth:   p.Auth,
		feed:   p.Feed,
	}
}

// RegisterHooks should be invoked by fx
func RegisterHooks(lc fx.Lifecycle, d *Driver) {
	lc.Append(fx.Hook{
		OnStart: d.Start,
		OnStop:  d.Stop,
	})
}

func (d *Driver) Start(_ context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.run(ctx)
	return nil
}

func (d *Driver) Stop(ctx context.Context) error {
	defer d.feed.Close()
	if d.cancel == nil {
		return nil
	}
	d.cancel()
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Driver) run(ctx context.Context) {
	defer close(d.done)

	state := d.auth.Restore(ctx)
	d.log.Info("session restore finished", zap.Stringer("state", state))

	if state == auth.Anonymous && d.config.Email != "" {
		out := d.auth.SignIn(ctx, d.config.Email, d.config.Password)
		if !out.OK() {
			d.log.Error("error signing in", zap.Stringer("kind", out.Kind()), zap.Error(out.Err()))
		} else {
			d.log.Info("signed in", zap.String("user_id", out.Value().UserID))
		}
	}

	sub := d.feed.Subscribe(ctx, model.Active())
	defer sub.Stop()

	for u := range sub.C {
		if u.Failure != nil {
			d.log.Warn("orders unavailable",
				zap.Stringer("kind", u.Failure.Kind),
				zap.Int("attempts", u.Failure.Attempts),
				zap.String("message", u.Failure.Message),
			)
			continue
		}
		d.log.Info("active orders",
			zap.Int("count", len(u.Orders)),
			zap.Strings("restaurants", orderfeed.Restaurants(u.Orders)),
			zap.Time("at", u.At),
		)
	}
}
