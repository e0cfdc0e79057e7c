package driver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/alexedwards/scs/v2"
	"github.com/alexedwards/scs/v2/memstore"
	"github.com/ghaggin/courier/internal/auth"
	"github.com/ghaggin/courier/internal/config"
	"github.com/ghaggin/courier/internal/connectivity"
	"github.com/ghaggin/courier/internal/orderfeed"
	"github.com/ghaggin/courier/internal/remote"
	"github.com/ghaggin/courier/internal/resilient"
	"github.com/ghaggin/courier/internal/sessionstore"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Options(
	fx.Provide(
		NewPolicy,
		NewProbe,
		NewExecutor,
		NewSessionBackend,
		NewSessionStore,
		NewRemote,
		NewAuth,
		NewFeed,
		New,
	),
)

func NewPolicy(c *config.Config) resilient.RetryPolicy {
	return resilient.RetryPolicy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   c.Retry.BaseDelay,
	}
}

func NewProbe(c *config.Config, log *zap.Logger) resilient.Probe {
	return connectivity.NewNetProbe(c.Connectivity.URL, log, connectivity.WithTimeout(c.Connectivity.Timeout))
}

func NewExecutor(probe resilient.Probe, log *zap.Logger) *resilient.Executor {
	return resilient.New(probe, resilient.WithLogger(log))
}

type backendParams struct {
	fx.In

	LC     fx.Lifecycle
	Config *config.Config
}

// NewSessionBackend picks the key-value store the session is kept in.
func NewSessionBackend(p backendParams) (scs.Store, error) {
	c := p.Config.SessionStore
	switch c.Backend {
	case config.BackendFile:
		return sessionstore.NewFileBackend(c.Path), nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		p.LC.Append(fx.Hook{
			OnStop: func(_ context.Context) error {
				return client.Close()
			},
		})
		return sessionstore.NewRedisBackend(client, ""), nil
	case config.BackendMemory:
		store := memstore.New()
		p.LC.Append(fx.Hook{
			OnStop: func(_ context.Context) error {
				store.StopCleanup()
				return nil
			},
		})
		return store, nil
	}
	return nil, fmt.Errorf("session backend %q: unsupported", c.Backend)
}

func NewSessionStore(backend scs.Store, c *config.Config, log *zap.Logger) *sessionstore.Store {
	return sessionstore.New(backend, log,
		sessionstore.WithKey(c.SessionStore.Key),
		sessionstore.WithRetention(c.Token.RefreshTTL),
	)
}

// NewRemote builds the data service client. The change stream gets its
// own client because it stays open past any request timeout.
func NewRemote(c *config.Config, log *zap.Logger) (remote.Service, error) {
	u, err := url.Parse(c.Remote.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("remote base url: %w", err)
	}
	return remote.NewClient(&http.Client{Timeout: c.Remote.Timeout}, &http.Client{}, *u, log), nil
}

func NewAuth(svc remote.Service, store *sessionstore.Store, exec *resilient.Executor, policy resilient.RetryPolicy, log *zap.Logger) *auth.Controller {
	return auth.New(svc, store, exec, auth.WithPolicy(policy), auth.WithLogger(log))
}

func NewFeed(ctl *auth.Controller, svc remote.Service, exec *resilient.Executor, policy resilient.RetryPolicy, c *config.Config, log *zap.Logger) *orderfeed.Feed {
	opts := []orderfeed.Option{orderfeed.WithPolicy(policy), orderfeed.WithLogger(log)}
	if c.Orders.Strategy == config.StrategyPush {
		opts = append(opts, orderfeed.WithPush(c.Orders.PollInterval))
	} else {
		opts = append(opts, orderfeed.WithStrategy(orderfeed.Poller{Interval: c.Orders.PollInterval}))
	}
	return orderfeed.New(ctl, svc, exec, opts...)
}
