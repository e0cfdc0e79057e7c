package driver

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2/memstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/ghaggin/courier/internal/auth"
	"github.com/ghaggin/courier/internal/config"
	"github.com/ghaggin/courier/internal/connectivity"
	"github.com/ghaggin/courier/internal/model"
	"github.com/ghaggin/courier/internal/orderfeed"
	"github.com/ghaggin/courier/internal/remote/remotetest"
	"github.com/ghaggin/courier/internal/resilient"
	"github.com/ghaggin/courier/internal/sessionstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
)

func TestDriver_signsInAndFollowsOrders(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	fake := &remotetest.Fake{
		SignInFunc: func(_ context.Context, email, password string) (model.Session, error) {
			assert.Equal("driver@example.com", email)
			assert.Equal("secret1", password)
			return model.Session{UserID: "d1", AccessToken: "at", RefreshToken: "rt", Expiry: time.Now().Add(time.Hour)}, nil
		},
		ListOrdersFunc: func(_ context.Context, tok string, filter model.OrderFilter) ([]model.Order, error) {
			assert.Equal("at", tok)
			assert.Equal(model.Active(), filter)
			return []model.Order{{ID: "o1", RestaurantName: "Americana"}}, nil
		},
	}

	exec := resilient.New(connectivity.Always(true))
	policy := resilient.RetryPolicy{MaxAttempts: 1}
	store := sessionstore.New(memstore.NewWithCleanupInterval(0), nil)
	ctl := auth.New(fake, store, exec, auth.WithPolicy(policy))
	feed := orderfeed.New(ctl, fake, exec, orderfeed.WithPolicy(policy), orderfeed.WithStrategy(orderfeed.Poller{Interval: time.Hour}))

	cfg := config.Default()
	cfg.Driver = config.Driver{Email: "driver@example.com", Password: "secret1"}
	d := New(Params{Config: cfg, Auth: ctl, Feed: feed})

	require.Nil(d.Start(context.Background()))
	require.Eventually(func() bool {
		return fake.Calls("ListOrders") >= 1
	}, 2*time.Second, 5*time.Millisecond)

	require.Nil(d.Stop(context.Background()))
	assert.Equal(1, fake.Calls("SignIn"))
	assert.Equal(auth.Authenticated, ctl.State())

	s, ok, err := store.Load(context.Background())
	require.Nil(err)
	require.True(ok)
	assert.Equal("d1", s.UserID)
}

func TestDriver_stopBeforeStart(t *testing.T) {
	exec := resilient.New(connectivity.Always(true))
	store := sessionstore.New(memstore.NewWithCleanupInterval(0), nil)
	ctl := auth.New(&remotetest.Fake{}, store, exec)
	d := New(Params{Config: config.Default(), Auth: ctl, Feed: orderfeed.New(ctl, &remotetest.Fake{}, exec)})
	assert.Nil(t, d.Stop(context.Background()))
}

func TestNewSessionBackend(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := map[string]struct {
		cfg     config.SessionStore
		wantErr bool
	}{
		"file":    {cfg: config.SessionStore{Backend: config.BackendFile, Path: filepath.Join(t.TempDir(), "session.json")}},
		"redis":   {cfg: config.SessionStore{Backend: config.BackendRedis, RedisAddr: mr.Addr()}},
		"memory":  {cfg: config.SessionStore{Backend: config.BackendMemory}},
		"unknown": {cfg: config.SessionStore{Backend: "etcd"}, wantErr: true},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)
			lc := fxtest.NewLifecycle(t)
			cfg := config.Default()
			cfg.SessionStore = tt.cfg

			backend, err := NewSessionBackend(backendParams{LC: lc, Config: cfg})
			if tt.wantErr {
				require.NotNil(err)
				return
			}
			require.Nil(err)
			lc.RequireStart()
			defer lc.RequireStop()

			ctx := context.Background()
			store := NewSessionStore(backend, cfg, nil)
			session := model.Session{UserID: "d1", AccessToken: "at", Expiry: time.Now().Add(time.Hour).UTC().Truncate(time.Second)}
			require.Nil(store.Save(ctx, session))
			got, ok, err := store.Load(ctx)
			require.Nil(err)
			require.True(ok)
			require.Equal(session, got)
		})
	}
}

func TestNewRemote(t *testing.T) {
	cfg := config.Default()
	svc, err := NewRemote(cfg, nil)
	assert.Nil(t, err)
	assert.NotNil(t, svc)

	cfg.Remote.BaseURL = "://missing-scheme"
	_, err = NewRemote(cfg, nil)
	assert.NotNil(t, err)
}

func TestNewFeed_strategy(t *testing.T) {
	cfg := config.Default()
	exec := NewExecutor(connectivity.Always(true), nil)
	ctl := NewAuth(&remotetest.Fake{}, sessionstore.New(memstore.NewWithCleanupInterval(0), nil), exec, NewPolicy(cfg), nil)

	assert.NotNil(t, NewFeed(ctl, &remotetest.Fake{}, exec, NewPolicy(cfg), cfg, nil))
	cfg.Orders.Strategy = config.StrategyPush
	assert.NotNil(t, NewFeed(ctl, &remotetest.Fake{}, exec, NewPolicy(cfg), cfg, nil))
}
