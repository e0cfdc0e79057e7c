package dataservice

import (
	"context"

	"github.com/ghaggin/courier/internal/config"
	"github.com/ghaggin/courier/internal/token"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Options(
	fx.Provide(
		NewStoreFromConfig,
		token.NewFromConfig,
		NewBroadcaster,
		NewServiceFromConfig,
		New,
	),
)

type storeParams struct {
	fx.In

	LC     fx.Lifecycle
	Config *config.Config
	Log    *zap.Logger
}

func NewStoreFromConfig(p storeParams) (*Store, error) {
	s, err := Open(p.Config.DataService.DBPath)
	if err != nil {
		return nil, err
	}
	if err := SeedFromFile(context.Background(), s, p.Config.DataService.SeedPath, p.Log); err != nil {
		_ = s.Close()
		return nil, err
	}
	p.LC.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return s.Close()
		},
	})
	return s, nil
}

func NewServiceFromConfig(c *config.Config, s *Store, tokens *token.Manager, b *Broadcaster, log *zap.Logger) *Service {
	return NewService(s, tokens, b, ServiceConfig{
		RefreshTTL:               c.Token.RefreshTTL,
		RequireEmailConfirmation: c.DataService.RequireEmailConfirmation,
	}, log)
}

// SeedFromFile applies the seed at path to s. An empty path does nothing.
func SeedFromFile(ctx context.Context, s *Store, path string, log *zap.Logger) error {
	if path == "" {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	seed, err := ReadSeed(path)
	if err != nil {
		return err
	}
	n, err := seed.Apply(ctx, s)
	if err != nil {
		return err
	}
	log.Info("seeded orders", zap.String("path", path), zap.Int("added", n))
	return nil
}
