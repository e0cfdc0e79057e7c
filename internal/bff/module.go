package bff

import (
	"context"
	"errors"

	"github.com/ghaggin/courier/internal/config"
	"github.com/ghaggin/courier/internal/dataservice"
	"github.com/ghaggin/courier/internal/token"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Options(
	fx.Provide(
		NewOrdersFromConfig,
		token.NewFromConfig,
		New,
	),
)

type ordersParams struct {
	fx.In

	LC     fx.Lifecycle
	Config *config.Config
	Log    *zap.Logger
}

// NewOrdersFromConfig opens the drivers and restaurants sqlite databases.
func NewOrdersFromConfig(p ordersParams) (*Orders, error) {
	drivers, err := dataservice.Open(p.Config.BFF.DriversDB)
	if err != nil {
		return nil, err
	}
	restaurants, err := dataservice.Open(p.Config.BFF.RestaurantsDB)
	if err != nil {
		_ = drivers.Close()
		return nil, err
	}
	for _, base := range []*dataservice.Store{drivers, restaurants} {
		if err := dataservice.SeedFromFile(context.Background(), base, p.Config.BFF.SeedPath, p.Log); err != nil {
			_ = drivers.Close()
			_ = restaurants.Close()
			return nil, err
		}
	}
	p.LC.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return errors.Join(drivers.Close(), restaurants.Close())
		},
	})
	return NewOrders(drivers, restaurants, p.Log), nil
}
