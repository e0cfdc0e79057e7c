package bff

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ghaggin/courier/internal/config"
	"github.com/ghaggin/courier/internal/model"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func TestNewOrdersFromConfig(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()

	seed := filepath.Join(dir, "seed.json")
	require.Nil(os.WriteFile(seed, []byte(`{"orders":[{"id":"o1","order_number":"1001","created_at":"2024-05-10T12:00:00Z"}]}`), 0o600))

	cfg := config.Default()
	cfg.BFF.DriversDB = filepath.Join(dir, "drivers.db")
	cfg.BFF.RestaurantsDB = filepath.Join(dir, "restaurants.db")
	cfg.BFF.SeedPath = seed

	lc := fxtest.NewLifecycle(t)
	orders, err := NewOrdersFromConfig(ordersParams{LC: lc, Config: cfg, Log: zap.NewNop()})
	require.Nil(err)
	lc.RequireStart()
	defer lc.RequireStop()

	ctx := context.Background()
	require.Nil(orders.UpdateStatus(ctx, "o1", model.StatusAccepted))
	report, err := orders.TestConnections(ctx)
	require.Nil(err)
	require.True(report.Success)
}
