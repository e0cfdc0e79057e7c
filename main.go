package main

import (
	"flag"

	"github.com/ghaggin/courier/internal/bff"
	"github.com/ghaggin/courier/internal/config"
	"github.com/ghaggin/courier/internal/dataservice"
	"github.com/ghaggin/courier/internal/driver"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	var mode = flag.String("mode", "", "one of data, bff or driver")
	flag.Parse()

	deps := fx.Options(
		fx.Provide(
			zap.NewDevelopment,
			config.New,
		),
	)

	var app *fx.App
	switch config.Mode(*mode) {
	case config.ModeData:
		app = fx.New(
			deps,
			dataservice.Module,
			fx.Invoke(dataservice.RegisterHooks),
		)
	case config.ModeBFF:
		app = fx.New(
			deps,
			bff.Module,
			fx.Invoke(bff.RegisterHooks),
		)
	case config.ModeDriver:
		app = fx.New(
			deps,
			driver.Module,
			fx.Invoke(driver.RegisterHooks),
		)
	default:
		panic("unrecognized mode")
	}

	app.Run()
}
