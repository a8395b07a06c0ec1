// Command skinwatch tracks a CS2 item portfolio across marketplaces and
// notifies owners about price changes, target prices and portfolio moves.
//
// Usage:
//
//	skinwatch --config config.yaml
//	skinwatch --setup (interactive wizard, writes config.gen.yaml)
//	skinwatch (built-in defaults)
//
// Optional environment variables:
//
//	SKINWATCH_TELEGRAM_TOKEN, SKINWATCH_DATA_DIR
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/vadiminshakov/skinwatch/config"
	"github.com/vadiminshakov/skinwatch/internal"
	"github.com/vadiminshakov/skinwatch/internal/setup"
	"go.uber.org/zap"
)

func main() {
	flags := config.ParseFlags()

	path := flags.ConfigPath
	if flags.Setup {
		generated, err := setup.RunTUI()
		if err != nil {
			log.Fatal(err)
		}
		path = generated
	}

	conf, err := config.Load(path)
	if err != nil {
		log.Fatal(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	app, err := internal.NewApp(conf, logger)
	if err != nil {
		logger.Fatal("failed to start skinwatch", zap.Error(err))
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("skinwatch stopped", zap.Error(err))
	}
}
