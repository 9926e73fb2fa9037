package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/concord-im/concord/internal/app"
	"github.com/concord-im/concord/internal/config"
	"github.com/concord-im/concord/internal/log"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file (default: ./config.yaml)")
	flag.Parse()

	bootLogger := log.New("info", true)

	cfg, path, err := config.Load(bootLogger, configPath)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := log.New(cfg.LogLevel, cfg.LogPretty)
	logger.Info().Str("config", path).Str("addr", cfg.Addr).Msg("starting concord server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize application")
	}

	if err := application.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server exited with error")
	}
	logger.Info().Msg("server stopped")
}
