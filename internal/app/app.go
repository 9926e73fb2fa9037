// Package app wires the store, services, gateway core, and transport together.
package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/concord-im/concord/internal/auth"
	"github.com/concord-im/concord/internal/config"
	"github.com/concord-im/concord/internal/core"
	"github.com/concord-im/concord/internal/service/chat"
	"github.com/concord-im/concord/internal/store"
	"github.com/concord-im/concord/internal/store/memory"
	storemongo "github.com/concord-im/concord/internal/store/mongo"
	transporthttp "github.com/concord-im/concord/internal/transport/http"
)

// App holds the running pieces of the server process.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with the provided configuration. An empty
// Mongo URI selects the in-memory store, which loses everything on restart.
func New(ctx context.Context, cfg config.Config, logger *zerolog.Logger) (*App, error) {
	var st store.Store
	if cfg.MongoURI == "" {
		logger.Warn().Msg("no mongo uri configured, using in-memory store")
		st = memory.New()
	} else {
		mongoStore, err := storemongo.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		logger.Info().Str("database", cfg.MongoDatabase).Msg("mongo store initialized")
		st = mongoStore
	}

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
	authService := auth.NewService(st, jwtConfig)

	registry := core.NewRegistry()
	dispatch := core.NewDispatcher(registry, logger)
	handshake := core.NewHandshake(registry, authService, logger)
	chatService := chat.NewService(st, dispatch, logger)

	server := transporthttp.NewServer(cfg, transporthttp.Deps{
		Auth:      authService,
		Chat:      chatService,
		Registry:  registry,
		Handshake: handshake,
		Users:     st,
	}, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or a fatal
// listener error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the store.
func (a *App) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	if err := a.store.Close(ctx); err != nil {
		a.log.Warn().Err(err).Msg("failed to close store")
	} else {
		a.log.Info().Msg("store closed")
	}
}
