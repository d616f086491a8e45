package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/a2abus-protocol/a2abus/internal/a2a"
	"github.com/a2abus-protocol/a2abus/internal/api"
	"github.com/a2abus-protocol/a2abus/internal/broker"
	"github.com/a2abus-protocol/a2abus/internal/config"
	"github.com/a2abus-protocol/a2abus/internal/dispatch"
	"github.com/a2abus-protocol/a2abus/internal/handlers"
	"github.com/a2abus-protocol/a2abus/internal/hub"
	"github.com/a2abus-protocol/a2abus/internal/session"
	"github.com/a2abus-protocol/a2abus/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize message store: PostgreSQL when configured, SQLite otherwise
	var dataStore store.DataStore
	if cfg.DatabaseURL != "" {
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Msg("migrations completed")

		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		dataStore = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		dataStore = sqliteStore
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite store")
	}
	defer dataStore.Close()

	// Initialize broker
	redisBroker, err := broker.NewRedisBroker(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer redisBroker.Close()
	logger.Info().Msg("connected to Redis")

	// Wire services: dispatcher owns the connection manager; the manager
	// never reaches back into dispatcher state.
	svc := a2a.NewService(dataStore, redisBroker, logger, cfg.RequestTimeout)
	defer svc.Close()

	manager := hub.NewManager(logger)
	sess := session.NewHandler(manager, logger)
	dispatcher := dispatch.NewDispatcher(redisBroker, manager, logger, cfg.TargetLatency, cfg.MaxEventsPerSec)

	go dispatcher.Run(ctx)

	// Create router
	h := handlers.NewHandler(svc, manager, dispatcher, sess, dataStore, redisBroker)
	router := api.NewRouter(logger, cfg, h)

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting a2abus server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")
	cancel()

	// Graceful shutdown with 30 second timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
