package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/tasktrail/internal/audit"
	"github.com/gosuda/tasktrail/internal/auth"
	"github.com/gosuda/tasktrail/internal/config"
	"github.com/gosuda/tasktrail/internal/server"
	"github.com/gosuda/tasktrail/internal/store/postgres"
	"github.com/gosuda/tasktrail/internal/store/postgres/migrations"
	redisstore "github.com/gosuda/tasktrail/internal/store/redis"
	"github.com/gosuda/tasktrail/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	// Initialize structured logging from environment.
	level, parseErr := zerolog.ParseLevel(os.Getenv("TASKTRAIL_LOG_LEVEL"))
	if parseErr != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if os.Getenv("TASKTRAIL_LOG_FORMAT") == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
		return fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
	}

	// Connect to PostgreSQL.
	store, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.Database.AutoMigrate {
		if err := migrations.Up(ctx, store.Pool()); err != nil {
			return err
		}
		log.Info().Msg("database migrations applied")
	}

	// Metrics registry shared by the recorder, the HTTP middleware and the
	// metrics listener.
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(registry)

	recorderOpts := []audit.Option{
		audit.WithMetrics(metrics),
		audit.WithWriteTimeout(cfg.Audit.WriteTimeout),
	}
	deps := server.Deps{
		Store:    store,
		Queries:  audit.NewQueryService(store.Audit(), metrics),
		Metrics:  metrics,
		Gatherer: registry,
	}

	// Redis is optional: without it there is no live feed and no stats cache.
	if cfg.Redis.Addr != "" {
		pubsub, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer pubsub.Close()

		recorderOpts = append(recorderOpts, audit.WithPublisher(pubsub))
		deps.Subscriber = pubsub
		deps.Cache = pubsub
	} else {
		log.Warn().Msg("TASKTRAIL_REDIS_ADDR not set: live audit feed and stats cache disabled")
	}

	deps.Recorder = audit.NewRecorder(store.Audit(), recorderOpts...)
	deps.Auth = auth.NewService(store.Users(), cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)

	// Create HTTP server with all routes wired.
	srv := server.New(ctx, cfg, deps)

	// Start server in background goroutine.
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
			cancel()
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	log.Info().Msg("stopped")
	return nil
}
