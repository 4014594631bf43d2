package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/careloop/scheduling/internal/api"
	"github.com/careloop/scheduling/internal/appointment"
	"github.com/careloop/scheduling/internal/availability"
	"github.com/careloop/scheduling/internal/config"
	"github.com/careloop/scheduling/internal/db"
	"github.com/careloop/scheduling/internal/directory"
	"github.com/careloop/scheduling/internal/logging"
	"github.com/careloop/scheduling/internal/notify"
	redisclient "github.com/careloop/scheduling/internal/redis"
)

const version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("dev", "api-server")
		bootLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, "api-server")
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	repo := appointment.NewPgRepository(pgPool)
	profiles := availability.NewPgProfileStore(pgPool)
	providers := directory.NewPgDirectory(pgPool)
	locker := redisclient.NewRedisScheduleLocker(rdb, cfg.LockTTL)
	notifier := notify.NewLogNotifier(logger)

	appointments := appointment.NewService(repo, profiles, providers, locker, notifier, logger)
	scanner := availability.NewScanner(profiles, repo)

	router := api.NewRouter(api.RouterConfig{
		Appointments: appointments,
		Scanner:      scanner,
		Profiles:     profiles,
		Providers:    providers,
		PgPool:       pgPool,
		Redis:        rdb,
		Logger:       logger,
		Env:          cfg.Env,
		Version:      version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-rootCtx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown error")
	}

	logger.Info().Msg("api-server stopped")
}
