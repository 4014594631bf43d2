package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/careloop/scheduling/internal/appointment"
	"github.com/careloop/scheduling/internal/availability"
	"github.com/careloop/scheduling/internal/config"
	"github.com/careloop/scheduling/internal/db"
	"github.com/careloop/scheduling/internal/directory"
	"github.com/careloop/scheduling/internal/logging"
	"github.com/careloop/scheduling/internal/notify"
	redisclient "github.com/careloop/scheduling/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("dev", "sweep-worker")
		bootLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, "sweep-worker")
	logger.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.SweepInterval).
		Dur("stale_after", cfg.SweepStaleAfter).
		Msg("sweep-worker starting up")

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

	svc := appointment.NewService(repo, profiles, providers, locker, notifier, logger)

	// Run once at startup
	runOnce(rootCtx, svc, cfg.SweepStaleAfter, logger)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping sweep worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, cfg.SweepStaleAfter, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, staleAfter time.Duration, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	swept, err := svc.SweepStaleUnassigned(runCtx, staleAfter)
	if err != nil {
		logger.Error().Err(err).Msg("sweep run error")
		return
	}
	logger.Info().Int("swept", swept).Dur("took", time.Since(start)).Msg("sweep run complete")
}
