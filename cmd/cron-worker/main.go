package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/tillpoint/epos-backend/internal/cron"
	"github.com/tillpoint/epos-backend/internal/products"
	"github.com/tillpoint/epos-backend/pkg/config"
	"github.com/tillpoint/epos-backend/pkg/db"
	"github.com/tillpoint/epos-backend/pkg/logger"
	"github.com/tillpoint/epos-backend/pkg/metrics"
	"github.com/tillpoint/epos-backend/pkg/migrate"
	"github.com/tillpoint/epos-backend/pkg/outbox"
	"github.com/tillpoint/epos-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	locker, err := redis.NewLocker(redisClient, cfg.Cron.LockTTL)
	if err != nil {
		return err
	}
	lock, err := cron.NewLockerLock(locker, lockName(cfg.App.Env))
	if err != nil {
		return err
	}

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		Retention:  cfg.Cron.OutboxRetention,
		Batch:      cfg.Cron.OutboxPurgeBatch,
	})
	if err != nil {
		return err
	}
	audit, err := cron.NewStockAuditJob(cron.StockAuditJobParams{
		Logger:   logg,
		Products: products.NewRepository(dbClient.DB()),
		Gauge:    metrics.NewStockMetrics(prometheus.DefaultRegisterer),
		Limit:    cfg.Cron.StockAuditLimit,
	})
	if err != nil {
		return err
	}

	registry := cron.NewRegistry(retention, audit)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
		Budget:   cfg.Cron.LockTTL,
	})
	if err != nil {
		return err
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"interval": cfg.Cron.Interval.String(),
		"jobs":     registry.Names(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
	return nil
}

func lockName(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
