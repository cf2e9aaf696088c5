package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/dealroom-backend/internal/cron"
	"github.com/angelmondragon/dealroom-backend/internal/notifications"
	"github.com/angelmondragon/dealroom-backend/internal/signatures"
	"github.com/angelmondragon/dealroom-backend/pkg/config"
	"github.com/angelmondragon/dealroom-backend/pkg/db"
	"github.com/angelmondragon/dealroom-backend/pkg/logger"
	"github.com/angelmondragon/dealroom-backend/pkg/metrics"
	"github.com/angelmondragon/dealroom-backend/pkg/migrate"
	"github.com/angelmondragon/dealroom-backend/pkg/outbox"
	"github.com/angelmondragon/dealroom-backend/pkg/redis"
)

const cronTick = 5 * time.Minute

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

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := metrics.NewRegistry()
	workflowMetrics := metrics.NewWorkflowMetrics(registry)
	jobMetrics := metrics.NewCronJobMetrics(registry)

	jobs, err := buildJobs(logg, dbClient, workflowMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to build cron jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, cron.LockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: jobs,
		Lock:     lock,
		Metrics:  jobMetrics,
		Tick:     cronTick,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	metrics.Serve(ctx, cfg.Service.MetricsAddr, registry, logg)
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildJobs(logg *logger.Logger, dbClient *db.Client, workflowMetrics *metrics.WorkflowMetrics) (*cron.Registry, error) {
	notificationRepo := notifications.NewRepository(dbClient.DB())
	notifier, err := notifications.NewDispatcher(notificationRepo, logg, workflowMetrics)
	if err != nil {
		return nil, err
	}

	reminders, err := cron.NewSignatureReminderJob(cron.SignatureReminderJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: signatures.NewRepository(dbClient.DB()),
		Notifier:   notifier,
	})
	if err != nil {
		return nil, err
	}
	cleanup, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		Repository: notificationRepo,
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		DLQ:        outbox.NewDLQRepository(dbClient.DB()),
	})
	if err != nil {
		return nil, err
	}
	return cron.NewRegistry(reminders, cleanup, retention)
}
