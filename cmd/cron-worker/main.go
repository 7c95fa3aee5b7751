package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/coachcredits-backend/internal/credits"
	"github.com/angelmondragon/coachcredits-backend/internal/cron"
	"github.com/angelmondragon/coachcredits-backend/internal/notifications"
	"github.com/angelmondragon/coachcredits-backend/pkg/config"
	"github.com/angelmondragon/coachcredits-backend/pkg/db"
	"github.com/angelmondragon/coachcredits-backend/pkg/logger"
	"github.com/angelmondragon/coachcredits-backend/pkg/metrics"
	"github.com/angelmondragon/coachcredits-backend/pkg/migrate"
	"github.com/angelmondragon/coachcredits-backend/pkg/outbox"
	"github.com/angelmondragon/coachcredits-backend/pkg/redis"
)

const serviceName = "cron-worker"

func main() {
	bootLogger := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		bootLogger.Warn(context.Background(), "no .env file; using process environment")
	}
	cfg, err := config.Load()
	if err != nil {
		bootLogger.Error(context.Background(), "config.load_failed", err)
		os.Exit(1)
	}
	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron_worker.exited", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron_worker.stopped")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer closeQuietly(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer closeQuietly(ctx, logg, "redis", redisClient.Close)

	jobs, err := maintenanceJobs(cfg, logg, dbClient)
	if err != nil {
		return err
	}
	locker, err := cron.NewRedisLocker(redisClient, redisClient.LockKey("maintenance:"+envOrLocal(cfg.App.Env)), 0)
	if err != nil {
		return err
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Locker:   locker,
		Jobs:     jobs.list,
		Metrics:  jobs.metrics,
		Interval: cfg.Maintenance.Interval,
	})
	if err != nil {
		return err
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"jobs":     service.JobNames(),
		"interval": cfg.Maintenance.Interval.String(),
	}), "cron_worker.started")
	return service.Run(ctx)
}

type jobSet struct {
	list    []cron.Job
	metrics *metrics.JobMetrics
}

func maintenanceJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (jobSet, error) {
	conn := dbClient.DB()
	set := jobSet{metrics: metrics.NewJobMetrics(prometheus.DefaultRegisterer)}

	ledger := credits.NewRepository(conn)
	auditor, err := credits.NewService(credits.ServiceParams{Repo: ledger, TxRunner: dbClient, Logger: logg})
	if err != nil {
		return set, err
	}
	audit, err := cron.NewLedgerAuditJob(cron.LedgerAuditJobParams{
		Logger:    logg,
		Accounts:  ledger,
		Auditor:   auditor,
		Metrics:   set.metrics,
		BatchSize: cfg.Maintenance.AuditBatchSize,
	})
	if err != nil {
		return set, fmt.Errorf("ledger audit job: %w", err)
	}
	notificationsJob, err := cron.NewNotificationRetentionJob(logg, notifications.NewRepository(conn), cfg.Maintenance.NotificationRetention)
	if err != nil {
		return set, fmt.Errorf("notification retention job: %w", err)
	}
	outboxJob, err := cron.NewOutboxRetentionJob(logg, outbox.NewRepository(conn), cfg.Maintenance.OutboxRetention)
	if err != nil {
		return set, fmt.Errorf("outbox retention job: %w", err)
	}
	set.list = []cron.Job{audit, notificationsJob, outboxJob}
	return set, nil
}

func envOrLocal(env string) string {
	if env == "" {
		return "local"
	}
	return env
}

func closeQuietly(ctx context.Context, logg *logger.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Warn(logg.WithFields(ctx, map[string]any{"resource": what, "error": err.Error()}), "cron_worker.close_failed")
	}
}
