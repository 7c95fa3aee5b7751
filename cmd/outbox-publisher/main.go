package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/coachcredits-backend/pkg/config"
	"github.com/angelmondragon/coachcredits-backend/pkg/db"
	"github.com/angelmondragon/coachcredits-backend/pkg/logger"
	"github.com/angelmondragon/coachcredits-backend/pkg/migrate"
	"github.com/angelmondragon/coachcredits-backend/pkg/outbox"
	"github.com/angelmondragon/coachcredits-backend/pkg/outbox/registry"
	"github.com/angelmondragon/coachcredits-backend/pkg/pubsub"
)

const serviceName = "outbox-publisher"

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
		logg.Error(ctx, "outbox_publisher.exited", err)
		os.Exit(1)
	}
	logg.Info(ctx, "outbox_publisher.stopped")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	routes, err := registry.New(cfg.PubSub)
	if err != nil {
		return err
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	topics, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, topics.Close()) }()

	relay, err := NewRelay(RelayParams{
		Outbox:     cfg.Outbox,
		Logger:     logg,
		DB:         dbClient,
		Topics:     topics,
		Repository: outbox.NewRepository(dbClient.DB()),
		DLQ:        outbox.NewDeadLetterRepository(dbClient.DB()),
		Registry:   routes,
	})
	if err != nil {
		return err
	}

	logg.Info(ctx, "outbox_publisher.started")
	return relay.Run(ctx)
}
