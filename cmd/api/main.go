package main

import (
	"cmp"
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/coachcredits-backend/api/controllers"
	"github.com/angelmondragon/coachcredits-backend/api/routes"
	"github.com/angelmondragon/coachcredits-backend/internal/assistant"
	"github.com/angelmondragon/coachcredits-backend/internal/credits"
	"github.com/angelmondragon/coachcredits-backend/internal/notifications"
	"github.com/angelmondragon/coachcredits-backend/internal/payments"
	"github.com/angelmondragon/coachcredits-backend/internal/quota"
	"github.com/angelmondragon/coachcredits-backend/internal/rewards"
	"github.com/angelmondragon/coachcredits-backend/internal/users"
	"github.com/angelmondragon/coachcredits-backend/pkg/auth"
	"github.com/angelmondragon/coachcredits-backend/pkg/config"
	"github.com/angelmondragon/coachcredits-backend/pkg/db"
	"github.com/angelmondragon/coachcredits-backend/pkg/logger"
	"github.com/angelmondragon/coachcredits-backend/pkg/metrics"
	"github.com/angelmondragon/coachcredits-backend/pkg/migrate"
	"github.com/angelmondragon/coachcredits-backend/pkg/outbox"
	"github.com/angelmondragon/coachcredits-backend/pkg/redis"
)

const (
	serviceName       = "api"
	shutdownTimeout   = 20 * time.Second
	readHeaderTimeout = 10 * time.Second
)

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

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "api.exited", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api.stopped")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	deps, err := buildDependencies(cfg, logg, dbClient, redisClient, registry)
	if err != nil {
		return err
	}

	// PORT is injected by the hosting platform and wins over config.
	addr := ":" + cmp.Or(os.Getenv("PORT"), cfg.App.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logg.Info(logg.WithField(ctx, "addr", addr), "api.listening")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func buildDependencies(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, registry *prometheus.Registry) (routes.Dependencies, error) {
	ledgerMetrics := metrics.NewLedgerMetrics(registry)
	conn := dbClient.DB()

	creditService, err := credits.NewService(credits.ServiceParams{
		Repo:            credits.NewRepository(conn),
		TxRunner:        dbClient,
		Logger:          logg,
		Metrics:         ledgerMetrics,
		TrialAmount:     cfg.Credits.TrialAmount,
		DefaultPageSize: cfg.Credits.TransactionsPage,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	userRepo := users.NewRepository(conn)
	outboxWriter := outbox.NewWriter(outbox.NewRepository(conn), logg)
	notificationService, err := notifications.NewService(notifications.NewRepository(conn), outboxWriter)
	if err != nil {
		return routes.Dependencies{}, err
	}

	rewardService, err := rewards.NewService(rewards.ServiceParams{
		Repo:    rewards.NewRepository(conn),
		Credits: creditService,
		Users: func(tx *gorm.DB) rewards.UserStore {
			return userRepo.WithTx(tx)
		},
		Notifications:       notificationService,
		Outbox:              outboxWriter,
		TxRunner:            dbClient,
		Logger:              logg,
		ReferralCredits:     cfg.Rewards.ReferralCredits,
		ReferralPremiumDays: cfg.Rewards.ReferralPremiumDays,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	reconciler, err := buildReconciler(cfg, logg, dbClient, redisClient, creditService, userRepo, notificationService, outboxWriter, ledgerMetrics)
	if err != nil {
		return routes.Dependencies{}, err
	}

	gate, err := quota.NewGate(quota.GateParams{
		Ledger:        creditService,
		Logger:        logg,
		Metrics:       ledgerMetrics,
		ActionTimeout: cfg.Credits.ActionTimeout,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}
	unlimited, err := cfg.Credits.UnlimitedIDs()
	if err != nil {
		return routes.Dependencies{}, err
	}
	tokens, err := auth.NewTokens(cfg.JWT)
	if err != nil {
		return routes.Dependencies{}, err
	}

	deps := routes.Dependencies{
		Health: map[string]controllers.Pinger{
			"database": dbClient,
			"redis":    redisClient,
		},
		Metrics:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		Credits:       creditService,
		Gate:          gate,
		Resolver:      quota.NewResolver(unlimited, userRepo),
		Notifications: notificationService,
		Rewards:       rewardService,
		Webhooks:      reconciler,
		Limiter:       redisClient,
		Responses:     redisClient,
		Tokens:        tokens,
	}

	completer, err := assistant.NewOpenAIClient(cfg.OpenAI)
	if err != nil {
		logg.Warn(logg.WithField(context.Background(), "error", err.Error()), "assistant disabled")
	} else {
		deps.Assistant = completer
	}
	return deps, nil
}

func buildReconciler(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	creditService credits.Service,
	userRepo *users.Repository,
	notificationService notifications.Service,
	outboxWriter *outbox.Writer,
	ledgerMetrics *metrics.LedgerMetrics,
) (*payments.Reconciler, error) {
	verifier, err := payments.NewVerifier(cfg.Payments.WebhookSecret)
	if err != nil {
		return nil, err
	}
	catalog, err := cfg.Payments.Catalog()
	if err != nil {
		return nil, err
	}
	guard, err := payments.NewIdempotencyGuard(redisClient, cfg.Payments.IdempotencyTTL)
	if err != nil {
		return nil, err
	}
	conn := dbClient.DB()
	return payments.NewReconciler(payments.ReconcilerParams{
		Provider:      cfg.Payments.Provider,
		Verifier:      verifier,
		Catalog:       payments.NewCatalog(catalog),
		Orders:        payments.NewOrderRepository(conn),
		Audit:         payments.NewAuditRepository(conn),
		Credits:       creditService,
		Users:         userRepo,
		Notifications: notificationService,
		Outbox:        outboxWriter,
		Guard:         guard,
		TxRunner:      dbClient,
		Logger:        logg,
		Metrics:       ledgerMetrics,
	})
}
