package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/coachcredits-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/coachcredits-backend/api/controllers/webhooks"
	"github.com/angelmondragon/coachcredits-backend/api/middleware"
	"github.com/angelmondragon/coachcredits-backend/internal/assistant"
	"github.com/angelmondragon/coachcredits-backend/internal/credits"
	"github.com/angelmondragon/coachcredits-backend/internal/notifications"
	"github.com/angelmondragon/coachcredits-backend/internal/quota"
	"github.com/angelmondragon/coachcredits-backend/internal/rewards"
	"github.com/angelmondragon/coachcredits-backend/pkg/config"
	"github.com/angelmondragon/coachcredits-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/coachcredits-backend/pkg/redis"
)

// Dependencies carries everything the HTTP surface needs. Nil optional
// collaborators (Limiter, Responses, Metrics) disable their feature.
type Dependencies struct {
	Health        map[string]controllers.Pinger
	Metrics       http.Handler
	Credits       credits.Service
	Gate          quota.Gate
	Resolver      controllers.PrincipalResolver
	Assistant     assistant.Completer
	Notifications notifications.Service
	Rewards       rewards.Service
	Webhooks      webhookcontrollers.PaymentWebhookService
	Limiter       pkgredis.RateLimiter
	Responses     middleware.ResponseStore
	Tokens        middleware.TokenVerifier
}

const (
	chatReplayTTL  = 24 * time.Hour
	grantReplayTTL = 7 * 24 * time.Hour
)

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins()),
	)

	authn := middleware.Auth(deps.Tokens, logg)
	chatPolicy := middleware.NewRateLimitPolicy("chat", cfg.Credits.ChatRateWindow, cfg.Credits.ChatRateLimit)
	chatReplay := middleware.Idempotent(deps.Responses, chatReplayTTL, logg)
	grantReplay := middleware.Idempotent(deps.Responses, grantReplayTTL, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.Health, logg))
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payments", webhookcontrollers.PaymentWebhook(deps.Webhooks, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authn)

		r.Route("/credits", func(r chi.Router) {
			r.Get("/balance", controllers.CreditBalance(deps.Credits, logg))
			r.Get("/transactions", controllers.CreditTransactions(deps.Credits, cfg.Credits.TransactionsPage, logg))
			r.Get("/admission", controllers.CreditAdmission(deps.Gate, deps.Resolver, logg))
		})

		r.Route("/assistant", func(r chi.Router) {
			r.Use(middleware.RateLimit(chatPolicy, deps.Limiter, logg))
			r.With(chatReplay).Post("/messages", controllers.AssistantMessage(deps.Gate, deps.Resolver, deps.Assistant, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(authn, middleware.RequireStaff(logg))

		r.With(grantReplay).Post("/referrals/{referralId}/reward", controllers.AdminGrantReferralReward(deps.Rewards, logg))
		r.With(grantReplay).Post("/users/{userId}/trial", controllers.AdminGrantTrial(deps.Rewards, logg))
		r.Get("/credits/{userId}/audit", controllers.AdminCreditAudit(deps.Credits, logg))
	})

	return r
}
