package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Credits      CreditsConfig
	Payments     PaymentsConfig
	Rewards      RewardsConfig
	OpenAI       OpenAIConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Maintenance  MaintenanceConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Payments.Catalog(); err != nil {
		return nil, err
	}
	if _, err := cfg.Credits.UnlimitedIDs(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"COACHCREDITS_APP_ENV" required:"true"`
	Port         string `envconfig:"COACHCREDITS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"COACHCREDITS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"COACHCREDITS_LOG_WARN_STACK" default:"false"`
	CORSOrigins  string `envconfig:"COACHCREDITS_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// AllowedOrigins splits the comma separated CORS origin list.
func (a AppConfig) AllowedOrigins() []string {
	origins := []string{}
	for _, origin := range strings.Split(a.CORSOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

type DBConfig struct {
	DSN    string `envconfig:"COACHCREDITS_DB_DSN"`
	Driver string `envconfig:"COACHCREDITS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"COACHCREDITS_DB_HOST"`
	LegacyPort     int    `envconfig:"COACHCREDITS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"COACHCREDITS_DB_USER"`
	LegacyPassword string `envconfig:"COACHCREDITS_DB_PASSWORD"`
	LegacyName     string `envconfig:"COACHCREDITS_DB_NAME"`
	LegacySSLMode  string `envconfig:"COACHCREDITS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"COACHCREDITS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"COACHCREDITS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"COACHCREDITS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"COACHCREDITS_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"COACHCREDITS_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"COACHCREDITS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"COACHCREDITS_REDIS_ADDR"`
	Password     string        `envconfig:"COACHCREDITS_REDIS_PASSWORD"`
	DB           int           `envconfig:"COACHCREDITS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"COACHCREDITS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"COACHCREDITS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"COACHCREDITS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"COACHCREDITS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"COACHCREDITS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"COACHCREDITS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"COACHCREDITS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"COACHCREDITS_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"COACHCREDITS_AUTO_MIGRATE" default:"false"`
}

type CreditsConfig struct {
	TrialAmount      int64         `envconfig:"COACHCREDITS_TRIAL_CREDITS" default:"25"`
	UnlimitedUsers   string        `envconfig:"COACHCREDITS_UNLIMITED_USER_IDS"`
	ActionTimeout    time.Duration `envconfig:"COACHCREDITS_ACTION_TIMEOUT" default:"60s"`
	ChatRateLimit    int64         `envconfig:"COACHCREDITS_CHAT_RATE_LIMIT" default:"20"`
	ChatRateWindow   time.Duration `envconfig:"COACHCREDITS_CHAT_RATE_WINDOW" default:"1m"`
	TransactionsPage int           `envconfig:"COACHCREDITS_TRANSACTIONS_PAGE_SIZE" default:"20"`
}

// UnlimitedIDs parses the comma separated list of user ids that bypass credit checks.
func (c CreditsConfig) UnlimitedIDs() (map[uuid.UUID]struct{}, error) {
	ids := map[uuid.UUID]struct{}{}
	for _, raw := range strings.Split(c.UnlimitedUsers, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s entry %q: %w", EnvUnlimitedUserIDs, raw, err)
		}
		ids[id] = struct{}{}
	}
	return ids, nil
}

type PaymentsConfig struct {
	Provider       string        `envconfig:"COACHCREDITS_PAYMENTS_PROVIDER" default:"lemonsqueezy"`
	WebhookSecret  string        `envconfig:"COACHCREDITS_PAYMENTS_WEBHOOK_SECRET" required:"true"`
	Products       string        `envconfig:"COACHCREDITS_PAYMENTS_PRODUCTS"`
	IdempotencyTTL time.Duration `envconfig:"COACHCREDITS_PAYMENTS_IDEMPOTENCY_TTL" default:"72h"`
}

// Catalog parses "variant:credits" pairs, e.g. "101:50,102:120".
func (p PaymentsConfig) Catalog() (map[string]int64, error) {
	catalog := map[string]int64{}
	for _, entry := range strings.Split(p.Products, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid %s entry %q (expected variant:credits)", EnvPaymentsProducts, entry)
		}
		variant := strings.TrimSpace(parts[0])
		credits, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if variant == "" || err != nil || credits <= 0 {
			return nil, fmt.Errorf("invalid %s entry %q", EnvPaymentsProducts, entry)
		}
		catalog[variant] = credits
	}
	return catalog, nil
}

type RewardsConfig struct {
	ReferralCredits     int64 `envconfig:"COACHCREDITS_REFERRAL_CREDITS" default:"10"`
	ReferralPremiumDays int   `envconfig:"COACHCREDITS_REFERRAL_PREMIUM_DAYS" default:"7"`
}

type OpenAIConfig struct {
	APIKey  string `envconfig:"COACHCREDITS_OPENAI_API_KEY"`
	Model   string `envconfig:"COACHCREDITS_OPENAI_MODEL" default:"gpt-4o-mini"`
	BaseURL string `envconfig:"COACHCREDITS_OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"COACHCREDITS_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	LedgerTopic       string `envconfig:"COACHCREDITS_PUBSUB_LEDGER_TOPIC" default:"coach-credit-events"`
	NotificationTopic string `envconfig:"COACHCREDITS_PUBSUB_NOTIFICATION_TOPIC" default:"coach-notification-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"COACHCREDITS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"COACHCREDITS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"COACHCREDITS_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// MaintenanceConfig drives the cron worker's periodic jobs.
type MaintenanceConfig struct {
	Interval              time.Duration `envconfig:"COACHCREDITS_MAINTENANCE_INTERVAL" default:"6h"`
	AuditBatchSize        int           `envconfig:"COACHCREDITS_LEDGER_AUDIT_BATCH_SIZE" default:"200"`
	NotificationRetention time.Duration `envconfig:"COACHCREDITS_NOTIFICATION_RETENTION" default:"720h"`
	OutboxRetention       time.Duration `envconfig:"COACHCREDITS_OUTBOX_RETENTION" default:"168h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
