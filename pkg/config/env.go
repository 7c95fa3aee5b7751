package config

const EnvPrefix = "COACHCREDITS"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv = "COACHCREDITS_APP_ENV"
	EnvPort   = "COACHCREDITS_APP_PORT"

	EnvDBDSN  = "COACHCREDITS_DB_DSN"
	EnvDBHost = "COACHCREDITS_DB_HOST"
	EnvDBUser = "COACHCREDITS_DB_USER"
	EnvDBName = "COACHCREDITS_DB_NAME"

	EnvRedisURL = "COACHCREDITS_REDIS_URL"

	EnvJWTSecret = "COACHCREDITS_JWT_SECRET"
	EnvJWTIssuer = "COACHCREDITS_JWT_ISSUER"

	EnvUnlimitedUserIDs = "COACHCREDITS_UNLIMITED_USER_IDS"
	EnvTrialCredits     = "COACHCREDITS_TRIAL_CREDITS"

	EnvPaymentsWebhookSecret = "COACHCREDITS_PAYMENTS_WEBHOOK_SECRET"
	EnvPaymentsProducts      = "COACHCREDITS_PAYMENTS_PRODUCTS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
