package config

// EnvPrefix is handed to envconfig; every field carries an explicit key so the
// prefix only matters for fields without one.
const EnvPrefix = "EPOS"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "EPOS_APP_ENV"
	EnvPort     = "EPOS_APP_PORT"
	EnvLogLevel = "EPOS_LOG_LEVEL"

	EnvDBDSN  = "EPOS_DB_DSN"
	EnvDBHost = "EPOS_DB_HOST"
	EnvDBUser = "EPOS_DB_USER"
	EnvDBName = "EPOS_DB_NAME"

	EnvRedisURL = "EPOS_REDIS_URL"

	EnvSquareAccessToken   = "EPOS_SQUARE_ACCESS_TOKEN"
	EnvSquareEnv           = "EPOS_SQUARE_ENV"
	EnvSquareLocationID    = "EPOS_SQUARE_LOCATION_ID"
	EnvSquareWebhookSecret = "EPOS_SQUARE_WEBHOOK_SIGNATURE_KEY"
	EnvSquareWebhookURL    = "EPOS_SQUARE_WEBHOOK_URL"
	EnvCurrency            = "EPOS_CURRENCY"

	EnvRefundLockTTL = "EPOS_REFUND_LOCK_TTL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
