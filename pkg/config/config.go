package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Square       SquareConfig
	Refund       RefundConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"EPOS_APP_ENV" required:"true"`
	Port         string `envconfig:"EPOS_APP_PORT" default:"5200"`
	LogLevel     string `envconfig:"EPOS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"EPOS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"EPOS_DB_DSN"`

	LegacyHost     string `envconfig:"EPOS_DB_HOST"`
	LegacyPort     int    `envconfig:"EPOS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"EPOS_DB_USER"`
	LegacyPassword string `envconfig:"EPOS_DB_PASSWORD"`
	LegacyName     string `envconfig:"EPOS_DB_NAME"`
	LegacySSLMode  string `envconfig:"EPOS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"EPOS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"EPOS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"EPOS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"EPOS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"EPOS_DB_SLOW_QUERY" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"EPOS_REDIS_URL"`
	Address      string        `envconfig:"EPOS_REDIS_ADDR"`
	Password     string        `envconfig:"EPOS_REDIS_PASSWORD"`
	DB           int           `envconfig:"EPOS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"EPOS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"EPOS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"EPOS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"EPOS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"EPOS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// SquareConfig holds the payment gateway credentials. Currency is fixed per
// deployment.
type SquareConfig struct {
	AccessToken    string        `envconfig:"EPOS_SQUARE_ACCESS_TOKEN" required:"true"`
	Env            string        `envconfig:"EPOS_SQUARE_ENV" default:"sandbox"`
	LocationID     string        `envconfig:"EPOS_SQUARE_LOCATION_ID" required:"true"`
	WebhookSecret  string        `envconfig:"EPOS_SQUARE_WEBHOOK_SIGNATURE_KEY" required:"true"`
	WebhookURL     string        `envconfig:"EPOS_SQUARE_WEBHOOK_URL" required:"true"`
	Currency       string        `envconfig:"EPOS_CURRENCY" default:"GBP"`
	RequestTimeout time.Duration `envconfig:"EPOS_SQUARE_TIMEOUT" default:"15s"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

// CurrencyCode returns the upper-cased ISO currency code.
func (s SquareConfig) CurrencyCode() string {
	code := strings.ToUpper(strings.TrimSpace(s.Currency))
	if code == "" {
		return "GBP"
	}
	return code
}

type RefundConfig struct {
	LockTTL time.Duration `envconfig:"EPOS_REFUND_LOCK_TTL" default:"45s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"EPOS_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"EPOS_EVENTING_IDEMPOTENCY_TTL" default:"72h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"EPOS_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic   string `envconfig:"EPOS_PUBSUB_ORDERS_TOPIC" default:"epos-order-events"`
	ProductsTopic string `envconfig:"EPOS_PUBSUB_PRODUCTS_TOPIC" default:"epos-product-events"`
	// CreateTopics creates missing topics at startup (emulator and dev).
	CreateTopics bool `envconfig:"EPOS_PUBSUB_CREATE_TOPICS" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"EPOS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"EPOS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"EPOS_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// CronConfig drives the housekeeping worker.
type CronConfig struct {
	Interval         time.Duration `envconfig:"EPOS_CRON_INTERVAL" default:"1h"`
	LockTTL          time.Duration `envconfig:"EPOS_CRON_LOCK_TTL" default:"30m"`
	OutboxRetention  time.Duration `envconfig:"EPOS_CRON_OUTBOX_RETENTION" default:"720h"`
	OutboxPurgeBatch int           `envconfig:"EPOS_CRON_OUTBOX_PURGE_BATCH" default:"1000"`
	StockAuditLimit  int           `envconfig:"EPOS_CRON_STOCK_AUDIT_LIMIT" default:"100"`
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
