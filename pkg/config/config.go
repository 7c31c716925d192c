package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App         AppConfig
	DB          DBConfig
	Redis       RedisConfig
	Stripe      StripeConfig
	Square      SquareConfig
	Tax         TaxConfig
	Providers   ProvidersConfig
	Credentials CredentialsConfig
	Refunds     RefundConfig
	Webhooks    WebhookConfig
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
	Env          string `envconfig:"LEDGERCORE_APP_ENV" required:"true"`
	Port         string `envconfig:"LEDGERCORE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LEDGERCORE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LEDGERCORE_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"LEDGERCORE_CORS_ORIGINS"`

	// AutoMigrate runs pending goose migrations at boot, dev only.
	AutoMigrate bool `envconfig:"LEDGERCORE_AUTO_MIGRATE" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"LEDGERCORE_DB_DSN"`
	Driver string `envconfig:"LEDGERCORE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LEDGERCORE_DB_HOST"`
	LegacyPort     int    `envconfig:"LEDGERCORE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LEDGERCORE_DB_USER"`
	LegacyPassword string `envconfig:"LEDGERCORE_DB_PASSWORD"`
	LegacyName     string `envconfig:"LEDGERCORE_DB_NAME"`
	LegacySSLMode  string `envconfig:"LEDGERCORE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LEDGERCORE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LEDGERCORE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LEDGERCORE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LEDGERCORE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"LEDGERCORE_AUTO_MIGRATE" default:"false"`
}

// IsSQLite reports whether the local sqlite driver was requested.
func (d DBConfig) IsSQLite() bool {
	return strings.EqualFold(d.Driver, DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"LEDGERCORE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LEDGERCORE_REDIS_ADDR"`
	Password     string        `envconfig:"LEDGERCORE_REDIS_PASSWORD"`
	DB           int           `envconfig:"LEDGERCORE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LEDGERCORE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LEDGERCORE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LEDGERCORE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LEDGERCORE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LEDGERCORE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"LEDGERCORE_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"LEDGERCORE_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"LEDGERCORE_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type SquareConfig struct {
	AccessToken   string `envconfig:"LEDGERCORE_SQUARE_ACCESS_TOKEN"`
	WebhookSecret string `envconfig:"LEDGERCORE_SQUARE_WEBHOOK_SECRET"`
	LocationID    string `envconfig:"LEDGERCORE_SQUARE_LOCATION_ID"`
	Env           string `envconfig:"LEDGERCORE_SQUARE_ENV" default:"sandbox"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type TaxConfig struct {
	ProviderTimeout time.Duration `envconfig:"LEDGERCORE_TAX_PROVIDER_TIMEOUT" default:"10s"`
}

type ProvidersConfig struct {
	CallTimeout      time.Duration `envconfig:"LEDGERCORE_PROVIDER_CALL_TIMEOUT" default:"20s"`
	HealthErrorDecay float64       `envconfig:"LEDGERCORE_PROVIDER_HEALTH_ERROR_DECAY" default:"0.2"`
}

type CredentialsConfig struct {
	// Key is the base64-encoded 32-byte key used to seal provider credentials.
	Key string `envconfig:"LEDGERCORE_CREDENTIALS_KEY"`
}

type RefundConfig struct {
	MaxConflictRetries int           `envconfig:"LEDGERCORE_REFUND_MAX_CONFLICT_RETRIES" default:"3"`
	ConflictBackoff    time.Duration `envconfig:"LEDGERCORE_REFUND_CONFLICT_BACKOFF" default:"25ms"`
	LockTTL            time.Duration `envconfig:"LEDGERCORE_REFUND_LOCK_TTL" default:"30s"`
}

type WebhookConfig struct {
	IdempotencyTTL  time.Duration `envconfig:"LEDGERCORE_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
	RateLimit       int64         `envconfig:"LEDGERCORE_WEBHOOK_RATE_LIMIT" default:"300"`
	RateLimitWindow time.Duration `envconfig:"LEDGERCORE_WEBHOOK_RATE_LIMIT_WINDOW" default:"1m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" || db.IsSQLite() {
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
