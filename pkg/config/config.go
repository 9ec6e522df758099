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
	JWT          JWTConfig
	Gateway      GatewayConfig
	URLs         URLConfig
	Checkout     CheckoutConfig
	Cron         CronConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.URLs.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"AGROMARKET_APP_ENV" required:"true"`
	Port         string `envconfig:"AGROMARKET_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"AGROMARKET_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"AGROMARKET_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"AGROMARKET_DB_DSN"`
	Driver string `envconfig:"AGROMARKET_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"AGROMARKET_DB_HOST"`
	LegacyPort     int    `envconfig:"AGROMARKET_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"AGROMARKET_DB_USER"`
	LegacyPassword string `envconfig:"AGROMARKET_DB_PASSWORD"`
	LegacyName     string `envconfig:"AGROMARKET_DB_NAME"`
	LegacySSLMode  string `envconfig:"AGROMARKET_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"AGROMARKET_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"AGROMARKET_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"AGROMARKET_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"AGROMARKET_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the configured driver is the embedded sqlite driver.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"AGROMARKET_REDIS_URL"`
	Address      string        `envconfig:"AGROMARKET_REDIS_ADDR"`
	Password     string        `envconfig:"AGROMARKET_REDIS_PASSWORD"`
	DB           int           `envconfig:"AGROMARKET_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"AGROMARKET_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"AGROMARKET_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"AGROMARKET_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"AGROMARKET_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"AGROMARKET_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"AGROMARKET_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"AGROMARKET_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"AGROMARKET_JWT_EXPIRATION_MINUTES" default:"60"`
}

// GatewayConfig holds the hosted payment gateway credentials and call limits.
type GatewayConfig struct {
	StoreID            string        `envconfig:"AGROMARKET_GATEWAY_STORE_ID" required:"true"`
	StorePassword      string        `envconfig:"AGROMARKET_GATEWAY_STORE_PASSWORD" required:"true"`
	Live               bool          `envconfig:"AGROMARKET_GATEWAY_LIVE" default:"false"`
	BaseURL            string        `envconfig:"AGROMARKET_GATEWAY_BASE_URL"`
	Currency           string        `envconfig:"AGROMARKET_GATEWAY_CURRENCY" default:"BDT"`
	Timeout            time.Duration `envconfig:"AGROMARKET_GATEWAY_TIMEOUT" default:"15s"`
	RequireValidation  bool          `envconfig:"AGROMARKET_GATEWAY_REQUIRE_VALIDATION" default:"true"`
	BreakerMaxFailures uint32        `envconfig:"AGROMARKET_GATEWAY_BREAKER_MAX_FAILURES" default:"5"`
	BreakerOpenTimeout time.Duration `envconfig:"AGROMARKET_GATEWAY_BREAKER_OPEN_TIMEOUT" default:"30s"`
}

// Endpoint resolves the gateway base URL, preferring an explicit override.
func (g GatewayConfig) Endpoint() string {
	if base := strings.TrimRight(strings.TrimSpace(g.BaseURL), "/"); base != "" {
		return base
	}
	if g.Live {
		return GatewayLiveURL
	}
	return GatewaySandboxURL
}

type URLConfig struct {
	BackendURL  string `envconfig:"AGROMARKET_BACKEND_URL" required:"true"`
	FrontendURL string `envconfig:"AGROMARKET_FRONTEND_URL" default:"http://localhost:5173"`
}

func (u *URLConfig) validate() error {
	for name, raw := range map[string]string{EnvBackendURL: u.BackendURL, EnvFrontendURL: u.FrontendURL} {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("%s must be an absolute url", name)
		}
	}
	u.BackendURL = strings.TrimRight(u.BackendURL, "/")
	u.FrontendURL = strings.TrimRight(u.FrontendURL, "/")
	return nil
}

type CheckoutConfig struct {
	PendingTimeout time.Duration `envconfig:"AGROMARKET_CHECKOUT_PENDING_TIMEOUT" default:"45m"`
	CallbackTTL    time.Duration `envconfig:"AGROMARKET_CHECKOUT_CALLBACK_TTL" default:"24h"`
	SweepBatch     int           `envconfig:"AGROMARKET_CHECKOUT_SWEEP_BATCH" default:"100"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"AGROMARKET_CRON_INTERVAL" default:"5m"`
	LockTTL  time.Duration `envconfig:"AGROMARKET_CRON_LOCK_TTL" default:"10m"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"AGROMARKET_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"AGROMARKET_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	PaymentsTopic string `envconfig:"AGROMARKET_PUBSUB_PAYMENTS_TOPIC" default:"agromarket-payment-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"AGROMARKET_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"AGROMARKET_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"AGROMARKET_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"AGROMARKET_OUTBOX_RETENTION_DAYS" default:"30"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"AGROMARKET_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
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
