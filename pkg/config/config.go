package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Settlement   SettlementConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Settlement.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"DEALROOM_APP_ENV" required:"true"`
	Port         string `envconfig:"DEALROOM_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"DEALROOM_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DEALROOM_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"DEALROOM_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind        string `envconfig:"DEALROOM_SERVICE_KIND" default:"api"`
	MetricsAddr string `envconfig:"DEALROOM_WORKER_METRICS_ADDR" default:":9091"`
}

type DBConfig struct {
	DSN    string `envconfig:"DEALROOM_DB_DSN"`
	Driver string `envconfig:"DEALROOM_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DEALROOM_DB_HOST"`
	LegacyPort     int    `envconfig:"DEALROOM_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DEALROOM_DB_USER"`
	LegacyPassword string `envconfig:"DEALROOM_DB_PASSWORD"`
	LegacyName     string `envconfig:"DEALROOM_DB_NAME"`
	LegacySSLMode  string `envconfig:"DEALROOM_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DEALROOM_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DEALROOM_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DEALROOM_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DEALROOM_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"DEALROOM_DB_SLOW_QUERY" default:"500ms"`
	TxRetries       int           `envconfig:"DEALROOM_DB_TX_RETRIES" default:"3"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DEALROOM_REDIS_URL" required:"true"`
	Address      string        `envconfig:"DEALROOM_REDIS_ADDR"`
	Password     string        `envconfig:"DEALROOM_REDIS_PASSWORD"`
	DB           int           `envconfig:"DEALROOM_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DEALROOM_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DEALROOM_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DEALROOM_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DEALROOM_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DEALROOM_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"DEALROOM_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"DEALROOM_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"DEALROOM_JWT_EXPIRATION_MINUTES" default:"60"`
}

// RateLimitConfig throttles workflow commands per authenticated user.
type RateLimitConfig struct {
	CommandWindow time.Duration `envconfig:"DEALROOM_RATE_LIMIT_COMMAND_WINDOW" default:"1m"`
	CommandLimit  int           `envconfig:"DEALROOM_RATE_LIMIT_COMMAND_LIMIT" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"DEALROOM_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"DEALROOM_EVENTING_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"DEALROOM_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	DomainTopic string `envconfig:"DEALROOM_PUBSUB_DOMAIN_TOPIC" default:"dealroom-domain-events"`
	// SettlementTopic, when set, receives settlement events instead of the
	// domain topic so finance consumers can subscribe to them alone.
	SettlementTopic    string `envconfig:"DEALROOM_PUBSUB_SETTLEMENT_TOPIC"`
	DomainSubscription string `envconfig:"DEALROOM_PUBSUB_DOMAIN_SUBSCRIPTION"`
}

// Topics lists every distinct topic events may be published to.
func (c PubSubConfig) Topics() []string {
	topics := []string{c.DomainTopic}
	if c.SettlementTopic != "" && c.SettlementTopic != c.DomainTopic {
		topics = append(topics, c.SettlementTopic)
	}
	return topics
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"DEALROOM_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"DEALROOM_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"DEALROOM_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// SettlementConfig drives the automatic settlement cascade.
type SettlementConfig struct {
	PlatformPayeeID    string `envconfig:"DEALROOM_SETTLEMENT_PLATFORM_PAYEE_ID" default:"00000000-0000-0000-0000-000000000001"`
	DefaultFeeRate     string `envconfig:"DEALROOM_SETTLEMENT_DEFAULT_FEE_RATE" default:"5.0"`
	DefaultPaymentType string `envconfig:"DEALROOM_SETTLEMENT_DEFAULT_PAYMENT_TYPE" default:"bank_transfer"`
}

// PayeeID returns the parsed platform settlement identity.
func (s SettlementConfig) PayeeID() uuid.UUID {
	id, err := uuid.Parse(strings.TrimSpace(s.PlatformPayeeID))
	if err != nil {
		return uuid.Nil
	}
	return id
}

// FeeRate returns the fallback fee rate percent used when no fee policy is active.
func (s SettlementConfig) FeeRate() decimal.Decimal {
	rate, err := decimal.NewFromString(strings.TrimSpace(s.DefaultFeeRate))
	if err != nil {
		return decimal.NewFromInt(5)
	}
	return rate
}

func (s SettlementConfig) validate() error {
	if _, err := uuid.Parse(strings.TrimSpace(s.PlatformPayeeID)); err != nil {
		return fmt.Errorf("%s must be a uuid: %w", EnvSettlementPayeeID, err)
	}
	rate, err := decimal.NewFromString(strings.TrimSpace(s.DefaultFeeRate))
	if err != nil {
		return fmt.Errorf("%s must be numeric: %w", EnvSettlementFeeRate, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%s must be between 0 and 100", EnvSettlementFeeRate)
	}
	return nil
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
