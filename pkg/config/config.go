package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment variable consumed by the platform.
const EnvPrefix = "FARM2MARKET"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "FARM2MARKET_DB_DSN"
	EnvDBHost = "FARM2MARKET_DB_HOST"
	EnvDBUser = "FARM2MARKET_DB_USER"
	EnvDBName = "FARM2MARKET_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Cron         CronConfig
	Pricing      PricingConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Ops          OpsConfig
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
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FARM2MARKET_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"FARM2MARKET_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FARM2MARKET_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"FARM2MARKET_SERVICE_KIND" default:"cron-worker"`
}

type DBConfig struct {
	DSN    string `envconfig:"FARM2MARKET_DB_DSN"`
	Driver string `envconfig:"FARM2MARKET_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FARM2MARKET_DB_HOST"`
	LegacyPort     int    `envconfig:"FARM2MARKET_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FARM2MARKET_DB_USER"`
	LegacyPassword string `envconfig:"FARM2MARKET_DB_PASSWORD"`
	LegacyName     string `envconfig:"FARM2MARKET_DB_NAME"`
	LegacySSLMode  string `envconfig:"FARM2MARKET_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FARM2MARKET_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FARM2MARKET_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FARM2MARKET_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FARM2MARKET_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FARM2MARKET_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FARM2MARKET_REDIS_ADDR"`
	Password     string        `envconfig:"FARM2MARKET_REDIS_PASSWORD"`
	DB           int           `envconfig:"FARM2MARKET_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FARM2MARKET_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FARM2MARKET_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FARM2MARKET_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FARM2MARKET_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FARM2MARKET_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type CronConfig struct {
	Interval             time.Duration `envconfig:"FARM2MARKET_CRON_INTERVAL" default:"15m"`
	LockTTL              time.Duration `envconfig:"FARM2MARKET_CRON_LOCK_TTL" default:"30m"`
	CartAbandonmentDays  int           `envconfig:"FARM2MARKET_CART_ABANDONMENT_DAYS" default:"30"`
	ExpirySweepBatchSize int           `envconfig:"FARM2MARKET_RESERVATION_EXPIRY_BATCH" default:"200"`
}

type PricingConfig struct {
	FlatDeliveryFee string `envconfig:"FARM2MARKET_FLAT_DELIVERY_FEE" default:"5.00"`
	TaxRate         string `envconfig:"FARM2MARKET_TAX_RATE" default:"0"`
}

type PubSubConfig struct {
	ProjectID         string `envconfig:"FARM2MARKET_GCP_PROJECT_ID"`
	NotificationTopic string `envconfig:"FARM2MARKET_PUBSUB_NOTIFICATION_TOPIC" default:"f2m-notification-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FARM2MARKET_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FARM2MARKET_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"FARM2MARKET_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type OpsConfig struct {
	Port string `envconfig:"FARM2MARKET_OPS_PORT" default:"9090"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"FARM2MARKET_AUTO_MIGRATE" default:"false"`
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
