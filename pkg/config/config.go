package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "development"
	AppEnvProd = "production"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Gateway      GatewayConfig
	Settlement   SettlementConfig
	Recon        ReconConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SETTLE_APP_ENV" required:"true"`
	Port         string `envconfig:"SETTLE_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"SETTLE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SETTLE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"SETTLE_DB_DSN" required:"true"`

	MaxOpenConns    int           `envconfig:"SETTLE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SETTLE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SETTLE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SETTLE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SETTLE_REDIS_URL"`
	Address      string        `envconfig:"SETTLE_REDIS_ADDR"`
	Password     string        `envconfig:"SETTLE_REDIS_PASSWORD"`
	DB           int           `envconfig:"SETTLE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SETTLE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SETTLE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SETTLE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SETTLE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SETTLE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// GatewayConfig carries the redirect channel credentials. The merchant id and
// secret come from the gateway's merchant console.
type GatewayConfig struct {
	CheckoutURL    string        `envconfig:"SETTLE_GATEWAY_CHECKOUT_URL" default:"https://checkout.gateway.example/pay"`
	MerchantID     string        `envconfig:"SETTLE_GATEWAY_MERCHANT_ID"`
	SecretKey      string        `envconfig:"SETTLE_GATEWAY_SECRET_KEY"`
	IdempotencyTTL time.Duration `envconfig:"SETTLE_GATEWAY_IDEMPOTENCY_TTL" default:"24h"`

	CallbackRateLimit  int64         `envconfig:"SETTLE_GATEWAY_CALLBACK_RATE_LIMIT" default:"120"`
	CallbackRateWindow time.Duration `envconfig:"SETTLE_GATEWAY_CALLBACK_RATE_WINDOW" default:"1m"`
}

// SettlementConfig tunes payment lifecycle behavior.
type SettlementConfig struct {
	// PaymentTTL is how long a payment may sit in created/pending before it
	// becomes eligible for passive expiry.
	PaymentTTL time.Duration `envconfig:"SETTLE_PAYMENT_TTL" default:"24h"`
	Currency   string        `envconfig:"SETTLE_CURRENCY" default:"IDR"`
}

type ReconConfig struct {
	Interval  time.Duration `envconfig:"SETTLE_RECON_INTERVAL" default:"1h"`
	BatchSize int           `envconfig:"SETTLE_RECON_BATCH_SIZE" default:"500"`
	LockKey   string        `envconfig:"SETTLE_RECON_LOCK_KEY" default:"settle:recon:lock"`
	LockTTL   time.Duration `envconfig:"SETTLE_RECON_LOCK_TTL" default:"2h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SETTLE_AUTO_MIGRATE" default:"false"`
}
