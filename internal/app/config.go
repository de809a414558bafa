package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

// Config holds the complete application configuration, loadable from
// environment variables (TRIP_ prefix), a .env file, flags, or YAML files.
type Config struct {
	Addr            string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL     string `usage:"PostgreSQL connection URL (TRIP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL        string `default:"redis://localhost:6379/0" usage:"Redis URL for carts and idempotency keys" flag:"redis-url"`
	APIKeyPepper    string `usage:"HMAC pepper for API key hashing (TRIP_API_KEY_PEPPER)" flag:"api-key-pepper"`
	PlatformAccount string `usage:"Central platform account receiving checkout debits" flag:"platform-account"`
	Database        DatabaseConfig
	Funds           FundsConfig
	Providers       ProvidersConfig
	Saga            SagaConfig
	Cart            CartConfig
	Events          EventsConfig
	RateLimit       RateLimitConfig
	Graceful        GracefulConfig
}

// DatabaseConfig tunes the Postgres pool and startup migrations.
type DatabaseConfig struct {
	MaxConns        int           `default:"10" usage:"Maximum pool connections"`
	MinConns        int           `default:"0" usage:"Idle connections kept open"`
	MaxConnLifetime time.Duration `default:"30m" usage:"Connection recycle interval"`
	Migrate         bool          `default:"true" usage:"Apply the embedded schema on startup"`
}

// FundsConfig locates the funds transfer service.
type FundsConfig struct {
	URL     string        `default:"http://localhost:8081/funds" usage:"Funds transfer service base URL"`
	Timeout time.Duration `default:"5s" usage:"Per-transfer timeout"`
}

// ProvidersConfig bounds calls to third-party providers.
type ProvidersConfig struct {
	Timeout      time.Duration `default:"10s" usage:"Per-call provider timeout"`
	HoldDuration time.Duration `default:"15m" usage:"Requested inventory hold duration"`
}

// SagaConfig controls how line items of one checkout are processed.
type SagaConfig struct {
	Parallel    bool `default:"false" usage:"Book line items concurrently"`
	Concurrency int  `default:"4" usage:"Max concurrent line items when parallel"`
}

// CartConfig controls cart retention.
type CartConfig struct {
	TTL time.Duration `default:"72h" usage:"Cart and idempotency key lifetime"`
}

// EventsConfig selects the booking event sink.
type EventsConfig struct {
	TopicARN string `usage:"SNS topic for booking events; events are logged when empty" flag:"events-topic-arn"`
}

// RateLimitConfig controls the per-client token bucket limiter.
type RateLimitConfig struct {
	RPS   float64 `default:"10" usage:"Sustained requests per second per client"`
	Burst int     `default:"20" usage:"Burst size per client"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads an optional .env file, then configuration from environment
// variables and YAML config files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "TRIP",
		Files:     []string{"config.yaml", "/etc/trip/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set TRIP_DATABASE_URL or DATABASE_URL")
	case c.PlatformAccount == "":
		return errors.New("platform account is required: set TRIP_PLATFORM_ACCOUNT")
	case c.APIKeyPepper == "":
		return errors.New("api key pepper is required: set TRIP_API_KEY_PEPPER")
	case c.Database.MaxConns < 0 || c.Database.MinConns < 0:
		return errors.New("database pool sizes must not be negative")
	case c.Saga.Parallel && c.Saga.Concurrency < 1:
		return errors.New("saga concurrency must be positive when parallel")
	}
	return nil
}

// applyPlatformDefaults maps the DATABASE_URL, REDIS_URL and PORT variables set
// by hosting platforms onto the TRIP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if v := os.Getenv("REDIS_URL"); v != "" && os.Getenv("TRIP_REDIS_URL") == "" {
		c.RedisURL = v
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
