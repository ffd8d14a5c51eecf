// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	envDevelopment = "development"
	envTest        = "test"

	devJWTSecret     = "dev-only-access-secret-change-me!!"
	devRefreshSecret = "dev-only-refresh-secret-change-me!"

	minSecretLength = 32
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName   string `envconfig:"APP_NAME" default:"SusuBank"`
	AppEnv    string `envconfig:"APP_ENV" default:"development"`
	Port      string `envconfig:"PORT" default:"8080"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	DatabaseURL string `envconfig:"DATABASE_URL"`
	RedisURL    string `envconfig:"REDIS_URL"`
	AutoMigrate bool   `envconfig:"AUTO_MIGRATE" default:"true"`

	DatabaseMaxConns int32         `envconfig:"DB_MAX_CONNS" default:"10"`
	ConnectAttempts  int           `envconfig:"CONNECT_ATTEMPTS" default:"5"`
	RedisTimeout     time.Duration `envconfig:"REDIS_TIMEOUT" default:"1s"`

	JWTSecret       string        `envconfig:"JWT_SECRET"`
	RefreshSecret   string        `envconfig:"JWT_REFRESH_SECRET"`
	AccessTokenTTL  time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"15m"`
	RefreshTokenTTL time.Duration `envconfig:"REFRESH_TOKEN_TTL" default:"168h"`

	LoginAttemptsPerMinute int `envconfig:"LOGIN_ATTEMPTS_PER_MINUTE" default:"5"`

	AdminEmail    string `envconfig:"ADMIN_EMAIL"`
	AdminPassword string `envconfig:"ADMIN_PASSWORD"`

	ShutdownPeriod time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.AppEnv = strings.ToLower(cfg.AppEnv)

	if cfg.IsDevelopment() {
		if cfg.JWTSecret == "" {
			cfg.JWTSecret = devJWTSecret
		}
		if cfg.RefreshSecret == "" {
			cfg.RefreshSecret = devRefreshSecret
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings a deployed environment cannot run without.
// Development and test may leave the database and Redis unset and fall back
// to in-memory stores.
func (c Config) Validate() error {
	var errs []error
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	}
	if len(c.JWTSecret) < minSecretLength || len(c.RefreshSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET and JWT_REFRESH_SECRET must be at least %d characters", minSecretLength))
	}
	if c.JWTSecret != "" && c.JWTSecret == c.RefreshSecret {
		errs = append(errs, errors.New("JWT_SECRET and JWT_REFRESH_SECRET must differ"))
	}
	if (c.AdminEmail == "") != (c.AdminPassword == "") {
		errs = append(errs, errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together"))
	}
	if !c.IsDevelopment() {
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL must be set"))
		}
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL must be set"))
		}
	}
	return errors.Join(errs...)
}

// IsDevelopment reports whether in-memory fallbacks and dev secrets are allowed.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == envDevelopment || c.AppEnv == envTest
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}
