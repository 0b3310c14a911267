// Package config loads runtime configuration from the environment. A .env
// file in the working directory is honored for local development.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v7"
	"github.com/joho/godotenv"
)

// Config contains runtime configuration required by the bot service.
type Config struct {
	// ListenAddr is the address the HTTP server binds to.
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	// RedisAddr is the key-value backend address.
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`

	// ViberAuthToken is the bot's platform API key.
	ViberAuthToken string `env:"VIBER_AUTH_TOKEN"`

	// CallbackURL is the externally reachable URL of this service's
	// /viber/events endpoint, registered with the platform at startup.
	CallbackURL string `env:"CALLBACK_URL"`

	// ViberAPIURL is the platform's set_webhook endpoint.
	ViberAPIURL string `env:"VIBER_API_URL" envDefault:"https://chatapi.viber.com/pa/set_webhook"`

	// StorageTimeout bounds each storage call on the event path.
	StorageTimeout time.Duration `env:"STORAGE_TIMEOUT" envDefault:"3s"`

	// NATSURL enables lifecycle event fan-out when set.
	NATSURL string `env:"NATS_URL"`

	// DatabaseURL enables the Postgres audit log when set.
	DatabaseURL string `env:"DATABASE_URL"`

	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads configuration from the environment, after sourcing an optional
// .env file.
func Load() (Config, error) {
	// Missing .env is fine; explicit environment still applies.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.ListenAddr == "" {
		return errors.New("config: LISTEN_ADDR is required")
	}
	if c.RedisAddr == "" {
		return errors.New("config: REDIS_ADDR is required")
	}
	if c.StorageTimeout <= 0 {
		return errors.New("config: STORAGE_TIMEOUT must be positive")
	}
	return nil
}

// RegistrationEnabled reports whether the startup set_webhook call should
// run. Both the token and the public callback URL are needed for it.
func (c Config) RegistrationEnabled() bool {
	return c.ViberAuthToken != "" && c.CallbackURL != ""
}
