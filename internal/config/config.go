package config

import (
	"fmt"
	"log/slog"
	"net/url"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv        string `env:"APP_ENV" default:"development"`
	Port          string `env:"PORT" default:"3001"`
	AllowedOrigin string `env:"ALLOWED_ORIGIN" default:"http://localhost:5173"`
	LogLevel      string `env:"LOG_LEVEL" default:"info"`
	LogFormat     string `env:"LOG_FORMAT" default:"text"`

	MaxConnections      int64   `env:"MAX_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP int     `env:"MAX_CONNECTIONS_PER_IP" default:"32"`
	ConnectionRate      float64 `env:"CONNECTION_RATE" default:"10"`
	ConnectionBurst     int     `env:"CONNECTION_BURST" default:"20"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// IsDevelopment reports whether the relay runs in development mode,
// which relaxes the WebSocket origin policy for localhost.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv != "production"
}

func validate(cfg *Config) error {
	u, err := url.Parse(cfg.AllowedOrigin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("ALLOWED_ORIGIN must be a valid origin URL, got %q", cfg.AllowedOrigin)
	}

	if cfg.MaxConnections <= 0 {
		return fmt.Errorf("MAX_CONNECTIONS must be positive, got %d", cfg.MaxConnections)
	}
	if cfg.MaxConnectionsPerIP <= 0 {
		return fmt.Errorf("MAX_CONNECTIONS_PER_IP must be positive, got %d", cfg.MaxConnectionsPerIP)
	}
	if cfg.ConnectionRate <= 0 {
		return fmt.Errorf("CONNECTION_RATE must be positive, got %v", cfg.ConnectionRate)
	}
	if cfg.ConnectionBurst <= 0 {
		return fmt.Errorf("CONNECTION_BURST must be positive, got %d", cfg.ConnectionBurst)
	}

	return nil
}
