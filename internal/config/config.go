package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`

	// Web Server
	WebBind        string `env:"WEB_BIND" envDefault:"0.0.0.0:3000"`
	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"true"`

	// Session
	JWTSecret string `env:"JWT_SECRET" envDefault:"dev-only-change-me"`

	// Ledger
	StrictApproval bool `env:"STRICT_APPROVAL" envDefault:"false"`

	// Discord digest worker; disabled without a token
	DiscordToken   string        `env:"DISCORD_TOKEN"`
	DigestInterval time.Duration `env:"DIGEST_INTERVAL" envDefault:"1m"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Backend names the store behind DatabaseURL.
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendSQLite   Backend = "sqlite"
)

func Load() (*Config, error) {
	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if _, _, err := cfg.Store(); err != nil {
		return nil, err
	}
	if cfg.DigestInterval <= 0 {
		return nil, fmt.Errorf("DIGEST_INTERVAL must be positive")
	}
	return cfg, nil
}

// Store resolves DatabaseURL into a backend and the DSN that backend's
// driver expects. postgres:// and postgresql:// select Postgres;
// sqlite://path and file:path select SQLite.
func (c *Config) Store() (Backend, string, error) {
	u := strings.TrimSpace(c.DatabaseURL)
	switch {
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
		return BackendPostgres, u, nil
	case strings.HasPrefix(u, "sqlite://"):
		return BackendSQLite, strings.TrimPrefix(u, "sqlite://"), nil
	case strings.HasPrefix(u, "file:"):
		return BackendSQLite, strings.TrimPrefix(u, "file:"), nil
	}
	return "", "", fmt.Errorf("unsupported DATABASE_URL scheme: %q", u)
}
