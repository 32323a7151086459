// Package config loads service configuration from the environment.
// A .env file is honored in development; required variables fail fast.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full service configuration.
type Config struct {
	Service  Service
	Server   Server
	Database Database
	NATS     NATS
	Clients  Clients
}

// Service identifies the running service in logs.
type Service struct {
	Name        string `env:"SERVICE_NAME" envDefault:"be-wh-repairs"`
	Version     string `env:"SERVICE_VERSION" envDefault:"dev"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

// Server configures the HTTP listener.
type Server struct {
	Port            int           `env:"SERVER_PORT" envDefault:"8093"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`
	RequestTimeout  time.Duration `env:"SERVER_REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Database configures the Postgres pool and migrations.
type Database struct {
	Host          string        `env:"POSTGRES_HOST,required"`
	Port          int           `env:"POSTGRES_PORT" envDefault:"5432"`
	User          string        `env:"POSTGRES_USER,required"`
	Password      string        `env:"POSTGRES_PASSWORD,required"`
	Database      string        `env:"POSTGRES_DB,required"`
	SSLMode       string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	MaxConns      int32         `env:"POSTGRES_MAX_CONNS" envDefault:"10"`
	MinConns      int32         `env:"POSTGRES_MIN_CONNS" envDefault:"2"`
	MaxConnLife   time.Duration `env:"POSTGRES_MAX_CONN_LIFETIME" envDefault:"30m"`
	MaxConnIdle   time.Duration `env:"POSTGRES_MAX_CONN_IDLE" envDefault:"5m"`
	MigrationsDir string        `env:"MIGRATIONS_DIR" envDefault:"migrations"`
	Migrate       bool          `env:"MIGRATE_ON_START" envDefault:"true"`
}

// DSN renders the Postgres connection string.
func (d Database) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// NATS configures the notification publisher. Empty URL disables publishing.
type NATS struct {
	URL string `env:"NATS_URL"`
}

// Clients holds collaborator base URLs.
type Clients struct {
	DirectoryURL string `env:"DIRECTORY_URL,required"`
	CatalogURL   string `env:"CATALOG_URL,required"`
	Timeout      time.Duration `env:"CLIENT_TIMEOUT" envDefault:"10s"`
}

// Load reads .env (when present) and parses the environment.
func Load(path ...string) (*Config, error) {
	const op = "config.Load"

	if err := godotenv.Load(path...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: load .env: %w", op, err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}
