package config

import (
	"fmt"
	"time"
)

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"gradebench"`
	Password string `env:"PASSWORD" envDefault:"gradebench"`
	Name     string `env:"NAME"     envDefault:"gradebench"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"`
	// RunMigrationsOnStart applies embedded migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// DSN builds the Postgres connection string.
func (d DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// RedisConfig contains Redis configuration for the batch summary cache.
type RedisConfig struct {
	Addr     string `env:"ADDR"     envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	DB       int    `env:"DB"       envDefault:"0"`

	// SummaryTTL bounds staleness of cached batch rollups.
	SummaryTTL time.Duration `env:"SUMMARY_TTL" envDefault:"30s"`

	// Enabled toggles the cache; when false, rollups are read from Postgres
	// on every request.
	Enabled bool `env:"ENABLED" envDefault:"true"`
}
