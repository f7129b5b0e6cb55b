// Package config loads application configuration from environment
// variables. All configuration is centralized here so no other package
// reads env vars directly. Sensible defaults are provided for development.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
)

// Config holds all application configuration. Populated from environment
// variables at startup and passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 8080).
	Port int

	// BaseURL is the public-facing URL of this service.
	BaseURL string

	// FrontendOrigin is the origin allowed by CORS to send credentialed
	// requests (the dashboard frontend).
	FrontendOrigin string

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string

	// Database holds MariaDB connection settings for the user store.
	Database DatabaseConfig

	// Redis holds Redis connection settings for the session records.
	Redis RedisConfig

	// Auth holds token signing and lifetime settings.
	Auth AuthConfig

	// Bootstrap optionally creates a first admin account at startup.
	Bootstrap BootstrapConfig
}

// DatabaseConfig holds MariaDB connection parameters. Individual fields
// are read from separate env vars; DATABASE_URL takes precedence when set.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port form (default: "localhost:3306").
	Host string

	// User is the MariaDB username.
	User string

	// Password is the MariaDB password.
	Password string

	// Name is the database name.
	Name string

	// dsnOverride is set when DATABASE_URL is provided.
	dsnOverride string

	// MaxOpenConns is the maximum number of open connections in the pool.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections in the pool.
	MaxIdleConns int

	// ConnMaxLifetime is how long a connection can be reused.
	ConnMaxLifetime time.Duration
}

// DSN returns the go-sql-driver/mysql connection string. Built through the
// driver's Config.FormatDSN so special characters in passwords are safe.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		return d.dsnOverride
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port when the host string lacks one.
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string
}

// AuthConfig holds token signing and lifetime settings.
type AuthConfig struct {
	// SecretKey signs access tokens (HS256; must be 32+ bytes in production).
	SecretKey string

	// TokenTTL is the lifetime of a session-scoped access token.
	TokenTTL time.Duration

	// RememberTTL is the lifetime of a "remember me" access token. Matches
	// the 30-day cookie the frontend sets for durable sessions.
	RememberTTL time.Duration
}

// BootstrapConfig optionally seeds a first admin account at startup so a
// fresh deployment has someone who can sign in. Ignored when the account
// already exists.
type BootstrapConfig struct {
	AdminEmail    string
	AdminPassword string
	AdminName     string
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in first when present (development
// convenience; real env vars win).
func Load() (*Config, error) {
	// Missing .env is the normal case in production.
	_ = godotenv.Load()

	cfg := &Config{
		Env:            getEnv("ENV", "development"),
		Port:           getEnvInt("PORT", 8080),
		BaseURL:        getEnv("BASE_URL", "http://localhost:8080"),
		FrontendOrigin: getEnv("FRONTEND_ORIGIN", "http://localhost:3000"),
		LogLevel:       getEnv("LOG_LEVEL", "debug"),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost:3306"),
			User:            getEnv("DB_USER", "gatehouse"),
			Password:        getEnv("DB_PASSWORD", "gatehouse"),
			Name:            getEnv("DB_NAME", "gatehouse"),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},

		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},

		Auth: AuthConfig{
			SecretKey:   getEnv("SECRET_KEY", ""),
			TokenTTL:    getEnvDuration("TOKEN_TTL", 12*time.Hour),
			RememberTTL: getEnvDuration("REMEMBER_TTL", 720*time.Hour),
		},

		Bootstrap: BootstrapConfig{
			AdminEmail:    getEnv("BOOTSTRAP_ADMIN_EMAIL", ""),
			AdminPassword: getEnv("BOOTSTRAP_ADMIN_PASSWORD", ""),
			AdminName:     getEnv("BOOTSTRAP_ADMIN_NAME", "Administrator"),
		},
	}

	// The signing key must be real in production. Case-insensitive check
	// catches variants like "Production" and "prod".
	envLower := strings.ToLower(cfg.Env)
	if envLower == "production" || envLower == "prod" {
		if cfg.Auth.SecretKey == "" {
			return nil, fmt.Errorf("SECRET_KEY is required in production")
		}
		if len(cfg.Auth.SecretKey) < 32 {
			return nil, fmt.Errorf("SECRET_KEY must be at least 32 characters in production")
		}
	}

	// Dev-only default so local runs work without a .env file.
	if cfg.Auth.SecretKey == "" {
		cfg.Auth.SecretKey = "dev-secret-key-do-not-use-in-production!!"
	}

	return cfg, nil
}

// IsDevelopment returns true when running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvDuration reads a duration env var (e.g., "12h") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
