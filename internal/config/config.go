package config

import (
	"errors"
	"fmt"
	"time"
)

// Config represents the project service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Services ServicesConfig `mapstructure:"services"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// DatabaseConfig represents the PostgreSQL configuration. User and Password
// are the service's own credentials, used for cross-tenant projection reads;
// tenant-scoped pools substitute per-tenant credentials into the same
// template.
type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode"`
	MaxConnections int    `mapstructure:"max_connections"`
	MinConnections int    `mapstructure:"min_connections"`
}

// ConnTemplate returns the connection string without credentials.
func (d DatabaseConfig) ConnTemplate() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s sslmode=%s pool_max_conns=%d pool_min_conns=%d",
		d.Host, d.Port, d.Database, d.SSLMode, d.MaxConnections, d.MinConnections,
	)
}

// ConnString returns the full connection string with the service's own
// credentials.
func (d DatabaseConfig) ConnString() string {
	return fmt.Sprintf("%s user=%s password=%s", d.ConnTemplate(), d.User, d.Password)
}

// RedisConfig represents the Redis cache configuration. An empty Host
// selects the in-memory cache.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig represents cache TTLs and sizing.
type CacheConfig struct {
	TenantCredentialsTTL time.Duration `mapstructure:"tenant_credentials_ttl"`
	TenantIDTTL          time.Duration `mapstructure:"tenant_id_ttl"`
	TenantPoolTTL        time.Duration `mapstructure:"tenant_pool_ttl"`
	MaxSize              int           `mapstructure:"max_size"`
}

// ServicesConfig represents the sibling service endpoints.
type ServicesConfig struct {
	TenantsURL       string        `mapstructure:"tenants_url"`
	IdentityURL      string        `mapstructure:"identity_url"`
	SubscriptionsURL string        `mapstructure:"subscriptions_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// MetricsConfig represents Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.Database == "" {
		return errors.New("database.database is required")
	}
	if c.Database.User == "" {
		return errors.New("database.user is required")
	}
	if c.Services.TenantsURL == "" {
		return errors.New("services.tenants_url is required")
	}
	if c.Services.IdentityURL == "" {
		return errors.New("services.identity_url is required")
	}
	if c.Services.SubscriptionsURL == "" {
		return errors.New("services.subscriptions_url is required")
	}
	if c.Cache.TenantPoolTTL <= 0 {
		return errors.New("cache.tenant_pool_ttl must be positive")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	return nil
}

// DefaultConfig returns default configuration values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			RequestTimeout:    10 * time.Second,
			ShutdownTimeout:   30 * time.Second,
			RequestsPerSecond: 200,
			Burst:             400,
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			Database:       "projects",
			User:           "projects_service",
			Password:       "",
			SSLMode:        "disable",
			MaxConnections: 20,
			MinConnections: 2,
		},
		Redis: RedisConfig{
			Host:     "localhost",
			Port:     6379,
			Password: "",
			DB:       0,
		},
		Cache: CacheConfig{
			TenantCredentialsTTL: 5 * time.Minute,
			TenantIDTTL:          30 * time.Minute,
			TenantPoolTTL:        10 * time.Minute,
			MaxSize:              10000,
		},
		Services: ServicesConfig{
			TenantsURL:       "http://tenants:8080",
			IdentityURL:      "http://identity:8080",
			SubscriptionsURL: "http://subscriptions:8080",
			Timeout:          5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
