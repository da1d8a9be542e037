package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load loads configuration from file and environment variables.
// Environment variables use the PROJECTS_ prefix with underscores,
// e.g. PROJECTS_DATABASE_HOST overrides database.host.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	cfg := DefaultConfig()
	setDefaults(v, cfg)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/projects-service")
	}

	v.SetEnvPrefix("PROJECTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env cover it.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.request_timeout", cfg.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)
	v.SetDefault("server.requests_per_second", cfg.Server.RequestsPerSecond)
	v.SetDefault("server.burst", cfg.Server.Burst)

	v.SetDefault("database.host", cfg.Database.Host)
	v.SetDefault("database.port", cfg.Database.Port)
	v.SetDefault("database.database", cfg.Database.Database)
	v.SetDefault("database.user", cfg.Database.User)
	v.SetDefault("database.password", cfg.Database.Password)
	v.SetDefault("database.ssl_mode", cfg.Database.SSLMode)
	v.SetDefault("database.max_connections", cfg.Database.MaxConnections)
	v.SetDefault("database.min_connections", cfg.Database.MinConnections)

	v.SetDefault("redis.host", cfg.Redis.Host)
	v.SetDefault("redis.port", cfg.Redis.Port)
	v.SetDefault("redis.password", cfg.Redis.Password)
	v.SetDefault("redis.db", cfg.Redis.DB)

	v.SetDefault("cache.tenant_credentials_ttl", cfg.Cache.TenantCredentialsTTL)
	v.SetDefault("cache.tenant_id_ttl", cfg.Cache.TenantIDTTL)
	v.SetDefault("cache.tenant_pool_ttl", cfg.Cache.TenantPoolTTL)
	v.SetDefault("cache.max_size", cfg.Cache.MaxSize)

	v.SetDefault("services.tenants_url", cfg.Services.TenantsURL)
	v.SetDefault("services.identity_url", cfg.Services.IdentityURL)
	v.SetDefault("services.subscriptions_url", cfg.Services.SubscriptionsURL)
	v.SetDefault("services.timeout", cfg.Services.Timeout)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
}
