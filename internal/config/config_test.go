package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"missing database host", func(c *Config) { c.Database.Host = "" }, "database.host"},
		{"missing database name", func(c *Config) { c.Database.Database = "" }, "database.database"},
		{"missing database user", func(c *Config) { c.Database.User = "" }, "database.user"},
		{"missing tenants url", func(c *Config) { c.Services.TenantsURL = "" }, "services.tenants_url"},
		{"zero pool ttl", func(c *Config) { c.Cache.TenantPoolTTL = 0 }, "cache.tenant_pool_ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConnStrings(t *testing.T) {
	db := DatabaseConfig{
		Host:           "db.internal",
		Port:           5432,
		Database:       "projects",
		User:           "svc",
		Password:       "pw",
		SSLMode:        "require",
		MaxConnections: 10,
		MinConnections: 1,
	}

	template := db.ConnTemplate()
	assert.Contains(t, template, "host=db.internal")
	assert.Contains(t, template, "dbname=projects")
	assert.False(t, strings.Contains(template, "user="), "template must not carry credentials")

	full := db.ConnString()
	assert.Contains(t, full, "user=svc")
	assert.Contains(t, full, "password=pw")
	assert.True(t, strings.HasPrefix(full, template))
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Database.Host)
}
