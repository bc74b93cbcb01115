package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.True(t, cfg.IsDev())
	assert.Equal(t, "memory", cfg.Database.Type)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 20, cfg.Paging.DefaultLimit)
	assert.Equal(t, 100, cfg.Paging.MaxLimit)
	assert.Equal(t, 5, cfg.Revisions.MaxAttempts)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("FOLIO_ENV", "PROD")
	t.Setenv("FOLIO_DB_TYPE", "postgres")
	t.Setenv("FOLIO_POSTGRES_DSN", "postgres://x@db/folio")
	t.Setenv("FOLIO_CACHE_BACKEND", "redis")
	t.Setenv("FOLIO_SCHEDULER_INTERVAL", "30s")
	t.Setenv("FOLIO_NOTIFY_BATCH_SIZE", "10")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProd())
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, "postgres://x@db/folio", cfg.Database.PostgresDSN)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.Interval)
	assert.Equal(t, 10, cfg.Notify.BatchSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown db type", func(c *Config) { c.Database.Type = "mongo" }},
		{"postgres without dsn", func(c *Config) { c.Database.Type = "postgres"; c.Database.PostgresDSN = "" }},
		{"unknown cache backend", func(c *Config) { c.Cache.Backend = "memcached" }},
		{"zero interval", func(c *Config) { c.Scheduler.Interval = 0 }},
		{"max below default", func(c *Config) { c.Paging.MaxLimit = 5 }},
		{"no revision attempts", func(c *Config) { c.Revisions.MaxAttempts = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)

			tt.mutate(cfg)
			assert.Error(t, cfg.validate())
		})
	}
}
