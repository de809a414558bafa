package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyPlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://trip@localhost/trip")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("TRIP_REDIS_URL", "")
	t.Setenv("PORT", "9000")

	cfg := Config{Addr: "0.0.0.0:8080", RedisURL: "redis://localhost:6379/0"}
	cfg.applyPlatformDefaults()

	assert.Equal(t, "postgres://trip@localhost/trip", cfg.DatabaseURL)
	assert.Equal(t, "redis://cache:6379/1", cfg.RedisURL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
}

func TestApplyPlatformDefaults_KeepsExplicit(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform")
	t.Setenv("PORT", "9000")

	cfg := Config{Addr: "127.0.0.1:7000", DatabaseURL: "postgres://explicit"}
	cfg.applyPlatformDefaults()

	assert.Equal(t, "postgres://explicit", cfg.DatabaseURL)
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
}

func TestConfigValidate(t *testing.T) {
	valid := Config{DatabaseURL: "postgres://x", PlatformAccount: "p", APIKeyPepper: "k"}
	require.NoError(t, valid.validate())

	for name, mutate := range map[string]func(*Config){
		"no database": func(c *Config) { c.DatabaseURL = "" },
		"no platform": func(c *Config) { c.PlatformAccount = "" },
		"no pepper":   func(c *Config) { c.APIKeyPepper = "" },
		"concurrency": func(c *Config) { c.Saga = SagaConfig{Parallel: true} },
		"pool size":   func(c *Config) { c.Database.MaxConns = -1 },
	} {
		t.Run(name, func(t *testing.T) {
			c := valid
			mutate(&c)
			assert.Error(t, c.validate())
		})
	}
}
