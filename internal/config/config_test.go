package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DatabaseType)
	assert.Equal(t, "./event_router.db", cfg.DatabasePath)
	assert.Equal(t, "30s", cfg.RuleCacheTTL)
	assert.Equal(t, "10s", cfg.DispatchTimeout)
	assert.Equal(t, "@hourly", cfg.StatsRefreshCron)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_TYPE", "postgres")
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("DISPATCH_TIMEOUT", "5s")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "postgres", cfg.DatabaseType)
	assert.Equal(t, "db.internal", cfg.PostgresHost)
	assert.Equal(t, 5*time.Second, cfg.GetDispatchTimeout())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Load()
		return cfg
	}

	t.Run("default config is valid", func(t *testing.T) {
		require.NoError(t, valid().Validate())
	})

	t.Run("invalid port", func(t *testing.T) {
		cfg := valid()
		cfg.Port = "not-a-port"
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown database type", func(t *testing.T) {
		cfg := valid()
		cfg.DatabaseType = "oracle"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "postgresql", "error names the accepted alias")
	})

	t.Run("postgresql alias is accepted", func(t *testing.T) {
		cfg := valid()
		cfg.DatabaseType = "postgresql"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("postgres requires host", func(t *testing.T) {
		cfg := valid()
		cfg.DatabaseType = "postgres"
		cfg.PostgresHost = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("redis db out of range", func(t *testing.T) {
		cfg := valid()
		cfg.RedisAddress = "localhost:6379"
		cfg.RedisDB = "42"
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad dispatch timeout", func(t *testing.T) {
		cfg := valid()
		cfg.DispatchTimeout = "soon"
		assert.Error(t, cfg.Validate())
	})
}

func TestGetRuleCacheTTL_FallsBackOnBadValue(t *testing.T) {
	cfg := Load()
	cfg.RuleCacheTTL = "garbage"
	assert.Equal(t, 30*time.Second, cfg.GetRuleCacheTTL())
}
