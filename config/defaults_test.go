package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, 100, cfg.Server.RateLimitRPS)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)

	assert.False(t, cfg.Auth.Enabled)

	assert.Equal(t, 64, cfg.Engine.MaxWorkers)
	assert.Equal(t, 256, cfg.Engine.EventBufferSize)
	assert.Zero(t, cfg.Engine.InvokeRateLimit)

	assert.Equal(t, "inmemory", cfg.Memory.Backend)
	assert.Equal(t, "memory", cfg.Persistence.Backend)
	assert.True(t, cfg.Persistence.AutoMigrate)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "teamflow.db", cfg.Database.Name)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Mongo.URI)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "teamflow", cfg.Telemetry.ServiceName)
}
