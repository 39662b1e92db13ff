package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, int32(8688), cfg.HTTP.Port)
	assert.Equal(t, "127.0.0.1", cfg.HTTP.Host)
	assert.Equal(t, 2, cfg.Global.ShutdownTimeoutInSeconds)
	assert.Equal(t, 2*time.Second, cfg.Reader.ThrottleInterval)
	assert.True(t, cfg.Tasks.Enabled)
	assert.Equal(t, 2, cfg.Tasks.Workers)
	assert.Equal(t, "*/30 * * * *", cfg.Rescan.Schedule)
	assert.True(t, cfg.Rescan.Watch)
	assert.Empty(t, cfg.Security.CSRFSecret)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("HOST", "0.0.0.0")
	t.Setenv("READER_THROTTLE_SECONDS", "5")
	t.Setenv("RESCAN_SCHEDULE", "0 * * * *")
	t.Setenv("TASKS_ENABLED", "false")

	cfg := NewConfig()

	assert.Equal(t, int32(9999), cfg.HTTP.Port)
	assert.Equal(t, "0.0.0.0", cfg.HTTP.Host)
	assert.Equal(t, 5*time.Second, cfg.Reader.ThrottleInterval)
	assert.Equal(t, "0 * * * *", cfg.Rescan.Schedule)
	assert.False(t, cfg.Tasks.Enabled)
}
