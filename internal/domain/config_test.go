package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.NotNil(t, config)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 3001, config.Server.Port)
	assert.Equal(t, "http://localhost:8000", config.Backend.BaseURL)
	assert.Equal(t, 2*time.Second, config.Tracker.PollInterval)
	assert.Equal(t, 1*time.Second, config.Tracker.FailurePruneDelay)
	assert.Equal(t, 3*time.Second, config.Tracker.StatusErrorPruneDelay)
	assert.Greater(t, config.Tracker.MaxConcurrentPolls, 0)
	assert.True(t, config.Retrieval.Enabled)
	assert.Equal(t, "local", config.Retrieval.Storage)
	assert.False(t, config.Notification.Enabled)
	assert.Equal(t, "info", config.Logging.Level)
}

func TestTrackerConfig_PruneDelays(t *testing.T) {
	cfg := TrackerConfig{FailurePruneDelay: time.Second, StatusErrorPruneDelay: 3 * time.Second}

	delays := cfg.PruneDelays()

	assert.Equal(t, time.Second, delays.Failure)
	assert.Equal(t, 3*time.Second, delays.StatusError)
	assert.Greater(t, delays.StatusError, delays.Failure)
}
