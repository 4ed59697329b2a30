package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Dispatcher.PollInterval)
	assert.Equal(t, 5, cfg.Dispatcher.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Dispatcher.CallTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Dispatcher.ClaimLease)
	assert.Equal(t, 60*time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 30*time.Minute, cfg.Retry.MaxDelay)
	assert.Equal(t, 2.0, cfg.Retry.Multiplier)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.Breaker.RecoveryTimeout)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DISPATCHER_POLL_INTERVAL", "10s")
	t.Setenv("DISPATCHER_CONCURRENCY", "8")
	t.Setenv("RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("BREAKER_FAILURE_THRESHOLD", "3")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Dispatcher.PollInterval)
	assert.Equal(t, 8, cfg.Dispatcher.Concurrency)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 3, cfg.Breaker.FailureThreshold)
}

func TestLoadConfigInvalidValuesFallBack(t *testing.T) {
	t.Setenv("DISPATCHER_CONCURRENCY", "lots")
	t.Setenv("RETRY_BASE_DELAY", "soon")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Dispatcher.Concurrency)
	assert.Equal(t, 60*time.Second, cfg.Retry.BaseDelay)
}

func TestLoadPlatformConfigs(t *testing.T) {
	t.Setenv("ENABLED_PLATFORMS", "twitter, linkedin")
	t.Setenv("TWITTER_API_BASE_URL", "https://api.twitter.com")
	t.Setenv("TWITTER_DEFAULT_RPS", "2.5")
	t.Setenv("TWITTER_DEFAULT_BURST", "10")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	twitter, ok := cfg.Platforms.Platforms["twitter"]
	require.True(t, ok)
	assert.Equal(t, "https://api.twitter.com", twitter.APIBaseURL)
	assert.Equal(t, 2.5, twitter.DefaultRPS)
	assert.Equal(t, 10, twitter.DefaultBurst)

	linkedin, ok := cfg.Platforms.Platforms["linkedin"]
	require.True(t, ok)
	assert.Equal(t, 1.0, linkedin.DefaultRPS)
	assert.Equal(t, 5, linkedin.DefaultBurst)
}
