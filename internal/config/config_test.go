package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadClientDefaults(t *testing.T) {
	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 50, cfg.PollMaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.LobbyListInterval)
	assert.Equal(t, "http://localhost:8080", cfg.OrchestratorURL)
}

func TestLoadClientOverrides(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "250ms")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("APP_ID", "app-123")

	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, "app-123", cfg.AppID)
}

func TestLoadClientRejectsZeroAttempts(t *testing.T) {
	t.Setenv("POLL_MAX_ATTEMPTS", "0")
	_, err := LoadClient()
	assert.Error(t, err)
}

func TestLoadDevServer(t *testing.T) {
	t.Setenv("PROVISION_DELAY", "0s")
	cfg, err := LoadDevServer()
	require.NoError(t, err)
	assert.Equal(t, ":4000", cfg.GameAddr)
	assert.Zero(t, cfg.ProvisionDelay)
}
