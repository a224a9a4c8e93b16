package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apiclient "github.com/Devesh-22/expense-tracker-api/pkg/api/client"
)

func TestConfigRoundTripUsesOverridePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	t.Setenv("EXPENSECTL_CONFIG", path)

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, apiclient.DefaultBaseURL, cfg.APIBaseURL)
	assert.Empty(t, cfg.AccessToken)

	cfg.AccessToken = "token-123"
	cfg.Username = "alice"
	require.NoError(t, saveConfig(cfg))

	loaded, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSessionRequiresLogin(t *testing.T) {
	t.Setenv("EXPENSECTL_CONFIG", filepath.Join(t.TempDir(), "config.json"))
	_, _, err := session()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expensectl login")
}

func TestPasswordOrPromptPrefersFlag(t *testing.T) {
	got, err := passwordOrPrompt("from-flag", "Password: ")
	require.NoError(t, err)
	assert.Equal(t, "from-flag", got)
}
