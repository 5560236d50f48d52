package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("database:\n  host: localhost\n"))
	require.NoError(t, err)

	assert.Equal(t, ModeIntegrations, cfg.Brief.Mode)
	assert.Equal(t, 5*time.Minute, cfg.OAuth.StateTTL)
	assert.Equal(t, 5*time.Minute, cfg.OAuth.RefreshWindow)
	assert.Equal(t, 5, cfg.Brief.MaxConcurrentProviders)
	assert.Equal(t, 50, cfg.Brief.DefaultListLimit)
	assert.Len(t, cfg.Providers.Search.Queries, 4)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 3, cfg.HTTP.Retry.MaxAttempts)
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("BRIEF_TEST_SLACK_SECRET", "s3cret")

	cfg, err := Parse([]byte(`
providers:
  slack:
    client_id: abc
    client_secret: ${BRIEF_TEST_SLACK_SECRET}
brief:
  mode: fixtures
  provider_timeout: 10s
`))
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Providers.Slack.ClientSecret)
	assert.Equal(t, ModeFixtures, cfg.Brief.Mode)
	assert.Equal(t, 10*time.Second, cfg.Brief.ProviderTimeout)
}

func TestParse_InvalidMode(t *testing.T) {
	_, err := Parse([]byte("brief:\n  mode: carrier_pigeon\n"))
	assert.ErrorContains(t, err, "invalid brief mode")
}

func TestParse_UnifiedSearchRequiresURL(t *testing.T) {
	_, err := Parse([]byte("brief:\n  mode: unified_search\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config file")
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "brief", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=brief sslmode=disable", d.DSN())
}
