package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(body), 0o600))
	return dir
}

func TestLoadConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		dir := writeConfig(t, "logger:\n  level: debug\n")

		cfg, err := LoadConfig(dir)

		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Logger.Level)
		assert.Equal(t, "sqlite", cfg.Database.Driver)
		assert.Equal(t, 1, cfg.Provider.MaxRetries)
		assert.Equal(t, 4, cfg.Materializer.Workers)
		assert.Equal(t, "UTC", cfg.Materializer.DefaultTimezone)
		assert.Equal(t, []string{"plaid", "brokerage"}, cfg.Materializer.SnapshotConnections)
		assert.Equal(t, 8080, cfg.Server.Port)
	})

	t.Run("FileValues", func(t *testing.T) {
		dir := writeConfig(t, `
database:
  driver: postgres
  dsn: host=localhost dbname=holdings
provider:
  base_url: https://prices.example.com
  api_key: secret
  rate_limit: 2
materializer:
  workers: 8
  snapshot_connections: [teller]
`)

		cfg, err := LoadConfig(dir)

		require.NoError(t, err)
		assert.Equal(t, "postgres", cfg.Database.Driver)
		assert.Equal(t, "https://prices.example.com", cfg.Provider.BaseURL)
		assert.Equal(t, 2.0, cfg.Provider.RateLimit)
		assert.Equal(t, 8, cfg.Materializer.Workers)
		assert.Equal(t, []string{"teller"}, cfg.Materializer.SnapshotConnections)
	})

	t.Run("EnvironmentOverride", func(t *testing.T) {
		dir := writeConfig(t, "server:\n  port: 9000\n")
		t.Setenv("SERVER_PORT", "9100")

		cfg, err := LoadConfig(dir)

		require.NoError(t, err)
		assert.Equal(t, 9100, cfg.Server.Port)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := LoadConfig(t.TempDir())
		assert.Error(t, err)
	})
}

func TestSnapshotAuthoritative(t *testing.T) {
	m := Materializer{SnapshotConnections: []string{"plaid", "Brokerage"}}

	assert.True(t, m.SnapshotAuthoritative("plaid"))
	assert.True(t, m.SnapshotAuthoritative("brokerage"))
	assert.False(t, m.SnapshotAuthoritative("manual"))
	assert.False(t, m.SnapshotAuthoritative(""))
}
