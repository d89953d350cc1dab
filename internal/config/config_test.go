package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("CONTEST_PG_PASSWORD", "s3cret")

	path := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(path, []byte(`
postgres:
  user: contests
  password: ${CONTEST_PG_PASSWORD}
scheduler:
  enabled: true
  workers: 8
judge:
  recent_window: 50
`), 0o600)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Postgres.Password)
	assert.Equal(t, "contests", cfg.Postgres.Database)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 8, cfg.Scheduler.Workers)
	assert.Equal(t, 60*time.Second, cfg.Scheduler.Interval)
	assert.Equal(t, 15*time.Second, cfg.Scheduler.CallTimeout)
	assert.Equal(t, 50, cfg.Judge.RecentWindow)
	assert.Equal(t, "https://codeforces.com/api", cfg.Judge.BaseURL)
	assert.Equal(t, "contest-commands", cfg.Kafka.Topic)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [port"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 10, cfg.Judge.RecentWindow)
	assert.Equal(t, "contest-engine", cfg.Leaderboard.PublisherID)
	assert.Equal(t, "postgres://:@localhost:5432/contests?sslmode=disable", cfg.Postgres.ConnectionString())
}
