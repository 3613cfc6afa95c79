package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	cfg, err := Load(writeConfig(t, `{"token": "abc", "postgres": {"host": "db"}}`))
	require.NoError(t, err)

	assert.Equal(t, "abc", cfg.Token)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, 100*time.Millisecond, cfg.Engine.PatternTimeout())
	assert.Equal(t, 5*time.Minute, cfg.Engine.CacheTTL())
	assert.Equal(t, 5*time.Second, cfg.Engine.EvalTimeout())
	assert.Equal(t, 4096, cfg.Engine.IngestQueue)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "from-env")
	t.Setenv("POSTGRES_PORT", "6543")
	t.Setenv("PATTERN_TIMEOUT_MS", "25")

	cfg, err := Load(writeConfig(t, `{"token": "file", "engine": {"pattern_timeout_ms": 50}}`))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Token)
	assert.Equal(t, 6543, cfg.Postgres.Port)
	assert.Equal(t, 25*time.Millisecond, cfg.Engine.PatternTimeout())
}

func TestLoadMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.json")

	t.Setenv("DISCORD_TOKEN", "")
	_, err := Load(missing)
	assert.Error(t, err)

	t.Setenv("DISCORD_TOKEN", "tok")
	cfg, err := Load(missing)
	require.NoError(t, err)
	assert.Equal(t, "tok", cfg.Token)
}

func TestLoadRejectsBadValues(t *testing.T) {
	_, err := Load(writeConfig(t, `{`))
	assert.Error(t, err)

	t.Setenv("REDIS_DB", "one")
	_, err = Load(writeConfig(t, `{}`))
	assert.Error(t, err)
}

func TestLogger(t *testing.T) {
	cfg := &Config{Log: LogConfig{Level: "debug", Development: true}}
	l, err := cfg.Logger()
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(-1))

	cfg.Log.Level = "loud"
	_, err = cfg.Logger()
	assert.Error(t, err)
}
