package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, filepath.Join("data", "engine.db"), cfg.EngineDB)
	assert.Equal(t, "@hourly", cfg.SyncSchedule)
	assert.Equal(t, uint32(365), cfg.RetentionDays)
	assert.Equal(t, filepath.Join("data", "sections"), cfg.SectionsDir())
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"data_dir: /var/lib/veloq\nsync_schedule: \"0 * * * *\"\nretention_days: 90\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/veloq", cfg.DataDir)
	assert.Equal(t, filepath.Join("/var/lib/veloq", "engine.db"), cfg.EngineDB)
	assert.Equal(t, "0 * * * *", cfg.SyncSchedule)
	assert.Equal(t, uint32(90), cfg.RetentionDays)
}

func TestLoadMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: [unclosed"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: from-file\n"), 0o644))
	t.Setenv("VELOQ_DATA_DIR", "from-env")
	t.Setenv("VELOQ_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.DataDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, filepath.Join("from-env", "engine.db"), cfg.EngineDB)
}
