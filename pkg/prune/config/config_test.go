package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultHighThreshold, cfg.Thresholds.High)
	assert.Equal(t, DefaultMediumThreshold, cfg.Thresholds.Medium)
	assert.Equal(t, DefaultMaxFileSize, cfg.MaxFileSize)
	assert.Equal(t, DefaultStaleAgeDays, cfg.StaleAgeDays)
	assert.Equal(t, DefaultTestTimeout, cfg.Guardian.Timeout)
	assert.True(t, cfg.Guardian.MissingTestIsRegression)
	assert.Contains(t, cfg.IgnoreDirs, DefaultStateDirName)
	assert.Contains(t, cfg.ProtectedPatterns, "README*")
}

func TestLoadFromFile(t *testing.T) {
	configHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)
	t.Setenv("HOME", t.TempDir())

	dir := filepath.Join(configHome, "deadwood")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	yaml := `
workers: 8
stale_age_days: 90
thresholds:
  high: 0.9
  medium: 0.6
guardian:
  timeout: 10m
  commands:
    - pytest -q
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 90, cfg.StaleAgeDays)
	assert.Equal(t, 0.9, cfg.Thresholds.High)
	assert.Equal(t, 0.6, cfg.Thresholds.Medium)
	assert.Equal(t, []string{"pytest -q"}, cfg.Guardian.Commands)

	// Unset keys keep their defaults.
	assert.Equal(t, DefaultMaxFileSize, cfg.MaxFileSize)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			MaxFileSize: "100MB",
			Thresholds:  ThresholdConfig{High: 0.7, Medium: 0.5},
			Guardian:    GuardianConfig{Timeout: "5m"},
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("inverted thresholds", func(t *testing.T) {
		cfg := valid()
		cfg.Thresholds = ThresholdConfig{High: 0.4, Medium: 0.6}
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidThresholds)
	})

	t.Run("threshold above one", func(t *testing.T) {
		cfg := valid()
		cfg.Thresholds.High = 1.2
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidThresholds)
	})

	t.Run("bad size", func(t *testing.T) {
		cfg := valid()
		cfg.MaxFileSize = "lots"
		assert.ErrorContains(t, cfg.Validate(), "max_file_size")
	})

	t.Run("bad timeout", func(t *testing.T) {
		cfg := valid()
		cfg.Guardian.Timeout = "soonish"
		assert.ErrorContains(t, cfg.Validate(), "guardian timeout")
	})
}

func TestDurationHelpers(t *testing.T) {
	cfg := &Config{MaxFileSize: "2MB", StaleAgeDays: 10, Guardian: GuardianConfig{Timeout: "90s"}}

	size, err := cfg.MaxFileSizeBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(2*1024*1024), size)

	timeout, err := cfg.GuardianTimeout()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, timeout)

	assert.Equal(t, 240*time.Hour, cfg.StaleAge())
}

func TestStateDir(t *testing.T) {
	assert.Equal(t, filepath.Join("/proj", DefaultStateDirName), StateDir("/proj"))
}
