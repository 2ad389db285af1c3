package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jamesainslie/deadwood/pkg/prune/types"
)

// ThresholdConfig holds the confidence cutoffs between recommended actions.
type ThresholdConfig struct {
	High   float64 `mapstructure:"high"`
	Medium float64 `mapstructure:"medium"`
}

// GuardianConfig configures the test guardian.
type GuardianConfig struct {
	// Timeout bounds each test command. Parsed with time.ParseDuration.
	Timeout string `mapstructure:"timeout"`

	// MissingTestIsRegression controls whether a test identifier present
	// at baseline but absent after migration counts as a regression.
	// Defaults to true (fail-safe).
	MissingTestIsRegression bool `mapstructure:"missing_test_is_regression"`

	// Commands overrides auto-discovery with explicit test commands.
	Commands []string `mapstructure:"commands"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Components map[string]string `mapstructure:"components"`
}

// Config represents the application configuration.
type Config struct {
	// ProtectedPatterns are glob patterns for files that are never
	// proposed for removal.
	ProtectedPatterns []string `mapstructure:"protected_patterns"`

	// TempPatterns mark files as likely temporary.
	TempPatterns []string `mapstructure:"temp_patterns"`

	// TestPatterns mark files as test files.
	TestPatterns []string `mapstructure:"test_patterns"`

	// IgnoreDirs are directory names skipped during scanning.
	IgnoreDirs []string `mapstructure:"ignore_dirs"`

	// MaxFileSize is the largest file the scanner hashes, as a size string.
	MaxFileSize string `mapstructure:"max_file_size"`

	// StaleAgeDays is the modification age in days after which a file
	// counts as stale for scoring.
	StaleAgeDays int `mapstructure:"stale_age_days"`

	// Workers is the scan/hash worker count. Zero sizes to CPUs.
	Workers int `mapstructure:"workers"`

	// RetentionDays is how long old transactions and audit logs are kept.
	RetentionDays int `mapstructure:"retention_days"`

	Thresholds ThresholdConfig `mapstructure:"thresholds"`
	Guardian   GuardianConfig  `mapstructure:"guardian"`
	Logging    LoggingConfig   `mapstructure:"logging"`
}

// MaxFileSizeBytes returns MaxFileSize parsed into bytes.
func (c *Config) MaxFileSizeBytes() (int64, error) {
	return types.ParseSize(c.MaxFileSize)
}

// GuardianTimeout returns the guardian timeout as a duration.
func (c *Config) GuardianTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Guardian.Timeout)
}

// StaleAge returns the stale age as a duration.
func (c *Config) StaleAge() time.Duration {
	return time.Duration(c.StaleAgeDays) * 24 * time.Hour
}

// Load loads configuration from file and environment variables.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/deadwood/config.yaml
//   - $HOME/.config/deadwood/config.yaml
//
// Environment variables are prefixed with DEADWOOD_ (e.g., DEADWOOD_WORKERS).
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		v.AddConfigPath(filepath.Join(xdgConfigHome, "deadwood"))
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}
	v.AddConfigPath(filepath.Join(homeDir, ".config", "deadwood"))

	v.SetEnvPrefix("DEADWOOD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is acceptable; we use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers default values on the viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("protected_patterns", DefaultProtectedPatterns)
	v.SetDefault("temp_patterns", DefaultTempPatterns)
	v.SetDefault("test_patterns", DefaultTestPatterns)
	v.SetDefault("ignore_dirs", DefaultIgnoreDirs)
	v.SetDefault("max_file_size", DefaultMaxFileSize)
	v.SetDefault("stale_age_days", DefaultStaleAgeDays)
	v.SetDefault("workers", DefaultWorkers)
	v.SetDefault("retention_days", DefaultRetentionDays)
	v.SetDefault("thresholds.high", DefaultHighThreshold)
	v.SetDefault("thresholds.medium", DefaultMediumThreshold)
	v.SetDefault("guardian.timeout", DefaultTestTimeout)
	v.SetDefault("guardian.missing_test_is_regression", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.components", map[string]string{
		"scanner":  "info",
		"migrate":  "info",
		"guardian": "info",
		"session":  "info",
	})
}

// ErrInvalidThresholds indicates a threshold ordering problem.
var ErrInvalidThresholds = errors.New("thresholds must satisfy 0 <= medium <= high <= 1")

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Thresholds.Medium < 0 || c.Thresholds.High > 1 || c.Thresholds.Medium > c.Thresholds.High {
		return fmt.Errorf("%w: medium=%v high=%v", ErrInvalidThresholds, c.Thresholds.Medium, c.Thresholds.High)
	}
	if _, err := types.ParseSize(c.MaxFileSize); err != nil {
		return fmt.Errorf("invalid max_file_size: %w", err)
	}
	if _, err := time.ParseDuration(c.Guardian.Timeout); err != nil {
		return fmt.Errorf("invalid guardian timeout: %w", err)
	}
	return nil
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "deadwood"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "deadwood"), nil
}

// StateDir returns the per-project durable state directory for a project
// root.
func StateDir(projectRoot string) string {
	return filepath.Join(projectRoot, DefaultStateDirName)
}
