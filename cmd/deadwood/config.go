package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/deadwood/pkg/prune/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage deadwood configuration settings.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/deadwood/config.yaml (if set)
  2. ~/.config/deadwood/config.yaml

Environment variables can override config file settings using the
DEADWOOD_ prefix:
  DEADWOOD_WORKERS=8
  DEADWOOD_STALE_AGE_DAYS=90
  DEADWOOD_GUARDIAN_TIMEOUT=10m`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long:  `Create a default configuration file if one doesn't exist.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// runConfigShow displays the current configuration.
func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if used := viper.ConfigFileUsed(); used != "" {
		printInfo("Config file: %s", used)
	} else {
		printInfo("Config file: (none, using defaults)")
	}
	printInfo("")
	printInfo("protected_patterns: %s", strings.Join(cfg.ProtectedPatterns, ", "))
	printInfo("temp_patterns:      %s", strings.Join(cfg.TempPatterns, ", "))
	printInfo("test_patterns:      %s", strings.Join(cfg.TestPatterns, ", "))
	printInfo("ignore_dirs:        %s", strings.Join(cfg.IgnoreDirs, ", "))
	printInfo("max_file_size:      %s", cfg.MaxFileSize)
	printInfo("stale_age_days:     %d", cfg.StaleAgeDays)
	printInfo("workers:            %d", cfg.Workers)
	printInfo("retention_days:     %d", cfg.RetentionDays)
	printInfo("thresholds:         high=%.2f medium=%.2f", cfg.Thresholds.High, cfg.Thresholds.Medium)
	printInfo("guardian.timeout:   %s", cfg.Guardian.Timeout)
	printInfo("guardian.missing_test_is_regression: %t", cfg.Guardian.MissingTestIsRegression)
	if len(cfg.Guardian.Commands) > 0 {
		printInfo("guardian.commands:  %s", strings.Join(cfg.Guardian.Commands, "; "))
	}
	return nil
}

const defaultConfigYAML = `# deadwood configuration
# Patterns use doublestar globs against project-relative paths.

# protected_patterns:
#   - "**/LICENSE*"
#   - "**/go.mod"

# stale_age_days: 180
# workers: 0          # 0 sizes to CPUs

thresholds:
  high: 0.7
  medium: 0.5

guardian:
  timeout: 5m
  missing_test_is_regression: true
  # commands:
  #   - go test ./...
`

// runConfigInit writes a default config file when none exists.
func runConfigInit(cmd *cobra.Command, args []string) error {
	dir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	path := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		printInfo("Config file already exists: %s", path)
		return nil
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	printInfo("Created %s", path)
	return nil
}

// runConfigPath prints the config file location.
func runConfigPath(cmd *cobra.Command, args []string) error {
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Println(used)
		return nil
	}
	dir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	fmt.Println(filepath.Join(dir, "config.yaml"))
	return nil
}
