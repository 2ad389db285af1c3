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

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "deadwood [path]",
		Short: "Safely archive orphaned files from a codebase",
		Long: `Deadwood scans a project for files nothing references, scores how
confidently each can be removed, and archives approved files under
.deadwood/ with hash-verified, fully reversible moves. Tests are run
before and after; any regression rolls the whole transaction back.

Nothing is ever deleted. Every archived file can be restored.

Examples:
  deadwood                   # Analyze current directory and prompt
  deadwood ~/src/myproject   # Analyze a specific project
  deadwood -d .              # Dry run: report proposals, move nothing
  deadwood -y .              # Approve every proposal without prompting
  deadwood --resume .        # Continue an interrupted session
  deadwood restore           # List restore points
  deadwood history           # View past transactions`,
		Args: cobra.MaximumNArgs(1),
		RunE: runPrune,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/deadwood/config.yaml)")
	rootCmd.PersistentFlags().IntP("workers", "w", 0, "override worker count (0=auto)")
	rootCmd.PersistentFlags().StringP("format", "f", "pretty", "report format (pretty, json)")
	rootCmd.PersistentFlags().BoolP("dry-run", "d", false, "analyze and report only, move nothing")
	rootCmd.PersistentFlags().BoolP("yes", "y", false, "approve all proposals without prompting")
	rootCmd.PersistentFlags().BoolP("resume", "r", false, "resume an interrupted session")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")

	_ = viper.BindPFlag("workers", rootCmd.PersistentFlags().Lookup("workers"))
	_ = viper.BindPFlag("format", rootCmd.PersistentFlags().Lookup("format"))
	_ = viper.BindPFlag("dry_run", rootCmd.PersistentFlags().Lookup("dry-run"))
	_ = viper.BindPFlag("yes", rootCmd.PersistentFlags().Lookup("yes"))
	_ = viper.BindPFlag("resume", rootCmd.PersistentFlags().Lookup("resume"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")

		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			viper.AddConfigPath(filepath.Join(xdgConfigHome, "deadwood"))
		}
		homeDir, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(homeDir, ".config", "deadwood"))
		}
	}

	viper.SetEnvPrefix("DEADWOOD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("protected_patterns", config.DefaultProtectedPatterns)
	viper.SetDefault("temp_patterns", config.DefaultTempPatterns)
	viper.SetDefault("test_patterns", config.DefaultTestPatterns)
	viper.SetDefault("ignore_dirs", config.DefaultIgnoreDirs)
	viper.SetDefault("max_file_size", config.DefaultMaxFileSize)
	viper.SetDefault("stale_age_days", config.DefaultStaleAgeDays)
	viper.SetDefault("workers", config.DefaultWorkers)
	viper.SetDefault("retention_days", config.DefaultRetentionDays)
	viper.SetDefault("thresholds.high", config.DefaultHighThreshold)
	viper.SetDefault("thresholds.medium", config.DefaultMediumThreshold)
	viper.SetDefault("guardian.timeout", config.DefaultTestTimeout)
	viper.SetDefault("guardian.missing_test_is_regression", true)

	_ = viper.ReadInConfig()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printInfo prints a message unless quiet mode is enabled.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
