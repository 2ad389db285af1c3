// Package config provides configuration management for the deadwood pruner.
package config

// Default configuration values.
const (
	// DefaultStateDirName is the per-project state directory name.
	DefaultStateDirName = ".deadwood"

	// DefaultWorkers is the default number of scan/hash workers.
	// Zero means "size to available CPUs".
	DefaultWorkers = 0

	// DefaultMaxFileSize is the largest file the scanner will hash and
	// extract references from.
	DefaultMaxFileSize = "100MB"

	// DefaultStaleAge is the modification age after which a file counts
	// as stale for scoring.
	DefaultStaleAgeDays = 180

	// DefaultTestTimeout is the maximum duration for one test command.
	DefaultTestTimeout = "5m"

	// DefaultRetentionDays is how long archived transactions and audit
	// logs are retained before pruning.
	DefaultRetentionDays = 30
)

// Confidence thresholds separating recommended actions.
const (
	// DefaultHighThreshold is the confidence above which archiving is
	// recommended outright.
	DefaultHighThreshold = 0.7

	// DefaultMediumThreshold is the confidence above which archiving is
	// suggested for review.
	DefaultMediumThreshold = 0.5
)

// DefaultProtectedPatterns are files never proposed for removal.
var DefaultProtectedPatterns = []string{
	"README*", "LICENSE*", "CONTRIBUTING*", "CHANGELOG*",
	"go.mod", "go.sum", "setup.py", "requirements.txt",
	"package.json", "package-lock.json", "yarn.lock",
	"*.sln", "*.csproj", "*.config", "appsettings*.json",
	".gitignore", ".dockerignore", "Dockerfile*",
	"Makefile", "CMakeLists.txt", "*.yml", "*.yaml",
}

// DefaultTempPatterns mark files as likely temporary.
var DefaultTempPatterns = []string{
	"*.tmp", "*.temp", "*.cache", "~*", "*.swp", "*.swo",
	"*.log", "*.bak", "*.backup", "*.old", "*.orig",
}

// DefaultTestPatterns mark files as test files.
var DefaultTestPatterns = []string{
	"*test*", "*Test*", "*spec*", "*Spec*",
}

// DefaultIgnoreDirs are directories skipped entirely during scanning.
var DefaultIgnoreDirs = []string{
	".git", ".vs", ".vscode", ".idea", "__pycache__",
	"node_modules", "bin", "obj", "dist", "build",
	".pytest_cache", ".mypy_cache", "venv", "env",
	DefaultStateDirName,
}
