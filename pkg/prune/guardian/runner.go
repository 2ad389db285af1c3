package guardian

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jamesainslie/deadwood/pkg/prune/logging"
	"github.com/jamesainslie/deadwood/pkg/prune/types"
)

// Outcome is a single test's result.
type Outcome string

const (
	OutcomePass Outcome = "pass"
	OutcomeFail Outcome = "fail"
	OutcomeSkip Outcome = "skip"
)

// RunResult is one full test-suite execution.
type RunResult struct {
	// Success is the runner's overall exit status.
	Success bool

	// Counts aggregated from parsed output, zero when unparseable.
	Total  int
	Passed int
	Failed int
	Skipped int

	// Outcomes maps test identifier to result for every test the runner's
	// output named individually. May be empty for terse runners.
	Outcomes map[string]Outcome

	// RawOutput is the combined stdout+stderr.
	RawOutput string
}

// Runner executes a project's test suite. Implementations must honor ctx
// cancellation and deadlines.
type Runner interface {
	// Name identifies the runner in baselines and reports.
	Name() string

	// RunTests executes the suite once. A non-zero suite exit is a valid
	// result (Success=false), not an error; errors are reserved for the
	// runner itself failing to execute.
	RunTests(ctx context.Context) (*RunResult, error)
}

// Per-test outcome lines across the supported toolchains.
var outcomePatterns = []struct {
	re      *regexp.Regexp
	idGroup int
	outcome map[string]Outcome
}{
	// go test: --- PASS: TestFoo (0.01s)
	{regexp.MustCompile(`^\s*--- (PASS|FAIL|SKIP): (\S+)`), 2,
		map[string]Outcome{"PASS": OutcomePass, "FAIL": OutcomeFail, "SKIP": OutcomeSkip}},
	// pytest -v: tests/test_foo.py::test_bar PASSED
	{regexp.MustCompile(`^(\S+::\S+)\s+(PASSED|FAILED|SKIPPED|XFAIL|ERROR)`), 1,
		map[string]Outcome{"PASSED": OutcomePass, "FAILED": OutcomeFail, "SKIPPED": OutcomeSkip,
			"XFAIL": OutcomeSkip, "ERROR": OutcomeFail}},
	// mocha/jest-style: ✓ name / ✗ name
	{regexp.MustCompile(`^\s*(✓|✔)\s+(.+?)(\s+\[DURATION\])?$`), 2,
		map[string]Outcome{"✓": OutcomePass, "✔": OutcomePass}},
	{regexp.MustCompile(`^\s*(✗|✖)\s+(.+?)(\s+\[DURATION\])?$`), 2,
		map[string]Outcome{"✗": OutcomeFail, "✖": OutcomeFail}},
}

// CommandRunner runs a shell command as the test suite.
type CommandRunner struct {
	name    string
	command string
	args    []string
	dir     string
	logger  *logging.Logger
}

// NewCommandRunner builds a runner for the given command in dir.
func NewCommandRunner(name, dir, command string, args ...string) *CommandRunner {
	return &CommandRunner{
		name:    name,
		command: command,
		args:    args,
		dir:     dir,
		logger:  logging.Get("guardian"),
	}
}

// Name implements Runner.
func (r *CommandRunner) Name() string { return r.name }

// Command returns the command line for baselines and reports.
func (r *CommandRunner) Command() string {
	return strings.TrimSpace(r.command + " " + strings.Join(r.args, " "))
}

// RunTests implements Runner. Context expiry maps to a test-execution
// error, which callers treat as ambiguous rather than as a regression.
func (r *CommandRunner) RunTests(ctx context.Context) (*RunResult, error) {
	r.logger.Info("running tests", "runner", r.name, "command", r.Command())

	cmd := exec.CommandContext(ctx, r.command, r.args...)
	cmd.Dir = r.dir
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrTestExecution, r.name, ctx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: %s: %v", types.ErrTestExecution, r.name, err)
		}
	}

	res := parseOutput(buf.String())
	res.Success = err == nil
	return res, nil
}

func parseOutput(raw string) *RunResult {
	res := &RunResult{
		Outcomes:  make(map[string]Outcome),
		RawOutput: raw,
	}
	for _, line := range strings.Split(raw, "\n") {
		for _, p := range outcomePatterns {
			m := p.re.FindStringSubmatch(Normalize(line))
			if m == nil {
				continue
			}
			o, ok := p.outcome[m[1]]
			if !ok {
				o, ok = p.outcome[strings.TrimSpace(m[1])]
			}
			if !ok {
				continue
			}
			res.Outcomes[m[p.idGroup]] = o
			break
		}
	}
	for _, o := range res.Outcomes {
		res.Total++
		switch o {
		case OutcomePass:
			res.Passed++
		case OutcomeFail:
			res.Failed++
		case OutcomeSkip:
			res.Skipped++
		}
	}
	return res
}

// Discover inspects the project root for recognizable test setups and
// returns one runner per toolchain found. An explicit configured command
// list bypasses discovery entirely.
func Discover(root string, configured []string) []Runner {
	if len(configured) > 0 {
		runners := make([]Runner, 0, len(configured))
		for i, line := range configured {
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			runners = append(runners,
				NewCommandRunner(fmt.Sprintf("configured-%d", i+1), root, fields[0], fields[1:]...))
		}
		return runners
	}

	var runners []Runner
	if exists(root, "go.mod") {
		runners = append(runners, NewCommandRunner("go", root, "go", "test", "-v", "./..."))
	}
	if exists(root, "pytest.ini") || exists(root, "setup.py") || exists(root, "pyproject.toml") || exists(root, "tox.ini") {
		runners = append(runners, NewCommandRunner("pytest", root, "pytest", "-v"))
	}
	if exists(root, "package.json") && packageHasTestScript(root) {
		runners = append(runners, NewCommandRunner("npm", root, "npm", "test", "--silent"))
	}
	if makefileHasTestTarget(root) {
		runners = append(runners, NewCommandRunner("make", root, "make", "test"))
	}
	return runners
}

func exists(root, name string) bool {
	_, err := os.Stat(filepath.Join(root, name))
	return err == nil
}

func packageHasTestScript(root string) bool {
	data, err := os.ReadFile(filepath.Join(root, "package.json"))
	if err != nil {
		return false
	}
	return bytes.Contains(data, []byte(`"test"`))
}

func makefileHasTestTarget(root string) bool {
	data, err := os.ReadFile(filepath.Join(root, "Makefile"))
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "test:") {
			return true
		}
	}
	return false
}
