// Package guardian protects test integrity across a pruning transaction.
// It captures a normalized fingerprint of the test suite before files are
// moved, re-runs the suite afterward, and decides whether behavior changed.
// Comparison is semantic: volatile output tokens are stripped before
// digesting, and the verdict is driven by per-test outcomes where the
// runner's output names tests individually.
package guardian

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jamesainslie/deadwood/pkg/prune/logging"
	"github.com/jamesainslie/deadwood/pkg/prune/types"
)

// State is the guardian's position in its lifecycle.
type State string

const (
	NoBaseline       State = "no_baseline"
	BaselineCaptured State = "baseline_captured"
	Validating       State = "validating"
	Passed           State = "passed"
	Regressed        State = "regressed"
	ErrorState       State = "error"
)

// SuiteBaseline is one runner's captured fingerprint.
type SuiteBaseline struct {
	Runner   string             `json:"runner"`
	Success  bool               `json:"success"`
	Total    int                `json:"total"`
	Passed   int                `json:"passed"`
	Failed   int                `json:"failed"`
	Skipped  int                `json:"skipped"`
	Outcomes map[string]Outcome `json:"outcomes,omitempty"`
	Digest   string             `json:"digest"`
}

// Baseline is the full pre-transaction fingerprint, serializable into the
// session checkpoint.
type Baseline struct {
	SchemaVersion int             `json:"schema_version"`
	CapturedAt    time.Time       `json:"captured_at"`
	Suites        []SuiteBaseline `json:"suites"`
}

// Verdict is the outcome of a validation pass.
type Verdict struct {
	State State `json:"state"`

	// Regressions lists "runner: detail" strings for each detected
	// regression.
	Regressions []string `json:"regressions,omitempty"`
}

// Guardian drives baseline capture and post-transaction validation.
type Guardian struct {
	runners []Runner

	// missingIsRegression controls whether a test identifier present in
	// the baseline but absent from the re-run counts as a regression.
	// Defaults to true; an archived test file usually means exactly that.
	missingIsRegression bool

	state    State
	baseline *Baseline
	logger   *logging.Logger
}

// New builds a guardian over the given runners.
func New(runners []Runner, missingIsRegression bool) *Guardian {
	return &Guardian{
		runners:             runners,
		missingIsRegression: missingIsRegression,
		state:               NoBaseline,
		logger:              logging.Get("guardian"),
	}
}

// State returns the current lifecycle state.
func (g *Guardian) State() State { return g.state }

// Baseline returns the captured baseline, nil before capture.
func (g *Guardian) Baseline() *Baseline { return g.baseline }

// SetBaseline installs a previously captured baseline, used when resuming
// a session from a checkpoint.
func (g *Guardian) SetBaseline(b *Baseline) {
	g.baseline = b
	if b != nil {
		g.state = BaselineCaptured
	}
}

// CaptureBaseline runs every suite once and records the fingerprints.
// Runner execution failures (including timeouts) leave the guardian in the
// error state; the caller surfaces them without destructive follow-on.
func (g *Guardian) CaptureBaseline(ctx context.Context) (*Baseline, error) {
	b := &Baseline{
		SchemaVersion: types.SchemaVersion,
		CapturedAt:    time.Now().UTC(),
	}
	for _, r := range g.runners {
		res, err := r.RunTests(ctx)
		if err != nil {
			g.state = ErrorState
			return nil, err
		}
		b.Suites = append(b.Suites, suiteFromResult(r.Name(), res))
		g.logger.Info("baseline captured", "runner", r.Name(),
			"tests", res.Total, "passed", res.Passed, "failed", res.Failed)
	}
	g.baseline = b
	g.state = BaselineCaptured
	return b, nil
}

// Validate re-runs every suite and compares against the baseline. The
// returned verdict is Regressed when any previously passing test fails or
// disappears, Passed otherwise. Execution failures yield an error and the
// error state, never a Regressed verdict.
func (g *Guardian) Validate(ctx context.Context) (*Verdict, error) {
	if g.baseline == nil {
		return nil, fmt.Errorf("validate: no baseline captured")
	}
	g.state = Validating

	byRunner := make(map[string]SuiteBaseline, len(g.baseline.Suites))
	for _, s := range g.baseline.Suites {
		byRunner[s.Runner] = s
	}

	verdict := &Verdict{State: Passed}
	for _, r := range g.runners {
		base, ok := byRunner[r.Name()]
		if !ok {
			continue
		}
		res, err := r.RunTests(ctx)
		if err != nil {
			g.state = ErrorState
			return nil, err
		}
		for _, reg := range compareSuite(base, res, g.missingIsRegression) {
			verdict.Regressions = append(verdict.Regressions, r.Name()+": "+reg)
		}
	}

	if len(verdict.Regressions) > 0 {
		verdict.State = Regressed
		g.state = Regressed
		g.logger.Warn("regression detected", "count", len(verdict.Regressions))
		return verdict, nil
	}
	g.state = Passed
	g.logger.Info("validation passed")
	return verdict, nil
}

// compareSuite is package-level so its policy can be tested directly.
func compareSuite(base SuiteBaseline, res *RunResult, missingIsRegression bool) []string {
	var regs []string

	if len(base.Outcomes) > 0 {
		ids := make([]string, 0, len(base.Outcomes))
		for id := range base.Outcomes {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			if base.Outcomes[id] != OutcomePass {
				continue
			}
			now, present := res.Outcomes[id]
			switch {
			case !present:
				if missingIsRegression {
					regs = append(regs, fmt.Sprintf("test %s missing after migration", id))
				}
			case now == OutcomeFail:
				regs = append(regs, fmt.Sprintf("test %s was passing, now failing", id))
			}
		}
		return regs
	}

	// Terse runners give no per-test identifiers; fall back to the overall
	// exit status. A changed output digest alone is not a regression while
	// the suite still passes, so benign output drift never triggers a
	// rollback. The digest stays in the baseline for reports.
	if base.Success && !res.Success {
		regs = append(regs, "suite was passing, now failing")
	}
	return regs
}

func suiteFromResult(name string, res *RunResult) SuiteBaseline {
	return SuiteBaseline{
		Runner:   name,
		Success:  res.Success,
		Total:    res.Total,
		Passed:   res.Passed,
		Failed:   res.Failed,
		Skipped:  res.Skipped,
		Outcomes: res.Outcomes,
		Digest:   Digest(res.RawOutput),
	}
}
