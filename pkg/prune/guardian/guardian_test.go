package guardian

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/deadwood/pkg/prune/types"
)

// stubRunner returns canned results in sequence.
type stubRunner struct {
	name    string
	results []*RunResult
	errs    []error
	calls   int
}

func (r *stubRunner) Name() string { return r.name }

func (r *stubRunner) RunTests(ctx context.Context) (*RunResult, error) {
	i := r.calls
	r.calls++
	if i < len(r.errs) && r.errs[i] != nil {
		return nil, r.errs[i]
	}
	return r.results[i], nil
}

func passing(ids ...string) *RunResult {
	res := &RunResult{Success: true, Outcomes: map[string]Outcome{}}
	for _, id := range ids {
		res.Outcomes[id] = OutcomePass
		res.Total++
		res.Passed++
	}
	return res
}

func TestGuardianLifecycle(t *testing.T) {
	t.Parallel()

	t.Run("capture then validate passes when nothing changed", func(t *testing.T) {
		t.Parallel()
		r := &stubRunner{name: "go", results: []*RunResult{
			passing("TestA", "TestB"),
			passing("TestA", "TestB"),
		}}
		g := New([]Runner{r}, true)
		require.Equal(t, NoBaseline, g.State())

		_, err := g.CaptureBaseline(context.Background())
		require.NoError(t, err)
		require.Equal(t, BaselineCaptured, g.State())

		verdict, err := g.Validate(context.Background())
		require.NoError(t, err)
		assert.Equal(t, Passed, verdict.State)
		assert.Equal(t, Passed, g.State())
	})

	t.Run("previously passing test now failing is a regression", func(t *testing.T) {
		t.Parallel()
		after := passing("TestA")
		after.Outcomes["TestB"] = OutcomeFail
		after.Total++
		after.Failed++
		after.Success = false

		r := &stubRunner{name: "go", results: []*RunResult{
			passing("TestA", "TestB"),
			after,
		}}
		g := New([]Runner{r}, true)

		_, err := g.CaptureBaseline(context.Background())
		require.NoError(t, err)
		verdict, err := g.Validate(context.Background())
		require.NoError(t, err)

		assert.Equal(t, Regressed, verdict.State)
		require.Len(t, verdict.Regressions, 1)
		assert.Contains(t, verdict.Regressions[0], "TestB")
	})

	t.Run("missing test is a regression by default", func(t *testing.T) {
		t.Parallel()
		r := &stubRunner{name: "go", results: []*RunResult{
			passing("TestA", "TestB"),
			passing("TestA"),
		}}
		g := New([]Runner{r}, true)

		_, err := g.CaptureBaseline(context.Background())
		require.NoError(t, err)
		verdict, err := g.Validate(context.Background())
		require.NoError(t, err)
		assert.Equal(t, Regressed, verdict.State)
	})

	t.Run("missing test tolerated when policy disabled", func(t *testing.T) {
		t.Parallel()
		r := &stubRunner{name: "go", results: []*RunResult{
			passing("TestA", "TestB"),
			passing("TestA"),
		}}
		g := New([]Runner{r}, false)

		_, err := g.CaptureBaseline(context.Background())
		require.NoError(t, err)
		verdict, err := g.Validate(context.Background())
		require.NoError(t, err)
		assert.Equal(t, Passed, verdict.State)
	})

	t.Run("new tests are tolerated", func(t *testing.T) {
		t.Parallel()
		r := &stubRunner{name: "go", results: []*RunResult{
			passing("TestA"),
			passing("TestA", "TestNew"),
		}}
		g := New([]Runner{r}, true)

		_, err := g.CaptureBaseline(context.Background())
		require.NoError(t, err)
		verdict, err := g.Validate(context.Background())
		require.NoError(t, err)
		assert.Equal(t, Passed, verdict.State)
	})

	t.Run("execution failure yields error state not a verdict", func(t *testing.T) {
		t.Parallel()
		r := &stubRunner{
			name:    "go",
			results: []*RunResult{passing("TestA"), nil},
			errs:    []error{nil, fmt.Errorf("%w: timeout", types.ErrTestExecution)},
		}
		g := New([]Runner{r}, true)

		_, err := g.CaptureBaseline(context.Background())
		require.NoError(t, err)

		_, err = g.Validate(context.Background())
		require.ErrorIs(t, err, types.ErrTestExecution)
		assert.Equal(t, ErrorState, g.State())
	})

	t.Run("resume restores baseline state", func(t *testing.T) {
		t.Parallel()
		g := New(nil, true)
		g.SetBaseline(&Baseline{SchemaVersion: types.SchemaVersion})
		assert.Equal(t, BaselineCaptured, g.State())
	})
}

func TestCompareSuiteDigestFallback(t *testing.T) {
	t.Parallel()

	t.Run("suite without test ids compares overall status", func(t *testing.T) {
		base := SuiteBaseline{Runner: "make", Success: true, Digest: Digest("ok\n")}
		regs := compareSuite(base, &RunResult{Success: false, RawOutput: "boom\n"}, true)
		require.Len(t, regs, 1)
	})

	t.Run("volatile-only differences do not regress", func(t *testing.T) {
		out1 := "ran at 2024-01-02 10:00:00 in 1.3s\nok\n"
		out2 := "ran at 2025-06-07 23:59:59 in 0.9s\nok\n"
		base := SuiteBaseline{Runner: "make", Success: true, Digest: Digest(out1)}
		regs := compareSuite(base, &RunResult{Success: true, RawOutput: out2}, true)
		assert.Empty(t, regs)
	})

	t.Run("output change with passing suite does not regress", func(t *testing.T) {
		base := SuiteBaseline{Runner: "make", Success: true, Digest: Digest("42 tests ok\n")}
		regs := compareSuite(base, &RunResult{Success: true, RawOutput: "41 tests ok, 1 new\n"}, true)
		assert.Empty(t, regs)
	})

	t.Run("failing baseline never regresses on fallback", func(t *testing.T) {
		base := SuiteBaseline{Runner: "make", Success: false, Digest: Digest("broken\n")}
		regs := compareSuite(base, &RunResult{Success: false, RawOutput: "still broken\n"}, true)
		assert.Empty(t, regs)
	})
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	t.Run("strips volatile tokens", func(t *testing.T) {
		t.Parallel()
		in := "2024-01-02T10:11:12 done in 3.5s at 0xdeadbeef id 12345678-abcd-ef01-2345-6789abcdef01"
		got := Normalize(in)
		assert.NotContains(t, got, "2024-01-02")
		assert.NotContains(t, got, "3.5s")
		assert.NotContains(t, got, "0xdeadbeef")
		assert.NotContains(t, got, "12345678-abcd")
		assert.Contains(t, got, "[TIMESTAMP]")
		assert.Contains(t, got, "[DURATION]")
		assert.Contains(t, got, "[ADDRESS]")
		assert.Contains(t, got, "[GUID]")
	})

	t.Run("collapses absolute paths to the final element", func(t *testing.T) {
		t.Parallel()
		got := Normalize("FAIL /home/user/project/pkg/thing_test.go:12")
		assert.NotContains(t, got, "/home/user")
		assert.Contains(t, got, "thing_test.go")
	})

	t.Run("is idempotent", func(t *testing.T) {
		t.Parallel()
		in := "run 2024-05-06 01:02:03 took 12ms in /tmp/x/file.go"
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once))
	})

	t.Run("identical behavior yields identical digest", func(t *testing.T) {
		t.Parallel()
		a := Digest("PASS in 0.31s (2024-01-01 00:00:00)")
		b := Digest("PASS in 4.78s (2025-12-31 23:59:59)")
		assert.Equal(t, a, b)
	})
}

func TestParseOutput(t *testing.T) {
	t.Parallel()

	t.Run("go test verbose", func(t *testing.T) {
		t.Parallel()
		raw := `=== RUN   TestAlpha
--- PASS: TestAlpha (0.01s)
=== RUN   TestBeta
--- FAIL: TestBeta (0.02s)
=== RUN   TestGamma
--- SKIP: TestGamma (0.00s)
FAIL
`
		res := parseOutput(raw)
		assert.Equal(t, 3, res.Total)
		assert.Equal(t, 1, res.Passed)
		assert.Equal(t, 1, res.Failed)
		assert.Equal(t, 1, res.Skipped)
		assert.Equal(t, OutcomeFail, res.Outcomes["TestBeta"])
	})

	t.Run("pytest verbose", func(t *testing.T) {
		t.Parallel()
		raw := `tests/test_x.py::test_ok PASSED
tests/test_x.py::test_bad FAILED
`
		res := parseOutput(raw)
		assert.Equal(t, OutcomePass, res.Outcomes["tests/test_x.py::test_ok"])
		assert.Equal(t, OutcomeFail, res.Outcomes["tests/test_x.py::test_bad"])
	})
}

func TestDiscover(t *testing.T) {
	t.Parallel()

	t.Run("configured commands bypass discovery", func(t *testing.T) {
		t.Parallel()
		runners := Discover(t.TempDir(), []string{"go test ./...", "make check"})
		require.Len(t, runners, 2)
	})

	t.Run("empty project finds no runners", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, Discover(t.TempDir(), nil))
	})
}
