package fitness

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redqueen/internal/arena"
	"redqueen/internal/genome"
)

// stubRunner maps test-source substrings to canned arena results.
type stubRunner struct {
	results []stubResult
	calls   []string
}

type stubResult struct {
	match  string
	result arena.Result
}

func (s *stubRunner) Run(_ context.Context, _, testSource string) arena.Result {
	s.calls = append(s.calls, testSource)
	for _, r := range s.results {
		if r.match == "" || strings.Contains(testSource, r.match) {
			return r.result
		}
	}
	return arena.Result{Passed: 1}
}

func TestAttackFitnessCrash(t *testing.T) {
	runner := &stubRunner{results: []stubResult{{
		result: arena.Result{Failed: 1, Errors: []string{"ZeroDivisionError: division by zero"}},
	}}}
	e := NewEvaluator(runner)

	res := e.EvaluateAttack(context.Background(), "def div(a,b): return a/b", "def test_div(): div(10, 0)")
	assert.Equal(t, 1.0, res.Score)
	assert.True(t, res.Succeeded())
}

func TestAttackFitnessBlocked(t *testing.T) {
	runner := &stubRunner{results: []stubResult{{result: arena.Result{Passed: 1}}}}
	e := NewEvaluator(runner)

	res := e.EvaluateAttack(context.Background(), "target", "def test_div(): assert div(10,0) is None")
	assert.Equal(t, 0.0, res.Score)
	assert.False(t, res.Succeeded())
}

func TestAttackFitnessErrorsOnly(t *testing.T) {
	runner := &stubRunner{results: []stubResult{{
		result: arena.Result{Errors: []string{"1 errors", "SyntaxError: invalid syntax"}},
	}}}
	e := NewEvaluator(runner)

	res := e.EvaluateAttack(context.Background(), "target", "def test_x(): pass")
	assert.Equal(t, 0.8, res.Score)
	assert.True(t, res.Succeeded())
}

func TestAttackFitnessTimeout(t *testing.T) {
	runner := &stubRunner{results: []stubResult{{
		result: arena.Result{TimedOut: true, Errors: []string{"Timeout"}},
	}}}
	e := NewEvaluator(runner)

	res := e.EvaluateAttack(context.Background(), "target", "def test_x(): loop()")
	assert.Equal(t, 0.5, res.Score)
	assert.True(t, res.Succeeded(), "timeouts count as attack success")
}

func TestDefenseFitnessAggregatesOneRun(t *testing.T) {
	runner := &stubRunner{results: []stubResult{{
		result: arena.Result{Passed: 3, Failed: 1},
	}}}
	e := NewEvaluator(runner)

	attacks := []*genome.AttackGenome{
		{Code: "def test_a(): f(1)", Description: "a"},
		{Code: "def test_b(): f(2)", Description: "b"},
	}
	res := e.EvaluateDefense(context.Background(), "patched", attacks, "")
	assert.Equal(t, 0.75, res.Score)
	require.Len(t, runner.calls, 1, "defense evaluation amortizes into one subprocess")
	assert.Contains(t, runner.calls[0], "def test_0_a():")
	assert.Contains(t, runner.calls[0], "def test_1_b():")
}

func TestDefenseFitnessEmptyArchive(t *testing.T) {
	e := NewEvaluator(&stubRunner{})
	res := e.EvaluateDefense(context.Background(), "patched", nil, "")
	assert.Equal(t, 1.0, res.Score)
}

func TestSanityFailureVetoesDefense(t *testing.T) {
	// Patch "blocks" every attack but breaks the baseline: score must be 0.
	runner := &stubRunner{results: []stubResult{
		{match: "test_sanity_add", result: arena.Result{Failed: 1, Errors: []string{"assert None == 5"}}},
		{match: "", result: arena.Result{Passed: 2}},
	}}
	e := NewEvaluator(runner)

	attacks := []*genome.AttackGenome{
		{Code: "def test_a(): f(1)"},
		{Code: "def test_b(): f(2)"},
	}
	sanity := "def test_sanity_add():\n    assert add(2, 3) == 5\n"
	res := e.EvaluateDefense(context.Background(), "def add(a,b): return None", attacks, sanity)

	assert.Equal(t, 0.0, res.Score)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[len(res.Errors)-1], "SANITY_FAILED")
}

func TestDefensiveExceptionCountsAsBlocked(t *testing.T) {
	// The raw subprocess reports a failed test, but the message is a
	// validation error: the defense is credited.
	res := Result{
		Score:  1.0,
		Failed: 1,
		Errors: []string{"ValueError: Input cannot be empty"},
	}
	assert.True(t, Blocked(res))
}

func TestRawCrashIsNotBlocked(t *testing.T) {
	res := Result{
		Score:  1.0,
		Failed: 1,
		Errors: []string{"ZeroDivisionError: division by zero"},
	}
	assert.False(t, Blocked(res))
}

func TestBlockedChecksFirstErrorLineOnly(t *testing.T) {
	res := Result{
		Score:  1.0,
		Failed: 1,
		Errors: []string{"KeyError: 'x'", "ValueError: Invalid input"},
	}
	assert.False(t, Blocked(res), "only the first captured error line counts")
}

func TestBlockedWhenAttackPasses(t *testing.T) {
	assert.True(t, Blocked(Result{Score: 0.0, Passed: 1}))
}

func TestIsDefensiveError(t *testing.T) {
	assert.True(t, IsDefensiveError("TypeError: must be a string, got int"))
	assert.True(t, IsDefensiveError("ValueError: cannot be None"))
	assert.False(t, IsDefensiveError("RecursionError: maximum recursion depth exceeded"))
	assert.False(t, IsDefensiveError(""))
}
