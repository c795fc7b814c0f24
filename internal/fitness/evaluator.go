// Package fitness scores attacks and defenses by running them through the
// arena. Attack fitness rewards crashing the target; defense fitness is
// the fraction of archived attacks the patch survives, with a sanity-test
// veto so a patch cannot win by deleting functionality.
package fitness

import (
	"context"
	"fmt"
	"strings"

	"redqueen/internal/arena"
	"redqueen/internal/genome"
	"redqueen/internal/logging"
)

// SuccessThreshold is the score at or above which the controller treats
// an attack as having succeeded.
const SuccessThreshold = 0.5

// Attack score levels.
const (
	scoreCrash   = 1.0 // a test reported failure: the target crashed
	scoreChoked  = 0.8 // only errors (import/collection failure): partial success
	scoreTimeout = 0.5
	scoreBlocked = 0.0
)

// Result is a scored arena outcome.
type Result struct {
	Score  float64
	Passed int
	Failed int
	Errors []string
	Output string
}

// Succeeded reports whether the attack cleared the success threshold.
func (r Result) Succeeded() bool {
	return r.Score >= SuccessThreshold
}

// Evaluator scores candidates via a sandboxed runner.
type Evaluator struct {
	runner arena.Runner
}

// NewEvaluator creates an evaluator backed by the given runner.
func NewEvaluator(runner arena.Runner) *Evaluator {
	return &Evaluator{runner: runner}
}

// EvaluateAttack runs the attack body against the target. Score 1.0 when
// any test fails, 0.8 when execution produced only errors, 0.5 on
// timeout, 0.0 when everything passed.
func (e *Evaluator) EvaluateAttack(ctx context.Context, targetSource, testCode string) Result {
	res := e.runner.Run(ctx, targetSource, testCode)
	out := fromArena(res)

	switch {
	case res.TimedOut:
		out.Score = scoreTimeout
	case res.Failed > 0:
		out.Score = scoreCrash
	case len(res.Errors) > 0:
		out.Score = scoreChoked
	default:
		out.Score = scoreBlocked
	}
	logging.Fitness("attack scored %.2f (passed=%d failed=%d)", out.Score, out.Passed, out.Failed)
	return out
}

// EvaluateDefense runs every attack against the patched target in one
// aggregate execution, renaming test functions to avoid collisions.
// Score is passed/(passed+failed), or 0 when the run reported no passed
// or failed tests. An empty attack list scores 1.0 and runs nothing. A non-empty
// sanity-test text that fails under the patch overrides the score to 0.
func (e *Evaluator) EvaluateDefense(ctx context.Context, patchedSource string, attacks []*genome.AttackGenome, sanityTests string) Result {
	if len(attacks) == 0 {
		return Result{Score: 1.0}
	}

	res := e.runner.Run(ctx, patchedSource, CombineAttacks(attacks))
	out := fromArena(res)

	if res.TimedOut {
		out.Score = 0.0
	} else if total := res.Passed + res.Failed; total > 0 {
		out.Score = float64(res.Passed) / float64(total)
	}

	if sanityTests != "" && out.Score > 0 {
		sanity := e.runner.Run(ctx, patchedSource, sanityTests)
		if sanityFailed(sanity) {
			logging.Fitness("sanity tests failed; patch is gaming the system")
			out.Score = 0.0
			out.Errors = append(out.Errors, "SANITY_FAILED: original functionality broken")
		}
	}

	logging.Fitness("defense scored %.2f against %d attacks", out.Score, len(attacks))
	return out
}

// CheckSanity runs the caller-provided sanity tests against a patched
// target. Returns true when the baseline behavior survives. An empty
// sanity text always passes.
func (e *Evaluator) CheckSanity(ctx context.Context, patchedSource, sanityTests string) bool {
	if sanityTests == "" {
		return true
	}
	res := e.runner.Run(ctx, patchedSource, sanityTests)
	return !sanityFailed(res)
}

// sanityFailed reports whether the baseline behavior broke.
func sanityFailed(res arena.Result) bool {
	if res.Failed > 0 || res.TimedOut {
		return true
	}
	return res.Passed == 0 && len(res.Errors) > 0
}

// CombineAttacks concatenates attack bodies into one test file, giving
// each test function a unique prefix.
func CombineAttacks(attacks []*genome.AttackGenome) string {
	var sb strings.Builder
	for i, g := range attacks {
		renamed := strings.ReplaceAll(g.Code, "def test_", fmt.Sprintf("def test_%d_", i))
		sb.WriteString(fmt.Sprintf("\n# Attack %d: %s\n%s\n", i, firstLine(g.Description), renamed))
	}
	return sb.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func fromArena(res arena.Result) Result {
	return Result{
		Passed: res.Passed,
		Failed: res.Failed,
		Errors: res.Errors,
		Output: res.Output,
	}
}
