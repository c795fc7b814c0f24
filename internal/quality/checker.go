// Package quality statically inspects candidate patches for "gaming"
// behavior: a defender can pass every archived attack by swallowing all
// exceptions or deleting the code under test. The checker is advisory;
// empirical fitness stays primary, and the sanity-test veto is what
// actually stops a gamed patch from scoring.
package quality

import (
	"fmt"
	"regexp"
	"strings"

	"redqueen/internal/logging"
)

// suspiciousPattern describes one cheat signature and its penalty.
type suspiciousPattern struct {
	pattern *regexp.Regexp
	name    string
	penalty float64
}

var suspiciousPatterns = []suspiciousPattern{
	// Swallowed exceptions.
	{regexp.MustCompile(`except.*:\s*pass`), "empty_except", 0.3},
	{regexp.MustCompile(`except.*:\s*return None`), "swallow_to_none", 0.4},
	{regexp.MustCompile(`except.*:\s*return \{\}`), "swallow_to_empty", 0.4},
	{regexp.MustCompile(`except.*:\s*return ""`), "swallow_to_empty_str", 0.4},
	{regexp.MustCompile(`except.*:\s*return \[\]`), "swallow_to_empty_list", 0.4},
	// Broad handlers without a concrete type.
	{regexp.MustCompile(`except\s*:`), "bare_except", 0.2},
	{regexp.MustCompile(`except Exception:`), "catch_all_exception", 0.1},
	// Suspicious early bailouts.
	{regexp.MustCompile(`if.*:\s*return None`), "early_return_none", 0.1},
}

var tryPattern = regexp.MustCompile(`\btry\s*:`)

const (
	lineReductionLimit   = 0.5
	lineReductionPenalty = 0.5
	tryExplosionLimit    = 3
	tryExplosionPenalty  = 0.2
)

// Checker inspects the textual difference between the original target
// and a candidate patch.
type Checker struct{}

// NewChecker creates a quality checker.
func NewChecker() *Checker {
	return &Checker{}
}

// Check returns a penalty in [0,1] and the warnings that produced it.
// Only patterns ADDED by the patch count; pre-existing occurrences in
// the original are free.
func (c *Checker) Check(originalCode, fixedCode string) (float64, []string) {
	var warnings []string
	totalPenalty := 0.0

	for _, sp := range suspiciousPatterns {
		oldMatches := len(sp.pattern.FindAllString(originalCode, -1))
		newMatches := len(sp.pattern.FindAllString(fixedCode, -1))
		if added := newMatches - oldMatches; added > 0 {
			warnings = append(warnings, fmt.Sprintf("%s: +%d occurrences", sp.name, added))
			totalPenalty += sp.penalty * float64(added)
		}
	}

	oldLines := countLines(originalCode)
	newLines := countLines(fixedCode)
	if float64(newLines) < float64(oldLines)*lineReductionLimit {
		warnings = append(warnings, fmt.Sprintf("code_reduction: %d -> %d lines", oldLines, newLines))
		totalPenalty += lineReductionPenalty
	}

	oldTry := len(tryPattern.FindAllString(originalCode, -1))
	newTry := len(tryPattern.FindAllString(fixedCode, -1))
	if newTry > oldTry+tryExplosionLimit {
		warnings = append(warnings, fmt.Sprintf("try_explosion: %d -> %d", oldTry, newTry))
		totalPenalty += tryExplosionPenalty
	}

	if totalPenalty > 1.0 {
		totalPenalty = 1.0
	}
	if len(warnings) > 0 {
		logging.Defense("quality check penalty=%.2f warnings=%v", totalPenalty, warnings)
	}
	return totalPenalty, warnings
}

func countLines(code string) int {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return 0
	}
	return strings.Count(trimmed, "\n") + 1
}
