package fitness

import "strings"

// defensivePatterns recognizes exceptions that represent deliberate input
// validation rather than crashes: the value/type-error families plus the
// validation-message vocabulary. An attack that trips one of these is
// considered blocked, not successful.
var defensivePatterns = []string{
	"ValueError",
	"TypeError",
	"Input must be",
	"Input cannot be",
	"Input string cannot",
	"must be a string",
	"must be a dict",
	"cannot be empty",
	"cannot be None",
	"Invalid input",
}

// IsDefensiveError reports whether an error message matches the
// validation vocabulary.
func IsDefensiveError(msg string) bool {
	for _, pattern := range defensivePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// Blocked decides whether a defense stopped an attack: either the attack
// test passed on the patched target, or it failed with a defensive
// exception. The decision inspects only the first captured error line,
// and the same rule is applied at every scoring site (round-level defense
// scoring, Red Queen generality scoring, final robustness).
func Blocked(res Result) bool {
	if !res.Succeeded() {
		return true
	}
	if len(res.Errors) > 0 && IsDefensiveError(res.Errors[0]) {
		return true
	}
	return false
}
