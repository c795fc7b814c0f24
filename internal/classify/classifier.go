// Package classify derives the behavior tags used for MAP-Elites niche
// placement: the attack category of a generated test and the error class
// of an observed failure. Agents emit free text, so classification is a
// cascade of increasingly desperate heuristics ending at "unknown".
package classify

import (
	"regexp"
	"strings"

	"redqueen/internal/genome"
)

var (
	explicitTagPattern = regexp.MustCompile(`(?i)Attack type:\s*(\w+)`)
	commentTagPattern  = regexp.MustCompile(`(?i)#\s*Attack.*?(edge.?case|invalid.?input|overflow|injection|boundary|resource|concurrency|unicode)`)
	testNamePattern    = regexp.MustCompile(`(?i)def test_\w*?(edge|invalid|overflow|injection|boundary|resource|unicode|race|empty|none|null)`)
)

var testNameTags = map[string]genome.AttackType{
	"edge":      genome.AttackEdgeCase,
	"empty":     genome.AttackEdgeCase,
	"none":      genome.AttackEdgeCase,
	"null":      genome.AttackEdgeCase,
	"invalid":   genome.AttackInvalidInput,
	"overflow":  genome.AttackOverflow,
	"injection": genome.AttackInjection,
	"boundary":  genome.AttackBoundary,
	"resource":  genome.AttackResource,
	"unicode":   genome.AttackUnicode,
	"race":      genome.AttackConcurrency,
}

// AttackTypeOf tags a generated attack. It tries, in order: an explicit
// tag in the agent's free text, a tag-bearing comment, keywords in the
// test function name, then keywords in the test body.
func AttackTypeOf(responseText, testCode string) genome.AttackType {
	if m := explicitTagPattern.FindStringSubmatch(responseText); m != nil {
		if at := genome.ParseAttackType(m[1]); at != genome.AttackUnknown {
			return at
		}
	}

	if m := commentTagPattern.FindStringSubmatch(responseText); m != nil {
		if at := genome.ParseAttackType(m[1]); at != genome.AttackUnknown {
			return at
		}
	}

	if m := testNamePattern.FindStringSubmatch(testCode); m != nil {
		if at, ok := testNameTags[strings.ToLower(m[1])]; ok {
			return at
		}
	}

	return attackTypeFromBody(testCode)
}

// attackTypeFromBody inspects the test body for characteristic payloads.
func attackTypeFromBody(testCode string) genome.AttackType {
	lower := strings.ToLower(testCode)
	switch {
	case strings.Contains(lower, "threading") || strings.Contains(lower, "race"):
		return genome.AttackConcurrency
	case strings.Contains(lower, "unicode") || strings.Contains(lower, `\u`):
		return genome.AttackUnicode
	case strings.Contains(lower, "none") || strings.Contains(lower, "empty") ||
		strings.Contains(testCode, `""`) || strings.Contains(testCode, "''") ||
		strings.Contains(testCode, "{}"):
		return genome.AttackEdgeCase
	case strings.Contains(lower, "recursion") || strings.Contains(lower, "depth") ||
		strings.Contains(testCode, "10**") || strings.Contains(testCode, "1000000"):
		return genome.AttackOverflow
	case strings.Contains(testCode, `\x`) || strings.Contains(testCode, `\n`) ||
		strings.Contains(testCode, `\0`):
		return genome.AttackInjection
	case strings.Contains(lower, "inf") || strings.Contains(lower, "nan") ||
		strings.Contains(lower, "max_int"):
		return genome.AttackBoundary
	case strings.Contains(testCode, "str(") || strings.Contains(testCode, "int(") ||
		strings.Contains(lower, "isinstance"):
		return genome.AttackInvalidInput
	}
	return genome.AttackUnknown
}

// ErrorTypeOf scans the first captured error message for a known
// exception class name.
func ErrorTypeOf(errs []string) genome.ErrorType {
	if len(errs) == 0 {
		return genome.ErrUnknown
	}
	msg := errs[0]
	for _, et := range genome.ErrorTypes() {
		if et == genome.ErrUnknown {
			continue
		}
		if strings.Contains(msg, string(et)) {
			return et
		}
	}
	return genome.ErrUnknown
}
