package classify

import (
	"testing"

	"redqueen/internal/genome"
)

func TestExplicitTagWins(t *testing.T) {
	response := "Attack type: injection\n```python\ndef test_x(): f('')\n```"
	if got := AttackTypeOf(response, "def test_x(): f('')"); got != genome.AttackInjection {
		t.Fatalf("expected injection, got %s", got)
	}
}

func TestCommentTag(t *testing.T) {
	response := "# Attack on get_value with edge case\n```python\ndef test_x(): f(1)\n```"
	if got := AttackTypeOf(response, "def test_x(): f(1)"); got != genome.AttackEdgeCase {
		t.Fatalf("expected edge_case, got %s", got)
	}
}

func TestTestNameKeyword(t *testing.T) {
	cases := map[string]genome.AttackType{
		"def test_overflow_deep(): f()":   genome.AttackOverflow,
		"def test_invalid_type(): f(1)":   genome.AttackInvalidInput,
		"def test_empty_string(): f('x')": genome.AttackEdgeCase,
		"def test_unicode_mix(): f('x')":  genome.AttackUnicode,
	}
	for code, want := range cases {
		if got := AttackTypeOf("no tags here", code); got != want {
			t.Errorf("AttackTypeOf(%q) = %s, want %s", code, got, want)
		}
	}
}

func TestBodyHeuristics(t *testing.T) {
	cases := map[string]genome.AttackType{
		"def test_a(): parse(None)":               genome.AttackEdgeCase,
		"def test_b(): parse(10**1000)":           genome.AttackOverflow,
		`def test_c(): parse("\x00\x01")`:         genome.AttackInjection,
		"def test_d(): parse(float('inf'))":       genome.AttackBoundary,
		"def test_e(): parse(int('x'))":           genome.AttackInvalidInput,
		"def test_f(): import threading; spin()":  genome.AttackConcurrency,
		"def test_g(): totally_ordinary_call(42)": genome.AttackUnknown,
	}
	for code, want := range cases {
		if got := AttackTypeOf("", code); got != want {
			t.Errorf("AttackTypeOf(%q) = %s, want %s", code, got, want)
		}
	}
}

func TestErrorTypeOf(t *testing.T) {
	cases := []struct {
		errs []string
		want genome.ErrorType
	}{
		{[]string{"ZeroDivisionError: division by zero"}, genome.ErrZeroDivisionError},
		{[]string{"ValueError: Input cannot be empty"}, genome.ErrValueError},
		{[]string{"RecursionError: maximum recursion depth exceeded"}, genome.ErrRecursionError},
		{[]string{"json.decoder.JSONDecodeError: Expecting value"}, genome.ErrJSONDecodeError},
		{[]string{"something unexpected happened"}, genome.ErrUnknown},
		{nil, genome.ErrUnknown},
	}
	for _, c := range cases {
		if got := ErrorTypeOf(c.errs); got != c.want {
			t.Errorf("ErrorTypeOf(%v) = %s, want %s", c.errs, got, c.want)
		}
	}
}
