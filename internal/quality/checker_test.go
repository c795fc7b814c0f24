package quality

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const original = `def parse(data):
    return json.loads(data)
`

func TestCleanPatchHasNoPenalty(t *testing.T) {
	fixed := `def parse(data):
    if not isinstance(data, str):
        raise TypeError("Input must be a string")
    if not data:
        raise ValueError("Input cannot be empty")
    return json.loads(data)
`
	penalty, warnings := NewChecker().Check(original, fixed)
	assert.Equal(t, 0.0, penalty)
	assert.Empty(t, warnings)
}

func TestSwallowingPatchIsPenalized(t *testing.T) {
	fixed := `def parse(data):
    try:
        return json.loads(data)
    except:
        pass
`
	penalty, warnings := NewChecker().Check(original, fixed)
	assert.Greater(t, penalty, 0.0)
	assert.Contains(t, strings.Join(warnings, " "), "bare_except")
	assert.Contains(t, strings.Join(warnings, " "), "empty_except")
}

func TestMassDeletionIsPenalized(t *testing.T) {
	big := strings.Repeat("def f():\n    return 1\n", 20)
	small := "def f():\n    return None\n"

	penalty, warnings := NewChecker().Check(big, small)
	assert.GreaterOrEqual(t, penalty, 0.5)
	assert.Contains(t, strings.Join(warnings, " "), "code_reduction")
}

func TestTryExplosionIsPenalized(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("def f(x):\n")
	for i := 0; i < 5; i++ {
		sb.WriteString("    try:\n        g(x)\n    except ValueError:\n        raise\n")
	}
	penalty, warnings := NewChecker().Check(original, sb.String())
	assert.Greater(t, penalty, 0.0)
	assert.Contains(t, strings.Join(warnings, " "), "try_explosion")
}

func TestPreexistingPatternsAreFree(t *testing.T) {
	withExcept := `def parse(data):
    try:
        return json.loads(data)
    except Exception:
        raise ValueError("Invalid input")
`
	penalty, warnings := NewChecker().Check(withExcept, withExcept)
	assert.Equal(t, 0.0, penalty)
	assert.Empty(t, warnings)
}

func TestPenaltyIsCapped(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 10; i++ {
		sb.WriteString("try:\n    f()\nexcept:\n    pass\n")
	}
	penalty, _ := NewChecker().Check(original, sb.String())
	assert.Equal(t, 1.0, penalty)
}
