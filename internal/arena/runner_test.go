package arena

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const failingOutput = `============================= test session starts ==============================
collected 2 items

test_attack.py::test_divide_by_zero FAILED                               [ 50%]
test_attack.py::test_divide_ok PASSED                                    [100%]

=================================== FAILURES ===================================
_____________________________ test_divide_by_zero ______________________________
test_attack.py:8: in test_divide_by_zero
    result = divide(10, 0)
target.py:2: in divide
    return a / b
E   ZeroDivisionError: division by zero
=========================== short test summary info ============================
FAILED test_attack.py::test_divide_by_zero - ZeroDivisionError: division by zero
========================= 1 failed, 1 passed in 0.03s ==========================
`

const errorOutput = `============================= test session starts ==============================
collected 0 items / 1 error

==================================== ERRORS ====================================
________________________ ERROR collecting test_attack.py _______________________
test_attack.py:4: in <module>
    from target import *
E   SyntaxError: invalid syntax (target.py, line 3)
=========================== short test summary info ============================
ERROR test_attack.py
=============================== 1 error in 0.05s ===============================
`

func TestParseFailedAndPassedCounts(t *testing.T) {
	passed, failed, errs := parsePytestOutput(failingOutput)
	assert.Equal(t, 1, passed)
	assert.Equal(t, 1, failed)
	require.NotEmpty(t, errs)
	assert.Equal(t, "ZeroDivisionError: division by zero", errs[0])
}

func TestParseCollectionError(t *testing.T) {
	passed, failed, errs := parsePytestOutput(errorOutput)
	assert.Equal(t, 0, passed)
	assert.Equal(t, 0, failed)
	require.Len(t, errs, 2)
	assert.Equal(t, "1 errors", errs[0])
	assert.Contains(t, errs[1], "SyntaxError")
}

func TestParseErrorLineCap(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 10; i++ {
		sb.WriteString("E   ValueError: boom\n")
	}
	sb.WriteString("10 failed in 0.1s\n")

	_, failed, errs := parsePytestOutput(sb.String())
	assert.Equal(t, 10, failed)
	assert.Len(t, errs, maxErrorLines)
}

func TestParseCleanRun(t *testing.T) {
	passed, failed, errs := parsePytestOutput("========= 3 passed in 0.02s =========\n")
	assert.Equal(t, 3, passed)
	assert.Equal(t, 0, failed)
	assert.Empty(t, errs)
}

func TestBuildTestFileImportsTarget(t *testing.T) {
	content := buildTestFile("/tmp/arena_x", "def test_a():\n    assert divide(10, 2) == 5\n")
	assert.Contains(t, content, `sys.path.insert(0, "/tmp/arena_x")`)
	assert.Contains(t, content, "from target import *")
	assert.Contains(t, content, "def test_a():")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "python3", cfg.Python)
	assert.Equal(t, 30, int(cfg.Timeout.Seconds()))
}
