package agents

import (
	"regexp"
	"strings"

	"redqueen/internal/classify"
	"redqueen/internal/logging"
)

var (
	pythonFencePattern = regexp.MustCompile("(?s)```python\n(.*?)```")
	plainFencePattern  = regexp.MustCompile("(?s)```\n(.*?)```")
	descriptionPattern = regexp.MustCompile(`(?i)Description:\s*(.+)`)
	commentPattern     = regexp.MustCompile(`#\s*(.+)`)
)

const maxDescriptionLen = 100

// extractCodeBlock pulls the first fenced code block out of a model
// response. Models disagree on whether to tag the fence.
func extractCodeBlock(content string) string {
	if m := pythonFencePattern.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := plainFencePattern.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// ParseAttack extracts a Candidate from a raw model response. Returns nil
// when no usable test function can be found.
func ParseAttack(content string) *Candidate {
	logging.AgentsDebug("attacker response: %s", truncate(content, 500))

	testCode := extractCodeBlock(content)
	if testCode == "" {
		logging.Agents("no code block found in attacker response")
		return nil
	}
	if !strings.Contains(testCode, "def test") {
		logging.Agents("no test function found in: %s", truncate(testCode, 200))
		return nil
	}

	return &Candidate{
		TestCode:    testCode,
		Description: extractDescription(content, testCode),
		AttackType:  classify.AttackTypeOf(content, testCode),
	}
}

// extractDescription tries, in order: an explicit Description: line, the
// first comment in the code, the last sentence before the code fence.
func extractDescription(content, testCode string) string {
	if m := descriptionPattern.FindStringSubmatch(content); m != nil {
		return clip(strings.TrimSpace(m[1]))
	}
	if m := commentPattern.FindStringSubmatch(testCode); m != nil {
		return clip(strings.TrimSpace(m[1]))
	}

	beforeCode := strings.SplitN(content, "```", 2)[0]
	sentences := strings.Split(strings.TrimSpace(beforeCode), ".")
	for i := len(sentences) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(sentences[i]); len(s) > 10 {
			return clip(s)
		}
	}
	return "No description"
}

// ParseDefense extracts a Patch from a raw model response. Returns nil
// when no code block is present.
func ParseDefense(content string) *Patch {
	fixedCode := extractCodeBlock(content)
	if fixedCode == "" {
		logging.Agents("no code block found in defender response")
		return nil
	}

	explanation := pythonFencePattern.ReplaceAllString(content, "")
	explanation = plainFencePattern.ReplaceAllString(explanation, "")
	explanation = strings.TrimSpace(explanation)
	if len(explanation) > 300 {
		explanation = explanation[:300]
	}

	return &Patch{FixedCode: fixedCode, Explanation: explanation}
}

func clip(s string) string {
	if len(s) > maxDescriptionLen {
		return s[:maxDescriptionLen]
	}
	return s
}
