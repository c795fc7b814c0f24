package agents

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"redqueen/internal/genome"
	"redqueen/internal/logging"
)

const attackerSystemPrompt = `You are an elite adversarial security researcher. Find bugs that others miss.

IMPORTANT: You must find NEW and DIFFERENT vulnerabilities each time. Do not repeat attacks!

Attack categories (USE ALL OF THEM, not just edge_case):
1. edge_case: empty string "", None, [], {}
2. invalid_input: wrong types (int instead of str, list instead of dict)
3. overflow: deep recursion, huge numbers (10**1000), very long strings (10000 chars)
4. injection: control characters (\x00, \n, \r), unicode exploits, escape sequences
5. boundary: MAX_INT, MIN_INT, float('inf'), float('nan')
6. concurrency: (if applicable) race conditions
7. resource: memory exhaustion, CPU exhaustion

CRITICAL RULES:
1. DO NOT use pytest.raises() - let the code CRASH
2. DO NOT use try/except - let exceptions propagate
3. Each test must call a REAL function from the target code
4. VARIETY IS KEY: attack functions that previous attacks ignored

Generate ONE creative attack that is DIFFERENT from previous attempts.
State the category as "Attack type: <category>" and output the test in a` + " ```python``` block."

const mutationPromptTemplate = `You are mutating a successful attack to create a variant.

ORIGINAL ATTACK (this worked!):
` + "```python\n%s\n```" + `

Error it caused: %s

Create a MUTATION - keep the core idea but change ONE thing:
- Different input values (but same attack vector)
- Same input, target a different function
- Make it more extreme (deeper recursion, longer string, etc.)

The mutation should still crash the code but in a slightly different way.

Output the mutated test in a` + " ```python``` block."

const crossoverPromptTemplate = `Combine two successful attacks into one stronger attack.

ATTACK 1 (%s):
` + "```python\n%s\n```" + `

ATTACK 2 (%s):
` + "```python\n%s\n```" + `

Create ONE NEW attack that combines their strategies.

Output the combined test in a` + " ```python``` block."

const defenderSystemPrompt = `You are a senior security engineer. Make the code BULLETPROOF.

Your job: Fix ALL vulnerabilities while keeping original functionality.

DEFENSE STRATEGIES (use multiple):

1. INPUT VALIDATION (at function start):
   - Check types: isinstance(x, str)
   - Check values: if not x or len(x) > MAX_SIZE
   - Raise ValueError/TypeError with clear messages

2. RECURSION PROTECTION:
   - Add max_depth parameter with default
   - Track current depth, raise if exceeded

3. JSON SAFETY:
   - Wrap json.loads in try/except JSONDecodeError
   - Raise ValueError with a clear message on invalid JSON

4. DICT ACCESS SAFETY:
   - Use .get() instead of []
   - Check key exists before access

5. RESOURCE LIMITS:
   - Limit string length, recursion depth, nesting depth

CRITICAL RULES:
1. Keep original function signatures
2. Original functionality MUST still work (sanity tests must pass)
3. Add validation at the START of each function
4. Use specific exceptions (ValueError, TypeError), not bare Exception
5. Include helpful error messages

Output the complete fixed code for ALL functions in a` + " ```python``` block, then briefly explain each fix."

// LLMAgent implements Agent on top of two chat clients, one per role.
type LLMAgent struct {
	attacker LLMClient
	defender LLMClient
}

// NewLLMAgent wires attacker and defender clients into one Agent.
func NewLLMAgent(attacker, defender LLMClient) *LLMAgent {
	return &LLMAgent{attacker: attacker, defender: defender}
}

var defPattern = regexp.MustCompile(`(?m)^def\s+(\w+)\s*\(`)

// extractFunctions lists top-level function names in the target so the
// prompt can steer attacks toward uncovered surface.
func extractFunctions(targetCode string) []string {
	var funcs []string
	for _, m := range defPattern.FindAllStringSubmatch(targetCode, -1) {
		if !strings.HasPrefix(m[1], "_") {
			funcs = append(funcs, m[1])
		}
	}
	return funcs
}

// GenerateAttack asks for a fresh attack, feeding back what was already
// tried and which categories and functions remain untouched.
func (a *LLMAgent) GenerateAttack(ctx context.Context, targetCode string, previous, failed []Candidate) (*Candidate, error) {
	available := extractFunctions(targetCode)

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Target code:\n```python\n%s\n```\n\n", targetCode)
	if len(available) > 0 {
		fmt.Fprintf(&prompt, "Attack ONLY these functions: %v\n\n", available)
	}

	if len(previous) > 0 {
		byType := map[genome.AttackType]int{}
		byFunction := map[string]int{}
		for _, p := range previous {
			byType[p.AttackType]++
			for _, fn := range available {
				if strings.Contains(p.TestCode, fn) {
					byFunction[fn]++
				}
			}
		}

		prompt.WriteString("ALREADY TRIED (find something DIFFERENT!):\n")
		fmt.Fprintf(&prompt, "Attack types used: %v\n", byType)
		fmt.Fprintf(&prompt, "Functions attacked: %v\n", byFunction)

		prompt.WriteString("\nRecent attacks:\n")
		start := len(previous) - 5
		if start < 0 {
			start = 0
		}
		for _, p := range previous[start:] {
			fmt.Fprintf(&prompt, "- [%s] %s\n", p.AttackType, clip(p.Description))
		}

		if untried := untriedTypes(byType); len(untried) > 0 {
			fmt.Fprintf(&prompt, "\nHINT: Try these attack types: %v\n", untried)
		}
		if untried := untriedFunctions(available, byFunction); len(untried) > 0 {
			fmt.Fprintf(&prompt, "HINT: Try attacking these functions: %v\n", untried)
		}
		prompt.WriteString("\n")
	}

	if len(failed) > 0 {
		prompt.WriteString("These attacks did NOT work, avoid their approach:\n")
		for _, f := range failed {
			fmt.Fprintf(&prompt, "- [%s] %s\n", f.AttackType, clip(f.Description))
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString("Generate a NEW and DIFFERENT attack:")

	content, err := a.attacker.CompleteWithSystem(ctx, attackerSystemPrompt, prompt.String())
	if err != nil {
		logging.Agents("attacker call failed: %v", err)
		return nil, err
	}
	return ParseAttack(content), nil
}

// MutateAttack asks for a variant of a successful attack.
func (a *LLMAgent) MutateAttack(ctx context.Context, parent Candidate) (*Candidate, error) {
	errCtx := parent.Description
	if errCtx == "" {
		errCtx = "Unknown"
	}
	prompt := fmt.Sprintf(mutationPromptTemplate, parent.TestCode, clip(errCtx))

	content, err := a.attacker.CompleteWithSystem(ctx, "You evolve attacks through mutation.", prompt)
	if err != nil {
		logging.Agents("mutation call failed: %v", err)
		return nil, err
	}

	mutated := ParseAttack(content)
	if mutated != nil {
		// Mutants inherit the parent's category.
		mutated.AttackType = parent.AttackType
		mutated.Description = "Mutated: " + clip(parent.Description)
	}
	return mutated, nil
}

// CrossoverAttacks asks for a combination of two successful attacks.
func (a *LLMAgent) CrossoverAttacks(ctx context.Context, first, second Candidate) (*Candidate, error) {
	prompt := fmt.Sprintf(crossoverPromptTemplate,
		first.AttackType, first.TestCode, second.AttackType, second.TestCode)

	content, err := a.attacker.CompleteWithSystem(ctx, "You combine attack strategies.", prompt)
	if err != nil {
		logging.Agents("crossover call failed: %v", err)
		return nil, err
	}

	crossed := ParseAttack(content)
	if crossed != nil {
		// The closed tag set has no room for composites; the child takes
		// the first parent's category and the controller records lineage.
		crossed.AttackType = first.AttackType
		crossed.Description = "Crossover"
	}
	return crossed, nil
}

// GenerateDefense asks for a patched target that survives the failing
// tests.
func (a *LLMAgent) GenerateDefense(ctx context.Context, targetCode string, failingTests []Candidate, previousFixes []string) (*Patch, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Current code:\n```python\n%s\n```\n\n", targetCode)

	prompt.WriteString("Failing tests:\n```python\n")
	for _, ft := range failingTests {
		prompt.WriteString(ft.TestCode)
		prompt.WriteString("\n")
	}
	prompt.WriteString("```\n\n")

	if len(previousFixes) > 0 {
		prompt.WriteString("Previous fixes that were not good enough:\n")
		for _, fix := range previousFixes {
			fmt.Fprintf(&prompt, "- %s\n", clip(fix))
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString("Fix the code:")

	content, err := a.defender.CompleteWithSystem(ctx, defenderSystemPrompt, prompt.String())
	if err != nil {
		logging.Agents("defender call failed: %v", err)
		return nil, err
	}
	return ParseDefense(content), nil
}

func untriedTypes(byType map[genome.AttackType]int) []genome.AttackType {
	core := []genome.AttackType{
		genome.AttackEdgeCase,
		genome.AttackInvalidInput,
		genome.AttackOverflow,
		genome.AttackInjection,
		genome.AttackBoundary,
	}
	var untried []genome.AttackType
	for _, at := range core {
		if byType[at] == 0 {
			untried = append(untried, at)
		}
	}
	return untried
}

func untriedFunctions(available []string, byFunction map[string]int) []string {
	var untried []string
	for _, fn := range available {
		if byFunction[fn] == 0 {
			untried = append(untried, fn)
		}
	}
	sort.Strings(untried)
	return untried
}
