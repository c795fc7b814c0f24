// Package agents holds the generator boundary of the hardening loop.
// From the controller's perspective an Agent is a set of pure functions
// that may return nothing; prompt wording, model choice and retry policy
// all live on this side of the line.
package agents

import (
	"context"

	"redqueen/internal/genome"
)

// Candidate is a generated attack: a test body plus free-text metadata.
type Candidate struct {
	TestCode    string
	Description string
	AttackType  genome.AttackType
}

// Patch is a generated defense: a full replacement target source.
type Patch struct {
	FixedCode   string
	Explanation string
}

// Agent generates attacks and defenses. Any method may return (nil, nil)
// when the underlying model produced an unparseable response; the
// controller treats that as a skipped candidate, never as a fatal error.
type Agent interface {
	GenerateAttack(ctx context.Context, targetCode string, previous, failed []Candidate) (*Candidate, error)
	MutateAttack(ctx context.Context, parent Candidate) (*Candidate, error)
	CrossoverAttacks(ctx context.Context, a, b Candidate) (*Candidate, error)
	GenerateDefense(ctx context.Context, targetCode string, failingTests []Candidate, previousFixes []string) (*Patch, error)
}
