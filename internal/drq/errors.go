package drq

import "github.com/agilira/go-errors"

// newCoded builds a coded error with context, for diagnostics and logs.
func newCoded(code errors.ErrorCode, msg string, ctx map[string]interface{}) error {
	return errors.NewWithContext(code, msg, ctx)
}

// Error codes for the round controller. Only RQ_INVALID_CONFIG (from the
// config package) and RQ_MISSING_CREDENTIALS (from the agents package)
// are fatal; everything here is recorded and recovered from, so a run
// ends only when the configured rounds are exhausted.
const (
	// ErrCodeAgentFailure marks a null or unparseable agent response.
	// Recoverable: the candidate is skipped, no archive mutation.
	ErrCodeAgentFailure errors.ErrorCode = "RQ_AGENT_FAILURE"

	// ErrCodeSandboxFailure marks a subprocess that could not be launched
	// or output that could not be parsed. Recoverable: fitness 0.
	ErrCodeSandboxFailure errors.ErrorCode = "RQ_SANDBOX_FAILURE"

	// ErrCodeSanityFailed marks a defense that broke the baseline.
	// The patch is recorded with fitness 0 and never promoted.
	ErrCodeSanityFailed errors.ErrorCode = "RQ_SANITY_FAILED"

	// ErrCodePromotionBlocked marks a defense whose robustness did not
	// exceed the best prior. Normal outcome: recorded, not promoted.
	ErrCodePromotionBlocked errors.ErrorCode = "RQ_PROMOTION_BLOCKED"
)
