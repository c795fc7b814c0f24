// Package novelty guards the archive against repeat attacks. Without it
// the attacker converges on regenerating the same handful of crashes,
// which looks like progress without being any. Three levels of checking:
// exact duplicates (normalized code hash), semantic duplicates (error
// signature clusters), and per-type saturation.
package novelty

import (
	"fmt"
	"regexp"
	"strings"

	"redqueen/internal/genome"
	"redqueen/internal/logging"
)

// Result is the outcome of a novelty check.
type Result struct {
	IsNovel      bool
	NoveltyScore float64 // 0.0 - 1.0
	Reason       string
	SimilarTo    string // hash or signature of the nearest known attack
}

// Tracker remembers every attack it has been shown.
type Tracker struct {
	seenHashes    map[string]bool
	errorClusters map[string][]string
	typeCounts    map[genome.AttackType]int
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		seenHashes:    make(map[string]bool),
		errorClusters: make(map[string][]string),
		typeCounts:    make(map[genome.AttackType]int),
	}
}

const (
	semanticClusterLimit = 3
	typeSaturationLimit  = 5
)

var exceptionPattern = regexp.MustCompile(`(\w+Error|\w+Exception)`)

// signatureKeywords map error-message fragments to signature tokens.
var signatureKeywords = []struct{ fragment, token string }{
	{"division by zero", "div_zero"},
	{"index", "index"},
	{"key", "key"},
	{"type", "type"},
	{"overflow", "overflow"},
	{"recursion", "recursion"},
	{"timeout", "timeout"},
}

// errorSignature compacts an error message into a cluster key.
func errorSignature(errorMsg string) string {
	if errorMsg == "" {
		return "no_error"
	}

	exceptionType := "unknown"
	if m := exceptionPattern.FindStringSubmatch(errorMsg); m != nil {
		exceptionType = m[1]
	}

	lower := strings.ToLower(errorMsg)
	var keywords []string
	for _, kw := range signatureKeywords {
		if strings.Contains(lower, kw.fragment) {
			keywords = append(keywords, kw.token)
		}
	}
	if len(keywords) == 0 {
		return exceptionType + ":generic"
	}
	return exceptionType + ":" + strings.Join(keywords, ",")
}

// Check scores the novelty of an attack without registering it.
// Exact duplicates are rejected outright; a semantic cluster of three or
// more soft-rejects with score 0.2; a saturated type decays the score
// monotonically but stays novel.
func (t *Tracker) Check(testCode string, attackType genome.AttackType, errorMsg string) Result {
	codeHash := genome.HashCode(testCode)

	if t.seenHashes[codeHash] {
		logging.Novelty("exact duplicate %s rejected", codeHash)
		return Result{
			IsNovel:      false,
			NoveltyScore: 0.0,
			Reason:       "exact_duplicate",
			SimilarTo:    codeHash,
		}
	}

	sig := errorSignature(errorMsg)
	similarCount := len(t.errorClusters[sig])
	if similarCount >= semanticClusterLimit {
		logging.Novelty("semantic duplicate in cluster %s (%d similar)", sig, similarCount)
		return Result{
			IsNovel:      false,
			NoveltyScore: 0.2,
			Reason:       fmt.Sprintf("semantic_duplicate: %d similar attacks", similarCount),
			SimilarTo:    sig,
		}
	}

	typeCount := t.typeCounts[attackType]
	if typeCount >= typeSaturationLimit {
		score := 1.0 - float64(typeCount)*0.1
		if score < 0.3 {
			score = 0.3
		}
		return Result{
			IsNovel:      true,
			NoveltyScore: score,
			Reason:       fmt.Sprintf("type_saturated: %d attacks of type %s", typeCount, attackType),
		}
	}

	score := 1.0 - float64(similarCount)*0.15
	if score < 0.5 {
		score = 0.5
	}
	return Result{IsNovel: true, NoveltyScore: score, Reason: "novel"}
}

// Register records an attack after it has been accepted.
func (t *Tracker) Register(testCode string, attackType genome.AttackType, errorMsg string) {
	codeHash := genome.HashCode(testCode)
	t.seenHashes[codeHash] = true
	sig := errorSignature(errorMsg)
	t.errorClusters[sig] = append(t.errorClusters[sig], codeHash)
	t.typeCounts[attackType]++
}

// Stats summarizes tracker state for debugging.
type Stats struct {
	TotalAttacks    int                       `json:"total_attacks"`
	UniqueErrorSigs int                       `json:"unique_error_types"`
	AttacksByType   map[genome.AttackType]int `json:"attacks_by_type"`
	LargestCluster  int                       `json:"largest_cluster"`
}

// GetStats returns tracker statistics.
func (t *Tracker) GetStats() Stats {
	largest := 0
	for _, cluster := range t.errorClusters {
		if len(cluster) > largest {
			largest = len(cluster)
		}
	}
	byType := make(map[genome.AttackType]int, len(t.typeCounts))
	for k, v := range t.typeCounts {
		byType[k] = v
	}
	return Stats{
		TotalAttacks:    len(t.seenHashes),
		UniqueErrorSigs: len(t.errorClusters),
		AttacksByType:   byType,
		LargestCluster:  largest,
	}
}
