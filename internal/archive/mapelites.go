// Package archive holds the two evolutionary archives of the hardening
// loop: the MAP-Elites attack archive, which preserves behaviorally
// distinct attacks across (attack_type, error_type) niches, and the
// bounded defense archive. Both keep an append-only history of every
// genome ever evaluated for lineage tracking and statistics.
package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"redqueen/internal/genome"
	"redqueen/internal/logging"
)

// DefaultMaxPerNiche bounds how many elites a single niche retains.
const DefaultMaxPerNiche = 3

// entry pairs a genome with its insertion sequence, used only for
// deterministic eviction tie-breaking.
type entry struct {
	genome *genome.AttackGenome
	seq    int64
}

// MAPElites stores attack genomes by niche, keeping the top elites of
// each niche sorted by descending fitness.
type MAPElites struct {
	maxPerNiche int
	niches      map[genome.Niche][]entry
	history     []*genome.AttackGenome

	totalEvaluated int
	totalAdded     int
	nextSeq        int64
}

// NewMAPElites creates an attack archive with the given per-niche bound.
func NewMAPElites(maxPerNiche int) *MAPElites {
	if maxPerNiche <= 0 {
		maxPerNiche = DefaultMaxPerNiche
	}
	return &MAPElites{
		maxPerNiche: maxPerNiche,
		niches:      make(map[genome.Niche][]entry),
	}
}

// Add inserts a candidate into its niche. Returns true if the candidate
// was accepted. A full niche only accepts candidates whose fitness
// strictly exceeds the niche minimum; the minimum-fitness elite is then
// evicted (ties broken by lowest generation, then earliest insertion).
// Re-adding a genome already present in its niche changes nothing except
// the evaluation counter.
func (a *MAPElites) Add(g *genome.AttackGenome) bool {
	a.totalEvaluated++

	niche := g.Niche()
	elites := a.niches[niche]

	hash := g.Hash()
	for _, e := range elites {
		if e.genome.Hash() == hash {
			logging.Archive("duplicate genome %s rejected in niche %s", hash, niche)
			return false
		}
	}

	a.history = append(a.history, g)

	if len(elites) < a.maxPerNiche {
		a.niches[niche] = a.push(elites, g)
		a.totalAdded++
		logging.Archive("genome %s accepted in niche %s (fitness=%.2f, %d/%d)",
			hash, niche, g.Fitness, len(a.niches[niche]), a.maxPerNiche)
		return true
	}

	minFitness := elites[len(elites)-1].genome.Fitness
	if g.Fitness <= minFitness {
		return false
	}

	// Evict: among the minimum-fitness elites, drop the oldest generation,
	// then the earliest inserted.
	victim := len(elites) - 1
	for i := len(elites) - 1; i >= 0; i-- {
		if elites[i].genome.Fitness > minFitness {
			break
		}
		worse := elites[i].genome.Generation < elites[victim].genome.Generation ||
			(elites[i].genome.Generation == elites[victim].genome.Generation &&
				elites[i].seq < elites[victim].seq)
		if worse {
			victim = i
		}
	}
	evicted := elites[victim].genome
	elites = append(elites[:victim], elites[victim+1:]...)
	a.niches[niche] = a.push(elites, g)
	a.totalAdded++
	logging.Archive("genome %s evicted %s in niche %s (%.2f > %.2f)",
		hash, evicted.Hash(), niche, g.Fitness, minFitness)
	return true
}

// push appends a genome and restores descending-fitness order.
func (a *MAPElites) push(elites []entry, g *genome.AttackGenome) []entry {
	a.nextSeq++
	elites = append(elites, entry{genome: g, seq: a.nextSeq})
	sort.SliceStable(elites, func(i, j int) bool {
		return elites[i].genome.Fitness > elites[j].genome.Fitness
	})
	return elites
}

// sortedNiches returns niche keys in a stable order so that traversal is
// reproducible across runs.
func (a *MAPElites) sortedNiches() []genome.Niche {
	keys := make([]genome.Niche, 0, len(a.niches))
	for n := range a.niches {
		keys = append(keys, n)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// GetAll flattens every niche into a single slice. Each archived genome
// appears exactly once.
func (a *MAPElites) GetAll() []*genome.AttackGenome {
	var result []*genome.AttackGenome
	for _, n := range a.sortedNiches() {
		for _, e := range a.niches[n] {
			result = append(result, e.genome)
		}
	}
	return result
}

// GetByType returns the archived genomes with the given attack type.
func (a *MAPElites) GetByType(at genome.AttackType) []*genome.AttackGenome {
	var result []*genome.AttackGenome
	for _, n := range a.sortedNiches() {
		if n.Attack != at {
			continue
		}
		for _, e := range a.niches[n] {
			result = append(result, e.genome)
		}
	}
	return result
}

// GetDiverseSample returns up to n genomes spread across niches: the best
// of each niche first, then the second-best, and so on. This favors
// behavioral coverage over fitness concentration.
func (a *MAPElites) GetDiverseSample(n int) []*genome.AttackGenome {
	all := a.GetAll()
	if len(all) <= n {
		return all
	}

	var sample []*genome.AttackGenome
	keys := a.sortedNiches()
	for rank := 0; len(sample) < n; rank++ {
		progressed := false
		for _, key := range keys {
			elites := a.niches[key]
			if rank >= len(elites) {
				continue
			}
			progressed = true
			sample = append(sample, elites[rank].genome)
			if len(sample) >= n {
				break
			}
		}
		if !progressed {
			break
		}
	}
	return sample
}

// Size returns the number of genomes currently archived.
func (a *MAPElites) Size() int {
	total := 0
	for _, elites := range a.niches {
		total += len(elites)
	}
	return total
}

// NicheCount returns the number of occupied niches.
func (a *MAPElites) NicheCount() int {
	return len(a.niches)
}

// History returns the append-only log of every genome ever evaluated.
func (a *MAPElites) History() []*genome.AttackGenome {
	return a.history
}

// Stats summarizes the archive for metrics and persistence.
type Stats struct {
	TotalNiches    int            `json:"total_niches"`
	TotalGenomes   int            `json:"total_genomes"`
	TotalEvaluated int            `json:"total_evaluated"`
	TotalAdded     int            `json:"total_added"`
	AcceptanceRate float64        `json:"acceptance_rate"`
	CoverageByType map[string]int `json:"coverage_by_type"`
	AvgFitness     float64        `json:"avg_fitness"`
	AvgGenerality  float64        `json:"avg_generality"`
}

// GetStats computes archive statistics.
func (a *MAPElites) GetStats() Stats {
	all := a.GetAll()

	coverage := make(map[string]int)
	for _, at := range genome.AttackTypes() {
		coverage[string(at)] = len(a.GetByType(at))
	}

	var sumFitness, sumGenerality float64
	for _, g := range all {
		sumFitness += g.Fitness
		sumGenerality += g.Generality()
	}
	denom := float64(len(all))
	if denom == 0 {
		denom = 1
	}
	evalDenom := float64(a.totalEvaluated)
	if evalDenom == 0 {
		evalDenom = 1
	}

	return Stats{
		TotalNiches:    len(a.niches),
		TotalGenomes:   len(all),
		TotalEvaluated: a.totalEvaluated,
		TotalAdded:     a.totalAdded,
		AcceptanceRate: float64(a.totalAdded) / evalDenom,
		CoverageByType: coverage,
		AvgFitness:     sumFitness / denom,
		AvgGenerality:  sumGenerality / denom,
	}
}

// snapshot is the JSON shape of a persisted attack archive.
type snapshot struct {
	Genomes []*genome.AttackGenome `json:"genomes"`
	History []*genome.AttackGenome `json:"history"`
	Stats   Stats                  `json:"stats"`
}

// Snapshot returns the serializable state of the archive.
func (a *MAPElites) Snapshot() ([]byte, error) {
	snap := snapshot{
		Genomes: a.GetAll(),
		History: a.history,
		Stats:   a.GetStats(),
	}
	return json.MarshalIndent(snap, "", "  ")
}

// Save writes the archive to a JSON file.
func (a *MAPElites) Save(path string) error {
	data, err := a.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to marshal attack archive: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write attack archive: %w", err)
	}
	return nil
}

// Restore rebuilds archive state from serialized snapshot bytes. Counters
// are restored from the snapshot stats.
func (a *MAPElites) Restore(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to parse attack archive: %w", err)
	}

	a.niches = make(map[genome.Niche][]entry)
	a.history = nil
	for _, g := range snap.Genomes {
		a.niches[g.Niche()] = a.push(a.niches[g.Niche()], g)
	}
	a.history = append(a.history, snap.History...)
	a.totalEvaluated = snap.Stats.TotalEvaluated
	a.totalAdded = snap.Stats.TotalAdded
	return nil
}

// Load reads a previously saved archive from a JSON file.
func (a *MAPElites) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read attack archive: %w", err)
	}
	return a.Restore(data)
}
