package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"redqueen/internal/genome"
	"redqueen/internal/logging"
)

// DefaultMaxDefenders bounds the defense archive size.
const DefaultMaxDefenders = 50

// DefenseArchive keeps recent defenses in insertion order for generality
// cross-testing. When the bound is exceeded the lowest-robustness
// defenses are dropped, earlier insertions surviving ties.
type DefenseArchive struct {
	maxSize int
	archive []*genome.DefenseGenome
	history []*genome.DefenseGenome
}

// NewDefenseArchive creates a defense archive with the given bound.
func NewDefenseArchive(maxSize int) *DefenseArchive {
	if maxSize <= 0 {
		maxSize = DefaultMaxDefenders
	}
	return &DefenseArchive{maxSize: maxSize}
}

// Add appends a defense unconditionally, pruning if the bound is exceeded.
func (d *DefenseArchive) Add(g *genome.DefenseGenome) {
	d.history = append(d.history, g)
	d.archive = append(d.archive, g)

	if len(d.archive) <= d.maxSize {
		return
	}

	// Rank by robustness descending, insertion order breaking ties, then
	// keep the survivors in their original insertion order.
	type ranked struct {
		g     *genome.DefenseGenome
		index int
	}
	rankedAll := make([]ranked, len(d.archive))
	for i, g := range d.archive {
		rankedAll[i] = ranked{g: g, index: i}
	}
	sort.SliceStable(rankedAll, func(i, j int) bool {
		return rankedAll[i].g.Robustness() > rankedAll[j].g.Robustness()
	})
	survivors := rankedAll[:d.maxSize]
	sort.Slice(survivors, func(i, j int) bool { return survivors[i].index < survivors[j].index })

	pruned := make([]*genome.DefenseGenome, 0, d.maxSize)
	for _, r := range survivors {
		pruned = append(pruned, r.g)
	}
	logging.Archive("defense archive pruned %d -> %d", len(d.archive), len(pruned))
	d.archive = pruned
}

// GetBest returns the highest-robustness defense, or nil when empty.
// Ties resolve to the earliest inserted.
func (d *DefenseArchive) GetBest() *genome.DefenseGenome {
	var best *genome.DefenseGenome
	for _, g := range d.archive {
		if best == nil || g.Robustness() > best.Robustness() {
			best = g
		}
	}
	return best
}

// GetAll returns the archived defenses in insertion order.
func (d *DefenseArchive) GetAll() []*genome.DefenseGenome {
	out := make([]*genome.DefenseGenome, len(d.archive))
	copy(out, d.archive)
	return out
}

// Last returns up to n most recently inserted defenses, oldest first.
func (d *DefenseArchive) Last(n int) []*genome.DefenseGenome {
	if n <= 0 || len(d.archive) == 0 {
		return nil
	}
	start := len(d.archive) - n
	if start < 0 {
		start = 0
	}
	out := make([]*genome.DefenseGenome, len(d.archive)-start)
	copy(out, d.archive[start:])
	return out
}

// Size returns the number of archived defenses.
func (d *DefenseArchive) Size() int {
	return len(d.archive)
}

// History returns the append-only log of every defense ever recorded.
func (d *DefenseArchive) History() []*genome.DefenseGenome {
	return d.history
}

// DefenseStats summarizes the defense archive.
type DefenseStats struct {
	Total          int     `json:"total"`
	TotalHistory   int     `json:"total_history"`
	BestRobustness float64 `json:"best_robustness"`
	AvgRobustness  float64 `json:"avg_robustness"`
}

// GetStats computes defense archive statistics.
func (d *DefenseArchive) GetStats() DefenseStats {
	stats := DefenseStats{
		Total:        len(d.archive),
		TotalHistory: len(d.history),
	}
	if len(d.archive) == 0 {
		return stats
	}
	var sum float64
	for _, g := range d.archive {
		r := g.Robustness()
		sum += r
		if r > stats.BestRobustness {
			stats.BestRobustness = r
		}
	}
	stats.AvgRobustness = sum / float64(len(d.archive))
	return stats
}

// defenseSnapshot is the JSON shape of a persisted defense archive.
type defenseSnapshot struct {
	Genomes []*genome.DefenseGenome `json:"genomes"`
	History []*genome.DefenseGenome `json:"history"`
	Stats   DefenseStats            `json:"stats"`
}

// Snapshot returns the serializable state of the archive.
func (d *DefenseArchive) Snapshot() ([]byte, error) {
	snap := defenseSnapshot{
		Genomes: d.GetAll(),
		History: d.history,
		Stats:   d.GetStats(),
	}
	return json.MarshalIndent(snap, "", "  ")
}

// Save writes the archive to a JSON file.
func (d *DefenseArchive) Save(path string) error {
	data, err := d.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to marshal defense archive: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write defense archive: %w", err)
	}
	return nil
}

// Restore rebuilds archive state from serialized snapshot bytes.
func (d *DefenseArchive) Restore(data []byte) error {
	var snap defenseSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to parse defense archive: %w", err)
	}
	d.archive = snap.Genomes
	d.history = snap.History
	return nil
}
