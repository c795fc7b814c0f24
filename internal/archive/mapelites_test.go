package archive

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redqueen/internal/genome"
)

func newAttack(code string, fitness float64, gen int) *genome.AttackGenome {
	return &genome.AttackGenome{
		Code:       code,
		AttackType: genome.AttackEdgeCase,
		ErrorType:  genome.ErrValueError,
		Fitness:    fitness,
		Generation: gen,
	}
}

func TestNicheCapacityAndEviction(t *testing.T) {
	a := NewMAPElites(3)

	require.True(t, a.Add(newAttack("def test_a(): f(1)", 0.6, 1)))
	require.True(t, a.Add(newAttack("def test_b(): f(2)", 0.7, 1)))
	require.True(t, a.Add(newAttack("def test_c(): f(3)", 0.8, 1)))

	// Full niche: a 0.5 candidate does not beat the 0.6 minimum.
	require.False(t, a.Add(newAttack("def test_d(): f(4)", 0.5, 2)))

	all := a.GetAll()
	require.Len(t, all, 3)
	got := []float64{all[0].Fitness, all[1].Fitness, all[2].Fitness}
	assert.Equal(t, []float64{0.8, 0.7, 0.6}, got, "niche must stay sorted by descending fitness")
}

func TestEvictionRequiresStrictImprovement(t *testing.T) {
	a := NewMAPElites(1)
	require.True(t, a.Add(newAttack("def test_a(): f(1)", 0.5, 1)))

	// Equal fitness does not evict.
	require.False(t, a.Add(newAttack("def test_b(): f(2)", 0.5, 2)))
	require.Equal(t, "def test_a(): f(1)", a.GetAll()[0].Code)

	// Strictly higher fitness does.
	require.True(t, a.Add(newAttack("def test_c(): f(3)", 0.6, 2)))
	require.Equal(t, "def test_c(): f(3)", a.GetAll()[0].Code)
}

func TestEvictionTieBreakOldestGeneration(t *testing.T) {
	a := NewMAPElites(2)
	require.True(t, a.Add(newAttack("def test_old(): f(1)", 0.5, 1)))
	require.True(t, a.Add(newAttack("def test_new(): f(2)", 0.5, 3)))

	// Both elites sit at min fitness; the older generation goes.
	require.True(t, a.Add(newAttack("def test_win(): f(3)", 0.9, 4)))

	for _, g := range a.GetAll() {
		if g.Code == "def test_old(): f(1)" {
			t.Fatalf("oldest-generation elite should have been evicted")
		}
	}
}

func TestAddIsIdempotent(t *testing.T) {
	a := NewMAPElites(3)
	g := newAttack("def test_a(): f(1)", 0.9, 1)
	require.True(t, a.Add(g))

	before := a.GetAll()
	require.False(t, a.Add(newAttack("def test_a(): f(1)", 0.9, 1)))
	assert.Empty(t, cmp.Diff(before, a.GetAll()), "second add of the same genome must change nothing")
	assert.Len(t, a.History(), 1)
}

func TestGetAllYieldsEachGenomeOnce(t *testing.T) {
	a := NewMAPElites(3)
	codes := []string{"def test_a(): f(1)", "def test_b(): g(2)", "def test_c(): h(3)"}
	for i, c := range codes {
		g := newAttack(c, 0.5+float64(i)/10, 1)
		if i%2 == 0 {
			g.AttackType = genome.AttackOverflow
		}
		require.True(t, a.Add(g))
	}

	seen := map[string]int{}
	for _, g := range a.GetAll() {
		seen[g.Hash()]++
	}
	for h, n := range seen {
		require.Equal(t, 1, n, "genome %s appeared %d times", h, n)
	}
	require.Len(t, seen, 3)
}

func TestCountersInvariant(t *testing.T) {
	a := NewMAPElites(1)
	a.Add(newAttack("def test_a(): f(1)", 0.6, 1))
	a.Add(newAttack("def test_b(): f(2)", 0.4, 1)) // rejected
	a.Add(newAttack("def test_c(): f(3)", 0.9, 2)) // evicts

	stats := a.GetStats()
	require.LessOrEqual(t, stats.TotalAdded, stats.TotalEvaluated)
	require.Equal(t, 3, stats.TotalEvaluated)
	require.Equal(t, 2, stats.TotalAdded)
	require.Len(t, a.History(), 3, "history records every evaluated genome")
}

func TestGetDiverseSampleRoundRobins(t *testing.T) {
	a := NewMAPElites(3)

	mk := func(code string, at genome.AttackType, et genome.ErrorType, fit float64) *genome.AttackGenome {
		return &genome.AttackGenome{Code: code, AttackType: at, ErrorType: et, Fitness: fit, Generation: 1}
	}
	require.True(t, a.Add(mk("def test_a(): f(1)", genome.AttackEdgeCase, genome.ErrValueError, 0.9)))
	require.True(t, a.Add(mk("def test_b(): f(2)", genome.AttackEdgeCase, genome.ErrValueError, 0.6)))
	require.True(t, a.Add(mk("def test_c(): f(3)", genome.AttackOverflow, genome.ErrRecursionError, 0.8)))
	require.True(t, a.Add(mk("def test_d(): f(4)", genome.AttackInjection, genome.ErrTypeError, 0.7)))

	sample := a.GetDiverseSample(3)
	require.Len(t, sample, 3)

	niches := map[string]bool{}
	for _, g := range sample {
		niches[g.Niche().String()] = true
	}
	require.Len(t, niches, 3, "first pass must take the best of each niche, not fitness order")
}

func TestSaveLoadRoundtrip(t *testing.T) {
	a := NewMAPElites(3)
	g := newAttack("def test_a(): f(1)", 0.9, 2)
	g.DefeatsCount = 2
	g.TestedAgainst = 4
	require.True(t, a.Add(g))
	require.True(t, a.Add(newAttack("def test_b(): g(1)", 0.7, 2)))

	path := filepath.Join(t.TempDir(), "attack_archive.json")
	require.NoError(t, a.Save(path))

	restored := NewMAPElites(3)
	require.NoError(t, restored.Load(path))

	assert.Empty(t, cmp.Diff(a.GetAll(), restored.GetAll()))
	assert.Equal(t, a.GetStats(), restored.GetStats())
}
