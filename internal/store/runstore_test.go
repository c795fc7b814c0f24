package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordAndCount(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "telemetry.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.RecordEvaluation("run-1", 1, RoleAttack, "abc123def456", "edge_case", "ValueError", 1.0, true))
	require.NoError(t, s.RecordEvaluation("run-1", 1, RoleDefense, "fed654cba321", "", "", 0.8, true))
	require.NoError(t, s.RecordEvaluation("run-2", 1, RoleAttack, "aaa111bbb222", "overflow", "RecursionError", 0.0, false))

	count, err := s.EvaluationCount("run-1")
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestRecordRoundIsIdempotent(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "telemetry.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.RecordRound("run-1", 1, 0.5, 3, 10))
	require.NoError(t, s.RecordRound("run-1", 1, 0.6, 4, 12))

	var robustness float64
	require.NoError(t, s.db.QueryRow(
		`SELECT robustness FROM rounds WHERE run_id = ? AND round = ?`, "run-1", 1).Scan(&robustness))
	require.Equal(t, 0.6, robustness)
}

func TestNilStoreIsSafe(t *testing.T) {
	var s *RunStore
	require.NoError(t, s.RecordEvaluation("run", 1, RoleAttack, "h", "", "", 0, false))
	require.NoError(t, s.RecordRound("run", 1, 0, 0, 0))
	require.NoError(t, s.Close())

	count, err := s.EvaluationCount("run")
	require.NoError(t, err)
	require.Zero(t, count)
}
