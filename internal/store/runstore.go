// Package store persists run telemetry to sqlite: one row per candidate
// evaluation and one per completed round. The store is optional and every
// method is nil-safe, so the controller never has to care whether
// telemetry is configured.
package store

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"redqueen/internal/logging"
)

// Role distinguishes attack rows from defense rows.
type Role string

const (
	RoleAttack  Role = "attack"
	RoleDefense Role = "defense"
)

// RunStore records evaluations and round summaries for later analysis.
type RunStore struct {
	mu sync.Mutex
	db *sql.DB
}

// Open creates (or opens) the telemetry database at path.
func Open(path string) (*RunStore, error) {
	logging.StoreDebug("opening telemetry database at %s", path)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry db: %w", err)
	}

	s := &RunStore{db: db}
	if err := s.initializeSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *RunStore) initializeSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS evaluations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		round INTEGER NOT NULL,
		role TEXT NOT NULL,
		genome_hash TEXT NOT NULL,
		attack_type TEXT DEFAULT '',
		error_type TEXT DEFAULT '',
		fitness REAL NOT NULL,
		accepted INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_evaluations_run ON evaluations(run_id, round);

	CREATE TABLE IF NOT EXISTS rounds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		round INTEGER NOT NULL,
		robustness REAL NOT NULL,
		archive_size INTEGER NOT NULL,
		api_calls INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(run_id, round)
	);
	`
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry schema: %w", err)
	}
	return nil
}

// RecordEvaluation persists one scored candidate.
func (s *RunStore) RecordEvaluation(runID string, round int, role Role, genomeHash, attackType, errorType string, fitness float64, accepted bool) error {
	if s == nil || s.db == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO evaluations (run_id, round, role, genome_hash, attack_type, error_type, fitness, accepted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, round, string(role), genomeHash, attackType, errorType, fitness, boolToInt(accepted))
	if err != nil {
		logging.Get(logging.CategoryStore).Error("failed to record evaluation: %v", err)
		return fmt.Errorf("failed to record evaluation: %w", err)
	}
	return nil
}

// RecordRound persists one round summary. Re-recording a round replaces
// the previous row, which makes checkpoint resume idempotent.
func (s *RunStore) RecordRound(runID string, round int, robustness float64, archiveSize, apiCalls int) error {
	if s == nil || s.db == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO rounds (run_id, round, robustness, archive_size, api_calls)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, round) DO UPDATE SET
			robustness = excluded.robustness,
			archive_size = excluded.archive_size,
			api_calls = excluded.api_calls
	`, runID, round, robustness, archiveSize, apiCalls)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("failed to record round: %v", err)
		return fmt.Errorf("failed to record round: %w", err)
	}
	return nil
}

// EvaluationCount returns the number of recorded evaluations for a run.
func (s *RunStore) EvaluationCount(runID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM evaluations WHERE run_id = ?`, runID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count evaluations: %w", err)
	}
	return count, nil
}

// Close releases the database handle.
func (s *RunStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
