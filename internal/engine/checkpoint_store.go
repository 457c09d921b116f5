package engine

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/toolforge/agentgraph/internal/apperr"
	"github.com/toolforge/agentgraph/internal/db"
)

// CheckpointStore persists Checkpoint rows, grounded on the teacher's
// SQLiteStore.SaveCheckpoint/LoadCheckpoint (graph/store/sqlite.go) but
// keyed by (execution_id, step_id) rather than a single named checkpoint
// slot, since the scheduler checkpoints automatically every
// config.CheckpointEvery steps in addition to user-labeled snapshots.
type CheckpointStore struct {
	db *db.DB
}

func NewCheckpointStore(database *db.DB) *CheckpointStore {
	return &CheckpointStore{db: database}
}

func (s *CheckpointStore) Save(ctx context.Context, cp Checkpoint) error {
	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, "marshal checkpoint state", err)
	}
	frontierJSON, err := json.Marshal(cp.Frontier)
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, "marshal checkpoint frontier", err)
	}

	_, err = s.db.UpsertIgnore(ctx,
		`INSERT INTO checkpoints (execution_id, step_id, state_json, frontier_json, rng_seed, idempotency_key, label, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(idempotency_key) DO NOTHING`,
		`INSERT IGNORE INTO checkpoints (execution_id, step_id, state_json, frontier_json, rng_seed, idempotency_key, label, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		cp.RunID, cp.StepID, string(stateJSON), string(frontierJSON), cp.RNGSeed, cp.IdempotencyKey, cp.Label, cp.Timestamp,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInfrastructure, "insert checkpoint", err)
	}
	return nil
}

// LoadLatest returns the most recent checkpoint recorded for a run, used to
// resume execution after a crash or pause.
func (s *CheckpointStore) LoadLatest(ctx context.Context, runID string) (Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT execution_id, step_id, state_json, frontier_json, rng_seed, idempotency_key, label, created_at
		FROM checkpoints WHERE execution_id = ? ORDER BY step_id DESC LIMIT 1`, runID)
	return scanCheckpoint(row)
}

// LoadLabeled returns a user-named checkpoint for branching workflows.
func (s *CheckpointStore) LoadLabeled(ctx context.Context, runID, label string) (Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT execution_id, step_id, state_json, frontier_json, rng_seed, idempotency_key, label, created_at
		FROM checkpoints WHERE execution_id = ? AND label = ? ORDER BY step_id DESC LIMIT 1`, runID, label)
	return scanCheckpoint(row)
}

func scanCheckpoint(row *sql.Row) (Checkpoint, error) {
	var cp Checkpoint
	var stateJSON, frontierJSON string
	err := row.Scan(&cp.RunID, &cp.StepID, &stateJSON, &frontierJSON, &cp.RNGSeed, &cp.IdempotencyKey, &cp.Label, &cp.Timestamp)
	if err != nil {
		if err == sql.ErrNoRows {
			return Checkpoint{}, apperr.New(apperr.KindNotFound, "no checkpoint found")
		}
		return Checkpoint{}, apperr.Wrap(apperr.KindInfrastructure, "scan checkpoint", err)
	}
	if err := json.Unmarshal([]byte(stateJSON), &cp.State); err != nil {
		return Checkpoint{}, apperr.Wrap(apperr.KindInfrastructure, "unmarshal checkpoint state", err)
	}
	if err := json.Unmarshal([]byte(frontierJSON), &cp.Frontier); err != nil {
		return Checkpoint{}, apperr.Wrap(apperr.KindInfrastructure, "unmarshal checkpoint frontier", err)
	}
	return cp, nil
}
