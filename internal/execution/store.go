package execution

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/toolforge/agentgraph/internal/apperr"
	"github.com/toolforge/agentgraph/internal/db"
)

// Store persists Execution rows and their step_events, grounded on
// workflow.Store's thin-wrapper-over-*db.DB shape.
type Store struct {
	db *db.DB
}

func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Create inserts a new Execution in StatusPending, called before the
// engine's Run goroutine starts so the row exists the moment a client
// polls for it. The goroutine itself flips it to StatusRunning once
// admitted into the engine (MarkRunning), so pending is briefly but really
// observable rather than a status no caller ever sees.
func (s *Store) Create(ctx context.Context, workflowID string, workflowVersion int, triggerType, createdBy string, input map[string]interface{}) (Execution, error) {
	inputJSON, err := json.Marshal(input)
	if err != nil {
		return Execution{}, apperr.Wrap(apperr.KindValidation, "marshal execution input", err)
	}

	e := Execution{
		ID:              uuid.NewString(),
		WorkflowID:      workflowID,
		WorkflowVersion: workflowVersion,
		TriggerType:     triggerType,
		Status:          StatusPending,
		Input:           input,
		CreatedBy:       createdBy,
		StartedAt:       time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO executions (id, workflow_id, workflow_version, trigger_type, status,
			input_json, output_json, error_json, created_by, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, '{}', '', ?, ?, NULL)`,
		e.ID, e.WorkflowID, e.WorkflowVersion, e.TriggerType, string(e.Status),
		string(inputJSON), e.CreatedBy, e.StartedAt,
	)
	if err != nil {
		return Execution{}, apperr.Wrap(apperr.KindInfrastructure, "insert execution", err)
	}
	return e, nil
}

// MarkRunning admits a pending execution into the engine, the "admission"
// half of spec.md §4.3's pending -> running transition. A mismatch (row
// already past pending) is not an error worth surfacing to the caller —
// the run proceeds regardless of which status word is on the row — so
// this reports whether the transition actually happened rather than
// failing the run.
func (s *Store) MarkRunning(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE executions SET status = ? WHERE id = ? AND status = ?`,
		string(StatusRunning), id, string(StatusPending),
	)
	if err != nil {
		return false, apperr.Wrap(apperr.KindInfrastructure, "mark execution running", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Wrap(apperr.KindInfrastructure, "mark execution running: rows affected", err)
	}
	return n > 0, nil
}

// MarkStreaming flips a running execution to streaming on its first
// emitted token (spec.md §4.3's "first-emit -> streaming" transition). A
// no-op if the execution isn't currently running — e.g. it was already
// cancelled, or a later token raced a prior one past this guard.
func (s *Store) MarkStreaming(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE executions SET status = ? WHERE id = ? AND status = ?`,
		string(StatusStreaming), id, string(StatusRunning),
	)
	if err != nil {
		return false, apperr.Wrap(apperr.KindInfrastructure, "mark execution streaming", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Wrap(apperr.KindInfrastructure, "mark execution streaming: rows affected", err)
	}
	return n > 0, nil
}

// Complete finalizes an execution with a terminal status, output, and
// optional error message, setting completed_at to now. A row already in a
// terminal status (e.g. cancelled by request first) is left as it is.
func (s *Store) Complete(ctx context.Context, id string, status Status, output map[string]interface{}, runErr string) error {
	outputJSON, err := json.Marshal(output)
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, "marshal execution output", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE executions SET status = ?, output_json = ?, error_json = ?, completed_at = ?
		WHERE id = ? AND status IN (?, ?, ?)`,
		string(status), string(outputJSON), runErr, time.Now().UTC(), id,
		string(StatusPending), string(StatusRunning), string(StatusStreaming),
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInfrastructure, "complete execution", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.KindInfrastructure, "complete execution: rows affected", err)
	}
	if n == 0 {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}
	}
	return nil
}

// Cancel marks a non-terminal execution cancelled without touching output,
// used when a client requests early termination (spec.md §6). The update
// is guarded to rows still pending, running, or streaming so a race
// against the run's own natural completion never clobbers a completed/
// failed record with "cancelled" — status transitions monotonically once
// terminal.
func (s *Store) Cancel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE executions SET status = ?, error_json = ?, completed_at = ?
		WHERE id = ? AND status IN (?, ?, ?)`,
		string(StatusCancelled), "cancelled by request", time.Now().UTC(), id,
		string(StatusPending), string(StatusRunning), string(StatusStreaming),
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInfrastructure, "cancel execution", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.KindInfrastructure, "cancel execution: rows affected", err)
	}
	if n > 0 {
		return nil
	}

	exec, getErr := s.Get(ctx, id)
	if getErr != nil {
		return getErr
	}
	return apperr.New(apperr.KindConflict, fmt.Sprintf("execution %q is already %s", id, exec.Status))
}

func (s *Store) Get(ctx context.Context, id string) (Execution, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, workflow_version, trigger_type, status,
			input_json, output_json, error_json, created_by, started_at, completed_at
		FROM executions WHERE id = ?`, id)
	return scanExecution(row)
}

// ListByWorkflow returns a workflow's executions, most recent first.
func (s *Store) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workflow_id, workflow_version, trigger_type, status,
			input_json, output_json, error_json, created_by, started_at, completed_at
		FROM executions WHERE workflow_id = ? ORDER BY started_at DESC LIMIT ?`, workflowID, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInfrastructure, "list executions", err)
	}
	defer rows.Close()
	return scanExecutions(rows)
}

// ListByStatus supports the worker-visible "what's still running" query a
// restart-recovery sweep would use.
func (s *Store) ListByStatus(ctx context.Context, status Status) ([]Execution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workflow_id, workflow_version, trigger_type, status,
			input_json, output_json, error_json, created_by, started_at, completed_at
		FROM executions WHERE status = ? ORDER BY started_at ASC`, string(status))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInfrastructure, "list executions by status", err)
	}
	defer rows.Close()
	return scanExecutions(rows)
}

// RecordEvent appends one step event, tolerating a duplicate (execution_id,
// seq) insert as a no-op: the engine's sequencer never reuses a seq within
// a run, but a crashed-and-resumed writer might replay the tail of a batch.
func (s *Store) RecordEvent(ctx context.Context, ev StepEvent) error {
	payloadJSON, err := json.Marshal(ev.Payload)
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, "marshal step event payload", err)
	}
	_, err = s.db.UpsertIgnore(ctx,
		`INSERT INTO step_events (execution_id, seq, node_id, kind, payload_json, at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(execution_id, seq) DO NOTHING`,
		`INSERT IGNORE INTO step_events (execution_id, seq, node_id, kind, payload_json, at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ExecutionID, ev.Seq, ev.NodeID, ev.Kind, string(payloadJSON), ev.At,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInfrastructure, "insert step event", err)
	}
	return nil
}

// StepEvents returns an execution's full step log in sequence order, the
// source of truth for a client reconnecting with a stale Last-Event-ID
// after the in-process emit.Hub has forgotten the run.
func (s *Store) StepEvents(ctx context.Context, executionID string) ([]StepEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT execution_id, seq, node_id, kind, payload_json, at
		FROM step_events WHERE execution_id = ? ORDER BY seq ASC`, executionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInfrastructure, "list step events", err)
	}
	defer rows.Close()

	var events []StepEvent
	for rows.Next() {
		var ev StepEvent
		var payloadJSON string
		if err := rows.Scan(&ev.ExecutionID, &ev.Seq, &ev.NodeID, &ev.Kind, &payloadJSON, &ev.At); err != nil {
			return nil, apperr.Wrap(apperr.KindInfrastructure, "scan step event", err)
		}
		if err := json.Unmarshal([]byte(payloadJSON), &ev.Payload); err != nil {
			return nil, apperr.Wrap(apperr.KindInfrastructure, "unmarshal step event payload", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func scanExecution(row *sql.Row) (Execution, error) {
	var e Execution
	var inputJSON, outputJSON string
	var completedAt sql.NullTime
	err := row.Scan(&e.ID, &e.WorkflowID, &e.WorkflowVersion, &e.TriggerType, &e.Status,
		&inputJSON, &outputJSON, &e.Error, &e.CreatedBy, &e.StartedAt, &completedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return Execution{}, apperr.New(apperr.KindNotFound, "execution not found")
		}
		return Execution{}, apperr.Wrap(apperr.KindInfrastructure, "scan execution", err)
	}
	if err := unmarshalExecutionJSON(&e, inputJSON, outputJSON); err != nil {
		return Execution{}, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		e.CompletedAt = &t
	}
	return e, nil
}

func scanExecutions(rows *sql.Rows) ([]Execution, error) {
	var out []Execution
	for rows.Next() {
		var e Execution
		var inputJSON, outputJSON string
		var completedAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.WorkflowID, &e.WorkflowVersion, &e.TriggerType, &e.Status,
			&inputJSON, &outputJSON, &e.Error, &e.CreatedBy, &e.StartedAt, &completedAt); err != nil {
			return nil, apperr.Wrap(apperr.KindInfrastructure, "scan execution", err)
		}
		if err := unmarshalExecutionJSON(&e, inputJSON, outputJSON); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			t := completedAt.Time
			e.CompletedAt = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func unmarshalExecutionJSON(e *Execution, inputJSON, outputJSON string) error {
	if inputJSON != "" {
		if err := json.Unmarshal([]byte(inputJSON), &e.Input); err != nil {
			return apperr.Wrap(apperr.KindInfrastructure, "unmarshal execution input", err)
		}
	}
	if outputJSON != "" {
		if err := json.Unmarshal([]byte(outputJSON), &e.Output); err != nil {
			return apperr.Wrap(apperr.KindInfrastructure, "unmarshal execution output", err)
		}
	}
	return nil
}
