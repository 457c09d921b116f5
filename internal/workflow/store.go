package workflow

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

// Store persists workflows and their version history. It generalizes the
// teacher's store.Store[S] (graph/store/store.go) from a single per-run
// state blob keyed by runID into the workflow aggregate of spec.md §3:
// one row per workflow plus an append-only version_history table, with
// optimistic concurrency taking the place of the teacher's step-sequence
// append.
type Store struct {
	db *db.DB
}

func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Create inserts a new workflow at version 1. version_history starts empty:
// spec.md §3's invariant is version == 1 + len(history), and a freshly
// created workflow has no earlier version to snapshot.
func (s *Store) Create(ctx context.Context, w *Workflow) error {
	if err := w.Graph.Validate(); err != nil {
		return err
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	w.Version = 1
	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now

	graphJSON, err := json.Marshal(w.Graph)
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, "marshal graph", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindInfrastructure, "begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflows (id, slug, name, description, description_zh, is_public,
			owner_id, version, graph_json, trigger_type, run_count, star_count,
			forked_from, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.Slug, w.Name, w.Description, w.DescriptionZH, w.IsPublic,
		w.OwnerID, w.Version, string(graphJSON), string(w.TriggerType), w.RunCount, w.StarCount,
		w.ForkedFrom, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInfrastructure, "insert workflow", err)
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.KindInfrastructure, "commit tx", err)
	}
	return nil
}

// Get loads a workflow by id, including its full version history.
func (s *Store) Get(ctx context.Context, id string) (*Workflow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, slug, name, description, description_zh, is_public, owner_id,
			version, graph_json, trigger_type, run_count, star_count, forked_from,
			created_at, updated_at
		FROM workflows WHERE id = ?`, id)

	w, err := scanWorkflow(row)
	if err != nil {
		return nil, err
	}

	history, err := s.listVersions(ctx, id)
	if err != nil {
		return nil, err
	}
	w.History = history
	return w, nil
}

// Update applies a new graph to a workflow under an optimistic
// expected_version compare-and-set (spec.md §4.1, §9 decision (c)): the
// caller must supply the version it last read. A mismatch returns
// apperr.KindConflict regardless of which writer raced the other, matching
// the teacher's single monotonically increasing step counter (graph/
// store/sqlite.go's UNIQUE(run_id, step)) but surfaced as a typed
// application error instead of a bare constraint violation.
//
// Per spec.md §4.1's documented algorithm, each edit appends a snapshot of
// the pre-edit (old) graph to version_history keyed at the old version
// number, then advances — never the new, post-patch graph keyed at the new
// version. That is what keeps version == 1 + len(history) true.
func (s *Store) Update(ctx context.Context, id string, expectedVersion int, g Graph, authorID, notes string) (*Workflow, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	graphJSON, err := json.Marshal(g)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "marshal graph", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInfrastructure, "begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	var oldGraphJSON string
	err = tx.QueryRowContext(ctx, `
		SELECT graph_json FROM workflows WHERE id = ? AND version = ?`,
		id, expectedVersion,
	).Scan(&oldGraphJSON)
	if err == sql.ErrNoRows {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, apperr.New(apperr.KindConflict, fmt.Sprintf("workflow %q version %d is stale", id, expectedVersion))
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInfrastructure, "load current graph", err)
	}
	var oldGraph Graph
	if err := json.Unmarshal([]byte(oldGraphJSON), &oldGraph); err != nil {
		return nil, apperr.Wrap(apperr.KindInfrastructure, "unmarshal graph", err)
	}

	newVersion := expectedVersion + 1
	res, err := tx.ExecContext(ctx, `
		UPDATE workflows SET graph_json = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(graphJSON), newVersion, time.Now().UTC(), id, expectedVersion,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInfrastructure, "update workflow", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, apperr.New(apperr.KindConflict, fmt.Sprintf("workflow %q version %d is stale", id, expectedVersion))
	}

	if err := insertVersion(ctx, tx, id, expectedVersion, authorID, notes, oldGraph); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.KindInfrastructure, "commit tx", err)
	}
	return s.Get(ctx, id)
}

// Revert restores the graph recorded at targetVersion as a brand new
// version at the head of history (never rewriting history in place), again
// under an expected_version CAS. Per spec.md §8's round-trip law, the
// restored graph is canonically equal to the targetVersion snapshot.
func (s *Store) Revert(ctx context.Context, id string, expectedVersion, targetVersion int, authorID string) (*Workflow, error) {
	snap, err := s.getVersion(ctx, id, targetVersion)
	if err != nil {
		return nil, err
	}
	notes := fmt.Sprintf("reverted to version %d", targetVersion)
	return s.Update(ctx, id, expectedVersion, snap.Graph, authorID, notes)
}

// Fork creates a brand-new workflow seeded from another workflow's current
// graph. Per spec.md §9 decision (b): star_count and run_count reset to
// zero, version history does not copy (the fork begins at version 1), and
// forked_from records the lineage pointer.
func (s *Store) Fork(ctx context.Context, sourceID, newOwnerID, newSlug, newName string) (*Workflow, error) {
	source, err := s.Get(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	fork := &Workflow{
		Slug:        newSlug,
		Name:        newName,
		Description: source.Description,
		DescriptionZH: source.DescriptionZH,
		OwnerID:     newOwnerID,
		Graph:       source.Graph,
		TriggerType: TriggerManual,
		ForkedFrom:  source.ID,
	}
	if err := s.Create(ctx, fork); err != nil {
		return nil, err
	}
	return fork, nil
}

// List returns a page of workflows, scoped either to ownerID's own
// workflows ("mine") or the public catalogue ("public"), most recently
// updated first. List never returns a workflow's version history (unlike
// Get), matching the API's list-vs-read distinction in spec.md §6.
func (s *Store) List(ctx context.Context, scope, ownerID string, page, limit int) ([]*Workflow, error) {
	if limit <= 0 {
		limit = 20
	}
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	var rows *sql.Rows
	var err error
	if scope == "mine" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, slug, name, description, description_zh, is_public, owner_id,
				version, graph_json, trigger_type, run_count, star_count, forked_from,
				created_at, updated_at
			FROM workflows WHERE owner_id = ? ORDER BY updated_at DESC LIMIT ? OFFSET ?`,
			ownerID, limit, offset)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, slug, name, description, description_zh, is_public, owner_id,
				version, graph_json, trigger_type, run_count, star_count, forked_from,
				created_at, updated_at
			FROM workflows WHERE is_public = 1 ORDER BY updated_at DESC LIMIT ? OFFSET ?`,
			limit, offset)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInfrastructure, "list workflows", err)
	}
	defer rows.Close()

	var out []*Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Delete removes a workflow and its version history. Ownership is enforced
// by the caller (spec.md §6: "DELETE /workflows/{id} — owner-only").
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindInfrastructure, "begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM workflow_versions WHERE workflow_id = ?`, id); err != nil {
		return apperr.Wrap(apperr.KindInfrastructure, "delete workflow versions", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return apperr.Wrap(apperr.KindInfrastructure, "delete workflow", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.KindNotFound, fmt.Sprintf("workflow %q not found", id))
	}
	return tx.Commit()
}

// ListVersions returns every version snapshot recorded for a workflow, in
// ascending version order.
func (s *Store) ListVersions(ctx context.Context, id string) ([]VersionSnapshot, error) {
	return s.listVersions(ctx, id)
}

// Compare diffs two recorded versions of a workflow.
func (s *Store) Compare(ctx context.Context, id string, v1, v2 int) (Diff, error) {
	a, err := s.getVersion(ctx, id, v1)
	if err != nil {
		return Diff{}, err
	}
	b, err := s.getVersion(ctx, id, v2)
	if err != nil {
		return Diff{}, err
	}
	return Compare(a.Graph, b.Graph), nil
}

func (s *Store) getVersion(ctx context.Context, workflowID string, version int) (VersionSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT version, author_id, notes, graph_json, created_at
		FROM workflow_versions WHERE workflow_id = ? AND version = ?`, workflowID, version)

	var snap VersionSnapshot
	var graphJSON string
	if err := row.Scan(&snap.Version, &snap.AuthorID, &snap.Notes, &graphJSON, &snap.Timestamp); err != nil {
		if err == sql.ErrNoRows {
			// The current version has no history row: serve it from the
			// workflow row itself.
			if w, getErr := s.Get(ctx, workflowID); getErr == nil && w.Version == version {
				return VersionSnapshot{Version: w.Version, Graph: w.Graph, Timestamp: w.UpdatedAt}, nil
			}
			return VersionSnapshot{}, apperr.New(apperr.KindNotFound, fmt.Sprintf("workflow %q has no version %d", workflowID, version))
		}
		return VersionSnapshot{}, apperr.Wrap(apperr.KindInfrastructure, "scan version", err)
	}
	if err := json.Unmarshal([]byte(graphJSON), &snap.Graph); err != nil {
		return VersionSnapshot{}, apperr.Wrap(apperr.KindInfrastructure, "unmarshal graph", err)
	}
	return snap, nil
}

func (s *Store) listVersions(ctx context.Context, workflowID string) ([]VersionSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT version, author_id, notes, graph_json, created_at
		FROM workflow_versions WHERE workflow_id = ? ORDER BY version ASC`, workflowID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInfrastructure, "query versions", err)
	}
	defer rows.Close()

	var out []VersionSnapshot
	for rows.Next() {
		var snap VersionSnapshot
		var graphJSON string
		if err := rows.Scan(&snap.Version, &snap.AuthorID, &snap.Notes, &graphJSON, &snap.Timestamp); err != nil {
			return nil, apperr.Wrap(apperr.KindInfrastructure, "scan version row", err)
		}
		if err := json.Unmarshal([]byte(graphJSON), &snap.Graph); err != nil {
			return nil, apperr.Wrap(apperr.KindInfrastructure, "unmarshal graph", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func insertVersion(ctx context.Context, tx *sql.Tx, workflowID string, version int, authorID, notes string, g Graph) error {
	graphJSON, err := json.Marshal(g)
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, "marshal graph", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflow_versions (workflow_id, version, author_id, notes, graph_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		workflowID, version, authorID, notes, string(graphJSON), time.Now().UTC(),
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInfrastructure, "insert version", err)
	}
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows so scanWorkflow serves both
// Get's QueryRow and List's row iteration.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWorkflow(row rowScanner) (*Workflow, error) {
	w := &Workflow{}
	var graphJSON string
	err := row.Scan(&w.ID, &w.Slug, &w.Name, &w.Description, &w.DescriptionZH, &w.IsPublic, &w.OwnerID,
		&w.Version, &graphJSON, &w.TriggerType, &w.RunCount, &w.StarCount, &w.ForkedFrom,
		&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.New(apperr.KindNotFound, "workflow not found")
		}
		return nil, apperr.Wrap(apperr.KindInfrastructure, "scan workflow", err)
	}
	if err := json.Unmarshal([]byte(graphJSON), &w.Graph); err != nil {
		return nil, apperr.Wrap(apperr.KindInfrastructure, "unmarshal graph", err)
	}
	return w, nil
}
