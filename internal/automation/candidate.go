// Package automation implements the Automation Task Fabric (spec.md §4.5):
// scheduled discovery of candidate tools from external sources, a Redis
// queue pipeline (crawlers -> enrichment -> indexing), and the bounded
// worker pool draining it. It generalizes the teacher's MaxConcurrentNodes
// worker-goroutine pattern (graph/engine.go's runConcurrent) from
// scheduling one run's node frontier to scheduling many independent,
// queue-delivered tasks.
package automation

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/toolforge/agentgraph/internal/apperr"
	"github.com/toolforge/agentgraph/internal/db"
)

// CandidateStatus tracks a discovered tool through the discovery ->
// enrichment -> indexing pipeline.
type CandidateStatus string

const (
	StatusDiscovered CandidateStatus = "discovered"
	StatusEnriched   CandidateStatus = "enriched"
	StatusIndexed    CandidateStatus = "indexed"
)

// Candidate is a tool surfaced by a discovery Source, persisted to the
// candidate_tools table before enrichment decides whether it becomes a
// catalogue entry.
type Candidate struct {
	ID            string
	Source        string
	ExternalID    string
	Name          string
	NameZH        string
	URL           string
	Description   string
	DescriptionZH string
	Pricing       string
	Score         int
	Status        CandidateStatus
	DiscoveredAt  time.Time
	IndexedAt     *time.Time
}

// CandidateRepo persists candidates with UPSERT idempotence keyed by
// (source, external_id) — rediscovering the same item (spec.md's scenario
// F) never duplicates a row, following the skill.Registry/workflow.Store
// thin-repository shape over *db.DB.
type CandidateRepo struct {
	db *db.DB
}

func NewCandidateRepo(database *db.DB) *CandidateRepo {
	return &CandidateRepo{db: database}
}

// Upsert inserts a newly discovered candidate, or silently does nothing if
// (source, external_id) was already seen — the dedup rule scenario F tests.
func (r *CandidateRepo) Upsert(ctx context.Context, c Candidate) (Candidate, bool, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = StatusDiscovered
	}

	res, err := r.db.UpsertIgnore(ctx,
		`INSERT INTO candidate_tools (id, source, external_id, name, url, description, score, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source, external_id) DO NOTHING`,
		`INSERT IGNORE INTO candidate_tools (id, source, external_id, name, url, description, score, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Source, c.ExternalID, c.Name, c.URL, c.Description, c.Score, string(c.Status),
	)
	if err != nil {
		return Candidate{}, false, apperr.Wrap(apperr.KindInfrastructure, "upsert candidate", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Candidate{}, false, apperr.Wrap(apperr.KindInfrastructure, "read upsert result", err)
	}
	existing, err := r.GetBySource(ctx, c.Source, c.ExternalID)
	if err != nil {
		return Candidate{}, false, err
	}
	return existing, affected > 0, nil
}

// GetBySource loads a candidate by its natural key.
func (r *CandidateRepo) GetBySource(ctx context.Context, source, externalID string) (Candidate, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, source, external_id, name, name_zh, url, description, description_zh, pricing, score, status, discovered_at, indexed_at
		FROM candidate_tools WHERE source = ? AND external_id = ?`, source, externalID)
	return scanCandidate(row)
}

// Get loads a candidate by id.
func (r *CandidateRepo) Get(ctx context.Context, id string) (Candidate, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, source, external_id, name, name_zh, url, description, description_zh, pricing, score, status, discovered_at, indexed_at
		FROM candidate_tools WHERE id = ?`, id)
	return scanCandidate(row)
}

// Enrich writes the LLM-produced bilingual name/description and pricing
// classification for a candidate and advances it to StatusEnriched
// (spec.md §4.5 step 5).
func (r *CandidateRepo) Enrich(ctx context.Context, id, nameZH, descriptionZH, pricing string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE candidate_tools SET name_zh = ?, description_zh = ?, pricing = ?, status = ? WHERE id = ?`,
		nameZH, descriptionZH, pricing, string(StatusEnriched), id)
	if err != nil {
		return apperr.Wrap(apperr.KindInfrastructure, "enrich candidate", err)
	}
	return nil
}

// MarkStatus advances a candidate to a new pipeline stage, stamping
// indexed_at when it reaches StatusIndexed.
func (r *CandidateRepo) MarkStatus(ctx context.Context, id string, status CandidateStatus) error {
	var err error
	if status == StatusIndexed {
		_, err = r.db.ExecContext(ctx, `UPDATE candidate_tools SET status = ?, indexed_at = CURRENT_TIMESTAMP WHERE id = ?`, string(status), id)
	} else {
		_, err = r.db.ExecContext(ctx, `UPDATE candidate_tools SET status = ? WHERE id = ?`, string(status), id)
	}
	if err != nil {
		return apperr.Wrap(apperr.KindInfrastructure, "mark candidate status", err)
	}
	return nil
}

// ListByStatus returns every candidate at a given pipeline stage, the set
// an enrichment or indexing task batch operates over.
func (r *CandidateRepo) ListByStatus(ctx context.Context, status CandidateStatus) ([]Candidate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source, external_id, name, name_zh, url, description, description_zh, pricing, score, status, discovered_at, indexed_at
		FROM candidate_tools WHERE status = ? ORDER BY discovered_at ASC`, string(status))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInfrastructure, "query candidates", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCandidate(row rowScanner) (Candidate, error) {
	var c Candidate
	var status string
	var indexedAt sql.NullTime
	err := row.Scan(&c.ID, &c.Source, &c.ExternalID, &c.Name, &c.NameZH, &c.URL, &c.Description, &c.DescriptionZH, &c.Pricing, &c.Score, &status, &c.DiscoveredAt, &indexedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return Candidate{}, apperr.New(apperr.KindNotFound, "candidate not found")
		}
		return Candidate{}, apperr.Wrap(apperr.KindInfrastructure, "scan candidate", err)
	}
	c.Status = CandidateStatus(status)
	if indexedAt.Valid {
		c.IndexedAt = &indexedAt.Time
	}
	return c, nil
}
