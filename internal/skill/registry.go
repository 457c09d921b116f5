package skill

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/toolforge/agentgraph/internal/apperr"
	"github.com/toolforge/agentgraph/internal/db"
)

// Registry persists the skill catalog, backing the Skill Registry half of
// spec.md §4.2 (the HTTP invocation half lives in invoker.go).
type Registry struct {
	db *db.DB
}

func NewRegistry(database *db.DB) *Registry {
	return &Registry{db: database}
}

// Register inserts a new skill, generating an ID if one wasn't supplied.
func (r *Registry) Register(ctx context.Context, s *Skill) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now

	inSchema, err := json.Marshal(s.InputSchema)
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, "marshal input schema", err)
	}
	outSchema, err := json.Marshal(s.OutputSchema)
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, "marshal output schema", err)
	}

	method := s.HTTPMethod
	if method == "" {
		method = http.MethodPost
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO skills (id, name, description, http_method, auth_kind, credential_ref, endpoint_url,
			input_schema_json, output_schema_json, timeout_ms, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Name, s.Description, method, string(s.AuthKind), s.CredentialRef, s.EndpointURL,
		string(inSchema), string(outSchema), s.Timeout.Milliseconds(), s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInfrastructure, "insert skill", err)
	}
	return nil
}

// Get loads a skill by id.
func (r *Registry) Get(ctx context.Context, id string) (*Skill, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, http_method, auth_kind, credential_ref, endpoint_url,
			input_schema_json, output_schema_json, timeout_ms, created_at, updated_at
		FROM skills WHERE id = ?`, id)
	return scanSkill(row)
}

// List returns every registered skill, ordered by name, the candidate set a
// workflow author picks a Skill node's skill_id from.
func (r *Registry) List(ctx context.Context) ([]*Skill, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, http_method, auth_kind, credential_ref, endpoint_url,
			input_schema_json, output_schema_json, timeout_ms, created_at, updated_at
		FROM skills ORDER BY name ASC`)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInfrastructure, "query skills", err)
	}
	defer rows.Close()

	var out []*Skill
	for rows.Next() {
		s, err := scanSkill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSkill(row rowScanner) (*Skill, error) {
	s := &Skill{}
	var httpMethod, authKind, inSchema, outSchema string
	var timeoutMS int64
	err := row.Scan(&s.ID, &s.Name, &s.Description, &httpMethod, &authKind, &s.CredentialRef, &s.EndpointURL,
		&inSchema, &outSchema, &timeoutMS, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.New(apperr.KindNotFound, "skill not found")
		}
		return nil, apperr.Wrap(apperr.KindInfrastructure, "scan skill", err)
	}
	s.HTTPMethod = httpMethod
	s.AuthKind = AuthKind(authKind)
	s.Timeout = time.Duration(timeoutMS) * time.Millisecond
	if err := json.Unmarshal([]byte(inSchema), &s.InputSchema); err != nil {
		return nil, apperr.Wrap(apperr.KindInfrastructure, "unmarshal input schema", err)
	}
	if err := json.Unmarshal([]byte(outSchema), &s.OutputSchema); err != nil {
		return nil, apperr.Wrap(apperr.KindInfrastructure, "unmarshal output schema", err)
	}
	return s, nil
}
