// Package skill implements the Skill Registry & HTTP Invoker (spec.md
// §4.2): the catalog of externally callable tools a Skill node can invoke,
// and the bounded-retry HTTP client that actually calls them. It
// generalizes the teacher's graph/tool.Tool interface (graph/tool/tool.go)
// — an in-process Go function an LLM calls directly — into an
// out-of-process HTTP contract described by a stored endpoint URL, schema,
// and auth_kind, since this service's skills are registered data, not
// compiled code.
package skill

import (
	"context"
	"time"
)

// AuthKind is how the invoker authenticates to a skill's endpoint.
type AuthKind string

const (
	AuthNone         AuthKind = "none"
	AuthBearer       AuthKind = "bearer"
	AuthAPIKeyHeader AuthKind = "api_key_header"
	AuthAPIKeyQuery  AuthKind = "api_key_query"
	AuthBasic        AuthKind = "basic"
)

// Skill is a registered externally callable capability (spec.md §3).
type Skill struct {
	ID            string
	Name          string
	Description   string
	HTTPMethod    string // one of GET, POST, PUT, PATCH, DELETE; defaults to POST
	AuthKind      AuthKind
	CredentialRef string // opaque pointer into the secret store, never the secret itself
	EndpointURL   string
	InputSchema   map[string]interface{}
	OutputSchema  map[string]interface{}
	Timeout       time.Duration
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SecretStore resolves a CredentialRef to the actual secret value at call
// time. Implementations may back onto a KMS, vault, or (for development) an
// environment variable; the invoker never persists or logs what this
// returns.
type SecretStore interface {
	Resolve(ctx context.Context, ref string) (string, error)
}
