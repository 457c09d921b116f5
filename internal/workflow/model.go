// Package workflow implements the Graph Model & Version Store (spec.md
// §4.1): typed workflow graphs, immutable version snapshots, and diff
// computation. It generalizes the teacher's graph.Edge[S]/Predicate[S]
// (graph/edge.go) from a generic, app-defined state type into the fixed
// tagged-node model spec.md §3 describes.
package workflow

import "time"

// TriggerType is how a workflow run is initiated.
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerScheduled TriggerType = "scheduled"
	TriggerChat      TriggerType = "chat"
)

// Workflow is the top-level aggregate persisted by the version store.
// Following §9's "ORM relationships with lazy loading map to explicit
// eager-load requests" design note, Workflow always carries its full
// Graph and VersionHistory in one read — there is no lazy-loaded
// association here.
type Workflow struct {
	ID          string
	Slug        string
	Name        string
	Description string
	DescriptionZH string
	IsPublic    bool
	OwnerID     string
	Version     int
	Graph       Graph
	History     []VersionSnapshot
	TriggerType TriggerType
	RunCount    int
	StarCount   int
	ForkedFrom  string // open-question decision: lineage pointer, see DESIGN.md
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EdgeKind classifies an Edge's role in scheduling (spec.md §3).
type EdgeKind string

const (
	EdgeData    EdgeKind = "data"
	EdgeControl EdgeKind = "control"
	EdgeError   EdgeKind = "error"
)

// Edge connects two nodes. Unlike the teacher's graph.Edge[S], which
// carries a Predicate[S] evaluated against application state, Edge here is
// pure topology: the engine decides traversal from node completion and Kind,
// not from a caller-supplied predicate, because the graph is data, not code.
type Edge struct {
	ID           string
	Source       string
	Target       string
	SourceHandle string
	TargetHandle string
	Kind         EdgeKind
}

// NodeType tags the Node variant (spec.md §3).
type NodeType string

const (
	NodeInput     NodeType = "input"
	NodeLLM       NodeType = "llm"
	NodeSkill     NodeType = "skill"
	NodeTransform NodeType = "transform"
	NodeOutput    NodeType = "output"
)

// InputType enumerates Input node input_type values.
type InputType string

const (
	InputText   InputType = "text"
	InputNumber InputType = "number"
	InputJSON   InputType = "json"
	InputFile   InputType = "file"
)

// TransformKind enumerates Transform node kind values.
type TransformKind string

const (
	TransformPassthrough   TransformKind = "passthrough"
	TransformExtract       TransformKind = "extract"
	TransformTemplate      TransformKind = "template"
	TransformJSONParse     TransformKind = "json_parse"
	TransformJSONStringify TransformKind = "json_stringify"
	TransformArrayJoin     TransformKind = "array_join"
)

// OutputFormat enumerates Output node format values.
type OutputFormat string

const (
	OutputAuto     OutputFormat = "auto"
	OutputText     OutputFormat = "text"
	OutputJSON     OutputFormat = "json"
	OutputMarkdown OutputFormat = "markdown"
)

// Node is the tagged variant of spec.md §3. Exactly one of the typed
// payload fields is populated, matching Type. A small dynamic Extra map
// carries forward-compatible, UI-only attributes (e.g. canvas position)
// that diffing must ignore per the canonical-form rule in spec.md §4.1.
type Node struct {
	ID   string
	Type NodeType

	// Input
	InputType    InputType
	InputDefault interface{}

	// LLM
	Model        string
	SystemPrompt string
	Prompt       string
	Temperature  float64
	JSONOutput   bool

	// Skill
	SkillID string

	// Transform
	TransformKind TransformKind
	Field         string
	Template      string
	Separator     string

	// Output
	Format OutputFormat

	// Extra holds UI-only / forward-compatible attributes (layout
	// coordinates, color, collapsed state) excluded from the canonical
	// form used by Compare.
	Extra map[string]interface{}
}

// Graph is the directed graph of spec.md §3.
type Graph struct {
	Nodes []Node
	Edges []Edge
}

// VersionSnapshot is an immutable historical record (spec.md §3).
type VersionSnapshot struct {
	Version   int
	Timestamp time.Time
	AuthorID  string
	Notes     string
	Graph     Graph
}
