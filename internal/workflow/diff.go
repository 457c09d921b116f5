package workflow

import (
	"encoding/json"
	"sort"
)

// canonicalNode is the field-sorted, visual-attribute-excluding
// serialization of a Node used for equality comparison in Compare and
// Revert (spec.md §4.1, §8's round-trip law). It deliberately omits
// Extra, the dynamic payload map reserved for UI-only attributes such as
// canvas position — this generalizes the teacher's deepCopyState JSON
// round-trip helper (graph/engine.go) from "copy for isolation" to "compare
// for equality".
type canonicalNode struct {
	ID            string      `json:"id"`
	Type          NodeType    `json:"type"`
	InputType     InputType   `json:"input_type,omitempty"`
	InputDefault  interface{} `json:"default,omitempty"`
	Model         string      `json:"model,omitempty"`
	SystemPrompt  string      `json:"system_prompt,omitempty"`
	Prompt        string      `json:"prompt,omitempty"`
	Temperature   float64     `json:"temperature,omitempty"`
	JSONOutput    bool        `json:"json_output,omitempty"`
	SkillID       string      `json:"skill_id,omitempty"`
	TransformKind string      `json:"transform_kind,omitempty"`
	Field         string      `json:"field,omitempty"`
	Template      string      `json:"template,omitempty"`
	Separator     string      `json:"separator,omitempty"`
	Format        string      `json:"format,omitempty"`
}

func (n Node) canonical() canonicalNode {
	return canonicalNode{
		ID:            n.ID,
		Type:          n.Type,
		InputType:     n.InputType,
		InputDefault:  n.InputDefault,
		Model:         n.Model,
		SystemPrompt:  n.SystemPrompt,
		Prompt:        n.Prompt,
		Temperature:   n.Temperature,
		JSONOutput:    n.JSONOutput,
		SkillID:       n.SkillID,
		TransformKind: string(n.TransformKind),
		Field:         n.Field,
		Template:      n.Template,
		Separator:     n.Separator,
		Format:        string(n.Format),
	}
}

func (n Node) canonicalJSON() string {
	b, _ := json.Marshal(n.canonical())
	return string(b)
}

type canonicalEdge struct {
	ID           string   `json:"id"`
	Source       string   `json:"source"`
	Target       string   `json:"target"`
	SourceHandle string   `json:"source_handle,omitempty"`
	TargetHandle string   `json:"target_handle,omitempty"`
	Kind         EdgeKind `json:"kind"`
}

func (e Edge) canonical() canonicalEdge {
	return canonicalEdge{
		ID:           e.ID,
		Source:       e.Source,
		Target:       e.Target,
		SourceHandle: e.SourceHandle,
		TargetHandle: e.TargetHandle,
		Kind:         e.Kind,
	}
}

func (e Edge) canonicalJSON() string {
	b, _ := json.Marshal(e.canonical())
	return string(b)
}

// CanonicalEqual reports whether two graphs are equal under canonical form
// (spec.md §8: "the resulting graph is byte-identical (under canonical
// form) to the snapshot recorded at v").
func CanonicalEqual(a, b Graph) bool {
	d := Compare(a, b)
	return len(d.NodesAdded) == 0 && len(d.NodesRemoved) == 0 && len(d.NodesModified) == 0 &&
		len(d.EdgesAdded) == 0 && len(d.EdgesRemoved) == 0 && len(d.EdgesModified) == 0
}

// ModifiedNodePair is a (before, after) pair keyed by node id whose
// canonical form differs.
type ModifiedNodePair struct {
	Before Node
	After  Node
}

// ModifiedEdgePair is the edge analogue of ModifiedNodePair.
type ModifiedEdgePair struct {
	Before Edge
	After  Edge
}

// Diff is the result of Compare (spec.md §4.1).
type Diff struct {
	NodesAdded    []Node
	NodesRemoved  []Node
	NodesModified []ModifiedNodePair

	EdgesAdded    []Edge
	EdgesRemoved  []Edge
	EdgesModified []ModifiedEdgePair
}

// Compare computes the deterministic, id-ascending diff between two graph
// snapshots per spec.md §4.1's algorithm.
func Compare(from, to Graph) Diff {
	var d Diff

	fromNodes := indexNodes(from.Nodes)
	toNodes := indexNodes(to.Nodes)

	for _, id := range sortedKeys(toNodes) {
		if _, ok := fromNodes[id]; !ok {
			d.NodesAdded = append(d.NodesAdded, toNodes[id])
		}
	}
	for _, id := range sortedKeys(fromNodes) {
		if _, ok := toNodes[id]; !ok {
			d.NodesRemoved = append(d.NodesRemoved, fromNodes[id])
		}
	}
	for _, id := range sortedKeys(fromNodes) {
		after, ok := toNodes[id]
		if !ok {
			continue
		}
		before := fromNodes[id]
		if before.canonicalJSON() != after.canonicalJSON() {
			d.NodesModified = append(d.NodesModified, ModifiedNodePair{Before: before, After: after})
		}
	}

	fromEdges := indexEdges(from.Edges)
	toEdges := indexEdges(to.Edges)

	for _, id := range sortedKeys(toEdges) {
		if _, ok := fromEdges[id]; !ok {
			d.EdgesAdded = append(d.EdgesAdded, toEdges[id])
		}
	}
	for _, id := range sortedKeys(fromEdges) {
		if _, ok := toEdges[id]; !ok {
			d.EdgesRemoved = append(d.EdgesRemoved, fromEdges[id])
		}
	}
	for _, id := range sortedKeys(fromEdges) {
		after, ok := toEdges[id]
		if !ok {
			continue
		}
		before := fromEdges[id]
		if before.canonicalJSON() != after.canonicalJSON() {
			d.EdgesModified = append(d.EdgesModified, ModifiedEdgePair{Before: before, After: after})
		}
	}

	return d
}

func indexNodes(nodes []Node) map[string]Node {
	m := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		m[n.ID] = n
	}
	return m
}

func indexEdges(edges []Edge) map[string]Edge {
	m := make(map[string]Edge, len(edges))
	for _, e := range edges {
		m[e.ID] = e
	}
	return m
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
