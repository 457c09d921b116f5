package workflow

import (
	"fmt"

	"github.com/toolforge/agentgraph/internal/apperr"
)

// Validate enforces the graph invariants of spec.md §3:
//   - node ids unique within the graph
//   - edge ids unique within the graph
//   - edges reference existing nodes
//   - no self-loops (source != target)
//   - multiple edges between the same pair only with differing handles
//   - any cycle must contain at least one control edge
//
// Failures are reported node- or edge-localized, per spec.md §4.1's
// failure semantics, mirroring the teacher's *NodeError{NodeID} shape
// (graph/node.go) generalized to cover edges too.
func (g Graph) Validate() error {
	nodeIDs := make(map[string]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.ID == "" {
			return apperr.New(apperr.KindValidation, "node id must not be empty")
		}
		if _, dup := nodeIDs[n.ID]; dup {
			return apperr.New(apperr.KindValidation, fmt.Sprintf("duplicate node id %q", n.ID)).WithNode(n.ID, 0)
		}
		nodeIDs[n.ID] = struct{}{}
		if err := n.validateShape(); err != nil {
			return err
		}
	}

	edgeIDs := make(map[string]struct{}, len(g.Edges))
	type pairKey struct{ source, target, sh, th string }
	seenPairs := make(map[pairKey]struct{}, len(g.Edges))

	for _, e := range g.Edges {
		if e.ID == "" {
			return apperr.New(apperr.KindValidation, "edge id must not be empty")
		}
		if _, dup := edgeIDs[e.ID]; dup {
			return apperr.New(apperr.KindValidation, fmt.Sprintf("duplicate edge id %q", e.ID))
		}
		edgeIDs[e.ID] = struct{}{}

		if _, ok := nodeIDs[e.Source]; !ok {
			return apperr.New(apperr.KindValidation, fmt.Sprintf("edge %q references unknown source node %q", e.ID, e.Source))
		}
		if _, ok := nodeIDs[e.Target]; !ok {
			return apperr.New(apperr.KindValidation, fmt.Sprintf("edge %q references unknown target node %q", e.ID, e.Target))
		}
		if e.Source == e.Target {
			return apperr.New(apperr.KindValidation, fmt.Sprintf("edge %q is a self-loop on node %q", e.ID, e.Source))
		}

		key := pairKey{e.Source, e.Target, e.SourceHandle, e.TargetHandle}
		if _, dup := seenPairs[key]; dup {
			return apperr.New(apperr.KindValidation, fmt.Sprintf("duplicate edge between %q and %q on the same handles", e.Source, e.Target))
		}
		seenPairs[key] = struct{}{}

		switch e.Kind {
		case EdgeData, EdgeControl, EdgeError:
		default:
			return apperr.New(apperr.KindValidation, fmt.Sprintf("edge %q has unknown kind %q", e.ID, e.Kind))
		}
	}

	if err := g.validateCycles(); err != nil {
		return err
	}
	if err := g.validateConnectivity(); err != nil {
		return err
	}
	return nil
}

func (n Node) validateShape() error {
	switch n.Type {
	case NodeInput:
		switch n.InputType {
		case InputText, InputNumber, InputJSON, InputFile:
		default:
			return apperr.New(apperr.KindValidation, fmt.Sprintf("input node %q has invalid input_type %q", n.ID, n.InputType)).WithNode(n.ID, 0)
		}
	case NodeLLM:
		if n.Prompt == "" {
			return apperr.New(apperr.KindValidation, fmt.Sprintf("llm node %q requires a prompt", n.ID)).WithNode(n.ID, 0)
		}
		if n.Temperature < 0 || n.Temperature > 2 {
			return apperr.New(apperr.KindValidation, fmt.Sprintf("llm node %q temperature must be within [0,2]", n.ID)).WithNode(n.ID, 0)
		}
	case NodeSkill:
		if n.SkillID == "" {
			return apperr.New(apperr.KindValidation, fmt.Sprintf("skill node %q requires skill_id", n.ID)).WithNode(n.ID, 0)
		}
	case NodeTransform:
		switch n.TransformKind {
		case TransformPassthrough, TransformExtract, TransformTemplate, TransformJSONParse, TransformJSONStringify, TransformArrayJoin:
		default:
			return apperr.New(apperr.KindValidation, fmt.Sprintf("transform node %q has invalid kind %q", n.ID, n.TransformKind)).WithNode(n.ID, 0)
		}
	case NodeOutput:
		switch n.Format {
		case OutputAuto, OutputText, OutputJSON, OutputMarkdown:
		default:
			return apperr.New(apperr.KindValidation, fmt.Sprintf("output node %q has invalid format %q", n.ID, n.Format)).WithNode(n.ID, 0)
		}
	default:
		return apperr.New(apperr.KindValidation, fmt.Sprintf("node %q has unknown type %q", n.ID, n.Type)).WithNode(n.ID, 0)
	}
	return nil
}

// adjEdge is a forward-dependency-subgraph edge used by cycle detection.
type adjEdge struct {
	target string
	kind   EdgeKind
}

// validateCycles ensures every cycle in the graph's forward dependency
// subgraph (spec.md §4.3) contains at least one control edge, by checking
// that the data edges alone form no cycle. Pure-data cycles would deadlock
// the scheduler since a node can never become ready before its own
// (transitive) data dependency completes.
func (g Graph) validateCycles() error {
	adjacency := make(map[string][]adjEdge, len(g.Nodes))
	for _, e := range g.Edges {
		if e.Kind != EdgeData {
			continue
		}
		adjacency[e.Source] = append(adjacency[e.Source], adjEdge{target: e.Target, kind: e.Kind})
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		color[n.ID] = white
	}

	var visit func(node string) error

	visit = func(node string) error {
		color[node] = gray
		for _, next := range adjacency[node] {
			switch color[next.target] {
			case white:
				if err := visit(next.target); err != nil {
					return err
				}
			case gray:
				// A back-edge to `next.target` over data edges alone
				// closes a cycle that has no control edge on it.
				return apperr.New(apperr.KindValidation, fmt.Sprintf("cycle through node %q has no control edge", node))
			case black:
				// already fully explored, no cycle through this edge
			}
		}
		color[node] = black
		return nil
	}

	for _, n := range g.Nodes {
		if color[n.ID] == white {
			if err := visit(n.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// cycleHasControlEdge walks forward from `from` to `to` (the cycle body,
// since `to`->`from` is the closing back-edge already checked by the
// caller) via BFS, reporting whether any control edge is reachable from
// `from` without passing through `to`; the edge need not lie on a from->to
// path.
func cycleHasControlEdge(adjacency map[string][]adjEdge, from, to string) bool {
	visited := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[cur] {
			if next.kind == EdgeControl {
				return true
			}
			if next.target == to {
				continue
			}
			if !visited[next.target] {
				visited[next.target] = true
				queue = append(queue, next.target)
			}
		}
	}
	return false
}

// validateConnectivity enforces spec.md §4.3's compile-time checks: every
// non-Input node has at least one incoming data/control edge, and every
// non-Output terminal has at least one outgoing edge.
func (g Graph) validateConnectivity() error {
	hasIncoming := make(map[string]bool, len(g.Nodes))
	hasOutgoing := make(map[string]bool, len(g.Nodes))
	for _, e := range g.Edges {
		hasOutgoing[e.Source] = true
		if e.Kind != EdgeError {
			hasIncoming[e.Target] = true
		}
	}

	for _, n := range g.Nodes {
		if n.Type != NodeInput && !hasIncoming[n.ID] {
			return apperr.New(apperr.KindValidation, fmt.Sprintf("node %q has no incoming data or control edge", n.ID)).WithNode(n.ID, 0)
		}
		if n.Type != NodeOutput && !hasOutgoing[n.ID] {
			return apperr.New(apperr.KindValidation, fmt.Sprintf("node %q is a non-output terminal with no outgoing edge", n.ID)).WithNode(n.ID, 0)
		}
	}
	return nil
}
