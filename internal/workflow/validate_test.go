package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolforge/agentgraph/internal/apperr"
)

func simpleGraph() Graph {
	return Graph{
		Nodes: []Node{
			{ID: "in", Type: NodeInput, InputType: InputText},
			{ID: "llm", Type: NodeLLM, Prompt: "summarize {{in}}", Temperature: 0.7},
			{ID: "out", Type: NodeOutput, Format: OutputText},
		},
		Edges: []Edge{
			{ID: "e1", Source: "in", Target: "llm", Kind: EdgeData},
			{ID: "e2", Source: "llm", Target: "out", Kind: EdgeData},
		},
	}
}

func TestGraph_Validate_Valid(t *testing.T) {
	g := simpleGraph()
	require.NoError(t, g.Validate())
}

func TestGraph_Validate_DuplicateNodeID(t *testing.T) {
	g := simpleGraph()
	g.Nodes = append(g.Nodes, Node{ID: "in", Type: NodeInput, InputType: InputText})
	err := g.Validate()
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestGraph_Validate_SelfLoop(t *testing.T) {
	g := simpleGraph()
	g.Edges = append(g.Edges, Edge{ID: "e3", Source: "llm", Target: "llm", Kind: EdgeData})
	err := g.Validate()
	require.Error(t, err)
}

func TestGraph_Validate_DuplicateEdgeSameHandles(t *testing.T) {
	g := simpleGraph()
	g.Edges = append(g.Edges, Edge{ID: "e3", Source: "in", Target: "llm", Kind: EdgeData})
	err := g.Validate()
	require.Error(t, err)
}

func TestGraph_Validate_DuplicateEdgeDifferentHandlesAllowed(t *testing.T) {
	g := simpleGraph()
	g.Nodes = append(g.Nodes, Node{ID: "llm2", Type: NodeLLM, Prompt: "x", Temperature: 0.5})
	g.Edges = append(g.Edges,
		Edge{ID: "e3", Source: "in", Target: "llm2", SourceHandle: "a", Kind: EdgeData},
		Edge{ID: "e4", Source: "llm2", Target: "llm", SourceHandle: "b", Kind: EdgeData},
		Edge{ID: "e5", Source: "in", Target: "llm", SourceHandle: "a", Kind: EdgeData},
	)
	require.NoError(t, g.Validate())
}

func TestGraph_Validate_UnknownEdgeEndpoint(t *testing.T) {
	g := simpleGraph()
	g.Edges = append(g.Edges, Edge{ID: "e3", Source: "in", Target: "ghost", Kind: EdgeData})
	require.Error(t, g.Validate())
}

func TestGraph_Validate_InvalidNodeShape(t *testing.T) {
	t.Run("llm missing prompt", func(t *testing.T) {
		g := simpleGraph()
		g.Nodes[1].Prompt = ""
		require.Error(t, g.Validate())
	})
	t.Run("llm temperature out of range", func(t *testing.T) {
		g := simpleGraph()
		g.Nodes[1].Temperature = 3
		require.Error(t, g.Validate())
	})
	t.Run("skill missing skill_id", func(t *testing.T) {
		g := simpleGraph()
		g.Nodes[1] = Node{ID: "llm", Type: NodeSkill}
		require.Error(t, g.Validate())
	})
}

func TestGraph_Validate_CycleWithoutControlEdgeRejected(t *testing.T) {
	g := Graph{
		Nodes: []Node{
			{ID: "in", Type: NodeInput, InputType: InputText},
			{ID: "a", Type: NodeTransform, TransformKind: TransformPassthrough},
			{ID: "b", Type: NodeTransform, TransformKind: TransformPassthrough},
		},
		Edges: []Edge{
			{ID: "e1", Source: "in", Target: "a", Kind: EdgeData},
			{ID: "e2", Source: "a", Target: "b", Kind: EdgeData},
			{ID: "e3", Source: "b", Target: "a", Kind: EdgeData},
		},
	}
	err := g.Validate()
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestGraph_Validate_CycleWithControlEdgeAllowed(t *testing.T) {
	g := Graph{
		Nodes: []Node{
			{ID: "in", Type: NodeInput, InputType: InputText},
			{ID: "a", Type: NodeTransform, TransformKind: TransformPassthrough},
			{ID: "b", Type: NodeTransform, TransformKind: TransformPassthrough},
			{ID: "out", Type: NodeOutput, Format: OutputText},
		},
		Edges: []Edge{
			{ID: "e1", Source: "in", Target: "a", Kind: EdgeData},
			{ID: "e2", Source: "a", Target: "b", Kind: EdgeData},
			{ID: "e3", Source: "b", Target: "a", Kind: EdgeControl},
			{ID: "e4", Source: "b", Target: "out", Kind: EdgeData},
		},
	}
	require.NoError(t, g.Validate())
}

func TestGraph_Validate_Connectivity(t *testing.T) {
	t.Run("non-input node with no incoming edge", func(t *testing.T) {
		g := simpleGraph()
		g.Edges = g.Edges[1:] // drop in->llm, leaving llm with no incoming edge
		require.Error(t, g.Validate())
	})
	t.Run("non-output node with no outgoing edge", func(t *testing.T) {
		g := simpleGraph()
		g.Edges = g.Edges[:1] // drop llm->out, leaving llm with no outgoing edge
		require.Error(t, g.Validate())
	})
}

func TestGraph_Validate_ErrorEdgeExcludedFromConnectivityAndCycles(t *testing.T) {
	// An error edge back to an upstream node must not itself satisfy the
	// "every cycle has a control edge" rule nor count as normal connectivity.
	g := simpleGraph()
	g.Edges = append(g.Edges, Edge{ID: "e3", Source: "llm", Target: "in", Kind: EdgeError})
	require.NoError(t, g.Validate())
}
