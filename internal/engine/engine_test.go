package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolforge/agentgraph/internal/engine/emit"
	"github.com/toolforge/agentgraph/internal/engine/model"
	"github.com/toolforge/agentgraph/internal/workflow"
)

// recordingEmitter collects every event for assertions, mirroring the
// teacher's test-only recording emitter used across graph/engine_test.go.
type recordingEmitter struct {
	mu     sync.Mutex
	events []emit.Event
}

func (r *recordingEmitter) Emit(e emit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}
func (r *recordingEmitter) EmitBatch(context.Context, []emit.Event) error { return nil }
func (r *recordingEmitter) Flush(context.Context) error                  { return nil }

func (r *recordingEmitter) kinds(nodeID string) []emit.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []emit.Kind
	for _, e := range r.events {
		if e.NodeID == nodeID {
			out = append(out, e.Kind)
		}
	}
	return out
}

// fakeChatModel fails its first failUntil calls then succeeds, used to
// exercise the LLM node's retry path without a real provider.
type fakeChatModel struct {
	mu        sync.Mutex
	calls     int
	failUntil int
	reply     string
}

func (f *fakeChatModel) Chat(ctx context.Context, messages []model.Message, opts model.ChatOptions) (model.ChatOut, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failUntil {
		return model.ChatOut{}, errors.New("provider unavailable")
	}
	return model.ChatOut{Text: f.reply}, nil
}

func linearGraph() workflow.Graph {
	return workflow.Graph{
		Nodes: []workflow.Node{
			{ID: "in", Type: workflow.NodeInput},
			{ID: "xf", Type: workflow.NodeTransform, TransformKind: workflow.TransformPassthrough},
			{ID: "out", Type: workflow.NodeOutput, Format: workflow.OutputAuto},
		},
		Edges: []workflow.Edge{
			{ID: "e1", Source: "in", Target: "xf", Kind: workflow.EdgeData},
			{ID: "e2", Source: "xf", Target: "out", Kind: workflow.EdgeData},
		},
	}
}

func TestEngine_Run_LinearPipelineSucceeds(t *testing.T) {
	e := NewEngine(&Evaluators{Emitter: emit.NewNull()}, nil, emit.NewNull(), 4, 8, 1)
	state, err := e.Run(context.Background(), "run-1", linearGraph(), map[string]interface{}{"in": "hello"})
	require.NoError(t, err)

	out, ok := state.Get("out")
	require.True(t, ok)
	assert.Equal(t, "hello", out)
}

func TestEngine_Run_EmitsStartedAndCompletedPerNode(t *testing.T) {
	rec := &recordingEmitter{}
	e := NewEngine(&Evaluators{Emitter: rec}, nil, rec, 4, 8, 1)
	_, err := e.Run(context.Background(), "run-2", linearGraph(), map[string]interface{}{"in": "x"})
	require.NoError(t, err)

	assert.Contains(t, rec.kinds("out"), emit.KindStarted)
	assert.Contains(t, rec.kinds("out"), emit.KindCompleted)
}

func TestEngine_Run_LLMNodeRetriesThenSucceeds(t *testing.T) {
	chat := &fakeChatModel{failUntil: 2, reply: "recovered"}
	g := workflow.Graph{
		Nodes: []workflow.Node{
			{ID: "llm", Type: workflow.NodeLLM, Prompt: "hi"},
		},
	}
	e := NewEngine(&Evaluators{Chat: chat, Emitter: emit.NewNull()}, nil, emit.NewNull(), 1, 8, 1)
	state, err := e.Run(context.Background(), "run-3", g, nil)
	require.NoError(t, err)

	out, ok := state.Get("llm")
	require.True(t, ok)
	assert.Equal(t, "recovered", out)
	assert.Equal(t, 3, chat.calls)
}

func TestEngine_Run_UncaughtFailureStopsRunWithoutErrorEdge(t *testing.T) {
	chat := &fakeChatModel{failUntil: 1000}
	g := workflow.Graph{
		Nodes: []workflow.Node{
			{ID: "llm", Type: workflow.NodeLLM, Prompt: "hi"},
		},
	}
	e := NewEngine(&Evaluators{Chat: chat, Emitter: emit.NewNull()}, nil, emit.NewNull(), 1, 8, 1)
	_, err := e.Run(context.Background(), "run-4", g, nil)
	require.Error(t, err)
}

func TestEngine_Run_ErrorEdgeRoutesPastFailure(t *testing.T) {
	chat := &fakeChatModel{failUntil: 1000}
	g := workflow.Graph{
		Nodes: []workflow.Node{
			{ID: "llm", Type: workflow.NodeLLM, Prompt: "hi"},
			{ID: "fallback", Type: workflow.NodeOutput, Format: workflow.OutputAuto},
		},
		Edges: []workflow.Edge{
			{ID: "e1", Source: "llm", Target: "fallback", Kind: workflow.EdgeError},
		},
	}
	e := NewEngine(&Evaluators{Chat: chat, Emitter: emit.NewNull()}, nil, emit.NewNull(), 1, 8, 1)
	state, err := e.Run(context.Background(), "run-5", g, nil)
	require.NoError(t, err)

	_, ran := state.Get("fallback")
	assert.True(t, ran)
}

func TestEngine_Run_ReentryCapExceededOnUnboundedCycle(t *testing.T) {
	g := workflow.Graph{
		Nodes: []workflow.Node{
			{ID: "seed", Type: workflow.NodeInput},
			{ID: "a", Type: workflow.NodeTransform, TransformKind: workflow.TransformPassthrough},
			{ID: "b", Type: workflow.NodeTransform, TransformKind: workflow.TransformPassthrough},
		},
		Edges: []workflow.Edge{
			{ID: "e0", Source: "seed", Target: "a", Kind: workflow.EdgeControl},
			{ID: "e1", Source: "a", Target: "b", Kind: workflow.EdgeControl},
			{ID: "e2", Source: "b", Target: "a", Kind: workflow.EdgeControl},
		},
	}
	e := NewEngine(&Evaluators{Emitter: emit.NewNull()}, nil, emit.NewNull(), 1, 3, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := e.Run(ctx, "run-6", g, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reentry cap")
}
