package automation

import (
	"context"
	"fmt"

	"github.com/toolforge/agentgraph/internal/apperr"
)

// TaskKind names the handler a Task's Kind field dispatches to.
const (
	TaskDiscover = "discover"
	TaskEnrich   = "enrich"
	TaskIndex    = "index"
)

// Handler executes one Task.
type Handler func(ctx context.Context, t Task) error

// Registry resolves a Task's Kind to the Handler that runs it, generalizing
// the teacher's nodeID-keyed lookup (graph.Engine.Add / e.nodes[nodeID]) to
// task kinds instead of graph nodes.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler for kind, erroring if one is already registered.
func (r *Registry) Register(kind string, h Handler) error {
	if _, exists := r.handlers[kind]; exists {
		return apperr.New(apperr.KindConflict, fmt.Sprintf("task kind %q already registered", kind))
	}
	r.handlers[kind] = h
	return nil
}

// Dispatch runs the handler registered for t.Kind.
func (r *Registry) Dispatch(ctx context.Context, t Task) error {
	h, exists := r.handlers[t.Kind]
	if !exists {
		return apperr.New(apperr.KindValidation, fmt.Sprintf("no handler registered for task kind %q", t.Kind))
	}
	return h(ctx, t)
}
