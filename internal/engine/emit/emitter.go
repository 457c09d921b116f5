package emit

import "context"

// Emitter receives execution events. Implementations must not block the
// scheduler for long; the same non-blocking, resilient, thread-safe
// contract as the teacher's graph/emit.Emitter applies here.
type Emitter interface {
	Emit(event Event)
	EmitBatch(ctx context.Context, events []Event) error
	Flush(ctx context.Context) error
}

// Multi fans a single Emit out to several emitters, the same role the
// teacher reserves for a "multi-emit" composition in graph/emit's doc
// comments, made concrete here since the engine needs to feed both the
// structured logger and the per-run SSE hub simultaneously.
type Multi struct {
	Emitters []Emitter
}

func NewMulti(emitters ...Emitter) *Multi {
	return &Multi{Emitters: emitters}
}

func (m *Multi) Emit(event Event) {
	for _, e := range m.Emitters {
		e.Emit(event)
	}
}

func (m *Multi) EmitBatch(ctx context.Context, events []Event) error {
	var firstErr error
	for _, e := range m.Emitters {
		if err := e.EmitBatch(ctx, events); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Multi) Flush(ctx context.Context) error {
	var firstErr error
	for _, e := range m.Emitters {
		if err := e.Flush(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
