package execution

import (
	"context"

	"go.uber.org/zap"

	"github.com/toolforge/agentgraph/internal/engine/emit"
)

// StoreEmitter persists every emit.Event to step_events, giving a run's
// step log a durable home beyond the in-process emit.Hub's history (which
// is lost on restart). It mirrors emit.ZapEmitter's shape but writes rows
// instead of log lines, and is meant to be combined with ZapEmitter and
// Hub.AsEmitter() under one emit.Multi.
type StoreEmitter struct {
	store *Store
	log   *zap.Logger
}

func NewStoreEmitter(store *Store, log *zap.Logger) *StoreEmitter {
	return &StoreEmitter{store: store, log: log.Named("execution_store")}
}

// Emit has no error return in the Emitter interface, so a write failure is
// logged rather than propagated — matching the contract's "must not block
// the scheduler" rule: losing one durable copy of an event never stops the
// run, since the SSE hub still has it for live subscribers.
func (s *StoreEmitter) Emit(event emit.Event) {
	ctx := context.Background()
	if err := s.store.RecordEvent(ctx, StepEvent{
		ExecutionID: event.RunID,
		Seq:         event.Seq,
		NodeID:      event.NodeID,
		Kind:        string(event.Kind),
		Payload:     event.Payload,
		At:          event.At,
	}); err != nil {
		s.log.Warn("record step event failed", zap.String("execution_id", event.RunID), zap.Int("seq", event.Seq), zap.Error(err))
	}
}

func (s *StoreEmitter) EmitBatch(ctx context.Context, events []emit.Event) error {
	for _, e := range events {
		if err := s.store.RecordEvent(ctx, StepEvent{
			ExecutionID: e.RunID,
			Seq:         e.Seq,
			NodeID:      e.NodeID,
			Kind:        string(e.Kind),
			Payload:     e.Payload,
			At:          e.At,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *StoreEmitter) Flush(context.Context) error { return nil }

var _ emit.Emitter = (*StoreEmitter)(nil)
