package emit

import (
	"context"

	"go.uber.org/zap"
)

// ZapEmitter bridges execution events into the service's structured logger,
// replacing the teacher's graph/emit.LogEmitter (a bare io.Writer sink)
// with the zap-based ambient logging stack chosen for this service
// (see SPEC_FULL.md's AMBIENT STACK section).
type ZapEmitter struct {
	log *zap.Logger
}

func NewZapEmitter(log *zap.Logger) *ZapEmitter {
	return &ZapEmitter{log: log.Named("execution")}
}

func (z *ZapEmitter) Emit(event Event) {
	z.log.Info("step_event",
		zap.String("execution_id", event.RunID),
		zap.Int("seq", event.Seq),
		zap.String("node_id", event.NodeID),
		zap.String("kind", string(event.Kind)),
		zap.Time("at", event.At),
		zap.Any("payload", event.Payload),
	)
}

func (z *ZapEmitter) EmitBatch(_ context.Context, events []Event) error {
	for _, e := range events {
		z.Emit(e)
	}
	return nil
}

func (z *ZapEmitter) Flush(_ context.Context) error {
	return z.log.Sync()
}
