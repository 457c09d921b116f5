package execution

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/toolforge/agentgraph/internal/engine"
	"github.com/toolforge/agentgraph/internal/engine/emit"
	"github.com/toolforge/agentgraph/internal/workflow"
)

// Runner starts an engine.Engine run detached from the HTTP request that
// triggered it: the Execution row is created in StatusPending before the
// goroutine starts, so a client polling GET /executions/{id} immediately
// after the trigger call always finds a row, flipped to StatusRunning once
// the goroutine actually admits it into the engine, and finalized once Run
// returns. This is the async counterpart spec.md §6's SSE streaming
// contract requires — the HTTP handler returns as soon as Start does, and
// progress is observed through the Hub, not the handler's own goroutine.
type Runner struct {
	Store  *Store
	Engine *engine.Engine
	Hub    *emit.Hub
	Log    *zap.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func NewRunner(store *Store, eng *engine.Engine, hub *emit.Hub, log *zap.Logger) *Runner {
	return &Runner{
		Store:   store,
		Engine:  eng,
		Hub:     hub,
		Log:     log.Named("execution_runner"),
		running: make(map[string]context.CancelFunc),
	}
}

// Cancel signals the in-flight run for executionID, if this process is the
// one running it, the "in-flight node evaluations are signalled" half of
// spec.md §4.3's cancellation contract (the Store-level status flip is the
// other half, applied by the caller regardless of whether a local run was
// found — the run may belong to a different process instance). Reports
// whether a local run was found and signalled.
func (r *Runner) Cancel(executionID string) bool {
	r.mu.Lock()
	cancel, ok := r.running[executionID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// streamingGate wraps a run's emitter chain and marks the execution
// streaming the first time a token event passes through, the "first-emit
// -> streaming" transition of spec.md §4.3. An event without a RunID (the
// LLM evaluator's token events, which do not know the execution id) is
// stamped with this run's id; other events pass through unchanged. The
// transition only ever fires once per run.
type streamingGate struct {
	store *Store
	id    string
	next  emit.Emitter
	once  sync.Once
}

func (g *streamingGate) Emit(event emit.Event) {
	if event.RunID == "" {
		event.RunID = g.id
	}
	if event.Kind == emit.KindToken {
		g.once.Do(func() {
			_, _ = g.store.MarkStreaming(context.Background(), g.id)
		})
	}
	g.next.Emit(event)
}

func (g *streamingGate) EmitBatch(ctx context.Context, events []emit.Event) error {
	return g.next.EmitBatch(ctx, events)
}

func (g *streamingGate) Flush(ctx context.Context) error { return g.next.Flush(ctx) }

var _ emit.Emitter = (*streamingGate)(nil)

// Start creates the Execution row, then launches the run in a background
// goroutine rooted in its own cancellable context derived from
// context.Background() (not the request context, which is cancelled the
// moment the handler returns) and returns immediately. The cancel func is
// kept so a later Cancel call can signal the run without tearing down the
// whole process.
func (r *Runner) Start(ctx context.Context, workflowID string, workflowVersion int, g workflow.Graph, triggerType, createdBy string, input map[string]interface{}) (Execution, error) {
	exec, err := r.Store.Create(ctx, workflowID, workflowVersion, triggerType, createdBy, input)
	if err != nil {
		return Execution{}, err
	}

	// Every run gets its own Evaluators/Engine value (shallow copies) with
	// Emitter swapped to a per-run fan-out: the run's StepEvents must reach
	// this Execution's Store row and SSE subscribers in addition to the
	// process-wide zap/otel sink every run shares. streamingGate sits in
	// front of that fan-out so the first token emitted flips the row's
	// status from running to streaming (spec.md §4.3).
	runEmitter := &streamingGate{
		store: r.Store,
		id:    exec.ID,
		next:  emit.NewMulti(NewStoreEmitter(r.Store, r.Log), r.Hub.AsEmitter(), r.Engine.Emitter),
	}
	eng := *r.Engine
	eng.Emitter = runEmitter
	if r.Engine.Evaluators != nil {
		evaluators := *r.Engine.Evaluators
		evaluators.Emitter = runEmitter
		eng.Evaluators = &evaluators
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.running[exec.ID] = cancel
	r.mu.Unlock()

	go r.run(runCtx, cancel, exec.ID, workflowID, &eng, g, input)

	return exec, nil
}

func (r *Runner) run(runCtx context.Context, cancel context.CancelFunc, executionID, workflowID string, eng *engine.Engine, g workflow.Graph, input map[string]interface{}) {
	defer r.Hub.CloseRun(executionID)
	defer cancel()
	defer func() {
		r.mu.Lock()
		delete(r.running, executionID)
		r.mu.Unlock()
	}()

	if _, err := r.Store.MarkRunning(context.Background(), executionID); err != nil {
		r.Log.Warn("failed to admit execution into running state",
			zap.String("execution_id", executionID),
			zap.String("workflow_id", workflowID),
			zap.Error(err),
		)
	}

	state, err := eng.Run(runCtx, executionID, g, input)

	status := StatusCompleted
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
		if errors.Is(err, context.Canceled) {
			status = StatusCancelled
		} else {
			status = StatusFailed
		}
	}

	var output map[string]interface{}
	if state != nil {
		output = state.Snapshot()
	}

	// A cancelled run's runCtx is already Done; finalizing must not inherit
	// that cancellation or the write would fail against most db drivers.
	if cerr := r.Store.Complete(context.Background(), executionID, status, output, errMsg); cerr != nil {
		r.Log.Error("failed to finalize execution",
			zap.String("execution_id", executionID),
			zap.String("workflow_id", workflowID),
			zap.Error(cerr),
		)
	}
}
