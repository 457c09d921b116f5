package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/toolforge/agentgraph/internal/apperr"
	"github.com/toolforge/agentgraph/internal/engine/emit"
	"github.com/toolforge/agentgraph/internal/workflow"
)

// Engine walks one workflow.Graph to completion: it gathers each ready
// node's upstream inputs, evaluates it, merges the result into a shared
// RunState, checkpoints progress, and emits a StepEvent per transition. It
// generalizes the teacher's Engine[S] (graph/engine.go) — which schedules an
// app-defined generic Node[S]/Edge[S] graph — into a scheduler fixed to this
// service's five node kinds and its Data/Control/Error edge vocabulary.
type Engine struct {
	Evaluators      *Evaluators
	Checkpoints     *CheckpointStore
	Emitter         emit.Emitter
	MaxConcurrency  int
	ReentryCap      int
	CheckpointEvery int

	// Metrics is optional; a nil Metrics makes every recording call a no-op,
	// so callers that don't care about Prometheus export nothing extra.
	Metrics *Metrics
}

// NewEngine builds an Engine, applying the teacher's defaulting pattern
// (graph/engine.go's Options) for zero-valued tuning knobs.
func NewEngine(evaluators *Evaluators, checkpoints *CheckpointStore, emitter emit.Emitter, maxConcurrency, reentryCap, checkpointEvery int) *Engine {
	if maxConcurrency <= 0 {
		maxConcurrency = 8
	}
	if reentryCap <= 0 {
		reentryCap = 32
	}
	if checkpointEvery <= 0 {
		checkpointEvery = 1
	}
	if emitter == nil {
		emitter = emit.NewMulti()
	}
	return &Engine{
		Evaluators:      evaluators,
		Checkpoints:     checkpoints,
		Emitter:         emitter,
		MaxConcurrency:  maxConcurrency,
		ReentryCap:      reentryCap,
		CheckpointEvery: checkpointEvery,
	}
}

// outEdge pairs a graph edge with its position among its source node's
// outgoing edges — the (parentNodeID, edgeIndex) pair computeOrderKey
// hashes, reproducing the teacher's deterministic fan-out ordering.
type outEdge struct {
	workflow.Edge
	index int
}

// run holds the mutable scheduling state for one Engine.Run call. A fresh
// run is built per call so concurrent executions of the same workflow never
// share state, mirroring the teacher's per-invocation runConcurrent locals.
type run struct {
	nodes    map[string]workflow.Node
	outEdges map[string][]outEdge

	mu       sync.Mutex
	pending  map[string]int // remaining incoming Data edges, gates join nodes
	inDegree map[string]int // incoming Data+Control edges, used only to find true root nodes
	reentry  map[string]int
	failed   error

	state       *RunState
	frontier    *Frontier
	outstanding int32
	inflight    int32
	seq         int32
	stepID      int32
	rng         *rand.Rand
}

// Run schedules g's nodes to completion starting from input (keyed by Input
// node id), returning the accumulated RunState. A non-nil error means the
// run terminated via an uncaught node failure (no matching Error edge) or a
// LoopBudgetExceeded reentry cap violation; RunState still holds whatever
// partial progress was made, matching the teacher's Run returning (state,
// err) pairs rather than discarding partial state on failure.
func (e *Engine) Run(ctx context.Context, runID string, g workflow.Graph, input map[string]interface{}) (*RunState, error) {
	r := &run{
		nodes:    make(map[string]workflow.Node, len(g.Nodes)),
		outEdges: make(map[string][]outEdge),
		pending:  make(map[string]int, len(g.Nodes)),
		inDegree: make(map[string]int, len(g.Nodes)),
		reentry:  make(map[string]int, len(g.Nodes)),
		state:    NewRunState(input),
		frontier: NewFrontier(4096),
		rng:      rand.New(rand.NewSource(RNGSeedFor(runID))),
	}
	for _, n := range g.Nodes {
		r.nodes[n.ID] = n
	}
	for _, edge := range g.Edges {
		idx := len(r.outEdges[edge.Source])
		r.outEdges[edge.Source] = append(r.outEdges[edge.Source], outEdge{Edge: edge, index: idx})
		switch edge.Kind {
		case workflow.EdgeData:
			r.pending[edge.Target]++
			r.inDegree[edge.Target]++
		case workflow.EdgeControl:
			r.inDegree[edge.Target]++
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// True roots are nodes with no incoming Data or Control edge at all.
	// A node reachable only via a Control edge (e.g. a loop body's second
	// half) is never a root — it runs exclusively when that edge fires,
	// which is what lets cyclic control flow terminate instead of firing
	// twice on the first pass.
	for idx, n := range g.Nodes {
		if r.inDegree[n.ID] == 0 {
			r.scheduleRoot(runCtx, n.ID, idx)
		}
	}
	if atomic.LoadInt32(&r.outstanding) == 0 {
		return r.state, apperr.New(apperr.KindValidation, "workflow has no runnable node")
	}

	var wg sync.WaitGroup
	for i := 0; i < e.MaxConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.worker(runCtx, runID, r, cancel)
		}()
	}
	wg.Wait()

	r.mu.Lock()
	err := r.failed
	r.mu.Unlock()
	return r.state, err
}

func (r *run) scheduleRoot(ctx context.Context, nodeID string, idx int) {
	atomic.AddInt32(&r.outstanding, 1)
	_ = r.frontier.Enqueue(ctx, WorkItem{
		StepID:       int(atomic.AddInt32(&r.stepID, 1)),
		OrderKey:     computeOrderKey("", idx),
		NodeID:       nodeID,
		ParentNodeID: "",
		EdgeIndex:    idx,
	})
}

// worker pulls one WorkItem at a time off the frontier until the run
// completes or its context is cancelled, mirroring the teacher's
// runConcurrent worker-pool loop (graph/engine.go).
func (e *Engine) worker(ctx context.Context, runID string, r *run, stop context.CancelFunc) {
	for {
		item, err := r.frontier.Dequeue(ctx)
		if err != nil {
			return
		}
		e.Metrics.setQueueDepth(r.frontier.Len())
		e.processNode(ctx, runID, r, item, stop)
		if atomic.AddInt32(&r.outstanding, -1) == 0 {
			stop()
			return
		}
	}
}

func (e *Engine) processNode(ctx context.Context, runID string, r *run, item WorkItem, stop context.CancelFunc) {
	r.mu.Lock()
	if r.failed != nil {
		r.mu.Unlock()
		e.emit(r, runID, item.NodeID, emit.KindSkipped, nil)
		return
	}
	r.reentry[item.NodeID]++
	count := r.reentry[item.NodeID]
	r.mu.Unlock()

	n, ok := r.nodes[item.NodeID]
	if !ok {
		e.fail(r, stop, apperr.New(apperr.KindExecution, fmt.Sprintf("unknown node %q in frontier", item.NodeID)))
		return
	}
	if count > e.ReentryCap {
		e.fail(r, stop, apperr.New(apperr.KindExecution, fmt.Sprintf("node %q exceeded reentry cap of %d", n.ID, e.ReentryCap)).WithCode("LoopBudgetExceeded").WithNode(n.ID, count))
		return
	}

	inputs := e.gatherInputs(r, n)
	e.emit(r, runID, n.ID, emit.KindStarted, map[string]interface{}{"attempt": count})

	atomic.AddInt32(&r.inflight, 1)
	e.Metrics.setInflight(int(atomic.LoadInt32(&r.inflight)))
	start := time.Now()
	out, err := e.evaluateWithRetry(ctx, r, n, inputs)
	atomic.AddInt32(&r.inflight, -1)
	e.Metrics.setInflight(int(atomic.LoadInt32(&r.inflight)))

	if err != nil {
		e.Metrics.recordStepLatency(n.ID, time.Since(start), "error")
		e.emit(r, runID, n.ID, emit.KindFailed, map[string]interface{}{"error": err.Error()})
		if !e.routeError(ctx, r, n) {
			e.fail(r, stop, err)
		}
		return
	}

	e.Metrics.recordStepLatency(n.ID, time.Since(start), "success")
	r.state.Set(n.ID, out)
	e.emit(r, runID, n.ID, emit.KindCompleted, map[string]interface{}{"output": out})
	e.maybeCheckpoint(ctx, r, runID)
	e.scheduleSuccessors(ctx, r, n)
}

// gatherInputs collects each upstream Data-edge source's recorded output,
// keyed by source node id — the shape every evaluator (node.go,
// transform.go) expects. Input nodes additionally see their own externally
// seeded value under their own id, since they have no upstream edge.
func (e *Engine) gatherInputs(r *run, n workflow.Node) map[string]interface{} {
	inputs := make(map[string]interface{})
	for srcID, oes := range r.outEdges {
		for _, oe := range oes {
			if oe.Target != n.ID || oe.Kind != workflow.EdgeData {
				continue
			}
			if v, ok := r.state.Get(srcID); ok {
				inputs[srcID] = v
			}
		}
	}
	if n.Type == workflow.NodeInput {
		if v, ok := r.state.Get(n.ID); ok {
			inputs[n.ID] = v
		}
	}
	return inputs
}

// evaluateWithRetry applies retryPolicyFor(n): LLM and Skill nodes retry
// with jittered exponential backoff on failure, every other kind evaluates
// exactly once, matching spec.md's "pure transforms never retry" rule.
func (e *Engine) evaluateWithRetry(ctx context.Context, r *run, n workflow.Node, inputs map[string]interface{}) (interface{}, error) {
	policy := retryPolicyFor(n)
	if policy == nil {
		return e.Evaluators.Evaluate(ctx, n, inputs)
	}

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		out, err := e.Evaluators.Evaluate(ctx, n, inputs)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if attempt == policy.MaxAttempts-1 {
			break
		}
		e.Metrics.incrementRetries(n.ID, "error")
		r.mu.Lock()
		delay := computeBackoff(attempt, policy.BaseDelay, policy.MaxDelay, r.rng)
		r.mu.Unlock()
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

// scheduleSuccessors fires n's outgoing Data and Control edges. Data edges
// are an AND-join: a target with several incoming Data edges waits for all
// of them before running once. Control edges are an unconditional trigger —
// each firing enqueues the target immediately regardless of any Data join
// it may also be waiting on, which is what lets a Control edge close a
// cycle back onto an earlier node instead of deadlocking against that
// node's own Data pending count.
func (e *Engine) scheduleSuccessors(ctx context.Context, r *run, n workflow.Node) {
	for _, oe := range r.outEdges[n.ID] {
		switch oe.Kind {
		case workflow.EdgeData:
			r.mu.Lock()
			r.pending[oe.Target]--
			ready := r.pending[oe.Target] == 0
			r.mu.Unlock()
			if !ready {
				continue
			}
		case workflow.EdgeControl:
			// always fires, no join.
		default:
			continue
		}
		e.enqueueFrom(ctx, r, n.ID, oe)
	}
}

func (e *Engine) enqueueFrom(ctx context.Context, r *run, parentID string, oe outEdge) {
	atomic.AddInt32(&r.outstanding, 1)
	item := WorkItem{
		StepID:       int(atomic.AddInt32(&r.stepID, 1)),
		OrderKey:     computeOrderKey(parentID, oe.index),
		NodeID:       oe.Target,
		ParentNodeID: parentID,
		EdgeIndex:    oe.index,
	}
	if err := r.frontier.Enqueue(ctx, item); err != nil {
		atomic.AddInt32(&r.outstanding, -1)
	}
}

// routeError enqueues n's Error-edge targets unconditionally — an error
// handler runs regardless of its other pending dependencies, since its
// purpose is to observe the failure, not to merge normal data flow. It
// reports whether at least one Error edge existed.
func (e *Engine) routeError(ctx context.Context, r *run, n workflow.Node) bool {
	routed := false
	for _, oe := range r.outEdges[n.ID] {
		if oe.Kind != workflow.EdgeError {
			continue
		}
		routed = true
		e.enqueueFrom(ctx, r, n.ID, oe)
	}
	return routed
}

func (e *Engine) fail(r *run, stop context.CancelFunc, err error) {
	r.mu.Lock()
	if r.failed == nil {
		r.failed = err
	}
	r.mu.Unlock()
	stop()
}

func (e *Engine) emit(r *run, runID, nodeID string, kind emit.Kind, payload map[string]interface{}) {
	seq := int(atomic.AddInt32(&r.seq, 1))
	e.Emitter.Emit(emit.Event{
		RunID:   runID,
		Seq:     seq,
		NodeID:  nodeID,
		Kind:    kind,
		At:      time.Now().UTC(),
		Payload: payload,
	})
}

// maybeCheckpoint persists progress every CheckpointEvery completed steps.
// Checkpoint failures are logged via a Failed event but never abort the
// run — a missed checkpoint only costs replay granularity, not correctness.
func (e *Engine) maybeCheckpoint(ctx context.Context, r *run, runID string) {
	if e.Checkpoints == nil {
		return
	}
	step := int(atomic.LoadInt32(&r.stepID))
	if step%e.CheckpointEvery != 0 {
		return
	}
	cp, err := NewCheckpoint(runID, step, r.state.Snapshot(), r.frontierSnapshot(), r.rngSeed(), "")
	if err != nil {
		e.emit(r, runID, "", emit.KindFailed, map[string]interface{}{"checkpoint_error": err.Error()})
		return
	}
	if err := e.Checkpoints.Save(ctx, cp); err != nil {
		e.emit(r, runID, "", emit.KindFailed, map[string]interface{}{"checkpoint_error": err.Error()})
	}
}

func (r *run) frontierSnapshot() []WorkItem {
	return r.frontier.Snapshot()
}

func (r *run) rngSeed() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Int63()
}
