package automation

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"
)

// maxAttemptsFor mirrors spec.md §4.5/§8: network/LLM-backed tasks get up
// to 3 attempts in total, pure-compute tasks (indexing, a local write) get a
// single attempt and are dead-lettered on their first failure.
func maxAttemptsFor(kind string) int {
	switch kind {
	case TaskDiscover, TaskEnrich:
		return 3
	default:
		return 1
	}
}

// WorkerPool drains a single queue with a bounded number of concurrent
// workers, the automation-fabric analogue of the engine's MaxConcurrency
// worker goroutines over a Frontier (internal/engine/engine.go's worker
// loop), built on golang.org/x/sync/errgroup rather than a raw WaitGroup
// per DESIGN.md's promotion of errgroup to direct use.
type WorkerPool struct {
	Broker      *Broker
	Registry    *Registry
	Queue       QueueName
	Concurrency int
	LeaseTTL    time.Duration
	PollTimeout time.Duration
	OnTaskError func(t Task, err error)
}

// Run drains w.Queue until ctx is cancelled. Each worker leases a task,
// dispatches it through the registry, and acks on success or requeues on
// failure; a requeued task's next attempt waits in runBackoff (exponential
// backoff, base 60s factor 2 jitter) before it is dispatched again.
func (w *WorkerPool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	n := w.Concurrency
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		g.Go(func() error {
			return w.loop(ctx)
		})
	}
	return g.Wait()
}

func (w *WorkerPool) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		t, ok, err := w.Broker.Lease(ctx, w.Queue, w.PollTimeout, w.LeaseTTL)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if w.OnTaskError != nil {
				w.OnTaskError(Task{}, err)
			}
			continue
		}
		if !ok {
			continue
		}

		if err := w.runBackoff(ctx, t); err != nil {
			continue
		}

		if err := w.Registry.Dispatch(ctx, t); err != nil {
			if w.OnTaskError != nil {
				w.OnTaskError(t, err)
			}
			_ = w.Broker.Requeue(ctx, w.Queue, t, maxAttemptsFor(t.Kind))
			continue
		}

		if err := w.Broker.Ack(ctx, t); err != nil && w.OnTaskError != nil {
			w.OnTaskError(t, err)
		}
	}
}

// runBackoff sleeps before a retried attempt, base 60s factor 2 with
// jitter, matching the execution engine's computeBackoff policy shape
// (internal/engine/policy.go) applied to task retries instead of node
// retries.
func (w *WorkerPool) runBackoff(ctx context.Context, t Task) error {
	if t.Attempt == 0 {
		return nil
	}
	delay := 60 * time.Second
	for i := 0; i < t.Attempt-1; i++ {
		delay *= 2
		if delay > 30*time.Minute {
			delay = 30 * time.Minute
			break
		}
	}
	jitter := time.Duration(rand.Int63n(int64(delay) / 4))
	select {
	case <-time.After(delay + jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
