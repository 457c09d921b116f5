package engine

import (
	"container/heap"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"sync"
)

// WorkItem is a schedulable node execution, adapted from the teacher's
// WorkItem[S] (graph/scheduler.go) to this service's fixed node model: no
// generic State payload travels with the item, since evaluators read their
// inputs from the shared RunState directly.
type WorkItem struct {
	StepID       int
	OrderKey     uint64
	NodeID       string
	Attempt      int
	ParentNodeID string
	EdgeIndex    int
}

// computeOrderKey reproduces the teacher's deterministic ordering scheme
// (graph/scheduler.go's computeOrderKey): hash(parentNodeID, edgeIndex),
// so the same graph replayed with the same inputs always schedules
// concurrently-ready nodes in the same relative order, regardless of
// goroutine completion timing.
func computeOrderKey(parentNodeID string, edgeIndex int) uint64 {
	h := sha256.New()
	h.Write([]byte(parentNodeID))
	edgeBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(edgeBytes, uint32(edgeIndex))
	h.Write(edgeBytes)
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

type workHeap []WorkItem

func (h workHeap) Len() int            { return len(h) }
func (h workHeap) Less(i, j int) bool  { return h[i].OrderKey < h[j].OrderKey }
func (h workHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *workHeap) Push(x interface{}) { *h = append(*h, x.(WorkItem)) }
func (h *workHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Frontier is the bounded, deterministically ordered work queue driving
// the scheduler's concurrency, adapted from the teacher's Frontier[S]
// (graph/scheduler.go). A buffered channel provides backpressure (Enqueue
// blocks once capacity is reached) while a heap keyed by OrderKey keeps
// dequeue order deterministic even though enqueue order is not.
type Frontier struct {
	mu    sync.Mutex
	heap  workHeap
	queue chan struct{}
	cap   int
}

func NewFrontier(capacity int) *Frontier {
	f := &Frontier{
		heap:  make(workHeap, 0),
		queue: make(chan struct{}, capacity),
		cap:   capacity,
	}
	heap.Init(&f.heap)
	return f
}

func (f *Frontier) Enqueue(ctx context.Context, item WorkItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	heap.Push(&f.heap, item)
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case f.queue <- struct{}{}:
		return nil
	}
}

func (f *Frontier) Dequeue(ctx context.Context) (WorkItem, error) {
	var zero WorkItem
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-f.queue:
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.heap.Len() == 0 {
			return zero, context.Canceled
		}
		return heap.Pop(&f.heap).(WorkItem), nil
	}
}

func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heap.Len()
}

// Snapshot copies the items currently queued, for checkpointing. Order is
// unspecified; callers that need determinism (Checkpoint's idempotency key)
// sort the result themselves.
func (f *Frontier) Snapshot() []WorkItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]WorkItem, len(f.heap))
	copy(out, f.heap)
	return out
}
