package emit

import (
	"context"
	"sync"
)

// Hub fans execution events out to per-run subscribers for the SSE
// transport (spec.md §6), replaying from Last-Event-ID and applying the
// bounded-buffer backpressure policy of spec.md §5: when a subscriber
// can't keep up, the oldest buffered event is dropped to make room for each
// new one, so a run's final event always reaches the subscriber's buffer.
// The bounded-channel-with-drop shape mirrors
// the teacher's Frontier queue (graph/scheduler.go), adapted from a
// priority-ordered work queue to a FIFO replay buffer keyed by Seq.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[*Subscriber]struct{} // runID -> set
	history     map[string][]Event                  // runID -> all events seen, for Last-Event-ID replay
	bufferCap   int
}

// Subscriber is a single SSE client's event channel.
type Subscriber struct {
	ch     chan Event
	runID  string
	hub    *Hub
	closed bool
}

func NewHub(bufferCap int) *Hub {
	if bufferCap <= 0 {
		bufferCap = 256
	}
	return &Hub{
		subscribers: make(map[string]map[*Subscriber]struct{}),
		history:     make(map[string][]Event),
		bufferCap:   bufferCap,
	}
}

// Subscribe returns a Subscriber that replays events with Seq > afterSeq
// (supporting Last-Event-ID resume) then streams live events.
func (h *Hub) Subscribe(runID string, afterSeq int) *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &Subscriber{
		ch:    make(chan Event, h.bufferCap),
		runID: runID,
		hub:   h,
	}

	for _, e := range h.history[runID] {
		if e.Seq > afterSeq {
			sub.ch <- e
		}
	}

	if h.subscribers[runID] == nil {
		h.subscribers[runID] = make(map[*Subscriber]struct{})
	}
	h.subscribers[runID][sub] = struct{}{}
	return sub
}

// Unsubscribe removes a subscriber and releases its channel.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subscribers[sub.runID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subscribers, sub.runID)
		}
	}
	sub.closed = true
}

// Events returns the channel to range over for this subscriber's stream.
func (s *Subscriber) Events() <-chan Event { return s.ch }

// Publish pushes event to every live subscriber of its run, applying the
// drop-oldest backpressure policy when a subscriber's buffer
// is full. It also appends to the replay history so future Subscribe calls
// with a Last-Event-ID can catch up.
func (h *Hub) Publish(event Event) {
	h.mu.Lock()
	h.history[event.RunID] = append(h.history[event.RunID], event)
	subs := h.subscribers[event.RunID]
	targets := make([]*Subscriber, 0, len(subs))
	for sub := range subs {
		targets = append(targets, sub)
	}
	h.mu.Unlock()

	for _, sub := range targets {
		h.deliver(sub, event)
	}
}

func (h *Hub) deliver(sub *Subscriber, event Event) {
	select {
	case sub.ch <- event:
		return
	default:
	}

	// Buffer full: make room by evicting the oldest buffered event, then
	// retry, so the newest event (a terminal one included) is kept.
	select {
	case <-sub.ch:
	default:
	}
	select {
	case sub.ch <- event:
	default:
	}
}

// CloseRun releases history and disconnects subscribers once an execution
// has finished (called by execution.Runner when a run returns).
func (h *Hub) CloseRun(runID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers[runID] {
		close(sub.ch)
	}
	delete(h.subscribers, runID)
	delete(h.history, runID)
}

// Emitter adapts the Hub into the generic Emitter interface so the engine
// can attach it alongside the zap structured-log emitter via emit.Multi.
type hubEmitter struct{ hub *Hub }

func (h *Hub) AsEmitter() Emitter { return &hubEmitter{hub: h} }

func (e *hubEmitter) Emit(event Event) { e.hub.Publish(event) }

func (e *hubEmitter) EmitBatch(_ context.Context, events []Event) error {
	for _, ev := range events {
		e.hub.Publish(ev)
	}
	return nil
}

func (e *hubEmitter) Flush(context.Context) error { return nil }
