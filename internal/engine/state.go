// Package engine implements the Execution Engine (spec.md §4.3): the
// scheduler that walks a workflow.Graph to completion, evaluating each
// node kind, merging deltas into a shared RunState, checkpointing
// progress, and emitting a StepEvent stream. It generalizes the teacher's
// Engine[S] (graph/engine.go) from an app-supplied generic state type S
// into one fixed RunState shape, since every workflow in this service
// shares the same node vocabulary (spec.md §3).
package engine

import "sync"

// RunState accumulates every node's output for one execution, keyed by
// node id. It plays the role of the teacher's generic state type S
// (graph/state.go's Reducer[S] operates over an app-defined struct); here
// the "reducer" is fixed — new node output is always written under its
// own node id, so Merge never has to reconcile overlapping writers.
type RunState struct {
	mu      sync.RWMutex
	Outputs map[string]interface{}
}

// NewRunState seeds a RunState with the workflow's initial input values,
// keyed by Input node id.
func NewRunState(input map[string]interface{}) *RunState {
	out := make(map[string]interface{}, len(input))
	for k, v := range input {
		out[k] = v
	}
	return &RunState{Outputs: out}
}

// Get reads a node's recorded output, reporting whether it has run yet.
func (s *RunState) Get(nodeID string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.Outputs[nodeID]
	return v, ok
}

// Set records nodeID's output. Re-running a node (a cyclic re-entry)
// simply overwrites its previous output — downstream consumers always see
// the latest value, matching spec.md §4.3's "last write wins" merge rule
// for re-entrant nodes.
func (s *RunState) Set(nodeID string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Outputs[nodeID] = value
}

// Snapshot returns a shallow copy of the accumulated outputs, suitable for
// JSON-serializing into a checkpoint.
func (s *RunState) Snapshot() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]interface{}, len(s.Outputs))
	for k, v := range s.Outputs {
		out[k] = v
	}
	return out
}

// Restore replaces the accumulated outputs wholesale, used when resuming
// from a checkpoint.
func (s *RunState) Restore(snapshot map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Outputs = make(map[string]interface{}, len(snapshot))
	for k, v := range snapshot {
		s.Outputs[k] = v
	}
}
