// Package execution persists the run-lifecycle rows the engine itself only
// holds in memory: one Execution row per engine.Engine.Run call and its
// ordered step_events. It plays the storage-layer role the teacher's
// graph/store.Store[S] plays for a single generic run, generalized to the
// Execution/StepEvent aggregate of spec.md §3 and wired to the engine via
// the emit.Emitter interface rather than a direct method call, so the
// engine stays unaware that anything is listening.
package execution

import "time"

// Status is an Execution's lifecycle state (spec.md §3).
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusStreaming Status = "streaming"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether status ends a run's lifecycle (spec.md §4.3's
// state machine: pending -> running -> (streaming <-> running) ->
// completed/failed/cancelled). Non-terminal executions are candidates for
// SSE streaming and for client-initiated cancellation.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Execution is one run of a workflow version.
type Execution struct {
	ID              string
	WorkflowID      string
	WorkflowVersion int
	TriggerType     string
	Status          Status
	Input           map[string]interface{}
	Output          map[string]interface{}
	Error           string
	CreatedBy       string
	StartedAt       time.Time
	CompletedAt     *time.Time
}

// StepEvent is one persisted row of an execution's step log, the durable
// counterpart of emit.Event (which only lives as long as the process and
// the emit.Hub's in-memory history).
type StepEvent struct {
	ExecutionID string
	Seq         int
	NodeID      string
	Kind        string
	Payload     map[string]interface{}
	At          time.Time
}
