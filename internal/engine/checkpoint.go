package engine

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"
)

// Checkpoint is a durable snapshot of one execution's progress, adapted
// from the teacher's CheckpointV2 (graph/checkpoint.go): the accumulated
// RunState, the pending frontier, and a deterministic RNG seed, enough to
// resume a crashed or paused execution exactly where it left off. Unlike
// the teacher's generic Checkpoint[S], RecordedIOs is dropped — replay
// determinism here rests on the RNG seed plus idempotent skill retries,
// not on a recorded-I/O cache, since spec.md's Non-goals exclude full
// deterministic replay of third-party LLM responses.
type Checkpoint struct {
	RunID          string                 `json:"run_id"`
	StepID         int                    `json:"step_id"`
	State          map[string]interface{} `json:"state"`
	Frontier       []WorkItem             `json:"frontier"`
	RNGSeed        int64                  `json:"rng_seed"`
	IdempotencyKey string                 `json:"idempotency_key"`
	Timestamp      time.Time              `json:"timestamp"`
	Label          string                 `json:"label"`
}

// RNGSeedFor derives a deterministic seed from a run id, following the
// teacher's seed-from-RunID scheme so two executions of the same run id
// (e.g. a replay) draw from the same jittered backoff sequence.
func RNGSeedFor(runID string) int64 {
	h := sha256.Sum256([]byte(runID))
	return int64(binary.BigEndian.Uint64(h[:8]) >> 1) // clear sign bit
}

// NewCheckpoint builds a checkpoint from the current engine state, computing
// its idempotency key from every field that determines whether resuming
// from it would replay identically.
func NewCheckpoint(runID string, stepID int, state map[string]interface{}, frontier []WorkItem, rngSeed int64, label string) (Checkpoint, error) {
	cp := Checkpoint{
		RunID:     runID,
		StepID:    stepID,
		State:     state,
		Frontier:  frontier,
		RNGSeed:   rngSeed,
		Timestamp: time.Now().UTC(),
		Label:     label,
	}
	key, err := cp.computeIdempotencyKey()
	if err != nil {
		return Checkpoint{}, err
	}
	cp.IdempotencyKey = key
	return cp, nil
}

// computeIdempotencyKey hashes (RunID, StepID, State, Frontier) the same
// way the teacher's Checkpoint[S] does, guarding the store against
// double-committing the same step under concurrent checkpoint writers.
func (cp Checkpoint) computeIdempotencyKey() (string, error) {
	sortedFrontier := append([]WorkItem(nil), cp.Frontier...)
	sort.Slice(sortedFrontier, func(i, j int) bool { return sortedFrontier[i].OrderKey < sortedFrontier[j].OrderKey })

	payload := struct {
		RunID    string                 `json:"run_id"`
		StepID   int                    `json:"step_id"`
		State    map[string]interface{} `json:"state"`
		Frontier []WorkItem             `json:"frontier"`
	}{cp.RunID, cp.StepID, cp.State, sortedFrontier}

	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
