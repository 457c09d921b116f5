package engine

import (
	"math/rand"
	"time"

	"github.com/toolforge/agentgraph/internal/workflow"
)

// RetryPolicy mirrors the teacher's graph.RetryPolicy (graph/policy.go).
// Only Skill and LLM nodes ever retry (spec.md: "Pure transforms never
// retry" and Input/Output nodes have no external I/O to retry either), so
// retryPolicyFor returns nil for the other three kinds.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

var defaultIOPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 8 * time.Second}

// retryPolicyFor returns the retry policy governing n's kind, or nil if n
// must succeed or fail on its first attempt.
func retryPolicyFor(n workflow.Node) *RetryPolicy {
	switch n.Type {
	case workflow.NodeLLM, workflow.NodeSkill:
		p := defaultIOPolicy
		return &p
	default:
		return nil
	}
}

// computeBackoff mirrors the teacher's graph.computeBackoff (graph/
// policy.go): exponential growth capped at MaxDelay plus jitter in
// [0, base).
func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	delay := base * (1 << attempt)
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay + time.Duration(rng.Int63n(int64(base)))
}
