package engine

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/toolforge/agentgraph/internal/workflow"
)

func TestRetryPolicyFor(t *testing.T) {
	assert.NotNil(t, retryPolicyFor(workflow.Node{Type: workflow.NodeLLM}))
	assert.NotNil(t, retryPolicyFor(workflow.Node{Type: workflow.NodeSkill}))
	assert.Nil(t, retryPolicyFor(workflow.Node{Type: workflow.NodeTransform}))
	assert.Nil(t, retryPolicyFor(workflow.Node{Type: workflow.NodeInput}))
	assert.Nil(t, retryPolicyFor(workflow.Node{Type: workflow.NodeOutput}))
}

func TestComputeBackoff_CapsAtMaxDelay(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	base := 100 * time.Millisecond
	maxDelay := 500 * time.Millisecond
	for attempt := 0; attempt < 10; attempt++ {
		d := computeBackoff(attempt, base, maxDelay, rng)
		assert.LessOrEqual(t, d, maxDelay+base)
	}
}

func TestComputeBackoff_GrowsWithAttempt(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	base := 50 * time.Millisecond
	maxDelay := 10 * time.Second
	first := computeBackoff(0, base, maxDelay, rng)
	third := computeBackoff(3, base, maxDelay, rng)
	assert.Greater(t, third, first)
}
