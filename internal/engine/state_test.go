package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunState_SetOverwritesOnReentry(t *testing.T) {
	s := NewRunState(map[string]interface{}{"in": "seed"})

	s.Set("loop-node", "first pass")
	v, ok := s.Get("loop-node")
	assert.True(t, ok)
	assert.Equal(t, "first pass", v)

	s.Set("loop-node", "second pass")
	v, ok = s.Get("loop-node")
	assert.True(t, ok)
	assert.Equal(t, "second pass", v)
}

func TestRunState_SnapshotAndRestore(t *testing.T) {
	s := NewRunState(map[string]interface{}{"in": "seed"})
	s.Set("a", 1)
	s.Set("b", "two")

	snap := s.Snapshot()
	assert.Equal(t, map[string]interface{}{"in": "seed", "a": 1, "b": "two"}, snap)

	other := NewRunState(nil)
	other.Restore(snap)
	v, ok := other.Get("b")
	assert.True(t, ok)
	assert.Equal(t, "two", v)
}

func TestRunState_GetMissing(t *testing.T) {
	s := NewRunState(nil)
	_, ok := s.Get("nope")
	assert.False(t, ok)
}
