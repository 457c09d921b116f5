package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeOrderKey_Deterministic(t *testing.T) {
	a := computeOrderKey("node-a", 0)
	b := computeOrderKey("node-a", 0)
	assert.Equal(t, a, b)

	c := computeOrderKey("node-a", 1)
	assert.NotEqual(t, a, c)

	d := computeOrderKey("node-b", 0)
	assert.NotEqual(t, a, d)
}

func TestFrontier_DequeueOrdersByOrderKey(t *testing.T) {
	f := NewFrontier(8)
	ctx := context.Background()

	items := []WorkItem{
		{NodeID: "c", OrderKey: 300},
		{NodeID: "a", OrderKey: 100},
		{NodeID: "b", OrderKey: 200},
	}
	for _, it := range items {
		require.NoError(t, f.Enqueue(ctx, it))
	}

	var order []string
	for i := 0; i < 3; i++ {
		item, err := f.Dequeue(ctx)
		require.NoError(t, err)
		order = append(order, item.NodeID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestFrontier_Snapshot(t *testing.T) {
	f := NewFrontier(8)
	ctx := context.Background()
	require.NoError(t, f.Enqueue(ctx, WorkItem{NodeID: "x", OrderKey: 1}))
	require.NoError(t, f.Enqueue(ctx, WorkItem{NodeID: "y", OrderKey: 2}))

	snap := f.Snapshot()
	assert.Len(t, snap, 2)
	assert.Equal(t, 2, f.Len())
}

func TestFrontier_DequeueRespectsCancellation(t *testing.T) {
	f := NewFrontier(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Dequeue(ctx)
	assert.Error(t, err)
}
