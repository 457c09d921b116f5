package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toolforge/agentgraph/internal/config"
	"github.com/toolforge/agentgraph/internal/db"
)

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	cfg := &config.Config{DatabaseDriver: "sqlite", DatabaseDSN: ":memory:"}
	database, err := db.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

// baseGraph is a minimal valid two-node graph: an Input feeding an Output
// directly.
func baseGraph() Graph {
	return Graph{
		Nodes: []Node{
			{ID: "in", Type: NodeInput, InputType: InputText},
			{ID: "out", Type: NodeOutput, Format: OutputAuto},
		},
		Edges: []Edge{
			{ID: "e1", Source: "in", Target: "out", Kind: EdgeData},
		},
	}
}

// withExtraTransform inserts a passthrough Transform node between in and
// out, rewiring the single data edge through it.
func withExtraTransform() Graph {
	return Graph{
		Nodes: []Node{
			{ID: "in", Type: NodeInput, InputType: InputText},
			{ID: "tf", Type: NodeTransform, TransformKind: TransformPassthrough},
			{ID: "out", Type: NodeOutput, Format: OutputAuto},
		},
		Edges: []Edge{
			{ID: "e1", Source: "in", Target: "tf", Kind: EdgeData},
			{ID: "e2", Source: "tf", Target: "out", Kind: EdgeData},
		},
	}
}

// TestStore_VersioningScenario is spec.md scenario D: create a workflow at
// v1, add a node (v2), remove it again (v3) — Compare(1,3) should show no
// changes under canonical form, and Revert(to=1) should produce a v4 whose
// graph canonicalizes equal to v1's.
func TestStore_VersioningScenario(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	w := &Workflow{Slug: "demo", Name: "Demo", OwnerID: "user-1", Graph: baseGraph()}
	require.NoError(t, store.Create(ctx, w))
	require.Equal(t, 1, w.Version)

	v2, err := store.Update(ctx, w.ID, 1, withExtraTransform(), "user-1", "add transform node")
	require.NoError(t, err)
	require.Equal(t, 2, v2.Version)

	v3, err := store.Update(ctx, w.ID, 2, baseGraph(), "user-1", "remove transform node")
	require.NoError(t, err)
	require.Equal(t, 3, v3.Version)

	diff, err := store.Compare(ctx, w.ID, 1, 3)
	require.NoError(t, err)
	require.Empty(t, diff.NodesAdded)
	require.Empty(t, diff.NodesRemoved)
	require.Empty(t, diff.NodesModified)
	require.Empty(t, diff.EdgesAdded)
	require.Empty(t, diff.EdgesRemoved)

	v4, err := store.Revert(ctx, w.ID, 3, 1, "user-1")
	require.NoError(t, err)
	require.Equal(t, 4, v4.Version)

	v1Snap, err := store.getVersion(ctx, w.ID, 1)
	require.NoError(t, err)
	finalDiff := Compare(v1Snap.Graph, v4.Graph)
	require.Empty(t, finalDiff.NodesAdded)
	require.Empty(t, finalDiff.NodesRemoved)
	require.Empty(t, finalDiff.NodesModified)
}

// TestStore_VersionHistory_LengthInvariant checks spec.md §3's invariant
// version == 1 + len(version_history), and that each history entry is the
// graph the edit superseded (keyed at its own old version number), not a
// duplicate of the new current graph.
func TestStore_VersionHistory_LengthInvariant(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	w := &Workflow{Slug: "hist", Name: "Hist", OwnerID: "user-1", Graph: baseGraph()}
	require.NoError(t, store.Create(ctx, w))

	got, err := store.Get(ctx, w.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Version)
	require.Empty(t, got.History, "a freshly created workflow has no superseded version yet")

	_, err = store.Update(ctx, w.ID, 1, withExtraTransform(), "user-1", "add transform node")
	require.NoError(t, err)

	got, err = store.Get(ctx, w.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.Version)
	require.Len(t, got.History, 1)
	require.Equal(t, 1, got.History[0].Version)
	require.Empty(t, Compare(baseGraph(), got.History[0].Graph).NodesAdded, "history[0] must hold the pre-edit graph, not the post-edit one")

	_, err = store.Update(ctx, w.ID, 2, baseGraph(), "user-1", "remove transform node")
	require.NoError(t, err)

	got, err = store.Get(ctx, w.ID)
	require.NoError(t, err)
	require.Equal(t, 3, got.Version)
	require.Len(t, got.History, 2, "version must equal 1 + len(history)")
	require.Equal(t, 1, got.History[0].Version)
	require.Equal(t, 2, got.History[1].Version)

	diff := Compare(withExtraTransform(), got.History[1].Graph)
	require.Empty(t, diff.NodesAdded)
	require.Empty(t, diff.NodesRemoved)
	require.Empty(t, diff.NodesModified)
}

func TestStore_Update_StaleVersionConflicts(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	w := &Workflow{Slug: "demo2", Name: "Demo2", OwnerID: "user-1", Graph: baseGraph()}
	require.NoError(t, store.Create(ctx, w))

	_, err := store.Update(ctx, w.ID, 1, baseGraph(), "user-1", "notes")
	require.NoError(t, err)

	_, err = store.Update(ctx, w.ID, 1, baseGraph(), "user-1", "stale")
	require.Error(t, err)
}

func TestStore_Fork_ResetsCountersAndStartsAtV1(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	w := &Workflow{Slug: "source", Name: "Source", OwnerID: "user-1", Graph: baseGraph(), RunCount: 5, StarCount: 9}
	require.NoError(t, store.Create(ctx, w))

	fork, err := store.Fork(ctx, w.ID, "user-2", "forked", "Forked")
	require.NoError(t, err)
	require.Equal(t, 1, fork.Version)
	require.Equal(t, 0, fork.RunCount)
	require.Equal(t, 0, fork.StarCount)
	require.Equal(t, w.ID, fork.ForkedFrom)
}

func TestStore_List_ScopesMineAndPublic(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	mine := &Workflow{Slug: "mine", Name: "Mine", OwnerID: "user-1", Graph: baseGraph()}
	require.NoError(t, store.Create(ctx, mine))

	other := &Workflow{Slug: "other", Name: "Other", OwnerID: "user-2", IsPublic: true, Graph: baseGraph()}
	require.NoError(t, store.Create(ctx, other))

	mineList, err := store.List(ctx, "mine", "user-1", 1, 20)
	require.NoError(t, err)
	require.Len(t, mineList, 1)
	require.Equal(t, "mine", mineList[0].Slug)

	publicList, err := store.List(ctx, "public", "user-1", 1, 20)
	require.NoError(t, err)
	require.Len(t, publicList, 1)
	require.Equal(t, "other", publicList[0].Slug)
}

func TestStore_Delete_RemovesWorkflow(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	w := &Workflow{Slug: "gone", Name: "Gone", OwnerID: "user-1", Graph: baseGraph()}
	require.NoError(t, store.Create(ctx, w))

	require.NoError(t, store.Delete(ctx, w.ID))

	_, err := store.Get(ctx, w.ID)
	require.Error(t, err)
}

func TestStore_Delete_UnknownIDFails(t *testing.T) {
	store := NewStore(newTestDB(t))
	err := store.Delete(context.Background(), "missing")
	require.Error(t, err)
}
