package execution

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

func TestStore_CreateAndGet(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	exec, err := store.Create(ctx, "wf-1", 2, "manual", "user-1", map[string]interface{}{"topic": "go"})
	require.NoError(t, err)
	require.NotEmpty(t, exec.ID)
	require.Equal(t, StatusPending, exec.Status)

	got, err := store.Get(ctx, exec.ID)
	require.NoError(t, err)
	require.Equal(t, "wf-1", got.WorkflowID)
	require.Equal(t, 2, got.WorkflowVersion)
	require.Equal(t, "go", got.Input["topic"])
	require.Nil(t, got.CompletedAt)
}

func TestStore_Get_NotFound(t *testing.T) {
	store := NewStore(newTestDB(t))
	_, err := store.Get(context.Background(), "missing")
	require.Error(t, err)
}

func TestStore_Complete_SetsTerminalStatusAndOutput(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	exec, err := store.Create(ctx, "wf-1", 1, "manual", "user-1", nil)
	require.NoError(t, err)

	require.NoError(t, store.Complete(ctx, exec.ID, StatusCompleted, map[string]interface{}{"result": "ok"}, ""))

	got, err := store.Get(ctx, exec.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, "ok", got.Output["result"])
	require.NotNil(t, got.CompletedAt)
}

func TestStore_Complete_UnknownExecutionFails(t *testing.T) {
	store := NewStore(newTestDB(t))
	err := store.Complete(context.Background(), "missing", StatusFailed, nil, "boom")
	require.Error(t, err)
}

func TestStore_Cancel_RecordsReason(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	exec, err := store.Create(ctx, "wf-1", 1, "manual", "user-1", nil)
	require.NoError(t, err)
	require.NoError(t, store.Cancel(ctx, exec.ID))

	got, err := store.Get(ctx, exec.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, got.Status)
}

func TestStore_MarkRunning_AdmitsPendingExecution(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	exec, err := store.Create(ctx, "wf-1", 1, "manual", "user-1", nil)
	require.NoError(t, err)

	ok, err := store.MarkRunning(ctx, exec.ID)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := store.Get(ctx, exec.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRunning, got.Status)

	ok, err = store.MarkRunning(ctx, exec.ID)
	require.NoError(t, err)
	require.False(t, ok, "a second admission of an already-running execution is a no-op")
}

func TestStore_MarkStreaming_RequiresRunning(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	exec, err := store.Create(ctx, "wf-1", 1, "manual", "user-1", nil)
	require.NoError(t, err)

	ok, err := store.MarkStreaming(ctx, exec.ID)
	require.NoError(t, err)
	require.False(t, ok, "a still-pending execution cannot skip straight to streaming")

	_, err = store.MarkRunning(ctx, exec.ID)
	require.NoError(t, err)

	ok, err = store.MarkStreaming(ctx, exec.ID)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := store.Get(ctx, exec.ID)
	require.NoError(t, err)
	require.Equal(t, StatusStreaming, got.Status)
}

func TestStore_Cancel_AlreadyTerminalReturnsConflict(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	exec, err := store.Create(ctx, "wf-1", 1, "manual", "user-1", nil)
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, exec.ID, StatusCompleted, map[string]interface{}{"result": "ok"}, ""))

	err = store.Cancel(ctx, exec.ID)
	require.Error(t, err)

	got, err := store.Get(ctx, exec.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status, "cancelling a completed execution must not overwrite its result")
}

func TestStore_Cancel_UnknownExecutionFails(t *testing.T) {
	store := NewStore(newTestDB(t))
	err := store.Cancel(context.Background(), "missing")
	require.Error(t, err)
}

func TestStore_ListByWorkflow_MostRecentFirst(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	first, err := store.Create(ctx, "wf-1", 1, "manual", "user-1", nil)
	require.NoError(t, err)
	second, err := store.Create(ctx, "wf-1", 1, "manual", "user-1", nil)
	require.NoError(t, err)
	_, err = store.Create(ctx, "wf-2", 1, "manual", "user-1", nil)
	require.NoError(t, err)

	list, err := store.ListByWorkflow(ctx, "wf-1", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	ids := map[string]bool{first.ID: true, second.ID: true}
	require.True(t, ids[list[0].ID])
	require.True(t, ids[list[1].ID])
}

func TestStore_ListByStatus(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	running, err := store.Create(ctx, "wf-1", 1, "manual", "user-1", nil)
	require.NoError(t, err)
	_, err = store.MarkRunning(ctx, running.ID)
	require.NoError(t, err)

	done, err := store.Create(ctx, "wf-1", 1, "manual", "user-1", nil)
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, done.ID, StatusCompleted, nil, ""))

	list, err := store.ListByStatus(ctx, StatusRunning)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, running.ID, list[0].ID)
}

func TestStore_RecordEventAndStepEvents_OrderedBySeq(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	exec, err := store.Create(ctx, "wf-1", 1, "manual", "user-1", nil)
	require.NoError(t, err)

	require.NoError(t, store.RecordEvent(ctx, StepEvent{ExecutionID: exec.ID, Seq: 2, NodeID: "b", Kind: "completed"}))
	require.NoError(t, store.RecordEvent(ctx, StepEvent{ExecutionID: exec.ID, Seq: 1, NodeID: "a", Kind: "started"}))

	events, err := store.StepEvents(ctx, exec.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, 1, events[0].Seq)
	require.Equal(t, "a", events[0].NodeID)
	require.Equal(t, 2, events[1].Seq)
}

func TestStore_RecordEvent_DuplicateSeqIsNoOp(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	exec, err := store.Create(ctx, "wf-1", 1, "manual", "user-1", nil)
	require.NoError(t, err)

	require.NoError(t, store.RecordEvent(ctx, StepEvent{ExecutionID: exec.ID, Seq: 1, NodeID: "a", Kind: "started"}))
	require.NoError(t, store.RecordEvent(ctx, StepEvent{ExecutionID: exec.ID, Seq: 1, NodeID: "a", Kind: "started"}))

	events, err := store.StepEvents(ctx, exec.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
}
