package session

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

func TestStore_CreateAndGetSession(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	cs, err := store.CreateSession(ctx, "wf-1", "user-1")
	require.NoError(t, err)
	require.NotEmpty(t, cs.ID)

	got, err := store.GetSession(ctx, cs.ID)
	require.NoError(t, err)
	require.Equal(t, "wf-1", got.WorkflowID)
	require.Equal(t, "user-1", got.UserID)
}

func TestStore_GetSession_NotFound(t *testing.T) {
	store := NewStore(newTestDB(t))
	_, err := store.GetSession(context.Background(), "missing")
	require.Error(t, err)
}

// TestStore_AppendMessage_TouchesSessionUpdatedAt is scenario E (spec.md
// §8): appending a message advances the session's updated_at in the same
// transaction as the insert.
func TestStore_AppendMessage_TouchesSessionUpdatedAt(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	cs, err := store.CreateSession(ctx, "wf-1", "user-1")
	require.NoError(t, err)
	created, err := store.GetSession(ctx, cs.ID)
	require.NoError(t, err)
	before := created.UpdatedAt

	_, err = store.AppendMessage(ctx, cs.ID, RoleUser, "hello")
	require.NoError(t, err)

	after, err := store.GetSession(ctx, cs.ID)
	require.NoError(t, err)
	require.False(t, after.UpdatedAt.Before(before))
}

func TestStore_History_ReturnsChronologicalOrder(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	cs, err := store.CreateSession(ctx, "wf-1", "user-1")
	require.NoError(t, err)

	_, err = store.AppendMessage(ctx, cs.ID, RoleUser, "first")
	require.NoError(t, err)
	_, err = store.AppendMessage(ctx, cs.ID, RoleAssistant, "second")
	require.NoError(t, err)

	history, err := store.History(ctx, cs.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "first", history[0].Content)
	require.Equal(t, RoleUser, history[0].Role)
	require.Equal(t, "second", history[1].Content)
	require.Equal(t, RoleAssistant, history[1].Role)
}

func TestStore_ClearMessages_PreservesSession(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	cs, err := store.CreateSession(ctx, "wf-1", "user-1")
	require.NoError(t, err)
	_, err = store.AppendMessage(ctx, cs.ID, RoleUser, "hello")
	require.NoError(t, err)

	require.NoError(t, store.ClearMessages(ctx, cs.ID))

	history, err := store.History(ctx, cs.ID)
	require.NoError(t, err)
	require.Empty(t, history)

	still, err := store.GetSession(ctx, cs.ID)
	require.NoError(t, err)
	require.Equal(t, cs.ID, still.ID)
}

func TestQuota_AdmitUpToLimitThenRejects(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		status, admitted, err := store.Admit(ctx, "user-1", 3)
		require.NoError(t, err)
		require.True(t, admitted, "attempt %d should be admitted", i)
		require.Equal(t, i+1, status.Used)
	}

	status, admitted, err := store.Admit(ctx, "user-1", 3)
	require.NoError(t, err)
	require.False(t, admitted)
	require.Equal(t, 0, status.Remaining())
}

func TestQuota_UsageToday_NoRowYetReportsZeroUsed(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	status, err := store.UsageToday(ctx, "user-new", 5)
	require.NoError(t, err)
	require.Equal(t, 0, status.Used)
	require.Equal(t, 5, status.LimitPerDay)
}

func TestQuota_UsageToday_ReflectsPriorAdmissionsWithoutConsumingOne(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	_, admitted, err := store.Admit(ctx, "user-1", 3)
	require.NoError(t, err)
	require.True(t, admitted)

	status, err := store.UsageToday(ctx, "user-1", 3)
	require.NoError(t, err)
	require.Equal(t, 1, status.Used)

	status, err = store.UsageToday(ctx, "user-1", 3)
	require.NoError(t, err)
	require.Equal(t, 1, status.Used, "UsageToday must not itself increment usage")
}

func TestQuota_SeparateUsersHaveIndependentCounters(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	_, admittedA, err := store.Admit(ctx, "user-a", 1)
	require.NoError(t, err)
	require.True(t, admittedA)

	_, admittedB, err := store.Admit(ctx, "user-b", 1)
	require.NoError(t, err)
	require.True(t, admittedB)

	_, admittedA2, err := store.Admit(ctx, "user-a", 1)
	require.NoError(t, err)
	require.False(t, admittedA2)
}
