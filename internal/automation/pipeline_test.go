package automation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toolforge/agentgraph/internal/automation/source"
	"github.com/toolforge/agentgraph/internal/config"
	"github.com/toolforge/agentgraph/internal/db"
	"github.com/toolforge/agentgraph/internal/engine/model"
)

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	cfg := &config.Config{DatabaseDriver: "sqlite", DatabaseDSN: ":memory:"}
	database, err := db.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

type fakeSource struct {
	name  string
	items []source.Discovered
	calls int
}

func (f *fakeSource) Name() string          { return f.name }
func (f *fakeSource) Config() source.Config { return source.Config{Schedule: "@daily"} }
func (f *fakeSource) Discover(ctx context.Context) ([]source.Discovered, error) {
	f.calls++
	return f.items, nil
}

type fakeChat struct {
	reply string
}

func (f *fakeChat) Chat(ctx context.Context, messages []model.Message, opts model.ChatOptions) (model.ChatOut, error) {
	return model.ChatOut{Text: f.reply}, nil
}

func TestCandidateRepo_Upsert_DedupsBySourceAndExternalID(t *testing.T) {
	database := newTestDB(t)
	repo := NewCandidateRepo(database)
	ctx := context.Background()

	c := Candidate{Source: "producthunt", ExternalID: "42", Name: "Widget", URL: "https://example.com", Score: 150}

	first, isNew, err := repo.Upsert(ctx, c)
	require.NoError(t, err)
	require.True(t, isNew)

	second, isNew, err := repo.Upsert(ctx, c)
	require.NoError(t, err)
	require.False(t, isNew)
	require.Equal(t, first.ID, second.ID)

	all, err := repo.ListByStatus(ctx, StatusDiscovered)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestCandidateRepo_Enrich_AdvancesStatus(t *testing.T) {
	database := newTestDB(t)
	repo := NewCandidateRepo(database)
	ctx := context.Background()

	c, _, err := repo.Upsert(ctx, Candidate{Source: "arxiv", ExternalID: "1", Name: "Paper"})
	require.NoError(t, err)

	require.NoError(t, repo.Enrich(ctx, c.ID, "小组件", "一个测试工具", "free"))

	got, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, StatusEnriched, got.Status)
	require.Equal(t, "小组件", got.NameZH)
	require.Equal(t, "free", got.Pricing)
}

// TestPipeline_HandleDiscover_DedupAcrossRuns exercises scenario F
// (spec.md §8): discovering the same item twice in one day leaves the
// candidate_tools row count unchanged, and only the first run reports the
// candidate as new (the case in which handleDiscover enqueues enrichment).
// It does not call handleDiscover itself, which needs a Redis broker; it
// replays handleDiscover's fetch-and-upsert loop inline against a
// CandidateRepo.
func TestPipeline_HandleDiscover_DedupAcrossRuns(t *testing.T) {
	database := newTestDB(t)
	repo := NewCandidateRepo(database)
	ctx := context.Background()

	src := &fakeSource{name: "producthunt", items: []source.Discovered{
		{ExternalID: "1", Name: "Tool A", URL: "https://a.example", Score: 200},
	}}

	// Exercise the discovery + dedup logic the way handleDiscover does,
	// without depending on a live Redis broker in a unit test.
	runOnce := func() int {
		found, err := src.Discover(ctx)
		require.NoError(t, err)
		fresh := 0
		for _, d := range found {
			_, isNew, err := repo.Upsert(ctx, Candidate{
				Source:      src.Name(),
				ExternalID:  d.ExternalID,
				Name:        d.Name,
				URL:         d.URL,
				Description: d.Description,
				Score:       d.Score,
			})
			require.NoError(t, err)
			if isNew {
				fresh++
			}
		}
		return fresh
	}

	require.Equal(t, 1, runOnce())
	require.Equal(t, 0, runOnce())

	all, err := repo.ListByStatus(ctx, StatusDiscovered)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, 2, src.calls)
}

func TestPipeline_HandleEnrich_ParsesLLMReplyIntoCandidateFields(t *testing.T) {
	database := newTestDB(t)
	repo := NewCandidateRepo(database)
	ctx := context.Background()

	c, _, err := repo.Upsert(ctx, Candidate{Source: "github", ExternalID: "99", Name: "cooltool", URL: "https://x", Description: "a cli tool"})
	require.NoError(t, err)

	p := &Pipeline{
		Candidates: repo,
		Chat:       &fakeChat{reply: "酷工具\n一个命令行工具\nfree"},
	}

	require.NoError(t, p.handleEnrich(ctx, Task{Payload: map[string]interface{}{"candidate_id": c.ID}}))

	got, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, StatusEnriched, got.Status)
	require.Equal(t, "酷工具", got.NameZH)
	require.Equal(t, "一个命令行工具", got.DescriptionZH)
	require.Equal(t, "free", got.Pricing)
}

func TestPipeline_HandleIndex_NoOpWithoutConfiguredEndpoint(t *testing.T) {
	database := newTestDB(t)
	repo := NewCandidateRepo(database)
	ctx := context.Background()

	c, _, err := repo.Upsert(ctx, Candidate{Source: "arxiv", ExternalID: "5", Name: "Paper"})
	require.NoError(t, err)
	require.NoError(t, repo.Enrich(ctx, c.ID, "zh", "zh-desc", "unknown"))

	p := &Pipeline{Candidates: repo}
	require.NoError(t, p.handleIndex(ctx, Task{}))

	got, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, StatusEnriched, got.Status) // unchanged: no index endpoint configured
}

func TestRegistry_DispatchUnknownKindFails(t *testing.T) {
	r := NewRegistry()
	err := r.Dispatch(context.Background(), Task{Kind: "nonsense"})
	require.Error(t, err)
}

func TestRegistry_RegisterDuplicateKindFails(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("x", func(ctx context.Context, t Task) error { return nil }))
	require.Error(t, r.Register("x", func(ctx context.Context, t Task) error { return nil }))
}

func TestMaxAttemptsFor(t *testing.T) {
	require.Equal(t, 3, maxAttemptsFor(TaskDiscover))
	require.Equal(t, 3, maxAttemptsFor(TaskEnrich))
	require.Equal(t, 1, maxAttemptsFor(TaskIndex))
}
