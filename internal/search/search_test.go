package search

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoki/redline/internal/docstore"
	"github.com/tomoki/redline/internal/lock"
	"github.com/tomoki/redline/internal/store/memory"
)

func newTestEngine(t *testing.T) (*Engine, *docstore.Repository) {
	t.Helper()
	st := memory.New()
	repo := docstore.New(st, lock.NewCoordinator(st, time.Minute))
	return New(repo), repo
}

func TestSearchAll_FindsMatchingDocuments(t *testing.T) {
	engine, repo := newTestEngine(t)
	ctx := context.Background()

	hit, err := repo.Create(ctx, "a", "the quick brown fox")
	require.NoError(t, err)
	_, err = repo.Create(ctx, "b", "nothing relevant here")
	require.NoError(t, err)

	results, err := engine.SearchAll(ctx, "quick", 10, 0, 50)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, hit.ID, results[0].DocumentID)
	assert.Contains(t, results[0].Context, "quick")
}

func TestSearchAll_CaseInsensitive(t *testing.T) {
	engine, repo := newTestEngine(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, "a", "The Quick Brown Fox")
	require.NoError(t, err)

	results, err := engine.SearchAll(ctx, "qUiCk", 10, 0, 50)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearchAll_LimitAndOffset(t *testing.T) {
	engine, repo := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := repo.Create(ctx, "t", "shared needle text")
		require.NoError(t, err)
	}

	page1, err := engine.SearchAll(ctx, "needle", 2, 0, 50)
	require.NoError(t, err)
	require.Len(t, page1, 2)

	page2, err := engine.SearchAll(ctx, "needle", 2, 2, 50)
	require.NoError(t, err)
	require.Len(t, page2, 2)

	assert.NotEqual(t, page1[0].DocumentID, page2[0].DocumentID)
	assert.Equal(t, 2, page2[0].Position)
}

func TestSearchAll_ContextWindow(t *testing.T) {
	engine, repo := newTestEngine(t)
	ctx := context.Background()

	text := strings.Repeat("x", 100) + "needle" + strings.Repeat("y", 100)
	_, err := repo.Create(ctx, "t", text)
	require.NoError(t, err)

	results, err := engine.SearchAll(ctx, "needle", 10, 0, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	want := "..." + strings.Repeat("x", 10) + "needle" + strings.Repeat("y", 10) + "..."
	assert.Equal(t, want, results[0].Context)
}

func TestSearchAll_ContextAtTextEdges(t *testing.T) {
	engine, repo := newTestEngine(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, "t", "needle at the start")
	require.NoError(t, err)

	results, err := engine.SearchAll(ctx, "needle", 10, 0, 50)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "needle at the start", results[0].Context, "short text needs no elision")
}

func TestSearchAll_StaleUntilRebuilt(t *testing.T) {
	engine, repo := newTestEngine(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, "t", "first doc")
	require.NoError(t, err)

	// First search builds the snapshot.
	results, err := engine.SearchAll(ctx, "doc", 10, 0, 50)
	require.NoError(t, err)
	require.Len(t, results, 1)

	_, err = repo.Create(ctx, "t", "second doc")
	require.NoError(t, err)

	// Snapshot is stale until rebuilt.
	results, err = engine.SearchAll(ctx, "doc", 10, 0, 50)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	require.NoError(t, engine.RebuildIndex(ctx))
	results, err = engine.SearchAll(ctx, "doc", 10, 0, 50)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearchDocument_FiltersToOneDocument(t *testing.T) {
	engine, repo := newTestEngine(t)
	ctx := context.Background()

	mine, err := repo.Create(ctx, "mine", "alpha shared term")
	require.NoError(t, err)
	_, err = repo.Create(ctx, "other", "beta shared term")
	require.NoError(t, err)

	results, err := engine.SearchDocument(ctx, mine, "shared", 50)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, mine.ID, results[0].DocumentID)
}
