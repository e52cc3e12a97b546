package docstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoki/redline/internal/lock"
	"github.com/tomoki/redline/internal/model"
	"github.com/tomoki/redline/internal/redline"
	"github.com/tomoki/redline/internal/store/memory"
)

func newTestRepo() (*Repository, *memory.Store) {
	st := memory.New()
	return New(st, lock.NewCoordinator(st, time.Minute)), st
}

func TestRepository_CreateAndGet(t *testing.T) {
	repo, _ := newTestRepo()
	ctx := context.Background()

	doc, err := repo.Create(ctx, "Contract", "Original content.")
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, 1, doc.Version)
	assert.False(t, doc.CreatedAt.IsZero())

	got, err := repo.Get(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, "Contract", got.Title)
	assert.Equal(t, "Original content.", got.Text)
	assert.Equal(t, 1, got.Version)
}

func TestRepository_GetMissingIsNilNotError(t *testing.T) {
	repo, _ := newTestRepo()

	doc, err := repo.Get(context.Background(), "no-such-id")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestRepository_GetReleasesLock(t *testing.T) {
	repo, st := newTestRepo()
	ctx := context.Background()

	doc, err := repo.Create(ctx, "t", "x")
	require.NoError(t, err)

	_, err = repo.Get(ctx, doc.ID)
	require.NoError(t, err)

	_, err = st.Read(ctx, lock.Key(doc.ID))
	assert.Error(t, err, "lock record must not outlive the read")
}

func TestRepository_Append(t *testing.T) {
	repo, _ := newTestRepo()
	ctx := context.Background()

	doc, err := repo.Create(ctx, "doc1", "Original content.")
	require.NoError(t, err)

	updated, err := repo.Append(ctx, doc.ID, " more")
	require.NoError(t, err)
	assert.Equal(t, "Original content. more", updated.Text)
	assert.Equal(t, 2, updated.Version)
	assert.False(t, updated.UpdatedAt.Before(doc.UpdatedAt))

	stored, err := repo.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Original content. more", stored.Text)
	assert.Equal(t, 2, stored.Version)
}

func TestRepository_AppendMissing(t *testing.T) {
	repo, _ := newTestRepo()

	_, err := repo.Append(context.Background(), "missing", " more")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, repo.Count(context.Background()), "no state change on failed append")
}

func TestRepository_AppendBlockedByHolder(t *testing.T) {
	repo, st := newTestRepo()
	ctx := context.Background()

	doc, err := repo.Create(ctx, "t", "x")
	require.NoError(t, err)

	holder := lock.NewHandle(st, doc.ID, time.Minute)
	require.True(t, holder.Acquire(ctx))

	_, err = repo.Append(ctx, doc.ID, "y")
	assert.ErrorIs(t, err, lock.ErrLockUnavailable)

	got, err := repo.GetUnlocked(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "x", got.Text, "blocked append must not mutate")
}

func TestRepository_Delete(t *testing.T) {
	repo, st := newTestRepo()
	ctx := context.Background()

	doc, err := repo.Create(ctx, "t", "x")
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, doc.ID))

	got, err := repo.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = st.Read(ctx, lock.Key(doc.ID))
	assert.Error(t, err, "lock record removed along with the document")
}

func TestRepository_DeleteMissing(t *testing.T) {
	repo, _ := newTestRepo()
	err := repo.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_ExistsAndCount(t *testing.T) {
	repo, _ := newTestRepo()
	ctx := context.Background()

	assert.Equal(t, 0, repo.Count(ctx))
	assert.False(t, repo.Exists(ctx, "nope"))

	a, err := repo.Create(ctx, "a", "1")
	require.NoError(t, err)
	_, err = repo.Create(ctx, "b", "2")
	require.NoError(t, err)

	assert.True(t, repo.Exists(ctx, a.ID))
	assert.Equal(t, 2, repo.Count(ctx))
}

func TestRepository_GetAllSkipsUnreadable(t *testing.T) {
	repo, st := newTestRepo()
	ctx := context.Background()

	_, err := repo.Create(ctx, "good", "text")
	require.NoError(t, err)
	require.NoError(t, st.Overwrite(ctx, "documents/broken.json", []byte("{not json")))

	docs, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "good", docs[0].Title)
}

func TestRepository_BatchSave(t *testing.T) {
	repo, _ := newTestRepo()
	ctx := context.Background()

	docs := []*model.Document{
		{ID: "b", Title: "B", Text: "b", Version: 1, CreatedAt: time.Now().UTC()},
		{ID: "a", Title: "A", Text: "a", Version: 1, CreatedAt: time.Now().UTC()},
	}
	require.NoError(t, repo.BatchSave(ctx, docs))

	for _, want := range docs {
		got, err := repo.GetUnlocked(ctx, want.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, want.Title, got.Title)
	}
}

func TestRepository_BatchSaveBlocked(t *testing.T) {
	repo, st := newTestRepo()
	ctx := context.Background()

	holder := lock.NewHandle(st, "a", time.Minute)
	require.True(t, holder.Acquire(ctx))

	docs := []*model.Document{
		{ID: "b", Title: "B", Text: "b", Version: 1},
		{ID: "a", Title: "A", Text: "a", Version: 1},
	}
	err := repo.BatchSave(ctx, docs)
	assert.ErrorIs(t, err, lock.ErrLockUnavailable)

	// Canonical order fails on "a" before anything is written.
	got, err := repo.GetUnlocked(ctx, "b")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRepository_RedlineBatch_MixedOutcome(t *testing.T) {
	repo, _ := newTestRepo()
	ctx := context.Background()

	doc, err := repo.Create(ctx, "t", "hello world")
	require.NoError(t, err)

	result := repo.RedlineBatch(ctx, []RedlineRequest{
		{DocumentID: "missing-id", Edit: redline.NewRangeEdit(0, 1, "x")},
		{DocumentID: doc.ID, Edit: redline.NewTargetEdit("world", 1, "there")},
	})

	require.Len(t, result.Documents, 1)
	assert.Equal(t, doc.ID, result.Documents[0].ID)
	assert.Equal(t, 2, result.Documents[0].Version)

	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "missing-id", result.Skipped[0].Document)
	assert.Equal(t, SkipNotFound, result.Skipped[0].Reason)

	got, err := repo.GetUnlocked(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello there", got.Text)
}

func TestRepository_RedlineBatch_LockedDocumentSkipped(t *testing.T) {
	repo, st := newTestRepo()
	ctx := context.Background()

	blocked, err := repo.Create(ctx, "blocked", "aaa")
	require.NoError(t, err)
	free, err := repo.Create(ctx, "free", "bbb")
	require.NoError(t, err)

	holder := lock.NewHandle(st, blocked.ID, time.Minute)
	require.True(t, holder.Acquire(ctx))

	result := repo.RedlineBatch(ctx, []RedlineRequest{
		{DocumentID: blocked.ID, Edit: redline.NewRangeEdit(0, 1, "x")},
		{DocumentID: free.ID, Edit: redline.NewRangeEdit(0, 1, "x")},
	})

	require.Len(t, result.Skipped, 1)
	assert.Equal(t, blocked.ID, result.Skipped[0].Document)
	assert.Equal(t, SkipLockUnavailable, result.Skipped[0].Reason)

	require.Len(t, result.Documents, 1)
	assert.Equal(t, free.ID, result.Documents[0].ID, "one item's failure must not affect siblings")
}

func TestRepository_RedlineBatch_InvalidEditStillCounts(t *testing.T) {
	// An invalid edit is dropped by the engine, not an error: the document
	// still gets a version bump and a success entry.
	repo, _ := newTestRepo()
	ctx := context.Background()

	doc, err := repo.Create(ctx, "t", "short")
	require.NoError(t, err)

	result := repo.RedlineBatch(ctx, []RedlineRequest{
		{DocumentID: doc.ID, Edit: redline.NewTargetEdit("absent", 1, "x")},
	})

	require.Len(t, result.Documents, 1)
	assert.Equal(t, 2, result.Documents[0].Version)
	assert.Empty(t, result.Skipped)

	got, err := repo.GetUnlocked(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "short", got.Text)
}

func TestRepository_CleanupExpiredLocks(t *testing.T) {
	repo, st := newTestRepo()
	ctx := context.Background()

	expired, _ := json.Marshal(model.LockRecord{
		LockID:    "old",
		Timestamp: time.Now().UTC().Add(-time.Hour),
		Timeout:   300,
	})
	fresh, _ := json.Marshal(model.LockRecord{
		LockID:    "new",
		Timestamp: time.Now().UTC(),
		Timeout:   300,
	})
	require.NoError(t, st.Overwrite(ctx, lock.Key("expired-doc"), expired))
	require.NoError(t, st.Overwrite(ctx, lock.Key("fresh-doc"), fresh))
	require.NoError(t, st.Overwrite(ctx, lock.Key("corrupt-doc"), []byte("garbage")))

	removed := repo.CleanupExpiredLocks(ctx)
	assert.Equal(t, 2, removed)

	_, err := st.Read(ctx, lock.Key("fresh-doc"))
	assert.NoError(t, err, "fresh lock must survive cleanup")
}

func TestRepository_VersionMonotonicPerMutation(t *testing.T) {
	repo, _ := newTestRepo()
	ctx := context.Background()

	doc, err := repo.Create(ctx, "t", "v1 text")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := repo.Append(ctx, doc.ID, ".")
		require.NoError(t, err)
	}

	got, err := repo.GetUnlocked(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Version)
}
