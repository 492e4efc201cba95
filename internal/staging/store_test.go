package staging

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"dakforge/internal/errors"
	"dakforge/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClock hands out strictly increasing millisecond timestamps so
// history entries never collide.
func testClock() func() time.Time {
	var ms atomic.Int64
	ms.Store(1_700_000_000_000)
	return func() time.Time {
		return time.UnixMilli(ms.Add(1))
	}
}

func newTestStore(t *testing.T, capacity int) (*Store, *storage.MemoryKV) {
	t.Helper()

	kv := storage.NewMemoryKV(capacity)
	store := NewStore(kv, Options{Now: testClock()})
	require.NoError(t, store.Initialize(context.Background(), "who/anc-dak", "main"))
	return store, kv
}

func TestStoreRequiresScope(t *testing.T) {
	store := NewStore(storage.NewMemoryKV(0), Options{Now: testClock()})
	ctx := context.Background()

	_, err := store.StorageKey()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeScope))

	assert.False(t, store.UpdateFile(ctx, "a.fsh", "x", FileMetadata{}))
	assert.Empty(t, store.GetStagingGround(ctx).Files)
}

func TestEmptyGround(t *testing.T) {
	store, _ := newTestStore(t, 0)
	ctx := context.Background()

	ground := store.GetStagingGround(ctx)
	assert.Equal(t, "who/anc-dak", ground.Repository)
	assert.Equal(t, "main", ground.Branch)
	assert.Empty(t, ground.Files)
	assert.False(t, store.HasChanges(ctx))
	assert.Equal(t, 0, store.ChangedFileCount(ctx))
}

func TestUpdateFile(t *testing.T) {
	store, _ := newTestStore(t, 0)
	ctx := context.Background()

	ok := store.UpdateFile(ctx, "input/fsh/actors/Patient.fsh",
		"Profile: Patient\nParent: ActorDefinition", FileMetadata{})
	require.True(t, ok)

	ground := store.GetStagingGround(ctx)
	require.Len(t, ground.Files, 1)
	assert.Equal(t, "input/fsh/actors/Patient.fsh", ground.Files[0].Path)
	assert.Equal(t, "Profile: Patient\nParent: ActorDefinition", ground.Files[0].Content)
	assert.NotZero(t, ground.Files[0].Metadata.LastModified)
	assert.True(t, store.HasChanges(ctx))
	assert.Equal(t, 1, store.ChangedFileCount(ctx))
}

func TestUpdateFilePreservesPositionAndUniqueness(t *testing.T) {
	store, _ := newTestStore(t, 0)
	ctx := context.Background()

	require.True(t, store.UpdateFile(ctx, "a.fsh", "one", FileMetadata{}))
	require.True(t, store.UpdateFile(ctx, "b.fsh", "two", FileMetadata{}))
	require.True(t, store.UpdateFile(ctx, "a.fsh", "three", FileMetadata{}))

	ground := store.GetStagingGround(ctx)
	require.Len(t, ground.Files, 2)
	assert.Equal(t, "a.fsh", ground.Files[0].Path)
	assert.Equal(t, "three", ground.Files[0].Content)
	assert.Equal(t, "b.fsh", ground.Files[1].Path)
}

func TestRemoveFile(t *testing.T) {
	store, _ := newTestStore(t, 0)
	ctx := context.Background()

	require.True(t, store.UpdateFile(ctx, "a.fsh", "one", FileMetadata{}))
	require.True(t, store.RemoveFile(ctx, "a.fsh"))
	assert.Empty(t, store.GetStagingGround(ctx).Files)

	// Absent path is a no-op, not an error.
	assert.True(t, store.RemoveFile(ctx, "missing.fsh"))
}

func TestRenameFile(t *testing.T) {
	store, _ := newTestStore(t, 0)
	ctx := context.Background()

	require.True(t, store.UpdateFile(ctx, "old.fsh", "content", FileMetadata{}))

	t.Run("relocates with provenance", func(t *testing.T) {
		require.NoError(t, store.RenameFile(ctx, "old.fsh", "new.fsh"))

		ground := store.GetStagingGround(ctx)
		require.Len(t, ground.Files, 1)
		assert.Equal(t, "new.fsh", ground.Files[0].Path)
		assert.Equal(t, "content", ground.Files[0].Content)
		assert.True(t, ground.Files[0].Metadata.IsRenamed)
		assert.Equal(t, "old.fsh", ground.Files[0].Metadata.OriginalPath)
		assert.Equal(t, -1, ground.FindFile("old.fsh"))
	})

	t.Run("missing source", func(t *testing.T) {
		err := store.RenameFile(ctx, "gone.fsh", "anywhere.fsh")
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
	})

	t.Run("occupied destination", func(t *testing.T) {
		require.True(t, store.UpdateFile(ctx, "other.fsh", "x", FileMetadata{}))
		err := store.RenameFile(ctx, "other.fsh", "new.fsh")
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeConflict))
	})

	t.Run("original path survives second rename", func(t *testing.T) {
		require.NoError(t, store.RenameFile(ctx, "new.fsh", "final.fsh"))
		ground := store.GetStagingGround(ctx)
		i := ground.FindFile("final.fsh")
		require.GreaterOrEqual(t, i, 0)
		assert.Equal(t, "old.fsh", ground.Files[i].Metadata.OriginalPath)
	})
}

func TestCommitMessage(t *testing.T) {
	store, _ := newTestStore(t, 0)
	ctx := context.Background()

	require.True(t, store.UpdateCommitMessage(ctx, "add patient actor"))
	assert.Equal(t, "add patient actor", store.GetStagingGround(ctx).Message)
	assert.False(t, store.HasChanges(ctx))
}

func TestHistoryBounded(t *testing.T) {
	store, _ := newTestStore(t, 0)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		require.True(t, store.UpdateFile(ctx, "a.fsh", string(rune('a'+i)), FileMetadata{}))
	}

	history := store.History(ctx)
	require.Len(t, history, DefaultHistoryLimit)

	// Oldest first, most recent last; the retained entries are the 10
	// most recent mutations.
	assert.Equal(t, "f", history[0].Ground.Files[0].Content)
	assert.Equal(t, "o", history[9].Ground.Files[0].Content)
	for i := 1; i < len(history); i++ {
		assert.Greater(t, history[i].SavedAt, history[i-1].SavedAt)
	}
}

func TestHistorySnapshotsAreImmutable(t *testing.T) {
	store, _ := newTestStore(t, 0)
	ctx := context.Background()

	require.True(t, store.UpdateFile(ctx, "a.fsh", "original", FileMetadata{}))
	require.True(t, store.UpdateFile(ctx, "a.fsh", "mutated", FileMetadata{}))

	history := store.History(ctx)
	require.Len(t, history, 2)
	assert.Equal(t, "original", history[0].Ground.Files[0].Content)
}

func TestRollback(t *testing.T) {
	store, _ := newTestStore(t, 0)
	ctx := context.Background()

	require.True(t, store.UpdateFile(ctx, "a.fsh", "first", FileMetadata{}))
	snapshot := store.History(ctx)
	require.Len(t, snapshot, 1)
	savedAt := snapshot[0].SavedAt

	require.True(t, store.UpdateFile(ctx, "a.fsh", "second", FileMetadata{}))
	require.True(t, store.UpdateFile(ctx, "b.fsh", "extra", FileMetadata{}))

	require.NoError(t, store.RollbackToSave(ctx, savedAt))

	ground := store.GetStagingGround(ctx)
	require.Len(t, ground.Files, 1)
	assert.Equal(t, "first", ground.Files[0].Content)

	// Rollback appends; nothing is deleted or reordered.
	history := store.History(ctx)
	require.Len(t, history, 4)
	assert.Equal(t, savedAt, history[0].SavedAt)
	assert.Equal(t, "first", history[3].Ground.Files[0].Content)

	t.Run("unknown timestamp", func(t *testing.T) {
		err := store.RollbackToSave(ctx, 42)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
	})
}

func TestClearIsUndoable(t *testing.T) {
	store, _ := newTestStore(t, 0)
	ctx := context.Background()

	require.True(t, store.UpdateFile(ctx, "a.fsh", "content", FileMetadata{}))
	beforeClear := store.History(ctx)
	savedAt := beforeClear[len(beforeClear)-1].SavedAt

	require.True(t, store.Clear(ctx))
	assert.False(t, store.HasChanges(ctx))

	require.NoError(t, store.RollbackToSave(ctx, savedAt))
	assert.True(t, store.HasChanges(ctx))
	assert.Equal(t, "content", store.GetStagingGround(ctx).Files[0].Content)
}

func TestExportImportRoundtrip(t *testing.T) {
	store, _ := newTestStore(t, 0)
	ctx := context.Background()

	require.True(t, store.UpdateFile(ctx, "sushi-config.yaml", "id: who.anc", FileMetadata{Source: "editor"}))
	require.True(t, store.UpdateCommitMessage(ctx, "wip"))

	data, err := store.Export(ctx)
	require.NoError(t, err)

	// Fresh store, same scope: import restores ground and history.
	other := NewStore(storage.NewMemoryKV(0), Options{Now: testClock()})
	require.NoError(t, other.Initialize(ctx, "who/anc-dak", "main"))
	require.NoError(t, other.Import(ctx, data))

	ground := other.GetStagingGround(ctx)
	require.Len(t, ground.Files, 1)
	assert.Equal(t, "sushi-config.yaml", ground.Files[0].Path)
	assert.Equal(t, "wip", ground.Message)
	assert.Len(t, other.History(ctx), 2)
}

func TestImportScopeMismatch(t *testing.T) {
	store, _ := newTestStore(t, 0)
	ctx := context.Background()

	require.True(t, store.UpdateFile(ctx, "a.fsh", "keep me", FileMetadata{}))
	data, err := store.Export(ctx)
	require.NoError(t, err)

	other := NewStore(storage.NewMemoryKV(0), Options{Now: testClock()})
	require.NoError(t, other.Initialize(ctx, "who/immz-dak", "main"))

	err = other.Import(ctx, data)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeScope))
	assert.Empty(t, other.GetStagingGround(ctx).Files)
}

func TestImportMalformedPayload(t *testing.T) {
	store, _ := newTestStore(t, 0)
	ctx := context.Background()

	err := store.Import(ctx, []byte("not json at all"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestQuotaExhaustion(t *testing.T) {
	store, _ := newTestStore(t, 64)
	ctx := context.Background()

	big := make([]byte, 4096)
	for i := range big {
		big[i] = 'x'
	}

	assert.False(t, store.UpdateFile(ctx, "big.fsh", string(big), FileMetadata{}))
	assert.Empty(t, store.GetStagingGround(ctx).Files)
}

func TestContributeFiles(t *testing.T) {
	t.Run("all succeed", func(t *testing.T) {
		store, _ := newTestStore(t, 0)
		ctx := context.Background()

		result := store.ContributeFiles(ctx, []Contribution{
			{Path: "input/fsh/a.fsh", Content: "Profile: A\nParent: B"},
			{Path: "input/fsh/b.fsh", Content: "Profile: B\nParent: C"},
		}, FileMetadata{Source: "generator"})

		assert.True(t, result.Success)
		require.Len(t, result.Results, 2)
		assert.Equal(t, 2, store.ChangedFileCount(ctx))
		assert.Equal(t, "generator", store.GetStagingGround(ctx).Files[0].Metadata.Source)
	})

	t.Run("partial failure stays visible", func(t *testing.T) {
		store, _ := newTestStore(t, 2048)
		ctx := context.Background()

		big := make([]byte, 8192)
		result := store.ContributeFiles(ctx, []Contribution{
			{Path: "small.fsh", Content: "ok"},
			{Path: "big.fsh", Content: string(big)},
		}, FileMetadata{})

		assert.False(t, result.Success)
		require.Len(t, result.Results, 2)
		assert.True(t, result.Results[0].Success)
		assert.False(t, result.Results[1].Success)
		assert.NotEmpty(t, result.Results[1].Error)
		assert.Equal(t, 1, store.ChangedFileCount(ctx))
	})
}

func TestCleanup(t *testing.T) {
	kv := storage.NewMemoryKV(0)
	ctx := context.Background()

	// Age an abandoned scope well past the retention threshold.
	old := NewStore(kv, Options{Now: func() time.Time {
		return time.UnixMilli(1_000_000)
	}})
	require.NoError(t, old.Initialize(ctx, "who/old-dak", "main"))
	require.True(t, old.UpdateFile(ctx, "stale.fsh", "x", FileMetadata{}))

	store := NewStore(kv, Options{Now: testClock()})
	require.NoError(t, store.Initialize(ctx, "who/anc-dak", "main"))
	require.True(t, store.UpdateFile(ctx, "fresh.fsh", "y", FileMetadata{}))

	removed, err := store.Cleanup(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	// The stale scope and its history are gone; the bound scope survives.
	keys, err := kv.Keys(ctx, "staging")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	assert.Equal(t, 1, store.ChangedFileCount(ctx))
}

func TestCleanupNeverTouchesBoundScope(t *testing.T) {
	kv := storage.NewMemoryKV(0)
	ctx := context.Background()

	store := NewStore(kv, Options{Now: testClock()})
	require.NoError(t, store.Initialize(ctx, "who/anc-dak", "main"))

	// Plant an ancient ground directly under the bound key.
	key, err := store.StorageKey()
	require.NoError(t, err)
	stale := &StagingGround{
		Repository: "who/anc-dak",
		Branch:     "main",
		Files:      []StagedFile{{Path: "a.fsh", Content: "x"}},
		Timestamp:  1_000_000,
	}
	raw, err := json.Marshal(stale)
	require.NoError(t, err)
	require.NoError(t, kv.SetItem(ctx, key, string(raw)))

	removed, err := store.Cleanup(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
	assert.Equal(t, 1, store.ChangedFileCount(ctx))
}

func TestListeners(t *testing.T) {
	store, _ := newTestStore(t, 0)
	ctx := context.Background()

	var notified []*StagingGround
	id := store.AddListener(func(g *StagingGround) {
		notified = append(notified, g)
	})

	require.True(t, store.UpdateFile(ctx, "a.fsh", "content", FileMetadata{}))
	require.Len(t, notified, 1)

	// Listener payloads are clones; mutating one cannot corrupt the store.
	notified[0].Files[0].Content = "tampered"
	assert.Equal(t, "content", store.GetStagingGround(ctx).Files[0].Content)

	store.RemoveListener(id)
	require.True(t, store.UpdateFile(ctx, "a.fsh", "again", FileMetadata{}))
	assert.Len(t, notified, 1)
}

func TestInitializeNotifiesListeners(t *testing.T) {
	store := NewStore(storage.NewMemoryKV(0), Options{Now: testClock()})

	var scoped *StagingGround
	store.AddListener(func(g *StagingGround) { scoped = g })

	require.NoError(t, store.Initialize(context.Background(), "who/anc-dak", "main"))
	require.NotNil(t, scoped)
	assert.Equal(t, "who/anc-dak", scoped.Repository)
	assert.Empty(t, scoped.Files)
}

func TestCorruptGroundDegradesToEmpty(t *testing.T) {
	store, kv := newTestStore(t, 0)
	ctx := context.Background()

	key, err := store.StorageKey()
	require.NoError(t, err)
	require.NoError(t, kv.SetItem(ctx, key, "{{{not json"))

	ground := store.GetStagingGround(ctx)
	assert.Empty(t, ground.Files)
	assert.Equal(t, "who/anc-dak", ground.Repository)
}
