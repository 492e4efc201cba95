package validation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"dakforge/internal/staging"
	shared "dakforge/shared/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRemote struct {
	entries      []shared.FileEntry
	failPaths    map[string]bool
	treeCalls    int
	contentCalls int
}

func (f *fakeRemote) GetTree(_ context.Context, _, _, _ string) ([]shared.FileEntry, error) {
	f.treeCalls++
	return f.entries, nil
}

func (f *fakeRemote) GetFileContent(_ context.Context, _, _, path, _ string) (string, error) {
	f.contentCalls++
	if f.failPaths[path] {
		return "", fmt.Errorf("boom")
	}
	for _, e := range f.entries {
		if e.Path == path {
			return e.Content, nil
		}
	}
	return "", fmt.Errorf("no such file: %s", path)
}

func (f *fakeRemote) GetDirectoryContents(_ context.Context, _, _, _, _ string) ([]shared.FileEntry, error) {
	return f.entries, nil
}

func (f *fakeRemote) CommitFile(_ context.Context, _, _, _, _, _, _ string) error {
	return nil
}

func newTestOrchestrator(remote shared.RemoteSource, ttl time.Duration) *Orchestrator {
	return NewOrchestrator(NewDefaultRegistry(nil), remote, OrchestratorOptions{
		CacheTTL: ttl,
	})
}

func TestValidateDAK(t *testing.T) {
	remote := &fakeRemote{entries: []shared.FileEntry{
		{Path: "sushi-config.yaml", Content: "id: who.anc\ncanonical: http://smart.who.int/anc"},
		{Path: "input/fsh/actors/Patient.fsh", Content: "Profile: Patient\n* name 1..1"},
		{Path: "input/images/logo.png"},
	}}
	o := newTestOrchestrator(remote, time.Minute)
	ctx := context.Background()

	report, err := o.ValidateDAK(ctx, "who", "anc-dak", "main", false)
	require.NoError(t, err)

	assert.False(t, report.CanSave)
	assert.Equal(t, 1, report.Counts.Errors)
	assert.Equal(t, 2, report.FilesTotal) // the png is skipped
	assert.Equal(t, 2, remote.contentCalls)

	t.Run("cached within ttl", func(t *testing.T) {
		again, err := o.ValidateDAK(ctx, "who", "anc-dak", "main", false)
		require.NoError(t, err)
		assert.Same(t, report, again)
		assert.Equal(t, 1, remote.treeCalls)
	})

	t.Run("force refresh bypasses cache", func(t *testing.T) {
		fresh, err := o.ValidateDAK(ctx, "who", "anc-dak", "main", true)
		require.NoError(t, err)
		assert.NotSame(t, report, fresh)
		assert.Equal(t, 2, remote.treeCalls)
	})

	t.Run("distinct scopes cached independently", func(t *testing.T) {
		_, err := o.ValidateDAK(ctx, "who", "anc-dak", "develop", false)
		require.NoError(t, err)
		assert.Equal(t, 3, remote.treeCalls)
	})
}

func TestValidateDAKExpiredCache(t *testing.T) {
	remote := &fakeRemote{entries: []shared.FileEntry{
		{Path: "a.json", Content: "{}"},
	}}
	o := newTestOrchestrator(remote, 20*time.Millisecond)
	ctx := context.Background()

	_, err := o.ValidateDAK(ctx, "who", "anc-dak", "main", false)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	_, err = o.ValidateDAK(ctx, "who", "anc-dak", "main", false)
	require.NoError(t, err)
	assert.Equal(t, 2, remote.treeCalls)
}

func TestValidateDAKFetchFailureFailsClosed(t *testing.T) {
	remote := &fakeRemote{
		entries: []shared.FileEntry{
			{Path: "a.json", Content: "{}"},
			{Path: "b.json", Content: "{}"},
		},
		failPaths: map[string]bool{"b.json": true},
	}
	o := newTestOrchestrator(remote, time.Minute)

	report, err := o.ValidateDAK(context.Background(), "who", "anc-dak", "main", false)
	require.NoError(t, err)
	assert.False(t, report.CanSave)
	require.Len(t, report.ByFile["b.json"], 1)
	assert.Equal(t, "remote-fetch", report.ByFile["b.json"][0].ValidationID)
}

func TestValidateStagingGround(t *testing.T) {
	o := newTestOrchestrator(&fakeRemote{}, time.Minute)
	ctx := context.Background()

	t.Run("clean ground can upload", func(t *testing.T) {
		ground := &staging.StagingGround{
			Repository: "who/anc-dak",
			Branch:     "main",
			Files: []staging.StagedFile{
				{Path: "input/fsh/actors/Patient.fsh", Content: "Profile: Patient\nParent: ActorDefinition"},
			},
		}

		report := o.ValidateStagingGround(ctx, ground)
		assert.True(t, report.CanSave)
		assert.True(t, report.CanUpload)
	})

	t.Run("blocking error gates upload", func(t *testing.T) {
		ground := &staging.StagingGround{
			Repository: "who/anc-dak",
			Branch:     "main",
			Files: []staging.StagedFile{
				{Path: "plan.json", Content: "{broken"},
			},
		}

		report := o.ValidateStagingGround(ctx, ground)
		assert.False(t, report.CanSave)
		assert.False(t, report.CanUpload)
	})

	t.Run("never cached", func(t *testing.T) {
		ground := &staging.StagingGround{Repository: "who/anc-dak", Branch: "main"}
		first := o.ValidateStagingGround(ctx, ground)

		ground.Files = append(ground.Files, staging.StagedFile{Path: "x.json", Content: "{oops"})
		second := o.ValidateStagingGround(ctx, ground)

		assert.True(t, first.CanSave)
		assert.False(t, second.CanSave)
	})
}

func TestValidateComponent(t *testing.T) {
	o := newTestOrchestrator(&fakeRemote{}, time.Minute)

	files := []shared.FileEntry{
		// Would fail the json-syntax rule, but that rule belongs to the
		// resources component, not profiles.
		{Path: "broken.json", Content: "{nope"},
		{Path: "actor.fsh", Content: "Profile: Actor\n* x 1..1"},
	}

	report := o.ValidateComponent(context.Background(), "profiles", files)
	assert.False(t, report.CanSave)
	assert.Empty(t, report.ByFile["broken.json"])
	assert.NotEmpty(t, report.ByFile["actor.fsh"])
}

func TestEditorValidation(t *testing.T) {
	o := newTestOrchestrator(&fakeRemote{}, time.Minute)

	results := o.EditorValidation(context.Background(), "patient.fsh", "Profile: P\n* a 1..1", "profiles")
	require.NotEmpty(t, results)
	assert.Equal(t, "fsh-profile-parent", results[0].ValidationID)
}
