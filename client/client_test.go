package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"dakforge/internal/api"
	"dakforge/internal/staging"
	"dakforge/internal/storage"
	"dakforge/internal/validation"
	shared "dakforge/shared/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopRemote struct{}

func (noopRemote) GetFileContent(context.Context, string, string, string, string) (string, error) {
	return "", nil
}

func (noopRemote) GetDirectoryContents(context.Context, string, string, string, string) ([]shared.FileEntry, error) {
	return nil, nil
}

func (noopRemote) GetTree(context.Context, string, string, string) ([]shared.FileEntry, error) {
	return nil, nil
}

func (noopRemote) CommitFile(context.Context, string, string, string, string, string, string) error {
	return nil
}

func setupServer(t *testing.T) *Client {
	t.Helper()

	store := staging.NewStore(storage.NewMemoryKV(0), staging.Options{})
	orch := validation.NewOrchestrator(validation.NewDefaultRegistry(nil), noopRemote{}, validation.OrchestratorOptions{})

	mux := http.NewServeMux()
	api.NewHandler(store, orch, noopRemote{}, nil).Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestClientRoundtrip(t *testing.T) {
	c := setupServer(t)

	ground, err := c.Initialize("who/anc-dak", "main")
	require.NoError(t, err)
	assert.Equal(t, "who/anc-dak", ground.Repository)
	assert.Empty(t, ground.Files)

	require.NoError(t, c.UpdateFile("input/fsh/actors/Patient.fsh",
		"Profile: Patient\nParent: ActorDefinition", staging.FileMetadata{}))

	ground, err = c.GetStagingGround()
	require.NoError(t, err)
	require.Len(t, ground.Files, 1)
	assert.Equal(t, "input/fsh/actors/Patient.fsh", ground.Files[0].Path)

	require.NoError(t, c.RenameFile("input/fsh/actors/Patient.fsh", "input/fsh/actors/Client.fsh"))

	ground, err = c.GetStagingGround()
	require.NoError(t, err)
	require.Len(t, ground.Files, 1)
	assert.Equal(t, "input/fsh/actors/Client.fsh", ground.Files[0].Path)
	assert.True(t, ground.Files[0].Metadata.IsRenamed)

	history, err := c.History()
	require.NoError(t, err)
	require.Len(t, history, 2)

	restored, err := c.Rollback(history[0].SavedAt)
	require.NoError(t, err)
	require.Len(t, restored.Files, 1)
	assert.Equal(t, "input/fsh/actors/Patient.fsh", restored.Files[0].Path)
}

func TestClientExportImport(t *testing.T) {
	c := setupServer(t)

	_, err := c.Initialize("who/anc-dak", "main")
	require.NoError(t, err)
	require.NoError(t, c.UpdateFile("sushi-config.yaml", "id: anc\ncanonical: http://example.org", staging.FileMetadata{}))

	payload, err := c.Export()
	require.NoError(t, err)
	require.NotEmpty(t, payload)

	require.NoError(t, c.Clear())
	ground, err := c.GetStagingGround()
	require.NoError(t, err)
	assert.Empty(t, ground.Files)

	ground, err = c.Import(payload)
	require.NoError(t, err)
	require.Len(t, ground.Files, 1)
	assert.Equal(t, "sushi-config.yaml", ground.Files[0].Path)
}

func TestClientValidation(t *testing.T) {
	c := setupServer(t)

	_, err := c.Initialize("who/anc-dak", "main")
	require.NoError(t, err)
	require.NoError(t, c.UpdateFile("plan.json", "{not valid", staging.FileMetadata{}))

	report, err := c.ValidateStagingGround()
	require.NoError(t, err)
	assert.False(t, report.CanSave)
	assert.NotZero(t, report.Counts.Errors)
}
