// FileEntry and the remote collaborator contract shared across packages.
package shared

import "context"

// Origin values for FileEntry.Source.
const (
	SourceStaging = "staging"
	SourceGitHub  = "github"
)

// FileEntry is one file in a logical project tree, either fetched from a
// remote repository or surfaced from the staging ground.
type FileEntry struct {
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
	SHA     string `json:"sha,omitempty"`
	Size    int64  `json:"size,omitempty"`
	Source  string `json:"source"`
}

// RemoteSource is the remote repository collaborator. Implementations own
// their request timeouts; callers do not add their own.
type RemoteSource interface {
	// GetFileContent fetches one file's content at the given ref.
	GetFileContent(ctx context.Context, owner, repo, path, ref string) (string, error)

	// GetDirectoryContents lists immediate children of a directory.
	GetDirectoryContents(ctx context.Context, owner, repo, path, ref string) ([]FileEntry, error)

	// GetTree lists every file reachable at the ref. Entries carry path,
	// sha and size only; contents are fetched individually.
	GetTree(ctx context.Context, owner, repo, ref string) ([]FileEntry, error)

	// CommitFile writes a single file through the remote's commit API.
	// The core never calls this itself; it exists for the externally
	// owned commit step that reads the staging ground.
	CommitFile(ctx context.Context, owner, repo, branch, path, content, message string) error
}
