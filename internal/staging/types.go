// internal/staging/types.go
package staging

// FileMetadata is the closed metadata schema carried by every staged file.
// Extra is the typed escape hatch for forward compatibility; the named
// fields are the only ones the core interprets.
type FileMetadata struct {
	Source       string            `json:"source,omitempty"`
	LastModified int64             `json:"lastModified,omitempty"`
	IsRenamed    bool              `json:"isRenamed,omitempty"`
	OriginalPath string            `json:"originalPath,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

func (m FileMetadata) clone() FileMetadata {
	out := m
	if m.Extra != nil {
		out.Extra = make(map[string]string, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// StagedFile is one buffered edit. At most one exists per path within a
// staging ground.
type StagedFile struct {
	Path      string       `json:"path"`
	Content   string       `json:"content"`
	Metadata  FileMetadata `json:"metadata"`
	Timestamp int64        `json:"timestamp"`
}

// StagingGround is the buffered, not-yet-committed working set for one
// (repository, branch) pair.
type StagingGround struct {
	Repository string       `json:"repository"`
	Branch     string       `json:"branch"`
	Message    string       `json:"message"`
	Files      []StagedFile `json:"files"`
	Timestamp  int64        `json:"timestamp"`
}

// Clone deep-copies the ground so history snapshots and listener payloads
// cannot be mutated retroactively through the live instance.
func (g *StagingGround) Clone() *StagingGround {
	out := *g
	out.Files = make([]StagedFile, len(g.Files))
	for i, f := range g.Files {
		f.Metadata = f.Metadata.clone()
		out.Files[i] = f
	}
	return &out
}

// FindFile returns the index of path in Files, or -1.
func (g *StagingGround) FindFile(path string) int {
	for i := range g.Files {
		if g.Files[i].Path == path {
			return i
		}
	}
	return -1
}

// HistoryEntry is an immutable snapshot recorded on every successful save.
type HistoryEntry struct {
	Ground  StagingGround `json:"stagingGround"`
	SavedAt int64         `json:"savedAt"`
}

// Contribution is one file offered by an external producer.
type Contribution struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// FileResult reports the outcome of one contributed file.
type FileResult struct {
	Path    string `json:"path"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ContributionResult aggregates a batch contribution. Success is true only
// when every file landed; per-file failures stay visible in Results.
type ContributionResult struct {
	Success bool         `json:"success"`
	Results []FileResult `json:"results"`
}

// ExportPayload is the serialized form of a full staging scope: the live
// ground plus its bounded history.
type ExportPayload struct {
	Version    int            `json:"version"`
	Repository string         `json:"repository"`
	Branch     string         `json:"branch"`
	Ground     StagingGround  `json:"stagingGround"`
	History    []HistoryEntry `json:"history"`
	ExportedAt int64          `json:"exportedAt"`
}

const exportVersion = 1

// Listener observes staging-ground changes. It receives a private clone;
// mutating it has no effect on the store.
type Listener func(*StagingGround)
