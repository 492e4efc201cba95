// internal/reconcile/reconcile.go
//
// Reconciliation merges a remote file tree with the staging ground's
// buffer into the logical, deduplicated list a consumer should see.
package reconcile

import (
	"dakforge/internal/staging"
	shared "dakforge/shared/types"
	"dakforge/shared/utils"
)

// Merge produces the logical file list. Staged always wins: a staged file
// whose path exists remotely replaces the remote version in place
// (order-preserving); staged files with new paths are appended in staged
// order. Every entry is tagged with its origin. The merge is
// deterministic, so identical inputs always reconcile identically.
func Merge(remote []shared.FileEntry, staged []staging.StagedFile) []shared.FileEntry {
	out := make([]shared.FileEntry, 0, len(remote)+len(staged))

	byPath := make(map[string]*staging.StagedFile, len(staged))
	for i := range staged {
		byPath[staged[i].Path] = &staged[i]
	}

	replaced := make(map[string]bool, len(staged))
	for _, entry := range remote {
		if entry.Source == "" {
			entry.Source = shared.SourceGitHub
		}
		if sf, ok := byPath[entry.Path]; ok {
			out = append(out, stagedEntry(sf))
			replaced[entry.Path] = true
			continue
		}
		out = append(out, entry)
	}

	for i := range staged {
		if replaced[staged[i].Path] {
			continue
		}
		out = append(out, stagedEntry(&staged[i]))
	}

	return out
}

// MergeGround is Merge applied to a whole staging ground.
func MergeGround(remote []shared.FileEntry, ground *staging.StagingGround) []shared.FileEntry {
	if ground == nil {
		return Merge(remote, nil)
	}
	return Merge(remote, ground.Files)
}

func stagedEntry(f *staging.StagedFile) shared.FileEntry {
	return shared.FileEntry{
		Path:    f.Path,
		Content: f.Content,
		SHA:     utils.HashContent([]byte(f.Content)),
		Size:    int64(len(f.Content)),
		Source:  shared.SourceStaging,
	}
}
