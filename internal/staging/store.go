// internal/staging/store.go
package staging

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	"dakforge/internal/errors"
	"dakforge/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	groundPrefix  = "staging:"
	historyPrefix = "staging-history:"

	// DefaultHistoryLimit bounds the per-scope history log; oldest
	// entries are evicted first.
	DefaultHistoryLimit = 10
)

// Store is the durable, versioned buffer of uncommitted edits, keyed by
// (repository, branch). One key pair is bound at a time via Initialize.
type Store struct {
	kv           storage.KV
	logger       *zap.Logger
	now          func() time.Time
	historyLimit int

	mu         sync.RWMutex
	repository string
	branch     string
	bound      bool
	listeners  map[string]Listener
}

// Options configures a Store. Zero values fall back to defaults.
type Options struct {
	HistoryLimit int
	Now          func() time.Time
	Logger       *zap.Logger
}

func NewStore(kv storage.KV, opts Options) *Store {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Store{
		kv:           kv,
		logger:       opts.Logger,
		now:          opts.Now,
		historyLimit: opts.HistoryLimit,
		listeners:    make(map[string]Listener),
	}
}

// Initialize binds the active (repository, branch) scope. Switching keys
// is the only way to change scope. Listeners are notified with the newly
// scoped (possibly empty) ground.
func (s *Store) Initialize(ctx context.Context, repository, branch string) error {
	if repository == "" || branch == "" {
		return errors.ValidationError("repository and branch are required", nil)
	}

	s.mu.Lock()
	s.repository = repository
	s.branch = branch
	s.bound = true
	s.mu.Unlock()

	s.logger.Info("staging scope bound",
		zap.String("repository", repository),
		zap.String("branch", branch))

	s.notifyListeners(s.GetStagingGround(ctx))
	return nil
}

// StorageKey returns the backing-store key of the bound scope. This is
// the one accessor that fails loudly: every other operation is
// meaningless without a bound scope, so an unbound call is a logic bug.
func (s *Store) StorageKey() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.bound {
		return "", errors.ScopeError("staging store not initialized")
	}
	return groundPrefix + scopeSuffix(s.repository, s.branch), nil
}

func (s *Store) historyKey() (string, error) {
	key, err := s.StorageKey()
	if err != nil {
		return "", err
	}
	return historyPrefix + strings.TrimPrefix(key, groundPrefix), nil
}

// scopeSuffix derives a deterministic, collision-free key suffix from the
// scope pair. Query-escaping keeps ':' out of either component.
func scopeSuffix(repository, branch string) string {
	return url.QueryEscape(repository) + ":" + url.QueryEscape(branch)
}

func (s *Store) scope() (repository, branch string, bound bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repository, s.branch, s.bound
}

// GetStagingGround returns the current ground, creating an empty one (not
// persisted) when the backing store has no entry. It never fails: a
// deserialization failure degrades to an empty ground and is logged.
func (s *Store) GetStagingGround(ctx context.Context) *StagingGround {
	repository, branch, bound := s.scope()
	empty := &StagingGround{
		Repository: repository,
		Branch:     branch,
		Files:      []StagedFile{},
		Timestamp:  s.now().UnixMilli(),
	}
	if !bound {
		s.logger.Error("staging ground requested before initialize")
		return empty
	}

	key, _ := s.StorageKey()
	raw, ok, err := s.kv.GetItem(ctx, key)
	if err != nil {
		s.logger.Warn("reading staging ground", zap.String("key", key), zap.Error(err))
		return empty
	}
	if !ok {
		return empty
	}

	var ground StagingGround
	if err := json.Unmarshal([]byte(raw), &ground); err != nil {
		s.logger.Warn("corrupt staging ground, degrading to empty",
			zap.String("key", key), zap.Error(err))
		return empty
	}
	if ground.Files == nil {
		ground.Files = []StagedFile{}
	}
	return &ground
}

// UpdateFile upserts a staged file, replacing in place when the path is
// already buffered so ordering is stable.
func (s *Store) UpdateFile(ctx context.Context, path, content string, meta FileMetadata) bool {
	if path == "" {
		s.logger.Warn("update rejected: empty path")
		return false
	}

	ground := s.GetStagingGround(ctx)
	now := s.now().UnixMilli()
	meta.LastModified = now

	file := StagedFile{
		Path:      path,
		Content:   content,
		Metadata:  meta,
		Timestamp: now,
	}

	if i := ground.FindFile(path); i >= 0 {
		ground.Files[i] = file
	} else {
		ground.Files = append(ground.Files, file)
	}

	return s.save(ctx, ground)
}

// RemoveFile removes the entry if present. An absent path is a no-op,
// not an error; the ground is re-saved either way so side effects match
// UpdateFile.
func (s *Store) RemoveFile(ctx context.Context, path string) bool {
	ground := s.GetStagingGround(ctx)

	if i := ground.FindFile(path); i >= 0 {
		ground.Files = append(ground.Files[:i], ground.Files[i+1:]...)
	}

	return s.save(ctx, ground)
}

// RenameFile relocates a buffered entry, tagging provenance for
// downstream tooling. Preconditions are caller-checkable, so violations
// surface as typed errors instead of a silent false.
func (s *Store) RenameFile(ctx context.Context, oldPath, newPath string) error {
	if _, err := s.StorageKey(); err != nil {
		return err
	}
	if oldPath == "" || newPath == "" {
		return errors.ValidationError("old and new paths are required", nil)
	}

	ground := s.GetStagingGround(ctx)

	i := ground.FindFile(oldPath)
	if i < 0 {
		return errors.NotFound("no staged file at " + oldPath)
	}
	if ground.FindFile(newPath) >= 0 {
		return errors.Conflict("a staged file already exists at " + newPath)
	}

	file := &ground.Files[i]
	file.Path = newPath
	if file.Metadata.OriginalPath == "" {
		file.Metadata.OriginalPath = oldPath
	}
	file.Metadata.IsRenamed = true
	file.Metadata.LastModified = s.now().UnixMilli()

	if !s.save(ctx, ground) {
		return errors.StorageError("persisting rename failed", nil)
	}
	return nil
}

// UpdateCommitMessage sets the pending commit message, independent of
// file mutations.
func (s *Store) UpdateCommitMessage(ctx context.Context, message string) bool {
	ground := s.GetStagingGround(ctx)
	ground.Message = message
	return s.save(ctx, ground)
}

func (s *Store) HasChanges(ctx context.Context) bool {
	return len(s.GetStagingGround(ctx).Files) > 0
}

func (s *Store) ChangedFileCount(ctx context.Context) int {
	return len(s.GetStagingGround(ctx).Files)
}

// Clear replaces the state with a fresh empty ground. The clear itself is
// persisted and recorded in history, so it can be undone via rollback.
func (s *Store) Clear(ctx context.Context) bool {
	repository, branch, bound := s.scope()
	if !bound {
		s.logger.Error("clear requested before initialize")
		return false
	}

	return s.save(ctx, &StagingGround{
		Repository: repository,
		Branch:     branch,
		Files:      []StagedFile{},
	})
}

// History returns the bounded history log, oldest first, most recent last.
func (s *Store) History(ctx context.Context) []HistoryEntry {
	key, err := s.historyKey()
	if err != nil {
		s.logger.Error("history requested before initialize")
		return nil
	}

	raw, ok, err := s.kv.GetItem(ctx, key)
	if err != nil || !ok {
		if err != nil {
			s.logger.Warn("reading history", zap.Error(err))
		}
		return nil
	}

	var entries []HistoryEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		s.logger.Warn("corrupt history, degrading to empty", zap.Error(err))
		return nil
	}
	return entries
}

// RollbackToSave restores the snapshot recorded at savedAt as the live
// ground. Rollback is forward-only: the restored state is appended as a
// new history entry and nothing is deleted or reordered.
func (s *Store) RollbackToSave(ctx context.Context, savedAt int64) error {
	if _, err := s.StorageKey(); err != nil {
		return err
	}

	for _, entry := range s.History(ctx) {
		if entry.SavedAt == savedAt {
			restored := entry.Ground.Clone()
			if !s.save(ctx, restored) {
				return errors.StorageError("persisting rollback failed", nil)
			}
			return nil
		}
	}
	return errors.NotFound("no history entry saved at that time")
}

// ContributeFiles is the batch variant of UpdateFile for external
// producers. It continues past per-file failures so partial outcomes stay
// visible instead of being silently dropped.
func (s *Store) ContributeFiles(ctx context.Context, files []Contribution, meta FileMetadata) ContributionResult {
	batch := uuid.New().String()
	result := ContributionResult{
		Success: true,
		Results: make([]FileResult, 0, len(files)),
	}

	for _, f := range files {
		fr := FileResult{Path: f.Path, Success: true}
		if !s.UpdateFile(ctx, f.Path, f.Content, meta.clone()) {
			fr.Success = false
			fr.Error = "staging the file failed"
			result.Success = false
		}
		result.Results = append(result.Results, fr)
	}

	s.logger.Info("contribution batch processed",
		zap.String("batch", batch),
		zap.Int("files", len(files)),
		zap.Bool("success", result.Success))
	return result
}

// Cleanup sweeps every persisted scope whose ground is older than maxAge,
// removing both the live entry and its history, and returns the number of
// scopes removed. The currently bound scope is never touched, regardless
// of age. This is the only operation that reasons about keys outside the
// bound scope.
func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	keys, err := s.kv.Keys(ctx, groundPrefix)
	if err != nil {
		return 0, errors.StorageError("enumerating staging keys", err.Error())
	}

	boundKey, _ := s.StorageKey()
	cutoff := s.now().UnixMilli() - maxAge.Milliseconds()
	removed := 0

	for _, key := range keys {
		if key == boundKey {
			continue
		}

		raw, ok, err := s.kv.GetItem(ctx, key)
		if err != nil || !ok {
			continue
		}

		var ground StagingGround
		if err := json.Unmarshal([]byte(raw), &ground); err != nil {
			// Corrupt entry: unreadable and unrecoverable, sweep it.
			s.logger.Warn("sweeping corrupt staging entry", zap.String("key", key))
		} else if ground.Timestamp >= cutoff {
			continue
		}

		suffix := strings.TrimPrefix(key, groundPrefix)
		if err := s.kv.RemoveItem(ctx, key); err != nil {
			s.logger.Warn("removing stale staging entry", zap.String("key", key), zap.Error(err))
			continue
		}
		if err := s.kv.RemoveItem(ctx, historyPrefix+suffix); err != nil {
			s.logger.Warn("removing stale history", zap.String("key", key), zap.Error(err))
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("staging cleanup complete", zap.Int("removed", removed))
	}
	return removed, nil
}

// AddListener registers a change listener and returns its registration
// ID. The host application bridges this to its cross-tab transport; the
// core only provides the hook.
func (s *Store) AddListener(fn Listener) string {
	id := uuid.New().String()

	s.mu.Lock()
	s.listeners[id] = fn
	s.mu.Unlock()
	return id
}

func (s *Store) RemoveListener(id string) {
	s.mu.Lock()
	delete(s.listeners, id)
	s.mu.Unlock()
}

func (s *Store) notifyListeners(ground *StagingGround) {
	s.mu.RLock()
	fns := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(ground.Clone())
	}
}

// save persists the ground, appends a history snapshot, and notifies
// listeners. A failed ground write returns false; a failed history append
// is logged but does not undo the durable write.
func (s *Store) save(ctx context.Context, ground *StagingGround) bool {
	key, err := s.StorageKey()
	if err != nil {
		s.logger.Error("save requested before initialize")
		return false
	}

	ground.Timestamp = s.now().UnixMilli()

	data, err := json.Marshal(ground)
	if err != nil {
		s.logger.Error("marshaling staging ground", zap.Error(err))
		return false
	}

	if err := s.kv.SetItem(ctx, key, string(data)); err != nil {
		s.logger.Warn("persisting staging ground",
			zap.String("key", key), zap.Error(err))
		return false
	}

	s.appendHistory(ctx, ground, ground.Timestamp)
	s.notifyListeners(ground)
	return true
}

func (s *Store) appendHistory(ctx context.Context, ground *StagingGround, savedAt int64) {
	key, err := s.historyKey()
	if err != nil {
		return
	}

	entries := s.History(ctx)
	entries = append(entries, HistoryEntry{
		Ground:  *ground.Clone(),
		SavedAt: savedAt,
	})
	if len(entries) > s.historyLimit {
		entries = entries[len(entries)-s.historyLimit:]
	}

	data, err := json.Marshal(entries)
	if err != nil {
		s.logger.Error("marshaling history", zap.Error(err))
		return
	}
	if err := s.kv.SetItem(ctx, key, string(data)); err != nil {
		s.logger.Warn("persisting history", zap.String("key", key), zap.Error(err))
	}
}
