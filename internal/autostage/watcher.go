// internal/autostage/watcher.go
package autostage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"dakforge/internal/staging"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Artifact extensions the watcher contributes into the staging ground.
var stageableExtensions = map[string]bool{
	".fsh": true, ".yaml": true, ".yml": true,
	".json": true, ".bpmn": true, ".dmn": true, ".xml": true,
	".md": true, ".cql": true,
}

// Watcher contributes locally edited guideline artifacts into the staging
// ground as they change on disk.
type Watcher struct {
	store      *staging.Store
	watcher    *fsnotify.Watcher
	root       string
	ignoreDirs map[string]bool
	mu         sync.RWMutex
	closed     bool
	logger     *zap.Logger
}

// New starts watching root. Every eligible file already present is
// registered for events; contribution happens on write.
func New(root string, store *staging.Store, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	w := &Watcher{
		store:   store,
		watcher: fsw,
		root:    root,
		ignoreDirs: map[string]bool{
			".git":         true,
			".dakforge":    true,
			"node_modules": true,
			"vendor":       true,
			"dist":         true,
			"build":        true,
			"output":       true,
		},
		logger: logger,
	}

	go w.watchLoop()

	if err := w.addDirectories(); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("registering directories: %w", err)
	}

	return w, nil
}

func (w *Watcher) addDirectories() error {
	return filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.shouldIgnore(path) {
			return fs.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if w.shouldIgnore(event.Name) {
		return
	}

	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watcher.Add(event.Name); err != nil {
				w.logger.Warn("watching new directory",
					zap.String("path", event.Name), zap.Error(err))
			}
			return
		}
	}

	relPath, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Write), event.Op.Has(fsnotify.Create):
		w.stageFile(relPath, event.Name)
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		if stageableExtensions[strings.ToLower(filepath.Ext(relPath))] {
			if !w.store.RemoveFile(context.Background(), filepath.ToSlash(relPath)) {
				w.logger.Warn("unstaging deleted file failed", zap.String("path", relPath))
			}
		}
	}
}

func (w *Watcher) stageFile(relPath, absPath string) {
	if !stageableExtensions[strings.ToLower(filepath.Ext(relPath))] {
		return
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		w.logger.Warn("reading changed file",
			zap.String("path", relPath), zap.Error(err))
		return
	}

	result := w.store.ContributeFiles(context.Background(), []staging.Contribution{
		{Path: filepath.ToSlash(relPath), Content: string(content)},
	}, staging.FileMetadata{Source: "autostage"})

	if !result.Success {
		w.logger.Warn("auto-staging failed", zap.String("path", relPath))
		return
	}
	w.logger.Debug("auto-staged", zap.String("path", relPath))
}

func (w *Watcher) shouldIgnore(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if part == "" {
			continue
		}
		if strings.HasPrefix(part, ".") {
			return true
		}
		if w.ignoreDirs[part] {
			return true
		}
	}
	return false
}

func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.watcher.Close()
}
