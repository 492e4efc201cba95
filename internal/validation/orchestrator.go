// internal/validation/orchestrator.go
package validation

import (
	"context"
	"fmt"
	"time"

	"dakforge/internal/staging"
	shared "dakforge/shared/types"
	"dakforge/shared/utils"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

const (
	// DefaultCacheTTL bounds how stale a remote-tree validation may be.
	// Remote validation is expensive (one fetch per file), so staleness
	// inside this window is deliberately tolerated.
	DefaultCacheTTL = 5 * time.Minute

	DefaultCacheSize = 64
)

// Extensions never worth validating; mirrors the artifact formats the
// rules understand plus obvious binary content.
var skipExtensions = map[string]bool{
	"png": true, "jpg": true, "jpeg": true, "gif": true, "webp": true,
	"pdf": true, "zip": true, "gz": true, "zst": true, "tgz": true,
	"woff": true, "woff2": true, "ico": true,
}

// Orchestrator applies the registry across whole file sets and produces
// one aggregated report per run.
type Orchestrator struct {
	registry *Registry
	remote   shared.RemoteSource
	cache    *expirable.LRU[string, *Report]
	logger   *zap.Logger
}

// OrchestratorOptions configures caching. Zero values use defaults.
type OrchestratorOptions struct {
	CacheSize int
	CacheTTL  time.Duration
	Logger    *zap.Logger
}

func NewOrchestrator(registry *Registry, remote shared.RemoteSource, opts OrchestratorOptions) *Orchestrator {
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Orchestrator{
		registry: registry,
		remote:   remote,
		cache:    expirable.NewLRU[string, *Report](opts.CacheSize, nil, opts.CacheTTL),
		logger:   opts.Logger,
	}
}

// ValidateDAK validates the full remote file tree of a DAK repository.
// Formatted results are cached per owner/repo/branch for the TTL;
// forceRefresh bypasses the cached entry without clearing others.
func (o *Orchestrator) ValidateDAK(ctx context.Context, owner, repo, branch string, forceRefresh bool) (*Report, error) {
	key := fmt.Sprintf("%s/%s/%s", owner, repo, branch)

	if !forceRefresh {
		if report, ok := o.cache.Get(key); ok {
			o.logger.Debug("validation cache hit", zap.String("scope", key))
			return report, nil
		}
	}

	tree, err := o.remote.GetTree(ctx, owner, repo, branch)
	if err != nil {
		return nil, fmt.Errorf("fetching repository tree: %w", err)
	}

	vc := &Context{Repository: owner + "/" + repo, Branch: branch}
	var results []Result
	files := 0

	for _, entry := range tree {
		if !validatable(entry.Path) {
			continue
		}
		files++

		content, err := o.remote.GetFileContent(ctx, owner, repo, entry.Path, branch)
		if err != nil {
			// A file we cannot inspect must block saving, not vanish
			// from the report.
			o.logger.Warn("fetching file for validation",
				zap.String("path", entry.Path), zap.Error(err))
			results = append(results, Result{
				ValidationID: "remote-fetch",
				Component:    "repository",
				Level:        LevelError,
				FilePath:     entry.Path,
				Message:      "file could not be fetched for validation: " + err.Error(),
			})
			continue
		}

		results = append(results, o.registry.ValidateFile(ctx, entry.Path, content, vc)...)
	}

	report := FormatResults(results)
	report.GeneratedAt = time.Now()
	report.FilesTotal = files

	o.cache.Add(key, report)
	o.logger.Info("repository validated",
		zap.String("scope", key),
		zap.Int("files", files),
		zap.Int("errors", report.Counts.Errors),
		zap.Bool("canSave", report.CanSave))
	return report, nil
}

// ValidateComponent runs only the rules of one component over the given
// files.
func (o *Orchestrator) ValidateComponent(ctx context.Context, component string, files []shared.FileEntry) *Report {
	vc := &Context{Component: component}

	var results []Result
	for _, f := range files {
		if !validatable(f.Path) {
			continue
		}
		results = append(results, o.registry.ValidateFile(ctx, f.Path, f.Content, vc)...)
	}

	report := FormatResults(results)
	report.GeneratedAt = time.Now()
	report.FilesTotal = len(files)
	return report
}

// ValidateStagingGround validates the buffered file set. The result is
// never cached: local edits change constantly and CanSave must stay
// trustworthy. CanUpload mirrors CanSave for the commit gate.
func (o *Orchestrator) ValidateStagingGround(ctx context.Context, ground *staging.StagingGround) *Report {
	vc := &Context{Repository: ground.Repository, Branch: ground.Branch}

	var results []Result
	for _, f := range ground.Files {
		if !validatable(f.Path) {
			continue
		}
		results = append(results, o.registry.ValidateFile(ctx, f.Path, f.Content, vc)...)
	}

	report := FormatResults(results)
	report.GeneratedAt = time.Now()
	report.FilesTotal = len(ground.Files)
	report.CanUpload = report.CanSave
	return report
}

// EditorValidation is the lightweight interactive variant: no caching,
// and noise is suppressed rather than surfaced.
func (o *Orchestrator) EditorValidation(ctx context.Context, path, content, component string) []Result {
	defer func() {
		if rec := recover(); rec != nil {
			o.logger.Debug("editor validation suppressed panic", zap.Any("panic", rec))
		}
	}()

	return o.registry.ValidateFile(ctx, path, content, &Context{Component: component})
}

func validatable(path string) bool {
	return !skipExtensions[utils.ExtOf(path)]
}
