// internal/validation/registry.go
package validation

import (
	"context"
	"fmt"
	"sync"

	"dakforge/internal/errors"
	"dakforge/shared/utils"

	"go.uber.org/zap"
)

// Registry is the catalogue of validation rules, discoverable by
// component or file type.
type Registry struct {
	mu     sync.RWMutex
	rules  []Rule
	byID   map[string]Rule
	logger *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		byID:   make(map[string]Rule),
		logger: logger,
	}
}

// Register adds a rule. Duplicate IDs are rejected.
func (r *Registry) Register(rule Rule) error {
	if rule.ID() == "" {
		return errors.ValidationError("rule id is required", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[rule.ID()]; exists {
		return errors.Conflict("rule already registered: " + rule.ID())
	}
	r.byID[rule.ID()] = rule
	r.rules = append(r.rules, rule)
	return nil
}

// ForComponent returns every rule belonging to component, in
// registration order.
func (r *Registry) ForComponent(component string) []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Rule
	for _, rule := range r.rules {
		if rule.Component() == component {
			out = append(out, rule)
		}
	}
	return out
}

// ForFileType returns every rule applicable to the extension, wildcard
// rules included.
func (r *Registry) ForFileType(ext string) []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Rule
	for _, rule := range r.rules {
		if ruleApplies(rule, ext) {
			out = append(out, rule)
		}
	}
	return out
}

func ruleApplies(rule Rule, ext string) bool {
	for _, ft := range rule.FileTypes() {
		if ft == Wildcard || ft == ext {
			return true
		}
	}
	return false
}

// ValidateFile runs every applicable rule over one file and collects the
// non-nil results. Rule execution is isolated: a rule that errors or
// panics is converted into a synthetic error-level result naming the
// rule, so it blocks saving instead of silently omitting a check.
func (r *Registry) ValidateFile(ctx context.Context, path, content string, vc *Context) []Result {
	ext := utils.ExtOf(path)

	var results []Result
	for _, rule := range r.snapshot() {
		if !ruleApplies(rule, ext) {
			continue
		}
		if vc != nil && vc.Component != "" && rule.Component() != vc.Component {
			continue
		}

		if res := r.runRule(ctx, rule, path, content, vc); res != nil {
			results = append(results, *res)
		}
	}
	return results
}

func (r *Registry) snapshot() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Rule(nil), r.rules...)
}

func (r *Registry) runRule(ctx context.Context, rule Rule, path, content string, vc *Context) (res *Result) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("validation rule panicked",
				zap.String("rule", rule.ID()),
				zap.String("path", path),
				zap.Any("panic", rec))
			res = syntheticFailure(rule, path, fmt.Sprintf("rule panicked: %v", rec))
		}
	}()

	res, err := rule.Validate(ctx, path, content, vc)
	if err != nil {
		r.logger.Warn("validation rule failed",
			zap.String("rule", rule.ID()),
			zap.String("path", path),
			zap.Error(err))
		return syntheticFailure(rule, path, "rule execution failed: "+err.Error())
	}
	return res
}

func syntheticFailure(rule Rule, path, message string) *Result {
	return &Result{
		ValidationID: rule.ID(),
		Component:    rule.Component(),
		Level:        LevelError,
		FilePath:     path,
		Message:      message,
	}
}

// FormatResults aggregates raw results into the categorized report.
func FormatResults(results []Result) *Report {
	report := &Report{
		Results:     results,
		ByComponent: make(map[string][]Result),
		ByFile:      make(map[string][]Result),
	}

	for _, res := range results {
		switch res.Level {
		case LevelError:
			report.Counts.Errors++
		case LevelWarning:
			report.Counts.Warnings++
		case LevelInfo:
			report.Counts.Infos++
		}
		report.ByComponent[res.Component] = append(report.ByComponent[res.Component], res)
		report.ByFile[res.FilePath] = append(report.ByFile[res.FilePath], res)
	}

	report.CanSave = CanSave(results)
	return report
}

// CanSave is true iff no error-level result exists, independent of how
// many warnings or infos there are.
func CanSave(results []Result) bool {
	for _, res := range results {
		if res.Level == LevelError {
			return false
		}
	}
	return true
}
