// internal/validation/types.go
package validation

import (
	"context"
	"time"
)

// Level is a rule's severity. Only LevelError blocks saving.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

// Wildcard in a rule's FileTypes makes it apply to every file.
const Wildcard = "*"

// Context carries the scope a validation run is evaluated in.
type Context struct {
	Repository string
	Branch     string
	Component  string
}

// Rule is one pluggable, stateless check. Validate returns nil when the
// file passes; an error (or panic) is converted by the registry into a
// synthetic error-level result so a buggy rule fails closed.
type Rule interface {
	// ID is unique across the registry.
	ID() string

	// Component names the DAK component the rule belongs to.
	Component() string

	Level() Level

	// FileTypes lists applicable extensions (without dot), or Wildcard.
	FileTypes() []string

	Validate(ctx context.Context, path, content string, vc *Context) (*Result, error)
}

// Result is one violation produced by a (rule, file) pair.
type Result struct {
	ValidationID string `json:"validationId"`
	Component    string `json:"component"`
	Level        Level  `json:"level"`
	FilePath     string `json:"filePath"`
	Message      string `json:"message"`
	Line         int    `json:"line,omitempty"`
	Column       int    `json:"column,omitempty"`
	Suggestion   string `json:"suggestion,omitempty"`
}

// Counts tallies results per level.
type Counts struct {
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
	Infos    int `json:"infos"`
}

// Report is the aggregated, categorized outcome of a validation run.
// CanSave is the sole gate for whether a consumer may proceed to commit;
// CanUpload mirrors it on staging-ground runs.
type Report struct {
	Results     []Result            `json:"results"`
	Counts      Counts              `json:"counts"`
	ByComponent map[string][]Result `json:"byComponent"`
	ByFile      map[string][]Result `json:"byFile"`
	CanSave     bool                `json:"canSave"`
	CanUpload   bool                `json:"canUpload"`
	GeneratedAt time.Time           `json:"generatedAt"`
	FilesTotal  int                 `json:"filesTotal"`
}

// FuncRule adapts plain functions into the Rule contract; the common way
// built-in rules are declared.
type FuncRule struct {
	RuleID        string
	RuleComponent string
	RuleLevel     Level
	RuleFileTypes []string
	Fn            func(ctx context.Context, path, content string, vc *Context) (*Result, error)
}

func (r *FuncRule) ID() string           { return r.RuleID }
func (r *FuncRule) Component() string    { return r.RuleComponent }
func (r *FuncRule) Level() Level         { return r.RuleLevel }
func (r *FuncRule) FileTypes() []string  { return r.RuleFileTypes }
func (r *FuncRule) Validate(ctx context.Context, path, content string, vc *Context) (*Result, error) {
	return r.Fn(ctx, path, content, vc)
}
