// internal/validation/rules.go
//
// Built-in rules for the guideline artifact formats the authoring tool
// stages: FHIR Shorthand sources, the sushi IG configuration, JSON
// resources, and BPMN/DMN process definitions.
package validation

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"go.uber.org/zap"
)

const largeFileThreshold = 1 << 20 // 1MiB

var fshKeywords = []string{
	"Profile:", "Extension:", "Instance:", "ValueSet:", "CodeSystem:",
	"Logical:", "Resource:", "Invariant:", "Mapping:", "RuleSet:", "Alias:",
}

// NewDefaultRegistry returns a registry loaded with the built-in rules.
func NewDefaultRegistry(logger *zap.Logger) *Registry {
	r := NewRegistry(logger)
	for _, rule := range BuiltinRules() {
		// IDs are distinct by construction.
		_ = r.Register(rule)
	}
	return r
}

func BuiltinRules() []Rule {
	return []Rule{
		&FuncRule{
			RuleID:        "fsh-declaration",
			RuleComponent: "profiles",
			RuleLevel:     LevelWarning,
			RuleFileTypes: []string{"fsh"},
			Fn:            validateFSHDeclaration,
		},
		&FuncRule{
			RuleID:        "fsh-profile-parent",
			RuleComponent: "profiles",
			RuleLevel:     LevelError,
			RuleFileTypes: []string{"fsh"},
			Fn:            validateFSHProfileParent,
		},
		&FuncRule{
			RuleID:        "sushi-config-schema",
			RuleComponent: "ig-config",
			RuleLevel:     LevelError,
			RuleFileTypes: []string{"yaml", "yml"},
			Fn:            validateSushiConfig,
		},
		&FuncRule{
			RuleID:        "json-syntax",
			RuleComponent: "resources",
			RuleLevel:     LevelError,
			RuleFileTypes: []string{"json"},
			Fn:            validateJSONSyntax,
		},
		&FuncRule{
			RuleID:        "xml-well-formed",
			RuleComponent: "business-processes",
			RuleLevel:     LevelError,
			RuleFileTypes: []string{"bpmn", "dmn", "xml"},
			Fn:            validateXMLWellFormed,
		},
		&FuncRule{
			RuleID:        "large-file",
			RuleComponent: "repository",
			RuleLevel:     LevelWarning,
			RuleFileTypes: []string{Wildcard},
			Fn:            validateFileSize,
		},
		&FuncRule{
			RuleID:        "empty-file",
			RuleComponent: "repository",
			RuleLevel:     LevelInfo,
			RuleFileTypes: []string{Wildcard},
			Fn:            validateNonEmpty,
		},
	}
}

func validateFSHDeclaration(_ context.Context, path, content string, _ *Context) (*Result, error) {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "//") {
			continue
		}
		for _, kw := range fshKeywords {
			if strings.HasPrefix(trimmed, kw) {
				return nil, nil
			}
		}
		break
	}

	return &Result{
		ValidationID: "fsh-declaration",
		Component:    "profiles",
		Level:        LevelWarning,
		FilePath:     path,
		Message:      "FSH file does not start with a resource declaration",
		Suggestion:   "begin the file with Profile:, Instance:, ValueSet:, or another FSH declaration",
	}, nil
}

func validateFSHProfileParent(_ context.Context, path, content string, _ *Context) (*Result, error) {
	lines := strings.Split(content, "\n")
	profileLine := 0
	hasProfile := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "Profile:") {
			hasProfile = true
			profileLine = i + 1
		}
		if strings.HasPrefix(trimmed, "Parent:") && hasProfile {
			return nil, nil
		}
	}
	if !hasProfile {
		return nil, nil
	}

	return &Result{
		ValidationID: "fsh-profile-parent",
		Component:    "profiles",
		Level:        LevelError,
		FilePath:     path,
		Message:      "Profile declaration has no Parent",
		Line:         profileLine,
		Suggestion:   "add a Parent: line naming the base definition",
	}, nil
}

// sushiConfig covers only the fields the rule checks.
type sushiConfig struct {
	ID        string `yaml:"id"`
	Canonical string `yaml:"canonical"`
}

func validateSushiConfig(_ context.Context, path, content string, _ *Context) (*Result, error) {
	if !strings.HasSuffix(path, "sushi-config.yaml") && !strings.HasSuffix(path, "sushi-config.yml") {
		return nil, nil
	}

	var cfg sushiConfig
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return &Result{
			ValidationID: "sushi-config-schema",
			Component:    "ig-config",
			Level:        LevelError,
			FilePath:     path,
			Message:      "sushi-config is not valid YAML: " + err.Error(),
		}, nil
	}

	var missing []string
	if cfg.ID == "" {
		missing = append(missing, "id")
	}
	if cfg.Canonical == "" {
		missing = append(missing, "canonical")
	}
	if len(missing) == 0 {
		return nil, nil
	}

	return &Result{
		ValidationID: "sushi-config-schema",
		Component:    "ig-config",
		Level:        LevelError,
		FilePath:     path,
		Message:      fmt.Sprintf("sushi-config missing required fields: %s", strings.Join(missing, ", ")),
		Suggestion:   "declare the implementation guide id and canonical URL",
	}, nil
}

func validateJSONSyntax(_ context.Context, path, content string, _ *Context) (*Result, error) {
	if json.Valid([]byte(content)) {
		return nil, nil
	}

	var probe any
	err := json.Unmarshal([]byte(content), &probe)
	msg := "file is not valid JSON"
	if err != nil {
		msg = "file is not valid JSON: " + err.Error()
	}

	return &Result{
		ValidationID: "json-syntax",
		Component:    "resources",
		Level:        LevelError,
		FilePath:     path,
		Message:      msg,
	}, nil
}

func validateXMLWellFormed(_ context.Context, path, content string, _ *Context) (*Result, error) {
	dec := xml.NewDecoder(strings.NewReader(content))
	for {
		_, err := dec.Token()
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return &Result{
			ValidationID: "xml-well-formed",
			Component:    "business-processes",
			Level:        LevelError,
			FilePath:     path,
			Message:      "document is not well-formed XML: " + err.Error(),
		}, nil
	}
}

func validateFileSize(_ context.Context, path, content string, _ *Context) (*Result, error) {
	if len(content) <= largeFileThreshold {
		return nil, nil
	}

	return &Result{
		ValidationID: "large-file",
		Component:    "repository",
		Level:        LevelWarning,
		FilePath:     path,
		Message:      fmt.Sprintf("file is %d bytes; large files slow validation and commits", len(content)),
		Suggestion:   "consider splitting the artifact or excluding generated output",
	}, nil
}

func validateNonEmpty(_ context.Context, path, content string, _ *Context) (*Result, error) {
	if strings.TrimSpace(content) != "" {
		return nil, nil
	}

	return &Result{
		ValidationID: "empty-file",
		Component:    "repository",
		Level:        LevelInfo,
		FilePath:     path,
		Message:      "file is empty",
	}, nil
}
