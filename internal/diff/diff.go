// internal/diff/diff.go
package diff

import (
	"fmt"
	"strings"
)

// LineType indicates whether a line was added, removed, or is context.
type LineType int

const (
	Context LineType = iota
	Addition
	Deletion
)

// Line is a single diff line with its position in each version.
type Line struct {
	Type    LineType
	Content string
	OldNum  int
	NewNum  int
}

// Hunk is a continuous section of changes plus surrounding context.
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Lines    []Line
}

// Result holds the complete diff between two contents.
type Result struct {
	Hunks []Hunk
	Stats struct {
		Additions int
		Deletions int
	}
}

// Engine computes line diffs with a configurable amount of context.
type Engine struct {
	contextLines int
}

func NewEngine(contextLines int) *Engine {
	return &Engine{contextLines: contextLines}
}

// Diff generates a line-by-line diff between two contents.
func (e *Engine) Diff(oldContent, newContent string) *Result {
	oldLines := splitLines(oldContent)
	newLines := splitLines(newContent)

	raw := diffLines(oldLines, newLines)

	result := &Result{}
	for _, l := range raw {
		switch l.Type {
		case Addition:
			result.Stats.Additions++
		case Deletion:
			result.Stats.Deletions++
		}
	}
	result.Hunks = buildHunks(raw, e.contextLines)
	return result
}

// Format renders the diff in unified style.
func (r *Result) Format() string {
	var b strings.Builder
	for _, h := range r.Hunks {
		fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldLines, h.NewStart, h.NewLines)
		for _, l := range h.Lines {
			switch l.Type {
			case Addition:
				b.WriteString("+")
			case Deletion:
				b.WriteString("-")
			default:
				b.WriteString(" ")
			}
			b.WriteString(l.Content)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

// diffLines computes an LCS-based line diff. Guideline artifacts are
// small, so the quadratic table is acceptable.
func diffLines(oldLines, newLines []string) []Line {
	n, m := len(oldLines), len(newLines)

	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if oldLines[i] == newLines[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var out []Line
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case oldLines[i] == newLines[j]:
			out = append(out, Line{Type: Context, Content: oldLines[i], OldNum: i + 1, NewNum: j + 1})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			out = append(out, Line{Type: Deletion, Content: oldLines[i], OldNum: i + 1})
			i++
		default:
			out = append(out, Line{Type: Addition, Content: newLines[j], NewNum: j + 1})
			j++
		}
	}
	for ; i < n; i++ {
		out = append(out, Line{Type: Deletion, Content: oldLines[i], OldNum: i + 1})
	}
	for ; j < m; j++ {
		out = append(out, Line{Type: Addition, Content: newLines[j], NewNum: j + 1})
	}
	return out
}

func buildHunks(lines []Line, context int) []Hunk {
	var hunks []Hunk
	var current *Hunk
	trailing := 0

	flush := func() {
		if current == nil {
			return
		}
		// Trim context beyond the window at the tail.
		if trailing > context {
			current.Lines = current.Lines[:len(current.Lines)-(trailing-context)]
		}
		finalizeHunk(current)
		hunks = append(hunks, *current)
		current = nil
		trailing = 0
	}

	var pending []Line
	for _, l := range lines {
		if l.Type == Context {
			if current != nil {
				current.Lines = append(current.Lines, l)
				trailing++
				if trailing > context*2 {
					flush()
				}
			} else {
				pending = append(pending, l)
				if len(pending) > context {
					pending = pending[1:]
				}
			}
			continue
		}

		if current == nil {
			current = &Hunk{Lines: append([]Line(nil), pending...)}
			pending = nil
		}
		current.Lines = append(current.Lines, l)
		trailing = 0
	}
	flush()
	return hunks
}

func finalizeHunk(h *Hunk) {
	for _, l := range h.Lines {
		if l.Type != Addition {
			if h.OldStart == 0 {
				h.OldStart = l.OldNum
			}
			h.OldLines++
		}
		if l.Type != Deletion {
			if h.NewStart == 0 {
				h.NewStart = l.NewNum
			}
			h.NewLines++
		}
	}
	if h.OldStart == 0 {
		h.OldStart = 1
	}
	if h.NewStart == 0 {
		h.NewStart = 1
	}
}
