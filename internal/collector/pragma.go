// Package collector is the diagnostic sink for one category against one
// module: it applies pragma suppression, supports nested recording
// buffers for speculative analysis, and reports unused pragmas.
package collector

import (
	"strings"

	"mantis/internal/diag"
	"mantis/internal/source"
)

// PragmaKind distinguishes suppression from expectation.
type PragmaKind uint8

const (
	// PragmaIgnore suppresses matching issues.
	PragmaIgnore PragmaKind = iota
	// PragmaExpect suppresses matching issues and demands at least one.
	PragmaExpect
)

func (k PragmaKind) String() string {
	if k == PragmaExpect {
		return "expect"
	}
	return "ignore"
}

// Pragma is one extracted suppression directive.
type Pragma struct {
	Kind PragmaKind
	// Code is the suppressed code; empty matches every code.
	Code diag.Code
	// Span covers the pragma's comment.
	Span source.Span
	// Line is the comment's first line.
	Line uint32
	// OwnLine marks a comment with no code before it on its line.
	OwnLine bool
	// Scope is the statement span a scoped pragma covers; nil for
	// line-anchored pragmas.
	Scope *source.Span

	used bool
}

// Used reports whether the pragma matched at least one issue.
func (p *Pragma) Used() bool { return p.used }

// Comment is the front end's view of one source comment.
type Comment struct {
	Span    source.Span
	Line    uint32
	Text    string
	OwnLine bool
	// Scope is the span of the item the comment is attached to, when the
	// front end attached it to a declaration or statement.
	Scope *source.Span
}

const (
	ignoreMarker = "@mantis-ignore"
	expectMarker = "@mantis-expect"
)

// ExtractPragmas scans the module's comments for pragma markers. One
// comment may carry several pragmas.
func ExtractPragmas(comments []Comment) []*Pragma {
	var out []*Pragma
	for _, c := range comments {
		out = append(out, extractFrom(c, ignoreMarker, PragmaIgnore)...)
		out = append(out, extractFrom(c, expectMarker, PragmaExpect)...)
	}
	return out
}

func extractFrom(c Comment, marker string, kind PragmaKind) []*Pragma {
	var out []*Pragma
	text := c.Text
	for {
		i := strings.Index(text, marker)
		if i < 0 {
			return out
		}
		rest := text[i+len(marker):]
		code := ""
		if strings.HasPrefix(rest, "[") {
			if j := strings.IndexByte(rest, ']'); j > 0 {
				code = strings.TrimSpace(rest[1:j])
				rest = rest[j+1:]
			}
		}
		out = append(out, &Pragma{
			Kind:    kind,
			Code:    diag.Code(code),
			Span:    c.Span,
			Line:    c.Line,
			OwnLine: c.OwnLine,
			Scope:   c.Scope,
		})
		text = rest
	}
}
