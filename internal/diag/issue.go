package diag

import (
	"mantis/internal/source"
)

// AnnotationKind distinguishes the main span from supporting ones.
type AnnotationKind uint8

const (
	AnnotationPrimary AnnotationKind = iota
	AnnotationSecondary
)

// Annotation points the reader at a span, optionally with its own message.
type Annotation struct {
	Kind AnnotationKind
	Span source.Span
	Msg  string
}

// Note is a free-standing remark attached to an issue.
type Note struct {
	Msg string
}

// FixSafety classifies how confidently a fix plan can be applied.
type FixSafety uint8

const (
	FixSafe FixSafety = iota
	FixPotentiallyUnsafe
	FixUnsafe
)

func (s FixSafety) String() string {
	switch s {
	case FixSafe:
		return "safe"
	case FixPotentiallyUnsafe:
		return "potentially-unsafe"
	case FixUnsafe:
		return "unsafe"
	}
	return "unknown"
}

// TextEdit replaces the span's text with NewText. When OldText is non-empty
// the applier verifies the current content before editing.
type TextEdit struct {
	Span    source.Span
	NewText string
	OldText string
}

// FixPlan is an ordered list of edits the analyzer recorded for an issue.
// The core never applies plans itself; the fix engine does.
type FixPlan struct {
	Title  string
	Safety FixSafety
	Edits  []TextEdit
}

// Issue is one user-visible diagnostic. Issues are values, not errors: the
// analyzer reports them through a Collector and continues.
type Issue struct {
	Level       Level
	Code        Code
	Message     string
	Annotations []Annotation
	Notes       []Note
	Help        string
	Link        string
	Fixes       []FixPlan
}

// New constructs an issue with a single primary annotation.
func New(level Level, code Code, primary source.Span, msg string) Issue {
	return Issue{
		Level:   level,
		Code:    code,
		Message: msg,
		Annotations: []Annotation{
			{Kind: AnnotationPrimary, Span: primary},
		},
	}
}

// Error constructs a LevelError issue.
func Error(code Code, primary source.Span, msg string) Issue {
	return New(LevelError, code, primary, msg)
}

// Warning constructs a LevelWarning issue.
func Warning(code Code, primary source.Span, msg string) Issue {
	return New(LevelWarning, code, primary, msg)
}

// NoteIssue constructs a LevelNote issue.
func NoteIssue(code Code, primary source.Span, msg string) Issue {
	return New(LevelNote, code, primary, msg)
}

// Primary returns the first primary annotation's span, or the zero span.
func (i Issue) Primary() source.Span {
	for _, a := range i.Annotations {
		if a.Kind == AnnotationPrimary {
			return a.Span
		}
	}
	return source.Span{}
}

// WithAnnotation appends a secondary annotation.
func (i Issue) WithAnnotation(sp source.Span, msg string) Issue {
	i.Annotations = append(i.Annotations, Annotation{Kind: AnnotationSecondary, Span: sp, Msg: msg})
	return i
}

// WithNote appends a note.
func (i Issue) WithNote(msg string) Issue {
	i.Notes = append(i.Notes, Note{Msg: msg})
	return i
}

// WithHelp sets the help text.
func (i Issue) WithHelp(msg string) Issue {
	i.Help = msg
	return i
}

// WithLink sets a documentation link.
func (i Issue) WithLink(url string) Issue {
	i.Link = url
	return i
}

// WithFix appends a fix plan.
func (i Issue) WithFix(title string, safety FixSafety, edits ...TextEdit) Issue {
	i.Fixes = append(i.Fixes, FixPlan{Title: title, Safety: safety, Edits: edits})
	return i
}
