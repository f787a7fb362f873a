package diagfmt

import (
	"encoding/json"
	"io"

	"mantis/internal/diag"
	"mantis/internal/source"
)

// LocationJSON is a file position in JSON output.
type LocationJSON struct {
	File      string `json:"file"`
	StartByte uint32 `json:"start_byte"`
	EndByte   uint32 `json:"end_byte"`
	StartLine uint32 `json:"start_line,omitempty"`
	StartCol  uint32 `json:"start_col,omitempty"`
	EndLine   uint32 `json:"end_line,omitempty"`
	EndCol    uint32 `json:"end_col,omitempty"`
}

// AnnotationJSON is a secondary span attached to an issue.
type AnnotationJSON struct {
	Message  string       `json:"message,omitempty"`
	Location LocationJSON `json:"location"`
}

// EditJSON is one text edit of a fix plan.
type EditJSON struct {
	Location    LocationJSON `json:"location"`
	NewText     string       `json:"new_text"`
	OldText     string       `json:"old_text,omitempty"`
	BeforeLines []string     `json:"before_lines,omitempty"`
	AfterLines  []string     `json:"after_lines,omitempty"`
}

// FixJSON is one fix plan.
type FixJSON struct {
	Title  string     `json:"title"`
	Safety string     `json:"safety"`
	Edits  []EditJSON `json:"edits,omitempty"`
}

// IssueJSON is one issue.
type IssueJSON struct {
	Severity    string           `json:"severity"`
	Code        string           `json:"code"`
	Message     string           `json:"message"`
	Location    LocationJSON     `json:"location"`
	Annotations []AnnotationJSON `json:"annotations,omitempty"`
	Notes       []string         `json:"notes,omitempty"`
	Help        string           `json:"help,omitempty"`
	Link        string           `json:"link,omitempty"`
	Fixes       []FixJSON        `json:"fixes,omitempty"`
}

// Output is the JSON root.
type Output struct {
	Issues []IssueJSON `json:"issues"`
	Count  int         `json:"count"`
}

func makeLocation(span source.Span, fs *source.FileSet, opts JSONOpts) LocationJSON {
	f := fs.Get(span.File)
	if f == nil {
		return LocationJSON{StartByte: span.Start, EndByte: span.End}
	}
	loc := LocationJSON{
		File:      f.FormatPath(opts.PathMode.format(), fs.BaseDir()),
		StartByte: span.Start,
		EndByte:   span.End,
	}
	if opts.IncludePositions {
		start, end := fs.Resolve(span)
		loc.StartLine, loc.StartCol = start.Line, start.Col
		loc.EndLine, loc.EndCol = end.Line, end.Col
	}
	return loc
}

// BuildOutput assembles the JSON structure without serializing it.
func BuildOutput(issues []diag.Issue, fs *source.FileSet, opts JSONOpts) Output {
	if opts.Max > 0 && opts.Max < len(issues) {
		issues = issues[:opts.Max]
	}

	out := Output{Issues: make([]IssueJSON, 0, len(issues))}
	for _, issue := range issues {
		ij := IssueJSON{
			Severity: issue.Level.String(),
			Code:     string(issue.Code),
			Message:  issue.Message,
			Location: makeLocation(issue.Primary(), fs, opts),
			Help:     issue.Help,
			Link:     issue.Link,
		}
		for _, ann := range issue.Annotations {
			if ann.Kind == diag.AnnotationPrimary {
				continue
			}
			ij.Annotations = append(ij.Annotations, AnnotationJSON{
				Message:  ann.Msg,
				Location: makeLocation(ann.Span, fs, opts),
			})
		}
		if opts.IncludeNotes {
			for _, note := range issue.Notes {
				ij.Notes = append(ij.Notes, note.Msg)
			}
		}
		if opts.IncludeFixes {
			for _, plan := range issue.Fixes {
				fj := FixJSON{Title: plan.Title, Safety: plan.Safety.String()}
				for _, edit := range plan.Edits {
					ej := EditJSON{
						Location: makeLocation(edit.Span, fs, opts),
						NewText:  edit.NewText,
						OldText:  edit.OldText,
					}
					if opts.IncludePreviews {
						if preview, err := buildEditPreview(fs, edit); err == nil {
							ej.BeforeLines = preview.before
							ej.AfterLines = preview.after
						}
					}
					fj.Edits = append(fj.Edits, ej)
				}
				ij.Fixes = append(ij.Fixes, fj)
			}
		}
		out.Issues = append(out.Issues, ij)
	}
	out.Count = len(out.Issues)
	return out
}

// JSON writes the issues as indented JSON.
func JSON(w io.Writer, issues []diag.Issue, fs *source.FileSet, opts JSONOpts) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(BuildOutput(issues, fs, opts))
}
