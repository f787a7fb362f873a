package diagfmt

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"mantis/internal/diag"
	"mantis/internal/source"
)

type palette struct {
	err    *color.Color
	warn   *color.Color
	note   *color.Color
	help   *color.Color
	code   *color.Color
	gutter *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		err:    color.New(color.FgRed, color.Bold),
		warn:   color.New(color.FgYellow, color.Bold),
		note:   color.New(color.FgCyan),
		help:   color.New(color.FgGreen),
		code:   color.New(color.Bold),
		gutter: color.New(color.FgBlue),
	}
	if !enabled {
		for _, c := range []*color.Color{p.err, p.warn, p.note, p.help, p.code, p.gutter} {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) severity(level diag.Level) *color.Color {
	switch level {
	case diag.LevelError:
		return p.err
	case diag.LevelWarning:
		return p.warn
	case diag.LevelHelp:
		return p.help
	}
	return p.note
}

// Pretty renders every issue in the slice:
//
//	<path>:<line>:<col>: <severity>[<code>]: <message>
//
// followed by the source excerpt with caret underlines, secondary
// annotations, notes, help, and fix titles.
func Pretty(w io.Writer, issues []diag.Issue, fs *source.FileSet, opts PrettyOpts) {
	p := newPalette(opts.Color)
	for _, issue := range issues {
		prettyIssue(w, issue, fs, opts, p)
	}
}

func prettyIssue(w io.Writer, issue diag.Issue, fs *source.FileSet, opts PrettyOpts, p palette) {
	primary := issue.Primary()
	loc := formatLocation(fs, primary, opts.PathMode)

	fmt.Fprintf(w, "%s: %s[%s]: %s\n",
		loc,
		p.severity(issue.Level).Sprint(issue.Level.String()),
		p.code.Sprint(string(issue.Code)),
		issue.Message)

	if opts.Context >= 0 {
		writeExcerpt(w, fs, primary, "", opts.Context, p)
	}

	for _, ann := range issue.Annotations {
		if ann.Kind == diag.AnnotationPrimary {
			continue
		}
		fmt.Fprintf(w, "  %s: %s\n", formatLocation(fs, ann.Span, opts.PathMode), ann.Msg)
		if opts.Context >= 0 {
			writeExcerpt(w, fs, ann.Span, ann.Msg, 0, p)
		}
	}

	if opts.ShowNotes {
		for _, note := range issue.Notes {
			fmt.Fprintf(w, "  %s %s\n", p.note.Sprint("= note:"), note.Msg)
		}
	}
	if issue.Help != "" {
		fmt.Fprintf(w, "  %s %s\n", p.help.Sprint("= help:"), issue.Help)
	}
	if issue.Link != "" {
		fmt.Fprintf(w, "  %s %s\n", p.note.Sprint("= see:"), issue.Link)
	}
	if opts.ShowFixes {
		for _, plan := range issue.Fixes {
			fmt.Fprintf(w, "  %s %s (%s, %d edit(s))\n",
				p.help.Sprint("fix:"), plan.Title, plan.Safety, len(plan.Edits))
		}
	}
}

func writeExcerpt(w io.Writer, fs *source.FileSet, span source.Span, label string, context int, p palette) {
	file := fs.Get(span.File)
	if file == nil {
		return
	}
	start, end := fs.Resolve(span)
	if start.Line == 0 {
		return
	}

	firstLine := start.Line
	if context > 0 && firstLine > uint32(context) {
		firstLine -= uint32(context)
	} else if context > 0 {
		firstLine = 1
	}

	width := digits(end.Line + uint32(context))
	for line := firstLine; line <= start.Line; line++ {
		text := file.GetLine(line)
		fmt.Fprintf(w, "  %s %s\n", p.gutter.Sprintf("%*d |", width, line), text)
	}

	// Underline only the first line of the span; multi-line spans get a
	// trailing marker instead of a full block.
	lineText := file.GetLine(start.Line)
	col := int(start.Col)
	if col < 1 {
		col = 1
	}
	length := 1
	if end.Line == start.Line && end.Col > start.Col {
		length = int(end.Col - start.Col)
	} else if end.Line > start.Line {
		length = len(lineText) - col + 1
	}
	if length < 1 {
		length = 1
	}
	underline := strings.Repeat(" ", col-1) + "^" + strings.Repeat("~", length-1)
	if label != "" {
		underline += " " + label
	}
	fmt.Fprintf(w, "  %s %s\n", p.gutter.Sprintf("%*s |", width, ""), p.err.Sprint(underline))
}

func formatLocation(fs *source.FileSet, span source.Span, mode PathMode) string {
	file := fs.Get(span.File)
	if file == nil {
		return "<unknown>"
	}
	start, _ := fs.Resolve(span)
	return fmt.Sprintf("%s:%d:%d", file.FormatPath(mode.format(), fs.BaseDir()), start.Line, start.Col)
}

func digits(n uint32) int {
	d := 1
	for n >= 10 {
		n /= 10
		d++
	}
	return d
}
