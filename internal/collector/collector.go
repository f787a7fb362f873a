package collector

import (
	"mantis/internal/diag"
	"mantis/internal/source"
)

// Collector filters one category's diagnostics for one module through
// the module's pragmas. Not safe for concurrent use; each module
// analysis owns its collectors.
type Collector struct {
	category string
	fileSet  *source.FileSet
	file     source.FileID
	debug    bool

	pragmas []*Pragma
	issues  []diag.Issue

	// recordings is a stack of capture buffers; while non-empty, reports
	// bypass pragma matching and land in the top buffer.
	recordings [][]diag.Issue
}

// New builds a collector for one module.
func New(category string, fs *source.FileSet, file source.FileID, pragmas []*Pragma, debug bool) *Collector {
	return &Collector{
		category: category,
		fileSet:  fs,
		file:     file,
		debug:    debug,
		pragmas:  pragmas,
	}
}

// Category names the diagnostic category this collector serves.
func (c *Collector) Category() string { return c.category }

// Report files an issue, consulting pragmas unless a recording is
// active. Uncoded issues are an internal error.
func (c *Collector) Report(issue diag.Issue) {
	if issue.Code == "" {
		if c.debug {
			c.issues = append(c.issues, diag.Error(diag.CodeInternalError,
				issue.Primary(), "issue reported without a code"))
		}
		return
	}

	if n := len(c.recordings); n > 0 {
		c.recordings[n-1] = append(c.recordings[n-1], issue)
		return
	}

	if p := c.bestMatch(issue); p != nil {
		p.used = true
		return
	}
	c.issues = append(c.issues, issue)
}

// bestMatch finds the pragma suppressing the issue, if any. Inline
// pragmas beat own-line ones; within the same kind the latest line wins.
func (c *Collector) bestMatch(issue diag.Issue) *Pragma {
	primary := issue.Primary()
	if primary.Empty() && primary.File == 0 {
		return nil
	}
	issueLine := c.fileSet.Line(primary.File, primary.Start)

	var best *Pragma
	bestInline := false
	for _, p := range c.pragmas {
		if p.Code != "" && p.Code != issue.Code {
			continue
		}
		inline, ok := c.pragmaApplies(p, primary, issueLine)
		if !ok {
			continue
		}
		switch {
		case best == nil:
			best, bestInline = p, inline
		case inline && !bestInline:
			best, bestInline = p, inline
		case inline == bestInline && p.Line > best.Line:
			best = p
		}
	}
	return best
}

// pragmaApplies reports whether the pragma covers the primary span, and
// whether it matched as an inline pragma.
func (c *Collector) pragmaApplies(p *Pragma, primary source.Span, issueLine uint32) (inline, ok bool) {
	// An issue raised on the pragma's own comment always matches.
	if primary.File == p.Span.File && p.Span.Contains(primary) {
		return false, true
	}
	if p.Scope != nil {
		return false, p.Scope.File == primary.File && p.Scope.Contains(primary)
	}
	if primary.File != p.Span.File {
		return false, false
	}
	if p.OwnLine {
		return false, issueLine > p.Line
	}
	return true, issueLine == p.Line
}

// StartRecording installs a nested capture buffer.
func (c *Collector) StartRecording() {
	c.recordings = append(c.recordings, nil)
}

// FinishRecording removes the top buffer and returns what it captured.
func (c *Collector) FinishRecording() []diag.Issue {
	n := len(c.recordings)
	if n == 0 {
		return nil
	}
	captured := c.recordings[n-1]
	c.recordings = c.recordings[:n-1]
	return captured
}

// Recording reports whether a capture buffer is active.
func (c *Collector) Recording() bool { return len(c.recordings) > 0 }

// Finish emits unused-pragma notes and unfulfilled-expect warnings, then
// returns every retained issue.
func (c *Collector) Finish() []diag.Issue {
	for _, p := range c.pragmas {
		if p.used {
			continue
		}
		switch p.Kind {
		case PragmaIgnore:
			c.issues = append(c.issues, diag.NoteIssue(diag.CodeUnusedPragma,
				p.Span, "ignore pragma matched no issue"))
		case PragmaExpect:
			c.issues = append(c.issues, diag.Warning(diag.CodeUnfulfilledExpect,
				p.Span, "expected issue was not raised"))
		}
	}
	return c.issues
}
