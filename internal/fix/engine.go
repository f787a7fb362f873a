// Package fix applies the edit plans the analyzer attaches to issues.
// The analyzer only records plans; this engine selects, conflict-checks,
// and writes them.
package fix

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"mantis/internal/diag"
	"mantis/internal/source"
)

// ErrNoFixes is returned when nothing was applied.
var ErrNoFixes = errors.New("no applicable fixes found")

// Mode selects which plans to apply.
type Mode uint8

const (
	// ModeOnce applies the first safe plan only.
	ModeOnce Mode = iota
	// ModeAll applies every safe plan that does not conflict.
	ModeAll
	// ModeID applies the plan with the given id.
	ModeID
)

// Options configure one Apply run.
type Options struct {
	Mode Mode
	// TargetID selects the plan for ModeID.
	TargetID string
	// Unsafe also applies potentially-unsafe plans in ModeAll.
	Unsafe bool
}

// Applied records one successfully applied plan.
type Applied struct {
	ID        string
	Title     string
	Code      diag.Code
	Message   string
	Safety    diag.FixSafety
	Path      string
	EditCount int
}

// Skipped records a plan that was not applied and why.
type Skipped struct {
	ID     string
	Title  string
	Reason string
}

// FileChange summarises the edits written to one file.
type FileChange struct {
	Path      string
	EditCount int
}

// Result aggregates one Apply run.
type Result struct {
	Applied     []Applied
	Skipped     []Skipped
	FileChanges []FileChange
}

type candidate struct {
	issue diag.Issue
	plan  diag.FixPlan
	id    string
	order int
}

// Apply collects plans from issues, selects per opts, and writes the
// surviving edits to disk. Conflicting plans lose to earlier ones.
func Apply(fs *source.FileSet, issues []diag.Issue, opts Options) (*Result, error) {
	res := &Result{}
	if fs == nil {
		return res, fmt.Errorf("fix: nil FileSet")
	}

	cands, skips := gather(issues)
	res.Skipped = append(res.Skipped, skips...)
	if len(cands) == 0 {
		return res, ErrNoFixes
	}
	sortCandidates(cands)

	selected, skips := selectCandidates(cands, opts)
	res.Skipped = append(res.Skipped, skips...)
	if len(selected) == 0 {
		return res, ErrNoFixes
	}

	applied, skips, changes, err := apply(fs, selected)
	res.Applied = append(res.Applied, applied...)
	res.Skipped = append(res.Skipped, skips...)
	res.FileChanges = append(res.FileChanges, changes...)
	if err != nil {
		return res, err
	}
	if len(res.Applied) == 0 {
		return res, ErrNoFixes
	}
	return res, nil
}

// gather flattens issue fix plans into candidates. IDs are synthesized
// from the issue code and primary position so reruns stay stable.
func gather(issues []diag.Issue) ([]candidate, []Skipped) {
	var cands []candidate
	var skips []Skipped
	order := 0
	for _, issue := range issues {
		primary := issue.Primary()
		for idx, plan := range issue.Fixes {
			if len(plan.Edits) == 0 {
				skips = append(skips, Skipped{Title: plan.Title, Reason: "plan has no edits"})
				continue
			}
			cands = append(cands, candidate{
				issue: issue,
				plan:  plan,
				id:    fmt.Sprintf("%s-%d-%d-%d", issue.Code, primary.File, primary.Start, idx),
				order: order,
			})
			order++
		}
	}
	return cands, skips
}

// sortCandidates orders by primary span, then insertion order, for a
// deterministic selection.
func sortCandidates(cands []candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		pi, pj := cands[i].issue.Primary(), cands[j].issue.Primary()
		if pi.File != pj.File {
			return pi.File < pj.File
		}
		if pi.Start != pj.Start {
			return pi.Start < pj.Start
		}
		if pi.End != pj.End {
			return pi.End < pj.End
		}
		return cands[i].order < cands[j].order
	})
}

func selectCandidates(cands []candidate, opts Options) ([]candidate, []Skipped) {
	switch opts.Mode {
	case ModeID:
		for _, c := range cands {
			if c.id == opts.TargetID {
				return []candidate{c}, nil
			}
		}
		return nil, []Skipped{{ID: opts.TargetID, Reason: "fix id not found"}}
	case ModeAll:
		var selected []candidate
		var skipped []Skipped
		for _, c := range cands {
			if c.plan.Safety == diag.FixSafe ||
				(opts.Unsafe && c.plan.Safety == diag.FixPotentiallyUnsafe) {
				selected = append(selected, c)
				continue
			}
			skipped = append(skipped, Skipped{
				ID:     c.id,
				Title:  c.plan.Title,
				Reason: "safety is " + c.plan.Safety.String(),
			})
		}
		return selected, skipped
	case ModeOnce:
		var fallback *candidate
		for i := range cands {
			c := cands[i]
			if c.plan.Safety == diag.FixSafe {
				return []candidate{c}, nil
			}
			if fallback == nil {
				fallback = &c
			}
		}
		if fallback != nil {
			return []candidate{*fallback}, nil
		}
		return nil, nil
	}
	return nil, nil
}

func apply(fs *source.FileSet, selected []candidate) ([]Applied, []Skipped, []FileChange, error) {
	buffers := map[source.FileID][]byte{}
	appliedEdits := map[source.FileID][]diag.TextEdit{}
	editCount := map[source.FileID]int{}

	var applied []Applied
	var skipped []Skipped
	baseDir := fs.BaseDir()

	for _, c := range selected {
		buckets := groupByFile(c.plan.Edits)
		staged := map[source.FileID][]byte{}
		stagedApplied := map[source.FileID][]diag.TextEdit{}
		total := 0
		var skipReason string

		for fileID, edits := range buckets {
			file := fs.Get(fileID)
			if file == nil {
				skipReason = "unknown file"
				break
			}
			if file.Flags&source.FileVirtual != 0 {
				skipReason = "target file is virtual"
				break
			}
			if conflicts(appliedEdits[fileID], edits) {
				skipReason = "conflicts with a previously applied fix in " + file.FormatPath("auto", baseDir)
				break
			}

			working := buffers[fileID]
			if working == nil {
				working = append([]byte(nil), file.Content...)
			} else {
				working = append([]byte(nil), working...)
			}

			// Apply bottom-up so earlier offsets stay valid within the
			// plan; cross-plan offsets shift by the running delta.
			sort.SliceStable(edits, func(i, j int) bool {
				if edits[i].Span.Start == edits[j].Span.Start {
					return edits[i].Span.End > edits[j].Span.End
				}
				return edits[i].Span.Start > edits[j].Span.Start
			})
			prior := append([]diag.TextEdit(nil), appliedEdits[fileID]...)

			for _, edit := range edits {
				start := int(edit.Span.Start) + deltaAt(prior, int(edit.Span.Start))
				end := int(edit.Span.End) + deltaAt(prior, int(edit.Span.End))
				if start < 0 || end < start || end > len(working) {
					skipReason = "edit span out of range"
					break
				}
				if edit.OldText != "" && string(working[start:end]) != edit.OldText {
					skipReason = "existing text does not match expected content"
					break
				}
				suffix := append([]byte(nil), working[end:]...)
				working = append(append(working[:start], []byte(edit.NewText)...), suffix...)
				prior = insertSorted(prior, edit)
			}
			if skipReason != "" {
				break
			}
			staged[fileID] = working
			stagedApplied[fileID] = prior
			total += len(edits)
		}

		if skipReason != "" {
			skipped = append(skipped, Skipped{ID: c.id, Title: c.plan.Title, Reason: skipReason})
			continue
		}

		for fileID, buf := range staged {
			buffers[fileID] = buf
			appliedEdits[fileID] = stagedApplied[fileID]
			editCount[fileID] += len(buckets[fileID])
		}
		applied = append(applied, Applied{
			ID:        c.id,
			Title:     c.plan.Title,
			Code:      c.issue.Code,
			Message:   c.issue.Message,
			Safety:    c.plan.Safety,
			Path:      pathOf(fs, c.issue.Primary().File),
			EditCount: total,
		})
	}

	if len(applied) == 0 {
		return applied, skipped, nil, nil
	}

	var changes []FileChange
	for fileID, buf := range buffers {
		file := fs.Get(fileID)
		mode := os.FileMode(0o644)
		if info, err := os.Stat(file.Path); err == nil {
			mode = info.Mode()
		}
		if err := os.WriteFile(file.Path, buf, mode); err != nil {
			return applied, skipped, changes, fmt.Errorf("write %s: %w", file.Path, err)
		}
		changes = append(changes, FileChange{
			Path:      file.FormatPath("relative", baseDir),
			EditCount: editCount[fileID],
		})
	}
	sort.SliceStable(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return applied, skipped, changes, nil
}

func conflicts(existing, edits []diag.TextEdit) bool {
	for _, prev := range existing {
		for _, cand := range edits {
			if spansOverlap(prev, cand) {
				return true
			}
		}
	}
	return false
}

// spansOverlap treats spans as half-open intervals. Two insertions at the
// same point do not conflict; an insertion inside a replaced span does.
func spansOverlap(a, b diag.TextEdit) bool {
	aStart, aEnd := a.Span.Start, a.Span.End
	bStart, bEnd := b.Span.Start, b.Span.End
	if aStart == aEnd && bStart == bEnd {
		return false
	}
	if aStart == aEnd {
		return bStart <= aStart && aStart < bEnd
	}
	if bStart == bEnd {
		return aStart <= bStart && bStart < aEnd
	}
	return aStart < bEnd && bStart < aEnd
}

func groupByFile(edits []diag.TextEdit) map[source.FileID][]diag.TextEdit {
	buckets := map[source.FileID][]diag.TextEdit{}
	for _, edit := range edits {
		buckets[edit.Span.File] = append(buckets[edit.Span.File], edit)
	}
	return buckets
}

// deltaAt is the cumulative length change of edits fully before pos.
func deltaAt(edits []diag.TextEdit, pos int) int {
	delta := 0
	for _, e := range edits {
		if int(e.Span.Start) > pos {
			break
		}
		if int(e.Span.End) <= pos {
			delta += len(e.NewText) - int(e.Span.End-e.Span.Start)
		}
	}
	return delta
}

func insertSorted(edits []diag.TextEdit, edit diag.TextEdit) []diag.TextEdit {
	idx := sort.Search(len(edits), func(i int) bool {
		if edits[i].Span.Start == edit.Span.Start {
			return edits[i].Span.End >= edit.Span.End
		}
		return edits[i].Span.Start > edit.Span.Start
	})
	edits = append(edits, diag.TextEdit{})
	copy(edits[idx+1:], edits[idx:])
	edits[idx] = edit
	return edits
}

func pathOf(fs *source.FileSet, id source.FileID) string {
	file := fs.Get(id)
	if file == nil {
		return ""
	}
	return file.FormatPath("auto", fs.BaseDir())
}
