package flow

import (
	"mantis/internal/ttype"
)

// DefaultLoopPasses bounds the loop fix-point iteration. The first pass
// discovers assigned variables, the final pass issues diagnostics;
// passes in between fold types toward a fixed point.
const DefaultLoopPasses = 4

// MinLoopPasses is the lowest usable bound.
const MinLoopPasses = 2

// ClampLoopPasses normalizes a configured pass count: zero or negative
// means unset and takes the default, anything else is raised to the
// minimum.
func ClampLoopPasses(n int) int {
	if n <= 0 {
		return DefaultLoopPasses
	}
	if n < MinLoopPasses {
		return MinLoopPasses
	}
	return n
}

// LoopScope tracks one loop analysis: the pre-loop state, the variables
// assigned in the body, and the types carried by break/continue paths.
type LoopScope struct {
	// PreLocals is the variable state before the first iteration.
	PreLocals map[string]ttype.Union

	// AssignedInBody collects every var key the body assigns, discovered
	// in the first pass.
	AssignedInBody map[string]struct{}

	// BreakLocals accumulates the variable state at each break.
	BreakLocals []map[string]ttype.Union
}

// NewLoopScope snapshots the entry state.
func NewLoopScope(ctx *BlockContext) *LoopScope {
	pre := make(map[string]ttype.Union, len(ctx.Locals))
	for k, t := range ctx.Locals {
		pre[k] = t.Clone()
	}
	return &LoopScope{
		PreLocals:      pre,
		AssignedInBody: map[string]struct{}{},
	}
}

// RecordPass folds one body pass into the scope and reports whether the
// folded types changed (another pass is useful while true).
func (l *LoopScope) RecordPass(cb ttype.ClassProvider, before, after *BlockContext) bool {
	changed := false
	for key := range GetNewOrUpdatedLocals(before, after) {
		l.AssignedInBody[key] = struct{}{}

		newType, ok := after.Locals[key]
		if !ok {
			continue
		}
		pre, had := l.PreLocals[key]
		if !had {
			l.PreLocals[key] = newType.Clone()
			changed = true
			continue
		}
		folded := ttype.Combine(cb, pre, newType)
		if !ttype.UnionEqual(folded, pre) {
			l.PreLocals[key] = folded
			changed = true
		}
	}
	return changed
}

// RecordBreak snapshots the state at a break statement.
func (l *LoopScope) RecordBreak(ctx *BlockContext) {
	snap := make(map[string]ttype.Union, len(ctx.Locals))
	for k, t := range ctx.Locals {
		snap[k] = t.Clone()
	}
	l.BreakLocals = append(l.BreakLocals, snap)
}

// ApplyApproximation installs the folded types into a context for the
// next pass: every body-assigned variable widens to its fix-point
// approximation.
func (l *LoopScope) ApplyApproximation(ctx *BlockContext) {
	for key := range l.AssignedInBody {
		if t, ok := l.PreLocals[key]; ok {
			ctx.Locals[key] = t.Clone()
			ctx.VariablesPossiblyInScope[key] = struct{}{}
		}
	}
}

// MergeExitState folds break-path states into the post-loop context. The
// loop may also have exited from its header, so body-assigned variables
// combine with (rather than replace) the header state.
func (l *LoopScope) MergeExitState(cb ttype.ClassProvider, ctx *BlockContext) {
	for _, snap := range l.BreakLocals {
		for k, t := range snap {
			if have, ok := ctx.Locals[k]; ok {
				ctx.Locals[k] = ttype.Combine(cb, have, t)
			} else {
				u := t.Clone()
				u.PossiblyUndefined = true
				ctx.Locals[k] = u
				ctx.VariablesPossiblyInScope[k] = struct{}{}
			}
		}
	}
}
