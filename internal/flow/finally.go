package flow

import (
	"mantis/internal/source"
	"mantis/internal/ttype"
)

// FinallyScope is the explicit sink handle a try-with-finally threads
// through its try and catch analyses. Each body that finishes (or leaves)
// deposits its exit state here; the finally body is then analyzed against
// the union of all of them, and the buffered control actions propagate
// afterwards.
type FinallyScope struct {
	// Locals accumulates the combined variable state of every deposited
	// exit path.
	Locals map[string]ttype.Union

	// Actions buffers the control actions observed across try and catch
	// bodies.
	Actions map[ControlAction]struct{}

	// PossiblyThrown accumulates exceptions pending past the finally.
	PossiblyThrown map[source.NameID]map[source.Span]struct{}

	deposits int
}

// NewFinallyScope builds an empty sink.
func NewFinallyScope() *FinallyScope {
	return &FinallyScope{
		Locals:         map[string]ttype.Union{},
		Actions:        map[ControlAction]struct{}{},
		PossiblyThrown: map[source.NameID]map[source.Span]struct{}{},
	}
}

// Deposit folds one exit state into the sink. Variables missing from an
// earlier deposit become possibly undefined, matching the join rule.
func (f *FinallyScope) Deposit(cb ttype.ClassProvider, ctx *BlockContext) {
	if f.deposits == 0 {
		for k, t := range ctx.Locals {
			f.Locals[k] = t.Clone()
		}
	} else {
		for k, have := range f.Locals {
			if t, ok := ctx.Locals[k]; ok {
				f.Locals[k] = ttype.Combine(cb, have, t)
			} else {
				u := have.Clone()
				u.PossiblyUndefined = true
				f.Locals[k] = u
			}
		}
		for k, t := range ctx.Locals {
			if _, ok := f.Locals[k]; !ok {
				u := t.Clone()
				u.PossiblyUndefined = true
				f.Locals[k] = u
			}
		}
	}
	f.deposits++

	for a := range ctx.ControlActions {
		f.Actions[a] = struct{}{}
	}
	for cls, spans := range ctx.PossiblyThrownExceptions {
		if f.PossiblyThrown[cls] == nil {
			f.PossiblyThrown[cls] = map[source.Span]struct{}{}
		}
		for s := range spans {
			f.PossiblyThrown[cls][s] = struct{}{}
		}
	}
}

// Empty reports whether nothing was deposited.
func (f *FinallyScope) Empty() bool { return f.deposits == 0 }

// ApplyTo installs the buffered state into the context the finally body
// will run under, and propagates the pending control actions into the
// context that follows the whole construct.
func (f *FinallyScope) ApplyTo(ctx *BlockContext) {
	for k, t := range f.Locals {
		if have, ok := ctx.Locals[k]; !ok || !ttype.UnionEqual(have, t) {
			ctx.Locals[k] = t
		}
		ctx.VariablesPossiblyInScope[k] = struct{}{}
	}
	for a := range f.Actions {
		if a != ActionNone {
			ctx.ControlActions[a] = struct{}{}
		}
	}
	for cls, spans := range f.PossiblyThrown {
		for s := range spans {
			ctx.RecordPossiblyThrown(cls, s)
		}
	}
}
