package flow

import (
	"mantis/internal/clause"
	"mantis/internal/source"
	"mantis/internal/ttype"
)

// MergeBranches joins two branch contexts into the frame that follows the
// construct. A terminated branch contributes no locals; when both
// terminate the merged frame is dead.
func MergeBranches(cb ttype.ClassProvider, a, b *BlockContext) *BlockContext {
	aDead := a.Terminated()
	bDead := b.Terminated()

	switch {
	case aDead && bDead:
		out := a.Clone()
		out.HasReturned = true
		mergeBookkeeping(out, b)
		for action := range b.ControlActions {
			out.ControlActions[action] = struct{}{}
		}
		out.Clauses = nil
		out.ReconciledExpressionClauses = nil
		return out
	case aDead:
		out := b.Clone()
		mergeBookkeeping(out, a)
		return out
	case bDead:
		out := a.Clone()
		mergeBookkeeping(out, b)
		return out
	}

	out := a.Clone()
	out.HasReturned = false

	// Intersect locals: both branches define it, combine; only one does,
	// keep it flagged possibly undefined.
	merged := make(map[string]ttype.Union, len(a.Locals))
	for key, at := range a.Locals {
		if bt, ok := b.Locals[key]; ok {
			merged[key] = ttype.Combine(cb, at, bt)
			continue
		}
		t := at.Clone()
		t.PossiblyUndefined = true
		merged[key] = t
	}
	for key, bt := range b.Locals {
		if _, ok := a.Locals[key]; ok {
			continue
		}
		t := bt.Clone()
		t.PossiblyUndefined = true
		merged[key] = t
	}
	out.Locals = merged

	mergeBookkeeping(out, b)

	// The path predicate after the join is the disjunction of the two
	// branch predicates; distribute and simplify, dropping everything
	// when the blow-up bound trips.
	out.Clauses = mergeClauses(a.Clauses, b.Clauses)

	// Only reconciliations that held on both paths still hold after the
	// join; the rest of the memo is stale.
	out.ReconciledExpressionClauses = intersectHashes(a.ReconciledExpressionClauses, b.ReconciledExpressionClauses)
	return out
}

func intersectHashes(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	inB := make(map[string]struct{}, len(b))
	for _, h := range b {
		inB[h] = struct{}{}
	}
	var out []string
	for _, h := range a {
		if _, ok := inB[h]; ok {
			out = append(out, h)
		}
	}
	return out
}

// mergeBookkeeping unions scope, assignment and exception bookkeeping of
// other into dst. Control actions stay out: a terminated branch must not
// kill the merged frame when the other branch falls through.
func mergeBookkeeping(dst, other *BlockContext) {
	for k := range other.VariablesPossiblyInScope {
		dst.VariablesPossiblyInScope[k] = struct{}{}
	}
	for k := range other.PossiblyAssignedVariableIDs {
		dst.PossiblyAssignedVariableIDs[k] = struct{}{}
	}
	for k := range other.ConditionallyReferencedVariableIDs {
		dst.ConditionallyReferencedVariableIDs[k] = struct{}{}
	}
	for k := range other.ParentConflictingClauseVariables {
		dst.ParentConflictingClauseVariables[k] = struct{}{}
	}
	// Generations sum across branches; consumers only compare for
	// inequality, so any branch's assignment makes the merged value
	// differ from the pre-branch one.
	for k, v := range other.AssignedVariableIDs {
		dst.AssignedVariableIDs[k] += v
	}
	for cls, spans := range other.PossiblyThrownExceptions {
		if dst.PossiblyThrownExceptions[cls] == nil {
			dst.PossiblyThrownExceptions[cls] = map[source.Span]struct{}{}
		}
		for s := range spans {
			dst.PossiblyThrownExceptions[cls][s] = struct{}{}
		}
	}
}

// mergeClauses computes simplify((A) ∨ (B)) as CNF. Clauses common to
// both sides survive directly; the rest distribute pairwise, bounded.
func mergeClauses(a, b []*clause.Clause) []*clause.Clause {
	var common []*clause.Clause
	bHashes := make(map[string]bool, len(b))
	for _, c := range b {
		bHashes[c.Hash()] = true
	}
	var restA []*clause.Clause
	for _, c := range a {
		if c.Wedge {
			common = append(common, c)
			continue
		}
		if bHashes[c.Hash()] {
			common = append(common, c)
		} else {
			restA = append(restA, c)
		}
	}
	commonHashes := make(map[string]bool, len(common))
	for _, c := range common {
		commonHashes[c.Hash()] = true
	}
	var restB []*clause.Clause
	for _, c := range b {
		if !c.Wedge && !commonHashes[c.Hash()] {
			restB = append(restB, c)
		}
	}

	if len(restA) == 0 || len(restB) == 0 {
		return clause.Simplify(common)
	}
	if len(restA)*len(restB) > clause.DefaultNegationLimit {
		return clause.Simplify(common)
	}

	// (c1 ∧ c2) ∨ (d1 ∧ d2) distributes to conjunctions of pairwise
	// disjunctions ci ∨ dj.
	out := common
	for _, ca := range restA {
		for _, cb := range restB {
			if merged := disjoinClauses(ca, cb); merged != nil {
				out = append(out, merged)
			}
		}
	}
	return clause.Simplify(out)
}

func disjoinClauses(a, b *clause.Clause) *clause.Clause {
	poss := make(map[string][]clause.Assertion, len(a.Possibilities)+len(b.Possibilities))
	for k, v := range a.Possibilities {
		poss[k] = append([]clause.Assertion(nil), v...)
	}
	for k, v := range b.Possibilities {
	next:
		for _, x := range v {
			for _, have := range poss[k] {
				if have.Hash() == x.Hash() {
					continue next
				}
			}
			poss[k] = append(poss[k], x)
		}
	}
	if len(poss) == 0 {
		return nil
	}
	return clause.New(poss, a.Span.Cover(b.Span), false, true, true)
}
