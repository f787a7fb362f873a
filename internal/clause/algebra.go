package clause

import (
	"mantis/internal/source"
	"mantis/internal/ttype"
)

// DefaultNegationLimit bounds the clause count produced by formula
// negation; beyond it the negation is treated as unknowable.
const DefaultNegationLimit = 512

// NegateClause turns ¬(a1 ∨ a2 ∨ …) into the conjunction of singleton
// clauses ¬a1 ∧ ¬a2 ∧ …. Wedge clauses negate to nothing.
func NegateClause(c *Clause) []*Clause {
	if c == nil || c.Wedge {
		return nil
	}
	var out []*Clause
	for _, key := range c.Keys() {
		for _, a := range c.Possibilities[key] {
			out = append(out, Single(key, a.Negate(), c.Span, true))
		}
	}
	return out
}

// NegateFormula negates a conjunction of clauses back into CNF via
// distribution. Returns (nil, false) when the distributed form exceeds
// limit clauses (limit <= 0 uses DefaultNegationLimit).
func NegateFormula(clauses []*Clause, limit int) ([]*Clause, bool) {
	if limit <= 0 {
		limit = DefaultNegationLimit
	}

	// Each negated clause is a conjunction of singletons; the formula's
	// negation is their disjunction. Distributing OR over AND picks one
	// singleton per negated clause.
	groups := make([][]*Clause, 0, len(clauses))
	for _, c := range clauses {
		neg := NegateClause(c)
		if len(neg) == 0 {
			continue
		}
		groups = append(groups, neg)
	}
	if len(groups) == 0 {
		return nil, true
	}

	product := 1
	for _, g := range groups {
		product *= len(g)
		if product > limit {
			return nil, false
		}
	}

	result := []*Clause{nil} // nil seed: empty partial combination
	for _, g := range groups {
		next := make([]*Clause, 0, len(result)*len(g))
		for _, partial := range result {
			for _, singleton := range g {
				next = append(next, disjoin(partial, singleton))
			}
		}
		result = next
	}
	return Simplify(result), true
}

// disjoin merges singleton's possibilities into partial (a disjunction).
func disjoin(partial, singleton *Clause) *Clause {
	if partial == nil {
		return singleton
	}
	poss := make(map[string][]Assertion, len(partial.Possibilities)+1)
	for k, v := range partial.Possibilities {
		poss[k] = append([]Assertion(nil), v...)
	}
	for k, v := range singleton.Possibilities {
		for _, a := range v {
			if !containsAssertion(poss[k], a) {
				poss[k] = append(poss[k], a)
			}
		}
	}
	return New(poss, partial.Span.Cover(singleton.Span), false, true, true)
}

func containsAssertion(list []Assertion, a Assertion) bool {
	h := a.Hash()
	for _, x := range list {
		if x.Hash() == h {
			return true
		}
	}
	return false
}

// Simplify removes duplicate and subsumed clauses and resolves pairs of
// clauses that differ only in one mutually-negated assertion.
func Simplify(clauses []*Clause) []*Clause {
	// Dedup by hash, wedges untouched.
	seen := make(map[string]bool, len(clauses))
	unique := make([]*Clause, 0, len(clauses))
	for _, c := range clauses {
		if c == nil {
			continue
		}
		if c.Wedge {
			unique = append(unique, c)
			continue
		}
		h := c.Hash()
		if seen[h] {
			continue
		}
		seen[h] = true
		unique = append(unique, c)
	}

	// Resolution: (P ∨ A) ∧ (P ∨ ¬A) → P.
	resolved := resolvePairs(unique)

	// Subsumption: a clause implied by a stronger sibling is dropped.
	out := make([]*Clause, 0, len(resolved))
	for i, c := range resolved {
		if c.Wedge {
			out = append(out, c)
			continue
		}
		subsumed := false
		for j, other := range resolved {
			if i == j || other.Wedge {
				continue
			}
			if subsumes(other, c) && !(subsumes(c, other) && i < j) {
				subsumed = true
				break
			}
		}
		if !subsumed {
			out = append(out, c)
		}
	}
	return out
}

// subsumes reports whether a implies b: every possibility of a appears in
// b (a is the stronger, smaller disjunction).
func subsumes(a, b *Clause) bool {
	if len(a.Possibilities) > len(b.Possibilities) {
		return false
	}
	for k, as := range a.Possibilities {
		bs, ok := b.Possibilities[k]
		if !ok {
			return false
		}
		for _, x := range as {
			if !containsAssertion(bs, x) {
				return false
			}
		}
	}
	return true
}

func resolvePairs(clauses []*Clause) []*Clause {
	out := append([]*Clause(nil), clauses...)
	changed := true
	for changed {
		changed = false
		for i := 0; i < len(out) && !changed; i++ {
			if out[i].Wedge {
				continue
			}
			for j := i + 1; j < len(out); j++ {
				if out[j].Wedge {
					continue
				}
				if merged, ok := resolvePair(out[i], out[j]); ok {
					rest := make([]*Clause, 0, len(out)-1)
					for k, c := range out {
						if k != i && k != j {
							rest = append(rest, c)
						}
					}
					if merged != nil {
						rest = append(rest, merged)
					}
					out = rest
					changed = true
					break
				}
			}
		}
	}
	return out
}

// resolvePair merges two clauses identical on all vars except one where
// each holds a single assertion and the assertions are mutual negations.
func resolvePair(a, b *Clause) (*Clause, bool) {
	if len(a.Possibilities) != len(b.Possibilities) {
		return nil, false
	}
	diffKey := ""
	for k, as := range a.Possibilities {
		bs, ok := b.Possibilities[k]
		if !ok {
			return nil, false
		}
		if assertionsEqual(as, bs) {
			continue
		}
		if diffKey != "" {
			return nil, false
		}
		if len(as) != 1 || len(bs) != 1 || !as[0].IsNegationOf(bs[0]) {
			return nil, false
		}
		diffKey = k
	}
	if diffKey == "" {
		// Identical clauses; keep one.
		return a, true
	}
	merged := a.RemoveKey(diffKey)
	return merged, true
}

func assertionsEqual(a, b []Assertion) bool {
	if len(a) != len(b) {
		return false
	}
	for _, x := range a {
		if !containsAssertion(b, x) {
			return false
		}
	}
	return true
}

// RemoveReconciledRefs partitions clauses into those untouched by the
// changed vars (kept) and those mentioning a changed var or one of its
// member chains (rejected). Wedge clauses are always kept.
func RemoveReconciledRefs(clauses []*Clause, changedVars []string) (kept, rejected []*Clause) {
	for _, c := range clauses {
		if c.Wedge {
			kept = append(kept, c)
			continue
		}
		hit := false
		for key := range c.Possibilities {
			for _, root := range changedVars {
				if VarHasRoot(key, root) {
					hit = true
					break
				}
			}
			if hit {
				break
			}
		}
		if hit {
			rejected = append(rejected, c)
		} else {
			kept = append(kept, c)
		}
	}
	return kept, rejected
}

// ConsistencyCheck reports whether an assertion remains satisfiable when
// its variable now has the given type. The flow layer wires the
// reconciler in through this indirection.
type ConsistencyCheck func(a Assertion, t ttype.Union) bool

// FilterClauses keeps the clauses that either do not mention a chain
// rooted at removeVar, or whose assertions about removeVar stay consistent
// with newType. newType == nil keeps exactly the clauses that do not
// mention the root. Wedge clauses are always kept.
func FilterClauses(clauses []*Clause, removeVar string, newType *ttype.Union, check ConsistencyCheck) []*Clause {
	out := make([]*Clause, 0, len(clauses))
	for _, c := range clauses {
		if c.Wedge {
			out = append(out, c)
			continue
		}
		if !c.Mentions(removeVar) {
			out = append(out, c)
			continue
		}
		if newType == nil || check == nil {
			continue
		}
		ok := true
		for key, assertions := range c.Possibilities {
			if !VarHasRoot(key, removeVar) {
				continue
			}
			if key != removeVar {
				// A member chain of the reassigned root: nothing is known
				// about the member anymore.
				ok = false
				break
			}
			for _, a := range assertions {
				if !check(a, *newType) {
					ok = false
					break
				}
			}
			if !ok {
				break
			}
		}
		if ok {
			out = append(out, c)
		}
	}
	return out
}

// FromAssertions builds one reconcilable clause per key from an
// assertion map, used by the formula builder.
func FromAssertions(assertions map[string][]Assertion, span source.Span) []*Clause {
	var out []*Clause
	for key, list := range assertions {
		for _, a := range list {
			out = append(out, Single(key, a, span, false))
		}
	}
	return out
}
