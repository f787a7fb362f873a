// Package reconciler narrows variable types under assertions. It is the
// single place where a propositional fact about a variable key meets the
// type algebra.
package reconciler

import (
	"mantis/internal/clause"
	"mantis/internal/ttype"
)

// Outcome reports what a reconciliation did to the existing type.
type Outcome uint8

const (
	// OutcomeNotApplicable means the assertion says nothing about the
	// existing type; it is returned unchanged.
	OutcomeNotApplicable Outcome = iota
	// OutcomeRedundant means the existing type already satisfied the
	// assertion. Callers may surface a helpful diagnostic.
	OutcomeRedundant
	// OutcomeReconciled means the type was narrowed.
	OutcomeReconciled
	// OutcomeImpossible means no value satisfies both; the result is never.
	OutcomeImpossible
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotApplicable:
		return "not-applicable"
	case OutcomeRedundant:
		return "redundant"
	case OutcomeReconciled:
		return "reconciled"
	case OutcomeImpossible:
		return "impossible"
	}
	return "?"
}

// Reconciler narrows unions against assertions. It is stateless apart from
// the class provider and the shared expansion memo, so one instance serves
// a whole analysis run.
type Reconciler struct {
	cb       ttype.ClassProvider
	expander *ttype.Expander
	opts     ttype.ExpandOptions
}

// New builds a reconciler. expander may be nil (expansion then runs
// uncached).
func New(cb ttype.ClassProvider, expander *ttype.Expander, opts ttype.ExpandOptions) *Reconciler {
	if cb == nil {
		cb = ttype.NopProvider{}
	}
	return &Reconciler{cb: cb, expander: expander, opts: opts}
}

// Reconcile applies one assertion to the existing type of a variable key.
// With negated set the assertion's negation is applied instead. The result
// is a fresh union; existing is never mutated.
func (r *Reconciler) Reconcile(a clause.Assertion, existing ttype.Union, negated bool) (ttype.Union, Outcome) {
	if negated {
		a = a.Negate()
	}

	switch a.Kind {
	case clause.AssertIsType:
		return r.reconcileIsType(a, existing)
	case clause.AssertIsNotType:
		return r.reconcileIsNotType(a, existing)
	case clause.AssertTruthy:
		return r.reconcileTruthy(existing)
	case clause.AssertFalsy:
		return r.reconcileFalsy(existing)
	case clause.AssertIsIsset:
		return r.reconcileIsset(existing)
	case clause.AssertIsNotIsset:
		return r.reconcileNotIsset(existing)
	case clause.AssertIsEqual:
		return r.reconcileEqual(a, existing)
	case clause.AssertIsNotEqual:
		return r.reconcileNotEqual(a, existing)
	case clause.AssertHasArrayKey:
		return r.reconcileHasKey(a, existing)
	case clause.AssertNotHasArrayKey:
		return r.reconcileNotHasKey(a, existing)
	case clause.AssertNonEmptyCountable:
		return r.reconcileNonEmptyCountable(existing)
	case clause.AssertEmptyCountable:
		return r.reconcileEmptyCountable(existing)
	case clause.AssertHasExactCount:
		return r.reconcileExactCount(a.Count, existing)
	case clause.AssertNotHasExactCount:
		return r.reconcileNotExactCount(a.Count, existing)
	case clause.AssertGreaterThan, clause.AssertGreaterOrEqual,
		clause.AssertLessThan, clause.AssertLessOrEqual:
		return r.reconcileComparison(a, existing)
	}
	return existing.Clone(), OutcomeNotApplicable
}

// ConsistentWith adapts the reconciler to clause.ConsistencyCheck: an
// assertion is consistent with a type when applying it is not impossible.
func (r *Reconciler) ConsistentWith(a clause.Assertion, t ttype.Union) bool {
	_, outcome := r.Reconcile(a, t, false)
	return outcome != OutcomeImpossible
}

func (r *Reconciler) expand(t ttype.Union) ttype.Union {
	if r.expander != nil {
		return r.expander.Expand(r.cb, t, r.opts)
	}
	return ttype.ExpandUnion(r.cb, t, r.opts)
}

func (r *Reconciler) reconcileIsType(a clause.Assertion, existing ttype.Union) (ttype.Union, Outcome) {
	if a.Type == nil {
		return existing.Clone(), OutcomeNotApplicable
	}
	asserted := r.expand(*a.Type)

	inter := r.intersect(existing, asserted)
	if !inter.IsNever() {
		if ttype.UnionEqual(inter, existing) && !existing.PossiblyUndefined {
			return inter, OutcomeRedundant
		}
		return inter, OutcomeReconciled
	}
	if existing.HasMixed() {
		// Type acquisition: mixed carries no information to intersect with.
		acquired := asserted.Clone()
		acquired.ParentNodes = existing.ParentNodes
		return acquired, OutcomeReconciled
	}
	return never(existing), OutcomeImpossible
}

func (r *Reconciler) reconcileIsNotType(a clause.Assertion, existing ttype.Union) (ttype.Union, Outcome) {
	if a.Type == nil {
		return existing.Clone(), OutcomeNotApplicable
	}
	asserted := r.expand(*a.Type)

	res := ttype.Subtract(r.cb, existing, asserted)
	if res.IsNever() {
		return res, OutcomeImpossible
	}
	if ttype.UnionEqual(res, existing) {
		// Subtraction of object subtypes from an abstract supertype keeps
		// the union textually intact; that is not redundant.
		if existing.HasMixed() || hasObjectOverlap(r.cb, existing, asserted) {
			return res, OutcomeNotApplicable
		}
		return res, OutcomeRedundant
	}
	return res, OutcomeReconciled
}

func (r *Reconciler) reconcileTruthy(existing ttype.Union) (ttype.Union, Outcome) {
	var out []ttype.Atomic
	changed := existing.PossiblyUndefined
	for _, at := range existing.Atomics {
		switch {
		case at.IsFalsy():
			changed = true
		case at.Kind == ttype.KindBool && at.BoolVal == nil:
			out = append(out, ttype.MakeLiteralBool(true))
			changed = true
		case at.Kind == ttype.KindList && at.List != nil && at.List.Length == ttype.LengthUnknown:
			out = append(out, ttype.MakeNonEmptyList(at.List.Elem))
			changed = true
		case at.Kind == ttype.KindString && at.StrVal == nil:
			out = append(out, ttype.MakeNonEmptyString())
			changed = true
		default:
			out = append(out, at)
		}
	}
	if len(out) == 0 {
		return never(existing), OutcomeImpossible
	}
	res := rebuild(r.cb, existing, out)
	if !changed {
		return res, OutcomeRedundant
	}
	return res, OutcomeReconciled
}

func (r *Reconciler) reconcileFalsy(existing ttype.Union) (ttype.Union, Outcome) {
	var out []ttype.Atomic
	changed := false
	for _, at := range existing.Atomics {
		switch {
		case at.IsFalsy():
			out = append(out, at)
		case at.IsTruthy():
			changed = true
		case at.Kind == ttype.KindBool:
			out = append(out, ttype.MakeLiteralBool(false))
			changed = true
		case at.Kind == ttype.KindInt:
			out = append(out, ttype.MakeLiteralInt(0))
			changed = true
		case at.Kind == ttype.KindIntRange && at.Range != nil && at.Range.ContainsValue(0):
			out = append(out, ttype.MakeLiteralInt(0))
			changed = true
		case at.Kind == ttype.KindString || at.Kind == ttype.KindNumericString:
			out = append(out, ttype.MakeLiteralString(""), ttype.MakeLiteralString("0"))
			changed = true
		case at.Kind == ttype.KindList:
			out = append(out, ttype.MakeEmptyArray())
			changed = true
		case at.Kind == ttype.KindKeyedArray:
			out = append(out, ttype.MakeEmptyArray())
			changed = true
		default:
			// mixed, scalar and the like can still be falsy.
			out = append(out, at)
		}
	}
	if len(out) == 0 {
		return never(existing), OutcomeImpossible
	}
	res := rebuild(r.cb, existing, out)
	if !changed {
		return res, OutcomeRedundant
	}
	return res, OutcomeReconciled
}

func (r *Reconciler) reconcileIsset(existing ttype.Union) (ttype.Union, Outcome) {
	if existing.IsNull() {
		return never(existing), OutcomeImpossible
	}
	res := existing.WithoutNull()
	res.PossiblyUndefined = false
	if ttype.UnionEqual(res, existing) && !existing.PossiblyUndefined {
		return res, OutcomeRedundant
	}
	return res, OutcomeReconciled
}

func (r *Reconciler) reconcileNotIsset(existing ttype.Union) (ttype.Union, Outcome) {
	if !existing.IsNullable() && !existing.PossiblyUndefined && !existing.HasMixed() {
		return never(existing), OutcomeImpossible
	}
	res := ttype.Null()
	res.ParentNodes = existing.ParentNodes
	if existing.IsNull() {
		return res, OutcomeRedundant
	}
	return res, OutcomeReconciled
}

func (r *Reconciler) reconcileEqual(a clause.Assertion, existing ttype.Union) (ttype.Union, Outcome) {
	if a.Type == nil {
		return existing.Clone(), OutcomeNotApplicable
	}
	asserted := r.expand(*a.Type)

	inter := r.intersect(existing, asserted)
	if !inter.IsNever() {
		if ttype.UnionEqual(inter, existing) {
			return inter, OutcomeRedundant
		}
		return inter, OutcomeReconciled
	}
	if existing.HasMixed() {
		acquired := asserted.Clone()
		acquired.ParentNodes = existing.ParentNodes
		return acquired, OutcomeReconciled
	}
	// Loose equality can still hold across atomics we consider disjoint
	// ("0" == 0), so a failed intersection does not prove impossibility.
	return existing.Clone(), OutcomeNotApplicable
}

func (r *Reconciler) reconcileNotEqual(a clause.Assertion, existing ttype.Union) (ttype.Union, Outcome) {
	if a.Type == nil {
		return existing.Clone(), OutcomeNotApplicable
	}
	asserted := r.expand(*a.Type)
	if single, ok := asserted.Single(); ok && single.IsLiteral() {
		res := ttype.Subtract(r.cb, existing, asserted)
		if res.IsNever() {
			return res, OutcomeImpossible
		}
		if ttype.UnionEqual(res, existing) {
			return res, OutcomeNotApplicable
		}
		return res, OutcomeReconciled
	}
	return existing.Clone(), OutcomeNotApplicable
}

func (r *Reconciler) reconcileHasKey(a clause.Assertion, existing ttype.Union) (ttype.Union, Outcome) {
	var out []ttype.Atomic
	changed := false
	applicable := false
	for _, at := range existing.Atomics {
		switch at.Kind {
		case ttype.KindKeyedArray:
			applicable = true
			if at.Shape == nil {
				out = append(out, at)
				continue
			}
			entry, ok := at.Shape.Entry(a.Key)
			switch {
			case ok && !entry.Optional:
				out = append(out, at)
			case ok:
				out = append(out, requireShapeKey(at, a.Key))
				changed = true
			case at.Shape.Rest != nil:
				out = append(out, addShapeKey(at, a.Key, at.Shape.Rest.Value))
				changed = true
			default:
				// Closed shape without the key: this atomic cannot satisfy
				// the assertion.
				changed = true
			}
		case ttype.KindMixed:
			applicable = true
			out = append(out, ttype.MakeShape(ttype.ShapeEntry{
				Key:  a.Key,
				Type: ttype.Mixed(),
			}))
			changed = true
		case ttype.KindList:
			applicable = true
			if a.Key.IsInt && a.Key.Int >= 0 {
				if at.List != nil && at.List.Length == ttype.LengthUnknown && a.Key.Int == 0 {
					out = append(out, ttype.MakeNonEmptyList(at.List.Elem))
					changed = true
					continue
				}
			}
			out = append(out, at)
		default:
			out = append(out, at)
		}
	}
	if !applicable {
		return existing.Clone(), OutcomeNotApplicable
	}
	if len(out) == 0 {
		return never(existing), OutcomeImpossible
	}
	res := rebuild(r.cb, existing, out)
	if !changed {
		return res, OutcomeRedundant
	}
	return res, OutcomeReconciled
}

func (r *Reconciler) reconcileNotHasKey(a clause.Assertion, existing ttype.Union) (ttype.Union, Outcome) {
	var out []ttype.Atomic
	changed := false
	applicable := false
	for _, at := range existing.Atomics {
		if at.Kind != ttype.KindKeyedArray || at.Shape == nil {
			out = append(out, at)
			continue
		}
		applicable = true
		entry, ok := at.Shape.Entry(a.Key)
		switch {
		case ok && !entry.Optional:
			// The key is guaranteed present; this atomic is ruled out.
			changed = true
		case ok:
			out = append(out, removeShapeKey(at, a.Key))
			changed = true
		default:
			out = append(out, at)
		}
	}
	if !applicable {
		return existing.Clone(), OutcomeNotApplicable
	}
	if len(out) == 0 {
		return never(existing), OutcomeImpossible
	}
	res := rebuild(r.cb, existing, out)
	if !changed {
		return res, OutcomeRedundant
	}
	return res, OutcomeReconciled
}

func (r *Reconciler) reconcileNonEmptyCountable(existing ttype.Union) (ttype.Union, Outcome) {
	var out []ttype.Atomic
	changed := false
	applicable := false
	for _, at := range existing.Atomics {
		switch at.Kind {
		case ttype.KindList:
			applicable = true
			if at.List == nil {
				out = append(out, at)
				continue
			}
			switch at.List.Length {
			case ttype.LengthUnknown:
				out = append(out, ttype.MakeNonEmptyList(at.List.Elem))
				changed = true
			case ttype.LengthExact:
				if at.List.Count == 0 {
					changed = true
					continue
				}
				out = append(out, at)
			default:
				out = append(out, at)
			}
		case ttype.KindKeyedArray:
			applicable = true
			if at.Shape != nil && len(at.Shape.Entries) == 0 && at.Shape.Rest == nil {
				// The empty array literal.
				changed = true
				continue
			}
			out = append(out, at)
		default:
			out = append(out, at)
		}
	}
	if !applicable {
		return existing.Clone(), OutcomeNotApplicable
	}
	if len(out) == 0 {
		return never(existing), OutcomeImpossible
	}
	res := rebuild(r.cb, existing, out)
	if !changed {
		return res, OutcomeRedundant
	}
	return res, OutcomeReconciled
}

func (r *Reconciler) reconcileEmptyCountable(existing ttype.Union) (ttype.Union, Outcome) {
	var out []ttype.Atomic
	changed := false
	applicable := false
	for _, at := range existing.Atomics {
		switch at.Kind {
		case ttype.KindList:
			applicable = true
			if at.List != nil && (at.List.Length == ttype.LengthNonEmpty ||
				(at.List.Length == ttype.LengthExact && at.List.Count > 0)) {
				changed = true
				continue
			}
			if at.List != nil && at.List.Length == ttype.LengthExact && at.List.Count == 0 {
				out = append(out, at)
				continue
			}
			out = append(out, ttype.MakeEmptyArray())
			changed = true
		case ttype.KindKeyedArray:
			applicable = true
			if at.Shape != nil && hasRequiredEntry(at.Shape) {
				changed = true
				continue
			}
			out = append(out, ttype.MakeEmptyArray())
			changed = true
		default:
			out = append(out, at)
		}
	}
	if !applicable {
		return existing.Clone(), OutcomeNotApplicable
	}
	if len(out) == 0 {
		return never(existing), OutcomeImpossible
	}
	res := rebuild(r.cb, existing, out)
	if !changed {
		return res, OutcomeRedundant
	}
	return res, OutcomeReconciled
}

func (r *Reconciler) reconcileExactCount(n int, existing ttype.Union) (ttype.Union, Outcome) {
	var out []ttype.Atomic
	changed := false
	applicable := false
	for _, at := range existing.Atomics {
		if at.Kind != ttype.KindList || at.List == nil {
			out = append(out, at)
			continue
		}
		applicable = true
		switch at.List.Length {
		case ttype.LengthExact:
			if at.List.Count == n {
				out = append(out, at)
			} else {
				changed = true
			}
		case ttype.LengthNonEmpty:
			if n == 0 {
				changed = true
				continue
			}
			out = append(out, exactList(at.List.Elem, n))
			changed = true
		default:
			out = append(out, exactList(at.List.Elem, n))
			changed = true
		}
	}
	if !applicable {
		return existing.Clone(), OutcomeNotApplicable
	}
	if len(out) == 0 {
		return never(existing), OutcomeImpossible
	}
	res := rebuild(r.cb, existing, out)
	if !changed {
		return res, OutcomeRedundant
	}
	return res, OutcomeReconciled
}

func (r *Reconciler) reconcileNotExactCount(n int, existing ttype.Union) (ttype.Union, Outcome) {
	var out []ttype.Atomic
	changed := false
	for _, at := range existing.Atomics {
		if at.Kind == ttype.KindList && at.List != nil &&
			at.List.Length == ttype.LengthExact && at.List.Count == n {
			changed = true
			continue
		}
		out = append(out, at)
	}
	if len(out) == 0 {
		return never(existing), OutcomeImpossible
	}
	if !changed {
		return existing.Clone(), OutcomeNotApplicable
	}
	return rebuild(r.cb, existing, out), OutcomeReconciled
}

func (r *Reconciler) reconcileComparison(a clause.Assertion, existing ttype.Union) (ttype.Union, Outcome) {
	bound := comparisonRange(a)
	var out []ttype.Atomic
	changed := false
	applicable := false
	for _, at := range existing.Atomics {
		switch at.Kind {
		case ttype.KindInt:
			applicable = true
			if at.IntVal != nil {
				if bound.ContainsValue(*at.IntVal) {
					out = append(out, at)
				} else {
					changed = true
				}
				continue
			}
			out = append(out, ttype.MakeIntRange(bound.Lo, bound.Hi))
			changed = true
		case ttype.KindIntRange:
			applicable = true
			if at.Range == nil {
				out = append(out, at)
				continue
			}
			trimmed, ok := clampRange(*at.Range, bound)
			if !ok {
				changed = true
				continue
			}
			if trimmed != *at.Range {
				changed = true
			}
			out = append(out, ttype.MakeIntRange(trimmed.Lo, trimmed.Hi))
		default:
			out = append(out, at)
		}
	}
	if !applicable {
		return existing.Clone(), OutcomeNotApplicable
	}
	if len(out) == 0 {
		return never(existing), OutcomeImpossible
	}
	res := rebuild(r.cb, existing, out)
	if !changed {
		return res, OutcomeRedundant
	}
	return res, OutcomeReconciled
}

// comparisonRange converts an integer comparison into the interval its
// subject must lie in.
func comparisonRange(a clause.Assertion) ttype.IntRange {
	inf := ttype.Bound{Kind: ttype.BoundInf}
	switch a.Kind {
	case clause.AssertGreaterThan:
		return ttype.IntRange{Lo: ttype.Bound{Kind: ttype.BoundOpen, Value: a.Value}, Hi: inf}
	case clause.AssertGreaterOrEqual:
		return ttype.IntRange{Lo: ttype.Bound{Kind: ttype.BoundClosed, Value: a.Value}, Hi: inf}
	case clause.AssertLessThan:
		return ttype.IntRange{Lo: inf, Hi: ttype.Bound{Kind: ttype.BoundOpen, Value: a.Value}}
	default:
		return ttype.IntRange{Lo: inf, Hi: ttype.Bound{Kind: ttype.BoundClosed, Value: a.Value}}
	}
}

func never(existing ttype.Union) ttype.Union {
	out := ttype.Never()
	out.ParentNodes = existing.ParentNodes
	return out
}

// rebuild normalizes the narrowed atomics while preserving the union's
// flow metadata. PossiblyUndefined is deliberately dropped: every
// narrowing assertion proves the variable is defined on this path.
func rebuild(cb ttype.ClassProvider, existing ttype.Union, atomics []ttype.Atomic) ttype.Union {
	out := ttype.NewUnion(ttype.NormalizeAtomics(cb, atomics)...)
	out.ParentNodes = existing.ParentNodes
	out.FromDocblock = existing.FromDocblock
	return out
}

func hasRequiredEntry(s *ttype.ArrayShape) bool {
	for _, e := range s.Entries {
		if !e.Optional {
			return true
		}
	}
	return false
}

func exactList(elem ttype.Union, n int) ttype.Atomic {
	at := ttype.MakeList(elem)
	at.List.Length = ttype.LengthExact
	at.List.Count = n
	return at
}

func requireShapeKey(at ttype.Atomic, key ttype.PropertyKey) ttype.Atomic {
	shape := cloneShape(at.Shape)
	if entry, ok := shape.Entry(key); ok {
		entry.Optional = false
	}
	out := at
	out.Shape = shape
	return out
}

func addShapeKey(at ttype.Atomic, key ttype.PropertyKey, t ttype.Union) ttype.Atomic {
	shape := cloneShape(at.Shape)
	shape.Entries = append(shape.Entries, ttype.ShapeEntry{Key: key, Type: t})
	out := at
	out.Shape = shape
	return out
}

func removeShapeKey(at ttype.Atomic, key ttype.PropertyKey) ttype.Atomic {
	shape := cloneShape(at.Shape)
	entries := shape.Entries[:0]
	for _, e := range shape.Entries {
		if !e.Key.Equal(key) {
			entries = append(entries, e)
		}
	}
	shape.Entries = entries
	out := at
	out.Shape = shape
	return out
}

func cloneShape(s *ttype.ArrayShape) *ttype.ArrayShape {
	out := &ttype.ArrayShape{Entries: append([]ttype.ShapeEntry(nil), s.Entries...)}
	if s.Rest != nil {
		rest := *s.Rest
		out.Rest = &rest
	}
	return out
}

// hasObjectOverlap reports whether subtracting asserted from existing was
// a no-op only because object subtyping cannot be decided structurally.
func hasObjectOverlap(cb ttype.ClassProvider, existing, asserted ttype.Union) bool {
	for _, e := range existing.Atomics {
		if !e.IsObjectLike() {
			continue
		}
		for _, s := range asserted.Atomics {
			if s.IsObjectLike() && ttype.CanBeIdentical(cb, ttype.NewUnion(e), ttype.NewUnion(s)) {
				return true
			}
		}
	}
	return false
}
