package reconciler

import (
	"mantis/internal/ttype"
)

// intersect computes the greatest common subtype of two unions, pairwise
// over atomics. Flow metadata of the existing side is preserved.
func (r *Reconciler) intersect(existing, asserted ttype.Union) ttype.Union {
	var out []ttype.Atomic
	for _, e := range existing.Atomics {
		for _, a := range asserted.Atomics {
			if at, ok := r.intersectAtomics(e, a); ok {
				out = append(out, at)
			}
		}
	}
	if len(out) == 0 {
		return never(existing)
	}
	return rebuild(r.cb, existing, out)
}

func (r *Reconciler) intersectAtomics(e, a ttype.Atomic) (ttype.Atomic, bool) {
	// The contained side is the narrower one.
	if ttype.AtomicContains(r.cb, a, e, true) {
		return e, true
	}
	if ttype.AtomicContains(r.cb, e, a, true) {
		return a, true
	}

	if e.Kind == ttype.KindIntRange || a.Kind == ttype.KindIntRange {
		if er, ok := asRange(e); ok {
			if ar, ok2 := asRange(a); ok2 {
				if merged, nonEmpty := clampRange(er, ar); nonEmpty {
					return rangeResult(merged), true
				}
				return ttype.Atomic{}, false
			}
		}
	}

	// Two object arms that may denote the same instance intersect into a
	// combined arm (an interface narrowed against a class, or two
	// interfaces).
	if e.IsObjectLike() && a.IsObjectLike() &&
		ttype.CanBeIdentical(r.cb, ttype.NewUnion(e), ttype.NewUnion(a)) {
		return withIntersection(e, a), true
	}

	return ttype.Atomic{}, false
}

// asRange views a general int, literal int or range atomic as an interval.
func asRange(a ttype.Atomic) (ttype.IntRange, bool) {
	switch a.Kind {
	case ttype.KindIntRange:
		if a.Range != nil {
			return *a.Range, true
		}
	case ttype.KindInt:
		if a.IntVal != nil {
			b := ttype.Bound{Kind: ttype.BoundClosed, Value: *a.IntVal}
			return ttype.IntRange{Lo: b, Hi: b}, true
		}
		inf := ttype.Bound{Kind: ttype.BoundInf}
		return ttype.IntRange{Lo: inf, Hi: inf}, true
	}
	return ttype.IntRange{}, false
}

// clampRange restricts base to bound, reporting whether anything remains.
func clampRange(base, bound ttype.IntRange) (ttype.IntRange, bool) {
	out := base
	if tighterLo(bound.Lo, base.Lo) {
		out.Lo = bound.Lo
	}
	if tighterHi(bound.Hi, base.Hi) {
		out.Hi = bound.Hi
	}
	if !intervalNonEmpty(out) {
		return ttype.IntRange{}, false
	}
	return out, true
}

func tighterLo(a, b ttype.Bound) bool {
	if a.Kind == ttype.BoundInf {
		return false
	}
	if b.Kind == ttype.BoundInf {
		return true
	}
	if a.Value != b.Value {
		return a.Value > b.Value
	}
	return a.Kind == ttype.BoundOpen && b.Kind == ttype.BoundClosed
}

func tighterHi(a, b ttype.Bound) bool {
	if a.Kind == ttype.BoundInf {
		return false
	}
	if b.Kind == ttype.BoundInf {
		return true
	}
	if a.Value != b.Value {
		return a.Value < b.Value
	}
	return a.Kind == ttype.BoundOpen && b.Kind == ttype.BoundClosed
}

func intervalNonEmpty(r ttype.IntRange) bool {
	if r.Lo.Kind == ttype.BoundInf || r.Hi.Kind == ttype.BoundInf {
		return true
	}
	lo, hi := r.Lo.Value, r.Hi.Value
	if r.Lo.Kind == ttype.BoundOpen {
		lo++
	}
	if r.Hi.Kind == ttype.BoundOpen {
		hi--
	}
	return lo <= hi
}

// rangeResult collapses a single-value interval to a literal.
func rangeResult(r ttype.IntRange) ttype.Atomic {
	if r.Lo.Kind == ttype.BoundClosed && r.Hi.Kind == ttype.BoundClosed && r.Lo.Value == r.Hi.Value {
		return ttype.MakeLiteralInt(r.Lo.Value)
	}
	return ttype.MakeIntRange(r.Lo, r.Hi)
}

func withIntersection(base, extra ttype.Atomic) ttype.Atomic {
	if base.Object == nil {
		return base
	}
	obj := *base.Object
	obj.Intersections = append(append([]ttype.Atomic(nil), obj.Intersections...), extra)
	out := base
	out.Object = &obj
	return out
}
