package ttype

import (
	"math"
	"slices"
)

// Subtract produces the largest representable union whose values are in a
// and not in b. When a piece of b is not subtractive for some atomic the
// atomic survives unchanged; when everything is consumed the result is
// never.
//
// Subtracting mixed consumes everything: no value lies outside mixed.
func Subtract(cb ClassProvider, a, b Union) Union {
	for _, y := range b.Atomics {
		if y.Kind == KindMixed {
			return neverLike(a)
		}
	}

	pieces := slices.Clone(a.Atomics)
	for _, y := range b.Atomics {
		next := make([]Atomic, 0, len(pieces))
		for _, x := range pieces {
			next = append(next, subtractAtomic(cb, x, y)...)
		}
		pieces = next
	}

	if len(pieces) == 0 {
		return neverLike(a)
	}
	out := NewUnion(NormalizeAtomics(cb, pieces)...)
	out.ParentNodes = slices.Clone(a.ParentNodes)
	out.PossiblyUndefined = a.PossiblyUndefined
	out.FromDocblock = a.FromDocblock
	return out
}

func neverLike(a Union) Union {
	out := Never()
	out.ParentNodes = slices.Clone(a.ParentNodes)
	return out
}

// subtractAtomic returns the pieces of x remaining after removing y.
func subtractAtomic(cb ClassProvider, x, y Atomic) []Atomic {
	if x.Kind == KindNever {
		return nil
	}
	if AtomicContains(cb, y, x, false) {
		return nil
	}

	switch {
	case x.Kind == KindBool && x.BoolVal == nil && y.Kind == KindBool && y.BoolVal != nil:
		return []Atomic{MakeLiteralBool(!*y.BoolVal)}

	case x.Kind == KindInt && x.IntVal == nil && y.Kind == KindInt && y.IntVal != nil:
		return splitIntAround(*y.IntVal)

	case x.Kind == KindInt && x.IntVal == nil && y.Kind == KindIntRange && y.Range != nil:
		return subtractRange(IntRange{Lo: Bound{Kind: BoundInf}, Hi: Bound{Kind: BoundInf}}, *y.Range)

	case x.Kind == KindIntRange && x.Range != nil && y.Kind == KindInt && y.IntVal != nil:
		return subtractRange(*x.Range, IntRange{
			Lo: Bound{Kind: BoundClosed, Value: *y.IntVal},
			Hi: Bound{Kind: BoundClosed, Value: *y.IntVal},
		})

	case x.Kind == KindIntRange && x.Range != nil && y.Kind == KindIntRange && y.Range != nil:
		return subtractRange(*x.Range, *y.Range)

	case x.Kind == KindScalar:
		// scalar minus a whole scalar family leaves the other families.
		switch y.Kind {
		case KindBool, KindInt, KindFloat, KindString:
			if y.IsLiteral() {
				return []Atomic{x}
			}
			out := make([]Atomic, 0, 3)
			for _, k := range []Kind{KindBool, KindInt, KindFloat, KindString} {
				if k != y.Kind {
					out = append(out, Atomic{Kind: k})
				}
			}
			return out
		}
		return []Atomic{x}

	case x.Kind == KindArrayKey:
		switch y.Kind {
		case KindString:
			if y.StrVal == nil {
				return []Atomic{MakeInt()}
			}
		case KindInt:
			if y.IntVal == nil {
				return []Atomic{MakeString()}
			}
		}
		return []Atomic{x}
	}

	// Not a subtractive shape for this atomic: keep it unchanged.
	return []Atomic{x}
}

func splitIntAround(v int64) []Atomic {
	var out []Atomic
	if v != math.MinInt64 {
		out = append(out, MakeIntRange(Bound{Kind: BoundInf}, Bound{Kind: BoundClosed, Value: v - 1}))
	}
	if v != math.MaxInt64 {
		out = append(out, MakeIntRange(Bound{Kind: BoundClosed, Value: v + 1}, Bound{Kind: BoundInf}))
	}
	return out
}

// subtractRange removes cut from base, yielding zero, one or two ranges.
func subtractRange(base, cut IntRange) []Atomic {
	if !rangesOverlap(base, cut) {
		return []Atomic{rangeAtomic(base)}
	}

	var out []Atomic
	// Left remainder: base.lo .. cut.lo-1
	if cut.Lo.Kind != BoundInf {
		leftHi := cut.Lo.Value
		if cut.Lo.Kind == BoundClosed {
			leftHi--
		}
		left := IntRange{Lo: base.Lo, Hi: Bound{Kind: BoundClosed, Value: leftHi}}
		if rangeNonEmpty(left) {
			out = append(out, rangeAtomic(left))
		}
	}
	// Right remainder: cut.hi+1 .. base.hi
	if cut.Hi.Kind != BoundInf {
		rightLo := cut.Hi.Value
		if cut.Hi.Kind == BoundClosed {
			rightLo++
		}
		right := IntRange{Lo: Bound{Kind: BoundClosed, Value: rightLo}, Hi: base.Hi}
		if rangeNonEmpty(right) {
			out = append(out, rangeAtomic(right))
		}
	}
	return out
}

func rangeNonEmpty(r IntRange) bool {
	if r.Lo.Kind == BoundInf || r.Hi.Kind == BoundInf {
		return true
	}
	lo, hi := r.Lo.Value, r.Hi.Value
	if r.Lo.Kind == BoundOpen {
		lo++
	}
	if r.Hi.Kind == BoundOpen {
		hi--
	}
	return lo <= hi
}

func rangeAtomic(r IntRange) Atomic {
	// A one-value range is the literal.
	if r.Lo.Kind == BoundClosed && r.Hi.Kind == BoundClosed && r.Lo.Value == r.Hi.Value {
		return MakeLiteralInt(r.Lo.Value)
	}
	return MakeIntRange(r.Lo, r.Hi)
}
