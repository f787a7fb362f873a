package ttype

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// LiteralUnionThreshold is the number of same-kind literal singletons a
// union may hold before they collapse into the general type.
const LiteralUnionThreshold = 8

// Combine produces the smallest representable union containing both a and
// b. Commutative, associative and idempotent up to the canonical form.
func Combine(cb ClassProvider, a, b Union) Union {
	atomics := make([]Atomic, 0, len(a.Atomics)+len(b.Atomics))
	atomics = append(atomics, a.Atomics...)
	atomics = append(atomics, b.Atomics...)

	out := NewUnion(NormalizeAtomics(cb, atomics)...)
	out.ParentNodes = mergeHandles(a.ParentNodes, b.ParentNodes)
	out.PossiblyUndefined = a.PossiblyUndefined || b.PossiblyUndefined
	out.FromDocblock = a.FromDocblock && b.FromDocblock
	return out
}

// CombineMany folds Combine over the list. An empty list yields never.
func CombineMany(cb ClassProvider, unions ...Union) Union {
	if len(unions) == 0 {
		return Never()
	}
	out := unions[0]
	for _, u := range unions[1:] {
		out = Combine(cb, out, u)
	}
	return out
}

// AddOptional combines result with extra when extra is present; the
// branch-update merge threads optional types through this helper.
func AddOptional(cb ClassProvider, result Union, extra *Union) Union {
	if extra == nil {
		return result
	}
	return Combine(cb, result, *extra)
}

func mergeHandles(a, b []NodeHandle) []NodeHandle {
	if len(b) == 0 {
		return slices.Clone(a)
	}
	out := slices.Clone(a)
	for _, h := range b {
		if !slices.Contains(out, h) {
			out = append(out, h)
		}
	}
	return out
}

// NormalizeAtomics reduces a raw atomic list to canonical form: never
// dropped, mixed absorbing, mergeable pairs merged, subsumed members
// removed, literal runs collapsed, deterministic order.
func NormalizeAtomics(cb ClassProvider, atomics []Atomic) []Atomic {
	kept := make([]Atomic, 0, len(atomics))
	for _, a := range atomics {
		if a.Kind != KindNever {
			kept = append(kept, a)
		}
	}
	if len(kept) == 0 {
		return []Atomic{MakeNever()}
	}

	// Mixed absorbs everything else.
	if merged, ok := absorbMixed(kept); ok {
		return merged
	}

	kept = mergePairs(cb, kept)
	kept = dropSubsumed(cb, kept)
	kept = collapseLiterals(kept)

	sort.SliceStable(kept, func(i, j int) bool {
		return atomicKey(kept[i]) < atomicKey(kept[j])
	})
	kept = dedupByKey(kept)
	return kept
}

func absorbMixed(atomics []Atomic) ([]Atomic, bool) {
	var flags MixedFlags
	found := false
	vanilla := true
	for _, a := range atomics {
		if a.Kind == KindMixed {
			found = true
			flags |= a.Mixed
		} else {
			vanilla = false
		}
	}
	if !found {
		return nil, false
	}
	if !vanilla {
		flags &^= MixedVanilla
	}
	return []Atomic{{Kind: KindMixed, Mixed: flags}}, true
}

// mergePairs combines structurally mergeable atomics: lists with lists,
// shapes with shapes, same-name objects, true|false, touching int ranges.
func mergePairs(cb ClassProvider, atomics []Atomic) []Atomic {
	out := make([]Atomic, 0, len(atomics))
	for _, a := range atomics {
		merged := false
		for i := range out {
			if m, ok := mergeAtomicPair(cb, out[i], a); ok {
				out[i] = m
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, a)
		}
	}
	return out
}

func mergeAtomicPair(cb ClassProvider, a, b Atomic) (Atomic, bool) {
	// true | false => bool
	if a.Kind == KindBool && b.Kind == KindBool &&
		a.BoolVal != nil && b.BoolVal != nil && *a.BoolVal != *b.BoolVal {
		return MakeBool(), true
	}

	if a.Kind == KindList && b.Kind == KindList && a.List != nil && b.List != nil {
		elem := Combine(cb, a.List.Elem, b.List.Elem)
		length := LengthUnknown
		count := 0
		switch {
		case a.List.Length == LengthExact && b.List.Length == LengthExact && a.List.Count == b.List.Count:
			length, count = LengthExact, a.List.Count
		case listNonEmpty(a.List) && listNonEmpty(b.List):
			length = LengthNonEmpty
		}
		return Atomic{Kind: KindList, List: &ListInfo{Elem: elem, Length: length, Count: count}}, true
	}

	if a.Kind == KindKeyedArray && b.Kind == KindKeyedArray && a.Shape != nil && b.Shape != nil {
		return mergeShapes(cb, a.Shape, b.Shape), true
	}

	if a.Kind == KindObject && b.Kind == KindObject &&
		a.Object != nil && b.Object != nil &&
		a.Object.Kind == ObjectNamed && b.Object.Kind == ObjectNamed &&
		a.Object.Name == b.Object.Name &&
		len(a.Object.Intersections) == 0 && len(b.Object.Intersections) == 0 {
		if len(a.Object.TypeParams) != len(b.Object.TypeParams) {
			return Atomic{}, false
		}
		params := make([]Union, len(a.Object.TypeParams))
		for i := range params {
			params[i] = Combine(cb, a.Object.TypeParams[i], b.Object.TypeParams[i])
		}
		obj := &ObjectInfo{
			Kind:       ObjectNamed,
			Name:       a.Object.Name,
			TypeParams: params,
			IsThis:     a.Object.IsThis && b.Object.IsThis,
		}
		return Atomic{Kind: KindObject, Object: obj}, true
	}

	if a.Kind == KindIntRange && b.Kind == KindIntRange && a.Range != nil && b.Range != nil {
		if rangesOverlap(*a.Range, *b.Range) || rangesTouch(*a.Range, *b.Range) {
			return MakeIntRange(minBound(a.Range.Lo, b.Range.Lo), maxBound(a.Range.Hi, b.Range.Hi)), true
		}
	}

	if a.Kind == KindIterable && b.Kind == KindIterable && a.Iterable != nil && b.Iterable != nil {
		return MakeIterable(
			Combine(cb, a.Iterable.Key, b.Iterable.Key),
			Combine(cb, a.Iterable.Value, b.Iterable.Value),
		), true
	}

	return Atomic{}, false
}

func listNonEmpty(l *ListInfo) bool {
	return l.Length == LengthNonEmpty || (l.Length == LengthExact && l.Count > 0)
}

func rangesTouch(a, b IntRange) bool {
	touch := func(hi, lo Bound) bool {
		if hi.Kind == BoundInf || lo.Kind == BoundInf {
			return false
		}
		hiV, loV := hi.Value, lo.Value
		if hi.Kind == BoundOpen {
			hiV--
		}
		if lo.Kind == BoundOpen {
			loV++
		}
		return hiV+1 == loV
	}
	return touch(a.Hi, b.Lo) || touch(b.Hi, a.Lo)
}

func minBound(a, b Bound) Bound {
	if a.Kind == BoundInf || b.Kind == BoundInf {
		return Bound{Kind: BoundInf}
	}
	av, bv := a.Value, b.Value
	if a.Kind == BoundOpen {
		av++
	}
	if b.Kind == BoundOpen {
		bv++
	}
	if av <= bv {
		return Bound{Kind: BoundClosed, Value: av}
	}
	return Bound{Kind: BoundClosed, Value: bv}
}

func maxBound(a, b Bound) Bound {
	if a.Kind == BoundInf || b.Kind == BoundInf {
		return Bound{Kind: BoundInf}
	}
	av, bv := a.Value, b.Value
	if a.Kind == BoundOpen {
		av--
	}
	if b.Kind == BoundOpen {
		bv--
	}
	if av >= bv {
		return Bound{Kind: BoundClosed, Value: av}
	}
	return Bound{Kind: BoundClosed, Value: bv}
}

// mergeShapes merges two keyed shapes: keys present in only one side
// become optional; rests combine.
func mergeShapes(cb ClassProvider, a, b *ArrayShape) Atomic {
	entries := make([]ShapeEntry, 0, len(a.Entries)+len(b.Entries))
	for i := range a.Entries {
		ae := a.Entries[i]
		if be, ok := b.Entry(ae.Key); ok {
			entries = append(entries, ShapeEntry{
				Key:      ae.Key,
				Type:     Combine(cb, ae.Type, be.Type),
				Optional: ae.Optional || be.Optional,
			})
		} else {
			ae.Optional = true
			entries = append(entries, ae)
		}
	}
	for i := range b.Entries {
		be := b.Entries[i]
		if _, ok := a.Entry(be.Key); ok {
			continue
		}
		be.Optional = true
		entries = append(entries, be)
	}

	var rest *RestInfo
	switch {
	case a.Rest != nil && b.Rest != nil:
		rest = &RestInfo{
			Key:   Combine(cb, a.Rest.Key, b.Rest.Key),
			Value: Combine(cb, a.Rest.Value, b.Rest.Value),
		}
	case a.Rest != nil:
		rest = &RestInfo{Key: a.Rest.Key.Clone(), Value: a.Rest.Value.Clone()}
	case b.Rest != nil:
		rest = &RestInfo{Key: b.Rest.Key.Clone(), Value: b.Rest.Value.Clone()}
	}

	return Atomic{Kind: KindKeyedArray, Shape: &ArrayShape{Entries: entries, Rest: rest}}
}

// dropSubsumed removes atomics fully contained in a sibling.
func dropSubsumed(cb ClassProvider, atomics []Atomic) []Atomic {
	out := make([]Atomic, 0, len(atomics))
	for i, a := range atomics {
		subsumed := false
		for j, b := range atomics {
			if i == j {
				continue
			}
			if atomicKey(a) == atomicKey(b) && i > j {
				subsumed = true
				break
			}
			if atomicKey(a) != atomicKey(b) && AtomicContains(cb, b, a, false) {
				subsumed = true
				break
			}
		}
		if !subsumed {
			out = append(out, a)
		}
	}
	if len(out) == 0 {
		return atomics
	}
	return out
}

// collapseLiterals replaces long runs of same-kind literals with the
// general type.
func collapseLiterals(atomics []Atomic) []Atomic {
	counts := make(map[Kind]int)
	for _, a := range atomics {
		if a.IsLiteral() && (a.Kind == KindInt || a.Kind == KindString || a.Kind == KindFloat) {
			counts[a.Kind]++
		}
	}
	collapse := make(map[Kind]bool)
	for k, n := range counts {
		if n > LiteralUnionThreshold {
			collapse[k] = true
		}
	}
	if len(collapse) == 0 {
		return atomics
	}
	out := make([]Atomic, 0, len(atomics))
	added := make(map[Kind]bool)
	for _, a := range atomics {
		if a.IsLiteral() && collapse[a.Kind] {
			if !added[a.Kind] {
				out = append(out, Atomic{Kind: a.Kind})
				added[a.Kind] = true
			}
			continue
		}
		out = append(out, a)
	}
	return out
}

func dedupByKey(atomics []Atomic) []Atomic {
	out := make([]Atomic, 0, len(atomics))
	seen := make(map[string]bool, len(atomics))
	for _, a := range atomics {
		k := atomicKey(a)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, a)
	}
	return out
}

// atomicKey is a deterministic structural encoding used for ordering,
// equality and hashing.
func atomicKey(a Atomic) string {
	var sb strings.Builder
	writeAtomicKey(&sb, a)
	return sb.String()
}

func writeAtomicKey(sb *strings.Builder, a Atomic) {
	fmt.Fprintf(sb, "%02d", a.Kind)
	switch a.Kind {
	case KindMixed:
		fmt.Fprintf(sb, ":%d", a.Mixed)
	case KindBool:
		if a.BoolVal != nil {
			fmt.Fprintf(sb, ":%t", *a.BoolVal)
		}
	case KindInt:
		if a.IntVal != nil {
			fmt.Fprintf(sb, ":%d", *a.IntVal)
		}
	case KindIntRange:
		if a.Range != nil {
			fmt.Fprintf(sb, ":%d,%d-%d,%d", a.Range.Lo.Kind, a.Range.Lo.Value, a.Range.Hi.Kind, a.Range.Hi.Value)
		}
	case KindFloat:
		if a.FloatVal != nil {
			fmt.Fprintf(sb, ":%g", *a.FloatVal)
		}
	case KindString:
		if a.StrVal != nil {
			fmt.Fprintf(sb, ":%q", *a.StrVal)
		}
	case KindClassString:
		if a.ClassStr != nil {
			fmt.Fprintf(sb, ":%d,%d", a.ClassStr.Kind, a.ClassStr.Value)
			if a.ClassStr.Param != nil {
				fmt.Fprintf(sb, ",%d", a.ClassStr.Param.Name)
			}
		}
	case KindList:
		if a.List != nil {
			fmt.Fprintf(sb, ":%d,%d<", a.List.Length, a.List.Count)
			writeUnionKey(sb, a.List.Elem)
			sb.WriteByte('>')
		}
	case KindKeyedArray:
		if a.Shape != nil {
			sb.WriteByte('{')
			for i := range a.Shape.Entries {
				e := &a.Shape.Entries[i]
				fmt.Fprintf(sb, "%s:%t:", e.Key.String(), e.Optional)
				writeUnionKey(sb, e.Type)
				sb.WriteByte(';')
			}
			if a.Shape.Rest != nil {
				sb.WriteString("...")
				writeUnionKey(sb, a.Shape.Rest.Key)
				sb.WriteByte(',')
				writeUnionKey(sb, a.Shape.Rest.Value)
			}
			sb.WriteByte('}')
		}
	case KindObject:
		if a.Object != nil {
			fmt.Fprintf(sb, ":%d,%d,%d,%t", a.Object.Kind, a.Object.Name, a.Object.EnumCase, a.Object.IsThis)
			for _, p := range a.Object.TypeParams {
				sb.WriteByte('<')
				writeUnionKey(sb, p)
				sb.WriteByte('>')
			}
			for _, arm := range a.Object.Intersections {
				sb.WriteByte('&')
				writeAtomicKey(sb, arm)
			}
		}
	case KindIterable:
		if a.Iterable != nil {
			sb.WriteByte('<')
			writeUnionKey(sb, a.Iterable.Key)
			sb.WriteByte(',')
			writeUnionKey(sb, a.Iterable.Value)
			sb.WriteByte('>')
		}
	case KindCallable:
		if a.Callable != nil {
			fmt.Fprintf(sb, ":%d,%t,%d,%d", a.Callable.Kind, a.Callable.IsClosure, a.Callable.Alias.Class, a.Callable.Alias.Method)
			for _, p := range a.Callable.Params {
				fmt.Fprintf(sb, "(%t,%t,%t:", p.Optional, p.Variadic, p.ByRef)
				writeUnionKey(sb, p.Type)
				sb.WriteByte(')')
			}
			if a.Callable.Return != nil {
				sb.WriteByte(':')
				writeUnionKey(sb, *a.Callable.Return)
			}
		}
	case KindGenericParam:
		if a.Generic != nil {
			fmt.Fprintf(sb, ":%d@%d", a.Generic.Name, a.Generic.Defining)
		}
	case KindReference:
		if a.Ref != nil {
			fmt.Fprintf(sb, ":%d::%d", a.Ref.Class, a.Ref.Constant)
		}
	case KindConditional:
		if a.Cond != nil && a.Cond.Subject != nil {
			fmt.Fprintf(sb, ":%d", a.Cond.Subject.Name)
		}
	}
}

func writeUnionKey(sb *strings.Builder, u Union) {
	for i, a := range u.Atomics {
		if i > 0 {
			sb.WriteByte('|')
		}
		writeAtomicKey(sb, a)
	}
}

// UnionKey is a stable structural key for a union's canonical form.
func UnionKey(u Union) string {
	var sb strings.Builder
	writeUnionKey(&sb, u)
	return sb.String()
}

// AtomicEqual reports structural equality of two atomics.
func AtomicEqual(a, b Atomic) bool {
	return atomicKey(a) == atomicKey(b)
}

// UnionEqual reports structural equality of two unions, ignoring data-flow
// handles and flags.
func UnionEqual(a, b Union) bool {
	if len(a.Atomics) != len(b.Atomics) {
		return false
	}
	return UnionKey(a) == UnionKey(b)
}
