package ttype

import (
	"mantis/internal/source"
)

// Contains reports whether every value of sub is a value of super.
// Class-like subtyping consults the provider; unknown class names are
// noncomparable and fail the check. Contains never reports an error.
func Contains(cb ClassProvider, super, sub Union) bool {
	return ContainsOpts(cb, super, sub, false)
}

// ContainsOpts is Contains with interface substitution allowed: when set,
// a non-final class is accepted by an interface it does not declare,
// because a subclass may implement it.
func ContainsOpts(cb ClassProvider, super, sub Union, allowInterfaceSubst bool) bool {
	if sub.IsNever() {
		return true
	}
	for _, s := range sub.Atomics {
		if s.Kind == KindNever {
			continue
		}
		if !unionAcceptsAtomic(cb, super, s, allowInterfaceSubst) {
			return false
		}
	}
	return true
}

func unionAcceptsAtomic(cb ClassProvider, super Union, sub Atomic, allowSubst bool) bool {
	for _, sup := range super.Atomics {
		if AtomicContains(cb, sup, sub, allowSubst) {
			return true
		}
	}
	return false
}

// AtomicContains reports whether every value of sub is a value of sup.
func AtomicContains(cb ClassProvider, sup, sub Atomic, allowSubst bool) bool {
	if sup.Kind == KindMixed {
		return true
	}
	if sub.Kind == KindNever {
		return true
	}
	if sup.Kind == KindNever {
		return false
	}
	if sub.Kind == KindMixed {
		return false
	}

	switch sup.Kind {
	case KindNull, KindVoid, KindResource:
		return sub.Kind == sup.Kind

	case KindScalar:
		return isScalarKind(sub.Kind)

	case KindArrayKey:
		switch sub.Kind {
		case KindArrayKey, KindInt, KindIntRange, KindString,
			KindNonEmptyString, KindNumericString, KindClassString:
			return true
		}
		return false

	case KindBool:
		if sub.Kind != KindBool {
			return false
		}
		if sup.BoolVal == nil {
			return true
		}
		return sub.BoolVal != nil && *sub.BoolVal == *sup.BoolVal

	case KindInt:
		switch sub.Kind {
		case KindInt:
			if sup.IntVal == nil {
				return true
			}
			return sub.IntVal != nil && *sub.IntVal == *sup.IntVal
		case KindIntRange:
			return sup.IntVal == nil
		}
		return false

	case KindIntRange:
		if sup.Range == nil {
			return false
		}
		switch sub.Kind {
		case KindInt:
			return sub.IntVal != nil && sup.Range.ContainsValue(*sub.IntVal)
		case KindIntRange:
			return sub.Range != nil && boundWithin(sup.Range.Lo, sub.Range.Lo, true) &&
				boundWithin(sup.Range.Hi, sub.Range.Hi, false)
		}
		return false

	case KindFloat:
		if sub.Kind != KindFloat {
			return false
		}
		if sup.FloatVal == nil {
			return true
		}
		return sub.FloatVal != nil && *sub.FloatVal == *sup.FloatVal

	case KindString:
		switch sub.Kind {
		case KindString:
			if sup.StrVal == nil {
				return true
			}
			return sub.StrVal != nil && *sub.StrVal == *sup.StrVal
		case KindNonEmptyString, KindNumericString, KindClassString:
			return sup.StrVal == nil
		}
		return false

	case KindNonEmptyString:
		switch sub.Kind {
		case KindNonEmptyString, KindClassString:
			return true
		case KindNumericString:
			return true
		case KindString:
			return sub.StrVal != nil && *sub.StrVal != ""
		}
		return false

	case KindNumericString:
		switch sub.Kind {
		case KindNumericString:
			return true
		case KindString:
			return sub.StrVal != nil && isNumericLiteral(*sub.StrVal)
		}
		return false

	case KindClassString:
		if sub.Kind != KindClassString || sup.ClassStr == nil || sub.ClassStr == nil {
			return false
		}
		return classStringContains(cb, *sup.ClassStr, *sub.ClassStr)

	case KindList:
		if sup.List == nil {
			return false
		}
		if sub.Kind != KindList || sub.List == nil {
			return false
		}
		if !lengthAccepts(sup.List.Length, sup.List.Count, sub.List.Length, sub.List.Count) {
			return false
		}
		if sub.List.Length == LengthExact && sub.List.Count == 0 {
			// The empty list fits every element type.
			return true
		}
		return Contains(cb, sup.List.Elem, sub.List.Elem)

	case KindKeyedArray:
		if sup.Shape == nil {
			return false
		}
		return shapeContains(cb, sup.Shape, sub)

	case KindObject:
		if sup.Object == nil {
			return false
		}
		return objectContains(cb, sup.Object, sub, allowSubst)

	case KindIterable:
		if sup.Iterable == nil {
			return false
		}
		switch sub.Kind {
		case KindIterable:
			return Contains(cb, sup.Iterable.Key, sub.Iterable.Key) &&
				Contains(cb, sup.Iterable.Value, sub.Iterable.Value)
		case KindList:
			return Contains(cb, sup.Iterable.Key, NewUnion(MakeInt())) &&
				Contains(cb, sup.Iterable.Value, sub.List.Elem)
		case KindKeyedArray:
			key, value := shapeKeyValue(sub.Shape)
			return Contains(cb, sup.Iterable.Key, key) &&
				Contains(cb, sup.Iterable.Value, value)
		case KindObject:
			// A named object may implement the traversal interface; without
			// positive knowledge the check fails closed.
			return false
		}
		return false

	case KindCallable:
		return callableContains(cb, sup, sub)

	case KindGenericParam:
		if sup.Generic == nil {
			return false
		}
		// Only the same parameter is a subtype of a template parameter.
		return sub.Kind == KindGenericParam && sub.Generic != nil &&
			sub.Generic.Name == sup.Generic.Name &&
			sub.Generic.Defining == sup.Generic.Defining

	case KindConditional, KindReference:
		// Unexpanded indirection is noncomparable.
		return false
	}
	return false
}

// boundWithin reports whether inner stays inside outer on one side.
func boundWithin(outer, inner Bound, lo bool) bool {
	if outer.Kind == BoundInf {
		return true
	}
	if inner.Kind == BoundInf {
		return false
	}
	ov, iv := outer.Value, inner.Value
	if outer.Kind == BoundOpen {
		if lo {
			ov++
		} else {
			ov--
		}
	}
	if inner.Kind == BoundOpen {
		if lo {
			iv++
		} else {
			iv--
		}
	}
	if lo {
		return iv >= ov
	}
	return iv <= ov
}

func lengthAccepts(supLen LengthKind, supCount int, subLen LengthKind, subCount int) bool {
	switch supLen {
	case LengthUnknown:
		return true
	case LengthNonEmpty:
		return subLen == LengthNonEmpty || (subLen == LengthExact && subCount > 0)
	case LengthExact:
		return subLen == LengthExact && subCount == supCount
	}
	return false
}

func classStringContains(cb ClassProvider, sup, sub ClassString) bool {
	switch sup.Kind {
	case ClassStringAny:
		return true
	case ClassStringLiteral:
		return sub.Kind == ClassStringLiteral && sup.Value == sub.Value
	case ClassStringOfType:
		switch sub.Kind {
		case ClassStringLiteral, ClassStringOfType:
			return cb.IsInstanceOf(sub.Value, sup.Value)
		}
		return false
	case ClassStringGeneric:
		return sub.Kind == ClassStringGeneric && sub.Param != nil && sup.Param != nil &&
			sub.Param.Name == sup.Param.Name
	}
	return false
}

func shapeContains(cb ClassProvider, sup *ArrayShape, sub Atomic) bool {
	switch sub.Kind {
	case KindKeyedArray:
		if sub.Shape == nil {
			return false
		}
		for i := range sup.Entries {
			se := &sup.Entries[i]
			entry, ok := sub.Shape.Entry(se.Key)
			if !ok {
				if !se.Optional {
					return false
				}
				continue
			}
			if entry.Optional && !se.Optional {
				return false
			}
			if !Contains(cb, se.Type, entry.Type) {
				return false
			}
		}
		// Every extra key of sub must be absorbed by sup's rest.
		for i := range sub.Shape.Entries {
			e := &sub.Shape.Entries[i]
			if _, ok := shapeEntry(sup, e.Key); ok {
				continue
			}
			if sup.Rest == nil {
				return false
			}
			if !Contains(cb, sup.Rest.Value, e.Type) {
				return false
			}
		}
		if sub.Shape.Rest != nil {
			if sup.Rest == nil {
				return false
			}
			if !Contains(cb, sup.Rest.Key, sub.Shape.Rest.Key) ||
				!Contains(cb, sup.Rest.Value, sub.Shape.Rest.Value) {
				return false
			}
		}
		return true
	case KindList:
		// A keyed array with no required string keys accepts a list when
		// its rest covers int keys and the element type.
		if sub.List == nil {
			return false
		}
		for i := range sup.Entries {
			if !sup.Entries[i].Optional {
				return false
			}
		}
		if sup.Rest == nil {
			return sub.List.Length == LengthExact && sub.List.Count == 0
		}
		return Contains(cb, sup.Rest.Key, NewUnion(MakeInt())) &&
			Contains(cb, sup.Rest.Value, sub.List.Elem)
	}
	return false
}

func shapeEntry(s *ArrayShape, key PropertyKey) (*ShapeEntry, bool) {
	return s.Entry(key)
}

func shapeKeyValue(s *ArrayShape) (Union, Union) {
	if s == nil {
		return NewUnion(MakeArrayKey()), Mixed()
	}
	var keys, values []Atomic
	for i := range s.Entries {
		e := &s.Entries[i]
		if e.Key.IsInt {
			keys = append(keys, MakeLiteralInt(e.Key.Int))
		} else {
			keys = append(keys, MakeLiteralString(e.Key.Str))
		}
		values = append(values, e.Type.Atomics...)
	}
	if s.Rest != nil {
		keys = append(keys, s.Rest.Key.Atomics...)
		values = append(values, s.Rest.Value.Atomics...)
	}
	if len(keys) == 0 {
		return NewUnion(MakeArrayKey()), Mixed()
	}
	return NewUnion(keys...), NewUnion(values...)
}

func objectContains(cb ClassProvider, sup *ObjectInfo, sub Atomic, allowSubst bool) bool {
	if sup.Kind == ObjectAny {
		return sub.IsObjectLike()
	}
	if sub.Kind != KindObject || sub.Object == nil {
		return false
	}
	so := sub.Object
	switch sup.Kind {
	case ObjectNamed:
		var subName source.NameID
		switch so.Kind {
		case ObjectNamed:
			subName = so.Name
		case ObjectEnum:
			subName = so.Name
		default:
			return false
		}
		if !cb.IsInstanceOf(subName, sup.Name) {
			if allowSubst && cb.IsInterface(sup.Name) && !cb.IsFinal(subName) && cb.ClassExists(subName) {
				// A subclass might implement the interface.
				return true
			}
			// Intersection arms may satisfy the supertype.
			for _, arm := range so.Intersections {
				if AtomicContains(cb, Atomic{Kind: KindObject, Object: sup}, arm, allowSubst) {
					return true
				}
			}
			return false
		}
		if len(sup.TypeParams) > 0 && len(so.TypeParams) == len(sup.TypeParams) {
			for i := range sup.TypeParams {
				if !Contains(cb, sup.TypeParams[i], so.TypeParams[i]) {
					return false
				}
			}
		}
		return true
	case ObjectEnum:
		if so.Kind != ObjectEnum || so.Name != sup.Name {
			return false
		}
		if sup.EnumCase == source.NoNameID {
			return true
		}
		return so.EnumCase == sup.EnumCase
	}
	return false
}

func callableContains(cb ClassProvider, sup, sub Atomic) bool {
	if sup.Callable == nil {
		return false
	}
	switch sub.Kind {
	case KindCallable:
		if sub.Callable == nil {
			return false
		}
		if sup.Callable.Kind == CallableAlias || sub.Callable.Kind == CallableAlias {
			// Aliases compare after expansion only; identical refs match.
			return sup.Callable.Kind == sub.Callable.Kind &&
				sup.Callable.Alias == sub.Callable.Alias
		}
		return signatureContains(cb, sup.Callable, sub.Callable)
	case KindString, KindNonEmptyString:
		// A function-name string is callable; without codebase knowledge the
		// signature cannot be compared, so only bare `callable` accepts it.
		return len(sup.Callable.Params) == 0 && sup.Callable.Return == nil && !sup.Callable.IsClosure
	}
	return false
}

func signatureContains(cb ClassProvider, sup, sub *CallableInfo) bool {
	// Bare callable with no declared signature accepts everything callable.
	if len(sup.Params) == 0 && sup.Return == nil {
		return true
	}
	// Parameters are contravariant: sub must accept at least what sup's
	// callers pass.
	required := 0
	for _, p := range sub.Params {
		if !p.Optional && !p.Variadic {
			required++
		}
	}
	if required > len(sup.Params) {
		return false
	}
	for i, supParam := range sup.Params {
		subParam, ok := callableParamAt(sub, i)
		if !ok {
			return false
		}
		if !Contains(cb, subParam.Type, supParam.Type) {
			return false
		}
	}
	// Return is covariant.
	if sup.Return != nil {
		if sub.Return == nil {
			return false
		}
		if !Contains(cb, *sup.Return, *sub.Return) {
			return false
		}
	}
	return true
}

func callableParamAt(c *CallableInfo, i int) (CallableParam, bool) {
	if i < len(c.Params) {
		return c.Params[i], true
	}
	if len(c.Params) > 0 {
		last := c.Params[len(c.Params)-1]
		if last.Variadic {
			return last, true
		}
	}
	return CallableParam{}, false
}

// Intersects reports whether the unions share at least one value.
// Approximate: containment in either direction per atomic pair, plus
// literal/general overlap.
func Intersects(cb ClassProvider, a, b Union) bool {
	for _, x := range a.Atomics {
		for _, y := range b.Atomics {
			if atomicsMayOverlap(cb, x, y) {
				return true
			}
		}
	}
	return false
}

// CanBeIdentical reports whether a value could satisfy both unions at once.
// Symmetric; the reconciler uses it as its compatibility check.
func CanBeIdentical(cb ClassProvider, a, b Union) bool {
	return Intersects(cb, a, b)
}

func atomicsMayOverlap(cb ClassProvider, x, y Atomic) bool {
	if x.Kind == KindNever || y.Kind == KindNever {
		return false
	}
	if x.Kind == KindMixed || y.Kind == KindMixed {
		return true
	}
	if AtomicContains(cb, x, y, true) || AtomicContains(cb, y, x, true) {
		return true
	}
	// Two named objects may share a subclass unless hierarchy or finality
	// forbids it.
	if x.Kind == KindObject && y.Kind == KindObject &&
		x.Object != nil && y.Object != nil &&
		x.Object.Kind == ObjectNamed && y.Object.Kind == ObjectNamed {
		if cb.IsFinal(x.Object.Name) || cb.IsFinal(y.Object.Name) {
			return false
		}
		return cb.IsInterface(x.Object.Name) || cb.IsInterface(y.Object.Name)
	}
	// Overlapping int ranges.
	if x.Kind == KindIntRange && y.Kind == KindIntRange && x.Range != nil && y.Range != nil {
		return rangesOverlap(*x.Range, *y.Range)
	}
	return false
}

func rangesOverlap(a, b IntRange) bool {
	// a.lo <= b.hi && b.lo <= a.hi, treating Inf as unbounded.
	loBeforeHi := func(lo, hi Bound) bool {
		if lo.Kind == BoundInf || hi.Kind == BoundInf {
			return true
		}
		loV, hiV := lo.Value, hi.Value
		if lo.Kind == BoundOpen {
			loV++
		}
		if hi.Kind == BoundOpen {
			hiV--
		}
		return loV <= hiV
	}
	return loBeforeHi(a.Lo, b.Hi) && loBeforeHi(b.Lo, a.Hi)
}

// IdenticalUpToLiterals reports whether the unions have the same multiset
// of kinds, ignoring literal payloads.
func IdenticalUpToLiterals(a, b Union) bool {
	if len(a.Atomics) != len(b.Atomics) {
		return false
	}
	counts := make(map[Kind]int, len(a.Atomics))
	for _, at := range a.Atomics {
		counts[at.Kind]++
	}
	for _, at := range b.Atomics {
		counts[at.Kind]--
		if counts[at.Kind] < 0 {
			return false
		}
	}
	return true
}

func isNumericLiteral(s string) bool {
	if s == "" {
		return false
	}
	i := 0
	if s[i] == '-' || s[i] == '+' {
		i++
		if i == len(s) {
			return false
		}
	}
	digits := false
	for ; i < len(s); i++ {
		c := s[i]
		if c >= '0' && c <= '9' {
			digits = true
			continue
		}
		if c == '.' {
			continue
		}
		return false
	}
	return digits
}
