package ttype

import (
	"slices"
)

// NodeHandle is an opaque data-flow node id carried on unions so the
// analyzer can wire provenance without this package importing the graph.
type NodeHandle uint32

// Union is the type of an expression: a normalized multiset of atomics.
// The empty union is illegal; constructors replace it with never.
type Union struct {
	Atomics []Atomic

	// ParentNodes are the data-flow nodes this value descends from.
	ParentNodes []NodeHandle

	// PossiblyUndefined marks values that are missing on some incoming path.
	PossiblyUndefined bool

	// FromDocblock marks types that came from a docblock rather than
	// inference; mismatches against them use softer codes.
	FromDocblock bool
}

// NewUnion builds a union from atomics. No atomics yields never.
func NewUnion(atomics ...Atomic) Union {
	if len(atomics) == 0 {
		return Union{Atomics: []Atomic{MakeNever()}}
	}
	return Union{Atomics: atomics}
}

// Never is the union of no values.
func Never() Union { return NewUnion(MakeNever()) }

// Mixed is the plain top type.
func Mixed() Union { return NewUnion(MakeMixed()) }

// MixedAny is the error-fallback top type.
func MixedAnyUnion() Union { return NewUnion(MakeMixedAny()) }

// Null is the union holding only null.
func Null() Union { return NewUnion(MakeNull()) }

// Nullable wraps t with null.
func Nullable(t Atomic) Union { return NewUnion(t, MakeNull()) }

// Clone copies the union. Atomic payloads are shared: they are immutable by
// convention, only the slice headers and flags are duplicated.
func (u Union) Clone() Union {
	out := u
	out.Atomics = slices.Clone(u.Atomics)
	out.ParentNodes = slices.Clone(u.ParentNodes)
	return out
}

// WithParentNode returns a copy referencing the data-flow node.
func (u Union) WithParentNode(h NodeHandle) Union {
	out := u.Clone()
	if !slices.Contains(out.ParentNodes, h) {
		out.ParentNodes = append(out.ParentNodes, h)
	}
	return out
}

// IsNever reports whether the union holds no values.
func (u Union) IsNever() bool {
	if len(u.Atomics) == 0 {
		return true
	}
	for _, a := range u.Atomics {
		if a.Kind != KindNever {
			return false
		}
	}
	return true
}

// IsMixed reports whether the union is exactly mixed.
func (u Union) IsMixed() bool {
	return len(u.Atomics) == 1 && u.Atomics[0].Kind == KindMixed
}

// HasMixed reports whether any atomic is mixed.
func (u Union) HasMixed() bool {
	for _, a := range u.Atomics {
		if a.Kind == KindMixed {
			return true
		}
	}
	return false
}

// IsNullable reports whether null is one of the union's values.
func (u Union) IsNullable() bool {
	for _, a := range u.Atomics {
		if a.Kind == KindNull {
			return true
		}
	}
	return false
}

// IsNull reports whether the union is exactly null.
func (u Union) IsNull() bool {
	return len(u.Atomics) == 1 && u.Atomics[0].Kind == KindNull
}

// IsVoid reports whether the union is exactly void.
func (u Union) IsVoid() bool {
	return len(u.Atomics) == 1 && u.Atomics[0].Kind == KindVoid
}

// IsSingle reports whether the union holds exactly one atomic.
func (u Union) IsSingle() bool {
	return len(u.Atomics) == 1
}

// Single returns the only atomic of a single union.
func (u Union) Single() (Atomic, bool) {
	if len(u.Atomics) != 1 {
		return Atomic{}, false
	}
	return u.Atomics[0], true
}

// IsAlwaysTruthy reports whether every value of the union is truthy.
func (u Union) IsAlwaysTruthy() bool {
	if len(u.Atomics) == 0 {
		return false
	}
	for _, a := range u.Atomics {
		if !a.IsTruthy() {
			return false
		}
	}
	return true
}

// IsAlwaysFalsy reports whether every value of the union is falsy.
func (u Union) IsAlwaysFalsy() bool {
	if len(u.Atomics) == 0 {
		return false
	}
	for _, a := range u.Atomics {
		if !a.IsFalsy() {
			return false
		}
	}
	return true
}

// SingleLiteralValue returns the literal payload when the union is one
// literal singleton.
type LiteralValue struct {
	Kind Kind
	Bool bool
	Int  int64
	Str  string
}

func (u Union) SingleLiteralValue() (LiteralValue, bool) {
	a, ok := u.Single()
	if !ok || !a.IsLiteral() {
		return LiteralValue{}, false
	}
	switch a.Kind {
	case KindBool:
		return LiteralValue{Kind: KindBool, Bool: *a.BoolVal}, true
	case KindInt:
		return LiteralValue{Kind: KindInt, Int: *a.IntVal}, true
	case KindString:
		return LiteralValue{Kind: KindString, Str: *a.StrVal}, true
	}
	return LiteralValue{}, false
}

// SingleLiteralString returns the literal string payload, if any.
func (u Union) SingleLiteralString() (string, bool) {
	v, ok := u.SingleLiteralValue()
	if !ok || v.Kind != KindString {
		return "", false
	}
	return v.Str, true
}

// SingleLiteralInt returns the literal int payload, if any.
func (u Union) SingleLiteralInt() (int64, bool) {
	v, ok := u.SingleLiteralValue()
	if !ok || v.Kind != KindInt {
		return 0, false
	}
	return v.Int, true
}

// WithoutNull returns a copy with null atomics removed. Removing the last
// atomic yields never.
func (u Union) WithoutNull() Union {
	kept := make([]Atomic, 0, len(u.Atomics))
	for _, a := range u.Atomics {
		if a.Kind != KindNull {
			kept = append(kept, a)
		}
	}
	out := NewUnion(kept...)
	out.ParentNodes = slices.Clone(u.ParentNodes)
	out.FromDocblock = u.FromDocblock
	return out
}

// ObjectAtomics returns the object-like atomics of the union.
func (u Union) ObjectAtomics() []Atomic {
	var out []Atomic
	for _, a := range u.Atomics {
		if a.IsObjectLike() {
			out = append(out, a)
		}
	}
	return out
}
