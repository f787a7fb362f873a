package ttype

import (
	"mantis/internal/source"
)

// BoundKind classifies one end of an integer range.
type BoundKind uint8

const (
	BoundInf BoundKind = iota
	BoundClosed
	BoundOpen
)

// Bound is one end of an integer range.
type Bound struct {
	Kind  BoundKind
	Value int64
}

// Contains reports whether v satisfies the bound as a lower (lo=true) or
// upper (lo=false) limit.
func (b Bound) Contains(v int64, lo bool) bool {
	switch b.Kind {
	case BoundInf:
		return true
	case BoundClosed:
		if lo {
			return v >= b.Value
		}
		return v <= b.Value
	case BoundOpen:
		if lo {
			return v > b.Value
		}
		return v < b.Value
	}
	return false
}

// IntRange is the interval payload of KindIntRange.
type IntRange struct {
	Lo Bound
	Hi Bound
}

// ContainsValue reports whether v lies in the range.
func (r IntRange) ContainsValue(v int64) bool {
	return r.Lo.Contains(v, true) && r.Hi.Contains(v, false)
}

// ClassStringKind classifies class-like-string payloads.
type ClassStringKind uint8

const (
	// ClassStringAny is class-string with no constraint.
	ClassStringAny ClassStringKind = iota
	// ClassStringLiteral is the literal name of one class (C::class).
	ClassStringLiteral
	// ClassStringOfType is class-string<C>.
	ClassStringOfType
	// ClassStringGeneric is class-string<T> for a template parameter.
	ClassStringGeneric
)

// ClassString is the payload of KindClassString.
type ClassString struct {
	Kind  ClassStringKind
	Value source.NameID // literal class or constraint class
	Param *GenericParam // ClassStringGeneric only
}

// LengthKind captures what is known about a list's length.
type LengthKind uint8

const (
	LengthUnknown LengthKind = iota
	LengthNonEmpty
	LengthExact
)

// ListInfo is the payload of KindList.
type ListInfo struct {
	Elem   Union
	Length LengthKind
	Count  int // LengthExact only
}

// PropertyKey is one key of a keyed array shape: either an integer or a
// string key.
type PropertyKey struct {
	IsInt bool
	Int   int64
	Str   string
}

func IntKey(v int64) PropertyKey    { return PropertyKey{IsInt: true, Int: v} }
func StringKey(s string) PropertyKey { return PropertyKey{Str: s} }

func (k PropertyKey) Equal(other PropertyKey) bool {
	if k.IsInt != other.IsInt {
		return false
	}
	if k.IsInt {
		return k.Int == other.Int
	}
	return k.Str == other.Str
}

// String renders the key the way it appears in messages.
func (k PropertyKey) String() string {
	if k.IsInt {
		return formatInt(k.Int)
	}
	return "'" + k.Str + "'"
}

// ShapeEntry is one ordered key of an array shape.
type ShapeEntry struct {
	Key      PropertyKey
	Type     Union
	Optional bool
}

// RestInfo describes the open tail of an array shape.
type RestInfo struct {
	Key   Union
	Value Union
}

// ArrayShape is the payload of KindKeyedArray: an ordered key->type mapping
// plus an optional open rest.
type ArrayShape struct {
	Entries []ShapeEntry
	Rest    *RestInfo
}

// Entry returns the shape entry for key, if present.
func (s *ArrayShape) Entry(key PropertyKey) (*ShapeEntry, bool) {
	for i := range s.Entries {
		if s.Entries[i].Key.Equal(key) {
			return &s.Entries[i], true
		}
	}
	return nil, false
}

// ObjectKind classifies object payloads.
type ObjectKind uint8

const (
	ObjectAny ObjectKind = iota
	ObjectNamed
	ObjectEnum
)

// ObjectInfo is the payload of KindObject.
type ObjectInfo struct {
	Kind          ObjectKind
	Name          source.NameID // ObjectNamed, ObjectEnum
	TypeParams    []Union       // ObjectNamed generics
	IsThis        bool          // the $this alias for the current class
	Intersections []Atomic      // additional object/interface arms
	EnumCase      source.NameID // NoNameID when the case is unknown
}

// IterableInfo is the payload of KindIterable.
type IterableInfo struct {
	Key   Union
	Value Union
}

// CallableKind distinguishes inline signatures from named aliases.
type CallableKind uint8

const (
	CallableSignature CallableKind = iota
	CallableAlias
)

// CallableParam is one parameter of a callable signature.
type CallableParam struct {
	Name     source.NameID
	Type     Union
	Optional bool
	Variadic bool
	ByRef    bool
}

// FunctionRef identifies a function-like: class NoNameID means a plain
// function.
type FunctionRef struct {
	Class  source.NameID
	Method source.NameID
}

// CallableInfo is the payload of KindCallable. A closure literal carries a
// signature; `callable-string` style aliases carry a FunctionRef resolved
// during expansion.
type CallableInfo struct {
	Kind      CallableKind
	Params    []CallableParam
	Return    *Union
	Pure      bool
	IsClosure bool
	Alias     FunctionRef
}

// GenericParam is the payload of KindGenericParam.
type GenericParam struct {
	Name       source.NameID
	Constraint *Union
	Defining   source.NameID // class or function-like owning the template
}

// ConditionalInfo is the payload of KindConditional: (Subject is Is ? Then : Else),
// resolved during expansion.
type ConditionalInfo struct {
	Subject *GenericParam
	Is      *Union
	Then    *Union
	Else    *Union
}

// ReferenceInfo is the payload of KindReference: an indirect lookup of a
// class constant's type, resolved during expansion.
type ReferenceInfo struct {
	Class    source.NameID
	Constant source.NameID
}

// MixedFlags refine KindMixed.
type MixedFlags uint8

const (
	// MixedAny is the fully unconstrained mixed.
	MixedAny MixedFlags = 1 << iota
	// MixedFromLoopIsset marks mixed introduced by isset inside loops.
	MixedFromLoopIsset
	// MixedVanilla is mixed that never absorbed any other type.
	MixedVanilla
)

// Atomic is one indivisible type constructor. The Kind selects which
// payload pointers are meaningful; all payloads of a value are treated as
// immutable once the atomic is built.
type Atomic struct {
	Kind Kind

	// Literal payloads. A nil pointer means the general type.
	BoolVal  *bool
	IntVal   *int64
	FloatVal *float64
	StrVal   *string

	Range    *IntRange
	ClassStr *ClassString
	List     *ListInfo
	Shape    *ArrayShape
	Object   *ObjectInfo
	Iterable *IterableInfo
	Callable *CallableInfo
	Generic  *GenericParam
	Cond     *ConditionalInfo
	Ref      *ReferenceInfo

	Mixed MixedFlags
}

// Constructors -----------------------------------------------------------

func MakeNever() Atomic { return Atomic{Kind: KindNever} }
func MakeNull() Atomic  { return Atomic{Kind: KindNull} }
func MakeVoid() Atomic  { return Atomic{Kind: KindVoid} }

// MakeMixed is the plain mixed sentinel.
func MakeMixed() Atomic { return Atomic{Kind: KindMixed, Mixed: MixedVanilla} }

// MakeMixedAny is the fully unconstrained mixed used as error fallback.
func MakeMixedAny() Atomic { return Atomic{Kind: KindMixed, Mixed: MixedAny} }

func MakeResource() Atomic { return Atomic{Kind: KindResource} }
func MakeScalar() Atomic   { return Atomic{Kind: KindScalar} }
func MakeArrayKey() Atomic { return Atomic{Kind: KindArrayKey} }

func MakeBool() Atomic { return Atomic{Kind: KindBool} }

func MakeLiteralBool(v bool) Atomic {
	return Atomic{Kind: KindBool, BoolVal: &v}
}

func MakeInt() Atomic { return Atomic{Kind: KindInt} }

func MakeLiteralInt(v int64) Atomic {
	return Atomic{Kind: KindInt, IntVal: &v}
}

func MakeIntRange(lo, hi Bound) Atomic {
	return Atomic{Kind: KindIntRange, Range: &IntRange{Lo: lo, Hi: hi}}
}

func MakeFloat() Atomic { return Atomic{Kind: KindFloat} }

func MakeLiteralFloat(v float64) Atomic {
	return Atomic{Kind: KindFloat, FloatVal: &v}
}

func MakeString() Atomic { return Atomic{Kind: KindString} }

func MakeLiteralString(v string) Atomic {
	return Atomic{Kind: KindString, StrVal: &v}
}

func MakeNonEmptyString() Atomic { return Atomic{Kind: KindNonEmptyString} }
func MakeNumericString() Atomic  { return Atomic{Kind: KindNumericString} }

func MakeClassStringAny() Atomic {
	return Atomic{Kind: KindClassString, ClassStr: &ClassString{Kind: ClassStringAny}}
}

func MakeLiteralClassString(class source.NameID) Atomic {
	return Atomic{Kind: KindClassString, ClassStr: &ClassString{Kind: ClassStringLiteral, Value: class}}
}

func MakeClassStringOf(class source.NameID) Atomic {
	return Atomic{Kind: KindClassString, ClassStr: &ClassString{Kind: ClassStringOfType, Value: class}}
}

func MakeList(elem Union) Atomic {
	return Atomic{Kind: KindList, List: &ListInfo{Elem: elem, Length: LengthUnknown}}
}

func MakeNonEmptyList(elem Union) Atomic {
	return Atomic{Kind: KindList, List: &ListInfo{Elem: elem, Length: LengthNonEmpty}}
}

func MakeShape(entries ...ShapeEntry) Atomic {
	return Atomic{Kind: KindKeyedArray, Shape: &ArrayShape{Entries: entries}}
}

func MakeKeyedArray(key, value Union) Atomic {
	return Atomic{Kind: KindKeyedArray, Shape: &ArrayShape{
		Rest: &RestInfo{Key: key, Value: value},
	}}
}

// MakeEmptyArray is the type of `[]`.
func MakeEmptyArray() Atomic {
	return Atomic{Kind: KindList, List: &ListInfo{Elem: NewUnion(MakeNever()), Length: LengthExact, Count: 0}}
}

func MakeAnyObject() Atomic {
	return Atomic{Kind: KindObject, Object: &ObjectInfo{Kind: ObjectAny}}
}

func MakeNamedObject(name source.NameID, params ...Union) Atomic {
	return Atomic{Kind: KindObject, Object: &ObjectInfo{Kind: ObjectNamed, Name: name, TypeParams: params}}
}

func MakeThisObject(name source.NameID) Atomic {
	return Atomic{Kind: KindObject, Object: &ObjectInfo{Kind: ObjectNamed, Name: name, IsThis: true}}
}

func MakeEnum(name, enumCase source.NameID) Atomic {
	return Atomic{Kind: KindObject, Object: &ObjectInfo{Kind: ObjectEnum, Name: name, EnumCase: enumCase}}
}

func MakeIterable(key, value Union) Atomic {
	return Atomic{Kind: KindIterable, Iterable: &IterableInfo{Key: key, Value: value}}
}

func MakeCallable(params []CallableParam, ret *Union) Atomic {
	return Atomic{Kind: KindCallable, Callable: &CallableInfo{Kind: CallableSignature, Params: params, Return: ret}}
}

func MakeClosure(params []CallableParam, ret *Union) Atomic {
	return Atomic{Kind: KindCallable, Callable: &CallableInfo{Kind: CallableSignature, Params: params, Return: ret, IsClosure: true}}
}

func MakeCallableAlias(ref FunctionRef) Atomic {
	return Atomic{Kind: KindCallable, Callable: &CallableInfo{Kind: CallableAlias, Alias: ref}}
}

func MakeGenericParam(name source.NameID, constraint Union, defining source.NameID) Atomic {
	return Atomic{Kind: KindGenericParam, Generic: &GenericParam{Name: name, Constraint: &constraint, Defining: defining}}
}

func MakeConditional(info ConditionalInfo) Atomic {
	return Atomic{Kind: KindConditional, Cond: &info}
}

func MakeReference(class, constant source.NameID) Atomic {
	return Atomic{Kind: KindReference, Ref: &ReferenceInfo{Class: class, Constant: constant}}
}

// Queries ----------------------------------------------------------------

// IsLiteral reports whether the atomic is a literal singleton.
func (a Atomic) IsLiteral() bool {
	switch a.Kind {
	case KindBool:
		return a.BoolVal != nil
	case KindInt:
		return a.IntVal != nil
	case KindFloat:
		return a.FloatVal != nil
	case KindString:
		return a.StrVal != nil
	case KindObject:
		return a.Object != nil && a.Object.Kind == ObjectEnum && a.Object.EnumCase != source.NoNameID
	case KindClassString:
		return a.ClassStr != nil && a.ClassStr.Kind == ClassStringLiteral
	}
	return false
}

// IsFalsy reports whether every value of the atomic is falsy.
func (a Atomic) IsFalsy() bool {
	switch a.Kind {
	case KindNull:
		return true
	case KindBool:
		return a.BoolVal != nil && !*a.BoolVal
	case KindInt:
		return a.IntVal != nil && *a.IntVal == 0
	case KindFloat:
		return a.FloatVal != nil && *a.FloatVal == 0
	case KindString:
		return a.StrVal != nil && (*a.StrVal == "" || *a.StrVal == "0")
	case KindList:
		return a.List != nil && a.List.Length == LengthExact && a.List.Count == 0
	}
	return false
}

// IsTruthy reports whether every value of the atomic is truthy.
func (a Atomic) IsTruthy() bool {
	switch a.Kind {
	case KindBool:
		return a.BoolVal != nil && *a.BoolVal
	case KindInt:
		return a.IntVal != nil && *a.IntVal != 0
	case KindFloat:
		return a.FloatVal != nil && *a.FloatVal != 0
	case KindString:
		return a.StrVal != nil && *a.StrVal != "" && *a.StrVal != "0"
	case KindNonEmptyString:
		// "0" is non-empty yet falsy.
		return false
	case KindObject, KindCallable, KindResource:
		return true
	case KindList:
		return a.List != nil && (a.List.Length == LengthNonEmpty ||
			(a.List.Length == LengthExact && a.List.Count > 0))
	case KindIntRange:
		return a.Range != nil && !a.Range.ContainsValue(0)
	}
	return false
}

// IsObjectLike reports whether values of the atomic are objects.
func (a Atomic) IsObjectLike() bool {
	return a.Kind == KindObject || (a.Kind == KindCallable && a.Callable != nil && a.Callable.IsClosure)
}
