package ttype

import "fmt"

// Kind enumerates the closed set of atomic type constructors.
type Kind uint8

const (
	KindNever Kind = iota
	KindMixed
	KindNull
	KindVoid
	KindResource
	KindScalar
	KindArrayKey
	KindBool
	KindInt
	KindIntRange
	KindFloat
	KindString
	KindNonEmptyString
	KindNumericString
	KindClassString
	KindList
	KindKeyedArray
	KindObject
	KindIterable
	KindCallable
	KindGenericParam
	KindConditional
	KindReference
)

func (k Kind) String() string {
	switch k {
	case KindNever:
		return "never"
	case KindMixed:
		return "mixed"
	case KindNull:
		return "null"
	case KindVoid:
		return "void"
	case KindResource:
		return "resource"
	case KindScalar:
		return "scalar"
	case KindArrayKey:
		return "array-key"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindIntRange:
		return "int-range"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindNonEmptyString:
		return "non-empty-string"
	case KindNumericString:
		return "numeric-string"
	case KindClassString:
		return "class-string"
	case KindList:
		return "list"
	case KindKeyedArray:
		return "array"
	case KindObject:
		return "object"
	case KindIterable:
		return "iterable"
	case KindCallable:
		return "callable"
	case KindGenericParam:
		return "template-param"
	case KindConditional:
		return "conditional"
	case KindReference:
		return "reference"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// isScalarKind reports whether the kind belongs to the scalar family.
func isScalarKind(k Kind) bool {
	switch k {
	case KindBool, KindInt, KindIntRange, KindFloat, KindString,
		KindNonEmptyString, KindNumericString, KindClassString, KindArrayKey:
		return true
	}
	return false
}

// isArrayKind reports whether the kind is an array shape.
func isArrayKind(k Kind) bool {
	return k == KindList || k == KindKeyedArray
}
