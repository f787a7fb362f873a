package clause

import (
	"fmt"

	"mantis/internal/source"
	"mantis/internal/ttype"
)

// AssertionKind enumerates the atomic propositional facts the formula
// builder can state about a variable key.
type AssertionKind uint8

const (
	AssertIsType AssertionKind = iota
	AssertIsNotType
	AssertTruthy
	AssertFalsy
	AssertIsIsset
	AssertIsNotIsset
	AssertIsEqual
	AssertIsNotEqual
	AssertHasArrayKey
	AssertNotHasArrayKey
	AssertNonEmptyCountable
	AssertEmptyCountable
	AssertHasExactCount
	AssertNotHasExactCount
	AssertGreaterThan
	AssertGreaterOrEqual
	AssertLessThan
	AssertLessOrEqual
)

// Assertion is one atomic fact. Payload fields are meaningful per kind.
type Assertion struct {
	Kind  AssertionKind
	Type  *ttype.Union      // IsType/IsNotType/IsEqual/IsNotEqual
	Key   ttype.PropertyKey // HasArrayKey/NotHasArrayKey
	Count int               // HasExactCount/NotHasExactCount
	Value int64             // integer comparisons
}

func IsType(t ttype.Union) Assertion    { return Assertion{Kind: AssertIsType, Type: &t} }
func IsNotType(t ttype.Union) Assertion { return Assertion{Kind: AssertIsNotType, Type: &t} }
func Truthy() Assertion                 { return Assertion{Kind: AssertTruthy} }
func Falsy() Assertion                  { return Assertion{Kind: AssertFalsy} }
func IsIsset() Assertion                { return Assertion{Kind: AssertIsIsset} }
func IsNotIsset() Assertion             { return Assertion{Kind: AssertIsNotIsset} }
func IsEqual(t ttype.Union) Assertion   { return Assertion{Kind: AssertIsEqual, Type: &t} }
func IsNotEqual(t ttype.Union) Assertion {
	return Assertion{Kind: AssertIsNotEqual, Type: &t}
}
func HasArrayKey(k ttype.PropertyKey) Assertion {
	return Assertion{Kind: AssertHasArrayKey, Key: k}
}
func NonEmptyCountable() Assertion { return Assertion{Kind: AssertNonEmptyCountable} }
func EmptyCountable() Assertion    { return Assertion{Kind: AssertEmptyCountable} }
func HasExactCount(n int) Assertion {
	return Assertion{Kind: AssertHasExactCount, Count: n}
}
func GreaterThan(v int64) Assertion    { return Assertion{Kind: AssertGreaterThan, Value: v} }
func GreaterOrEqual(v int64) Assertion { return Assertion{Kind: AssertGreaterOrEqual, Value: v} }
func LessThan(v int64) Assertion       { return Assertion{Kind: AssertLessThan, Value: v} }
func LessOrEqual(v int64) Assertion    { return Assertion{Kind: AssertLessOrEqual, Value: v} }

var negations = map[AssertionKind]AssertionKind{
	AssertIsType:            AssertIsNotType,
	AssertIsNotType:         AssertIsType,
	AssertTruthy:            AssertFalsy,
	AssertFalsy:             AssertTruthy,
	AssertIsIsset:           AssertIsNotIsset,
	AssertIsNotIsset:        AssertIsIsset,
	AssertIsEqual:           AssertIsNotEqual,
	AssertIsNotEqual:        AssertIsEqual,
	AssertHasArrayKey:       AssertNotHasArrayKey,
	AssertNotHasArrayKey:    AssertHasArrayKey,
	AssertNonEmptyCountable: AssertEmptyCountable,
	AssertEmptyCountable:    AssertNonEmptyCountable,
	AssertHasExactCount:     AssertNotHasExactCount,
	AssertNotHasExactCount:  AssertHasExactCount,
	AssertGreaterThan:       AssertLessOrEqual,
	AssertLessOrEqual:       AssertGreaterThan,
	AssertLessThan:          AssertGreaterOrEqual,
	AssertGreaterOrEqual:    AssertLessThan,
}

// Negate returns the assertion's well-defined negation.
func (a Assertion) Negate() Assertion {
	out := a
	out.Kind = negations[a.Kind]
	return out
}

// IsNegationOf reports whether a and b are mutual negations. Symmetric.
func (a Assertion) IsNegationOf(b Assertion) bool {
	return a.Negate().Hash() == b.Hash()
}

// Hash is a stable structural key for the assertion.
func (a Assertion) Hash() string {
	switch a.Kind {
	case AssertIsType, AssertIsNotType, AssertIsEqual, AssertIsNotEqual:
		t := ""
		if a.Type != nil {
			t = ttype.UnionKey(*a.Type)
		}
		return fmt.Sprintf("%d:%s", a.Kind, t)
	case AssertHasArrayKey, AssertNotHasArrayKey:
		return fmt.Sprintf("%d:%s", a.Kind, a.Key.String())
	case AssertHasExactCount, AssertNotHasExactCount:
		return fmt.Sprintf("%d:%d", a.Kind, a.Count)
	case AssertGreaterThan, AssertGreaterOrEqual, AssertLessThan, AssertLessOrEqual:
		return fmt.Sprintf("%d:%d", a.Kind, a.Value)
	default:
		return fmt.Sprintf("%d", a.Kind)
	}
}

// String renders the assertion for debugging and issue messages.
func (a Assertion) String(in *source.Interner) string {
	switch a.Kind {
	case AssertIsType:
		return "is " + a.renderType(in)
	case AssertIsNotType:
		return "is not " + a.renderType(in)
	case AssertTruthy:
		return "truthy"
	case AssertFalsy:
		return "falsy"
	case AssertIsIsset:
		return "isset"
	case AssertIsNotIsset:
		return "not isset"
	case AssertIsEqual:
		return "= " + a.renderType(in)
	case AssertIsNotEqual:
		return "!= " + a.renderType(in)
	case AssertHasArrayKey:
		return "has key " + a.Key.String()
	case AssertNotHasArrayKey:
		return "lacks key " + a.Key.String()
	case AssertNonEmptyCountable:
		return "non-empty"
	case AssertEmptyCountable:
		return "empty"
	case AssertHasExactCount:
		return fmt.Sprintf("count = %d", a.Count)
	case AssertNotHasExactCount:
		return fmt.Sprintf("count != %d", a.Count)
	case AssertGreaterThan:
		return fmt.Sprintf("> %d", a.Value)
	case AssertGreaterOrEqual:
		return fmt.Sprintf(">= %d", a.Value)
	case AssertLessThan:
		return fmt.Sprintf("< %d", a.Value)
	case AssertLessOrEqual:
		return fmt.Sprintf("<= %d", a.Value)
	}
	return "?"
}

func (a Assertion) renderType(in *source.Interner) string {
	if a.Type == nil {
		return "?"
	}
	return a.Type.Render(in)
}
