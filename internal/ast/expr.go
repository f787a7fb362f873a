package ast

import (
	"mantis/internal/source"
	"mantis/internal/ttype"
)

// BinaryOp enumerates binary operators.
type BinaryOp uint8

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
	OpConcat
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShiftLeft
	OpShiftRight
	OpAnd      // short-circuit &&
	OpOr       // short-circuit ||
	OpCoalesce // ??
	OpEqual
	OpNotEqual
	OpIdentical
	OpNotIdentical
	OpLess
	OpLessOrEqual
	OpGreater
	OpGreaterOrEqual
	OpSpaceship
)

// UnaryOp enumerates unary operators.
type UnaryOp uint8

const (
	OpNot UnaryOp = iota
	OpNeg
	OpPlus
	OpBitNot
	OpSuppress // @expr
)

// AssignOp enumerates assignment forms.
type AssignOp uint8

const (
	AssignPlain AssignOp = iota
	AssignCoalesce
	AssignAdd
	AssignSub
	AssignMul
	AssignDiv
	AssignMod
	AssignConcat
	AssignBitAnd
	AssignBitOr
	AssignBitXor
	AssignShiftLeft
	AssignShiftRight
)

// CastKind enumerates cast targets.
type CastKind uint8

const (
	CastInt CastKind = iota
	CastFloat
	CastString
	CastBool
	CastArray
	CastObject
)

// Variable is a simple variable reference.
type Variable struct {
	Sp   source.Span
	Name source.NameID
}

type IntLit struct {
	Sp    source.Span
	Value int64
}

type FloatLit struct {
	Sp    source.Span
	Value float64
}

// StringLit is a string literal; interpolated strings carry Parts and an
// empty Value.
type StringLit struct {
	Sp    source.Span
	Value string
	Parts []Expr
}

type BoolLit struct {
	Sp    source.Span
	Value bool
}

type NullLit struct {
	Sp source.Span
}

// ArrayItem is one element of an array literal.
type ArrayItem struct {
	Sp     source.Span
	Key    Expr // nil for positional
	Value  Expr
	ByRef  bool
	Spread bool
}

func (a ArrayItem) Span() source.Span { return a.Sp }

// ArrayLit is an array literal.
type ArrayLit struct {
	Sp    source.Span
	Items []ArrayItem
}

// Binary is a binary operation.
type Binary struct {
	Sp          source.Span
	Op          BinaryOp
	Left, Right Expr
}

// Unary is a unary operation.
type Unary struct {
	Sp      source.Span
	Op      UnaryOp
	Operand Expr
}

// Assign is an assignment expression.
type Assign struct {
	Sp     source.Span
	Op     AssignOp
	Target Expr
	Value  Expr
	ByRef  bool
}

// Isset is isset($a, $b, ...).
type Isset struct {
	Sp   source.Span
	Vars []Expr
}

// Empty is empty($x).
type Empty struct {
	Sp  source.Span
	Arg Expr
}

// FuncName is the callee of a named function call.
type FuncName struct {
	Sp   source.Span
	Name source.NameID
}

// Call is a function or closure call.
type Call struct {
	Sp     source.Span
	Callee Expr
	Args   []Arg
}

// MethodCall is $obj->m(...) or $obj?->m(...).
type MethodCall struct {
	Sp       source.Span
	Object   Expr
	Method   Selector
	Args     []Arg
	Nullsafe bool
}

// StaticCall is C::m(...).
type StaticCall struct {
	Sp     source.Span
	Class  ClassRef
	Method Selector
	Args   []Arg
}

// New is new C(...).
type New struct {
	Sp    source.Span
	Class ClassRef
	Args  []Arg
}

// PropertyFetch is $obj->p or $obj?->p.
type PropertyFetch struct {
	Sp       source.Span
	Object   Expr
	Prop     Selector
	Nullsafe bool
}

// StaticPropertyFetch is C::$p.
type StaticPropertyFetch struct {
	Sp    source.Span
	Class ClassRef
	Prop  Selector
}

// ClassConstFetch is C::K. The interned "class" keyword as K yields the
// class-string of C.
type ClassConstFetch struct {
	Sp    source.Span
	Class ClassRef
	Const Ident
}

// Index is $base[dim]; Dim is nil in push position ($a[] = x).
type Index struct {
	Sp   source.Span
	Base Expr
	Dim  Expr
}

// Ternary is cond ? then : else; nil Then encodes the short form.
type Ternary struct {
	Sp   source.Span
	Cond Expr
	Then Expr
	Else Expr
}

// ClosureUse is one captured variable of a closure literal.
type ClosureUse struct {
	Sp    source.Span
	Name  source.NameID
	ByRef bool
}

func (c ClosureUse) Span() source.Span { return c.Sp }

// Closure is a closure or arrow-function literal.
type Closure struct {
	Sp     source.Span
	Params []Param
	Uses   []ClosureUse
	Return *ttype.Union
	Body   []Stmt
	Arrow  bool
	Static bool
}

// Cast is (int)$x and friends.
type Cast struct {
	Sp      source.Span
	Kind    CastKind
	Operand Expr
}

// InstanceOf is $x instanceof C.
type InstanceOf struct {
	Sp    source.Span
	Expr  Expr
	Class ClassRef
}

// MatchArm is one arm of a match expression; nil Conds is the default arm.
type MatchArm struct {
	Sp    source.Span
	Conds []Expr
	Body  Expr
}

func (m MatchArm) Span() source.Span { return m.Sp }

// Match is a match expression.
type Match struct {
	Sp      source.Span
	Subject Expr
	Arms    []MatchArm
}

// Clone is clone $x.
type Clone struct {
	Sp      source.Span
	Operand Expr
}

// ThrowExpr is a throw used in expression position.
type ThrowExpr struct {
	Sp      source.Span
	Operand Expr
}

func (e *Variable) Span() source.Span            { return e.Sp }
func (e *IntLit) Span() source.Span              { return e.Sp }
func (e *FloatLit) Span() source.Span            { return e.Sp }
func (e *StringLit) Span() source.Span           { return e.Sp }
func (e *BoolLit) Span() source.Span             { return e.Sp }
func (e *NullLit) Span() source.Span             { return e.Sp }
func (e *ArrayLit) Span() source.Span            { return e.Sp }
func (e *Binary) Span() source.Span              { return e.Sp }
func (e *Unary) Span() source.Span               { return e.Sp }
func (e *Assign) Span() source.Span              { return e.Sp }
func (e *Isset) Span() source.Span               { return e.Sp }
func (e *Empty) Span() source.Span               { return e.Sp }
func (e *FuncName) Span() source.Span            { return e.Sp }
func (e *Call) Span() source.Span                { return e.Sp }
func (e *MethodCall) Span() source.Span          { return e.Sp }
func (e *StaticCall) Span() source.Span          { return e.Sp }
func (e *New) Span() source.Span                 { return e.Sp }
func (e *PropertyFetch) Span() source.Span       { return e.Sp }
func (e *StaticPropertyFetch) Span() source.Span { return e.Sp }
func (e *ClassConstFetch) Span() source.Span     { return e.Sp }
func (e *Index) Span() source.Span               { return e.Sp }
func (e *Ternary) Span() source.Span             { return e.Sp }
func (e *Closure) Span() source.Span             { return e.Sp }
func (e *Cast) Span() source.Span                { return e.Sp }
func (e *InstanceOf) Span() source.Span          { return e.Sp }
func (e *Match) Span() source.Span               { return e.Sp }
func (e *Clone) Span() source.Span               { return e.Sp }
func (e *ThrowExpr) Span() source.Span           { return e.Sp }

func (*Variable) exprNode()            {}
func (*FuncName) exprNode()            {}
func (*IntLit) exprNode()              {}
func (*FloatLit) exprNode()            {}
func (*StringLit) exprNode()           {}
func (*BoolLit) exprNode()             {}
func (*NullLit) exprNode()             {}
func (*ArrayLit) exprNode()            {}
func (*Binary) exprNode()              {}
func (*Unary) exprNode()               {}
func (*Assign) exprNode()              {}
func (*Isset) exprNode()               {}
func (*Empty) exprNode()               {}
func (*Call) exprNode()                {}
func (*MethodCall) exprNode()          {}
func (*StaticCall) exprNode()          {}
func (*New) exprNode()                 {}
func (*PropertyFetch) exprNode()       {}
func (*StaticPropertyFetch) exprNode() {}
func (*ClassConstFetch) exprNode()     {}
func (*Index) exprNode()               {}
func (*Ternary) exprNode()             {}
func (*Closure) exprNode()             {}
func (*Cast) exprNode()                {}
func (*InstanceOf) exprNode()          {}
func (*Match) exprNode()               {}
func (*Clone) exprNode()               {}
func (*ThrowExpr) exprNode()           {}
