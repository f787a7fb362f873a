package ast

import (
	"mantis/internal/source"
	"mantis/internal/ttype"
)

// ClassKind distinguishes class-like declarations.
type ClassKind uint8

const (
	ClassOrdinary ClassKind = iota
	ClassAbstract
	ClassFinal
	ClassInterface
	ClassTrait
	ClassEnum
)

// Visibility of a class member.
type Visibility uint8

const (
	Public Visibility = iota
	Protected
	Private
)

func (v Visibility) String() string {
	switch v {
	case Protected:
		return "protected"
	case Private:
		return "private"
	}
	return "public"
}

// TemplateDecl is one declared template parameter with an optional
// pre-lowered constraint.
type TemplateDecl struct {
	Sp         source.Span
	Name       source.NameID
	Constraint *ttype.Union
}

func (t TemplateDecl) Span() source.Span { return t.Sp }

// ConstDecl is one class or top-level constant.
type ConstDecl struct {
	Sp         source.Span
	Name       source.NameID
	Type       *ttype.Union
	Value      Expr
	Visibility Visibility
}

func (c ConstDecl) Span() source.Span { return c.Sp }

// PropertyDecl is one declared property.
type PropertyDecl struct {
	Sp         source.Span
	Name       source.NameID
	Type       *ttype.Union
	Default    Expr
	Visibility Visibility
	Static     bool
	Readonly   bool
	Attributes []Attribute
}

func (p PropertyDecl) Span() source.Span { return p.Sp }

// EnumCaseDecl is one case of an enum declaration.
type EnumCaseDecl struct {
	Sp    source.Span
	Name  source.NameID
	Value Expr // nil for pure enums
}

func (e EnumCaseDecl) Span() source.Span { return e.Sp }

// FunctionDecl is a top-level function or a method. NameSp covers just
// the identifier, Sp the whole declaration.
type FunctionDecl struct {
	Sp         source.Span
	NameSp     source.Span
	Name       source.NameID
	Templates  []TemplateDecl
	Params     []Param
	Return     *ttype.Union
	Body       []Stmt // nil for abstract and interface methods
	HasBody    bool
	Attributes []Attribute

	// Method-only modifiers; zero values for plain functions.
	Visibility Visibility
	Static     bool
	Abstract   bool
	Final      bool
}

// ClassDecl is a class-like declaration.
type ClassDecl struct {
	Sp         source.Span
	NameSp     source.Span
	Name       source.NameID
	Kind       ClassKind
	Templates  []TemplateDecl
	Extends    []ClassRef // interfaces may extend several
	Implements []ClassRef
	Uses       []ClassRef // trait uses
	Consts     []ConstDecl
	Props      []PropertyDecl
	Methods    []*FunctionDecl
	EnumCases  []EnumCaseDecl
	// EnumBacking is the declared backing type of a backed enum.
	EnumBacking *ttype.Union
	Attributes  []Attribute
}

func (d *FunctionDecl) Span() source.Span { return d.Sp }
func (d *ClassDecl) Span() source.Span    { return d.Sp }

func (*FunctionDecl) stmtNode() {}
func (*ClassDecl) stmtNode()    {}
