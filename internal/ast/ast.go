// Package ast defines the immutable syntax tree the analyzer consumes.
// Trees are produced by the front end together with a resolved-names map;
// the analyzer never mutates them. Type annotations arrive pre-lowered as
// unions, so no docblock syntax leaks past this boundary.
package ast

import (
	"mantis/internal/source"
	"mantis/internal/ttype"
)

// Node is anything with a source span.
type Node interface {
	Span() source.Span
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmtNode()
}

// ResolvedName is a fully-qualified name the front end pinned to an
// identifier occurrence.
type ResolvedName struct {
	FQN      source.NameID
	Imported bool
}

// Module is one analyzed file: its top-level statements plus the
// resolved-names map keyed by identifier start offset.
type Module struct {
	File          source.FileID
	Stmts         []Stmt
	ResolvedNames map[uint32]ResolvedName
}

// ResolveName looks up the fully-qualified name pinned at offset.
func (m *Module) ResolveName(offset uint32) (ResolvedName, bool) {
	rn, ok := m.ResolvedNames[offset]
	return rn, ok
}

// Ident is an identifier occurrence.
type Ident struct {
	Sp   source.Span
	Name source.NameID
}

func (i Ident) Span() source.Span { return i.Sp }

// Selector is a member selector: a fixed identifier or a dynamic
// expression computing the member name.
type Selector struct {
	Sp    source.Span
	Name  source.NameID // NoNameID when dynamic
	Dynam Expr          // nil when fixed
}

func (s Selector) Span() source.Span { return s.Sp }

// IsDynamic reports whether the member name is computed at runtime.
func (s Selector) IsDynamic() bool { return s.Dynam != nil }

// ClassRef is a class-name position: a fixed (resolved) name, one of the
// scoped keywords, or a dynamic expression.
type ClassRef struct {
	Sp    source.Span
	Name  source.NameID // NoNameID when dynamic
	Dynam Expr          // nil when fixed
}

func (c ClassRef) Span() source.Span { return c.Sp }

func (c ClassRef) IsDynamic() bool { return c.Dynam != nil }

// Arg is one call argument.
type Arg struct {
	Sp     source.Span
	Name   source.NameID // NoNameID for positional
	Value  Expr
	Spread bool
	ByRef  bool
}

func (a Arg) Span() source.Span { return a.Sp }

// Param is one declared parameter. Type annotations are pre-lowered.
type Param struct {
	Sp       source.Span
	Name     source.NameID
	Type     *ttype.Union
	Default  Expr
	ByRef    bool
	Variadic bool
	// Promoted marks constructor property promotion.
	Promoted bool
}

func (p Param) Span() source.Span { return p.Sp }

// Attribute is a declaration attribute such as #[Override].
type Attribute struct {
	Sp   source.Span
	Name source.NameID
	Args []Arg
}

func (a Attribute) Span() source.Span { return a.Sp }
