// Package codebase holds the populated symbol metadata the analyzer and
// resolver consult: class-likes with their flattened inheritance, and
// function-likes with their signatures. The store is written during the
// scan phase, populated in a fix-point, then frozen for concurrent reads.
package codebase

import (
	"mantis/internal/ast"
	"mantis/internal/source"
	"mantis/internal/ttype"
)

// MethodID identifies a function-like: a lowered class id plus a lowered
// member id. Plain functions use NoNameID as the class.
type MethodID struct {
	Class  source.NameID
	Method source.NameID
}

// ClassLikeKind classifies class-like symbols.
type ClassLikeKind uint8

const (
	KindClass ClassLikeKind = iota
	KindInterface
	KindTrait
	KindEnum
)

func (k ClassLikeKind) String() string {
	switch k {
	case KindInterface:
		return "interface"
	case KindTrait:
		return "trait"
	case KindEnum:
		return "enum"
	}
	return "class"
}

// TemplateMetadata is one declared template parameter.
type TemplateMetadata struct {
	Name       source.NameID
	Constraint *ttype.Union
}

// ConstantMetadata is one class constant.
type ConstantMetadata struct {
	Name       source.NameID // original case
	Type       *ttype.Union
	Visibility ast.Visibility
	Declaring  source.NameID // lowered class that declared it
	Span       source.Span
}

// EnumCaseMetadata is one enum case.
type EnumCaseMetadata struct {
	Name  source.NameID // original case
	Span  source.Span
	Value ast.Expr // nil for pure enums
}

// PropertyMetadata is one declared property.
type PropertyMetadata struct {
	Name       source.NameID // original case
	Type       *ttype.Union
	Visibility ast.Visibility
	Static     bool
	Readonly   bool
	Declaring  source.NameID // lowered class that declared it
	Span       source.Span
}

// ParamMetadata is one parameter of a function-like signature.
type ParamMetadata struct {
	Name     source.NameID
	Type     *ttype.Union
	Optional bool
	ByRef    bool
	Variadic bool
	Promoted bool
}

// FunctionLikeMetadata is the signature-level record of a function,
// method or closure.
type FunctionLikeMetadata struct {
	ID       MethodID
	Name     source.NameID // original case
	Span     source.Span
	NameSpan source.Span
	File     source.FileID

	Templates []TemplateMetadata
	Params    []ParamMetadata
	Return    *ttype.Union

	Visibility    ast.Visibility
	Static        bool
	Abstract      bool
	Final         bool
	HasBody       bool
	IsConstructor bool

	// HasOverrideAttribute is set when the declaration carries #[Override].
	HasOverrideAttribute bool

	// Pure function-likes never mutate reachable state; impure calls make
	// the analyzer drop member-chain locals.
	Pure bool

	// Taint endpoints declared via attributes.
	TaintSource bool
	TaintSink   bool
	Sanitizes   bool
}

// ClassLikeMetadata is the populated record of a class-like symbol.
type ClassLikeMetadata struct {
	Name     source.NameID // original case
	Lowered  source.NameID
	Kind     ClassLikeKind
	Span     source.Span
	NameSpan source.Span
	File     source.FileID

	IsAbstract bool
	IsFinal    bool

	ParentClass source.NameID // lowered; NoNameID when none
	// AllParentClasses is the transitive parent chain, nearest first.
	AllParentClasses []source.NameID
	Interfaces       []source.NameID
	AllInterfaces    []source.NameID
	Traits           []source.NameID

	TemplateTypes []TemplateMetadata

	Constants  map[source.NameID]*ConstantMetadata
	EnumCases  map[source.NameID]*EnumCaseMetadata
	Properties map[source.NameID]*PropertyMetadata

	// EnumBacking is the backing type of a backed enum, nil otherwise.
	EnumBacking *ttype.Union

	// DeclaringMethodIDs maps a lowered member name to the function-like
	// that declares its body for this class (possibly an ancestor).
	DeclaringMethodIDs map[source.NameID]MethodID
	// InheritableMethodIDs is the subset children may inherit.
	InheritableMethodIDs map[source.NameID]MethodID
	// OverriddenMethodIDs maps a member declared here to the ancestor
	// declarations it overrides.
	OverriddenMethodIDs map[source.NameID][]MethodID

	HasConsistentConstructor bool
}

// HasParent reports whether lowered appears in the transitive parent
// chain or interface closure.
func (c *ClassLikeMetadata) HasParent(lowered source.NameID) bool {
	for _, p := range c.AllParentClasses {
		if p == lowered {
			return true
		}
	}
	for _, i := range c.AllInterfaces {
		if i == lowered {
			return true
		}
	}
	return false
}
