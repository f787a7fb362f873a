package ttype

import (
	"mantis/internal/source"
)

// ClassProvider is the slice of codebase metadata the algebra needs for
// class-like subtyping and expansion. The codebase package implements it;
// tests use small fakes.
type ClassProvider interface {
	// ClassExists reports whether the lowered class name is known.
	ClassExists(lowered source.NameID) bool
	// IsInstanceOf reports whether child extends or implements parent
	// (both lowered). A class is an instance of itself.
	IsInstanceOf(child, parent source.NameID) bool
	// ParentOf returns the direct parent class, if any (lowered).
	ParentOf(class source.NameID) (source.NameID, bool)
	// TemplateConstraint returns the declared constraint of the idx-th
	// template parameter of the class-like.
	TemplateConstraint(class source.NameID, idx int) (Union, bool)
	// ConstantType returns the type of a class constant, if known.
	ConstantType(class, constant source.NameID) (Union, bool)
	// IsFinal reports whether the class cannot be extended.
	IsFinal(class source.NameID) bool
	// IsInterface reports whether the class-like is an interface.
	IsInterface(class source.NameID) bool
}

// NopProvider knows no classes. Unknown names are noncomparable, so every
// class-like check fails closed.
type NopProvider struct{}

func (NopProvider) ClassExists(source.NameID) bool                        { return false }
func (NopProvider) IsInstanceOf(_, _ source.NameID) bool                  { return false }
func (NopProvider) ParentOf(source.NameID) (source.NameID, bool)          { return source.NoNameID, false }
func (NopProvider) TemplateConstraint(source.NameID, int) (Union, bool)   { return Union{}, false }
func (NopProvider) ConstantType(_, _ source.NameID) (Union, bool)         { return Union{}, false }
func (NopProvider) IsFinal(source.NameID) bool                            { return false }
func (NopProvider) IsInterface(source.NameID) bool                        { return false }
