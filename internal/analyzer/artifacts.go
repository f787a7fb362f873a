package analyzer

import (
	"mantis/internal/codebase"
	"mantis/internal/dataflow"
	"mantis/internal/source"
	"mantis/internal/ttype"
)

// SymbolRef records that the analyzed function-like references a class
// member.
type SymbolRef struct {
	From   codebase.MethodID
	Class  source.NameID // lowered
	Member source.NameID // lowered
	Span   source.Span
}

// Artifacts is the per-module analysis output: expression types, inferred
// returns, symbol references and the module's data-flow graph. Mutable
// while the module runs, immutable afterwards.
type Artifacts struct {
	ExprTypes       map[source.Span]ttype.Union
	InferredReturns map[codebase.MethodID]ttype.Union
	SymbolRefs      []SymbolRef
	Graph           *dataflow.Graph
}

// NewArtifacts builds the empty per-module set.
func NewArtifacts() *Artifacts {
	return &Artifacts{
		ExprTypes:       map[source.Span]ttype.Union{},
		InferredReturns: map[codebase.MethodID]ttype.Union{},
		Graph:           dataflow.NewGraph(dataflow.FunctionBody),
	}
}

// SetExprType records an expression's inferred type.
func (a *Artifacts) SetExprType(sp source.Span, t ttype.Union) {
	a.ExprTypes[sp] = t
}

// ExprType looks up a recorded expression type.
func (a *Artifacts) ExprType(sp source.Span) (ttype.Union, bool) {
	t, ok := a.ExprTypes[sp]
	return t, ok
}

// AddInferredReturn unions a return expression's type into the
// function-like's inferred return.
func (a *Artifacts) AddInferredReturn(cb ttype.ClassProvider, id codebase.MethodID, t ttype.Union) {
	if have, ok := a.InferredReturns[id]; ok {
		a.InferredReturns[id] = ttype.Combine(cb, have, t)
		return
	}
	a.InferredReturns[id] = t
}

// AddSymbolRef records a member reference.
func (a *Artifacts) AddSymbolRef(ref SymbolRef) {
	a.SymbolRefs = append(a.SymbolRefs, ref)
}
