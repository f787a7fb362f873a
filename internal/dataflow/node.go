// Package dataflow tracks value provenance: a directed multigraph of
// sources, vertices and sinks with labeled edges, origin queries over
// backward edges, and taint propagation.
package dataflow

import (
	"fmt"

	"mantis/internal/source"
)

// NodeKind classifies graph nodes.
type NodeKind uint8

const (
	// NodeVar is a variable definition site.
	NodeVar NodeKind = iota
	// NodeParameter is a declared parameter of a function-like.
	NodeParameter
	// NodeCallTo is the unspecialized return of a function-like.
	NodeCallTo
	// NodeSpecializedCallTo is a CallTo pinned to one call site.
	NodeSpecializedCallTo
	// NodeProperty is a class property.
	NodeProperty
	// NodeTaintSource emits a taint label.
	NodeTaintSource
	// NodeTaintSink demands untainted input.
	NodeTaintSink
	// NodeComposition is an intermediate expression value.
	NodeComposition
)

func (k NodeKind) String() string {
	switch k {
	case NodeVar:
		return "var"
	case NodeParameter:
		return "param"
	case NodeCallTo:
		return "call"
	case NodeSpecializedCallTo:
		return "specialized-call"
	case NodeProperty:
		return "property"
	case NodeTaintSource:
		return "taint-source"
	case NodeTaintSink:
		return "taint-sink"
	}
	return "composition"
}

// TaintLabel names one taint context.
type TaintLabel uint8

const (
	TaintNone TaintLabel = iota
	TaintHTML
	TaintShell
	TaintSQL
	TaintUserInput
)

func (l TaintLabel) String() string {
	switch l {
	case TaintHTML:
		return "html"
	case TaintShell:
		return "shell"
	case TaintSQL:
		return "sql"
	case TaintUserInput:
		return "user-input"
	}
	return "none"
}

// NodeID identifies a node. IDs are structural: the same definition site
// always produces the same id, so re-adding is idempotent.
type NodeID struct {
	Kind NodeKind
	// Name is the variable, function-like or property id.
	Name source.NameID
	// Class qualifies NodeProperty and method NodeCallTo nodes.
	Class source.NameID
	// Index is the parameter position for NodeParameter.
	Index int
	// Span is the defining span (Var, Composition) or call site
	// (SpecializedCallTo).
	Span source.Span
}

func (id NodeID) String() string {
	return fmt.Sprintf("%s(%d:%d@%s)", id.Kind, id.Class, id.Name, id.Span)
}

// Node is the stored record for one id.
type Node struct {
	ID    NodeID
	Label string // human-readable, for issue messages
	Taint TaintLabel
	// Sinks carry the labels they must not receive.
	Requires []TaintLabel
}

// IsSource and IsSink classify by kind.
func (n *Node) IsSource() bool { return n.ID.Kind == NodeTaintSource }
func (n *Node) IsSink() bool   { return n.ID.Kind == NodeTaintSink }

// VarNode builds a variable definition node.
func VarNode(name source.NameID, def source.Span) NodeID {
	return NodeID{Kind: NodeVar, Name: name, Span: def}
}

// ParameterNode builds a parameter node.
func ParameterNode(class, fn source.NameID, idx int) NodeID {
	return NodeID{Kind: NodeParameter, Class: class, Name: fn, Index: idx}
}

// CallNode builds the unspecialized return node of a function-like.
func CallNode(class, fn source.NameID) NodeID {
	return NodeID{Kind: NodeCallTo, Class: class, Name: fn}
}

// SpecializedCallNode pins a call node to a call site.
func SpecializedCallNode(class, fn source.NameID, site source.Span) NodeID {
	return NodeID{Kind: NodeSpecializedCallTo, Class: class, Name: fn, Span: site}
}

// PropertyNode builds a property node.
func PropertyNode(class, prop source.NameID) NodeID {
	return NodeID{Kind: NodeProperty, Class: class, Name: prop}
}

// CompositionNode builds an intermediate expression node.
func CompositionNode(span source.Span) NodeID {
	return NodeID{Kind: NodeComposition, Span: span}
}

// TaintSourceNode and TaintSinkNode build taint endpoints.
func TaintSourceNode(name source.NameID, span source.Span) NodeID {
	return NodeID{Kind: NodeTaintSource, Name: name, Span: span}
}

func TaintSinkNode(name source.NameID, span source.Span) NodeID {
	return NodeID{Kind: NodeTaintSink, Name: name, Span: span}
}

// Unspecialized strips the call-site from a specialized call node.
func (id NodeID) Unspecialized() NodeID {
	if id.Kind != NodeSpecializedCallTo {
		return id
	}
	return NodeID{Kind: NodeCallTo, Name: id.Name, Class: id.Class}
}
