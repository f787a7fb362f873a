package dataflow

import (
	"fmt"
	"sort"

	"mantis/internal/source"
)

// PathKind labels one edge.
type PathKind struct {
	Kind PathOp
	// Label qualifies Sanitize edges.
	Label TaintLabel
	// Key qualifies array/property access edges.
	Key string
}

// PathOp enumerates edge operations.
type PathOp uint8

const (
	// PathDefault is plain value flow.
	PathDefault PathOp = iota
	// PathAssignment flows through an assignment.
	PathAssignment
	// PathArrayValue flows into or out of an array value slot.
	PathArrayValue
	// PathArrayKey flows into an array key slot.
	PathArrayKey
	// PathProperty flows through a property read or write.
	PathProperty
	// PathArgument flows from an argument into a parameter.
	PathArgument
	// PathReturn flows from a return expression to the call node.
	PathReturn
	// PathConditional flows through a branch join.
	PathConditional
	// PathSanitize neutralizes the attached taint label.
	PathSanitize
)

func (p PathKind) String() string {
	switch p.Kind {
	case PathAssignment:
		return "assign"
	case PathArrayValue:
		return "array-value[" + p.Key + "]"
	case PathArrayKey:
		return "array-key"
	case PathProperty:
		return "property[" + p.Key + "]"
	case PathArgument:
		return "arg"
	case PathReturn:
		return "return"
	case PathConditional:
		return "cond"
	case PathSanitize:
		return "sanitize(" + p.Label.String() + ")"
	}
	return "flow"
}

// Sanitize builds the sanitizer edge for a label.
func Sanitize(label TaintLabel) PathKind {
	return PathKind{Kind: PathSanitize, Label: label}
}

// GraphKind separates the two graph populations.
type GraphKind uint8

const (
	// FunctionBody graphs are intra-procedural; they maintain backward
	// edges for origin queries.
	FunctionBody GraphKind = iota
	// WholeProgram graphs are inter-procedural; they record call-site
	// specializations instead.
	WholeProgram
)

func (k GraphKind) String() string {
	if k == WholeProgram {
		return "whole-program"
	}
	return "function-body"
}

// Graph is the data-flow multigraph.
type Graph struct {
	Kind GraphKind

	Nodes   map[NodeID]*Node
	Sources map[NodeID]*Node
	Sinks   map[NodeID]*Node

	// ForwardEdges keeps every distinct PathKind per (from,to) pair;
	// parallel edges of different kinds coexist.
	ForwardEdges  map[NodeID]map[NodeID][]PathKind
	BackwardEdges map[NodeID]map[NodeID]struct{}

	// Specializations indexes unspecialized call nodes to the call sites
	// that specialized them. WholeProgram only.
	Specializations map[NodeID]map[source.Span]struct{}
}

// NewGraph builds an empty graph of the given kind.
func NewGraph(kind GraphKind) *Graph {
	g := &Graph{
		Kind:         kind,
		Nodes:        map[NodeID]*Node{},
		Sources:      map[NodeID]*Node{},
		Sinks:        map[NodeID]*Node{},
		ForwardEdges: map[NodeID]map[NodeID][]PathKind{},
	}
	if kind == FunctionBody {
		g.BackwardEdges = map[NodeID]map[NodeID]struct{}{}
	} else {
		g.Specializations = map[NodeID]map[source.Span]struct{}{}
	}
	return g
}

// AddNode places the node in the population its kind selects. Re-adding
// an id is a no-op for vertices; endpoint metadata merges labels.
func (g *Graph) AddNode(n *Node) {
	switch {
	case n.IsSource():
		if have, ok := g.Sources[n.ID]; ok {
			if have.Taint == TaintNone {
				have.Taint = n.Taint
			}
			return
		}
		g.Sources[n.ID] = n
	case n.IsSink():
		if have, ok := g.Sinks[n.ID]; ok {
			have.Requires = mergeLabels(have.Requires, n.Requires)
			return
		}
		g.Sinks[n.ID] = n
	default:
		if _, ok := g.Nodes[n.ID]; ok {
			return
		}
		g.Nodes[n.ID] = n
	}

	if g.Kind == WholeProgram && n.ID.Kind == NodeSpecializedCallTo {
		base := n.ID.Unspecialized()
		if g.Specializations[base] == nil {
			g.Specializations[base] = map[source.Span]struct{}{}
		}
		g.Specializations[base][n.ID.Span] = struct{}{}
	}
}

// AddPath records a labeled edge. Self-loops are skipped; FunctionBody
// graphs mirror the edge backwards.
func (g *Graph) AddPath(from, to NodeID, kind PathKind) {
	if from == to {
		return
	}
	if g.ForwardEdges[from] == nil {
		g.ForwardEdges[from] = map[NodeID][]PathKind{}
	}
	have := g.ForwardEdges[from][to]
	dup := false
	for _, k := range have {
		if k == kind {
			dup = true
			break
		}
	}
	if !dup {
		g.ForwardEdges[from][to] = append(have, kind)
	}

	if g.Kind == FunctionBody {
		if g.BackwardEdges[to] == nil {
			g.BackwardEdges[to] = map[NodeID]struct{}{}
		}
		g.BackwardEdges[to][from] = struct{}{}
	}
}

// Merge folds other into g. Merging graphs of different kinds is an
// internal invariant violation.
func (g *Graph) Merge(other *Graph) error {
	if other == nil {
		return nil
	}
	if g.Kind != other.Kind {
		return fmt.Errorf("dataflow: merge %s graph into %s graph", other.Kind, g.Kind)
	}
	for _, n := range other.Nodes {
		g.AddNode(n)
	}
	for _, n := range other.Sources {
		g.AddNode(n)
	}
	for _, n := range other.Sinks {
		g.AddNode(n)
	}
	for from, tos := range other.ForwardEdges {
		for to, kinds := range tos {
			for _, kind := range kinds {
				g.AddPath(from, to, kind)
			}
		}
	}
	if g.Kind == WholeProgram {
		for base, sites := range other.Specializations {
			if g.Specializations[base] == nil {
				g.Specializations[base] = map[source.Span]struct{}{}
			}
			for site := range sites {
				g.Specializations[base][site] = struct{}{}
			}
		}
	}
	return nil
}

// AbsorbFunctionBody folds a function-body graph into a whole-program
// graph, indexing specialized call sites along the way.
func (g *Graph) AbsorbFunctionBody(other *Graph) error {
	if other == nil {
		return nil
	}
	if g.Kind != WholeProgram || other.Kind != FunctionBody {
		return fmt.Errorf("dataflow: absorb %s graph into %s graph", other.Kind, g.Kind)
	}
	for _, n := range other.Nodes {
		g.AddNode(n)
	}
	for _, n := range other.Sources {
		g.AddNode(n)
	}
	for _, n := range other.Sinks {
		g.AddNode(n)
	}
	for from, tos := range other.ForwardEdges {
		for to, kinds := range tos {
			for _, kind := range kinds {
				g.AddPath(from, to, kind)
			}
		}
	}
	return nil
}

// node looks an id up across all three populations.
func (g *Graph) node(id NodeID) (*Node, bool) {
	if n, ok := g.Nodes[id]; ok {
		return n, true
	}
	if n, ok := g.Sources[id]; ok {
		return n, true
	}
	n, ok := g.Sinks[id]
	return n, ok
}

// OriginNodes walks backward edges from start and returns the nodes with
// no traversable parents. Edges whose forward PathKind op is in ignore
// are not traversed. With varOnly set, only Var and Parameter nodes
// qualify as origins. Results are in a deterministic order.
func (g *Graph) OriginNodes(start NodeID, ignore []PathOp, varOnly bool) []NodeID {
	if g.BackwardEdges == nil {
		return nil
	}
	skip := map[PathOp]bool{}
	for _, op := range ignore {
		skip[op] = true
	}

	var origins []NodeID
	seen := map[NodeID]bool{start: true}
	queue := []NodeID{start}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		hasParent := false
		for parent := range g.BackwardEdges[cur] {
			traversable := false
			for _, kind := range g.ForwardEdges[parent][cur] {
				if !skip[kind.Kind] {
					traversable = true
					break
				}
			}
			if !traversable {
				continue
			}
			hasParent = true
			if !seen[parent] {
				seen[parent] = true
				queue = append(queue, parent)
			}
		}
		if hasParent {
			continue
		}
		if varOnly && cur.Kind != NodeVar && cur.Kind != NodeParameter {
			continue
		}
		origins = append(origins, cur)
	}

	sort.Slice(origins, func(i, j int) bool {
		return origins[i].String() < origins[j].String()
	})
	return origins
}

func mergeLabels(dst, extra []TaintLabel) []TaintLabel {
outer:
	for _, l := range extra {
		for _, have := range dst {
			if have == l {
				continue outer
			}
		}
		dst = append(dst, l)
	}
	return dst
}
