package dataflow

import (
	"testing"

	"mantis/internal/source"
)

func sp(start, end uint32) source.Span {
	return source.Span{File: 1, Start: start, End: end}
}

func TestAddNodeIsIdempotent(t *testing.T) {
	g := NewGraph(FunctionBody)
	id := VarNode(7, sp(0, 2))
	g.AddNode(&Node{ID: id, Label: "$a"})
	g.AddNode(&Node{ID: id, Label: "$a again"})
	if len(g.Nodes) != 1 {
		t.Fatalf("re-adding a vertex should be a no-op, have %d nodes", len(g.Nodes))
	}
	if g.Nodes[id].Label != "$a" {
		t.Fatalf("the first record should win")
	}
}

func TestAddNodeMergesSinkRequirements(t *testing.T) {
	g := NewGraph(WholeProgram)
	id := TaintSinkNode(3, sp(10, 14))
	g.AddNode(&Node{ID: id, Requires: []TaintLabel{TaintSQL}})
	g.AddNode(&Node{ID: id, Requires: []TaintLabel{TaintSQL, TaintHTML}})
	if len(g.Sinks) != 1 {
		t.Fatalf("sink ids should dedupe")
	}
	if got := g.Sinks[id].Requires; len(got) != 2 {
		t.Fatalf("sink requirements should merge, got %v", got)
	}
}

func TestAddPathSkipsSelfLoops(t *testing.T) {
	g := NewGraph(FunctionBody)
	id := VarNode(1, sp(0, 2))
	g.AddPath(id, id, PathKind{Kind: PathAssignment})
	if len(g.ForwardEdges) != 0 {
		t.Fatalf("self-loops must not be recorded")
	}
}

func TestAddPathKeepsParallelKinds(t *testing.T) {
	g := NewGraph(FunctionBody)
	a := VarNode(1, sp(0, 2))
	b := VarNode(2, sp(4, 6))
	g.AddPath(a, b, PathKind{Kind: PathAssignment})
	g.AddPath(a, b, Sanitize(TaintSQL))
	g.AddPath(a, b, PathKind{Kind: PathAssignment})

	if got := g.ForwardEdges[a][b]; len(got) != 2 {
		t.Fatalf("distinct kinds coexist and exact duplicates fold, got %v", got)
	}
}

func TestFunctionBodyMirrorsBackwardEdges(t *testing.T) {
	g := NewGraph(FunctionBody)
	a := VarNode(1, sp(0, 2))
	b := VarNode(2, sp(4, 6))
	g.AddPath(a, b, PathKind{Kind: PathAssignment})
	if _, ok := g.BackwardEdges[b][a]; !ok {
		t.Fatalf("function-body graphs mirror edges backwards")
	}

	wp := NewGraph(WholeProgram)
	wp.AddPath(a, b, PathKind{Kind: PathAssignment})
	if wp.BackwardEdges != nil {
		t.Fatalf("whole-program graphs carry no backward edges")
	}
}

func TestOriginNodesWalksToRoots(t *testing.T) {
	g := NewGraph(FunctionBody)
	root := VarNode(1, sp(0, 2))
	mid := CompositionNode(sp(4, 8))
	leaf := VarNode(2, sp(10, 12))
	for _, id := range []NodeID{root, mid, leaf} {
		g.AddNode(&Node{ID: id})
	}
	g.AddPath(root, mid, PathKind{Kind: PathDefault})
	g.AddPath(mid, leaf, PathKind{Kind: PathAssignment})

	origins := g.OriginNodes(leaf, nil, false)
	if len(origins) != 1 || origins[0] != root {
		t.Fatalf("origin of leaf should be root, got %v", origins)
	}
}

func TestOriginNodesIgnoreList(t *testing.T) {
	g := NewGraph(FunctionBody)
	root := VarNode(1, sp(0, 2))
	leaf := VarNode(2, sp(10, 12))
	g.AddNode(&Node{ID: root})
	g.AddNode(&Node{ID: leaf})
	g.AddPath(root, leaf, PathKind{Kind: PathConditional})

	origins := g.OriginNodes(leaf, []PathOp{PathConditional}, false)
	if len(origins) != 1 || origins[0] != leaf {
		t.Fatalf("an ignored edge makes the start its own origin, got %v", origins)
	}
}

func TestOriginNodesVarOnly(t *testing.T) {
	g := NewGraph(FunctionBody)
	comp := CompositionNode(sp(0, 4))
	leaf := VarNode(2, sp(10, 12))
	g.AddNode(&Node{ID: comp})
	g.AddNode(&Node{ID: leaf})
	g.AddPath(comp, leaf, PathKind{Kind: PathDefault})

	if origins := g.OriginNodes(leaf, nil, true); len(origins) != 0 {
		t.Fatalf("a composition root is not a var origin, got %v", origins)
	}
	if origins := g.OriginNodes(leaf, nil, false); len(origins) != 1 || origins[0] != comp {
		t.Fatalf("without varOnly the composition root qualifies, got %v", origins)
	}
}

func TestOriginNodesHandlesCycles(t *testing.T) {
	g := NewGraph(FunctionBody)
	a := VarNode(1, sp(0, 2))
	b := VarNode(2, sp(4, 6))
	root := VarNode(3, sp(8, 10))
	for _, id := range []NodeID{a, b, root} {
		g.AddNode(&Node{ID: id})
	}
	g.AddPath(a, b, PathKind{Kind: PathAssignment})
	g.AddPath(b, a, PathKind{Kind: PathAssignment})
	g.AddPath(root, a, PathKind{Kind: PathAssignment})

	origins := g.OriginNodes(b, nil, false)
	if len(origins) != 1 || origins[0] != root {
		t.Fatalf("the cycle should not loop forever; origin is root, got %v", origins)
	}
}

func TestMergeRejectsKindMismatch(t *testing.T) {
	fb := NewGraph(FunctionBody)
	wp := NewGraph(WholeProgram)
	if err := fb.Merge(wp); err == nil {
		t.Fatalf("merging across kinds must fail")
	}
	if err := fb.Merge(nil); err != nil {
		t.Fatalf("merging nil is a no-op: %v", err)
	}
}

func TestAbsorbFunctionBody(t *testing.T) {
	fb := NewGraph(FunctionBody)
	src := TaintSourceNode(1, sp(0, 4))
	v := VarNode(2, sp(6, 8))
	fb.AddNode(&Node{ID: src, Taint: TaintUserInput})
	fb.AddNode(&Node{ID: v})
	fb.AddPath(src, v, PathKind{Kind: PathAssignment})

	wp := NewGraph(WholeProgram)
	if err := wp.AbsorbFunctionBody(fb); err != nil {
		t.Fatalf("absorb failed: %v", err)
	}
	if _, ok := wp.Sources[src]; !ok {
		t.Fatalf("the source should carry over")
	}
	if _, ok := wp.ForwardEdges[src][v]; !ok {
		t.Fatalf("edges should carry over")
	}
	if err := wp.AbsorbFunctionBody(wp); err == nil {
		t.Fatalf("absorbing a whole-program graph must fail")
	}
}

func TestSpecializationIndex(t *testing.T) {
	wp := NewGraph(WholeProgram)
	site := sp(20, 28)
	spec := SpecializedCallNode(0, 5, site)
	wp.AddNode(&Node{ID: spec})

	base := CallNode(0, 5)
	sites, ok := wp.Specializations[base]
	if !ok {
		t.Fatalf("specialized calls should index under their base node")
	}
	if _, ok := sites[site]; !ok {
		t.Fatalf("the call site should be recorded")
	}
	if spec.Unspecialized() != base {
		t.Fatalf("Unspecialized should strip the site")
	}
}
