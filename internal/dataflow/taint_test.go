package dataflow

import "testing"

func buildTaintChain(g *Graph, label TaintLabel) (src, sink NodeID) {
	src = TaintSourceNode(1, sp(0, 4))
	mid := VarNode(2, sp(6, 8))
	sink = TaintSinkNode(3, sp(10, 14))
	g.AddNode(&Node{ID: src, Label: "request input", Taint: label})
	g.AddNode(&Node{ID: mid, Label: "$q"})
	g.AddNode(&Node{ID: sink, Label: "query()", Requires: []TaintLabel{label}})
	g.AddPath(src, mid, PathKind{Kind: PathAssignment})
	g.AddPath(mid, sink, PathKind{Kind: PathArgument})
	return src, sink
}

func TestCheckTaintFindsFlow(t *testing.T) {
	g := NewGraph(WholeProgram)
	src, sink := buildTaintChain(g, TaintSQL)

	flows := g.CheckTaint()
	if len(flows) != 1 {
		t.Fatalf("expected one flow, got %d", len(flows))
	}
	f := flows[0]
	if f.Source.ID != src || f.Sink.ID != sink || f.Label != TaintSQL {
		t.Fatalf("unexpected flow %v", f)
	}
}

func TestCheckTaintLabelMismatch(t *testing.T) {
	g := NewGraph(WholeProgram)
	src := TaintSourceNode(1, sp(0, 4))
	sink := TaintSinkNode(3, sp(10, 14))
	g.AddNode(&Node{ID: src, Taint: TaintHTML})
	g.AddNode(&Node{ID: sink, Requires: []TaintLabel{TaintSQL}})
	g.AddPath(src, sink, PathKind{Kind: PathArgument})

	if flows := g.CheckTaint(); len(flows) != 0 {
		t.Fatalf("an html source must not satisfy a sql requirement, got %v", flows)
	}
}

func TestCheckTaintSanitizerNeutralizes(t *testing.T) {
	g := NewGraph(WholeProgram)
	src := TaintSourceNode(1, sp(0, 4))
	clean := CompositionNode(sp(6, 9))
	sink := TaintSinkNode(3, sp(10, 14))
	g.AddNode(&Node{ID: src, Taint: TaintSQL})
	g.AddNode(&Node{ID: clean})
	g.AddNode(&Node{ID: sink, Requires: []TaintLabel{TaintSQL}})
	g.AddPath(src, clean, Sanitize(TaintSQL))
	g.AddPath(clean, sink, PathKind{Kind: PathArgument})

	if flows := g.CheckTaint(); len(flows) != 0 {
		t.Fatalf("a matching sanitizer must neutralize the flow, got %v", flows)
	}
}

func TestCheckTaintSanitizerForOtherLabel(t *testing.T) {
	g := NewGraph(WholeProgram)
	src := TaintSourceNode(1, sp(0, 4))
	clean := CompositionNode(sp(6, 9))
	sink := TaintSinkNode(3, sp(10, 14))
	g.AddNode(&Node{ID: src, Taint: TaintSQL})
	g.AddNode(&Node{ID: clean})
	g.AddNode(&Node{ID: sink, Requires: []TaintLabel{TaintSQL}})
	g.AddPath(src, clean, Sanitize(TaintHTML))
	g.AddPath(clean, sink, PathKind{Kind: PathArgument})

	if flows := g.CheckTaint(); len(flows) != 1 {
		t.Fatalf("an html sanitizer must not stop a sql flow, got %d flows", len(flows))
	}
}

func TestCheckTaintUnsanitizedBranchStillFlows(t *testing.T) {
	// Two paths from source to sink; only one is sanitized.
	g := NewGraph(WholeProgram)
	src := TaintSourceNode(1, sp(0, 4))
	clean := CompositionNode(sp(6, 9))
	dirty := CompositionNode(sp(15, 18))
	sink := TaintSinkNode(3, sp(20, 24))
	g.AddNode(&Node{ID: src, Taint: TaintShell})
	g.AddNode(&Node{ID: clean})
	g.AddNode(&Node{ID: dirty})
	g.AddNode(&Node{ID: sink, Requires: []TaintLabel{TaintShell}})
	g.AddPath(src, clean, Sanitize(TaintShell))
	g.AddPath(clean, sink, PathKind{Kind: PathArgument})
	g.AddPath(src, dirty, PathKind{Kind: PathAssignment})
	g.AddPath(dirty, sink, PathKind{Kind: PathArgument})

	flows := g.CheckTaint()
	if len(flows) != 1 {
		t.Fatalf("the unsanitized path must still be reported, got %d flows", len(flows))
	}
}

func TestCheckTaintParallelEdgeNotSanitized(t *testing.T) {
	// Sanitizer and plain flow between the same node pair: the plain
	// edge still carries the taint.
	g := NewGraph(WholeProgram)
	src := TaintSourceNode(1, sp(0, 4))
	mid := CompositionNode(sp(6, 9))
	sink := TaintSinkNode(3, sp(10, 14))
	g.AddNode(&Node{ID: src, Taint: TaintSQL})
	g.AddNode(&Node{ID: mid})
	g.AddNode(&Node{ID: sink, Requires: []TaintLabel{TaintSQL}})
	g.AddPath(src, mid, Sanitize(TaintSQL))
	g.AddPath(src, mid, PathKind{Kind: PathAssignment})
	g.AddPath(mid, sink, PathKind{Kind: PathArgument})

	if flows := g.CheckTaint(); len(flows) != 1 {
		t.Fatalf("a parallel plain edge keeps the flow alive, got %d flows", len(flows))
	}
}

func TestCheckTaintAfterAbsorb(t *testing.T) {
	// Source and sink live in different function bodies; the flow only
	// materializes in the whole-program graph.
	param := ParameterNode(0, 9, 0)

	caller := NewGraph(FunctionBody)
	src := TaintSourceNode(1, sp(0, 4))
	caller.AddNode(&Node{ID: src, Taint: TaintSQL})
	caller.AddNode(&Node{ID: param})
	caller.AddPath(src, param, PathKind{Kind: PathArgument})

	callee := NewGraph(FunctionBody)
	sink := TaintSinkNode(3, sp(30, 34))
	callee.AddNode(&Node{ID: param})
	callee.AddNode(&Node{ID: sink, Requires: []TaintLabel{TaintSQL}})
	callee.AddPath(param, sink, PathKind{Kind: PathArgument})

	wp := NewGraph(WholeProgram)
	if err := wp.AbsorbFunctionBody(caller); err != nil {
		t.Fatalf("absorb caller: %v", err)
	}
	if err := wp.AbsorbFunctionBody(callee); err != nil {
		t.Fatalf("absorb callee: %v", err)
	}

	flows := wp.CheckTaint()
	if len(flows) != 1 || flows[0].Source.ID != src || flows[0].Sink.ID != sink {
		t.Fatalf("cross-function flow should be found, got %v", flows)
	}
}
