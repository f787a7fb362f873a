package analyzer

import (
	"bytes"
	"context"
	"testing"

	"mantis/internal/ast"
	"mantis/internal/codebase"
	"mantis/internal/collector"
	"mantis/internal/diag"
	"mantis/internal/source"
	"mantis/internal/ttype"
)

// harness wires a metadata store, a virtual file and a collector around
// one analyzer run. Spans come from a counter so every expression keys
// its own artifact slots.
type harness struct {
	t    *testing.T
	in   *source.Interner
	meta *codebase.Metadata
	fs   *source.FileSet
	file source.FileID
	sink *collector.Collector
	next uint32
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	in := source.NewInterner()
	fs := source.NewFileSet()
	file := fs.AddVirtual("main.xp", bytes.Repeat([]byte(" \n"), 2048))
	return &harness{
		t:    t,
		in:   in,
		meta: codebase.NewMetadata(in),
		fs:   fs,
		file: file,
		sink: collector.New("analysis", fs, file, nil, false),
	}
}

func (h *harness) sp() source.Span {
	s := source.Span{File: h.file, Start: h.next, End: h.next + 1}
	h.next += 2
	return s
}

func (h *harness) name(s string) source.NameID { return h.in.Intern(s) }

func (h *harness) v(name string) *ast.Variable {
	return &ast.Variable{Sp: h.sp(), Name: h.name(name)}
}

func (h *harness) assign(name string, value ast.Expr) ast.Stmt {
	return &ast.ExprStmt{Sp: h.sp(), Expr: &ast.Assign{
		Sp:     h.sp(),
		Target: h.v(name),
		Value:  value,
	}}
}

func (h *harness) call(fn string, args ...ast.Expr) *ast.Call {
	out := make([]ast.Arg, 0, len(args))
	for _, a := range args {
		out = append(out, ast.Arg{Sp: a.Span(), Value: a})
	}
	return &ast.Call{
		Sp:     h.sp(),
		Callee: &ast.FuncName{Sp: h.sp(), Name: h.name(fn)},
		Args:   out,
	}
}

func (h *harness) addFunction(meta *codebase.FunctionLikeMetadata) {
	h.t.Helper()
	if err := h.meta.AddFunctionLike(meta); err != nil {
		h.t.Fatalf("AddFunctionLike: %v", err)
	}
}

func (h *harness) addClass(c *codebase.ClassLikeMetadata) {
	h.t.Helper()
	if c.Constants == nil {
		c.Constants = map[source.NameID]*codebase.ConstantMetadata{}
	}
	if c.Properties == nil {
		c.Properties = map[source.NameID]*codebase.PropertyMetadata{}
	}
	if c.DeclaringMethodIDs == nil {
		c.DeclaringMethodIDs = map[source.NameID]codebase.MethodID{}
	}
	if c.InheritableMethodIDs == nil {
		c.InheritableMethodIDs = map[source.NameID]codebase.MethodID{}
	}
	if c.OverriddenMethodIDs == nil {
		c.OverriddenMethodIDs = map[source.NameID][]codebase.MethodID{}
	}
	if err := h.meta.AddClassLike(c); err != nil {
		h.t.Fatalf("AddClassLike: %v", err)
	}
}

// run populates the store, analyzes the module and returns the artifacts
// plus the surfaced issues.
func (h *harness) run(stmts ...ast.Stmt) (*Artifacts, []diag.Issue) {
	h.t.Helper()
	if err := h.meta.Populate(); err != nil {
		h.t.Fatalf("Populate: %v", err)
	}
	h.meta.Freeze()

	a := New(h.meta, h.fs, h.sink, ttype.NewExpander(ttype.DefaultExpansionCacheSize), Options{})
	module := &ast.Module{File: h.file, Stmts: stmts}
	artifacts, err := a.AnalyzeModule(context.Background(), module)
	if err != nil {
		h.t.Fatalf("AnalyzeModule: %v", err)
	}
	return artifacts, h.sink.Finish()
}

func countCode(issues []diag.Issue, code diag.Code) int {
	n := 0
	for _, is := range issues {
		if is.Code == code {
			n++
		}
	}
	return n
}

func exprType(t *testing.T, arts *Artifacts, sp source.Span) ttype.Union {
	t.Helper()
	got, ok := arts.ExprType(sp)
	if !ok {
		t.Fatalf("no type recorded at %v", sp)
	}
	return got
}

func TestUndefinedVariable(t *testing.T) {
	h := newHarness(t)
	_, issues := h.run(&ast.ExprStmt{Sp: h.sp(), Expr: h.v("y")})

	if len(issues) != 1 || issues[0].Code != diag.CodeUndefinedVariable {
		t.Fatalf("expected one undefined-variable issue, got %v", issues)
	}
}

func TestPossiblyUndefinedAfterBranch(t *testing.T) {
	h := newHarness(t)
	boolRet := ttype.NewUnion(ttype.MakeBool())
	h.addFunction(&codebase.FunctionLikeMetadata{
		ID:      codebase.MethodID{Method: h.in.Lowered(h.name("flag"))},
		Name:    h.name("flag"),
		HasBody: true,
		Return:  &boolRet,
	})

	_, issues := h.run(
		h.assign("c", h.call("flag")),
		&ast.If{
			Sp:   h.sp(),
			Cond: h.v("c"),
			Then: []ast.Stmt{h.assign("z", &ast.IntLit{Sp: h.sp(), Value: 1})},
		},
		&ast.ExprStmt{Sp: h.sp(), Expr: h.v("z")},
	)

	if countCode(issues, diag.CodePossiblyUndefinedVariable) != 1 {
		t.Fatalf("a one-armed assignment leaves the variable possibly undefined: %v", issues)
	}
	if countCode(issues, diag.CodeUndefinedVariable) != 0 {
		t.Fatalf("the variable is not plainly undefined: %v", issues)
	}
}

func TestIsStringNarrowsBothArms(t *testing.T) {
	h := newHarness(t)
	paramType := ttype.NewUnion(ttype.MakeString(), ttype.MakeInt())

	thenRef := h.v("x")
	elseRef := h.v("x")
	fn := &ast.FunctionDecl{
		Sp:      h.sp(),
		Name:    h.name("f"),
		HasBody: true,
		Params:  []ast.Param{{Sp: h.sp(), Name: h.name("x"), Type: &paramType}},
		Body: []ast.Stmt{
			&ast.If{
				Sp:      h.sp(),
				Cond:    h.call("is_string", h.v("x")),
				Then:    []ast.Stmt{&ast.ExprStmt{Sp: h.sp(), Expr: thenRef}},
				Else:    []ast.Stmt{&ast.ExprStmt{Sp: h.sp(), Expr: elseRef}},
				HasElse: true,
			},
		},
	}

	arts, issues := h.run(fn)
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
	if got := exprType(t, arts, thenRef.Sp); !ttype.UnionEqual(got, ttype.NewUnion(ttype.MakeString())) {
		t.Fatalf("then-arm should hold string, got %s", got.Render(h.in))
	}
	if got := exprType(t, arts, elseRef.Sp); !ttype.UnionEqual(got, ttype.NewUnion(ttype.MakeInt())) {
		t.Fatalf("else-arm should hold int, got %s", got.Render(h.in))
	}
}

func TestInstanceofAcquiresFromUntyped(t *testing.T) {
	h := newHarness(t)
	h.addClass(&codebase.ClassLikeMetadata{
		Name:    h.name("Thing"),
		Lowered: h.in.Lowered(h.name("Thing")),
		Kind:    codebase.KindClass,
	})

	ref := h.v("x")
	fn := &ast.FunctionDecl{
		Sp:      h.sp(),
		Name:    h.name("g"),
		HasBody: true,
		Params:  []ast.Param{{Sp: h.sp(), Name: h.name("x")}},
		Body: []ast.Stmt{
			&ast.If{
				Sp: h.sp(),
				Cond: &ast.InstanceOf{
					Sp:    h.sp(),
					Expr:  h.v("x"),
					Class: ast.ClassRef{Sp: h.sp(), Name: h.name("Thing")},
				},
				Then: []ast.Stmt{&ast.ExprStmt{Sp: h.sp(), Expr: ref}},
			},
		},
	}

	arts, _ := h.run(fn)
	got := exprType(t, arts, ref.Sp)
	single, ok := got.Single()
	if !ok || single.Kind != ttype.KindObject || single.Object.Name != h.name("Thing") {
		t.Fatalf("instanceof should pin the object type, got %s", got.Render(h.in))
	}
}

func TestMethodCallOnNullableReceiver(t *testing.T) {
	h := newHarness(t)
	conn := &codebase.ClassLikeMetadata{
		Name:    h.name("Conn"),
		Lowered: h.in.Lowered(h.name("Conn")),
		Kind:    codebase.KindClass,
	}
	h.addClass(conn)
	ping := codebase.MethodID{Class: conn.Lowered, Method: h.in.Lowered(h.name("ping"))}
	h.addFunction(&codebase.FunctionLikeMetadata{ID: ping, Name: h.name("ping"), HasBody: true})
	conn.DeclaringMethodIDs[ping.Method] = ping
	conn.InheritableMethodIDs[ping.Method] = ping

	paramType := ttype.NewUnion(ttype.MakeNull(), ttype.MakeNamedObject(h.name("Conn")))
	fn := &ast.FunctionDecl{
		Sp:      h.sp(),
		Name:    h.name("h"),
		HasBody: true,
		Params:  []ast.Param{{Sp: h.sp(), Name: h.name("c"), Type: &paramType}},
		Body: []ast.Stmt{
			// Unguarded: the receiver may be null.
			&ast.ExprStmt{Sp: h.sp(), Expr: &ast.MethodCall{
				Sp:     h.sp(),
				Object: h.v("c"),
				Method: ast.Selector{Sp: h.sp(), Name: h.name("ping")},
			}},
			// Guarded: the null arm is subtracted first.
			&ast.If{
				Sp: h.sp(),
				Cond: &ast.Unary{
					Sp:      h.sp(),
					Op:      ast.OpNot,
					Operand: h.call("is_null", h.v("c")),
				},
				Then: []ast.Stmt{&ast.ExprStmt{Sp: h.sp(), Expr: &ast.MethodCall{
					Sp:     h.sp(),
					Object: h.v("c"),
					Method: ast.Selector{Sp: h.sp(), Name: h.name("ping")},
				}}},
			},
		},
	}

	_, issues := h.run(fn)
	if countCode(issues, diag.CodePossibleMethodAccessOnNull) != 1 {
		t.Fatalf("only the unguarded call warns: %v", issues)
	}
}

func TestUnreachableAfterReturn(t *testing.T) {
	h := newHarness(t)
	fn := &ast.FunctionDecl{
		Sp:      h.sp(),
		Name:    h.name("noret"),
		HasBody: true,
		Body: []ast.Stmt{
			&ast.Return{Sp: h.sp(), Expr: &ast.IntLit{Sp: h.sp(), Value: 1}},
			h.assign("a", &ast.IntLit{Sp: h.sp(), Value: 2}),
		},
	}

	_, issues := h.run(fn)
	if countCode(issues, diag.CodeUnreachableCode) != 1 {
		t.Fatalf("code after return is unreachable: %v", issues)
	}
}

func TestDeclaredReturnMismatch(t *testing.T) {
	h := newHarness(t)
	intRet := ttype.NewUnion(ttype.MakeInt())
	id := codebase.MethodID{Method: h.in.Lowered(h.name("bad"))}
	h.addFunction(&codebase.FunctionLikeMetadata{ID: id, Name: h.name("bad"), HasBody: true, Return: &intRet})

	fn := &ast.FunctionDecl{
		Sp:      h.sp(),
		Name:    h.name("bad"),
		HasBody: true,
		Body: []ast.Stmt{
			&ast.Return{Sp: h.sp(), Expr: &ast.StringLit{Sp: h.sp(), Value: "nope"}},
		},
	}

	arts, issues := h.run(fn)
	if countCode(issues, diag.CodeInvalidReturnStatement) != 1 {
		t.Fatalf("a string return against a declared int: %v", issues)
	}
	got, ok := arts.InferredReturns[id]
	if !ok || !ttype.UnionEqual(got, ttype.NewUnion(ttype.MakeLiteralString("nope"))) {
		t.Fatalf("the inferred return still records what the body does")
	}
}

func TestInferredReturnUnionsBranches(t *testing.T) {
	h := newHarness(t)
	boolType := ttype.NewUnion(ttype.MakeBool())
	id := codebase.MethodID{Method: h.in.Lowered(h.name("dual"))}

	fn := &ast.FunctionDecl{
		Sp:      h.sp(),
		Name:    h.name("dual"),
		HasBody: true,
		Params:  []ast.Param{{Sp: h.sp(), Name: h.name("b"), Type: &boolType}},
		Body: []ast.Stmt{
			&ast.If{
				Sp:   h.sp(),
				Cond: h.v("b"),
				Then: []ast.Stmt{&ast.Return{Sp: h.sp(), Expr: &ast.IntLit{Sp: h.sp(), Value: 1}}},
			},
			&ast.Return{Sp: h.sp(), Expr: &ast.StringLit{Sp: h.sp(), Value: "s"}},
		},
	}

	arts, _ := h.run(fn)
	got, ok := arts.InferredReturns[id]
	if !ok {
		t.Fatalf("no inferred return recorded")
	}
	want := ttype.NewUnion(ttype.MakeLiteralInt(1), ttype.MakeLiteralString("s"))
	if !ttype.UnionEqual(got, want) {
		t.Fatalf("inferred return = %s, want %s", got.Render(h.in), want.Render(h.in))
	}
}

func TestWhileBodyKnowledgeFlowsOut(t *testing.T) {
	h := newHarness(t)
	boolType := ttype.NewUnion(ttype.MakeBool())

	after := h.v("s")
	fn := &ast.FunctionDecl{
		Sp:      h.sp(),
		Name:    h.name("w"),
		HasBody: true,
		Params:  []ast.Param{{Sp: h.sp(), Name: h.name("c"), Type: &boolType}},
		Body: []ast.Stmt{
			&ast.While{
				Sp:   h.sp(),
				Cond: h.v("c"),
				Body: []ast.Stmt{h.assign("s", &ast.StringLit{Sp: h.sp(), Value: "a"})},
			},
			&ast.ExprStmt{Sp: h.sp(), Expr: after},
		},
	}

	arts, issues := h.run(fn)
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
	got := exprType(t, arts, after.Sp)
	if !ttype.UnionEqual(got, ttype.NewUnion(ttype.MakeLiteralString("a"))) {
		t.Fatalf("the body's assignment should flow past the loop, got %s", got.Render(h.in))
	}
}

func TestCoalesceAssignKeepsNonNull(t *testing.T) {
	h := newHarness(t)
	paramType := ttype.Nullable(ttype.MakeString())

	after := h.v("x")
	fn := &ast.FunctionDecl{
		Sp:      h.sp(),
		Name:    h.name("co"),
		HasBody: true,
		Params:  []ast.Param{{Sp: h.sp(), Name: h.name("x"), Type: &paramType}},
		Body: []ast.Stmt{
			&ast.ExprStmt{Sp: h.sp(), Expr: &ast.Assign{
				Sp:     h.sp(),
				Op:     ast.AssignCoalesce,
				Target: h.v("x"),
				Value:  &ast.StringLit{Sp: h.sp(), Value: "fallback"},
			}},
			&ast.ExprStmt{Sp: h.sp(), Expr: after},
		},
	}

	arts, _ := h.run(fn)
	got := exprType(t, arts, after.Sp)
	if got.IsNullable() {
		t.Fatalf("??= removes the null arm, got %s", got.Render(h.in))
	}
	if single, ok := got.Single(); ok && single.Kind != ttype.KindString {
		t.Fatalf("the surviving type stays string-like, got %s", got.Render(h.in))
	}
}

func TestTaintSourceReachesSink(t *testing.T) {
	h := newHarness(t)
	stringRet := ttype.NewUnion(ttype.MakeString())
	h.addFunction(&codebase.FunctionLikeMetadata{
		ID:          codebase.MethodID{Method: h.in.Lowered(h.name("input"))},
		Name:        h.name("input"),
		HasBody:     true,
		Return:      &stringRet,
		TaintSource: true,
	})
	h.addFunction(&codebase.FunctionLikeMetadata{
		ID:        codebase.MethodID{Method: h.in.Lowered(h.name("emit"))},
		Name:      h.name("emit"),
		HasBody:   true,
		Params:    []codebase.ParamMetadata{{Name: h.name("v")}},
		TaintSink: true,
	})

	fn := &ast.FunctionDecl{
		Sp:      h.sp(),
		Name:    h.name("handler"),
		HasBody: true,
		Body: []ast.Stmt{
			h.assign("a", h.call("input")),
			&ast.ExprStmt{Sp: h.sp(), Expr: h.call("emit", h.v("a"))},
		},
	}

	arts, _ := h.run(fn)
	flows := arts.Graph.CheckTaint()
	if len(flows) != 1 {
		t.Fatalf("expected one source-to-sink flow, got %d", len(flows))
	}
}

func TestNonExistentFunction(t *testing.T) {
	h := newHarness(t)
	_, issues := h.run(&ast.ExprStmt{Sp: h.sp(), Expr: h.call("vanish")})
	if countCode(issues, diag.CodeNonExistentFunction) != 1 {
		t.Fatalf("unknown callee should report: %v", issues)
	}
}

func TestArgumentTypeMismatch(t *testing.T) {
	h := newHarness(t)
	intParam := ttype.NewUnion(ttype.MakeInt())
	h.addFunction(&codebase.FunctionLikeMetadata{
		ID:      codebase.MethodID{Method: h.in.Lowered(h.name("takesInt"))},
		Name:    h.name("takesInt"),
		HasBody: true,
		Params:  []codebase.ParamMetadata{{Name: h.name("n"), Type: &intParam}},
	})

	_, issues := h.run(&ast.ExprStmt{
		Sp:   h.sp(),
		Expr: h.call("takesInt", &ast.StringLit{Sp: h.sp(), Value: "oops"}),
	})
	if countCode(issues, diag.CodeInvalidArgument) != 1 {
		t.Fatalf("a string into an int parameter: %v", issues)
	}
}

func TestReassignmentDropsNarrowing(t *testing.T) {
	h := newHarness(t)
	stringParam := ttype.NewUnion(ttype.MakeString())
	h.addFunction(&codebase.FunctionLikeMetadata{
		ID:      codebase.MethodID{Method: h.in.Lowered(h.name("takesString"))},
		Name:    h.name("takesString"),
		HasBody: true,
		Params:  []codebase.ParamMetadata{{Name: h.name("s"), Type: &stringParam}},
	})

	paramType := ttype.NewUnion(ttype.MakeString(), ttype.MakeInt())
	fn := &ast.FunctionDecl{
		Sp:      h.sp(),
		Name:    h.name("f"),
		HasBody: true,
		Params:  []ast.Param{{Sp: h.sp(), Name: h.name("x"), Type: &paramType}},
		Body: []ast.Stmt{
			&ast.If{
				Sp:   h.sp(),
				Cond: h.call("is_string", h.v("x")),
				Then: []ast.Stmt{
					&ast.ExprStmt{Sp: h.sp(), Expr: h.call("takesString", h.v("x"))},
					h.assign("x", &ast.IntLit{Sp: h.sp(), Value: 1}),
					&ast.ExprStmt{Sp: h.sp(), Expr: h.call("takesString", h.v("x"))},
				},
			},
		},
	}

	_, issues := h.run(fn)
	if countCode(issues, diag.CodeInvalidArgument) != 1 {
		t.Fatalf("only the call after the reassignment mismatches: %v", issues)
	}
}

func TestReassignedVariableRenarrows(t *testing.T) {
	h := newHarness(t)
	wideRet := ttype.NewUnion(ttype.MakeString(), ttype.MakeInt())
	h.addFunction(&codebase.FunctionLikeMetadata{
		ID:      codebase.MethodID{Method: h.in.Lowered(h.name("wide"))},
		Name:    h.name("wide"),
		HasBody: true,
		Return:  &wideRet,
	})

	paramType := ttype.NewUnion(ttype.MakeString(), ttype.MakeInt())
	ref := h.v("x")
	fn := &ast.FunctionDecl{
		Sp:      h.sp(),
		Name:    h.name("g"),
		HasBody: true,
		Params:  []ast.Param{{Sp: h.sp(), Name: h.name("x"), Type: &paramType}},
		Body: []ast.Stmt{
			// An early exit leaves the string knowledge in the frame.
			&ast.If{
				Sp: h.sp(),
				Cond: &ast.Unary{
					Sp:      h.sp(),
					Op:      ast.OpNot,
					Operand: h.call("is_string", h.v("x")),
				},
				Then: []ast.Stmt{&ast.Return{Sp: h.sp()}},
			},
			// The reassignment widens $x again; the identical test below
			// must re-narrow rather than reuse the stale knowledge.
			h.assign("x", h.call("wide")),
			&ast.If{
				Sp:   h.sp(),
				Cond: h.call("is_string", h.v("x")),
				Then: []ast.Stmt{&ast.ExprStmt{Sp: h.sp(), Expr: ref}},
			},
		},
	}

	arts, issues := h.run(fn)
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
	got := exprType(t, arts, ref.Sp)
	if !ttype.UnionEqual(got, ttype.NewUnion(ttype.MakeString())) {
		t.Fatalf("the second test should narrow the reassigned variable, got %s", got.Render(h.in))
	}
}

func TestLoopBodyAssignmentDropsConditionClauses(t *testing.T) {
	h := newHarness(t)
	wideRet := ttype.NewUnion(ttype.MakeString(), ttype.MakeInt())
	h.addFunction(&codebase.FunctionLikeMetadata{
		ID:      codebase.MethodID{Method: h.in.Lowered(h.name("wide"))},
		Name:    h.name("wide"),
		HasBody: true,
		Return:  &wideRet,
	})
	boolType := ttype.NewUnion(ttype.MakeBool())

	paramType := ttype.NewUnion(ttype.MakeString(), ttype.MakeInt())
	after := h.v("x")
	fn := &ast.FunctionDecl{
		Sp:      h.sp(),
		Name:    h.name("l"),
		HasBody: true,
		Params: []ast.Param{
			{Sp: h.sp(), Name: h.name("x"), Type: &paramType},
			{Sp: h.sp(), Name: h.name("c"), Type: &boolType},
		},
		Body: []ast.Stmt{
			&ast.If{
				Sp: h.sp(),
				Cond: &ast.Unary{
					Sp:      h.sp(),
					Op:      ast.OpNot,
					Operand: h.call("is_string", h.v("x")),
				},
				Then: []ast.Stmt{&ast.Return{Sp: h.sp()}},
			},
			&ast.While{
				Sp:   h.sp(),
				Cond: h.v("c"),
				Body: []ast.Stmt{h.assign("x", h.call("wide"))},
			},
			&ast.ExprStmt{Sp: h.sp(), Expr: after},
		},
	}

	arts, issues := h.run(fn)
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
	got := exprType(t, arts, after.Sp)
	if !ttype.UnionEqual(got, ttype.NewUnion(ttype.MakeString(), ttype.MakeInt())) {
		t.Fatalf("the loop body may have widened $x; stale narrowing must not stick, got %s", got.Render(h.in))
	}
}
