package analyzer

import (
	"testing"

	"mantis/internal/ast"
	"mantis/internal/codebase"
	"mantis/internal/diag"
	"mantis/internal/ttype"
)

func TestClosureReturnCheckedAgainstCallableParam(t *testing.T) {
	h := newHarness(t)
	stringRet := ttype.NewUnion(ttype.MakeString())
	cbParam := ttype.NewUnion(ttype.MakeCallable(nil, &stringRet))
	h.addFunction(&codebase.FunctionLikeMetadata{
		ID:      codebase.MethodID{Method: h.in.Lowered(h.name("apply"))},
		Name:    h.name("apply"),
		HasBody: true,
		Params:  []codebase.ParamMetadata{{Name: h.name("cb"), Type: &cbParam}},
	})

	greets := &ast.Closure{Sp: h.sp(), Body: []ast.Stmt{
		&ast.Return{Sp: h.sp(), Expr: &ast.StringLit{Sp: h.sp(), Value: "Hello, World!"}},
	}}
	counts := &ast.Closure{Sp: h.sp(), Body: []ast.Stmt{
		&ast.Return{Sp: h.sp(), Expr: &ast.IntLit{Sp: h.sp(), Value: 7}},
	}}

	_, issues := h.run(
		&ast.ExprStmt{Sp: h.sp(), Expr: h.call("apply", greets)},
		&ast.ExprStmt{Sp: h.sp(), Expr: h.call("apply", counts)},
	)
	if countCode(issues, diag.CodeInvalidArgument) != 1 {
		t.Fatalf("only the int-returning closure mismatches the callable: %v", issues)
	}
}

func TestClosureUseCapturesByValue(t *testing.T) {
	h := newHarness(t)
	intParam := ttype.NewUnion(ttype.MakeInt())
	h.addFunction(&codebase.FunctionLikeMetadata{
		ID:      codebase.MethodID{Method: h.in.Lowered(h.name("takesInt"))},
		Name:    h.name("takesInt"),
		HasBody: true,
		Params:  []codebase.ParamMetadata{{Name: h.name("n"), Type: &intParam}},
	})

	list := &ast.ArrayLit{Sp: h.sp(), Items: []ast.ArrayItem{
		{Sp: h.sp(), Value: &ast.IntLit{Sp: h.sp(), Value: 1}},
		{Sp: h.sp(), Value: &ast.IntLit{Sp: h.sp(), Value: 2}},
		{Sp: h.sp(), Value: &ast.IntLit{Sp: h.sp(), Value: 3}},
	}}
	element := &ast.Index{Sp: h.sp(), Base: h.v("xs"), Dim: &ast.IntLit{Sp: h.sp(), Value: 0}}
	closure := &ast.Closure{
		Sp:   h.sp(),
		Uses: []ast.ClosureUse{{Sp: h.sp(), Name: h.name("xs")}},
		Body: []ast.Stmt{
			&ast.ExprStmt{Sp: h.sp(), Expr: h.call("takesInt", element)},
			&ast.ExprStmt{Sp: h.sp(), Expr: h.call("takesInt", h.v("xs"))},
		},
	}

	_, issues := h.run(
		h.assign("xs", list),
		h.assign("f", closure),
	)
	if countCode(issues, diag.CodeUndefinedVariable) != 0 {
		t.Fatalf("the capture makes $xs visible in the body: %v", issues)
	}
	if countCode(issues, diag.CodeInvalidArgument) != 1 {
		t.Fatalf("an element fits an int parameter, the whole array does not: %v", issues)
	}
}

func TestClosureUseOfUndefinedVariable(t *testing.T) {
	h := newHarness(t)
	closure := &ast.Closure{
		Sp:   h.sp(),
		Uses: []ast.ClosureUse{{Sp: h.sp(), Name: h.name("ghost")}},
	}
	_, issues := h.run(h.assign("f", closure))
	if countCode(issues, diag.CodeUndefinedVariable) != 1 {
		t.Fatalf("capturing a variable that does not exist reports: %v", issues)
	}
}

func TestClosureByRefCaptureWarns(t *testing.T) {
	h := newHarness(t)
	closure := &ast.Closure{
		Sp:   h.sp(),
		Uses: []ast.ClosureUse{{Sp: h.sp(), Name: h.name("n"), ByRef: true}},
		Body: []ast.Stmt{&ast.ExprStmt{Sp: h.sp(), Expr: h.v("n")}},
	}
	_, issues := h.run(
		h.assign("n", &ast.IntLit{Sp: h.sp(), Value: 1}),
		h.assign("f", closure),
	)
	if countCode(issues, diag.CodeByReferenceCapture) != 1 {
		t.Fatalf("by-reference capture downgrades to by-value with a warning: %v", issues)
	}
	if countCode(issues, diag.CodeUndefinedVariable) != 0 {
		t.Fatalf("the captured variable still resolves: %v", issues)
	}
}
