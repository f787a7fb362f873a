package flow

import (
	"testing"

	"mantis/internal/source"
	"mantis/internal/ttype"
)

func TestFinallyScopeCombinesDeposits(t *testing.T) {
	f := NewFinallyScope()
	if !f.Empty() {
		t.Fatalf("a fresh scope is empty")
	}

	try := NewBlockContext(Scope{})
	try.AssignLocal("$v", intType())
	f.Deposit(nop, try)

	catch := NewBlockContext(Scope{})
	catch.AssignLocal("$v", stringType())
	catch.AssignLocal("$err", stringType())
	f.Deposit(nop, catch)

	if f.Empty() {
		t.Fatalf("the scope saw two deposits")
	}
	if got := f.Locals["$v"]; !ttype.UnionEqual(got, ttype.NewUnion(ttype.MakeInt(), ttype.MakeString())) {
		t.Fatalf("$v should combine across deposits")
	}
	if got := f.Locals["$err"]; !got.PossiblyUndefined {
		t.Fatalf("$err is absent from the try deposit, so it is possibly undefined")
	}
}

func TestFinallyScopePropagatesActions(t *testing.T) {
	f := NewFinallyScope()

	try := NewBlockContext(Scope{})
	try.RecordAction(ActionReturn)
	try.RecordPossiblyThrown(9, source.Span{File: 1, Start: 3, End: 8})
	f.Deposit(nop, try)

	after := NewBlockContext(Scope{})
	f.ApplyTo(after)
	if _, ok := after.ControlActions[ActionReturn]; !ok {
		t.Fatalf("the buffered return should propagate past the finally")
	}
	if _, ok := after.PossiblyThrownExceptions[9]; !ok {
		t.Fatalf("pending exceptions should propagate")
	}
}

func TestFinallyScopeApplyToInstallsLocals(t *testing.T) {
	f := NewFinallyScope()
	try := NewBlockContext(Scope{})
	try.AssignLocal("$v", intType())
	f.Deposit(nop, try)

	finallyCtx := NewBlockContext(Scope{})
	f.ApplyTo(finallyCtx)
	got, ok := finallyCtx.Local("$v")
	if !ok || !ttype.UnionEqual(got, intType()) {
		t.Fatalf("the finally body should see the deposited state")
	}
	if _, ok := finallyCtx.VariablesPossiblyInScope["$v"]; !ok {
		t.Fatalf("deposited variables enter the possibly-in-scope set")
	}
}
