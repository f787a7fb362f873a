package flow

import (
	"testing"

	"mantis/internal/clause"
	"mantis/internal/source"
	"mantis/internal/ttype"
)

func TestRemoveClausesForAssigned(t *testing.T) {
	span := source.Span{File: 1, Start: 0, End: 4}
	about := clause.Single("$x", clause.IsType(stringType()), span, false)
	unrelated := clause.Single("$keep", clause.Truthy(), span, false)

	c := NewBlockContext(Scope{})
	c.Clauses = []*clause.Clause{about, unrelated, clause.NewWedge(span)}
	c.ReconciledExpressionClauses = []string{about.Hash()}

	c.RemoveClausesForAssigned(map[string]struct{}{"$x": {}})

	if len(c.Clauses) != 2 {
		t.Fatalf("only the wedge and the unrelated clause survive, got %d", len(c.Clauses))
	}
	for _, cl := range c.Clauses {
		if _, ok := cl.Possibilities["$x"]; ok {
			t.Fatalf("clauses about a reassigned variable must not survive")
		}
	}
	if len(c.ReconciledExpressionClauses) != 0 {
		t.Fatalf("the reconciliation memo is stale once its clause is gone")
	}
}

func TestRemoveClausesForAssignedDescendantKey(t *testing.T) {
	span := source.Span{File: 1, Start: 0, End: 4}
	member := clause.Single("$obj->prop", clause.IsIsset(), span, false)

	c := NewBlockContext(Scope{})
	c.Clauses = []*clause.Clause{member}
	c.RemoveClausesForAssigned(map[string]struct{}{"$obj": {}})
	if len(c.Clauses) != 0 {
		t.Fatalf("a member-chain clause falls with its root")
	}
}

func TestRemoveClausesForAssignedNoOp(t *testing.T) {
	span := source.Span{File: 1, Start: 0, End: 4}
	c := NewBlockContext(Scope{})
	c.Clauses = []*clause.Clause{clause.Single("$x", clause.Truthy(), span, false)}
	c.ReconciledExpressionClauses = []string{"h"}

	c.RemoveClausesForAssigned(nil)
	if len(c.Clauses) != 1 || len(c.ReconciledExpressionClauses) != 1 {
		t.Fatalf("nothing assigned, nothing dropped")
	}
}

func TestRemoveClausesForAssignedConditionallyReferenced(t *testing.T) {
	c := NewBlockContext(Scope{})
	c.ConditionallyReferencedVariableIDs["$x"] = struct{}{}
	c.ReconciledExpressionClauses = []string{"h"}

	// No clause mentions $x anymore, but $x was tested somewhere: the
	// memo may hold knowledge derived from it.
	c.RemoveClausesForAssigned(map[string]struct{}{"$x": {}})
	if len(c.ReconciledExpressionClauses) != 0 {
		t.Fatalf("reassigning a condition-tested variable clears the memo")
	}
}

func TestMergeBranchesIntersectsReconciledMemo(t *testing.T) {
	a := NewBlockContext(Scope{})
	a.AssignLocal("$x", ttype.NewUnion(ttype.MakeInt()))
	a.ReconciledExpressionClauses = []string{"h1", "h2"}
	b := a.Clone()
	b.ReconciledExpressionClauses = []string{"h2", "h3"}

	out := MergeBranches(nop, a, b)
	if len(out.ReconciledExpressionClauses) != 1 || out.ReconciledExpressionClauses[0] != "h2" {
		t.Fatalf("only memo entries shared by both paths survive the join, got %v",
			out.ReconciledExpressionClauses)
	}
}
