package clause

import (
	"testing"

	"mantis/internal/source"
	"mantis/internal/ttype"
)

var span = source.Span{File: 1, Start: 0, End: 4}

func TestNegateIsInvolution(t *testing.T) {
	str := ttype.NewUnion(ttype.MakeString())
	samples := []Assertion{
		IsType(str),
		IsNotType(str),
		Truthy(),
		Falsy(),
		IsIsset(),
		IsEqual(ttype.NewUnion(ttype.MakeLiteralInt(3))),
		HasArrayKey(ttype.StringKey("id")),
		NonEmptyCountable(),
		HasExactCount(2),
		GreaterThan(5),
		LessOrEqual(5),
	}
	for _, a := range samples {
		back := a.Negate().Negate()
		if back.Hash() != a.Hash() {
			t.Fatalf("negation is not an involution for kind %d", a.Kind)
		}
		if !a.IsNegationOf(a.Negate()) {
			t.Fatalf("IsNegationOf failed for kind %d", a.Kind)
		}
	}
}

func TestNegateClauseSplitsDisjunction(t *testing.T) {
	c := New(map[string][]Assertion{
		"$x": {Truthy(), IsIsset()},
	}, span, false, true, false)

	neg := NegateClause(c)
	if len(neg) != 2 {
		t.Fatalf("expected 2 singleton negations, got %d", len(neg))
	}
	for _, n := range neg {
		if len(n.Possibilities["$x"]) != 1 {
			t.Fatalf("negation is not a singleton")
		}
		if !n.Generated {
			t.Fatalf("negations should be marked generated")
		}
	}
	if NegateClause(NewWedge(span)) != nil {
		t.Fatalf("wedges negate to nothing")
	}
}

func TestNegateFormulaDeMorgan(t *testing.T) {
	// ¬($x truthy ∧ $y isset) = ($x falsy ∨ $y not-isset)
	formula := []*Clause{
		Single("$x", Truthy(), span, false),
		Single("$y", IsIsset(), span, false),
	}
	neg, ok := NegateFormula(formula, 0)
	if !ok {
		t.Fatalf("negation should be within the limit")
	}
	if len(neg) != 1 {
		t.Fatalf("expected one disjunction, got %d clauses", len(neg))
	}
	got := neg[0]
	if len(got.Possibilities["$x"]) != 1 || got.Possibilities["$x"][0].Kind != AssertFalsy {
		t.Fatalf("missing $x falsy in %v", got.Possibilities)
	}
	if len(got.Possibilities["$y"]) != 1 || got.Possibilities["$y"][0].Kind != AssertIsNotIsset {
		t.Fatalf("missing $y not-isset in %v", got.Possibilities)
	}
}

func TestNegateFormulaRespectsLimit(t *testing.T) {
	wide := func(key string) *Clause {
		return New(map[string][]Assertion{
			key: {Truthy(), IsIsset(), NonEmptyCountable()},
		}, span, false, true, false)
	}
	formula := []*Clause{wide("$a"), wide("$b")}
	if _, ok := NegateFormula(formula, 4); ok {
		t.Fatalf("3x3 distribution should exceed a limit of 4")
	}
	if neg, ok := NegateFormula(formula, 9); !ok || len(neg) == 0 {
		t.Fatalf("3x3 distribution should fit a limit of 9")
	}
}

func TestSimplifyDeduplicates(t *testing.T) {
	a := Single("$x", Truthy(), span, false)
	b := Single("$x", Truthy(), span, false)
	out := Simplify([]*Clause{a, b})
	if len(out) != 1 {
		t.Fatalf("duplicate clauses should collapse, got %d", len(out))
	}
}

func TestSimplifySubsumption(t *testing.T) {
	strong := Single("$x", Truthy(), span, false)
	weak := New(map[string][]Assertion{
		"$x": {Truthy(), IsIsset()},
	}, span, false, true, false)
	out := Simplify([]*Clause{strong, weak})
	if len(out) != 1 || out[0].Hash() != strong.Hash() {
		t.Fatalf("the wider disjunction should be subsumed")
	}
}

func TestSimplifyResolvesNegatedPair(t *testing.T) {
	shared := IsIsset()
	a := New(map[string][]Assertion{
		"$x": {Truthy()},
		"$y": {shared},
	}, span, false, true, false)
	b := New(map[string][]Assertion{
		"$x": {Falsy()},
		"$y": {shared},
	}, span, false, true, false)

	out := Simplify([]*Clause{a, b})
	if len(out) != 1 {
		t.Fatalf("resolution should merge the pair, got %d clauses", len(out))
	}
	merged := out[0]
	if _, ok := merged.Possibilities["$x"]; ok {
		t.Fatalf("resolved key should be gone")
	}
	if len(merged.Possibilities["$y"]) != 1 {
		t.Fatalf("shared assertion should survive")
	}
}

func TestSimplifyKeepsWedges(t *testing.T) {
	out := Simplify([]*Clause{NewWedge(span), NewWedge(span)})
	if len(out) != 2 {
		t.Fatalf("wedges must never be merged, got %d", len(out))
	}
}

func TestRemoveReconciledRefs(t *testing.T) {
	onX := Single("$x", Truthy(), span, false)
	onMember := Single(MemberKey("$x", "prop"), IsIsset(), span, false)
	onZ := Single("$z", Truthy(), span, false)
	wedge := NewWedge(span)

	kept, rejected := RemoveReconciledRefs([]*Clause{onX, onMember, onZ, wedge}, []string{"$x"})
	if len(rejected) != 2 {
		t.Fatalf("clauses on $x and $x->prop should be rejected, got %d", len(rejected))
	}
	if len(kept) != 2 {
		t.Fatalf("$z clause and the wedge should be kept, got %d", len(kept))
	}
}

func TestFilterClausesWithoutNewType(t *testing.T) {
	onX := Single("$x", Truthy(), span, false)
	onZ := Single("$z", Truthy(), span, false)
	out := FilterClauses([]*Clause{onX, onZ}, "$x", nil, nil)
	if len(out) != 1 || out[0].Hash() != onZ.Hash() {
		t.Fatalf("reassignment without a type should drop $x clauses")
	}
}

func TestFilterClausesConsistency(t *testing.T) {
	onX := Single("$x", Truthy(), span, false)
	onMember := Single(MemberKey("$x", "prop"), IsIsset(), span, false)
	newType := ttype.NewUnion(ttype.MakeLiteralBool(true))

	alwaysOK := func(Assertion, ttype.Union) bool { return true }
	out := FilterClauses([]*Clause{onX, onMember}, "$x", &newType, alwaysOK)
	if len(out) != 1 || out[0].Hash() != onX.Hash() {
		t.Fatalf("member-chain clauses must drop on reassignment; direct consistent ones stay")
	}

	neverOK := func(Assertion, ttype.Union) bool { return false }
	out = FilterClauses([]*Clause{onX}, "$x", &newType, neverOK)
	if len(out) != 0 {
		t.Fatalf("inconsistent clauses should drop")
	}
}

func TestVarKeyRoots(t *testing.T) {
	cases := []struct {
		key, root string
		want      bool
	}{
		{"$x", "$x", true},
		{MemberKey("$x", "y"), "$x", true},
		{NullsafeMemberKey("$x", "y"), "$x", true},
		{IndexKey("$x", "0"), "$x", true},
		{StaticKey("Order", "OPEN"), "Order", true},
		{"$xy", "$x", false},
		{"$y", "$x", false},
	}
	for _, c := range cases {
		if got := VarHasRoot(c.key, c.root); got != c.want {
			t.Fatalf("VarHasRoot(%q, %q) = %v, want %v", c.key, c.root, got, c.want)
		}
	}
}

func TestIndexKeyEscapesSeparators(t *testing.T) {
	key := IndexKey("$x", "a->b")
	if key != "$x['a->b']" {
		t.Fatalf("IndexKey did not escape the member separator: %q", key)
	}
	if !VarHasRoot(key, "$x") {
		t.Fatalf("escaped index key should still root at $x")
	}
}

func TestFromAssertionsBuildsSingletons(t *testing.T) {
	out := FromAssertions(map[string][]Assertion{
		"$a": {Truthy(), IsIsset()},
		"$b": {Falsy()},
	}, span)
	if len(out) != 3 {
		t.Fatalf("expected 3 singleton clauses, got %d", len(out))
	}
	for _, c := range out {
		if !c.Reconcilable || c.Generated {
			t.Fatalf("condition clauses are reconcilable and not generated")
		}
	}
}
