package reconciler

import (
	"testing"

	"mantis/internal/clause"
	"mantis/internal/ttype"
)

func newReconciler() *Reconciler {
	return New(ttype.NopProvider{}, nil, ttype.ExpandOptions{})
}

func TestReconcileIsTypeNarrows(t *testing.T) {
	r := newReconciler()
	existing := ttype.Nullable(ttype.MakeString())
	got, outcome := r.Reconcile(clause.IsType(ttype.NewUnion(ttype.MakeString())), existing, false)
	if outcome != OutcomeReconciled {
		t.Fatalf("outcome = %s, want reconciled", outcome)
	}
	single, ok := got.Single()
	if !ok || single.Kind != ttype.KindString {
		t.Fatalf("string|null narrowed by string should be string")
	}
}

func TestReconcileIsTypeRedundant(t *testing.T) {
	r := newReconciler()
	existing := ttype.NewUnion(ttype.MakeString())
	_, outcome := r.Reconcile(clause.IsType(ttype.NewUnion(ttype.MakeString())), existing, false)
	if outcome != OutcomeRedundant {
		t.Fatalf("outcome = %s, want redundant", outcome)
	}
}

func TestReconcileIsTypeImpossible(t *testing.T) {
	r := newReconciler()
	existing := ttype.NewUnion(ttype.MakeInt())
	got, outcome := r.Reconcile(clause.IsType(ttype.NewUnion(ttype.MakeString())), existing, false)
	if outcome != OutcomeImpossible || !got.IsNever() {
		t.Fatalf("int narrowed by string should be impossible, got %s", outcome)
	}
}

func TestReconcileIsTypeAcquiresFromMixed(t *testing.T) {
	r := newReconciler()
	got, outcome := r.Reconcile(clause.IsType(ttype.NewUnion(ttype.MakeString())), ttype.Mixed(), false)
	if outcome != OutcomeReconciled {
		t.Fatalf("outcome = %s, want reconciled", outcome)
	}
	single, ok := got.Single()
	if !ok || single.Kind != ttype.KindString {
		t.Fatalf("mixed should acquire the asserted type")
	}
}

func TestReconcileNegatedFlag(t *testing.T) {
	r := newReconciler()
	existing := ttype.Nullable(ttype.MakeString())
	got, outcome := r.Reconcile(clause.IsType(ttype.Null()), existing, true)
	if outcome != OutcomeReconciled {
		t.Fatalf("outcome = %s, want reconciled", outcome)
	}
	single, ok := got.Single()
	if !ok || single.Kind != ttype.KindString {
		t.Fatalf("negated is-null should strip null, got something else")
	}
}

func TestReconcileTruthy(t *testing.T) {
	r := newReconciler()

	got, outcome := r.Reconcile(clause.Truthy(), ttype.Nullable(ttype.MakeBool()), false)
	if outcome != OutcomeReconciled {
		t.Fatalf("outcome = %s, want reconciled", outcome)
	}
	single, ok := got.Single()
	if !ok || single.BoolVal == nil || !*single.BoolVal {
		t.Fatalf("truthy bool|null should be literal true")
	}

	got, outcome = r.Reconcile(clause.Truthy(), ttype.NewUnion(ttype.MakeString()), false)
	if outcome != OutcomeReconciled {
		t.Fatalf("outcome = %s, want reconciled", outcome)
	}
	single, ok = got.Single()
	if !ok || single.Kind != ttype.KindNonEmptyString {
		t.Fatalf("truthy string should be non-empty-string")
	}

	if _, outcome = r.Reconcile(clause.Truthy(), ttype.Null(), false); outcome != OutcomeImpossible {
		t.Fatalf("truthy null should be impossible, got %s", outcome)
	}
}

func TestReconcileFalsy(t *testing.T) {
	r := newReconciler()

	got, outcome := r.Reconcile(clause.Falsy(), ttype.NewUnion(ttype.MakeInt()), false)
	if outcome != OutcomeReconciled {
		t.Fatalf("outcome = %s, want reconciled", outcome)
	}
	single, ok := got.Single()
	if !ok || single.IntVal == nil || *single.IntVal != 0 {
		t.Fatalf("falsy int should be literal 0")
	}

	got, outcome = r.Reconcile(clause.Falsy(), ttype.NewUnion(ttype.MakeLiteralString("x")), false)
	if outcome != OutcomeImpossible || !got.IsNever() {
		t.Fatalf("falsy 'x' should be impossible, got %s", outcome)
	}
}

func TestReconcileIsset(t *testing.T) {
	r := newReconciler()

	got, outcome := r.Reconcile(clause.IsIsset(), ttype.Nullable(ttype.MakeString()), false)
	if outcome != OutcomeReconciled {
		t.Fatalf("outcome = %s, want reconciled", outcome)
	}
	if got.IsNullable() {
		t.Fatalf("isset should strip null")
	}

	if _, outcome = r.Reconcile(clause.IsIsset(), ttype.Null(), false); outcome != OutcomeImpossible {
		t.Fatalf("isset on null should be impossible")
	}
	if _, outcome = r.Reconcile(clause.IsIsset(), ttype.NewUnion(ttype.MakeString()), false); outcome != OutcomeRedundant {
		t.Fatalf("isset on a non-nullable defined var is redundant")
	}

	undef := ttype.NewUnion(ttype.MakeString())
	undef.PossiblyUndefined = true
	got, outcome = r.Reconcile(clause.IsIsset(), undef, false)
	if outcome != OutcomeReconciled || got.PossiblyUndefined {
		t.Fatalf("isset should clear possibly-undefined")
	}
}

func TestReconcileNotIsset(t *testing.T) {
	r := newReconciler()

	got, outcome := r.Reconcile(clause.IsNotIsset(), ttype.Nullable(ttype.MakeString()), false)
	if outcome != OutcomeReconciled || !got.IsNull() {
		t.Fatalf("not-isset on string|null should leave null")
	}
	if _, outcome = r.Reconcile(clause.IsNotIsset(), ttype.NewUnion(ttype.MakeString()), false); outcome != OutcomeImpossible {
		t.Fatalf("not-isset on a definite string is impossible")
	}
}

func TestReconcileEqualLiteral(t *testing.T) {
	r := newReconciler()
	lit := ttype.NewUnion(ttype.MakeLiteralString("open"))

	got, outcome := r.Reconcile(clause.IsEqual(lit), ttype.NewUnion(ttype.MakeString()), false)
	if outcome != OutcomeReconciled {
		t.Fatalf("outcome = %s, want reconciled", outcome)
	}
	if v, ok := got.SingleLiteralString(); !ok || v != "open" {
		t.Fatalf("equality with 'open' should narrow to the literal")
	}

	// Loose equality across disjoint atomics proves nothing.
	_, outcome = r.Reconcile(clause.IsEqual(lit), ttype.NewUnion(ttype.MakeInt()), false)
	if outcome != OutcomeNotApplicable {
		t.Fatalf("loose equality mismatch should be not-applicable, got %s", outcome)
	}
}

func TestReconcileNotEqualLiteral(t *testing.T) {
	r := newReconciler()
	lit := ttype.NewUnion(ttype.MakeLiteralInt(3))

	got, outcome := r.Reconcile(clause.IsNotEqual(lit), ttype.NewUnion(ttype.MakeLiteralInt(3)), false)
	if outcome != OutcomeImpossible || !got.IsNever() {
		t.Fatalf("3 != 3 should be impossible")
	}
	_, outcome = r.Reconcile(clause.IsNotEqual(lit), ttype.NewUnion(ttype.MakeLiteralInt(4)), false)
	if outcome != OutcomeNotApplicable {
		t.Fatalf("4 != 3 changes nothing, got %s", outcome)
	}
}

func TestReconcileHasArrayKey(t *testing.T) {
	r := newReconciler()
	key := ttype.StringKey("id")

	optional := ttype.NewUnion(ttype.MakeShape(ttype.ShapeEntry{
		Key:      key,
		Type:     ttype.NewUnion(ttype.MakeInt()),
		Optional: true,
	}))
	got, outcome := r.Reconcile(clause.HasArrayKey(key), optional, false)
	if outcome != OutcomeReconciled {
		t.Fatalf("outcome = %s, want reconciled", outcome)
	}
	single, _ := got.Single()
	entry, ok := single.Shape.Entry(key)
	if !ok || entry.Optional {
		t.Fatalf("asserted key should become required")
	}

	required := ttype.NewUnion(ttype.MakeShape(ttype.ShapeEntry{
		Key:  key,
		Type: ttype.NewUnion(ttype.MakeInt()),
	}))
	if _, outcome = r.Reconcile(clause.HasArrayKey(key), required, false); outcome != OutcomeRedundant {
		t.Fatalf("key already required should be redundant, got %s", outcome)
	}

	closed := ttype.NewUnion(ttype.MakeShape(ttype.ShapeEntry{
		Key:  ttype.StringKey("other"),
		Type: ttype.NewUnion(ttype.MakeInt()),
	}))
	got, outcome = r.Reconcile(clause.HasArrayKey(key), closed, false)
	if outcome != OutcomeImpossible || !got.IsNever() {
		t.Fatalf("closed shape without the key should be impossible, got %s", outcome)
	}
}

func TestReconcileCountable(t *testing.T) {
	r := newReconciler()
	list := ttype.NewUnion(ttype.MakeList(ttype.NewUnion(ttype.MakeInt())))

	got, outcome := r.Reconcile(clause.NonEmptyCountable(), list, false)
	if outcome != OutcomeReconciled {
		t.Fatalf("outcome = %s, want reconciled", outcome)
	}
	single, _ := got.Single()
	if single.List == nil || single.List.Length != ttype.LengthNonEmpty {
		t.Fatalf("non-empty count should tighten the list length")
	}

	got, outcome = r.Reconcile(clause.HasExactCount(2), list, false)
	if outcome != OutcomeReconciled {
		t.Fatalf("outcome = %s, want reconciled", outcome)
	}
	single, _ = got.Single()
	if single.List == nil || single.List.Length != ttype.LengthExact || single.List.Count != 2 {
		t.Fatalf("exact count should pin the list length")
	}

	nonEmpty := ttype.NewUnion(ttype.MakeNonEmptyList(ttype.NewUnion(ttype.MakeInt())))
	got, outcome = r.Reconcile(clause.HasExactCount(0), nonEmpty, false)
	if outcome != OutcomeImpossible || !got.IsNever() {
		t.Fatalf("count 0 on a non-empty list should be impossible, got %s", outcome)
	}
}

func TestReconcileEmptyCountable(t *testing.T) {
	r := newReconciler()

	unknown := ttype.NewUnion(ttype.MakeList(ttype.NewUnion(ttype.MakeInt())))
	got, outcome := r.Reconcile(clause.EmptyCountable(), unknown, false)
	if outcome != OutcomeReconciled {
		t.Fatalf("outcome = %s, want reconciled", outcome)
	}
	single, _ := got.Single()
	if single.List == nil || single.List.Length != ttype.LengthExact || single.List.Count != 0 {
		t.Fatalf("an unknown-length list narrows to the empty array")
	}

	// Narrowing what is already empty changes nothing.
	empty := ttype.NewUnion(ttype.MakeEmptyArray())
	_, outcome = r.Reconcile(clause.EmptyCountable(), empty, false)
	if outcome != OutcomeRedundant {
		t.Fatalf("outcome = %s, want redundant", outcome)
	}

	nonEmpty := ttype.NewUnion(ttype.MakeNonEmptyList(ttype.NewUnion(ttype.MakeInt())))
	got, outcome = r.Reconcile(clause.EmptyCountable(), nonEmpty, false)
	if outcome != OutcomeImpossible || !got.IsNever() {
		t.Fatalf("empty on a non-empty list should be impossible, got %s", outcome)
	}
}

func TestReconcileComparison(t *testing.T) {
	r := newReconciler()

	got, outcome := r.Reconcile(clause.GreaterThan(0), ttype.NewUnion(ttype.MakeInt()), false)
	if outcome != OutcomeReconciled {
		t.Fatalf("outcome = %s, want reconciled", outcome)
	}
	single, _ := got.Single()
	if single.Range == nil || single.Range.ContainsValue(0) || !single.Range.ContainsValue(1) {
		t.Fatalf("int narrowed by > 0 should exclude 0")
	}

	rng := ttype.NewUnion(ttype.MakeIntRange(
		ttype.Bound{Kind: ttype.BoundClosed, Value: 0},
		ttype.Bound{Kind: ttype.BoundClosed, Value: 10},
	))
	got, outcome = r.Reconcile(clause.LessOrEqual(5), rng, false)
	if outcome != OutcomeReconciled {
		t.Fatalf("outcome = %s, want reconciled", outcome)
	}
	single, _ = got.Single()
	if single.Range == nil || single.Range.ContainsValue(6) || !single.Range.ContainsValue(5) {
		t.Fatalf("[0,10] narrowed by <= 5 should clamp to [0,5]")
	}

	_, outcome = r.Reconcile(clause.GreaterThan(0), ttype.NewUnion(ttype.MakeLiteralInt(7)), false)
	if outcome != OutcomeRedundant {
		t.Fatalf("7 > 0 already holds, got %s", outcome)
	}
	got, outcome = r.Reconcile(clause.LessThan(0), ttype.NewUnion(ttype.MakeLiteralInt(7)), false)
	if outcome != OutcomeImpossible || !got.IsNever() {
		t.Fatalf("7 < 0 should be impossible, got %s", outcome)
	}

	_, outcome = r.Reconcile(clause.GreaterThan(0), ttype.NewUnion(ttype.MakeString()), false)
	if outcome != OutcomeNotApplicable {
		t.Fatalf("integer comparison on string should be not-applicable, got %s", outcome)
	}
}

func TestConsistentWith(t *testing.T) {
	r := newReconciler()
	str := ttype.NewUnion(ttype.MakeString())
	if !r.ConsistentWith(clause.IsType(str), ttype.Nullable(ttype.MakeString())) {
		t.Fatalf("is-string is consistent with string|null")
	}
	if r.ConsistentWith(clause.IsType(str), ttype.NewUnion(ttype.MakeInt())) {
		t.Fatalf("is-string is inconsistent with int")
	}
}
