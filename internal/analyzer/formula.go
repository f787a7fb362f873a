package analyzer

import (
	"strconv"

	"mantis/internal/ast"
	"mantis/internal/clause"
	"mantis/internal/flow"
	"mantis/internal/source"
	"mantis/internal/ttype"
)

// exprVarKey encodes an lvalue-ish expression as a clause var key.
// Returns false for expressions that cannot anchor an assertion.
func (a *Analyzer) exprVarKey(e ast.Expr) (string, bool) {
	switch n := e.(type) {
	case *ast.Variable:
		return a.varName(n.Name), true
	case *ast.PropertyFetch:
		if n.Prop.IsDynamic() {
			return "", false
		}
		base, ok := a.exprVarKey(n.Object)
		if !ok {
			return "", false
		}
		prop := a.in.MustLookup(n.Prop.Name)
		if n.Nullsafe {
			return clause.NullsafeMemberKey(base, prop), true
		}
		return clause.MemberKey(base, prop), true
	case *ast.StaticPropertyFetch:
		if n.Class.IsDynamic() || n.Prop.IsDynamic() {
			return "", false
		}
		return clause.StaticKey(a.in.MustLookup(n.Class.Name), "$"+a.in.MustLookup(n.Prop.Name)), true
	case *ast.ClassConstFetch:
		if n.Class.IsDynamic() {
			return "", false
		}
		return clause.StaticKey(a.in.MustLookup(n.Class.Name), a.in.MustLookup(n.Const.Name)), true
	case *ast.Index:
		base, ok := a.exprVarKey(n.Base)
		if !ok {
			return "", false
		}
		switch dim := n.Dim.(type) {
		case *ast.StringLit:
			if len(dim.Parts) == 0 {
				return clause.IndexKey(base, dim.Value), true
			}
		case *ast.IntLit:
			return clause.IndexKey(base, strconv.FormatInt(dim.Value, 10)), true
		}
		return "", false
	}
	return "", false
}

// buildFormula extracts the clause list a condition's truth implies.
func (a *Analyzer) buildFormula(cond ast.Expr, bctx *flow.BlockContext) []*clause.Clause {
	switch n := cond.(type) {
	case *ast.Binary:
		switch n.Op {
		case ast.OpAnd:
			left := a.buildFormula(n.Left, bctx)
			right := a.buildFormula(n.Right, bctx)
			return clause.Simplify(append(left, right...))
		case ast.OpOr:
			return a.disjoinFormulas(
				a.buildFormula(n.Left, bctx),
				a.buildFormula(n.Right, bctx),
				cond.Span())
		default:
			if cl, ok := a.comparisonClause(n, bctx); ok {
				return []*clause.Clause{cl}
			}
		}
	case *ast.Unary:
		if n.Op == ast.OpNot {
			inner := a.buildFormula(n.Operand, bctx)
			negated, ok := clause.NegateFormula(inner, 0)
			if !ok {
				return []*clause.Clause{clause.NewWedge(cond.Span())}
			}
			return negated
		}
	case *ast.InstanceOf:
		if key, ok := a.exprVarKey(n.Expr); ok && !n.Class.IsDynamic() {
			fqcn := n.Class.Name
			if rn, found := a.module.ResolveName(n.Class.Sp.Start); found {
				fqcn = rn.FQN
			}
			t := ttype.NewUnion(ttype.MakeNamedObject(fqcn))
			return []*clause.Clause{clause.Single(key, clause.IsType(t), cond.Span(), false)}
		}
	case *ast.Isset:
		var out []*clause.Clause
		for _, v := range n.Vars {
			if key, ok := a.exprVarKey(v); ok {
				out = append(out, clause.Single(key, clause.IsIsset(), cond.Span(), false))
			}
		}
		if len(out) > 0 {
			return out
		}
	case *ast.Empty:
		if key, ok := a.exprVarKey(n.Arg); ok {
			return []*clause.Clause{clause.Single(key, clause.Falsy(), cond.Span(), false)}
		}
	case *ast.Call:
		if cl, ok := a.typeCheckClause(n); ok {
			return []*clause.Clause{cl}
		}
	case *ast.BoolLit:
		if n.Value {
			return nil
		}
		// `false` as a condition: the branch is unreachable; an
		// irreconcilable wedge keeps the predicate honest.
		return []*clause.Clause{clause.NewWedge(cond.Span())}
	}

	// Fallback: the condition's own truthiness.
	if key, ok := a.exprVarKey(cond); ok {
		return []*clause.Clause{clause.Single(key, clause.Truthy(), cond.Span(), false)}
	}
	return []*clause.Clause{clause.NewWedge(cond.Span())}
}

// disjoinFormulas distributes (A) ∨ (B) into CNF, bounded.
func (a *Analyzer) disjoinFormulas(left, right []*clause.Clause, sp source.Span) []*clause.Clause {
	if len(left) == 0 || len(right) == 0 {
		return nil
	}
	if len(left)*len(right) > clause.DefaultNegationLimit {
		return []*clause.Clause{clause.NewWedge(sp)}
	}
	var out []*clause.Clause
	for _, l := range left {
		for _, r := range right {
			if l.Wedge || r.Wedge {
				out = append(out, clause.NewWedge(sp))
				continue
			}
			poss := map[string][]clause.Assertion{}
			for k, v := range l.Possibilities {
				poss[k] = append([]clause.Assertion(nil), v...)
			}
			for k, v := range r.Possibilities {
				poss[k] = append(poss[k], v...)
			}
			out = append(out, clause.New(poss, sp, false, true, true))
		}
	}
	return clause.Simplify(out)
}

// typeCheckClause maps is_string($x) and friends to IsType assertions.
func (a *Analyzer) typeCheckClause(call *ast.Call) (*clause.Clause, bool) {
	callee, ok := call.Callee.(*ast.FuncName)
	if !ok {
		return nil, false
	}
	maker, found := a.typeCheckers[a.in.Lowered(callee.Name)]
	if !found || len(call.Args) == 0 {
		return nil, false
	}
	key, ok := a.exprVarKey(call.Args[0].Value)
	if !ok {
		return nil, false
	}
	return clause.Single(key, clause.IsType(maker()), call.Sp, false), true
}

// comparisonClause maps comparisons with literal operands to assertions.
func (a *Analyzer) comparisonClause(n *ast.Binary, bctx *flow.BlockContext) (*clause.Clause, bool) {
	key, lit, flipped, ok := comparisonOperands(a, n)
	if !ok {
		return nil, false
	}

	switch n.Op {
	case ast.OpIdentical, ast.OpEqual:
		t, ok := literalType(lit)
		if !ok {
			return nil, false
		}
		kind := clause.IsEqual
		if n.Op == ast.OpIdentical {
			kind = clause.IsType
		}
		return clause.Single(key, kind(t), n.Sp, false), true
	case ast.OpNotIdentical, ast.OpNotEqual:
		t, ok := literalType(lit)
		if !ok {
			return nil, false
		}
		if n.Op == ast.OpNotIdentical {
			return clause.Single(key, clause.IsNotType(t), n.Sp, false), true
		}
		return clause.Single(key, clause.IsNotEqual(t), n.Sp, false), true
	case ast.OpGreater, ast.OpGreaterOrEqual, ast.OpLess, ast.OpLessOrEqual:
		intLit, isInt := lit.(*ast.IntLit)
		if !isInt {
			return nil, false
		}
		op := n.Op
		if flipped {
			op = flipComparison(op)
		}
		var assertion clause.Assertion
		switch op {
		case ast.OpGreater:
			assertion = clause.GreaterThan(intLit.Value)
		case ast.OpGreaterOrEqual:
			assertion = clause.GreaterOrEqual(intLit.Value)
		case ast.OpLess:
			assertion = clause.LessThan(intLit.Value)
		default:
			assertion = clause.LessOrEqual(intLit.Value)
		}
		return clause.Single(key, assertion, n.Sp, false), true
	}
	return nil, false
}

// comparisonOperands finds the (var key, literal) pair of a comparison,
// reporting whether the literal was on the left (flipped).
func comparisonOperands(a *Analyzer, n *ast.Binary) (string, ast.Expr, bool, bool) {
	if key, ok := a.exprVarKey(n.Left); ok && isLiteralExpr(n.Right) {
		return key, n.Right, false, true
	}
	if key, ok := a.exprVarKey(n.Right); ok && isLiteralExpr(n.Left) {
		return key, n.Left, true, true
	}
	return "", nil, false, false
}

func isLiteralExpr(e ast.Expr) bool {
	switch lit := e.(type) {
	case *ast.IntLit, *ast.FloatLit, *ast.BoolLit, *ast.NullLit:
		return true
	case *ast.StringLit:
		return len(lit.Parts) == 0
	}
	return false
}

func literalType(e ast.Expr) (ttype.Union, bool) {
	switch lit := e.(type) {
	case *ast.IntLit:
		return ttype.NewUnion(ttype.MakeLiteralInt(lit.Value)), true
	case *ast.FloatLit:
		return ttype.NewUnion(ttype.MakeLiteralFloat(lit.Value)), true
	case *ast.BoolLit:
		return ttype.NewUnion(ttype.MakeLiteralBool(lit.Value)), true
	case *ast.NullLit:
		return ttype.Null(), true
	case *ast.StringLit:
		if len(lit.Parts) == 0 {
			return ttype.NewUnion(ttype.MakeLiteralString(lit.Value)), true
		}
	}
	return ttype.Union{}, false
}

func flipComparison(op ast.BinaryOp) ast.BinaryOp {
	switch op {
	case ast.OpGreater:
		return ast.OpLess
	case ast.OpGreaterOrEqual:
		return ast.OpLessOrEqual
	case ast.OpLess:
		return ast.OpGreater
	case ast.OpLessOrEqual:
		return ast.OpGreaterOrEqual
	}
	return op
}
