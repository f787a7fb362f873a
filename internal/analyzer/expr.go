package analyzer

import (
	"mantis/internal/ast"
	"mantis/internal/clause"
	"mantis/internal/dataflow"
	"mantis/internal/diag"
	"mantis/internal/flow"
	"mantis/internal/resolver"
	"mantis/internal/source"
	"mantis/internal/ttype"
)

// analyzeExpr infers one expression's type, recording it in the
// artifacts and updating the context along the way.
func (a *Analyzer) analyzeExpr(e ast.Expr, bctx *flow.BlockContext) (ttype.Union, error) {
	t, err := a.analyzeExprInner(e, bctx)
	if err != nil {
		return t, err
	}
	a.artifacts.SetExprType(e.Span(), t)
	return t, nil
}

func (a *Analyzer) analyzeExprInner(e ast.Expr, bctx *flow.BlockContext) (ttype.Union, error) {
	switch n := e.(type) {
	case *ast.Variable:
		return a.analyzeVariable(n, bctx), nil
	case *ast.IntLit:
		return ttype.NewUnion(ttype.MakeLiteralInt(n.Value)), nil
	case *ast.FloatLit:
		return ttype.NewUnion(ttype.MakeLiteralFloat(n.Value)), nil
	case *ast.StringLit:
		return a.analyzeStringLit(n, bctx)
	case *ast.BoolLit:
		return ttype.NewUnion(ttype.MakeLiteralBool(n.Value)), nil
	case *ast.NullLit:
		return ttype.Null(), nil
	case *ast.ArrayLit:
		return a.analyzeArrayLit(n, bctx)
	case *ast.Binary:
		return a.analyzeBinary(n, bctx)
	case *ast.Unary:
		return a.analyzeUnary(n, bctx)
	case *ast.Assign:
		return a.analyzeAssign(n, bctx)
	case *ast.Isset:
		return a.analyzeIsset(n, bctx)
	case *ast.Empty:
		restore := bctx.EnterFlag(func(f *flow.Flags) { f.InsideIsset = true })
		_, err := a.analyzeExpr(n.Arg, bctx)
		restore()
		return ttype.NewUnion(ttype.MakeBool()), err
	case *ast.FuncName:
		return ttype.NewUnion(ttype.MakeLiteralString(a.in.MustLookup(n.Name))), nil
	case *ast.Call:
		return a.analyzeCall(n, bctx)
	case *ast.MethodCall:
		return a.analyzeMethodCall(n, bctx)
	case *ast.StaticCall:
		return a.analyzeStaticCall(n, bctx)
	case *ast.New:
		return a.analyzeNew(n, bctx)
	case *ast.PropertyFetch:
		return a.analyzePropertyFetch(n, bctx)
	case *ast.StaticPropertyFetch:
		return a.analyzeStaticPropertyFetch(n, bctx)
	case *ast.ClassConstFetch:
		return a.analyzeClassConstFetch(n, bctx)
	case *ast.Index:
		return a.analyzeIndex(n, bctx)
	case *ast.Ternary:
		return a.analyzeTernary(n, bctx)
	case *ast.Closure:
		return a.analyzeClosure(n, bctx)
	case *ast.Cast:
		return a.analyzeCast(n, bctx)
	case *ast.InstanceOf:
		if _, err := a.analyzeExpr(n.Expr, bctx); err != nil {
			return ttype.Union{}, err
		}
		return ttype.NewUnion(ttype.MakeBool()), nil
	case *ast.Match:
		return a.analyzeMatch(n, bctx)
	case *ast.Clone:
		t, err := a.analyzeExpr(n.Operand, bctx)
		if err != nil {
			return ttype.Union{}, err
		}
		return t.Clone(), nil
	case *ast.ThrowExpr:
		if err := a.analyzeThrow(n.Operand, n.Sp, bctx); err != nil {
			return ttype.Union{}, err
		}
		return ttype.Never(), nil
	}
	return ttype.Mixed(), nil
}

func (a *Analyzer) analyzeVariable(n *ast.Variable, bctx *flow.BlockContext) ttype.Union {
	key := a.varName(n.Name)
	if node, ok := a.varNodes[key]; ok {
		a.exprNodes[n.Sp] = node
	}
	if bctx.Flags.InsideConditional {
		bctx.ConditionallyReferencedVariableIDs[key] = struct{}{}
	}
	t, ok := bctx.Local(key)
	if !ok {
		if bctx.Flags.InsideIsset || bctx.Flags.InsideUnset {
			return ttype.Mixed()
		}
		if _, possibly := bctx.VariablesPossiblyInScope[key]; possibly {
			a.sink.Report(diag.Warning(diag.CodePossiblyUndefinedVariable, n.Sp,
				key+" may be undefined on this path"))
		} else {
			a.sink.Report(diag.Error(diag.CodeUndefinedVariable, n.Sp,
				key+" is not defined"))
		}
		return ttype.MixedAnyUnion()
	}
	if t.PossiblyUndefined && !bctx.Flags.InsideIsset && !bctx.Flags.InsideUnset {
		a.sink.Report(diag.Warning(diag.CodePossiblyUndefinedVariable, n.Sp,
			key+" may be undefined on this path"))
	}
	return t
}

func (a *Analyzer) analyzeStringLit(n *ast.StringLit, bctx *flow.BlockContext) (ttype.Union, error) {
	if len(n.Parts) == 0 {
		return ttype.NewUnion(ttype.MakeLiteralString(n.Value)), nil
	}
	for _, part := range n.Parts {
		if _, err := a.analyzeExpr(part, bctx); err != nil {
			return ttype.Union{}, err
		}
	}
	return ttype.NewUnion(ttype.MakeString()), nil
}

func (a *Analyzer) analyzeArrayLit(n *ast.ArrayLit, bctx *flow.BlockContext) (ttype.Union, error) {
	if len(n.Items) == 0 {
		return ttype.NewUnion(ttype.MakeEmptyArray()), nil
	}

	var entries []ttype.ShapeEntry
	var listElems []ttype.Union
	shapely := true
	for _, item := range n.Items {
		vt, err := a.analyzeExpr(item.Value, bctx)
		if err != nil {
			return ttype.Union{}, err
		}
		if item.Spread {
			shapely = false
			continue
		}
		if item.Key == nil {
			listElems = append(listElems, vt)
			if len(entries) > 0 {
				shapely = false
			}
			continue
		}
		if _, err := a.analyzeExpr(item.Key, bctx); err != nil {
			return ttype.Union{}, err
		}
		key, ok := a.shapeKeyOf(item.Key)
		if !ok {
			shapely = false
			continue
		}
		entries = append(entries, ttype.ShapeEntry{Key: key, Type: vt})
	}

	switch {
	case shapely && len(entries) > 0 && len(listElems) == 0:
		return ttype.NewUnion(ttype.MakeShape(entries...)), nil
	case shapely && len(entries) == 0:
		elem := ttype.CombineMany(a.provider, listElems...)
		at := ttype.MakeNonEmptyList(elem)
		at.List.Length = ttype.LengthExact
		at.List.Count = len(listElems)
		return ttype.NewUnion(at), nil
	default:
		return ttype.NewUnion(ttype.MakeKeyedArray(
			ttype.NewUnion(ttype.MakeArrayKey()), ttype.Mixed())), nil
	}
}

func (a *Analyzer) shapeKeyOf(e ast.Expr) (ttype.PropertyKey, bool) {
	switch k := e.(type) {
	case *ast.IntLit:
		return ttype.PropertyKey{IsInt: true, Int: k.Value}, true
	case *ast.StringLit:
		if len(k.Parts) == 0 {
			return ttype.PropertyKey{Str: k.Value}, true
		}
	}
	return ttype.PropertyKey{}, false
}

func (a *Analyzer) analyzeBinary(n *ast.Binary, bctx *flow.BlockContext) (ttype.Union, error) {
	switch n.Op {
	case ast.OpAnd, ast.OpOr:
		return a.analyzeShortCircuit(n, bctx)
	case ast.OpCoalesce:
		return a.analyzeCoalesce(n, bctx)
	}

	left, err := a.analyzeExpr(n.Left, bctx)
	if err != nil {
		return ttype.Union{}, err
	}
	right, err := a.analyzeExpr(n.Right, bctx)
	if err != nil {
		return ttype.Union{}, err
	}

	switch n.Op {
	case ast.OpEqual, ast.OpNotEqual, ast.OpIdentical, ast.OpNotIdentical,
		ast.OpLess, ast.OpLessOrEqual, ast.OpGreater, ast.OpGreaterOrEqual:
		if n.Op == ast.OpIdentical && !ttype.CanBeIdentical(a.provider, left, right) {
			a.sink.Report(diag.Warning(diag.CodeImpossibleCondition, n.Sp,
				left.Render(a.in)+" can never be identical to "+right.Render(a.in)))
			return ttype.NewUnion(ttype.MakeLiteralBool(false)), nil
		}
		return ttype.NewUnion(ttype.MakeBool()), nil
	case ast.OpSpaceship:
		return ttype.NewUnion(ttype.MakeIntRange(
			ttype.Bound{Kind: ttype.BoundClosed, Value: -1},
			ttype.Bound{Kind: ttype.BoundClosed, Value: 1})), nil
	case ast.OpConcat:
		return a.concatType(left, right), nil
	case ast.OpBitAnd, ast.OpBitOr, ast.OpBitXor, ast.OpShiftLeft, ast.OpShiftRight, ast.OpMod:
		return ttype.NewUnion(ttype.MakeInt()), nil
	case ast.OpDiv:
		return ttype.NewUnion(ttype.MakeInt(), ttype.MakeFloat()), nil
	default:
		return a.arithType(n, left, right), nil
	}
}

// analyzeShortCircuit evaluates && and ||: the right operand runs in a
// context narrowed by the left's truth (or its negation).
func (a *Analyzer) analyzeShortCircuit(n *ast.Binary, bctx *flow.BlockContext) (ttype.Union, error) {
	formula, err := a.analyzeCondition(n.Left, bctx)
	if err != nil {
		return ttype.Union{}, err
	}
	rightFormula := formula
	if n.Op == ast.OpOr {
		negated, ok := clause.NegateFormula(formula, 0)
		if !ok {
			negated = nil
		}
		rightFormula = negated
	}
	rightCtx := a.enterBranch(bctx, rightFormula)
	if _, err := a.analyzeExpr(n.Right, rightCtx); err != nil {
		return ttype.Union{}, err
	}
	// Bookkeeping from the conditional arm flows back; narrowings do not.
	for k := range rightCtx.VariablesPossiblyInScope {
		bctx.VariablesPossiblyInScope[k] = struct{}{}
	}
	return ttype.NewUnion(ttype.MakeBool()), nil
}

func (a *Analyzer) analyzeCoalesce(n *ast.Binary, bctx *flow.BlockContext) (ttype.Union, error) {
	restore := bctx.EnterFlag(func(f *flow.Flags) {
		f.InsideIsset = true
		f.InsideCoalescing = true
	})
	left, err := a.analyzeExpr(n.Left, bctx)
	restore()
	if err != nil {
		return ttype.Union{}, err
	}

	right, err := a.analyzeExpr(n.Right, bctx)
	if err != nil {
		return ttype.Union{}, err
	}

	if !left.IsNullable() && !left.PossiblyUndefined && !left.HasMixed() {
		a.sink.Report(diag.Warning(diag.CodeRedundantCondition, n.Left.Span(),
			"left operand is never null; ?? always takes it"))
		return left, nil
	}
	keep := left.WithoutNull()
	keep.PossiblyUndefined = false
	if keep.IsNever() {
		return right, nil
	}
	return ttype.Combine(a.provider, keep, right), nil
}

func (a *Analyzer) concatType(left, right ttype.Union) ttype.Union {
	ls, lok := left.Single()
	rs, rok := right.Single()
	if lok && rok && ls.StrVal != nil && rs.StrVal != nil {
		return ttype.NewUnion(ttype.MakeLiteralString(*ls.StrVal + *rs.StrVal))
	}
	if (lok && ls.StrVal != nil && *ls.StrVal != "") ||
		(rok && rs.StrVal != nil && *rs.StrVal != "") {
		return ttype.NewUnion(ttype.MakeNonEmptyString())
	}
	return ttype.NewUnion(ttype.MakeString())
}

func (a *Analyzer) arithType(n *ast.Binary, left, right ttype.Union) ttype.Union {
	li, lok := left.Single()
	ri, rok := right.Single()
	if n.Op == ast.OpAdd && lok && rok && li.IntVal != nil && ri.IntVal != nil {
		return ttype.NewUnion(ttype.MakeLiteralInt(*li.IntVal + *ri.IntVal))
	}
	hasFloat := func(u ttype.Union) bool {
		for _, at := range u.Atomics {
			if at.Kind == ttype.KindFloat {
				return true
			}
		}
		return false
	}
	if hasFloat(left) || hasFloat(right) {
		return ttype.NewUnion(ttype.MakeFloat())
	}
	if a.isNumeric(left) && a.isNumeric(right) {
		return ttype.NewUnion(ttype.MakeInt())
	}
	if !left.HasMixed() && !right.HasMixed() && (!a.isNumeric(left) || !a.isNumeric(right)) {
		a.sink.Report(diag.Warning(diag.CodeInvalidOperand, n.Sp,
			"arithmetic on "+left.Render(a.in)+" and "+right.Render(a.in)))
	}
	return ttype.NewUnion(ttype.MakeInt(), ttype.MakeFloat())
}

func (a *Analyzer) isNumeric(u ttype.Union) bool {
	for _, at := range u.Atomics {
		switch at.Kind {
		case ttype.KindInt, ttype.KindIntRange, ttype.KindFloat, ttype.KindNumericString:
		default:
			return false
		}
	}
	return len(u.Atomics) > 0
}

func (a *Analyzer) analyzeUnary(n *ast.Unary, bctx *flow.BlockContext) (ttype.Union, error) {
	if n.Op == ast.OpNot {
		restore := bctx.EnterFlag(func(f *flow.Flags) { f.InsideNegation = true })
		t, err := a.analyzeExpr(n.Operand, bctx)
		restore()
		if err != nil {
			return ttype.Union{}, err
		}
		if at, ok := t.Single(); ok {
			if at.IsTruthy() {
				return ttype.NewUnion(ttype.MakeLiteralBool(false)), nil
			}
			if at.IsFalsy() {
				return ttype.NewUnion(ttype.MakeLiteralBool(true)), nil
			}
		}
		return ttype.NewUnion(ttype.MakeBool()), nil
	}

	t, err := a.analyzeExpr(n.Operand, bctx)
	if err != nil {
		return ttype.Union{}, err
	}
	switch n.Op {
	case ast.OpNeg:
		if at, ok := t.Single(); ok && at.IntVal != nil {
			return ttype.NewUnion(ttype.MakeLiteralInt(-*at.IntVal)), nil
		}
		return ttype.NewUnion(ttype.MakeInt(), ttype.MakeFloat()), nil
	case ast.OpPlus:
		return ttype.NewUnion(ttype.MakeInt(), ttype.MakeFloat()), nil
	case ast.OpBitNot:
		return ttype.NewUnion(ttype.MakeInt()), nil
	case ast.OpSuppress:
		return t, nil
	}
	return ttype.Mixed(), nil
}

func (a *Analyzer) analyzeIsset(n *ast.Isset, bctx *flow.BlockContext) (ttype.Union, error) {
	restore := bctx.EnterFlag(func(f *flow.Flags) { f.InsideIsset = true })
	defer restore()
	for _, v := range n.Vars {
		if _, err := a.analyzeExpr(v, bctx); err != nil {
			return ttype.Union{}, err
		}
	}
	return ttype.NewUnion(ttype.MakeBool()), nil
}

func (a *Analyzer) analyzeAssign(n *ast.Assign, bctx *flow.BlockContext) (ttype.Union, error) {
	restore := bctx.EnterFlag(func(f *flow.Flags) { f.InsideAssignment = true })
	defer restore()

	if n.Op == ast.AssignCoalesce {
		return a.analyzeCoalesceAssign(n, bctx)
	}

	value, err := a.analyzeExpr(n.Value, bctx)
	if err != nil {
		return ttype.Union{}, err
	}

	if n.Op != ast.AssignPlain {
		// Compound assignment reads the target first.
		target, err := a.analyzeExpr(n.Target, bctx)
		if err != nil {
			return ttype.Union{}, err
		}
		value = a.compoundResult(n, target, value)
	}
	if n.ByRef {
		value = ttype.Mixed()
	}

	if err := a.assignTo(n.Target, n.Value, value, bctx); err != nil {
		return ttype.Union{}, err
	}
	return value, nil
}

// analyzeCoalesceAssign handles $x ??= default.
func (a *Analyzer) analyzeCoalesceAssign(n *ast.Assign, bctx *flow.BlockContext) (ttype.Union, error) {
	restore := bctx.EnterFlag(func(f *flow.Flags) { f.InsideIsset = true })
	target, err := a.analyzeExpr(n.Target, bctx)
	restore()
	if err != nil {
		return ttype.Union{}, err
	}
	value, err := a.analyzeExpr(n.Value, bctx)
	if err != nil {
		return ttype.Union{}, err
	}

	keep := target.WithoutNull()
	keep.PossiblyUndefined = false
	result := value
	if !keep.IsNever() {
		result = ttype.Combine(a.provider, keep, value)
	}
	if err := a.assignTo(n.Target, n.Value, result, bctx); err != nil {
		return ttype.Union{}, err
	}
	return result, nil
}

func (a *Analyzer) compoundResult(n *ast.Assign, target, value ttype.Union) ttype.Union {
	switch n.Op {
	case ast.AssignConcat:
		return a.concatType(target, value)
	case ast.AssignBitAnd, ast.AssignBitOr, ast.AssignBitXor,
		ast.AssignShiftLeft, ast.AssignShiftRight, ast.AssignMod:
		return ttype.NewUnion(ttype.MakeInt())
	case ast.AssignDiv:
		return ttype.NewUnion(ttype.MakeInt(), ttype.MakeFloat())
	default:
		return ttype.NewUnion(ttype.MakeInt(), ttype.MakeFloat())
	}
}

// assignTo writes the value into a target lvalue, invalidating clauses
// that spoke about the old value.
func (a *Analyzer) assignTo(target ast.Expr, valueExpr ast.Expr, value ttype.Union, bctx *flow.BlockContext) error {
	switch lv := target.(type) {
	case *ast.Variable:
		key := a.varName(lv.Name)
		a.invalidateAssigned(key, value, bctx)
		bctx.AssignLocal(key, value)

		node := dataflow.VarNode(lv.Name, lv.Sp)
		a.artifacts.Graph.AddNode(&dataflow.Node{ID: node, Label: key})
		if valueExpr != nil {
			if from, ok := a.exprNodes[valueExpr.Span()]; ok {
				a.artifacts.Graph.AddPath(from, node, dataflow.PathKind{Kind: dataflow.PathAssignment})
			}
		}
		a.varNodes[key] = node
		a.exprNodes[target.Span()] = node
		return nil

	case *ast.PropertyFetch:
		objType, err := a.analyzeExpr(lv.Object, bctx)
		if err != nil {
			return err
		}
		if !lv.Prop.IsDynamic() {
			a.checkPropertyWrite(lv, objType, value, bctx)
			if key, ok := a.exprVarKey(lv); ok {
				a.invalidateAssigned(key, value, bctx)
				bctx.AssignLocal(key, value)
			}
		}
		return nil

	case *ast.StaticPropertyFetch:
		if key, ok := a.exprVarKey(lv); ok {
			a.invalidateAssigned(key, value, bctx)
			bctx.AssignLocal(key, value)
		}
		return nil

	case *ast.Index:
		if _, err := a.analyzeExpr(lv.Base, bctx); err != nil {
			return err
		}
		if lv.Dim != nil {
			if _, err := a.analyzeExpr(lv.Dim, bctx); err != nil {
				return err
			}
		}
		a.assignIndex(lv, value, bctx)
		return nil

	case *ast.ArrayLit:
		// List destructuring: each element becomes mixed-or-better.
		_, elem := a.iterationTypes(value)
		for _, item := range lv.Items {
			if item.Value == nil {
				continue
			}
			if err := a.assignTo(item.Value, nil, elem, bctx); err != nil {
				return err
			}
		}
		return nil
	}

	_, err := a.analyzeExpr(target, bctx)
	return err
}

// invalidateAssigned drops clauses that conflict with the new value and
// forgets descendants of the assigned key.
func (a *Analyzer) invalidateAssigned(key string, value ttype.Union, bctx *flow.BlockContext) {
	existing, had := bctx.Local(key)
	var existingPtr *ttype.Union
	if had {
		existingPtr = &existing
	}
	bctx.RemoveDescendants(key, existingPtr, &value, a.recon.ConsistentWith)
	bctx.RemoveVariableFromConflictingClauses(key, &value, a.recon.ConsistentWith)
	// Clauses about this variable may have been reconciled under a
	// different shape, so the memo cannot be pruned by hash; assigning
	// over a condition-tested variable drops it wholesale.
	if _, conditional := bctx.ConditionallyReferencedVariableIDs[key]; conditional {
		bctx.ReconciledExpressionClauses = nil
	}
}

// checkPropertyWrite verifies the written type against the declared
// property type.
func (a *Analyzer) checkPropertyWrite(lv *ast.PropertyFetch, objType, value ttype.Union, bctx *flow.BlockContext) {
	res := a.resolve.ResolveProperty(objType, lv.Prop.Name, lv.Nullsafe, a.scope)
	for _, rp := range res.ResolvedProperties {
		if rp.Meta.Type == nil {
			continue
		}
		declared := a.expand(*rp.Meta.Type)
		if declared.HasMixed() || value.HasMixed() {
			continue
		}
		if !ttype.Contains(a.provider, declared, value) {
			a.sink.Report(diag.Error(diag.CodeInvalidPropertyWrite, lv.Sp,
				"cannot write "+value.Render(a.in)+" to property of type "+declared.Render(a.in)))
		}
	}
}

// assignIndex updates the base's shape when the key is a literal.
func (a *Analyzer) assignIndex(lv *ast.Index, value ttype.Union, bctx *flow.BlockContext) {
	baseKey, ok := a.exprVarKey(lv.Base)
	if !ok {
		return
	}
	base, had := bctx.Local(baseKey)
	if !had {
		return
	}

	if lv.Dim == nil {
		// Push position: widen the base to a list of the combined element.
		next := a.pushElement(base, value)
		a.invalidateAssigned(baseKey, next, bctx)
		bctx.AssignLocal(baseKey, next)
		return
	}

	key, literal := a.shapeKeyOf(lv.Dim)
	if !literal {
		return
	}
	next := a.withShapeEntry(base, key, value)
	a.invalidateAssigned(baseKey, next, bctx)
	bctx.AssignLocal(baseKey, next)
	if idxKey, ok := a.exprVarKey(lv); ok {
		bctx.SetLocal(idxKey, value)
	}
}

func (a *Analyzer) pushElement(base, value ttype.Union) ttype.Union {
	var out []ttype.Atomic
	for _, at := range base.Atomics {
		switch at.Kind {
		case ttype.KindList:
			if at.List != nil {
				elem := ttype.Combine(a.provider, at.List.Elem, value)
				out = append(out, ttype.MakeNonEmptyList(elem))
				continue
			}
		case ttype.KindKeyedArray:
			out = append(out, at)
			continue
		}
		out = append(out, at)
	}
	if len(out) == 0 {
		out = append(out, ttype.MakeNonEmptyList(value))
	}
	return ttype.NewUnion(out...)
}

func (a *Analyzer) withShapeEntry(base ttype.Union, key ttype.PropertyKey, value ttype.Union) ttype.Union {
	var out []ttype.Atomic
	placed := false
	for _, at := range base.Atomics {
		if at.Kind == ttype.KindKeyedArray && at.Shape != nil {
			entries := make([]ttype.ShapeEntry, 0, len(at.Shape.Entries)+1)
			replaced := false
			for _, entry := range at.Shape.Entries {
				if entry.Key.Equal(key) {
					entries = append(entries, ttype.ShapeEntry{Key: key, Type: value})
					replaced = true
					continue
				}
				entries = append(entries, entry)
			}
			if !replaced {
				entries = append(entries, ttype.ShapeEntry{Key: key, Type: value})
			}
			shape := ttype.MakeShape(entries...)
			shape.Shape.Rest = at.Shape.Rest
			out = append(out, shape)
			placed = true
			continue
		}
		if at.Kind == ttype.KindList && at.List != nil {
			// A literal write converts an empty or unknown list to a shape.
			out = append(out, ttype.MakeShape(ttype.ShapeEntry{Key: key, Type: value}))
			placed = true
			continue
		}
		out = append(out, at)
	}
	if !placed {
		out = append(out, ttype.MakeShape(ttype.ShapeEntry{Key: key, Type: value}))
	}
	return ttype.NewUnion(out...)
}

func (a *Analyzer) analyzePropertyFetch(n *ast.PropertyFetch, bctx *flow.BlockContext) (ttype.Union, error) {
	objType, err := a.analyzeExpr(n.Object, bctx)
	if err != nil {
		return ttype.Union{}, err
	}
	if n.Prop.IsDynamic() {
		if _, err := a.analyzeExpr(n.Prop.Dynam, bctx); err != nil {
			return ttype.Union{}, err
		}
		return ttype.Mixed(), nil
	}

	// A narrowed member key beats the declared type.
	if key, ok := a.exprVarKey(n); ok {
		if t, has := bctx.Local(key); has {
			return t, nil
		}
	}

	res := a.resolve.ResolveProperty(objType, n.Prop.Name, n.Nullsafe, a.scope)
	propName := a.in.MustLookup(n.Prop.Name)
	switch {
	case res.HasNullTarget && !n.Nullsafe:
		code := diag.CodePropertyAccessOnNull
		if res.HasValidTarget {
			a.sink.Report(diag.Warning(code, n.Sp, "->"+propName+" may be read on null"))
		} else {
			a.sink.Report(diag.Error(code, n.Sp, "->"+propName+" is read on null"))
		}
	case res.EncounteredMixed:
		a.sink.Report(diag.Warning(diag.CodeMixedPropertyAccess, n.Sp,
			"->"+propName+" is read on mixed"))
	case res.HasMissingProperty && !res.HasValidTarget:
		a.sink.Report(diag.Error(diag.CodeNonExistentProperty, n.Sp,
			"property "+propName+" does not exist on "+objType.Render(a.in)))
	case res.HasInaccessible:
		a.sink.Report(diag.Error(diag.CodeInaccessibleProperty, n.Sp,
			"property "+propName+" is not accessible from this scope"))
	}

	var types []ttype.Union
	for _, rp := range res.ResolvedProperties {
		a.artifacts.AddSymbolRef(SymbolRef{
			From:   a.scope.Function,
			Class:  rp.Meta.Declaring,
			Member: a.in.Lowered(rp.Meta.Name),
			Span:   n.Sp,
		})
		node := dataflow.PropertyNode(rp.Meta.Declaring, a.in.Lowered(rp.Meta.Name))
		a.artifacts.Graph.AddNode(&dataflow.Node{ID: node, Label: "->" + propName})
		a.exprNodes[n.Sp] = node

		if rp.Meta.Type != nil {
			types = append(types, a.expand(*rp.Meta.Type))
		} else {
			types = append(types, ttype.Mixed())
		}
	}
	if len(types) == 0 {
		return ttype.Mixed(), nil
	}
	t := ttype.CombineMany(a.provider, types...)
	if n.Nullsafe {
		t = ttype.AddOptional(a.provider, t, &nullUnion)
	}
	return t, nil
}

var nullUnion = ttype.Null()

func (a *Analyzer) analyzeStaticPropertyFetch(n *ast.StaticPropertyFetch, bctx *flow.BlockContext) (ttype.Union, error) {
	if n.Class.IsDynamic() || n.Prop.IsDynamic() {
		return ttype.Mixed(), nil
	}
	if key, ok := a.exprVarKey(n); ok {
		if t, has := bctx.Local(key); has {
			return t, nil
		}
	}
	resolved := a.resolve.ResolveClassname(a.module, n.Class, nil, a.scope)
	for _, rc := range resolved {
		if rc.Origin != resolver.OriginNamed && rc.Origin != resolver.OriginStatic {
			continue
		}
		c, ok := a.meta.ClassLikeNamed(rc.FQCN)
		if !ok {
			continue
		}
		if p, ok := c.Properties[a.in.Lowered(n.Prop.Name)]; ok && p.Type != nil {
			return a.expand(*p.Type), nil
		}
	}
	return ttype.Mixed(), nil
}

func (a *Analyzer) analyzeClassConstFetch(n *ast.ClassConstFetch, bctx *flow.BlockContext) (ttype.Union, error) {
	if n.Class.IsDynamic() {
		if _, err := a.analyzeExpr(n.Class.Dynam, bctx); err != nil {
			return ttype.Union{}, err
		}
		return ttype.Mixed(), nil
	}
	candidates := a.resolve.ResolveClassname(a.module, n.Class, nil, a.scope)
	res := a.resolve.ResolveClassConstants(candidates, n.Const.Name, a.scope)

	constName := a.in.MustLookup(n.Const.Name)
	switch {
	case res.MagicClassOnAmbiguous:
		a.sink.Report(diag.Warning(diag.CodeAmbiguousClassReference, n.Sp,
			"::class on an unresolved class string"))
	case res.HasMissingConstant && !res.HasValidTarget:
		a.sink.Report(diag.Error(diag.CodeNonExistentConstant, n.Sp,
			"constant "+constName+" does not exist"))
	case res.HasInaccessible:
		a.sink.Report(diag.Error(diag.CodeInaccessibleConstant, n.Sp,
			"constant "+constName+" is not accessible from this scope"))
	}

	if len(res.Types) == 0 {
		return ttype.Mixed(), nil
	}
	return ttype.CombineMany(a.provider, res.Types...), nil
}

func (a *Analyzer) analyzeIndex(n *ast.Index, bctx *flow.BlockContext) (ttype.Union, error) {
	base, err := a.analyzeExpr(n.Base, bctx)
	if err != nil {
		return ttype.Union{}, err
	}
	if n.Dim == nil {
		return ttype.Mixed(), nil
	}
	if _, err := a.analyzeExpr(n.Dim, bctx); err != nil {
		return ttype.Union{}, err
	}

	if key, ok := a.exprVarKey(n); ok {
		if t, has := bctx.Local(key); has {
			return t, nil
		}
	}

	litKey, hasLitKey := a.shapeKeyOf(n.Dim)
	var out []ttype.Union
	for _, at := range base.Atomics {
		switch at.Kind {
		case ttype.KindList:
			if at.List != nil {
				out = append(out, at.List.Elem)
			}
		case ttype.KindKeyedArray:
			if at.Shape == nil {
				break
			}
			if hasLitKey {
				if entry, found := at.Shape.Entry(litKey); found {
					t := entry.Type
					if entry.Optional {
						t = t.Clone()
						t.PossiblyUndefined = true
					}
					out = append(out, t)
					break
				}
			}
			if at.Shape.Rest != nil {
				out = append(out, at.Shape.Rest.Value)
			}
		case ttype.KindString, ttype.KindNonEmptyString, ttype.KindNumericString:
			out = append(out, ttype.NewUnion(ttype.MakeString()))
		case ttype.KindMixed:
			out = append(out, ttype.Mixed())
		}
	}
	if len(out) == 0 {
		return ttype.Mixed(), nil
	}
	return ttype.CombineMany(a.provider, out...), nil
}

func (a *Analyzer) analyzeTernary(n *ast.Ternary, bctx *flow.BlockContext) (ttype.Union, error) {
	formula, err := a.analyzeCondition(n.Cond, bctx)
	if err != nil {
		return ttype.Union{}, err
	}

	thenCtx := a.enterBranch(bctx, formula)
	var thenType ttype.Union
	if n.Then == nil {
		// Short form: the condition's own (truthy) value is the result.
		condType, _ := a.artifacts.ExprType(n.Cond.Span())
		thenType = condType
		if key, ok := a.exprVarKey(n.Cond); ok {
			if t, has := thenCtx.Local(key); has {
				thenType = t
			}
		}
	} else {
		thenType, err = a.analyzeExpr(n.Then, thenCtx)
		if err != nil {
			return ttype.Union{}, err
		}
	}

	elseCtx := bctx.Clone()
	if negated, ok := clause.NegateFormula(formula, 0); ok {
		elseCtx = a.enterBranch(bctx, negated)
	}
	elseType, err := a.analyzeExpr(n.Else, elseCtx)
	if err != nil {
		return ttype.Union{}, err
	}

	merged := flow.MergeBranches(a.provider, thenCtx, elseCtx)
	merged.FinallyScope = bctx.FinallyScope
	merged.IfBodyContext = bctx.IfBodyContext
	*bctx = *merged
	return ttype.Combine(a.provider, thenType, elseType), nil
}

// analyzeClosure runs the closure body in a child frame seeded with
// captured variables, and returns the closure's inferred signature.
func (a *Analyzer) analyzeClosure(n *ast.Closure, bctx *flow.BlockContext) (ttype.Union, error) {
	child := flow.NewBlockContext(bctx.Scope)

	if n.Arrow {
		// Arrow functions capture the whole enclosing frame by value.
		for k, t := range bctx.Locals {
			child.Locals[k] = t.Clone()
			child.VariablesPossiblyInScope[k] = struct{}{}
		}
	}
	for _, use := range n.Uses {
		key := "$" + a.in.MustLookup(use.Name)
		if use.ByRef {
			// By-reference captures defeat flow tracking; the variable is
			// analyzed as if captured by value.
			a.sink.Report(diag.Warning(diag.CodeByReferenceCapture, use.Sp,
				key+" is captured by reference; treating the capture as by-value"))
		}
		t, ok := bctx.Local(key)
		if !ok {
			a.sink.Report(diag.Error(diag.CodeUndefinedVariable, use.Sp,
				key+" is not defined at the capture site"))
			t = ttype.MixedAnyUnion()
		}
		child.Locals[key] = t.Clone()
		child.VariablesPossiblyInScope[key] = struct{}{}

		if node, ok := a.varNodes[key]; ok {
			capture := dataflow.VarNode(use.Name, use.Sp)
			a.artifacts.Graph.AddNode(&dataflow.Node{ID: capture, Label: key})
			a.artifacts.Graph.AddPath(node, capture, dataflow.PathKind{Kind: dataflow.PathDefault})
		}
	}

	params := make([]ttype.CallableParam, 0, len(n.Params))
	for _, p := range n.Params {
		key := "$" + a.in.MustLookup(p.Name)
		t := ttype.Mixed()
		if p.Type != nil {
			t = a.expand(*p.Type)
		}
		child.AssignLocal(key, t)
		params = append(params, ttype.CallableParam{Type: t, Optional: p.Default != nil, Variadic: p.Variadic})
	}

	if !n.Static && bctx.Scope.Class != source.NoNameID {
		child.AssignLocal(a.thisKey, ttype.NewUnion(ttype.MakeThisObject(bctx.Scope.Class)))
	}

	acc := &returnAcc{}
	a.closureRets = append(a.closureRets, acc)
	err := a.analyzeStmts(n.Body, child)
	a.closureRets = a.closureRets[:len(a.closureRets)-1]
	if err != nil {
		return ttype.Union{}, err
	}

	var ret *ttype.Union
	switch {
	case n.Return != nil:
		expanded := a.expand(*n.Return)
		ret = &expanded
	case acc.has:
		ret = &acc.t
	}
	return ttype.NewUnion(ttype.MakeClosure(params, ret)), nil
}

func (a *Analyzer) analyzeCast(n *ast.Cast, bctx *flow.BlockContext) (ttype.Union, error) {
	if _, err := a.analyzeExpr(n.Operand, bctx); err != nil {
		return ttype.Union{}, err
	}
	switch n.Kind {
	case ast.CastInt:
		return ttype.NewUnion(ttype.MakeInt()), nil
	case ast.CastFloat:
		return ttype.NewUnion(ttype.MakeFloat()), nil
	case ast.CastString:
		return ttype.NewUnion(ttype.MakeString()), nil
	case ast.CastBool:
		return ttype.NewUnion(ttype.MakeBool()), nil
	case ast.CastArray:
		return ttype.NewUnion(ttype.MakeKeyedArray(
			ttype.NewUnion(ttype.MakeArrayKey()), ttype.Mixed())), nil
	case ast.CastObject:
		return ttype.NewUnion(ttype.MakeAnyObject()), nil
	}
	return ttype.Mixed(), nil
}

func (a *Analyzer) analyzeMatch(n *ast.Match, bctx *flow.BlockContext) (ttype.Union, error) {
	if _, err := a.analyzeExpr(n.Subject, bctx); err != nil {
		return ttype.Union{}, err
	}
	subjectKey, hasKey := a.exprVarKey(n.Subject)

	var results []ttype.Union
	for _, arm := range n.Arms {
		ctx := bctx.Clone()
		for _, cond := range arm.Conds {
			if _, err := a.analyzeExpr(cond, ctx); err != nil {
				return ttype.Union{}, err
			}
		}
		if hasKey && len(arm.Conds) == 1 {
			if t, ok := literalType(arm.Conds[0]); ok {
				ctx = a.enterBranch(ctx, []*clause.Clause{
					clause.Single(subjectKey, clause.IsType(t), arm.Sp, true),
				})
			}
		}
		t, err := a.analyzeExpr(arm.Body, ctx)
		if err != nil {
			return ttype.Union{}, err
		}
		results = append(results, t)
	}
	if len(results) == 0 {
		return ttype.Never(), nil
	}
	return ttype.CombineMany(a.provider, results...), nil
}
