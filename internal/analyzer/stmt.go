package analyzer

import (
	"mantis/internal/ast"
	"mantis/internal/clause"
	"mantis/internal/dataflow"
	"mantis/internal/diag"
	"mantis/internal/flow"
	"mantis/internal/source"
	"mantis/internal/ttype"
)

// returnAcc folds the return types observed inside one closure body.
type returnAcc struct {
	t   ttype.Union
	has bool
}

// analyzeStmts runs a statement list. Statements after a terminator are
// reported unreachable once and skipped.
func (a *Analyzer) analyzeStmts(stmts []ast.Stmt, bctx *flow.BlockContext) error {
	for i, stmt := range stmts {
		if bctx.Terminated() {
			if _, isNop := stmt.(*ast.Nop); !isNop {
				sp := stmt.Span()
				if last := stmts[len(stmts)-1]; i < len(stmts)-1 {
					sp = sp.Cover(last.Span())
				}
				a.sink.Report(diag.Warning(diag.CodeUnreachableCode, sp,
					"statements after this point can never execute"))
			}
			return nil
		}
		if err := a.analyzeStmt(stmt, bctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *Analyzer) analyzeStmt(stmt ast.Stmt, bctx *flow.BlockContext) error {
	switch n := stmt.(type) {
	case *ast.ExprStmt:
		_, err := a.analyzeExpr(n.Expr, bctx)
		return err
	case *ast.Block:
		return a.analyzeStmts(n.Stmts, bctx)
	case *ast.If:
		return a.analyzeIf(n, bctx)
	case *ast.While:
		return a.analyzeWhile(n, bctx)
	case *ast.DoWhile:
		return a.analyzeDoWhile(n, bctx)
	case *ast.For:
		return a.analyzeFor(n, bctx)
	case *ast.Foreach:
		return a.analyzeForeach(n, bctx)
	case *ast.Switch:
		return a.analyzeSwitch(n, bctx)
	case *ast.Break:
		a.recordLoopExit(bctx, flow.ActionBreak)
		return nil
	case *ast.Continue:
		a.recordLoopExit(bctx, flow.ActionContinue)
		return nil
	case *ast.Return:
		return a.analyzeReturn(n, bctx)
	case *ast.Throw:
		return a.analyzeThrow(n.Expr, n.Sp, bctx)
	case *ast.Try:
		return a.analyzeTry(n, bctx)
	case *ast.Echo:
		return a.analyzeEcho(n, bctx)
	case *ast.Unset:
		return a.analyzeUnset(n, bctx)
	case *ast.Global:
		for _, v := range n.Vars {
			bctx.AssignLocal("$"+a.in.MustLookup(v.Name), ttype.Mixed())
		}
		return nil
	case *ast.StaticVar:
		return a.analyzeStaticVar(n, bctx)
	case *ast.FunctionDecl, *ast.ClassDecl:
		// Nested declarations were analyzed at the module level.
		return nil
	case *ast.Nop:
		return nil
	}
	return nil
}

// analyzeCondition analyzes a test expression and returns the clause
// formula its truth implies.
func (a *Analyzer) analyzeCondition(cond ast.Expr, bctx *flow.BlockContext) ([]*clause.Clause, error) {
	restore := bctx.EnterFlag(func(f *flow.Flags) { f.InsideConditional = true })
	_, err := a.analyzeExpr(cond, bctx)
	restore()
	if err != nil {
		return nil, err
	}
	return a.buildFormula(cond, bctx), nil
}

// enterBranch clones the context and installs a formula on it.
func (a *Analyzer) enterBranch(bctx *flow.BlockContext, formula []*clause.Clause) *flow.BlockContext {
	branch := bctx.Clone()
	if len(formula) > 0 {
		branch.Clauses = clause.Simplify(append(append([]*clause.Clause(nil), branch.Clauses...), formula...))
		a.applyClauses(formula, branch)
	}
	return branch
}

func (a *Analyzer) analyzeIf(n *ast.If, bctx *flow.BlockContext) error {
	type arm struct {
		cond ast.Expr
		body []ast.Stmt
	}
	arms := make([]arm, 0, 1+len(n.ElseIfs))
	arms = append(arms, arm{n.Cond, n.Then})
	for _, ei := range n.ElseIfs {
		arms = append(arms, arm{ei.Cond, ei.Body})
	}

	var branches []*flow.BlockContext
	var firstThen *flow.BlockContext
	falseCtx := bctx
	for i, am := range arms {
		formula, err := a.analyzeCondition(am.cond, falseCtx)
		if err != nil {
			return err
		}
		thenCtx := a.enterBranch(falseCtx, formula)
		if err := a.analyzeStmts(am.body, thenCtx); err != nil {
			return err
		}
		branches = append(branches, thenCtx)
		if i == 0 {
			firstThen = thenCtx
		}

		negated, ok := clause.NegateFormula(formula, 0)
		next := falseCtx.Clone()
		if ok {
			next = a.enterBranch(falseCtx, negated)
		}
		falseCtx = next
	}

	if n.HasElse {
		if err := a.analyzeStmts(n.Else, falseCtx); err != nil {
			return err
		}
	}
	branches = append(branches, falseCtx)

	merged := branches[0]
	for _, b := range branches[1:] {
		merged = flow.MergeBranches(a.provider, merged, b)
	}
	merged.IfBodyContext = firstThen
	*bctx = *merged
	return nil
}

// runLoop drives the fix-point passes of one loop body. pass analyzes
// header and body on a fresh clone each round.
func (a *Analyzer) runLoop(bctx *flow.BlockContext, bounds flow.Bounds, pass func(*flow.BlockContext) error) (*flow.LoopScope, *flow.BlockContext, error) {
	loop := flow.NewLoopScope(bctx)
	a.loops = append(a.loops, loop)
	defer func() { a.loops = a.loops[:len(a.loops)-1] }()

	var last *flow.BlockContext
	for i := 0; i < a.opts.LoopPasses; i++ {
		ctx := bctx.Clone()
		loop.ApplyApproximation(ctx)
		ctx.Flags.InsideLoop = true
		ctx.LoopBounds = bounds
		ctx.BreakTypes = append(append([]flow.BreakScope(nil), ctx.BreakTypes...), flow.BreakScopeLoop)

		before := ctx.Clone()
		if err := pass(ctx); err != nil {
			return nil, nil, err
		}
		last = ctx
		if !loop.RecordPass(a.provider, before, ctx) && i+1 >= flow.MinLoopPasses {
			break
		}
	}
	return loop, last, nil
}

func (a *Analyzer) analyzeWhile(n *ast.While, bctx *flow.BlockContext) error {
	condSp := n.Cond.Span()
	var formula []*clause.Clause
	start := bctx.Clone()

	loop, last, err := a.runLoop(bctx, flow.Bounds{Start: condSp.Start, End: condSp.End}, func(ctx *flow.BlockContext) error {
		f, err := a.analyzeCondition(n.Cond, ctx)
		if err != nil {
			return err
		}
		formula = f
		*ctx = *a.enterBranch(ctx, f)
		return a.analyzeStmts(n.Body, ctx)
	})
	if err != nil {
		return err
	}

	hasLeaving := last != nil && last.Terminated()
	if last != nil {
		bctx.UpdateFrom(a.provider, start, last, hasLeaving, loop.AssignedInBody)
	}
	bctx.RemoveClausesForAssigned(loop.AssignedInBody)
	if negated, ok := clause.NegateFormula(formula, 0); ok {
		*bctx = *a.enterBranch(bctx, negated)
	}
	loop.MergeExitState(a.provider, bctx)
	return nil
}

func (a *Analyzer) analyzeDoWhile(n *ast.DoWhile, bctx *flow.BlockContext) error {
	condSp := n.Cond.Span()

	loop, last, err := a.runLoop(bctx, flow.Bounds{Start: condSp.Start, End: condSp.End}, func(ctx *flow.BlockContext) error {
		if err := a.analyzeStmts(n.Body, ctx); err != nil {
			return err
		}
		_, err := a.analyzeCondition(n.Cond, ctx)
		return err
	})
	if err != nil {
		return err
	}

	// The body runs at least once; its outcome flows out directly.
	if last != nil {
		for key := range loop.AssignedInBody {
			if t, ok := last.Locals[key]; ok {
				bctx.SetLocal(key, t)
			}
		}
	}
	bctx.RemoveClausesForAssigned(loop.AssignedInBody)
	formula, err := a.analyzeCondition(n.Cond, bctx)
	if err != nil {
		return err
	}
	if negated, ok := clause.NegateFormula(formula, 0); ok {
		*bctx = *a.enterBranch(bctx, negated)
	}
	loop.MergeExitState(a.provider, bctx)
	return nil
}

func (a *Analyzer) analyzeFor(n *ast.For, bctx *flow.BlockContext) error {
	if len(n.Init) > 0 {
		bctx.ForLoopInitBounds = flow.Bounds{
			Start: n.Init[0].Span().Start,
			End:   n.Init[len(n.Init)-1].Span().End,
		}
		for _, e := range n.Init {
			if _, err := a.analyzeExpr(e, bctx); err != nil {
				return err
			}
		}
	}

	bounds := flow.Bounds{Start: n.Sp.Start, End: n.Sp.End}
	if len(n.Cond) > 0 {
		bounds = flow.Bounds{Start: n.Cond[0].Span().Start, End: n.Cond[len(n.Cond)-1].Span().End}
	}
	var formula []*clause.Clause
	start := bctx.Clone()

	loop, last, err := a.runLoop(bctx, bounds, func(ctx *flow.BlockContext) error {
		restore := ctx.EnterFlag(func(f *flow.Flags) { f.InsideLoopExpressions = true })
		for i, cond := range n.Cond {
			f, err := a.analyzeCondition(cond, ctx)
			if err != nil {
				restore()
				return err
			}
			if i == len(n.Cond)-1 {
				formula = f
			}
			*ctx = *a.enterBranch(ctx, f)
		}
		restore()
		if err := a.analyzeStmts(n.Body, ctx); err != nil {
			return err
		}
		for _, e := range n.Update {
			if _, err := a.analyzeExpr(e, ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	hasLeaving := last != nil && last.Terminated()
	if last != nil {
		bctx.UpdateFrom(a.provider, start, last, hasLeaving, loop.AssignedInBody)
	}
	bctx.RemoveClausesForAssigned(loop.AssignedInBody)
	if negated, ok := clause.NegateFormula(formula, 0); ok {
		*bctx = *a.enterBranch(bctx, negated)
	}
	loop.MergeExitState(a.provider, bctx)
	return nil
}

func (a *Analyzer) analyzeForeach(n *ast.Foreach, bctx *flow.BlockContext) error {
	subject, err := a.analyzeExpr(n.Subject, bctx)
	if err != nil {
		return err
	}
	keyType, valueType := a.iterationTypes(subject)

	seed := func(ctx *flow.BlockContext) {
		if v, ok := n.ValueVar.(*ast.Variable); ok {
			t := valueType
			if n.ByRef {
				t = ttype.Mixed()
			}
			ctx.AssignLocal(a.varName(v.Name), t)
		}
		if n.KeyVar != nil {
			if k, ok := n.KeyVar.(*ast.Variable); ok {
				ctx.AssignLocal(a.varName(k.Name), keyType)
			}
		}
	}

	start := bctx.Clone()
	subjSp := n.Subject.Span()
	loop, last, err := a.runLoop(bctx, flow.Bounds{Start: subjSp.Start, End: subjSp.End}, func(ctx *flow.BlockContext) error {
		seed(ctx)
		return a.analyzeStmts(n.Body, ctx)
	})
	if err != nil {
		return err
	}

	hasLeaving := last != nil && last.Terminated()
	if last != nil {
		assigned := map[string]struct{}{}
		for k := range loop.AssignedInBody {
			assigned[k] = struct{}{}
		}
		bctx.UpdateFrom(a.provider, start, last, hasLeaving, assigned)
		bctx.RemoveClausesForAssigned(assigned)
	}

	// Iteration variables survive the loop, possibly undefined when the
	// subject may be empty.
	markLoopVar := func(e ast.Expr, t ttype.Union) {
		v, ok := e.(*ast.Variable)
		if !ok {
			return
		}
		key := a.varName(v.Name)
		if have, exists := bctx.Local(key); exists {
			bctx.SetLocal(key, ttype.Combine(a.provider, have, t))
			return
		}
		u := t.Clone()
		u.PossiblyUndefined = true
		bctx.AssignLocal(key, u)
	}
	markLoopVar(n.ValueVar, valueType)
	if n.KeyVar != nil {
		markLoopVar(n.KeyVar, keyType)
	}
	loop.MergeExitState(a.provider, bctx)
	return nil
}

func (a *Analyzer) analyzeSwitch(n *ast.Switch, bctx *flow.BlockContext) error {
	if _, err := a.analyzeExpr(n.Subject, bctx); err != nil {
		return err
	}
	subjectKey, hasKey := a.exprVarKey(n.Subject)

	hasDefault := false
	var branches []*flow.BlockContext
	for _, sc := range n.Cases {
		ctx := bctx.Clone()
		ctx.BreakTypes = append(append([]flow.BreakScope(nil), ctx.BreakTypes...), flow.BreakScopeSwitch)
		if sc.Cond == nil {
			hasDefault = true
		} else {
			if _, err := a.analyzeExpr(sc.Cond, ctx); err != nil {
				return err
			}
			if hasKey {
				if t, ok := literalType(sc.Cond); ok {
					formula := []*clause.Clause{clause.Single(subjectKey, clause.IsType(t), sc.Sp, true)}
					ctx = a.enterBranch(ctx, formula)
				}
			}
		}
		if err := a.analyzeStmts(sc.Body, ctx); err != nil {
			return err
		}
		// Break exits the case; clear the action so the merge treats the
		// branch as live.
		delete(ctx.ControlActions, flow.ActionBreak)
		branches = append(branches, ctx)
	}

	if len(branches) == 0 {
		return nil
	}
	merged := branches[0]
	for _, b := range branches[1:] {
		merged = flow.MergeBranches(a.provider, merged, b)
	}
	if !hasDefault {
		merged = flow.MergeBranches(a.provider, merged, bctx)
	}
	*bctx = *merged
	return nil
}

func (a *Analyzer) recordLoopExit(bctx *flow.BlockContext, action flow.ControlAction) {
	if len(a.loops) > 0 && action == flow.ActionBreak {
		if len(bctx.BreakTypes) == 0 || bctx.BreakTypes[len(bctx.BreakTypes)-1] == flow.BreakScopeLoop {
			a.loops[len(a.loops)-1].RecordBreak(bctx)
		}
	}
	bctx.RecordAction(action)
}

func (a *Analyzer) analyzeReturn(n *ast.Return, bctx *flow.BlockContext) error {
	ret := ttype.NewUnion(ttype.MakeVoid())
	if n.Expr != nil {
		restore := bctx.EnterFlag(func(f *flow.Flags) { f.InsideReturn = true })
		t, err := a.analyzeExpr(n.Expr, bctx)
		restore()
		if err != nil {
			return err
		}
		ret = t

		if node, ok := a.exprNodes[n.Expr.Span()]; ok {
			retNode := dataflow.CallNode(a.scope.Function.Class, a.scope.Function.Method)
			a.artifacts.Graph.AddNode(&dataflow.Node{ID: retNode, Label: "return"})
			a.artifacts.Graph.AddPath(node, retNode, dataflow.PathKind{Kind: dataflow.PathReturn})
		}
	}
	if k := len(a.closureRets); k > 0 {
		acc := a.closureRets[k-1]
		if acc.has {
			acc.t = ttype.Combine(a.provider, acc.t, ret)
		} else {
			acc.t, acc.has = ret, true
		}
	} else {
		a.artifacts.AddInferredReturn(a.provider, a.scope.Function, ret)
		a.checkDeclaredReturn(n, ret, bctx)
	}

	if bctx.FinallyScope != nil {
		bctx.FinallyScope.Deposit(a.provider, bctx)
	}
	bctx.RecordAction(flow.ActionReturn)
	return nil
}

// checkDeclaredReturn compares a return value against the declared
// return type, when one exists.
func (a *Analyzer) checkDeclaredReturn(n *ast.Return, ret ttype.Union, bctx *flow.BlockContext) {
	meta, ok := a.meta.FunctionLike(a.scope.Function)
	if !ok || meta.Return == nil {
		return
	}
	declared := a.expand(*meta.Return)
	if declared.HasMixed() || ret.HasMixed() {
		return
	}
	if !ttype.Contains(a.provider, declared, ret) {
		sp := n.Sp
		if n.Expr != nil {
			sp = n.Expr.Span()
		}
		a.sink.Report(diag.Error(diag.CodeInvalidReturnStatement, sp,
			"cannot return "+ret.Render(a.in)+" where "+declared.Render(a.in)+" is declared"))
	}
}

func (a *Analyzer) analyzeThrow(expr ast.Expr, sp source.Span, bctx *flow.BlockContext) error {
	restore := bctx.EnterFlag(func(f *flow.Flags) { f.InsideThrow = true })
	t, err := a.analyzeExpr(expr, bctx)
	restore()
	if err != nil {
		return err
	}
	for _, at := range t.Atomics {
		if at.Kind == ttype.KindObject && at.Object != nil && at.Object.Name != source.NoNameID {
			bctx.RecordPossiblyThrown(a.in.Lowered(at.Object.Name), sp)
		}
	}
	if bctx.FinallyScope != nil {
		bctx.FinallyScope.Deposit(a.provider, bctx)
	}
	bctx.RecordAction(flow.ActionEnd)
	return nil
}

func (a *Analyzer) analyzeTry(n *ast.Try, bctx *flow.BlockContext) error {
	tryCtx := bctx.Clone()
	restore := tryCtx.EnterFlag(func(f *flow.Flags) { f.InsideTry = true })
	if n.Finally != nil {
		tryCtx.FinallyScope = flow.NewFinallyScope()
	}
	err := a.analyzeStmts(n.Body, tryCtx)
	restore()
	if err != nil {
		return err
	}

	// A catch may run after any prefix of the try body: its entry state
	// is the merge of the pre-try and post-try frames.
	catchEntry := flow.MergeBranches(a.provider, bctx, tryCtx)

	var caught []ttype.Union
	branches := []*flow.BlockContext{tryCtx}
	for _, c := range n.Catches {
		cctx := catchEntry.Clone()
		cctx.FinallyScope = tryCtx.FinallyScope

		t := a.catchType(c, caught)
		caught = append(caught, t)
		if c.Var != source.NoNameID {
			cctx.AssignLocal("$"+a.in.MustLookup(c.Var), t)
		}
		a.clearCaught(cctx, t)

		if err := a.analyzeStmts(c.Body, cctx); err != nil {
			return err
		}
		branches = append(branches, cctx)
	}

	merged := branches[0]
	for _, b := range branches[1:] {
		merged = flow.MergeBranches(a.provider, merged, b)
	}

	if n.Finally != nil {
		fscope := tryCtx.FinallyScope
		fscope.Deposit(a.provider, merged)

		finCtx := merged.Clone()
		finCtx.FinallyScope = nil
		fscope.ApplyTo(finCtx)
		if err := a.analyzeStmts(n.Finally, finCtx); err != nil {
			return err
		}
		merged = finCtx
	}
	merged.FinallyScope = bctx.FinallyScope
	*bctx = *merged
	return nil
}

// catchType builds the caught union: the listed classes minus what
// earlier catch arms already took.
func (a *Analyzer) catchType(c ast.Catch, caught []ttype.Union) ttype.Union {
	atomics := make([]ttype.Atomic, 0, len(c.Types))
	for _, ref := range c.Types {
		name := ref.Name
		if rn, ok := a.module.ResolveName(ref.Sp.Start); ok {
			name = rn.FQN
		}
		atomics = append(atomics, ttype.MakeNamedObject(name))
	}
	if len(atomics) == 0 {
		return ttype.NewUnion(ttype.MakeAnyObject())
	}
	t := ttype.NewUnion(atomics...)
	for _, prior := range caught {
		t = ttype.Subtract(a.provider, t, prior)
	}
	return t
}

// clearCaught drops pending exceptions a catch arm handles.
func (a *Analyzer) clearCaught(ctx *flow.BlockContext, t ttype.Union) {
	for cls := range ctx.PossiblyThrownExceptions {
		for _, at := range t.Atomics {
			if at.Kind != ttype.KindObject || at.Object == nil || at.Object.Name == source.NoNameID {
				continue
			}
			handler := a.in.Lowered(at.Object.Name)
			if cls == handler || a.provider.IsInstanceOf(cls, handler) {
				delete(ctx.PossiblyThrownExceptions, cls)
				break
			}
		}
	}
}

func (a *Analyzer) analyzeEcho(n *ast.Echo, bctx *flow.BlockContext) error {
	var sinkNode dataflow.NodeID
	if a.opts.Taint {
		sinkNode = dataflow.TaintSinkNode(a.in.Intern("echo"), n.Sp)
		a.artifacts.Graph.AddNode(&dataflow.Node{
			ID:       sinkNode,
			Label:    "echo",
			Requires: []dataflow.TaintLabel{dataflow.TaintHTML},
		})
	}
	for _, e := range n.Args {
		if _, err := a.analyzeExpr(e, bctx); err != nil {
			return err
		}
		if a.opts.Taint {
			if node, ok := a.exprNodes[e.Span()]; ok {
				a.artifacts.Graph.AddPath(node, sinkNode, dataflow.PathKind{Kind: dataflow.PathArgument})
			}
		}
	}
	return nil
}

func (a *Analyzer) analyzeUnset(n *ast.Unset, bctx *flow.BlockContext) error {
	restore := bctx.EnterFlag(func(f *flow.Flags) { f.InsideUnset = true })
	defer restore()
	for _, v := range n.Vars {
		if _, err := a.analyzeExpr(v, bctx); err != nil {
			return err
		}
		key, ok := a.exprVarKey(v)
		if !ok {
			continue
		}
		existing, had := bctx.Local(key)
		var existingPtr *ttype.Union
		if had {
			existingPtr = &existing
		}
		bctx.RemoveDescendants(key, existingPtr, nil, a.recon.ConsistentWith)
		bctx.RemoveVariableFromConflictingClauses(key, nil, a.recon.ConsistentWith)
		bctx.RemoveLocal(key)
	}
	return nil
}

func (a *Analyzer) analyzeStaticVar(n *ast.StaticVar, bctx *flow.BlockContext) error {
	key := "$" + a.in.MustLookup(n.Name)
	bctx.StaticLocals[key] = struct{}{}
	t := ttype.Mixed()
	if n.Default != nil {
		dt, err := a.analyzeExpr(n.Default, bctx)
		if err != nil {
			return err
		}
		// Later calls may observe any prior value; widen literals.
		t = ttype.Combine(a.provider, dt, ttype.Mixed())
	}
	bctx.AssignLocal(key, t)
	return nil
}

// iterationTypes derives the key and value types foreach binds.
func (a *Analyzer) iterationTypes(subject ttype.Union) (key, value ttype.Union) {
	var keys, values []ttype.Union
	for _, at := range subject.Atomics {
		switch at.Kind {
		case ttype.KindList:
			if at.List != nil {
				keys = append(keys, ttype.NewUnion(ttype.MakeInt()))
				values = append(values, at.List.Elem)
			}
		case ttype.KindKeyedArray:
			if at.Shape != nil {
				for _, entry := range at.Shape.Entries {
					keys = append(keys, ttype.NewUnion(ttype.MakeArrayKey()))
					values = append(values, entry.Type)
				}
				if at.Shape.Rest != nil {
					keys = append(keys, at.Shape.Rest.Key)
					values = append(values, at.Shape.Rest.Value)
				}
			}
		case ttype.KindIterable:
			if at.Iterable != nil {
				keys = append(keys, at.Iterable.Key)
				values = append(values, at.Iterable.Value)
			}
		case ttype.KindObject, ttype.KindMixed:
			keys = append(keys, ttype.Mixed())
			values = append(values, ttype.Mixed())
		}
	}
	if len(keys) == 0 {
		return ttype.Mixed(), ttype.Mixed()
	}
	return ttype.CombineMany(a.provider, keys...), ttype.CombineMany(a.provider, values...)
}
