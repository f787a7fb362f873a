package analyzer

import (
	"strconv"

	"mantis/internal/ast"
	"mantis/internal/codebase"
	"mantis/internal/dataflow"
	"mantis/internal/diag"
	"mantis/internal/flow"
	"mantis/internal/resolver"
	"mantis/internal/source"
	"mantis/internal/ttype"
)

func (a *Analyzer) analyzeArgs(args []ast.Arg, bctx *flow.BlockContext) ([]ttype.Union, error) {
	restore := bctx.EnterFlag(func(f *flow.Flags) { f.InsideCall = true })
	defer restore()
	out := make([]ttype.Union, 0, len(args))
	for _, arg := range args {
		t, err := a.analyzeExpr(arg.Value, bctx)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (a *Analyzer) analyzeCall(n *ast.Call, bctx *flow.BlockContext) (ttype.Union, error) {
	callee, named := n.Callee.(*ast.FuncName)
	if !named {
		return a.analyzeDynamicCall(n, bctx)
	}
	fnID := a.in.Lowered(callee.Name)
	id := codebase.MethodID{Method: fnID}
	meta, known := a.meta.FunctionLike(id)

	args, err := a.analyzeArgs(n.Args, bctx)
	if err != nil {
		return ttype.Union{}, err
	}

	if _, builtin := a.typeCheckers[fnID]; builtin {
		return ttype.NewUnion(ttype.MakeBool()), nil
	}
	if !known {
		a.sink.Report(diag.Error(diag.CodeNonExistentFunction, callee.Sp,
			"function "+a.in.MustLookup(callee.Name)+" does not exist"))
		return ttype.MixedAnyUnion(), nil
	}

	a.checkArguments(meta, n.Args, args, n.Sp)
	a.recordCallEffects(meta, bctx)
	a.wireCallGraph(meta, id, n.Sp, n.Args)

	if meta.Return != nil {
		return a.expand(*meta.Return), nil
	}
	return ttype.Mixed(), nil
}

// analyzeDynamicCall handles $fn(...) and (expr)(...).
func (a *Analyzer) analyzeDynamicCall(n *ast.Call, bctx *flow.BlockContext) (ttype.Union, error) {
	calleeType, err := a.analyzeExpr(n.Callee, bctx)
	if err != nil {
		return ttype.Union{}, err
	}
	if _, err := a.analyzeArgs(n.Args, bctx); err != nil {
		return ttype.Union{}, err
	}
	// A dynamic callee may be impure.
	bctx.RemoveMutableObjectVars()

	var results []ttype.Union
	for _, at := range calleeType.Atomics {
		if at.Kind == ttype.KindCallable && at.Callable != nil && at.Callable.Return != nil {
			results = append(results, *at.Callable.Return)
		}
	}
	if len(results) == 0 {
		return ttype.Mixed(), nil
	}
	return ttype.CombineMany(a.provider, results...), nil
}

func (a *Analyzer) analyzeMethodCall(n *ast.MethodCall, bctx *flow.BlockContext) (ttype.Union, error) {
	objType, err := a.analyzeExpr(n.Object, bctx)
	if err != nil {
		return ttype.Union{}, err
	}
	if n.Method.IsDynamic() {
		if _, err := a.analyzeExpr(n.Method.Dynam, bctx); err != nil {
			return ttype.Union{}, err
		}
		if _, err := a.analyzeArgs(n.Args, bctx); err != nil {
			return ttype.Union{}, err
		}
		bctx.RemoveMutableObjectVars()
		return ttype.Mixed(), nil
	}

	res := a.resolve.ResolveMethodTargets(objType, []source.NameID{n.Method.Name}, n.Nullsafe, a.scope)
	methodName := a.in.MustLookup(n.Method.Name)
	switch {
	case res.HasNullTarget && !n.Nullsafe:
		if res.HasValidTarget {
			a.sink.Report(diag.Warning(diag.CodePossibleMethodAccessOnNull, n.Sp,
				"->"+methodName+"() may be called on null"))
		} else {
			a.sink.Report(diag.Error(diag.CodeMethodAccessOnNull, n.Sp,
				"->"+methodName+"() is called on null"))
		}
	case res.EncounteredMixed:
		a.sink.Report(diag.Warning(diag.CodeMixedMethodAccess, n.Sp,
			"->"+methodName+"() is called on mixed"))
	case res.EncounteredNonObject:
		a.sink.Report(diag.Error(diag.CodeScalarMethodAccess, n.Sp,
			"->"+methodName+"() is called on a non-object"))
	case res.HasMissingMethod && !res.HasValidTarget:
		a.sink.Report(diag.Error(diag.CodeNonExistentMethod, n.Sp,
			"method "+methodName+" does not exist on "+objType.Render(a.in)))
	case res.HasInaccessible:
		a.sink.Report(diag.Error(diag.CodeInaccessibleMethod, n.Sp,
			"method "+methodName+" is not accessible from this scope"))
	}

	args, err := a.analyzeArgs(n.Args, bctx)
	if err != nil {
		return ttype.Union{}, err
	}

	var results []ttype.Union
	for _, rm := range res.ResolvedMethods {
		a.artifacts.AddSymbolRef(SymbolRef{
			From:   a.scope.Function,
			Class:  rm.ID.Class,
			Member: rm.ID.Method,
			Span:   n.Sp,
		})
		a.checkArguments(rm.Meta, n.Args, args, n.Sp)
		a.recordCallEffects(rm.Meta, bctx)
		a.wireCallGraph(rm.Meta, rm.ID, n.Sp, n.Args)

		if rm.Meta.Return != nil {
			results = append(results, a.expandWith(*rm.Meta.Return, res.Templates))
		}
	}

	var out ttype.Union
	if len(results) == 0 {
		out = ttype.Mixed()
	} else {
		out = ttype.CombineMany(a.provider, results...)
	}
	if n.Nullsafe && objType.IsNullable() {
		out = ttype.AddOptional(a.provider, out, &nullUnion)
	}
	return out, nil
}

func (a *Analyzer) analyzeStaticCall(n *ast.StaticCall, bctx *flow.BlockContext) (ttype.Union, error) {
	if n.Class.IsDynamic() || n.Method.IsDynamic() {
		if n.Class.IsDynamic() {
			if _, err := a.analyzeExpr(n.Class.Dynam, bctx); err != nil {
				return ttype.Union{}, err
			}
		}
		if _, err := a.analyzeArgs(n.Args, bctx); err != nil {
			return ttype.Union{}, err
		}
		bctx.RemoveMutableObjectVars()
		return ttype.Mixed(), nil
	}

	candidates := a.resolve.ResolveClassname(a.module, n.Class, nil, a.scope)
	args, err := a.analyzeArgs(n.Args, bctx)
	if err != nil {
		return ttype.Union{}, err
	}

	methodID := a.in.Lowered(n.Method.Name)
	methodName := a.in.MustLookup(n.Method.Name)
	var results []ttype.Union
	found := false
	for _, rc := range candidates {
		if rc.FQCN == source.NoNameID {
			continue
		}
		meta, ok := a.meta.DeclaringMethod(a.in.Lowered(rc.FQCN), methodID)
		if !ok {
			continue
		}
		id := meta.ID
		found = true
		if !a.resolve.CanAccess(meta.Visibility, id.Class, a.scope) {
			a.sink.Report(diag.Error(diag.CodeInaccessibleMethod, n.Sp,
				"method "+methodName+" is not accessible from this scope"))
			continue
		}
		a.artifacts.AddSymbolRef(SymbolRef{
			From:   a.scope.Function,
			Class:  id.Class,
			Member: id.Method,
			Span:   n.Sp,
		})
		a.checkArguments(meta, n.Args, args, n.Sp)
		a.recordCallEffects(meta, bctx)
		a.wireCallGraph(meta, id, n.Sp, n.Args)
		if meta.Return != nil {
			results = append(results, a.expand(*meta.Return))
		}
	}
	if !found && len(candidates) > 0 {
		ambiguous := false
		for _, rc := range candidates {
			if rc.Origin.Ambiguous() {
				ambiguous = true
			}
		}
		if !ambiguous {
			a.sink.Report(diag.Error(diag.CodeNonExistentMethod, n.Sp,
				"static method "+methodName+" does not exist"))
		}
	}
	if len(results) == 0 {
		return ttype.Mixed(), nil
	}
	return ttype.CombineMany(a.provider, results...), nil
}

func (a *Analyzer) analyzeNew(n *ast.New, bctx *flow.BlockContext) (ttype.Union, error) {
	args, err := a.analyzeArgs(n.Args, bctx)
	if err != nil {
		return ttype.Union{}, err
	}

	if n.Class.IsDynamic() {
		inferred, err := a.analyzeExpr(n.Class.Dynam, bctx)
		if err != nil {
			return ttype.Union{}, err
		}
		candidates := a.resolve.ResolveClassname(a.module, n.Class, &inferred, a.scope)
		return a.instantiate(candidates, n, args, bctx), nil
	}
	candidates := a.resolve.ResolveClassname(a.module, n.Class, nil, a.scope)
	return a.instantiate(candidates, n, args, bctx), nil
}

func (a *Analyzer) instantiate(candidates []resolver.ResolvedClassname, n *ast.New, args []ttype.Union, bctx *flow.BlockContext) ttype.Union {
	var atomics []ttype.Atomic
	for _, rc := range candidates {
		if rc.FQCN == source.NoNameID {
			continue
		}
		lowered := a.in.Lowered(rc.FQCN)
		c, ok := a.meta.ClassLike(lowered)
		if !ok {
			a.sink.Report(diag.Error(diag.CodeNonExistentClass, n.Sp,
				"class "+a.in.MustLookup(rc.FQCN)+" does not exist"))
			continue
		}
		if ctorID, ok := c.DeclaringMethodIDs[a.ctorName()]; ok {
			if meta, ok := a.meta.FunctionLike(ctorID); ok {
				a.checkArguments(meta, n.Args, args, n.Sp)
				a.recordCallEffects(meta, bctx)
			}
		}
		atomics = append(atomics, ttype.MakeNamedObject(rc.FQCN))
	}
	if len(atomics) == 0 {
		return ttype.NewUnion(ttype.MakeAnyObject())
	}
	return ttype.NewUnion(atomics...)
}

func (a *Analyzer) ctorName() source.NameID {
	return a.in.Lowered(a.in.Intern("__construct"))
}

// checkArguments compares call arguments to the target's parameters.
func (a *Analyzer) checkArguments(meta *codebase.FunctionLikeMetadata, args []ast.Arg, argTypes []ttype.Union, callSp source.Span) {
	for i, at := range argTypes {
		param, ok := paramAt(meta.Params, i)
		if !ok {
			break
		}
		if param.Type == nil {
			continue
		}
		declared := a.expand(*param.Type)
		if declared.HasMixed() {
			continue
		}
		sp := callSp
		if i < len(args) {
			sp = args[i].Value.Span()
		}

		if a.checkCallableArgument(declared, at, sp) {
			continue
		}
		switch {
		case at.HasMixed():
			a.sink.Report(diag.Warning(diag.CodeMixedArgument, sp,
				"argument "+paramLabel(a.in, param, i)+" receives mixed where "+declared.Render(a.in)+" is expected"))
		case ttype.Contains(a.provider, declared, at):
		case ttype.Intersects(a.provider, declared, at):
			a.sink.Report(diag.Warning(diag.CodePossiblyInvalidArgument, sp,
				at.Render(a.in)+" may not be assignable to "+declared.Render(a.in)))
		default:
			a.sink.Report(diag.Error(diag.CodeInvalidArgument, sp,
				at.Render(a.in)+" is not assignable to "+declared.Render(a.in)))
		}
	}
}

// checkCallableArgument gives closure literals a deeper check against a
// callable parameter: the closure's inferred return must satisfy the
// annotation's return. Reports and returns true when it handled the pair.
func (a *Analyzer) checkCallableArgument(declared, arg ttype.Union, sp source.Span) bool {
	dc, ok := declared.Single()
	if !ok || dc.Kind != ttype.KindCallable || dc.Callable == nil || dc.Callable.Return == nil {
		return false
	}
	ac, ok := arg.Single()
	if !ok || ac.Kind != ttype.KindCallable || ac.Callable == nil || ac.Callable.Return == nil {
		return false
	}
	wantRet := a.expand(*dc.Callable.Return)
	haveRet := *ac.Callable.Return
	if wantRet.HasMixed() || haveRet.HasMixed() {
		return true
	}
	if !ttype.Contains(a.provider, wantRet, haveRet) {
		a.sink.Report(diag.Error(diag.CodeInvalidArgument, sp,
			"closure returns "+haveRet.Render(a.in)+" but "+wantRet.Render(a.in)+" is required"))
	}
	return true
}

// recordCallEffects applies the callee's side effects to the context.
func (a *Analyzer) recordCallEffects(meta *codebase.FunctionLikeMetadata, bctx *flow.BlockContext) {
	if !meta.Pure {
		bctx.RemoveMutableObjectVars()
	}
	if bctx.Flags.InsideTry {
		// Any call inside try may throw; the class is unknown.
		bctx.RecordPossiblyThrown(source.NoNameID, meta.Span)
	}
}

// wireCallGraph threads the call through the data-flow graph: argument
// edges into parameters, the return node as the call's value, and taint
// endpoints when the callee is marked.
func (a *Analyzer) wireCallGraph(meta *codebase.FunctionLikeMetadata, id codebase.MethodID, callSp source.Span, args []ast.Arg) {
	spec := dataflow.SpecializedCallNode(id.Class, id.Method, callSp)
	a.artifacts.Graph.AddNode(&dataflow.Node{ID: spec, Label: a.in.MustLookup(meta.Name) + "()"})
	a.exprNodes[callSp] = spec

	ret := dataflow.CallNode(id.Class, id.Method)
	a.artifacts.Graph.AddNode(&dataflow.Node{ID: ret, Label: a.in.MustLookup(meta.Name)})
	a.artifacts.Graph.AddPath(ret, spec, dataflow.PathKind{Kind: dataflow.PathReturn})

	for i, arg := range args {
		from, ok := a.exprNodes[arg.Value.Span()]
		if !ok {
			continue
		}
		param := dataflow.ParameterNode(id.Class, id.Method, i)
		a.artifacts.Graph.AddNode(&dataflow.Node{ID: param, Label: "#" + strconv.Itoa(i)})
		a.artifacts.Graph.AddPath(from, param, dataflow.PathKind{Kind: dataflow.PathArgument})

		if meta.Sanitizes {
			a.artifacts.Graph.AddPath(from, spec, dataflow.PathKind{Kind: dataflow.PathSanitize, Label: dataflow.TaintNone})
		}
		if meta.TaintSink {
			sink := dataflow.TaintSinkNode(id.Method, meta.Span)
			a.artifacts.Graph.AddNode(&dataflow.Node{
				ID:       sink,
				Label:    a.in.MustLookup(meta.Name),
				Requires: []dataflow.TaintLabel{dataflow.TaintUserInput},
			})
			a.artifacts.Graph.AddPath(from, sink, dataflow.PathKind{Kind: dataflow.PathArgument})
		}
	}

	if meta.TaintSource {
		src := dataflow.TaintSourceNode(id.Method, callSp)
		a.artifacts.Graph.AddNode(&dataflow.Node{
			ID:    src,
			Label: a.in.MustLookup(meta.Name),
			Taint: dataflow.TaintUserInput,
		})
		a.artifacts.Graph.AddPath(src, spec, dataflow.PathKind{Kind: dataflow.PathDefault})
	}
}

func (a *Analyzer) expandWith(t ttype.Union, templates map[ttype.TemplateKey]ttype.Union) ttype.Union {
	opts := ttype.ExpandOptions{
		SelfName:   a.selfName,
		ParentName: a.parentName,
		StaticName: a.staticName,
		Templates:  templates,
	}
	if a.scope.Class != source.NoNameID {
		opts.SelfClass = a.scope.Class
		opts.StaticClass = a.scope.Class
		if parent, ok := a.provider.ParentOf(a.scope.Class); ok {
			opts.ParentClass = parent
		}
	}
	return ttype.ExpandUnion(a.provider, t, opts)
}

func paramAt(params []codebase.ParamMetadata, i int) (codebase.ParamMetadata, bool) {
	if i < len(params) {
		return params[i], true
	}
	if n := len(params); n > 0 && params[n-1].Variadic {
		return params[n-1], true
	}
	return codebase.ParamMetadata{}, false
}

func paramLabel(in *source.Interner, p codebase.ParamMetadata, i int) string {
	if name, ok := in.Lookup(p.Name); ok && name != "" {
		return "$" + name
	}
	return "#" + strconv.Itoa(i+1)
}
