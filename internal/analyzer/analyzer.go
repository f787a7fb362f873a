// Package analyzer walks module ASTs, threading a BlockContext through
// every statement and expression. It narrows types via the reconciler,
// resolves members via the resolver, and reports through a collector.
package analyzer

import (
	"context"
	"fmt"

	"mantis/internal/ast"
	"mantis/internal/clause"
	"mantis/internal/codebase"
	"mantis/internal/collector"
	"mantis/internal/dataflow"
	"mantis/internal/diag"
	"mantis/internal/flow"
	"mantis/internal/reconciler"
	"mantis/internal/resolver"
	"mantis/internal/source"
	"mantis/internal/ttype"
)

// AnalysisError is a fatal internal failure of one function-like.
// Diagnostics are not errors; this is reserved for broken invariants.
type AnalysisError struct {
	Span source.Span
	Msg  string
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis error at %s: %s", e.Span, e.Msg)
}

func analysisErrorf(sp source.Span, format string, args ...any) *AnalysisError {
	return &AnalysisError{Span: sp, Msg: fmt.Sprintf(format, args...)}
}

// Options tune one analyzer instance.
type Options struct {
	// LoopPasses bounds the loop fix-point (clamped to at least 2).
	LoopPasses int
	// Debug surfaces internal errors as diagnostics.
	Debug bool
	// Taint enables source-to-sink tracking.
	Taint bool
}

// Analyzer analyzes modules against a frozen codebase. One instance per
// module; instances share only the frozen store and interner.
type Analyzer struct {
	meta     *codebase.Metadata
	provider *codebase.Provider
	resolve  *resolver.Resolver
	expander *ttype.Expander
	in       *source.Interner
	fileSet  *source.FileSet
	sink     *collector.Collector
	opts     Options

	module    *ast.Module
	artifacts *Artifacts
	recon     *reconciler.Reconciler
	scope     resolver.Scope

	// varNodes maps var keys to their current data-flow node; exprNodes
	// remembers the node produced for an expression span. Both reset per
	// function-like.
	varNodes  map[string]dataflow.NodeID
	exprNodes map[source.Span]dataflow.NodeID

	// loops is the stack of active loop scopes, innermost last.
	loops []*flow.LoopScope

	// closureRets is the stack of closure return collectors; while
	// non-empty, return statements feed the top instead of the enclosing
	// function-like.
	closureRets []*returnAcc

	// typeCheckers maps lowered function names to the atomic union their
	// truthiness asserts (is_string and friends).
	typeCheckers map[source.NameID]func() ttype.Union

	selfName   source.NameID
	parentName source.NameID
	staticName source.NameID
	thisKey    string
}

// New builds an analyzer for one module.
func New(meta *codebase.Metadata, fs *source.FileSet, sink *collector.Collector, expander *ttype.Expander, opts Options) *Analyzer {
	opts.LoopPasses = flow.ClampLoopPasses(opts.LoopPasses)
	a := &Analyzer{
		meta:     meta,
		provider: codebase.NewProvider(meta),
		resolve:  resolver.New(meta),
		expander: expander,
		in:       meta.Interner(),
		fileSet:  fs,
		sink:     sink,
		opts:     opts,
		thisKey:  "$this",
	}
	a.selfName, a.parentName, a.staticName = a.resolve.Keywords()
	a.initTypeCheckers()
	return a
}

func (a *Analyzer) initTypeCheckers() {
	lower := func(s string) source.NameID { return a.in.Lowered(a.in.Intern(s)) }
	a.typeCheckers = map[source.NameID]func() ttype.Union{
		lower("is_string"):   func() ttype.Union { return ttype.NewUnion(ttype.MakeString()) },
		lower("is_int"):      func() ttype.Union { return ttype.NewUnion(ttype.MakeInt()) },
		lower("is_float"):    func() ttype.Union { return ttype.NewUnion(ttype.MakeFloat()) },
		lower("is_bool"):     func() ttype.Union { return ttype.NewUnion(ttype.MakeBool()) },
		lower("is_null"):     func() ttype.Union { return ttype.Null() },
		lower("is_array"):    func() ttype.Union { return ttype.NewUnion(ttype.MakeKeyedArray(ttype.NewUnion(ttype.MakeArrayKey()), ttype.Mixed())) },
		lower("is_callable"): func() ttype.Union { return ttype.NewUnion(ttype.MakeCallable(nil, nil)) },
		lower("is_object"):   func() ttype.Union { return ttype.NewUnion(ttype.MakeAnyObject()) },
		lower("is_numeric"):  func() ttype.Union { return ttype.NewUnion(ttype.MakeInt(), ttype.MakeFloat(), ttype.MakeNumericString()) },
		lower("is_scalar"):   func() ttype.Union { return ttype.NewUnion(ttype.MakeScalar()) },
	}
}

// AnalyzeModule analyzes every function-like and the top-level statements
// of one module. ctx cancellation is checked between function-likes.
func (a *Analyzer) AnalyzeModule(ctx context.Context, module *ast.Module) (*Artifacts, error) {
	a.module = module
	a.artifacts = NewArtifacts()

	for _, stmt := range module.Stmts {
		if err := ctx.Err(); err != nil {
			return a.artifacts, err
		}
		switch d := stmt.(type) {
		case *ast.ClassDecl:
			a.analyzeClassDecl(ctx, d)
		case *ast.FunctionDecl:
			a.analyzeFunctionLike(d, resolver.Scope{
				Function: codebase.MethodID{Method: a.in.Lowered(d.Name)},
			})
		}
	}

	// Top-level statements run as an implicit function-like.
	var topLevel []ast.Stmt
	for _, stmt := range module.Stmts {
		switch stmt.(type) {
		case *ast.ClassDecl, *ast.FunctionDecl:
		default:
			topLevel = append(topLevel, stmt)
		}
	}
	if len(topLevel) > 0 {
		a.withRecovery(module.File, func() error {
			a.scope = resolver.Scope{}
			a.resetFunctionState()
			bctx := flow.NewBlockContext(flow.Scope{})
			a.recon = a.newReconciler(flow.Scope{})
			return a.analyzeStmts(topLevel, bctx)
		})
	}

	return a.artifacts, nil
}

func (a *Analyzer) analyzeClassDecl(ctx context.Context, d *ast.ClassDecl) {
	classID := a.in.Lowered(d.Name)
	for _, method := range d.Methods {
		if ctx.Err() != nil {
			return
		}
		a.checkOverrideAttribute(classID, method)
		if !method.HasBody {
			continue
		}
		a.analyzeFunctionLike(method, resolver.Scope{
			Class:    classID,
			Function: codebase.MethodID{Class: classID, Method: a.in.Lowered(method.Name)},
		})
	}
}

// analyzeFunctionLike runs one function-like under panic recovery: a bug
// in one function must not abort the module.
func (a *Analyzer) analyzeFunctionLike(d *ast.FunctionDecl, scope resolver.Scope) {
	if !d.HasBody {
		return
	}
	a.withRecovery(a.module.File, func() error {
		a.scope = scope
		a.resetFunctionState()
		fscope := flow.Scope{Class: scope.Class, Function: scope.Function}
		if meta, ok := a.meta.FunctionLike(scope.Function); ok {
			fscope.Pure = meta.Pure
			fscope.Static = meta.Static
		}
		a.recon = a.newReconciler(fscope)

		bctx := flow.NewBlockContext(fscope)
		a.seedParameters(d, scope, bctx)
		return a.analyzeStmts(d.Body, bctx)
	})
}

func (a *Analyzer) resetFunctionState() {
	a.varNodes = map[string]dataflow.NodeID{}
	a.exprNodes = map[source.Span]dataflow.NodeID{}
	a.loops = nil
}

func (a *Analyzer) seedParameters(d *ast.FunctionDecl, scope resolver.Scope, bctx *flow.BlockContext) {
	for i, p := range d.Params {
		key := "$" + a.in.MustLookup(p.Name)
		t := ttype.Mixed()
		if p.Type != nil {
			t = a.expand(*p.Type)
		}
		node := dataflow.ParameterNode(scope.Function.Class, scope.Function.Method, i)
		a.artifacts.Graph.AddNode(&dataflow.Node{ID: node, Label: key})
		a.varNodes[key] = node
		bctx.AssignLocal(key, t.WithParentNode(ttype.NodeHandle(i)))
	}
	if scope.Class != source.NoNameID && !d.Static {
		this := ttype.MakeThisObject(scope.Class)
		bctx.AssignLocal(a.thisKey, ttype.NewUnion(this))
	}
}

func (a *Analyzer) newReconciler(fscope flow.Scope) *reconciler.Reconciler {
	opts := ttype.ExpandOptions{
		SelfName:   a.selfName,
		ParentName: a.parentName,
		StaticName: a.staticName,
	}
	if fscope.Class != source.NoNameID {
		opts.SelfClass = fscope.Class
		opts.StaticClass = fscope.Class
		if parent, ok := a.provider.ParentOf(fscope.Class); ok {
			opts.ParentClass = parent
		}
	}
	return reconciler.New(a.provider, a.expander, opts)
}

// withRecovery catches panics at the function-like boundary, surfacing
// them as internal-error diagnostics in debug builds.
func (a *Analyzer) withRecovery(file source.FileID, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			if a.opts.Debug {
				a.sink.Report(diag.Error(diag.CodeInternalError,
					source.Span{File: file},
					fmt.Sprintf("analyzer panic: %v", r)))
			}
		}
	}()
	if err := fn(); err != nil {
		var ae *AnalysisError
		if ok := asAnalysisError(err, &ae); ok && a.opts.Debug {
			a.sink.Report(diag.Error(diag.CodeInternalError, ae.Span, ae.Msg))
		}
	}
}

func asAnalysisError(err error, target **AnalysisError) bool {
	ae, ok := err.(*AnalysisError)
	if ok {
		*target = ae
	}
	return ok
}

func (a *Analyzer) expand(t ttype.Union) ttype.Union {
	opts := ttype.ExpandOptions{
		SelfName:   a.selfName,
		ParentName: a.parentName,
		StaticName: a.staticName,
	}
	if a.scope.Class != source.NoNameID {
		opts.SelfClass = a.scope.Class
		opts.StaticClass = a.scope.Class
		if parent, ok := a.provider.ParentOf(a.scope.Class); ok {
			opts.ParentClass = parent
		}
	}
	if a.expander != nil {
		return a.expander.Expand(a.provider, t, opts)
	}
	return ttype.ExpandUnion(a.provider, t, opts)
}

// varName renders a NameID as a $-prefixed var key root.
func (a *Analyzer) varName(id source.NameID) string {
	return "$" + a.in.MustLookup(id)
}

// applyClauses reconciles every reconcilable clause against the context's
// locals. Contradictions mark the path dead. Clauses already reconciled
// on this path are skipped; an assignment to a variable they mention
// clears the memo so the knowledge can be re-derived.
func (a *Analyzer) applyClauses(clauses []*clause.Clause, bctx *flow.BlockContext) {
	applied := make(map[string]struct{}, len(bctx.ReconciledExpressionClauses))
	for _, h := range bctx.ReconciledExpressionClauses {
		applied[h] = struct{}{}
	}
	for _, c := range clauses {
		if c.Wedge || !c.Reconcilable {
			continue
		}
		if len(c.Possibilities) != 1 {
			continue
		}
		if _, done := applied[c.Hash()]; done {
			continue
		}
		for key, assertions := range c.Possibilities {
			if len(assertions) != 1 {
				continue
			}
			existing, ok := bctx.Local(key)
			if !ok {
				continue
			}
			narrowed, outcome := a.recon.Reconcile(assertions[0], existing, false)
			switch outcome {
			case reconciler.OutcomeReconciled:
				bctx.SetLocal(key, narrowed)
			case reconciler.OutcomeImpossible:
				bctx.SetLocal(key, narrowed)
				bctx.RecordAction(flow.ActionEnd)
			default:
				continue
			}
			applied[c.Hash()] = struct{}{}
			bctx.ReconciledExpressionClauses = append(bctx.ReconciledExpressionClauses, c.Hash())
		}
	}
}
