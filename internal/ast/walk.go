package ast

// Walk visits node and its children in document order. Returning false
// from visit skips the node's children. Traversal recurses directly into
// each node's fields; no intermediate child slices are built.
func Walk(node Node, visit func(Node) bool) {
	if node == nil || !visit(node) {
		return
	}
	walkChildren(node, visit)
}

// WalkStmts visits each statement of a list in order.
func WalkStmts(stmts []Stmt, visit func(Node) bool) {
	for _, s := range stmts {
		Walk(s, visit)
	}
}

func walkExpr(e Expr, visit func(Node) bool) {
	if e != nil {
		Walk(e, visit)
	}
}

func walkArgs(args []Arg, visit func(Node) bool) {
	for _, a := range args {
		walkExpr(a.Value, visit)
	}
}

func walkChildren(node Node, visit func(Node) bool) {
	switch n := node.(type) {
	case *ArrayLit:
		for _, it := range n.Items {
			walkExpr(it.Key, visit)
			walkExpr(it.Value, visit)
		}
	case *StringLit:
		for _, p := range n.Parts {
			walkExpr(p, visit)
		}
	case *Binary:
		walkExpr(n.Left, visit)
		walkExpr(n.Right, visit)
	case *Unary:
		walkExpr(n.Operand, visit)
	case *Assign:
		walkExpr(n.Target, visit)
		walkExpr(n.Value, visit)
	case *Isset:
		for _, v := range n.Vars {
			walkExpr(v, visit)
		}
	case *Empty:
		walkExpr(n.Arg, visit)
	case *Call:
		walkExpr(n.Callee, visit)
		walkArgs(n.Args, visit)
	case *MethodCall:
		walkExpr(n.Object, visit)
		walkExpr(n.Method.Dynam, visit)
		walkArgs(n.Args, visit)
	case *StaticCall:
		walkExpr(n.Class.Dynam, visit)
		walkExpr(n.Method.Dynam, visit)
		walkArgs(n.Args, visit)
	case *New:
		walkExpr(n.Class.Dynam, visit)
		walkArgs(n.Args, visit)
	case *PropertyFetch:
		walkExpr(n.Object, visit)
		walkExpr(n.Prop.Dynam, visit)
	case *StaticPropertyFetch:
		walkExpr(n.Class.Dynam, visit)
		walkExpr(n.Prop.Dynam, visit)
	case *ClassConstFetch:
		walkExpr(n.Class.Dynam, visit)
	case *Index:
		walkExpr(n.Base, visit)
		walkExpr(n.Dim, visit)
	case *Ternary:
		walkExpr(n.Cond, visit)
		walkExpr(n.Then, visit)
		walkExpr(n.Else, visit)
	case *Closure:
		for _, p := range n.Params {
			walkExpr(p.Default, visit)
		}
		WalkStmts(n.Body, visit)
	case *Cast:
		walkExpr(n.Operand, visit)
	case *InstanceOf:
		walkExpr(n.Expr, visit)
		walkExpr(n.Class.Dynam, visit)
	case *Match:
		walkExpr(n.Subject, visit)
		for _, arm := range n.Arms {
			for _, c := range arm.Conds {
				walkExpr(c, visit)
			}
			walkExpr(arm.Body, visit)
		}
	case *Clone:
		walkExpr(n.Operand, visit)
	case *ThrowExpr:
		walkExpr(n.Operand, visit)

	case *ExprStmt:
		walkExpr(n.Expr, visit)
	case *Block:
		WalkStmts(n.Stmts, visit)
	case *If:
		walkExpr(n.Cond, visit)
		WalkStmts(n.Then, visit)
		for _, ei := range n.ElseIfs {
			walkExpr(ei.Cond, visit)
			WalkStmts(ei.Body, visit)
		}
		WalkStmts(n.Else, visit)
	case *While:
		walkExpr(n.Cond, visit)
		WalkStmts(n.Body, visit)
	case *DoWhile:
		WalkStmts(n.Body, visit)
		walkExpr(n.Cond, visit)
	case *For:
		for _, e := range n.Init {
			walkExpr(e, visit)
		}
		for _, e := range n.Cond {
			walkExpr(e, visit)
		}
		for _, e := range n.Update {
			walkExpr(e, visit)
		}
		WalkStmts(n.Body, visit)
	case *Foreach:
		walkExpr(n.Subject, visit)
		walkExpr(n.KeyVar, visit)
		walkExpr(n.ValueVar, visit)
		WalkStmts(n.Body, visit)
	case *Switch:
		walkExpr(n.Subject, visit)
		for _, c := range n.Cases {
			walkExpr(c.Cond, visit)
			WalkStmts(c.Body, visit)
		}
	case *Return:
		walkExpr(n.Expr, visit)
	case *Throw:
		walkExpr(n.Expr, visit)
	case *Try:
		WalkStmts(n.Body, visit)
		for _, c := range n.Catches {
			WalkStmts(c.Body, visit)
		}
		WalkStmts(n.Finally, visit)
	case *Echo:
		for _, e := range n.Args {
			walkExpr(e, visit)
		}
	case *Unset:
		for _, v := range n.Vars {
			walkExpr(v, visit)
		}
	case *StaticVar:
		walkExpr(n.Default, visit)

	case *FunctionDecl:
		for _, p := range n.Params {
			walkExpr(p.Default, visit)
		}
		WalkStmts(n.Body, visit)
	case *ClassDecl:
		for _, c := range n.Consts {
			walkExpr(c.Value, visit)
		}
		for _, p := range n.Props {
			walkExpr(p.Default, visit)
		}
		for _, ec := range n.EnumCases {
			walkExpr(ec.Value, visit)
		}
		for _, m := range n.Methods {
			Walk(m, visit)
		}
	}
}
