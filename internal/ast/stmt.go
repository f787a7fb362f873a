package ast

import (
	"mantis/internal/source"
)

// ExprStmt wraps an expression used as a statement.
type ExprStmt struct {
	Sp   source.Span
	Expr Expr
}

// Block is an explicit { ... } statement list.
type Block struct {
	Sp    source.Span
	Stmts []Stmt
}

// ElseIf is one elseif arm.
type ElseIf struct {
	Sp   source.Span
	Cond Expr
	Body []Stmt
}

func (e ElseIf) Span() source.Span { return e.Sp }

// If is the full conditional statement.
type If struct {
	Sp      source.Span
	Cond    Expr
	Then    []Stmt
	ElseIfs []ElseIf
	Else    []Stmt // nil when absent
	HasElse bool
}

// While is a pre-tested loop.
type While struct {
	Sp   source.Span
	Cond Expr
	Body []Stmt
}

// DoWhile is a post-tested loop.
type DoWhile struct {
	Sp   source.Span
	Body []Stmt
	Cond Expr
}

// For is the C-style loop; any header part may be empty.
type For struct {
	Sp     source.Span
	Init   []Expr
	Cond   []Expr
	Update []Expr
	Body   []Stmt
}

// Foreach iterates a collection; KeyVar is nil without a key binding.
type Foreach struct {
	Sp       source.Span
	Subject  Expr
	KeyVar   Expr
	ValueVar Expr
	ByRef    bool
	Body     []Stmt
}

// SwitchCase is one case arm; nil Cond is default.
type SwitchCase struct {
	Sp   source.Span
	Cond Expr
	Body []Stmt
}

func (s SwitchCase) Span() source.Span { return s.Sp }

// Switch is a switch statement.
type Switch struct {
	Sp      source.Span
	Subject Expr
	Cases   []SwitchCase
}

// Break exits Depth enclosing loops (at least 1).
type Break struct {
	Sp    source.Span
	Depth int
}

// Continue skips to the next iteration of Depth enclosing loops.
type Continue struct {
	Sp    source.Span
	Depth int
}

// Return exits the enclosing function-like; nil Expr returns void.
type Return struct {
	Sp   source.Span
	Expr Expr
}

// Throw raises an exception.
type Throw struct {
	Sp   source.Span
	Expr Expr
}

// Catch is one catch arm of a try statement.
type Catch struct {
	Sp    source.Span
	Types []ClassRef
	Var   source.NameID // NoNameID for a catch without a binding
	VarSp source.Span
	Body  []Stmt
}

func (c Catch) Span() source.Span { return c.Sp }

// Try is a try/catch/finally statement.
type Try struct {
	Sp      source.Span
	Body    []Stmt
	Catches []Catch
	Finally []Stmt // nil when absent
}

// Echo prints its arguments.
type Echo struct {
	Sp   source.Span
	Args []Expr
}

// Unset removes variable bindings.
type Unset struct {
	Sp   source.Span
	Vars []Expr
}

// Global imports variables from the global scope.
type Global struct {
	Sp   source.Span
	Vars []Ident
}

// StaticVar declares a function-static variable with an optional default.
type StaticVar struct {
	Sp      source.Span
	Name    source.NameID
	Default Expr
}

// Nop is an empty statement.
type Nop struct {
	Sp source.Span
}

func (s *ExprStmt) Span() source.Span  { return s.Sp }
func (s *Block) Span() source.Span     { return s.Sp }
func (s *If) Span() source.Span        { return s.Sp }
func (s *While) Span() source.Span     { return s.Sp }
func (s *DoWhile) Span() source.Span   { return s.Sp }
func (s *For) Span() source.Span       { return s.Sp }
func (s *Foreach) Span() source.Span   { return s.Sp }
func (s *Switch) Span() source.Span    { return s.Sp }
func (s *Break) Span() source.Span     { return s.Sp }
func (s *Continue) Span() source.Span  { return s.Sp }
func (s *Return) Span() source.Span    { return s.Sp }
func (s *Throw) Span() source.Span     { return s.Sp }
func (s *Try) Span() source.Span       { return s.Sp }
func (s *Echo) Span() source.Span      { return s.Sp }
func (s *Unset) Span() source.Span     { return s.Sp }
func (s *Global) Span() source.Span    { return s.Sp }
func (s *StaticVar) Span() source.Span { return s.Sp }
func (s *Nop) Span() source.Span       { return s.Sp }

func (*ExprStmt) stmtNode()  {}
func (*Block) stmtNode()     {}
func (*If) stmtNode()        {}
func (*While) stmtNode()     {}
func (*DoWhile) stmtNode()   {}
func (*For) stmtNode()       {}
func (*Foreach) stmtNode()   {}
func (*Switch) stmtNode()    {}
func (*Break) stmtNode()     {}
func (*Continue) stmtNode()  {}
func (*Return) stmtNode()    {}
func (*Throw) stmtNode()     {}
func (*Try) stmtNode()       {}
func (*Echo) stmtNode()      {}
func (*Unset) stmtNode()     {}
func (*Global) stmtNode()    {}
func (*StaticVar) stmtNode() {}
func (*Nop) stmtNode()       {}
