// Package flow carries the per-path analysis state: locals, active
// clauses, control actions and the scoped machinery around loops and
// try/finally. Contexts are cloned at branches and merged at joins.
package flow

import (
	"sort"

	"mantis/internal/clause"
	"mantis/internal/codebase"
	"mantis/internal/source"
	"mantis/internal/ttype"
)

// ControlAction summarizes how a path can leave the current construct.
type ControlAction uint8

const (
	ActionNone ControlAction = iota
	ActionEnd
	ActionReturn
	ActionBreak
	ActionContinue
	ActionLoopExit
)

func (a ControlAction) String() string {
	switch a {
	case ActionEnd:
		return "end"
	case ActionReturn:
		return "return"
	case ActionBreak:
		return "break"
	case ActionContinue:
		return "continue"
	case ActionLoopExit:
		return "loop-exit"
	}
	return "none"
}

// BreakScope classifies what a break/continue applies to.
type BreakScope uint8

const (
	BreakScopeLoop BreakScope = iota
	BreakScopeSwitch
)

// Scope is the enclosing class-like and function-like of the analyzed
// code, plus purity flags.
type Scope struct {
	Class    source.NameID // lowered; NoNameID at top level
	Function codebase.MethodID
	Pure     bool
	Static   bool
}

// Flags are the mutually independent inside_* markers. Saved and restored
// as a value around sub-analyses.
type Flags struct {
	InsideIsset             bool
	InsideUnset             bool
	InsideConditional       bool
	InsideLoop              bool
	InsideLoopExpressions   bool
	InsideCall              bool
	InsideNegation          bool
	InsideTry               bool
	InsideReturn            bool
	InsideThrow             bool
	InsideAssignment        bool
	InsideGeneralUse        bool
	InsideClassExists       bool
	InsideCoalescing        bool
	InsideVariableReference bool
}

// Bounds is an offset interval of the innermost loop header or for-init.
type Bounds struct {
	Start uint32
	End   uint32
}

// Contains reports whether off lies in the bounds.
func (b Bounds) Contains(off uint32) bool {
	return b.Start <= off && off < b.End
}

// BlockContext is the per-path analysis state.
type BlockContext struct {
	Scope Scope

	// Locals maps var keys to their current types. Cloned shallowly;
	// unions are treated as immutable once stored.
	Locals map[string]ttype.Union

	// StaticLocals are the names declared static in this function.
	StaticLocals map[string]struct{}

	// VariablesPossiblyInScope holds every name that may be defined on
	// some incoming path.
	VariablesPossiblyInScope map[string]struct{}

	// AssignedVariableIDs counts assignment generations per variable.
	AssignedVariableIDs map[string]int

	// PossiblyAssignedVariableIDs unions assignment sites across branches.
	PossiblyAssignedVariableIDs map[string]struct{}

	// ConditionallyReferencedVariableIDs are names mentioned inside
	// conditional tests.
	ConditionallyReferencedVariableIDs map[string]struct{}

	// Clauses is the active path predicate.
	Clauses []*clause.Clause

	// ReconciledExpressionClauses are clause hashes already applied to
	// Locals, skipped on re-reconciliation.
	ReconciledExpressionClauses []string

	// ParentConflictingClauseVariables remembers variables whose
	// parent-scope clauses were invalidated by an assignment here.
	ParentConflictingClauseVariables map[string]struct{}

	Flags Flags

	// BreakTypes is the stack of enclosing breakable constructs.
	BreakTypes []BreakScope

	// FinallyScope buffers exit states while a try with finally runs.
	FinallyScope *FinallyScope

	// IfBodyContext reintroduces then-branch narrowings into the outer
	// frame after the statement.
	IfBodyContext *BlockContext

	HasReturned bool

	ControlActions map[ControlAction]struct{}

	// PossiblyThrownExceptions maps lowered class ids to the spans that
	// may throw them.
	PossiblyThrownExceptions map[source.NameID]map[source.Span]struct{}

	LoopBounds        Bounds
	ForLoopInitBounds Bounds
}

// NewBlockContext builds the entry context of a function-like.
func NewBlockContext(scope Scope) *BlockContext {
	return &BlockContext{
		Scope:                              scope,
		Locals:                             map[string]ttype.Union{},
		StaticLocals:                       map[string]struct{}{},
		VariablesPossiblyInScope:           map[string]struct{}{},
		AssignedVariableIDs:                map[string]int{},
		PossiblyAssignedVariableIDs:        map[string]struct{}{},
		ConditionallyReferencedVariableIDs: map[string]struct{}{},
		ParentConflictingClauseVariables:   map[string]struct{}{},
		ControlActions:                     map[ControlAction]struct{}{},
		PossiblyThrownExceptions:           map[source.NameID]map[source.Span]struct{}{},
	}
}

// Clone copies the context for a branch. Maps are copied; unions and
// clauses are shared as immutable values.
func (c *BlockContext) Clone() *BlockContext {
	out := *c
	out.Locals = make(map[string]ttype.Union, len(c.Locals))
	for k, v := range c.Locals {
		out.Locals[k] = v
	}
	out.StaticLocals = copySet(c.StaticLocals)
	out.VariablesPossiblyInScope = copySet(c.VariablesPossiblyInScope)
	out.AssignedVariableIDs = make(map[string]int, len(c.AssignedVariableIDs))
	for k, v := range c.AssignedVariableIDs {
		out.AssignedVariableIDs[k] = v
	}
	out.PossiblyAssignedVariableIDs = copySet(c.PossiblyAssignedVariableIDs)
	out.ConditionallyReferencedVariableIDs = copySet(c.ConditionallyReferencedVariableIDs)
	out.ParentConflictingClauseVariables = copySet(c.ParentConflictingClauseVariables)
	out.Clauses = append([]*clause.Clause(nil), c.Clauses...)
	out.ReconciledExpressionClauses = append([]string(nil), c.ReconciledExpressionClauses...)
	out.BreakTypes = append([]BreakScope(nil), c.BreakTypes...)
	out.ControlActions = make(map[ControlAction]struct{}, len(c.ControlActions))
	for k := range c.ControlActions {
		out.ControlActions[k] = struct{}{}
	}
	out.PossiblyThrownExceptions = make(map[source.NameID]map[source.Span]struct{}, len(c.PossiblyThrownExceptions))
	for cls, spans := range c.PossiblyThrownExceptions {
		ss := make(map[source.Span]struct{}, len(spans))
		for s := range spans {
			ss[s] = struct{}{}
		}
		out.PossiblyThrownExceptions[cls] = ss
	}
	// FinallyScope and IfBodyContext are deliberately shared: they are the
	// channels through which branches talk to their construct.
	return &out
}

func copySet(s map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// Local returns the current type of a var key.
func (c *BlockContext) Local(key string) (ttype.Union, bool) {
	t, ok := c.Locals[key]
	return t, ok
}

// SetLocal records a type without counting an assignment (narrowing).
func (c *BlockContext) SetLocal(key string, t ttype.Union) {
	c.Locals[key] = t
	c.VariablesPossiblyInScope[key] = struct{}{}
}

// AssignLocal records an assignment: the type, the generation bump and
// the possibly-assigned mark.
func (c *BlockContext) AssignLocal(key string, t ttype.Union) {
	c.Locals[key] = t
	c.VariablesPossiblyInScope[key] = struct{}{}
	c.AssignedVariableIDs[key]++
	c.PossiblyAssignedVariableIDs[key] = struct{}{}
}

// RemoveLocal drops a variable binding.
func (c *BlockContext) RemoveLocal(key string) {
	delete(c.Locals, key)
}

// RecordAction registers a control action; Return and End also set
// HasReturned.
func (c *BlockContext) RecordAction(a ControlAction) {
	c.ControlActions[a] = struct{}{}
	if a == ActionReturn || a == ActionEnd {
		c.HasReturned = true
	}
}

// Terminated reports whether no path continues past this point.
func (c *BlockContext) Terminated() bool {
	if c.HasReturned {
		return true
	}
	if len(c.ControlActions) == 0 {
		return false
	}
	if _, ok := c.ControlActions[ActionNone]; ok {
		return false
	}
	return true
}

// RecordPossiblyThrown registers an exception class a span may raise.
func (c *BlockContext) RecordPossiblyThrown(class source.NameID, span source.Span) {
	if c.PossiblyThrownExceptions[class] == nil {
		c.PossiblyThrownExceptions[class] = map[source.Span]struct{}{}
	}
	c.PossiblyThrownExceptions[class][span] = struct{}{}
}

// SortedLocalKeys returns the local keys in deterministic order.
func (c *BlockContext) SortedLocalKeys() []string {
	keys := make([]string, 0, len(c.Locals))
	for k := range c.Locals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetRedefinedLocals yields the entries whose types differ between the
// receiver's locals and new.
func (c *BlockContext) GetRedefinedLocals(new map[string]ttype.Union) map[string]ttype.Union {
	out := map[string]ttype.Union{}
	for k, cur := range c.Locals {
		if other, ok := new[k]; ok && !ttype.UnionEqual(cur, other) {
			out[k] = other
		}
	}
	return out
}

// GetNewOrUpdatedLocals returns the variables whose assignment counter
// changed between orig and new, plus the ones new introduced.
func GetNewOrUpdatedLocals(orig, new *BlockContext) map[string]struct{} {
	out := map[string]struct{}{}
	for k := range new.Locals {
		if _, ok := orig.Locals[k]; !ok {
			out[k] = struct{}{}
			continue
		}
		if orig.AssignedVariableIDs[k] != new.AssignedVariableIDs[k] {
			out[k] = struct{}{}
		}
	}
	return out
}

// EnterFlag sets one inside_* flag through fn and returns a restore
// closure; the deferred call makes restoration hold on every exit path.
func (c *BlockContext) EnterFlag(set func(*Flags)) func() {
	saved := c.Flags
	set(&c.Flags)
	return func() { c.Flags = saved }
}
