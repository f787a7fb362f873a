package flow

import (
	"strings"

	"mantis/internal/clause"
	"mantis/internal/ttype"
)

// RemoveVariableFromConflictingClauses filters out clauses invalidated by
// assigning newType to key, and remembers the key so parent scopes know
// their clauses about it are stale. check is the reconciler's
// consistency predicate; nil newType drops every clause mentioning the
// key.
func (c *BlockContext) RemoveVariableFromConflictingClauses(key string, newType *ttype.Union, check clause.ConsistencyCheck) {
	c.Clauses = clause.FilterClauses(c.Clauses, key, newType, check)
	c.ParentConflictingClauseVariables[key] = struct{}{}
}

// RemoveDescendants drops every local whose key chains off root. With a
// mixed existing type the assignment may have replaced anything, so the
// clause filter runs without a replacement type (maximum pruning).
func (c *BlockContext) RemoveDescendants(root string, existingType, newType *ttype.Union, check clause.ConsistencyCheck) {
	filterType := newType
	if existingType != nil && existingType.HasMixed() {
		filterType = nil
	}
	c.RemoveVariableFromConflictingClauses(root, filterType, check)

	for _, key := range c.SortedLocalKeys() {
		if key != root && clause.VarHasRoot(key, root) {
			delete(c.Locals, key)
		}
	}
}

// RemoveClausesForAssigned drops every clause mentioning a variable the
// loop body reassigned, along with the reconciliation memo those clauses
// fed. Wedges survive; they carry no variable knowledge.
func (c *BlockContext) RemoveClausesForAssigned(vars map[string]struct{}) {
	if len(vars) == 0 {
		return
	}
	roots := make([]string, 0, len(vars))
	for k := range vars {
		roots = append(roots, k)
	}
	kept, rejected := clause.RemoveReconciledRefs(c.Clauses, roots)
	c.Clauses = kept
	if len(c.ReconciledExpressionClauses) == 0 {
		return
	}
	if len(rejected) > 0 {
		c.ReconciledExpressionClauses = nil
		return
	}
	for _, k := range roots {
		if _, ok := c.ConditionallyReferencedVariableIDs[k]; ok {
			c.ReconciledExpressionClauses = nil
			return
		}
	}
}

// RemoveMutableObjectVars drops every member-chain local (keys containing
// `->` or `::`) and the clauses mentioning them. Called around impure
// calls, which may have mutated any reachable object.
func (c *BlockContext) RemoveMutableObjectVars() {
	var removed []string
	for key := range c.Locals {
		if strings.Contains(key, "->") || strings.Contains(key, "::") {
			removed = append(removed, key)
		}
	}
	if len(removed) == 0 {
		return
	}
	for _, key := range removed {
		delete(c.Locals, key)
	}

	kept := c.Clauses[:0]
	for _, cl := range c.Clauses {
		if cl.Wedge {
			kept = append(kept, cl)
			continue
		}
		hit := false
		for k := range cl.Possibilities {
			if strings.Contains(k, "->") || strings.Contains(k, "::") {
				hit = true
				break
			}
		}
		if !hit {
			kept = append(kept, cl)
		}
	}
	c.Clauses = kept
}
