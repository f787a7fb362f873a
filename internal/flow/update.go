package flow

import (
	"mantis/internal/ttype"
)

// UpdateFrom folds the outcome of a sub-analysis (start ... end) back
// into the receiver for each variable in varsToUpdate. The start context
// is the frame the sub-analysis began from; end is where it finished.
// hasLeaving marks that a leaving statement was observed, in which case
// end's values are not trusted.
func (c *BlockContext) UpdateFrom(cb ttype.ClassProvider, start, end *BlockContext, hasLeaving bool, varsToUpdate map[string]struct{}) {
	for key := range varsToUpdate {
		var newType *ttype.Union
		if !hasLeaving {
			if t, ok := end.Locals[key]; ok {
				clone := t.Clone()
				newType = &clone
			}
		}

		cur, exists := c.Locals[key]
		if !exists {
			if newType != nil {
				c.SetLocal(key, *newType)
			}
			continue
		}

		oldType, hadOld := start.Locals[key]
		var result ttype.Union
		if hadOld && ttype.UnionEqual(cur, oldType) {
			// The sub-analysis saw exactly what we hold; its result
			// replaces our knowledge entirely.
			result = ttype.Mixed()
			if newType != nil {
				result = *newType
				c.Locals[key] = result
				continue
			}
			c.Locals[key] = result
			continue
		}
		if hadOld {
			result = ttype.Subtract(cb, cur, oldType)
		} else {
			result = cur.Clone()
		}
		c.Locals[key] = ttype.AddOptional(cb, result, newType)
	}
}
