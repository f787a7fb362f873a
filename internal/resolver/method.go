package resolver

import (
	"mantis/internal/codebase"
	"mantis/internal/source"
	"mantis/internal/ttype"
)

// ResolvedMethod is one method candidate with the class it was reached
// through.
type ResolvedMethod struct {
	ID       codebase.MethodID
	Meta     *codebase.FunctionLikeMetadata
	ViaClass source.NameID // lowered class of the receiver atomic
}

// MethodResolutionResult aggregates all candidates for one call site.
type MethodResolutionResult struct {
	ResolvedMethods []ResolvedMethod

	// Templates carries the receiver's class template arguments for
	// expansion of the chosen signature.
	Templates map[ttype.TemplateKey]ttype.Union

	HasValidTarget      bool
	HasInvalidTarget    bool
	HasDynamicSelector  bool
	HasNullTarget       bool
	EncounteredMixed    bool
	EncounteredNonObject bool
	HasMissingMethod    bool
	HasInaccessible     bool
}

// ResolveMethodTargets resolves a selector against every atomic of the
// receiver type. selectorNames holds the candidate member names (several
// when the selector is a literal-string union); empty means fully dynamic.
func (r *Resolver) ResolveMethodTargets(objType ttype.Union, selectorNames []source.NameID, nullsafe bool, scope Scope) MethodResolutionResult {
	res := MethodResolutionResult{}
	if len(selectorNames) == 0 {
		res.HasDynamicSelector = true
	}

	for _, at := range objType.Atomics {
		r.resolveMethodAtomic(at, selectorNames, nullsafe, scope, &res)
	}
	return res
}

func (r *Resolver) resolveMethodAtomic(at ttype.Atomic, selectorNames []source.NameID, nullsafe bool, scope Scope, res *MethodResolutionResult) {
	switch at.Kind {
	case ttype.KindNever:
		return
	case ttype.KindNull:
		if !nullsafe {
			res.HasNullTarget = true
			res.HasInvalidTarget = true
		}
		return
	case ttype.KindMixed:
		res.EncounteredMixed = true
		return
	case ttype.KindObject:
		// handled below
	default:
		res.EncounteredNonObject = true
		res.HasInvalidTarget = true
		return
	}

	obj := at.Object
	if obj == nil || obj.Kind == ttype.ObjectAny {
		res.EncounteredMixed = true
		return
	}

	class := r.in.Lowered(obj.Name)
	c, ok := r.meta.ClassLike(class)
	if !ok {
		res.HasInvalidTarget = true
		return
	}

	for _, sel := range selectorNames {
		member := r.in.Lowered(sel)
		id, found := c.DeclaringMethodIDs[member]
		if !found {
			// Intersection arms may still provide the method.
			if r.resolveFromIntersections(obj, sel, nullsafe, scope, res) {
				continue
			}
			res.HasMissingMethod = true
			res.HasInvalidTarget = true
			continue
		}
		meta, ok := r.meta.FunctionLike(id)
		if !ok {
			res.HasMissingMethod = true
			res.HasInvalidTarget = true
			continue
		}
		if !r.CanAccess(meta.Visibility, id.Class, scope) {
			res.HasInaccessible = true
			res.HasInvalidTarget = true
			continue
		}
		res.ResolvedMethods = append(res.ResolvedMethods, ResolvedMethod{
			ID:       id,
			Meta:     meta,
			ViaClass: class,
		})
		res.HasValidTarget = true
		r.collectTemplates(c, obj, res)
	}

	for _, arm := range obj.Intersections {
		r.resolveMethodAtomic(arm, selectorNames, nullsafe, scope, res)
	}
}

func (r *Resolver) resolveFromIntersections(obj *ttype.ObjectInfo, sel source.NameID, nullsafe bool, scope Scope, res *MethodResolutionResult) bool {
	before := len(res.ResolvedMethods)
	for _, arm := range obj.Intersections {
		r.resolveMethodAtomic(arm, []source.NameID{sel}, nullsafe, scope, res)
	}
	return len(res.ResolvedMethods) > before
}

// collectTemplates records the receiver's template arguments, positional
// against the class declaration. Missing arguments fall back to the
// declared constraint.
func (r *Resolver) collectTemplates(c *codebase.ClassLikeMetadata, obj *ttype.ObjectInfo, res *MethodResolutionResult) {
	if len(c.TemplateTypes) == 0 {
		return
	}
	if res.Templates == nil {
		res.Templates = map[ttype.TemplateKey]ttype.Union{}
	}
	for i, t := range c.TemplateTypes {
		key := ttype.TemplateKey{Defining: c.Lowered, Name: r.in.Lowered(t.Name)}
		if _, have := res.Templates[key]; have {
			continue
		}
		if i < len(obj.TypeParams) {
			res.Templates[key] = obj.TypeParams[i]
		} else if t.Constraint != nil {
			res.Templates[key] = t.Constraint.Clone()
		} else {
			res.Templates[key] = ttype.Mixed()
		}
	}
}

// ResolvedProperty is one property candidate.
type ResolvedProperty struct {
	Meta     *codebase.PropertyMetadata
	ViaClass source.NameID
}

// PropertyResolutionResult aggregates property lookups across the
// receiver's atomics.
type PropertyResolutionResult struct {
	ResolvedProperties []ResolvedProperty

	HasValidTarget       bool
	HasInvalidTarget     bool
	HasNullTarget        bool
	EncounteredMixed     bool
	EncounteredNonObject bool
	HasMissingProperty   bool
	HasInaccessible      bool
}

// ResolveProperty resolves a property selector against the receiver type.
func (r *Resolver) ResolveProperty(objType ttype.Union, prop source.NameID, nullsafe bool, scope Scope) PropertyResolutionResult {
	res := PropertyResolutionResult{}
	member := r.in.Lowered(prop)

	for _, at := range objType.Atomics {
		switch at.Kind {
		case ttype.KindNever:
		case ttype.KindNull:
			if !nullsafe {
				res.HasNullTarget = true
				res.HasInvalidTarget = true
			}
		case ttype.KindMixed:
			res.EncounteredMixed = true
		case ttype.KindObject:
			obj := at.Object
			if obj == nil || obj.Kind == ttype.ObjectAny {
				res.EncounteredMixed = true
				continue
			}
			class := r.in.Lowered(obj.Name)
			c, ok := r.meta.ClassLike(class)
			if !ok {
				res.HasInvalidTarget = true
				continue
			}
			p, ok := c.Properties[member]
			if !ok {
				res.HasMissingProperty = true
				res.HasInvalidTarget = true
				continue
			}
			if !r.CanAccess(p.Visibility, p.Declaring, scope) {
				res.HasInaccessible = true
				res.HasInvalidTarget = true
				continue
			}
			res.ResolvedProperties = append(res.ResolvedProperties, ResolvedProperty{
				Meta:     p,
				ViaClass: class,
			})
			res.HasValidTarget = true
		default:
			res.EncounteredNonObject = true
			res.HasInvalidTarget = true
		}
	}
	return res
}
