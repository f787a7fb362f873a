package resolver

import (
	"mantis/internal/source"
	"mantis/internal/ttype"
)

// ConstantResolutionResult aggregates class-constant lookups across the
// candidate classnames of one fetch.
type ConstantResolutionResult struct {
	// Types are the resolved constant types, one per successful candidate.
	Types []ttype.Union

	HasValidTarget   bool
	HasInvalidTarget bool
	// MagicClassOnAmbiguous flags C::class on a generic string.
	MagicClassOnAmbiguous bool
	HasMissingConstant    bool
	HasInaccessible       bool
}

// ResolveClassConstants resolves `::K` (including the `::class` magic
// constant and enum cases) against each candidate classname.
func (r *Resolver) ResolveClassConstants(candidates []ResolvedClassname, constName source.NameID, scope Scope) ConstantResolutionResult {
	res := ConstantResolutionResult{}
	member := r.in.Lowered(constName)

	for _, cand := range candidates {
		if member == r.classConst {
			r.resolveMagicClass(cand, &res)
			continue
		}
		if cand.Origin.Ambiguous() || cand.FQCN == source.NoNameID {
			res.HasInvalidTarget = true
			continue
		}
		c, ok := r.meta.ClassLike(cand.FQCN)
		if !ok {
			res.HasInvalidTarget = true
			continue
		}

		// Enum cases come before ordinary constants: the two namespaces
		// never overlap in valid code.
		if ec, ok := c.EnumCases[member]; ok {
			res.Types = append(res.Types, ttype.NewUnion(ttype.MakeEnum(c.Name, ec.Name)))
			res.HasValidTarget = true
			continue
		}

		cm, ok := c.Constants[member]
		if !ok {
			res.HasMissingConstant = true
			res.HasInvalidTarget = true
			continue
		}
		if !r.CanAccess(cm.Visibility, cm.Declaring, scope) {
			res.HasInaccessible = true
			res.HasInvalidTarget = true
			continue
		}
		if cm.Type != nil {
			res.Types = append(res.Types, cm.Type.Clone())
		} else {
			res.Types = append(res.Types, ttype.Mixed())
		}
		res.HasValidTarget = true
	}
	return res
}

func (r *Resolver) resolveMagicClass(cand ResolvedClassname, res *ConstantResolutionResult) {
	switch {
	case cand.Origin == OriginGenericString:
		res.MagicClassOnAmbiguous = true
		res.HasInvalidTarget = true
	case cand.Origin.Ambiguous() || cand.FQCN == source.NoNameID:
		res.HasInvalidTarget = true
	case cand.Origin == OriginStatic && cand.CanExtend:
		// static::class on an extendable class is any subclass name.
		res.Types = append(res.Types, ttype.NewUnion(ttype.MakeClassStringOf(cand.FQCN)))
		res.HasValidTarget = true
	default:
		res.Types = append(res.Types, ttype.NewUnion(ttype.MakeLiteralClassString(cand.FQCN)))
		res.HasValidTarget = true
	}
}
