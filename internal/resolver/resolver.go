// Package resolver maps class-name positions, method selectors, constants
// and properties to concrete codebase members. It never reports issues
// itself; callers read the result flags and decide what to surface.
package resolver

import (
	"mantis/internal/ast"
	"mantis/internal/codebase"
	"mantis/internal/source"
	"mantis/internal/ttype"
)

// Origin classifies how a class-name position resolved.
type Origin uint8

const (
	OriginNamed Origin = iota
	OriginStatic
	OriginObject
	OriginLiteralClassString
	OriginGenericClassString
	OriginGenericString
	OriginGenericObject
	OriginMixed
	OriginAny
	OriginInvalid
)

func (o Origin) String() string {
	switch o {
	case OriginNamed:
		return "named"
	case OriginStatic:
		return "static"
	case OriginObject:
		return "object"
	case OriginLiteralClassString:
		return "literal-class-string"
	case OriginGenericClassString:
		return "generic-class-string"
	case OriginGenericString:
		return "generic-string"
	case OriginGenericObject:
		return "generic-object"
	case OriginMixed:
		return "mixed"
	case OriginAny:
		return "any"
	}
	return "invalid"
}

// Ambiguous reports whether the origin cannot pin a class.
func (o Origin) Ambiguous() bool {
	switch o {
	case OriginGenericString, OriginGenericObject, OriginMixed, OriginAny, OriginInvalid:
		return true
	}
	return false
}

// ResolvedClassname is one candidate resolution of a class-name position.
type ResolvedClassname struct {
	// FQCN is the lowered class id; NoNameID when the origin is ambiguous.
	FQCN   source.NameID
	Origin Origin

	IsSelf    bool
	IsParent  bool
	IsThis    bool
	CanExtend bool
}

// Scope is the class-like and function-like the resolved expression sits
// in. Zero values mean top-level code.
type Scope struct {
	Class    source.NameID // lowered; NoNameID outside class-likes
	Function codebase.MethodID
}

// Resolver resolves against a frozen codebase.
type Resolver struct {
	meta *codebase.Metadata
	in   *source.Interner

	selfName   source.NameID
	parentName source.NameID
	staticName source.NameID
	classConst source.NameID // the "class" magic constant, lowered
}

// New builds a resolver over the store.
func New(meta *codebase.Metadata) *Resolver {
	in := meta.Interner()
	return &Resolver{
		meta:       meta,
		in:         in,
		selfName:   in.Lowered(in.Intern("self")),
		parentName: in.Lowered(in.Intern("parent")),
		staticName: in.Lowered(in.Intern("static")),
		classConst: in.Lowered(in.Intern("class")),
	}
}

// Keywords returns the lowered self/parent/static ids, in that order.
func (r *Resolver) Keywords() (self, parent, static source.NameID) {
	return r.selfName, r.parentName, r.staticName
}

// ResolveClassname resolves a class-name position. For a fixed name the
// resolved-names entry wins; for a dynamic expression the caller passes
// the inferred type and every atomic contributes a candidate.
func (r *Resolver) ResolveClassname(module *ast.Module, ref ast.ClassRef, inferred *ttype.Union, scope Scope) []ResolvedClassname {
	if !ref.IsDynamic() {
		return []ResolvedClassname{r.resolveFixedName(module, ref, scope)}
	}
	if inferred == nil {
		return []ResolvedClassname{{Origin: OriginInvalid}}
	}
	out := make([]ResolvedClassname, 0, len(inferred.Atomics))
	for _, at := range inferred.Atomics {
		out = append(out, r.classifyAtomic(at))
	}
	if len(out) == 0 {
		out = append(out, ResolvedClassname{Origin: OriginInvalid})
	}
	return out
}

func (r *Resolver) resolveFixedName(module *ast.Module, ref ast.ClassRef, scope Scope) ResolvedClassname {
	lowered := r.in.Lowered(ref.Name)

	switch lowered {
	case r.selfName:
		if scope.Class == source.NoNameID {
			return ResolvedClassname{Origin: OriginInvalid}
		}
		return ResolvedClassname{FQCN: scope.Class, Origin: OriginNamed, IsSelf: true}
	case r.parentName:
		if scope.Class == source.NoNameID {
			return ResolvedClassname{Origin: OriginInvalid}
		}
		c, ok := r.meta.ClassLike(scope.Class)
		if !ok || c.ParentClass == source.NoNameID {
			return ResolvedClassname{Origin: OriginInvalid, IsParent: true}
		}
		return ResolvedClassname{FQCN: c.ParentClass, Origin: OriginNamed, IsParent: true}
	case r.staticName:
		if scope.Class == source.NoNameID {
			return ResolvedClassname{Origin: OriginInvalid}
		}
		canExtend := true
		if c, ok := r.meta.ClassLike(scope.Class); ok {
			canExtend = !c.IsFinal
		}
		return ResolvedClassname{FQCN: scope.Class, Origin: OriginStatic, CanExtend: canExtend}
	}

	if rn, ok := module.ResolveName(ref.Sp.Start); ok {
		lowered = r.in.Lowered(rn.FQN)
	}
	return ResolvedClassname{FQCN: lowered, Origin: OriginNamed}
}

func (r *Resolver) classifyAtomic(at ttype.Atomic) ResolvedClassname {
	switch at.Kind {
	case ttype.KindObject:
		if at.Object == nil || at.Object.Kind == ttype.ObjectAny {
			return ResolvedClassname{Origin: OriginGenericObject}
		}
		return ResolvedClassname{
			FQCN:   r.in.Lowered(at.Object.Name),
			Origin: OriginObject,
			IsThis: at.Object.IsThis,
		}
	case ttype.KindClassString:
		if at.ClassStr == nil {
			return ResolvedClassname{Origin: OriginGenericClassString}
		}
		switch at.ClassStr.Kind {
		case ttype.ClassStringLiteral:
			return ResolvedClassname{FQCN: r.in.Lowered(at.ClassStr.Value), Origin: OriginLiteralClassString}
		case ttype.ClassStringOfType:
			return ResolvedClassname{FQCN: r.in.Lowered(at.ClassStr.Value), Origin: OriginGenericClassString}
		default:
			return ResolvedClassname{Origin: OriginGenericClassString}
		}
	case ttype.KindString, ttype.KindNonEmptyString, ttype.KindNumericString:
		if at.StrVal != nil {
			// A literal string may name a class; the candidate keeps the
			// ambiguous origin so callers can warn on it.
			return ResolvedClassname{
				FQCN:   r.in.Lowered(r.in.Intern(*at.StrVal)),
				Origin: OriginGenericString,
			}
		}
		return ResolvedClassname{Origin: OriginGenericString}
	case ttype.KindMixed:
		if at.Mixed&ttype.MixedAny != 0 {
			return ResolvedClassname{Origin: OriginAny}
		}
		return ResolvedClassname{Origin: OriginMixed}
	}
	return ResolvedClassname{Origin: OriginInvalid}
}

// CanAccess checks member visibility from the scope's class.
func (r *Resolver) CanAccess(vis ast.Visibility, declaring source.NameID, scope Scope) bool {
	switch vis {
	case ast.Public:
		return true
	case ast.Private:
		return scope.Class == declaring
	default:
		if scope.Class == source.NoNameID {
			return false
		}
		if scope.Class == declaring {
			return true
		}
		if c, ok := r.meta.ClassLike(scope.Class); ok && c.HasParent(declaring) {
			return true
		}
		// protected also grants access downward, from a declaring class to
		// its subclass members.
		if c, ok := r.meta.ClassLike(declaring); ok && c.HasParent(scope.Class) {
			return true
		}
		return false
	}
}
