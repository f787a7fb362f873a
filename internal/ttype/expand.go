package ttype

import (
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"mantis/internal/source"
)

// TemplateKey identifies a template parameter by its defining entity.
type TemplateKey struct {
	Defining source.NameID
	Name     source.NameID
}

// ExpandOptions direct one expansion pass.
type ExpandOptions struct {
	// Concrete classes behind the scoped keywords. NoNameID leaves the
	// keyword unresolved.
	SelfClass   source.NameID
	ParentClass source.NameID
	StaticClass source.NameID

	// Interned ids of the keywords themselves, as they appear in object
	// atomics built from annotations.
	SelfName   source.NameID
	ParentName source.NameID
	StaticName source.NameID

	// Template arguments to substitute.
	Templates map[TemplateKey]Union

	// EvaluateConditionals resolves conditional atomics when the subject
	// template argument is known.
	EvaluateConditionals bool
}

func (o ExpandOptions) fingerprint() string {
	s := fmt.Sprintf("%d/%d/%d;%d/%d/%d;%t",
		o.SelfClass, o.ParentClass, o.StaticClass,
		o.SelfName, o.ParentName, o.StaticName,
		o.EvaluateConditionals)
	if len(o.Templates) > 0 {
		parts := make([]string, 0, len(o.Templates))
		for k, v := range o.Templates {
			parts = append(parts, fmt.Sprintf(";%d@%d=%s", k.Name, k.Defining, UnionKey(v)))
		}
		sort.Strings(parts)
		s += strings.Join(parts, "")
	}
	return s
}

// Expander resolves scoped keywords, template parameters and indirect
// references inside unions. Expansion is idempotent; results are memoized
// in an LRU keyed by the union's structural key plus the option
// fingerprint.
type Expander struct {
	cache *lru.Cache[string, Union]
}

// DefaultExpansionCacheSize bounds the memo table.
const DefaultExpansionCacheSize = 4096

// NewExpander builds an expander with the given cache size (<=0 uses the
// default).
func NewExpander(size int) *Expander {
	if size <= 0 {
		size = DefaultExpansionCacheSize
	}
	cache, err := lru.New[string, Union](size)
	if err != nil {
		panic(fmt.Errorf("ttype: expansion cache: %w", err))
	}
	return &Expander{cache: cache}
}

// Expand rewrites u with opts applied. The input is never mutated.
func (e *Expander) Expand(cb ClassProvider, u Union, opts ExpandOptions) Union {
	key := UnionKey(u) + "#" + opts.fingerprint()
	if e != nil && e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			return cached.Clone()
		}
	}

	out := expandUnion(cb, u, opts, 0)
	if e != nil && e.cache != nil {
		e.cache.Add(key, out.Clone())
	}
	return out
}

// ExpandUnion is a cache-less expansion for callers without an Expander.
func ExpandUnion(cb ClassProvider, u Union, opts ExpandOptions) Union {
	return expandUnion(cb, u, opts, 0)
}

// expansionDepthLimit stops runaway recursion through self-referential
// constants.
const expansionDepthLimit = 16

func expandUnion(cb ClassProvider, u Union, opts ExpandOptions, depth int) Union {
	if depth > expansionDepthLimit {
		return u
	}
	atomics := make([]Atomic, 0, len(u.Atomics))
	for _, a := range u.Atomics {
		atomics = append(atomics, expandAtomic(cb, a, opts, depth)...)
	}
	out := NewUnion(NormalizeAtomics(cb, atomics)...)
	out.ParentNodes = u.ParentNodes
	out.PossiblyUndefined = u.PossiblyUndefined
	out.FromDocblock = u.FromDocblock
	return out
}

func expandAtomic(cb ClassProvider, a Atomic, opts ExpandOptions, depth int) []Atomic {
	switch a.Kind {
	case KindObject:
		if a.Object == nil {
			return []Atomic{a}
		}
		obj := *a.Object
		if resolved, ok := resolveScopedName(obj.Name, opts); ok {
			obj.Name = resolved
		}
		if obj.IsThis && opts.StaticClass != source.NoNameID {
			obj.Name = opts.StaticClass
		}
		if len(obj.TypeParams) > 0 {
			params := make([]Union, len(obj.TypeParams))
			for i, p := range obj.TypeParams {
				params[i] = expandUnion(cb, p, opts, depth+1)
			}
			obj.TypeParams = params
		}
		if len(obj.Intersections) > 0 {
			arms := make([]Atomic, 0, len(obj.Intersections))
			for _, arm := range obj.Intersections {
				arms = append(arms, expandAtomic(cb, arm, opts, depth+1)...)
			}
			obj.Intersections = arms
		}
		out := a
		out.Object = &obj
		return []Atomic{out}

	case KindClassString:
		if a.ClassStr == nil {
			return []Atomic{a}
		}
		cs := *a.ClassStr
		if resolved, ok := resolveScopedName(cs.Value, opts); ok {
			cs.Value = resolved
		}
		out := a
		out.ClassStr = &cs
		return []Atomic{out}

	case KindGenericParam:
		if a.Generic == nil {
			return []Atomic{a}
		}
		if opts.Templates != nil {
			if arg, ok := opts.Templates[TemplateKey{Defining: a.Generic.Defining, Name: a.Generic.Name}]; ok {
				return expandUnion(cb, arg, opts, depth+1).Atomics
			}
		}
		return []Atomic{a}

	case KindReference:
		if a.Ref == nil {
			return []Atomic{a}
		}
		class := a.Ref.Class
		if resolved, ok := resolveScopedName(class, opts); ok {
			class = resolved
		}
		if t, ok := cb.ConstantType(class, a.Ref.Constant); ok {
			return expandUnion(cb, t, opts, depth+1).Atomics
		}
		return []Atomic{a}

	case KindConditional:
		if a.Cond == nil || a.Cond.Then == nil || a.Cond.Else == nil {
			return []Atomic{a}
		}
		if opts.EvaluateConditionals && a.Cond.Subject != nil && opts.Templates != nil {
			key := TemplateKey{Defining: a.Cond.Subject.Defining, Name: a.Cond.Subject.Name}
			if arg, ok := opts.Templates[key]; ok && a.Cond.Is != nil {
				if Contains(cb, *a.Cond.Is, arg) {
					return expandUnion(cb, *a.Cond.Then, opts, depth+1).Atomics
				}
				return expandUnion(cb, *a.Cond.Else, opts, depth+1).Atomics
			}
		}
		// Unknown subject: the result may be either branch.
		combined := Combine(cb,
			expandUnion(cb, *a.Cond.Then, opts, depth+1),
			expandUnion(cb, *a.Cond.Else, opts, depth+1))
		return combined.Atomics

	case KindList:
		if a.List == nil {
			return []Atomic{a}
		}
		info := *a.List
		info.Elem = expandUnion(cb, info.Elem, opts, depth+1)
		out := a
		out.List = &info
		return []Atomic{out}

	case KindKeyedArray:
		if a.Shape == nil {
			return []Atomic{a}
		}
		shape := ArrayShape{Entries: make([]ShapeEntry, len(a.Shape.Entries))}
		for i, e := range a.Shape.Entries {
			e.Type = expandUnion(cb, e.Type, opts, depth+1)
			shape.Entries[i] = e
		}
		if a.Shape.Rest != nil {
			shape.Rest = &RestInfo{
				Key:   expandUnion(cb, a.Shape.Rest.Key, opts, depth+1),
				Value: expandUnion(cb, a.Shape.Rest.Value, opts, depth+1),
			}
		}
		out := a
		out.Shape = &shape
		return []Atomic{out}

	case KindIterable:
		if a.Iterable == nil {
			return []Atomic{a}
		}
		info := IterableInfo{
			Key:   expandUnion(cb, a.Iterable.Key, opts, depth+1),
			Value: expandUnion(cb, a.Iterable.Value, opts, depth+1),
		}
		out := a
		out.Iterable = &info
		return []Atomic{out}

	case KindCallable:
		if a.Callable == nil || a.Callable.Kind == CallableAlias {
			return []Atomic{a}
		}
		info := *a.Callable
		if len(info.Params) > 0 {
			params := make([]CallableParam, len(info.Params))
			for i, p := range info.Params {
				p.Type = expandUnion(cb, p.Type, opts, depth+1)
				params[i] = p
			}
			info.Params = params
		}
		if info.Return != nil {
			ret := expandUnion(cb, *info.Return, opts, depth+1)
			info.Return = &ret
		}
		out := a
		out.Callable = &info
		return []Atomic{out}
	}

	return []Atomic{a}
}

func resolveScopedName(name source.NameID, opts ExpandOptions) (source.NameID, bool) {
	switch {
	case name == source.NoNameID:
		return name, false
	case name == opts.SelfName && opts.SelfClass != source.NoNameID:
		return opts.SelfClass, true
	case name == opts.ParentName && opts.ParentClass != source.NoNameID:
		return opts.ParentClass, true
	case name == opts.StaticName && opts.StaticClass != source.NoNameID:
		return opts.StaticClass, true
	}
	return name, false
}
