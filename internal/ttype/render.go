package ttype

import (
	"strconv"
	"strings"

	"mantis/internal/source"
)

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

// Render produces the human-readable form of the union for messages.
// Names are resolved through the interner; a nil interner renders ids.
func (u Union) Render(in *source.Interner) string {
	if len(u.Atomics) == 0 {
		return "never"
	}
	parts := make([]string, 0, len(u.Atomics))
	for _, a := range u.Atomics {
		parts = append(parts, a.Render(in))
	}
	return strings.Join(parts, "|")
}

// Render produces the human-readable form of one atomic.
func (a Atomic) Render(in *source.Interner) string {
	name := func(id source.NameID) string {
		if in == nil {
			return "#" + strconv.FormatUint(uint64(id), 10)
		}
		s, ok := in.Lookup(id)
		if !ok {
			return "#" + strconv.FormatUint(uint64(id), 10)
		}
		return s
	}

	switch a.Kind {
	case KindBool:
		if a.BoolVal != nil {
			if *a.BoolVal {
				return "true"
			}
			return "false"
		}
		return "bool"
	case KindInt:
		if a.IntVal != nil {
			return formatInt(*a.IntVal)
		}
		return "int"
	case KindIntRange:
		if a.Range == nil {
			return "int"
		}
		lo, hi := "min", "max"
		if a.Range.Lo.Kind != BoundInf {
			lo = formatInt(a.Range.Lo.Value)
		}
		if a.Range.Hi.Kind != BoundInf {
			hi = formatInt(a.Range.Hi.Value)
		}
		return "int<" + lo + ", " + hi + ">"
	case KindFloat:
		if a.FloatVal != nil {
			return strconv.FormatFloat(*a.FloatVal, 'g', -1, 64)
		}
		return "float"
	case KindString:
		if a.StrVal != nil {
			return "'" + *a.StrVal + "'"
		}
		return "string"
	case KindClassString:
		if a.ClassStr == nil {
			return "class-string"
		}
		switch a.ClassStr.Kind {
		case ClassStringLiteral:
			return name(a.ClassStr.Value) + "::class"
		case ClassStringOfType:
			return "class-string<" + name(a.ClassStr.Value) + ">"
		case ClassStringGeneric:
			if a.ClassStr.Param != nil {
				return "class-string<" + name(a.ClassStr.Param.Name) + ">"
			}
		}
		return "class-string"
	case KindList:
		if a.List == nil {
			return "list"
		}
		base := "list<" + a.List.Elem.Render(in) + ">"
		switch a.List.Length {
		case LengthNonEmpty:
			return "non-empty-" + base
		case LengthExact:
			if a.List.Count == 0 {
				return "array{}"
			}
			return base + "&count(" + strconv.Itoa(a.List.Count) + ")"
		}
		return base
	case KindKeyedArray:
		if a.Shape == nil {
			return "array"
		}
		if len(a.Shape.Entries) == 0 {
			if a.Shape.Rest != nil {
				return "array<" + a.Shape.Rest.Key.Render(in) + ", " + a.Shape.Rest.Value.Render(in) + ">"
			}
			return "array"
		}
		parts := make([]string, 0, len(a.Shape.Entries))
		for _, e := range a.Shape.Entries {
			key := e.Key.String()
			if e.Optional {
				key += "?"
			}
			parts = append(parts, key+": "+e.Type.Render(in))
		}
		if a.Shape.Rest != nil {
			parts = append(parts, "...")
		}
		return "array{" + strings.Join(parts, ", ") + "}"
	case KindObject:
		if a.Object == nil {
			return "object"
		}
		switch a.Object.Kind {
		case ObjectAny:
			return "object"
		case ObjectEnum:
			if a.Object.EnumCase != source.NoNameID {
				return name(a.Object.Name) + "::" + name(a.Object.EnumCase)
			}
			return name(a.Object.Name)
		case ObjectNamed:
			s := name(a.Object.Name)
			if len(a.Object.TypeParams) > 0 {
				args := make([]string, 0, len(a.Object.TypeParams))
				for _, p := range a.Object.TypeParams {
					args = append(args, p.Render(in))
				}
				s += "<" + strings.Join(args, ", ") + ">"
			}
			for _, arm := range a.Object.Intersections {
				s += "&" + arm.Render(in)
			}
			return s
		}
		return "object"
	case KindIterable:
		if a.Iterable == nil {
			return "iterable"
		}
		return "iterable<" + a.Iterable.Key.Render(in) + ", " + a.Iterable.Value.Render(in) + ">"
	case KindCallable:
		if a.Callable == nil {
			return "callable"
		}
		if a.Callable.Kind == CallableAlias {
			if a.Callable.Alias.Class != source.NoNameID {
				return "callable-string<" + name(a.Callable.Alias.Class) + "::" + name(a.Callable.Alias.Method) + ">"
			}
			return "callable-string<" + name(a.Callable.Alias.Method) + ">"
		}
		kw := "callable"
		if a.Callable.IsClosure {
			kw = "Closure"
		}
		params := make([]string, 0, len(a.Callable.Params))
		for _, p := range a.Callable.Params {
			s := p.Type.Render(in)
			if p.Variadic {
				s = "..." + s
			}
			if p.Optional {
				s += "="
			}
			params = append(params, s)
		}
		s := kw + "(" + strings.Join(params, ", ") + ")"
		if a.Callable.Return != nil {
			s += ": " + a.Callable.Return.Render(in)
		}
		return s
	case KindGenericParam:
		if a.Generic != nil {
			return name(a.Generic.Name)
		}
		return "template-param"
	case KindConditional:
		return "(conditional)"
	case KindReference:
		if a.Ref != nil {
			return name(a.Ref.Class) + "::" + name(a.Ref.Constant)
		}
		return "(reference)"
	default:
		return a.Kind.String()
	}
}
