package codebase

import (
	"mantis/internal/ast"
	"mantis/internal/source"
)

// Scanner extracts declaration metadata from modules. One scanner may be
// shared across goroutines during the scan phase; the store serializes
// writes itself.
type Scanner struct {
	meta *Metadata

	constructName source.NameID // lowered "__construct"
	overrideName  source.NameID // lowered "override"
	taintSource   source.NameID
	taintSink     source.NameID
	sanitizeName  source.NameID
	pureName      source.NameID
}

// NewScanner builds a scanner over the store.
func NewScanner(meta *Metadata) *Scanner {
	in := meta.Interner()
	return &Scanner{
		meta:          meta,
		constructName: in.Lowered(in.Intern("__construct")),
		overrideName:  in.Lowered(in.Intern("Override")),
		taintSource:   in.Lowered(in.Intern("TaintSource")),
		taintSink:     in.Lowered(in.Intern("TaintSink")),
		sanitizeName:  in.Lowered(in.Intern("Sanitize")),
		pureName:      in.Lowered(in.Intern("Pure")),
	}
}

// Scan records every class-like and function-like declared in the module.
// Declaration problems (duplicates) come back as errors; the first
// declaration always wins.
func (s *Scanner) Scan(module *ast.Module) []error {
	var errs []error
	for _, stmt := range module.Stmts {
		switch d := stmt.(type) {
		case *ast.ClassDecl:
			if err := s.scanClassLike(module, d); err != nil {
				errs = append(errs, err)
			}
		case *ast.FunctionDecl:
			if err := s.scanFunction(module, d, nil); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errs
}

func (s *Scanner) scanClassLike(module *ast.Module, d *ast.ClassDecl) error {
	in := s.meta.Interner()
	c := &ClassLikeMetadata{
		Name:       d.Name,
		Lowered:    in.Lowered(d.Name),
		Kind:       classKind(d.Kind),
		Span:       d.Sp,
		NameSpan:   d.NameSp,
		File:       module.File,
		IsAbstract: d.Kind == ast.ClassAbstract || d.Kind == ast.ClassInterface,
		IsFinal:    d.Kind == ast.ClassFinal || d.Kind == ast.ClassEnum,

		Constants:            map[source.NameID]*ConstantMetadata{},
		Properties:           map[source.NameID]*PropertyMetadata{},
		DeclaringMethodIDs:   map[source.NameID]MethodID{},
		InheritableMethodIDs: map[source.NameID]MethodID{},
		OverriddenMethodIDs:  map[source.NameID][]MethodID{},
	}

	for _, t := range d.Templates {
		c.TemplateTypes = append(c.TemplateTypes, TemplateMetadata{
			Name:       t.Name,
			Constraint: t.Constraint,
		})
	}

	if d.Kind == ast.ClassInterface {
		for _, ref := range d.Extends {
			c.Interfaces = append(c.Interfaces, s.resolveRef(module, ref))
		}
	} else if len(d.Extends) > 0 {
		c.ParentClass = s.resolveRef(module, d.Extends[0])
	}
	for _, ref := range d.Implements {
		c.Interfaces = append(c.Interfaces, s.resolveRef(module, ref))
	}
	for _, ref := range d.Uses {
		c.Traits = append(c.Traits, s.resolveRef(module, ref))
	}

	for i := range d.Consts {
		cd := &d.Consts[i]
		c.Constants[in.Lowered(cd.Name)] = &ConstantMetadata{
			Name:       cd.Name,
			Type:       cd.Type,
			Visibility: cd.Visibility,
			Declaring:  c.Lowered,
			Span:       cd.Sp,
		}
	}
	for i := range d.Props {
		pd := &d.Props[i]
		c.Properties[in.Lowered(pd.Name)] = &PropertyMetadata{
			Name:       pd.Name,
			Type:       pd.Type,
			Visibility: pd.Visibility,
			Static:     pd.Static,
			Readonly:   pd.Readonly,
			Declaring:  c.Lowered,
			Span:       pd.Sp,
		}
	}
	if d.Kind == ast.ClassEnum {
		c.EnumCases = map[source.NameID]*EnumCaseMetadata{}
		c.EnumBacking = d.EnumBacking
		for i := range d.EnumCases {
			ec := &d.EnumCases[i]
			c.EnumCases[in.Lowered(ec.Name)] = &EnumCaseMetadata{
				Name:  ec.Name,
				Span:  ec.Sp,
				Value: ec.Value,
			}
		}
	}

	if err := s.meta.AddClassLike(c); err != nil {
		return err
	}

	for _, method := range d.Methods {
		if err := s.scanFunction(module, method, c); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scanner) scanFunction(module *ast.Module, d *ast.FunctionDecl, owner *ClassLikeMetadata) error {
	in := s.meta.Interner()
	id := MethodID{Class: source.NoNameID, Method: in.Lowered(d.Name)}
	if owner != nil {
		id.Class = owner.Lowered
	}

	f := &FunctionLikeMetadata{
		ID:            id,
		Name:          d.Name,
		Span:          d.Sp,
		NameSpan:      d.NameSp,
		File:          module.File,
		Return:        d.Return,
		Visibility:    d.Visibility,
		Static:        d.Static,
		Abstract:      d.Abstract,
		Final:         d.Final,
		HasBody:       d.HasBody,
		IsConstructor: id.Method == s.constructName,

		// Constructor promotion aside, signature attributes are the only
		// scan-time use of the attribute list.
		HasOverrideAttribute: s.hasAttribute(d.Attributes, s.overrideName),
		TaintSource:          s.hasAttribute(d.Attributes, s.taintSource),
		TaintSink:            s.hasAttribute(d.Attributes, s.taintSink),
		Sanitizes:            s.hasAttribute(d.Attributes, s.sanitizeName),
		Pure:                 s.hasAttribute(d.Attributes, s.pureName),
	}
	for _, t := range d.Templates {
		f.Templates = append(f.Templates, TemplateMetadata{Name: t.Name, Constraint: t.Constraint})
	}
	for _, p := range d.Params {
		f.Params = append(f.Params, ParamMetadata{
			Name:     p.Name,
			Type:     p.Type,
			Optional: p.Default != nil,
			ByRef:    p.ByRef,
			Variadic: p.Variadic,
			Promoted: p.Promoted,
		})
		if p.Promoted && owner != nil {
			owner.Properties[in.Lowered(p.Name)] = &PropertyMetadata{
				Name:       p.Name,
				Type:       p.Type,
				Visibility: ast.Public,
				Declaring:  owner.Lowered,
				Span:       p.Sp,
			}
		}
	}

	if err := s.meta.AddFunctionLike(f); err != nil {
		return err
	}
	if owner != nil {
		owner.DeclaringMethodIDs[id.Method] = id
		if d.Visibility != ast.Private {
			owner.InheritableMethodIDs[id.Method] = id
		}
	}
	return nil
}

// resolveRef prefers the front end's resolved-names entry for the ref's
// position; unresolved refs fall back to the spelled name.
func (s *Scanner) resolveRef(module *ast.Module, ref ast.ClassRef) source.NameID {
	in := s.meta.Interner()
	if rn, ok := module.ResolveName(ref.Sp.Start); ok {
		return in.Lowered(rn.FQN)
	}
	return in.Lowered(ref.Name)
}

func (s *Scanner) hasAttribute(attrs []ast.Attribute, lowered source.NameID) bool {
	in := s.meta.Interner()
	for _, a := range attrs {
		if in.Lowered(a.Name) == lowered {
			return true
		}
	}
	return false
}

func classKind(k ast.ClassKind) ClassLikeKind {
	switch k {
	case ast.ClassInterface:
		return KindInterface
	case ast.ClassTrait:
		return KindTrait
	case ast.ClassEnum:
		return KindEnum
	}
	return KindClass
}
