package resolver

import (
	"testing"

	"mantis/internal/ast"
	"mantis/internal/codebase"
	"mantis/internal/source"
	"mantis/internal/ttype"
)

type world struct {
	in   *source.Interner
	meta *codebase.Metadata
	r    *Resolver

	greeter *codebase.ClassLikeMetadata
	base    *codebase.ClassLikeMetadata
	child   *codebase.ClassLikeMetadata
	box     *codebase.ClassLikeMetadata
	status  *codebase.ClassLikeMetadata
}

func (w *world) name(s string) source.NameID {
	return w.in.Lowered(w.in.Intern(s))
}

func (w *world) addClass(t *testing.T, c *codebase.ClassLikeMetadata) {
	t.Helper()
	if c.Constants == nil {
		c.Constants = map[source.NameID]*codebase.ConstantMetadata{}
	}
	if c.Properties == nil {
		c.Properties = map[source.NameID]*codebase.PropertyMetadata{}
	}
	if c.DeclaringMethodIDs == nil {
		c.DeclaringMethodIDs = map[source.NameID]codebase.MethodID{}
	}
	if c.InheritableMethodIDs == nil {
		c.InheritableMethodIDs = map[source.NameID]codebase.MethodID{}
	}
	if c.OverriddenMethodIDs == nil {
		c.OverriddenMethodIDs = map[source.NameID][]codebase.MethodID{}
	}
	if err := w.meta.AddClassLike(c); err != nil {
		t.Fatalf("AddClassLike: %v", err)
	}
}

func (w *world) addMethod(t *testing.T, c *codebase.ClassLikeMetadata, method string, vis ast.Visibility) codebase.MethodID {
	t.Helper()
	id := codebase.MethodID{Class: c.Lowered, Method: w.name(method)}
	if err := w.meta.AddFunctionLike(&codebase.FunctionLikeMetadata{
		ID:         id,
		Name:       w.in.Intern(method),
		HasBody:    true,
		Visibility: vis,
	}); err != nil {
		t.Fatalf("AddFunctionLike: %v", err)
	}
	c.DeclaringMethodIDs[id.Method] = id
	if vis != ast.Private {
		c.InheritableMethodIDs[id.Method] = id
	}
	return id
}

// newWorld builds: interface greeter, class base implements greeter with
// greet/hidden/shared methods, label/secret properties and MODE/TOKEN
// constants, final class child extends base, generic class box<T> with
// get(), and enum status with an ACTIVE case.
func newWorld(t *testing.T) *world {
	t.Helper()
	in := source.NewInterner()
	w := &world{in: in, meta: codebase.NewMetadata(in)}

	w.greeter = &codebase.ClassLikeMetadata{
		Name:    in.Intern("Greeter"),
		Lowered: w.name("Greeter"),
		Kind:    codebase.KindInterface,
	}
	w.addClass(t, w.greeter)

	modeType := ttype.NewUnion(ttype.MakeString())
	labelType := ttype.NewUnion(ttype.MakeString())
	w.base = &codebase.ClassLikeMetadata{
		Name:       in.Intern("Base"),
		Lowered:    w.name("Base"),
		Kind:       codebase.KindClass,
		Interfaces: []source.NameID{w.greeter.Lowered},
		Constants: map[source.NameID]*codebase.ConstantMetadata{
			w.name("MODE"):  {Name: in.Intern("MODE"), Type: &modeType, Visibility: ast.Public, Declaring: w.name("Base")},
			w.name("TOKEN"): {Name: in.Intern("TOKEN"), Visibility: ast.Protected, Declaring: w.name("Base")},
		},
		Properties: map[source.NameID]*codebase.PropertyMetadata{
			w.name("label"):  {Name: in.Intern("label"), Type: &labelType, Visibility: ast.Public, Declaring: w.name("Base")},
			w.name("secret"): {Name: in.Intern("secret"), Visibility: ast.Private, Declaring: w.name("Base")},
		},
	}
	w.addClass(t, w.base)
	w.addMethod(t, w.base, "greet", ast.Public)
	w.addMethod(t, w.base, "hidden", ast.Private)
	w.addMethod(t, w.base, "shared", ast.Protected)

	w.child = &codebase.ClassLikeMetadata{
		Name:        in.Intern("Child"),
		Lowered:     w.name("Child"),
		Kind:        codebase.KindClass,
		IsFinal:     true,
		ParentClass: w.base.Lowered,
	}
	w.addClass(t, w.child)

	w.box = &codebase.ClassLikeMetadata{
		Name:    in.Intern("Box"),
		Lowered: w.name("Box"),
		Kind:    codebase.KindClass,
		TemplateTypes: []codebase.TemplateMetadata{
			{Name: in.Intern("T")},
		},
	}
	w.addClass(t, w.box)
	w.addMethod(t, w.box, "get", ast.Public)

	w.status = &codebase.ClassLikeMetadata{
		Name:    in.Intern("Status"),
		Lowered: w.name("Status"),
		Kind:    codebase.KindEnum,
		EnumCases: map[source.NameID]*codebase.EnumCaseMetadata{
			w.name("ACTIVE"): {Name: in.Intern("ACTIVE")},
		},
	}
	w.addClass(t, w.status)

	if err := w.meta.Populate(); err != nil {
		t.Fatalf("Populate: %v", err)
	}
	w.meta.Freeze()
	w.r = New(w.meta)
	return w
}

func fixedRef(name source.NameID, start uint32) ast.ClassRef {
	return ast.ClassRef{Sp: source.Span{File: 1, Start: start, End: start + 4}, Name: name}
}

func dynamicRef() ast.ClassRef {
	return ast.ClassRef{Dynam: &ast.Variable{Name: source.NoNameID}}
}

func TestResolveFixedName(t *testing.T) {
	w := newWorld(t)
	module := &ast.Module{
		File: 1,
		ResolvedNames: map[uint32]ast.ResolvedName{
			10: {FQN: w.in.Intern("Child"), Imported: true},
		},
	}

	got := w.r.ResolveClassname(module, fixedRef(w.in.Intern("Child"), 10), nil, Scope{})
	if len(got) != 1 || got[0].Origin != OriginNamed || got[0].FQCN != w.child.Lowered {
		t.Fatalf("resolved-names entry should win: %+v", got)
	}

	// Without a resolved-names entry the lowered spelling stands.
	got = w.r.ResolveClassname(module, fixedRef(w.in.Intern("BASE"), 99), nil, Scope{})
	if got[0].FQCN != w.base.Lowered || got[0].Origin != OriginNamed {
		t.Fatalf("bare name should lower and resolve: %+v", got)
	}
}

func TestResolveScopedKeywords(t *testing.T) {
	w := newWorld(t)
	module := &ast.Module{File: 1}
	inChild := Scope{Class: w.child.Lowered}

	got := w.r.ResolveClassname(module, fixedRef(w.in.Intern("self"), 0), nil, inChild)
	if got[0].FQCN != w.child.Lowered || !got[0].IsSelf {
		t.Fatalf("self in child: %+v", got)
	}

	got = w.r.ResolveClassname(module, fixedRef(w.in.Intern("parent"), 0), nil, inChild)
	if got[0].FQCN != w.base.Lowered || !got[0].IsParent {
		t.Fatalf("parent in child: %+v", got)
	}

	// base has no parent class.
	got = w.r.ResolveClassname(module, fixedRef(w.in.Intern("parent"), 0), nil, Scope{Class: w.base.Lowered})
	if got[0].Origin != OriginInvalid || !got[0].IsParent {
		t.Fatalf("parent without a parent: %+v", got)
	}

	got = w.r.ResolveClassname(module, fixedRef(w.in.Intern("static"), 0), nil, inChild)
	if got[0].Origin != OriginStatic || got[0].CanExtend {
		t.Fatalf("static in a final class cannot extend: %+v", got)
	}
	got = w.r.ResolveClassname(module, fixedRef(w.in.Intern("static"), 0), nil, Scope{Class: w.base.Lowered})
	if got[0].Origin != OriginStatic || !got[0].CanExtend {
		t.Fatalf("static in an open class: %+v", got)
	}

	// Outside any class the keywords are invalid.
	got = w.r.ResolveClassname(module, fixedRef(w.in.Intern("self"), 0), nil, Scope{})
	if got[0].Origin != OriginInvalid {
		t.Fatalf("self at top level: %+v", got)
	}
}

func TestResolveDynamicClassname(t *testing.T) {
	w := newWorld(t)
	module := &ast.Module{File: 1}
	inferred := ttype.NewUnion(
		ttype.MakeNamedObject(w.in.Intern("Child")),
		ttype.MakeLiteralClassString(w.base.Lowered),
		ttype.MakeClassStringOf(w.base.Lowered),
		ttype.MakeLiteralString("Base"),
		ttype.MakeAnyObject(),
		ttype.MakeMixed(),
	)

	got := w.r.ResolveClassname(module, dynamicRef(), &inferred, Scope{})
	byOrigin := map[Origin]ResolvedClassname{}
	for _, cand := range got {
		byOrigin[cand.Origin] = cand
	}

	if c, ok := byOrigin[OriginObject]; !ok || c.FQCN != w.child.Lowered {
		t.Fatalf("object atomic should pin its class: %+v", got)
	}
	if c, ok := byOrigin[OriginLiteralClassString]; !ok || c.FQCN != w.base.Lowered {
		t.Fatalf("C::class value should pin its class: %+v", got)
	}
	if c, ok := byOrigin[OriginGenericClassString]; !ok || c.Origin.Ambiguous() {
		t.Fatalf("class-string<C> keeps a class but stays generic: %+v", c)
	} else if c.FQCN != w.base.Lowered {
		t.Fatalf("class-string<C> should carry C: %+v", c)
	}
	if c, ok := byOrigin[OriginGenericString]; !ok || c.FQCN != w.base.Lowered || !c.Origin.Ambiguous() {
		t.Fatalf("a literal string is an ambiguous candidate: %+v", c)
	}
	if _, ok := byOrigin[OriginGenericObject]; !ok {
		t.Fatalf("an unnamed object is a generic candidate")
	}
	if _, ok := byOrigin[OriginMixed]; !ok {
		t.Fatalf("mixed contributes an ambiguous candidate")
	}
}

func TestResolveDynamicWithoutType(t *testing.T) {
	w := newWorld(t)
	got := w.r.ResolveClassname(&ast.Module{File: 1}, dynamicRef(), nil, Scope{})
	if len(got) != 1 || got[0].Origin != OriginInvalid {
		t.Fatalf("no inferred type means no candidates: %+v", got)
	}
}

func TestResolveMethodTargets(t *testing.T) {
	w := newWorld(t)
	childObj := ttype.NewUnion(ttype.MakeNamedObject(w.in.Intern("Child")))
	greet := []source.NameID{w.in.Intern("greet")}

	res := w.r.ResolveMethodTargets(childObj, greet, false, Scope{})
	if !res.HasValidTarget || res.HasInvalidTarget {
		t.Fatalf("greet resolves on child: %+v", res)
	}
	if len(res.ResolvedMethods) != 1 {
		t.Fatalf("one candidate expected, got %d", len(res.ResolvedMethods))
	}
	m := res.ResolvedMethods[0]
	if m.ID.Class != w.base.Lowered || m.ViaClass != w.child.Lowered {
		t.Fatalf("the inherited body declares in base, reached via child: %+v", m)
	}

	res = w.r.ResolveMethodTargets(childObj, []source.NameID{w.in.Intern("fly")}, false, Scope{})
	if !res.HasMissingMethod || !res.HasInvalidTarget {
		t.Fatalf("unknown selector: %+v", res)
	}
}

func TestResolveMethodVisibility(t *testing.T) {
	w := newWorld(t)
	baseObj := ttype.NewUnion(ttype.MakeNamedObject(w.in.Intern("Base")))

	res := w.r.ResolveMethodTargets(baseObj, []source.NameID{w.in.Intern("hidden")}, false, Scope{})
	if !res.HasInaccessible || res.HasValidTarget {
		t.Fatalf("private methods hide from outside: %+v", res)
	}
	res = w.r.ResolveMethodTargets(baseObj, []source.NameID{w.in.Intern("hidden")}, false, Scope{Class: w.base.Lowered})
	if !res.HasValidTarget {
		t.Fatalf("private methods resolve in their own class: %+v", res)
	}

	res = w.r.ResolveMethodTargets(baseObj, []source.NameID{w.in.Intern("shared")}, false, Scope{Class: w.child.Lowered})
	if !res.HasValidTarget {
		t.Fatalf("protected methods resolve from a subclass: %+v", res)
	}
	res = w.r.ResolveMethodTargets(baseObj, []source.NameID{w.in.Intern("shared")}, false, Scope{})
	if !res.HasInaccessible {
		t.Fatalf("protected methods hide from top-level code: %+v", res)
	}
}

func TestResolveMethodNullAndNonObject(t *testing.T) {
	w := newWorld(t)
	greet := []source.NameID{w.in.Intern("greet")}

	nullable := ttype.NewUnion(ttype.MakeNull(), ttype.MakeNamedObject(w.in.Intern("Child")))
	res := w.r.ResolveMethodTargets(nullable, greet, false, Scope{})
	if !res.HasNullTarget || !res.HasValidTarget {
		t.Fatalf("a nullable receiver flags the null and still resolves: %+v", res)
	}
	res = w.r.ResolveMethodTargets(nullable, greet, true, Scope{})
	if res.HasNullTarget || res.HasInvalidTarget {
		t.Fatalf("nullsafe calls swallow the null arm: %+v", res)
	}

	res = w.r.ResolveMethodTargets(ttype.NewUnion(ttype.MakeInt()), greet, false, Scope{})
	if !res.EncounteredNonObject || !res.HasInvalidTarget {
		t.Fatalf("an int receiver is not callable: %+v", res)
	}
	res = w.r.ResolveMethodTargets(ttype.Mixed(), greet, false, Scope{})
	if !res.EncounteredMixed || res.HasInvalidTarget {
		t.Fatalf("mixed receivers stay inconclusive: %+v", res)
	}

	res = w.r.ResolveMethodTargets(ttype.NewUnion(ttype.MakeNamedObject(w.in.Intern("Ghost"))), greet, false, Scope{})
	if !res.HasInvalidTarget || res.HasValidTarget {
		t.Fatalf("an unknown class cannot resolve: %+v", res)
	}

	res = w.r.ResolveMethodTargets(ttype.NewUnion(ttype.MakeNamedObject(w.in.Intern("Child"))), nil, false, Scope{})
	if !res.HasDynamicSelector {
		t.Fatalf("an empty selector set is a dynamic call: %+v", res)
	}
}

func TestResolveMethodCollectsTemplates(t *testing.T) {
	w := newWorld(t)
	get := []source.NameID{w.in.Intern("get")}
	tKey := ttype.TemplateKey{Defining: w.box.Lowered, Name: w.name("T")}

	boxed := ttype.NewUnion(ttype.MakeNamedObject(w.in.Intern("Box"), ttype.NewUnion(ttype.MakeInt())))
	res := w.r.ResolveMethodTargets(boxed, get, false, Scope{})
	if !res.HasValidTarget {
		t.Fatalf("get resolves on box: %+v", res)
	}
	got, ok := res.Templates[tKey]
	if !ok || !ttype.UnionEqual(got, ttype.NewUnion(ttype.MakeInt())) {
		t.Fatalf("the receiver's type argument should bind T, got %+v", res.Templates)
	}

	// Without a type argument the parameter falls back to mixed.
	bare := ttype.NewUnion(ttype.MakeNamedObject(w.in.Intern("Box")))
	res = w.r.ResolveMethodTargets(bare, get, false, Scope{})
	if got, ok := res.Templates[tKey]; !ok || !got.IsMixed() {
		t.Fatalf("an unbound parameter defaults to mixed, got %+v", res.Templates)
	}
}

func TestResolveProperty(t *testing.T) {
	w := newWorld(t)
	childObj := ttype.NewUnion(ttype.MakeNamedObject(w.in.Intern("Child")))

	res := w.r.ResolveProperty(childObj, w.in.Intern("label"), false, Scope{})
	if !res.HasValidTarget || len(res.ResolvedProperties) != 1 {
		t.Fatalf("label inherits onto child: %+v", res)
	}
	if res.ResolvedProperties[0].Meta.Declaring != w.base.Lowered {
		t.Fatalf("the property declares in base")
	}

	// Private properties do not inherit, so on child the name is simply
	// missing.
	res = w.r.ResolveProperty(childObj, w.in.Intern("secret"), false, Scope{})
	if !res.HasMissingProperty {
		t.Fatalf("secret is not visible on child: %+v", res)
	}

	baseObj := ttype.NewUnion(ttype.MakeNamedObject(w.in.Intern("Base")))
	res = w.r.ResolveProperty(baseObj, w.in.Intern("secret"), false, Scope{})
	if !res.HasInaccessible {
		t.Fatalf("secret on base from outside: %+v", res)
	}
	res = w.r.ResolveProperty(baseObj, w.in.Intern("secret"), false, Scope{Class: w.base.Lowered})
	if !res.HasValidTarget {
		t.Fatalf("secret resolves inside base: %+v", res)
	}
}

func TestResolvePropertyReceiverArms(t *testing.T) {
	w := newWorld(t)
	label := w.in.Intern("label")

	nullable := ttype.NewUnion(ttype.MakeNull(), ttype.MakeNamedObject(w.in.Intern("Base")))
	res := w.r.ResolveProperty(nullable, label, false, Scope{})
	if !res.HasNullTarget || !res.HasValidTarget {
		t.Fatalf("nullable receiver: %+v", res)
	}
	res = w.r.ResolveProperty(nullable, label, true, Scope{})
	if res.HasNullTarget {
		t.Fatalf("nullsafe fetch swallows the null arm: %+v", res)
	}

	res = w.r.ResolveProperty(ttype.NewUnion(ttype.MakeString()), label, false, Scope{})
	if !res.EncounteredNonObject {
		t.Fatalf("a string has no properties: %+v", res)
	}
	res = w.r.ResolveProperty(ttype.Mixed(), label, false, Scope{})
	if !res.EncounteredMixed || res.HasInvalidTarget {
		t.Fatalf("mixed receivers stay inconclusive: %+v", res)
	}
}

func TestResolveClassConstants(t *testing.T) {
	w := newWorld(t)
	named := []ResolvedClassname{{FQCN: w.child.Lowered, Origin: OriginNamed}}

	res := w.r.ResolveClassConstants(named, w.in.Intern("MODE"), Scope{})
	if !res.HasValidTarget || len(res.Types) != 1 {
		t.Fatalf("MODE inherits onto child: %+v", res)
	}
	if !ttype.UnionEqual(res.Types[0], ttype.NewUnion(ttype.MakeString())) {
		t.Fatalf("MODE is a string")
	}

	res = w.r.ResolveClassConstants(named, w.in.Intern("NOPE"), Scope{})
	if !res.HasMissingConstant {
		t.Fatalf("unknown constant: %+v", res)
	}

	res = w.r.ResolveClassConstants(named, w.in.Intern("TOKEN"), Scope{})
	if !res.HasInaccessible {
		t.Fatalf("protected constants hide from top-level code: %+v", res)
	}
	res = w.r.ResolveClassConstants(named, w.in.Intern("TOKEN"), Scope{Class: w.child.Lowered})
	if !res.HasValidTarget {
		t.Fatalf("protected constants resolve from the subclass: %+v", res)
	}
}

func TestResolveEnumCase(t *testing.T) {
	w := newWorld(t)
	cand := []ResolvedClassname{{FQCN: w.status.Lowered, Origin: OriginNamed}}

	res := w.r.ResolveClassConstants(cand, w.in.Intern("ACTIVE"), Scope{})
	if !res.HasValidTarget || len(res.Types) != 1 {
		t.Fatalf("Status::ACTIVE: %+v", res)
	}
	single, ok := res.Types[0].Single()
	if !ok || single.Kind != ttype.KindObject || single.Object.Kind != ttype.ObjectEnum {
		t.Fatalf("an enum case fetch yields the case type, got %+v", res.Types[0])
	}
	if single.Object.EnumCase != w.in.Intern("ACTIVE") {
		t.Fatalf("the case name should be pinned")
	}
}

func TestResolveMagicClassConstant(t *testing.T) {
	w := newWorld(t)
	class := w.in.Intern("class")

	res := w.r.ResolveClassConstants([]ResolvedClassname{{FQCN: w.base.Lowered, Origin: OriginNamed}}, class, Scope{})
	if !res.HasValidTarget {
		t.Fatalf("C::class: %+v", res)
	}
	single, _ := res.Types[0].Single()
	if single.Kind != ttype.KindClassString || single.ClassStr.Kind != ttype.ClassStringLiteral {
		t.Fatalf("C::class is a literal class-string, got %+v", single)
	}

	res = w.r.ResolveClassConstants([]ResolvedClassname{{FQCN: w.base.Lowered, Origin: OriginStatic, CanExtend: true}}, class, Scope{})
	single, _ = res.Types[0].Single()
	if single.Kind != ttype.KindClassString || single.ClassStr.Kind != ttype.ClassStringOfType {
		t.Fatalf("static::class on an open class widens to class-string<C>, got %+v", single)
	}

	res = w.r.ResolveClassConstants([]ResolvedClassname{{FQCN: w.base.Lowered, Origin: OriginGenericString}}, class, Scope{})
	if !res.MagicClassOnAmbiguous || res.HasValidTarget {
		t.Fatalf("::class on a plain string is flagged: %+v", res)
	}
}

func TestCanAccess(t *testing.T) {
	w := newWorld(t)
	cases := []struct {
		vis       ast.Visibility
		declaring source.NameID
		scope     Scope
		want      bool
	}{
		{ast.Public, w.base.Lowered, Scope{}, true},
		{ast.Private, w.base.Lowered, Scope{}, false},
		{ast.Private, w.base.Lowered, Scope{Class: w.base.Lowered}, true},
		{ast.Private, w.base.Lowered, Scope{Class: w.child.Lowered}, false},
		{ast.Protected, w.base.Lowered, Scope{}, false},
		{ast.Protected, w.base.Lowered, Scope{Class: w.base.Lowered}, true},
		{ast.Protected, w.base.Lowered, Scope{Class: w.child.Lowered}, true},
		// Downward: base code touching a member child declares.
		{ast.Protected, w.child.Lowered, Scope{Class: w.base.Lowered}, true},
		{ast.Protected, w.base.Lowered, Scope{Class: w.box.Lowered}, false},
	}
	for i, c := range cases {
		if got := w.r.CanAccess(c.vis, c.declaring, c.scope); got != c.want {
			t.Fatalf("case %d: CanAccess(%v) = %v, want %v", i, c.vis, got, c.want)
		}
	}
}
