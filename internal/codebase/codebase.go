package codebase

import (
	"fmt"
	"sort"
	"sync"

	"mantis/internal/ast"
	"mantis/internal/source"
	"mantis/internal/ttype"
)

// Metadata is the global symbol store. Writes happen during the scan
// phase under the mutex; Populate flattens inheritance and Freeze makes
// the store immutable, after which reads need no locking.
type Metadata struct {
	mu     sync.Mutex
	frozen bool

	interner *source.Interner

	ClassLikes    map[source.NameID]*ClassLikeMetadata
	FunctionLikes map[MethodID]*FunctionLikeMetadata
}

// NewMetadata builds an empty store backed by the shared interner.
func NewMetadata(in *source.Interner) *Metadata {
	return &Metadata{
		interner:      in,
		ClassLikes:    make(map[source.NameID]*ClassLikeMetadata),
		FunctionLikes: make(map[MethodID]*FunctionLikeMetadata),
	}
}

// Interner exposes the backing interner.
func (m *Metadata) Interner() *source.Interner { return m.interner }

// AddClassLike registers a scanned class-like. Duplicate definitions keep
// the first occurrence and return an error.
func (m *Metadata) AddClassLike(c *ClassLikeMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen {
		return fmt.Errorf("codebase: add %q after freeze", m.interner.MustLookup(c.Name))
	}
	if _, ok := m.ClassLikes[c.Lowered]; ok {
		return fmt.Errorf("codebase: duplicate class-like %q", m.interner.MustLookup(c.Name))
	}
	m.ClassLikes[c.Lowered] = c
	return nil
}

// AddFunctionLike registers a scanned function-like.
func (m *Metadata) AddFunctionLike(f *FunctionLikeMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen {
		return fmt.Errorf("codebase: add %q after freeze", m.interner.MustLookup(f.Name))
	}
	if _, ok := m.FunctionLikes[f.ID]; ok {
		return fmt.Errorf("codebase: duplicate function-like %q", m.interner.MustLookup(f.Name))
	}
	m.FunctionLikes[f.ID] = f
	return nil
}

// ClassLike looks up a class-like by lowered id.
func (m *Metadata) ClassLike(lowered source.NameID) (*ClassLikeMetadata, bool) {
	c, ok := m.ClassLikes[lowered]
	return c, ok
}

// ClassLikeNamed folds the id and looks the class-like up.
func (m *Metadata) ClassLikeNamed(name source.NameID) (*ClassLikeMetadata, bool) {
	return m.ClassLike(m.interner.Lowered(name))
}

// FunctionLike looks up a function-like by id.
func (m *Metadata) FunctionLike(id MethodID) (*FunctionLikeMetadata, bool) {
	f, ok := m.FunctionLikes[id]
	return f, ok
}

// DeclaringMethod resolves (class, member) through the populated
// declaring table.
func (m *Metadata) DeclaringMethod(class, member source.NameID) (*FunctionLikeMetadata, bool) {
	c, ok := m.ClassLike(m.interner.Lowered(class))
	if !ok {
		return nil, false
	}
	id, ok := c.DeclaringMethodIDs[m.interner.Lowered(member)]
	if !ok {
		return nil, false
	}
	return m.FunctionLike(id)
}

// Populate flattens inheritance into every class-like: transitive parent
// chains, interface closures, inherited constants, properties and method
// tables. Runs to a fix-point so declaration order between files does not
// matter. Must be called once, before Freeze.
func (m *Metadata) Populate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen {
		return fmt.Errorf("codebase: populate after freeze")
	}

	order := make([]source.NameID, 0, len(m.ClassLikes))
	for id := range m.ClassLikes {
		order = append(order, id)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	done := make(map[source.NameID]bool, len(order))
	for _, id := range order {
		m.populateClass(id, done, nil)
	}
	return nil
}

// populateClass flattens one class after its ancestors. The trail guards
// against inheritance cycles; a cyclic parent edge is dropped.
func (m *Metadata) populateClass(id source.NameID, done map[source.NameID]bool, trail []source.NameID) {
	if done[id] {
		return
	}
	for _, t := range trail {
		if t == id {
			done[id] = true
			return
		}
	}
	c, ok := m.ClassLikes[id]
	if !ok {
		return
	}
	trail = append(trail, id)

	if c.DeclaringMethodIDs == nil {
		c.DeclaringMethodIDs = map[source.NameID]MethodID{}
	}
	if c.InheritableMethodIDs == nil {
		c.InheritableMethodIDs = map[source.NameID]MethodID{}
	}
	if c.OverriddenMethodIDs == nil {
		c.OverriddenMethodIDs = map[source.NameID][]MethodID{}
	}
	if c.Constants == nil {
		c.Constants = map[source.NameID]*ConstantMetadata{}
	}
	if c.Properties == nil {
		c.Properties = map[source.NameID]*PropertyMetadata{}
	}

	// Traits contribute their members as if declared locally.
	for _, traitID := range c.Traits {
		m.populateClass(traitID, done, trail)
		if trait, ok := m.ClassLikes[traitID]; ok {
			m.mergeTraitInto(c, trait)
		}
	}

	if c.ParentClass != source.NoNameID {
		m.populateClass(c.ParentClass, done, trail)
		if parent, ok := m.ClassLikes[c.ParentClass]; ok {
			c.AllParentClasses = append([]source.NameID{c.ParentClass}, parent.AllParentClasses...)
			c.AllInterfaces = appendUnique(c.AllInterfaces, parent.AllInterfaces...)
			m.mergeParentInto(c, parent)
		} else {
			c.AllParentClasses = []source.NameID{c.ParentClass}
		}
	}

	for _, ifaceID := range c.Interfaces {
		m.populateClass(ifaceID, done, trail)
		c.AllInterfaces = appendUnique(c.AllInterfaces, ifaceID)
		if iface, ok := m.ClassLikes[ifaceID]; ok {
			c.AllInterfaces = appendUnique(c.AllInterfaces, iface.AllInterfaces...)
			m.mergeInterfaceInto(c, iface)
		}
	}

	done[id] = true
}

func (m *Metadata) mergeTraitInto(c, trait *ClassLikeMetadata) {
	for name, id := range trait.InheritableMethodIDs {
		if _, ok := c.DeclaringMethodIDs[name]; !ok {
			c.DeclaringMethodIDs[name] = id
			c.InheritableMethodIDs[name] = id
		}
	}
	for name, p := range trait.Properties {
		if _, ok := c.Properties[name]; !ok {
			c.Properties[name] = p
		}
	}
}

func (m *Metadata) mergeParentInto(c, parent *ClassLikeMetadata) {
	for name, id := range parent.InheritableMethodIDs {
		if own, ok := c.DeclaringMethodIDs[name]; ok {
			if own.Class == c.Lowered {
				c.OverriddenMethodIDs[name] = append(c.OverriddenMethodIDs[name], id)
			}
			continue
		}
		c.DeclaringMethodIDs[name] = id
		c.InheritableMethodIDs[name] = id
	}
	for name, cm := range parent.Constants {
		if _, ok := c.Constants[name]; !ok {
			c.Constants[name] = cm
		}
	}
	for name, p := range parent.Properties {
		if p.Visibility == ast.Private {
			continue
		}
		if _, ok := c.Properties[name]; !ok {
			c.Properties[name] = p
		}
	}
}

func (m *Metadata) mergeInterfaceInto(c, iface *ClassLikeMetadata) {
	// Interfaces contribute constants and abstract method obligations.
	for name, cm := range iface.Constants {
		if _, ok := c.Constants[name]; !ok {
			c.Constants[name] = cm
		}
	}
	for name, id := range iface.InheritableMethodIDs {
		if own, ok := c.DeclaringMethodIDs[name]; ok && own.Class == c.Lowered {
			c.OverriddenMethodIDs[name] = append(c.OverriddenMethodIDs[name], id)
		}
	}
}

// Freeze marks the store immutable. Reads after Freeze are safe from any
// goroutine.
func (m *Metadata) Freeze() {
	m.mu.Lock()
	m.frozen = true
	m.mu.Unlock()
}

// Frozen reports whether the store has been frozen.
func (m *Metadata) Frozen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frozen
}

func appendUnique(dst []source.NameID, ids ...source.NameID) []source.NameID {
outer:
	for _, id := range ids {
		for _, have := range dst {
			if have == id {
				continue outer
			}
		}
		dst = append(dst, id)
	}
	return dst
}

// Provider adapts the frozen store to the type algebra's class queries.
// All lookups fold case through the interner, so callers may pass ids in
// source spelling.
type Provider struct {
	meta *Metadata
}

// NewProvider wraps the store.
func NewProvider(m *Metadata) *Provider { return &Provider{meta: m} }

var _ ttype.ClassProvider = (*Provider)(nil)

func (p *Provider) fold(id source.NameID) source.NameID {
	return p.meta.interner.Lowered(id)
}

func (p *Provider) ClassExists(name source.NameID) bool {
	_, ok := p.meta.ClassLikes[p.fold(name)]
	return ok
}

func (p *Provider) IsInstanceOf(sub, super source.NameID) bool {
	subID, superID := p.fold(sub), p.fold(super)
	if subID == superID {
		return true
	}
	c, ok := p.meta.ClassLikes[subID]
	if !ok {
		return false
	}
	return c.HasParent(superID)
}

func (p *Provider) ParentOf(name source.NameID) (source.NameID, bool) {
	c, ok := p.meta.ClassLikes[p.fold(name)]
	if !ok || c.ParentClass == source.NoNameID {
		return source.NoNameID, false
	}
	return c.ParentClass, true
}

func (p *Provider) TemplateConstraint(name source.NameID, idx int) (ttype.Union, bool) {
	c, ok := p.meta.ClassLikes[p.fold(name)]
	if !ok || idx < 0 || idx >= len(c.TemplateTypes) {
		return ttype.Union{}, false
	}
	t := c.TemplateTypes[idx]
	if t.Constraint == nil {
		return ttype.Mixed(), true
	}
	return t.Constraint.Clone(), true
}

func (p *Provider) ConstantType(class, constant source.NameID) (ttype.Union, bool) {
	c, ok := p.meta.ClassLikes[p.fold(class)]
	if !ok {
		return ttype.Union{}, false
	}
	cm, ok := c.Constants[p.fold(constant)]
	if !ok || cm.Type == nil {
		return ttype.Union{}, false
	}
	return cm.Type.Clone(), true
}

func (p *Provider) IsFinal(name source.NameID) bool {
	c, ok := p.meta.ClassLikes[p.fold(name)]
	return ok && c.IsFinal
}

func (p *Provider) IsInterface(name source.NameID) bool {
	c, ok := p.meta.ClassLikes[p.fold(name)]
	return ok && c.Kind == KindInterface
}
