package clause

import (
	"sort"
	"strings"

	"mantis/internal/source"
)

// Clause is one conjunct of the active path predicate: for every variable
// key it holds, at least one of that key's assertions is true.
type Clause struct {
	// Possibilities maps a var key to its ordered disjunction.
	Possibilities map[string][]Assertion

	// Wedge marks an opaque branch boundary. Wedge clauses survive every
	// reconciliation and filter untouched.
	Wedge bool

	// Reconcilable clauses may be applied to locals.
	Reconcilable bool

	// Generated clauses were derived (negations, simplifications) rather
	// than taken directly from a condition.
	Generated bool

	// Span of the condition the clause came from.
	Span source.Span

	hash string
}

// New builds a clause and precomputes its hash.
func New(possibilities map[string][]Assertion, span source.Span, wedge, reconcilable, generated bool) *Clause {
	c := &Clause{
		Possibilities: possibilities,
		Wedge:         wedge,
		Reconcilable:  reconcilable,
		Generated:     generated,
		Span:          span,
	}
	c.hash = c.computeHash()
	return c
}

// NewWedge builds the opaque branch-boundary clause.
func NewWedge(span source.Span) *Clause {
	return New(map[string][]Assertion{}, span, true, false, false)
}

// Single builds a reconcilable clause with one assertion for one key.
func Single(key string, a Assertion, span source.Span, generated bool) *Clause {
	return New(map[string][]Assertion{key: {a}}, span, false, true, generated)
}

// Hash is a stable key over the sorted (var, sorted assertion hashes)
// pairs; equivalent clauses share it.
func (c *Clause) Hash() string {
	if c.hash == "" {
		c.hash = c.computeHash()
	}
	return c.hash
}

func (c *Clause) computeHash() string {
	if c.Wedge {
		return "wedge:" + c.Span.String()
	}
	keys := make([]string, 0, len(c.Possibilities))
	for k := range c.Possibilities {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		hashes := make([]string, 0, len(c.Possibilities[k]))
		for _, a := range c.Possibilities[k] {
			hashes = append(hashes, a.Hash())
		}
		sort.Strings(hashes)
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(strings.Join(hashes, ","))
		sb.WriteByte(';')
	}
	return sb.String()
}

// Equivalent reports whether two clauses assert the same thing.
func Equivalent(a, b *Clause) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Hash() == b.Hash()
}

// Keys returns the clause's variable keys in sorted order.
func (c *Clause) Keys() []string {
	keys := make([]string, 0, len(c.Possibilities))
	for k := range c.Possibilities {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Mentions reports whether the clause has possibilities for key or for a
// member chain rooted at key.
func (c *Clause) Mentions(root string) bool {
	for k := range c.Possibilities {
		if VarHasRoot(k, root) {
			return true
		}
	}
	return false
}

// Clone copies the clause. Assertions are shared (immutable).
func (c *Clause) Clone() *Clause {
	poss := make(map[string][]Assertion, len(c.Possibilities))
	for k, v := range c.Possibilities {
		poss[k] = append([]Assertion(nil), v...)
	}
	out := *c
	out.Possibilities = poss
	return &out
}

// RemoveKey returns a copy without the key, or nil when nothing remains.
func (c *Clause) RemoveKey(key string) *Clause {
	if _, ok := c.Possibilities[key]; !ok {
		return c
	}
	if len(c.Possibilities) == 1 {
		return nil
	}
	out := c.Clone()
	delete(out.Possibilities, key)
	out.hash = ""
	return out
}

// String renders the clause for debugging.
func (c *Clause) String(in *source.Interner) string {
	if c.Wedge {
		return "<wedge>"
	}
	var parts []string
	for _, k := range c.Keys() {
		var alts []string
		for _, a := range c.Possibilities[k] {
			alts = append(alts, k+" "+a.String(in))
		}
		parts = append(parts, "("+strings.Join(alts, " or ")+")")
	}
	return strings.Join(parts, " and ")
}
