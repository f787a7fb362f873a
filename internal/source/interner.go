package source

import (
	"fmt"
	"slices"
	"sync"

	"fortio.org/safecast"
	"golang.org/x/text/cases"
)

// NameID is a dense identifier for an interned string.
type NameID uint32

// NoNameID marks the absence of a name.
const NoNameID NameID = 0

// Interner deduplicates strings into dense NameIDs. It is safe for
// concurrent use: analysis workers intern and look up names while sharing
// one instance by reference.
//
// Every interned name has a lowered twin produced by Unicode case folding.
// Class, function and method lookups in the analyzed language are
// case-insensitive, so resolvers compare lowered ids while messages keep
// the original spelling.
type Interner struct {
	mu      sync.RWMutex
	byID    []string
	index   map[string]NameID
	lowered []NameID // parallel to byID
	folder  cases.Caser
}

// NewInterner constructs an interner with NoNameID reserved for "".
func NewInterner() *Interner {
	in := &Interner{
		byID:    []string{""},
		index:   map[string]NameID{"": 0},
		lowered: []NameID{0},
		folder:  cases.Fold(),
	}
	return in
}

// Intern stores s (if new) and returns its NameID.
func (in *Interner) Intern(s string) NameID {
	in.mu.RLock()
	if id, ok := in.index[s]; ok {
		in.mu.RUnlock()
		return id
	}
	in.mu.RUnlock()

	in.mu.Lock()
	defer in.mu.Unlock()
	return in.internLocked(s)
}

func (in *Interner) internLocked(s string) NameID {
	if id, ok := in.index[s]; ok {
		return id
	}
	// Copy so we never alias a caller-owned buffer.
	cpy := string([]byte(s))
	value, err := safecast.Conv[uint32](len(in.byID))
	if err != nil {
		panic(fmt.Errorf("interner overflow: %w", err))
	}
	id := NameID(value)
	in.byID = append(in.byID, cpy)
	in.index[cpy] = id
	in.lowered = append(in.lowered, 0) // reserve slot before folding recurses

	folded := in.folder.String(cpy)
	if folded == cpy {
		in.lowered[id] = id
	} else {
		in.lowered[id] = in.internLocked(folded)
	}
	return id
}

// InternBytes interns the byte slice as a string.
func (in *Interner) InternBytes(b []byte) NameID {
	return in.Intern(string(b))
}

// Lookup returns the string for id, or ("", false) for invalid ids.
func (in *Interner) Lookup(id NameID) (string, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if int(id) >= len(in.byID) {
		return "", false
	}
	return in.byID[id], true
}

// MustLookup panics on an invalid id.
func (in *Interner) MustLookup(id NameID) string {
	s, ok := in.Lookup(id)
	if !ok {
		panic("source: invalid NameID")
	}
	return s
}

// Lowered returns the case-folded twin of id. Stable: folding the same
// name always yields the same id.
func (in *Interner) Lowered(id NameID) NameID {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if int(id) >= len(in.lowered) {
		return NoNameID
	}
	return in.lowered[id]
}

// Has reports whether id is valid.
func (in *Interner) Has(id NameID) bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return int(id) < len(in.byID)
}

// Len returns the number of interned strings, counting NoNameID.
func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.byID)
}

// Snapshot returns a copy of all interned strings, indexed by NameID.
func (in *Interner) Snapshot() []string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return slices.Clone(in.byID)
}
