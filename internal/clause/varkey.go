package clause

import (
	"strings"
)

// Var keys encode variable-or-member access chains as strings: `$x`,
// `$x->y`, `$x?->y`, `C::K`, `$x['k']`. Member chains are what clause
// invalidation walks when a root is reassigned.

// MemberKey builds the key of a property access.
func MemberKey(base, prop string) string {
	return base + "->" + prop
}

// NullsafeMemberKey builds the key of a null-safe property access.
func NullsafeMemberKey(base, prop string) string {
	return base + "?->" + prop
}

// StaticKey builds the key of a class constant or static member.
func StaticKey(class, member string) string {
	return class + "::" + member
}

// IndexKey builds the key of an array access. Indexes that could be
// mistaken for member separators are escaped, so a pathological
// interpolated index containing `->` never masquerades as a member chain.
func IndexKey(base, index string) string {
	return base + "[" + escapeIndex(index) + "]"
}

func escapeIndex(index string) string {
	if strings.ContainsAny(index, "'[]") ||
		strings.Contains(index, "->") || strings.Contains(index, "::") {
		return "'" + strings.ReplaceAll(index, "'", "\\'") + "'"
	}
	return index
}

// VarHasRoot reports whether key is root itself or a member/index/static
// chain rooted at root.
func VarHasRoot(key, root string) bool {
	if key == root {
		return true
	}
	if !strings.HasPrefix(key, root) {
		return false
	}
	rest := key[len(root):]
	return strings.HasPrefix(rest, "[") ||
		strings.HasPrefix(rest, "->") ||
		strings.HasPrefix(rest, "?->") ||
		strings.HasPrefix(rest, "::")
}
