// Package template fills `${name}` placeholders in a pattern string from a
// variable map. It does not interpret LDAP syntax; callers hand the filled
// string to whatever predicate needs it (a DN, a filter fragment, ...).
package template

import "regexp"

var placeholder = regexp.MustCompile(`\$\{([^}]*)\}`)

// Lookup is satisfied by query.Vars (and by a plain map for tests).
type Lookup interface {
	Get(name string) (string, bool)
}

// mapLookup adapts a plain map[string]string to Lookup.
type mapLookup map[string]string

func (m mapLookup) Get(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

// FillMap is a convenience wrapper over Fill for callers holding a plain map.
func FillMap(pattern string, vars map[string]string) string {
	return Fill(pattern, mapLookup(vars))
}

// Fill substitutes every `${name}` occurrence in pattern with the bound
// value of name. An unbound name is replaced with the empty string; the
// placeholder is always consumed, never left verbatim.
func Fill(pattern string, vars Lookup) string {
	return placeholder.ReplaceAllStringFunc(pattern, func(match string) string {
		name := placeholder.FindStringSubmatch(match)[1]
		if v, ok := vars.Get(name); ok {
			return v
		}
		return ""
	})
}
