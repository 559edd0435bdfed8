package query

// Vars is the ordered variable map an evaluation runs against. It is kept
// as a slice of pairs rather than a bare map so that iteration order is
// deterministic (useful for For's left-to-right arm scan and for anything
// that logs the binding set).
type Vars struct {
	keys   []string
	values []string
}

// NewVars returns an empty Vars; callers bind the well-known names (and
// any extra ones) with Set.
func NewVars() *Vars {
	return &Vars{}
}

// Set assigns name to value, overwriting a prior binding for the same name.
func (v *Vars) Set(name, value string) *Vars {
	for i, k := range v.keys {
		if k == name {
			v.values[i] = value
			return v
		}
	}
	v.keys = append(v.keys, name)
	v.values = append(v.values, value)
	return v
}

// Get returns the bound value for name and whether it was bound at all.
func (v *Vars) Get(name string) (string, bool) {
	for i, k := range v.keys {
		if k == name {
			return v.values[i], true
		}
	}
	return "", false
}

// Map renders the bindings as a plain map, for callers (such as the
// template filler) that only need lookup, not order.
func (v *Vars) Map() map[string]string {
	m := make(map[string]string, len(v.keys))
	for i, k := range v.keys {
		m[k] = v.values[i]
	}
	return m
}

// Keys returns the bound variable names in insertion order.
func (v *Vars) Keys() []string {
	out := make([]string, len(v.keys))
	copy(out, v.keys)
	return out
}
