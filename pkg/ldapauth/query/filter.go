package query

import (
	"bytes"
	"text/template"

	"github.com/Masterminds/sprig"
)

// MemberFilter renders the LDAP filter used to test group containment,
// compiled the same way the group-manager's GroupFilter/MemberFilter
// settings are: a Go text/template parsed once with sprig's function map,
// so operators can do more than plain substitution (case-folding,
// trimming) when their directory's membership attribute needs it.
type MemberFilter struct {
	tmpl *template.Template
}

type memberFilterData struct {
	Attr string
	DN   string
}

// DefaultMemberFilterPattern is the plain containment filter used when no
// operator-supplied template is configured.
const DefaultMemberFilterPattern = `({{.Attr}}={{.DN}})`

// NewMemberFilter compiles pattern, falling back to
// DefaultMemberFilterPattern when pattern is empty.
func NewMemberFilter(pattern string) (*MemberFilter, error) {
	if pattern == "" {
		pattern = DefaultMemberFilterPattern
	}
	t, err := template.New("memberfilter").Funcs(sprig.TxtFuncMap()).Parse(pattern)
	if err != nil {
		return nil, err
	}
	return &MemberFilter{tmpl: t}, nil
}

// Render fills the template against attr and an already filter-escaped dn.
func (f *MemberFilter) Render(attr, escapedDN string) (string, error) {
	var buf bytes.Buffer
	if err := f.tmpl.Execute(&buf, memberFilterData{Attr: attr, DN: escapedDN}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
