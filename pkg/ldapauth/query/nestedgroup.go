package query

import (
	ldapv3 "github.com/go-ldap/ldap/v3"

	"github.com/go-broker/ldapauth/pkg/errtypes"
	"github.com/go-broker/ldapauth/pkg/ldapauth/directory"
)

// evalInGroupNested walks the parent-group chain from the current user_dn
// binding looking for the filled target group DN. The starting set is
// {user_dn}; at each step every DN in the current frontier is searched for
// objects whose membership attribute names it, and those objects' DNs
// become the next frontier. A DN already visited on this evaluation is
// never re-expanded — the visited set strictly grows, which is what
// guarantees termination on a membership cycle.
func (e *Evaluator) evalInGroupNested(n InGroupNested, vars *Vars) Value {
	userDN, ok := vars.Get("user_dn")
	if !ok {
		return Err(errtypes.LDAPEvaluateError("user_dn not bound"))
	}

	target := e.fill(n.DNPattern, vars)
	attr := n.Attr
	if attr == "" {
		attr = DefaultMemberAttr
	}
	base := e.GroupBase
	if base == "" {
		base = e.DNLookupBase
	}
	scope := n.Scope
	if scope == directory.ScopeUnset {
		// An InGroupNested literal that never set Scope means
		// whole-subtree, not base-scope: the traversal's whole point is
		// to reach a target that usually isn't a direct child of base.
		scope = directory.ScopeWholeSubtree
	}

	visited := map[string]bool{userDN: true}
	frontier := []string{userDN}

	for len(frontier) > 0 {
		var next []string
		for _, dn := range frontier {
			if dn == target {
				return Bool(true)
			}

			filter := e.memberFilter(attr, ldapv3.EscapeFilter(dn))
			entries, err := e.Dir.Search(base, scope, filter, []string{"dn"})
			if err != nil {
				// A single failed search contributes an empty successor
				// set and is otherwise silent; it must not abort the
				// whole traversal.
				e.log().Debug().Str("dn", e.scrubDN(dn)).Err(err).Msg("nested group search failed")
				continue
			}

			for _, entry := range entries {
				if visited[entry.DN] {
					e.log().Warn().Str("dn", e.scrubDN(entry.DN)).Msg("nested group membership cycle detected")
					continue
				}
				visited[entry.DN] = true
				next = append(next, entry.DN)
			}
		}
		frontier = next
	}

	return Bool(false)
}
