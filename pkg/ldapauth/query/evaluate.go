// Package query implements the declarative access-query language: a small
// tagged-variant AST whose leaves mix pure boolean logic with live LDAP
// searches and string-template evaluation. The folding rules are
// deliberately surprising in places — Not(error) evaluates to true, and
// And/Or swallow a directory fault as plain false rather than propagating
// it — and both are load-bearing, not bugs; see DESIGN.md for why.
package query

import (
	"fmt"
	"regexp"

	ldapv3 "github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"

	"github.com/go-broker/ldapauth/pkg/errtypes"
	"github.com/go-broker/ldapauth/pkg/ldapauth/directory"
	"github.com/go-broker/ldapauth/pkg/ldapauth/scrub"
	"github.com/go-broker/ldapauth/pkg/ldapauth/template"
)

const existsFilter = "(objectClass=*)"

// Evaluator interprets a Query against a variable map and an open
// directory handle. It holds no per-call state beyond what's passed to
// Eval, so one Evaluator can be reused across requests on the same
// worker.
type Evaluator struct {
	Dir directory.Directory

	// GroupBase is the base DN nested-group searches start from. When
	// empty, DNLookupBase is used (group_lookup_base falls back to
	// dn_lookup_base).
	GroupBase    string
	DNLookupBase string

	// MemberFilterTmpl renders the containment filter InGroup and
	// InGroupNested search with. A nil value falls back to the plain
	// "(attr=dn)" filter.
	MemberFilterTmpl *MemberFilter

	// ScrubMode controls how DNs are redacted before they reach Log. The
	// zero value (scrub.ModeOff) still scrubs — every mode except
	// scrub.ModeNetworkUnsafe does — so an Evaluator built without setting
	// this explicitly never accidentally logs a DN in the clear.
	ScrubMode scrub.Mode

	Log *zerolog.Logger
}

func (e *Evaluator) scrubDN(dn string) string {
	return scrub.DN(dn, e.ScrubMode)
}

func (e *Evaluator) memberFilter(attr, escapedDN string) string {
	if e.MemberFilterTmpl != nil {
		if rendered, err := e.MemberFilterTmpl.Render(attr, escapedDN); err == nil {
			return rendered
		}
	}
	return fmt.Sprintf("(%s=%s)", attr, escapedDN)
}

func (e *Evaluator) log() *zerolog.Logger {
	if e.Log != nil {
		return e.Log
	}
	nop := zerolog.Nop()
	return &nop
}

func (e *Evaluator) fill(pattern string, vars *Vars) string {
	return template.Fill(pattern, vars)
}

// Eval interprets q against vars, performing LDAP searches against Dir as
// needed.
func (e *Evaluator) Eval(q Query, vars *Vars) Value {
	switch n := q.(type) {
	case Constant:
		return Bool(bool(n))
	case For:
		return e.evalFor(n, vars)
	case Exists:
		return e.evalExists(n, vars)
	case InGroup:
		return e.evalInGroup(n, vars)
	case InGroupNested:
		return e.evalInGroupNested(n, vars)
	case Not:
		return e.evalNot(n, vars)
	case And:
		return e.evalAnd(n, vars)
	case Or:
		return e.evalOr(n, vars)
	case Equals:
		return e.evalEquals(n, vars)
	case Match:
		return e.evalMatch(n, vars)
	case String:
		return Scalar(e.fill(n.Pattern, vars))
	case Attribute:
		return e.evalAttribute(n, vars)
	default:
		return Err(errtypes.UnrecognisedQuery(fmt.Sprintf("%T", q)))
	}
}

func (e *Evaluator) evalFor(n For, vars *Vars) Value {
	for _, arm := range n.Arms {
		bound, ok := vars.Get(arm.Key)
		if ok && bound == arm.Value {
			return e.Eval(arm.Sub, vars)
		}
	}
	return Err(errtypes.ArgsDoNotContain("no matching arm"))
}

func (e *Evaluator) evalNot(n Not, vars *Vars) Value {
	child := e.Eval(n.Sub, vars)
	// error is treated as false, so Not(error) = true; this generalizes to
	// any non-boolean child, and is intentional and load-bearing — see
	// DESIGN.md.
	return Bool(!child.Truthy())
}

func (e *Evaluator) evalAnd(n And, vars *Vars) Value {
	for _, sub := range n.Subs {
		v := e.Eval(sub, vars)
		if !v.Truthy() {
			// Any non-true child (including a directory fault) denies
			// without evaluating the rest: a transient error must never
			// flip a deny to an allow.
			return Bool(false)
		}
	}
	return Bool(true)
}

func (e *Evaluator) evalOr(n Or, vars *Vars) Value {
	for _, sub := range n.Subs {
		v := e.Eval(sub, vars)
		if v.Truthy() {
			return Bool(true)
		}
	}
	return Bool(false)
}

func (e *Evaluator) evalEquals(n Equals, vars *Vars) Value {
	a := e.Eval(n.A, vars)
	b := e.Eval(n.B, vars)
	if a.IsErr() || b.IsErr() {
		return Bool(false)
	}
	if a.kind == kindScalar && b.kind == kindScalar {
		return Bool(a.scalar == b.scalar)
	}
	return Bool(intersects(a.Strings(), b.Strings()))
}

func intersects(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		if set[v] {
			return true
		}
	}
	return false
}

func (e *Evaluator) evalMatch(n Match, vars *Vars) Value {
	h := e.Eval(n.Sub, vars)
	p := e.Eval(n.Regex, vars)
	if h.IsErr() || p.IsErr() {
		return Bool(false)
	}
	hvals := h.Strings()
	pvals := p.Strings()

	ok, err := anyPairMatches(hvals, pvals)
	if err != nil {
		return Bool(false)
	}
	if ok {
		return Bool(true)
	}
	if len(hvals) > 1 && len(pvals) > 1 {
		ok, err = anyPairMatches(pvals, hvals)
		if err != nil {
			return Bool(false)
		}
		return Bool(ok)
	}
	return Bool(false)
}

func anyPairMatches(haystacks, patterns []string) (bool, error) {
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return false, err
		}
		for _, h := range haystacks {
			if re.MatchString(h) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (e *Evaluator) evalExists(n Exists, vars *Vars) Value {
	dn := e.fill(n.DNPattern, vars)
	entries, err := e.Dir.Search(dn, directory.ScopeBaseObject, existsFilter, []string{"dn"})
	if err != nil {
		e.log().Debug().Str("dn", e.scrubDN(dn)).Err(err).Msg("exists search failed")
		return Err(errtypes.LDAPEvaluateError(err.Error()))
	}
	return Bool(len(entries) > 0)
}

func (e *Evaluator) evalAttribute(n Attribute, vars *Vars) Value {
	dn := e.fill(n.DNPattern, vars)
	entries, err := e.Dir.Search(dn, directory.ScopeBaseObject, existsFilter, []string{n.Attr})
	if err != nil {
		e.log().Debug().Str("dn", e.scrubDN(dn)).Err(err).Msg("attribute search failed")
		return Err(errtypes.LDAPEvaluateError(err.Error()))
	}
	if len(entries) == 0 {
		return Err(notFoundError{})
	}
	return CanonicalAttribute(entries[0].Attributes[n.Attr])
}

func (e *Evaluator) evalInGroup(n InGroup, vars *Vars) Value {
	userDN, ok := vars.Get("user_dn")
	if !ok {
		return Err(errtypes.LDAPEvaluateError("user_dn not bound"))
	}
	attr := n.Attr
	if attr == "" {
		attr = DefaultMemberAttr
	}
	dn := e.fill(n.DNPattern, vars)
	filter := e.memberFilter(attr, ldapv3.EscapeFilter(userDN))
	entries, err := e.Dir.Search(dn, directory.ScopeBaseObject, filter, []string{"dn"})
	if err != nil {
		e.log().Debug().Str("dn", e.scrubDN(dn)).Err(err).Msg("in_group search failed")
		return Err(errtypes.LDAPEvaluateError(err.Error()))
	}
	return Bool(len(entries) > 0)
}
