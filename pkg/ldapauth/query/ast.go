package query

import "github.com/go-broker/ldapauth/pkg/ldapauth/directory"

// Query is the tagged variant every AST node implements. Configuration
// builds these literally (the "parser" accepts shapes constructed by Go
// code, not a text grammar); there is no runtime mutation once built.
type Query interface {
	isQuery()
}

// Constant is a literal boolean leaf.
type Constant bool

func (Constant) isQuery() {}

// ForArm is a single (Key, Value, SubQuery) dispatch arm.
type ForArm struct {
	Key   string
	Value string
	Sub   Query
}

// For dispatches on the current binding of each arm's Key: the first arm
// whose Value equals that binding selects Sub. No matching arm is the
// evaluator-internal error ArgsDoNotContain.
type For struct {
	Arms []ForArm
}

func (For) isQuery() {}

// Exists is true iff the filled DN pattern resolves to at least one
// object (a base-scope presence search).
type Exists struct {
	DNPattern string
}

func (Exists) isQuery() {}

// DefaultMemberAttr is substituted for InGroup/InGroupNested when Attr is
// left empty.
const DefaultMemberAttr = "member"

// InGroup is true iff the group at the filled DN directly lists the
// current user_dn binding in Attr (default "member").
type InGroup struct {
	DNPattern string
	Attr      string
}

func (InGroup) isQuery() {}

// InGroupNested walks the parent-group chain (BFS/DFS with cycle
// detection) from user_dn looking for the filled target group DN.
type InGroupNested struct {
	DNPattern string
	Attr      string
	Scope     directory.Scope
}

func (InGroupNested) isQuery() {}

// Not inverts its child. A non-boolean child (including an error) is
// treated as false before inversion, so Not(error) == Constant(true);
// this is intentional and load-bearing, not an oversight.
type Not struct {
	Sub Query
}

func (Not) isQuery() {}

// And folds left-to-right starting from true; the first child that isn't
// boolean-true makes the whole expression false and stops evaluation.
type And struct {
	Subs []Query
}

func (And) isQuery() {}

// Or folds left-to-right starting from false; the first boolean-true
// child makes the whole expression true and stops evaluation.
type Or struct {
	Subs []Query
}

func (Or) isQuery() {}

// Equals compares two string-valued sub-queries, handling the case where
// either side resolves to a multi-valued attribute instead of a scalar.
type Equals struct {
	A, B Query
}

func (Equals) isQuery() {}

// Match regex-matches Sub against Regex, retrying with sides swapped when
// both are genuinely multi-valued.
type Match struct {
	Sub   Query
	Regex Query
}

func (Match) isQuery() {}

// String is a template pattern filled against the variable map.
type String struct {
	Pattern string
}

func (String) isQuery() {}

// Attribute looks up attr_name on the object at the filled DN and
// canonicalizes the result (empty is an error, one value is a scalar,
// more than one is an ordered list).
type Attribute struct {
	DNPattern string
	Attr      string
}

func (Attribute) isQuery() {}
