package query

// kind discriminates the shapes an evaluation step can settle on: a leaf
// can resolve to a boolean, a scalar string, an ordered list of strings (a
// multi-valued LDAP attribute), or an error marker.
type kind int

const (
	kindBool kind = iota
	kindScalar
	kindList
	kindErr
)

// Value is the tagged result a single AST node evaluates to.
type Value struct {
	kind   kind
	b      bool
	scalar string
	list   []string
	err    error
}

// Bool wraps a boolean result.
func Bool(b bool) Value { return Value{kind: kindBool, b: b} }

// Scalar wraps a single string result.
func Scalar(s string) Value { return Value{kind: kindScalar, scalar: s} }

// List wraps a multi-valued (len >= 2) result, preserving directory order.
func List(vals []string) Value { return Value{kind: kindList, list: vals} }

// Err wraps an evaluator-internal error marker (args_do_not_contain,
// unrecognised_query, or a search failure folded to an error by the
// caller).
func Err(err error) Value { return Value{kind: kindErr, err: err} }

// IsBool reports whether the value is a boolean.
func (v Value) IsBool() bool { return v.kind == kindBool }

// IsErr reports whether the value is an error marker.
func (v Value) IsErr() bool { return v.kind == kindErr }

// Error returns the wrapped error, or nil if this isn't an error value.
func (v Value) Error() error { return v.err }

// Truthy implements the "non-boolean is false" folding rule shared by
// And/Or/Not: only an explicit boolean true is truthy.
func (v Value) Truthy() bool { return v.kind == kindBool && v.b }

// Strings canonicalizes the value into its scalar forms: an empty slice
// for an error, one element for a scalar or boolean, and the preserved
// order for a list. Used by Equals/Match to compare across a scalar/list
// mixture.
func (v Value) Strings() []string {
	switch v.kind {
	case kindScalar:
		return []string{v.scalar}
	case kindList:
		return v.list
	case kindBool:
		if v.b {
			return []string{"true"}
		}
		return []string{"false"}
	default:
		return nil
	}
}

// CanonicalAttribute folds a raw directory attribute's values: zero values
// is an error, exactly one is a scalar, two or more is an ordered list.
func CanonicalAttribute(values []string) Value {
	switch len(values) {
	case 0:
		return Err(notFoundError{})
	case 1:
		return Scalar(values[0])
	default:
		return List(values)
	}
}

type notFoundError struct{}

func (notFoundError) Error() string { return "not_found" }
