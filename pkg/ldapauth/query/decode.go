package query

import (
	"github.com/pkg/errors"

	"github.com/go-broker/ldapauth/pkg/ldapauth/directory"
)

// Decode builds a Query from the generic literal shape a configuration
// loader hands this package: a map with a "type" discriminator and
// type-specific fields, recursively for any nested sub-queries, or a bare
// string/bool as shorthand for a String/Constant leaf. This is the
// parser-equivalent the declarative query language is built around —
// operators write this shape directly in their configuration file (YAML,
// in cmd/ldapauthd's case) and it becomes an AST literal with no separate
// grammar to parse, the same way the rest of this module's config surface
// is generic-map-in, typed-struct-out.
func Decode(raw interface{}) (Query, error) {
	switch v := raw.(type) {
	case nil:
		return nil, errors.New("query: nil literal")
	case bool:
		return Constant(v), nil
	case string:
		return String{Pattern: v}, nil
	case map[string]interface{}:
		return decodeMap(v)
	case map[interface{}]interface{}:
		return decodeMap(stringKeyed(v))
	default:
		return nil, errors.Errorf("query: unsupported literal shape %T", raw)
	}
}

// stringKeyed normalizes the map[interface{}]interface{} shape a plain
// (non-v3) YAML decoder would hand back into the map[string]interface{}
// shape the rest of this package expects; gopkg.in/yaml.v3, the decoder
// cmd/ldapauthd actually uses, already produces string keys, so this only
// guards against a caller feeding Decode a literal read some other way.
func stringKeyed(m map[interface{}]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, val := range m {
		if s, ok := k.(string); ok {
			out[s] = val
			continue
		}
	}
	return out
}

func decodeMap(m map[string]interface{}) (Query, error) {
	typ, _ := m["type"].(string)
	switch typ {
	case "constant":
		b, _ := m["value"].(bool)
		return Constant(b), nil
	case "string":
		pattern, _ := m["pattern"].(string)
		return String{Pattern: pattern}, nil
	case "exists":
		return Exists{DNPattern: stringField(m, "dn")}, nil
	case "attribute":
		return Attribute{DNPattern: stringField(m, "dn"), Attr: stringField(m, "attr")}, nil
	case "in_group":
		return InGroup{DNPattern: stringField(m, "dn"), Attr: stringField(m, "attr")}, nil
	case "in_group_nested":
		scope, err := decodeScope(m["scope"])
		if err != nil {
			return nil, err
		}
		return InGroupNested{DNPattern: stringField(m, "dn"), Attr: stringField(m, "attr"), Scope: scope}, nil
	case "not":
		sub, err := decodeSubfield(m, "query")
		if err != nil {
			return nil, err
		}
		return Not{Sub: sub}, nil
	case "and":
		subs, err := decodeList(m["queries"])
		if err != nil {
			return nil, errors.Wrap(err, "and.queries")
		}
		return And{Subs: subs}, nil
	case "or":
		subs, err := decodeList(m["queries"])
		if err != nil {
			return nil, errors.Wrap(err, "or.queries")
		}
		return Or{Subs: subs}, nil
	case "equals":
		a, err := decodeSubfield(m, "a")
		if err != nil {
			return nil, err
		}
		b, err := decodeSubfield(m, "b")
		if err != nil {
			return nil, err
		}
		return Equals{A: a, B: b}, nil
	case "match":
		val, err := decodeSubfield(m, "value")
		if err != nil {
			return nil, err
		}
		regex, err := decodeSubfield(m, "regex")
		if err != nil {
			return nil, err
		}
		return Match{Sub: val, Regex: regex}, nil
	case "for":
		arms, err := decodeArms(m["arms"])
		if err != nil {
			return nil, errors.Wrap(err, "for.arms")
		}
		return For{Arms: arms}, nil
	case "":
		return nil, errors.New("query: literal map missing \"type\"")
	default:
		return nil, errors.Errorf("query: unrecognised literal type %q", typ)
	}
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

func decodeSubfield(m map[string]interface{}, key string) (Query, error) {
	v, ok := m[key]
	if !ok {
		typ, _ := m["type"].(string)
		return nil, errors.Errorf("query: %q literal missing %q", typ, key)
	}
	q, err := Decode(v)
	if err != nil {
		return nil, errors.Wrap(err, key)
	}
	return q, nil
}

func decodeList(raw interface{}) ([]Query, error) {
	items, ok := raw.([]interface{})
	if !ok {
		return nil, errors.Errorf("expected a list of sub-queries, got %T", raw)
	}
	out := make([]Query, len(items))
	for i, item := range items {
		q, err := Decode(item)
		if err != nil {
			return nil, errors.Wrapf(err, "[%d]", i)
		}
		out[i] = q
	}
	return out, nil
}

func decodeArms(raw interface{}) ([]ForArm, error) {
	items, ok := raw.([]interface{})
	if !ok {
		return nil, errors.Errorf("expected a list of arms, got %T", raw)
	}
	out := make([]ForArm, len(items))
	for i, item := range items {
		am, ok := item.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf("[%d] must be a map", i)
		}
		sub, err := decodeSubfield(am, "query")
		if err != nil {
			return nil, errors.Wrapf(err, "[%d]", i)
		}
		out[i] = ForArm{Key: stringField(am, "key"), Value: stringField(am, "value"), Sub: sub}
	}
	return out, nil
}

// decodeScope maps the operator-facing scope name to directory.Scope,
// defaulting a missing or empty value to whole-subtree — the traversal
// in_group_nested actually needs to reach a target group that isn't a
// direct child of group_base.
func decodeScope(raw interface{}) (directory.Scope, error) {
	s, _ := raw.(string)
	switch s {
	case "", "subtree", "whole_subtree":
		return directory.ScopeWholeSubtree, nil
	case "base":
		return directory.ScopeBaseObject, nil
	case "single_level":
		return directory.ScopeSingleLevel, nil
	default:
		return directory.ScopeUnset, errors.Errorf("query: unrecognised scope %q", s)
	}
}
