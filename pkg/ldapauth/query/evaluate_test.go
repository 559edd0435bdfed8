package query

import (
	"errors"
	"testing"

	"github.com/go-broker/ldapauth/pkg/ldapauth/directory"
	"github.com/go-broker/ldapauth/pkg/ldapauth/scrub"
)

func evalString(pattern string) Query { return String{Pattern: pattern} }

func TestEvaluatorScrubDNAppliesConfiguredMode(t *testing.T) {
	dn := "uid=alice,ou=people,dc=example,dc=com"

	onEval := &Evaluator{ScrubMode: scrub.ModeOn}
	if got := onEval.scrubDN(dn); got == dn {
		t.Fatalf("ScrubMode.ModeOn should redact sensitive RDNs, got unchanged %q", got)
	}

	unsafeEval := &Evaluator{ScrubMode: scrub.ModeNetworkUnsafe}
	if got := unsafeEval.scrubDN(dn); got != dn {
		t.Fatalf("ScrubMode.ModeNetworkUnsafe should leave dn unchanged, got %q", got)
	}
}

func TestNotOfErrorIsTrue(t *testing.T) {
	e := &Evaluator{Dir: &fakeDirectory{
		searchFunc: func(string, directory.Scope, string, []string) ([]directory.Entry, error) {
			return nil, errors.New("boom")
		},
	}}
	got := e.Eval(Not{Sub: Exists{DNPattern: "cn=x"}}, NewVars())
	if !got.Truthy() {
		t.Fatalf("Not(error) should fold to true, got %#v", got)
	}
}

func TestNotOfFalseIsTrue(t *testing.T) {
	e := &Evaluator{}
	got := e.Eval(Not{Sub: Constant(false)}, NewVars())
	if !got.Truthy() {
		t.Fatal("Not(false) should be true")
	}
}

func TestAndShortCircuitsOnFaultWithoutFlipping(t *testing.T) {
	called := false
	e := &Evaluator{Dir: &fakeDirectory{
		searchFunc: func(string, directory.Scope, string, []string) ([]directory.Entry, error) {
			called = true
			return nil, errors.New("transient")
		},
	}}
	q := And{Subs: []Query{
		Exists{DNPattern: "cn=fails"},
		Constant(true), // must never run once the first sub faults
	}}
	got := e.Eval(q, NewVars())
	if got.Truthy() {
		t.Fatal("And must deny when a sub faults, not propagate or flip to true")
	}
	if !called {
		t.Fatal("expected the faulting search to have run")
	}
}

func TestAndAllTrue(t *testing.T) {
	e := &Evaluator{}
	got := e.Eval(And{Subs: []Query{Constant(true), Constant(true)}}, NewVars())
	if !got.Truthy() {
		t.Fatal("And of all-true should be true")
	}
}

func TestOrShortCircuitsOnFirstTrue(t *testing.T) {
	secondCalled := false
	e := &Evaluator{Dir: &fakeDirectory{
		searchFunc: func(string, directory.Scope, string, []string) ([]directory.Entry, error) {
			secondCalled = true
			return nil, nil
		},
	}}
	q := Or{Subs: []Query{Constant(true), Exists{DNPattern: "cn=never-reached"}}}
	got := e.Eval(q, NewVars())
	if !got.Truthy() {
		t.Fatal("Or should be true once any sub is true")
	}
	if secondCalled {
		t.Fatal("Or must not evaluate subs after the first true one")
	}
}

func TestOrAllFalseIsFalse(t *testing.T) {
	e := &Evaluator{}
	got := e.Eval(Or{Subs: []Query{Constant(false), Constant(false)}}, NewVars())
	if got.Truthy() {
		t.Fatal("Or of all-false should be false")
	}
}

func TestEqualsScalarMatch(t *testing.T) {
	e := &Evaluator{}
	got := e.Eval(Equals{A: evalString("prod"), B: evalString("prod")}, NewVars())
	if !got.Truthy() {
		t.Fatal("equal scalars should compare true")
	}
}

func TestEqualsScalarMismatch(t *testing.T) {
	e := &Evaluator{}
	got := e.Eval(Equals{A: evalString("prod"), B: evalString("staging")}, NewVars())
	if got.Truthy() {
		t.Fatal("different scalars should compare false")
	}
}

func TestEqualsScalarAgainstListIntersects(t *testing.T) {
	e := &Evaluator{Dir: &fakeDirectory{
		searchFunc: func(string, directory.Scope, string, []string) ([]directory.Entry, error) {
			return []directory.Entry{{DN: "cn=x", Attributes: map[string][]string{
				"role": {"staging", "prod", "dev"},
			}}}, nil
		},
	}}
	vars := NewVars()
	got := e.Eval(Equals{
		A: evalString("prod"),
		B: Attribute{DNPattern: "cn=x", Attr: "role"},
	}, vars)
	if !got.Truthy() {
		t.Fatal("scalar present in attribute list should intersect true")
	}
}

func TestEqualsErrorOperandIsFalse(t *testing.T) {
	e := &Evaluator{Dir: &fakeDirectory{
		searchFunc: func(string, directory.Scope, string, []string) ([]directory.Entry, error) {
			return nil, nil
		},
	}}
	got := e.Eval(Equals{
		A: evalString("prod"),
		B: Attribute{DNPattern: "cn=missing", Attr: "role"},
	}, NewVars())
	if got.Truthy() {
		t.Fatal("equals against an error operand should fold to false")
	}
}

func TestMatchBidirectionalMultiValued(t *testing.T) {
	// Neither value on the regex side matches a value on the left, so only
	// the swapped direction ("ops-.*" against "ops-east") can match.
	left := []string{"ops-.*", "dev-.*"}
	right := []string{"staging", "ops-east"}
	e := &Evaluator{Dir: &fakeDirectory{
		searchFunc: func(baseDN string, _ directory.Scope, _ string, _ []string) ([]directory.Entry, error) {
			vals := map[string][]string{"cn=left": left, "cn=right": right}
			return []directory.Entry{{DN: baseDN, Attributes: map[string][]string{"v": vals[baseDN]}}}, nil
		},
	}}
	ok, err := anyPairMatches(left, right)
	if err != nil || ok {
		t.Fatalf("expected no forward match, got ok=%v err=%v", ok, err)
	}
	got := e.Eval(Match{
		Sub:   Attribute{DNPattern: "cn=left", Attr: "v"},
		Regex: Attribute{DNPattern: "cn=right", Attr: "v"},
	}, NewVars())
	if !got.Truthy() {
		t.Fatal("expected the swapped direction to match when both sides are multi-valued")
	}
}

func TestMatchSingleValuedNoReverseAttempt(t *testing.T) {
	e := &Evaluator{}
	got := e.Eval(Match{Sub: evalString("staging-east"), Regex: evalString(`^prod-.*`)}, NewVars())
	if got.Truthy() {
		t.Fatal("non-matching single-valued pair should be false")
	}
}

func TestMatchInvalidRegexIsFalseNotPanic(t *testing.T) {
	e := &Evaluator{}
	got := e.Eval(Match{Sub: evalString("x"), Regex: evalString("[invalid")}, NewVars())
	if got.Truthy() {
		t.Fatal("an invalid pattern should fold to false, not panic")
	}
}

func TestAttributeCanonicalization(t *testing.T) {
	cases := []struct {
		name   string
		values []string
		isErr  bool
		isList bool
	}{
		{"empty", nil, true, false},
		{"single", []string{"only"}, false, false},
		{"multi", []string{"a", "b"}, false, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			v := CanonicalAttribute(c.values)
			if v.IsErr() != c.isErr {
				t.Fatalf("IsErr() = %v, want %v", v.IsErr(), c.isErr)
			}
			if !c.isErr {
				strs := v.Strings()
				if len(strs) != len(c.values) {
					t.Fatalf("Strings() = %v, want %v", strs, c.values)
				}
			}
		})
	}
}

func TestEvalAttributeNotFoundIsError(t *testing.T) {
	e := &Evaluator{Dir: &fakeDirectory{
		searchFunc: func(string, directory.Scope, string, []string) ([]directory.Entry, error) {
			return nil, nil
		},
	}}
	got := e.Eval(Attribute{DNPattern: "cn=ghost", Attr: "mail"}, NewVars())
	if !got.IsErr() {
		t.Fatal("attribute lookup against a nonexistent object should be an error value")
	}
}

func TestForDispatchesOnBoundArm(t *testing.T) {
	e := &Evaluator{}
	vars := NewVars().Set("vhost", "prod")
	q := For{Arms: []ForArm{
		{Key: "vhost", Value: "staging", Sub: Constant(false)},
		{Key: "vhost", Value: "prod", Sub: Constant(true)},
	}}
	if !e.Eval(q, vars).Truthy() {
		t.Fatal("expected the prod arm to be selected")
	}
}

func TestForNoMatchingArmIsError(t *testing.T) {
	e := &Evaluator{}
	vars := NewVars().Set("vhost", "qa")
	q := For{Arms: []ForArm{
		{Key: "vhost", Value: "prod", Sub: Constant(true)},
	}}
	v := e.Eval(q, vars)
	if !v.IsErr() {
		t.Fatal("no matching arm should evaluate to an error")
	}
}

func TestEvalExistsTrueAndFalse(t *testing.T) {
	e := &Evaluator{Dir: &fakeDirectory{
		searchFunc: func(baseDN string, _ directory.Scope, _ string, _ []string) ([]directory.Entry, error) {
			if baseDN == "cn=there" {
				return []directory.Entry{{DN: baseDN}}, nil
			}
			return nil, nil
		},
	}}
	if !e.Eval(Exists{DNPattern: "cn=there"}, NewVars()).Truthy() {
		t.Fatal("expected Exists to be true for a present DN")
	}
	if e.Eval(Exists{DNPattern: "cn=nope"}, NewVars()).Truthy() {
		t.Fatal("expected Exists to be false for an absent DN")
	}
}

func TestEvalInGroupDirectMembership(t *testing.T) {
	e := &Evaluator{Dir: &fakeDirectory{
		searchFunc: func(baseDN string, _ directory.Scope, filter string, _ []string) ([]directory.Entry, error) {
			if baseDN == "cn=staff,ou=groups" {
				return []directory.Entry{{DN: baseDN}}, nil
			}
			return nil, nil
		},
	}}
	vars := NewVars().Set("user_dn", "uid=alice,ou=people")
	got := e.Eval(InGroup{DNPattern: "cn=staff,ou=groups"}, vars)
	if !got.Truthy() {
		t.Fatal("expected direct membership to be true")
	}
}

func TestEvalInGroupMissingUserDNIsError(t *testing.T) {
	e := &Evaluator{Dir: &fakeDirectory{
		searchFunc: func(string, directory.Scope, string, []string) ([]directory.Entry, error) {
			return nil, nil
		},
	}}
	got := e.Eval(InGroup{DNPattern: "cn=staff,ou=groups"}, NewVars())
	if !got.IsErr() {
		t.Fatal("in_group without a bound user_dn should be an error")
	}
}
