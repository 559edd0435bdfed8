// Copyright 2018-2019 CERN
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// In applying this license, CERN does not waive the privileges and immunities
// granted to it by virtue of its status as an Intergovernmental Organization
// or submit itself to any jurisdiction.

package errtypes

// Refused is the error to use when a principal is denied by policy rather
// than by a transport or protocol fault. The string carries the DN (or
// pattern) the denial was evaluated against.
type Refused string

func (e Refused) Error() string { return "error: refused: " + string(e) }

// IsRefused implements the IsRefused interface.
func (e Refused) IsRefused() {}

// LDAPConnectError is the error to use when no configured server accepted a
// connection.
type LDAPConnectError string

func (e LDAPConnectError) Error() string { return "error: ldap_connect_error: " + string(e) }

// IsLDAPConnectError implements the IsLDAPConnectError interface.
func (e LDAPConnectError) IsLDAPConnectError() {}

// LDAPBindError is the error to use when a bind fails for a reason other
// than invalid credentials.
type LDAPBindError string

func (e LDAPBindError) Error() string { return "error: ldap_bind_error: " + string(e) }

// IsLDAPBindError implements the IsLDAPBindError interface.
func (e LDAPBindError) IsLDAPBindError() {}

// LDAPEvaluateError is the error to use when a search invoked while
// evaluating a query fails.
type LDAPEvaluateError string

func (e LDAPEvaluateError) Error() string { return "error: ldap_evaluate_error: " + string(e) }

// IsLDAPEvaluateError implements the IsLDAPEvaluateError interface.
func (e LDAPEvaluateError) IsLDAPEvaluateError() {}

// NoServersDefined is the error to use when the configuration lists no LDAP
// servers to connect to.
type NoServersDefined string

func (e NoServersDefined) Error() string { return "error: no_ldap_servers_defined: " + string(e) }

// IsNoServersDefined implements the IsNoServersDefined interface.
func (e NoServersDefined) IsNoServersDefined() {}

// ArgsDoNotContain is the evaluator-internal error a For query returns when
// none of its arms match the current binding. Inside And/Or/Not it counts
// as false; returned from a top-level Eval, the session runner reports it
// to the caller as an LDAPEvaluateError.
type ArgsDoNotContain string

func (e ArgsDoNotContain) Error() string { return "error: args_do_not_contain: " + string(e) }

// IsArgsDoNotContain implements the IsArgsDoNotContain interface.
func (e ArgsDoNotContain) IsArgsDoNotContain() {}

// UnrecognisedQuery is the evaluator-internal error for an AST shape the
// evaluator does not know how to interpret. Handled like ArgsDoNotContain:
// false inside a combinator, an LDAPEvaluateError at top level.
type UnrecognisedQuery string

func (e UnrecognisedQuery) Error() string { return "error: unrecognised_query: " + string(e) }

// IsUnrecognisedQuery implements the IsUnrecognisedQuery interface.
func (e UnrecognisedQuery) IsUnrecognisedQuery() {}

// IsRefused is the interface to implement to specify that an operation was
// refused by policy.
type IsRefused interface {
	IsRefused()
}

// IsLDAPConnectError is the interface to implement to specify that no
// server could be reached.
type IsLDAPConnectError interface {
	IsLDAPConnectError()
}

// IsLDAPBindError is the interface to implement to specify a non-credential
// bind failure.
type IsLDAPBindError interface {
	IsLDAPBindError()
}

// IsLDAPEvaluateError is the interface to implement to specify a search
// failure during evaluation.
type IsLDAPEvaluateError interface {
	IsLDAPEvaluateError()
}

// IsNoServersDefined is the interface to implement to specify a missing
// server configuration.
type IsNoServersDefined interface {
	IsNoServersDefined()
}
