package query

import (
	"crypto/tls"

	"github.com/go-broker/ldapauth/pkg/ldapauth/directory"
)

// fakeDirectory is a directory.Directory whose Search behavior is supplied
// by the test, so the evaluator can be exercised without a live server.
type fakeDirectory struct {
	searchFunc func(baseDN string, scope directory.Scope, filter string, attrs []string) ([]directory.Entry, error)
}

func (f *fakeDirectory) Search(baseDN string, scope directory.Scope, filter string, attrs []string) ([]directory.Entry, error) {
	return f.searchFunc(baseDN, scope, filter, attrs)
}
func (f *fakeDirectory) Bind(string, string) error        { return nil }
func (f *fakeDirectory) UnauthenticatedBind() error        { return nil }
func (f *fakeDirectory) StartTLS(*tls.Config) error        { return nil }
func (f *fakeDirectory) Close() error                      { return nil }
func (f *fakeDirectory) IsClosing() bool                   { return false }
