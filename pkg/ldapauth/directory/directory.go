// Package directory is the thin adapter between the evaluator/session/pool
// layers and github.com/go-ldap/ldap/v3. It exposes a narrow interface so
// the rest of the module can be exercised against a fake in unit tests
// without a live server, keeping the single dial/bind/search entry point
// that every LDAP-backed caller in this module goes through.
package directory

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/pkg/errors"

	"github.com/go-broker/ldapauth/pkg/errtypes"
)

// Scope mirrors the three LDAP search scopes the evaluator needs.
// ScopeUnset is deliberately the zero value so a Query literal (or a Go
// struct literal) that never sets Scope is distinguishable from one that
// explicitly asked for ScopeBaseObject; callers that care about the
// difference (see query.evalInGroupNested) default it themselves.
type Scope int

const (
	ScopeUnset Scope = iota
	ScopeBaseObject
	ScopeSingleLevel
	ScopeWholeSubtree
)

func (s Scope) ldap() int {
	switch s {
	case ScopeBaseObject:
		return ldap.ScopeBaseObject
	case ScopeSingleLevel:
		return ldap.ScopeSingleLevel
	default:
		return ldap.ScopeWholeSubtree
	}
}

// Entry is a directory object as returned from a search: its DN and the
// raw (possibly multi-valued) attributes requested.
type Entry struct {
	DN         string
	Attributes map[string][]string
}

// Directory is everything the query evaluator, the session runner and the
// connection pool need from an open LDAP session.
type Directory interface {
	Search(baseDN string, scope Scope, filter string, attrs []string) ([]Entry, error)
	Bind(dn, password string) error
	UnauthenticatedBind() error
	StartTLS(cfg *tls.Config) error
	Close() error
	IsClosing() bool
}

// Conn wraps a live *ldap.Conn.
type Conn struct {
	conn *ldap.Conn
}

// NewConn wraps an already-dialed *ldap.Conn.
func NewConn(c *ldap.Conn) *Conn {
	return &Conn{conn: c}
}

// Search issues a single search request with NeverDerefAliases, no size or
// time limit beyond what the caller's dialed connection already enforces.
func (c *Conn) Search(baseDN string, scope Scope, filter string, attrs []string) ([]Entry, error) {
	req := ldap.NewSearchRequest(
		baseDN,
		scope.ldap(), ldap.NeverDerefAliases, 0, 0, false,
		filter,
		attrs,
		nil,
	)
	resp, err := c.conn.Search(req)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(resp.Entries))
	for _, e := range resp.Entries {
		attrMap := make(map[string][]string, len(e.Attributes))
		for _, a := range e.Attributes {
			attrMap[a.Name] = a.Values
		}
		out = append(out, Entry{DN: e.DN, Attributes: attrMap})
	}
	return out, nil
}

// Bind performs a simple bind. The login pipeline refuses an empty user
// password before its bind reaches here, since the LDAP protocol treats an
// empty password as an anonymous-bind request, not a failed
// authentication; service and DN-lookup identities are passed through as
// configured.
func (c *Conn) Bind(dn, password string) error {
	return c.conn.Bind(dn, password)
}

// UnauthenticatedBind performs an anonymous bind.
func (c *Conn) UnauthenticatedBind() error {
	return c.conn.UnauthenticatedBind("")
}

// StartTLS upgrades an already-open plaintext connection.
func (c *Conn) StartTLS(cfg *tls.Config) error {
	return c.conn.StartTLS(cfg)
}

// Close tears down the connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// IsClosing reports whether the underlying transport is already shutting
// down or shut down, the signal the session runner and pool use to detect
// a connection the peer closed out from under them.
func (c *Conn) IsClosing() bool {
	return c.conn.IsClosing()
}

// Options configures how Open reaches a server.
type Options struct {
	UseSSL      bool
	UseStartTLS bool
	TLSConfig   *tls.Config
	Timeout     time.Duration
}

// IsInvalidCredentials reports whether err is the specific LDAP result
// code for a bad bind, as opposed to any other bind failure.
func IsInvalidCredentials(err error) bool {
	var lerr *ldap.Error
	if errors.As(err, &lerr) {
		return lerr.ResultCode == ldap.LDAPResultInvalidCredentials
	}
	return false
}

// Open dials each server in order until one succeeds, optionally performing
// StartTLS once connected. Only once every server has failed is an
// aggregate LDAPConnectError returned.
func Open(servers []string, opts Options) (*Conn, error) {
	if len(servers) == 0 {
		return nil, errtypes.NoServersDefined("servers")
	}

	var errs []error
	for _, addr := range servers {
		c, err := dialOne(addr, opts)
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "server %s", addr))
			continue
		}
		return c, nil
	}
	return nil, errtypes.LDAPConnectError(errtypes.Join(errs...).Error())
}

func dialOne(addr string, opts Options) (*Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	scheme := "ldap"
	if opts.UseSSL {
		scheme = "ldaps"
	}

	var dialOpts []ldap.DialOpt
	if opts.Timeout > 0 {
		dialOpts = append(dialOpts, ldap.DialWithDialer(&net.Dialer{Timeout: opts.Timeout}))
	}
	tlsCfg := opts.TLSConfig
	if tlsCfg == nil {
		tlsCfg = &tls.Config{ServerName: host}
	}
	if opts.UseSSL {
		dialOpts = append(dialOpts, ldap.DialWithTLSConfig(tlsCfg))
	}

	conn, err := ldap.DialURL(fmt.Sprintf("%s://%s", scheme, addr), dialOpts...)
	if err != nil {
		return nil, err
	}

	wrapped := NewConn(conn)
	if opts.UseStartTLS && !opts.UseSSL {
		if err := wrapped.StartTLS(tlsCfg); err != nil {
			_ = wrapped.Close()
			return nil, err
		}
	}
	return wrapped, nil
}
