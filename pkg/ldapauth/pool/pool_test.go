package pool

import (
	"crypto/tls"
	"testing"
	"time"

	"github.com/go-broker/ldapauth/pkg/ldapauth/directory"
)

type fakeConn struct {
	closed   bool
	closing  bool
	bindErr  error
	boundDN  string
	anonBind bool
}

func (f *fakeConn) Search(string, directory.Scope, string, []string) ([]directory.Entry, error) {
	return nil, nil
}
func (f *fakeConn) Bind(dn, _ string) error {
	f.boundDN = dn
	return f.bindErr
}
func (f *fakeConn) UnauthenticatedBind() error { f.anonBind = true; return nil }
func (f *fakeConn) StartTLS(*tls.Config) error { return nil }
func (f *fakeConn) Close() error               { f.closed = true; return nil }
func (f *fakeConn) IsClosing() bool             { return f.closing }

func TestConnectionKeyStringStableAcrossServerOrder(t *testing.T) {
	a := ConnectionKey{Servers: []string{"ldap1:389", "ldap2:389"}}
	b := ConnectionKey{Servers: []string{"ldap2:389", "ldap1:389"}}
	if a.String() != b.String() {
		t.Fatalf("key string should not depend on server slice order: %q != %q", a.String(), b.String())
	}
}

func TestConnectionKeyStringDistinguishesAnonymous(t *testing.T) {
	anon := ConnectionKey{Anonymous: true, Servers: []string{"ldap1:389"}}
	named := ConnectionKey{Anonymous: false, Servers: []string{"ldap1:389"}}
	if anon.String() == named.String() {
		t.Fatal("anonymous and bound keys must not collide")
	}
}

func TestAcquireDialsOnceAndCachesSecondCall(t *testing.T) {
	dials := 0
	conn := &fakeConn{}
	c := NewCache(time.Minute)
	c.Dial = func([]string, directory.Options) (directory.Directory, error) {
		dials++
		return conn, nil
	}

	key := ConnectionKey{Servers: []string{"ldap1:389"}}
	got1, err := c.Acquire(key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got2, err := c.Acquire(key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got1 != got2 {
		t.Fatal("expected the same cached connection on a second Acquire")
	}
	if dials != 1 {
		t.Fatalf("expected exactly one dial, got %d", dials)
	}
}

func TestAcquireAnonymousKeyBindsAnonymously(t *testing.T) {
	conn := &fakeConn{}
	c := NewCache(time.Minute)
	c.Dial = func([]string, directory.Options) (directory.Directory, error) { return conn, nil }

	key := ConnectionKey{Anonymous: true, Servers: []string{"ldap1:389"}}
	if _, err := c.Acquire(key); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !conn.anonBind {
		t.Fatal("expected an anonymous bind to have run for an anonymous key")
	}
}

func TestPurgeClosesAndEvictsSoNextAcquireRedials(t *testing.T) {
	dials := 0
	conns := []*fakeConn{{}, {}}
	c := NewCache(time.Minute)
	c.Dial = func([]string, directory.Options) (directory.Directory, error) {
		conn := conns[dials]
		dials++
		return conn, nil
	}

	key := ConnectionKey{Servers: []string{"ldap1:389"}}
	first, err := c.Acquire(key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.Purge(key)
	if !conns[0].closed {
		t.Fatal("expected Purge to close the evicted connection")
	}

	second, err := c.Acquire(key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second == first {
		t.Fatal("expected Purge to force a fresh dial on the next Acquire")
	}
	if dials != 2 {
		t.Fatalf("expected two dials across the purge boundary, got %d", dials)
	}
}

func TestDifferentKeysGetDistinctConnections(t *testing.T) {
	dials := 0
	c := NewCache(time.Minute)
	c.Dial = func([]string, directory.Options) (directory.Directory, error) {
		dials++
		return &fakeConn{}, nil
	}

	anon := ConnectionKey{Anonymous: true, Servers: []string{"ldap1:389"}}
	named := ConnectionKey{Anonymous: false, Servers: []string{"ldap1:389"}}
	if _, err := c.Acquire(anon); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.Acquire(named); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dials != 2 {
		t.Fatalf("expected one physical connection per distinct key, got %d dials", dials)
	}
}
