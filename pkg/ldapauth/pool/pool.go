// Package pool is the per-worker connection cache: a map from
// ConnectionKey to a live LDAP handle, with idle-timer eviction. One Cache
// is meant to live inside exactly one worker (see pkg/ldapauth/worker) so
// the map itself never needs a mutex — worker-local storage instead of a
// globally shared, guarded map.
package pool

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v2"

	"github.com/go-broker/ldapauth/pkg/ldapauth/directory"
)

// forever stands in for an "infinite" idle timeout: ttlcache always wants
// a concrete TTL, so a configured idle_timeout of zero (meaning never
// evict) is mapped to a duration long enough that it never fires in
// practice.
const forever = 100 * 365 * 24 * time.Hour

// ConnectionKey identifies a physical connection's identity: whether it is
// anonymous, which servers it may dial, and the open options that affect
// how the socket is established. The idle timeout is deliberately not
// part of the key — it governs eviction, not identity.
type ConnectionKey struct {
	Anonymous bool
	Servers   []string
	Options   directory.Options
}

// String renders a deterministic cache key for the ttlcache backing store.
func (k ConnectionKey) String() string {
	servers := append([]string(nil), k.Servers...)
	sort.Strings(servers)
	serverName := ""
	if k.Options.TLSConfig != nil {
		serverName = k.Options.TLSConfig.ServerName
	}
	return fmt.Sprintf("anon=%v|servers=%s|ssl=%v|starttls=%v|timeout=%s|sni=%s",
		k.Anonymous, strings.Join(servers, ","), k.Options.UseSSL, k.Options.UseStartTLS,
		k.Options.Timeout, serverName)
}

// Cache owns every live LDAP handle for one worker.
type Cache struct {
	backing *ttlcache.Cache
	idle    time.Duration

	// Dial opens a fresh connection on a cache miss. Defaults to
	// directory.Open; tests substitute a fake so Acquire never touches a
	// real socket.
	Dial func(servers []string, opts directory.Options) (directory.Directory, error)
}

// NewCache builds a worker-local connection cache. idle <= 0 is treated as
// "never evict".
func NewCache(idle time.Duration) *Cache {
	if idle <= 0 {
		idle = forever
	}
	backing := ttlcache.NewCache()
	backing.SkipTTLExtensionOnHit(false)
	backing.SetTTL(idle)
	backing.SetExpirationCallback(func(key string, value interface{}) {
		if conn, ok := value.(directory.Directory); ok {
			_ = conn.Close()
		}
	})
	return &Cache{
		backing: backing,
		idle:    idle,
		Dial: func(servers []string, opts directory.Options) (directory.Directory, error) {
			return directory.Open(servers, opts)
		},
	}
}

// Acquire returns the cached handle for key, resetting its idle timer, or
// opens (and binds, for an anonymous key) a fresh one on a miss.
func (c *Cache) Acquire(key ConnectionKey) (directory.Directory, error) {
	if v, err := c.backing.Get(key.String()); err == nil {
		return v.(directory.Directory), nil
	}

	conn, err := c.Dial(key.Servers, key.Options)
	if err != nil {
		return nil, err
	}
	if key.Anonymous {
		if err := conn.UnauthenticatedBind(); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	if err := c.backing.SetWithTTL(key.String(), conn, c.idle); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// Purge forcibly tears a key's connection down: the caller has already
// observed the transport closed out from under it, so a graceful unbind
// would itself fail. Purge removes the entry without waiting for the
// idle-timer callback.
func (c *Cache) Purge(key ConnectionKey) {
	if v, err := c.backing.Get(key.String()); err == nil {
		if conn, ok := v.(directory.Directory); ok {
			_ = conn.Close()
		}
	}
	_ = c.backing.Remove(key.String())
}

// Close tears down every cached connection, for worker shutdown.
func (c *Cache) Close() error {
	return c.backing.Close()
}
