// Package session runs one unit of directory work — typically a single
// evaluator call — against a connection drawn from a pool.Cache, handling
// the bind, classifying whatever comes back into the opaque error kinds
// callers are allowed to see, and retrying once if the connection turned
// out to be dead.
package session

import (
	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog"

	"github.com/go-broker/ldapauth/pkg/errtypes"
	"github.com/go-broker/ldapauth/pkg/ldapauth/directory"
	"github.com/go-broker/ldapauth/pkg/ldapauth/pool"
)

// Credential is the bind identity the runner should use for one Run call.
// An Err credential short-circuits Run without touching the directory —
// the credential selector uses this to report configurations that can't
// produce a usable identity (as_user with no password on hand).
type Credential struct {
	Anonymous bool
	DN        string
	Password  string
	Err       error
}

// Anon is the anonymous credential.
func Anon() Credential { return Credential{Anonymous: true} }

// AsDN binds as dn/password.
func AsDN(dn, password string) Credential { return Credential{DN: dn, Password: password} }

// refused returns the upfront error this credential carries, or nil.
func (c Credential) refused() error { return c.Err }

// Func is the work a caller hands to Run once a bound handle is available.
type Func func(dir directory.Directory) error

// Runner owns the connection cache and dial parameters for one worker.
type Runner struct {
	Cache   *pool.Cache
	Servers []string
	Options directory.Options
	Log     *zerolog.Logger
}

func (r *Runner) log() *zerolog.Logger {
	if r.Log != nil {
		return r.Log
	}
	nop := zerolog.Nop()
	return &nop
}

// Run acquires (or reuses) a connection for cred, binds if cred isn't
// anonymous, invokes fn, and maps whatever happened to the opaque error
// kinds the rest of the module deals in. A connection found dead is
// purged and the whole attempt retried exactly once.
func (r *Runner) Run(cred Credential, fn Func) error {
	if err := cred.refused(); err != nil {
		return err
	}

	key := pool.ConnectionKey{
		Anonymous: cred.Anonymous,
		Servers:   r.Servers,
		Options:   r.Options,
	}

	attempt := func() error {
		conn, err := r.Cache.Acquire(key)
		if err != nil {
			return backoff.Permanent(errtypes.LDAPConnectError(err.Error()))
		}

		opErr := r.bindAndCall(conn, cred, fn)
		if opErr == nil {
			return nil
		}
		if conn.IsClosing() {
			r.log().Debug().Msg("connection closed by peer, purging and retrying once")
			r.Cache.Purge(key)
			return opErr
		}
		return backoff.Permanent(opErr)
	}

	return backoff.Retry(attempt, backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 1))
}

func (r *Runner) bindAndCall(conn directory.Directory, cred Credential, fn Func) error {
	if !cred.Anonymous {
		if err := conn.Bind(cred.DN, cred.Password); err != nil {
			if directory.IsInvalidCredentials(err) {
				return errtypes.Refused(cred.DN)
			}
			r.log().Debug().Err(err).Msg("bind failed")
			return errtypes.LDAPBindError(err.Error())
		}
	}

	if err := fn(conn); err != nil {
		r.log().Debug().Err(err).Msg("caller function failed")
		return errtypes.LDAPEvaluateError(err.Error())
	}
	return nil
}
