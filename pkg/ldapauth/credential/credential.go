// Package credential picks the bind identity a directory operation should
// run under, given how the operator configured "other_bind" and what the
// calling principal currently knows about itself.
package credential

import (
	"github.com/go-broker/ldapauth/pkg/errtypes"
	"github.com/go-broker/ldapauth/pkg/ldapauth/session"
)

// Mode is the configured other_bind discipline.
type Mode int

const (
	// ModeAnonymous always runs directory operations unauthenticated.
	ModeAnonymous Mode = iota
	// ModeAsUser rebinds as the currently authenticating principal.
	ModeAsUser
	// ModeService always rebinds as a fixed, configured service identity.
	ModeService
)

// Principal is the subset of login state the selector needs: what DN (if
// any) has been resolved, and what password (if any) is still on hand for
// this request.
type Principal struct {
	DN          string
	Password    string
	HasDN       bool
	HasPassword bool
}

// Config carries the pieces of "other_bind" relevant when Mode is
// ModeService.
type Config struct {
	Mode        Mode
	ServiceDN   string
	ServicePass string
}

// Select produces the credential a directory operation should bind with.
func Select(cfg Config, p Principal) session.Credential {
	switch cfg.Mode {
	case ModeAnonymous:
		return session.Anon()
	case ModeAsUser:
		if !p.HasDN || !p.HasPassword {
			return session.Credential{Err: errtypes.Refused("as_user configured without a password on hand")}
		}
		return session.AsDN(p.DN, p.Password)
	default:
		return session.AsDN(cfg.ServiceDN, cfg.ServicePass)
	}
}
