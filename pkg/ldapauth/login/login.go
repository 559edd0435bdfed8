// Package login orchestrates one authentication attempt: resolving the
// principal's DN, running the authenticating bind, and sweeping the
// configured tag queries to build the AuthUser the broker keeps for the
// lifetime of the connection.
package login

import (
	"github.com/rs/zerolog"

	"github.com/go-broker/ldapauth/pkg/errtypes"
	"github.com/go-broker/ldapauth/pkg/ldapauth/config"
	"github.com/go-broker/ldapauth/pkg/ldapauth/credential"
	"github.com/go-broker/ldapauth/pkg/ldapauth/directory"
	"github.com/go-broker/ldapauth/pkg/ldapauth/query"
	"github.com/go-broker/ldapauth/pkg/ldapauth/scrub"
	"github.com/go-broker/ldapauth/pkg/ldapauth/session"
	"github.com/go-broker/ldapauth/pkg/ldapauth/template"
)

// AuthUser is the opaque principal handle returned from a successful
// login and threaded through every subsequent authorization call.
type AuthUser struct {
	Username string
	UserDN   string
	Password string
	Tags     map[string]bool
}

// HasTag reports whether tag was among the tag queries that evaluated to
// boolean true for this principal.
func (u AuthUser) HasTag(tag string) bool { return u.Tags[tag] }

// Request is one login attempt's inputs. HasPassword distinguishes a
// supplied-but-empty password (rejected up front) from the no-password
// flow used by authorize()-style calls.
type Request struct {
	Username    string
	Password    string
	HasPassword bool
	Vhost       string
	HasVhost    bool
}

// Pipeline runs logins against one configured backend.
type Pipeline struct {
	Config       config.Config
	Runner       *session.Runner
	MemberFilter *query.MemberFilter
	ScrubMode    scrub.Mode
	Log          *zerolog.Logger
}

func (p *Pipeline) log() *zerolog.Logger {
	if p.Log != nil {
		return p.Log
	}
	nop := zerolog.Nop()
	return &nop
}

// Run executes the full pipeline for req and returns the resulting
// AuthUser, or the typed error the broker should report (refused,
// ldap_bind_error, ldap_connect_error, ldap_evaluate_error, ...).
func (p *Pipeline) Run(req Request) (AuthUser, error) {
	if req.Username == "" {
		return AuthUser{}, errtypes.UserRequired("username is required to authenticate")
	}
	if req.HasPassword && req.Password == "" {
		return AuthUser{}, errtypes.Refused("empty password: unauthenticated bind not allowed")
	}

	vars := query.NewVars()
	vars.Set("username", req.Username)
	if req.HasVhost {
		vars.Set("vhost", req.Vhost)
	}

	userDN := template.FillMap(p.Config.UserDNPattern, vars.Map())

	if p.Config.DNResolution == config.DNResolutionPrebind {
		dn, err := p.prebindResolve(req, vars)
		if err != nil {
			return AuthUser{}, err
		}
		userDN = dn
	}
	vars.Set("user_dn", userDN)

	authCred := session.Anon()
	if req.HasPassword {
		authCred = session.AsDN(userDN, req.Password)
	}

	var postbindDN string
	err := p.Runner.Run(authCred, func(dir directory.Directory) error {
		if p.Config.DNResolution == config.DNResolutionPostbind {
			dn, lookupErr := p.searchDN(dir, req.Username)
			if lookupErr == nil {
				postbindDN = dn
			}
		}
		return nil
	})
	if err != nil {
		return AuthUser{}, err
	}
	if postbindDN != "" {
		userDN = postbindDN
		vars.Set("user_dn", userDN)
	}

	tags, err := p.sweepTagQueries(vars, req, userDN)
	if err != nil {
		return AuthUser{}, err
	}

	return AuthUser{
		Username: req.Username,
		UserDN:   userDN,
		Password: req.Password,
		Tags:     tags,
	}, nil
}

func (p *Pipeline) prebindResolve(req Request, vars *query.Vars) (string, error) {
	lookupCred := session.AsDN(p.Config.DNLookupBindDN, p.Config.DNLookupBindPass)
	if p.Config.DNLookupBind == config.DNLookupBindAsUser && req.HasPassword {
		lookupCred = session.AsDN(template.FillMap(p.Config.UserDNPattern, vars.Map()), req.Password)
	}

	var resolved string
	err := p.Runner.Run(lookupCred, func(dir directory.Directory) error {
		dn, searchErr := p.searchDN(dir, req.Username)
		if searchErr != nil {
			return searchErr
		}
		resolved = dn
		return nil
	})
	if err != nil {
		return "", err
	}
	return resolved, nil
}

func (p *Pipeline) searchDN(dir directory.Directory, username string) (string, error) {
	if p.Config.DNLookupAttribute == "" || p.Config.DNLookupAttribute == "none" {
		return "", errtypes.NotFound("dn_lookup_attribute disabled")
	}
	vars := query.NewVars().Set("username", username)
	filter := template.FillMap("("+p.Config.DNLookupAttribute+"=${username})", vars.Map())
	entries, err := dir.Search(p.Config.DNLookupBase, directory.ScopeSingleLevel, filter, []string{"dn"})
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errtypes.NotFound(username)
	}
	return entries[0].DN, nil
}

func (p *Pipeline) sweepTagQueries(vars *query.Vars, req Request, userDN string) (map[string]bool, error) {
	tags := make(map[string]bool, len(p.Config.TagQueries))
	if len(p.Config.TagQueries) == 0 {
		return tags, nil
	}

	principal := credential.Principal{
		DN:          userDN,
		Password:    req.Password,
		HasDN:       true,
		HasPassword: req.HasPassword,
	}
	cred := credential.Select(credential.Config{
		Mode:        credential.Mode(p.Config.OtherBind),
		ServiceDN:   p.Config.ServiceDN,
		ServicePass: p.Config.ServicePass,
	}, principal)

	err := p.Runner.Run(cred, func(dir directory.Directory) error {
		eval := &query.Evaluator{
			Dir:              dir,
			GroupBase:        p.Config.GroupBase(),
			DNLookupBase:     p.Config.DNLookupBase,
			MemberFilterTmpl: p.MemberFilter,
			ScrubMode:        p.ScrubMode,
			Log:              p.log(),
		}
		for _, tq := range p.Config.TagQueries {
			v := eval.Eval(tq.Query, vars)
			if v.IsErr() {
				return v.Error()
			}
			if v.Truthy() {
				tags[tq.Tag] = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tags, nil
}
