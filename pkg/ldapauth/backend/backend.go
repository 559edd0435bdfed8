// Package backend wires the evaluator, the session runner, the worker
// pool and the login pipeline together into the three-method contract a
// broker actually calls: authenticate, authorize, and the three
// per-operation access checks.
package backend

import (
	"context"
	"crypto/tls"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/go-broker/ldapauth/pkg/appctx"
	"github.com/go-broker/ldapauth/pkg/errtypes"
	"github.com/go-broker/ldapauth/pkg/ldapauth/config"
	"github.com/go-broker/ldapauth/pkg/ldapauth/credential"
	"github.com/go-broker/ldapauth/pkg/ldapauth/directory"
	"github.com/go-broker/ldapauth/pkg/ldapauth/login"
	"github.com/go-broker/ldapauth/pkg/ldapauth/query"
	"github.com/go-broker/ldapauth/pkg/ldapauth/scrub"
	"github.com/go-broker/ldapauth/pkg/ldapauth/session"
	"github.com/go-broker/ldapauth/pkg/ldapauth/worker"
)

// ResourceKind mirrors the broker's resource classes this backend knows
// how to authorize.
type ResourceKind string

const (
	ResourceQueue    ResourceKind = "queue"
	ResourceExchange ResourceKind = "exchange"
	ResourceTopic    ResourceKind = "topic"
)

// Resource is a single virtual-host-scoped object an AuthUser is asking
// to act on.
type Resource struct {
	VHost string
	Kind  ResourceKind
	Name  string
}

// fixedVars are the variable-map keys every entry point binds itself;
// caller-supplied context keys that collide with these are dropped.
var fixedVars = map[string]bool{
	"username": true, "user_dn": true, "vhost": true,
	"resource": true, "name": true, "permission": true,
}

// Backend is one configured, running instance of this authentication
// backend.
type Backend struct {
	Config       config.Config
	Pool         *worker.Pool
	Log          *zerolog.Logger
	MemberFilter *query.MemberFilter
	ScrubMode    scrub.Mode
}

// ScrubDN redacts dn per this backend's configured log scrub mode. Any
// caller that logs a DN outside the evaluator/session/pipeline layers
// (cmd/ldapauthd's driver loop, for instance) should go through this
// rather than logging the raw value.
func (b *Backend) ScrubDN(dn string) string {
	return scrub.DN(dn, b.ScrubMode)
}

// NewFunc is the function a broker-facing plugin loader calls with the
// raw configuration map it read for this backend.
type NewFunc func(map[string]interface{}) (*Backend, error)

// NewFuncs holds every backend implementation registered under a name.
var NewFuncs = map[string]NewFunc{}

// Register makes name available to whatever loads backends by
// configuration string. Not safe for concurrent use; call from init.
func Register(name string, f NewFunc) {
	NewFuncs[name] = f
}

func init() {
	Register("ldap", New)
}

// New builds a Backend from raw configuration.
func New(raw map[string]interface{}) (*Backend, error) {
	cfg, err := config.New(raw)
	if err != nil {
		return nil, err
	}
	if len(cfg.Servers) == 0 {
		return nil, errtypes.NoServersDefined("servers")
	}

	servers := make([]string, len(cfg.Servers))
	for i, s := range cfg.Servers {
		servers[i] = withDefaultPort(s, cfg.Port)
	}

	opts := directory.Options{
		UseSSL:      cfg.SSL.UseSSL,
		UseStartTLS: cfg.SSL.UseStartTLS,
		Timeout:     time.Duration(cfg.Timeout) * time.Second,
	}
	if cfg.SSL.ServerName != "" || cfg.SSL.Insecure {
		opts.TLSConfig = &tls.Config{
			ServerName:         cfg.SSL.ServerName,
			InsecureSkipVerify: cfg.SSL.Insecure,
		}
	}

	memberFilter, err := query.NewMemberFilter(cfg.GroupFilterTemplate)
	if err != nil {
		return nil, err
	}

	zl := newLogger(cfg.Log)
	idle := time.Duration(cfg.IdleTimeout) * time.Second
	pool := worker.NewPool(cfg.PoolSize, servers, opts, idle, &zl)

	return &Backend{
		Config:       cfg,
		Pool:         pool,
		Log:          &zl,
		MemberFilter: memberFilter,
		ScrubMode:    scrub.ParseMode(cfg.Log),
	}, nil
}

func withDefaultPort(addr string, port int) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, strconv.Itoa(port))
}

func newLogger(mode string) zerolog.Logger {
	level := zerolog.InfoLevel
	if !scrub.Chatty(scrub.ParseMode(mode)) {
		level = zerolog.WarnLevel
	}
	return zerolog.New(os.Stderr).With().Timestamp().Str("component", "ldapauth").Logger().Level(level)
}

// loggerFor prefers a logger the caller attached to ctx (via
// appctx.WithLogger, optionally tagged with appctx.WithTrace) over the
// backend's own, so a broker that correlates its own request IDs gets
// them threaded through every log line this call produces.
func (b *Backend) loggerFor(ctx context.Context) *zerolog.Logger {
	l := appctx.GetLogger(ctx)
	if l.GetLevel() == zerolog.Disabled {
		return b.Log
	}
	if trace := appctx.GetTrace(ctx); trace != "unknown" {
		traced := l.With().Str("trace", trace).Logger()
		return &traced
	}
	return l
}

// Authenticate runs the login pipeline for username with authProps
// (typically containing "password" and "vhost"). Absence of "password"
// selects the passwordless flow.
func (b *Backend) Authenticate(ctx context.Context, username string, authProps map[string]interface{}) (login.AuthUser, error) {
	req := login.Request{Username: username}
	if pw, ok := authProps["password"].(string); ok {
		req.Password = pw
		req.HasPassword = true
	}
	if vh, ok := authProps["vhost"].(string); ok {
		req.Vhost = vh
		req.HasVhost = true
	}

	log := b.loggerFor(ctx)
	var user login.AuthUser
	var runErr error
	submitErr := b.Pool.Submit(ctx, func(runner *session.Runner) error {
		pipeline := &login.Pipeline{
			Config:       b.Config,
			Runner:       runner,
			Log:          log,
			MemberFilter: b.MemberFilter,
			ScrubMode:    b.ScrubMode,
		}
		user, runErr = pipeline.Run(req)
		return nil
	})
	if submitErr != nil {
		return login.AuthUser{}, submitErr
	}
	return user, runErr
}

// Authorize is Authenticate without a password, for brokers that only
// need the tag set of an already-trusted principal.
func (b *Backend) Authorize(ctx context.Context, username string) (login.AuthUser, error) {
	return b.Authenticate(ctx, username, map[string]interface{}{})
}

// CheckVhostAccess decides whether u may access vhost at all.
func (b *Backend) CheckVhostAccess(ctx context.Context, u login.AuthUser, vhost string) (bool, error) {
	vars := query.NewVars().Set("username", u.Username).Set("user_dn", u.UserDN).Set("vhost", vhost)
	return b.evalBool(ctx, u, b.Config.VhostAccessQuery, vars)
}

// CheckResourceAccess decides whether u may exercise permission on r.
func (b *Backend) CheckResourceAccess(ctx context.Context, u login.AuthUser, r Resource, permission string) (bool, error) {
	vars := query.NewVars().
		Set("username", u.Username).
		Set("user_dn", u.UserDN).
		Set("vhost", r.VHost).
		Set("resource", string(r.Kind)).
		Set("name", r.Name).
		Set("permission", permission)
	return b.evalBool(ctx, u, b.Config.ResourceAccessQuery, vars)
}

// CheckTopicAccess decides whether u may exercise permission on the topic
// r, additionally binding whatever of topicCtx doesn't collide with the
// fixed variable names.
func (b *Backend) CheckTopicAccess(ctx context.Context, u login.AuthUser, r Resource, permission string, topicCtx map[string]string) (bool, error) {
	vars := query.NewVars().
		Set("username", u.Username).
		Set("user_dn", u.UserDN).
		Set("vhost", r.VHost).
		Set("resource", string(r.Kind)).
		Set("name", r.Name).
		Set("permission", permission)
	for k, v := range topicCtx {
		if fixedVars[k] {
			continue
		}
		vars.Set(k, v)
	}
	return b.evalBool(ctx, u, b.Config.TopicAccessQuery, vars)
}

func (b *Backend) evalBool(ctx context.Context, u login.AuthUser, q query.Query, vars *query.Vars) (bool, error) {
	principal := credential.Principal{
		DN:          u.UserDN,
		Password:    u.Password,
		HasDN:       u.UserDN != "",
		HasPassword: u.Password != "",
	}
	cred := credential.Select(credential.Config{
		Mode:        credential.Mode(b.Config.OtherBind),
		ServiceDN:   b.Config.ServiceDN,
		ServicePass: b.Config.ServicePass,
	}, principal)

	log := b.loggerFor(ctx)
	var result query.Value
	submitErr := b.Pool.Submit(ctx, func(runner *session.Runner) error {
		return runner.Run(cred, func(dir directory.Directory) error {
			eval := &query.Evaluator{
				Dir:              dir,
				GroupBase:        b.Config.GroupBase(),
				DNLookupBase:     b.Config.DNLookupBase,
				MemberFilterTmpl: b.MemberFilter,
				ScrubMode:        b.ScrubMode,
				Log:              log,
			}
			result = eval.Eval(q, vars)
			if result.IsErr() {
				return result.Error()
			}
			return nil
		})
	})
	if submitErr != nil {
		return false, submitErr
	}
	return result.Truthy(), nil
}
