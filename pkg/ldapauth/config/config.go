// Package config decodes the backend's configuration surface from the
// generic map the broker's config loader hands every plugin, using
// mitchellh/mapstructure over a defaults baseline rather than a bespoke
// unmarshaller.
package config

import (
	"github.com/mitchellh/mapstructure"

	pkgerrors "github.com/go-broker/ldapauth/pkg/errors"
	"github.com/go-broker/ldapauth/pkg/ldapauth/query"
)

// DNLookupBind selects the identity used during a prebind DN lookup.
type DNLookupBind int

const (
	DNLookupBindService DNLookupBind = iota
	DNLookupBindAsUser
)

// DNResolutionMode is when/how user_dn gets resolved relative to the
// authenticating bind.
type DNResolutionMode int

const (
	// DNResolutionNever synthesizes the DN from user_dn_pattern only.
	DNResolutionNever DNResolutionMode = iota
	// DNResolutionPrebind searches for the DN before authenticating.
	DNResolutionPrebind
	// DNResolutionPostbind searches for the DN after authenticating.
	DNResolutionPostbind
)

// OtherBindMode mirrors credential.Mode for the parts of configuration
// that select a non-login bind identity (tag queries and the access
// checks; a prebind DN lookup uses DNLookupBind instead).
type OtherBindMode int

const (
	OtherBindAnonymous OtherBindMode = iota
	OtherBindAsUser
	OtherBindService
)

// TagQuery pairs a tag name with the query that decides whether a
// principal carries it.
type TagQuery struct {
	Tag   string
	Query query.Query
}

// SSLOptions holds the transport-security knobs. backend.New copies
// UseSSL and UseStartTLS into directory.Options and builds a tls.Config
// from ServerName and Insecure; CACertFile is decoded but not read.
type SSLOptions struct {
	UseSSL      bool   `mapstructure:"use_ssl"`
	UseStartTLS bool   `mapstructure:"use_starttls"`
	CACertFile  string `mapstructure:"cacertfile"`
	ServerName  string `mapstructure:"server_name"`
	Insecure    bool   `mapstructure:"insecure"`
}

// Config is the full set of operator-facing knobs for this backend.
type Config struct {
	Servers []string `mapstructure:"servers"`
	Port    int      `mapstructure:"port"`

	UserDNPattern     string `mapstructure:"user_dn_pattern"`
	DNLookupAttribute string `mapstructure:"dn_lookup_attribute"`
	DNLookupBase      string `mapstructure:"dn_lookup_base"`
	GroupLookupBase   string `mapstructure:"group_lookup_base"`
	DNLookupBind      DNLookupBind
	DNLookupBindDN    string `mapstructure:"dn_lookup_bind_dn"`
	DNLookupBindPass  string `mapstructure:"dn_lookup_bind_password"`
	DNResolution      DNResolutionMode

	// GroupFilterTemplate overrides the "(attr=dn)" containment filter
	// InGroup/InGroupNested build, as a text/template+sprig pattern
	// receiving .Attr and .DN. Empty keeps the plain filter.
	GroupFilterTemplate string `mapstructure:"group_filter_template"`

	OtherBind   OtherBindMode
	ServiceDN   string `mapstructure:"service_dn"`
	ServicePass string `mapstructure:"service_password"`

	AnonAuth bool `mapstructure:"anon_auth"`

	// Decoded from the raw config's "vhost_access_query" etc. by New via
	// query.Decode, not by mapstructure directly — query.Query is an
	// interface and TagQuery embeds one, neither of which mapstructure can
	// construct from a generic map on its own. Hence "mapstructure:"-"":
	// these fields are handled by hand, right after the decoder call
	// below, not skipped.
	VhostAccessQuery    query.Query `mapstructure:"-"`
	ResourceAccessQuery query.Query `mapstructure:"-"`
	TopicAccessQuery    query.Query `mapstructure:"-"`
	TagQueries          []TagQuery  `mapstructure:"-"`

	SSL SSLOptions

	Timeout     int `mapstructure:"timeout"`
	IdleTimeout int `mapstructure:"idle_timeout"`
	PoolSize    int `mapstructure:"pool_size"`

	Log string `mapstructure:"log"`
}

// Defaults returns a Config with every documented default applied; New
// decodes raw settings on top of this.
func Defaults() Config {
	return Config{
		Port:                389,
		UserDNPattern:       "${username}",
		OtherBind:           OtherBindService,
		VhostAccessQuery:    query.Constant(true),
		ResourceAccessQuery: query.Constant(true),
		TopicAccessQuery:    query.Constant(true),
		PoolSize:            64,
		Log:                 "false",
	}
}

// New decodes raw (typically straight from the broker's key-value config
// store) over Defaults(). The scalar/struct fields go through mapstructure;
// the four query-valued fields (VhostAccessQuery, ResourceAccessQuery,
// TopicAccessQuery, TagQueries) are decoded separately afterwards, from
// raw's "vhost_access_query"/"resource_access_query"/"topic_access_query"/
// "tag_queries" entries, via query.Decode.
func New(raw map[string]interface{}) (Config, error) {
	cfg := Defaults()
	if raw == nil {
		return cfg, nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return cfg, pkgerrors.Wrapf(err, "building config decoder")
	}
	if err := decoder.Decode(raw); err != nil {
		return cfg, pkgerrors.Wrapf(err, "decoding config")
	}

	if v, ok := raw["vhost_access_query"]; ok {
		q, err := query.Decode(v)
		if err != nil {
			return cfg, pkgerrors.Wrapf(err, "decoding vhost_access_query")
		}
		cfg.VhostAccessQuery = q
	}
	if v, ok := raw["resource_access_query"]; ok {
		q, err := query.Decode(v)
		if err != nil {
			return cfg, pkgerrors.Wrapf(err, "decoding resource_access_query")
		}
		cfg.ResourceAccessQuery = q
	}
	if v, ok := raw["topic_access_query"]; ok {
		q, err := query.Decode(v)
		if err != nil {
			return cfg, pkgerrors.Wrapf(err, "decoding topic_access_query")
		}
		cfg.TopicAccessQuery = q
	}
	if v, ok := raw["tag_queries"]; ok {
		tqs, err := decodeTagQueries(v)
		if err != nil {
			return cfg, pkgerrors.Wrapf(err, "decoding tag_queries")
		}
		cfg.TagQueries = tqs
	}

	return cfg, nil
}

// decodeTagQueries turns the raw "tag_queries" literal — a list of
// {tag: "...", query: <query literal>} maps — into []TagQuery. Each
// query literal is handed to query.Decode, the same parser-equivalent
// vhost_access_query and friends go through.
func decodeTagQueries(raw interface{}) ([]TagQuery, error) {
	items, ok := raw.([]interface{})
	if !ok {
		return nil, pkgerrors.Newf("tag_queries must be a list, got %T", raw)
	}
	out := make([]TagQuery, len(items))
	for i, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, pkgerrors.Newf("tag_queries[%d] must be a map, got %T", i, item)
		}
		tag, _ := m["tag"].(string)
		q, err := query.Decode(m["query"])
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "tag_queries[%d]", i)
		}
		out[i] = TagQuery{Tag: tag, Query: q}
	}
	return out, nil
}

// GroupBase resolves group_lookup_base, falling back to dn_lookup_base
// when unset.
func (c Config) GroupBase() string {
	if c.GroupLookupBase != "" {
		return c.GroupLookupBase
	}
	return c.DNLookupBase
}
