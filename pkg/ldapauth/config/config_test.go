package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-broker/ldapauth/pkg/ldapauth/directory"
	"github.com/go-broker/ldapauth/pkg/ldapauth/query"
)

func TestDefaultsAppliesDocumentedValues(t *testing.T) {
	d := Defaults()
	assert.Equal(t, 389, d.Port)
	assert.Equal(t, "${username}", d.UserDNPattern)
	assert.Equal(t, OtherBindService, d.OtherBind)
	assert.Equal(t, 64, d.PoolSize)
	assert.NotNil(t, d.VhostAccessQuery)
	assert.NotNil(t, d.ResourceAccessQuery)
	assert.NotNil(t, d.TopicAccessQuery)
}

func TestNewOverridesDefaultsFromRawMap(t *testing.T) {
	raw := map[string]interface{}{
		"servers":      []string{"ldap1:389", "ldap2:389"},
		"port":         "636",
		"pool_size":    "16",
		"anon_auth":    true,
		"service_dn":   "cn=svc,dc=example,dc=com",
		"idle_timeout": 300,
	}
	cfg, err := New(raw)
	require.NoError(t, err)

	assert.Equal(t, []string{"ldap1:389", "ldap2:389"}, cfg.Servers)
	assert.Equal(t, 636, cfg.Port, "WeaklyTypedInput should coerce the string \"636\"")
	assert.Equal(t, 16, cfg.PoolSize)
	assert.True(t, cfg.AnonAuth)
	assert.Equal(t, "cn=svc,dc=example,dc=com", cfg.ServiceDN)
	assert.Equal(t, 300, cfg.IdleTimeout)
}

func TestNewRejectsUnknownFieldShape(t *testing.T) {
	_, err := New(map[string]interface{}{"port": []string{"not", "a", "number"}})
	assert.Error(t, err)
}

func TestNewWithNilRawReturnsDefaults(t *testing.T) {
	cfg, err := New(nil)
	require.NoError(t, err)
	assert.Equal(t, Defaults().Port, cfg.Port)
}

func TestNewDecodesVhostAccessQueryLiteral(t *testing.T) {
	raw := map[string]interface{}{
		"vhost_access_query": map[string]interface{}{
			"type": "in_group",
			"dn":   "cn=vhost-${vhost},ou=groups,dc=example,dc=com",
		},
	}
	cfg, err := New(raw)
	require.NoError(t, err)

	want := query.InGroup{DNPattern: "cn=vhost-${vhost},ou=groups,dc=example,dc=com"}
	assert.Equal(t, want, cfg.VhostAccessQuery)
}

func TestNewDecodesResourceAndTopicAccessQueryLiterals(t *testing.T) {
	raw := map[string]interface{}{
		"resource_access_query": false,
		"topic_access_query": map[string]interface{}{
			"type": "not",
			"query": map[string]interface{}{
				"type": "exists",
				"dn":   "cn=banned,dc=example,dc=com",
			},
		},
	}
	cfg, err := New(raw)
	require.NoError(t, err)

	assert.Equal(t, query.Constant(false), cfg.ResourceAccessQuery)
	assert.Equal(t, query.Not{Sub: query.Exists{DNPattern: "cn=banned,dc=example,dc=com"}}, cfg.TopicAccessQuery)
}

func TestNewDecodesTagQueries(t *testing.T) {
	raw := map[string]interface{}{
		"tag_queries": []interface{}{
			map[string]interface{}{
				"tag": "ops",
				"query": map[string]interface{}{
					"type": "in_group_nested",
					"dn":   "cn=staff,ou=groups,dc=example,dc=com",
					"scope": "single_level",
				},
			},
		},
	}
	cfg, err := New(raw)
	require.NoError(t, err)

	require.Len(t, cfg.TagQueries, 1)
	assert.Equal(t, "ops", cfg.TagQueries[0].Tag)
	assert.Equal(t, query.InGroupNested{
		DNPattern: "cn=staff,ou=groups,dc=example,dc=com",
		Scope:     directory.ScopeSingleLevel,
	}, cfg.TagQueries[0].Query)
}

func TestNewRejectsMalformedQueryLiteral(t *testing.T) {
	_, err := New(map[string]interface{}{"vhost_access_query": 42})
	assert.Error(t, err)
}

func TestNewRejectsMalformedTagQueriesShape(t *testing.T) {
	_, err := New(map[string]interface{}{"tag_queries": "not-a-list"})
	assert.Error(t, err)
}

func TestGroupBaseFallsBackToDNLookupBase(t *testing.T) {
	cfg := Config{DNLookupBase: "ou=people,dc=example,dc=com"}
	assert.Equal(t, cfg.DNLookupBase, cfg.GroupBase())
}

func TestGroupBasePrefersGroupLookupBaseWhenSet(t *testing.T) {
	cfg := Config{
		DNLookupBase:    "ou=people,dc=example,dc=com",
		GroupLookupBase: "ou=groups,dc=example,dc=com",
	}
	assert.Equal(t, cfg.GroupLookupBase, cfg.GroupBase())
}
