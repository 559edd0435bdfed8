// Command ldapauthd is a minimal standalone driver for the LDAP
// authentication backend: it loads a YAML configuration file, builds a
// Backend, and runs one authenticate/authorize/vhost-access cycle against
// it. Wiring this backend into an actual broker's plugin lifecycle is
// outside what this command does; it exists to exercise the backend the
// way an integration test would, from the command line.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/go-broker/ldapauth/pkg/ldapauth/backend"
)

var (
	configFlag   = flag.String("c", "/etc/ldapauthd/ldapauthd.yaml", "path to the backend configuration file")
	usernameFlag = flag.String("u", "", "username to authenticate")
	passwordFlag = flag.String("p", "", "password to authenticate with (omit for the passwordless flow)")
	vhostFlag    = flag.String("vhost", "/", "vhost to check access against after authenticating")
)

func main() {
	flag.Parse()

	raw, err := loadConfig(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading config: %s\n", err.Error())
		os.Exit(1)
	}

	b, err := backend.New(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error building backend: %s\n", err.Error())
		os.Exit(1)
	}

	if *usernameFlag == "" {
		fmt.Fprintln(os.Stderr, "usage: ldapauthd -c config.yaml -u username [-p password] [-vhost vhost]")
		os.Exit(1)
	}

	ctx := context.Background()
	authProps := map[string]interface{}{}
	if *passwordFlag != "" {
		authProps["password"] = *passwordFlag
	}
	authProps["vhost"] = *vhostFlag

	user, err := b.Authenticate(ctx, *usernameFlag, authProps)
	if err != nil {
		b.Log.Error().Err(err).Str("username", *usernameFlag).Msg("authenticate failed")
		os.Exit(1)
	}
	b.Log.Info().Str("user_dn", b.ScrubDN(user.UserDN)).Interface("tags", user.Tags).Msg("authenticated")

	ok, err := b.CheckVhostAccess(ctx, user, *vhostFlag)
	if err != nil {
		b.Log.Error().Err(err).Msg("vhost access check failed")
		os.Exit(1)
	}
	if !ok {
		b.Log.Warn().Str("vhost", *vhostFlag).Msg("vhost access denied")
		os.Exit(1)
	}
	b.Log.Info().Str("vhost", *vhostFlag).Msg("vhost access granted")
}

func loadConfig(path string) (map[string]interface{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	raw := map[string]interface{}{}
	if err := yaml.NewDecoder(f).Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}
