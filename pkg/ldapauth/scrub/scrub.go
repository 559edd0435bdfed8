// Package scrub is the single choke point through which any string that
// might carry a credential or a distinguished name must pass before
// reaching the log sink. Nothing downstream re-sanitizes: if a log line
// didn't go through here, it is wrong.
package scrub

import "strings"

// Mode controls how much detail a log line is allowed to carry.
type Mode int

const (
	// ModeOff suppresses all chatty logging; only warnings and errors are
	// emitted, and those still go through DN/credential scrubbing.
	ModeOff Mode = iota
	// ModeOn is the default verbose level: DNs are scrubbed, credentials
	// are always scrubbed.
	ModeOn
	// ModeNetwork is verbose like ModeOn and redacts sensitive RDN
	// components of DNs the same way. Nothing in this module logs raw
	// LDAP traffic, so it adds no further log lines.
	ModeNetwork
	// ModeNetworkUnsafe is verbose and leaves DNs intact; credentials are
	// still never logged. Like ModeNetwork, it adds no traffic logging.
	ModeNetworkUnsafe
)

// ParseMode maps the `log` configuration value to a Mode. Unrecognised
// values fall back to ModeOn so that misconfiguration fails toward more
// logging rather than silently going dark.
func ParseMode(s string) Mode {
	switch s {
	case "false":
		return ModeOff
	case "network":
		return ModeNetwork
	case "network_unsafe":
		return ModeNetworkUnsafe
	case "true", "":
		return ModeOn
	default:
		return ModeOn
	}
}

// sensitiveRDNTypes are the RDN attribute types redacted under every mode
// except ModeNetworkUnsafe.
var sensitiveRDNTypes = map[string]bool{
	"cn":  true,
	"dc":  true,
	"ou":  true,
	"uid": true,
}

const redactedValue = "***"

// DN redacts the values of sensitive RDN components (cn, dc, ou, uid) in a
// distinguished name, leaving other RDN types (e.g. o, l, st) verbatim.
// Under ModeNetworkUnsafe the DN is returned unchanged. DN is idempotent:
// scrubbing an already-scrubbed DN returns it unchanged.
func DN(dn string, mode Mode) string {
	if mode == ModeNetworkUnsafe {
		return dn
	}
	parts := strings.Split(dn, ",")
	for i, part := range parts {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		typ := strings.ToLower(strings.TrimSpace(kv[0]))
		if sensitiveRDNTypes[typ] {
			parts[i] = kv[0] + "=" + redactedValue
		}
	}
	return strings.Join(parts, ",")
}

// Credential always redacts a credential value regardless of mode: a
// password must never reach the log sink in any form.
func Credential(string) string {
	return redactedValue
}

// Chatty reports whether verbose (non-warning/error) log lines should be
// emitted at all for the given mode.
func Chatty(mode Mode) bool {
	return mode != ModeOff
}
