package security

import (
	"os"
	"strings"
)

// DiscoverRoster enumerates every "*.pub" file in dir, excluding the
// broker's own key (brokerName), to build the authorized-client roster
// (spec §4.2.2).
func DiscoverRoster(dir, brokerName string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &CredentialError{Op: "list key directory", Path: dir, Err: err}
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(e.Name(), ".pub") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".pub")
		if name == brokerName {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// LoadRosterKeys resolves each client name in names to its public key
// material under dir. An empty roster is a CredentialError at the caller's
// discretion (spec §4.2 failure modes) — this function just returns what
// it finds.
func LoadRosterKeys(dir string, names []string) (map[string]string, error) {
	keys := make(map[string]string, len(names))
	for _, name := range names {
		pub, err := LoadPublicKey(dir, name)
		if err != nil {
			return nil, err
		}
		keys[name] = pub
	}
	return keys, nil
}

// AllowList is an IP allow-list gate: empty means "allow any", matching
// the original's "[agents].ip_whitelist" semantics (spec §4.2.3).
type AllowList struct {
	ips map[string]bool
}

// NewAllowList builds an AllowList from the configured whitelist entries.
func NewAllowList(ips []string) *AllowList {
	if len(ips) == 0 {
		return &AllowList{}
	}
	m := make(map[string]bool, len(ips))
	for _, ip := range ips {
		m[ip] = true
	}
	return &AllowList{ips: m}
}

// Allowed reports whether ip may connect. An AllowList with no entries
// allows everything.
func (a *AllowList) Allowed(ip string) bool {
	if len(a.ips) == 0 {
		return true
	}
	return a.ips[ip]
}
