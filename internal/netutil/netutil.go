// Package netutil provides the small set of network and filesystem helpers
// the broker and agent runtime need: URL splitting, executable-path
// discovery, and network-interface IP resolution (spec §4.7, §9
// supplemented features).
package netutil

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Endpoint is the (scheme, host, port) tuple a transport URI splits into.
type Endpoint struct {
	Scheme string
	Host   string
	Port   int
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s://%s:%d", e.Scheme, e.Host, e.Port)
}

// SplitURL parses "scheme://host:port" into its three parts. Anything else
// is rejected as a TransportError-class failure.
func SplitURL(uri string) (Endpoint, error) {
	schemeSep := strings.Index(uri, "://")
	if schemeSep < 0 {
		return Endpoint{}, fmt.Errorf("netutil: malformed URL %q: missing scheme", uri)
	}
	scheme := uri[:schemeSep]
	rest := uri[schemeSep+3:]
	host, portStr, err := net.SplitHostPort(rest)
	if err != nil {
		return Endpoint{}, fmt.Errorf("netutil: malformed URL %q: %w", uri, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Endpoint{}, fmt.Errorf("netutil: malformed URL %q: bad port: %w", uri, err)
	}
	if scheme == "" || host == "" {
		return Endpoint{}, fmt.Errorf("netutil: malformed URL %q", uri)
	}
	return Endpoint{Scheme: scheme, Host: host, Port: port}, nil
}

// WithHost returns a copy of e with its host replaced, used to rewrite a
// settings-derived endpoint to the host the client actually dialed (spec
// §4.5.1).
func (e Endpoint) WithHost(host string) Endpoint {
	e.Host = host
	return e
}

// ExecutablePath resolves the absolute path of the running binary.
func ExecutablePath() (string, error) {
	p, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("netutil: executable path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return p, nil
	}
	return resolved, nil
}

// InstallPrefix derives the installation prefix as the parent of the
// binary's containing directory (<prefix>/bin/<binary>).
func InstallPrefix() (string, error) {
	exe, err := ExecutablePath()
	if err != nil {
		return "", err
	}
	return filepath.Dir(filepath.Dir(exe)), nil
}

// InterfaceIP resolves the first non-loopback IPv4 address bound to the
// named network interface. It has no special "list" mode; enumeration is
// ListInterfaces.
func InterfaceIP(name string) (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("netutil: list interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if iface.Name != name {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			return "", fmt.Errorf("netutil: addrs for %s: %w", name, err)
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 != nil && !ip4.IsLoopback() {
				return ip4.String(), nil
			}
		}
		return "", fmt.Errorf("netutil: interface %s has no IPv4 address", name)
	}
	return "", fmt.Errorf("netutil: no such interface %q", name)
}

// ListInterfaces returns the names of every network interface on the host,
// for the "-nic list" enumeration mode.
func ListInterfaces() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("netutil: list interfaces: %w", err)
	}
	names := make([]string, 0, len(ifaces))
	for _, iface := range ifaces {
		names = append(names, iface.Name)
	}
	return names, nil
}
