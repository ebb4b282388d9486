package agent

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/pbosetti/mads-go/security"
	"github.com/pbosetti/mads-go/version"
	"github.com/pbosetti/mads-go/wire"
)

// settingsTimeout bounds a settings-service round trip (spec §7
// TimeoutError: "settings request timed out").
const settingsTimeout = 5 * time.Second

// fetchSettings performs the one-shot REQ/REP round trip described in spec
// §4.3: dial the settings URI, send the client's library version, agent
// name, and (when crypto is installed) public key, and return the broker's
// reply.
func (a *Agent) fetchSettings() (wire.SettingsResponse, error) {
	req := wire.SettingsRequest{
		ClientVersion: version.LibVersion,
		Verb:          "settings",
		AgentName:     a.Descriptor.Name,
	}
	if a.clientAuth != nil {
		req.ClientPublicKey = a.clientAuth.KeyPair.Public
	}
	return a.requestSettings(a.Descriptor.SettingsURI, req)
}

// fetchTimecode requests the broker's current timecode (spec §4.5.1).
func (a *Agent) fetchTimecode(uri string) (float64, error) {
	req := wire.SettingsRequest{ClientVersion: version.LibVersion, Verb: "timecode"}
	if a.clientAuth != nil {
		req.ClientPublicKey = a.clientAuth.KeyPair.Public
	}
	resp, err := a.requestSettings(uri, req)
	if err != nil {
		return 0, err
	}
	return resp.Timecode, nil
}

func (a *Agent) requestSettings(uri string, req wire.SettingsRequest) (wire.SettingsResponse, error) {
	addr, err := dialAddrFromURI(uri)
	if err != nil {
		return wire.SettingsResponse{}, err
	}
	conn, err := net.DialTimeout("tcp", addr, settingsTimeout)
	if err != nil {
		return wire.SettingsResponse{}, &TimeoutError{Op: "connect to settings service", Err: err}
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(settingsTimeout))

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return wire.SettingsResponse{}, fmt.Errorf("agent: send settings request: %w", err)
	}
	var resp wire.SettingsResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return wire.SettingsResponse{}, &TimeoutError{Op: "read settings response", Err: err}
	}
	if resp.CredentialDenied {
		return resp, &security.CredentialError{Op: "settings authorization", Err: fmt.Errorf("%s", resp.Error)}
	}
	if resp.Error != "" {
		return resp, fmt.Errorf("agent: settings service: %s", resp.Error)
	}
	if len(resp.Sealed) > 0 {
		if a.clientAuth == nil {
			return resp, fmt.Errorf("agent: received sealed settings response without crypto installed")
		}
		plain, err := a.clientAuth.Open(resp.Sealed)
		if err != nil {
			return resp, fmt.Errorf("agent: open settings response: %w", err)
		}
		var payload wire.SettingsPayload
		if err := json.Unmarshal(plain, &payload); err != nil {
			return resp, fmt.Errorf("agent: decode settings payload: %w", err)
		}
		resp.TOML = payload.TOML
		resp.Attachment = payload.Attachment
		resp.Timecode = payload.Timecode
	}
	return resp, nil
}

// dialAddrFromURI strips the scheme from "tcp://host:port" to produce a
// net.Dial-ready address, resolving a bind wildcard "*" host to localhost
// the way a client dialing its own broker's advertised bind address would.
func dialAddrFromURI(uri string) (string, error) {
	const prefix = "tcp://"
	if len(uri) <= len(prefix) || uri[:len(prefix)] != prefix {
		return "", fmt.Errorf("agent: unsupported settings URI %q", uri)
	}
	rest := uri[len(prefix):]
	if len(rest) > 1 && rest[0] == '*' && rest[1] == ':' {
		rest = "127.0.0.1" + rest[1:]
	}
	return rest, nil
}
