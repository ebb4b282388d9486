package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/pbosetti/mads-go/internal/timeutil"
	"github.com/pbosetti/mads-go/security"
	"github.com/pbosetti/mads-go/version"
	"github.com/pbosetti/mads-go/wire"
)

// ErrVersionMismatch reports a client/broker major.minor disagreement
// (spec §7, VersionMismatch; §4.3 version compatibility rule).
type ErrVersionMismatch struct {
	ClientVersion string
	BrokerVersion string
}

func (e *ErrVersionMismatch) Error() string {
	return fmt.Sprintf("broker: version mismatch: client %s, broker %s", e.ClientVersion, e.BrokerVersion)
}

// SettingsService is the broker's REQ/REP endpoint serving the TOML text,
// the per-agent attachment, and the timecode (spec §4.3). It is an
// independent concern from Proxy; the two share only the process-wide
// running flag threaded through the context passed to Serve.
type SettingsService struct {
	addr        string
	config      *Config
	installDir  string
	debug       bool
	receiveWait time.Duration
	auth        *security.ServerAuth
}

// NewSettingsService builds a settings service bound to addr, serving cfg.
// installDir is the broker's installation directory, against which
// relative attachment paths are resolved. auth is nil unless crypto is
// enabled, in which case every request's ClientPublicKey is checked
// against the roster and IP allow-list before any settings are served, and
// the response payload travels sealed (spec §4.2.3).
func NewSettingsService(addr string, cfg *Config, installDir string, debug bool, auth *security.ServerAuth) *SettingsService {
	return &SettingsService{
		addr:        addr,
		config:      cfg,
		installDir:  installDir,
		debug:       debug,
		receiveWait: time.Second,
		auth:        auth,
	}
}

// Serve accepts connections and answers settings/timecode requests until
// ctx is canceled. Each connection is a one-shot REQ/REP round trip, closed
// after the response is written, per the "one REQ/REP at startup" dataflow
// in spec §2.
func (s *SettingsService) Serve(ctx context.Context) error {
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return &ErrTransport{Reason: "bind settings socket", Err: err}
	}
	defer l.Close()

	type acceptResult struct {
		conn net.Conn
		err  error
	}
	accepted := make(chan acceptResult)
	go func() {
		for {
			conn, err := l.Accept()
			accepted <- acceptResult{conn, err}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-accepted:
			if r.err != nil {
				if s.debug {
					log.Printf("broker: settings accept error: %v", r.err)
				}
				return &ErrTransport{Reason: "settings accept", Err: r.err}
			}
			go s.handle(r.conn)
		case <-time.After(s.receiveWait):
			// Wake periodically so ctx.Done() is observed promptly even with
			// no traffic, mirroring the original's 1-second receive timeout.
		}
	}
}

func (s *SettingsService) handle(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(s.receiveWait))

	var req wire.SettingsRequest
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		if s.debug {
			log.Printf("broker: settings request decode error: %v", err)
		}
		return
	}

	resp := s.respond(req, remoteHost(conn))
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		if s.debug {
			log.Printf("broker: settings response encode error: %v", err)
		}
	}
}

func (s *SettingsService) respond(req wire.SettingsRequest, remoteIP string) wire.SettingsResponse {
	if !version.Compatible(req.ClientVersion, version.LibVersion) {
		log.Printf("broker: refusing client %s: version mismatch (client=%s broker=%s)",
			req.AgentName, req.ClientVersion, version.LibVersion)
		return wire.SettingsResponse{BrokerVersion: version.LibVersion, Error: (&ErrVersionMismatch{
			ClientVersion: req.ClientVersion,
			BrokerVersion: version.LibVersion,
		}).Error()}
	}

	if s.auth != nil && !s.auth.Authorized(req.ClientPublicKey, remoteIP) {
		log.Printf("broker: refusing client %s: unauthorized (key=%s ip=%s)", req.AgentName, req.ClientPublicKey, remoteIP)
		return wire.SettingsResponse{
			BrokerVersion: version.LibVersion,
			Error: (&security.CredentialError{
				Op:  "settings authorization",
				Err: fmt.Errorf("public key not in roster or IP not allow-listed"),
			}).Error(),
			CredentialDenied: true,
		}
	}

	switch req.Verb {
	case "settings":
		return s.respondSettings(req.AgentName, req.ClientPublicKey)
	case "timecode":
		tc := timeutil.Timecode(time.Now(), s.config.Agents.TimecodeFPS)
		return s.seal(req.ClientPublicKey, wire.SettingsResponse{BrokerVersion: version.LibVersion}, wire.SettingsPayload{Timecode: tc})
	default:
		return wire.SettingsResponse{BrokerVersion: version.LibVersion, Error: fmt.Sprintf("unknown verb %q", req.Verb)}
	}
}

func (s *SettingsService) respondSettings(agentName, clientPublicKey string) wire.SettingsResponse {
	sec, err := s.config.AgentSectionFor(agentName)
	if err != nil {
		log.Printf("broker: %v", err)
		return wire.SettingsResponse{BrokerVersion: version.LibVersion, Error: err.Error()}
	}
	payload := wire.SettingsPayload{TOML: s.config.Text()}
	if sec.Attachment != "" {
		path := sec.Attachment
		if !filepath.IsAbs(path) {
			path = filepath.Join(s.installDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("broker: attachment for %q: %v", agentName, err)
			return wire.SettingsResponse{BrokerVersion: version.LibVersion, Error: fmt.Sprintf("attachment unavailable: %v", err)}
		}
		payload.Attachment = data
	}
	return s.seal(clientPublicKey, wire.SettingsResponse{BrokerVersion: version.LibVersion}, payload)
}

// seal folds payload into resp: sealed into resp.Sealed when crypto is
// enabled, so TOML text and attachment bytes never cross the wire
// unencrypted, or copied straight into resp's plaintext fields otherwise.
func (s *SettingsService) seal(clientPublicKey string, resp wire.SettingsResponse, payload wire.SettingsPayload) wire.SettingsResponse {
	if s.auth == nil {
		resp.TOML = payload.TOML
		resp.Attachment = payload.Attachment
		resp.Timecode = payload.Timecode
		return resp
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		resp.Error = fmt.Sprintf("seal settings payload: %v", err)
		return resp
	}
	sealed, err := s.auth.SealFor(clientPublicKey, raw)
	if err != nil {
		resp.Error = fmt.Sprintf("seal settings payload: %v", err)
		return resp
	}
	resp.Sealed = sealed
	return resp
}
