package agent

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pbosetti/mads-go/security"
	"github.com/pbosetti/mads-go/wire"
)

// publishSocket is the agent's outbound connection to the broker's front
// (publish-join) address. auth is nil unless crypto is enabled, in which
// case every message's parts are sealed for the broker before they go on
// the wire (spec §4.2.4).
type publishSocket struct {
	conn net.Conn
	enc  *json.Encoder
	auth *security.ClientAuth
	mu   sync.Mutex
}

func (p *publishSocket) send(msg wire.DataMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return &ErrTransport{Reason: "publish socket not connected"}
	}
	if p.auth != nil {
		sealed, err := sealParts(p.auth, msg.Parts)
		if err != nil {
			return &ErrTransport{Reason: "seal publish frame", Err: err}
		}
		msg.Parts = sealed
	}
	return p.enc.Encode(msg)
}

func (p *publishSocket) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

// subscribeSocket is the agent's inbound connection to the broker's back
// (publish-fan-out) address. auth is nil unless crypto is enabled, in which
// case every received message's parts were sealed by the broker for this
// client and must be opened before the caller sees them.
type subscribeSocket struct {
	conn    net.Conn
	dec     *json.Decoder
	timeout time.Duration
	auth    *security.ClientAuth
}

func (s *subscribeSocket) receive(dontBlock bool) (wire.DataMessage, error) {
	if s.conn == nil {
		return wire.DataMessage{}, &ErrTransport{Reason: "subscribe socket not connected"}
	}
	deadline := time.Now().Add(s.timeout)
	if dontBlock {
		deadline = time.Now().Add(time.Millisecond)
	}
	s.conn.SetReadDeadline(deadline)
	var msg wire.DataMessage
	if err := s.dec.Decode(&msg); err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return wire.DataMessage{}, nil
		}
		return wire.DataMessage{}, &ErrTransport{Reason: "receive", Err: err}
	}
	if s.auth != nil && len(msg.Parts) > 0 {
		opened, err := openParts(s.auth, msg.Parts)
		if err != nil {
			return wire.DataMessage{}, &ErrTransport{Reason: "open subscribe frame", Err: err}
		}
		msg.Parts = opened
	}
	return msg, nil
}

// sealParts seals each part of a frame for the broker.
func sealParts(auth *security.ClientAuth, parts [][]byte) ([][]byte, error) {
	out := make([][]byte, len(parts))
	for i, part := range parts {
		sealed, err := auth.Seal(part)
		if err != nil {
			return nil, err
		}
		out[i] = sealed
	}
	return out, nil
}

// openParts opens each part of a frame sealed by the broker.
func openParts(auth *security.ClientAuth, parts [][]byte) ([][]byte, error) {
	out := make([][]byte, len(parts))
	for i, part := range parts {
		plain, err := auth.Open(part)
		if err != nil {
			return nil, err
		}
		out[i] = plain
	}
	return out, nil
}

func (s *subscribeSocket) close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// ErrTransport reports a bind/connect failure or an illegal frame on the
// agent side of the transport (spec §7 TransportError).
type ErrTransport struct {
	Reason string
	Err    error
}

func (e *ErrTransport) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("agent: transport: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("agent: transport: %s", e.Reason)
}

func (e *ErrTransport) Unwrap() error { return e.Err }

// Connect is idempotent (spec §3, §4.5.2). If the publish topic is
// non-empty the publish socket connects to the front endpoint; if
// subscribe topics are non-empty the subscribe socket connects to the back
// endpoint and sends its prefix list. delay is observed after connecting to
// let the transport settle before the first publish.
func (a *Agent) Connect(delay time.Duration) error {
	if !atomic.CompareAndSwapInt32(&a.connected, 0, 1) {
		return nil
	}

	if a.Descriptor.PubTopic != "" {
		conn, err := net.Dial("tcp", fmt.Sprintf("%s:%d", resolveDialHost(a.Descriptor.PubEndpoint.Host), a.Descriptor.PubEndpoint.Port))
		if err != nil {
			return &ErrTransport{Reason: "connect publish socket", Err: err}
		}
		if a.clientAuth != nil {
			if err := sendHello(conn, a.clientAuth.KeyPair.Public); err != nil {
				conn.Close()
				return err
			}
		}
		a.pub = &publishSocket{conn: conn, enc: json.NewEncoder(conn), auth: a.clientAuth}
	}

	if len(a.Descriptor.SubTopics) > 0 {
		conn, err := net.Dial("tcp", fmt.Sprintf("%s:%d", resolveDialHost(a.Descriptor.SubEndpoint.Host), a.Descriptor.SubEndpoint.Port))
		if err != nil {
			return &ErrTransport{Reason: "connect subscribe socket", Err: err}
		}
		if a.clientAuth != nil {
			if err := sendHello(conn, a.clientAuth.KeyPair.Public); err != nil {
				conn.Close()
				return err
			}
		}
		if err := json.NewEncoder(conn).Encode(wire.SubscribeRequest{Prefixes: a.Descriptor.SubTopics}); err != nil {
			conn.Close()
			return &ErrTransport{Reason: "send subscription", Err: err}
		}
		a.sub = &subscribeSocket{conn: conn, dec: json.NewDecoder(conn), timeout: a.receiveTimeout, auth: a.clientAuth}
	}

	if delay > 0 {
		time.Sleep(delay)
	}

	if a.remoteControlEnabled && (a.remoteControlThreaded || len(a.Descriptor.SubTopics) == 1) {
		a.controlBackgrounded = true
		a.startRemoteControlWorker()
	}

	return nil
}

// sendHello performs the crypto handshake on a freshly dialed connection:
// write this client's public key as the first frame and wait for the
// broker's admit/reject acknowledgment. A rejection surfaces as a
// CredentialError, matching spec §4.2's "an agent whose public key is
// absent from the key directory must fail at connect".
func sendHello(conn net.Conn, publicKey string) error {
	if err := json.NewEncoder(conn).Encode(wire.HelloMessage{PublicKey: publicKey}); err != nil {
		return &ErrTransport{Reason: "send crypto handshake", Err: err}
	}
	var ack wire.HelloAck
	if err := json.NewDecoder(conn).Decode(&ack); err != nil {
		return &ErrTransport{Reason: "read crypto handshake ack", Err: err}
	}
	if !ack.OK {
		return &security.CredentialError{Op: "connect", Err: fmt.Errorf("broker rejected client: %s", ack.Error)}
	}
	return nil
}

// resolveDialHost maps a bind wildcard ("*") to loopback for dialing.
func resolveDialHost(host string) string {
	if host == "*" || host == "" {
		return "127.0.0.1"
	}
	return host
}

// Disconnect is idempotent and tolerant of already-closed sockets (spec
// §3, §4.5.2).
func (a *Agent) Disconnect() error {
	if !atomic.CompareAndSwapInt32(&a.disconnected, 0, 1) {
		return nil
	}
	var firstErr error
	if a.pub != nil {
		if err := a.pub.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.sub != nil {
		if err := a.sub.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.controlWorker.Wait()
	return firstErr
}
