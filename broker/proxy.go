// Package broker implements the MADS broker: the XSUB/XPUB-style forwarding
// proxy (C4), the TOML settings service (C3), and the steering control
// plane that joins them. It is grounded on tenzoki-agen/cellorg's
// internal/broker.Service (Topic/Connection/mutex-guarded-map design),
// adapted from point-to-point GOX topics+pipes onto plain prefix-routed
// pub/sub fan-out with no replay buffer, per MADS's explicit non-goals.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pbosetti/mads-go/security"
	"github.com/pbosetti/mads-go/wire"
)

// ErrTransport reports a bind/connect failure or an illegally shaped frame
// (spec §7, TransportError).
type ErrTransport struct {
	Reason string
	Err    error
}

func (e *ErrTransport) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("broker: transport: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("broker: transport: %s", e.Reason)
}

func (e *ErrTransport) Unwrap() error { return e.Err }

type subscriber struct {
	id        string
	conn      net.Conn
	enc       *json.Encoder
	mu        sync.Mutex
	prefixes  []string
	publicKey string
}

func (s *subscriber) matches(topic string) bool {
	for _, p := range s.prefixes {
		if p == "" || strings.HasPrefix(topic, p) {
			return true
		}
	}
	return false
}

func (s *subscriber) send(msg wire.DataMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(msg)
}

// Proxy is the XSUB/XPUB-style forwarding core: producers connect to the
// front address and publish; the proxy fans each message out to every
// back-socket connection whose subscribed prefixes match the topic.
type Proxy struct {
	frontAddr string
	backAddr  string
	debug     bool
	auth      *security.ServerAuth

	stats Stats

	mu          sync.Mutex
	subscribers map[string]*subscriber
	paused      bool
	pauseCond   *sync.Cond

	frontListener net.Listener
	backListener  net.Listener
}

// NewProxy builds a Proxy bound to the given front (publish-join) and back
// (publish-fan-out) addresses. auth is nil unless crypto is enabled, in
// which case every connection must complete the HelloMessage handshake and
// every data frame travels sealed (spec §4.2).
func NewProxy(frontAddr, backAddr string, debug bool, auth *security.ServerAuth) *Proxy {
	p := &Proxy{
		frontAddr:   frontAddr,
		backAddr:    backAddr,
		debug:       debug,
		auth:        auth,
		subscribers: make(map[string]*subscriber),
	}
	p.pauseCond = sync.NewCond(&p.mu)
	return p
}

// Start binds both sockets and runs the accept loops until ctx is canceled.
func (p *Proxy) Start(ctx context.Context) error {
	front, err := net.Listen("tcp", p.frontAddr)
	if err != nil {
		return &ErrTransport{Reason: "bind front socket", Err: err}
	}
	back, err := net.Listen("tcp", p.backAddr)
	if err != nil {
		front.Close()
		return &ErrTransport{Reason: "bind back socket", Err: err}
	}
	p.frontListener = front
	p.backListener = back

	go p.acceptLoop(ctx, front, p.handleFrontConn)
	go p.acceptLoop(ctx, back, p.handleBackConn)

	<-ctx.Done()
	front.Close()
	back.Close()
	return nil
}

func (p *Proxy) acceptLoop(ctx context.Context, l net.Listener, handle func(net.Conn)) {
	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				if p.debug {
					log.Printf("broker: accept error: %v", err)
				}
				return
			}
		}
		go handle(conn)
	}
}

func (p *Proxy) handleFrontConn(conn net.Conn) {
	defer conn.Close()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	clientKey, ok := p.authenticate(conn, dec, enc)
	if !ok {
		return
	}
	for {
		var msg wire.DataMessage
		if err := dec.Decode(&msg); err != nil {
			if p.debug {
				log.Printf("broker: front connection closed: %v", err)
			}
			return
		}
		if err := validateDataMessage(msg); err != nil {
			if p.debug {
				log.Printf("broker: %v", err)
			}
			continue
		}
		if p.auth != nil {
			opened, err := p.openParts(msg.Parts, clientKey)
			if err != nil {
				if p.debug {
					log.Printf("broker: decrypt front message from %s: %v", clientKey, err)
				}
				continue
			}
			msg.Parts = opened
		}
		size := len(msg.Topic)
		for _, part := range msg.Parts {
			size += len(part)
		}
		p.stats.addFrontIn(size)
		p.publish(msg, size)
	}
}

// authenticate runs the crypto handshake on conn when p.auth is set: the
// client's first frame must be a wire.HelloMessage naming a public key
// that passes the roster and IP allow-list check, acknowledged before any
// data frame is accepted (spec §4.2.3). With crypto disabled it is a no-op
// that always admits the connection.
func (p *Proxy) authenticate(conn net.Conn, dec *json.Decoder, enc *json.Encoder) (string, bool) {
	if p.auth == nil {
		return "", true
	}
	var hello wire.HelloMessage
	if err := dec.Decode(&hello); err != nil {
		if p.debug {
			log.Printf("broker: handshake decode error: %v", err)
		}
		return "", false
	}
	remoteIP := remoteHost(conn)
	if !p.auth.Authorized(hello.PublicKey, remoteIP) {
		enc.Encode(wire.HelloAck{OK: false, Error: "unauthorized"})
		log.Printf("broker: rejected unauthorized client %s from %s", hello.PublicKey, remoteIP)
		return "", false
	}
	if err := enc.Encode(wire.HelloAck{OK: true}); err != nil {
		return "", false
	}
	return hello.PublicKey, true
}

// remoteHost strips the port from conn's remote address for IP allow-list
// comparisons.
func remoteHost(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}

func (p *Proxy) openParts(parts [][]byte, clientPublicKey string) ([][]byte, error) {
	out := make([][]byte, len(parts))
	for i, part := range parts {
		plain, err := p.auth.Open(part, clientPublicKey)
		if err != nil {
			return nil, err
		}
		out[i] = plain
	}
	return out, nil
}

func (p *Proxy) sealParts(parts [][]byte, peerPublicKey string) ([][]byte, error) {
	out := make([][]byte, len(parts))
	for i, part := range parts {
		sealed, err := p.auth.SealFor(peerPublicKey, part)
		if err != nil {
			return nil, err
		}
		out[i] = sealed
	}
	return out, nil
}

func validateDataMessage(msg wire.DataMessage) error {
	if err := wire.ValidatePartCount(msg.PartCount()); err != nil {
		return &ErrTransport{Reason: err.Error()}
	}
	return nil
}

func (p *Proxy) publish(msg wire.DataMessage, size int) {
	p.mu.Lock()
	for p.paused {
		p.pauseCond.Wait()
	}
	targets := make([]*subscriber, 0, len(p.subscribers))
	for _, sub := range p.subscribers {
		if sub.matches(msg.Topic) {
			targets = append(targets, sub)
		}
	}
	p.mu.Unlock()

	for _, sub := range targets {
		out := msg
		if p.auth != nil {
			sealed, err := p.sealParts(msg.Parts, sub.publicKey)
			if err != nil {
				if p.debug {
					log.Printf("broker: encrypt for subscriber %s: %v", sub.id, err)
				}
				continue
			}
			out = wire.DataMessage{Topic: msg.Topic, Parts: sealed}
		}
		if err := sub.send(out); err != nil {
			if p.debug {
				log.Printf("broker: drop subscriber %s: %v", sub.id, err)
			}
			p.removeSubscriber(sub.id)
			continue
		}
		p.stats.addBackOut(size)
	}
	if len(targets) > 0 {
		p.stats.addFrontOut(size)
	}
}

func (p *Proxy) handleBackConn(conn net.Conn) {
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	clientKey, ok := p.authenticate(conn, dec, enc)
	if !ok {
		conn.Close()
		return
	}
	var req wire.SubscribeRequest
	if err := dec.Decode(&req); err != nil {
		conn.Close()
		return
	}
	sub := &subscriber{
		id:        uuid.NewString(),
		conn:      conn,
		enc:       json.NewEncoder(conn),
		prefixes:  req.Prefixes,
		publicKey: clientKey,
	}
	p.mu.Lock()
	p.subscribers[sub.id] = sub
	p.mu.Unlock()
	if p.debug {
		log.Printf("broker: subscriber %s joined with prefixes %v", sub.id, req.Prefixes)
	}

	// Keep reading (and discarding) so a closed connection is detected
	// promptly and the subscriber is removed from the fan-out set.
	buf := make([]byte, 1)
	for {
		if _, err := conn.Read(buf); err != nil {
			p.removeSubscriber(sub.id)
			conn.Close()
			return
		}
	}
}

func (p *Proxy) removeSubscriber(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.subscribers, id)
}

// Pause stops message fan-out until Resume is called; connections remain
// open and publishes queue only in the sense that publishers block on
// delivery to a paused proxy (spec §4.4 forwarding ⇄ paused).
func (p *Proxy) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

// Resume resumes fan-out after Pause.
func (p *Proxy) Resume() {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
	p.pauseCond.Broadcast()
}

// StatsSnapshot returns the current eight counters.
func (p *Proxy) StatsSnapshot() [8]uint64 {
	return p.stats.Snapshot()
}
