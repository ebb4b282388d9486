package security

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/box"
)

// ServerAuth is the installed security context for a broker socket: its own
// key pair, the roster of authorized client public keys, and an IP
// allow-list (spec §4.2.3).
type ServerAuth struct {
	KeyPair     KeyPair
	Roster      map[string]string // client name -> public key
	Allow       *AllowList
	AuthVerbose bool
}

// InstallServer reads the broker's own key pair and the client roster from
// keyDir and builds a ServerAuth ready to gate incoming connections. It is
// the Go analogue of setup_curve_server plus setup_auth from the original
// curve.hpp: the authenticator and the CURVE key exchange collapse into one
// step because nacl/box seals/opens are keyed directly off the pair.
func InstallServer(keyDir, serverName string, clientNames []string, ips []string, verbose bool) (*ServerAuth, error) {
	kp, err := LoadKeyPair(keyDir, serverName)
	if err != nil {
		return nil, err
	}
	roster, err := LoadRosterKeys(keyDir, clientNames)
	if err != nil {
		return nil, err
	}
	if len(roster) == 0 {
		return nil, &CredentialError{Op: "install server auth", Err: fmt.Errorf("empty client roster")}
	}
	return &ServerAuth{
		KeyPair:     kp,
		Roster:      roster,
		Allow:       NewAllowList(ips),
		AuthVerbose: verbose,
	}, nil
}

// Authorized reports whether a connecting client identified by its public
// key and source IP may proceed: its key must be in the roster and its IP
// must pass the allow-list.
func (s *ServerAuth) Authorized(clientPublicKey, remoteIP string) bool {
	if !s.Allow.Allowed(remoteIP) {
		return false
	}
	for _, pub := range s.Roster {
		if pub == clientPublicKey {
			return true
		}
	}
	return false
}

// ClientAuth is the installed security context for an agent's data sockets:
// its own key pair plus the broker's public key (spec §4.2.4).
type ClientAuth struct {
	KeyPair         KeyPair
	ServerPublicKey string
}

// InstallClient reads the agent's own key pair and the broker's public key
// from keyDir, the Go analogue of setup_curve_client.
func InstallClient(keyDir, clientName, serverName string) (*ClientAuth, error) {
	kp, err := LoadKeyPair(keyDir, clientName)
	if err != nil {
		return nil, err
	}
	serverPub, err := LoadPublicKey(keyDir, serverName)
	if err != nil {
		return nil, err
	}
	return &ClientAuth{KeyPair: kp, ServerPublicKey: serverPub}, nil
}

// seal authenticated-encrypts plaintext from ownSecretHex to peerPublicHex,
// in the style of a CurveZMQ frame body. Shared by ClientAuth.Seal (sealing
// for the broker) and ServerAuth.SealFor (sealing for one subscriber).
func seal(ownSecretHex, peerPublicHex string, plaintext []byte) ([]byte, error) {
	peerKey, err := decodeKey(peerPublicHex)
	if err != nil {
		return nil, err
	}
	ownSecret, err := decodeKey(ownSecretHex)
	if err != nil {
		return nil, err
	}
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("security: generate nonce: %w", err)
	}
	return box.Seal(nonce[:], plaintext, &nonce, peerKey, ownSecret), nil
}

// open authenticated-decrypts sealed using ownSecretHex and the claimed
// sender's peerPublicHex. Shared by ServerAuth.Open (opening a frame from a
// client) and ClientAuth.Open (opening a frame from the broker).
func open(sealed []byte, ownSecretHex, peerPublicHex string) ([]byte, error) {
	if len(sealed) < 24 {
		return nil, fmt.Errorf("security: sealed payload too short")
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	peerKey, err := decodeKey(peerPublicHex)
	if err != nil {
		return nil, err
	}
	ownSecret, err := decodeKey(ownSecretHex)
	if err != nil {
		return nil, err
	}
	plain, ok := box.Open(nil, sealed[24:], &nonce, peerKey, ownSecret)
	if !ok {
		return nil, fmt.Errorf("security: authentication failed opening sealed frame")
	}
	return plain, nil
}

// Seal authenticated-encrypts plaintext for the broker using the client's
// secret key and the broker's public key, in the style of a CurveZMQ frame
// body: the agent's publish socket seals every frame part with it when
// crypto is enabled.
func (c *ClientAuth) Seal(plaintext []byte) ([]byte, error) {
	return seal(c.KeyPair.Secret, c.ServerPublicKey, plaintext)
}

// Open authenticated-decrypts a frame sealed by the broker for this client,
// using the client's secret key and the broker's public key.
func (c *ClientAuth) Open(sealed []byte) ([]byte, error) {
	return open(sealed, c.KeyPair.Secret, c.ServerPublicKey)
}

// Open authenticated-decrypts a frame sealed by a client whose public key is
// clientPublicKey, using the server's secret key.
func (s *ServerAuth) Open(sealed []byte, clientPublicKey string) ([]byte, error) {
	return open(sealed, s.KeyPair.Secret, clientPublicKey)
}

// SealFor authenticated-encrypts plaintext for one connected peer (a
// subscriber or settings client) identified by its public key, using the
// broker's own secret key. The broker re-encrypts hop-by-hop rather than
// end-to-end: it opens inbound frames with the publisher's key and reseals
// outbound ones with each subscriber's key.
func (s *ServerAuth) SealFor(peerPublicKey string, plaintext []byte) ([]byte, error) {
	return seal(s.KeyPair.Secret, peerPublicKey, plaintext)
}
