// Package security implements MADS's credential and transport security
// layer (spec §4.2): Curve25519 key-pair generation and persistence,
// public-key roster discovery, and server/client authenticator setup. It
// plays the role the original broker's curve.hpp plays around zmqpp's
// CURVE mechanism, built instead on golang.org/x/crypto/nacl/box.
package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/box"
)

// KeyPair is a Curve25519 public/secret key pair, hex-encoded the way the
// original stores a base64-ish single-line key in a ".pub"/".key" file
// pair sharing a base name.
type KeyPair struct {
	Public string
	Secret string
}

// CredentialError reports a missing, unreadable, or empty credential
// resource: a missing key file, an unreadable key file, or an empty client
// roster (spec §7, §4.2 failure modes).
type CredentialError struct {
	Op   string
	Path string
	Err  error
}

func (e *CredentialError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("security: %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("security: %s: %v", e.Op, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// GenerateKeyPair creates a fresh Curve25519 key pair.
func GenerateKeyPair() (KeyPair, error) {
	pub, sec, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, &CredentialError{Op: "generate key pair", Err: err}
	}
	return KeyPair{Public: hex.EncodeToString(pub[:]), Secret: hex.EncodeToString(sec[:])}, nil
}

// Persist writes kp to <dir>/<name>.pub and <dir>/<name>.key. It refuses to
// overwrite existing files unless overwrite is set (spec §4.2.1).
func Persist(dir, name string, kp KeyPair, overwrite bool) error {
	pubPath := filepath.Join(dir, name+".pub")
	secPath := filepath.Join(dir, name+".key")
	flags := os.O_WRONLY | os.O_CREATE
	if !overwrite {
		flags |= os.O_EXCL
	} else {
		flags |= os.O_TRUNC
	}
	if err := writeKeyFile(pubPath, kp.Public, flags); err != nil {
		return err
	}
	if err := writeKeyFile(secPath, kp.Secret, flags); err != nil {
		return err
	}
	return nil
}

func writeKeyFile(path, content string, flags int) error {
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return &CredentialError{Op: "create key file", Path: path, Err: err}
	}
	defer f.Close()
	if _, err := f.WriteString(content + "\n"); err != nil {
		return &CredentialError{Op: "write key file", Path: path, Err: err}
	}
	return nil
}

// LoadKeyPair reads <dir>/<name>.pub and <dir>/<name>.key.
func LoadKeyPair(dir, name string) (KeyPair, error) {
	pub, err := readKeyFile(filepath.Join(dir, name+".pub"))
	if err != nil {
		return KeyPair{}, err
	}
	sec, err := readKeyFile(filepath.Join(dir, name+".key"))
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{Public: pub, Secret: sec}, nil
}

// LoadPublicKey reads only <dir>/<name>.pub, for loading a peer's public
// key without access to its secret.
func LoadPublicKey(dir, name string) (string, error) {
	return readKeyFile(filepath.Join(dir, name+".pub"))
}

func readKeyFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &CredentialError{Op: "open key file", Path: path, Err: err}
		}
		return "", &CredentialError{Op: "read key file", Path: path, Err: err}
	}
	line := string(data)
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	if line == "" {
		return "", &CredentialError{Op: "empty key file", Path: path, Err: fmt.Errorf("no key material")}
	}
	return line, nil
}

func decodeKey(hexKey string) (*[32]byte, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("security: malformed key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("security: key must be 32 bytes, got %d", len(raw))
	}
	var out [32]byte
	copy(out[:], raw)
	return &out, nil
}
