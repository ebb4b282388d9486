package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGenerateAndPersistAndLoad(t *testing.T) {
	dir := t.TempDir()
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	if err := Persist(dir, "broker", kp, false); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if err := Persist(dir, "broker", kp, false); err == nil {
		t.Fatal("expected error re-persisting without overwrite")
	}
	if err := Persist(dir, "broker", kp, true); err != nil {
		t.Fatalf("Persist with overwrite: %v", err)
	}
	loaded, err := LoadKeyPair(dir, "broker")
	if err != nil {
		t.Fatalf("LoadKeyPair: %v", err)
	}
	if loaded != kp {
		t.Errorf("loaded key pair = %+v, want %+v", loaded, kp)
	}
}

func TestLoadKeyPairMissing(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadKeyPair(dir, "nope"); err == nil {
		t.Fatal("expected error for missing key pair")
	}
}

func TestDiscoverRoster(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"broker", "alpha", "beta"} {
		kp, _ := GenerateKeyPair()
		if err := Persist(dir, name, kp, false); err != nil {
			t.Fatalf("Persist %s: %v", name, err)
		}
	}
	roster, err := DiscoverRoster(dir, "broker")
	if err != nil {
		t.Fatalf("DiscoverRoster: %v", err)
	}
	if len(roster) != 2 {
		t.Errorf("roster = %v, want 2 entries excluding broker", roster)
	}
}

func TestAllowList(t *testing.T) {
	empty := NewAllowList(nil)
	if !empty.Allowed("1.2.3.4") {
		t.Error("empty allow-list should allow any IP")
	}
	restricted := NewAllowList([]string{"127.0.0.1"})
	if !restricted.Allowed("127.0.0.1") {
		t.Error("127.0.0.1 should be allowed")
	}
	if restricted.Allowed("10.0.0.1") {
		t.Error("10.0.0.1 should not be allowed")
	}
}

func TestInstallServerAndClientSealOpen(t *testing.T) {
	dir := t.TempDir()
	serverKP, _ := GenerateKeyPair()
	clientKP, _ := GenerateKeyPair()
	if err := Persist(dir, "broker", serverKP, false); err != nil {
		t.Fatal(err)
	}
	if err := Persist(dir, "agent1", clientKP, false); err != nil {
		t.Fatal(err)
	}

	server, err := InstallServer(dir, "broker", []string{"agent1"}, []string{"127.0.0.1"}, false)
	if err != nil {
		t.Fatalf("InstallServer: %v", err)
	}
	if !server.Authorized(clientKP.Public, "127.0.0.1") {
		t.Error("client should be authorized")
	}
	if server.Authorized(clientKP.Public, "10.0.0.9") {
		t.Error("client from disallowed IP should be rejected")
	}

	client, err := InstallClient(dir, "agent1", "broker")
	if err != nil {
		t.Fatalf("InstallClient: %v", err)
	}

	sealed, err := client.Seal([]byte("hello broker"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	plain, err := server.Open(sealed, clientKP.Public)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(plain) != "hello broker" {
		t.Errorf("Open plaintext = %q", plain)
	}
}

func TestInstallServerEmptyRoster(t *testing.T) {
	dir := t.TempDir()
	kp, _ := GenerateKeyPair()
	if err := Persist(dir, "broker", kp, false); err != nil {
		t.Fatal(err)
	}
	if _, err := InstallServer(dir, "broker", nil, nil, false); err == nil {
		t.Fatal("expected error for empty roster")
	}
}

func TestReadKeyFileTrailingWhitespace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.pub")
	if err := os.WriteFile(path, []byte("abcdef\r\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := readKeyFile(path)
	if err != nil {
		t.Fatalf("readKeyFile: %v", err)
	}
	if got != "abcdef" {
		t.Errorf("readKeyFile = %q", got)
	}
}
