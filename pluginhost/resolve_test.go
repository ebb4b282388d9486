package pluginhost

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveArtifactPathPrefersCLIArg(t *testing.T) {
	dir := t.TempDir()
	explicit := filepath.Join(dir, "explicit.so")
	if err := os.WriteFile(explicit, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := ResolveArtifactPath(explicit, "/attachment.so", "default.so", dir)
	if err != nil {
		t.Fatalf("ResolveArtifactPath: %v", err)
	}
	if got != explicit {
		t.Errorf("got %q, want %q", got, explicit)
	}
}

func TestResolveArtifactPathFallsBackToAttachment(t *testing.T) {
	dir := t.TempDir()
	attachment := filepath.Join(dir, "attachment.so")
	if err := os.WriteFile(attachment, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := ResolveArtifactPath("", attachment, "default.so", dir)
	if err != nil {
		t.Fatalf("ResolveArtifactPath: %v", err)
	}
	if got != attachment {
		t.Errorf("got %q, want %q", got, attachment)
	}
}

func TestResolveArtifactPathSearchesInstallLibDir(t *testing.T) {
	dir := t.TempDir()
	libDir := filepath.Join(dir, "lib")
	if err := os.MkdirAll(libDir, 0o755); err != nil {
		t.Fatal(err)
	}
	installed := filepath.Join(libDir, "default.so")
	if err := os.WriteFile(installed, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := ResolveArtifactPath("", "", "default.so", dir)
	if err != nil {
		t.Fatalf("ResolveArtifactPath: %v", err)
	}
	if got != installed {
		t.Errorf("got %q, want %q", got, installed)
	}
}

func TestResolveArtifactPathNotFound(t *testing.T) {
	dir := t.TempDir()
	if _, err := ResolveArtifactPath("", "", "missing.so", dir); err == nil {
		t.Fatal("expected error for missing artifact")
	}
}
