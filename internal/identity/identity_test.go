package identity

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewGeneratesAndPersists(t *testing.T) {
	dir := t.TempDir()

	svc, err := New(dir, "relay.example.com", testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	id := svc.Current()
	if id.Host != "relay.example.com" {
		t.Errorf("host = %q", id.Host)
	}
	if len(id.ServerID) != 16 {
		t.Errorf("expected 16-hex server id, got %q", id.ServerID)
	}

	// Reload from the same dataDir must yield the same identity.
	svc2, err := New(dir, "relay.example.com", testLogger())
	if err != nil {
		t.Fatalf("New (reload): %v", err)
	}
	id2 := svc2.Current()
	if id2.ServerID != id.ServerID {
		t.Errorf("server id changed across reload: %q != %q", id2.ServerID, id.ServerID)
	}
	if string(id2.PublicKey) != string(id.PublicKey) {
		t.Error("public key changed across reload")
	}
}

func TestDeriveServerIDDeterministic(t *testing.T) {
	dir := t.TempDir()
	svc, err := New(dir, "a.example.com", testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	id := svc.Current()

	if got := DeriveServerID(id.PublicKey); got != id.ServerID {
		t.Errorf("DeriveServerID(pub) = %q, want %q", got, id.ServerID)
	}
}

func TestCorruptKeyFilesError(t *testing.T) {
	dir := t.TempDir()
	if _, err := New(dir, "x.example.com", testLogger()); err != nil {
		t.Fatalf("New: %v", err)
	}

	// Corrupt the private key file.
	privPath := filepath.Join(dir, privateKeyFile)
	if err := os.WriteFile(privPath, []byte("short"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := New(dir, "x.example.com", testLogger()); err == nil {
		t.Fatal("expected error loading corrupt identity")
	}
}
