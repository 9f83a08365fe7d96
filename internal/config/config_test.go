package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Instance.Domain != "localhost" {
		t.Errorf("expected default domain, got %q", cfg.Instance.Domain)
	}
	if cfg.Federation.Mode != FederationModeAllowlist {
		t.Errorf("expected default federation mode allowlist, got %q", cfg.Federation.Mode)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tezrelay.toml")
	contents := `
[instance]
domain = "relay.example.com"
name = "Example Relay"

[federation]
mode = "open"
max_context_items = 10
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Instance.Domain != "relay.example.com" {
		t.Errorf("domain = %q", cfg.Instance.Domain)
	}
	if cfg.Federation.Mode != FederationModeOpen {
		t.Errorf("mode = %q", cfg.Federation.Mode)
	}
	if cfg.Federation.MaxContextItems != 10 {
		t.Errorf("max_context_items = %d", cfg.Federation.MaxContextItems)
	}
	// Unset fields still get defaults.
	if cfg.Database.MaxConnections != 25 {
		t.Errorf("expected default max_connections, got %d", cfg.Database.MaxConnections)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("TEZ_INSTANCE_DOMAIN", "env.example.com")
	t.Setenv("TEZ_FEDERATION_MODE", "open")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Instance.Domain != "env.example.com" {
		t.Errorf("domain = %q", cfg.Instance.Domain)
	}
	if cfg.Federation.Mode != FederationModeOpen {
		t.Errorf("mode = %q", cfg.Federation.Mode)
	}
}

func TestValidateRejectsBadFederationMode(t *testing.T) {
	cfg := defaults()
	cfg.Federation.Mode = "bogus"
	if err := validate(&cfg); err == nil {
		t.Fatal("expected error for invalid federation mode")
	}
}

func TestIsAdmin(t *testing.T) {
	cfg := defaults()
	cfg.Instance.AdminUserIDs = []string{"u1", "u2"}
	if !cfg.IsAdmin("u1") {
		t.Error("expected u1 to be admin")
	}
	if cfg.IsAdmin("u3") {
		t.Error("expected u3 to not be admin")
	}
}
