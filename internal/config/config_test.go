package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "remedian.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeTestConfig(t, `
packs = ["packs/site.toml"]

[scopes]
user_root = "/Users"
denylist  = ["backup_svc"]

[provider]
timeout_seconds = 10

[report]
dir = "out"

[policy]
protected = ["monitoring_agent"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Packs) != 1 || cfg.Packs[0] != "packs/site.toml" {
		t.Errorf("packs = %v", cfg.Packs)
	}
	if cfg.Provider.TimeoutSeconds != 10 {
		t.Errorf("timeout = %d, want 10", cfg.Provider.TimeoutSeconds)
	}
	if cfg.ProviderTimeout() != 10*time.Second {
		t.Errorf("duration = %v", cfg.ProviderTimeout())
	}
	if cfg.Report.Dir != "out" {
		t.Errorf("report.dir = %q, want out", cfg.Report.Dir)
	}
	if len(cfg.Policy.Protected) != 1 {
		t.Errorf("protected = %v", cfg.Policy.Protected)
	}
	if !cfg.UseDefaultPack {
		t.Error("use_default_pack should default to true")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.toml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider.TimeoutSeconds != 30 {
		t.Errorf("timeout = %d, want default 30", cfg.Provider.TimeoutSeconds)
	}
	if cfg.Report.Dir != "reports" {
		t.Errorf("report.dir = %q, want default", cfg.Report.Dir)
	}
	if cfg.Scopes.UserRoot != "/Users" {
		t.Errorf("user_root = %q, want /Users", cfg.Scopes.UserRoot)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeTestConfig(t, `[provider`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed toml")
	}
}

func TestLoad_InvalidTimeout(t *testing.T) {
	path := writeTestConfig(t, `
[provider]
timeout_seconds = -5
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for negative timeout")
	}
}

func TestLoad_NoPacksAtAll(t *testing.T) {
	path := writeTestConfig(t, `use_default_pack = false`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error when default pack is disabled and no packs are given")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeTestConfig(t, `
[report]
dir = "from-file"
`)
	t.Setenv("REMEDIAN_REPORT_DIR", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Report.Dir != "from-env" {
		t.Errorf("report.dir = %q, want env override", cfg.Report.Dir)
	}
}
