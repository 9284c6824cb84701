package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.HTTPAddr == "" || cfg.DataDir == "" {
		t.Fatalf("defaults incomplete: %+v", cfg)
	}
	if cfg.RetentionKeepLast != 0 {
		t.Fatalf("retention must default to unlimited")
	}
	if cfg.LockStripes <= 0 {
		t.Fatalf("lock stripes must default > 0")
	}
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keva.json")
	body := `{"httpAddr":":9999","retentionKeepLast":8,"log":{"level":"debug"}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9999" || cfg.RetentionKeepLast != 8 {
		t.Fatalf("json overlay lost: %+v", cfg)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("nested overlay lost: %+v", cfg.Log)
	}
	// Untouched fields keep defaults.
	if cfg.PayloadMaxBytes != Default().PayloadMaxBytes {
		t.Fatalf("default lost on partial file: %+v", cfg)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keva.yaml")
	body := "httpAddr: \":7070\"\narchiveTrimmed: false\nlog:\n  format: json\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":7070" || cfg.ArchiveTrimmed {
		t.Fatalf("yaml overlay lost: %+v", cfg)
	}
	if cfg.Log.Format != "json" {
		t.Fatalf("nested yaml overlay lost: %+v", cfg.Log)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("KEVA_HTTP_ADDR", ":6060")
	t.Setenv("KEVA_KEEP_LAST", "5")
	t.Setenv("KEVA_AUTH_TOKEN", "secret")
	t.Setenv("KEVA_PAYLOAD_MAX_BYTES", "bogus")

	cfg := FromEnv(Default())
	if cfg.HTTPAddr != ":6060" || cfg.RetentionKeepLast != 5 || cfg.AuthToken != "secret" {
		t.Fatalf("env overlay lost: %+v", cfg)
	}
	if cfg.PayloadMaxBytes != Default().PayloadMaxBytes {
		t.Fatalf("malformed env value must be ignored: %+v", cfg)
	}
}
