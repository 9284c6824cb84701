package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env. It is
// immutable after startup.
type Config struct {
	// DataDir is the pebble data directory.
	DataDir string `json:"dataDir" yaml:"dataDir"`
	// HTTPAddr is the listen address of the HTTP transport.
	HTTPAddr string `json:"httpAddr" yaml:"httpAddr"`
	// AuthToken is the single authorized bearer token. Empty disables the
	// check (local development).
	AuthToken string `json:"authToken" yaml:"authToken"`
	// RetentionKeepLast caps the live history per key. 0 keeps everything.
	RetentionKeepLast int `json:"retentionKeepLast" yaml:"retentionKeepLast"`
	// ArchiveTrimmed relocates trimmed records instead of discarding them.
	ArchiveTrimmed bool `json:"archiveTrimmed" yaml:"archiveTrimmed"`
	// PayloadMaxBytes rejects store values above this size. 0 disables.
	PayloadMaxBytes int `json:"payloadMaxBytes" yaml:"payloadMaxBytes"`
	// LockStripes sizes the ledger's per-key mutex table.
	LockStripes int `json:"lockStripes" yaml:"lockStripes"`
	// Fsync is "always", "interval", or "never".
	Fsync string `json:"fsync" yaml:"fsync"`
	// FsyncIntervalMs applies when Fsync is "interval".
	FsyncIntervalMs int `json:"fsyncIntervalMs" yaml:"fsyncIntervalMs"`

	Log LogConfig `json:"log" yaml:"log"`
}

// LogConfig selects log level and output format.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		DataDir:           DefaultDataDir(),
		HTTPAddr:          ":8787",
		RetentionKeepLast: 0,
		ArchiveTrimmed:    true,
		PayloadMaxBytes:   1 << 20,
		LockStripes:       128,
		Fsync:             "always",
		FsyncIntervalMs:   5,
		Log:               LogConfig{Level: "info", Format: "text"},
	}
}

// DefaultDataDir returns the OS-conventional data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "keva-data"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "keva")
	case "windows":
		if d := os.Getenv("LOCALAPPDATA"); d != "" {
			return filepath.Join(d, "keva")
		}
		return filepath.Join(home, "AppData", "Local", "keva")
	default:
		if d := os.Getenv("XDG_DATA_HOME"); d != "" {
			return filepath.Join(d, "keva")
		}
		return filepath.Join(home, ".local", "share", "keva")
	}
}

// Load reads configuration from a JSON or YAML file (by extension),
// overlaid on defaults. An empty path returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// FromEnv overlays KEVA_* environment variables onto cfg. Unset variables
// leave the field untouched; malformed numeric values are ignored.
func FromEnv(cfg Config) Config {
	if v := os.Getenv("KEVA_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("KEVA_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("KEVA_AUTH_TOKEN"); v != "" {
		cfg.AuthToken = v
	}
	if v := os.Getenv("KEVA_KEEP_LAST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.RetentionKeepLast = n
		}
	}
	if v := os.Getenv("KEVA_ARCHIVE_TRIMMED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.ArchiveTrimmed = b
		}
	}
	if v := os.Getenv("KEVA_PAYLOAD_MAX_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.PayloadMaxBytes = n
		}
	}
	if v := os.Getenv("KEVA_LOCK_STRIPES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LockStripes = n
		}
	}
	if v := os.Getenv("KEVA_FSYNC"); v != "" {
		cfg.Fsync = v
	}
	if v := os.Getenv("KEVA_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("KEVA_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	return cfg
}
