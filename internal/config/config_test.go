package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.DefaultSession = "work"
	cfg.Server.APIBaseURL = "https://api.example.com"
	cfg.Sync.CursorPollInterval = 3 * time.Second
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultSession != "work" {
		t.Errorf("DefaultSession = %q, want %q", loaded.DefaultSession, "work")
	}
	if loaded.Server.APIBaseURL != "https://api.example.com" || loaded.Sync.CursorPollInterval != 3*time.Second {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[server]
api_base_url = "https://api.example.com"
push_url = "wss://push.example.com/ws"

[account]
phone_number = "+212600000001"
token_file = "/run/secrets/textsync"

[realtime]
max_delay = "30s"
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Realtime.MaxDelay != 30*time.Second || cfg.Realtime.BaseDelay != time.Second {
		t.Errorf("realtime = %+v", cfg.Realtime)
	}
	if cfg.Sync.PageSize != 200 || cfg.DefaultSession != "main" {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
	cfg, err := LoadOrDefault("/nonexistent/config.toml")
	if err != nil || cfg.Sync.MaxPages != 50 {
		t.Errorf("LoadOrDefault() = %+v, %v", cfg, err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"ok", func(*Config) {}, ""},
		{"no base url", func(c *Config) { c.Server.APIBaseURL = "" }, "api_base_url is required"},
		{"bad push scheme", func(c *Config) { c.Server.PushURL = "https://push" }, "want ws or wss"},
		{"no credential", func(c *Config) { c.Account.Token = "" }, "token"},
		{"negative limit", func(c *Config) { c.Sync.MaxItems = -1 }, "negative"},
		{"inverted delays", func(c *Config) { c.Realtime.MaxDelay = time.Millisecond }, "max_delay"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Server.APIBaseURL = "https://api.example.com"
			cfg.Account.Token = "tok"
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
