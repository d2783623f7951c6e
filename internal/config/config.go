package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.textsync/config.toml.
type Config struct {
	DefaultSession string   `toml:"default_session"`
	Server         Server   `toml:"server"`
	Account        Account  `toml:"account"`
	Sync           Sync     `toml:"sync"`
	Realtime       Realtime `toml:"realtime"`
}

// Server locates the backend.
type Server struct {
	APIBaseURL string `toml:"api_base_url"`
	PushURL    string `toml:"push_url"`
}

// Account identifies the signed-in user and their credential.
type Account struct {
	PhoneNumber string `toml:"phone_number"`
	Token       string `toml:"token,omitempty"`
	TokenFile   string `toml:"token_file,omitempty"`
}

// Sync tunes the history load and the read cursor poll.
type Sync struct {
	PageSize           int           `toml:"page_size"`
	MaxPages           int           `toml:"max_pages"`
	MaxItems           int           `toml:"max_items"`
	CursorPollInterval time.Duration `toml:"cursor_poll_interval"`
}

// Realtime tunes the push channel's reconnect policy.
type Realtime struct {
	BaseDelay     time.Duration `toml:"base_delay"`
	MaxDelay      time.Duration `toml:"max_delay"`
	DegradedAfter int           `toml:"degraded_after"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DefaultSession: "main",
		Sync: Sync{
			PageSize:           200,
			MaxPages:           50,
			MaxItems:           10000,
			CursorPollInterval: 5 * time.Second,
		},
		Realtime: Realtime{
			BaseDelay:     time.Second,
			MaxDelay:      20 * time.Second,
			DegradedAfter: 6,
		},
	}
}

// Load reads config from the given path on top of Default. Returns nil and
// an error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, falling back to Default when the file does not
// exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate checks the fields a running engine needs.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.APIBaseURL == "" {
		errs = append(errs, errors.New("server.api_base_url is required"))
	} else if _, err := url.ParseRequestURI(c.Server.APIBaseURL); err != nil {
		errs = append(errs, fmt.Errorf("server.api_base_url: %w", err))
	}
	if c.Server.PushURL != "" {
		u, err := url.Parse(c.Server.PushURL)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("server.push_url: %w", err))
		case u.Scheme != "ws" && u.Scheme != "wss":
			errs = append(errs, fmt.Errorf("server.push_url: scheme %q, want ws or wss", u.Scheme))
		}
	}
	if c.Account.Token == "" && c.Account.TokenFile == "" {
		errs = append(errs, errors.New("account.token or account.token_file is required"))
	}
	if c.Sync.PageSize < 0 || c.Sync.MaxPages < 0 || c.Sync.MaxItems < 0 {
		errs = append(errs, errors.New("sync limits must not be negative"))
	}
	if c.Realtime.MaxDelay > 0 && c.Realtime.MaxDelay < c.Realtime.BaseDelay {
		errs = append(errs, errors.New("realtime.max_delay is shorter than base_delay"))
	}
	return errors.Join(errs...)
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
