package session

import (
	"testing"

	"github.com/matheus3301/textsync/internal/config"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "main", false},
		{"valid with numbers", "work123", false},
		{"valid with hyphen", "my-session", false},
		{"valid with underscore", "my_session", false},
		{"valid single char", "a", false},
		{"valid max length", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", false},
		{"empty", "", true},
		{"uppercase", "Main", true},
		{"space", "my session", true},
		{"dot", "my.session", true},
		{"too long", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", true},
		{"special chars", "my@session", true},
		{"slash", "my/session", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	cfg := config.Default()
	cfg.DefaultSession = "work"

	tests := []struct {
		name    string
		flag    string
		cfg     *config.Config
		want    string
		wantErr bool
	}{
		{"flag wins", "personal", cfg, "personal", false},
		{"config default", "", cfg, "work", false},
		{"no config", "", nil, DefaultSessionName, false},
		{"invalid flag", "Bad Name", cfg, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.flag, tt.cfg)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("Resolve(%q) = %q, %v; want %q", tt.flag, got, err, tt.want)
			}
		})
	}
}
