package session

import (
	"fmt"
	"regexp"

	"github.com/matheus3301/textsync/internal/config"
)

const DefaultSessionName = "main"

var nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateName checks that name conforms to session naming rules.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid session name %q: must match ^[a-z0-9_-]{1,64}$", name)
	}
	return nil
}

// Resolve determines the active session name using precedence:
// 1. flagOverride (--session flag)
// 2. config.toml default_session
// 3. "main"
// The result is validated.
func Resolve(flagOverride string, cfg *config.Config) (string, error) {
	name := DefaultSessionName
	switch {
	case flagOverride != "":
		name = flagOverride
	case cfg != nil && cfg.DefaultSession != "":
		name = cfg.DefaultSession
	}
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}
