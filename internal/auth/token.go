// Package auth supplies the bearer credential used for REST calls and the
// push channel handshake.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// ErrNoCredential is returned when neither a token nor a token file is
// configured.
var ErrNoCredential = errors.New("no bearer credential configured")

// fileTokenTTL bounds how long a token read from disk is reused before the
// file is read again.
const fileTokenTTL = time.Minute

// Func adapts a function returning a bearer credential to
// oauth2.TokenSource.
type Func func() (string, error)

// Token implements oauth2.TokenSource.
func (f Func) Token() (*oauth2.Token, error) {
	s, err := f()
	if err != nil {
		return nil, err
	}
	if s == "" {
		return nil, ErrNoCredential
	}
	return &oauth2.Token{AccessToken: s, TokenType: "Bearer"}, nil
}

// fileSource reads the token file on every call. An external process can
// rotate the file while the daemon runs.
type fileSource struct {
	path string
	now  func() time.Time
}

func (s fileSource) Token() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	tok := strings.TrimSpace(string(data))
	if tok == "" {
		return nil, fmt.Errorf("read token file %s: %w", s.path, ErrNoCredential)
	}
	return &oauth2.Token{
		AccessToken: tok,
		TokenType:   "Bearer",
		Expiry:      s.now().Add(fileTokenTTL),
	}, nil
}

// NewSource returns a token source for the configured credential. A
// literal token takes precedence over a token file.
func NewSource(token, tokenFile string) (oauth2.TokenSource, error) {
	if token = strings.TrimSpace(token); token != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}), nil
	}
	if tokenFile != "" {
		return oauth2.ReuseTokenSource(nil, fileSource{path: tokenFile, now: time.Now}), nil
	}
	return nil, ErrNoCredential
}
