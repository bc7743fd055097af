package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const (
	// CookieNameProd is the session cookie issued by the production server.
	CookieNameProd = "seer.sid"

	// CookieNameDev is the session cookie issued by the dev server.
	CookieNameDev = "seerdev.sid"

	// DefaultSessionTTL applies when the login cookie carries no expiry.
	DefaultSessionTTL = time.Hour

	// DefaultKeyTokenTTL is the lifetime of a signed API key token.
	DefaultKeyTokenTTL = time.Hour

	// RefreshSkew refreshes a session slightly before it actually expires.
	RefreshSkew = 30 * time.Second
)

// Session is the authenticated context used to sign outgoing requests.
type Session struct {
	Headers   http.Header
	ExpiresAt time.Time
	Kind      Kind
}

// Expired reports whether the session must be refreshed at now. A nil
// session is always expired.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return !now.Before(s.ExpiresAt.Add(-RefreshSkew))
}

// storedCookie is the on-disk form of a verified session cookie.
type storedCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Expires time.Time `json:"expires"`
}

func (c storedCookie) header() http.Header {
	h := http.Header{}
	h.Set("Cookie", (&http.Cookie{Name: c.Name, Value: c.Value}).String())
	return h
}

func cookieFileName(kind Kind) string {
	if kind == KindDevServer {
		return "cookie-dev"
	}
	return "cookie"
}

func cookieName(kind Kind) string {
	if kind == KindDevServer {
		return CookieNameDev
	}
	return CookieNameProd
}

// readCookie loads a cached session cookie. A missing file is not an error.
func readCookie(dir string, kind Kind) (*storedCookie, error) {
	if dir == "" {
		return nil, nil
	}
	data, err := os.ReadFile(filepath.Join(dir, cookieFileName(kind)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cookie: %w", err)
	}
	var c storedCookie
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode cookie: %w", err)
	}
	if c.Name == "" || c.Value == "" {
		return nil, nil
	}
	return &c, nil
}

// writeCookie persists a verified session cookie, readable only by the user.
func writeCookie(dir string, kind Kind, c storedCookie) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode cookie: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, cookieFileName(kind)), data, 0o600); err != nil {
		return fmt.Errorf("write cookie: %w", err)
	}
	return nil
}

func removeCookie(dir string, kind Kind) error {
	if dir == "" {
		return nil
	}
	err := os.Remove(filepath.Join(dir, cookieFileName(kind)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
