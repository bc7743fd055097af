package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Prometheus metrics for session management.
var (
	authAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seer_auth_attempts_total",
		Help: "Authentication round-trips by credential source and result",
	}, []string{"source", "result"})

	authRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seer_auth_refreshes_total",
		Help: "Session refreshes by credential source",
	}, []string{"source"})
)

// maxAuthAttempts bounds consecutive (re-)authentication failures.
const maxAuthAttempts = 2

// Authenticator owns the Session for one credential source and keeps it
// valid. It is safe for concurrent use; refreshes are serialized so that
// concurrent callers observing an expired session share a single
// re-authentication.
type Authenticator struct {
	source     Source
	httpClient *http.Client
	now        func() time.Time
	sessionTTL time.Duration
	tokenTTL   time.Duration
	cacheDir   string
	logger     zerolog.Logger

	mu      sync.RWMutex
	session *Session

	refreshes singleflight.Group
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithHTTPClient sets the client used for login round-trips.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Authenticator) {
		if c != nil {
			a.httpClient = c
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// WithSessionTTL sets the fallback lifetime of a password session.
func WithSessionTTL(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.sessionTTL = d
		}
	}
}

// WithTokenTTL sets the lifetime of signed API key tokens.
func WithTokenTTL(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.tokenTTL = d
		}
	}
}

// WithoutCookieCache disables reading and writing the on-disk session cookie.
func WithoutCookieCache() Option {
	return func(a *Authenticator) {
		a.cacheDir = ""
	}
}

// New builds an Authenticator for src and establishes the first session.
// Password sources reuse a cached cookie when the server still accepts it,
// otherwise they log in. API key sources sign locally without a network call.
func New(ctx context.Context, src Source, opts ...Option) (*Authenticator, error) {
	if src.Kind == KindPrebuilt || src.Kind == "" {
		return nil, fmt.Errorf("auth: cannot build an authenticator for source %q", src.Kind)
	}
	if src.Kind.IsAPIKey() && src.key == nil {
		return nil, &MalformedCredentialError{Path: src.KeyPath, Err: errors.New("no private key loaded")}
	}

	a := &Authenticator{
		source:     src,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
		sessionTTL: DefaultSessionTTL,
		tokenTTL:   DefaultKeyTokenTTL,
		cacheDir:   src.ConfigDir,
		logger:     log.With().Str("component", "auth").Str("source", string(src.Kind)).Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if src.Kind.IsPassword() {
		if s := a.cachedSession(ctx); s != nil {
			a.session = s
			a.logger.Info().Msg("Reusing cached session")
			return a, nil
		}
	}

	s, err := a.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	a.session = s
	a.logger.Info().Time("expires_at", s.ExpiresAt).Msg("Login successful")
	return a, nil
}

// Provider returns the HeaderProvider for src: the pre-built one as-is, or
// a new Authenticator.
func Provider(ctx context.Context, src Source, opts ...Option) (HeaderProvider, error) {
	if src.Kind == KindPrebuilt {
		if src.Prebuilt == nil {
			return nil, &AuthenticationError{Kind: KindPrebuilt, Err: ErrMissingCredentials}
		}
		return src.Prebuilt, nil
	}
	return New(ctx, src, opts...)
}

// Kind returns the credential source kind.
func (a *Authenticator) Kind() Kind {
	return a.source.Kind
}

// APIURL returns the base URL implied by the source.
func (a *Authenticator) APIURL() string {
	return a.source.APIURL
}

// Session returns a copy of the current session, or nil.
func (a *Authenticator) Session() *Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.session == nil {
		return nil
	}
	return &Session{Headers: a.session.Headers.Clone(), ExpiresAt: a.session.ExpiresAt, Kind: a.session.Kind}
}

// Headers returns headers for one request, refreshing the session first
// if it has expired. The returned header map is a copy.
func (a *Authenticator) Headers(ctx context.Context) (http.Header, error) {
	s := a.current()
	if s.Expired(a.now()) {
		var err error
		s, err = a.refresh(ctx)
		if err != nil {
			return nil, err
		}
	}
	return s.Headers.Clone(), nil
}

// Invalidate drops the current session so the next Headers call
// re-authenticates. Used when the server rejects the session.
func (a *Authenticator) Invalidate() {
	a.mu.Lock()
	a.session = nil
	a.mu.Unlock()

	if a.source.Kind.IsPassword() {
		if err := removeCookie(a.cacheDir, a.source.Kind); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to remove cached cookie")
		}
	}
	a.logger.Debug().Msg("Session invalidated")
}

func (a *Authenticator) current() *Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session
}

// refresh re-authenticates once for all concurrent callers.
func (a *Authenticator) refresh(ctx context.Context) (*Session, error) {
	v, err, _ := a.refreshes.Do("session", func() (any, error) {
		// Another caller may have finished a refresh between our expiry
		// check and joining this flight.
		if s := a.current(); !s.Expired(a.now()) {
			return s, nil
		}

		authRefreshesTotal.WithLabelValues(string(a.source.Kind)).Inc()
		s, err := a.authenticate(ctx)
		if err != nil {
			return nil, err
		}

		a.mu.Lock()
		a.session = s
		a.mu.Unlock()

		a.logger.Info().Time("expires_at", s.ExpiresAt).Msg("Session refreshed")
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// authenticate establishes a new session, tolerating one failure.
func (a *Authenticator) authenticate(ctx context.Context) (*Session, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAuthAttempts; attempt++ {
		s, err := a.establish(ctx)
		if err == nil {
			authAttemptsTotal.WithLabelValues(string(a.source.Kind), "success").Inc()
			return s, nil
		}
		authAttemptsTotal.WithLabelValues(string(a.source.Kind), "failure").Inc()
		lastErr = err

		a.logger.Warn().Err(err).Int("attempt", attempt).Msg("Authentication attempt failed")

		if ctx.Err() != nil {
			break
		}
	}
	// A cancelled or timed-out caller says nothing about the credentials.
	if ctxErr := ctx.Err(); ctxErr != nil {
		a.logger.Warn().Err(ctxErr).Msg("Authentication interrupted")
		return nil, fmt.Errorf("authenticate: %w", ctxErr)
	}
	a.logger.Error().Err(lastErr).Msg("Authentication failed")
	return nil, &AuthenticationError{Kind: a.source.Kind, Err: lastErr}
}

func (a *Authenticator) establish(ctx context.Context) (*Session, error) {
	switch {
	case a.source.Kind.IsAPIKey():
		return a.signToken()
	case a.source.Kind.IsPassword():
		return a.login(ctx)
	default:
		return nil, fmt.Errorf("unsupported credential source %q", a.source.Kind)
	}
}

// signToken issues a short-lived RS256 token for the API key.
func (a *Authenticator) signToken() (*Session, error) {
	now := a.now()
	expires := now.Add(a.tokenTTL)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"keyId": a.source.KeyID,
		"iat":   now.Unix(),
		"exp":   expires.Unix(),
	})
	token.Header["kid"] = a.source.KeyID

	signed, err := token.SignedString(a.source.key)
	if err != nil {
		return nil, fmt.Errorf("sign api key token: %w", err)
	}

	h := http.Header{}
	h.Set("Authorization", "Bearer "+signed)
	return &Session{Headers: h, ExpiresAt: expires, Kind: a.source.Kind}, nil
}

// login exchanges email/password for a session cookie and verifies it.
func (a *Authenticator) login(ctx context.Context) (*Session, error) {
	form := url.Values{}
	form.Set("email", a.source.Email)
	form.Set("password", a.source.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.source.APIURL+"/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("login returned status %d", resp.StatusCode)
	}

	want := cookieName(a.source.Kind)
	var found *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == want || (found == nil && (c.Name == CookieNameProd || c.Name == CookieNameDev)) {
			found = c
		}
	}
	if found == nil || found.Value == "" {
		return nil, errors.New("login response carried no session cookie")
	}

	stored := storedCookie{Name: found.Name, Value: found.Value, Expires: a.cookieExpiry(found)}
	if err := a.verify(ctx, stored); err != nil {
		return nil, err
	}

	if err := writeCookie(a.cacheDir, a.source.Kind, stored); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to cache session cookie")
	}

	return &Session{Headers: stored.header(), ExpiresAt: stored.Expires, Kind: a.source.Kind}, nil
}

func (a *Authenticator) cookieExpiry(c *http.Cookie) time.Time {
	now := a.now()
	switch {
	case c.MaxAge > 0:
		return now.Add(time.Duration(c.MaxAge) * time.Second)
	case !c.Expires.IsZero() && c.Expires.After(now):
		return c.Expires
	default:
		return now.Add(a.sessionTTL)
	}
}

// verify checks that the server reports the cookie's session as active.
func (a *Authenticator) verify(ctx context.Context, c storedCookie) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.source.APIURL+"/auth/verify", nil)
	if err != nil {
		return fmt.Errorf("create verify request: %w", err)
	}
	for k, v := range c.header() {
		req.Header[k] = v
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("verify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("verify returned status %d: %w", resp.StatusCode, ErrSessionInactive)
	}

	var body struct {
		Session string `json:"session"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode verify response: %w", err)
	}
	if body.Session != "active" {
		return ErrSessionInactive
	}
	return nil
}

// cachedSession returns a session built from the on-disk cookie if the
// server still accepts it.
func (a *Authenticator) cachedSession(ctx context.Context) *Session {
	c, err := readCookie(a.cacheDir, a.source.Kind)
	if err != nil {
		a.logger.Debug().Err(err).Msg("Ignoring unreadable cached cookie")
		return nil
	}
	if c == nil || !a.now().Before(c.Expires.Add(-RefreshSkew)) {
		return nil
	}
	if err := a.verify(ctx, *c); err != nil {
		a.logger.Debug().Err(err).Msg("Cached cookie rejected")
		return nil
	}
	return &Session{Headers: c.header(), ExpiresAt: c.Expires, Kind: a.source.Kind}
}
