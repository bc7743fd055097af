// Package testutil provides a fake Seer platform for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockResponse defines a canned response for a path.
type MockResponse struct {
	StatusCode int
	Body       []byte
	Headers    map[string]string
	Delay      time.Duration
}

// GraphQLRequest is the decoded body of a GraphQL POST.
type GraphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// GraphQLHandler answers one GraphQL request. Returning a status other
// than 200 sends body verbatim with that status.
type GraphQLHandler func(req GraphQLRequest, r *http.Request) (status int, body any)

// MockSeer is a configurable fake of the Seer API: login, verify, GraphQL,
// and arbitrary data chunk paths.
type MockSeer struct {
	server *httptest.Server

	mu        sync.RWMutex
	handlers  map[string]http.HandlerFunc
	graphql   GraphQLHandler
	sessions  map[string]bool
	password  string
	loginWait time.Duration
	loginFail int

	// Tracking
	loginCount   int
	verifyCount  int
	graphqlCount int
	requestCount int
	lastHeader   http.Header
}

// NewMockSeer starts a fake server accepting the given password for any email.
func NewMockSeer(password string) *MockSeer {
	m := &MockSeer{
		handlers: make(map[string]http.HandlerFunc),
		sessions: make(map[string]bool),
		password: password,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", m.handleLogin)
	mux.HandleFunc("/api/auth/verify", m.handleVerify)
	mux.HandleFunc("/api/graphql", m.handleGraphQL)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		h, ok := m.handlers[r.URL.Path]
		m.mu.RUnlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	})

	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.requestCount++
		m.lastHeader = r.Header.Clone()
		m.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))

	return m
}

// URL returns the server root URL.
func (m *MockSeer) URL() string {
	return m.server.URL
}

// APIURL returns the API base URL (root + "/api").
func (m *MockSeer) APIURL() string {
	return m.server.URL + "/api"
}

// Client returns an HTTP client for the server.
func (m *MockSeer) Client() *http.Client {
	return m.server.Client()
}

// Close shuts down the server.
func (m *MockSeer) Close() {
	m.server.Close()
}

// SetLoginDelay makes every login take at least d.
func (m *MockSeer) SetLoginDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loginWait = d
}

// FailNextLogins makes the next n logins return 500.
func (m *MockSeer) FailNextLogins(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loginFail = n
}

// ExpireSessions forgets every issued cookie, so verify and GraphQL
// calls carrying them are rejected.
func (m *MockSeer) ExpireSessions() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = make(map[string]bool)
}

// SetGraphQLHandler installs the GraphQL responder.
func (m *MockSeer) SetGraphQLHandler(h GraphQLHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.graphql = h
}

// SetHandler sets a custom handler for a specific path.
func (m *MockSeer) SetHandler(path string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = h
}

// SetResponse configures a simple response for a path.
func (m *MockSeer) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for k, v := range resp.Headers {
			w.Header().Set(k, v)
		}
		status := resp.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = w.Write(resp.Body)
	})
}

// LoginCount returns the number of login requests received.
func (m *MockSeer) LoginCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loginCount
}

// VerifyCount returns the number of verify requests received.
func (m *MockSeer) VerifyCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.verifyCount
}

// GraphQLCount returns the number of GraphQL requests received.
func (m *MockSeer) GraphQLCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.graphqlCount
}

// RequestCount returns the number of requests of any kind.
func (m *MockSeer) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockSeer) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastHeader.Clone()
}

// Authorized reports whether r carries a live session cookie or a bearer token.
func (m *MockSeer) Authorized(r *http.Request) bool {
	if strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		return true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range r.Cookies() {
		if m.sessions[c.Value] {
			return true
		}
	}
	return false
}

func (m *MockSeer) handleLogin(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.loginCount++
	n := m.loginCount
	wait := m.loginWait
	fail := m.loginFail > 0
	if fail {
		m.loginFail--
	}
	m.mu.Unlock()

	if wait > 0 {
		time.Sleep(wait)
	}
	if fail {
		http.Error(w, "login unavailable", http.StatusInternalServerError)
		return
	}
	if err := r.ParseForm(); err != nil || r.PostForm.Get("password") != m.password || r.PostForm.Get("email") == "" {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
		return
	}

	value := fmt.Sprintf("session-%d", n)
	m.mu.Lock()
	m.sessions[value] = true
	m.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: "seer.sid", Value: value, Path: "/"})
	w.WriteHeader(http.StatusOK)
}

func (m *MockSeer) handleVerify(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.verifyCount++
	m.mu.Unlock()

	if !m.Authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session": "active"})
}

func (m *MockSeer) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.graphqlCount++
	h := m.graphql
	m.mu.Unlock()

	if !m.Authorized(r) {
		writeJSON(w, http.StatusOK, GraphQLErrors("NOT_AUTHENTICATED"))
		return
	}

	var req GraphQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if h == nil {
		writeJSON(w, http.StatusOK, GraphQLData(map[string]any{}))
		return
	}

	status, body := h(req, r)
	if status == 0 {
		status = http.StatusOK
	}
	if raw, ok := body.([]byte); ok {
		w.WriteHeader(status)
		_, _ = w.Write(raw)
		return
	}
	writeJSON(w, status, body)
}

// GraphQLData wraps data in a GraphQL response envelope.
func GraphQLData(data any) map[string]any {
	return map[string]any{"data": data}
}

// GraphQLErrors builds a GraphQL error response.
func GraphQLErrors(messages ...string) map[string]any {
	errs := make([]map[string]any, 0, len(messages))
	for _, msg := range messages {
		errs = append(errs, map[string]any{"message": msg})
	}
	return map[string]any{"data": nil, "errors": errs}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
