// Package auth implements TOTP login and in-memory bearer sessions for the
// gateway's authenticated endpoints.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
)

var (
	ErrBadCredentials = errors.New("invalid email or code")
	ErrNoSession      = errors.New("missing or expired session")
)

// Manager validates TOTP codes and issues session tokens.
type Manager struct {
	secret     string
	sessionTTL time.Duration

	mu       sync.RWMutex
	sessions map[string]session
	now      func() time.Time
}

type session struct {
	email     string
	expiresAt time.Time
}

// NewManager creates a session manager. secret is the shared TOTP secret.
func NewManager(secret string, sessionTTL time.Duration) *Manager {
	if sessionTTL <= 0 {
		sessionTTL = 12 * time.Hour
	}
	return &Manager{
		secret:     secret,
		sessionTTL: sessionTTL,
		sessions:   make(map[string]session),
		now:        time.Now,
	}
}

// Login validates the TOTP code and returns a fresh bearer token.
func (m *Manager) Login(email, code string) (string, error) {
	if email == "" || code == "" {
		return "", ErrBadCredentials
	}
	if !totp.Validate(code, m.secret) {
		return "", ErrBadCredentials
	}

	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)

	m.mu.Lock()
	m.sessions[token] = session{email: email, expiresAt: m.now().Add(m.sessionTTL)}
	m.mu.Unlock()
	return token, nil
}

// Resolve returns the email behind a bearer token.
func (m *Manager) Resolve(token string) (string, error) {
	m.mu.RLock()
	s, ok := m.sessions[token]
	m.mu.RUnlock()

	if !ok {
		return "", ErrNoSession
	}
	if m.now().After(s.expiresAt) {
		m.mu.Lock()
		delete(m.sessions, token)
		m.mu.Unlock()
		return "", ErrNoSession
	}
	return s.email, nil
}

// Logout drops the session.
func (m *Manager) Logout(token string) {
	m.mu.Lock()
	delete(m.sessions, token)
	m.mu.Unlock()
}

// userKey is the context key carrying the authenticated email.
type userKey struct{}

// Middleware rejects requests without a valid bearer token and stashes the
// email in the request context.
func (m *Manager) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// CORS preflights carry no Authorization header; the handler
		// answers them with its CORS headers
		if r.Method == http.MethodOptions {
			next(w, r)
			return
		}
		token := bearerToken(r)
		email, err := m.Resolve(token)
		if err != nil {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(WithUser(r.Context(), email)))
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	// WS upgrades can't set headers from the browser; allow query fallback
	return r.URL.Query().Get("token")
}

// WithUser returns ctx carrying the authenticated email.
func WithUser(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, userKey{}, email)
}

// UserFrom extracts the authenticated email, if any.
func UserFrom(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(userKey{}).(string)
	return email, ok
}
