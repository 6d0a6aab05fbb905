package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
)

const testSecret = "JBSWY3DPEHPK3PXP" // base32 test secret

func TestLoginAndResolve(t *testing.T) {
	m := NewManager(testSecret, time.Hour)

	code, err := totp.GenerateCode(testSecret, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	token, err := m.Login("trader@example.com", code)
	if err != nil {
		t.Fatal(err)
	}
	if token == "" {
		t.Fatal("expected a session token")
	}

	email, err := m.Resolve(token)
	if err != nil {
		t.Fatal(err)
	}
	if email != "trader@example.com" {
		t.Errorf("got %q", email)
	}
}

func TestLogin_RejectsBadCode(t *testing.T) {
	m := NewManager(testSecret, time.Hour)

	if _, err := m.Login("trader@example.com", "000000"); !errors.Is(err, ErrBadCredentials) {
		t.Errorf("expected ErrBadCredentials, got %v", err)
	}
	if _, err := m.Login("", "123456"); !errors.Is(err, ErrBadCredentials) {
		t.Errorf("empty email must be rejected, got %v", err)
	}
}

func TestSessionExpiry(t *testing.T) {
	m := NewManager(testSecret, time.Minute)

	code, err := totp.GenerateCode(testSecret, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	token, err := m.Login("trader@example.com", code)
	if err != nil {
		t.Fatal(err)
	}

	// Jump the clock past the TTL
	m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	if _, err := m.Resolve(token); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession after expiry, got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	m := NewManager(testSecret, time.Hour)

	code, err := totp.GenerateCode(testSecret, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	token, err := m.Login("trader@example.com", code)
	if err != nil {
		t.Fatal(err)
	}

	var gotUser string
	handler := m.Middleware(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = UserFrom(r.Context())
	})

	// No token
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/portfolio", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}

	// Bearer header
	req := httptest.NewRequest(http.MethodGet, "/api/portfolio", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusOK || gotUser != "trader@example.com" {
		t.Errorf("bearer auth failed: code=%d user=%q", rec.Code, gotUser)
	}

	// Query fallback for WS upgrades
	gotUser = ""
	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil))
	if rec.Code != http.StatusOK || gotUser != "trader@example.com" {
		t.Errorf("query token auth failed: code=%d user=%q", rec.Code, gotUser)
	}
}

func TestMiddleware_PassesPreflightThrough(t *testing.T) {
	m := NewManager(testSecret, time.Hour)

	called := false
	handler := m.Middleware(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	// Browsers send preflights without Authorization; they must reach the
	// handler, not die on a 401
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodOptions, "/api/trade", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for preflight, got %d", rec.Code)
	}
	if !called {
		t.Error("preflight should be handed to the wrapped handler")
	}
}
