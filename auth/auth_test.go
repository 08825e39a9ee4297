package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/mailbox/kit"
)

var testSecret = DeriveSecret("test-secret")

func newTestGate(t *testing.T) *Gate {
	t.Helper()
	g, err := NewGate(GateConfig{Login: "admin", Password: "s3cret", Secret: testSecret})
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	return g
}

func TestNewGate_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  GateConfig
	}{
		{"no login", GateConfig{Password: "p", Secret: testSecret}},
		{"no password", GateConfig{Login: "admin", Secret: testSecret}},
		{"short secret", GateConfig{Login: "admin", Password: "p", Secret: []byte("short")}},
		{"bad hash", GateConfig{Login: "admin", PasswordHash: "not-bcrypt", Secret: testSecret}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewGate(tt.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLogin_Success(t *testing.T) {
	g := newTestGate(t)
	sess, token, err := g.Login("admin", "s3cret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !strings.HasPrefix(sess.ID, "sess_") {
		t.Errorf("session id: got %q", sess.ID)
	}
	got, err := g.Authenticate(token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != sess.ID || got.Login != "admin" {
		t.Fatalf("Authenticate: got %+v, want %+v", got, sess)
	}
}

func TestLogin_Failures(t *testing.T) {
	g := newTestGate(t)
	tests := []struct {
		login, password string
		want            error
	}{
		{"admin", "wrong", ErrInvalidCredentials},
		{"root", "s3cret", ErrInvalidCredentials},
		{"admin", "S3CRET", ErrInvalidCredentials},
		{"", "s3cret", ErrMissingCredentials},
		{"admin", "", ErrMissingCredentials},
	}
	for _, tt := range tests {
		_, _, err := g.Login(tt.login, tt.password)
		if !errors.Is(err, tt.want) {
			t.Errorf("Login(%q, %q): got %v, want %v", tt.login, tt.password, err, tt.want)
		}
	}
	if n := g.Len(); n != 0 {
		t.Fatalf("failed logins registered %d sessions", n)
	}
}

func TestLogin_BcryptHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-pass"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	g, err := NewGate(GateConfig{Login: "admin", PasswordHash: string(hash), Secret: testSecret})
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	if _, _, err := g.Login("admin", "hashed-pass"); err != nil {
		t.Fatalf("Login with hash: %v", err)
	}
	if _, _, err := g.Login("admin", "other"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Login with wrong password: got %v", err)
	}
}

func TestLogout_InvalidatesSignedToken(t *testing.T) {
	// WHAT: a token whose signature still verifies is refused after logout.
	// WHY: sessions are server-held; the cookie alone must not outlive them.
	g := newTestGate(t)
	sess, token, err := g.Login("admin", "s3cret")
	if err != nil {
		t.Fatal(err)
	}
	g.Logout(sess.ID)

	if _, err := ValidateToken(testSecret, token); err != nil {
		t.Fatalf("signature should still verify: %v", err)
	}
	if _, err := g.Authenticate(token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Authenticate after logout: got %v, want ErrSessionNotFound", err)
	}
}

func TestAuthenticate_OtherGateRejects(t *testing.T) {
	// A fresh gate with the same secret models a process restart.
	g1 := newTestGate(t)
	_, token, err := g1.Login("admin", "s3cret")
	if err != nil {
		t.Fatal(err)
	}
	g2 := newTestGate(t)
	if _, err := g2.Authenticate(token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("restarted gate accepted old token: %v", err)
	}
}

func TestAuthenticate_Expired(t *testing.T) {
	now := time.Now()
	g, err := NewGate(GateConfig{
		Login: "admin", Password: "s3cret", Secret: testSecret,
		TTL: time.Hour,
		Now: func() time.Time { return now },
	})
	if err != nil {
		t.Fatal(err)
	}
	_, token, err := g.Login("admin", "s3cret")
	if err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Hour)
	if _, err := g.Authenticate(token); err == nil {
		t.Fatal("expired session accepted")
	}
	if g.Len() != 0 {
		t.Fatalf("expired session not dropped, %d left", g.Len())
	}
}

func TestValidateToken_Tampered(t *testing.T) {
	g := newTestGate(t)
	_, token, err := g.Login("admin", "s3cret")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ValidateToken(DeriveSecret("other"), token); err == nil {
		t.Fatal("token verified with the wrong secret")
	}
	if _, err := g.Authenticate(token + "x"); err == nil {
		t.Fatal("tampered token accepted")
	}
}

func guarded(g *Gate, mw func(http.Handler) http.Handler, called *bool) http.Handler {
	return g.Middleware(mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		if kit.GetOperator(r.Context()) == "" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})))
}

func TestRequireSession_RedirectsWithoutRunningHandler(t *testing.T) {
	g := newTestGate(t)
	called := false
	h := guarded(g, RequireSession, &called)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status: got %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login" {
		t.Fatalf("Location: got %q", loc)
	}
	if called {
		t.Fatal("guarded handler ran without a session")
	}
}

func TestRequireSession_CookieAndBearer(t *testing.T) {
	g := newTestGate(t)
	_, token, err := g.Login("admin", "s3cret")
	if err != nil {
		t.Fatal(err)
	}

	called := false
	h := guarded(g, RequireSession, &called)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !called {
		t.Fatalf("cookie: got %d, called=%v", rec.Code, called)
	}

	called = false
	h = guarded(g, RequireSessionJSON, &called)
	req = httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !called {
		t.Fatalf("bearer: got %d, called=%v", rec.Code, called)
	}
}

func TestRequireSessionJSON_Unauthorized(t *testing.T) {
	g := newTestGate(t)
	called := false
	h := guarded(g, RequireSessionJSON, &called)

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"success":false`) {
		t.Fatalf("body: %s", rec.Body.String())
	}
	if called {
		t.Fatal("guarded handler ran without a session")
	}
}

func TestMiddleware_ClearsStaleCookie(t *testing.T) {
	g := newTestGate(t)
	called := false
	h := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if GetSession(r.Context()) != nil {
			t.Error("stale cookie produced a session")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "garbage"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if !called {
		t.Fatal("middleware did not pass through")
	}
	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatal("stale session cookie not cleared")
	}
}
