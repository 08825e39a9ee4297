// Package auth is the session gate in front of the operator surface.
//
// A single operator credential pair is configured at startup. A successful
// [Gate.Login] registers a server-side session and returns a signed token
// for the session cookie. A token is honoured only while its session is
// registered, so logout and process restarts end it even though the
// signature would still verify.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/mailbox/idgen"
)

// DefaultSessionTTL bounds how long a session stays valid without logout.
const DefaultSessionTTL = 24 * time.Hour

var (
	// ErrMissingCredentials is returned when login or password is empty.
	ErrMissingCredentials = errors.New("auth: login and password are required")

	// ErrInvalidCredentials is returned on any credential mismatch.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrSessionNotFound is returned for tokens whose session is gone.
	ErrSessionNotFound = errors.New("auth: session not found")
)

// Session is a live operator session.
type Session struct {
	ID        string
	Login     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// GateConfig configures a Gate. Either Password or PasswordHash (bcrypt)
// must be set; PasswordHash wins when both are.
type GateConfig struct {
	Login        string
	Password     string
	PasswordHash string
	Secret       []byte
	TTL          time.Duration
	Now          func() time.Time
}

// Gate validates operator credentials and tracks live sessions.
type Gate struct {
	login    []byte
	password []byte
	hash     []byte
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
	newID    idgen.Generator

	mu       sync.Mutex
	sessions map[string]Session
}

// NewGate validates cfg and creates a Gate.
func NewGate(cfg GateConfig) (*Gate, error) {
	if cfg.Login == "" {
		return nil, fmt.Errorf("auth: operator login is required")
	}
	if cfg.Password == "" && cfg.PasswordHash == "" {
		return nil, fmt.Errorf("auth: operator password or password hash is required")
	}
	if cfg.PasswordHash != "" {
		if _, err := bcrypt.Cost([]byte(cfg.PasswordHash)); err != nil {
			return nil, fmt.Errorf("auth: password hash: %w", err)
		}
	}
	if err := ValidateSecret(cfg.Secret); err != nil {
		return nil, err
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSessionTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	g := &Gate{
		login:    []byte(cfg.Login),
		password: []byte(cfg.Password),
		secret:   cfg.Secret,
		ttl:      cfg.TTL,
		now:      cfg.Now,
		newID:    idgen.Prefixed("sess_", idgen.Default),
		sessions: make(map[string]Session),
	}
	if cfg.PasswordHash != "" {
		g.hash = []byte(cfg.PasswordHash)
	}
	return g, nil
}

// TTL returns the session lifetime, for cookie MaxAge.
func (g *Gate) TTL() time.Duration { return g.ttl }

// Login checks the credential pair. On success it registers a session and
// returns it with its signed token. A failure changes no state.
func (g *Gate) Login(login, password string) (*Session, string, error) {
	if login == "" || password == "" {
		return nil, "", ErrMissingCredentials
	}
	if !g.checkCredentials(login, password) {
		return nil, "", ErrInvalidCredentials
	}

	now := g.now()
	sess := Session{
		ID:        g.newID(),
		Login:     login,
		CreatedAt: now,
		ExpiresAt: now.Add(g.ttl),
	}
	claims := &OperatorClaims{Login: login}
	claims.ID = sess.ID
	claims.Subject = login
	token, err := GenerateToken(g.secret, claims, now, g.ttl)
	if err != nil {
		return nil, "", fmt.Errorf("auth: sign session: %w", err)
	}

	g.mu.Lock()
	g.pruneLocked(now)
	g.sessions[sess.ID] = sess
	g.mu.Unlock()

	return &sess, token, nil
}

func (g *Gate) checkCredentials(login, password string) bool {
	loginOK := subtle.ConstantTimeCompare([]byte(login), g.login) == 1
	var passOK bool
	if g.hash != nil {
		passOK = bcrypt.CompareHashAndPassword(g.hash, []byte(password)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(password), g.password) == 1
	}
	return loginOK && passOK
}

// Authenticate resolves a token to its live session.
func (g *Gate) Authenticate(token string) (*Session, error) {
	claims, err := ValidateToken(g.secret, token)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	sess, ok := g.sessions[claims.ID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if !g.now().Before(sess.ExpiresAt) {
		delete(g.sessions, sess.ID)
		return nil, ErrSessionNotFound
	}
	return &sess, nil
}

// Logout ends a session. Unknown ids are ignored.
func (g *Gate) Logout(sessionID string) {
	g.mu.Lock()
	delete(g.sessions, sessionID)
	g.mu.Unlock()
}

// Len returns the number of registered sessions.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

func (g *Gate) pruneLocked(now time.Time) {
	for id, s := range g.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(g.sessions, id)
		}
	}
}
