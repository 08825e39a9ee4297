// Package console serves the operator's browser console: the login flow and
// a read-only page listing every client's latest snapshot and message, with a
// send control per client that posts to the exchange API.
//
// The console never writes to the mailbox itself.
//
//	c, _ := console.New(console.Config{Store: store, Gate: gate})
//	r.Use(gate.Middleware)
//	c.Register(r)
package console

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/mailbox/auth"
	"github.com/hazyhaar/mailbox/mailbox"
)

// Reader is the read side of the mailbox the console renders.
type Reader interface {
	List() []mailbox.Entry
}

// LoginRecorder receives operator session events (audit trail).
type LoginRecorder interface {
	LoginSucceeded(ctx context.Context, login, sessionID string)
	LoginFailed(ctx context.Context, login string)
	LoggedOut(ctx context.Context, login, sessionID string)
}

// PreviewMode selects how snapshot HTML is shown.
type PreviewMode string

const (
	// PreviewRaw embeds the captured markup as-is in a sandboxed iframe.
	PreviewRaw PreviewMode = "raw"
	// PreviewSanitized runs the markup through an HTML sanitizer first.
	PreviewSanitized PreviewMode = "sanitized"
	// PreviewText shows a Markdown rendering instead of markup.
	PreviewText PreviewMode = "text"
)

// ParsePreviewMode validates a configured mode; "" means PreviewRaw.
func ParsePreviewMode(s string) (PreviewMode, error) {
	switch PreviewMode(s) {
	case "", PreviewRaw:
		return PreviewRaw, nil
	case PreviewSanitized, PreviewText:
		return PreviewMode(s), nil
	}
	return "", fmt.Errorf("console: unknown preview mode %q", s)
}

// Config holds the settings needed to create a Console.
type Config struct {
	Store        Reader
	Gate         *auth.Gate
	Preview      PreviewMode
	Recorder     LoginRecorder // nil = no audit
	SecureCookie bool          // force Secure on the session cookie
	Heading      string        // default "Mailbox console"
}

// Console renders the operator surface.
type Console struct {
	store        Reader
	gate         *auth.Gate
	preview      PreviewMode
	recorder     LoginRecorder
	secureCookie bool
	heading      string
}

// New creates a Console.
func New(cfg Config) (*Console, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("console: Store is required")
	}
	if cfg.Gate == nil {
		return nil, fmt.Errorf("console: Gate is required")
	}
	mode, err := ParsePreviewMode(string(cfg.Preview))
	if err != nil {
		return nil, err
	}
	heading := cfg.Heading
	if heading == "" {
		heading = "Mailbox console"
	}
	return &Console{
		store:        cfg.Store,
		gate:         cfg.Gate,
		preview:      mode,
		recorder:     cfg.Recorder,
		secureCookie: cfg.SecureCookie,
		heading:      heading,
	}, nil
}

// Register mounts the console routes on r. The gate's Middleware must run
// before these routes so sessions are present in the request context.
func (c *Console) Register(r chi.Router) {
	r.With(auth.RequireSession).Get("/", c.handleIndex)
	r.Get("/login", c.handleLoginPage)
	r.Post("/login", c.handleLogin)
	r.Get("/logout", c.handleLogout)
	r.Get("/static/console.js", c.handleJS)
	r.Get("/static/console.css", c.handleCSS)
}

func (c *Console) secure(r *http.Request) bool {
	return c.secureCookie || r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}
