package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/mailbox/auth"
	"github.com/hazyhaar/mailbox/console"
	"github.com/hazyhaar/mailbox/mailbox"
	"github.com/hazyhaar/mailbox/observability"
	"github.com/hazyhaar/mailbox/shield"
)

const version = "1.0.0"

// service holds the wired components behind the router.
type service struct {
	cfg     Config
	store   *mailbox.Store
	gate    *auth.Gate
	console *console.Console
	events  *observability.EventLogger // nil when the audit trail is disabled
}

// newService builds the store, gate and console from cfg. events may be nil.
func newService(cfg Config, events *observability.EventLogger) (*service, error) {
	recorder := observability.NewMailboxAudit(events)

	var opts []mailbox.Option
	if events != nil {
		opts = append(opts, mailbox.WithObserver(recorder))
	}
	store := mailbox.NewStore(opts...)

	gate, err := auth.NewGate(auth.GateConfig{
		Login:        cfg.AdminLogin,
		Password:     cfg.AdminPassword,
		PasswordHash: cfg.AdminPasswordHash,
		Secret:       auth.DeriveSecret(cfg.SessionSecret),
		TTL:          time.Duration(cfg.SessionTTLHours) * time.Hour,
	})
	if err != nil {
		return nil, err
	}

	preview, err := console.ParsePreviewMode(cfg.Preview)
	if err != nil {
		return nil, err
	}
	ccfg := console.Config{
		Store:        store,
		Gate:         gate,
		Preview:      preview,
		SecureCookie: cfg.CookieSecure,
	}
	if events != nil {
		ccfg.Recorder = recorder
	}
	c, err := console.New(ccfg)
	if err != nil {
		return nil, err
	}

	return &service{cfg: cfg, store: store, gate: gate, console: c, events: events}, nil
}

// router assembles every route of the service.
func (s *service) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	for _, mw := range shield.DefaultStack() {
		r.Use(mw)
	}
	r.Use(s.gate.Middleware) // soft: puts the session in context when present

	// The agent API bounds its own bodies: MaxPageBytes for snapshots,
	// whatever the declared content type, and a small cap for text.
	r.Mount("/api", mailbox.NewHandler(s.store, mailbox.WithMaxPageBytes(s.cfg.MaxPageBytes)).Routes())

	r.Group(func(r chi.Router) {
		r.Use(shield.MaxFormBody(shield.FormBodyLimit))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "clients": s.store.Len()})
		})

		if s.cfg.MCP {
			r.With(auth.RequireSessionJSON).Handle("/mcp", s.mcpHandler())
		}

		s.console.Register(r)
	})
	return r
}

func (s *service) mcpHandler() http.Handler {
	srv := mcp.NewServer(&mcp.Implementation{Name: "mailbox", Version: version}, nil)
	s.store.RegisterMCP(srv)
	if s.events != nil {
		s.events.RegisterMCP(srv)
	}
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
