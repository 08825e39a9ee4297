package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/hazyhaar/mailbox/kit"
)

type sessionKey struct{}

// Middleware extracts a session token from the session cookie or an
// Authorization Bearer header and, when it resolves to a live session,
// injects the Session into the request context. Missing or stale tokens are
// ignored here; RequireSession enforces.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var tokenStr string
		fromCookie := false
		if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
			tokenStr = c.Value
			fromCookie = true
		}
		if tokenStr == "" {
			if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
				tokenStr = strings.TrimPrefix(h, "Bearer ")
			}
		}
		if tokenStr == "" {
			next.ServeHTTP(w, r)
			return
		}

		sess, err := g.Authenticate(tokenStr)
		if err != nil {
			if fromCookie {
				ClearSessionCookie(w)
			}
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey{}, sess)
		ctx = kit.WithOperator(ctx, sess.Login)
		ctx = kit.WithSessionID(ctx, sess.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetSession returns the session from the context, or nil if absent.
func GetSession(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey{}).(*Session)
	return s
}

// RequireSession redirects requests without a session to /login before the
// wrapped handler runs.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetSession(r.Context()) == nil {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSessionJSON is RequireSession for programmatic clients: it answers
// 401 with a JSON failure instead of redirecting.
func RequireSessionJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetSession(r.Context()) == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "session required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
