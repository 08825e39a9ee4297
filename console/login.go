package console

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"github.com/hazyhaar/mailbox/auth"
	"github.com/hazyhaar/mailbox/shield"
)

var loginTmpl = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html lang="en"><head><meta charset="UTF-8"><meta name="viewport" content="width=device-width,initial-scale=1">
<title>Sign in · {{.Heading}}</title>
<link rel="stylesheet" href="/static/console.css">
</head><body class="login">
<form method="post" action="/login">
<h1>{{.Heading}}</h1>
<label>Login <input type="text" name="login" autocomplete="username" required autofocus></label>
<label>Password <input type="password" name="password" autocomplete="current-password" required></label>
<button type="submit">Sign in</button>
</form>
</body></html>`))

func (c *Console) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if auth.GetSession(r.Context()) != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := loginTmpl.Execute(w, struct{ Heading string }{c.heading}); err != nil {
		shield.GetLogger(r.Context()).Error("render login", "error", err)
	}
}

func (c *Console) handleLogin(w http.ResponseWriter, r *http.Request) {
	log := shield.GetLogger(r.Context())
	if err := r.ParseForm(); err != nil {
		jsonFail(w, http.StatusBadRequest, "invalid form body")
		return
	}
	login := r.PostForm.Get("login")
	password := r.PostForm.Get("password")

	sess, token, err := c.gate.Login(login, password)
	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		log.Warn("login missing fields")
		jsonFail(w, http.StatusBadRequest, "login and password are required")
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		log.Warn("login failed", "login", login)
		if c.recorder != nil {
			c.recorder.LoginFailed(r.Context(), login)
		}
		http.Error(w, "Invalid login or password", http.StatusUnauthorized)
		return
	case err != nil:
		log.Error("login", "error", err)
		jsonFail(w, http.StatusInternalServerError, "internal error")
		return
	}

	auth.SetSessionCookie(w, token, c.gate.TTL(), c.secure(r))
	log.Info("operator logged in", "login", sess.Login, "session_id", sess.ID)
	if c.recorder != nil {
		c.recorder.LoginSucceeded(r.Context(), sess.Login, sess.ID)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (c *Console) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := auth.GetSession(r.Context()); sess != nil {
		c.gate.Logout(sess.ID)
		shield.GetLogger(r.Context()).Info("operator logged out", "login", sess.Login, "session_id", sess.ID)
		if c.recorder != nil {
			c.recorder.LoggedOut(r.Context(), sess.Login, sess.ID)
		}
	}
	auth.ClearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func jsonFail(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{"success": false, "message": msg})
}
