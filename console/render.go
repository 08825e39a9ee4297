package console

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/hazyhaar/mailbox/auth"
	"github.com/hazyhaar/mailbox/extract"
	"github.com/hazyhaar/mailbox/mailbox"
	"github.com/hazyhaar/mailbox/shield"
)

// noMessageText is shown for clients that were never sent a message. It is
// console wording only; agents polling such a client get mailbox.WaitingText.
const noMessageText = "No message sent yet"

// clientView is the template projection of a mailbox.Entry.
type clientView struct {
	ClientID   string
	URL        string
	SafeURL    bool
	Title      string
	CapturedAt string
	Message    string
	HasPage    bool

	// Preview is captured markup for the iframe srcdoc attribute. It is a
	// plain string on purpose: html/template escapes it as an attribute
	// value (quotes, angle brackets, ampersands) and the browser decodes it
	// back into the iframe document. Never convert it to template.HTML.
	Preview     string
	PreviewText string
}

var indexTmpl = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en"><head><meta charset="UTF-8"><meta name="viewport" content="width=device-width,initial-scale=1">
<title>{{.Heading}}</title>
<link rel="stylesheet" href="/static/console.css">
</head><body>
<header><h1>{{.Heading}}</h1><span class="who">{{.Operator}} &middot; <a href="/logout">Log out</a></span></header>
{{- if eq (len .Clients) 0}}
<p class="empty">No pages received yet.</p>
{{- end}}
{{- range .Clients}}
<section class="client" data-client-id="{{.ClientID}}">
<h2>Client ID: {{.ClientID}}</h2>
{{- if .HasPage}}
<p><strong>URL:</strong> {{if .SafeURL}}<a href="{{.URL}}" rel="noopener noreferrer" target="_blank">{{.URL}}</a>{{else}}{{.URL}}{{end}}</p>
<p><strong>Title:</strong> {{.Title}}</p>
<p class="timestamp"><strong>Received:</strong> {{.CapturedAt}}</p>
{{- end}}
<p><strong>Current message:</strong> <span class="current">{{.Message}}</span></p>
{{- if .HasPage}}
<div class="preview">
<h3>Page preview</h3>
{{- if .PreviewText}}
<pre class="text-preview">{{.PreviewText}}</pre>
{{- else}}
<iframe sandbox="" srcdoc="{{.Preview}}" title="Page preview for {{.ClientID}}"></iframe>
{{- end}}
</div>
{{- else}}
<p class="empty">No page received for this client.</p>
{{- end}}
<form class="send" method="post" action="/api/data/?client_id={{.ClientID}}">
<input type="text" name="text" placeholder="Message for client {{.ClientID}}" required>
<button type="submit">Send</button>
</form>
</section>
{{- end}}
<script src="/static/console.js"></script>
</body></html>`))

func (c *Console) handleIndex(w http.ResponseWriter, r *http.Request) {
	entries := c.store.List()
	views := make([]clientView, 0, len(entries))
	for _, e := range entries {
		views = append(views, c.view(r, e))
	}

	operator := ""
	if s := auth.GetSession(r.Context()); s != nil {
		operator = s.Login
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	err := indexTmpl.Execute(w, struct {
		Heading  string
		Operator string
		Clients  []clientView
	}{
		Heading:  c.heading,
		Operator: operator,
		Clients:  views,
	})
	if err != nil {
		shield.GetLogger(r.Context()).Error("render console", "error", err)
	}
}

func (c *Console) view(r *http.Request, e mailbox.Entry) clientView {
	v := clientView{ClientID: e.ClientID, Message: noMessageText}
	if e.HasMessage {
		v.Message = e.Message
	}
	if e.Snapshot == nil {
		return v
	}

	s := e.Snapshot
	v.HasPage = true
	v.URL = s.URL
	v.SafeURL = isSafeURL(s.URL)
	v.Title = s.Title
	v.CapturedAt = s.CapturedAt.Format("2006-01-02 15:04:05")

	switch c.preview {
	case PreviewSanitized:
		v.Preview = extract.Sanitize(s.HTML)
	case PreviewText:
		md, err := extract.Markdown(s.HTML, s.URL)
		if err != nil {
			shield.GetLogger(r.Context()).Warn("markdown preview", "client_id", e.ClientID, "error", err)
			v.Preview = s.HTML
			break
		}
		v.PreviewText = md
	default:
		v.Preview = s.HTML
	}
	return v
}

// isSafeURL returns true if the URL uses http or https scheme.
func isSafeURL(u string) bool {
	lower := strings.ToLower(u)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
