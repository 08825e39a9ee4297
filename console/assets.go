package console

import (
	_ "embed"
	"net/http"
)

//go:embed static/console.js
var consoleJS []byte

//go:embed static/console.css
var consoleCSS []byte

func (c *Console) handleJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(consoleJS)
}

func (c *Console) handleCSS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(consoleCSS)
}
