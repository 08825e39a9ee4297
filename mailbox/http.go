package mailbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/hazyhaar/mailbox/extract"
	"github.com/hazyhaar/mailbox/shield"
)

// DefaultMaxPageBytes caps an ingested page body (8 MiB).
const DefaultMaxPageBytes int64 = 8 << 20

const maxTextBytes int64 = 64 * 1024

// Handler serves the agent-facing API: page ingestion and the message
// exchange. None of these routes require an operator session; knowing a
// client identifier is enough to read or write its mailbox.
type Handler struct {
	store        *Store
	maxPageBytes int64
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithMaxPageBytes overrides DefaultMaxPageBytes.
func WithMaxPageBytes(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxPageBytes = n
		}
	}
}

// NewHandler creates the API handler over store.
func NewHandler(store *Store, opts ...HandlerOption) *Handler {
	h := &Handler{store: store, maxPageBytes: DefaultMaxPageBytes}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Routes returns the /api sub-router. Mount it with r.Mount("/api", h.Routes()).
// Both the trailing-slash and bare paths are served.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))
	r.Use(RecoverJSON)

	r.Post("/receive-page/", h.handleReceivePage)
	r.Post("/receive-page", h.handleReceivePage)
	r.Get("/data/", h.handleGetData)
	r.Get("/data", h.handleGetData)
	r.Post("/data/", h.handlePostData)
	r.Post("/data", h.handlePostData)
	return r
}

type receivePageRequest struct {
	ClientID json.RawMessage `json:"client_id"`
	HTML     json.RawMessage `json:"html"`
	URL      json.RawMessage `json:"url"`
	Title    json.RawMessage `json:"title"`
}

// handleReceivePage stores a page snapshot. The body is decoded as JSON
// whatever its Content-Type, since agents injected into third-party pages
// often send text/plain to avoid CORS preflights.
func (h *Handler) handleReceivePage(w http.ResponseWriter, r *http.Request) {
	log := shield.GetLogger(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, h.maxPageBytes)

	var req receivePageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Warn("page too large", "limit", tooLarge.Limit)
			fail(w, http.StatusRequestEntityTooLarge, "page too large")
			return
		}
		log.Warn("invalid page body", "error", err)
		fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	clientID := coerceString(req.ClientID)
	if clientID == "" {
		clientID = DefaultClientID
	}
	html, ok := stringField(req.HTML)
	if !ok {
		fail(w, http.StatusBadRequest, "html must be a string")
		return
	}
	if html == "" {
		log.Warn("empty html", "client_id", clientID)
		fail(w, http.StatusBadRequest, "html is required")
		return
	}
	pageURL, _ := stringField(req.URL)
	title, _ := stringField(req.Title)
	if title == "" {
		title = extract.Title(html)
	}

	snap, err := h.store.PutSnapshot(Snapshot{
		ClientID: clientID,
		HTML:     html,
		URL:      pageURL,
		Title:    title,
	})
	if err != nil {
		// PutSnapshot only fails validation, which was checked above.
		log.Error("store snapshot", "client_id", clientID, "error", err)
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info("page received", "client_id", snap.ClientID, "url", snap.URL, "bytes", len(snap.HTML))
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    map[string]string{"id": snap.ClientID},
	})
}

func (h *Handler) handleGetData(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		shield.GetLogger(r.Context()).Warn("missing client_id")
		fail(w, http.StatusBadRequest, "client_id is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"text":    h.store.Message(clientID),
	})
}

func (h *Handler) handlePostData(w http.ResponseWriter, r *http.Request) {
	log := shield.GetLogger(r.Context())
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		log.Warn("missing client_id")
		fail(w, http.StatusBadRequest, "client_id is required")
		return
	}

	text, err := readText(w, r)
	if err != nil {
		log.Warn("invalid message body", "client_id", clientID, "error", err)
		fail(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.PutMessage(clientID, text); err != nil {
		if errors.Is(err, ErrEmptyText) {
			log.Warn("empty text", "client_id", clientID)
			fail(w, http.StatusBadRequest, "text is required")
			return
		}
		log.Error("store message", "client_id", clientID, "error", err)
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info("message stored", "client_id", clientID, "text", preview(text, 50))
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "text saved",
	})
}

// readText extracts the message text from a JSON, urlencoded or multipart
// body.
func readText(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxTextBytes)

	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "application/json" || strings.HasSuffix(mt, "+json") {
		var body struct {
			Text json.RawMessage `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return "", fmt.Errorf("invalid JSON body")
		}
		text, ok := stringField(body.Text)
		if !ok {
			return "", fmt.Errorf("text must be a string")
		}
		return text, nil
	}
	// ParseMultipartForm parses urlencoded bodies first and reports
	// ErrNotMultipart for them.
	if err := r.ParseMultipartForm(maxTextBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return "", fmt.Errorf("invalid form body")
	}
	return r.PostForm.Get("text"), nil
}

// coerceString renders any JSON scalar as a string: strings verbatim,
// numbers by their literal text, null or absent as "".
func coerceString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// stringField decodes an optional JSON string. Absent or null yields ("", true);
// any other non-string value yields ok=false.
func stringField(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// RecoverJSON turns a panic in a downstream handler into a 500 JSON failure
// so a single bad request never takes the process down.
func RecoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				shield.GetLogger(r.Context()).Error("handler panic", "panic", fmt.Sprint(rec))
				fail(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func fail(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"success": false, "message": msg})
}
