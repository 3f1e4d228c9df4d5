package sessions

import (
	"context"
	"maps"
	"net/http"
	"sync"

	"github.com/jrsteele09/go-session-login/internal/utils"
	"github.com/rs/zerolog/log"
)

type contextKey string

const handleKey contextKey = "session"

// Handle is the request-scoped view of a visitor's session. It holds the
// values loaded when the request arrived and writes through to the store.
type Handle struct {
	store *Store

	mu     sync.Mutex
	token  string         // live token, empty until the visitor has a session
	values map[string]any // snapshot taken at load time plus this request's writes
	stale  bool           // the request presented a token that names no session
}

// Token returns the live session token, or "" when the visitor has none
func (h *Handle) Token() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.token
}

// Get returns the value stored under key; missing keys are absent, not errors.
func (h *Handle) Get(_ context.Context, key string) (any, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.values[key]
	return v, ok, nil
}

// Set stores value under key, creating the session if the visitor has none.
func (h *Handle) Set(ctx context.Context, key string, value any) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	token, err := h.store.Set(ctx, h.token, key, value)
	if err != nil {
		return err
	}
	if token != h.token {
		// The old session is gone; nothing from it carries over.
		h.values = make(map[string]any)
	}
	h.token = token
	h.values[key] = value
	h.stale = false
	return nil
}

// Bool returns the boolean stored under key; missing or non-bool values read as false.
func (h *Handle) Bool(key string) bool {
	v, _, _ := h.Get(context.Background(), key)
	return utils.ValueAs[bool](v)
}

// String returns the string stored under key, or "".
func (h *Handle) String(key string) string {
	v, _, _ := h.Get(context.Background(), key)
	return utils.ValueAs[string](v)
}

func (h *Handle) cookieState() (token string, stale bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.token, h.stale
}

// FromContext returns the session handle attached by LoadAndSave, or nil.
func FromContext(ctx context.Context) *Handle {
	h, _ := ctx.Value(handleKey).(*Handle)
	return h
}

// LoadAndSave resolves the session cookie, attaches a Handle to the request
// context and emits the cookie before the response header goes out: refreshed
// for a live or newly created session, cleared for a stale one. A store
// failure is answered with 500 rather than treating the visitor as anonymous.
func (s *Store) LoadAndSave(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var token string
		if c, err := r.Cookie(s.cookie.Name); err == nil {
			token = c.Value
		}

		session, err := s.Load(r.Context(), token)
		if err != nil {
			log.Err(err).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Bool("has_token", token != "").
				Msg("Failed to load session")
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		h := &Handle{store: s, values: make(map[string]any)}
		switch {
		case session != nil:
			h.token = session.Token
			h.values = maps.Clone(session.Values)
			log.Debug().Object("session", session).Str("path", r.URL.Path).Msg("session loaded")
		case token != "":
			h.stale = true
		}

		sw := &sessionWriter{ResponseWriter: w, store: s, handle: h}
		next(sw, r.WithContext(context.WithValue(r.Context(), handleKey, h)))
		sw.commit()
	}
}

// sessionWriter wraps http.ResponseWriter to emit the session cookie just
// before the header is written
type sessionWriter struct {
	http.ResponseWriter
	store     *Store
	handle    *Handle
	committed bool
}

func (w *sessionWriter) commit() {
	if w.committed {
		return
	}
	w.committed = true

	token, stale := w.handle.cookieState()
	switch {
	case token != "":
		setCookie(w.ResponseWriter, token, w.store.idle, w.store.cookie)
	case stale:
		clearCookie(w.ResponseWriter, w.store.cookie)
	}
}

func (w *sessionWriter) WriteHeader(code int) {
	w.commit()
	w.ResponseWriter.WriteHeader(code)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	w.commit()
	return w.ResponseWriter.Write(b)
}

func (w *sessionWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
