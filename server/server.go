package server

import (
	"fmt"
	"io/fs"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-session-login/auth"
	"github.com/jrsteele09/go-session-login/internal/config"
	"github.com/jrsteele09/go-session-login/sessions"
	"github.com/rs/zerolog/log"
)

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	sessions *sessions.Store
	flow     *auth.Flow
	renderer *Renderer
	pages    fs.FS
}

// Option defines a function type to modify the Server instance.
type Option func(*Server)

// WithTemplates replaces the embedded page templates
func WithTemplates(fsys fs.FS) Option {
	return func(s *Server) {
		s.pages = fsys
	}
}

func New(config config.Config, store *sessions.Store, flow *auth.Flow, options ...Option) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("[Server New] session store is required")
	}
	if flow == nil {
		return nil, fmt.Errorf("[Server New] auth flow is required")
	}

	s := &Server{
		env:      config.GetEnv(),
		mux:      http.NewServeMux(),
		config:   config,
		sessions: store,
		flow:     flow,
		pages:    TemplateFilesFS(),
	}
	for _, opt := range options {
		opt(s)
	}

	renderer, err := NewRenderer(s.pages, templateIndex, templateLogin)
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to parse templates: %w", err)
	}
	s.renderer = renderer

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// Routes returns the registered route patterns in registration order
func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

func (s *Server) logRoutes() {
	if s.env != config.EnvDev {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Info().Msgf("[%-19s] %s", colourMethod(method), path)
}

// hasSessionCookie reports whether the request presented a session token
func (s *Server) hasSessionCookie(r *http.Request) bool {
	c, err := r.Cookie(s.sessions.CookieName())
	return err == nil && c.Value != ""
}
