package server

import (
	"net/http"

	"github.com/jrsteele09/go-session-login/auth"
	"github.com/jrsteele09/go-session-login/sessions"
)

// IndexPageData is the template model of the index page
type IndexPageData struct {
	AppName string
	auth.IndexView
}

// IndexHandler renders the home page from the visitor's session
func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := s.flow.Index(r.Context(), sessions.FromContext(r.Context()))
		if err != nil {
			requestLogger(r.Context()).Err(err).
				Str("path", r.URL.Path).
				Bool("has_token", s.hasSessionCookie(r)).
				Msg("Failed to read session")
			internalServerError(w)
			return
		}

		s.renderPage(w, r, templateIndex, IndexPageData{
			AppName:   s.config.GetAppName(),
			IndexView: view,
		})
	}
}
