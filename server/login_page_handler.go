package server

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-session-login/auth"
	apperrors "github.com/jrsteele09/go-session-login/internal/errors"
	"github.com/jrsteele09/go-session-login/sessions"
)

const msgLoginRejected = "Invalid username or password"

// LoginPageData contains data for rendering the login page
type LoginPageData struct {
	AppName string
	auth.LoginView
	Error    string
	Username string // Preserve username on error
}

// LoginPageUIHandler displays the login page (GET /login). It never touches the session.
func (s *Server) LoginPageUIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.renderPage(w, r, templateLogin, LoginPageData{
			AppName:   s.config.GetAppName(),
			LoginView: s.flow.LoginPage(),
			Error:     r.URL.Query().Get("error"),
			Username:  r.URL.Query().Get("username"),
		})
	}
}

// LoginSubmissionHandler processes the login form submission (POST /login)
func (s *Server) LoginSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Parse form data
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		form := auth.LoginForm{
			Username: r.PostFormValue("username"),
			Password: r.PostFormValue("password"),
		}

		err := s.flow.SubmitLogin(r.Context(), sessions.FromContext(r.Context()), form)
		switch {
		case errors.Is(err, apperrors.ErrInvalidCredentials):
			s.renderLoginError(w, r, msgLoginRejected, form.Username)
		case err != nil:
			requestLogger(r.Context()).Err(err).
				Str("path", r.URL.Path).
				Bool("has_token", s.hasSessionCookie(r)).
				Msg("Failed to submit login")
			internalServerError(w)
		default:
			http.Redirect(w, r, RouteIndex, http.StatusFound)
		}
	}
}

// renderLoginError redirects to login page with an error message
func (s *Server) renderLoginError(w http.ResponseWriter, r *http.Request, errorMsg, username string) {
	// Build redirect URL with error and username parameters
	redirectURL := RouteLogin + "?error=" + url.QueryEscape(errorMsg)
	if username != "" {
		redirectURL += "&username=" + url.QueryEscape(username)
	}
	http.Redirect(w, r, redirectURL, http.StatusFound)
}
