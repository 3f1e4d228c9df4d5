package server

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"io/fs"
	"net/http"

	apperrors "github.com/jrsteele09/go-session-login/internal/errors"
)

const contentTypeHTML = "text/html; charset=utf-8"

//go:embed templates/*
var templateFiles embed.FS

func TemplateFilesFS() fs.FS {
	// Create the sub filesystem once
	subFS, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		panic("Failed to create templates sub filesystem: " + err.Error())
	}
	return subFS
}

// ParseTemplate parses a template from the given filesystem
func ParseTemplate(fsys fs.FS, name string) (*template.Template, error) {
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, err
	}
	return template.New(name).Parse(string(content))
}

// Renderer holds the parsed page templates.
type Renderer struct {
	templates map[string]*template.Template
}

// NewRenderer parses every named template once, at startup.
func NewRenderer(fsys fs.FS, names ...string) (*Renderer, error) {
	r := &Renderer{templates: make(map[string]*template.Template, len(names))}
	for _, name := range names {
		tmpl, err := ParseTemplate(fsys, name)
		if err != nil {
			return nil, apperrors.Wrapf(err, "parsing %s", name)
		}
		r.templates[name] = tmpl
	}
	return r, nil
}

// Render executes the named template into w. A failed execution may leave
// partial output behind, so callers writing to a response buffer first.
func (r *Renderer) Render(w io.Writer, name string, data any) error {
	tmpl, ok := r.templates[name]
	if !ok {
		return apperrors.Wrapf(apperrors.ErrTemplateNotFound, "%s", name)
	}
	if err := tmpl.Execute(w, data); err != nil {
		return apperrors.Wrapf(err, "executing %s", name)
	}
	return nil
}

// renderPage renders a full page, answering with a generic 500 page when the
// template cannot be executed.
func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, name string, data any) {
	var buf bytes.Buffer
	if err := s.renderer.Render(&buf, name, data); err != nil {
		requestLogger(r.Context()).Err(err).
			Str("template", name).
			Str("path", r.URL.Path).
			Bool("has_token", s.hasSessionCookie(r)).
			Msg("Failed to render page")
		internalServerError(w)
		return
	}

	w.Header().Set("Content-Type", contentTypeHTML)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// internalServerError writes the generic error page; details stay in the log
func internalServerError(w http.ResponseWriter) {
	http.Error(w, "500 - Internal Server Error", http.StatusInternalServerError)
}
