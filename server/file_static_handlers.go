package server

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

//go:embed static/*
var staticFiles embed.FS

// servedAssets is the allowlist of files reachable under /_assets/
var servedAssets = map[string]bool{
	"theme.css":   true,
	"favicon.svg": true,
}

func StaticFilesFS() fs.FS {
	// Create the sub filesystem once
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic("Failed to create sub filesystem: " + err.Error())
	}

	return subFS
}

// AssetHandler serves the packaged stylesheet and icon. Any other name is a
// 404 with an empty body.
func (s *Server) AssetHandler() http.HandlerFunc {
	fsys := StaticFilesFS()

	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if !servedAssets[name] {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		if err := StreamFile(w, fsys, name); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			requestLogger(r.Context()).Err(err).Str("asset", name).Msg("Failed to stream asset")
		}
	}
}

// StreamFile writes fileName from fsys with a content type derived from its extension.
func StreamFile(w http.ResponseWriter, fsys fs.FS, fileName string) error {
	data, err := fs.ReadFile(fsys, fileName)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", fileName, err)
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	ctype := mime.TypeByExtension(ext)
	if ctype == "" {
		// Fallback for unknown extensions
		ctype = http.DetectContentType(data)
	}
	// Ensure UTF-8 for text types when not present
	if strings.HasPrefix(ctype, "text/") && !strings.Contains(strings.ToLower(ctype), "charset=") {
		ctype += "; charset=utf-8"
	}
	w.Header().Set("Content-Type", ctype)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write %s content: %w", fileName, err)
	}
	return nil
}
