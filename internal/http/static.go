package http

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// contentTypes maps the extensions the dashboard actually ships.
var contentTypes = map[string]string{
	".html": "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".json": "application/json",
	".md":   "text/markdown",
	".png":  "image/png",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
}

// StaticHandler serves the dashboard files from a fixed document root.
// "/" maps to index.html; path traversal is rejected with 403.
type StaticHandler struct {
	root string
}

// NewStaticHandler creates a handler rooted at dir.
func NewStaticHandler(dir string) *StaticHandler {
	return &StaticHandler{root: dir}
}

func (s *StaticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/")
	if name == "" {
		name = "index.html"
	}

	if strings.Contains(name, "..") {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	// path.Clean catches traversal spelled without literal "..", e.g. "a/../../b"
	// already collapsed by the router, and absolute escapes.
	clean := path.Clean("/" + name)
	full := filepath.Join(s.root, filepath.FromSlash(clean))

	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "File not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	ct := contentTypes[strings.ToLower(filepath.Ext(full))]
	if ct == "" {
		ct = "text/html"
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
