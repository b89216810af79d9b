package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// apiPrefixes are always passed to the API handler.
var apiPrefixes = []string{"/api/", "/healthz", "/readyz", "/metrics"}

// SPAHandler serves a single page application from staticDir and hands API
// and ops paths to next. Paths that are not files under staticDir get
// index.html so client-side routes such as /track/DW-XXXX-XXXX load.
func SPAHandler(next http.Handler, staticDir string) http.Handler {
	files := http.FileServer(http.Dir(staticDir))
	index := filepath.Join(staticDir, "index.html")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range apiPrefixes {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}

		path := filepath.Join(staticDir, filepath.FromSlash(filepath.Clean("/"+r.URL.Path)))
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			serveIndex(w, r, index)
			return
		}
		files.ServeHTTP(w, r)
	})
}

// serveIndex writes index.html regardless of the request path. ServeFile
// would reject paths containing ".." before looking at the file.
func serveIndex(w http.ResponseWriter, r *http.Request, index string) {
	f, err := os.Open(index)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	http.ServeContent(w, r, "index.html", info.ModTime(), f)
}
