package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSPAHandler(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "assets"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "assets", "app.js"), []byte("console.log(1)"), 0o644); err != nil {
		t.Fatal(err)
	}

	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "api")
	})
	h := SPAHandler(api, dir)

	tests := []struct {
		name, method, path, want string
	}{
		{"root serves index", http.MethodGet, "/", "<html>app</html>"},
		{"client route serves index", http.MethodGet, "/track/DW-ABCD-EFGH", "<html>app</html>"},
		{"asset served", http.MethodGet, "/assets/app.js", "console.log(1)"},
		{"traversal stays in dir", http.MethodGet, "/../../etc/passwd", "<html>app</html>"},
		{"dotdot client route serves index", http.MethodGet, "/track/../report", "<html>app</html>"},
		{"api passed through", http.MethodGet, "/api/reports", "api"},
		{"health passed through", http.MethodGet, "/healthz", "api"},
		{"non-GET passed through", http.MethodPost, "/submit", "api"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if got := strings.TrimSpace(rec.Body.String()); got != tt.want {
				t.Errorf("body = %q, want %q", got, tt.want)
			}
		})
	}
}
