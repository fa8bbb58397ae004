package api

import (
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/harrylevesque/makerdash/internal/utils"
	"github.com/harrylevesque/makerdash/internal/web"
)

// spaHandler serves a single page app: existing files as they are, every
// other path as index.html so client routes survive a reload.
type spaHandler struct {
	root       fs.FS
	fileServer http.Handler
}

func newSPAHandler(staticDir string, logger *zap.Logger) *spaHandler {
	root := web.FS()
	if staticDir != "" {
		if dir, ok := findBuildDir(staticDir); ok {
			root = os.DirFS(dir)
			logger.Info("serving frontend build", zap.String("dir", dir))
		} else {
			logger.Info("frontend build not found, serving embedded dashboard", zap.String("dir", staticDir))
		}
	}
	return &spaHandler{root: root, fileServer: http.FileServer(http.FS(root))}
}

// findBuildDir looks for index.html in dir and, for a relative dir, under the
// module root as well so `go run` works from any subdirectory.
func findBuildDir(dir string) (string, bool) {
	candidates := []string{dir}
	if !filepath.IsAbs(dir) {
		candidates = append(candidates, filepath.Join(utils.GetProjectRoot(), dir))
	}
	for _, c := range candidates {
		if _, err := os.Stat(filepath.Join(c, "index.html")); err == nil {
			return c, true
		}
	}
	return "", false
}

func (h *spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}
	name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	if name != "" && name != "index.html" {
		if info, err := fs.Stat(h.root, name); err == nil && !info.IsDir() {
			h.fileServer.ServeHTTP(w, r)
			return
		}
	}
	h.serveIndex(w)
}

func (h *spaHandler) serveIndex(w http.ResponseWriter) {
	page, err := fs.ReadFile(h.root, "index.html")
	if err != nil {
		http.Error(w, "index.html not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(page)
}
