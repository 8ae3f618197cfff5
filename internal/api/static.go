package api

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

const noFrontendMessage = "Backend is running. Build frontend to serve UI from this domain."

// spaFallback serves the built dashboard from dist, falling back to
// index.html for client-side routes. Unknown /api paths get a JSON 404.
func spaFallback(dist string) gin.HandlerFunc {
	fs := http.Dir(dist)
	_, statErr := os.Stat(filepath.Join(dist, "index.html"))
	built := dist != "" && statErr == nil

	return func(c *gin.Context) {
		p := c.Request.URL.Path
		if p == "/api" || strings.HasPrefix(p, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "API route not found"})
			return
		}
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Status(http.StatusNotFound)
			return
		}
		if !built {
			if p == "/" {
				c.String(http.StatusOK, noFrontendMessage)
				return
			}
			c.Status(http.StatusNotFound)
			return
		}

		clean := path.Clean("/" + p)
		if f, err := fs.Open(clean); err == nil {
			info, statErr := f.Stat()
			f.Close()
			if statErr == nil && !info.IsDir() {
				c.FileFromFS(clean, fs)
				return
			}
		}
		c.File(filepath.Join(dist, "index.html"))
	}
}
