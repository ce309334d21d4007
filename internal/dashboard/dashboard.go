// Package dashboard serves the embedded status widget. Until the startup
// health gate passes it doubles as the "server is not ready yet" page,
// answering 503 with a Retry-After hint so load balancers and browsers
// back off and retry.
package dashboard

import (
	"embed"
	"io/fs"
	"net/http"
	"strings"
)

//go:embed assets
var assets embed.FS

const retryAfterSeconds = "30"

// Handler returns an HTTP handler serving the embedded status page. The
// ready callback reports whether the application has passed its startup
// gate; while it returns false every page response carries 503.
func Handler(ready func() bool) http.Handler {
	sub, err := fs.Sub(assets, "assets")
	if err != nil {
		panic(err)
	}
	files := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Scripts and styles are served normally so the page can render
		// while the server is still starting up.
		if isAsset(r.URL.Path) {
			files.ServeHTTP(w, r)
			return
		}

		page, err := fs.ReadFile(sub, "index.html")
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if ready == nil || !ready() {
			w.Header().Set("Retry-After", retryAfterSeconds)
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		w.Write(page)
	})
}

func isAsset(path string) bool {
	return strings.HasSuffix(path, ".js") || strings.HasSuffix(path, ".css")
}
