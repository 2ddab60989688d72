package server

import (
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/playperu/tourcast/internal/assets"
)

const assetsRoute = "/api/assets/"

// handleAsset redirects an asset URL to a short-lived signed storage URL.
// Only live file objects and version copies can be addressed.
func handleAsset(store assets.Store, ttl time.Duration, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, assetsRoute)
		if key == "" || path.Clean(key) != key ||
			!(strings.HasPrefix(key, "files/") || strings.HasPrefix(key, "versions/")) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}

		ok, err := store.Exists(r.Context(), key)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, "not found")
			return
		}

		u, err := store.SignedURL(r.Context(), key, ttl)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		http.Redirect(w, r, u, http.StatusFound)
	}
}
