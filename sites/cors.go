package sites

import (
	"net/http"

	"github.com/rs/zerolog"
)

// CollectCORS handles cross-origin requests on the collection endpoint. The
// tracking script runs on customer pages, so any origin may post; when a site
// has registered allowed origins the request origin must be one of them.
func CollectCORS(manager *Manager, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Site-ID")
			w.Header().Set("Access-Control-Allow-Credentials", "true")

			// Handle preflight OPTIONS request
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			if siteID := r.Header.Get("X-Site-ID"); siteID != "" {
				site, err := manager.GetSite(siteID)
				if err == nil && len(site.AllowedOrigins) > 0 {
					allowed := false
					for _, allowedOrigin := range site.AllowedOrigins {
						if allowedOrigin == origin {
							allowed = true
							break
						}
					}
					if !allowed {
						log.Warn().Str("origin", origin).Str("site_id", siteID).
							Str("remote", r.RemoteAddr).Msg("CORS: origin not allowed for site")
						w.WriteHeader(http.StatusForbidden)
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
