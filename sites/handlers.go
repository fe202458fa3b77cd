package sites

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"sitebeat/auth"
)

// Handlers exposes the website CRUD endpoints consumed by the dashboard. All
// of them require an authenticated owner in the request context.
type Handlers struct {
	manager *Manager
	log     zerolog.Logger
}

func NewHandlers(manager *Manager, log zerolog.Logger) *Handlers {
	return &Handlers{manager: manager, log: log.With().Str("component", "sites").Logger()}
}

func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Name           string   `json:"name"`
		Domain         string   `json:"domain"`
		AllowedOrigins []string `json:"allowed_origins"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Domain == "" {
		http.Error(w, "name and domain are required", http.StatusBadRequest)
		return
	}

	site, err := h.manager.CreateSite(ownerID, req.Name, req.Domain, req.AllowedOrigins)
	if err != nil {
		h.log.Warn().Err(err).Str("owner", ownerID).Str("domain", req.Domain).Msg("create site failed")
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	h.log.Info().Str("site_id", site.ID).Str("owner", ownerID).Msg("site created")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(site)
}

func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"websites": h.manager.ListSites(ownerID)})
}

func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	siteID := chi.URLParam(r, "siteID")
	site, err := h.manager.GetSite(siteID)
	if err != nil || site.OwnerID != ownerID {
		http.Error(w, "Website not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(site)
}

func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	siteID := chi.URLParam(r, "siteID")
	if err := h.manager.DeleteSite(ownerID, siteID); err != nil {
		http.Error(w, "Website not found", http.StatusNotFound)
		return
	}
	h.log.Info().Str("site_id", siteID).Str("owner", ownerID).Msg("site deleted")
	w.WriteHeader(http.StatusNoContent)
}
