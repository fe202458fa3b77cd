package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"sitebeat/models"
	"sitebeat/store"
)

// Handlers implements signup/login/refresh/me over the users table.
type Handlers struct {
	service *Service
	store   *store.Store
	log     zerolog.Logger
}

func NewHandlers(service *Service, st *store.Store, log zerolog.Logger) *Handlers {
	return &Handlers{service: service, store: st, log: log.With().Str("component", "auth").Logger()}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || len(req.Password) < 8 {
		http.Error(w, "email and a password of at least 8 characters are required", http.StatusBadRequest)
		return
	}

	if _, err := h.store.UserByEmail(req.Email); err == nil {
		http.Error(w, "email already registered", http.StatusConflict)
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		h.log.Error().Err(err).Msg("signup: user lookup failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.log.Error().Err(err).Msg("signup: hash failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	userUUID, err := uuid.NewV7()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	userID := userUUID.String()
	user := models.User{
		UserID:       userID,
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.store.CreateUser(user); err != nil {
		h.log.Error().Err(err).Msg("signup: create user failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.log.Info().Str("user_id", userID).Msg("user signed up")
	h.respondWithTokens(w, http.StatusCreated, userID)
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	user, err := h.store.UserByEmail(req.Email)
	if err != nil {
		// Same response as a wrong password; do not reveal which one failed.
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	h.respondWithTokens(w, http.StatusOK, user.UserID)
}

func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		http.Error(w, "refresh_token is required", http.StatusBadRequest)
		return
	}

	userID, err := h.service.Verify(req.RefreshToken, TokenTypeRefresh)
	if err != nil {
		http.Error(w, "invalid or expired refresh token", http.StatusUnauthorized)
		return
	}
	// The account may have been removed since the token was issued.
	if _, err := h.store.UserByID(userID); err != nil {
		http.Error(w, "invalid or expired refresh token", http.StatusUnauthorized)
		return
	}

	h.respondWithTokens(w, http.StatusOK, userID)
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	user, err := h.store.UserByID(userID)
	if err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

func (h *Handlers) respondWithTokens(w http.ResponseWriter, status int, userID string) {
	pair, err := h.service.IssuePair(userID)
	if err != nil {
		h.log.Error().Err(err).Msg("token issuance failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(pair)
}
