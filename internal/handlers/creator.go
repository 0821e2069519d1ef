package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/versus-live/versus/internal/auth"
	"github.com/versus-live/versus/internal/models"
	"github.com/versus-live/versus/internal/store"
)

// CreateCreatorHandler registers a creator account.
//
// Request payload: { "handle": "...", "display_name": "...", "password": "..." }
func CreateCreatorHandler(bs *BattleServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Handle      string `json:"handle"`
			DisplayName string `json:"display_name"`
			Password    string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if req.Handle == "" || req.Password == "" {
			http.Error(w, "handle and password are required", http.StatusBadRequest)
			return
		}

		if _, err := bs.Creators.GetByHandle(r.Context(), req.Handle); err == nil {
			http.Error(w, "handle already taken", http.StatusConflict)
			return
		} else if !errors.Is(err, store.ErrNotFound) {
			http.Error(w, fmt.Sprintf("failed to check handle: %v", err), http.StatusInternalServerError)
			return
		}

		hashed, err := auth.CreateHash(req.Password, auth.Params)
		if err != nil {
			http.Error(w, "failed to hash password", http.StatusInternalServerError)
			return
		}
		creator := &models.Creator{
			ID:          uuid.New(),
			Handle:      req.Handle,
			DisplayName: req.DisplayName,
			Password:    hashed,
		}
		if err := bs.Creators.Create(r.Context(), creator); err != nil {
			http.Error(w, fmt.Sprintf("failed to create creator: %v", err), http.StatusInternalServerError)
			return
		}

		creator.Password = ""
		writeJSON(w, http.StatusCreated, creator)
	}
}

// LoginHandler verifies credentials and sets the auth_token session cookie.
func LoginHandler(bs *BattleServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Handle   string `json:"handle"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}

		creator, err := bs.Creators.GetByHandle(r.Context(), req.Handle)
		if err != nil {
			http.Error(w, "invalid credentials", http.StatusForbidden)
			return
		}
		ok, err := auth.ComparePasswordAndHash(req.Password, creator.Password)
		if err != nil || !ok {
			http.Error(w, "invalid credentials", http.StatusForbidden)
			return
		}

		token, err := auth.CreateJWT(creator.ID.String())
		if err != nil {
			http.Error(w, "failed to create session", http.StatusInternalServerError)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     "auth_token",
			Value:    token,
			Path:     "/",
			HttpOnly: true,
		})

		creator.Password = ""
		writeJSON(w, http.StatusOK, creator)
	}
}
