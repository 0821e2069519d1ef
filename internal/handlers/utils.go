package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/versus-live/versus/internal/auth"
	"github.com/versus-live/versus/internal/cooldown"
	"github.com/versus-live/versus/internal/invite"
	"github.com/versus-live/versus/internal/lobby"
	"github.com/versus-live/versus/internal/store"
)

var errUnauthenticated = errors.New("missing or invalid auth_token")

// extractCookieToken extracts a named cookie value from the Cookie header.
func extractCookieToken(cookieHeader, cookieName string) string {
	parts := strings.Split(cookieHeader, cookieName+"=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}

// authedUser authenticates the request's auth_token cookie and returns the
// caller's user id.
func authedUser(r *http.Request) (uuid.UUID, error) {
	cookieHeader := r.Header.Get("Cookie")
	if !strings.Contains(cookieHeader, "auth_token=") {
		return uuid.Nil, errUnauthenticated
	}
	token := extractCookieToken(cookieHeader, "auth_token")
	userIDStr, err := auth.AuthenticateJWT(token)
	if err != nil {
		return uuid.Nil, errUnauthenticated
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return uuid.Nil, errUnauthenticated
	}
	return userID, nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
// Blocked users get an actionable message naming who is blocked and until when.
func writeServiceError(w http.ResponseWriter, err error) {
	var blocked *cooldown.BlockedError
	if errors.As(err, &blocked) {
		http.Error(w, fmt.Sprintf("user %s is blocked from matchmaking until %s",
			blocked.UserID, blocked.Until.Format("15:04:05 MST")), http.StatusForbidden)
		return
	}

	switch {
	case errors.Is(err, errUnauthenticated):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, store.ErrVersionConflict):
		// Retries exhausted; the client may simply try again.
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, lobby.ErrLobbyFull),
		errors.Is(err, lobby.ErrInvalidState),
		errors.Is(err, lobby.ErrRosterIncomplete),
		errors.Is(err, lobby.ErrAlreadyMember),
		errors.Is(err, invite.ErrAlreadyInvited),
		errors.Is(err, invite.ErrResolved):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, lobby.ErrNotHost),
		errors.Is(err, lobby.ErrNotMember),
		errors.Is(err, invite.ErrNotInvitee):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, invite.ErrLobbyUnavailable):
		http.Error(w, err.Error(), http.StatusGone)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
