package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

// SendInviteHandler invites another creator to the caller's lobby.
//
// Request payload: { "lobby_id": "...", "invitee_id": "..." }
func SendInviteHandler(bs *BattleServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authedUser(r)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		var req struct {
			LobbyID   string `json:"lobby_id"`
			InviteeID string `json:"invitee_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		lobbyID, err := uuid.Parse(req.LobbyID)
		if err != nil {
			http.Error(w, "invalid lobby_id", http.StatusBadRequest)
			return
		}
		inviteeID, err := uuid.Parse(req.InviteeID)
		if err != nil {
			http.Error(w, "invalid invitee_id", http.StatusBadRequest)
			return
		}
		if inviteeID == userID {
			http.Error(w, "cannot invite yourself", http.StatusBadRequest)
			return
		}

		inv, err := bs.Invites.Invite(r.Context(), lobbyID, userID, inviteeID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, inv)
	}
}

type inviteActionRequest struct {
	InvitationID string `json:"invitation_id"`
}

// AcceptInviteHandler accepts an invitation addressed to the caller and
// seats them in the lobby.
func AcceptInviteHandler(bs *BattleServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authedUser(r)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		var req inviteActionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		invitationID, err := uuid.Parse(req.InvitationID)
		if err != nil {
			http.Error(w, "invalid invitation_id", http.StatusBadRequest)
			return
		}

		inv, err := bs.Invites.Accept(r.Context(), invitationID, userID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, inv)
	}
}

// DeclineInviteHandler declines an invitation addressed to the caller.
func DeclineInviteHandler(bs *BattleServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authedUser(r)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		var req inviteActionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		invitationID, err := uuid.Parse(req.InvitationID)
		if err != nil {
			http.Error(w, "invalid invitation_id", http.StatusBadRequest)
			return
		}

		inv, err := bs.Invites.Decline(r.Context(), invitationID, userID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, inv)
	}
}
