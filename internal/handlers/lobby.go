package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

type lobbyRequest struct {
	LobbyID string `json:"lobby_id"`
}

func parseLobbyID(r *http.Request) (uuid.UUID, error) {
	var req lobbyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(req.LobbyID)
}

// CreateLobbyHandler opens a new battle lobby hosted by the caller.
//
// Request payload: { "format": "2v2" }
func CreateLobbyHandler(bs *BattleServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authedUser(r)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		var req struct {
			Format string `json:"format"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}

		lob, err := bs.Manager.CreateLobby(r.Context(), userID, req.Format)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, lob)
	}
}

// GetLobbyHandler returns one lobby snapshot. Lobby id comes from the
// "id" query parameter.
func GetLobbyHandler(bs *BattleServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := authedUser(r); err != nil {
			writeServiceError(w, err)
			return
		}
		lobbyID, err := uuid.Parse(r.URL.Query().Get("id"))
		if err != nil {
			http.Error(w, "invalid lobby id", http.StatusBadRequest)
			return
		}
		lob, version, err := bs.Manager.GetLobby(r.Context(), lobbyID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"lobby":   lob,
			"version": version,
		})
	}
}

// ListLobbiesHandler returns every lobby currently open for joins.
func ListLobbiesHandler(bs *BattleServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := authedUser(r); err != nil {
			writeServiceError(w, err)
			return
		}
		open, err := bs.Manager.ListOpenLobbies(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, open)
	}
}

// JoinLobbyHandler seats the caller in a waiting lobby.
//
// Request payload: { "lobby_id": "..." }
func JoinLobbyHandler(bs *BattleServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authedUser(r)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		lobbyID, err := parseLobbyID(r)
		if err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		lob, err := bs.Manager.JoinLobby(r.Context(), lobbyID, userID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, lob)
	}
}

// LeaveLobbyHandler removes the caller from a lobby.
func LeaveLobbyHandler(bs *BattleServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authedUser(r)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		lobbyID, err := parseLobbyID(r)
		if err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		lob, err := bs.Manager.LeaveLobby(r.Context(), lobbyID, userID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, lob)
	}
}

// RequestSearchHandler moves the caller's full lobby into matchmaking.
func RequestSearchHandler(bs *BattleServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authedUser(r)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		lobbyID, err := parseLobbyID(r)
		if err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		lob, err := bs.Manager.RequestSearch(r.Context(), lobbyID, userID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, lob)
	}
}

// CancelSearchHandler withdraws the caller's lobby from matchmaking.
func CancelSearchHandler(bs *BattleServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authedUser(r)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		lobbyID, err := parseLobbyID(r)
		if err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		lob, err := bs.Manager.CancelSearch(r.Context(), lobbyID, userID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, lob)
	}
}

// RespondToMatchHandler records the caller's accept/decline of a pairing.
//
// Request payload: { "lobby_id": "...", "accept": true }
func RespondToMatchHandler(bs *BattleServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authedUser(r)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		var req struct {
			LobbyID string `json:"lobby_id"`
			Accept  bool   `json:"accept"`
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

		lob, err := bs.Manager.RespondToMatch(r.Context(), lobbyID, userID, req.Accept)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, lob)
	}
}

// EndBattleHandler applies the external battle-ended signal.
func EndBattleHandler(bs *BattleServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := authedUser(r); err != nil {
			writeServiceError(w, err)
			return
		}
		lobbyID, err := parseLobbyID(r)
		if err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		lob, err := bs.Manager.EndBattle(r.Context(), lobbyID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, lob)
	}
}

// CooldownStatusHandler reports whether the caller is blocked from
// matchmaking, and until when.
func CooldownStatusHandler(bs *BattleServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authedUser(r)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		blocked, until, err := bs.Tracker.IsBlocked(r.Context(), userID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		resp := map[string]interface{}{"blocked": blocked}
		if blocked {
			resp["until"] = until
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
