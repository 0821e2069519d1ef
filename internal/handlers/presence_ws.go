package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/versus-live/versus/internal/presence"
	"github.com/versus-live/versus/internal/store"
)

// PresenceWSHandler subscribes a client to its lobby's presence topic and to
// its own invitation topic, forwarding every event down the socket. Events
// carry the lobby version; clients drop anything not newer than what they
// already applied, which makes at-least-once delivery safe.
func PresenceWSHandler(logger *logrus.Logger, bs *BattleServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lobbyIDStr := strings.TrimPrefix(r.URL.Path, "/presence/ws/")
		lobbyID, err := uuid.Parse(strings.TrimSuffix(lobbyIDStr, "/"))
		if err != nil {
			http.Error(w, "invalid lobby_id", http.StatusBadRequest)
			return
		}

		userID, err := authedUser(r)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		if _, _, err := bs.Manager.GetLobby(r.Context(), lobbyID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.Error(w, "lobby does not exist", http.StatusNotFound)
				return
			}
			writeServiceError(w, err)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"presence"},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "presence" {
			c.Close(BadSubprotocolError, "client must speak the presence subprotocol")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		lobbyEvents, cancelLobby, err := bs.Channel.Subscribe(ctx, presence.LobbyTopic(lobbyID))
		if err != nil {
			logger.WithError(err).Warn("presence subscribe failed")
			c.Close(websocket.StatusInternalError, "subscribe failed")
			return
		}
		defer cancelLobby()

		inviteEvents, cancelInvites, err := bs.Channel.Subscribe(ctx, presence.UserInviteTopic(userID))
		if err != nil {
			logger.WithError(err).Warn("invitation subscribe failed")
			c.Close(websocket.StatusInternalError, "subscribe failed")
			return
		}
		defer cancelInvites()

		logger.WithFields(logrus.Fields{
			"user_id":  userID,
			"lobby_id": lobbyID,
			"remote":   r.RemoteAddr,
		}).Info("presence client connected")

		// Drain the socket so client-initiated closes cancel the context.
		go func() {
			defer cancel()
			for {
				if _, _, err := c.Read(ctx); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-ctx.Done():
				c.Close(websocket.StatusNormalClosure, "bye")
				return
			case ev, ok := <-lobbyEvents:
				if !ok {
					c.Close(websocket.StatusNormalClosure, "topic closed")
					return
				}
				if err := wsjson.Write(ctx, c, ev); err != nil {
					return
				}
			case ev, ok := <-inviteEvents:
				if !ok {
					c.Close(websocket.StatusNormalClosure, "topic closed")
					return
				}
				if err := wsjson.Write(ctx, c, ev); err != nil {
					return
				}
			}
		}
	}
}
