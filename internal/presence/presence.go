// Package presence carries lobby and invitation state-change events to
// connected clients. Delivery is at-least-once and ordered within a topic;
// consumers dedupe on the lobby version embedded in each snapshot.
package presence

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/versus-live/versus/internal/models"
)

// Event is the envelope published on every topic.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Event types.
const (
	EventLobbyState     = "lobby_state"     // payload: LobbySnapshot
	EventInvitation     = "invitation"      // payload: models.BattleInvitation
	EventInviteResolved = "invite_resolved" // payload: models.BattleInvitation
)

// LobbySnapshot is the full lobby state stamped with its store version,
// published on every successful transition. Clients drop snapshots whose
// version is not newer than the last one they applied.
type LobbySnapshot struct {
	Lobby   *models.Lobby `json:"lobby"`
	Version int64         `json:"version"`
}

// LobbyTopic is the per-lobby fan-out topic.
func LobbyTopic(lobbyID uuid.UUID) string {
	return fmt.Sprintf("lobby:%s", lobbyID)
}

// UserInviteTopic is the per-user direct invitation topic.
func UserInviteTopic(userID uuid.UUID) string {
	return fmt.Sprintf("user:%s:invitations", userID)
}

// Channel is the pub/sub transport contract.
type Channel interface {
	Publish(ctx context.Context, topic string, ev Event) error
	// Subscribe delivers events for topic on the returned channel until the
	// cancel func is called. Slow consumers may have events dropped rather
	// than block the publisher.
	Subscribe(ctx context.Context, topic string) (<-chan Event, func(), error)
}
