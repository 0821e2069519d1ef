package models

import (
	"time"

	"github.com/google/uuid"
)

// InvitationStatus is the resolution state of a battle invitation.
// Terminal statuses are never reopened; re-inviting creates a new record.
type InvitationStatus string

const (
	InviteStatusPending  InvitationStatus = "pending"
	InviteStatusAccepted InvitationStatus = "accepted"
	InviteStatusDeclined InvitationStatus = "declined"
	InviteStatusExpired  InvitationStatus = "expired"
)

// BattleInvitation asks a creator to take a seat in a lobby.
// At most one pending invitation exists per (lobby, invitee) pair.
type BattleInvitation struct {
	ID        uuid.UUID        `json:"id"`
	LobbyID   uuid.UUID        `json:"lobby_id"`
	InviterID uuid.UUID        `json:"inviter_id"`
	InviteeID uuid.UUID        `json:"invitee_id"`
	Status    InvitationStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
}

// NewBattleInvitation builds a pending invitation.
func NewBattleInvitation(lobbyID, inviterID, inviteeID uuid.UUID) *BattleInvitation {
	return &BattleInvitation{
		ID:        uuid.New(),
		LobbyID:   lobbyID,
		InviterID: inviterID,
		InviteeID: inviteeID,
		Status:    InviteStatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// Clone returns a copy, for in-memory stores.
func (inv *BattleInvitation) Clone() *BattleInvitation {
	c := *inv
	return &c
}
