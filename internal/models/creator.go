package models

import "github.com/google/uuid"

// Creator is a live-streaming creator account. Only the fields the battle
// control-plane needs; profile/avatar display lives elsewhere.
type Creator struct {
	ID          uuid.UUID `json:"id"`
	Handle      string    `json:"handle"`
	DisplayName string    `json:"display_name"`
	Password    string    `json:"password,omitempty"`
}
