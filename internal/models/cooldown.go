package models

import (
	"time"

	"github.com/google/uuid"
)

// CooldownReasonDeclinedMatch is currently the only cooldown reason: a user
// declined a committed match and is temporarily barred from matchmaking.
const CooldownReasonDeclinedMatch = "declined_match"

// CooldownEntry is a time-boxed matchmaking block for one user. A user is
// blocked iff an entry exists with ExpiresAt in the future; expired entries
// are ignored on read and purged opportunistically.
type CooldownEntry struct {
	UserID    uuid.UUID `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Reason    string    `json:"reason"`
}

// Active reports whether the entry still blocks the user at the given instant.
func (e CooldownEntry) Active(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}
