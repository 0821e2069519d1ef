// Package store defines the narrow versioned-repository contract the battle
// control-plane uses for durable state. Every entity read returns a version;
// every write is conditional on the version it was read at, which is the sole
// concurrency-control discipline for lobby mutation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/versus-live/versus/internal/models"
)

var (
	// ErrNotFound: the requested entity does not exist.
	ErrNotFound = errors.New("entity not found")
	// ErrVersionConflict: a conditional write lost to a concurrent mutation.
	// Callers re-fetch and retry; see WithRetry.
	ErrVersionConflict = errors.New("concurrent modification")
	// ErrDuplicatePending: an invitation insert collided with an existing
	// pending invitation for the same (lobby, invitee) pair. The store is the
	// arbiter here; a service-level pre-check alone is racy.
	ErrDuplicatePending = errors.New("pending invitation already exists")
)

// MaxRetries bounds version-conflict retries before the failure is surfaced.
const MaxRetries = 3

// WithRetry runs fn up to MaxRetries times, retrying only on
// ErrVersionConflict. fn must re-fetch fresh state on each attempt.
func WithRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		err = fn(ctx)
		if !errors.Is(err, ErrVersionConflict) {
			return err
		}
	}
	return err
}

// LobbyStore is the durable record of lobbies.
type LobbyStore interface {
	Create(ctx context.Context, lobby *models.Lobby) error
	// Get returns the lobby and the version it must be written back against.
	Get(ctx context.Context, id uuid.UUID) (*models.Lobby, int64, error)
	// PutIfVersion writes the lobby iff its stored version equals expected,
	// bumping the version. Returns ErrVersionConflict otherwise.
	PutIfVersion(ctx context.Context, lobby *models.Lobby, expected int64) error
	// ListByState returns ids of lobbies currently in the given state.
	// Used by the timeout and reconciliation sweeps.
	ListByState(ctx context.Context, state models.LobbyState) ([]uuid.UUID, error)
}

// InvitationStore is the durable record of battle invitations.
type InvitationStore interface {
	// Create inserts the invitation, returning ErrDuplicatePending if a
	// pending invitation for the same (lobby, invitee) pair already exists.
	Create(ctx context.Context, inv *models.BattleInvitation) error
	Get(ctx context.Context, id uuid.UUID) (*models.BattleInvitation, int64, error)
	PutIfVersion(ctx context.Context, inv *models.BattleInvitation, expected int64) error
	// FindPending returns the pending invitation for (lobby, invitee), if any.
	FindPending(ctx context.Context, lobbyID, inviteeID uuid.UUID) (*models.BattleInvitation, int64, error)
	// ListPendingBefore returns ids of pending invitations created before cutoff.
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
}
