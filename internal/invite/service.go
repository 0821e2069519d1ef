// Package invite creates, delivers, and resolves battle invitations between
// creators, independent of any lobby's internal state. Delivery rides the
// per-user presence topic; resolution is terminal — a new invite is a new
// record.
package invite

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/versus-live/versus/internal/lobby"
	"github.com/versus-live/versus/internal/models"
	"github.com/versus-live/versus/internal/presence"
	"github.com/versus-live/versus/internal/store"
)

var (
	// ErrAlreadyInvited: a pending invitation already exists for this
	// (lobby, invitee) pair.
	ErrAlreadyInvited = errors.New("user already has a pending invitation to this lobby")
	// ErrLobbyUnavailable: the lobby filled up or left the waiting state
	// before the invitation was accepted.
	ErrLobbyUnavailable = errors.New("lobby is no longer available")
	// ErrNotInvitee: the caller is not the invitation's addressee.
	ErrNotInvitee = errors.New("invitation is addressed to a different user")
	// ErrResolved: the invitation already reached a terminal status.
	ErrResolved = errors.New("invitation has already been resolved")
)

const (
	// DefaultTTL is how long an invitation stays pending before the sweep
	// expires it. Advisory cleanup: expiry never blocks re-invitation.
	DefaultTTL = 2 * time.Minute
	// DefaultSweepInterval paces the expiry sweep.
	DefaultSweepInterval = 30 * time.Second
)

// Guard is an optional pre-invite hook, e.g. to also bar cooldown-blocked
// users from being invited. The default policy blocks requestSearch only,
// so no guard is installed.
type Guard func(ctx context.Context, inviteeID uuid.UUID) error

// Service owns the invitation lifecycle.
type Service struct {
	invites store.InvitationStore
	manager *lobby.Manager
	channel presence.Channel
	logger  *logrus.Logger
	ttl     time.Duration
	guard   Guard
	now     func() time.Time
}

func NewService(invites store.InvitationStore, manager *lobby.Manager, channel presence.Channel, logger *logrus.Logger) *Service {
	return &Service{
		invites: invites,
		manager: manager,
		channel: channel,
		logger:  logger,
		ttl:     DefaultTTL,
		now:     time.Now,
	}
}

// SetGuard installs a pre-invite check applied to every invitee.
func (s *Service) SetGuard(g Guard) { s.guard = g }

// SetTTL overrides the pending-invitation lifetime.
func (s *Service) SetTTL(ttl time.Duration) { s.ttl = ttl }

// SetNow overrides the clock; tests only.
func (s *Service) SetNow(now func() time.Time) { s.now = now }

// Invite asks inviteeID to join the lobby. The inviter must hold a seat;
// at most one pending invitation exists per (lobby, invitee) pair.
func (s *Service) Invite(ctx context.Context, lobbyID, inviterID, inviteeID uuid.UUID) (*models.BattleInvitation, error) {
	lob, _, err := s.manager.GetLobby(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	if !lob.HasMember(inviterID) {
		return nil, lobby.ErrNotMember
	}
	if lob.HasMember(inviteeID) {
		return nil, lobby.ErrAlreadyMember
	}

	// Early-out on an obviously duplicate invite; the store's own uniqueness
	// check below is what actually decides races.
	if _, _, err := s.invites.FindPending(ctx, lobbyID, inviteeID); err == nil {
		return nil, ErrAlreadyInvited
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if s.guard != nil {
		if err := s.guard(ctx, inviteeID); err != nil {
			return nil, err
		}
	}

	inv := models.NewBattleInvitation(lobbyID, inviterID, inviteeID)
	if err := s.invites.Create(ctx, inv); err != nil {
		if errors.Is(err, store.ErrDuplicatePending) {
			return nil, ErrAlreadyInvited
		}
		return nil, err
	}

	s.notify(ctx, presence.UserInviteTopic(inviteeID), presence.EventInvitation, inv)
	s.logger.WithFields(logrus.Fields{
		"invitation_id": inv.ID,
		"lobby_id":      lobbyID,
		"invitee_id":    inviteeID,
	}).Info("battle invitation sent")
	return inv, nil
}

// Accept resolves the invitation and seats the invitee in the lobby. If the
// lobby filled up or moved on in the meantime, the invitation resolves
// declined-equivalent and the caller gets ErrLobbyUnavailable instead of a
// silent accept.
func (s *Service) Accept(ctx context.Context, invitationID, inviteeID uuid.UUID) (*models.BattleInvitation, error) {
	inv, _, err := s.invites.Get(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if inv.InviteeID != inviteeID {
		return nil, ErrNotInvitee
	}
	if inv.Status != models.InviteStatusPending {
		return nil, ErrResolved
	}

	_, joinErr := s.manager.JoinLobby(ctx, inv.LobbyID, inviteeID)
	if joinErr != nil && !errors.Is(joinErr, lobby.ErrAlreadyMember) {
		if errors.Is(joinErr, lobby.ErrLobbyFull) ||
			errors.Is(joinErr, lobby.ErrInvalidState) ||
			errors.Is(joinErr, store.ErrNotFound) {
			if resolved, err := s.resolve(ctx, invitationID, models.InviteStatusDeclined); err == nil {
				s.notify(ctx, presence.UserInviteTopic(resolved.InviterID), presence.EventInviteResolved, resolved)
			}
			return nil, ErrLobbyUnavailable
		}
		return nil, joinErr
	}

	resolved, err := s.resolve(ctx, invitationID, models.InviteStatusAccepted)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, presence.UserInviteTopic(resolved.InviterID), presence.EventInviteResolved, resolved)
	s.logger.WithField("invitation_id", invitationID).Info("battle invitation accepted")
	return resolved, nil
}

// Decline marks the invitation declined and notifies the inviter.
func (s *Service) Decline(ctx context.Context, invitationID, inviteeID uuid.UUID) (*models.BattleInvitation, error) {
	inv, _, err := s.invites.Get(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if inv.InviteeID != inviteeID {
		return nil, ErrNotInvitee
	}
	if inv.Status != models.InviteStatusPending {
		return nil, ErrResolved
	}

	resolved, err := s.resolve(ctx, invitationID, models.InviteStatusDeclined)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, presence.UserInviteTopic(resolved.InviterID), presence.EventInviteResolved, resolved)
	s.logger.WithField("invitation_id", invitationID).Info("battle invitation declined")
	return resolved, nil
}

// resolve moves a pending invitation to a terminal status, retrying version
// conflicts. A race that resolved it first wins; we surface ErrResolved.
func (s *Service) resolve(ctx context.Context, invitationID uuid.UUID, status models.InvitationStatus) (*models.BattleInvitation, error) {
	var out *models.BattleInvitation
	err := store.WithRetry(ctx, func(ctx context.Context) error {
		inv, ver, err := s.invites.Get(ctx, invitationID)
		if err != nil {
			return err
		}
		if inv.Status != models.InviteStatusPending {
			return ErrResolved
		}
		inv.Status = status
		if err := s.invites.PutIfVersion(ctx, inv, ver); err != nil {
			return err
		}
		out = inv
		return nil
	})
	return out, err
}

// ExpireStale sweeps pending invitations older than the TTL to expired.
func (s *Service) ExpireStale(ctx context.Context) {
	ids, err := s.invites.ListPendingBefore(ctx, s.now().Add(-s.ttl))
	if err != nil {
		s.logger.WithError(err).Warn("failed to list stale invitations")
		return
	}
	for _, id := range ids {
		if _, err := s.resolve(ctx, id, models.InviteStatusExpired); err != nil {
			continue
		}
		s.logger.WithField("invitation_id", id).Info("battle invitation expired")
	}
}

// Run drives the expiry sweep until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ExpireStale(ctx)
		}
	}
}

func (s *Service) notify(ctx context.Context, topic, eventType string, inv *models.BattleInvitation) {
	ev := presence.Event{Type: eventType, Payload: inv}
	if err := s.channel.Publish(ctx, topic, ev); err != nil {
		s.logger.WithError(err).WithField("invitation_id", inv.ID).Warn("failed to publish invitation event")
	}
}
