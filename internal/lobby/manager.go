// Package lobby owns the battle lobby lifecycle: who is in a lobby and what
// state it is in. Every mutation is a read-compute-conditional-write against
// the versioned store; a conflicting write is retried against fresh state up
// to the shared retry bound, and every committed transition publishes the new
// snapshot on the lobby's presence topic.
package lobby

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/versus-live/versus/internal/cooldown"
	"github.com/versus-live/versus/internal/models"
	"github.com/versus-live/versus/internal/presence"
	"github.com/versus-live/versus/internal/store"
)

// TicketPool is the matchmaking coordinator's surface as seen from the
// lobby-owning side. Dequeue-on-leave and the state write are causally
// linked: the manager always writes the state first, then removes the
// ticket, and the coordinator re-validates state before any claim.
type TicketPool interface {
	Enqueue(lobbyID uuid.UUID, format string, teamSize int)
	Dequeue(lobbyID uuid.UUID)
}

// Manager is the root authority for lobby state transitions.
type Manager struct {
	lobbies store.LobbyStore
	tracker *cooldown.Tracker
	channel presence.Channel
	pool    TicketPool
	logger  *logrus.Logger
}

func NewManager(lobbies store.LobbyStore, tracker *cooldown.Tracker, channel presence.Channel, pool TicketPool, logger *logrus.Logger) *Manager {
	return &Manager{
		lobbies: lobbies,
		tracker: tracker,
		channel: channel,
		pool:    pool,
		logger:  logger,
	}
}

// mutate runs the read-compute-conditional-write cycle for one lobby,
// retrying on version conflicts, and publishes the committed snapshot.
func (m *Manager) mutate(ctx context.Context, id uuid.UUID, fn func(l *models.Lobby) error) (*models.Lobby, error) {
	var out *models.Lobby
	err := store.WithRetry(ctx, func(ctx context.Context) error {
		lob, ver, err := m.lobbies.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(lob); err != nil {
			return err
		}
		if err := m.lobbies.PutIfVersion(ctx, lob, ver); err != nil {
			return err
		}
		m.publishSnapshot(ctx, lob, ver+1)
		out = lob
		return nil
	})
	return out, err
}

func (m *Manager) publishSnapshot(ctx context.Context, lob *models.Lobby, version int64) {
	ev := presence.Event{
		Type:    presence.EventLobbyState,
		Payload: presence.LobbySnapshot{Lobby: lob, Version: version},
	}
	if err := m.channel.Publish(ctx, presence.LobbyTopic(lob.ID), ev); err != nil {
		m.logger.WithError(err).WithField("lobby_id", lob.ID).Warn("failed to publish lobby snapshot")
	}
}

// CreateLobby opens a new waiting lobby hosted by hostID.
func (m *Manager) CreateLobby(ctx context.Context, hostID uuid.UUID, format string) (*models.Lobby, error) {
	lob, err := models.NewLobby(hostID, format)
	if err != nil {
		return nil, err
	}
	if err := m.lobbies.Create(ctx, lob); err != nil {
		return nil, err
	}
	m.logger.WithFields(logrus.Fields{
		"lobby_id": lob.ID,
		"host_id":  hostID,
		"format":   format,
	}).Info("lobby created")
	m.publishSnapshot(ctx, lob, 1)
	return lob, nil
}

// GetLobby returns the current lobby snapshot.
func (m *Manager) GetLobby(ctx context.Context, lobbyID uuid.UUID) (*models.Lobby, int64, error) {
	return m.lobbies.Get(ctx, lobbyID)
}

// ListOpenLobbies returns every lobby currently open for joins. Lobbies that
// move on between the id listing and the read are skipped, not errors.
func (m *Manager) ListOpenLobbies(ctx context.Context) ([]*models.Lobby, error) {
	ids, err := m.lobbies.ListByState(ctx, models.StateWaiting)
	if err != nil {
		return nil, err
	}
	open := make([]*models.Lobby, 0, len(ids))
	for _, id := range ids {
		l, _, err := m.lobbies.Get(ctx, id)
		if err != nil || l.State != models.StateWaiting {
			continue
		}
		open = append(open, l)
	}
	return open, nil
}

// JoinLobby seats userID in a waiting lobby with a free seat.
func (m *Manager) JoinLobby(ctx context.Context, lobbyID, userID uuid.UUID) (*models.Lobby, error) {
	return m.mutate(ctx, lobbyID, func(l *models.Lobby) error {
		if l.State != models.StateWaiting {
			return ErrInvalidState
		}
		if l.HasMember(userID) {
			return ErrAlreadyMember
		}
		if l.RosterFull() {
			return ErrLobbyFull
		}
		l.AddMember(userID)
		return nil
	})
}

// LeaveLobby removes userID from the lobby. The host leaving, or the last
// member leaving, cancels the lobby. Leaving a searching lobby drops it back
// to waiting and removes its ticket. Leaving a matched lobby releases the
// pairing: this side reverts to waiting, the partner re-enters the pool.
func (m *Manager) LeaveLobby(ctx context.Context, lobbyID, userID uuid.UUID) (*models.Lobby, error) {
	var (
		wasSearching bool
		partnerID    *uuid.UUID
	)
	lob, err := m.mutate(ctx, lobbyID, func(l *models.Lobby) error {
		wasSearching = false
		partnerID = nil
		if l.State.Terminal() || l.State == models.StateInBattle {
			return ErrInvalidState
		}
		if !l.HasMember(userID) {
			return ErrNotMember
		}
		wasSearching = l.State == models.StateSearching || l.State == models.StateClaiming
		if l.State == models.StateMatched {
			partnerID = l.PairedLobbyID
		}
		l.RemoveMember(userID)
		l.ClearMatch()
		if userID == l.HostID || len(l.Roster) == 0 {
			l.State = models.StateCancelled
		} else {
			l.State = models.StateWaiting
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if wasSearching {
		m.pool.Dequeue(lobbyID)
	}
	if partnerID != nil {
		m.releasePartner(ctx, *partnerID, lobbyID)
	}
	m.logger.WithFields(logrus.Fields{
		"lobby_id": lobbyID,
		"user_id":  userID,
		"state":    lob.State,
	}).Info("user left lobby")
	return lob, nil
}

// releasePartner sends the counterpart of a broken pairing back to the
// searching pool. Its roster is still full, so it resumes matchmaking.
func (m *Manager) releasePartner(ctx context.Context, partnerID, brokenPairID uuid.UUID) {
	partner, err := m.mutate(ctx, partnerID, func(l *models.Lobby) error {
		if l.State != models.StateMatched || l.PairedLobbyID == nil || *l.PairedLobbyID != brokenPairID {
			return ErrInvalidState
		}
		l.ClearMatch()
		l.State = models.StateSearching
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrInvalidState) && !errors.Is(err, store.ErrNotFound) {
			m.logger.WithError(err).WithField("lobby_id", partnerID).Warn("failed to release match partner")
		}
		return
	}
	m.pool.Enqueue(partner.ID, partner.Format, partner.TeamSize)
}

// RequestSearch moves a full waiting lobby into matchmaking. Every member
// must pass the cooldown check at the instant of the transition; a blocked
// member surfaces as *cooldown.BlockedError naming that member.
func (m *Manager) RequestSearch(ctx context.Context, lobbyID, callerID uuid.UUID) (*models.Lobby, error) {
	lob, err := m.mutate(ctx, lobbyID, func(l *models.Lobby) error {
		if l.State != models.StateWaiting {
			return ErrInvalidState
		}
		if callerID != l.HostID {
			return ErrNotHost
		}
		if !l.RosterFull() {
			return ErrRosterIncomplete
		}
		for _, member := range l.Roster {
			if err := m.tracker.Check(ctx, member); err != nil {
				return err
			}
		}
		l.State = models.StateSearching
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.pool.Enqueue(lob.ID, lob.Format, lob.TeamSize)
	m.logger.WithField("lobby_id", lobbyID).Info("lobby entered matchmaking")
	return lob, nil
}

// CancelSearch withdraws a searching lobby back to waiting and removes its
// ticket. The two effects are one logical operation from the lobby side;
// the coordinator's claim re-validates state so the ordering is safe.
func (m *Manager) CancelSearch(ctx context.Context, lobbyID, callerID uuid.UUID) (*models.Lobby, error) {
	lob, err := m.mutate(ctx, lobbyID, func(l *models.Lobby) error {
		if l.State != models.StateSearching {
			return ErrInvalidState
		}
		if callerID != l.HostID {
			return ErrNotHost
		}
		l.State = models.StateWaiting
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.pool.Dequeue(lobbyID)
	m.logger.WithField("lobby_id", lobbyID).Info("matchmaking search cancelled")
	return lob, nil
}

// RespondToMatch records one member's answer to a committed pairing.
//
// Accept: once every member on both sides has accepted, both lobbies enter
// battle. The promotion is idempotent per side, so simultaneous final
// acceptors on the two sides converge on the same started battle.
// Decline: the decliner receives a cooldown entry, the decliner's lobby
// reverts to waiting (cancelled if the decliner hosts it), and the partner
// reverts to waiting as well — a declined match never re-enters the pool
// automatically.
func (m *Manager) RespondToMatch(ctx context.Context, lobbyID, userID uuid.UUID, accept bool) (*models.Lobby, error) {
	if !accept {
		return m.declineMatch(ctx, lobbyID, userID)
	}

	var partnerID *uuid.UUID
	lob, err := m.mutate(ctx, lobbyID, func(l *models.Lobby) error {
		if l.State != models.StateMatched {
			return ErrInvalidState
		}
		if !l.HasMember(userID) {
			return ErrNotMember
		}
		if l.Acceptances == nil {
			l.Acceptances = make(map[uuid.UUID]bool)
		}
		l.Acceptances[userID] = true
		partnerID = l.PairedLobbyID
		return nil
	})
	if err != nil {
		return nil, err
	}

	if lob.AllAccepted() && partnerID != nil {
		m.tryStartBattle(ctx, lobbyID, *partnerID)
		// Return the freshest view; the promotion may have advanced it.
		if fresh, _, err := m.lobbies.Get(ctx, lobbyID); err == nil {
			return fresh, nil
		}
	}
	return lob, nil
}

// promoteToBattle moves one side of a fully-accepted pair into battle.
// Idempotent: a side some concurrent acceptor already promoted, still paired
// to the expected partner, counts as success. Both last acceptors can thus
// run the full promotion concurrently and converge on the same result.
func (m *Manager) promoteToBattle(ctx context.Context, id, partnerID uuid.UUID) error {
	return store.WithRetry(ctx, func(ctx context.Context) error {
		l, ver, err := m.lobbies.Get(ctx, id)
		if err != nil {
			return err
		}
		if l.PairedLobbyID == nil || *l.PairedLobbyID != partnerID {
			return ErrInvalidState
		}
		if l.State == models.StateInBattle {
			return nil
		}
		if l.State != models.StateMatched || !l.AllAccepted() {
			return ErrInvalidState
		}
		l.State = models.StateInBattle
		if err := m.lobbies.PutIfVersion(ctx, l, ver); err != nil {
			return err
		}
		m.publishSnapshot(ctx, l, ver+1)
		return nil
	})
}

// tryStartBattle promotes a fully-accepted pair to in_battle, partner first.
// If the local promotion fails because this side verifiably left the pairing,
// the partner is unwound back to matched so no pair is left half-started.
func (m *Manager) tryStartBattle(ctx context.Context, lobbyID, partnerID uuid.UUID) {
	if err := m.promoteToBattle(ctx, partnerID, lobbyID); err != nil {
		return
	}

	if err := m.promoteToBattle(ctx, lobbyID, partnerID); err != nil {
		// A concurrent acceptor may have carried this side into battle after
		// the failed attempt read it; re-check before unwinding the partner.
		if l, _, gerr := m.lobbies.Get(ctx, lobbyID); gerr == nil && l.State == models.StateInBattle {
			return
		}
		if _, uerr := m.mutate(ctx, partnerID, func(l *models.Lobby) error {
			if l.State != models.StateInBattle || l.PairedLobbyID == nil || *l.PairedLobbyID != lobbyID {
				return ErrInvalidState
			}
			l.State = models.StateMatched
			return nil
		}); uerr != nil && !errors.Is(uerr, ErrInvalidState) && !errors.Is(uerr, store.ErrNotFound) {
			m.logger.WithError(uerr).WithField("lobby_id", partnerID).Error("failed to unwind half-started battle")
		}
		return
	}
	m.logger.WithFields(logrus.Fields{
		"lobby_id":   lobbyID,
		"partner_id": partnerID,
	}).Info("battle started")
}

func (m *Manager) declineMatch(ctx context.Context, lobbyID, userID uuid.UUID) (*models.Lobby, error) {
	var partnerID *uuid.UUID
	lob, err := m.mutate(ctx, lobbyID, func(l *models.Lobby) error {
		partnerID = nil
		if l.State != models.StateMatched {
			return ErrInvalidState
		}
		if !l.HasMember(userID) {
			return ErrNotMember
		}
		partnerID = l.PairedLobbyID
		l.ClearMatch()
		if userID == l.HostID {
			l.State = models.StateCancelled
		} else {
			l.State = models.StateWaiting
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := m.tracker.RecordDecline(ctx, userID); err != nil {
		m.logger.WithError(err).WithField("user_id", userID).Error("failed to record decline cooldown")
	}

	if partnerID != nil {
		// Partner drops to waiting; a decline is not the partner's fault but
		// the pairing is void, and re-searching is the host's call.
		if _, err := m.mutate(ctx, *partnerID, func(l *models.Lobby) error {
			if l.State != models.StateMatched || l.PairedLobbyID == nil || *l.PairedLobbyID != lobbyID {
				return ErrInvalidState
			}
			l.ClearMatch()
			l.State = models.StateWaiting
			return nil
		}); err != nil && !errors.Is(err, ErrInvalidState) && !errors.Is(err, store.ErrNotFound) {
			m.logger.WithError(err).WithField("lobby_id", *partnerID).Warn("failed to revert declined partner")
		}
	}

	m.logger.WithFields(logrus.Fields{
		"lobby_id": lobbyID,
		"user_id":  userID,
	}).Info("match declined")
	return lob, nil
}

// EndBattle applies the external battle-ended signal to both sides of a pair.
func (m *Manager) EndBattle(ctx context.Context, lobbyID uuid.UUID) (*models.Lobby, error) {
	var partnerID *uuid.UUID
	lob, err := m.mutate(ctx, lobbyID, func(l *models.Lobby) error {
		if l.State != models.StateInBattle {
			return ErrInvalidState
		}
		partnerID = l.PairedLobbyID
		l.ClearMatch()
		l.State = models.StateEnded
		return nil
	})
	if err != nil {
		return nil, err
	}
	if partnerID != nil {
		if _, err := m.mutate(ctx, *partnerID, func(l *models.Lobby) error {
			if l.State != models.StateInBattle {
				return ErrInvalidState
			}
			l.ClearMatch()
			l.State = models.StateEnded
			return nil
		}); err != nil && !errors.Is(err, ErrInvalidState) && !errors.Is(err, store.ErrNotFound) {
			m.logger.WithError(err).WithField("lobby_id", *partnerID).Warn("failed to end partner battle")
		}
	}
	m.logger.WithField("lobby_id", lobbyID).Info("battle ended")
	return lob, nil
}

// noopPool satisfies TicketPool where no coordinator is wired (tests).
type noopPool struct{}

func (noopPool) Enqueue(uuid.UUID, string, int) {}
func (noopPool) Dequeue(uuid.UUID)              {}

// NoopPool returns a TicketPool that ignores everything.
func NoopPool() TicketPool { return noopPool{} }
