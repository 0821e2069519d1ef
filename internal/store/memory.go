package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/versus-live/versus/internal/models"
)

// MemoryLobbyStore is a mutex-guarded in-memory LobbyStore. It backs tests
// and single-node dev mode; the Postgres store is the production backend.
type MemoryLobbyStore struct {
	mu       sync.Mutex
	lobbies  map[uuid.UUID]*models.Lobby
	versions map[uuid.UUID]int64
}

func NewMemoryLobbyStore() *MemoryLobbyStore {
	return &MemoryLobbyStore{
		lobbies:  make(map[uuid.UUID]*models.Lobby),
		versions: make(map[uuid.UUID]int64),
	}
}

func (s *MemoryLobbyStore) Create(ctx context.Context, lobby *models.Lobby) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lobbies[lobby.ID] = lobby.Clone()
	s.versions[lobby.ID] = 1
	return nil
}

func (s *MemoryLobbyStore) Get(ctx context.Context, id uuid.UUID) (*models.Lobby, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lobbies[id]
	if !ok {
		return nil, 0, ErrNotFound
	}
	return l.Clone(), s.versions[id], nil
}

func (s *MemoryLobbyStore) PutIfVersion(ctx context.Context, lobby *models.Lobby, expected int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.versions[lobby.ID]
	if !ok {
		return ErrNotFound
	}
	if cur != expected {
		return ErrVersionConflict
	}
	s.lobbies[lobby.ID] = lobby.Clone()
	s.versions[lobby.ID] = cur + 1
	return nil
}

func (s *MemoryLobbyStore) ListByState(ctx context.Context, state models.LobbyState) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uuid.UUID
	for id, l := range s.lobbies {
		if l.State == state {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// MemoryInvitationStore is the in-memory InvitationStore counterpart.
type MemoryInvitationStore struct {
	mu       sync.Mutex
	invites  map[uuid.UUID]*models.BattleInvitation
	versions map[uuid.UUID]int64
}

func NewMemoryInvitationStore() *MemoryInvitationStore {
	return &MemoryInvitationStore{
		invites:  make(map[uuid.UUID]*models.BattleInvitation),
		versions: make(map[uuid.UUID]int64),
	}
}

func (s *MemoryInvitationStore) Create(ctx context.Context, inv *models.BattleInvitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv.Status == models.InviteStatusPending {
		for _, existing := range s.invites {
			if existing.LobbyID == inv.LobbyID && existing.InviteeID == inv.InviteeID &&
				existing.Status == models.InviteStatusPending {
				return ErrDuplicatePending
			}
		}
	}
	s.invites[inv.ID] = inv.Clone()
	s.versions[inv.ID] = 1
	return nil
}

func (s *MemoryInvitationStore) Get(ctx context.Context, id uuid.UUID) (*models.BattleInvitation, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invites[id]
	if !ok {
		return nil, 0, ErrNotFound
	}
	return inv.Clone(), s.versions[id], nil
}

func (s *MemoryInvitationStore) PutIfVersion(ctx context.Context, inv *models.BattleInvitation, expected int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.versions[inv.ID]
	if !ok {
		return ErrNotFound
	}
	if cur != expected {
		return ErrVersionConflict
	}
	s.invites[inv.ID] = inv.Clone()
	s.versions[inv.ID] = cur + 1
	return nil
}

func (s *MemoryInvitationStore) FindPending(ctx context.Context, lobbyID, inviteeID uuid.UUID) (*models.BattleInvitation, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, inv := range s.invites {
		if inv.LobbyID == lobbyID && inv.InviteeID == inviteeID && inv.Status == models.InviteStatusPending {
			return inv.Clone(), s.versions[id], nil
		}
	}
	return nil, 0, ErrNotFound
}

func (s *MemoryInvitationStore) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uuid.UUID
	for id, inv := range s.invites {
		if inv.Status == models.InviteStatusPending && inv.CreatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
