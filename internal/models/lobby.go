package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LobbyState is the lifecycle state of a battle lobby.
type LobbyState string

const (
	// StateWaiting: lobby is open, members can join, roster may be incomplete.
	StateWaiting LobbyState = "waiting"
	// StateSearching: roster is full and the lobby sits in the matchmaking pool.
	StateSearching LobbyState = "searching"
	// StateClaiming is the transient half of a two-phase pairing commit: the
	// coordinator has claimed this lobby but not yet confirmed its partner.
	// A lobby stuck here past the reconcile grace period is unwound to searching.
	StateClaiming LobbyState = "claiming"
	// StateMatched: paired with another lobby, awaiting member acceptances.
	StateMatched LobbyState = "matched"
	// StateInBattle: all members on both sides accepted; the battle is live.
	StateInBattle LobbyState = "in_battle"
	// StateCancelled is terminal: host left, everyone left, or host declined a match.
	StateCancelled LobbyState = "cancelled"
	// StateEnded is terminal: the battle concluded.
	StateEnded LobbyState = "ended"
)

// Terminal reports whether no further transitions are possible.
func (s LobbyState) Terminal() bool {
	return s == StateCancelled || s == StateEnded
}

// teamSizes maps a battle format tag to the required team size per side.
var teamSizes = map[string]int{
	"1v1": 1,
	"2v2": 2,
	"3v3": 3,
}

// TeamSizeForFormat returns the required roster size for a format tag.
func TeamSizeForFormat(format string) (int, error) {
	n, ok := teamSizes[format]
	if !ok {
		return 0, fmt.Errorf("unknown battle format %q", format)
	}
	return n, nil
}

// Lobby is a staged group of creators preparing to enter a battle.
//
// The store keeps a monotonically increasing version alongside each lobby;
// every mutation is a conditional write against that version.
type Lobby struct {
	ID       uuid.UUID `json:"id"`
	HostID   uuid.UUID `json:"host_id"`
	Format   string    `json:"format"`
	TeamSize int       `json:"team_size"`

	// Roster is the ordered set of member user ids. Insertion order is the
	// seat order shown to clients; length never exceeds TeamSize.
	Roster []uuid.UUID `json:"roster"`

	State LobbyState `json:"state"`

	// PairedLobbyID is set only while matched/claiming/in_battle. It is a weak
	// reference: either side may be torn down independently on cancellation.
	PairedLobbyID *uuid.UUID `json:"paired_lobby_id,omitempty"`

	// Acceptances records which members have accepted the current match.
	// Cleared whenever the lobby leaves the matched state.
	Acceptances map[uuid.UUID]bool `json:"acceptances,omitempty"`

	// MatchedAt is when the pairing committed; drives the accept timeout sweep.
	MatchedAt *time.Time `json:"matched_at,omitempty"`
	// ClaimedAt is when the tentative claim was written; drives the reconcile sweep.
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewLobby builds a waiting lobby with the host seated first.
func NewLobby(hostID uuid.UUID, format string) (*Lobby, error) {
	size, err := TeamSizeForFormat(format)
	if err != nil {
		return nil, err
	}
	return &Lobby{
		ID:        uuid.New(),
		HostID:    hostID,
		Format:    format,
		TeamSize:  size,
		Roster:    []uuid.UUID{hostID},
		State:     StateWaiting,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// HasMember reports whether userID occupies a roster seat.
func (l *Lobby) HasMember(userID uuid.UUID) bool {
	for _, id := range l.Roster {
		if id == userID {
			return true
		}
	}
	return false
}

// RosterFull reports whether every seat is taken.
func (l *Lobby) RosterFull() bool {
	return len(l.Roster) >= l.TeamSize
}

// AddMember appends userID to the roster, preserving seat order.
func (l *Lobby) AddMember(userID uuid.UUID) {
	l.Roster = append(l.Roster, userID)
}

// RemoveMember drops userID from the roster, preserving the order of the rest.
func (l *Lobby) RemoveMember(userID uuid.UUID) {
	out := l.Roster[:0]
	for _, id := range l.Roster {
		if id != userID {
			out = append(out, id)
		}
	}
	l.Roster = out
}

// AllAccepted reports whether every roster member accepted the current match.
func (l *Lobby) AllAccepted() bool {
	if len(l.Acceptances) < len(l.Roster) {
		return false
	}
	for _, id := range l.Roster {
		if !l.Acceptances[id] {
			return false
		}
	}
	return true
}

// ClearMatch wipes all pairing bookkeeping. Called on every exit from
// claiming/matched, whatever the destination state.
func (l *Lobby) ClearMatch() {
	l.PairedLobbyID = nil
	l.Acceptances = nil
	l.MatchedAt = nil
	l.ClaimedAt = nil
}

// Clone returns a deep copy, so in-memory stores never hand out aliased state.
func (l *Lobby) Clone() *Lobby {
	c := *l
	c.Roster = append([]uuid.UUID(nil), l.Roster...)
	if l.PairedLobbyID != nil {
		id := *l.PairedLobbyID
		c.PairedLobbyID = &id
	}
	if l.Acceptances != nil {
		c.Acceptances = make(map[uuid.UUID]bool, len(l.Acceptances))
		for k, v := range l.Acceptances {
			c.Acceptances[k] = v
		}
	}
	if l.MatchedAt != nil {
		t := *l.MatchedAt
		c.MatchedAt = &t
	}
	if l.ClaimedAt != nil {
		t := *l.ClaimedAt
		c.ClaimedAt = &t
	}
	return &c
}
