package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTeamSizeForFormat(t *testing.T) {
	for format, want := range map[string]int{"1v1": 1, "2v2": 2, "3v3": 3} {
		got, err := TeamSizeForFormat(format)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := TeamSizeForFormat("4v4")
	assert.Error(t, err)
}

func TestRosterOrder(t *testing.T) {
	host := uuid.New()
	lob, err := NewLobby(host, "3v3")
	require.NoError(t, err)

	a, b := uuid.New(), uuid.New()
	lob.AddMember(a)
	lob.AddMember(b)
	require.True(t, lob.RosterFull())

	// Removal keeps the seat order of the remaining members.
	lob.RemoveMember(a)
	assert.Equal(t, []uuid.UUID{host, b}, lob.Roster)
	assert.False(t, lob.RosterFull())
	assert.False(t, lob.HasMember(a))
}

func TestAllAccepted(t *testing.T) {
	lob, err := NewLobby(uuid.New(), "2v2")
	require.NoError(t, err)
	member := uuid.New()
	lob.AddMember(member)

	assert.False(t, lob.AllAccepted())
	lob.Acceptances = map[uuid.UUID]bool{lob.HostID: true}
	assert.False(t, lob.AllAccepted())
	lob.Acceptances[member] = true
	assert.True(t, lob.AllAccepted())
}

func TestClearMatch(t *testing.T) {
	lob, err := NewLobby(uuid.New(), "1v1")
	require.NoError(t, err)
	partner := uuid.New()
	lob.PairedLobbyID = &partner
	lob.Acceptances = map[uuid.UUID]bool{lob.HostID: true}

	lob.ClearMatch()
	assert.Nil(t, lob.PairedLobbyID)
	assert.Nil(t, lob.Acceptances)
	assert.Nil(t, lob.MatchedAt)
	assert.Nil(t, lob.ClaimedAt)
}

func TestCloneIsDeep(t *testing.T) {
	lob, err := NewLobby(uuid.New(), "2v2")
	require.NoError(t, err)
	partner := uuid.New()
	lob.PairedLobbyID = &partner
	lob.Acceptances = map[uuid.UUID]bool{lob.HostID: true}

	c := lob.Clone()
	c.AddMember(uuid.New())
	c.Acceptances[uuid.New()] = true
	*c.PairedLobbyID = uuid.New()

	assert.Len(t, lob.Roster, 1)
	assert.Len(t, lob.Acceptances, 1)
	assert.Equal(t, partner, *lob.PairedLobbyID)
}
