package matchmaking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versus-live/versus/internal/models"
	"github.com/versus-live/versus/internal/presence"
	"github.com/versus-live/versus/internal/store"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *store.MemoryLobbyStore) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	lobbies := store.NewMemoryLobbyStore()
	c := NewCoordinator(lobbies, presence.NewMemoryChannel(), logger, Config{})
	return c, lobbies
}

// seedSearching creates a full searching lobby and its ticket.
func seedSearching(t *testing.T, c *Coordinator, lobbies *store.MemoryLobbyStore, format string) *models.Lobby {
	t.Helper()
	ctx := context.Background()
	lob, err := models.NewLobby(uuid.New(), format)
	require.NoError(t, err)
	for !lob.RosterFull() {
		lob.AddMember(uuid.New())
	}
	lob.State = models.StateSearching
	require.NoError(t, lobbies.Create(ctx, lob))
	c.Enqueue(lob.ID, lob.Format, lob.TeamSize)
	return lob
}

func TestEnqueueDedupes(t *testing.T) {
	c, lobbies := newTestCoordinator(t)
	lob := seedSearching(t, c, lobbies, "1v1")
	c.Enqueue(lob.ID, lob.Format, lob.TeamSize)
	assert.Equal(t, 1, c.PoolSize("1v1", 1))

	c.Dequeue(lob.ID)
	assert.Equal(t, 0, c.PoolSize("1v1", 1))
}

func TestScanPairsCompatibleLobbies(t *testing.T) {
	ctx := context.Background()
	c, lobbies := newTestCoordinator(t)
	a := seedSearching(t, c, lobbies, "2v2")
	b := seedSearching(t, c, lobbies, "2v2")

	c.ScanOnce(ctx)

	la, _, err := lobbies.Get(ctx, a.ID)
	require.NoError(t, err)
	lb, _, err := lobbies.Get(ctx, b.ID)
	require.NoError(t, err)

	assert.Equal(t, models.StateMatched, la.State)
	assert.Equal(t, models.StateMatched, lb.State)
	require.NotNil(t, la.PairedLobbyID)
	require.NotNil(t, lb.PairedLobbyID)
	assert.Equal(t, b.ID, *la.PairedLobbyID)
	assert.Equal(t, a.ID, *lb.PairedLobbyID)
	assert.NotNil(t, la.MatchedAt)
	assert.Nil(t, la.ClaimedAt)

	// Both tickets are consumed by the commit.
	assert.Equal(t, 0, c.PoolSize("2v2", 2))
}

func TestScanIgnoresOtherFormats(t *testing.T) {
	ctx := context.Background()
	c, lobbies := newTestCoordinator(t)
	a := seedSearching(t, c, lobbies, "1v1")
	b := seedSearching(t, c, lobbies, "2v2")

	c.ScanOnce(ctx)

	la, _, err := lobbies.Get(ctx, a.ID)
	require.NoError(t, err)
	lb, _, err := lobbies.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateSearching, la.State)
	assert.Equal(t, models.StateSearching, lb.State)
}

func TestScanPairsAtMostOnePairOfThree(t *testing.T) {
	ctx := context.Background()
	c, lobbies := newTestCoordinator(t)
	seedSearching(t, c, lobbies, "1v1")
	seedSearching(t, c, lobbies, "1v1")
	seedSearching(t, c, lobbies, "1v1")

	c.ScanOnce(ctx)

	matched, err := lobbies.ListByState(ctx, models.StateMatched)
	require.NoError(t, err)
	searching, err := lobbies.ListByState(ctx, models.StateSearching)
	require.NoError(t, err)
	assert.Len(t, matched, 2)
	assert.Len(t, searching, 1)
	assert.Equal(t, 1, c.PoolSize("1v1", 1))
}

func TestScanDropsStaleTickets(t *testing.T) {
	ctx := context.Background()
	c, lobbies := newTestCoordinator(t)
	a := seedSearching(t, c, lobbies, "1v1")
	b := seedSearching(t, c, lobbies, "1v1")

	// A cancelled its search out of band; its ticket is stale.
	la, v, err := lobbies.Get(ctx, a.ID)
	require.NoError(t, err)
	la.State = models.StateWaiting
	require.NoError(t, lobbies.PutIfVersion(ctx, la, v))

	c.ScanOnce(ctx)

	la, _, err = lobbies.Get(ctx, a.ID)
	require.NoError(t, err)
	lb, _, err := lobbies.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateWaiting, la.State)
	assert.Equal(t, models.StateSearching, lb.State)

	// The stale ticket is gone; the live one stays for the next pass.
	assert.Equal(t, 1, c.PoolSize("1v1", 1))
}

func TestResyncTicketsReseedsSearchingLobbies(t *testing.T) {
	ctx := context.Background()
	c, lobbies := newTestCoordinator(t)

	// Two lobbies searching in the store but absent from the pool, as after
	// a restart wiped the coordinator's memory.
	a := seedSearching(t, c, lobbies, "1v1")
	b := seedSearching(t, c, lobbies, "1v1")
	c.Dequeue(a.ID)
	c.Dequeue(b.ID)
	require.Equal(t, 0, c.PoolSize("1v1", 1))

	c.ResyncTickets(ctx)
	assert.Equal(t, 2, c.PoolSize("1v1", 1))

	// Idempotent: a second resync never doubles tickets.
	c.ResyncTickets(ctx)
	assert.Equal(t, 2, c.PoolSize("1v1", 1))

	// Re-seeded tickets pair like any others.
	c.ScanOnce(ctx)
	la, _, err := lobbies.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateMatched, la.State)
}

func TestReapExpiredMatches(t *testing.T) {
	ctx := context.Background()
	c, lobbies := newTestCoordinator(t)
	a := seedSearching(t, c, lobbies, "1v1")
	b := seedSearching(t, c, lobbies, "1v1")
	c.ScanOnce(ctx)

	base := time.Now()
	c.SetNow(func() time.Time { return base.Add(DefaultAcceptTimeout + time.Second) })
	c.ReapExpiredMatches(ctx)

	for _, id := range []uuid.UUID{a.ID, b.ID} {
		l, _, err := lobbies.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StateSearching, l.State)
		assert.Nil(t, l.PairedLobbyID)
		assert.Nil(t, l.MatchedAt)
	}
	assert.Equal(t, 2, c.PoolSize("1v1", 1))
}

func TestReapLeavesFreshMatchesAlone(t *testing.T) {
	ctx := context.Background()
	c, lobbies := newTestCoordinator(t)
	a := seedSearching(t, c, lobbies, "1v1")
	seedSearching(t, c, lobbies, "1v1")
	c.ScanOnce(ctx)

	c.ReapExpiredMatches(ctx)

	l, _, err := lobbies.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateMatched, l.State)
}

func TestReconcileStuckClaims(t *testing.T) {
	ctx := context.Background()
	c, lobbies := newTestCoordinator(t)

	// A crashed pairing pass: A stuck claiming, B already committed matched.
	a, err := models.NewLobby(uuid.New(), "1v1")
	require.NoError(t, err)
	b, err := models.NewLobby(uuid.New(), "1v1")
	require.NoError(t, err)
	stale := time.Now().Add(-DefaultClaimGrace - time.Second)
	a.State = models.StateClaiming
	a.PairedLobbyID = &b.ID
	a.ClaimedAt = &stale
	b.State = models.StateMatched
	b.PairedLobbyID = &a.ID
	b.MatchedAt = &stale
	require.NoError(t, lobbies.Create(ctx, a))
	require.NoError(t, lobbies.Create(ctx, b))

	c.ReconcileStuckClaims(ctx)

	la, _, err := lobbies.Get(ctx, a.ID)
	require.NoError(t, err)
	lb, _, err := lobbies.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateSearching, la.State)
	assert.Nil(t, la.PairedLobbyID)
	assert.Equal(t, models.StateSearching, lb.State)
	assert.Nil(t, lb.PairedLobbyID)

	// Both sides re-enter the pool.
	assert.Equal(t, 2, c.PoolSize("1v1", 1))
}

func TestReconcileLeavesFreshClaimsAlone(t *testing.T) {
	ctx := context.Background()
	c, lobbies := newTestCoordinator(t)

	a, err := models.NewLobby(uuid.New(), "1v1")
	require.NoError(t, err)
	now := time.Now()
	a.State = models.StateClaiming
	a.ClaimedAt = &now
	require.NoError(t, lobbies.Create(ctx, a))

	c.ReconcileStuckClaims(ctx)

	la, _, err := lobbies.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateClaiming, la.State)
}

func TestRunPairsOnEnqueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, lobbies := newTestCoordinator(t)
	go c.Run(ctx)

	a := seedSearching(t, c, lobbies, "1v1")
	b := seedSearching(t, c, lobbies, "1v1")

	require.Eventually(t, func() bool {
		la, _, err := lobbies.Get(ctx, a.ID)
		if err != nil {
			return false
		}
		lb, _, err := lobbies.Get(ctx, b.ID)
		if err != nil {
			return false
		}
		return la.State == models.StateMatched && lb.State == models.StateMatched
	}, 2*time.Second, 10*time.Millisecond)
}
