// Package matchmaking pairs compatible searching lobbies. The coordinator
// owns an in-memory pool of tickets, one per searching lobby, partitioned by
// (format, team size). Pairing commits through a two-phase claim against the
// versioned lobby store: tentatively mark one side claiming, confirm on the
// second, unwind on failure. The double version check guarantees no lobby is
// ever committed into two different pairs.
package matchmaking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/versus-live/versus/internal/models"
	"github.com/versus-live/versus/internal/presence"
	"github.com/versus-live/versus/internal/store"
)

// Policy defaults. Scan cadence bounds pairing latency; the accept timeout
// returns unresponsive pairs to the pool; the claim grace bounds how long a
// crashed mid-pairing write can leave a lobby stuck in claiming.
const (
	DefaultScanInterval  = 1500 * time.Millisecond
	DefaultAcceptTimeout = 30 * time.Second
	DefaultClaimGrace    = 10 * time.Second
	// DefaultMaxScan caps how many of the oldest tickets a single pairing
	// pass considers per partition. Purely a performance valve; correctness
	// rides on the version checks regardless of scan order.
	DefaultMaxScan = 64
)

// Ticket marks one searching lobby's spot in the pool. Ephemeral: it exists
// only in coordinator memory and only while the lobby is searching.
type Ticket struct {
	LobbyID    uuid.UUID
	Format     string
	TeamSize   int
	EnqueuedAt time.Time
}

type partitionKey struct {
	format   string
	teamSize int
}

// Config tunes the coordinator; zero values take the defaults above.
type Config struct {
	ScanInterval  time.Duration
	AcceptTimeout time.Duration
	ClaimGrace    time.Duration
	MaxScan       int
}

func (c *Config) fill() {
	if c.ScanInterval <= 0 {
		c.ScanInterval = DefaultScanInterval
	}
	if c.AcceptTimeout <= 0 {
		c.AcceptTimeout = DefaultAcceptTimeout
	}
	if c.ClaimGrace <= 0 {
		c.ClaimGrace = DefaultClaimGrace
	}
	if c.MaxScan <= 0 {
		c.MaxScan = DefaultMaxScan
	}
}

// Coordinator pairs searching lobbies. The pool is single-writer: all
// mutations go through the coordinator's mutex, and pairing decisions are
// made against that consistent view before the conditional double-write.
type Coordinator struct {
	mu    sync.Mutex
	pools map[partitionKey][]*Ticket

	lobbies store.LobbyStore
	channel presence.Channel
	logger  *logrus.Logger
	cfg     Config
	now     func() time.Time

	kick chan struct{}
}

func NewCoordinator(lobbies store.LobbyStore, channel presence.Channel, logger *logrus.Logger, cfg Config) *Coordinator {
	cfg.fill()
	return &Coordinator{
		pools:   make(map[partitionKey][]*Ticket),
		lobbies: lobbies,
		channel: channel,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
		kick:    make(chan struct{}, 1),
	}
}

// Enqueue inserts a ticket for a searching lobby. Exactly one ticket may
// exist per lobby; a duplicate insert is ignored. The scan loop is nudged so
// an immediate counterpart does not wait out a full interval.
func (c *Coordinator) Enqueue(lobbyID uuid.UUID, format string, teamSize int) {
	key := partitionKey{format: format, teamSize: teamSize}
	c.mu.Lock()
	for _, t := range c.pools[key] {
		if t.LobbyID == lobbyID {
			c.mu.Unlock()
			return
		}
	}
	c.pools[key] = append(c.pools[key], &Ticket{
		LobbyID:    lobbyID,
		Format:     format,
		TeamSize:   teamSize,
		EnqueuedAt: c.now(),
	})
	c.mu.Unlock()

	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// Dequeue removes the lobby's ticket, whatever partition holds it. Called
// the instant a lobby leaves searching for any reason.
func (c *Coordinator) Dequeue(lobbyID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, pool := range c.pools {
		for i, t := range pool {
			if t.LobbyID == lobbyID {
				c.pools[key] = append(pool[:i], pool[i+1:]...)
				if len(c.pools[key]) == 0 {
					delete(c.pools, key)
				}
				return
			}
		}
	}
}

// PoolSize reports how many tickets sit in the (format, teamSize) partition.
func (c *Coordinator) PoolSize(format string, teamSize int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pools[partitionKey{format: format, teamSize: teamSize}])
}

// Run drives the scan loop and the two sweeps until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.ScanInterval)
	defer ticker.Stop()
	c.logger.WithField("interval", c.cfg.ScanInterval).Info("matchmaking coordinator started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("matchmaking coordinator stopped")
			return
		case <-c.kick:
			c.ScanOnce(ctx)
		case <-ticker.C:
			c.ResyncTickets(ctx)
			c.ScanOnce(ctx)
			c.ReapExpiredMatches(ctx)
			c.ReconcileStuckClaims(ctx)
		}
	}
}

// ScanOnce runs one pairing pass over every partition: oldest ticket first,
// first compatible counterpart wins. Failed attempts (stale versions) are
// normal outcomes; both tickets stay queued for the next pass.
func (c *Coordinator) ScanOnce(ctx context.Context) {
	for _, key := range c.partitionKeys() {
		c.scanPartition(ctx, key)
	}
}

func (c *Coordinator) partitionKeys() []partitionKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]partitionKey, 0, len(c.pools))
	for key := range c.pools {
		keys = append(keys, key)
	}
	return keys
}

func (c *Coordinator) scanPartition(ctx context.Context, key partitionKey) {
	// Work on a bounded snapshot of the oldest tickets; the pool is FIFO by
	// construction so the front of the slice is the oldest.
	c.mu.Lock()
	pool := c.pools[key]
	n := len(pool)
	if n > c.cfg.MaxScan {
		n = c.cfg.MaxScan
	}
	candidates := make([]*Ticket, n)
	copy(candidates, pool[:n])
	c.mu.Unlock()

	paired := make(map[uuid.UUID]bool)
	for i := 0; i < len(candidates); i++ {
		a := candidates[i]
		if paired[a.LobbyID] {
			continue
		}
		for j := i + 1; j < len(candidates); j++ {
			b := candidates[j]
			if paired[b.LobbyID] {
				continue
			}
			res := c.attemptPair(ctx, a, b)
			if res.dropA {
				c.Dequeue(a.LobbyID)
				paired[a.LobbyID] = true
			}
			if res.dropB {
				c.Dequeue(b.LobbyID)
				paired[b.LobbyID] = true
			}
			if res.committed {
				c.Dequeue(a.LobbyID)
				c.Dequeue(b.LobbyID)
				paired[a.LobbyID] = true
				paired[b.LobbyID] = true
			}
			if res.committed || res.dropA {
				break
			}
		}
	}
}

type pairResult struct {
	committed bool
	// dropA/dropB: the lobby is no longer searching at all (cancelled,
	// already paired elsewhere, deleted); its ticket must go.
	dropA bool
	dropB bool
}

// attemptPair is the two-phase claim. Both lobbies are read fresh; both
// conditional writes must land against the versions just read. Any conflict
// aborts the attempt and leaves the pool untouched.
func (c *Coordinator) attemptPair(ctx context.Context, a, b *Ticket) pairResult {
	la, va, err := c.lobbies.Get(ctx, a.LobbyID)
	if err != nil {
		return pairResult{dropA: errors.Is(err, store.ErrNotFound)}
	}
	if la.State != models.StateSearching {
		return pairResult{dropA: true}
	}
	lb, vb, err := c.lobbies.Get(ctx, b.LobbyID)
	if err != nil {
		return pairResult{dropB: errors.Is(err, store.ErrNotFound)}
	}
	if lb.State != models.StateSearching {
		return pairResult{dropB: true}
	}

	now := c.now()

	// Phase one: tentative claim on A.
	la.State = models.StateClaiming
	la.PairedLobbyID = &lb.ID
	la.ClaimedAt = &now
	if err := c.lobbies.PutIfVersion(ctx, la, va); err != nil {
		// A moved under us (member left, search cancelled). Normal outcome.
		return pairResult{}
	}
	c.publish(ctx, la, va+1)

	// Phase two: commit B as matched.
	lb.State = models.StateMatched
	lb.PairedLobbyID = &la.ID
	lb.MatchedAt = &now
	if err := c.lobbies.PutIfVersion(ctx, lb, vb); err != nil {
		c.unwindClaim(ctx, la.ID, lb.ID)
		return pairResult{}
	}
	c.publish(ctx, lb, vb+1)

	// Confirm A. Our claim write owns version va+1; if someone cancelled the
	// lobby in the meantime, release B back to the pool instead.
	la.State = models.StateMatched
	la.MatchedAt = &now
	la.ClaimedAt = nil
	if err := c.lobbies.PutIfVersion(ctx, la, va+1); err != nil {
		c.releaseToSearching(ctx, lb.ID, la.ID)
		c.Enqueue(lb.ID, b.Format, b.TeamSize)
		return pairResult{dropA: true}
	}
	c.publish(ctx, la, va+2)

	c.logger.WithFields(logrus.Fields{
		"lobby_a": la.ID,
		"lobby_b": lb.ID,
		"format":  a.Format,
	}).Info("lobbies paired")
	return pairResult{committed: true}
}

// unwindClaim reverts a tentative claim left by a failed phase two.
func (c *Coordinator) unwindClaim(ctx context.Context, claimedID, pairTargetID uuid.UUID) {
	l, v, err := c.lobbies.Get(ctx, claimedID)
	if err != nil {
		return
	}
	if l.State != models.StateClaiming || l.PairedLobbyID == nil || *l.PairedLobbyID != pairTargetID {
		return
	}
	l.ClearMatch()
	l.State = models.StateSearching
	if err := c.lobbies.PutIfVersion(ctx, l, v); err != nil {
		c.logger.WithError(err).WithField("lobby_id", claimedID).Warn("failed to unwind pairing claim")
		return
	}
	c.publish(ctx, l, v+1)
}

// releaseToSearching drops a matched lobby whose pairing fell through back
// into the searching state, provided it still points at the broken pair.
func (c *Coordinator) releaseToSearching(ctx context.Context, lobbyID, brokenPairID uuid.UUID) {
	l, v, err := c.lobbies.Get(ctx, lobbyID)
	if err != nil {
		return
	}
	if l.State != models.StateMatched || l.PairedLobbyID == nil || *l.PairedLobbyID != brokenPairID {
		return
	}
	l.ClearMatch()
	l.State = models.StateSearching
	if err := c.lobbies.PutIfVersion(ctx, l, v); err != nil {
		c.logger.WithError(err).WithField("lobby_id", lobbyID).Warn("failed to release matched lobby")
		return
	}
	c.publish(ctx, l, v+1)
}

// ResyncTickets re-seeds tickets for searching lobbies that have none. The
// pool lives only in coordinator memory, so a restart strands every searching
// lobby until this runs; Enqueue's dedupe makes the resync idempotent.
func (c *Coordinator) ResyncTickets(ctx context.Context) {
	ids, err := c.lobbies.ListByState(ctx, models.StateSearching)
	if err != nil {
		c.logger.WithError(err).Warn("failed to list searching lobbies")
		return
	}
	for _, id := range ids {
		l, _, err := c.lobbies.Get(ctx, id)
		if err != nil || l.State != models.StateSearching {
			continue
		}
		c.Enqueue(l.ID, l.Format, l.TeamSize)
	}
}

// ReapExpiredMatches reverts matched pairs whose accept window lapsed back
// to searching and re-enqueues them. A timeout is not a decline: no
// cooldown entry is created.
func (c *Coordinator) ReapExpiredMatches(ctx context.Context) {
	ids, err := c.lobbies.ListByState(ctx, models.StateMatched)
	if err != nil {
		c.logger.WithError(err).Warn("failed to list matched lobbies")
		return
	}
	cutoff := c.now().Add(-c.cfg.AcceptTimeout)
	for _, id := range ids {
		l, v, err := c.lobbies.Get(ctx, id)
		if err != nil {
			continue
		}
		if l.State != models.StateMatched || l.MatchedAt == nil || !l.MatchedAt.Before(cutoff) {
			continue
		}
		format, size := l.Format, l.TeamSize
		l.ClearMatch()
		l.State = models.StateSearching
		if err := c.lobbies.PutIfVersion(ctx, l, v); err != nil {
			continue
		}
		c.publish(ctx, l, v+1)
		c.Enqueue(id, format, size)
		c.logger.WithField("lobby_id", id).Info("match accept window expired, lobby re-entered pool")
	}
}

// ReconcileStuckClaims unwinds lobbies stranded in claiming past the grace
// period — the one place a crash mid-pairing can leave inconsistent state.
// The claim target, if it was already committed as matched against the stuck
// lobby, is released back to searching too.
func (c *Coordinator) ReconcileStuckClaims(ctx context.Context) {
	ids, err := c.lobbies.ListByState(ctx, models.StateClaiming)
	if err != nil {
		c.logger.WithError(err).Warn("failed to list claiming lobbies")
		return
	}
	cutoff := c.now().Add(-c.cfg.ClaimGrace)
	for _, id := range ids {
		l, v, err := c.lobbies.Get(ctx, id)
		if err != nil {
			continue
		}
		if l.State != models.StateClaiming || l.ClaimedAt == nil || !l.ClaimedAt.Before(cutoff) {
			continue
		}
		target := l.PairedLobbyID
		format, size := l.Format, l.TeamSize
		l.ClearMatch()
		l.State = models.StateSearching
		if err := c.lobbies.PutIfVersion(ctx, l, v); err != nil {
			continue
		}
		c.publish(ctx, l, v+1)
		c.Enqueue(id, format, size)
		if target != nil {
			c.releaseToSearching(ctx, *target, id)
			if t, _, err := c.lobbies.Get(ctx, *target); err == nil && t.State == models.StateSearching {
				c.Enqueue(t.ID, t.Format, t.TeamSize)
			}
		}
		c.logger.WithField("lobby_id", id).Warn("stuck pairing claim unwound")
	}
}

// SetNow overrides the clock; tests only.
func (c *Coordinator) SetNow(now func() time.Time) { c.now = now }

func (c *Coordinator) publish(ctx context.Context, lob *models.Lobby, version int64) {
	ev := presence.Event{
		Type:    presence.EventLobbyState,
		Payload: presence.LobbySnapshot{Lobby: lob, Version: version},
	}
	if err := c.channel.Publish(ctx, presence.LobbyTopic(lob.ID), ev); err != nil {
		c.logger.WithError(err).WithField("lobby_id", lob.ID).Warn("failed to publish lobby snapshot")
	}
}
