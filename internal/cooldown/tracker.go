// Package cooldown records match-decline penalties and answers whether a
// user is currently barred from matchmaking. The tracker is the sole writer
// of cooldown entries; lobby search uses it as a guard.
package cooldown

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/versus-live/versus/internal/models"
)

// DefaultDuration is how long a declined match blocks matchmaking.
const DefaultDuration = 3 * time.Minute

// BlockedError names the blocked user and when the block lifts, so callers
// can surface an actionable message instead of a generic failure.
type BlockedError struct {
	UserID uuid.UUID
	Until  time.Time
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("user %s is blocked from matchmaking until %s", e.UserID, e.Until.Format(time.RFC3339))
}

// Store is the entry storage backend. The Redis backend leans on key TTLs;
// the memory backend keeps a map and ignores expired entries on read.
type Store interface {
	Put(ctx context.Context, entry models.CooldownEntry) error
	// Get returns the entry for userID, expired or not. ok=false when absent.
	Get(ctx context.Context, userID uuid.UUID) (models.CooldownEntry, bool, error)
}

// Tracker applies the decline-penalty policy on top of a Store.
type Tracker struct {
	store    Store
	duration time.Duration
	logger   *logrus.Logger
	now      func() time.Time
}

func NewTracker(store Store, duration time.Duration, logger *logrus.Logger) *Tracker {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Tracker{
		store:    store,
		duration: duration,
		logger:   logger,
		now:      time.Now,
	}
}

// RecordDecline inserts or extends the user's cooldown entry:
// expires-at = now + duration, regardless of any earlier entry.
func (t *Tracker) RecordDecline(ctx context.Context, userID uuid.UUID) error {
	entry := models.CooldownEntry{
		UserID:    userID,
		ExpiresAt: t.now().Add(t.duration),
		Reason:    models.CooldownReasonDeclinedMatch,
	}
	if err := t.store.Put(ctx, entry); err != nil {
		return fmt.Errorf("failed to record decline cooldown: %w", err)
	}
	t.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"expires_at": entry.ExpiresAt,
	}).Info("matchmaking cooldown recorded")
	return nil
}

// IsBlocked reports whether an unexpired entry exists, and until when.
func (t *Tracker) IsBlocked(ctx context.Context, userID uuid.UUID) (bool, time.Time, error) {
	entry, ok, err := t.store.Get(ctx, userID)
	if err != nil {
		return false, time.Time{}, err
	}
	if !ok || !entry.Active(t.now()) {
		return false, time.Time{}, nil
	}
	return true, entry.ExpiresAt, nil
}

// Check returns a *BlockedError if the user is blocked, nil otherwise.
func (t *Tracker) Check(ctx context.Context, userID uuid.UUID) error {
	blocked, until, err := t.IsBlocked(ctx, userID)
	if err != nil {
		return err
	}
	if blocked {
		return &BlockedError{UserID: userID, Until: until}
	}
	return nil
}

// SetNow overrides the clock; tests only.
func (t *Tracker) SetNow(now func() time.Time) { t.now = now }
