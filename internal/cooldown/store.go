package cooldown

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/versus-live/versus/internal/models"
)

// RedisStore keeps one key per user with a native TTL, so Redis itself
// garbage-collects expired entries and Get never needs a sweep.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func cooldownKey(userID uuid.UUID) string {
	return fmt.Sprintf("cooldown:%s", userID)
}

func (s *RedisStore) Put(ctx context.Context, entry models.CooldownEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cooldown entry: %w", err)
	}
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	return s.rdb.Set(ctx, cooldownKey(entry.UserID), data, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, userID uuid.UUID) (models.CooldownEntry, bool, error) {
	data, err := s.rdb.Get(ctx, cooldownKey(userID)).Bytes()
	if err == redis.Nil {
		return models.CooldownEntry{}, false, nil
	}
	if err != nil {
		return models.CooldownEntry{}, false, err
	}
	var entry models.CooldownEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return models.CooldownEntry{}, false, fmt.Errorf("failed to unmarshal cooldown entry: %w", err)
	}
	return entry, true, nil
}

// MemoryStore is the test/dev backend. Expired entries linger until the
// next Put for the same user; Tracker ignores them on read.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]models.CooldownEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[uuid.UUID]models.CooldownEntry)}
}

func (s *MemoryStore) Put(ctx context.Context, entry models.CooldownEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.UserID] = entry
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, userID uuid.UUID) (models.CooldownEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[userID]
	return entry, ok, nil
}

// Purge drops expired entries; storage hygiene only, never correctness.
func (s *MemoryStore) Purge(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.entries {
		if !entry.Active(now) {
			delete(s.entries, id)
		}
	}
}
