package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisChannel fans events out through Redis pub/sub, so every server
// instance sees transitions committed by any other instance.
type RedisChannel struct {
	rdb    *redis.Client
	logger *logrus.Logger
}

// ConnectRedis initializes a Redis client from environment variables:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
func ConnectRedis(ctx context.Context) (*redis.Client, error) {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

func NewRedisChannel(rdb *redis.Client, logger *logrus.Logger) *RedisChannel {
	return &RedisChannel{rdb: rdb, logger: logger}
}

func (c *RedisChannel) Publish(ctx context.Context, topic string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal presence event: %w", err)
	}
	if err := c.rdb.Publish(ctx, topic, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

func (c *RedisChannel) Subscribe(ctx context.Context, topic string) (<-chan Event, func(), error) {
	sub := c.rdb.Subscribe(ctx, topic)
	// Force the SUBSCRIBE round-trip so a bad topic/conn fails here, not later.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				c.logger.WithError(err).Warnf("presence: dropping malformed event on %s", topic)
				continue
			}
			select {
			case out <- ev:
			default:
				c.logger.Warnf("presence: subscriber on %s is slow, dropping event %s", topic, ev.Type)
			}
		}
	}()

	cancel := func() { _ = sub.Close() }
	return out, cancel, nil
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
