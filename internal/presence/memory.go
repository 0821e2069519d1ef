package presence

import (
	"context"
	"sync"
)

// MemoryChannel is an in-process Channel for tests and single-node dev mode.
// Non-blocking sends mirror the Redis backend: a slow subscriber loses
// events instead of stalling everyone else.
type MemoryChannel struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan Event
}

func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{
		subs: make(map[string]map[int]chan Event),
	}
}

func (c *MemoryChannel) Publish(ctx context.Context, topic string, ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subs[topic] {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (c *MemoryChannel) Subscribe(ctx context.Context, topic string) (<-chan Event, func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.subs[topic]; !ok {
		c.subs[topic] = make(map[int]chan Event)
	}
	id := c.nextID
	c.nextID++
	ch := make(chan Event, 16)
	c.subs[topic][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if subs, ok := c.subs[topic]; ok {
				if ch, ok := subs[id]; ok {
					delete(subs, id)
					close(ch)
					if len(subs) == 0 {
						delete(c.subs, topic)
					}
				}
			}
		})
	}
	return ch, cancel, nil
}
