package cache

import (
	"context"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// MessageDeduper remembers provider message ids for a while so webhook
// redeliveries can be dropped before touching the database.
type MessageDeduper struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewMessageDeduper(client *redisv9.Client, ttl time.Duration) *MessageDeduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MessageDeduper{client: client, ttl: ttl}
}

// FirstSeen reports true exactly once per (provider, messageID) within the TTL.
func (d *MessageDeduper) FirstSeen(ctx context.Context, provider, messageID string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.key(provider, messageID), "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx dedup failed: %w", err)
	}
	return ok, nil
}

func (d *MessageDeduper) key(provider, messageID string) string {
	return fmt.Sprintf("wa:dedup:%s:%s", provider, messageID)
}
