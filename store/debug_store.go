package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DebugStore keeps the raw provider and model payloads for a quote id in a
// Redis hash, field per provider variant ("deel:primary", "deel:comparison",
// "deel:local", "deel:comparison-local"). Reading a session's hash back answers
// "what did the provider actually send" without re-fetching.
type DebugStore struct {
	redisClient *redis.Client
	quotes      *QuoteStore
}

func NewDebugStore(redisClient *redis.Client, quotes *QuoteStore) *DebugStore {
	return &DebugStore{redisClient: redisClient, quotes: quotes}
}

func debugKey(id string) string {
	return "quote:" + id + ":debug"
}

// Record stashes one raw payload. Failures are reported, not fatal; debug
// capture must never take a quote session down.
func (d *DebugStore) Record(ctx context.Context, id, variant string, raw []byte) error {
	if id == "" || variant == "" || len(raw) == 0 {
		return nil
	}
	key := debugKey(id)
	if err := d.redisClient.HSet(ctx, key, variant, raw).Err(); err != nil {
		return fmt.Errorf("record debug payload: %w", err)
	}
	if err := d.redisClient.Expire(ctx, key, d.quotes.TTL()).Err(); err != nil {
		return fmt.Errorf("expire debug payload: %w", err)
	}
	return nil
}

// List returns every captured payload for a quote id, keyed by variant.
func (d *DebugStore) List(ctx context.Context, id string) (map[string]string, error) {
	entries, err := d.redisClient.HGetAll(ctx, debugKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("list debug payloads: %w", err)
	}
	return entries, nil
}
