package store

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisURL = "redis://localhost:6379"

// InitRedis connects to Redis using REDIS_URL (falls back to localhost) and
// verifies XADD/XREAD support so the per-quote event stream can rely on it.
// A bare host:port value is accepted and treated as redis://host:port.
func InitRedis(ctx context.Context) (*redis.Client, error) {
	url := strings.TrimSpace(os.Getenv("REDIS_URL"))
	if url == "" {
		url = defaultRedisURL
	}
	if !strings.Contains(url, "://") {
		url = "redis://" + url
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid REDIS_URL %q: %w", url, err)
	}

	client := redis.NewClient(opts)
	if err := verifyStreamOps(ctx, client); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func verifyStreamOps(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping failed: %w", err)
	}

	// The event bus runs on XADD/XREAD; prove both work before serving.
	probe := "quote:stream:bootstrap-check"
	msgID, err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: probe,
		Values: map[string]any{
			"msg": "redis-online-check",
			"ts":  time.Now().UTC().Format(time.RFC3339Nano),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("redis: XADD failed: %w", err)
	}

	res, err := client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{probe, "0"},
		Count:   1,
		Block:   time.Second,
	}).Result()
	if err != nil {
		return fmt.Errorf("redis: XREAD failed: %w", err)
	}
	if len(res) == 0 || len(res[0].Messages) == 0 {
		return fmt.Errorf("redis: XREAD returned no messages for %s", msgID)
	}

	if err := client.Del(ctx, probe).Err(); err != nil {
		return fmt.Errorf("redis: probe cleanup: %w", err)
	}
	return nil
}
