package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	streamKeyFormat   = "quote:%s:events"
	defaultBlock      = 5 * time.Second
	defaultBatchCount = 50
)

// Event is the typed form of a quote stream entry.
// Match client's expected JSON structure with capitalized field names
type Event struct {
	ID      string         `json:"ID"`
	Stream  string         `json:"Stream"`
	QuoteID string         `json:"QuoteID"`
	Values  map[string]any `json:"Values"`
}

// Bus provides typed helpers for the per-quote status stream. Every provider
// state transition and record status flip is appended here so the UI can
// follow a calculation live over SSE or WebSocket.
type Bus struct {
	client *redis.Client
	ttl    time.Duration
}

// NewBus creates a new status bus. The ttl bounds how long a finished
// session's stream lingers; it should match the quote record TTL.
func NewBus(client *redis.Client, ttl time.Duration) *Bus {
	return &Bus{client: client, ttl: ttl}
}

// StreamKey returns the canonical status stream key for a quote.
func StreamKey(quoteID string) string {
	return fmt.Sprintf(streamKeyFormat, strings.TrimSpace(quoteID))
}

// Append writes a payload to the quote's status stream, attaching a ts if missing.
func (b *Bus) Append(ctx context.Context, quoteID string, values map[string]any) (string, error) {
	if b == nil || b.client == nil {
		return "", fmt.Errorf("status bus not configured")
	}
	if strings.TrimSpace(quoteID) == "" {
		return "", fmt.Errorf("quote id is required")
	}

	if values == nil {
		values = make(map[string]any)
	}
	if _, ok := values["ts"]; !ok {
		values["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	}

	key := StreamKey(quoteID)
	id, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		Values: values,
	}).Result()
	if err != nil {
		return "", err
	}
	if b.ttl > 0 {
		if expErr := b.client.Expire(ctx, key, b.ttl).Err(); expErr != nil {
			return id, fmt.Errorf("expire status stream: %w", expErr)
		}
	}
	return id, nil
}

// PublishProviderState records a single provider's display-state transition.
func (b *Bus) PublishProviderState(ctx context.Context, quoteID, provider, state, detail string) (string, error) {
	values := map[string]any{
		"kind":     "provider_state",
		"provider": provider,
		"state":    state,
	}
	if detail != "" {
		values["detail"] = detail
	}
	return b.Append(ctx, quoteID, values)
}

// PublishStatus records a record-level status flip (calculating, completed, error).
func (b *Bus) PublishStatus(ctx context.Context, quoteID, status, detail string) (string, error) {
	values := map[string]any{
		"kind":   "status",
		"status": status,
	}
	if detail != "" {
		values["detail"] = detail
	}
	return b.Append(ctx, quoteID, values)
}

// Tail blocks for new events after afterID and returns them with the latest ID observed.
func (b *Bus) Tail(ctx context.Context, quoteID, afterID string) ([]Event, string, error) {
	if b == nil || b.client == nil {
		return nil, afterID, fmt.Errorf("status bus not configured")
	}

	if strings.TrimSpace(afterID) == "" {
		afterID = "$"
	}

	res, err := b.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{StreamKey(quoteID), afterID},
		Count:   defaultBatchCount,
		Block:   defaultBlock,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, afterID, nil
		}
		return nil, afterID, err
	}

	events := make([]Event, 0)
	nextID := afterID

	for _, stream := range res {
		for _, msg := range stream.Messages {
			values := make(map[string]any, len(msg.Values))
			for k, v := range msg.Values {
				values[k] = v
			}
			events = append(events, Event{
				ID:      msg.ID,
				Stream:  stream.Stream,
				QuoteID: quoteIDFromStream(stream.Stream),
				Values:  values,
			})
			nextID = msg.ID
		}
	}

	return events, nextID, nil
}

func quoteIDFromStream(stream string) string {
	parts := strings.Split(stream, ":")
	if len(parts) >= 2 {
		return parts[1]
	}
	return ""
}
