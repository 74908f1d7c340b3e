package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"hirequote-cloud/quote"
)

// ErrNotFound marks a quote id with no stored record. Callers must not
// confuse it with IO failure: a missing record means "start fresh", a broken
// store means the whole quote session has to error out.
var ErrNotFound = errors.New("quote record not found")

const defaultQuoteTTL = 24 * time.Hour

// QuoteStore persists QuoteData records in Redis as JSON under quote:<id>.
// Every merge rewrites the full record; the TTL slides on each write so an
// active session never expires mid-calculation.
type QuoteStore struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewQuoteStore builds a store with the TTL taken from QUOTE_TTL (default 24h).
func NewQuoteStore(redisClient *redis.Client) *QuoteStore {
	ttl := defaultQuoteTTL
	if raw := strings.TrimSpace(os.Getenv("QUOTE_TTL")); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			ttl = d
		} else {
			log.Printf("store: invalid QUOTE_TTL %q, using %s", raw, defaultQuoteTTL)
		}
	}
	return &QuoteStore{redisClient: redisClient, ttl: ttl}
}

func quoteKey(id string) string {
	return "quote:" + id
}

// Save writes the full record for a quote id.
func (s *QuoteStore) Save(ctx context.Context, id string, data *quote.QuoteData) error {
	if id == "" {
		return errors.New("quote id is required")
	}
	if data == nil {
		return errors.New("no quote data to save")
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal quote record: %w", err)
	}
	if err := s.redisClient.Set(ctx, quoteKey(id), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("store quote record: %w", err)
	}
	return nil
}

// Load reads the record for a quote id. Returns ErrNotFound when the id has
// no record (expired or never created).
func (s *QuoteStore) Load(ctx context.Context, id string) (*quote.QuoteData, error) {
	raw, err := s.redisClient.Get(ctx, quoteKey(id)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("load quote record: %w", err)
	}

	var data quote.QuoteData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("decode quote record: %w", err)
	}
	return &data, nil
}

// Delete removes a record and its debug payloads.
func (s *QuoteStore) Delete(ctx context.Context, id string) error {
	if err := s.redisClient.Del(ctx, quoteKey(id), debugKey(id)).Err(); err != nil {
		return fmt.Errorf("delete quote record: %w", err)
	}
	return nil
}

// TTL exposes the configured record lifetime.
func (s *QuoteStore) TTL() time.Duration {
	return s.ttl
}
