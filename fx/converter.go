package fx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConvertResult is the outcome of one currency conversion. Success is false
// only on the soft-failure path where a caller chose to swallow the error;
// Convert itself reports hard failures through the error return.
type ConvertResult struct {
	Success      bool    `json:"success"`
	TargetAmount float64 `json:"targetAmount"`
	Rate         float64 `json:"rate"`
}

type ratesDocument struct {
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
}

const (
	defaultRatesURL  = "https://api.vatcomply.com/rates"
	defaultFXTimeout = 10 * time.Second
	defaultRateTTL   = 15 * time.Minute
)

// Converter resolves exchange rates from an external rates API and caches
// full rate tables per base currency in Redis. Dual-currency calculations
// hit the same base repeatedly across eight providers, so one fetch serves
// the whole fan-out.
type Converter struct {
	client   *http.Client
	apiURL   string
	redis    *redis.Client
	cacheTTL time.Duration
}

// NewConverter builds a converter from the environment. FX_API_URL overrides
// the rates endpoint and FX_CACHE_TTL the Redis cache lifetime. The Redis
// client may be nil; the converter then fetches on every call.
func NewConverter(redisClient *redis.Client) *Converter {
	apiURL := strings.TrimSpace(os.Getenv("FX_API_URL"))
	if apiURL == "" {
		apiURL = defaultRatesURL
	}

	cacheTTL := defaultRateTTL
	if raw := strings.TrimSpace(os.Getenv("FX_CACHE_TTL")); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cacheTTL = d
		} else {
			log.Printf("fx: invalid FX_CACHE_TTL %q, using %s", raw, defaultRateTTL)
		}
	}

	return &Converter{
		client:   &http.Client{Timeout: defaultFXTimeout},
		apiURL:   apiURL,
		redis:    redisClient,
		cacheTTL: cacheTTL,
	}
}

func rateCacheKey(base string) string {
	return "fx:rates:" + base
}

// Convert converts amount from one ISO currency code to another.
func (c *Converter) Convert(ctx context.Context, amount float64, from, to string) (ConvertResult, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == "" || to == "" {
		return ConvertResult{}, errors.New("fx: missing currency code")
	}
	if from == to {
		return ConvertResult{Success: true, TargetAmount: amount, Rate: 1}, nil
	}

	rates, err := c.rates(ctx, from)
	if err != nil {
		return ConvertResult{}, err
	}
	rate, ok := rates[to]
	if !ok || rate <= 0 {
		return ConvertResult{}, fmt.Errorf("fx: no rate for %s/%s", from, to)
	}
	return ConvertResult{Success: true, TargetAmount: amount * rate, Rate: rate}, nil
}

// rates returns the full rate table for a base currency, serving from the
// Redis cache when a fresh copy exists.
func (c *Converter) rates(ctx context.Context, base string) (map[string]float64, error) {
	if c.redis != nil {
		cached, err := c.redis.Get(ctx, rateCacheKey(base)).Result()
		if err == nil {
			var doc ratesDocument
			if jsonErr := json.Unmarshal([]byte(cached), &doc); jsonErr == nil && len(doc.Rates) > 0 {
				return doc.Rates, nil
			}
			log.Printf("fx: discarding unreadable cached rates for %s", base)
		} else if err != redis.Nil {
			log.Printf("fx: rate cache read failed for %s: %v", base, err)
		}
	}

	doc, raw, err := c.fetchRates(ctx, base)
	if err != nil {
		return nil, err
	}

	if c.redis != nil {
		if err := c.redis.Set(ctx, rateCacheKey(base), raw, c.cacheTTL).Err(); err != nil {
			log.Printf("fx: rate cache write failed for %s: %v", base, err)
		}
	}
	return doc.Rates, nil
}

func (c *Converter) fetchRates(ctx context.Context, base string) (ratesDocument, []byte, error) {
	endpoint := fmt.Sprintf("%s?base=%s", c.apiURL, url.QueryEscape(base))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ratesDocument{}, nil, fmt.Errorf("fx: build rates request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return ratesDocument{}, nil, fmt.Errorf("fx: fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ratesDocument{}, nil, fmt.Errorf("fx: rates API returned %s", resp.Status)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return ratesDocument{}, nil, fmt.Errorf("fx: read rates response: %w", err)
	}

	var doc ratesDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ratesDocument{}, nil, fmt.Errorf("fx: decode rates response: %w", err)
	}
	if len(doc.Rates) == 0 {
		return ratesDocument{}, nil, fmt.Errorf("fx: rates API returned no rates for %s", base)
	}
	return doc, raw, nil
}
