package engine

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config tunes one quote session's scheduling. Unset fields fall back to
// production defaults, so tests can set only what they exercise.
type Config struct {
	// MaxConcurrentEnhancements bounds enhancement model calls in flight
	// across all batches.
	MaxConcurrentEnhancements int
	// MaxRetries is the number of re-attempts after the first enhancement
	// call (3 means up to 4 calls). The zero value falls back to the
	// default; set -1 to disable retries.
	MaxRetries int
	// RetryBaseDelay is the first backoff step; it doubles per attempt.
	RetryBaseDelay time.Duration
	// BatchDelay is the pause between settled enhancement batches. Zero
	// means no pause; only negative values fall back to the default.
	BatchDelay time.Duration
	// Sequential switches to the legacy one-provider-at-a-time scheduler,
	// which carries the rate-limit circuit breaker.
	Sequential bool
}

const (
	defaultMaxConcurrentEnhancements = 3
	defaultMaxRetries                = 3
	defaultRetryBaseDelay            = time.Second
	defaultBatchDelay                = 500 * time.Millisecond
)

// ConfigFromEnv reads the scheduling knobs from the environment.
func ConfigFromEnv() Config {
	cfg := Config{
		MaxConcurrentEnhancements: envInt("QUOTE_MAX_CONCURRENT_ENHANCEMENTS", defaultMaxConcurrentEnhancements),
		MaxRetries:                envInt("QUOTE_ENHANCE_MAX_RETRIES", defaultMaxRetries),
		RetryBaseDelay:            envDuration("QUOTE_ENHANCE_RETRY_DELAY", defaultRetryBaseDelay),
		BatchDelay:                envDuration("QUOTE_BATCH_DELAY", defaultBatchDelay),
	}
	if raw := strings.TrimSpace(os.Getenv("QUOTE_SEQUENTIAL_MODE")); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			cfg.Sequential = v
		}
	}
	return cfg
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentEnhancements <= 0 {
		c.MaxConcurrentEnhancements = defaultMaxConcurrentEnhancements
	}
	switch {
	case c.MaxRetries == 0:
		c.MaxRetries = defaultMaxRetries
	case c.MaxRetries < 0:
		c.MaxRetries = 0
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = defaultRetryBaseDelay
	}
	if c.BatchDelay < 0 {
		c.BatchDelay = defaultBatchDelay
	}
	return c
}

func envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Printf("engine: invalid %s %q, using %d", key, raw, fallback)
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		log.Printf("engine: invalid %s %q, using %s", key, raw, fallback)
		return fallback
	}
	return d
}
