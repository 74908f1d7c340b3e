package engine

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"hirequote-cloud/enhance"
	"hirequote-cloud/quote"
)

// isRetryableEnhancementError classifies enhancement failures worth backing
// off for: explicit 429/503/504 statuses, or rate-limit/timeout wording from
// upstreams that don't set a status.
func isRetryableEnhancementError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *enhance.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case 429, 503, 504:
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "too many requests")
}

// isRateLimitError recognizes rate-limit-flavored provider failures. The
// sequential scheduler's circuit breaker keys off this; adapter errors carry
// the upstream status text ("429 Too Many Requests") for exactly this check.
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "429")
}

// enhanceWithRetry calls the enhancement model with exponential backoff on
// retryable failures. Delays double from RetryBaseDelay (1s, 2s, 4s with the
// defaults); non-retryable errors propagate immediately. The wait is
// cancellable so a closing session never sits out a backoff.
func (s *Session) enhanceWithRetry(ctx context.Context, provider string, base *quote.Quote, form quote.FormData) (*quote.Quote, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := s.cfg.RetryBaseDelay << (attempt - 1)
			log.Printf("engine: %s enhancement retry %d/%d in %s", provider, attempt, s.cfg.MaxRetries, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		enhanced, err := s.enhancer.EnhanceQuote(ctx, provider, base, form)
		if err == nil {
			return enhanced, nil
		}
		if !isRetryableEnhancementError(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}
