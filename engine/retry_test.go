package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hirequote-cloud/enhance"
	"hirequote-cloud/providers"
)

func newRetrySession(t *testing.T, enh Enhancer, cfg Config) *Session {
	t.Helper()
	reg := providers.NewStaticRegistry("deel", [][]string{{"deel"}}, newFakeAdapter("deel"))
	h := newSessionHarness(t, baseForm(), reg, enh, &fakeConverter{}, cfg)
	return h.sess
}

func TestEnhanceWithRetryBacksOffOnRateLimit(t *testing.T) {
	enh := &fakeEnhancer{}
	enh.setRespond(func(call int, provider string) error {
		if call <= 2 {
			return &enhance.APIError{Status: 429, Message: "slow down"}
		}
		return nil
	})

	cfg := fastConfig()
	cfg.RetryBaseDelay = 20 * time.Millisecond
	sess := newRetrySession(t, enh, cfg)

	start := time.Now()
	enhanced, err := sess.enhanceWithRetry(context.Background(), "deel", stubQuote("deel", providers.QuoteRequest{Country: "Germany", Currency: "EUR"}), baseForm())
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.True(t, enhanced.Enhanced)
	require.Equal(t, 3, enh.callCount())
	// First retry waits 20ms, second 40ms.
	require.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
}

func TestEnhanceWithRetryNonRetryableFailsImmediately(t *testing.T) {
	wantErr := errors.New("model returned malformed content")
	enh := &fakeEnhancer{}
	enh.setRespond(func(call int, provider string) error { return wantErr })

	sess := newRetrySession(t, enh, fastConfig())

	_, err := sess.enhanceWithRetry(context.Background(), "deel", stubQuote("deel", providers.QuoteRequest{}), baseForm())
	require.ErrorIs(t, err, wantErr)
	require.Equal(t, 1, enh.callCount())
}

func TestEnhanceWithRetryExhaustsAndReturnsLastError(t *testing.T) {
	enh := &fakeEnhancer{}
	enh.setRespond(func(call int, provider string) error {
		return &enhance.APIError{Status: 429, Message: fmt.Sprintf("attempt %d", call)}
	})

	cfg := fastConfig()
	cfg.MaxRetries = 2
	cfg.RetryBaseDelay = time.Millisecond
	sess := newRetrySession(t, enh, cfg)

	_, err := sess.enhanceWithRetry(context.Background(), "deel", stubQuote("deel", providers.QuoteRequest{}), baseForm())
	require.Error(t, err)
	require.Equal(t, 3, enh.callCount(), "initial call plus two retries")

	var apiErr *enhance.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 429, apiErr.Status)
	require.Contains(t, apiErr.Message, "attempt 3")
}

func TestEnhanceWithRetryDisabledMeansOneCall(t *testing.T) {
	enh := &fakeEnhancer{}
	enh.setRespond(func(call int, provider string) error {
		return &enhance.APIError{Status: 503, Message: "unavailable"}
	})

	cfg := fastConfig()
	cfg.MaxRetries = -1
	sess := newRetrySession(t, enh, cfg)

	_, err := sess.enhanceWithRetry(context.Background(), "deel", stubQuote("deel", providers.QuoteRequest{}), baseForm())
	require.Error(t, err)
	require.Equal(t, 1, enh.callCount())
}

func TestEnhanceWithRetryCancelledDuringBackoff(t *testing.T) {
	enh := &fakeEnhancer{}
	enh.setRespond(func(call int, provider string) error {
		return &enhance.APIError{Status: 429, Message: "slow down"}
	})

	cfg := fastConfig()
	cfg.RetryBaseDelay = time.Minute
	sess := newRetrySession(t, enh, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	_, err := sess.enhanceWithRetry(ctx, "deel", stubQuote("deel", providers.QuoteRequest{}), baseForm())
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, enh.callCount())
	require.Less(t, time.Since(start), 5*time.Second, "cancel must cut the backoff wait short")
}

func TestIsRetryableEnhancementError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"status 429", &enhance.APIError{Status: 429, Message: "x"}, true},
		{"status 503", &enhance.APIError{Status: 503, Message: "x"}, true},
		{"status 504", &enhance.APIError{Status: 504, Message: "x"}, true},
		{"status 500", &enhance.APIError{Status: 500, Message: "boom"}, false},
		{"status 401", &enhance.APIError{Status: 401, Message: "bad key"}, false},
		{"wrapped 429", fmt.Errorf("enhance deel: %w", &enhance.APIError{Status: 429, Message: "x"}), true},
		{"rate limit text", errors.New("Rate Limit exceeded, retry later"), true},
		{"timeout text", errors.New("connection timeout"), true},
		{"too many requests text", errors.New("Too Many Requests"), true},
		{"plain failure", errors.New("invalid response shape"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, isRetryableEnhancementError(tc.err))
		})
	}
}

func TestIsRateLimitError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"provider 429 status text", errors.New(`provider returned 429 Too Many Requests: {"error":"slow down"}`), true},
		{"rate limit wording", errors.New("deel rate limit hit"), true},
		{"server error", errors.New("provider returned 500 Internal Server Error: boom"), false},
		{"timeout is not a rate limit", errors.New("connection timeout"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, isRateLimitError(tc.err))
		})
	}
}
