package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigWithDefaultsFillsZeroValues(t *testing.T) {
	cfg := Config{}.withDefaults()
	require.Equal(t, defaultMaxConcurrentEnhancements, cfg.MaxConcurrentEnhancements)
	require.Equal(t, defaultMaxRetries, cfg.MaxRetries)
	require.Equal(t, defaultRetryBaseDelay, cfg.RetryBaseDelay)
	require.Equal(t, defaultBatchDelay, cfg.BatchDelay)
	require.False(t, cfg.Sequential)
}

func TestConfigWithDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := Config{
		MaxConcurrentEnhancements: 1,
		MaxRetries:                5,
		RetryBaseDelay:            time.Millisecond,
		BatchDelay:                0, // zero means no pause between batches
		Sequential:                true,
	}.withDefaults()
	require.Equal(t, 1, cfg.MaxConcurrentEnhancements)
	require.Equal(t, 5, cfg.MaxRetries)
	require.Equal(t, time.Millisecond, cfg.RetryBaseDelay)
	require.Zero(t, cfg.BatchDelay)
	require.True(t, cfg.Sequential)
}

func TestConfigMaxRetriesMinusOneDisables(t *testing.T) {
	cfg := Config{MaxRetries: -1}.withDefaults()
	require.Zero(t, cfg.MaxRetries)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("QUOTE_MAX_CONCURRENT_ENHANCEMENTS", "5")
	t.Setenv("QUOTE_ENHANCE_MAX_RETRIES", "1")
	t.Setenv("QUOTE_ENHANCE_RETRY_DELAY", "250ms")
	t.Setenv("QUOTE_BATCH_DELAY", "bogus")
	t.Setenv("QUOTE_SEQUENTIAL_MODE", "true")

	cfg := ConfigFromEnv()
	require.Equal(t, 5, cfg.MaxConcurrentEnhancements)
	require.Equal(t, 1, cfg.MaxRetries)
	require.Equal(t, 250*time.Millisecond, cfg.RetryBaseDelay)
	require.Equal(t, defaultBatchDelay, cfg.BatchDelay, "unparseable value falls back")
	require.True(t, cfg.Sequential)
}
