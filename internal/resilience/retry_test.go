package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contract-validator/internal/config"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func TestDo_SucceedsAfterTransient(t *testing.T) {
	calls := 0
	var retried []int
	cfg := fastRetry(3)
	cfg.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(eris.New("overloaded"), 529)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_StopsOnPermanent(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(5), func(context.Context) error {
		calls++
		return eris.New("invalid json")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(4), func(context.Context) error {
		calls++
		return NewTransientError(eris.New("503"), 503)
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.True(t, IsTransient(err))
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, fastRetry(5), func(context.Context) error {
		calls++
		cancel()
		return NewTransientError(eris.New("timeout"), 504)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_ReturnsValue(t *testing.T) {
	calls := 0
	v, err := DoVal(context.Background(), fastRetry(3), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", eris.New("read: connection reset by peer")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestDoVal_CustomShouldRetry(t *testing.T) {
	cfg := fastRetry(3)
	cfg.ShouldRetry = func(error) bool { return true }
	calls := 0
	_, err := DoVal(context.Background(), cfg, func(context.Context) (int, error) {
		calls++
		return 0, eris.New("anything")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestBackoff_Bounds(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, Multiplier: 2}.withDefaults()
	assert.Equal(t, 100*time.Millisecond, cfg.backoff(0))
	assert.Equal(t, 400*time.Millisecond, cfg.backoff(2))
	assert.Equal(t, time.Second, cfg.backoff(10))

	cfg.JitterFraction = 0.5
	for range 50 {
		d := cfg.backoff(0)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestRetryFromConfig(t *testing.T) {
	cfg := RetryFromConfig(config.RetryConfig{
		MaxAttempts:      5,
		InitialBackoffMs: 200,
		MaxBackoffMs:     10_000,
		Multiplier:       3,
		JitterFraction:   0.1,
	})
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.InitialBackoff)
	assert.Equal(t, 10*time.Second, cfg.MaxBackoff)
	assert.Equal(t, 3.0, cfg.Multiplier)
	assert.Equal(t, 0.1, cfg.JitterFraction)

	assert.Equal(t, DefaultRetryConfig(), RetryFromConfig(config.RetryConfig{}))
}

func TestRetryFromConfig_ClampsMaxBackoff(t *testing.T) {
	cfg := RetryFromConfig(config.RetryConfig{InitialBackoffMs: 5000, MaxBackoffMs: 1000})
	assert.Equal(t, 5*time.Second, cfg.MaxBackoff)

	cfg = RetryFromConfig(config.RetryConfig{Multiplier: 0.5, JitterFraction: 2})
	assert.Equal(t, DefaultRetryConfig().Multiplier, cfg.Multiplier)
	assert.Equal(t, DefaultRetryConfig().JitterFraction, cfg.JitterFraction)
}

func TestRetryLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		RetryLogger("anthropic", "extract")(1, eris.New("boom"))
	})
}
