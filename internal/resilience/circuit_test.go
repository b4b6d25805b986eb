package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contract-validator/internal/config"
)

var errUpstream = NewTransientError(eris.New("upstream 503"), 503)

func failN(cb *CircuitBreaker, n int, err error) {
	for range n {
		_ = cb.Execute(context.Background(), func(context.Context) error { return err })
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("anthropic", CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	failN(cb, 2, errUpstream)
	assert.Equal(t, CircuitClosed, cb.State())

	failN(cb, 1, errUpstream)
	assert.Equal(t, CircuitOpen, cb.State())

	called := false
	err := cb.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.False(t, called)
	assert.True(t, errors.Is(err, ErrCircuitOpen))
	assert.Contains(t, err.Error(), "anthropic")
}

func TestCircuitBreaker_PermanentErrorsDoNotTrip(t *testing.T) {
	cb := NewCircuitBreaker("anthropic", CircuitBreakerConfig{FailureThreshold: 2})
	failN(cb, 5, eris.New("model returned invalid json"))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb := NewCircuitBreaker("ocr", CircuitBreakerConfig{FailureThreshold: 2})
	failN(cb, 1, errUpstream)
	require.NoError(t, cb.Execute(context.Background(), func(context.Context) error { return nil }))
	failN(cb, 1, errUpstream)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("notion", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Second})
	cb.nowFunc = func() time.Time { return now }

	failN(cb, 1, errUpstream)
	assert.Equal(t, CircuitOpen, cb.State())

	now = now.Add(11 * time.Second)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	// A failed probe reopens.
	failN(cb, 1, errUpstream)
	assert.Equal(t, CircuitOpen, cb.State())

	now = now.Add(11 * time.Second)
	v, err := ExecuteVal(context.Background(), cb, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker("x", CircuitBreakerConfig{FailureThreshold: 1})
	failN(cb, 1, errUpstream)
	cb.Reset()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestServiceBreakers(t *testing.T) {
	sb := NewServiceBreakers(CircuitBreakerConfig{FailureThreshold: 1})
	a := sb.Get("anthropic")
	assert.Same(t, a, sb.Get("anthropic"))
	assert.NotSame(t, a, sb.Get("mistral"))

	failN(a, 1, errUpstream)
	states := sb.States()
	assert.Equal(t, CircuitOpen, states["anthropic"])
	assert.Equal(t, CircuitClosed, states["mistral"])
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(9).String())
}

func TestCircuitFromConfig(t *testing.T) {
	cfg := CircuitFromConfig(config.CircuitConfig{FailureThreshold: 10, ResetTimeoutSecs: 60})
	assert.Equal(t, 10, cfg.FailureThreshold)
	assert.Equal(t, time.Minute, cfg.ResetTimeout)

	assert.Equal(t, DefaultCircuitBreakerConfig(), CircuitFromConfig(config.CircuitConfig{}))
}
