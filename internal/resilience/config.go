package resilience

import (
	"time"

	"github.com/sells-group/contract-validator/internal/config"
)

// RetryFromConfig layers the configured retry settings over
// DefaultRetryConfig. Unset (zero) settings keep their defaults.
func RetryFromConfig(c config.RetryConfig) RetryConfig {
	out := DefaultRetryConfig()
	if c.MaxAttempts > 0 {
		out.MaxAttempts = c.MaxAttempts
	}
	if c.InitialBackoffMs > 0 {
		out.InitialBackoff = time.Duration(c.InitialBackoffMs) * time.Millisecond
	}
	if c.MaxBackoffMs > 0 {
		out.MaxBackoff = time.Duration(c.MaxBackoffMs) * time.Millisecond
	}
	if out.MaxBackoff < out.InitialBackoff {
		out.MaxBackoff = out.InitialBackoff
	}
	if c.Multiplier >= 1 {
		out.Multiplier = c.Multiplier
	}
	if c.JitterFraction > 0 && c.JitterFraction <= 1 {
		out.JitterFraction = c.JitterFraction
	}
	return out
}

// CircuitFromConfig layers the configured breaker settings over
// DefaultCircuitBreakerConfig.
func CircuitFromConfig(c config.CircuitConfig) CircuitBreakerConfig {
	out := DefaultCircuitBreakerConfig()
	if c.FailureThreshold > 0 {
		out.FailureThreshold = c.FailureThreshold
	}
	if c.ResetTimeoutSecs > 0 {
		out.ResetTimeout = time.Duration(c.ResetTimeoutSecs) * time.Second
	}
	return out
}
