package llm

import (
	"math/rand/v2"
	"time"
)

// RetryConfig holds retry behavior for inference requests.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts per request.
	MaxAttempts int

	// BackoffBase is the delay before the first retry.
	BackoffBase time.Duration

	// BackoffMultiplier is applied to the delay on each further retry.
	BackoffMultiplier float64

	// MaxBackoff caps the delay between attempts.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns retry defaults tuned for rate-limited
// chat-completions endpoints: a short first delay so transient routing
// hiccups recover quickly, and a high cap so 429 storms back off hard.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       1 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        60 * time.Second,
	}
}

// backoff returns the jittered exponential delay before the given retry
// attempt. Jitter of +/-25% spreads synchronized retries across clients.
func (c RetryConfig) backoff(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= c.BackoffMultiplier
	}

	delay := time.Duration(float64(c.BackoffBase) * multiplier)
	if delay > c.MaxBackoff {
		delay = c.MaxBackoff
	}

	jitter := float64(delay) * 0.25 * (rand.Float64()*2 - 1)
	return delay + time.Duration(jitter)
}
