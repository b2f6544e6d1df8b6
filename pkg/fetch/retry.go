package fetch

import (
	"math/rand"
	"time"

	"github.com/Sriram-PR/animal-scraper/pkg/config"
	"github.com/Sriram-PR/animal-scraper/pkg/models"
)

// RetryPolicy decides whether a failed attempt is retried and how long to wait first
type RetryPolicy struct {
	MaxAttempts int           // Total attempts including the first
	BaseDelay   time.Duration // Wait after attempt 1
	MaxDelay    time.Duration // Cap for any single wait
	Jitter      bool          // Adds up to 10% on top of the computed wait

	jitterFn func(n int64) int64
}

// NewRetryPolicy builds a policy from the download configuration
func NewRetryPolicy(cfg config.DownloadConfig) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseBackoff,
		MaxDelay:    cfg.MaxBackoff,
		Jitter:      cfg.BackoffJitter,
	}
}

// ShouldRetry reports whether another attempt follows attempt number `attempt` (1-indexed)
func (p *RetryPolicy) ShouldRetry(attempt int, outcome models.Outcome) bool {
	if outcome != models.OutcomeTransient {
		return false
	}
	return attempt < p.maxAttempts()
}

// Backoff returns the wait before attempt+1: BaseDelay * 2^(attempt-1), capped at MaxDelay.
// With Jitter the result still lies within [BaseDelay, MaxDelay].
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base, maxDelay := p.BaseDelay, p.MaxDelay
	if base <= 0 {
		return 0
	}
	if maxDelay <= 0 || maxDelay < base {
		maxDelay = base
	}

	delay := base
	for i := 1; i < attempt && delay < maxDelay; i++ {
		delay *= 2
	}
	if delay > maxDelay {
		delay = maxDelay
	}

	if p.Jitter {
		if span := int64(delay) / 10; span > 0 {
			delay += time.Duration(p.jitter(span + 1))
		}
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	if delay < base {
		delay = base
	}
	return delay
}

func (p *RetryPolicy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return config.DefaultMaxAttempts
	}
	return p.MaxAttempts
}

func (p *RetryPolicy) jitter(n int64) int64 {
	if p.jitterFn != nil {
		return p.jitterFn(n)
	}
	return rand.Int63n(n)
}
