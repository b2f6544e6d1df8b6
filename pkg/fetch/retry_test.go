package fetch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Sriram-PR/animal-scraper/pkg/config"
	"github.com/Sriram-PR/animal-scraper/pkg/models"
)

func TestShouldRetry(t *testing.T) {
	p := &RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}

	assert.True(t, p.ShouldRetry(1, models.OutcomeTransient))
	assert.True(t, p.ShouldRetry(2, models.OutcomeTransient))
	assert.False(t, p.ShouldRetry(3, models.OutcomeTransient), "budget exhausted")
	assert.False(t, p.ShouldRetry(1, models.OutcomeFatal))
	assert.False(t, p.ShouldRetry(1, models.OutcomeSuccess))
}

func TestShouldRetry_SingleAttemptBudget(t *testing.T) {
	p := &RetryPolicy{MaxAttempts: 1}
	assert.False(t, p.ShouldRetry(1, models.OutcomeTransient))
}

func TestBackoff_Exponential(t *testing.T) {
	p := &RetryPolicy{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 30 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{50, 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestBackoff_NonDecreasing(t *testing.T) {
	p := &RetryPolicy{BaseDelay: 300 * time.Millisecond, MaxDelay: 10 * time.Second}
	prev := time.Duration(0)
	for n := 1; n <= 20; n++ {
		d := p.Backoff(n)
		assert.GreaterOrEqual(t, d, prev)
		assert.LessOrEqual(t, d, p.MaxDelay)
		prev = d
	}
}

func TestBackoff_MaxBelowBase(t *testing.T) {
	p := &RetryPolicy{BaseDelay: 5 * time.Second, MaxDelay: time.Second}
	assert.Equal(t, 5*time.Second, p.Backoff(3))
}

func TestBackoff_ZeroBase(t *testing.T) {
	p := &RetryPolicy{MaxDelay: time.Second}
	assert.Equal(t, time.Duration(0), p.Backoff(4))
}

func TestBackoff_JitterBounds(t *testing.T) {
	p := &RetryPolicy{BaseDelay: time.Second, MaxDelay: 30 * time.Second, Jitter: true}
	for n := 1; n <= 8; n++ {
		for i := 0; i < 50; i++ {
			d := p.Backoff(n)
			assert.GreaterOrEqual(t, d, p.BaseDelay)
			assert.LessOrEqual(t, d, p.MaxDelay)
		}
	}
}

func TestBackoff_JitterIsAdditive(t *testing.T) {
	p := &RetryPolicy{BaseDelay: time.Second, MaxDelay: 30 * time.Second, Jitter: true}
	p.jitterFn = func(n int64) int64 { return n - 1 }

	// 2s plus the largest jitter of 10%
	assert.Equal(t, 2200*time.Millisecond, p.Backoff(2))
	// Capped at MaxDelay
	assert.Equal(t, 30*time.Second, p.Backoff(10))
}

func TestNewRetryPolicy_FromConfig(t *testing.T) {
	p := NewRetryPolicy(config.DownloadConfig{
		MaxAttempts:   5,
		BaseBackoff:   200 * time.Millisecond,
		MaxBackoff:    3 * time.Second,
		BackoffJitter: true,
	})
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, p.BaseDelay)
	assert.Equal(t, 3*time.Second, p.MaxDelay)
	assert.True(t, p.Jitter)
}
