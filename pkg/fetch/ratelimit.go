package fetch

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/Sriram-PR/animal-scraper/pkg/clock"
)

// RateLimiter spaces request starts across all workers: no two grants are
// closer together than minInterval on the limiter's clock.
type RateLimiter struct {
	lock        *semaphore.Weighted // Weight 1; guards lastGrant and serialises waiters
	lastGrant   time.Time
	minInterval time.Duration
	clock       clock.Clock
	log         *logrus.Entry
}

// NewRateLimiter creates a RateLimiter. A non-positive minInterval disables spacing.
func NewRateLimiter(minInterval time.Duration, clk clock.Clock, log *logrus.Entry) *RateLimiter {
	if clk == nil {
		clk = clock.Real()
	}
	return &RateLimiter{
		lock:        semaphore.NewWeighted(1),
		minInterval: minInterval,
		clock:       clk,
		log:         log,
	}
}

// Acquire blocks until minInterval has elapsed since the previous grant and
// returns the grant instant. The only error is ctx ending before the grant.
func (rl *RateLimiter) Acquire(ctx context.Context) (time.Time, error) {
	if err := rl.lock.Acquire(ctx, 1); err != nil {
		return time.Time{}, err
	}
	defer rl.lock.Release(1)

	if rl.minInterval > 0 && !rl.lastGrant.IsZero() {
		elapsed := rl.clock.Now().Sub(rl.lastGrant)
		if wait := rl.minInterval - elapsed; wait > 0 {
			rl.log.WithFields(logrus.Fields{"sleep": wait, "min_interval": rl.minInterval}).Trace("Throttle applying sleep")
			if err := rl.clock.Sleep(ctx, wait); err != nil {
				return time.Time{}, err
			}
		}
	}

	granted := rl.clock.Now()
	rl.lastGrant = granted
	return granted, nil
}

// MinInterval returns the configured spacing
func (rl *RateLimiter) MinInterval() time.Duration {
	return rl.minInterval
}
