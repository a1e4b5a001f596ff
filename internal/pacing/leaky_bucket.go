/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package pacing

import (
	"context"
	"fmt"
	"time"

	"github.com/throttled/throttled/v2"
	"github.com/throttled/throttled/v2/store/memstore"
)

// All requests share one bucket: the scheduler talks to a single remote service.
const leakyBucketKey = "remote"

// LeakyBucketLimiter paces requests with GCRA (https://brandur.org/rate-limiting#gcra).
type LeakyBucketLimiter struct {
	limiter *throttled.GCRARateLimiterCtx
}

// NewLeakyBucketLimiter creates a leaky bucket that lets burst extra requests above r.
func NewLeakyBucketLimiter(r Rate, burst int) (*LeakyBucketLimiter, error) {
	store, err := memstore.NewCtx(1)
	if err != nil {
		return nil, fmt.Errorf("new in-memory store: %w", err)
	}
	quota := throttled.RateQuota{MaxRate: throttled.PerDuration(r.Count, r.Duration), MaxBurst: burst}
	limiter, err := throttled.NewGCRARateLimiterCtx(store, quota)
	if err != nil {
		return nil, fmt.Errorf("new GCRA rate limiter: %w", err)
	}
	return &LeakyBucketLimiter{limiter}, nil
}

// Allow implements Limiter.
func (l *LeakyBucketLimiter) Allow(ctx context.Context) (allow bool, retryAfter time.Duration, err error) {
	limited, res, err := l.limiter.RateLimitCtx(ctx, leakyBucketKey, 1)
	if err != nil {
		return false, 0, err
	}
	if !limited {
		return true, 0, nil
	}
	return false, res.RetryAfter, nil
}
