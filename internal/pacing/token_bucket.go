/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package pacing

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucketLimiter paces requests with golang.org/x/time/rate.
type TokenBucketLimiter struct {
	limiter *rate.Limiter
}

// NewTokenBucketLimiter creates a token bucket that refills at r and holds at most max(burst, 1) tokens.
func NewTokenBucketLimiter(r Rate, burst int) *TokenBucketLimiter {
	if burst == 0 {
		burst = 1
	}
	every := r.Duration / time.Duration(r.Count)
	return &TokenBucketLimiter{rate.NewLimiter(rate.Every(every), burst)}
}

// Allow implements Limiter.
func (l *TokenBucketLimiter) Allow(_ context.Context) (allow bool, retryAfter time.Duration, err error) {
	res := l.limiter.Reserve()
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		return false, delay, nil
	}
	return true, 0, nil
}

// Wait blocks until a token is available.
func (l *TokenBucketLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}
