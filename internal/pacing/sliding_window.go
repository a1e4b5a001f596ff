/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package pacing

import (
	"context"
	"time"

	"github.com/RussellLuo/slidingwindow"
)

// SlidingWindowLimiter allows at most r.Count requests in any window of r.Duration.
type SlidingWindowLimiter struct {
	limiter *slidingwindow.Limiter
	window  time.Duration
}

// NewSlidingWindowLimiter creates a sliding window limiter.
func NewSlidingWindowLimiter(r Rate) *SlidingWindowLimiter {
	lim, _ := slidingwindow.NewLimiter(r.Duration, int64(r.Count), func() (slidingwindow.Window, slidingwindow.StopFunc) {
		return slidingwindow.NewLocalWindow()
	})
	return &SlidingWindowLimiter{limiter: lim, window: r.Duration}
}

// Allow implements Limiter.
func (l *SlidingWindowLimiter) Allow(_ context.Context) (allow bool, retryAfter time.Duration, err error) {
	if l.limiter.Allow() {
		return true, 0, nil
	}
	now := time.Now()
	return false, now.Truncate(l.window).Add(l.window).Sub(now), nil
}
