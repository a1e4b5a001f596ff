/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package pacing spaces out outgoing requests so the client stays under a known request rate.
package pacing

import (
	"context"
	"fmt"
	"time"
)

// Algorithm names a pacing algorithm.
type Algorithm string

// Supported algorithms.
const (
	AlgorithmTokenBucket   Algorithm = "tokenBucket"
	AlgorithmLeakyBucket   Algorithm = "leakyBucket"
	AlgorithmSlidingWindow Algorithm = "slidingWindow"
)

// Algorithms lists all supported algorithm names.
var Algorithms = []string{string(AlgorithmTokenBucket), string(AlgorithmLeakyBucket), string(AlgorithmSlidingWindow)}

// Rate is Count requests per Duration.
type Rate struct {
	Count    int
	Duration time.Duration
}

// Limiter decides whether one more request may go out now.
// When it may not, retryAfter tells how long to wait before asking again.
type Limiter interface {
	Allow(ctx context.Context) (allow bool, retryAfter time.Duration, err error)
}

// New creates a Limiter for the given algorithm. Burst is ignored by the sliding window.
func New(alg Algorithm, r Rate, burst int) (Limiter, error) {
	if r.Count <= 0 || r.Duration <= 0 {
		return nil, fmt.Errorf("rate must be positive")
	}
	if burst < 0 {
		return nil, fmt.Errorf("burst must not be negative")
	}
	switch alg {
	case AlgorithmTokenBucket, "":
		return NewTokenBucketLimiter(r, burst), nil
	case AlgorithmLeakyBucket:
		return NewLeakyBucketLimiter(r, burst)
	case AlgorithmSlidingWindow:
		return NewSlidingWindowLimiter(r), nil
	}
	return nil, fmt.Errorf("unknown pacing algorithm %q", alg)
}

// Wait blocks until l allows a request or ctx is done.
// Limiters that know how to wait by themselves (e.g. the token bucket) are used directly.
func Wait(ctx context.Context, l Limiter) error {
	if w, ok := l.(interface{ Wait(ctx context.Context) error }); ok {
		return w.Wait(ctx)
	}
	for {
		allow, retryAfter, err := l.Allow(ctx)
		if err != nil {
			return err
		}
		if allow {
			return nil
		}
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < retryAfter {
			return fmt.Errorf("wait %s would exceed context deadline", retryAfter)
		}
		timer := time.NewTimer(retryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
