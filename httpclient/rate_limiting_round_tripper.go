/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/multisig/chainfetch/internal/pacing"
)

// Default parameter values for RateLimitingRoundTripper.
const (
	DefaultRateLimitingWaitTimeout = 15 * time.Second
)

// RateLimitingRoundTripperOpts represents options for RateLimitingRoundTripper.
type RateLimitingRoundTripperOpts struct {
	// Algorithm is tokenBucket if empty.
	Algorithm pacing.Algorithm

	Burst int

	// WaitTimeout bounds how long a request may wait for its turn.
	WaitTimeout time.Duration
}

// RateLimitingRoundTripper holds outgoing requests so that no more than RateLimit of them start per Period.
// It keeps the client under the remote service's limit instead of reacting to its rejections.
type RateLimitingRoundTripper struct {
	Delegate    http.RoundTripper
	RateLimit   int
	Period      time.Duration
	WaitTimeout time.Duration

	limiter pacing.Limiter
}

// NewRateLimitingRoundTripper creates a RateLimitingRoundTripper with the token bucket algorithm.
func NewRateLimitingRoundTripper(
	delegate http.RoundTripper, rateLimit int, period time.Duration,
) (*RateLimitingRoundTripper, error) {
	return NewRateLimitingRoundTripperWithOpts(delegate, rateLimit, period, RateLimitingRoundTripperOpts{})
}

// NewRateLimitingRoundTripperWithOpts creates a RateLimitingRoundTripper with options.
func NewRateLimitingRoundTripperWithOpts(
	delegate http.RoundTripper, rateLimit int, period time.Duration, opts RateLimitingRoundTripperOpts,
) (*RateLimitingRoundTripper, error) {
	limiter, err := pacing.New(opts.Algorithm, pacing.Rate{Count: rateLimit, Duration: period}, opts.Burst)
	if err != nil {
		return nil, err
	}
	if opts.WaitTimeout == 0 {
		opts.WaitTimeout = DefaultRateLimitingWaitTimeout
	}
	return &RateLimitingRoundTripper{
		Delegate:    delegate,
		RateLimit:   rateLimit,
		Period:      period,
		WaitTimeout: opts.WaitTimeout,
		limiter:     limiter,
	}, nil
}

// RoundTrip waits for the request's turn and executes it.
func (rt *RateLimitingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(r.Context(), rt.WaitTimeout)
	defer cancel()

	if err := pacing.Wait(ctx, rt.limiter); err != nil {
		if r.Body != nil {
			_ = r.Body.Close() // Per RoundTripper contract.
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &RateLimitingWaitError{Inner: err}
	}
	return rt.Delegate.RoundTrip(r)
}

// RateLimitingWaitError is returned when a request could not get its turn within WaitTimeout.
type RateLimitingWaitError struct {
	Inner error
}

func (e *RateLimitingWaitError) Error() string {
	return fmt.Sprintf("wait due to client side rate limiting: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *RateLimitingWaitError) Unwrap() error {
	return e.Inner
}
