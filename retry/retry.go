/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package retry contains backoff policies that produce the delay sequence used between attempts.
package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy defines a backoff strategy. Every call of NewBackOff starts a fresh sequence.
type Policy interface {
	NewBackOff() backoff.BackOff
}

// The PolicyFunc type is an adapter to allow the use of ordinary functions as retry.Policy.
type PolicyFunc func() backoff.BackOff

// NewBackOff implements retry.Policy.
func (f PolicyFunc) NewBackOff() backoff.BackOff {
	return f()
}

// ExponentialBackoffPolicy yields initialInterval, then multiplies the delay by multiplier
// on every step until it reaches maxInterval. The sequence never stops and has no jitter,
// so the produced values are deterministic.
type ExponentialBackoffPolicy struct {
	initialInterval time.Duration
	multiplier      float64
	maxInterval     time.Duration
}

// NewExponentialBackoffPolicy returns an exponential backoff policy.
func NewExponentialBackoffPolicy(initialInterval time.Duration, multiplier float64, maxInterval time.Duration) ExponentialBackoffPolicy {
	return ExponentialBackoffPolicy{initialInterval: initialInterval, multiplier: multiplier, maxInterval: maxInterval}
}

// NewBackOff implements retry.Policy.
func (p ExponentialBackoffPolicy) NewBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.initialInterval
	eb.Multiplier = p.multiplier
	eb.MaxInterval = p.maxInterval
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	eb.Reset()
	return eb
}

// ConstantBackoffPolicy yields the same interval forever.
type ConstantBackoffPolicy struct {
	interval time.Duration
}

// NewConstantBackoffPolicy returns a constant backoff policy.
func NewConstantBackoffPolicy(interval time.Duration) ConstantBackoffPolicy {
	return ConstantBackoffPolicy{interval}
}

// NewBackOff implements retry.Policy.
func (p ConstantBackoffPolicy) NewBackOff() backoff.BackOff {
	bf := backoff.NewConstantBackOff(p.interval)
	bf.Reset()
	return bf
}
