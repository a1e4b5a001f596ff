/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/multisig/chainfetch/retry"
)

// sharedBackoff is the single delay used by the wake-up timer.
// It only grows, one policy step per failed attempt, and never exceeds the ceiling.
type sharedBackoff struct {
	seq      backoff.BackOff
	interval time.Duration
	ceiling  time.Duration
}

func newSharedBackoff(policy retry.Policy, ceiling time.Duration) *sharedBackoff {
	b := &sharedBackoff{seq: policy.NewBackOff(), ceiling: ceiling}
	if first := b.seq.NextBackOff(); first != backoff.Stop {
		b.interval = min(first, ceiling)
	} else {
		b.interval = ceiling
	}
	return b
}

func (b *sharedBackoff) current() time.Duration {
	return b.interval
}

func (b *sharedBackoff) grow() time.Duration {
	next := b.seq.NextBackOff()
	if next != backoff.Stop && next > b.interval {
		b.interval = min(next, b.ceiling)
	}
	return b.interval
}
