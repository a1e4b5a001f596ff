/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package retry

import (
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoffPolicy(t *testing.T) {
	p := NewExponentialBackoffPolicy(100*time.Millisecond, 2, 500*time.Millisecond)
	bf := p.NewBackOff()

	var got []time.Duration
	for i := 0; i < 6; i++ {
		got = append(got, bf.NextBackOff())
	}
	require.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		500 * time.Millisecond,
		500 * time.Millisecond,
		500 * time.Millisecond,
	}, got)

	// A new sequence starts from the beginning.
	require.Equal(t, 100*time.Millisecond, p.NewBackOff().NextBackOff())
}

func TestConstantBackoffPolicy(t *testing.T) {
	bf := NewConstantBackoffPolicy(time.Second).NewBackOff()
	for i := 0; i < 3; i++ {
		require.Equal(t, time.Second, bf.NextBackOff())
	}
}

func TestPolicyFunc(t *testing.T) {
	p := PolicyFunc(func() backoff.BackOff { return &backoff.StopBackOff{} })
	require.Equal(t, backoff.Stop, p.NewBackOff().NextBackOff())
}
