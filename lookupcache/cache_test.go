/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package lookupcache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/multisig/chainfetch/config"
	"github.com/multisig/chainfetch/log/logtest"
)

type countingGetter struct {
	calls   atomic.Int32
	release chan struct{} // if set, every lookup waits for it
	err     error
}

func (g *countingGetter) UnspentOutputs(ctx context.Context, address string) (json.RawMessage, error) {
	n := g.calls.Inc()
	if g.release != nil {
		<-g.release
	}
	if g.err != nil {
		return nil, g.err
	}
	return json.RawMessage(`{"address":"` + address + `","call":` + strconv.Itoa(int(n)) + `}`), nil
}

func newTestCache(t *testing.T, getter Getter, maxEntries int, ttl time.Duration) (*Cache, *PrometheusMetrics) {
	t.Helper()
	metrics := NewPrometheusMetrics("")
	cache, err := New(getter, &Config{Enabled: true, MaxEntries: maxEntries, TTL: ttl}, metrics)
	require.NoError(t, err)
	return cache, metrics
}

func TestCache_Hit(t *testing.T) {
	getter := &countingGetter{}
	cache, metrics := newTestCache(t, getter, 10, time.Minute)

	payload, err := cache.UnspentOutputs(context.Background(), "a")
	require.NoError(t, err)
	require.JSONEq(t, `{"address":"a","call":1}`, string(payload))

	payload, err = cache.UnspentOutputs(context.Background(), "a")
	require.NoError(t, err)
	require.JSONEq(t, `{"address":"a","call":1}`, string(payload))

	require.EqualValues(t, 1, getter.calls.Load())
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.HitsTotal))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.MissesTotal))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Entries))
}

func TestCache_Expiration(t *testing.T) {
	getter := &countingGetter{}
	cache, _ := newTestCache(t, getter, 10, 20*time.Millisecond)

	_, err := cache.UnspentOutputs(context.Background(), "a")
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)

	payload, err := cache.UnspentOutputs(context.Background(), "a")
	require.NoError(t, err)
	require.JSONEq(t, `{"address":"a","call":2}`, string(payload))
	require.EqualValues(t, 2, getter.calls.Load())
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	getter := &countingGetter{err: errors.New("retries exhausted")}
	cache, metrics := newTestCache(t, getter, 10, time.Minute)

	for i := 0; i < 2; i++ {
		_, err := cache.UnspentOutputs(context.Background(), "a")
		require.EqualError(t, err, "retries exhausted")
	}
	require.EqualValues(t, 2, getter.calls.Load())
	require.Equal(t, 0, cache.Len())
	require.Equal(t, 0.0, testutil.ToFloat64(metrics.Entries))
}

func TestCache_ConcurrentLookupsAreCoalesced(t *testing.T) {
	getter := &countingGetter{release: make(chan struct{})}
	cache, metrics := newTestCache(t, getter, 10, time.Minute)

	const callers = 5
	var wg sync.WaitGroup
	payloads := make([]json.RawMessage, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payloads[i], errs[i] = cache.UnspentOutputs(context.Background(), "a")
		}(i)
	}
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.CoalescedTotal) == callers-1
	}, time.Second, 5*time.Millisecond)
	close(getter.release)
	wg.Wait()

	require.EqualValues(t, 1, getter.calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.JSONEq(t, `{"address":"a","call":1}`, string(payloads[i]))
	}
}

func TestCache_CallerGivesUpWithoutCancelingLookup(t *testing.T) {
	getter := &countingGetter{release: make(chan struct{})}
	cache, _ := newTestCache(t, getter, 10, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := cache.UnspentOutputs(ctx, "a")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(getter.release)
	require.Eventually(t, func() bool { return cache.Len() == 1 }, time.Second, 5*time.Millisecond)

	payload, err := cache.UnspentOutputs(context.Background(), "a")
	require.NoError(t, err)
	require.JSONEq(t, `{"address":"a","call":1}`, string(payload))
	require.EqualValues(t, 1, getter.calls.Load())
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	getter := &countingGetter{}
	cache, metrics := newTestCache(t, getter, 2, time.Minute)

	for _, address := range []string{"a", "b", "a", "c"} {
		_, err := cache.UnspentOutputs(context.Background(), address)
		require.NoError(t, err)
	}
	require.Equal(t, 2, cache.Len())
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.EvictionsTotal))

	// "b" was the least recently used one.
	_, err := cache.UnspentOutputs(context.Background(), "a")
	require.NoError(t, err)
	require.EqualValues(t, 3, getter.calls.Load())
	_, err = cache.UnspentOutputs(context.Background(), "b")
	require.NoError(t, err)
	require.EqualValues(t, 4, getter.calls.Load())
}

func TestCache_RemoveExpired(t *testing.T) {
	cache, _ := newTestCache(t, &countingGetter{}, 10, 20*time.Millisecond)
	for _, address := range []string{"a", "b"} {
		_, err := cache.UnspentOutputs(context.Background(), address)
		require.NoError(t, err)
	}
	require.Equal(t, 0, cache.RemoveExpired())
	time.Sleep(40 * time.Millisecond)
	require.Equal(t, 2, cache.RemoveExpired())
	require.Equal(t, 0, cache.Len())
}

func TestNewCleanupUnit(t *testing.T) {
	cache, _ := newTestCache(t, &countingGetter{}, 10, 10*time.Millisecond)
	_, err := cache.UnspentOutputs(context.Background(), "a")
	require.NoError(t, err)

	logRecorder := logtest.NewRecorder()
	unit := NewCleanupUnit(cache, 20*time.Millisecond, logRecorder)
	fatalErr := make(chan error, 1)
	go unit.Start(fatalErr)
	defer func() { require.NoError(t, unit.Stop(true)) }()

	require.Eventually(t, func() bool { return cache.Len() == 0 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		_, found := logRecorder.FindEntry("expired lookups removed from cache")
		return found
	}, time.Second, 5*time.Millisecond)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(&countingGetter{}, &Config{MaxEntries: 0, TTL: time.Second}, nil)
	require.EqualError(t, err, "validate lookup cache config: max entries must be positive, got 0")
	_, err = New(&countingGetter{}, &Config{MaxEntries: 1}, nil)
	require.EqualError(t, err, "validate lookup cache config: ttl must be positive, got 0s")
}

func TestConfig_Set(t *testing.T) {
	cfg := NewConfig()
	err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(strings.NewReader(""), config.DataTypeYAML, cfg)
	require.NoError(t, err)
	require.Equal(t, NewDefaultConfig(), cfg)

	cfg = NewConfig()
	err = config.NewLoader(config.NewViperAdapter()).LoadFromReader(
		strings.NewReader("cache:\n  enabled: false\n  maxEntries: 5\n  ttl: 1m\n  cleanupInterval: 0s\n"),
		config.DataTypeYAML, cfg)
	require.NoError(t, err)
	require.Equal(t, &Config{MaxEntries: 5, TTL: time.Minute}, cfg)

	err = config.NewLoader(config.NewViperAdapter()).LoadFromReader(
		strings.NewReader("cache:\n  ttl: 0s\n"), config.DataTypeYAML, NewConfig())
	require.EqualError(t, err, "cache.ttl: must be positive")
}
