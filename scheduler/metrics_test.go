/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetrics(t *testing.T) {
	promMetrics := NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{
		Namespace:   "chainfetch",
		ConstLabels: prometheus.Labels{"service": "blockchaininfo"},
	})
	tr := TransportFunc[string, string](func(ctx context.Context, target string) (string, error) {
		if target == "bad" {
			return "", errRemote
		}
		return target, nil
	})
	s := mustNew[string, string](t, newTestConfig(2, 2, 5*time.Millisecond), tr, Opts{MetricsCollector: promMetrics})
	s.MustRegisterMetrics()
	defer s.UnregisterMetrics()

	good, bad := s.Submit("good"), s.Submit("bad")
	_, err := waitFuture(t, good)
	require.NoError(t, err)
	_, err = waitFuture(t, bad)
	require.ErrorIs(t, err, ErrRetriesExhausted)

	require.Equal(t, 1.0, testutil.ToFloat64(promMetrics.Attempts.WithLabelValues(string(AttemptResultSuccess))))
	require.Equal(t, 2.0, testutil.ToFloat64(promMetrics.Attempts.WithLabelValues(string(AttemptResultFailure))))
	require.Equal(t, 1.0, testutil.ToFloat64(promMetrics.Settled.WithLabelValues(string(OutcomeResolved))))
	require.Equal(t, 1.0, testutil.ToFloat64(promMetrics.Settled.WithLabelValues(string(OutcomeExhausted))))
	require.Equal(t, 0.0, testutil.ToFloat64(promMetrics.InFlight))
	require.Equal(t, 0.0, testutil.ToFloat64(promMetrics.QueueLength))
	require.Equal(t, (10 * time.Millisecond).Seconds(), testutil.ToFloat64(promMetrics.Backoff))

	require.Equal(t, 5, testutil.CollectAndCount(promMetrics.Attempts)+testutil.CollectAndCount(promMetrics.Settled)+
		testutil.CollectAndCount(promMetrics.InFlight))
}
