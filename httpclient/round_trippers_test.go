/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/multisig/chainfetch/internal/pacing"
	"github.com/multisig/chainfetch/log"
	"github.com/multisig/chainfetch/log/logtest"
)

func doGet(t *testing.T, rt http.RoundTripper, url string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, http.NoBody)
	require.NoError(t, err)
	resp, err := (&http.Client{Transport: rt}).Do(req)
	if err == nil {
		_ = resp.Body.Close()
	}
	return resp, err
}

func TestLoggingRoundTripper(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			rw.WriteHeader(http.StatusTeapot)
			return
		}
		rw.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tests := []struct {
		name        string
		mode        LoggingMode
		path        string
		wantEntries int
	}{
		{name: "all, success", mode: LoggingModeAll, path: "/ok", wantEntries: 1},
		{name: "failed, success", mode: LoggingModeFailed, path: "/ok", wantEntries: 0},
		{name: "failed, failure", mode: LoggingModeFailed, path: "/fail", wantEntries: 1},
		{name: "none, failure", mode: LoggingModeNone, path: "/fail", wantEntries: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logRecorder := logtest.NewRecorder()
			rt := NewLoggingRoundTripperWithOpts(http.DefaultTransport, "test-request", LoggingRoundTripperOpts{
				Mode:           tt.mode,
				LoggerProvider: func(ctx context.Context) log.FieldLogger { return logRecorder },
			})
			_, err := doGet(t, rt, server.URL+tt.path)
			require.NoError(t, err)
			require.Len(t, logRecorder.Entries(), tt.wantEntries)
			if tt.wantEntries == 0 {
				return
			}
			entry := logRecorder.Entries()[0]
			require.Equal(t, "client http request done", entry.Text)
			reqType, found := entry.FindField("request_type")
			require.True(t, found)
			require.Equal(t, "test-request", string(reqType.Bytes))
		})
	}
}

func TestLoggingRoundTripper_SlowRequestThreshold(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	logRecorder := logtest.NewRecorder()
	rt := NewLoggingRoundTripperWithOpts(http.DefaultTransport, "test-request", LoggingRoundTripperOpts{
		Mode:                 LoggingModeAll,
		SlowRequestThreshold: time.Hour,
		LoggerProvider:       func(ctx context.Context) log.FieldLogger { return logRecorder },
	})
	_, err := doGet(t, rt, server.URL)
	require.NoError(t, err)
	require.Empty(t, logRecorder.Entries())
}

func TestLoggingRoundTripper_TransportError(t *testing.T) {
	logRecorder := logtest.NewRecorder()
	rt := NewLoggingRoundTripper(http.DefaultTransport, "test-request", logRecorder)
	_, err := doGet(t, rt, "http://127.0.0.1:1/")
	require.Error(t, err)

	entry, found := logRecorder.FindEntry("client http request failed")
	require.True(t, found)
	require.Equal(t, log.LevelError, entry.Level)
}

func TestMetricsRoundTripper(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusTeapot)
	}))
	defer server.Close()

	collector := NewPrometheusMetricsCollector("")
	rt := NewMetricsRoundTripperWithOpts(http.DefaultTransport, MetricsRoundTripperOpts{
		RequestType: "test-request",
		Collector:   collector,
	})
	_, err := doGet(t, rt, server.URL)
	require.NoError(t, err)
	_, err = doGet(t, rt, server.URL)
	require.NoError(t, err)

	require.Equal(t, 1, testutil.CollectAndCount(collector.Durations))
	require.Equal(t, 1, testutil.CollectAndCount(collector.Durations, "http_client_request_duration_seconds"))
}

func TestRateLimitingRoundTripper(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	for _, alg := range []pacing.Algorithm{pacing.AlgorithmTokenBucket, pacing.AlgorithmLeakyBucket, pacing.AlgorithmSlidingWindow} {
		t.Run(string(alg), func(t *testing.T) {
			rt, err := NewRateLimitingRoundTripperWithOpts(http.DefaultTransport, 1, time.Hour, RateLimitingRoundTripperOpts{
				Algorithm:   alg,
				WaitTimeout: 50 * time.Millisecond,
			})
			require.NoError(t, err)

			_, err = doGet(t, rt, server.URL)
			require.NoError(t, err)

			_, err = doGet(t, rt, server.URL)
			var waitErr *RateLimitingWaitError
			require.True(t, errors.As(err, &waitErr))
		})
	}
}

func TestRateLimitingRoundTripper_SpacesRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	rt, err := NewRateLimitingRoundTripper(http.DefaultTransport, 10, time.Second)
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err = doGet(t, rt, server.URL)
		require.NoError(t, err)
	}
	require.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestNewRateLimitingRoundTripper_InvalidParams(t *testing.T) {
	_, err := NewRateLimitingRoundTripper(http.DefaultTransport, 0, time.Second)
	require.EqualError(t, err, "rate must be positive")

	_, err = NewRateLimitingRoundTripperWithOpts(http.DefaultTransport, 1, time.Second, RateLimitingRoundTripperOpts{Burst: -1})
	require.EqualError(t, err, "burst must not be negative")
}

func TestUserAgentRoundTripper(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("X-User-Agent", r.Header.Get("User-Agent"))
		rw.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	tests := []struct {
		name          string
		reqUserAgent  string
		strategy      UserAgentUpdateStrategy
		wantUserAgent string
	}{
		{name: "set if empty, empty", strategy: UserAgentUpdateStrategySetIfEmpty, wantUserAgent: "chainfetch/1.0"},
		{name: "set if empty, present", reqUserAgent: "curl/8.0", strategy: UserAgentUpdateStrategySetIfEmpty, wantUserAgent: "curl/8.0"},
		{name: "append, present", reqUserAgent: "curl/8.0", strategy: UserAgentUpdateStrategyAppend, wantUserAgent: "curl/8.0 chainfetch/1.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := NewUserAgentRoundTripper(http.DefaultTransport, "chainfetch/1.0")
			rt.UpdateStrategy = tt.strategy
			req, err := http.NewRequest(http.MethodGet, server.URL, http.NoBody)
			require.NoError(t, err)
			if tt.reqUserAgent != "" {
				req.Header.Set("User-Agent", tt.reqUserAgent)
			}
			resp, err := (&http.Client{Transport: rt}).Do(req)
			require.NoError(t, err)
			_ = resp.Body.Close()
			require.Equal(t, tt.wantUserAgent, resp.Header.Get("X-User-Agent"))
		})
	}
}

func TestRequestIDRoundTripper(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("X-Seen-Request-ID", r.Header.Get(RequestIDHeader))
		rw.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	rt := NewRequestIDRoundTripperWithOpts(http.DefaultTransport, RequestIDRoundTripperOpts{
		RequestIDProvider: func(ctx context.Context) string { return "generated-id" },
	})

	resp, err := doGet(t, rt, server.URL)
	require.NoError(t, err)
	require.Equal(t, "generated-id", resp.Header.Get("X-Seen-Request-ID"))

	req, err := http.NewRequest(http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "caller-id")
	resp, err = (&http.Client{Transport: rt}).Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, "caller-id", resp.Header.Get("X-Seen-Request-ID"))
}

func TestMust(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("X-Seen-User-Agent", r.Header.Get("User-Agent"))
		rw.Header().Set("X-Seen-Request-ID", r.Header.Get(RequestIDHeader))
		rw.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	cfg := NewDefaultConfig()
	cfg.Log.Enabled = false
	cfg.Metrics.Enabled = false
	cfg.Timeout = 5 * time.Second

	client := Must(cfg, Opts{
		UserAgent:         "chainfetch-test",
		RequestIDProvider: func(ctx context.Context) string { return "fixed-id" },
	})
	require.Equal(t, 5*time.Second, client.Timeout)

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, "chainfetch-test", resp.Header.Get("X-Seen-User-Agent"))
	require.Equal(t, "fixed-id", resp.Header.Get("X-Seen-Request-ID"))

	cfg.RateLimits.Enabled = true
	cfg.RateLimits.Algorithm = "fixedWindow"
	require.PanicsWithError(t, `create rate limiting round tripper: unknown pacing algorithm "fixedWindow"`, func() {
		Must(cfg, Opts{})
	})
}
