/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/multisig/chainfetch/blockchaininfo"
	"github.com/multisig/chainfetch/httpclient"
	"github.com/multisig/chainfetch/internal/testutil"
	"github.com/multisig/chainfetch/log"
	"github.com/multisig/chainfetch/log/logtest"
	"github.com/multisig/chainfetch/scheduler"
)

const testAddress = "1BoatSLRHtKNngkdXEeobR76b53LETtpyT"

type getterFunc func(ctx context.Context, address string) (json.RawMessage, error)

func (f getterFunc) UnspentOutputs(ctx context.Context, address string) (json.RawMessage, error) {
	return f(ctx, address)
}

func newTestRouter(getter UnspentOutputsGetter, logger log.FieldLogger, metrics *HTTPRequestMetrics, opts Opts) http.Handler {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	return NewRouter(getter, 100*time.Millisecond, logger, metrics, opts)
}

func serve(handler http.Handler, method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		for _, s := range v {
			req.Header.Add(k, s)
		}
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func TestUnspent(t *testing.T) {
	var gotAddress string
	getter := getterFunc(func(ctx context.Context, address string) (json.RawMessage, error) {
		gotAddress = address
		return json.RawMessage(`{"unspent_outputs":[{"value":5000000000}]}`), nil
	})
	router := newTestRouter(getter, nil, nil, Opts{})

	resp := serve(router, http.MethodGet, RoutePrefix+"/unspent/"+testAddress, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, ContentTypeAppJSON, resp.Header().Get("Content-Type"))
	require.JSONEq(t, `{"unspent_outputs":[{"value":5000000000}]}`, resp.Body.String())
	require.NotEmpty(t, resp.Header().Get(HeaderRequestID))
	require.Equal(t, testAddress, gotAddress)

	resp = serve(router, http.MethodGet, RoutePrefix+"/unspent/"+testAddress,
		http.Header{HeaderRequestID: []string{"my-request"}})
	require.Equal(t, "my-request", resp.Header().Get(HeaderRequestID))
}

func TestUnspent_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "empty address",
			err:        blockchaininfo.ErrEmptyAddress,
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeInvalidAddress,
		},
		{
			name:       "retries exhausted",
			err:        fmt.Errorf("get unspent outputs of %s: %w", testAddress, scheduler.ErrRetriesExhausted),
			wantStatus: http.StatusBadGateway,
			wantCode:   ErrCodeUpstreamUnavailable,
		},
		{
			name:       "scheduler stopped",
			err:        fmt.Errorf("get unspent outputs of %s: %w", testAddress, scheduler.ErrStopped),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   ErrCodeServiceStopping,
		},
		{
			name:       "lookup timeout",
			err:        context.DeadlineExceeded,
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   ErrCodeLookupTimeout,
		},
		{
			name:       "unexpected error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   ErrCodeInternal,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			getter := getterFunc(func(ctx context.Context, address string) (json.RawMessage, error) {
				return nil, tt.err
			})
			resp := serve(newTestRouter(getter, nil, nil, Opts{}), http.MethodGet, RoutePrefix+"/unspent/"+testAddress, nil)
			testutil.RequireErrorInRecorder(t, resp, tt.wantStatus, ErrorDomain, tt.wantCode)
		})
	}
}

func TestUnspent_MalformedPayload(t *testing.T) {
	getter := getterFunc(func(ctx context.Context, address string) (json.RawMessage, error) {
		return json.RawMessage("<html>Maintenance</html>"), nil
	})
	logRecorder := logtest.NewRecorder()
	resp := serve(newTestRouter(getter, logRecorder, nil, Opts{}), http.MethodGet, RoutePrefix+"/unspent/"+testAddress, nil)
	testutil.RequireErrorInRecorder(t, resp, http.StatusBadGateway, ErrorDomain, ErrCodeUpstreamUnavailable)
	_, found := logRecorder.FindEntry("upstream returned malformed JSON")
	require.True(t, found)
}

func TestUnspent_LookupTimeout(t *testing.T) {
	getter := getterFunc(func(ctx context.Context, address string) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	resp := serve(newTestRouter(getter, nil, nil, Opts{}), http.MethodGet, RoutePrefix+"/unspent/"+testAddress, nil)
	testutil.RequireErrorInRecorder(t, resp, http.StatusGatewayTimeout, ErrorDomain, ErrCodeLookupTimeout)
}

func TestHealthCheck(t *testing.T) {
	resp := serve(newTestRouter(nil, nil, nil, Opts{}), http.MethodGet, "/healthz", nil)
	testutil.RequireJSONInRecorder(t, resp, http.StatusOK, `{"components":{"server":true}}`)

	router := newTestRouter(nil, nil, nil, Opts{HealthCheck: func() map[string]bool {
		return map[string]bool{"scheduler": false}
	}})
	resp = serve(router, http.MethodGet, "/healthz", nil)
	testutil.RequireJSONInRecorder(t, resp, http.StatusServiceUnavailable, `{"components":{"scheduler":false}}`)
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	router := newTestRouter(nil, nil, nil, Opts{})

	resp := serve(router, http.MethodGet, "/api/chainfetch/v2/unspent/"+testAddress, nil)
	testutil.RequireJSONInRecorder(t, resp, http.StatusNotFound,
		`{"error":{"domain":"Chainfetch","code":"notFound","message":"Not found."}}`)

	resp = serve(router, http.MethodPost, RoutePrefix+"/unspent/"+testAddress, nil)
	testutil.RequireErrorInRecorder(t, resp, http.StatusMethodNotAllowed, ErrorDomain, ErrCodeMethodNotAllowed)
}

func TestRecovery(t *testing.T) {
	logRecorder := logtest.NewRecorder()
	getter := getterFunc(func(ctx context.Context, address string) (json.RawMessage, error) {
		panic("something went wrong")
	})
	resp := serve(newTestRouter(getter, logRecorder, nil, Opts{}), http.MethodGet, RoutePrefix+"/unspent/"+testAddress, nil)
	testutil.RequireErrorInRecorder(t, resp, http.StatusInternalServerError, ErrorDomain, ErrCodeInternal)

	entry, found := logRecorder.FindEntry("Panic: something went wrong")
	require.True(t, found)
	require.Equal(t, log.LevelError, entry.Level)
}

func TestLogging(t *testing.T) {
	logRecorder := logtest.NewRecorder()
	getter := getterFunc(func(ctx context.Context, address string) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	})
	router := newTestRouter(getter, logRecorder, nil, Opts{})

	serve(router, http.MethodGet, "/healthz", nil)
	require.Empty(t, logRecorder.Entries(), "successful requests to system endpoints are not logged")

	serve(router, http.MethodGet, RoutePrefix+"/unspent/"+testAddress, http.Header{HeaderRequestID: []string{"req-1"}})
	entries := logRecorder.Entries()
	require.Len(t, entries, 1)
	require.True(t, strings.HasPrefix(entries[0].Text, "response completed in "))

	requestIDField, found := entries[0].FindField("request_id")
	require.True(t, found)
	require.Equal(t, "req-1", string(requestIDField.Bytes))
	statusField, found := entries[0].FindField("status")
	require.True(t, found)
	require.EqualValues(t, http.StatusOK, statusField.Int)
}

func TestHTTPRequestMetrics(t *testing.T) {
	metrics := NewHTTPRequestMetrics("")
	getter := getterFunc(func(ctx context.Context, address string) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	})
	router := newTestRouter(getter, nil, metrics, Opts{})

	serve(router, http.MethodGet, RoutePrefix+"/unspent/"+testAddress, nil)
	serve(router, http.MethodGet, RoutePrefix+"/unspent/other", nil)
	serve(router, http.MethodGet, "/healthz", nil)

	require.Equal(t, 1, promtestutil.CollectAndCount(metrics.Durations), "both lookups share one route pattern")
	hist := metrics.Durations.WithLabelValues(http.MethodGet, RoutePrefix+"/unspent/{address}", "200").(prometheus.Histogram)
	testutil.RequireSamplesCountInHistogram(t, hist, 2)
	require.Equal(t, 0.0, promtestutil.ToFloat64(metrics.InFlight))
}

func TestServer_StartStop(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Address = testutil.GetLocalAddrWithFreeTCPPort()
	srv := New(cfg, nil, nil, Opts{})

	fatalErr := make(chan error, 1)
	go srv.Start(fatalErr)
	require.NoError(t, testutil.WaitListeningServer(cfg.Address, 3*time.Second))

	requireHealthy(t, "http://"+cfg.Address+"/healthz")
	require.Equal(t, cfg.Address, srv.Addr())

	require.NoError(t, srv.Stop(true))
	testutil.RequireNoErrorInChannel(t, fatalErr)
}

func TestServer_StartWithListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := New(NewDefaultConfig(), nil, nil, Opts{Listener: ln})
	require.Equal(t, ln.Addr().String(), srv.Addr())

	fatalErr := make(chan error, 1)
	go srv.Start(fatalErr)

	requireHealthy(t, "http://"+srv.Addr()+"/healthz")

	require.NoError(t, srv.Stop(false))
	testutil.RequireNoErrorInChannel(t, fatalErr)
}

func requireHealthy(t *testing.T, url string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_StopWithoutStart(t *testing.T) {
	srv := New(NewDefaultConfig(), nil, nil, Opts{})
	require.NoError(t, srv.Stop(true))
	require.NoError(t, srv.Stop(false))
}

func TestServer_UpstreamUnavailable(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusTooManyRequests)
	}))
	defer upstream.Close()

	httpCfg := httpclient.NewDefaultConfig()
	httpCfg.BaseURL = upstream.URL + "/"
	schedCfg := scheduler.NewDefaultConfig()
	schedCfg.RetryLimit = 2
	schedCfg.Backoff.InitialInterval = 5 * time.Millisecond
	client, err := blockchaininfo.New(httpCfg, schedCfg, blockchaininfo.Opts{})
	require.NoError(t, err)
	defer func() { _ = client.Scheduler().Stop(false) }()

	srv := New(NewDefaultConfig(), client, nil, Opts{})
	resp := serve(srv.Router, http.MethodGet, RoutePrefix+"/unspent/"+testAddress, nil)
	testutil.RequireJSONInRecorder(t, resp, http.StatusBadGateway,
		`{"error":{"domain":"Chainfetch","code":"upstreamUnavailable","message":"Upstream lookup failed after all retries."}}`)

	require.NoError(t, client.Scheduler().Stop(true))
	resp = serve(srv.Router, http.MethodGet, RoutePrefix+"/unspent/"+testAddress, nil)
	testutil.RequireErrorInRecorder(t, resp, http.StatusServiceUnavailable, ErrorDomain, ErrCodeServiceStopping)
}
