/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestRequireErrorInRecorder(t *testing.T) {
	resp := httptest.NewRecorder()
	resp.Header().Set("Content-Type", "application/json")
	resp.WriteHeader(http.StatusBadGateway)
	_, _ = resp.WriteString(`{"error":{"domain":"Chainfetch","code":"upstreamUnavailable","message":"Upstream lookup failed."}}`)

	RequireErrorInRecorder(t, resp, http.StatusBadGateway, "Chainfetch", "upstreamUnavailable")
}

func TestRequireSamplesCountInHistogram(t *testing.T) {
	hist := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_histogram"})
	hist.Observe(1)
	hist.Observe(2)
	RequireSamplesCountInHistogram(t, hist, 2)
}

func TestWaitListeningServer(t *testing.T) {
	addr := GetLocalAddrWithFreeTCPPort()
	require.Error(t, WaitListeningServer(addr, 50*time.Millisecond))

	ln, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()
	require.NoError(t, WaitListeningServer(addr, time.Second))
}

func TestRequireNoErrorInChannel(t *testing.T) {
	c := make(chan error, 1)
	RequireNoErrorInChannel(t, c)
}
