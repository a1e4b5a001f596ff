/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package httpclient provides the HTTP side of chainfetch: a chain of round trippers
// (logging, metrics, client-side pacing, User-Agent, X-Request-ID) and a Transport
// that plugs the resulting client into the scheduler.
package httpclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/multisig/chainfetch/log"
)

// DefaultRequestType is used in logs and metrics when Opts.RequestType is empty.
const DefaultRequestType = "chainfetch"

// Opts provides options for New and NewTransport.
type Opts struct {
	// UserAgent is set on requests that do not carry one already.
	UserAgent string

	// RequestType names the kind of requests in logs and metrics (e.g. "blockchaininfo").
	RequestType string

	// Delegate is the innermost RoundTripper. A clone of http.DefaultTransport is used if nil.
	Delegate http.RoundTripper

	// LoggerProvider returns a logger for the request's context.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// RequestIDProvider returns the X-Request-ID value for the request's context.
	// scheduler.GetRequestIDFromContext is used by default.
	RequestIDProvider func(ctx context.Context) string

	// Collector receives request durations when metrics are enabled.
	Collector MetricsCollector
}

// New builds an *http.Client whose transport is wrapped with the round trippers enabled in cfg.
// Pacing is the innermost wrapper, so logged and measured durations include the time spent waiting for a turn.
func New(cfg *Config, opts Opts) (*http.Client, error) {
	delegate := opts.Delegate
	if delegate == nil {
		delegate = http.DefaultTransport.(*http.Transport).Clone()
	}
	reqType := opts.RequestType
	if reqType == "" {
		reqType = DefaultRequestType
	}

	if cfg.RateLimits.Enabled {
		rateLimits := cfg.RateLimits
		rt, err := NewRateLimitingRoundTripperWithOpts(delegate, rateLimits.Limit, rateLimits.Period, rateLimits.TransportOpts())
		if err != nil {
			return nil, fmt.Errorf("create rate limiting round tripper: %w", err)
		}
		delegate = rt
	}

	if cfg.Metrics.Enabled && opts.Collector != nil {
		delegate = NewMetricsRoundTripperWithOpts(delegate, MetricsRoundTripperOpts{
			RequestType: reqType,
			Collector:   opts.Collector,
		})
	}

	if cfg.Log.Enabled {
		logOpts := cfg.Log.TransportOpts()
		logOpts.LoggerProvider = opts.LoggerProvider
		delegate = NewLoggingRoundTripperWithOpts(delegate, reqType, logOpts)
	}

	if opts.UserAgent != "" {
		delegate = NewUserAgentRoundTripper(delegate, opts.UserAgent)
	}

	delegate = NewRequestIDRoundTripperWithOpts(delegate, RequestIDRoundTripperOpts{
		RequestIDProvider: opts.RequestIDProvider,
	})

	return &http.Client{Transport: delegate, Timeout: cfg.Timeout}, nil
}

// Must is like New but panics on error.
func Must(cfg *Config, opts Opts) *http.Client {
	client, err := New(cfg, opts)
	if err != nil {
		panic(err)
	}
	return client
}
