/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/multisig/chainfetch/log"
	"github.com/multisig/chainfetch/scheduler"
)

// LoggingMode selects which requests are logged.
type LoggingMode string

// Logging modes.
const (
	LoggingModeNone   LoggingMode = "none"
	LoggingModeAll    LoggingMode = "all"
	LoggingModeFailed LoggingMode = "failed"
)

// LoggingRoundTripperOpts represents options for LoggingRoundTripper.
type LoggingRoundTripperOpts struct {
	// LoggerProvider returns a logger for the request's context. Nothing is logged if it is nil or returns nil.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// Mode of logging: none, all, failed. Failed means a transport error or a non-2xx status.
	Mode LoggingMode

	// SlowRequestThreshold makes requests faster than it unlogged.
	SlowRequestThreshold time.Duration
}

// LoggingRoundTripper logs outgoing requests.
type LoggingRoundTripper struct {
	Delegate    http.RoundTripper
	RequestType string
	Opts        LoggingRoundTripperOpts
}

// NewLoggingRoundTripper creates a LoggingRoundTripper that logs all requests.
func NewLoggingRoundTripper(delegate http.RoundTripper, reqType string, logger log.FieldLogger) *LoggingRoundTripper {
	return NewLoggingRoundTripperWithOpts(delegate, reqType, LoggingRoundTripperOpts{
		Mode:           LoggingModeAll,
		LoggerProvider: func(ctx context.Context) log.FieldLogger { return logger },
	})
}

// NewLoggingRoundTripperWithOpts creates a LoggingRoundTripper with options.
func NewLoggingRoundTripperWithOpts(
	delegate http.RoundTripper, reqType string, opts LoggingRoundTripperOpts,
) *LoggingRoundTripper {
	if opts.Mode == "" {
		opts.Mode = LoggingModeAll
	}
	return &LoggingRoundTripper{Delegate: delegate, RequestType: reqType, Opts: opts}
}

// RoundTrip executes the request and logs its outcome.
func (rt *LoggingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.Opts.Mode == LoggingModeNone || rt.Opts.LoggerProvider == nil {
		return rt.Delegate.RoundTrip(r)
	}
	logger := rt.Opts.LoggerProvider(r.Context())
	if logger == nil {
		return rt.Delegate.RoundTrip(r)
	}

	start := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)
	elapsed := time.Since(start)

	failed := err != nil || resp.StatusCode < 200 || resp.StatusCode > 299
	if elapsed < rt.Opts.SlowRequestThreshold && !failed {
		return resp, err
	}
	if rt.Opts.Mode == LoggingModeFailed && !failed {
		return resp, err
	}

	fields := []log.Field{
		log.String("method", r.Method),
		log.String("uri", r.URL.String()),
		log.String("request_type", rt.RequestType),
		log.DurationIn(elapsed, time.Millisecond),
	}
	if requestID := scheduler.GetRequestIDFromContext(r.Context()); requestID != "" {
		fields = append(fields, log.String("request_id", requestID))
	}
	if attempt := scheduler.GetAttemptFromContext(r.Context()); attempt != 0 {
		fields = append(fields, log.Int("attempt", attempt))
	}
	if err != nil {
		logger.Error("client http request failed", append(fields, log.Error(err))...)
		return resp, err
	}
	logger.Info("client http request done", append(fields, log.Int("status", resp.StatusCode))...)
	return resp, nil
}
