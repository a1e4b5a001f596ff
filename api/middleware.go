/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package api

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/xid"

	"github.com/multisig/chainfetch/log"
)

// HeaderRequestID is the header that carries the ID of an incoming request.
const HeaderRequestID = "X-Request-ID"

// systemEndpoints are not logged on success and not involved in metrics collecting.
var systemEndpoints = []string{"/metrics", "/healthz"}

func isSystemEndpoint(urlPath string) bool {
	for _, endpoint := range systemEndpoints {
		if urlPath == endpoint {
			return true
		}
	}
	return false
}

// requestID reads the X-Request-ID header and generates a new ID (xid) if it is empty.
// The ID is put into the request's context and returned in the response.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(HeaderRequestID)
		if reqID == "" {
			reqID = xid.New().String()
		}
		rw.Header().Set(HeaderRequestID, reqID)
		next.ServeHTTP(rw, r.WithContext(NewContextWithRequestID(r.Context(), reqID)))
	})
}

// logging puts a request-scoped logger into the context and logs every completed request.
// Successful requests to system endpoints are not logged.
func logging(logger log.FieldLogger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			startTime := time.Now()
			ctx := r.Context()
			reqLogger := logger.With(log.String("request_id", GetRequestIDFromContext(ctx)))

			wrw := wrapResponseWriter(rw, r.ProtoMajor)
			next.ServeHTTP(wrw, r.WithContext(NewContextWithLogger(ctx, reqLogger)))

			status := responseStatus(wrw)
			if isSystemEndpoint(r.URL.Path) && status < http.StatusBadRequest {
				return
			}
			duration := time.Since(startTime)
			reqLogger.Info(fmt.Sprintf("response completed in %.3fs", duration.Seconds()),
				log.String("method", r.Method),
				log.String("uri", r.RequestURI),
				log.String("remote_addr", r.RemoteAddr),
				log.Int64("duration_ms", duration.Milliseconds()),
				log.Int("status", status),
				log.Int("bytes_sent", wrw.BytesWritten()),
			)
		})
	}
}

// recovery recovers from panics, logs the panic value with a stacktrace and responds with an internal error.
func recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				logger := GetLoggerFromContext(r.Context())
				logger.Error(fmt.Sprintf("Panic: %+v", p), log.String("stack", string(debug.Stack())))
				RespondInternalError(rw, logger)
			}
		}()
		next.ServeHTTP(rw, r)
	})
}

// HTTPRequestMetrics collects the durations and the number of in-flight incoming requests.
type HTTPRequestMetrics struct {
	Durations *prometheus.HistogramVec
	InFlight  prometheus.Gauge
}

// NewHTTPRequestMetrics creates HTTP request metrics with the given namespace.
func NewHTTPRequestMetrics(namespace string) *HTTPRequestMetrics {
	return &HTTPRequestMetrics{
		Durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "A histogram of the HTTP request durations.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"method", "route_pattern", "status"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current number of HTTP requests being served.",
		}),
	}
}

// MustRegister registers the metrics in the default Prometheus registerer.
func (m *HTTPRequestMetrics) MustRegister() {
	prometheus.MustRegister(m.Durations, m.InFlight)
}

// Unregister removes the metrics from the default Prometheus registerer.
func (m *HTTPRequestMetrics) Unregister() {
	prometheus.Unregister(m.Durations)
	prometheus.Unregister(m.InFlight)
}

// middleware observes the duration of every request labeled with its chi route pattern.
func (m *HTTPRequestMetrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if isSystemEndpoint(r.URL.Path) {
			next.ServeHTTP(rw, r)
			return
		}

		startTime := time.Now()
		m.InFlight.Inc()
		defer m.InFlight.Dec()

		wrw := wrapResponseWriter(rw, r.ProtoMajor)
		next.ServeHTTP(wrw, r)

		routePattern := getChiRoutePattern(r)
		if routePattern == "" {
			routePattern = "_unknown"
		}
		m.Durations.With(prometheus.Labels{
			"method":        r.Method,
			"route_pattern": routePattern,
			"status":        fmt.Sprint(responseStatus(wrw)),
		}).Observe(time.Since(startTime).Seconds())
	})
}

func wrapResponseWriter(rw http.ResponseWriter, protoMajor int) middleware.WrapResponseWriter {
	if wrw, ok := rw.(middleware.WrapResponseWriter); ok {
		return wrw
	}
	return middleware.NewWrapResponseWriter(rw, protoMajor)
}

// responseStatus returns 200 for a handler that wrote nothing, as net/http does.
func responseStatus(wrw middleware.WrapResponseWriter) int {
	if status := wrw.Status(); status != 0 {
		return status
	}
	return http.StatusOK
}

func getChiRoutePattern(r *http.Request) string {
	if chiCtx := chi.RouteContext(r.Context()); chiCtx != nil {
		return chiCtx.RoutePattern()
	}
	return ""
}
