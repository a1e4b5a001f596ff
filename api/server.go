/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package api serves unspent outputs lookups over HTTP.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/atomic"

	"github.com/multisig/chainfetch/log"
	"github.com/multisig/chainfetch/service"
)

// RoutePrefix is the prefix of all API routes.
const RoutePrefix = "/api/chainfetch/v1"

// Opts represents options for creating Server.
type Opts struct {
	// HealthCheck reports components' health on /healthz. Only the server itself is reported if nil.
	HealthCheck HealthCheck

	// MetricsHandler serves /metrics. promhttp.Handler() is used if nil.
	MetricsHandler http.Handler

	// MetricsNamespace is the namespace of the HTTP request metrics.
	MetricsNamespace string

	// Listener is used instead of listening on Config.Address.
	Listener net.Listener
}

// Server is the lookup HTTP server.
// It implements service.Unit and service.MetricsRegisterer interfaces.
type Server struct {
	HTTPServer      *http.Server
	Router          chi.Router
	Logger          log.FieldLogger
	ShutdownTimeout time.Duration

	listener       net.Listener
	addr           atomic.String
	started        atomic.Bool
	serveDone      chan struct{}
	httpReqMetrics *HTTPRequestMetrics
}

var _ service.Unit = (*Server)(nil)
var _ service.MetricsRegisterer = (*Server)(nil)

// NewRouter creates a chi.Router with request ID, logging, recovery and metrics middlewares,
// system endpoints (/healthz, /metrics) and the unspent outputs route.
func NewRouter(
	getter UnspentOutputsGetter, lookupTimeout time.Duration, logger log.FieldLogger, httpReqMetrics *HTTPRequestMetrics, opts Opts,
) chi.Router {
	router := chi.NewRouter()
	router.Use(requestID, logging(logger), recovery)
	if httpReqMetrics != nil {
		router.Use(httpReqMetrics.middleware)
	}
	router.NotFound(notFoundHandler)
	router.MethodNotAllowed(methodNotAllowedHandler)

	healthCheck := opts.HealthCheck
	if healthCheck == nil {
		healthCheck = func() map[string]bool { return map[string]bool{"server": true} }
	}
	router.Get("/healthz", healthCheckHandler(healthCheck))

	metricsHandler := opts.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	router.Method(http.MethodGet, "/metrics", metricsHandler)

	router.Route(RoutePrefix, func(r chi.Router) {
		r.Method(http.MethodGet, "/unspent/{address}", &unspentHandler{getter: getter, lookupTimeout: lookupTimeout})
	})
	return router
}

// New creates a new Server.
func New(cfg *Config, getter UnspentOutputsGetter, logger log.FieldLogger, opts Opts) *Server {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	httpReqMetrics := NewHTTPRequestMetrics(opts.MetricsNamespace)
	router := NewRouter(getter, cfg.LookupTimeout, logger, httpReqMetrics, opts)
	s := &Server{
		HTTPServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		Router:          router,
		Logger:          logger,
		ShutdownTimeout: cfg.ShutdownTimeout,
		listener:        opts.Listener,
		serveDone:       make(chan struct{}),
		httpReqMetrics:  httpReqMetrics,
	}
	if s.listener != nil {
		s.addr.Store(s.listener.Addr().String())
	}
	return s
}

// Start starts the server in a blocking way.
// If a fatal error occurs, it will be sent to the fatalError channel.
func (s *Server) Start(fatalError chan<- error) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	defer close(s.serveDone)

	logger := s.Logger.With(
		log.String("address", s.HTTPServer.Addr),
		log.Duration("shutdown_timeout", s.ShutdownTimeout),
	)
	logger.Info("starting API HTTP server...")

	if s.listener == nil {
		ln, err := net.Listen("tcp", s.HTTPServer.Addr)
		if err != nil {
			logger.Error("API HTTP server error", log.Error(err))
			fatalError <- err
			return
		}
		s.listener = ln
		s.addr.Store(ln.Addr().String())
	}

	if err := s.HTTPServer.Serve(s.listener); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("API HTTP server closed")
			return
		}
		logger.Error("API HTTP server error", log.Error(err))
		fatalError <- err
	}
}

// Stop stops the server (gracefully or not).
func (s *Server) Stop(gracefully bool) error {
	if !gracefully {
		s.Logger.Info("closing API HTTP server...")
		if err := s.HTTPServer.Close(); err != nil {
			s.Logger.Error("API HTTP server closing error", log.Error(err))
			return err
		}
		s.waitServeDone()
		return nil
	}

	ctx := context.Background()
	if s.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.ShutdownTimeout)
		defer cancel()
	}

	s.Logger.Info("shutting down API HTTP server...", log.Duration("timeout", s.ShutdownTimeout))
	if err := s.HTTPServer.Shutdown(ctx); err != nil {
		s.Logger.Error("API HTTP server shutting down error", log.Error(err))
		return err
	}
	s.Logger.Info("API HTTP server shut down")
	s.waitServeDone()
	return nil
}

func (s *Server) waitServeDone() {
	if s.started.Load() {
		<-s.serveDone
	}
}

// Addr returns the address the server listens on. It is empty until the listener is created.
func (s *Server) Addr() string {
	return s.addr.Load()
}

// MustRegisterMetrics registers metrics in Prometheus client and panics if any error occurs.
func (s *Server) MustRegisterMetrics() {
	s.httpReqMetrics.MustRegister()
}

// UnregisterMetrics unregisters metrics in Prometheus client.
func (s *Server) UnregisterMetrics() {
	s.httpReqMetrics.Unregister()
}
