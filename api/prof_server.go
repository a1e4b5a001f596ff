/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/multisig/chainfetch/config"
	"github.com/multisig/chainfetch/log"
	"github.com/multisig/chainfetch/service"
)

const (
	cfgKeyProfServerEnabled = "enabled"
	cfgKeyProfServerAddress = "address"
)

// DefaultProfServerAddress is the default address of the profiling server. It is local-only.
const DefaultProfServerAddress = "127.0.0.1:8081"

// ProfServerConfig is the "profServer" section of the configuration.
type ProfServerConfig struct {
	Enabled bool
	Address string
}

var _ config.Config = (*ProfServerConfig)(nil)
var _ config.KeyPrefixProvider = (*ProfServerConfig)(nil)

// NewProfServerConfig creates a ProfServerConfig to be filled by config.Loader.
func NewProfServerConfig() *ProfServerConfig {
	return &ProfServerConfig{}
}

// KeyPrefix implements config.KeyPrefixProvider.
func (c *ProfServerConfig) KeyPrefix() string {
	return "profServer"
}

// SetProviderDefaults implements config.Config.
func (c *ProfServerConfig) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyProfServerEnabled, false)
	dp.SetDefault(cfgKeyProfServerAddress, DefaultProfServerAddress)
}

// Set implements config.Config.
func (c *ProfServerConfig) Set(dp config.DataProvider) error {
	var err error
	if c.Enabled, err = dp.GetBool(cfgKeyProfServerEnabled); err != nil {
		return err
	}
	if c.Address, err = dp.GetString(cfgKeyProfServerAddress); err != nil {
		return err
	}
	return nil
}

// ProfServer is an HTTP server exposing pprof under /debug.
// It implements service.Unit interface.
type ProfServer struct {
	HTTPServer     *http.Server
	Logger         log.FieldLogger
	httpServerDone chan struct{}
}

var _ service.Unit = (*ProfServer)(nil)

// NewProfServer creates a new profiling HTTP server.
func NewProfServer(cfg *ProfServerConfig, logger log.FieldLogger) *ProfServer {
	router := chi.NewRouter()
	router.Use(requestID, logging(logger))
	router.Mount("/debug", chimiddleware.Profiler())

	return &ProfServer{
		HTTPServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		Logger:         logger,
		httpServerDone: make(chan struct{}),
	}
}

// Start starts the profiling server in a blocking way.
func (s *ProfServer) Start(fatalError chan<- error) {
	defer close(s.httpServerDone)

	logger := s.Logger.With(log.String("address", s.HTTPServer.Addr))
	logger.Info("starting profiling HTTP server...")
	if err := s.HTTPServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("profiling HTTP server closed")
			return
		}
		logger.Error("profiling HTTP server error", log.Error(err))
		fatalError <- err
	}
}

// Stop closes the profiling server. Requests in progress are not waited for.
func (s *ProfServer) Stop(gracefully bool) error {
	s.Logger.Info("closing profiling HTTP server...")
	if err := s.HTTPServer.Close(); err != nil {
		s.Logger.Error("profiling HTTP server closing error", log.Error(err))
		return err
	}
	<-s.httpServerDone
	return nil
}
