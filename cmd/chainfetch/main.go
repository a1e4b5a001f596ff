/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Command chainfetch looks up unspent outputs of bitcoin addresses on blockchain.info.
//
// Usage:
//
//	chainfetch [-config config.yml] [serve]
//	chainfetch [-config config.yml] lookup ADDRESS...
//
// The serve command (default) runs the lookup HTTP API. The lookup command prints
// the unspent outputs of every given address and exits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	golog "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/multisig/chainfetch/api"
	"github.com/multisig/chainfetch/blockchaininfo"
	"github.com/multisig/chainfetch/config"
	"github.com/multisig/chainfetch/httpclient"
	"github.com/multisig/chainfetch/log"
	"github.com/multisig/chainfetch/lookupcache"
	"github.com/multisig/chainfetch/scheduler"
	"github.com/multisig/chainfetch/service"
)

const (
	appName          = "chainfetch"
	envVarsPrefix    = "CHAINFETCH"
	metricsNamespace = "chainfetch"
	userAgent        = "chainfetch/1.0"
)

const (
	commandServe  = "serve"
	commandLookup = "lookup"
)

func main() {
	if err := runApp(os.Args[1:], os.Stdout); err != nil {
		golog.Fatal(err)
	}
}

func runApp(args []string, out io.Writer) error {
	flags := flag.NewFlagSet(appName, flag.ContinueOnError)
	configPath := flags.String("config", "", "path to a YAML configuration file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := loadAppConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, loggerClose := log.NewLogger(cfg.Log)
	defer loggerClose()

	command, commandArgs := commandServe, flags.Args()
	if len(commandArgs) > 0 {
		command, commandArgs = commandArgs[0], commandArgs[1:]
	}
	switch command {
	case commandServe:
		return runServe(cfg, logger)
	case commandLookup:
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return runLookup(ctx, cfg, logger, commandArgs, out)
	}
	return fmt.Errorf("unknown command %q, expected %q or %q", command, commandServe, commandLookup)
}

func runServe(cfg *AppConfig, logger log.FieldLogger) error {
	opts := blockchaininfo.Opts{
		Logger:    logger,
		UserAgent: userAgent,
		SchedulerMetrics: scheduler.NewPrometheusMetricsWithOpts(
			scheduler.PrometheusMetricsOpts{Namespace: metricsNamespace}),
	}
	if cfg.HTTPClient.Metrics.Enabled {
		httpMetrics := httpclient.NewPrometheusMetricsCollector(metricsNamespace)
		httpMetrics.MustRegister()
		defer httpMetrics.Unregister()
		opts.HTTPMetrics = httpMetrics
	}

	client, err := blockchaininfo.New(cfg.HTTPClient, cfg.Scheduler, opts)
	if err != nil {
		return fmt.Errorf("create blockchain.info client: %w", err)
	}
	sched := client.Scheduler()

	// Units are stopped in reverse order: the API server stops accepting lookups before the scheduler stops.
	serviceUnits := []service.Unit{sched}
	if cfg.Scheduler.StatsLogInterval > 0 {
		serviceUnits = append(serviceUnits, scheduler.NewStatsReporter(sched, cfg.Scheduler.StatsLogInterval, logger))
	}
	var getter api.UnspentOutputsGetter = client
	if cfg.Cache.Enabled {
		cacheMetrics := lookupcache.NewPrometheusMetrics(metricsNamespace)
		cacheMetrics.MustRegister()
		defer cacheMetrics.Unregister()
		cache, cacheErr := lookupcache.New(client, cfg.Cache, cacheMetrics)
		if cacheErr != nil {
			return fmt.Errorf("create lookup cache: %w", cacheErr)
		}
		if cfg.Cache.CleanupInterval > 0 {
			serviceUnits = append(serviceUnits, lookupcache.NewCleanupUnit(cache, cfg.Cache.CleanupInterval, logger))
		}
		getter = cache
	}

	apiServer := api.New(cfg.Server, getter, logger, api.Opts{
		MetricsNamespace: metricsNamespace,
		HealthCheck: func() map[string]bool {
			return map[string]bool{"scheduler": !sched.Stats().Stopped}
		},
	})
	serviceUnits = append(serviceUnits, apiServer)
	if cfg.ProfServer.Enabled {
		serviceUnits = append(serviceUnits, api.NewProfServer(cfg.ProfServer, logger))
	}

	return service.New(logger, service.NewCompositeUnit(serviceUnits...)).Start()
}

func runLookup(ctx context.Context, cfg *AppConfig, logger log.FieldLogger, addresses []string, out io.Writer) error {
	if len(addresses) == 0 {
		return errors.New("no addresses to look up")
	}
	for _, address := range addresses {
		if address == "" {
			return blockchaininfo.ErrEmptyAddress
		}
	}

	client, err := blockchaininfo.New(cfg.HTTPClient, cfg.Scheduler, blockchaininfo.Opts{Logger: logger, UserAgent: userAgent})
	if err != nil {
		return fmt.Errorf("create blockchain.info client: %w", err)
	}
	sched := client.Scheduler()
	defer func() {
		if stopErr := sched.Stop(false); stopErr != nil {
			logger.Error("failed to stop scheduler", log.Error(stopErr))
		}
	}()

	// All lookups are submitted up front so they share the pipeline in the given order.
	futures := make([]*scheduler.Future[[]byte], 0, len(addresses))
	for _, address := range addresses {
		futures = append(futures, client.UnspentOutputsFuture(address))
	}

	var failed int
	for i, future := range futures {
		payload, waitErr := future.Wait(ctx)
		if waitErr != nil {
			if ctx.Err() != nil {
				return waitErr
			}
			failed++
			logger.Error("lookup failed", log.String("address", addresses[i]), log.Error(waitErr))
			continue
		}
		if _, err = fmt.Fprintf(out, "%s\t%s\n", addresses[i], payload); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d lookups failed", failed, len(addresses))
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	cfgLoader := config.NewDefaultLoader(envVarsPrefix)
	cfg := NewAppConfig()
	if path == "" {
		return cfg, cfgLoader.Load(cfg)
	}
	return cfg, cfgLoader.LoadFromFile(path, config.DataTypeYAML, cfg)
}

// AppConfig is the whole configuration of chainfetch.
type AppConfig struct {
	Log        *log.Config
	Server     *api.Config
	ProfServer *api.ProfServerConfig
	Cache      *lookupcache.Config
	Scheduler  *scheduler.Config
	HTTPClient *httpclient.Config
}

// NewAppConfig creates an AppConfig with every section read from its own key prefix.
func NewAppConfig() *AppConfig {
	return &AppConfig{
		Log:        log.NewConfig(),
		Server:     api.NewConfig(),
		ProfServer: api.NewProfServerConfig(),
		Cache:      lookupcache.NewConfig(),
		Scheduler:  scheduler.NewConfig(),
		HTTPClient: httpclient.NewConfig(),
	}
}

// SetProviderDefaults implements config.Config.
func (c *AppConfig) SetProviderDefaults(dp config.DataProvider) {
	config.CallSetProviderDefaultsForFields(c, dp)
}

// Set implements config.Config.
func (c *AppConfig) Set(dp config.DataProvider) error {
	return config.CallSetForFields(c, dp)
}
