/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/multisig/chainfetch/config"
)

const cfgDefaultKeyPrefix = "scheduler"

const (
	cfgKeyPipelineWidth          = "pipelineWidth"
	cfgKeyRetryLimit             = "retryLimit"
	cfgKeyBackoffInitialInterval = "backoff.initialInterval"
	cfgKeyBackoffMaxInterval     = "backoff.maxInterval"
	cfgKeyBackoffMultiplier      = "backoff.multiplier"
	cfgKeyStopTimeout            = "stopTimeout"
	cfgKeyStatsLogInterval       = "statsLogInterval"
)

// Default values.
const (
	DefaultPipelineWidth          = 2
	DefaultRetryLimit             = 5
	DefaultBackoffInitialInterval = 500 * time.Millisecond
	DefaultBackoffMaxInterval     = 30 * time.Second
	DefaultBackoffMultiplier      = 2.0
	DefaultStopTimeout            = 30 * time.Second
	DefaultStatsLogInterval       = time.Minute
)

// Config is the "scheduler" section of the configuration.
type Config struct {
	// PipelineWidth is the maximum number of simultaneously in-flight calls.
	PipelineWidth int

	// RetryLimit is the maximum number of attempts per request, the first one included.
	RetryLimit int

	Backoff BackoffConfig

	// StopTimeout bounds how long a graceful Stop waits for in-flight calls. Zero means no limit.
	StopTimeout time.Duration

	// StatsLogInterval is how often the stats reporter logs the scheduler's state. Zero disables it.
	StatsLogInterval time.Duration

	keyPrefix string
}

// BackoffConfig configures the shared backoff.
// MaxInterval is the ceiling the interval never exceeds.
type BackoffConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a functional option for NewConfig.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix sets the key prefix for the section.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

// NewConfig creates a Config to be filled by config.Loader.
func NewConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{keyPrefix: opts.keyPrefix}
}

// NewDefaultConfig creates a Config with default values, usable without a Loader.
func NewDefaultConfig(options ...ConfigOption) *Config {
	cfg := NewConfig(options...)
	cfg.PipelineWidth = DefaultPipelineWidth
	cfg.RetryLimit = DefaultRetryLimit
	cfg.Backoff = BackoffConfig{
		InitialInterval: DefaultBackoffInitialInterval,
		MaxInterval:     DefaultBackoffMaxInterval,
		Multiplier:      DefaultBackoffMultiplier,
	}
	cfg.StopTimeout = DefaultStopTimeout
	cfg.StatsLogInterval = DefaultStatsLogInterval
	return cfg
}

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults implements config.Config.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyPipelineWidth, DefaultPipelineWidth)
	dp.SetDefault(cfgKeyRetryLimit, DefaultRetryLimit)
	dp.SetDefault(cfgKeyBackoffInitialInterval, DefaultBackoffInitialInterval.String())
	dp.SetDefault(cfgKeyBackoffMaxInterval, DefaultBackoffMaxInterval.String())
	dp.SetDefault(cfgKeyBackoffMultiplier, DefaultBackoffMultiplier)
	dp.SetDefault(cfgKeyStopTimeout, DefaultStopTimeout.String())
	dp.SetDefault(cfgKeyStatsLogInterval, DefaultStatsLogInterval.String())
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.PipelineWidth, err = dp.GetInt(cfgKeyPipelineWidth); err != nil {
		return err
	}
	if c.PipelineWidth < 1 {
		return dp.WrapKeyErr(cfgKeyPipelineWidth, errors.New("must be positive"))
	}
	if c.RetryLimit, err = dp.GetInt(cfgKeyRetryLimit); err != nil {
		return err
	}
	if c.RetryLimit < 1 {
		return dp.WrapKeyErr(cfgKeyRetryLimit, errors.New("must be positive"))
	}
	if err = c.setBackoff(dp); err != nil {
		return err
	}
	if c.StopTimeout, err = dp.GetDuration(cfgKeyStopTimeout); err != nil {
		return err
	}
	if c.StopTimeout < 0 {
		return dp.WrapKeyErr(cfgKeyStopTimeout, errors.New("must not be negative"))
	}
	if c.StatsLogInterval, err = dp.GetDuration(cfgKeyStatsLogInterval); err != nil {
		return err
	}
	if c.StatsLogInterval < 0 {
		return dp.WrapKeyErr(cfgKeyStatsLogInterval, errors.New("must not be negative"))
	}
	return nil
}

func (c *Config) setBackoff(dp config.DataProvider) error {
	var err error
	if c.Backoff.InitialInterval, err = dp.GetDuration(cfgKeyBackoffInitialInterval); err != nil {
		return err
	}
	if c.Backoff.InitialInterval <= 0 {
		return dp.WrapKeyErr(cfgKeyBackoffInitialInterval, errors.New("must be positive"))
	}
	if c.Backoff.MaxInterval, err = dp.GetDuration(cfgKeyBackoffMaxInterval); err != nil {
		return err
	}
	if c.Backoff.MaxInterval < c.Backoff.InitialInterval {
		return dp.WrapKeyErr(cfgKeyBackoffMaxInterval,
			fmt.Errorf("cannot be less than %s (%s)", cfgKeyBackoffInitialInterval, c.Backoff.InitialInterval))
	}
	if c.Backoff.Multiplier, err = dp.GetFloat64(cfgKeyBackoffMultiplier); err != nil {
		return err
	}
	if c.Backoff.Multiplier <= 1 {
		return dp.WrapKeyErr(cfgKeyBackoffMultiplier, errors.New("must be greater than 1"))
	}
	return nil
}

// Validate checks a Config that was built in code rather than loaded.
func (c *Config) Validate() error {
	switch {
	case c.PipelineWidth < 1:
		return fmt.Errorf("pipeline width must be positive, got %d", c.PipelineWidth)
	case c.RetryLimit < 1:
		return fmt.Errorf("retry limit must be positive, got %d", c.RetryLimit)
	case c.Backoff.InitialInterval <= 0:
		return fmt.Errorf("backoff initial interval must be positive, got %s", c.Backoff.InitialInterval)
	case c.Backoff.MaxInterval < c.Backoff.InitialInterval:
		return fmt.Errorf("backoff max interval (%s) cannot be less than initial interval (%s)",
			c.Backoff.MaxInterval, c.Backoff.InitialInterval)
	case c.Backoff.Multiplier <= 1:
		return fmt.Errorf("backoff multiplier must be greater than 1, got %v", c.Backoff.Multiplier)
	case c.StopTimeout < 0:
		return fmt.Errorf("stop timeout must not be negative, got %s", c.StopTimeout)
	case c.StatsLogInterval < 0:
		return fmt.Errorf("stats log interval must not be negative, got %s", c.StatsLogInterval)
	}
	return nil
}
