/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/multisig/chainfetch/config"
	"github.com/multisig/chainfetch/internal/pacing"
)

const cfgDefaultKeyPrefix = "httpClient"

const (
	cfgKeyBaseURL                 = "baseURL"
	cfgKeyTimeout                 = "timeout"
	cfgKeyRateLimitsEnabled       = "rateLimits.enabled"
	cfgKeyRateLimitsAlgorithm     = "rateLimits.algorithm"
	cfgKeyRateLimitsLimit         = "rateLimits.limit"
	cfgKeyRateLimitsPeriod        = "rateLimits.period"
	cfgKeyRateLimitsBurst         = "rateLimits.burst"
	cfgKeyRateLimitsWaitTimeout   = "rateLimits.waitTimeout"
	cfgKeyLogEnabled              = "log.enabled"
	cfgKeyLogMode                 = "log.mode"
	cfgKeyLogSlowRequestThreshold = "log.slowRequestThreshold"
	cfgKeyMetricsEnabled          = "metrics.enabled"
)

// Default values.
const (
	DefaultBaseURL                 = "https://blockchain.info/"
	DefaultTimeout                 = 30 * time.Second
	DefaultRateLimitsLimit         = 1
	DefaultRateLimitsPeriod        = 10 * time.Second
	DefaultRateLimitsWaitTimeout   = time.Minute
	DefaultLogSlowRequestThreshold = time.Second
)

var availableLoggingModes = []string{string(LoggingModeNone), string(LoggingModeAll), string(LoggingModeFailed)}

// Config is the "httpClient" section of the configuration.
type Config struct {
	// BaseURL is prepended to every target passed to Transport.Call.
	BaseURL string

	// Timeout bounds a single HTTP exchange, reading the body included.
	Timeout time.Duration

	RateLimits RateLimitsConfig
	Log        LogConfig
	Metrics    MetricsConfig

	keyPrefix string
}

// RateLimitsConfig configures client-side pacing of outgoing requests.
type RateLimitsConfig struct {
	Enabled   bool
	Algorithm pacing.Algorithm

	// Limit requests are allowed per Period.
	Limit  int
	Period time.Duration
	Burst  int

	// WaitTimeout bounds how long a request may wait for its turn.
	WaitTimeout time.Duration
}

// TransportOpts returns options for RateLimitingRoundTripper.
func (c *RateLimitsConfig) TransportOpts() RateLimitingRoundTripperOpts {
	return RateLimitingRoundTripperOpts{Algorithm: c.Algorithm, Burst: c.Burst, WaitTimeout: c.WaitTimeout}
}

// LogConfig configures logging of outgoing requests.
type LogConfig struct {
	Enabled              bool
	Mode                 LoggingMode
	SlowRequestThreshold time.Duration
}

// TransportOpts returns options for LoggingRoundTripper.
func (c *LogConfig) TransportOpts() LoggingRoundTripperOpts {
	return LoggingRoundTripperOpts{Mode: c.Mode, SlowRequestThreshold: c.SlowRequestThreshold}
}

// MetricsConfig configures metrics of outgoing requests.
type MetricsConfig struct {
	Enabled bool
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a Config read from keys under "httpClient".
func NewConfig() *Config {
	return NewConfigWithKeyPrefix(cfgDefaultKeyPrefix)
}

// NewConfigWithKeyPrefix creates a Config read from keys under keyPrefix.
func NewConfigWithKeyPrefix(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// NewDefaultConfig creates a Config with default values, usable without a Loader.
func NewDefaultConfig() *Config {
	return &Config{
		BaseURL: DefaultBaseURL,
		Timeout: DefaultTimeout,
		RateLimits: RateLimitsConfig{
			Algorithm:   pacing.AlgorithmTokenBucket,
			Limit:       DefaultRateLimitsLimit,
			Period:      DefaultRateLimitsPeriod,
			WaitTimeout: DefaultRateLimitsWaitTimeout,
		},
		Log:       LogConfig{Enabled: true, Mode: LoggingModeFailed, SlowRequestThreshold: DefaultLogSlowRequestThreshold},
		Metrics:   MetricsConfig{Enabled: true},
		keyPrefix: cfgDefaultKeyPrefix,
	}
}

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// SetProviderDefaults implements config.Config.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyBaseURL, DefaultBaseURL)
	dp.SetDefault(cfgKeyTimeout, DefaultTimeout.String())
	dp.SetDefault(cfgKeyRateLimitsAlgorithm, string(pacing.AlgorithmTokenBucket))
	dp.SetDefault(cfgKeyRateLimitsLimit, DefaultRateLimitsLimit)
	dp.SetDefault(cfgKeyRateLimitsPeriod, DefaultRateLimitsPeriod.String())
	dp.SetDefault(cfgKeyRateLimitsWaitTimeout, DefaultRateLimitsWaitTimeout.String())
	dp.SetDefault(cfgKeyLogEnabled, true)
	dp.SetDefault(cfgKeyLogMode, string(LoggingModeFailed))
	dp.SetDefault(cfgKeyLogSlowRequestThreshold, DefaultLogSlowRequestThreshold.String())
	dp.SetDefault(cfgKeyMetricsEnabled, true)
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.BaseURL, err = dp.GetString(cfgKeyBaseURL); err != nil {
		return err
	}
	if err = validateBaseURL(c.BaseURL); err != nil {
		return dp.WrapKeyErr(cfgKeyBaseURL, err)
	}
	if c.Timeout, err = dp.GetDuration(cfgKeyTimeout); err != nil {
		return err
	}
	if c.Timeout < 0 {
		return dp.WrapKeyErr(cfgKeyTimeout, errors.New("must not be negative"))
	}
	if err = c.setRateLimits(dp); err != nil {
		return err
	}
	if err = c.setLog(dp); err != nil {
		return err
	}
	c.Metrics.Enabled, err = dp.GetBool(cfgKeyMetricsEnabled)
	return err
}

func (c *Config) setRateLimits(dp config.DataProvider) error {
	var err error
	if c.RateLimits.Enabled, err = dp.GetBool(cfgKeyRateLimitsEnabled); err != nil {
		return err
	}
	if !c.RateLimits.Enabled {
		return nil
	}
	algStr, err := dp.GetStringFromSet(cfgKeyRateLimitsAlgorithm, pacing.Algorithms, false)
	if err != nil {
		return err
	}
	c.RateLimits.Algorithm = pacing.Algorithm(algStr)
	if c.RateLimits.Limit, err = dp.GetInt(cfgKeyRateLimitsLimit); err != nil {
		return err
	}
	if c.RateLimits.Limit <= 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsLimit, errors.New("must be positive"))
	}
	if c.RateLimits.Period, err = dp.GetDuration(cfgKeyRateLimitsPeriod); err != nil {
		return err
	}
	if c.RateLimits.Period <= 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsPeriod, errors.New("must be positive"))
	}
	if c.RateLimits.Burst, err = dp.GetInt(cfgKeyRateLimitsBurst); err != nil {
		return err
	}
	if c.RateLimits.Burst < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsBurst, errors.New("must not be negative"))
	}
	if c.RateLimits.WaitTimeout, err = dp.GetDuration(cfgKeyRateLimitsWaitTimeout); err != nil {
		return err
	}
	if c.RateLimits.WaitTimeout < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsWaitTimeout, errors.New("must not be negative"))
	}
	return nil
}

func (c *Config) setLog(dp config.DataProvider) error {
	var err error
	if c.Log.Enabled, err = dp.GetBool(cfgKeyLogEnabled); err != nil {
		return err
	}
	if !c.Log.Enabled {
		return nil
	}
	modeStr, err := dp.GetStringFromSet(cfgKeyLogMode, availableLoggingModes, false)
	if err != nil {
		return err
	}
	c.Log.Mode = LoggingMode(modeStr)
	if c.Log.SlowRequestThreshold, err = dp.GetDuration(cfgKeyLogSlowRequestThreshold); err != nil {
		return err
	}
	if c.Log.SlowRequestThreshold < 0 {
		return dp.WrapKeyErr(cfgKeyLogSlowRequestThreshold, errors.New("must not be negative"))
	}
	return nil
}

func validateBaseURL(baseURL string) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host cannot be empty")
	}
	return nil
}
