/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package lookupcache

import (
	"errors"
	"fmt"
	"time"

	"github.com/multisig/chainfetch/config"
)

const cfgDefaultKeyPrefix = "cache"

const (
	cfgKeyEnabled         = "enabled"
	cfgKeyMaxEntries      = "maxEntries"
	cfgKeyTTL             = "ttl"
	cfgKeyCleanupInterval = "cleanupInterval"
)

// Default values.
const (
	DefaultMaxEntries      = 1000
	DefaultTTL             = 30 * time.Second
	DefaultCleanupInterval = time.Minute
)

// Config is the "cache" section of the configuration.
type Config struct {
	Enabled bool

	// MaxEntries is the number of addresses kept. The least recently used one is evicted first.
	MaxEntries int

	// TTL is how long a successful lookup is served from the cache.
	TTL time.Duration

	// CleanupInterval is how often expired entries are dropped. Zero disables the cleanup,
	// expired entries are then dropped only when looked up.
	CleanupInterval time.Duration
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a Config to be filled by config.Loader.
func NewConfig() *Config {
	return &Config{}
}

// NewDefaultConfig creates a Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		MaxEntries:      DefaultMaxEntries,
		TTL:             DefaultTTL,
		CleanupInterval: DefaultCleanupInterval,
	}
}

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	return cfgDefaultKeyPrefix
}

// SetProviderDefaults implements config.Config.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyEnabled, true)
	dp.SetDefault(cfgKeyMaxEntries, DefaultMaxEntries)
	dp.SetDefault(cfgKeyTTL, DefaultTTL.String())
	dp.SetDefault(cfgKeyCleanupInterval, DefaultCleanupInterval.String())
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Enabled, err = dp.GetBool(cfgKeyEnabled); err != nil {
		return err
	}
	if c.MaxEntries, err = dp.GetInt(cfgKeyMaxEntries); err != nil {
		return err
	}
	if c.MaxEntries < 1 {
		return dp.WrapKeyErr(cfgKeyMaxEntries, errors.New("must be positive"))
	}
	if c.TTL, err = dp.GetDuration(cfgKeyTTL); err != nil {
		return err
	}
	if c.TTL <= 0 {
		return dp.WrapKeyErr(cfgKeyTTL, errors.New("must be positive"))
	}
	if c.CleanupInterval, err = dp.GetDuration(cfgKeyCleanupInterval); err != nil {
		return err
	}
	if c.CleanupInterval < 0 {
		return dp.WrapKeyErr(cfgKeyCleanupInterval, errors.New("must not be negative"))
	}
	return nil
}

func (c *Config) validate() error {
	if c.MaxEntries < 1 {
		return fmt.Errorf("max entries must be positive, got %d", c.MaxEntries)
	}
	if c.TTL <= 0 {
		return fmt.Errorf("ttl must be positive, got %s", c.TTL)
	}
	return nil
}
