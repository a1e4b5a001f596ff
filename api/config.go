/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package api

import (
	"errors"
	"time"

	"github.com/multisig/chainfetch/config"
)

const cfgDefaultKeyPrefix = "server"

const (
	cfgKeyAddress         = "address"
	cfgKeyShutdownTimeout = "shutdownTimeout"
	cfgKeyLookupTimeout   = "lookupTimeout"
)

// Default values.
const (
	DefaultAddress         = ":8080"
	DefaultShutdownTimeout = 5 * time.Second
	DefaultLookupTimeout   = 2 * time.Minute
)

// Config is the "server" section of the configuration.
type Config struct {
	// Address is the TCP address the server listens on.
	Address string

	// ShutdownTimeout bounds a graceful shutdown of the server.
	ShutdownTimeout time.Duration

	// LookupTimeout bounds how long a handler waits for a scheduled lookup to settle.
	// The lookup itself stays scheduled when the handler gives up.
	LookupTimeout time.Duration
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
		Address:         DefaultAddress,
		ShutdownTimeout: DefaultShutdownTimeout,
		LookupTimeout:   DefaultLookupTimeout,
	}
}

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	return cfgDefaultKeyPrefix
}

// SetProviderDefaults implements config.Config.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyAddress, DefaultAddress)
	dp.SetDefault(cfgKeyShutdownTimeout, DefaultShutdownTimeout.String())
	dp.SetDefault(cfgKeyLookupTimeout, DefaultLookupTimeout.String())
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Address, err = dp.GetString(cfgKeyAddress); err != nil {
		return err
	}
	if c.Address == "" {
		return dp.WrapKeyErr(cfgKeyAddress, errors.New("cannot be empty"))
	}
	if c.ShutdownTimeout, err = dp.GetDuration(cfgKeyShutdownTimeout); err != nil {
		return err
	}
	if c.ShutdownTimeout < 0 {
		return dp.WrapKeyErr(cfgKeyShutdownTimeout, errors.New("must not be negative"))
	}
	if c.LookupTimeout, err = dp.GetDuration(cfgKeyLookupTimeout); err != nil {
		return err
	}
	if c.LookupTimeout <= 0 {
		return dp.WrapKeyErr(cfgKeyLookupTimeout, errors.New("must be positive"))
	}
	return nil
}
