/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package config loads typed configuration sections from files and environment variables.
package config

import "reflect"

// Config is implemented by every configuration section that can be filled by Loader.
type Config interface {
	SetProviderDefaults(dp DataProvider)
	Set(dp DataProvider) error
}

// KeyPrefixProvider is implemented by sections whose keys live under a common prefix (e.g. "scheduler").
type KeyPrefixProvider interface {
	KeyPrefix() string
}

// CallSetProviderDefaultsForFields walks the exported non-nil fields of obj
// and calls SetProviderDefaults for each field that implements Config.
func CallSetProviderDefaultsForFields(obj interface{}, dp DataProvider) {
	forEachConfigField(obj, dp, func(c Config, fieldDP DataProvider) error {
		c.SetProviderDefaults(fieldDP)
		return nil
	})
}

// CallSetForFields walks the exported non-nil fields of obj
// and calls Set for each field that implements Config. The first error stops the walk.
func CallSetForFields(obj interface{}, dp DataProvider) error {
	return forEachConfigField(obj, dp, func(c Config, fieldDP DataProvider) error {
		return c.Set(fieldDP)
	})
}

func forEachConfigField(obj interface{}, dp DataProvider, fn func(c Config, fieldDP DataProvider) error) error {
	el := reflect.ValueOf(obj).Elem()
	for i := 0; i < el.NumField(); i++ {
		if !el.Type().Field(i).IsExported() {
			continue
		}
		field := el.Field(i)
		if (field.Kind() == reflect.Ptr || field.Kind() == reflect.Interface) && field.IsNil() {
			continue
		}
		c, ok := field.Interface().(Config)
		if !ok {
			continue
		}
		if err := fn(c, dataProviderFor(c, dp)); err != nil {
			return err
		}
	}
	return nil
}

func dataProviderFor(c Config, dp DataProvider) DataProvider {
	if kp, ok := c.(KeyPrefixProvider); ok && kp.KeyPrefix() != "" {
		return NewKeyPrefixedDataProvider(dp, kp.KeyPrefix())
	}
	return dp
}
