/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package service runs the long-lived parts of chainfetch (the API server, the scheduler,
// periodic workers) as units with a common start/stop lifecycle.
package service

// Unit is a component of a service with its own lifecycle.
type Unit interface {
	// Start runs the unit. It may return right away or block for the unit's whole lifetime.
	// A failure is reported by writing to fatalErr, which must not be used after Start returns.
	Start(fatalErr chan<- error)

	// Stop halts the unit, cleanly if gracefully is true.
	// It may be called whether Start succeeded, failed or was never called.
	Stop(gracefully bool) error
}

// MetricsRegisterer is implemented by units that own Prometheus metrics.
type MetricsRegisterer interface {
	MustRegisterMetrics()
	UnregisterMetrics()
}
