/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package scheduler queues calls to a single rate-limited remote service and dispatches them
// with bounded parallelism, retrying failed calls behind a shared exponential backoff.
//
// Requests are admitted in FIFO order. At most PipelineWidth calls are in flight at any moment.
// When the pipeline is full, a single wake-up timer re-attempts dispatching after the current
// backoff interval. Every failed attempt grows that interval (up to a ceiling) for all requests
// and sends the failed request to the tail of the queue. A request that fails RetryLimit times
// is rejected with ErrRetriesExhausted. The remote service gives no usable failure details,
// so every error is treated the same way.
//
// The backoff interval never shrinks: once the service pushed back, the scheduler keeps its pace.
package scheduler
