/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package blockchaininfo is a client of the blockchain.info API.
// All calls go through one scheduler, which keeps the client within the API's rate limits.
package blockchaininfo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/multisig/chainfetch/httpclient"
	"github.com/multisig/chainfetch/log"
	"github.com/multisig/chainfetch/scheduler"
)

const requestType = "blockchaininfo"

const unspentOutputsPath = "unspent?active="

// ErrEmptyAddress is returned by UnspentOutputs for an empty address.
var ErrEmptyAddress = errors.New("address cannot be empty")

// Opts represents options for New.
type Opts struct {
	Logger           log.FieldLogger
	UserAgent        string
	SchedulerMetrics scheduler.MetricsCollector
	HTTPMetrics      httpclient.MetricsCollector
}

// Client submits blockchain.info requests to a scheduler.
type Client struct {
	sched *scheduler.Scheduler[string, []byte]
}

// NewClient creates a Client over an existing scheduler.
func NewClient(sched *scheduler.Scheduler[string, []byte]) *Client {
	return &Client{sched: sched}
}

// New builds the HTTP transport and the scheduler from configuration and returns a Client over them.
func New(httpCfg *httpclient.Config, schedCfg *scheduler.Config, opts Opts) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	logger := opts.Logger.With(log.String("component", requestType))
	transport, err := httpclient.NewTransport(httpCfg, httpclient.Opts{
		UserAgent:      opts.UserAgent,
		RequestType:    requestType,
		LoggerProvider: func(ctx context.Context) log.FieldLogger { return logger },
		Collector:      opts.HTTPMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create http transport: %w", err)
	}
	sched, err := scheduler.NewWithOpts[string, []byte](schedCfg, transport, scheduler.Opts{
		Logger:           logger,
		MetricsCollector: opts.SchedulerMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return NewClient(sched), nil
}

// Scheduler returns the scheduler the client submits to, e.g. to stop it.
func (c *Client) Scheduler() *scheduler.Scheduler[string, []byte] {
	return c.sched
}

// Get submits a request for path (relative to the API root) and returns its Future.
func (c *Client) Get(path string) *scheduler.Future[[]byte] {
	return c.sched.Submit(path)
}

// UnspentOutputsFuture submits a request for the unspent outputs of address.
func (c *Client) UnspentOutputsFuture(address string) *scheduler.Future[[]byte] {
	return c.Get(unspentOutputsPath + url.QueryEscape(address))
}

// UnspentOutputs returns the unspent outputs of address as returned by the API.
// It waits until the request settles or ctx is done.
func (c *Client) UnspentOutputs(ctx context.Context, address string) (json.RawMessage, error) {
	if address == "" {
		return nil, ErrEmptyAddress
	}
	payload, err := c.UnspentOutputsFuture(address).Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("get unspent outputs of %s: %w", address, err)
	}
	return payload, nil
}
