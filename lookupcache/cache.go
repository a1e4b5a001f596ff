/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package lookupcache keeps recent unspent outputs lookups in an LRU cache with expiration
// and merges concurrent lookups of the same address into one scheduled request.
package lookupcache

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/multisig/chainfetch/log"
	"github.com/multisig/chainfetch/service"
)

// Getter looks up unspent outputs of an address. It is implemented by *blockchaininfo.Client.
type Getter interface {
	UnspentOutputs(ctx context.Context, address string) (json.RawMessage, error)
}

type cacheEntry struct {
	address   string
	payload   json.RawMessage
	expiresAt time.Time
}

type lookupCall struct {
	done    chan struct{}
	payload json.RawMessage
	err     error
}

// Cache is a Getter that serves successful lookups from memory for a while.
// Failed lookups are not cached.
type Cache struct {
	getter     Getter
	maxEntries int
	ttl        time.Duration
	metrics    MetricsCollector

	mu      sync.Mutex
	lruList *list.List
	entries map[string]*list.Element // value is a lruList element
	calls   map[string]*lookupCall
}

// New creates a Cache in front of getter. Metrics are not collected if metrics is nil.
func New(getter Getter, cfg *Config, metrics MetricsCollector) (*Cache, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate lookup cache config: %w", err)
	}
	if metrics == nil {
		metrics = disabledMetrics{}
	}
	return &Cache{
		getter:     getter,
		maxEntries: cfg.MaxEntries,
		ttl:        cfg.TTL,
		metrics:    metrics,
		lruList:    list.New(),
		entries:    make(map[string]*list.Element),
		calls:      make(map[string]*lookupCall),
	}, nil
}

// UnspentOutputs returns the cached payload for address or looks it up.
// A miss joins the lookup of the same address that is already in progress, if any.
// The shared lookup is not bound to ctx: it goes on until the underlying request settles,
// and its result is cached for the next callers.
func (c *Cache) UnspentOutputs(ctx context.Context, address string) (json.RawMessage, error) {
	if address == "" {
		return c.getter.UnspentOutputs(ctx, address)
	}

	c.mu.Lock()
	if payload, ok := c.get(address); ok {
		c.mu.Unlock()
		return payload, nil
	}
	call, inProgress := c.calls[address]
	if inProgress {
		c.metrics.IncCoalesced()
	} else {
		call = &lookupCall{done: make(chan struct{})}
		c.calls[address] = call
		go c.lookup(address, call)
	}
	c.mu.Unlock()

	select {
	case <-call.done:
		return call.payload, call.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) lookup(address string, call *lookupCall) {
	call.payload, call.err = c.getter.UnspentOutputs(context.Background(), address)

	c.mu.Lock()
	delete(c.calls, address)
	if call.err == nil {
		c.add(address, call.payload)
	}
	c.mu.Unlock()

	close(call.done)
}

// Len returns the number of cached addresses, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// RemoveExpired drops expired entries and returns how many were dropped.
func (c *Cache) RemoveExpired() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for address, elem := range c.entries {
		if elem.Value.(*cacheEntry).expiresAt.Before(now) {
			c.lruList.Remove(elem)
			delete(c.entries, address)
			removed++
		}
	}
	c.metrics.SetEntries(len(c.entries))
	return removed
}

// get must be called with c.mu held.
func (c *Cache) get(address string) (json.RawMessage, bool) {
	elem, hit := c.entries[address]
	if !hit {
		c.metrics.IncMisses()
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if entry.expiresAt.Before(time.Now()) {
		c.lruList.Remove(elem)
		delete(c.entries, address)
		c.metrics.SetEntries(len(c.entries))
		c.metrics.IncMisses()
		return nil, false
	}
	c.lruList.MoveToFront(elem)
	c.metrics.IncHits()
	return entry.payload, true
}

// add must be called with c.mu held.
func (c *Cache) add(address string, payload json.RawMessage) {
	entry := &cacheEntry{address: address, payload: payload, expiresAt: time.Now().Add(c.ttl)}
	if elem, ok := c.entries[address]; ok {
		elem.Value = entry
		c.lruList.MoveToFront(elem)
		return
	}
	c.entries[address] = c.lruList.PushFront(entry)
	if len(c.entries) > c.maxEntries {
		oldest := c.lruList.Back()
		c.lruList.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).address)
		c.metrics.AddEvictions(1)
	}
	c.metrics.SetEntries(len(c.entries))
}

// NewCleanupUnit returns a unit that calls RemoveExpired every interval.
func NewCleanupUnit(c *Cache, interval time.Duration, logger log.FieldLogger) *service.WorkerUnit {
	cleanup := service.WorkerFunc(func(ctx context.Context) error {
		if removed := c.RemoveExpired(); removed > 0 {
			logger.Debug("expired lookups removed from cache", log.Int("removed", removed))
		}
		return nil
	})
	worker := service.NewPeriodicWorkerWithOpts(cleanup, interval, logger, service.PeriodicWorkerOpts{InitialDelay: interval})
	return service.NewWorkerUnit(worker)
}
