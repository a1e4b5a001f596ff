/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/multisig/chainfetch/log"
	"github.com/multisig/chainfetch/retry"
)

// ErrRetriesExhausted settles a request whose every allowed attempt failed.
var ErrRetriesExhausted = errors.New("retries exhausted")

// ErrStopped settles requests that are queued when the scheduler stops or submitted after it.
var ErrStopped = errors.New("scheduler stopped")

// ErrPending is returned by Future.Result for a request that has not settled yet.
var ErrPending = errors.New("request is not settled yet")

// ErrStopTimeoutExceeded is returned by a graceful Stop when in-flight calls outlive Config.StopTimeout.
var ErrStopTimeoutExceeded = errors.New("stop timeout exceeded")

// Opts represents options for Scheduler.
type Opts struct {
	// Logger receives debug entries for every failed attempt and a warning for every exhausted request.
	Logger log.FieldLogger

	// MetricsCollector receives state changes. Metrics are not collected if nil.
	MetricsCollector MetricsCollector

	// BackoffPolicy overrides the exponential sequence built from Config.Backoff.
	// Config.Backoff.MaxInterval remains the ceiling.
	BackoffPolicy retry.Policy
}

// Stats is a snapshot of the scheduler's state.
type Stats struct {
	Queued         int
	InFlight       int
	Backoff        time.Duration
	TriggerPending bool
	Stopped        bool
}

// Scheduler dispatches calls of a Transport in FIFO order with bounded parallelism.
// It is safe for concurrent use.
type Scheduler[T, P any] struct {
	transport     Transport[T, P]
	logger        log.FieldLogger
	metrics       MetricsCollector
	pipelineWidth int
	retryLimit    int
	stopTimeout   time.Duration

	callsCtx    context.Context
	cancelCalls context.CancelFunc
	calls       sync.WaitGroup

	mu       sync.Mutex
	queue    []*request[T, P]
	inFlight int
	backoff  *sharedBackoff
	trigger  *time.Timer
	stopped  bool

	onTrigger func() // called under mu every time the wake-up timer fires
}

// New creates a new Scheduler with the given configuration and transport.
func New[T, P any](cfg *Config, transport Transport[T, P]) (*Scheduler[T, P], error) {
	return NewWithOpts(cfg, transport, Opts{})
}

// NewWithOpts creates a new Scheduler with the given configuration, transport and options.
func NewWithOpts[T, P any](cfg *Config, transport Transport[T, P], opts Opts) (*Scheduler[T, P], error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate scheduler config: %w", err)
	}
	if transport == nil {
		return nil, errors.New("transport must be specified")
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.MetricsCollector == nil {
		opts.MetricsCollector = disabledMetrics{}
	}
	policy := opts.BackoffPolicy
	if policy == nil {
		policy = retry.NewExponentialBackoffPolicy(
			cfg.Backoff.InitialInterval, cfg.Backoff.Multiplier, cfg.Backoff.MaxInterval)
	}

	callsCtx, cancelCalls := context.WithCancel(context.Background())
	s := &Scheduler[T, P]{
		transport:     transport,
		logger:        opts.Logger,
		metrics:       opts.MetricsCollector,
		pipelineWidth: cfg.PipelineWidth,
		retryLimit:    cfg.RetryLimit,
		stopTimeout:   cfg.StopTimeout,
		callsCtx:      callsCtx,
		cancelCalls:   cancelCalls,
		backoff:       newSharedBackoff(policy, cfg.Backoff.MaxInterval),
	}
	s.reportState()
	return s, nil
}

// Submit enqueues a request for target and returns its Future.
// The request is dispatched right away if the pipeline has room, otherwise it waits in the queue.
func (s *Scheduler[T, P]) Submit(target T) *Future[P] {
	req := newRequest[T, P](target)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		s.settle(req, zeroOf[P](), ErrStopped, OutcomeStopped)
		return req.future
	}
	s.queue = append(s.queue, req)
	s.tryDispatch()
	s.reportState()
	return req.future
}

// Stats returns a snapshot of the scheduler's state.
func (s *Scheduler[T, P]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Queued:         len(s.queue),
		InFlight:       s.inFlight,
		Backoff:        s.backoff.current(),
		TriggerPending: s.trigger != nil,
		Stopped:        s.stopped,
	}
}

// Start implements service.Unit. Dispatching is driven by Submit and completions,
// so there is no loop to run and Start returns immediately.
func (s *Scheduler[T, P]) Start(fatalErr chan<- error) {
}

// Stop implements service.Unit. It cancels the wake-up timer and rejects queued requests with ErrStopped.
// A graceful stop waits for in-flight calls (at most Config.StopTimeout), otherwise their context is canceled.
// In-flight calls that fail after Stop are rejected with ErrStopped instead of being retried.
func (s *Scheduler[T, P]) Stop(gracefully bool) error {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		s.cancelTrigger()
		queued := s.queue
		s.queue = nil
		for _, req := range queued {
			s.settle(req, zeroOf[P](), ErrStopped, OutcomeStopped)
		}
		s.reportState()
		if len(queued) > 0 {
			s.logger.Info("scheduler stopped, queued requests rejected", log.Int("rejected", len(queued)))
		}
	}
	s.mu.Unlock()

	if !gracefully {
		s.cancelCalls()
		return nil
	}
	defer s.cancelCalls()

	done := make(chan struct{})
	go func() {
		s.calls.Wait()
		close(done)
	}()
	if s.stopTimeout == 0 {
		<-done
		return nil
	}
	select {
	case <-done:
		return nil
	case <-time.After(s.stopTimeout):
		return ErrStopTimeoutExceeded
	}
}

// MustRegisterMetrics implements service.MetricsRegisterer.
func (s *Scheduler[T, P]) MustRegisterMetrics() {
	if r, ok := s.metrics.(interface{ MustRegister() }); ok {
		r.MustRegister()
	}
}

// UnregisterMetrics implements service.MetricsRegisterer.
func (s *Scheduler[T, P]) UnregisterMetrics() {
	if r, ok := s.metrics.(interface{ Unregister() }); ok {
		r.Unregister()
	}
}

// tryDispatch moves requests from the head of the queue into flight while the pipeline has room.
// If requests remain because the pipeline is full, the wake-up timer is (re)armed. Must be called with s.mu held.
func (s *Scheduler[T, P]) tryDispatch() {
	for len(s.queue) > 0 {
		if s.inFlight >= s.pipelineWidth {
			s.scheduleRetryTrigger()
			return
		}
		req := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.execute(req)
	}
}

// scheduleRetryTrigger replaces any pending wake-up timer with one that fires after the current backoff.
// Must be called with s.mu held.
func (s *Scheduler[T, P]) scheduleRetryTrigger() {
	s.cancelTrigger()
	var t *time.Timer
	t = time.AfterFunc(s.backoff.current(), func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.trigger != t {
			return // superseded or canceled after it had already fired
		}
		s.trigger = nil
		if s.onTrigger != nil {
			s.onTrigger()
		}
		if s.stopped {
			return
		}
		s.tryDispatch()
		s.reportState()
	})
	s.trigger = t
}

func (s *Scheduler[T, P]) cancelTrigger() {
	if s.trigger != nil {
		s.trigger.Stop()
		s.trigger = nil
	}
}

// execute puts req in flight. Must be called with s.mu held.
func (s *Scheduler[T, P]) execute(req *request[T, P]) {
	s.inFlight++
	attempt := int(req.attempts.Inc())
	s.calls.Add(1)
	go s.call(req, attempt)
}

func (s *Scheduler[T, P]) call(req *request[T, P], attempt int) {
	defer s.calls.Done()
	ctx := newContextWithAttempt(newContextWithRequestID(s.callsCtx, req.id), attempt)
	payload, err := s.callTransport(ctx, req, attempt)
	s.complete(req, attempt, payload, err)
}

// callTransport turns a panic in the transport into a failed attempt.
func (s *Scheduler[T, P]) callTransport(ctx context.Context, req *request[T, P], attempt int) (payload P, err error) {
	defer func() {
		if p := recover(); p != nil {
			const logStackSize = 8192
			stack := make([]byte, logStackSize)
			stack = stack[:runtime.Stack(stack, false)]
			s.logger.Error("transport call panicked",
				log.String("request_id", req.id), log.Int("attempt", attempt),
				log.String("panic", fmt.Sprintf("%+v", p)), log.String("stack", string(stack)))
			payload, err = zeroOf[P](), fmt.Errorf("transport panic: %v", p)
		}
	}()
	return s.transport.Call(ctx, req.target)
}

func (s *Scheduler[T, P]) complete(req *request[T, P], attempt int, payload P, callErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inFlight--
	if callErr == nil {
		s.metrics.IncAttempts(AttemptResultSuccess)
		s.settle(req, payload, nil, OutcomeResolved)
	} else {
		s.metrics.IncAttempts(AttemptResultFailure)
		logger := s.logger.With(log.String("request_id", req.id), log.Int("attempt", attempt))
		switch {
		case s.stopped:
			logger.Debug("attempt failed after stop, request rejected", log.Error(callErr))
			s.settle(req, zeroOf[P](), ErrStopped, OutcomeStopped)
		case attempt < s.retryLimit:
			interval := s.backoff.grow()
			s.queue = append(s.queue, req)
			logger.Debug("attempt failed, request re-queued",
				log.Error(callErr), log.Duration("backoff", interval), log.Int("queued", len(s.queue)))
		default:
			logger.Warn("retries exhausted, request rejected", log.Error(callErr))
			s.settle(req, zeroOf[P](), ErrRetriesExhausted, OutcomeExhausted)
		}
	}

	if !s.stopped {
		s.scheduleRetryTrigger()
	}
	s.reportState()
}

func (s *Scheduler[T, P]) settle(req *request[T, P], payload P, err error, outcome Outcome) {
	if req.future.settle(payload, err) {
		s.metrics.IncSettled(outcome)
	}
}

// reportState pushes gauges to the metrics collector. Must be called with s.mu held.
func (s *Scheduler[T, P]) reportState() {
	s.metrics.SetQueueLength(len(s.queue))
	s.metrics.SetInFlight(s.inFlight)
	s.metrics.SetBackoff(s.backoff.current())
}

func zeroOf[P any]() P {
	var zero P
	return zero
}
