/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/atomic"
)

// ErrWorkerUnitStopTimeoutExceeded is returned by a graceful WorkerUnit.Stop that outlives GracefulStopTimeout.
var ErrWorkerUnitStopTimeoutExceeded = errors.New("worker unit stop timeout exceeded")

// WorkerUnitOpts represents options for WorkerUnit.
type WorkerUnitOpts struct {
	// GracefulStopTimeout bounds a graceful Stop. Zero means no limit.
	GracefulStopTimeout time.Duration
}

// WorkerUnit presents a Worker as a Unit. Start runs the worker, Stop cancels its context.
type WorkerUnit struct {
	worker   Worker
	opts     WorkerUnitOpts
	ctx      context.Context
	cancel   context.CancelFunc
	stopDone chan struct{}
	started  atomic.Bool
}

// NewWorkerUnit creates a WorkerUnit.
func NewWorkerUnit(worker Worker) *WorkerUnit {
	return NewWorkerUnitWithOpts(worker, WorkerUnitOpts{})
}

// NewWorkerUnitWithOpts creates a WorkerUnit with options.
func NewWorkerUnitWithOpts(worker Worker, opts WorkerUnitOpts) *WorkerUnit {
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerUnit{worker: worker, opts: opts, ctx: ctx, cancel: cancel, stopDone: make(chan struct{})}
}

// Start implements Unit. It blocks until the worker returns.
func (u *WorkerUnit) Start(fatalErr chan<- error) {
	u.started.Store(true)
	defer close(u.stopDone)
	if err := u.worker.Run(u.ctx); err != nil {
		fatalErr <- err
	}
}

// Stop implements Unit. A graceful stop waits for the worker to return if it was started.
func (u *WorkerUnit) Stop(gracefully bool) error {
	u.cancel()
	if !gracefully || !u.started.Load() {
		return nil
	}
	if u.opts.GracefulStopTimeout == 0 {
		<-u.stopDone
		return nil
	}
	select {
	case <-u.stopDone:
		return nil
	case <-time.After(u.opts.GracefulStopTimeout):
		return ErrWorkerUnitStopTimeoutExceeded
	}
}
