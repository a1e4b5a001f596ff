/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import (
	"context"
	"sync"

	"github.com/rs/xid"
	"go.uber.org/atomic"
)

// request is a unit of work owned by the scheduler until it settles.
// It is either queued or in flight, never both.
type request[T, P any] struct {
	id       string
	target   T
	attempts atomic.Int32
	future   *Future[P]
}

func newRequest[T, P any](target T) *request[T, P] {
	req := &request[T, P]{id: xid.New().String(), target: target}
	req.future = &Future[P]{id: req.id, attempts: &req.attempts, done: make(chan struct{})}
	return req
}

// Future is the caller's handle of a submitted request.
// It settles exactly once: with a payload, or with an error.
type Future[P any] struct {
	id       string
	attempts *atomic.Int32
	done     chan struct{}
	once     sync.Once
	payload  P
	err      error
}

// settle stores the outcome. Only the first call has an effect, it reports whether it was this one.
func (f *Future[P]) settle(payload P, err error) (settled bool) {
	f.once.Do(func() {
		f.payload, f.err = payload, err
		close(f.done)
		settled = true
	})
	return settled
}

// ID returns the request ID. The same ID is available to the Transport via GetRequestIDFromContext.
func (f *Future[P]) ID() string {
	return f.id
}

// Attempts returns how many times the Transport has been called for the request so far.
func (f *Future[P]) Attempts() int {
	return int(f.attempts.Load())
}

// Done returns a channel that is closed when the request settles.
func (f *Future[P]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the request settles or ctx is done.
// Giving up waiting does not withdraw the request: it stays scheduled until it settles.
func (f *Future[P]) Wait(ctx context.Context) (P, error) {
	select {
	case <-f.done:
		return f.payload, f.err
	case <-ctx.Done():
		var zero P
		return zero, ctx.Err()
	}
}

// Result returns the outcome without blocking, or ErrPending if the request has not settled yet.
func (f *Future[P]) Result() (P, error) {
	select {
	case <-f.done:
		return f.payload, f.err
	default:
		var zero P
		return zero, ErrPending
	}
}
