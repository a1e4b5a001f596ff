/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/multisig/chainfetch/log"
	"github.com/multisig/chainfetch/log/logtest"
)

func TestPeriodicWorker_Run(t *testing.T) {
	t.Run("stop by context", func(t *testing.T) {
		var runs atomic.Int32
		pw := NewPeriodicWorker(WorkerFunc(func(ctx context.Context) error {
			runs.Inc()
			return nil
		}), 20*time.Millisecond, log.NewDisabledLogger())

		ctx, cancel := context.WithTimeout(context.Background(), 110*time.Millisecond)
		defer cancel()
		require.NoError(t, pw.Run(ctx))
		require.GreaterOrEqual(t, runs.Load(), int32(4))
		require.LessOrEqual(t, runs.Load(), int32(7))
	})

	t.Run("stop by worker", func(t *testing.T) {
		var runs atomic.Int32
		pw := NewPeriodicWorker(WorkerFunc(func(ctx context.Context) error {
			if runs.Inc() == 2 {
				return ErrPeriodicWorkerStop
			}
			return nil
		}), 10*time.Millisecond, log.NewDisabledLogger())

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		require.NoError(t, pw.Run(ctx))
		require.EqualValues(t, 2, runs.Load())
		require.NoError(t, ctx.Err())
	})

	t.Run("errors are logged and do not stop the loop", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()
		var runs atomic.Int32
		pw := NewPeriodicWorkerWithOpts(WorkerFunc(func(ctx context.Context) error {
			if runs.Inc() == 1 {
				return errors.New("remote is down")
			}
			if runs.Load() == 3 {
				return ErrPeriodicWorkerStop
			}
			return nil
		}), 10*time.Millisecond, logRecorder, PeriodicWorkerOpts{InitialDelay: 10 * time.Millisecond})

		require.NoError(t, pw.Run(context.Background()))
		require.EqualValues(t, 3, runs.Load())
		require.Len(t, logRecorder.FindAllEntries("periodic worker run failed"), 1)
	})
}

func TestWorkerUnit(t *testing.T) {
	t.Run("graceful stop", func(t *testing.T) {
		wu := NewWorkerUnit(WorkerFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		}))
		fatalErr := make(chan error, 1)
		started := make(chan struct{})
		go func() {
			close(started)
			wu.Start(fatalErr)
		}()
		<-started
		require.Eventually(t, wu.started.Load, time.Second, 5*time.Millisecond)
		require.NoError(t, wu.Stop(true))
		require.Empty(t, fatalErr)
	})

	t.Run("stop timeout", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		wu := NewWorkerUnitWithOpts(WorkerFunc(func(ctx context.Context) error {
			<-release
			return nil
		}), WorkerUnitOpts{GracefulStopTimeout: 20 * time.Millisecond})
		go wu.Start(make(chan error, 1))
		require.Eventually(t, wu.started.Load, time.Second, 5*time.Millisecond)
		require.ErrorIs(t, wu.Stop(true), ErrWorkerUnitStopTimeoutExceeded)
	})

	t.Run("stop before start", func(t *testing.T) {
		wu := NewWorkerUnit(WorkerFunc(func(ctx context.Context) error { return nil }))
		require.NoError(t, wu.Stop(true))
	})

	t.Run("worker error is fatal", func(t *testing.T) {
		wu := NewWorkerUnit(WorkerFunc(func(ctx context.Context) error { return errors.New("boom") }))
		fatalErr := make(chan error, 1)
		wu.Start(fatalErr)
		require.EqualError(t, <-fatalErr, "boom")
	})
}
