/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import (
	"context"
	"time"

	"github.com/multisig/chainfetch/log"
	"github.com/multisig/chainfetch/service"
)

// NewStatsReporter returns a unit that logs the scheduler's Stats every interval.
// An idle scheduler (nothing queued or in flight) is not logged.
func NewStatsReporter[T, P any](s *Scheduler[T, P], interval time.Duration, logger log.FieldLogger) *service.WorkerUnit {
	report := service.WorkerFunc(func(ctx context.Context) error {
		stats := s.Stats()
		if stats.Queued == 0 && stats.InFlight == 0 {
			return nil
		}
		logger.Info("scheduler stats",
			log.Int("queued", stats.Queued),
			log.Int("in_flight", stats.InFlight),
			log.Duration("backoff", stats.Backoff),
			log.Bool("trigger_pending", stats.TriggerPending),
		)
		return nil
	})
	worker := service.NewPeriodicWorkerWithOpts(report, interval, logger, service.PeriodicWorkerOpts{InitialDelay: interval})
	return service.NewWorkerUnit(worker)
}
