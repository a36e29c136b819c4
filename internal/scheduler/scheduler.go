// Package scheduler runs the periodic housekeeping jobs of the API process.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/example/van-transfers/internal/observability"
)

const (
	ExpireReservationsSpec = "@every 5m"
	RemindFinalizeSpec     = "@every 15m"
)

// Jobs is implemented by the booking service.
type Jobs interface {
	ExpireReservations(ctx context.Context) (int, error)
	RemindUnfinalized(ctx context.Context) (int, error)
}

type Scheduler struct {
	cron    *cron.Cron
	jobs    Jobs
	log     *zap.SugaredLogger
	timeout time.Duration
}

func New(jobs Jobs, log *zap.SugaredLogger) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		jobs:    jobs,
		log:     log,
		timeout: time.Minute,
	}
	if _, err := s.cron.AddFunc(ExpireReservationsSpec, func() { s.run("expire_reservations", jobs.ExpireReservations) }); err != nil {
		return nil, err
	}
	if _, err := s.cron.AddFunc(RemindFinalizeSpec, func() { s.run("remind_finalize", jobs.RemindUnfinalized) }); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop waits for running jobs to return or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) run(name string, job func(context.Context) (int, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	n, err := job(ctx)
	if err != nil {
		observability.SchedulerRuns.WithLabelValues(name, "error").Inc()
		s.log.Errorw("scheduled job failed", "job", name, "error", err)
		return
	}
	observability.SchedulerRuns.WithLabelValues(name, "ok").Inc()
	s.log.Debugw("scheduled job done", "job", name, "affected", n)
}
