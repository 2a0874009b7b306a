// Package scheduler wires up the cron job that periodically runs one
// watch cycle.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"earnwatch/internal/domain"
	"earnwatch/internal/logger"
)

// Runner is the minimal surface the scheduler needs from the watcher.
// Satisfied by the watcher service; the cycle result is logged there,
// so the scheduler only cares about failure.
type Runner interface {
	RunCycle(ctx context.Context) (domain.CycleResult, error)
}

// Scheduler wraps robfig/cron and drives the poll loop.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	spec   string
	logger logger.Logger
}

// New creates a Scheduler that fires every interval.
func New(runner Runner, interval time.Duration, log logger.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		runner: runner,
		spec:   fmt.Sprintf("@every %s", interval),
		logger: log,
	}
}

// Start registers the job and starts the scheduler. One cycle runs
// immediately so the watcher does not sit idle until the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.runOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to register poll job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Scheduler started", logger.String("spec", s.spec))

	go s.runOnce(ctx)

	return nil
}

// Stop shuts the scheduler down and waits for a running job to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.runner.RunCycle(ctx); err != nil {
		s.logger.Error("Scheduled cycle failed", logger.Error(err))
	}
}
