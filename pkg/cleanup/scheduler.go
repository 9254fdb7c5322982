package cleanup

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hearthshare/larder/pkg/observability"
)

// Scheduler runs the orphan sweep on a cron schedule.
type Scheduler struct {
	cleaner  *Cleaner
	cron     *cron.Cron
	schedule string
	timeout  time.Duration
	logger   *observability.Logger
}

// NewScheduler creates a scheduler that sweeps on the given cron schedule
// (standard five-field syntax). Each sweep is bounded by timeout.
func NewScheduler(cleaner *Cleaner, schedule string, timeout time.Duration, logger *observability.Logger) *Scheduler {
	return &Scheduler{
		cleaner:  cleaner,
		cron:     cron.New(),
		schedule: schedule,
		timeout:  timeout,
		logger:   logger,
	}
}

// Start registers the sweep job and starts the cron runner.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.schedule, s.runSweep)
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.WithField("schedule", s.schedule).Info("orphan sweep scheduled")
	return nil
}

// Stop stops the cron runner and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	deleted, err := s.cleaner.SweepOrphanedIngredients(ctx)
	if err != nil {
		s.logger.WithError(err).Error("orphan sweep failed")
		return
	}

	s.logger.WithFields(map[string]interface{}{
		"orphans_deleted": deleted,
		"duration":        time.Since(start).String(),
	}).Info("orphan sweep complete")
}
