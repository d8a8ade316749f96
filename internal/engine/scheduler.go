package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/quenary/tugtainer/internal/logging"
)

// Scheduler drives the periodic check/update run.
type Scheduler struct {
	cron *cron.Cron
	log  *logging.Logger
}

// NewScheduler registers a CheckAll(update=true) job on the given cron
// expression, evaluated in loc.
func NewScheduler(e *Engine, crontab string, loc *time.Location, log *logging.Logger) (*Scheduler, error) {
	log = log.With("component", "scheduler")
	c := cron.New(cron.WithLocation(loc))
	_, err := c.AddFunc(crontab, func() {
		log.Info("scheduled run starting")
		if _, err := e.CheckAll(context.Background(), true); err != nil {
			if errors.Is(err, ErrRunning) {
				log.Info("scheduled run skipped, previous run still active")
				return
			}
			log.Error("scheduled run failed", "err", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("parse crontab %q: %w", crontab, err)
	}
	return &Scheduler{cron: c, log: log}, nil
}

// Start begins the schedule in a background goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop ends the schedule and waits for an in-flight job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
