// Package scheduler runs periodic background jobs on cron specs.
package scheduler

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs jobs on cron specs (seconds field enabled). A job does not
// start again while its previous run is still in progress.
type Scheduler struct {
	cron    *cron.Cron
	log     *zap.Logger
	baseCtx context.Context
}

// New creates a Scheduler whose jobs receive baseCtx.
func New(baseCtx context.Context, log *zap.Logger) *Scheduler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		log:     log,
		baseCtx: baseCtx,
	}
}

// Add registers job under name.
func (s *Scheduler) Add(name, spec string, job func(context.Context)) (cron.EntryID, error) {
	var running sync.Mutex
	return s.cron.AddFunc(spec, func() {
		if !running.TryLock() {
			s.log.Warn("job still running, skipping", zap.String("job", name))
			return
		}
		defer running.Unlock()
		if s.baseCtx.Err() != nil {
			return
		}
		job(s.baseCtx)
	})
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.log.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
	s.cron.Start()
}

// Stop prevents new runs and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped")
}
