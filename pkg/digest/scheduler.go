package digest

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler runs a digest on a cron schedule (with seconds field)
type Scheduler struct {
	cron     *cron.Cron
	schedule string
	digest   *Digest
	logger   *logrus.Logger
	running  bool
	entryID  cron.EntryID
	mu       sync.RWMutex
}

// NewScheduler creates a scheduler for d
func NewScheduler(schedule string, d *Digest, logger *logrus.Logger) *Scheduler {
	cronLogger := cron.PrintfLogger(logger)
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		schedule: schedule,
		digest:   d,
		logger:   logger,
	}
}

// Start registers the digest job and starts the cron loop
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	entryID, err := s.cron.AddFunc(s.schedule, func() {
		s.logger.Info("Starting scheduled digest")
		if _, err := s.digest.RunOnce(context.Background()); err != nil {
			s.logger.WithError(err).Error("Scheduled digest failed")
		}
	})
	if err != nil {
		return err
	}
	s.entryID = entryID

	s.cron.Start()
	s.running = true
	s.logger.WithField("schedule", s.schedule).Info("Digest scheduler started")

	return nil
}

// Stop stops scheduling and waits for a running digest until ctx is done
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("Digest scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("Digest scheduler stopped while a digest was still running")
	}
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// NextRun returns the next scheduled digest, or the zero time when stopped
func (s *Scheduler) NextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}
