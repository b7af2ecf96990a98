package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// OrphanReleaser returns seats held by reservations that never became bookings
type OrphanReleaser interface {
	ReleaseOrphanReservations(ctx context.Context, olderThan time.Time) (int, error)
}

// CronService manages scheduled background jobs
type CronService struct {
	cron          *cron.Cron
	reservations  OrphanReleaser
	orphanTimeout time.Duration
	logger        *logrus.Logger
}

// NewCronService creates a new CronService with seconds precision
func NewCronService(reservations OrphanReleaser, orphanTimeout time.Duration, logger *logrus.Logger) *CronService {
	return &CronService{
		cron:          cron.New(cron.WithSeconds()),
		reservations:  reservations,
		orphanTimeout: orphanTimeout,
		logger:        logger,
	}
}

// Start schedules the orphan reservation sweep on orphanSpec and starts the scheduler.
// Cron format: second minute hour day month weekday.
func (s *CronService) Start(orphanSpec string) error {
	if _, err := s.cron.AddFunc(orphanSpec, s.releaseOrphansJob); err != nil {
		return fmt.Errorf("failed to schedule orphan reservation sweep: %w", err)
	}
	s.logger.WithField("schedule", orphanSpec).Info("Scheduled: release orphan seat reservations")

	s.cron.Start()
	s.logger.Info("Cron service started")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	<-s.cron.Stop().Done()
	s.logger.Info("Cron service stopped")
}

func (s *CronService) releaseOrphansJob() {
	if _, err := s.RunReleaseOrphansNow(context.Background()); err != nil {
		s.logger.WithError(err).Error("[CRON] Orphan reservation sweep failed")
	}
}

// RunReleaseOrphansNow runs the orphan reservation sweep immediately
func (s *CronService) RunReleaseOrphansNow(ctx context.Context) (int, error) {
	start := time.Now()
	released, err := s.reservations.ReleaseOrphanReservations(ctx, start.Add(-s.orphanTimeout))
	if err != nil {
		return 0, err
	}

	entry := s.logger.WithFields(logrus.Fields{
		"released":    released,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if released > 0 {
		entry.Warn("[CRON] Released orphan seat reservations")
	} else {
		entry.Debug("[CRON] No orphan seat reservations")
	}
	return released, nil
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}
