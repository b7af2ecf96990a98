package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/skulbus/skulbus-backend/internal/models"
)

// PendingExpirer cancels pending bookings created before a cutoff
type PendingExpirer interface {
	ExpirePendingBookings(ctx context.Context, olderThan time.Time) (int, error)
}

// ExpirationService periodically cancels bookings left unpaid past the timeout
type ExpirationService struct {
	expirer  PendingExpirer
	audit    *AuditService
	logger   *logrus.Logger
	timeout  time.Duration
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewExpirationService creates a new expiration service
func NewExpirationService(expirer PendingExpirer, audit *AuditService, logger *logrus.Logger, timeout, interval time.Duration) *ExpirationService {
	return &ExpirationService{
		expirer:  expirer,
		audit:    audit,
		logger:   logger,
		timeout:  timeout,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background sweep
func (s *ExpirationService) Start() {
	s.logger.WithFields(logrus.Fields{
		"interval": s.interval.String(),
		"timeout":  s.timeout.String(),
	}).Info("Starting booking expiration service")
	s.done = make(chan struct{})
	go s.run()
}

// Stop halts the sweep and waits for an in-flight run to finish
func (s *ExpirationService) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping booking expiration service")
		close(s.stopCh)
	})
	if s.done != nil {
		<-s.done
	}
}

func (s *ExpirationService) run() {
	defer close(s.done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-s.stopCh:
			s.logger.Info("Booking expiration service stopped")
			return
		}
	}
}

// RunOnce expires bookings pending for longer than the timeout and returns the count
func (s *ExpirationService) RunOnce(ctx context.Context) int {
	cutoff := time.Now().Add(-s.timeout)
	expired, err := s.expirer.ExpirePendingBookings(ctx, cutoff)
	if err != nil {
		s.logger.WithError(err).Error("Booking expiration sweep failed")
	}
	if expired > 0 && s.audit != nil {
		s.audit.Record(ctx, AuditEntry{
			Action:     models.AuditActionBookingsExpired,
			EntityType: "booking",
			Details: models.AuditDetails{
				"count":  expired,
				"cutoff": cutoff.UTC().Format(time.RFC3339),
			},
		})
	}
	return expired
}
