package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/skulbus/skulbus-backend/internal/config"
	"github.com/skulbus/skulbus-backend/internal/database"
	"github.com/skulbus/skulbus-backend/internal/services"
	"github.com/skulbus/skulbus-backend/pkg/events"
)

// Runs one pending-booking expiry sweep and one orphan reservation sweep, then exits.
// Meant for a platform scheduler when the server's own background jobs are disabled.
func main() {
	var olderThan time.Duration
	var skipOrphans bool
	flag.DurationVar(&olderThan, "older-than", 0, "expire pending bookings older than this (defaults to BOOKING_PENDING_TIMEOUT)")
	flag.BoolVar(&skipOrphans, "skip-orphans", false, "do not release orphaned seat reservations")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	if olderThan <= 0 {
		olderThan = cfg.Booking.PendingTimeout
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	var publisher events.Publisher = events.NewLogPublisher(logger)
	if cfg.Rabbit.URL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.Rabbit.URL, cfg.Rabbit.Exchange)
		if err != nil {
			logger.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		publisher = amqpPublisher
	}
	defer publisher.Close()

	retry := services.RetryPolicy{Attempts: cfg.Booking.RetryAttempts, Backoff: cfg.Booking.RetryBackoff}
	trips := database.NewTripRepository(db, cfg.Database.LockTimeout)
	bookings := database.NewBookingRepository(db, trips)
	students := database.NewStudentRepository(db)
	audit := services.NewAuditService(database.NewAuditLogRepository(db), logger)

	bookingService := services.NewBookingService(trips, bookings, students, publisher, retry, logger)
	expiry := services.NewExpirationService(bookingService, audit, logger, olderThan, cfg.Booking.ExpirySweepInterval)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	expired := expiry.RunOnce(ctx)

	released := 0
	if !skipOrphans {
		released, err = services.NewCronService(trips, cfg.Booking.OrphanTimeout, logger).RunReleaseOrphansNow(ctx)
		if err != nil {
			logger.Fatalf("Failed to release orphan reservations: %v", err)
		}
	}

	logger.WithFields(logrus.Fields{
		"expired":    expired,
		"released":   released,
		"older_than": olderThan.String(),
	}).Info("Maintenance sweep finished")
}
