package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/skulbus/skulbus-backend/internal/models"
	"github.com/skulbus/skulbus-backend/pkg/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const expireBatchSize = 100

// TripInventory owns trip seat counters and reservations
type TripInventory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Trip, error)
	ReserveSeat(ctx context.Context, tripID uuid.UUID) (*models.ReservationToken, error)
	ReleaseSeat(ctx context.Context, token models.ReservationToken) error
}

// BookingLedger owns booking rows and their state machine
type BookingLedger interface {
	CreateBooking(ctx context.Context, token models.ReservationToken, studentID, parentID uuid.UUID) (*models.Booking, error)
	Transition(ctx context.Context, bookingID uuid.UUID, event models.BookingEvent, reason string) (*models.Booking, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	ListExpiredPending(ctx context.Context, olderThan time.Time, limit int) ([]uuid.UUID, error)
	ListByParent(ctx context.Context, parentID uuid.UUID) ([]models.BookingDetails, error)
}

// StudentDirectory resolves students for ownership checks
type StudentDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Student, error)
}

// BookingService coordinates seat reservation and booking creation
type BookingService struct {
	trips     TripInventory
	bookings  BookingLedger
	students  StudentDirectory
	publisher events.Publisher
	retry     RetryPolicy
	logger    *logrus.Logger
	now       func() time.Time
}

// NewBookingService creates a new BookingService
func NewBookingService(
	trips TripInventory,
	bookings BookingLedger,
	students StudentDirectory,
	publisher events.Publisher,
	retry RetryPolicy,
	logger *logrus.Logger,
) *BookingService {
	return &BookingService{
		trips:     trips,
		bookings:  bookings,
		students:  students,
		publisher: publisher,
		retry:     retry,
		logger:    logger,
		now:       time.Now,
	}
}

// BookTrip reserves a seat for a student and creates a pending booking.
// If the booking cannot be created the reserved seat is released before returning.
func (s *BookingService) BookTrip(ctx context.Context, actor models.Actor, studentID, tripID uuid.UUID) (booking *models.Booking, err error) {
	ctx, span := tracer.Start(ctx, "BookingService.BookTrip", trace.WithAttributes(
		attribute.String("trip.id", tripID.String()),
		attribute.String("student.id", studentID.String()),
	))
	defer func() { endSpan(span, err) }()

	if !actor.IsParent() {
		return nil, models.ErrForbidden
	}

	student, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if student.ParentID != actor.UserID {
		return nil, models.ErrForbidden
	}

	trip, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if !trip.IsBookable(s.now()) {
		return nil, models.ErrTripNotBookable
	}

	token, err := withRetry(ctx, s.retry, s.logger, "reserve_seat", func() (*models.ReservationToken, error) {
		return s.trips.ReserveSeat(ctx, tripID)
	})
	switch {
	case errors.Is(err, models.ErrSeatsExhausted):
		return nil, models.ErrNoSeatsAvailable
	case errors.Is(err, models.ErrTripClosed):
		return nil, models.ErrTripNotBookable
	case err != nil:
		return nil, err
	}

	booking, err = withRetry(ctx, s.retry, s.logger, "create_booking", func() (*models.Booking, error) {
		return s.bookings.CreateBooking(ctx, *token, studentID, actor.UserID)
	})
	if err != nil {
		s.compensate(ctx, *token, err)
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"trip_id":    tripID,
		"student_id": studentID,
	}).Info("Booking created")
	s.publish(ctx, events.BookingCreated, booking)

	return booking, nil
}

// compensate releases a reservation whose booking was never created.
// It runs even if the caller's context is already cancelled.
func (s *BookingService) compensate(ctx context.Context, token models.ReservationToken, cause error) {
	releaseCtx := context.WithoutCancel(ctx)
	_, err := withRetry(releaseCtx, s.retry, s.logger, "release_seat", func() (struct{}, error) {
		return struct{}{}, s.trips.ReleaseSeat(releaseCtx, token)
	})

	entry := s.logger.WithFields(logrus.Fields{
		"reservation_id": token.ID,
		"trip_id":        token.TripID,
		"cause":          cause.Error(),
	})
	if err != nil {
		entry.WithError(err).Error("Failed to release seat after booking failure; left for orphan sweep")
		return
	}
	entry.Info("Released seat after booking failure")
}

// CancelBooking cancels a booking on behalf of its parent or an admin
func (s *BookingService) CancelBooking(ctx context.Context, actor models.Actor, bookingID uuid.UUID, reason string) (booking *models.Booking, err error) {
	ctx, span := tracer.Start(ctx, "BookingService.CancelBooking", trace.WithAttributes(
		attribute.String("booking.id", bookingID.String()),
	))
	defer func() { endSpan(span, err) }()

	existing, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !canAccessBooking(actor, existing) {
		return nil, models.ErrForbidden
	}

	booking, err = withRetry(ctx, s.retry, s.logger, "cancel_booking", func() (*models.Booking, error) {
		return s.bookings.Transition(ctx, bookingID, models.BookingEventCancel, reason)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"actor_id":   actor.UserID,
		"role":       actor.Role,
	}).Info("Booking cancelled")
	s.publish(ctx, events.BookingCancelled, booking)

	return booking, nil
}

// ExpirePendingBookings cancels every pending booking created before olderThan
// and returns how many were expired. Each booking moves in its own transaction.
func (s *BookingService) ExpirePendingBookings(ctx context.Context, olderThan time.Time) (expired int, err error) {
	ctx, span := tracer.Start(ctx, "BookingService.ExpirePendingBookings")
	defer func() {
		span.SetAttributes(attribute.Int("bookings.expired", expired))
		endSpan(span, err)
	}()

	for {
		ids, listErr := s.bookings.ListExpiredPending(ctx, olderThan, expireBatchSize)
		if listErr != nil {
			return expired, listErr
		}

		progressed := 0
		for _, id := range ids {
			if ctx.Err() != nil {
				return expired, ctx.Err()
			}

			booking, txErr := withRetry(ctx, s.retry, s.logger, "expire_booking", func() (*models.Booking, error) {
				return s.bookings.Transition(ctx, id, models.BookingEventExpire, "payment window expired")
			})
			if txErr != nil {
				// paid or cancelled since it was listed
				if errors.Is(txErr, models.ErrInvalidTransition) {
					progressed++
					continue
				}
				s.logger.WithError(txErr).WithField("booking_id", id).Error("Failed to expire booking")
				continue
			}

			progressed++
			expired++
			s.publish(ctx, events.BookingCancelled, booking)
		}

		if len(ids) < expireBatchSize || progressed == 0 {
			break
		}
	}

	if expired > 0 {
		s.logger.WithField("count", expired).Info("Expired pending bookings")
	}
	return expired, nil
}

// GetBooking returns a booking visible to actor
func (s *BookingService) GetBooking(ctx context.Context, actor models.Actor, bookingID uuid.UUID) (*models.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !canAccessBooking(actor, booking) {
		return nil, models.ErrForbidden
	}
	return booking, nil
}

// ListMyBookings lists the parent's bookings, newest first
func (s *BookingService) ListMyBookings(ctx context.Context, actor models.Actor) ([]models.BookingDetails, error) {
	if !actor.IsParent() {
		return nil, models.ErrForbidden
	}
	return s.bookings.ListByParent(ctx, actor.UserID)
}

func (s *BookingService) publish(ctx context.Context, routingKey string, data interface{}) {
	publishEvent(ctx, s.publisher, s.logger, routingKey, data)
}

func canAccessBooking(actor models.Actor, booking *models.Booking) bool {
	return actor.IsAdmin() || (actor.IsParent() && booking.ParentID == actor.UserID)
}

// publishEvent delivers an event after the state change has committed.
// Delivery failures are logged and never undo the change.
func publishEvent(ctx context.Context, publisher events.Publisher, logger *logrus.Logger, routingKey string, data interface{}) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(context.WithoutCancel(ctx), routingKey, data); err != nil {
		logger.WithError(err).WithField("event", routingKey).Error("Failed to publish event")
	}
}
