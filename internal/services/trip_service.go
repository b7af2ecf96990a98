package services

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/skulbus/skulbus-backend/internal/models"
	"github.com/skulbus/skulbus-backend/pkg/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TripStore persists trips
type TripStore interface {
	Create(ctx context.Context, trip *models.Trip) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Trip, error)
	ListBookable(ctx context.Context, now time.Time, region string) ([]models.Trip, error)
	ListBySacco(ctx context.Context, saccoID uuid.UUID) ([]models.Trip, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.TripStatus) (*models.Trip, error)
}

// TripCloser finishes or cancels a trip together with its live bookings
type TripCloser interface {
	CloseTrip(ctx context.Context, tripID, saccoID uuid.UUID, to models.TripStatus) (*models.Trip, []models.Booking, error)
	ListByTrip(ctx context.Context, tripID uuid.UUID) ([]models.BookingDetails, error)
}

// FleetLookup resolves vehicles and drivers for trip scheduling
type FleetLookup interface {
	GetVehicle(ctx context.Context, id uuid.UUID) (*models.Vehicle, error)
	GetDriver(ctx context.Context, id uuid.UUID) (*models.Driver, error)
}

// TripService manages the sacco side of the trip lifecycle
type TripService struct {
	trips     TripStore
	closer    TripCloser
	fleet     FleetLookup
	publisher events.Publisher
	validate  *validator.Validate
	retry     RetryPolicy
	logger    *logrus.Logger
	now       func() time.Time
}

// NewTripService creates a new TripService
func NewTripService(
	trips TripStore,
	closer TripCloser,
	fleet FleetLookup,
	publisher events.Publisher,
	retry RetryPolicy,
	logger *logrus.Logger,
) *TripService {
	return &TripService{
		trips:     trips,
		closer:    closer,
		fleet:     fleet,
		publisher: publisher,
		validate:  newValidator(),
		retry:     retry,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateTrip schedules a trip on an approved vehicle with a verified driver
func (s *TripService) CreateTrip(ctx context.Context, actor models.Actor, req models.CreateTripRequest) (trip *models.Trip, err error) {
	ctx, span := tracer.Start(ctx, "TripService.CreateTrip", trace.WithAttributes(
		attribute.String("sacco.id", actor.UserID.String()),
	))
	defer func() { endSpan(span, err) }()

	if !actor.IsSacco() {
		return nil, models.ErrForbidden
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	if !req.DepartureAt.After(s.now()) {
		return nil, models.NewValidationError("departure_at must be in the future")
	}

	vehicle, err := s.fleet.GetVehicle(ctx, req.VehicleID)
	if err != nil {
		return nil, err
	}
	if vehicle.SaccoID != actor.UserID {
		return nil, models.ErrForbidden
	}
	if vehicle.Status != models.VehicleStatusApproved {
		return nil, models.ErrFleetNotApproved
	}
	if req.TotalSeats > vehicle.Capacity {
		return nil, models.ErrCapacityExceeded
	}

	driver, err := s.fleet.GetDriver(ctx, req.DriverID)
	if err != nil {
		return nil, err
	}
	if driver.SaccoID != actor.UserID {
		return nil, models.ErrForbidden
	}
	if !driver.Verified {
		return nil, models.ErrFleetNotApproved
	}

	trip = &models.Trip{
		ID:             uuid.New(),
		SaccoID:        actor.UserID,
		VehicleID:      vehicle.ID,
		DriverID:       driver.ID,
		RouteRegion:    strings.TrimSpace(req.RouteRegion),
		DepartureAt:    req.DepartureAt.UTC(),
		TotalSeats:     req.TotalSeats,
		AvailableSeats: req.TotalSeats,
		CostPerSeat:    req.CostPerSeat,
		Status:         models.TripStatusNotStarted,
	}
	if err := s.trips.Create(ctx, trip); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"trip_id":  trip.ID,
		"sacco_id": trip.SaccoID,
		"seats":    trip.TotalSeats,
	}).Info("Trip created")
	return trip, nil
}

// StartTrip moves a trip from not_started to in_progress
func (s *TripService) StartTrip(ctx context.Context, actor models.Actor, tripID uuid.UUID) (*models.Trip, error) {
	if _, err := s.ownedTrip(ctx, actor, tripID); err != nil {
		return nil, err
	}
	return withRetry(ctx, s.retry, s.logger, "start_trip", func() (*models.Trip, error) {
		return s.trips.UpdateStatus(ctx, tripID, models.TripStatusNotStarted, models.TripStatusInProgress)
	})
}

// CompleteTrip finishes an in-progress trip. Confirmed bookings complete and
// unpaid ones are cancelled.
func (s *TripService) CompleteTrip(ctx context.Context, actor models.Actor, tripID uuid.UUID) (*models.Trip, error) {
	return s.close(ctx, actor, tripID, models.TripStatusCompleted, events.TripCompleted)
}

// CancelTrip cancels a trip that has not started and every live booking on it
func (s *TripService) CancelTrip(ctx context.Context, actor models.Actor, tripID uuid.UUID) (*models.Trip, error) {
	return s.close(ctx, actor, tripID, models.TripStatusCancelled, events.TripCancelled)
}

func (s *TripService) close(ctx context.Context, actor models.Actor, tripID uuid.UUID, to models.TripStatus, routingKey string) (trip *models.Trip, err error) {
	ctx, span := tracer.Start(ctx, "TripService.CloseTrip", trace.WithAttributes(
		attribute.String("trip.id", tripID.String()),
		attribute.String("trip.status", string(to)),
	))
	defer func() { endSpan(span, err) }()

	if !actor.IsSacco() {
		return nil, models.ErrForbidden
	}

	var settled []models.Booking
	trip, err = withRetry(ctx, s.retry, s.logger, "close_trip", func() (*models.Trip, error) {
		closed, bookings, closeErr := s.closer.CloseTrip(ctx, tripID, actor.UserID, to)
		settled = bookings
		return closed, closeErr
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"trip_id":  tripID,
		"status":   to,
		"bookings": len(settled),
	}).Info("Trip closed")

	for i := range settled {
		key := events.BookingCancelled
		if settled[i].Status == models.BookingStatusCompleted {
			key = events.BookingCompleted
		}
		publishEvent(ctx, s.publisher, s.logger, key, settled[i])
	}
	publishEvent(ctx, s.publisher, s.logger, routingKey, trip)
	return trip, nil
}

// ListBookableTrips lists future trips that still accept bookings
func (s *TripService) ListBookableTrips(ctx context.Context, region string) ([]models.Trip, error) {
	return s.trips.ListBookable(ctx, s.now(), strings.TrimSpace(region))
}

// ListSaccoTrips lists the calling sacco's trips
func (s *TripService) ListSaccoTrips(ctx context.Context, actor models.Actor) ([]models.Trip, error) {
	if !actor.IsSacco() {
		return nil, models.ErrForbidden
	}
	return s.trips.ListBySacco(ctx, actor.UserID)
}

// ListTripBookings lists the passengers booked on one of the sacco's trips
func (s *TripService) ListTripBookings(ctx context.Context, actor models.Actor, tripID uuid.UUID) ([]models.BookingDetails, error) {
	if _, err := s.ownedTrip(ctx, actor, tripID); err != nil {
		return nil, err
	}
	return s.closer.ListByTrip(ctx, tripID)
}

func (s *TripService) ownedTrip(ctx context.Context, actor models.Actor, tripID uuid.UUID) (*models.Trip, error) {
	if !actor.IsSacco() {
		return nil, models.ErrForbidden
	}
	trip, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.SaccoID != actor.UserID {
		return nil, models.ErrForbidden
	}
	return trip, nil
}
