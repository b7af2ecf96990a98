package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/skulbus/skulbus-backend/internal/models"
)

const bookingColumns = `id, trip_id, student_id, parent_id, reservation_id, fare, status,
	cancellation_reason, created_at, updated_at, confirmed_at, cancelled_at, completed_at`

// activeBookingConstraint is the partial unique index over (trip_id, student_id) WHERE status <> 'cancelled'
const activeBookingConstraint = "bookings_trip_student_active_key"

// BookingRepository is the booking ledger. Every status change goes through
// models.NextBookingStatus under the booking row lock.
type BookingRepository struct {
	db    *sqlx.DB
	trips *TripRepository
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *sqlx.DB, trips *TripRepository) *BookingRepository {
	return &BookingRepository{db: db, trips: trips}
}

// CreateBooking turns a held reservation into a pending booking at the trip's current fare
func (r *BookingRepository) CreateBooking(ctx context.Context, token models.ReservationToken, studentID, parentID uuid.UUID) (*models.Booking, error) {
	booking := &models.Booking{
		ID:            uuid.New(),
		TripID:        token.TripID,
		StudentID:     studentID,
		ParentID:      parentID,
		ReservationID: token.ID,
		Status:        models.BookingStatusPending,
	}

	err := withTx(ctx, r.db, r.trips.lockTimeout, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &booking.Fare, `SELECT cost_per_seat FROM trips WHERE id = $1`, token.TripID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.ErrTripNotFound
			}
			return fmt.Errorf("failed to read trip fare: %w", err)
		}

		err := tx.QueryRowxContext(ctx, `
			INSERT INTO bookings (
				id, trip_id, student_id, parent_id, reservation_id, fare, status, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
			RETURNING created_at, updated_at
		`, booking.ID, booking.TripID, booking.StudentID, booking.ParentID,
			booking.ReservationID, booking.Fare, booking.Status,
		).Scan(&booking.CreatedAt, &booking.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err, activeBookingConstraint) {
				return models.ErrDuplicateBooking
			}
			return fmt.Errorf("failed to create booking: %w", err)
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE seat_reservations
			SET status = 'booked', booking_id = $1, updated_at = NOW()
			WHERE id = $2 AND trip_id = $3 AND status = 'held'
		`, booking.ID, token.ID, token.TripID)
		if err != nil {
			return fmt.Errorf("failed to attach reservation: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return models.ErrReservationNotHeld
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// Transition applies event to a booking. Locks are taken trip first, then booking,
// the same order CloseTrip uses.
func (r *BookingRepository) Transition(ctx context.Context, bookingID uuid.UUID, event models.BookingEvent, reason string) (*models.Booking, error) {
	var booking *models.Booking

	err := withTx(ctx, r.db, r.trips.lockTimeout, func(tx *sqlx.Tx) error {
		var tripID uuid.UUID
		if err := tx.GetContext(ctx, &tripID, `SELECT trip_id FROM bookings WHERE id = $1`, bookingID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.ErrBookingNotFound
			}
			return fmt.Errorf("failed to find booking: %w", err)
		}

		trip, err := r.trips.lockTrip(ctx, tx, tripID)
		if err != nil {
			return err
		}

		b, err := r.lockBooking(ctx, tx, bookingID)
		if err != nil {
			return err
		}

		if err := r.applyEvent(ctx, tx, b, event, trip.HasDeparted(time.Now()), reason); err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// CloseTrip moves a sacco's trip to completed or cancelled and settles its live bookings
// in the same transaction. Completing confirms rides taken and cancels unpaid ones;
// cancelling releases every live seat. The settled bookings are returned in their new state.
func (r *BookingRepository) CloseTrip(ctx context.Context, tripID, saccoID uuid.UUID, to models.TripStatus) (*models.Trip, []models.Booking, error) {
	var (
		closed  *models.Trip
		settled []models.Booking
	)

	err := withTx(ctx, r.db, r.trips.lockTimeout, func(tx *sqlx.Tx) error {
		trip, err := r.trips.lockTrip(ctx, tx, tripID)
		if err != nil {
			return err
		}
		if trip.SaccoID != saccoID {
			return models.ErrForbidden
		}

		switch to {
		case models.TripStatusCompleted:
			if trip.Status != models.TripStatusInProgress {
				return models.InvalidTransitionf("only an in-progress trip can be completed, trip is %s", trip.Status)
			}
		case models.TripStatusCancelled:
			if trip.Status != models.TripStatusNotStarted {
				return models.InvalidTransitionf("only a trip that has not started can be cancelled, trip is %s", trip.Status)
			}
		default:
			return models.InvalidTransitionf("trip cannot be closed as %s", to)
		}

		live := []models.Booking{}
		err = tx.SelectContext(ctx, &live, `
			SELECT `+bookingColumns+`
			FROM bookings
			WHERE trip_id = $1 AND status IN ('pending', 'confirmed')
			ORDER BY created_at ASC
			FOR UPDATE
		`, tripID)
		if err != nil {
			return fmt.Errorf("failed to lock trip bookings: %w", err)
		}

		for i := range live {
			event := models.BookingEventTripCancelled
			reason := "trip cancelled by sacco"
			if to == models.TripStatusCompleted {
				if live[i].Status == models.BookingStatusConfirmed {
					event, reason = models.BookingEventTripCompleted, ""
				} else {
					event, reason = models.BookingEventExpire, "unpaid at trip completion"
				}
			}
			if err := r.applyEvent(ctx, tx, &live[i], event, true, reason); err != nil {
				return err
			}
		}

		closed = &models.Trip{}
		err = tx.GetContext(ctx, closed, `
			UPDATE trips
			SET status = $2, version = version + 1, updated_at = NOW()
			WHERE id = $1
			RETURNING `+tripColumns, tripID, to)
		if err != nil {
			return fmt.Errorf("failed to close trip: %w", err)
		}
		settled = live
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return closed, settled, nil
}

// applyEvent moves a locked booking to its next status and, on cancellation,
// returns its seat in the same transaction
func (r *BookingRepository) applyEvent(ctx context.Context, tx *sqlx.Tx, b *models.Booking, event models.BookingEvent, departed bool, reason string) error {
	next, err := models.NextBookingStatus(b.Status, event, departed)
	if err != nil {
		return err
	}

	var query string
	args := []interface{}{b.ID, b.Status, next}
	switch next {
	case models.BookingStatusConfirmed:
		query = `UPDATE bookings SET status = $3, confirmed_at = NOW(), updated_at = NOW()
			WHERE id = $1 AND status = $2 RETURNING updated_at, confirmed_at`
	case models.BookingStatusCompleted:
		query = `UPDATE bookings SET status = $3, completed_at = NOW(), updated_at = NOW()
			WHERE id = $1 AND status = $2 RETURNING updated_at, completed_at`
	case models.BookingStatusCancelled:
		query = `UPDATE bookings SET status = $3, cancelled_at = NOW(), updated_at = NOW(),
			cancellation_reason = NULLIF($4, '')
			WHERE id = $1 AND status = $2 RETURNING updated_at, cancelled_at`
		args = append(args, reason)
	default:
		return models.InvalidTransitionf("unsupported target status %s", next)
	}

	var (
		updatedAt time.Time
		stampedAt time.Time
	)
	if err := tx.QueryRowxContext(ctx, query, args...).Scan(&updatedAt, &stampedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.InvalidTransitionf("booking is no longer %s", b.Status)
		}
		return fmt.Errorf("failed to update booking status: %w", err)
	}

	b.Status = next
	b.UpdatedAt = updatedAt
	switch next {
	case models.BookingStatusConfirmed:
		b.ConfirmedAt = &stampedAt
	case models.BookingStatusCompleted:
		b.CompletedAt = &stampedAt
	case models.BookingStatusCancelled:
		b.CancelledAt = &stampedAt
		if reason != "" {
			b.CancellationReason = &reason
		}
		if _, err := r.trips.releaseForBooking(ctx, tx, b.ID); err != nil {
			return err
		}
	}
	return nil
}

func (r *BookingRepository) lockBooking(ctx context.Context, tx *sqlx.Tx, bookingID uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := tx.GetContext(ctx, &booking, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to lock booking: %w", err)
	}
	return &booking, nil
}

// GetByID retrieves a booking
func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.GetContext(ctx, &booking, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

// ListExpiredPending returns ids of pending bookings created before olderThan, oldest first
func (r *BookingRepository) ListExpiredPending(ctx context.Context, olderThan time.Time, limit int) ([]uuid.UUID, error) {
	ids := []uuid.UUID{}
	err := r.db.SelectContext(ctx, &ids, `
		SELECT id FROM bookings
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired bookings: %w", err)
	}
	return ids, nil
}

const bookingDetailsQuery = `
	SELECT b.id, b.trip_id, b.student_id, b.parent_id, b.reservation_id, b.fare, b.status,
		b.cancellation_reason, b.created_at, b.updated_at, b.confirmed_at, b.cancelled_at, b.completed_at,
		t.route_region, t.departure_at, t.status AS trip_status,
		s.name AS student_name,
		(SELECT p.status FROM payments p WHERE p.booking_id = b.id ORDER BY p.created_at DESC LIMIT 1) AS payment_status
	FROM bookings b
	JOIN trips t ON t.id = b.trip_id
	JOIN students s ON s.id = b.student_id
`

// ListByParent returns a parent's bookings with trip and student details, newest first
func (r *BookingRepository) ListByParent(ctx context.Context, parentID uuid.UUID) ([]models.BookingDetails, error) {
	bookings := []models.BookingDetails{}
	query := bookingDetailsQuery + ` WHERE b.parent_id = $1 ORDER BY b.created_at DESC`
	if err := r.db.SelectContext(ctx, &bookings, query, parentID); err != nil {
		return nil, fmt.Errorf("failed to list parent bookings: %w", err)
	}
	return bookings, nil
}

// ListByTrip returns a trip's bookings for the operating sacco
func (r *BookingRepository) ListByTrip(ctx context.Context, tripID uuid.UUID) ([]models.BookingDetails, error) {
	bookings := []models.BookingDetails{}
	query := bookingDetailsQuery + ` WHERE b.trip_id = $1 ORDER BY b.created_at ASC`
	if err := r.db.SelectContext(ctx, &bookings, query, tripID); err != nil {
		return nil, fmt.Errorf("failed to list trip bookings: %w", err)
	}
	return bookings, nil
}
