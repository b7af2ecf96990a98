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

const tripColumns = `id, sacco_id, vehicle_id, driver_id, route_region, departure_at,
	total_seats, available_seats, cost_per_seat, status, version, created_at, updated_at`

// TripRepository owns trips and their seat inventory
type TripRepository struct {
	db          *sqlx.DB
	lockTimeout time.Duration
}

// NewTripRepository creates a new TripRepository
func NewTripRepository(db *sqlx.DB, lockTimeout time.Duration) *TripRepository {
	return &TripRepository{db: db, lockTimeout: lockTimeout}
}

// Create inserts a new trip with all seats available
func (r *TripRepository) Create(ctx context.Context, trip *models.Trip) error {
	query := `
		INSERT INTO trips (
			id, sacco_id, vehicle_id, driver_id, route_region, departure_at,
			total_seats, available_seats, cost_per_seat, status, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $8, $9, 1, NOW(), NOW())
		RETURNING available_seats, version, created_at, updated_at
	`
	if trip.ID == uuid.Nil {
		trip.ID = uuid.New()
	}
	trip.Status = models.TripStatusNotStarted

	err := r.db.QueryRowxContext(ctx, query,
		trip.ID, trip.SaccoID, trip.VehicleID, trip.DriverID, trip.RouteRegion,
		trip.DepartureAt, trip.TotalSeats, trip.CostPerSeat, trip.Status,
	).Scan(&trip.AvailableSeats, &trip.Version, &trip.CreatedAt, &trip.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create trip: %w", err)
	}
	return nil
}

// GetByID retrieves a trip
func (r *TripRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Trip, error) {
	var trip models.Trip
	err := r.db.GetContext(ctx, &trip, `SELECT `+tripColumns+` FROM trips WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrTripNotFound
		}
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}
	return &trip, nil
}

// ListBookable returns trips that have not started, depart after now and still have seats
func (r *TripRepository) ListBookable(ctx context.Context, now time.Time, region string) ([]models.Trip, error) {
	query := `
		SELECT ` + tripColumns + `
		FROM trips
		WHERE status = 'not_started'
		  AND departure_at > $1
		  AND available_seats > 0
		  AND ($2 = '' OR route_region ILIKE '%' || $2 || '%')
		ORDER BY departure_at ASC
		LIMIT 100
	`
	trips := []models.Trip{}
	if err := r.db.SelectContext(ctx, &trips, query, now, region); err != nil {
		return nil, fmt.Errorf("failed to list bookable trips: %w", err)
	}
	return trips, nil
}

// ListBySacco returns a sacco's trips, most recent departure first
func (r *TripRepository) ListBySacco(ctx context.Context, saccoID uuid.UUID) ([]models.Trip, error) {
	trips := []models.Trip{}
	query := `SELECT ` + tripColumns + ` FROM trips WHERE sacco_id = $1 ORDER BY departure_at DESC`
	if err := r.db.SelectContext(ctx, &trips, query, saccoID); err != nil {
		return nil, fmt.Errorf("failed to list sacco trips: %w", err)
	}
	return trips, nil
}

// UpdateStatus moves a trip from one status to another.
// Returns ErrInvalidTransition if the trip is not in the expected status.
func (r *TripRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.TripStatus) (*models.Trip, error) {
	query := `
		UPDATE trips
		SET status = $3, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + tripColumns

	var trip models.Trip
	err := r.db.GetContext(ctx, &trip, query, id, from, to)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, models.InvalidTransitionf("trip is not %s", from)
		}
		return nil, fmt.Errorf("failed to update trip status: %w", err)
	}
	return &trip, nil
}

// ReserveSeat takes one seat from the trip's inventory.
// The trip row lock serialises concurrent reservations on the same trip.
func (r *TripRepository) ReserveSeat(ctx context.Context, tripID uuid.UUID) (*models.ReservationToken, error) {
	var token *models.ReservationToken

	err := withTx(ctx, r.db, r.lockTimeout, func(tx *sqlx.Tx) error {
		trip, err := r.lockTrip(ctx, tx, tripID)
		if err != nil {
			return err
		}
		if trip.IsClosed() {
			return models.ErrTripClosed
		}
		// a started or departed trip takes no new passengers
		if !trip.IsBookable(time.Now()) {
			return models.ErrTripNotBookable
		}
		if trip.AvailableSeats <= 0 {
			return models.ErrSeatsExhausted
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE trips
			SET available_seats = available_seats - 1, version = version + 1, updated_at = NOW()
			WHERE id = $1 AND available_seats > 0
		`, tripID)
		if err != nil {
			return fmt.Errorf("failed to decrement seats: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return models.ErrSeatsExhausted
		}

		reservationID := uuid.New()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO seat_reservations (id, trip_id, status, created_at, updated_at)
			VALUES ($1, $2, 'held', NOW(), NOW())
		`, reservationID, tripID)
		if err != nil {
			return fmt.Errorf("failed to create seat reservation: %w", err)
		}

		token = &models.ReservationToken{ID: reservationID, TripID: tripID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}

// ReleaseSeat returns a held seat to the trip's inventory.
// Releasing the same token twice, or a token already attached to a booking, is a no-op.
func (r *TripRepository) ReleaseSeat(ctx context.Context, token models.ReservationToken) error {
	return withTx(ctx, r.db, r.lockTimeout, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE seat_reservations
			SET status = 'released', updated_at = NOW()
			WHERE id = $1 AND trip_id = $2 AND status = 'held'
		`, token.ID, token.TripID)
		if err != nil {
			return fmt.Errorf("failed to release reservation: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows != 1 {
			return nil
		}
		return r.incrementSeats(ctx, tx, token.TripID)
	})
}

// ReleaseOrphanReservations releases held reservations that never became bookings,
// e.g. when the process died between reserving and creating the booking
func (r *TripRepository) ReleaseOrphanReservations(ctx context.Context, olderThan time.Time) (int, error) {
	var held []models.ReservationToken
	rows, err := r.db.QueryxContext(ctx, `
		SELECT id, trip_id
		FROM seat_reservations
		WHERE status = 'held' AND booking_id IS NULL AND created_at < $1
		ORDER BY created_at ASC
		LIMIT 500
	`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to find orphan reservations: %w", err)
	}
	for rows.Next() {
		var token models.ReservationToken
		if err := rows.Scan(&token.ID, &token.TripID); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan orphan reservation: %w", err)
		}
		held = append(held, token)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to read orphan reservations: %w", err)
	}

	released := 0
	for _, token := range held {
		if err := r.ReleaseSeat(ctx, token); err != nil {
			return released, err
		}
		released++
	}
	return released, nil
}

// lockTrip reads the trip row and holds its lock until the transaction ends
func (r *TripRepository) lockTrip(ctx context.Context, tx *sqlx.Tx, tripID uuid.UUID) (*models.Trip, error) {
	var trip models.Trip
	err := tx.GetContext(ctx, &trip, `SELECT `+tripColumns+` FROM trips WHERE id = $1 FOR UPDATE`, tripID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrTripNotFound
		}
		return nil, fmt.Errorf("failed to lock trip: %w", err)
	}
	return &trip, nil
}

// incrementSeats gives one seat back, never exceeding total_seats
func (r *TripRepository) incrementSeats(ctx context.Context, tx *sqlx.Tx, tripID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE trips
		SET available_seats = LEAST(available_seats + 1, total_seats), version = version + 1, updated_at = NOW()
		WHERE id = $1
	`, tripID)
	if err != nil {
		return fmt.Errorf("failed to increment seats: %w", err)
	}
	return nil
}

// releaseForBooking releases the reservation attached to a booking inside tx.
// It reports whether a seat was returned.
func (r *TripRepository) releaseForBooking(ctx context.Context, tx *sqlx.Tx, bookingID uuid.UUID) (bool, error) {
	var tripID uuid.UUID
	err := tx.QueryRowxContext(ctx, `
		UPDATE seat_reservations
		SET status = 'released', updated_at = NOW()
		WHERE booking_id = $1 AND status = 'booked'
		RETURNING trip_id
	`, bookingID).Scan(&tripID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to release booking reservation: %w", err)
	}
	if err := r.incrementSeats(ctx, tx, tripID); err != nil {
		return false, err
	}
	return true, nil
}
