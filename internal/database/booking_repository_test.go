package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/skulbus/skulbus-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBookingRepo(t *testing.T) (*BookingRepository, sqlmock.Sqlmock) {
	db, mock := newMockDB(t)
	return NewBookingRepository(db, NewTripRepository(db, testLockTimeout)), mock
}

func TestCreateBooking(t *testing.T) {
	ctx := context.Background()
	studentID, parentID := uuid.New(), uuid.New()

	t.Run("Success", func(t *testing.T) {
		repo, mock := newBookingRepo(t)
		token := models.ReservationToken{ID: uuid.New(), TripID: uuid.New()}
		now := time.Now()

		expectTxStart(mock)
		mock.ExpectQuery(`SELECT cost_per_seat FROM trips WHERE id = \$1`).
			WithArgs(token.TripID).
			WillReturnRows(sqlmock.NewRows([]string{"cost_per_seat"}).AddRow(150))
		mock.ExpectQuery(`INSERT INTO bookings`).
			WithArgs(sqlmock.AnyArg(), token.TripID, studentID, parentID, token.ID, int64(150), models.BookingStatusPending).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
		mock.ExpectExec(`UPDATE seat_reservations\s+SET status = 'booked'`).
			WithArgs(sqlmock.AnyArg(), token.ID, token.TripID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		booking, err := repo.CreateBooking(ctx, token, studentID, parentID)
		require.NoError(t, err)
		assert.Equal(t, models.BookingStatusPending, booking.Status)
		assert.Equal(t, int64(150), booking.Fare)
		assert.Equal(t, token.ID, booking.ReservationID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Duplicate booking", func(t *testing.T) {
		repo, mock := newBookingRepo(t)
		token := models.ReservationToken{ID: uuid.New(), TripID: uuid.New()}

		expectTxStart(mock)
		mock.ExpectQuery(`SELECT cost_per_seat FROM trips`).
			WithArgs(token.TripID).
			WillReturnRows(sqlmock.NewRows([]string{"cost_per_seat"}).AddRow(150))
		mock.ExpectQuery(`INSERT INTO bookings`).
			WillReturnError(&pq.Error{Code: "23505", Constraint: activeBookingConstraint})
		mock.ExpectRollback()

		booking, err := repo.CreateBooking(ctx, token, studentID, parentID)
		assert.Nil(t, booking)
		assert.True(t, errors.Is(err, models.ErrDuplicateBooking))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Reservation no longer held", func(t *testing.T) {
		repo, mock := newBookingRepo(t)
		token := models.ReservationToken{ID: uuid.New(), TripID: uuid.New()}
		now := time.Now()

		expectTxStart(mock)
		mock.ExpectQuery(`SELECT cost_per_seat FROM trips`).
			WillReturnRows(sqlmock.NewRows([]string{"cost_per_seat"}).AddRow(150))
		mock.ExpectQuery(`INSERT INTO bookings`).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
		mock.ExpectExec(`UPDATE seat_reservations\s+SET status = 'booked'`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, err := repo.CreateBooking(ctx, token, studentID, parentID)
		assert.True(t, errors.Is(err, models.ErrReservationNotHeld))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingTransition(t *testing.T) {
	ctx := context.Background()

	t.Run("Cancel pending releases the seat", func(t *testing.T) {
		repo, mock := newBookingRepo(t)
		bookingID, tripID := uuid.New(), uuid.New()
		now := time.Now()

		expectTxStart(mock)
		mock.ExpectQuery(`SELECT trip_id FROM bookings WHERE id = \$1`).
			WithArgs(bookingID).
			WillReturnRows(sqlmock.NewRows([]string{"trip_id"}).AddRow(tripID.String()))
		mock.ExpectQuery(`FROM trips WHERE id = \$1 FOR UPDATE`).
			WithArgs(tripID).
			WillReturnRows(tripRow(tripID, uuid.New(), 10, 2, "not_started", now.Add(time.Hour)))
		mock.ExpectQuery(`FROM bookings WHERE id = \$1 FOR UPDATE`).
			WithArgs(bookingID).
			WillReturnRows(bookingRow(bookingID, tripID, "pending", 150))
		mock.ExpectQuery(`UPDATE bookings SET status = \$3, cancelled_at = NOW\(\)`).
			WithArgs(bookingID, models.BookingStatusPending, models.BookingStatusCancelled, "changed plans").
			WillReturnRows(sqlmock.NewRows([]string{"updated_at", "cancelled_at"}).AddRow(now, now))
		mock.ExpectQuery(`UPDATE seat_reservations\s+SET status = 'released', updated_at = NOW\(\)\s+WHERE booking_id = \$1`).
			WithArgs(bookingID).
			WillReturnRows(sqlmock.NewRows([]string{"trip_id"}).AddRow(tripID.String()))
		mock.ExpectExec(`SET available_seats = LEAST`).
			WithArgs(tripID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		booking, err := repo.Transition(ctx, bookingID, models.BookingEventCancel, "changed plans")
		require.NoError(t, err)
		assert.Equal(t, models.BookingStatusCancelled, booking.Status)
		require.NotNil(t, booking.CancellationReason)
		assert.Equal(t, "changed plans", *booking.CancellationReason)
		assert.NotNil(t, booking.CancelledAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Cancel confirmed after departure is rejected", func(t *testing.T) {
		repo, mock := newBookingRepo(t)
		bookingID, tripID := uuid.New(), uuid.New()

		expectTxStart(mock)
		mock.ExpectQuery(`SELECT trip_id FROM bookings`).
			WillReturnRows(sqlmock.NewRows([]string{"trip_id"}).AddRow(tripID.String()))
		mock.ExpectQuery(`FROM trips WHERE id = \$1 FOR UPDATE`).
			WillReturnRows(tripRow(tripID, uuid.New(), 10, 2, "in_progress", time.Now().Add(-time.Hour)))
		mock.ExpectQuery(`FROM bookings WHERE id = \$1 FOR UPDATE`).
			WillReturnRows(bookingRow(bookingID, tripID, "confirmed", 150))
		mock.ExpectRollback()

		_, err := repo.Transition(ctx, bookingID, models.BookingEventCancel, "")
		assert.True(t, errors.Is(err, models.ErrInvalidTransition))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Expire on an already cancelled booking", func(t *testing.T) {
		repo, mock := newBookingRepo(t)
		bookingID, tripID := uuid.New(), uuid.New()

		expectTxStart(mock)
		mock.ExpectQuery(`SELECT trip_id FROM bookings`).
			WillReturnRows(sqlmock.NewRows([]string{"trip_id"}).AddRow(tripID.String()))
		mock.ExpectQuery(`FROM trips WHERE id = \$1 FOR UPDATE`).
			WillReturnRows(tripRow(tripID, uuid.New(), 10, 3, "not_started", time.Now().Add(time.Hour)))
		mock.ExpectQuery(`FROM bookings WHERE id = \$1 FOR UPDATE`).
			WillReturnRows(bookingRow(bookingID, tripID, "cancelled", 150))
		mock.ExpectRollback()

		_, err := repo.Transition(ctx, bookingID, models.BookingEventExpire, "")
		assert.True(t, errors.Is(err, models.ErrInvalidTransition))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Booking not found", func(t *testing.T) {
		repo, mock := newBookingRepo(t)
		bookingID := uuid.New()

		expectTxStart(mock)
		mock.ExpectQuery(`SELECT trip_id FROM bookings`).
			WithArgs(bookingID).
			WillReturnRows(sqlmock.NewRows([]string{"trip_id"}))
		mock.ExpectRollback()

		_, err := repo.Transition(ctx, bookingID, models.BookingEventCancel, "")
		assert.True(t, errors.Is(err, models.ErrBookingNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCloseTrip(t *testing.T) {
	ctx := context.Background()

	t.Run("Cancel releases every live booking", func(t *testing.T) {
		repo, mock := newBookingRepo(t)
		tripID, saccoID := uuid.New(), uuid.New()
		pendingID, confirmedID := uuid.New(), uuid.New()
		now := time.Now()

		live := sqlmock.NewRows(bookingColumnNames).
			AddRow(pendingID.String(), tripID.String(), uuid.NewString(), uuid.NewString(), uuid.NewString(), 150, "pending", nil, now, now, nil, nil, nil).
			AddRow(confirmedID.String(), tripID.String(), uuid.NewString(), uuid.NewString(), uuid.NewString(), 150, "confirmed", nil, now, now, now, nil, nil)

		expectTxStart(mock)
		mock.ExpectQuery(`FROM trips WHERE id = \$1 FOR UPDATE`).
			WithArgs(tripID).
			WillReturnRows(tripRow(tripID, saccoID, 10, 8, "not_started", now.Add(time.Hour)))
		mock.ExpectQuery(`FROM bookings\s+WHERE trip_id = \$1 AND status IN \('pending', 'confirmed'\)`).
			WithArgs(tripID).
			WillReturnRows(live)
		for _, id := range []uuid.UUID{pendingID, confirmedID} {
			mock.ExpectQuery(`UPDATE bookings SET status = \$3, cancelled_at = NOW\(\)`).
				WithArgs(id, sqlmock.AnyArg(), models.BookingStatusCancelled, "trip cancelled by sacco").
				WillReturnRows(sqlmock.NewRows([]string{"updated_at", "cancelled_at"}).AddRow(now, now))
			mock.ExpectQuery(`UPDATE seat_reservations\s+SET status = 'released'`).
				WithArgs(id).
				WillReturnRows(sqlmock.NewRows([]string{"trip_id"}).AddRow(tripID.String()))
			mock.ExpectExec(`SET available_seats = LEAST`).
				WithArgs(tripID).
				WillReturnResult(sqlmock.NewResult(0, 1))
		}
		mock.ExpectQuery(`UPDATE trips\s+SET status = \$2`).
			WithArgs(tripID, models.TripStatusCancelled).
			WillReturnRows(tripRow(tripID, saccoID, 10, 10, "cancelled", now.Add(time.Hour)))
		mock.ExpectCommit()

		trip, settled, err := repo.CloseTrip(ctx, tripID, saccoID, models.TripStatusCancelled)
		require.NoError(t, err)
		assert.Equal(t, models.TripStatusCancelled, trip.Status)
		assert.Equal(t, 10, trip.AvailableSeats)
		require.Len(t, settled, 2)
		for _, b := range settled {
			assert.Equal(t, models.BookingStatusCancelled, b.Status)
		}
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Other sacco is forbidden", func(t *testing.T) {
		repo, mock := newBookingRepo(t)
		tripID := uuid.New()

		expectTxStart(mock)
		mock.ExpectQuery(`FROM trips WHERE id = \$1 FOR UPDATE`).
			WillReturnRows(tripRow(tripID, uuid.New(), 10, 8, "not_started", time.Now().Add(time.Hour)))
		mock.ExpectRollback()

		_, _, err := repo.CloseTrip(ctx, tripID, uuid.New(), models.TripStatusCancelled)
		assert.True(t, errors.Is(err, models.ErrForbidden))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Completing a trip that never started", func(t *testing.T) {
		repo, mock := newBookingRepo(t)
		tripID, saccoID := uuid.New(), uuid.New()

		expectTxStart(mock)
		mock.ExpectQuery(`FROM trips WHERE id = \$1 FOR UPDATE`).
			WillReturnRows(tripRow(tripID, saccoID, 10, 8, "not_started", time.Now().Add(time.Hour)))
		mock.ExpectRollback()

		_, _, err := repo.CloseTrip(ctx, tripID, saccoID, models.TripStatusCompleted)
		assert.True(t, errors.Is(err, models.ErrInvalidTransition))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestListExpiredPending(t *testing.T) {
	repo, mock := newBookingRepo(t)
	cutoff := time.Now().Add(-15 * time.Minute)
	first, second := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT id FROM bookings\s+WHERE status = 'pending' AND created_at < \$1`).
		WithArgs(cutoff, 100).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(first.String()).AddRow(second.String()))

	ids, err := repo.ListExpiredPending(context.Background(), cutoff, 100)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{first, second}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
