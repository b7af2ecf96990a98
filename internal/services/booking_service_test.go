package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/skulbus/skulbus-backend/internal/models"
	"github.com/skulbus/skulbus-backend/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookTrip_Success(t *testing.T) {
	store := newMemStore()
	publisher := &recordingPublisher{}
	service := newTestBookingService(store, publisher)

	parentID := uuid.New()
	student := store.addStudent(parentID)
	trip := store.addTrip(3, 250, time.Now().Add(2*time.Hour))

	booking, err := service.BookTrip(context.Background(), parentActor(parentID), student.ID, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, booking.Status)
	assert.Equal(t, int64(250), booking.Fare)
	assert.Equal(t, 2, store.available(trip.ID))
	assert.Equal(t, []string{events.BookingCreated}, publisher.published())
}

func TestBookTrip_Rejections(t *testing.T) {
	store := newMemStore()
	service := newTestBookingService(store, &recordingPublisher{})

	parentID := uuid.New()
	student := store.addStudent(parentID)
	future := store.addTrip(2, 100, time.Now().Add(time.Hour))
	departed := store.addTrip(2, 100, time.Now().Add(-time.Minute))
	cancelled := store.addTrip(2, 100, time.Now().Add(time.Hour))
	store.trips[cancelled.ID].Status = models.TripStatusCancelled

	cases := []struct {
		name      string
		actor     models.Actor
		studentID uuid.UUID
		tripID    uuid.UUID
		want      error
	}{
		{"sacco cannot book", models.Actor{UserID: parentID, Role: models.RoleSacco}, student.ID, future.ID, models.ErrForbidden},
		{"someone else's student", parentActor(uuid.New()), student.ID, future.ID, models.ErrForbidden},
		{"unknown student", parentActor(parentID), uuid.New(), future.ID, models.ErrStudentNotFound},
		{"unknown trip", parentActor(parentID), student.ID, uuid.New(), models.ErrTripNotFound},
		{"departed trip", parentActor(parentID), student.ID, departed.ID, models.ErrTripNotBookable},
		{"cancelled trip", parentActor(parentID), student.ID, cancelled.ID, models.ErrTripNotBookable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.BookTrip(context.Background(), tc.actor, tc.studentID, tc.tripID)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Equal(t, 2, store.available(future.ID))
}

func TestBookTrip_LastSeatRace(t *testing.T) {
	store := newMemStore()
	service := newTestBookingService(store, &recordingPublisher{})

	trip := store.addTrip(1, 100, time.Now().Add(time.Hour))
	parentA, parentB := uuid.New(), uuid.New()
	studentA, studentB := store.addStudent(parentA), store.addStudent(parentB)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, p := range []struct {
		parent  uuid.UUID
		student uuid.UUID
	}{{parentA, studentA.ID}, {parentB, studentB.ID}} {
		wg.Add(1)
		go func(i int, parent, student uuid.UUID) {
			defer wg.Done()
			_, errs[i] = service.BookTrip(context.Background(), parentActor(parent), student, trip.ID)
		}(i, p.parent, p.student)
	}
	wg.Wait()

	succeeded, noSeats := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, models.ErrNoSeatsAvailable):
			noSeats++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, noSeats)
	assert.Equal(t, 0, store.available(trip.ID))
	assert.Len(t, store.bookingsFor(trip.ID), 1)
}

func TestBookTrip_ConcurrentLoadNeverOversells(t *testing.T) {
	store := newMemStore()
	service := newTestBookingService(store, &recordingPublisher{})
	trip := store.addTrip(5, 100, time.Now().Add(time.Hour))

	const attempts = 40
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		parent := uuid.New()
		student := store.addStudent(parent)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = service.BookTrip(context.Background(), parentActor(parent), student.ID, trip.ID)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, store.available(trip.ID))
	assert.Len(t, store.bookingsFor(trip.ID), 5)
	assert.Zero(t, store.heldReservations())
}

func TestBookTrip_DuplicateReleasesSecondSeat(t *testing.T) {
	store := newMemStore()
	service := newTestBookingService(store, &recordingPublisher{})

	parentID := uuid.New()
	student := store.addStudent(parentID)
	trip := store.addTrip(3, 100, time.Now().Add(time.Hour))

	_, err := service.BookTrip(context.Background(), parentActor(parentID), student.ID, trip.ID)
	require.NoError(t, err)

	_, err = service.BookTrip(context.Background(), parentActor(parentID), student.ID, trip.ID)
	assert.ErrorIs(t, err, models.ErrDuplicateBooking)
	assert.Equal(t, 2, store.available(trip.ID))
	assert.Zero(t, store.heldReservations())
}

func TestBookTrip_CompensatesOnCreateFailure(t *testing.T) {
	store := newMemStore()
	service := newTestBookingService(store, &recordingPublisher{})

	parentID := uuid.New()
	student := store.addStudent(parentID)
	trip := store.addTrip(1, 100, time.Now().Add(time.Hour))
	store.failCreate = errBoom

	_, err := service.BookTrip(context.Background(), parentActor(parentID), student.ID, trip.ID)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, store.available(trip.ID))
	assert.Empty(t, store.bookingsFor(trip.ID))
}

func TestBookTrip_RetriesTransientCreate(t *testing.T) {
	store := newMemStore()
	service := newTestBookingService(store, &recordingPublisher{})

	parentID := uuid.New()
	student := store.addStudent(parentID)
	trip := store.addTrip(1, 100, time.Now().Add(time.Hour))
	store.failCreate = models.ErrTransient

	booking, err := service.BookTrip(context.Background(), parentActor(parentID), student.ID, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, booking.Status)
	assert.Equal(t, 0, store.available(trip.ID))
}

func TestCancelBooking_RestoresSeatExactlyOnce(t *testing.T) {
	store := newMemStore()
	publisher := &recordingPublisher{}
	service := newTestBookingService(store, publisher)

	parentID := uuid.New()
	student := store.addStudent(parentID)
	trip := store.addTrip(2, 100, time.Now().Add(time.Hour))

	booking, err := service.BookTrip(context.Background(), parentActor(parentID), student.ID, trip.ID)
	require.NoError(t, err)
	require.Equal(t, 1, store.available(trip.ID))

	_, err = service.CancelBooking(context.Background(), models.Actor{UserID: uuid.New(), Role: models.RoleParent}, booking.ID, "")
	assert.ErrorIs(t, err, models.ErrForbidden)

	cancelled, err := service.CancelBooking(context.Background(), parentActor(parentID), booking.ID, "changed schools")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)
	assert.Equal(t, 2, store.available(trip.ID))

	_, err = service.CancelBooking(context.Background(), parentActor(parentID), booking.ID, "")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.Equal(t, 2, store.available(trip.ID))
	assert.Equal(t, 1, store.releases[booking.ReservationID])
	assert.Contains(t, publisher.published(), events.BookingCancelled)
}

func TestCancelBooking_AdminMayCancel(t *testing.T) {
	store := newMemStore()
	service := newTestBookingService(store, &recordingPublisher{})

	parentID := uuid.New()
	student := store.addStudent(parentID)
	trip := store.addTrip(1, 100, time.Now().Add(time.Hour))
	booking, err := service.BookTrip(context.Background(), parentActor(parentID), student.ID, trip.ID)
	require.NoError(t, err)

	admin := models.Actor{UserID: uuid.New(), Role: models.RoleAdmin}
	_, err = service.CancelBooking(context.Background(), admin, booking.ID, "duplicate account")
	require.NoError(t, err)
	assert.Equal(t, 1, store.available(trip.ID))
}

func TestExpirePendingBookings(t *testing.T) {
	store := newMemStore()
	service := newTestBookingService(store, &recordingPublisher{})
	trip := store.addTrip(3, 100, time.Now().Add(time.Hour))

	var stale, fresh *models.Booking
	for i := 0; i < 2; i++ {
		parent := uuid.New()
		student := store.addStudent(parent)
		b, err := service.BookTrip(context.Background(), parentActor(parent), student.ID, trip.ID)
		require.NoError(t, err)
		if i == 0 {
			stale = b
		} else {
			fresh = b
		}
	}
	store.setCreatedAt(stale.ID, time.Now().Add(-20*time.Minute))
	require.Equal(t, 1, store.available(trip.ID))

	expired, err := service.ExpirePendingBookings(context.Background(), time.Now().Add(-15*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, expired)
	assert.Equal(t, 2, store.available(trip.ID))

	got, err := service.GetBooking(context.Background(), models.Actor{Role: models.RoleAdmin}, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, got.Status)

	got, err = service.GetBooking(context.Background(), models.Actor{Role: models.RoleAdmin}, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, got.Status)

	expired, err = service.ExpirePendingBookings(context.Background(), time.Now().Add(-15*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, expired)
}

func TestExpirePendingBookings_ManyBatches(t *testing.T) {
	store := newMemStore()
	service := newTestBookingService(store, &recordingPublisher{})
	trip := store.addTrip(expireBatchSize+20, 100, time.Now().Add(time.Hour))

	for i := 0; i < expireBatchSize+20; i++ {
		parent := uuid.New()
		student := store.addStudent(parent)
		b, err := service.BookTrip(context.Background(), parentActor(parent), student.ID, trip.ID)
		require.NoError(t, err)
		store.setCreatedAt(b.ID, time.Now().Add(-time.Hour))
	}

	expired, err := service.ExpirePendingBookings(context.Background(), time.Now().Add(-15*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, expireBatchSize+20, expired)
	assert.Equal(t, expireBatchSize+20, store.available(trip.ID))
}

func TestListMyBookings(t *testing.T) {
	store := newMemStore()
	service := newTestBookingService(store, &recordingPublisher{})

	parentID := uuid.New()
	student := store.addStudent(parentID)
	trip := store.addTrip(2, 100, time.Now().Add(time.Hour))
	_, err := service.BookTrip(context.Background(), parentActor(parentID), student.ID, trip.ID)
	require.NoError(t, err)

	list, err := service.ListMyBookings(context.Background(), parentActor(parentID))
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = service.ListMyBookings(context.Background(), models.Actor{Role: models.RoleSacco})
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestWithRetry_GivesUpAfterAttempts(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), RetryPolicy{Attempts: 3, Backoff: time.Microsecond}, quietLogger(), "op",
		func() (int, error) {
			calls++
			return 0, models.ErrTransient
		})
	assert.ErrorIs(t, err, models.ErrTransient)
	assert.Equal(t, 3, calls)

	calls = 0
	_, err = withRetry(context.Background(), RetryPolicy{Attempts: 3, Backoff: time.Microsecond}, quietLogger(), "op",
		func() (int, error) {
			calls++
			return 0, models.ErrDuplicateBooking
		})
	assert.ErrorIs(t, err, models.ErrDuplicateBooking)
	assert.Equal(t, 1, calls)
}
