package services

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/skulbus/skulbus-backend/internal/models"
	"github.com/skulbus/skulbus-backend/pkg/mpesa"
)

// memStore is an in-memory stand-in for the trip, booking, student and payment
// repositories. A single mutex plays the role of the row locks.
type memStore struct {
	mu           sync.Mutex
	trips        map[uuid.UUID]*models.Trip
	reservations map[uuid.UUID]*models.SeatReservation
	bookings     map[uuid.UUID]*models.Booking
	students     map[uuid.UUID]*models.Student
	payments     map[uuid.UUID]*models.Payment
	releases     map[uuid.UUID]int

	// failCreate, when set, is returned by CreateBooking once
	failCreate error
}

func newMemStore() *memStore {
	return &memStore{
		trips:        map[uuid.UUID]*models.Trip{},
		reservations: map[uuid.UUID]*models.SeatReservation{},
		bookings:     map[uuid.UUID]*models.Booking{},
		students:     map[uuid.UUID]*models.Student{},
		payments:     map[uuid.UUID]*models.Payment{},
		releases:     map[uuid.UUID]int{},
	}
}

func (m *memStore) addTrip(seats int, fare int64, departure time.Time) *models.Trip {
	m.mu.Lock()
	defer m.mu.Unlock()
	trip := &models.Trip{
		ID:             uuid.New(),
		SaccoID:        uuid.New(),
		RouteRegion:    "Westlands",
		DepartureAt:    departure,
		TotalSeats:     seats,
		AvailableSeats: seats,
		CostPerSeat:    fare,
		Status:         models.TripStatusNotStarted,
	}
	m.trips[trip.ID] = trip
	return trip
}

func (m *memStore) addStudent(parentID uuid.UUID) *models.Student {
	m.mu.Lock()
	defer m.mu.Unlock()
	student := &models.Student{ID: uuid.New(), ParentID: parentID, Name: "Student " + parentID.String()[:4]}
	m.students[student.ID] = student
	return student
}

func (m *memStore) available(tripID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trips[tripID].AvailableSeats
}

func (m *memStore) heldReservations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.reservations {
		if r.Status == models.ReservationStatusHeld {
			n++
		}
	}
	return n
}

func (m *memStore) bookingsFor(tripID uuid.UUID) []models.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Booking
	for _, b := range m.bookings {
		if b.TripID == tripID {
			out = append(out, *b)
		}
	}
	return out
}

func (m *memStore) setCreatedAt(bookingID uuid.UUID, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[bookingID].CreatedAt = at
}

// memTrips exposes memStore as a TripInventory
type memTrips struct{ *memStore }

func (t memTrips) GetByID(_ context.Context, id uuid.UUID) (*models.Trip, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	trip, ok := t.trips[id]
	if !ok {
		return nil, models.ErrTripNotFound
	}
	cp := *trip
	return &cp, nil
}

func (t memTrips) ReserveSeat(_ context.Context, tripID uuid.UUID) (*models.ReservationToken, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	trip, ok := t.trips[tripID]
	switch {
	case !ok:
		return nil, models.ErrTripNotFound
	case trip.IsClosed():
		return nil, models.ErrTripClosed
	case trip.AvailableSeats == 0:
		return nil, models.ErrSeatsExhausted
	}
	trip.AvailableSeats--
	trip.Version++
	res := &models.SeatReservation{ID: uuid.New(), TripID: tripID, Status: models.ReservationStatusHeld}
	t.reservations[res.ID] = res
	return &models.ReservationToken{ID: res.ID, TripID: tripID}, nil
}

func (t memTrips) ReleaseSeat(_ context.Context, token models.ReservationToken) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.releaseLocked(token.ID)
	return nil
}

func (m *memStore) releaseLocked(reservationID uuid.UUID) {
	res, ok := m.reservations[reservationID]
	if !ok || res.Status == models.ReservationStatusReleased {
		return
	}
	res.Status = models.ReservationStatusReleased
	m.releases[reservationID]++
	trip := m.trips[res.TripID]
	if trip.AvailableSeats < trip.TotalSeats {
		trip.AvailableSeats++
	}
}

// memLedger exposes memStore as a BookingLedger
type memLedger struct{ *memStore }

func (l memLedger) CreateBooking(_ context.Context, token models.ReservationToken, studentID, parentID uuid.UUID) (*models.Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failCreate != nil {
		err := l.failCreate
		l.failCreate = nil
		return nil, err
	}
	res, ok := l.reservations[token.ID]
	if !ok || res.Status != models.ReservationStatusHeld {
		return nil, models.ErrReservationNotHeld
	}
	for _, b := range l.bookings {
		if b.TripID == token.TripID && b.StudentID == studentID && b.Status != models.BookingStatusCancelled {
			return nil, models.ErrDuplicateBooking
		}
	}
	booking := &models.Booking{
		ID:            uuid.New(),
		TripID:        token.TripID,
		StudentID:     studentID,
		ParentID:      parentID,
		ReservationID: token.ID,
		Fare:          l.trips[token.TripID].CostPerSeat,
		Status:        models.BookingStatusPending,
		CreatedAt:     time.Now(),
	}
	l.bookings[booking.ID] = booking
	bid := booking.ID
	res.Status = models.ReservationStatusBooked
	res.BookingID = &bid
	cp := *booking
	return &cp, nil
}

func (l memLedger) Transition(_ context.Context, bookingID uuid.UUID, event models.BookingEvent, reason string) (*models.Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transitionLocked(bookingID, event, reason)
}

func (m *memStore) transitionLocked(bookingID uuid.UUID, event models.BookingEvent, reason string) (*models.Booking, error) {
	booking, ok := m.bookings[bookingID]
	if !ok {
		return nil, models.ErrBookingNotFound
	}
	departed := m.trips[booking.TripID].HasDeparted(time.Now())
	next, err := models.NextBookingStatus(booking.Status, event, departed)
	if err != nil {
		return nil, err
	}
	booking.Status = next
	if next == models.BookingStatusCancelled {
		if reason != "" {
			booking.CancellationReason = &reason
		}
		m.releaseLocked(booking.ReservationID)
	}
	cp := *booking
	return &cp, nil
}

func (l memLedger) GetByID(_ context.Context, id uuid.UUID) (*models.Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	booking, ok := l.bookings[id]
	if !ok {
		return nil, models.ErrBookingNotFound
	}
	cp := *booking
	return &cp, nil
}

func (l memLedger) ListExpiredPending(_ context.Context, olderThan time.Time, limit int) ([]uuid.UUID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var pending []*models.Booking
	for _, b := range l.bookings {
		if b.Status == models.BookingStatusPending && b.CreatedAt.Before(olderThan) {
			pending = append(pending, b)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	ids := []uuid.UUID{}
	for _, b := range pending {
		if len(ids) == limit {
			break
		}
		ids = append(ids, b.ID)
	}
	return ids, nil
}

func (l memLedger) ListByParent(_ context.Context, parentID uuid.UUID) ([]models.BookingDetails, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []models.BookingDetails{}
	for _, b := range l.bookings {
		if b.ParentID == parentID {
			out = append(out, models.BookingDetails{Booking: *b})
		}
	}
	return out, nil
}

// RecordPayment mirrors the recorder's checks
func (l memLedger) RecordPayment(_ context.Context, in models.RecordPaymentInput) (*models.Payment, *models.Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	booking, ok := l.bookings[in.BookingID]
	if !ok {
		return nil, nil, models.ErrBookingNotFound
	}
	var rejected error
	for _, p := range l.payments {
		if p.BookingID == in.BookingID && p.Status == models.PaymentStatusCompleted {
			rejected = models.ErrAlreadyPaid
		}
	}
	if rejected == nil && booking.Status != models.BookingStatusPending {
		rejected = models.InvalidTransitionf("booking is %s", booking.Status)
	}
	if rejected != nil {
		if !in.Outcome.Success {
			return nil, nil, rejected
		}
		ref := in.Outcome.TransactionRef
		payment := &models.Payment{
			ID:             uuid.New(),
			BookingID:      in.BookingID,
			Amount:         in.Amount,
			Method:         in.Method,
			Phone:          in.Phone,
			Status:         models.PaymentStatusRefundDue,
			TransactionRef: &ref,
		}
		l.payments[payment.ID] = payment
		cp := *booking
		return payment, &cp, rejected
	}
	if in.Amount != booking.Fare {
		return nil, nil, models.ErrAmountMismatch
	}

	payment := &models.Payment{
		ID:        uuid.New(),
		BookingID: in.BookingID,
		Amount:    in.Amount,
		Method:    in.Method,
		Phone:     in.Phone,
		Status:    models.PaymentStatusFailed,
	}
	if in.Outcome.Success {
		payment.Status = models.PaymentStatusCompleted
		ref := in.Outcome.TransactionRef
		payment.TransactionRef = &ref
		if _, err := l.transitionLocked(booking.ID, models.BookingEventPaymentCompleted, ""); err != nil {
			return nil, nil, err
		}
	}
	l.payments[payment.ID] = payment
	cp := *l.bookings[in.BookingID]
	return payment, &cp, nil
}

func (l memLedger) ListByBooking(_ context.Context, bookingID uuid.UUID) ([]models.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []models.Payment{}
	for _, p := range l.payments {
		if p.BookingID == bookingID {
			out = append(out, *p)
		}
	}
	return out, nil
}

// memStudents exposes memStore as a StudentDirectory
type memStudents struct{ *memStore }

func (s memStudents) GetByID(_ context.Context, id uuid.UUID) (*models.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	student, ok := s.students[id]
	if !ok {
		return nil, models.ErrStudentNotFound
	}
	cp := *student
	return &cp, nil
}

// recordingPublisher captures published routing keys
type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

// stubGateway returns a fixed result or error
type stubGateway struct {
	result *mpesa.Result
	err    error
	calls  int
}

func (g *stubGateway) InitiatePayment(context.Context, string, int64, string) (*mpesa.Result, error) {
	g.calls++
	return g.result, g.err
}

// expiringGateway runs during before approving the charge, as if the
// booking expired while the parent was confirming on the handset
type expiringGateway struct {
	during func()
}

func (g *expiringGateway) InitiatePayment(context.Context, string, int64, string) (*mpesa.Result, error) {
	g.during()
	return &mpesa.Result{Success: true, TransactionRef: "TXN17000000005555"}, nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

var errBoom = errors.New("boom")

func newTestBookingService(store *memStore, publisher *recordingPublisher) *BookingService {
	return NewBookingService(
		memTrips{store},
		memLedger{store},
		memStudents{store},
		publisher,
		RetryPolicy{Attempts: 3, Backoff: time.Millisecond},
		quietLogger(),
	)
}

func parentActor(id uuid.UUID) models.Actor {
	return models.Actor{UserID: id, Phone: "254712345678", Role: models.RoleParent}
}
