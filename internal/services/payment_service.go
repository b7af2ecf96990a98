package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/skulbus/skulbus-backend/internal/models"
	"github.com/skulbus/skulbus-backend/pkg/events"
	"github.com/skulbus/skulbus-backend/pkg/mpesa"
	"github.com/skulbus/skulbus-backend/pkg/validator"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// BookingLookup reads a single booking
type BookingLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
}

// PaymentRecorder persists payment outcomes against bookings
type PaymentRecorder interface {
	RecordPayment(ctx context.Context, in models.RecordPaymentInput) (*models.Payment, *models.Booking, error)
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.Payment, error)
}

// PaymentService charges parents through the gateway and records the outcome
type PaymentService struct {
	bookings  BookingLookup
	recorder  PaymentRecorder
	gateway   mpesa.Gateway
	phones    *validator.PhoneValidator
	publisher events.Publisher
	retry     RetryPolicy
	logger    *logrus.Logger
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(
	bookings BookingLookup,
	recorder PaymentRecorder,
	gateway mpesa.Gateway,
	publisher events.Publisher,
	retry RetryPolicy,
	logger *logrus.Logger,
) *PaymentService {
	return &PaymentService{
		bookings:  bookings,
		recorder:  recorder,
		gateway:   gateway,
		phones:    validator.NewPhoneValidator(),
		publisher: publisher,
		retry:     retry,
		logger:    logger,
	}
}

// Pay charges the booking fare to phone and records the result.
// A declined charge is recorded as a failed payment and returned without error;
// the booking stays pending so the parent can try again. A charge that lands
// after the booking expired or was paid is returned as a refund_due payment
// together with the rejection error.
func (s *PaymentService) Pay(ctx context.Context, actor models.Actor, bookingID uuid.UUID, req models.PayBookingRequest) (payment *models.Payment, err error) {
	ctx, span := tracer.Start(ctx, "PaymentService.Pay", trace.WithAttributes(
		attribute.String("booking.id", bookingID.String()),
	))
	defer func() { endSpan(span, err) }()

	if !actor.IsParent() {
		return nil, models.ErrForbidden
	}

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.ParentID != actor.UserID {
		return nil, models.ErrForbidden
	}

	switch booking.Status {
	case models.BookingStatusPending:
	case models.BookingStatusConfirmed, models.BookingStatusCompleted:
		return nil, models.ErrAlreadyPaid
	default:
		return nil, models.InvalidTransitionf("cannot pay for a %s booking", booking.Status)
	}

	msisdn, err := s.phones.Validate(req.Phone)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	amount := booking.Fare
	if req.Amount != nil && *req.Amount != booking.Fare {
		return nil, models.ErrAmountMismatch
	}

	outcome := models.PaymentOutcome{}
	result, gwErr := s.gateway.InitiatePayment(ctx, msisdn, amount, booking.ID.String())
	if gwErr != nil {
		s.logger.WithError(gwErr).WithField("booking_id", bookingID).Warn("Payment gateway error, recording as failed")
		outcome.Message = gwErr.Error()
	} else {
		outcome = models.PaymentOutcome{
			Success:        result.Success,
			TransactionRef: result.TransactionRef,
			Message:        result.Message,
		}
	}

	in := models.RecordPaymentInput{
		BookingID: bookingID,
		Amount:    amount,
		Method:    models.PaymentMethodMpesa,
		Phone:     msisdn,
		Outcome:   outcome,
	}
	payment, updated, err := s.RecordPayment(ctx, in)
	if err != nil {
		if payment != nil && payment.Status == models.PaymentStatusRefundDue {
			s.logger.WithFields(logrus.Fields{
				"booking_id": bookingID,
				"payment_id": payment.ID,
			}).WithError(err).Warn("Charge landed after booking settled, refund due")
			s.publish(ctx, events.PaymentRefundDue, payment)
			return payment, err
		}
		return nil, err
	}

	entry := s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"payment_id": payment.ID,
		"status":     payment.Status,
	})
	if payment.Status == models.PaymentStatusCompleted {
		entry.Info("Payment completed")
		s.publish(ctx, events.PaymentCompleted, payment)
		s.publish(ctx, events.BookingConfirmed, updated)
	} else {
		entry.Warn("Payment failed")
		s.publish(ctx, events.PaymentFailed, payment)
	}

	return payment, nil
}

// RecordPayment stores a gateway outcome, retrying transient database failures
func (s *PaymentService) RecordPayment(ctx context.Context, in models.RecordPaymentInput) (*models.Payment, *models.Booking, error) {
	type recorded struct {
		payment *models.Payment
		booking *models.Booking
	}
	r, err := withRetry(ctx, s.retry, s.logger, "record_payment", func() (recorded, error) {
		p, b, err := s.recorder.RecordPayment(ctx, in)
		return recorded{payment: p, booking: b}, err
	})
	if err != nil {
		if r.payment != nil {
			return r.payment, r.booking, err
		}
		return nil, nil, err
	}
	return r.payment, r.booking, nil
}

// ListPayments returns every payment attempt on a booking visible to actor,
// refund_due rows included
func (s *PaymentService) ListPayments(ctx context.Context, actor models.Actor, bookingID uuid.UUID) ([]models.Payment, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !canAccessBooking(actor, booking) {
		return nil, models.ErrForbidden
	}
	return s.recorder.ListByBooking(ctx, bookingID)
}

func (s *PaymentService) publish(ctx context.Context, routingKey string, data interface{}) {
	publishEvent(ctx, s.publisher, s.logger, routingKey, data)
}
