// Package events publishes booking and payment domain events.
package events

import (
	"context"
	"time"
)

// Routing keys published on the topic exchange
const (
	BookingCreated   = "booking.created"
	BookingConfirmed = "booking.confirmed"
	BookingCancelled = "booking.cancelled"
	BookingCompleted = "booking.completed"
	PaymentCompleted = "payment.completed"
	PaymentFailed    = "payment.failed"
	PaymentRefundDue = "payment.refund_due"
	TripCancelled    = "trip.cancelled"
	TripCompleted    = "trip.completed"
)

// Envelope wraps every payload with its routing key and emission time
type Envelope struct {
	Event      string      `json:"event"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

// Publisher delivers events to downstream consumers such as notifications
type Publisher interface {
	Publish(ctx context.Context, routingKey string, data interface{}) error
	Close() error
}

func newEnvelope(routingKey string, data interface{}) Envelope {
	return Envelope{Event: routingKey, OccurredAt: time.Now().UTC(), Data: data}
}
