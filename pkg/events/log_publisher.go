package events

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogPublisher writes events to the log; used when no broker is configured
type LogPublisher struct {
	logger *logrus.Logger
}

// NewLogPublisher creates a publisher that only logs
func NewLogPublisher(logger *logrus.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs the event at info level
func (p *LogPublisher) Publish(ctx context.Context, routingKey string, data interface{}) error {
	envelope := newEnvelope(routingKey, data)
	p.logger.WithFields(logrus.Fields{
		"event":       envelope.Event,
		"occurred_at": envelope.OccurredAt,
		"data":        envelope.Data,
	}).Info("Domain event")
	return nil
}

// Close is a no-op
func (p *LogPublisher) Close() error {
	return nil
}
