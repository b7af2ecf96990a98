package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/skulbus/skulbus-backend/internal/models"
)

// RetryPolicy bounds how often a transient database failure is retried
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// withRetry runs fn until it succeeds, fails with a non-transient error, or
// policy.Attempts is used up. The wait doubles after every failed attempt.
func withRetry[T any](ctx context.Context, policy RetryPolicy, logger *logrus.Logger, op string, fn func() (T, error)) (T, error) {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	wait := policy.Backoff

	var result T
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err = fn()
		if err == nil || !models.IsTransient(err) || attempt == attempts {
			return result, err
		}

		logger.WithFields(logrus.Fields{
			"operation": op,
			"attempt":   attempt,
			"error":     err.Error(),
		}).Warn("Transient failure, retrying")

		select {
		case <-ctx.Done():
			return result, err
		case <-time.After(wait):
		}
		wait *= 2
	}
	return result, err
}
