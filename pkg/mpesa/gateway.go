// Package mpesa charges parents through M-Pesa STK push, or a simulator in development.
package mpesa

import (
	"context"
)

// Result is what the gateway reports for a single charge
type Result struct {
	Success        bool
	TransactionRef string
	Message        string
}

// Gateway charges a phone number a whole-shilling amount.
// A declined charge is a Result with Success false, not an error;
// errors mean the outcome is unknown.
type Gateway interface {
	InitiatePayment(ctx context.Context, msisdn string, amount int64, reference string) (*Result, error)
}
