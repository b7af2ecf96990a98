package mpesa

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// SimulatedGateway approves every charge except those to configured numbers.
// References look like the ones M-Pesa receipts carry in development: TXN<unix><4 digits>.
type SimulatedGateway struct {
	failNumbers map[string]struct{}
	delay       time.Duration
	now         func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedGateway creates a simulator that declines the given MSISDNs
func NewSimulatedGateway(failNumbers []string, delay time.Duration) *SimulatedGateway {
	fail := make(map[string]struct{}, len(failNumbers))
	for _, n := range failNumbers {
		fail[n] = struct{}{}
	}
	return &SimulatedGateway{
		failNumbers: fail,
		delay:       delay,
		now:         time.Now,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// InitiatePayment simulates an STK push
func (g *SimulatedGateway) InitiatePayment(ctx context.Context, msisdn string, amount int64, reference string) (*Result, error) {
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if amount <= 0 {
		return &Result{Success: false, Message: "invalid amount"}, nil
	}

	if _, fail := g.failNumbers[msisdn]; fail {
		return &Result{Success: false, Message: "the subscriber cancelled the request"}, nil
	}

	g.mu.Lock()
	suffix := 1000 + g.rng.Intn(9000)
	g.mu.Unlock()

	return &Result{
		Success:        true,
		TransactionRef: fmt.Sprintf("TXN%d%d", g.now().Unix(), suffix),
		Message:        fmt.Sprintf("KES %d paid for %s", amount, reference),
	}, nil
}
