package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/Nzyazin/paychain/internal/core/models"
)

// Settler confirms a payment with the external rail.
type Settler interface {
	Settle(ctx context.Context, txn models.Transaction) error
}

// SimulatedSettler stands in for blockchain or UPI confirmation by waiting
// Delay.
type SimulatedSettler struct {
	Delay time.Duration
}

func (s SimulatedSettler) Settle(ctx context.Context, txn models.Transaction) error {
	if s.Delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(s.Delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("settle %s: %w", txn.ID, ctx.Err())
	}
}
