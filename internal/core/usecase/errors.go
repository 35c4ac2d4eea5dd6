package usecase

import (
	"errors"
	"fmt"
	"time"
)

// Caller-facing outcomes. Handlers map these to status codes; anything that
// wraps none of them is an internal error.
var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrWalletNotFound        = errors.New("wallet not found")
	ErrWalletLocked          = errors.New("wallet is locked by another transaction")
	ErrTransactionNotFound   = errors.New("transaction not found")
	ErrInternal              = errors.New("internal error")
	ErrCriticalInconsistency = errors.New("critical inconsistency: funds deducted without a completed transaction")
	ErrRequestTimeout        = errors.New("request timed out")
	ErrGatewayRateLimited    = errors.New("ai gateway rate limited")
	ErrGatewayPayment        = errors.New("ai gateway requires payment")
	ErrGatewayUnavailable    = errors.New("ai gateway error")
)

type Step string

const (
	StepCreate          Step = "create"
	StepValidateBalance Step = "validate_balance"
	StepDeduct          Step = "deduct"
	StepConfirm         Step = "confirm"
	StepFinalize        Step = "finalize"
)

// StepError records which payment step failed. Err is the caller-facing
// outcome and Cause the underlying failure, kept for logs only.
type StepError struct {
	Step          Step
	TransactionID string
	Err           error
	Cause         error
}

func (e *StepError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("payment %s: step %s: %v", e.TransactionID, e.Step, e.Err)
	}
	return fmt.Sprintf("payment %s: step %s: %v: %v", e.TransactionID, e.Step, e.Err, e.Cause)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// MayHaveDebited reports whether err leaves the wallet possibly debited, so
// repeating the same payment could charge it twice.
func MayHaveDebited(err error) bool {
	if errors.Is(err, ErrCriticalInconsistency) {
		return true
	}
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		return false
	}
	return stepErr.Step == StepDeduct && errors.Is(err, ErrInternal) && isCancellation(stepErr.Cause)
}

// RateLimitError is returned when an identity has used its daily allowance.
type RateLimitError struct {
	Scope   Scope
	Limit   int
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s usage limit of %d reached, resets at %s", e.Scope, e.Limit, e.ResetAt.Format(time.RFC3339))
}
