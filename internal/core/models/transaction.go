package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.jetify.com/typeid/v2"
)

type Kind string

const (
	KindSend     Kind = "send"
	KindReceive  Kind = "receive"
	KindExchange Kind = "exchange"
)

// Debits reports whether the kind moves money out of the source wallet.
func (k Kind) Debits() bool {
	return k == KindSend
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

const transactionIDPrefix = "txn"

// FeeRate is the flat 0.1% processing fee.
var FeeRate = decimal.New(1, -3)

// BalanceScale is the number of decimal places a wallet balance keeps. It
// holds amount plus fee for any amount at MaxAmountScale.
const BalanceScale = MaxAmountScale + 3

var ErrTransactionTerminal = errors.New("transaction is in a terminal state")

// Transaction is one money-movement attempt. Its status only moves
// pending -> completed or pending -> failed.
type Transaction struct {
	ID             string              `json:"id" db:"id"`
	UserID         uuid.UUID           `json:"user_id" db:"user_id"`
	FromWalletID   uuid.UUID           `json:"from_wallet_id" db:"from_wallet_id"`
	ToWalletID     *uuid.UUID          `json:"to_wallet_id,omitempty" db:"to_wallet_id"`
	Kind           Kind                `json:"transaction_type" db:"transaction_type"`
	Amount         decimal.Decimal     `json:"amount" db:"amount"`
	Currency       Currency            `json:"currency" db:"currency"`
	CryptoAmount   decimal.NullDecimal `json:"crypto_amount" db:"crypto_amount"`
	CryptoCurrency *Currency           `json:"crypto_currency,omitempty" db:"crypto_currency"`
	RecipientName  *string             `json:"recipient_name,omitempty" db:"recipient_name"`
	RecipientUPI   *string             `json:"recipient_upi,omitempty" db:"recipient_upi"`
	Fee            decimal.Decimal     `json:"fee" db:"fee"`
	Status         Status              `json:"status" db:"status"`
	FailureReason  *string             `json:"-" db:"failure_reason"`
	CreatedAt      time.Time           `json:"created_at" db:"created_at"`
	CompletedAt    *time.Time          `json:"completed_at,omitempty" db:"completed_at"`
}

// Fee returns the processing fee for amount.
func Fee(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(FeeRate)
}

// NewTransactionID returns a K-sortable id of the form txn_<suffix>.
func NewTransactionID() (string, error) {
	tid, err := typeid.Generate(transactionIDPrefix)
	if err != nil {
		return "", fmt.Errorf("generate transaction id: %w", err)
	}
	return tid.String(), nil
}

// NewTransaction builds a pending transaction for p with its fee fixed.
func NewTransaction(owner uuid.UUID, p Payment, now time.Time) (*Transaction, error) {
	id, err := NewTransactionID()
	if err != nil {
		return nil, err
	}

	return &Transaction{
		ID:             id,
		UserID:         owner,
		FromWalletID:   p.FromWalletID,
		ToWalletID:     p.ToWalletID,
		Kind:           p.Kind,
		Amount:         p.Amount,
		Currency:       p.Currency,
		CryptoAmount:   p.CryptoAmount,
		CryptoCurrency: p.CryptoCurrency,
		RecipientName:  p.RecipientName,
		RecipientUPI:   p.RecipientUPI,
		Fee:            Fee(p.Amount),
		Status:         StatusPending,
		CreatedAt:      now.UTC(),
	}, nil
}

// Total is the amount debited from the source wallet for a send.
func (t *Transaction) Total() decimal.Decimal {
	return t.Amount.Add(t.Fee)
}

func (t *Transaction) Complete(at time.Time) error {
	if t.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrTransactionTerminal, t.Status)
	}
	at = at.UTC()
	t.Status = StatusCompleted
	t.CompletedAt = &at
	return nil
}

func (t *Transaction) Fail(reason string) error {
	if t.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrTransactionTerminal, t.Status)
	}
	t.Status = StatusFailed
	t.FailureReason = &reason
	return nil
}

// Reason returns the recorded failure reason or an empty string.
func (t *Transaction) Reason() string {
	if t.FailureReason == nil {
		return ""
	}
	return *t.FailureReason
}
