package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxAmountScale is the number of decimal places the ledger stores.
const MaxAmountScale = 8

// PaymentRequest is the inbound wire form of a payment.
type PaymentRequest struct {
	Amount          decimal.Decimal  `json:"amount" validate:"required,gt=0,lte=10000000"`
	Currency        string           `json:"currency" validate:"required,oneof=INR USD ETH BTC USDT"`
	FromWalletID    string           `json:"fromWalletId" validate:"required,uuid"`
	ToWalletID      string           `json:"toWalletId,omitempty" validate:"omitempty,uuid"`
	RecipientUPI    string           `json:"recipientUpi,omitempty" validate:"omitempty,max=100"`
	RecipientName   string           `json:"recipientName,omitempty" validate:"omitempty,max=100"`
	TransactionType string           `json:"transactionType" validate:"required,oneof=send receive exchange"`
	CryptoAmount    *decimal.Decimal `json:"cryptoAmount,omitempty" validate:"omitempty,gt=0,lte=1000000"`
	CryptoCurrency  string           `json:"cryptoCurrency,omitempty" validate:"omitempty,oneof=ETH BTC USDT"`
}

// Payment is a validated payment ready for processing.
type Payment struct {
	Amount         decimal.Decimal
	Currency       Currency
	FromWalletID   uuid.UUID
	ToWalletID     *uuid.UUID
	RecipientUPI   *string
	RecipientName  *string
	Kind           Kind
	CryptoAmount   decimal.NullDecimal
	CryptoCurrency *Currency
}

// FieldError names the request field a conversion failed on.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Payment converts a request that already passed tag validation.
func (r PaymentRequest) Payment() (Payment, error) {
	if r.Amount.Exponent() < -MaxAmountScale {
		return Payment{}, &FieldError{Field: "amount", Message: fmt.Sprintf("at most %d decimal places", MaxAmountScale)}
	}

	from, err := uuid.Parse(r.FromWalletID)
	if err != nil {
		return Payment{}, &FieldError{Field: "fromWalletId", Message: "must be a UUID"}
	}

	p := Payment{
		Amount:        r.Amount,
		Currency:      Currency(r.Currency),
		FromWalletID:  from,
		Kind:          Kind(r.TransactionType),
		RecipientUPI:  optional(r.RecipientUPI),
		RecipientName: optional(r.RecipientName),
	}

	if r.ToWalletID != "" {
		to, err := uuid.Parse(r.ToWalletID)
		if err != nil {
			return Payment{}, &FieldError{Field: "toWalletId", Message: "must be a UUID"}
		}
		p.ToWalletID = &to
	}

	if r.CryptoAmount != nil {
		if r.CryptoAmount.Exponent() < -MaxAmountScale {
			return Payment{}, &FieldError{Field: "cryptoAmount", Message: fmt.Sprintf("at most %d decimal places", MaxAmountScale)}
		}
		p.CryptoAmount = decimal.NewNullDecimal(*r.CryptoAmount)
	}
	if r.CryptoCurrency != "" {
		c := Currency(r.CryptoCurrency)
		p.CryptoCurrency = &c
	}

	return p, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
