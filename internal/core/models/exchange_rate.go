package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ExchangeRate struct {
	FromCurrency Currency        `json:"from_currency" db:"from_currency"`
	ToCurrency   Currency        `json:"to_currency" db:"to_currency"`
	Rate         decimal.Decimal `json:"rate" db:"rate"`
	LastUpdated  time.Time       `json:"last_updated" db:"last_updated"`
}
