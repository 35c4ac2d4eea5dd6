package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentRequestConversion(t *testing.T) {
	from := uuid.New()
	to := uuid.New()
	crypto := decimal.RequireFromString("0.0025")

	req := PaymentRequest{
		Amount:          decimal.RequireFromString("612.50"),
		Currency:        "INR",
		FromWalletID:    from.String(),
		ToWalletID:      to.String(),
		RecipientUPI:    " merchant@upi ",
		TransactionType: "exchange",
		CryptoAmount:    &crypto,
		CryptoCurrency:  "ETH",
	}

	p, err := req.Payment()
	require.NoError(t, err)

	assert.Equal(t, from, p.FromWalletID)
	require.NotNil(t, p.ToWalletID)
	assert.Equal(t, to, *p.ToWalletID)
	assert.Equal(t, KindExchange, p.Kind)
	assert.Equal(t, CurrencyINR, p.Currency)
	require.NotNil(t, p.RecipientUPI)
	assert.Equal(t, "merchant@upi", *p.RecipientUPI)
	assert.Nil(t, p.RecipientName)
	assert.True(t, p.CryptoAmount.Valid)
	assert.True(t, crypto.Equal(p.CryptoAmount.Decimal))
	require.NotNil(t, p.CryptoCurrency)
	assert.True(t, p.CryptoCurrency.IsCrypto())
}

func TestPaymentRequestConversionErrors(t *testing.T) {
	base := func() PaymentRequest {
		return PaymentRequest{
			Amount:          decimal.NewFromInt(10),
			Currency:        "INR",
			FromWalletID:    uuid.NewString(),
			TransactionType: "send",
		}
	}

	tooPrecise := base()
	tooPrecise.Amount = decimal.RequireFromString("1.123456789")

	badFrom := base()
	badFrom.FromWalletID = "wallet-1"

	badTo := base()
	badTo.ToWalletID = "nope"

	for name, tc := range map[string]struct {
		req   PaymentRequest
		field string
	}{
		"amount scale": {tooPrecise, "amount"},
		"from wallet":  {badFrom, "fromWalletId"},
		"to wallet":    {badTo, "toWalletId"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := tc.req.Payment()
			var fe *FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tc.field, fe.Field)
		})
	}
}
