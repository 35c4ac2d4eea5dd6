package models

// Currency is an ISO 4217 code or a crypto ticker.
type Currency string

const (
	CurrencyINR  Currency = "INR"
	CurrencyUSD  Currency = "USD"
	CurrencyETH  Currency = "ETH"
	CurrencyBTC  Currency = "BTC"
	CurrencyUSDT Currency = "USDT"
)

var cryptoCurrencies = map[Currency]bool{
	CurrencyETH:  true,
	CurrencyBTC:  true,
	CurrencyUSDT: true,
}

func (c Currency) IsCrypto() bool {
	return cryptoCurrencies[c]
}

func (c Currency) Valid() bool {
	switch c {
	case CurrencyINR, CurrencyUSD, CurrencyETH, CurrencyBTC, CurrencyUSDT:
		return true
	}
	return false
}
