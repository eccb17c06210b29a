// Package core holds the domain records, the currency normalizer and the
// pure derived-state aggregation over the record collections.
package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Currency is the tag carried on every money-bearing record. The crypto
// tags are accepted as valid record values but have no conversion rule;
// the normalizer rejects them loudly instead of letting them flow into
// arithmetic.
type Currency string

const (
	EUR Currency = "EUR"
	NOK Currency = "NOK"
	BTC Currency = "BTC"
	ETH Currency = "ETH"
	SOL Currency = "SOL"

	// ReportingCurrency is the single currency every amount is normalized
	// to before arithmetic combination.
	ReportingCurrency = EUR
)

var (
	ErrInvalidCurrency     = errors.New("invalid currency")
	ErrUnsupportedCurrency = errors.New("no conversion rule for currency")
	ErrInvalidExchangeRate = errors.New("exchange rate must be positive")
)

func (c Currency) Valid() bool {
	switch c {
	case EUR, NOK, BTC, ETH, SOL:
		return true
	}
	return false
}

// Normalizer converts amounts to the reporting currency using a fixed
// EUR/NOK rate injected from configuration. It is pure: no I/O, and no
// rounding mid-calculation; callers round at display boundaries only.
type Normalizer struct {
	eurNokRate decimal.Decimal // NOK per EUR
}

func NewNormalizer(eurNokRate decimal.Decimal) (Normalizer, error) {
	if !eurNokRate.IsPositive() {
		return Normalizer{}, ErrInvalidExchangeRate
	}
	return Normalizer{eurNokRate: eurNokRate}, nil
}

// Rate returns the configured NOK-per-EUR rate.
func (n Normalizer) Rate() decimal.Decimal {
	return n.eurNokRate
}

// ToReporting converts an amount to the reporting currency. An empty
// currency tag defaults to the reporting currency, matching the
// malformed-optional-field rule of the aggregator. Crypto and unknown
// tags return ErrUnsupportedCurrency.
func (n Normalizer) ToReporting(amount decimal.Decimal, currency Currency) (decimal.Decimal, error) {
	switch currency {
	case "", ReportingCurrency:
		return amount, nil
	case NOK:
		return amount.Div(n.eurNokRate), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, currency)
	}
}
