// Package currency converts monetary amounts between the shop's two
// accounting currencies, Uzbek sum and US dollar. The exchange rate is
// always expressed as sum per one dollar.
package currency

import (
	"errors"

	"github.com/shopspring/decimal"

	"dokon/backend/internal/domain"
)

var ErrInvalidRate = errors.New("exchange rate must be positive")

// DefaultRate is used until an admin sets a rate.
var DefaultRate = decimal.NewFromInt(12650)

// usdScale: dollars are kept at cent precision; sum stays exact.
const usdScale = 2

func IsValid(code string) bool {
	return code == domain.CurrencySum || code == domain.CurrencyUSD
}

// Convert converts amount from one currency to the other at the given
// sum-per-dollar rate. Same-currency conversion returns the amount
// unchanged regardless of rate. Conversions into dollars round half-up to
// cents; conversions into sum are not rounded.
func Convert(amount decimal.Decimal, from, to string, rate decimal.Decimal) (decimal.Decimal, error) {
	if !IsValid(from) || !IsValid(to) {
		return decimal.Zero, errors.New("unknown currency code")
	}
	if from == to {
		return amount, nil
	}
	if rate.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrInvalidRate
	}
	if to == domain.CurrencyUSD {
		return amount.DivRound(rate, usdScale), nil
	}
	return amount.Mul(rate), nil
}

// USDEquivalent reports the dollar value of an amount, used for the
// usd_equivalent field on payment log entries.
func USDEquivalent(amount decimal.Decimal, from string, rate decimal.Decimal) (decimal.Decimal, error) {
	return Convert(amount, from, domain.CurrencyUSD, rate)
}
