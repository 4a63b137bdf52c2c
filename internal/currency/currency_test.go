package currency

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"dokon/backend/internal/domain"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestConvertSumToUSDRoundsToCents(t *testing.T) {
	rate := dec("12650")

	got, err := Convert(dec("126500"), domain.CurrencySum, domain.CurrencyUSD, rate)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if !got.Equal(dec("10")) {
		t.Fatalf("expected 10 usd, got %s", got)
	}

	got, err = Convert(dec("100"), domain.CurrencySum, domain.CurrencyUSD, rate)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if !got.Equal(dec("0.01")) {
		t.Fatalf("expected 0.01 usd, got %s", got)
	}
}

func TestConvertUSDToSumIsExact(t *testing.T) {
	got, err := Convert(dec("10.50"), domain.CurrencyUSD, domain.CurrencySum, dec("12650"))
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if !got.Equal(dec("132825")) {
		t.Fatalf("expected 132825 sum, got %s", got)
	}
}

func TestConvertSameCurrencyIgnoresRate(t *testing.T) {
	got, err := Convert(dec("500"), domain.CurrencySum, domain.CurrencySum, decimal.Zero)
	if err != nil {
		t.Fatalf("same-currency convert should not need a rate: %v", err)
	}
	if !got.Equal(dec("500")) {
		t.Fatalf("expected amount unchanged, got %s", got)
	}
}

func TestConvertRejectsNonPositiveRate(t *testing.T) {
	if _, err := Convert(dec("100"), domain.CurrencySum, domain.CurrencyUSD, decimal.Zero); !errors.Is(err, ErrInvalidRate) {
		t.Fatalf("expected ErrInvalidRate for zero rate, got %v", err)
	}
	if _, err := Convert(dec("100"), domain.CurrencyUSD, domain.CurrencySum, dec("-1")); !errors.Is(err, ErrInvalidRate) {
		t.Fatalf("expected ErrInvalidRate for negative rate, got %v", err)
	}
}

func TestConvertRejectsUnknownCurrency(t *testing.T) {
	if _, err := Convert(dec("100"), "eur", domain.CurrencySum, dec("12650")); err == nil {
		t.Fatalf("expected error for unknown source currency")
	}
	if _, err := Convert(dec("100"), domain.CurrencySum, "rub", dec("12650")); err == nil {
		t.Fatalf("expected error for unknown target currency")
	}
}

func TestUSDEquivalent(t *testing.T) {
	got, err := USDEquivalent(dec("25300"), domain.CurrencySum, dec("12650"))
	if err != nil {
		t.Fatalf("usd equivalent: %v", err)
	}
	if !got.Equal(dec("2")) {
		t.Fatalf("expected 2 usd, got %s", got)
	}

	got, err = USDEquivalent(dec("7.25"), domain.CurrencyUSD, dec("12650"))
	if err != nil {
		t.Fatalf("usd equivalent: %v", err)
	}
	if !got.Equal(dec("7.25")) {
		t.Fatalf("expected usd amount unchanged, got %s", got)
	}
}
