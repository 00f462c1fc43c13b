// Package pricing computes checkout totals in the shop's base currency and
// in the payment token's quote currency.
package pricing

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/mrz1836/paycart/internal/chain"
)

// DefaultFeeRate is the service fee applied to the subtotal.
const DefaultFeeRate = 0.03

// Item is one cart line.
type Item struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// ExchangeRate is the number of base-currency units per quote unit.
type ExchangeRate struct {
	Value    decimal.Decimal
	Date     string
	SeriesID string
}

// Totals are the derived amounts shown at checkout.
type Totals struct {
	SubtotalBase  decimal.Decimal `json:"subtotal_base"`
	FeeBase       decimal.Decimal `json:"fee_base"`
	TotalBase     decimal.Decimal `json:"total_base"`
	SubtotalQuote decimal.Decimal `json:"subtotal_quote"`
	FeeQuote      decimal.Decimal `json:"fee_quote"`
	TotalQuote    decimal.Decimal `json:"total_quote"`
	// Converted is false when no usable rate was available and the quote
	// amounts equal the base amounts.
	Converted bool `json:"converted"`
}

// Converter computes totals with a fixed fee rate.
type Converter struct {
	FeeRate decimal.Decimal
}

// NewConverter returns a converter for feeRate, e.g. 0.03 for 3%.
func NewConverter(feeRate float64) Converter {
	return Converter{FeeRate: decimal.NewFromFloat(feeRate)}
}

// Compute applies DefaultFeeRate.
func Compute(items []Item, rate *ExchangeRate) Totals {
	return NewConverter(DefaultFeeRate).Compute(items, rate)
}

// Compute sums the items, adds the fee and converts by dividing by the
// rate. A missing, zero or negative rate converts at 1.
func (c Converter) Compute(items []Item, rate *ExchangeRate) Totals {
	subtotal := decimal.Zero
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	fee := subtotal.Mul(c.FeeRate)
	total := subtotal.Add(fee)

	factor, converted := decimal.NewFromInt(1), false
	if rate != nil && rate.Value.IsPositive() {
		factor, converted = rate.Value, true
	}

	return Totals{
		SubtotalBase:  subtotal,
		FeeBase:       fee,
		TotalBase:     total,
		SubtotalQuote: subtotal.Div(factor),
		FeeQuote:      fee.Div(factor),
		TotalQuote:    total.Div(factor),
		Converted:     converted,
	}
}

// IsZero reports whether there is nothing to pay.
func (t Totals) IsZero() bool {
	return t.TotalBase.IsZero()
}

// QuoteUnits returns TotalQuote in the token's smallest unit.
func (t Totals) QuoteUnits(decimals int32) (*big.Int, error) {
	return chain.ToTokenUnits(t.TotalQuote, decimals)
}

// Line formats a base/quote pair for display, e.g. "2060.00 MXN (103.00 USDC)".
func Line(base, quote decimal.Decimal, baseSymbol, quoteSymbol string) string {
	return base.StringFixed(2) + " " + baseSymbol + " (" + quote.StringFixed(2) + " " + quoteSymbol + ")"
}
