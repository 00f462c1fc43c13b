package pricing_test

import (
	"math/big"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/paycart/internal/pricing"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCompute_Example(t *testing.T) {
	t.Parallel()
	totals := pricing.Compute(
		[]pricing.Item{{UnitPrice: dec("1000"), Quantity: 2}},
		&pricing.ExchangeRate{Value: dec("20")},
	)

	assert.True(t, dec("2000").Equal(totals.SubtotalBase))
	assert.True(t, dec("60").Equal(totals.FeeBase))
	assert.True(t, dec("2060").Equal(totals.TotalBase))
	assert.True(t, dec("100").Equal(totals.SubtotalQuote))
	assert.True(t, dec("3").Equal(totals.FeeQuote))
	assert.True(t, dec("103").Equal(totals.TotalQuote))
	assert.True(t, totals.Converted)

	units, err := totals.QuoteUnits(6)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(103_000_000), units)
}

func TestCompute_RateFallback(t *testing.T) {
	t.Parallel()
	items := []pricing.Item{{UnitPrice: dec("10.50"), Quantity: 3}}

	for name, rate := range map[string]*pricing.ExchangeRate{
		"missing":  nil,
		"zero":     {Value: decimal.Zero},
		"negative": {Value: dec("-5")},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			totals := pricing.Compute(items, rate)
			assert.False(t, totals.Converted)
			assert.True(t, totals.TotalBase.Equal(totals.TotalQuote))
			assert.True(t, dec("32.445").Equal(totals.TotalBase))
		})
	}
}

func TestCompute_EmptyCart(t *testing.T) {
	t.Parallel()
	totals := pricing.Compute(nil, &pricing.ExchangeRate{Value: dec("17.2")})
	assert.True(t, totals.IsZero())
	assert.True(t, totals.SubtotalQuote.IsZero())
	assert.True(t, totals.FeeQuote.IsZero())
	assert.True(t, totals.TotalQuote.IsZero())
}

func TestCompute_IgnoresNonPositiveQuantity(t *testing.T) {
	t.Parallel()
	totals := pricing.Compute([]pricing.Item{
		{UnitPrice: dec("5"), Quantity: 0},
		{UnitPrice: dec("5"), Quantity: -2},
		{UnitPrice: dec("5"), Quantity: 1},
	}, nil)
	assert.True(t, dec("5").Equal(totals.SubtotalBase))
}

func TestConverter_CustomFee(t *testing.T) {
	t.Parallel()
	totals := pricing.NewConverter(0.1).Compute([]pricing.Item{{UnitPrice: dec("100"), Quantity: 1}}, nil)
	assert.True(t, dec("10").Equal(totals.FeeBase))
	assert.True(t, dec("110").Equal(totals.TotalBase))
}

func TestQuoteUnits_RoundsToTokenPrecision(t *testing.T) {
	t.Parallel()
	totals := pricing.Compute([]pricing.Item{{UnitPrice: dec("100"), Quantity: 1}}, &pricing.ExchangeRate{Value: dec("3")})
	units, err := totals.QuoteUnits(6)
	require.NoError(t, err)
	// 103 / 3 = 34.3333333...
	assert.Equal(t, big.NewInt(34_333_333), units)
}

func TestLine(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "2060.00 MXN (103.00 USDC)", pricing.Line(dec("2060"), dec("103"), "MXN", "USDC"))
}

func TestCompute_Properties(t *testing.T) {
	t.Parallel()
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	tolerance := dec("0.000001")

	properties.Property("total is subtotal times 1.03 and quote is base over rate", prop.ForAll(
		func(prices []int64, qty int, rateCents int64) bool {
			items := make([]pricing.Item, len(prices))
			for i, p := range prices {
				items[i] = pricing.Item{UnitPrice: decimal.New(p, -2), Quantity: qty}
			}
			rate := &pricing.ExchangeRate{Value: decimal.New(rateCents, -2)}
			totals := pricing.Compute(items, rate)

			if !totals.TotalBase.Equal(totals.SubtotalBase.Mul(dec("1.03"))) {
				return false
			}
			diff := totals.TotalQuote.Sub(totals.TotalBase.Div(rate.Value)).Abs()
			return diff.LessThanOrEqual(tolerance)
		},
		gen.SliceOf(gen.Int64Range(1, 10_000_000)),
		gen.IntRange(1, 50),
		gen.Int64Range(1, 100_000),
	))

	properties.Property("compute is deterministic", prop.ForAll(
		func(price int64, qty int) bool {
			items := []pricing.Item{{UnitPrice: decimal.New(price, -2), Quantity: qty}}
			a := pricing.Compute(items, nil)
			b := pricing.Compute(items, nil)
			return a.TotalQuote.Equal(b.TotalQuote) && a.FeeBase.Equal(b.FeeBase)
		},
		gen.Int64Range(0, 1_000_000),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}
