package chain

import (
	"math/big"

	"github.com/shopspring/decimal"

	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

// USDCDecimals is the decimal count of USDC on every supported network.
const USDCDecimals = 6

// ToTokenUnits scales a display amount to the token's smallest unit.
// The amount is rounded half-up to the token's precision first, so 103.0000004
// with 6 decimals becomes 103000000.
func ToTokenUnits(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	if amount.IsNegative() {
		return nil, paycarterr.WithDetails(paycarterr.ErrInvalidAmount, map[string]string{
			"amount": amount.String(),
		})
	}
	return amount.Round(decimals).Shift(decimals).BigInt(), nil
}

// FromTokenUnits converts a smallest-unit amount back to a display amount.
func FromTokenUnits(units *big.Int, decimals int32) decimal.Decimal {
	if units == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(units, -decimals)
}

// ParseTokenAmount parses a user-entered amount such as "12.5" into smallest
// units. Digits beyond the token precision are rejected rather than rounded.
func ParseTokenAmount(amount string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil || d.IsNegative() {
		return nil, paycarterr.WithDetails(paycarterr.ErrInvalidAmount, map[string]string{"amount": amount})
	}
	if !d.Equal(d.Truncate(decimals)) {
		return nil, paycarterr.WithDetails(paycarterr.ErrInvalidAmount, map[string]string{
			"amount":    amount,
			"precision": decimal.NewFromInt32(decimals).String(),
		})
	}
	return d.Shift(decimals).BigInt(), nil
}

// FormatTokenUnits renders smallest units with exactly decimals places.
func FormatTokenUnits(units *big.Int, decimals int32) string {
	return FromTokenUnits(units, decimals).StringFixed(decimals)
}
