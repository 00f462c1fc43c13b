package checkout

import (
	"github.com/shopspring/decimal"

	"github.com/mrz1836/paycart/internal/lending"
	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

// Strategy decides where the payment funds come from.
type Strategy interface {
	Name() string
	// check runs before any network call.
	check(total decimal.Decimal) error
}

// DirectPayment pays from the wallet's token balance.
type DirectPayment struct{}

// Name implements Strategy.
func (DirectPayment) Name() string { return "direct" }

func (DirectPayment) check(decimal.Decimal) error { return nil }

// BorrowThenPay borrows the order total from the lending market first.
// Capacity is the figure the user was shown when choosing this option.
type BorrowThenPay struct {
	Capacity *lending.Capacity
}

// Name implements Strategy.
func (BorrowThenPay) Name() string { return "borrow_then_pay" }

func (s BorrowThenPay) check(total decimal.Decimal) error {
	if s.Capacity.CanCover(total) {
		return nil
	}
	details := map[string]string{"total": total.String()}
	if s.Capacity != nil {
		details["max_borrow"] = s.Capacity.MaxBorrow.String()
	}
	return paycarterr.WithDetails(paycarterr.ErrBorrowCapacityInsufficient, details)
}

// BorrowAvailable reports whether the borrow-then-pay option may be
// offered for total.
func BorrowAvailable(c *lending.Capacity, total decimal.Decimal) bool {
	return c.CanCover(total)
}
