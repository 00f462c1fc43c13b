package checkout

import (
	"strings"

	"github.com/mrz1836/paycart/internal/backend"
	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

// Shipping is the delivery form.
type Shipping struct {
	FullName             string `json:"full_name"`
	Street               string `json:"street"`
	PostalCode           string `json:"postal_code"`
	Phone                string `json:"phone"`
	DeliveryInstructions string `json:"delivery_instructions,omitempty"`
}

// Draft is everything the user supplied for one checkout.
type Draft struct {
	UserID   string
	Cart     *backend.Cart
	Rate     *backend.ExchangeRate
	Shipping Shipping
}

// Validate checks the form and the cart. Delivery instructions are
// optional; every other field is required.
func (d *Draft) Validate() error {
	var missing []string
	if strings.TrimSpace(d.UserID) == "" {
		missing = append(missing, "user_id")
	}
	for _, f := range []struct{ name, value string }{
		{"full_name", d.Shipping.FullName},
		{"street", d.Shipping.Street},
		{"postal_code", d.Shipping.PostalCode},
		{"phone", d.Shipping.Phone},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return paycarterr.WithDetails(paycarterr.ErrFormIncomplete, map[string]string{
			"missing": strings.Join(missing, ","),
		})
	}
	if len(payableItems(d.Cart)) == 0 {
		return paycarterr.ErrEmptyCart
	}
	return nil
}

// payableItems drops lines with a non-positive quantity.
func payableItems(c *backend.Cart) []backend.CartItem {
	if c.IsEmpty() {
		return nil
	}
	out := make([]backend.CartItem, 0, len(c.Items))
	for _, it := range c.Items {
		if it.Quantity > 0 {
			out = append(out, it)
		}
	}
	return out
}
