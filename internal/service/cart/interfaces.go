package cart

import (
	"context"

	"github.com/mrz1836/paycart/internal/backend"
)

// Backend is the subset of the backend client the cart service uses.
// Satisfied by *backend.Client.
type Backend interface {
	GetCart(ctx context.Context, userID string) (*backend.Cart, error)
	AddToCart(ctx context.Context, userID string, item backend.CartItem) (*backend.Cart, error)
	RemoveFromCart(ctx context.Context, userID, asin string) (*backend.Cart, error)
	UpdateCartQuantity(ctx context.Context, userID, asin string, quantity int) (*backend.Cart, error)
}

// LogWriter provides logging capabilities.
type LogWriter interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}
