package backend

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

// SearchProducts runs a catalog search.
func (c *Client) SearchProducts(ctx context.Context, query string) ([]Product, error) {
	if strings.TrimSpace(query) == "" {
		return nil, paycarterr.WithDetails(paycarterr.ErrInvalidInput, map[string]string{"query": "empty"})
	}
	var resp struct {
		Products []Product `json:"products"`
	}
	err := c.do(ctx, request{method: http.MethodPost, path: "/api/searchProduct", body: map[string]string{"query": query}}, &resp)
	return resp.Products, err
}

// ProductDetails fetches one product page.
func (c *Client) ProductDetails(ctx context.Context, asin string) (*ProductDetail, error) {
	var resp struct {
		Product ProductDetail `json:"product"`
	}
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/productDetails", body: map[string]string{"asin": asin}}, &resp); err != nil {
		return nil, err
	}
	return &resp.Product, nil
}

// CheckUser reports whether the identity is registered.
func (c *Client) CheckUser(ctx context.Context, privyID, walletAddress string) (bool, error) {
	q := url.Values{}
	q.Set("privy_id", privyID)
	q.Set("wallet_address", walletAddress)

	var resp struct {
		IsRegistered bool `json:"isRegistered"`
	}
	err := c.do(ctx, request{method: http.MethodGet, path: "/user/check?" + q.Encode()}, &resp)
	return resp.IsRegistered, err
}

// RegisterUser creates the user record.
func (c *Client) RegisterUser(ctx context.Context, user UserData) (*UserData, error) {
	var out UserData
	if err := c.do(ctx, request{method: http.MethodPost, path: "/user", body: user}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCart fetches the user's cart.
func (c *Client) GetCart(ctx context.Context, userID string) (*Cart, error) {
	var cart Cart
	if err := c.do(ctx, request{method: http.MethodGet, path: "/cart/" + url.PathEscape(userID)}, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// AddToCart adds an item and returns the updated cart.
func (c *Client) AddToCart(ctx context.Context, userID string, item CartItem) (*Cart, error) {
	var cart Cart
	if err := c.do(ctx, request{method: http.MethodPost, path: "/cart/" + url.PathEscape(userID), body: item}, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// RemoveFromCart removes a line and returns the updated cart.
func (c *Client) RemoveFromCart(ctx context.Context, userID, asin string) (*Cart, error) {
	var cart Cart
	path := "/cart/" + url.PathEscape(userID) + "/" + url.PathEscape(asin)
	if err := c.do(ctx, request{method: http.MethodDelete, path: path}, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// UpdateCartQuantity sets a line's quantity and returns the updated cart.
func (c *Client) UpdateCartQuantity(ctx context.Context, userID, asin string, quantity int) (*Cart, error) {
	if quantity < 1 {
		return nil, paycarterr.WithDetails(paycarterr.ErrInvalidInput, map[string]string{"quantity": strconv.Itoa(quantity)})
	}
	var cart Cart
	path := "/cart/" + url.PathEscape(userID) + "/" + url.PathEscape(asin)
	body := map[string]int{"quantity": quantity}
	if err := c.do(ctx, request{method: http.MethodPut, path: path, body: body}, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// CreateOrder persists an order. It is sent exactly once.
func (c *Client) CreateOrder(ctx context.Context, order CreateOrderRequest) (*CreateOrderResponse, error) {
	var resp CreateOrderResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/orders", body: order}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetOrders returns the user's orders, newest first.
func (c *Client) GetOrders(ctx context.Context, userID string) ([]Order, error) {
	var orders []Order
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/orders/" + url.PathEscape(userID)}, &orders); err != nil {
		return nil, err
	}
	sortNewestFirst(orders)
	return orders, nil
}

// GetAllOrders returns every order, newest first. Requires the admin token.
func (c *Client) GetAllOrders(ctx context.Context) ([]Order, error) {
	var orders []Order
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/admin/orders", admin: true}, &orders); err != nil {
		return nil, err
	}
	sortNewestFirst(orders)
	return orders, nil
}

// GetOrderDetails fetches one order. Requires the admin token.
func (c *Client) GetOrderDetails(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/orders_admin/" + url.PathEscape(orderID), admin: true}, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrderStatus moves an order to status with an optional tracking
// guide. Requires the admin token.
func (c *Client) UpdateOrderStatus(ctx context.Context, orderID string, status OrderStatus, shippingGuide string) error {
	if _, ok := ParseOrderStatus(string(status)); !ok {
		return paycarterr.WithDetails(paycarterr.ErrInvalidInput, map[string]string{"status": string(status)})
	}
	body := map[string]string{"status": string(status), "shippingGuide": shippingGuide}
	return c.do(ctx, request{
		method: http.MethodPut,
		path:   "/api/orders/" + url.PathEscape(orderID) + "/status",
		body:   body,
		admin:  true,
	}, nil)
}

// LatestExchangeRate fetches the most recent published rate.
func (c *Client) LatestExchangeRate(ctx context.Context) (*ExchangeRate, error) {
	var rate ExchangeRate
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/exchange-rate/latest"}, &rate); err != nil {
		return nil, err
	}
	return &rate, nil
}

// Stats fetches the shop counters.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/stats"}, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// SendFeedback posts a landing-page survey answer to the feedback hook.
func (c *Client) SendFeedback(ctx context.Context, country, network string, now time.Time) error {
	if c.feedbackHook == "" {
		return paycarterr.WithSuggestion(
			paycarterr.WithDetails(paycarterr.ErrConfigInvalid, map[string]string{"backend.feedback_hook": "not set"}),
			"Set backend.feedback_hook or PAYCART_FEEDBACK_HOOK",
		)
	}
	fb := Feedback{Country: country, Network: network, Timestamp: now.UTC().Format(time.RFC3339Nano)}
	return c.do(ctx, request{method: http.MethodPost, path: "feedback", url: c.feedbackHook, body: fb}, nil)
}

func sortNewestFirst(orders []Order) {
	slices.SortStableFunc(orders, func(a, b Order) int {
		return b.CreatedAt.Compare(a.CreatedAt.Time)
	})
}
