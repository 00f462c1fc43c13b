package backend

import (
	"strings"
	"time"
)

// ProductPrice is a listed price.
type ProductPrice struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
	Raw      string  `json:"raw"`
}

// Product is a search result.
type Product struct {
	ASIN         string        `json:"asin"`
	Title        string        `json:"title"`
	Price        *ProductPrice `json:"price,omitempty"`
	Image        string        `json:"image"`
	Rating       float64       `json:"rating,omitempty"`
	RatingsTotal int           `json:"ratings_total,omitempty"`
	Link         string        `json:"link"`
	Brand        string        `json:"brand,omitempty"`
	IsPrime      bool          `json:"is_prime,omitempty"`
}

// VariantDimension is one axis of a product variant, e.g. Color=Red.
type VariantDimension struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ProductVariant is a purchasable variant of a product.
type ProductVariant struct {
	ASIN         string             `json:"asin"`
	Title        string             `json:"title"`
	Link         string             `json:"link"`
	Dimensions   []VariantDimension `json:"dimensions"`
	MainImage    string             `json:"main_image"`
	Price        *ProductPrice      `json:"price,omitempty"`
	Availability *Availability      `json:"availability,omitempty"`
}

// Availability reports stock status.
type Availability struct {
	Status string `json:"status"`
}

// ProductDetail is the full product page.
type ProductDetail struct {
	ASIN           string            `json:"asin"`
	Title          string            `json:"title"`
	Description    string            `json:"description,omitempty"`
	FeatureBullets []string          `json:"feature_bullets,omitempty"`
	Variants       []ProductVariant  `json:"variants,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	Images         []string          `json:"images,omitempty"`
	Price          *ProductPrice     `json:"price,omitempty"`
	Rating         float64           `json:"rating,omitempty"`
	RatingsTotal   int               `json:"ratings_total,omitempty"`
	Link           string            `json:"link"`
	Brand          string            `json:"brand,omitempty"`
	Availability   *Availability     `json:"availability,omitempty"`
}

// UserData links an auth identity to a wallet.
type UserData struct {
	PrivyID       string  `json:"privy_id"`
	WalletAddress *string `json:"wallet_address"`
}

// CartItem is one line in the backend cart.
type CartItem struct {
	ASIN              string            `json:"asin"`
	Title             string            `json:"title"`
	Price             float64           `json:"price"`
	Quantity          int               `json:"quantity"`
	ImageURL          string            `json:"image_url"`
	VariantASIN       string            `json:"variant_asin,omitempty"`
	VariantDimensions map[string]string `json:"variant_dimensions,omitempty"`
}

// Cart is a user's cart as returned by the backend.
type Cart struct {
	Items []CartItem `json:"items"`
	Total float64    `json:"total"`
}

// IsEmpty reports whether the cart has no items.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// OrderItem is a cart line frozen into an order.
type OrderItem struct {
	ASIN              string            `json:"asin"`
	Quantity          int               `json:"quantity"`
	Price             float64           `json:"price"`
	Title             string            `json:"title"`
	ImageURL          string            `json:"image_url,omitempty"`
	VariantASIN       string            `json:"variant_asin,omitempty"`
	VariantDimensions map[string]string `json:"variant_dimensions,omitempty"`
}

// OrderItems snapshots cart lines.
func OrderItems(items []CartItem) []OrderItem {
	out := make([]OrderItem, len(items))
	for i, it := range items {
		out[i] = OrderItem{
			ASIN:              it.ASIN,
			Quantity:          it.Quantity,
			Price:             it.Price,
			Title:             it.Title,
			ImageURL:          it.ImageURL,
			VariantASIN:       it.VariantASIN,
			VariantDimensions: it.VariantDimensions,
		}
	}
	return out
}

// CreateOrderRequest is the payload persisted after the on-chain order.
type CreateOrderRequest struct {
	UserID               string      `json:"user_id"`
	Items                []OrderItem `json:"items"`
	TotalAmount          float64     `json:"total_amount"`
	TotalAmountUSD       float64     `json:"total_amount_usd"`
	FullName             string      `json:"full_name"`
	Street               string      `json:"street"`
	PostalCode           string      `json:"postal_code"`
	Phone                string      `json:"phone"`
	DeliveryInstructions string      `json:"delivery_instructions"`
	BlockchainOrderID    string      `json:"blockchain_order_id"`
}

// CreateOrderResponse is the backend's acknowledgement.
type CreateOrderResponse struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

// Order statuses.
const (
	StatusReceived  OrderStatus = "received"
	StatusShipped   OrderStatus = "shipped"
	StatusDelivered OrderStatus = "delivered"
)

// ParseOrderStatus parses a status name, case-insensitively.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch st := OrderStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusReceived, StatusShipped, StatusDelivered:
		return st, true
	}
	return "", false
}

// Order is a persisted order.
type Order struct {
	ID                   string      `json:"id"`
	UserID               string      `json:"user_id"`
	TotalAmount          float64     `json:"total_amount"`
	TotalAmountUSD       float64     `json:"total_amount_usd"`
	Status               string      `json:"status"`
	CreatedAt            Timestamp   `json:"created_at"`
	Items                []OrderItem `json:"items"`
	FullName             string      `json:"full_name"`
	Street               string      `json:"street"`
	PostalCode           string      `json:"postal_code"`
	Phone                string      `json:"phone"`
	DeliveryInstructions string      `json:"delivery_instructions"`
	ShippingGuide        string      `json:"shipping_guide,omitempty"`
	BlockchainOrderID    string      `json:"blockchain_order_id"`
}

// FilterByStatus keeps orders in status; an empty status keeps all.
func FilterByStatus(orders []Order, status OrderStatus) []Order {
	if status == "" {
		return orders
	}
	out := make([]Order, 0, len(orders))
	for _, o := range orders {
		if strings.EqualFold(o.Status, string(status)) {
			out = append(out, o)
		}
	}
	return out
}

// Timestamp accepts RFC 3339 and the zone-less ISO 8601 form the backend
// emits, read as UTC.
type Timestamp struct {
	time.Time
}

//nolint:gochecknoglobals // accepted layouts
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	var err error
	for _, layout := range timestampLayouts {
		var parsed time.Time
		if parsed, err = time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return err
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.UTC().Format(time.RFC3339) + `"`), nil
}

// ExchangeRate is the latest published rate, in base currency per USD.
type ExchangeRate struct {
	SeriesID string  `json:"idSerie"`
	Title    string  `json:"titulo"`
	Date     string  `json:"fecha"`
	Value    float64 `json:"valor"`
}

// Stats are the shop's aggregate counters.
type Stats struct {
	Users          int `json:"users"`
	TotalPurchases int `json:"totalPurchases"`
}

// Feedback is posted to the landing feedback hook.
type Feedback struct {
	Country   string `json:"country"`
	Network   string `json:"network"`
	Timestamp string `json:"timestamp"`
}
