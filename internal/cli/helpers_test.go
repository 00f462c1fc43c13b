package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/paycart/internal/backend"
	"github.com/mrz1836/paycart/internal/config"
)

const (
	testUser   = "user-1"
	testWallet = "0x00000000000000000000000000000000000000a1"
	testOrders = "0x00000000000000000000000000000000000000d4"
	adminToken = "admin-secret"
)

// fakeShop is an in-memory shop backend.
type fakeShop struct {
	mu        sync.Mutex
	cart      backend.Cart
	orders    []backend.Order
	created   []backend.CreateOrderRequest
	feedback  []backend.Feedback
	products  []backend.Product
	detail    backend.ProductDetail
	rateCalls int
	rateFails bool
	authSeen  []string
	users     map[string]string
}

func newFakeShop() *fakeShop {
	return &fakeShop{
		cart: backend.Cart{Items: []backend.CartItem{
			{ASIN: "B001", Title: "Headphones", Price: 1000, Quantity: 2},
		}},
		orders: []backend.Order{
			{ID: "ord-1", UserID: testUser, Status: "received", TotalAmount: 2060, TotalAmountUSD: 103, BlockchainOrderID: "7"},
			{ID: "ord-2", UserID: testUser, Status: "shipped", TotalAmount: 515, TotalAmountUSD: 25.75, BlockchainOrderID: "3"},
		},
		products: []backend.Product{
			{ASIN: "B001", Title: "Headphones", Price: &backend.ProductPrice{Value: 1000, Currency: "MXN"}},
			{ASIN: "B002", Title: "Cable", Price: &backend.ProductPrice{Value: 99, Currency: "MXN"}},
			{ASIN: "B003", Title: "Case"},
		},
		detail: backend.ProductDetail{
			ASIN:   "B002",
			Title:  "Cable",
			Price:  &backend.ProductPrice{Value: 99, Currency: "MXN"},
			Images: []string{"https://img.example/b002.jpg"},
			Variants: []backend.ProductVariant{
				{ASIN: "B002-RED", Price: &backend.ProductPrice{Value: 120}, Dimensions: []backend.VariantDimension{{Name: "Color", Value: "Red"}}},
			},
		},
		users: map[string]string{},
	}
}

func (s *fakeShop) handler() http.Handler {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("GET /cart/{user}", func(w http.ResponseWriter, _ *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		writeJSON(w, s.cart)
	})
	mux.HandleFunc("POST /cart/{user}", func(w http.ResponseWriter, r *http.Request) {
		var item backend.CartItem
		_ = json.NewDecoder(r.Body).Decode(&item)
		s.mu.Lock()
		defer s.mu.Unlock()
		s.cart.Items = append(s.cart.Items, item)
		writeJSON(w, s.cart)
	})
	mux.HandleFunc("PUT /cart/{user}/{asin}", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Quantity int `json:"quantity"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.mu.Lock()
		defer s.mu.Unlock()
		for i := range s.cart.Items {
			if s.cart.Items[i].ASIN == r.PathValue("asin") {
				s.cart.Items[i].Quantity = body.Quantity
			}
		}
		writeJSON(w, s.cart)
	})
	mux.HandleFunc("DELETE /cart/{user}/{asin}", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		kept := s.cart.Items[:0]
		for _, it := range s.cart.Items {
			if it.ASIN != r.PathValue("asin") {
				kept = append(kept, it)
			}
		}
		s.cart.Items = kept
		writeJSON(w, s.cart)
	})
	mux.HandleFunc("GET /api/exchange-rate/latest", func(w http.ResponseWriter, _ *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.rateCalls++
		if s.rateFails {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, backend.ExchangeRate{SeriesID: "SF43718", Date: "16/10/2026", Value: 20})
	})
	mux.HandleFunc("POST /api/searchProduct", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"products": s.products})
	})
	mux.HandleFunc("POST /api/productDetails", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"product": s.detail})
	})
	mux.HandleFunc("GET /api/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, backend.Stats{Users: 12, TotalPurchases: 34})
	})
	mux.HandleFunc("GET /api/orders/{user}", func(w http.ResponseWriter, _ *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		writeJSON(w, s.orders)
	})
	mux.HandleFunc("POST /api/orders", func(w http.ResponseWriter, r *http.Request) {
		var req backend.CreateOrderRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		s.mu.Lock()
		defer s.mu.Unlock()
		s.created = append(s.created, req)
		writeJSON(w, backend.CreateOrderResponse{OrderID: "ord-" + strconv.Itoa(len(s.created)+10), Status: "received"})
	})
	mux.HandleFunc("GET /api/admin/orders", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.authSeen = append(s.authSeen, r.Header.Get("Authorization"))
		writeJSON(w, s.orders)
	})
	mux.HandleFunc("GET /api/orders_admin/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.authSeen = append(s.authSeen, r.Header.Get("Authorization"))
		for _, o := range s.orders {
			if o.ID == r.PathValue("id") {
				writeJSON(w, o)
				return
			}
		}
		http.Error(w, `{"detail":"not found"}`, http.StatusNotFound)
	})
	mux.HandleFunc("GET /user/check", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		wallet, ok := s.users[r.URL.Query().Get("privy_id")]
		writeJSON(w, map[string]bool{"isRegistered": ok && strings.EqualFold(wallet, r.URL.Query().Get("wallet_address"))})
	})
	mux.HandleFunc("POST /user", func(w http.ResponseWriter, r *http.Request) {
		var u backend.UserData
		_ = json.NewDecoder(r.Body).Decode(&u)
		s.mu.Lock()
		defer s.mu.Unlock()
		if u.WalletAddress != nil {
			s.users[u.PrivyID] = *u.WalletAddress
		}
		writeJSON(w, u)
	})
	mux.HandleFunc("POST /feedback", func(w http.ResponseWriter, r *http.Request) {
		var fb backend.Feedback
		_ = json.NewDecoder(r.Body).Decode(&fb)
		s.mu.Lock()
		defer s.mu.Unlock()
		s.feedback = append(s.feedback, fb)
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

// testEnv is a paycart home wired to a fake shop.
type testEnv struct {
	home string
	shop *fakeShop
	srv  *httptest.Server
}

// newTestEnv writes a config pointing at a fresh fake shop. The CLI keeps
// its state in package globals, so tests using it must not run in parallel.
func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	shop := newFakeShop()
	srv := httptest.NewServer(shop.handler())
	t.Cleanup(srv.Close)

	env := &testEnv{home: t.TempDir(), shop: shop, srv: srv}
	c := config.Defaults()
	c.Home = env.home
	c.Backend.BaseURL = srv.URL
	c.Backend.RetryAttempts = 1
	c.Backend.FeedbackHook = srv.URL + "/feedback"
	c.Chain.RPC = "http://127.0.0.1:1"
	c.Chain.OrderContract = testOrders
	c.User.ID = testUser
	for _, m := range mutate {
		m(c)
	}
	require.NoError(t, config.Save(c, config.Path(env.home)))

	for _, key := range []string{
		config.EnvHome, config.EnvBackendURL, config.EnvAdminToken, config.EnvFeedbackHook,
		config.EnvChainID, config.EnvRPCURL, config.EnvWalletRPCURL, config.EnvPaymentToken,
		config.EnvOrderContract, config.EnvAaveProvider, config.EnvAavePool, config.EnvUserID,
		config.EnvAdminWallet, config.EnvAdminPrivyID, config.EnvWalletSource, config.EnvWalletPath,
		config.EnvRedisURL, config.EnvKafkaBrokers, config.EnvOTLPEndpoint, config.EnvOutputFormat,
		config.EnvVerbose, config.EnvLogLevel, config.EnvPrivateKey, config.EnvMnemonic,
		config.EnvWalletPassphrase,
	} {
		t.Setenv(key, "")
	}
	origInteractive := isInteractive
	isInteractive = func() bool { return false }
	t.Cleanup(func() { isInteractive = origInteractive })
	return env
}

// run executes the CLI with --home set and returns stdout.
func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(append([]string{"--home", e.home}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	err := Execute(ctx)
	return stdout.String(), err
}

// runJSON executes with -o json and decodes stdout into v.
func (e *testEnv) runJSON(t *testing.T, v any, args ...string) {
	t.Helper()
	out, err := e.run(t, append([]string{"-o", "json"}, args...)...)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), v), out)
}

// resetFlags restores every flag to its default between runs.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}
