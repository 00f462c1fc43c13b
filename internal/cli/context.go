package cli

import (
	"context"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrz1836/paycart/internal/approval"
	"github.com/mrz1836/paycart/internal/backend"
	"github.com/mrz1836/paycart/internal/cache"
	"github.com/mrz1836/paycart/internal/chain"
	"github.com/mrz1836/paycart/internal/chain/eth"
	"github.com/mrz1836/paycart/internal/checkout"
	"github.com/mrz1836/paycart/internal/config"
	"github.com/mrz1836/paycart/internal/journal"
	"github.com/mrz1836/paycart/internal/lending"
	"github.com/mrz1836/paycart/internal/notify"
	"github.com/mrz1836/paycart/internal/observability"
	"github.com/mrz1836/paycart/internal/output"
	"github.com/mrz1836/paycart/internal/pricing"
	"github.com/mrz1836/paycart/internal/service/cart"
	"github.com/mrz1836/paycart/internal/version"
	"github.com/mrz1836/paycart/internal/wallet"
	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

// CommandContext builds the dependencies a command needs on first use and
// releases them in Close.
type CommandContext struct {
	Config    *config.Config
	Logger    *config.Logger
	Formatter *output.Formatter

	// Getenv reads secrets for the wallet loader.
	Getenv func(string) string

	backend   *backend.Client
	adapter   *eth.Adapter
	signer    *wallet.KeySigner
	cartSvc   *cart.Service
	journal   *journal.Store
	publisher notify.Publisher
	telemetry *observability.Provider
	closers   []func()
}

// NewCommandContext returns a context for one invocation.
func NewCommandContext(c *config.Config, l *config.Logger, f *output.Formatter) *CommandContext {
	return &CommandContext{Config: c, Logger: l, Formatter: f, Getenv: os.Getenv}
}

// Close releases every dependency that was built, newest first.
func (c *CommandContext) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

func (c *CommandContext) onClose(fn func()) {
	c.closers = append(c.closers, fn)
}

// Backend returns the shop backend client.
func (c *CommandContext) Backend() (*backend.Client, error) {
	if c.backend != nil {
		return c.backend, nil
	}
	b := c.Config.Backend
	client, err := backend.NewClient(backend.Options{
		BaseURL:       b.BaseURL,
		AdminToken:    b.AdminToken,
		FeedbackHook:  b.FeedbackHook,
		Timeout:       b.Timeout,
		RetryAttempts: b.RetryAttempts,
		RateLimiter:   chain.NewRateLimiter(b.RateLimit, b.RateBurst),
		Logger:        c.Logger.Named("backend"),
	})
	if err != nil {
		return nil, err
	}
	c.backend = client
	return client, nil
}

// Signer loads the wallet key. Every signature is confirmed on the
// terminal unless wallet.confirm is off or assumeYes is set.
func (c *CommandContext) Signer(assumeYes bool) (*wallet.KeySigner, error) {
	if c.signer != nil {
		return c.signer, nil
	}
	w := c.Config.Wallet
	opts := wallet.LoadOptions{
		Source:         w.Source,
		Path:           homePath(w.Path),
		DerivationPath: w.DerivationPath,
		MemoryLock:     w.MemoryLock,
		Passphrase:     promptSecretFn,
		Getenv:         c.Getenv,
	}
	if w.Confirm && !assumeYes {
		opts.Confirm = confirmSignature
	}
	s, err := wallet.Load(opts)
	if err != nil {
		return nil, err
	}
	c.signer = s
	c.onClose(s.Close)
	return s, nil
}

// Chain returns the chain adapter. withSigner loads the wallet so the
// adapter can send transactions.
func (c *CommandContext) Chain(withSigner, assumeYes bool) (*eth.Adapter, error) {
	if c.adapter != nil && (!withSigner || c.signer != nil) {
		return c.adapter, nil
	}
	ch := c.Config.Chain
	opts := eth.Options{
		ChainID:             big.NewInt(ch.ChainID),
		RPCURL:              ch.RPC,
		WalletRPCURL:        ch.WalletRPC,
		Logger:              c.Logger.Named("chain"),
		RateLimiter:         chain.NewRateLimiter(ch.RateLimit, ch.RateBurst),
		ReceiptPollInterval: ch.ReceiptPollInterval,
		ReceiptTimeout:      ch.ReceiptTimeout,
	}
	if ch.ReadRetryAttempts > 0 {
		opts.ReadRetry = chain.DefaultRetryConfig()
		opts.ReadRetry.MaxAttempts = ch.ReadRetryAttempts
	}
	if withSigner {
		s, err := c.Signer(assumeYes)
		if err != nil {
			return nil, err
		}
		opts.Signer = s
	}
	a, err := eth.NewAdapter(opts)
	if err != nil {
		return nil, paycarterr.WithCause(paycarterr.ErrConfigInvalid, err)
	}
	if c.adapter != nil {
		c.adapter.Close()
	}
	c.adapter = a
	c.onClose(a.Close)
	return a, nil
}

// Wallet returns the address used for reads: the signer's when loaded,
// otherwise the one given on the command line.
func (c *CommandContext) Wallet(flag string) (common.Address, error) {
	if flag != "" {
		return eth.ParseAddress(flag)
	}
	s, err := c.Signer(true)
	if err != nil {
		return common.Address{}, paycarterr.WithSuggestion(err, "pass --wallet 0x... for read-only commands")
	}
	return s.Address(), nil
}

// PaymentToken returns the configured ERC-20 contract.
func (c *CommandContext) PaymentToken() (*eth.Contract, error) {
	return eth.NewContract(eth.ABIERC20, c.Config.Chain.PaymentToken.Address)
}

// OrderContract returns the configured order system contract.
func (c *CommandContext) OrderContract() (*eth.Contract, error) {
	if err := c.Config.RequireCheckout(); err != nil {
		return nil, err
	}
	return eth.NewContract(eth.ABIOrderSystem, c.Config.Chain.OrderContract)
}

// Lending returns the Aave gateway on adapter.
func (c *CommandContext) Lending(adapter *eth.Adapter) (*lending.Gateway, error) {
	l := c.Config.Chain.Lending
	if !l.Enabled {
		return nil, paycarterr.WithSuggestion(paycarterr.ErrBorrowCapacityUnavailable, "enable chain.lending.enabled to borrow from Aave")
	}
	opts := lending.Options{
		InterestRateMode: l.InterestRateMode,
		ReferralCode:     l.ReferralCode,
		Logger:           c.Logger.Named("lending"),
	}
	var err error
	if opts.AddressesProvider, err = eth.ParseAddress(l.AddressesProvider); err != nil {
		return nil, err
	}
	if l.Pool != "" {
		if opts.Pool, err = eth.ParseAddress(l.Pool); err != nil {
			return nil, err
		}
	}
	if l.Oracle != "" {
		if opts.Oracle, err = eth.ParseAddress(l.Oracle); err != nil {
			return nil, err
		}
	}
	return lending.NewGateway(adapter, opts)
}

// Cart returns the cached cart service. A configured Redis URL that cannot
// be reached falls back to the in-process cache.
func (c *CommandContext) Cart(ctx context.Context) (*cart.Service, error) {
	if c.cartSvc != nil {
		return c.cartSvc, nil
	}
	client, err := c.Backend()
	if err != nil {
		return nil, err
	}
	var store cache.CartCache = cache.NewMemoryCartCache(c.Config.Cache.CartTTL)
	if url := c.Config.Cache.RedisURL; url != "" {
		rdb, dialErr := cache.DialRedis(ctx, url)
		if dialErr != nil {
			c.Logger.Error("cache: redis unavailable, using memory: %v", dialErr)
		} else {
			store = cache.NewRedisCartCache(rdb, c.Config.Cache.CartTTL)
			c.onClose(func() { _ = rdb.Close() })
		}
	}
	c.cartSvc = cart.NewService(&cart.Config{Backend: client, Cache: store, Logger: c.Logger.Named("cart")})
	return c.cartSvc, nil
}

// Rate returns the latest exchange rate, served from the local snapshot
// while it is fresh. A stale snapshot is returned with a warning when the
// backend is unreachable.
func (c *CommandContext) Rate(ctx context.Context) (*backend.ExchangeRate, error) {
	client, err := c.Backend()
	if err != nil {
		return nil, err
	}
	store := cache.NewRateStore(homePath(c.Config.Cache.RateFile), c.Config.Cache.RateStaleness)
	snap, err := store.Latest(ctx, client.LatestExchangeRate)
	if snap == nil {
		return nil, err
	}
	if err != nil {
		c.Logger.Error("rate: using snapshot from %s: %v", snap.FetchedAt.Format(time.RFC3339), err)
	}
	return &snap.Rate, nil
}

// Journal opens the settlement journal.
func (c *CommandContext) Journal(ctx context.Context) (*journal.Store, error) {
	if c.journal != nil {
		return c.journal, nil
	}
	j, err := journal.Open(ctx, homePath(c.Config.Journal.Path))
	if err != nil {
		return nil, err
	}
	c.journal = j
	c.onClose(func() { _ = j.Close() })
	return j, nil
}

// Publisher returns the settlement event publisher.
func (c *CommandContext) Publisher() notify.Publisher {
	if c.publisher == nil {
		c.publisher = notify.New(c.Config.Notify.Topic, c.Config.Notify.KafkaBrokers)
		p := c.publisher
		c.onClose(func() { _ = p.Close() })
	}
	return c.publisher
}

// Tracer returns a tracer exporting to the configured collector, or a
// no-op tracer when none is set.
func (c *CommandContext) Tracer(ctx context.Context) trace.Tracer {
	if c.telemetry == nil {
		t := c.Config.Telemetry
		p, err := observability.New(ctx, observability.Config{
			ServiceName:    t.ServiceName,
			ServiceVersion: version.Current().Version,
			OTLPEndpoint:   t.OTLPEndpoint,
			Insecure:       t.Insecure,
		})
		if err != nil {
			c.Logger.Error("telemetry: %v", err)
			p, _ = observability.New(ctx, observability.Config{ServiceName: t.ServiceName})
		}
		c.telemetry = p
		c.onClose(func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = p.Shutdown(sctx)
		})
	}
	return c.telemetry.Tracer()
}

// Orchestrator wires a checkout orchestrator for the loaded wallet.
func (c *CommandContext) Orchestrator(ctx context.Context, adapter *eth.Adapter, borrower checkout.Borrower, nav checkout.Navigator, obs checkout.Observer) (*checkout.Orchestrator, error) {
	token, err := c.PaymentToken()
	if err != nil {
		return nil, err
	}
	orderContract, err := c.OrderContract()
	if err != nil {
		return nil, err
	}
	client, err := c.Backend()
	if err != nil {
		return nil, err
	}
	svc, err := c.Cart(ctx)
	if err != nil {
		return nil, err
	}
	j, err := c.Journal(ctx)
	if err != nil {
		return nil, err
	}
	co := c.Config.Checkout
	log := c.Logger.Named("checkout")
	return checkout.NewOrchestrator(checkout.Config{
		Chain:    adapter,
		Approver: approval.NewController(adapter, c.Logger.Named("approval")),
		Borrower: borrower,
		Orders:   client,
		Cart:     svc,
		Correlator: checkout.NewEventCorrelator(adapter, orderContract, checkout.CorrelatorOptions{
			IndexDelay: co.EventIndexDelay,
			Attempts:   co.EventPollAttempts,
			Interval:   co.EventPollInterval,
			Timeout:    co.EventTimeout,
		}),
		Journal:       j,
		Publisher:     c.Publisher(),
		Navigator:     nav,
		Observer:      obs,
		Tracer:        c.Tracer(ctx),
		Logger:        log,
		Converter:     pricing.NewConverter(co.FeeRate),
		PaymentToken:  token,
		TokenDecimals: c.Config.Chain.PaymentToken.Decimals,
		OrderContract: orderContract,
		Wallet:        adapter.Address(),
		HistoryView:   co.HistoryView,
	})
}
