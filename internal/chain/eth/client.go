// Package eth implements the EVM chain client adapter: lazily dialed read and
// write clients, typed contract reads, simulate-then-send writes, receipt
// waiting and event queries.
package eth

import (
	"context"
	"math/big"
	"net/url"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/paycart/internal/chain"
	"github.com/mrz1836/paycart/internal/metrics"
	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

// Defaults for receipt polling.
const (
	DefaultReceiptPollInterval = 2 * time.Second
	DefaultReceiptTimeout      = 3 * time.Minute
)

// LogWriter is the logging surface the adapter needs.
type LogWriter interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

// Options configures an Adapter.
type Options struct {
	ChainID      *big.Int // Target chain the app is deployed on
	RPCURL       string   // Public RPC endpoint for reads
	WalletRPCURL string   // Endpoint the wallet submits through; defaults to RPCURL

	Signer      Signer
	Dialer      Dialer
	Logger      LogWriter
	RateLimiter *chain.RateLimiter
	ReadRetry   chain.RetryConfig

	ReceiptPollInterval time.Duration
	ReceiptTimeout      time.Duration
}

// Adapter is the chain client adapter. It owns one read client and one write
// client, each dialed on first use and reused afterwards.
type Adapter struct {
	chainID      *big.Int
	rpcURL       string
	walletRPCURL string

	signer  Signer
	dial    Dialer
	logger  LogWriter
	limiter *chain.RateLimiter
	retry   chain.RetryConfig
	nonces  *NonceManager

	pollInterval   time.Duration
	receiptTimeout time.Duration

	mu     sync.Mutex
	reader Backend
	writer Backend
}

// NewAdapter validates options and returns an adapter. No network
// connection is made until the first call.
func NewAdapter(opts Options) (*Adapter, error) {
	if opts.RPCURL == "" {
		return nil, ErrRPCURLRequired
	}
	if opts.ChainID == nil || opts.ChainID.Sign() <= 0 {
		return nil, ErrChainIDRequired
	}

	a := &Adapter{
		chainID:        new(big.Int).Set(opts.ChainID),
		rpcURL:         opts.RPCURL,
		walletRPCURL:   opts.WalletRPCURL,
		signer:         opts.Signer,
		dial:           opts.Dialer,
		logger:         opts.Logger,
		limiter:        opts.RateLimiter,
		retry:          opts.ReadRetry,
		nonces:         NewNonceManager(),
		pollInterval:   opts.ReceiptPollInterval,
		receiptTimeout: opts.ReceiptTimeout,
	}
	if a.walletRPCURL == "" {
		a.walletRPCURL = a.rpcURL
	}
	if a.dial == nil {
		a.dial = DialRPC
	}
	if a.logger == nil {
		a.logger = nopLogger{}
	}
	if a.retry.MaxAttempts == 0 {
		a.retry = chain.DefaultRetryConfig()
	}
	if a.pollInterval <= 0 {
		a.pollInterval = DefaultReceiptPollInterval
	}
	if a.receiptTimeout <= 0 {
		a.receiptTimeout = DefaultReceiptTimeout
	}
	return a, nil
}

// TargetChainID returns the configured chain id.
func (a *Adapter) TargetChainID() *big.Int {
	return new(big.Int).Set(a.chainID)
}

// Signer returns the wallet signer, or nil when none is connected.
func (a *Adapter) Signer() Signer {
	return a.signer
}

// readBackend returns the read client, dialing it on first use. A failed
// dial is not cached so the next call tries again.
func (a *Adapter) readBackend(ctx context.Context) (Backend, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.reader != nil {
		return a.reader, nil
	}
	b, err := a.dial(ctx, a.rpcURL)
	if err != nil {
		return nil, classifyProviderError(err)
	}
	a.logger.Debug("eth: read client connected to %s", redactURL(a.rpcURL))
	a.reader = b
	return b, nil
}

// writeBackend returns the wallet-side client, dialing it on first use.
func (a *Adapter) writeBackend(ctx context.Context) (Backend, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.writer != nil {
		return a.writer, nil
	}
	b, err := a.dial(ctx, a.walletRPCURL)
	if err != nil {
		return nil, classifyProviderError(err)
	}
	a.logger.Debug("eth: wallet client connected to %s", redactURL(a.walletRPCURL))
	a.writer = b
	return b, nil
}

// WalletChainID returns the chain id the wallet's provider is attached to.
func (a *Adapter) WalletChainID(ctx context.Context) (*big.Int, error) {
	w, err := a.writeBackend(ctx)
	if err != nil {
		return nil, err
	}
	if err = a.limiter.Wait(ctx, a.walletRPCURL); err != nil {
		return nil, err
	}
	start := time.Now()
	id, err := w.ChainID(ctx)
	metrics.Global.RecordRPCCall(time.Since(start), err)
	if err != nil {
		return nil, classifyProviderError(err)
	}
	return id, nil
}

// EnsureNetwork fails with ErrWrongNetwork when the wallet is not on the
// target chain.
func (a *Adapter) EnsureNetwork(ctx context.Context) error {
	walletChain, err := a.WalletChainID(ctx)
	if err != nil {
		return err
	}
	if !chain.SameChain(walletChain, a.chainID) {
		return paycarterr.WithDetails(paycarterr.ErrWrongNetwork, map[string]string{
			"wallet_chain": chain.NetworkName(walletChain),
			"target_chain": chain.NetworkName(a.chainID),
		})
	}
	return nil
}

// Close releases both clients. The adapter may be used again afterwards and
// will redial.
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.reader != nil {
		a.reader.Close()
		a.reader = nil
	}
	if a.writer != nil {
		a.writer.Close()
		a.writer = nil
	}
}

// Address of the connected wallet, or the zero address.
func (a *Adapter) Address() common.Address {
	if a.signer == nil {
		return common.Address{}
	}
	return a.signer.Address()
}

// redactURL strips credentials and path tokens from an RPC URL for logging.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "<rpc>"
	}
	return u.Scheme + "://" + u.Host
}
