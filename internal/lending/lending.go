// Package lending reads a wallet's Aave V3 borrowing capacity and submits
// variable-rate borrows for the borrow-then-pay checkout path.
package lending

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/mrz1836/paycart/internal/chain/eth"
	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

// VariableRateMode is Aave's interest rate mode for variable debt.
const VariableRateMode = 2

// Aave scales: liquidation threshold in basis points, health factor in wad.
//
//nolint:gochecknoglobals // fixed-point scales
var (
	bps = decimal.New(1, 4)
	wad = decimal.New(1, 18)
)

// Chain is the part of the chain adapter the gateway uses.
type Chain interface {
	EnsureNetwork(ctx context.Context) error
	ReadContract(ctx context.Context, call eth.Call) ([]any, error)
	SimulateAndWrite(ctx context.Context, call eth.Call, from common.Address) (common.Hash, error)
	WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Capacity is a wallet's borrowing position for one asset. USD figures are
// in the oracle's base currency.
type Capacity struct {
	Asset                common.Address  `json:"asset"`
	MaxBorrow            decimal.Decimal `json:"max_borrow"`
	LiquidationThreshold decimal.Decimal `json:"liquidation_threshold"`
	// HealthFactor is -1 when the wallet has no debt.
	HealthFactor       decimal.Decimal `json:"health_factor"`
	TotalBorrowUSD     decimal.Decimal `json:"total_borrow_usd"`
	TotalCollateralUSD decimal.Decimal `json:"total_collateral_usd"`
	NetWorthUSD        decimal.Decimal `json:"net_worth_usd"`
}

// CanCover reports whether the wallet can borrow strictly more than amount.
func (c *Capacity) CanCover(amount decimal.Decimal) bool {
	return c != nil && c.MaxBorrow.GreaterThan(amount)
}

// Options configures a Gateway. Pool and Oracle are resolved from the
// addresses provider when zero.
type Options struct {
	AddressesProvider common.Address
	Pool              common.Address
	Oracle            common.Address
	InterestRateMode  int64
	ReferralCode      uint16
	Logger            eth.LogWriter
}

// Gateway talks to one Aave V3 market.
type Gateway struct {
	chain    Chain
	provider *eth.Contract
	rateMode *big.Int
	referral uint16
	logger   eth.LogWriter

	mu     sync.Mutex
	pool   *eth.Contract
	oracle *eth.Contract
}

// NewGateway returns a gateway. Nothing is read until the first call.
func NewGateway(chain Chain, opts Options) (*Gateway, error) {
	provider, err := eth.NewContract(eth.ABIAaveAddressesProvider, opts.AddressesProvider.Hex())
	if err != nil {
		return nil, err
	}
	g := &Gateway{
		chain:    chain,
		provider: provider,
		rateMode: big.NewInt(opts.InterestRateMode),
		referral: opts.ReferralCode,
		logger:   opts.Logger,
	}
	if opts.InterestRateMode == 0 {
		g.rateMode = big.NewInt(VariableRateMode)
	}
	if g.logger == nil {
		g.logger = nopLogger{}
	}
	if !eth.IsZeroAddress(opts.Pool) {
		g.pool = eth.MustContract(eth.ABIAavePool, opts.Pool.Hex())
	}
	if !eth.IsZeroAddress(opts.Oracle) {
		g.oracle = eth.MustContract(eth.ABIAaveOracle, opts.Oracle.Hex())
	}
	return g, nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

// Capacity computes how much of asset user can borrow:
// availableBorrowsBase / assetPrice, both in the oracle's base currency.
//
// An asset missing from the reserve list fails with ErrAssetNotInReserves.
// Other failures are wrapped in ErrBorrowCapacityUnavailable and are safe to
// retry. Nothing is retried here.
func (g *Gateway) Capacity(ctx context.Context, user, asset common.Address) (*Capacity, error) {
	c, err := g.capacity(ctx, user, asset)
	if err != nil {
		if errors.Is(err, paycarterr.ErrAssetNotInReserves) || errors.Is(err, paycarterr.ErrBorrowCapacityUnavailable) {
			return nil, err
		}
		return nil, paycarterr.WithDetails(paycarterr.WithCause(paycarterr.ErrBorrowCapacityUnavailable, err), map[string]string{
			"user":  user.Hex(),
			"asset": asset.Hex(),
		})
	}
	return c, nil
}

func (g *Gateway) capacity(ctx context.Context, user, asset common.Address) (*Capacity, error) {
	pool, oracle, err := g.contracts(ctx)
	if err != nil {
		return nil, err
	}

	reserves, err := g.chain.ReadContract(ctx, eth.Call{Contract: pool, Method: eth.MethodGetReservesList})
	if err != nil {
		return nil, err
	}
	if !containsAddress(reserves, asset) {
		return nil, paycarterr.WithDetails(paycarterr.ErrAssetNotInReserves, map[string]string{
			"asset": asset.Hex(),
			"pool":  pool.Address.Hex(),
		})
	}

	account, err := g.readBigs(ctx, eth.Call{Contract: pool, Method: eth.MethodGetUserAccountData, Args: []any{user}}, 6)
	if err != nil {
		return nil, err
	}
	collateral, debt, available, liqThreshold, hf := account[0], account[1], account[2], account[3], account[5]

	price, err := g.readBigs(ctx, eth.Call{Contract: oracle, Method: eth.MethodGetAssetPrice, Args: []any{asset}}, 1)
	if err != nil {
		return nil, err
	}
	unit, err := g.readBigs(ctx, eth.Call{Contract: oracle, Method: eth.MethodBaseCurrencyUnit}, 1)
	if err != nil {
		return nil, err
	}
	if price[0].Sign() <= 0 || unit[0].Sign() <= 0 {
		return nil, paycarterr.WithDetails(paycarterr.ErrBorrowCapacityUnavailable, map[string]string{
			"asset":  asset.Hex(),
			"reason": "oracle returned a zero price",
		})
	}

	baseUnit := decimal.NewFromBigInt(unit[0], 0)
	toUSD := func(v *big.Int) decimal.Decimal {
		return decimal.NewFromBigInt(v, 0).Div(baseUnit)
	}

	healthFactor := decimal.NewFromInt(-1)
	if debt.Sign() > 0 {
		healthFactor = decimal.NewFromBigInt(hf, 0).Div(wad)
	}

	c := &Capacity{
		Asset:                asset,
		MaxBorrow:            decimal.NewFromBigInt(available, 0).Div(decimal.NewFromBigInt(price[0], 0)),
		LiquidationThreshold: decimal.NewFromBigInt(liqThreshold, 0).Div(bps),
		HealthFactor:         healthFactor,
		TotalBorrowUSD:       toUSD(debt),
		TotalCollateralUSD:   toUSD(collateral),
	}
	c.NetWorthUSD = c.TotalCollateralUSD.Sub(c.TotalBorrowUSD)

	g.logger.Debug("lending: %s can borrow %s of %s", user.Hex(), c.MaxBorrow, asset.Hex())
	return c, nil
}

// Borrow borrows amount (smallest units) of asset at the configured rate
// mode on behalf of user, and waits for the transaction to be mined.
func (g *Gateway) Borrow(ctx context.Context, asset common.Address, amount *big.Int, user common.Address) (common.Hash, error) {
	if amount == nil || amount.Sign() <= 0 {
		return common.Hash{}, paycarterr.ErrInvalidAmount
	}
	// Checked here too since this runs outside a checkout as well.
	if err := g.chain.EnsureNetwork(ctx); err != nil {
		return common.Hash{}, err
	}
	pool, _, err := g.contracts(ctx)
	if err != nil {
		return common.Hash{}, paycarterr.WithCause(paycarterr.ErrBorrowCapacityUnavailable, err)
	}

	call := eth.Call{
		Contract: pool,
		Method:   eth.MethodBorrow,
		Args:     []any{asset, amount, g.rateMode, g.referral, user},
	}
	hash, err := g.chain.SimulateAndWrite(ctx, call, user)
	if err != nil {
		return common.Hash{}, err
	}

	receipt, err := g.chain.WaitForReceipt(ctx, hash)
	if err != nil {
		return hash, paycarterr.WithDetails(err, map[string]string{"tx_hash": hash.Hex()})
	}
	if !eth.Succeeded(receipt) {
		return hash, paycarterr.WithDetails(paycarterr.ErrOnChainRejected, map[string]string{
			"tx_hash": hash.Hex(),
			"call":    call.String(),
		})
	}
	return hash, nil
}

// contracts resolves the pool and oracle once.
func (g *Gateway) contracts(ctx context.Context) (*eth.Contract, *eth.Contract, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pool == nil {
		addr, err := g.readAddress(ctx, eth.MethodGetPool)
		if err != nil {
			return nil, nil, err
		}
		g.pool = eth.MustContract(eth.ABIAavePool, addr.Hex())
	}
	if g.oracle == nil {
		addr, err := g.readAddress(ctx, eth.MethodGetPriceOracle)
		if err != nil {
			return nil, nil, err
		}
		g.oracle = eth.MustContract(eth.ABIAaveOracle, addr.Hex())
	}
	return g.pool, g.oracle, nil
}

func (g *Gateway) readAddress(ctx context.Context, method string) (common.Address, error) {
	call := eth.Call{Contract: g.provider, Method: method}
	values, err := g.chain.ReadContract(ctx, call)
	if err != nil {
		return common.Address{}, err
	}
	if len(values) != 1 {
		return common.Address{}, unexpected(call)
	}
	addr, ok := values[0].(common.Address)
	if !ok || eth.IsZeroAddress(addr) {
		return common.Address{}, unexpected(call)
	}
	return addr, nil
}

func (g *Gateway) readBigs(ctx context.Context, call eth.Call, n int) ([]*big.Int, error) {
	values, err := g.chain.ReadContract(ctx, call)
	if err != nil {
		return nil, err
	}
	if len(values) != n {
		return nil, unexpected(call)
	}
	out := make([]*big.Int, n)
	for i, v := range values {
		b, ok := v.(*big.Int)
		if !ok {
			return nil, unexpected(call)
		}
		out[i] = b
	}
	return out, nil
}

func containsAddress(values []any, target common.Address) bool {
	if len(values) != 1 {
		return false
	}
	list, ok := values[0].([]common.Address)
	if !ok {
		return false
	}
	for _, a := range list {
		if a == target {
			return true
		}
	}
	return false
}

func unexpected(call eth.Call) error {
	return paycarterr.WithDetails(paycarterr.ErrUnexpectedProvider, map[string]string{
		"call":   call.String(),
		"reason": "unexpected output shape",
	})
}
