package eth

import (
	"context"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"

	"github.com/mrz1836/paycart/internal/metrics"
)

// Fallback gas limits used when estimation fails.
const (
	GasLimitERC20Approve uint64 = 60000
	GasLimitCreateOrder  uint64 = 200000
	GasLimitShipOrder    uint64 = 100000
	GasLimitAaveBorrow   uint64 = 450000
	GasLimitDefault      uint64 = 300000

	// gasHeadroomPercent is added on top of eth_estimateGas.
	gasHeadroomPercent = 20
)

// GasEstimate contains gas price and limit for a transaction.
type GasEstimate struct {
	GasPrice *big.Int // Price per gas unit in wei
	GasLimit uint64   // Maximum gas units
	Total    *big.Int // GasPrice * GasLimit
}

// fallbackGasLimit returns the fixed limit for a known method.
func fallbackGasLimit(method string) uint64 {
	switch method {
	case MethodApprove:
		return GasLimitERC20Approve
	case MethodCreateOrder:
		return GasLimitCreateOrder
	case MethodShipOrder:
		return GasLimitShipOrder
	case MethodBorrow:
		return GasLimitAaveBorrow
	default:
		return GasLimitDefault
	}
}

// estimateGas asks the wallet-side node for price and limit. The limit falls
// back to a per-method constant when estimation fails; the price does not.
func (a *Adapter) estimateGas(ctx context.Context, b Backend, method string, msg ethereum.CallMsg) (*GasEstimate, error) {
	start := time.Now()
	price, err := b.SuggestGasPrice(ctx)
	metrics.Global.RecordRPCCall(time.Since(start), err)
	if err != nil {
		return nil, classifyProviderError(err)
	}

	limit := fallbackGasLimit(method)
	if estimated, estErr := b.EstimateGas(ctx, msg); estErr == nil && estimated > 0 {
		limit = estimated + estimated*gasHeadroomPercent/100
	} else if estErr != nil {
		a.logger.Debug("eth: gas estimation for %s failed, using %d: %v", method, limit, estErr)
	}

	return &GasEstimate{
		GasPrice: price,
		GasLimit: limit,
		Total:    new(big.Int).Mul(price, new(big.Int).SetUint64(limit)),
	}, nil
}
