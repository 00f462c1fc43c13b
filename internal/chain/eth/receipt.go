package eth

import (
	"context"
	"errors"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mrz1836/paycart/internal/chain"
	"github.com/mrz1836/paycart/internal/metrics"
	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

// maxConsecutiveReceiptErrors bounds provider errors tolerated while polling.
const maxConsecutiveReceiptErrors = 3

// WaitForReceipt polls for the transaction receipt until it is mined, ctx is
// cancelled, or the receipt timeout elapses. A mined but reverted
// transaction is returned with a nil error; callers inspect Status.
func (a *Adapter) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	r, err := a.readBackend(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		if err = a.limiter.Wait(ctx, a.rpcURL); err != nil {
			return nil, a.receiptTimeoutErr(hash, err)
		}

		start := time.Now()
		receipt, rErr := r.TransactionReceipt(ctx, hash)
		metrics.Global.RecordRPCCall(time.Since(start), rErr)

		switch {
		case rErr == nil && receipt != nil:
			a.logger.Debug("eth: tx %s mined in block %s status=%d", hash.Hex(), receipt.BlockNumber, receipt.Status)
			return receipt, nil
		case rErr == nil, errors.Is(rErr, ethereum.NotFound):
			failures = 0
		case ctx.Err() != nil:
			return nil, a.receiptTimeoutErr(hash, ctx.Err())
		default:
			failures++
			a.logger.Debug("eth: receipt poll for %s failed (%d): %v", hash.Hex(), failures, rErr)
			if failures >= maxConsecutiveReceiptErrors {
				return nil, paycarterr.WithDetails(paycarterr.WithCause(paycarterr.ErrUnexpectedProvider, rErr), map[string]string{
					"tx_hash": hash.Hex(),
				})
			}
		}

		select {
		case <-ctx.Done():
			return nil, a.receiptTimeoutErr(hash, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (a *Adapter) receiptTimeoutErr(hash common.Hash, cause error) error {
	if errors.Is(cause, context.Canceled) {
		return cause
	}
	return paycarterr.WithDetails(paycarterr.WithCause(chain.ErrTimeout, cause), map[string]string{
		"tx_hash": hash.Hex(),
		"timeout": a.receiptTimeout.String(),
	})
}

// Succeeded reports whether a mined receipt executed successfully.
func Succeeded(receipt *types.Receipt) bool {
	return receipt != nil && receipt.Status == types.ReceiptStatusSuccessful
}
