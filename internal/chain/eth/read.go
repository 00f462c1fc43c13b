package eth

import (
	"context"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/paycart/internal/chain"
	"github.com/mrz1836/paycart/internal/metrics"
	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

// ReadContract performs an eth_call against the latest block and returns the
// decoded outputs. Transport failures are retried per the read retry config.
func (a *Adapter) ReadContract(ctx context.Context, call Call) ([]any, error) {
	data, err := call.pack()
	if err != nil {
		return nil, err
	}

	r, err := a.readBackend(ctx)
	if err != nil {
		return nil, err
	}

	to := call.Contract.Address
	msg := ethereum.CallMsg{To: &to, Data: data}

	out, err := chain.RetryWithConfig(ctx, a.readRetry(call.String()), func() ([]byte, error) {
		if waitErr := a.limiter.Wait(ctx, a.rpcURL); waitErr != nil {
			return nil, waitErr
		}
		start := time.Now()
		res, callErr := r.CallContract(ctx, msg, nil)
		metrics.Global.RecordRPCCall(time.Since(start), callErr)
		if callErr != nil {
			if reason, reverted := revertReason(callErr); reverted {
				return nil, paycarterr.WithDetails(paycarterr.WithCause(paycarterr.ErrOnChainRejected, callErr), map[string]string{
					"call":          call.String(),
					"revert_reason": reason,
				})
			}
			return nil, classifyProviderError(callErr)
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}

	values, err := call.Contract.ABI.Unpack(call.Method, out)
	if err != nil {
		return nil, paycarterr.WithDetails(paycarterr.WithCause(paycarterr.ErrUnexpectedProvider, err), map[string]string{
			"call": call.String(),
		})
	}
	return values, nil
}

func (a *Adapter) readRetry(label string) chain.RetryConfig {
	cfg := a.retry
	cfg.OnRetry = func(attempt int, err error) {
		a.logger.Debug("eth: %s attempt %d failed, retrying: %v", label, attempt, err)
	}
	return cfg
}

// ReadAddress is a convenience for calls returning a single address.
func (a *Adapter) ReadAddress(ctx context.Context, call Call) (common.Address, error) {
	values, err := a.ReadContract(ctx, call)
	if err != nil {
		return common.Address{}, err
	}
	if len(values) != 1 {
		return common.Address{}, unexpectedOutput(call)
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, unexpectedOutput(call)
	}
	return addr, nil
}

func unexpectedOutput(call Call) error {
	return paycarterr.WithDetails(paycarterr.ErrUnexpectedProvider, map[string]string{
		"call":   call.String(),
		"reason": "unexpected output shape",
	})
}
