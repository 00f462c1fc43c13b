package eth

import (
	"context"
	"errors"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mrz1836/paycart/internal/metrics"
	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

// SimulateAndWrite simulates call from the given account, and when the
// simulation succeeds signs it with the wallet and submits it. It returns as
// soon as the node accepts the transaction; use WaitForReceipt to block
// until it is mined.
//
// A reverted simulation returns ErrOnChainRejected and nothing is sent.
// A declined signature returns ErrUserRejected. Writes are never retried.
func (a *Adapter) SimulateAndWrite(ctx context.Context, call Call, from common.Address) (common.Hash, error) {
	if a.signer == nil {
		return common.Hash{}, paycarterr.ErrWalletUnavailable
	}
	if a.signer.Address() != from {
		return common.Hash{}, paycarterr.WithDetails(ErrSenderMismatch, map[string]string{
			"from":   from.Hex(),
			"wallet": a.signer.Address().Hex(),
		})
	}

	data, err := call.pack()
	if err != nil {
		return common.Hash{}, err
	}
	to := call.Contract.Address
	msg := ethereum.CallMsg{From: from, To: &to, Data: data}

	if err = a.simulate(ctx, call, msg); err != nil {
		return common.Hash{}, err
	}

	w, err := a.writeBackend(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	gas, err := a.estimateGas(ctx, w, call.Method, msg)
	if err != nil {
		return common.Hash{}, err
	}

	pendingNonce, err := w.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, classifyProviderError(err)
	}
	nonce := a.nonces.Next(from.Hex(), pendingNonce)

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gas.GasPrice,
		Gas:      gas.GasLimit,
		To:       &to,
		Value:    new(big.Int),
		Data:     data,
	})

	signed, err := a.signer.SignTx(ctx, tx, a.chainID)
	if err != nil {
		a.nonces.Reset(from.Hex())
		if errors.Is(err, paycarterr.ErrUserRejected) {
			a.logger.Debug("eth: %s signature declined", call)
			return common.Hash{}, err
		}
		return common.Hash{}, paycarterr.WithCause(paycarterr.ErrWalletUnavailable, err)
	}

	if err = a.limiter.Wait(ctx, a.walletRPCURL); err != nil {
		a.nonces.Reset(from.Hex())
		return common.Hash{}, err
	}
	start := time.Now()
	err = w.SendTransaction(ctx, signed)
	metrics.Global.RecordRPCCall(time.Since(start), err)
	if err != nil {
		a.nonces.Reset(from.Hex())
		if isRejectedByNode(err) {
			return common.Hash{}, paycarterr.WithDetails(paycarterr.WithCause(paycarterr.ErrOnChainRejected, err), map[string]string{
				"call": call.String(),
			})
		}
		return common.Hash{}, paycarterr.WithDetails(paycarterr.WithCause(paycarterr.ErrUnexpectedProvider, err), map[string]string{
			"call":    call.String(),
			"tx_hash": signed.Hash().Hex(),
		})
	}

	metrics.Global.RecordTxSubmitted()
	a.logger.Debug("eth: %s submitted tx=%s nonce=%d gas=%d", call, signed.Hash().Hex(), nonce, gas.GasLimit)
	return signed.Hash(), nil
}

// simulate runs the call through eth_call from the sender.
func (a *Adapter) simulate(ctx context.Context, call Call, msg ethereum.CallMsg) error {
	r, err := a.readBackend(ctx)
	if err != nil {
		return err
	}
	if err = a.limiter.Wait(ctx, a.rpcURL); err != nil {
		return err
	}

	start := time.Now()
	_, err = r.CallContract(ctx, msg, nil)
	metrics.Global.RecordRPCCall(time.Since(start), err)
	if err == nil {
		return nil
	}

	if reason, reverted := revertReason(err); reverted {
		a.logger.Debug("eth: simulation of %s reverted: %s", call, reason)
		return paycarterr.WithDetails(paycarterr.WithCause(paycarterr.ErrOnChainRejected, err), map[string]string{
			"call":          call.String(),
			"revert_reason": reason,
		})
	}
	return classifyProviderError(err)
}
