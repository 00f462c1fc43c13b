// Package approval makes sure a spender contract may move enough of the
// payment token before a spending call, sending approve only when needed.
package approval

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mrz1836/paycart/internal/chain/eth"
	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

// Chain is the part of the chain adapter the controller uses.
type Chain interface {
	EnsureNetwork(ctx context.Context) error
	ReadContract(ctx context.Context, call eth.Call) ([]any, error)
	SimulateAndWrite(ctx context.Context, call eth.Call, from common.Address) (common.Hash, error)
	WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Request asks that Spender may move Amount of Token from Owner.
type Request struct {
	Token   *eth.Contract
	Spender common.Address
	Owner   common.Address
	Amount  *big.Int
}

// Result reports what EnsureAllowance did. Approved is false and TxHash nil
// when the existing allowance already covered the amount.
type Result struct {
	Approved  bool
	TxHash    *common.Hash
	Allowance *big.Int
}

// Controller checks and raises ERC-20 allowances.
type Controller struct {
	chain  Chain
	logger eth.LogWriter
}

// NewController returns a controller using chain for reads and writes.
func NewController(chain Chain, logger eth.LogWriter) *Controller {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Controller{chain: chain, logger: logger}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

// Allowance reads token.allowance(owner, spender).
func (c *Controller) Allowance(ctx context.Context, token *eth.Contract, owner, spender common.Address) (*big.Int, error) {
	call := eth.Call{Contract: token, Method: eth.MethodAllowance, Args: []any{owner, spender}}
	values, err := c.chain.ReadContract(ctx, call)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, unexpected(call)
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, unexpected(call)
	}
	return v, nil
}

// EnsureAllowance returns without a transaction when the current allowance
// is at least req.Amount. Otherwise it approves exactly req.Amount, waits
// for the receipt and re-reads the allowance to confirm.
//
// The wallet must be on the target network; a mismatch fails with
// ErrWrongNetwork before anything is sent.
func (c *Controller) EnsureAllowance(ctx context.Context, req Request) (*Result, error) {
	if req.Amount == nil || req.Amount.Sign() < 0 {
		return nil, paycarterr.WithDetails(paycarterr.ErrInvalidAmount, map[string]string{"amount": fmtBig(req.Amount)})
	}
	// Checked here too since this runs outside a checkout as well.
	if err := c.chain.EnsureNetwork(ctx); err != nil {
		return nil, err
	}

	current, err := c.Allowance(ctx, req.Token, req.Owner, req.Spender)
	if err != nil {
		return nil, err
	}
	if current.Cmp(req.Amount) >= 0 {
		c.logger.Debug("approval: allowance %s covers %s, nothing to send", current, req.Amount)
		return &Result{Allowance: current}, nil
	}

	c.logger.Debug("approval: allowance %s below %s, approving %s", current, req.Amount, req.Spender.Hex())
	call := eth.Call{Contract: req.Token, Method: eth.MethodApprove, Args: []any{req.Spender, req.Amount}}
	hash, err := c.chain.SimulateAndWrite(ctx, call, req.Owner)
	if err != nil {
		if errors.Is(err, paycarterr.ErrOnChainRejected) {
			return nil, paycarterr.WithDetails(paycarterr.WithCause(paycarterr.ErrApprovalFailed, err), paycarterr.DetailsOf(err))
		}
		return nil, err
	}

	receipt, err := c.chain.WaitForReceipt(ctx, hash)
	if err != nil {
		return nil, paycarterr.WithDetails(err, map[string]string{"tx_hash": hash.Hex()})
	}
	if !eth.Succeeded(receipt) {
		return nil, paycarterr.WithDetails(paycarterr.ErrApprovalFailed, map[string]string{
			"tx_hash": hash.Hex(),
			"reason":  "approve transaction reverted",
		})
	}

	confirmed, err := c.Allowance(ctx, req.Token, req.Owner, req.Spender)
	if err != nil {
		return nil, paycarterr.WithDetails(err, map[string]string{"tx_hash": hash.Hex()})
	}
	if confirmed.Cmp(req.Amount) < 0 {
		return nil, paycarterr.WithDetails(paycarterr.ErrApprovalFailed, map[string]string{
			"tx_hash":   hash.Hex(),
			"allowance": confirmed.String(),
			"required":  req.Amount.String(),
		})
	}

	return &Result{Approved: true, TxHash: &hash, Allowance: confirmed}, nil
}

func unexpected(call eth.Call) error {
	return paycarterr.WithDetails(paycarterr.ErrUnexpectedProvider, map[string]string{
		"call":   call.String(),
		"reason": "unexpected output shape",
	})
}

func fmtBig(v *big.Int) string {
	if v == nil {
		return "<nil>"
	}
	return v.String()
}
