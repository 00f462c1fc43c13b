package checkout

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mrz1836/paycart/internal/approval"
	"github.com/mrz1836/paycart/internal/backend"
	"github.com/mrz1836/paycart/internal/chain/eth"
	"github.com/mrz1836/paycart/internal/journal"
)

// Chain is the part of the chain adapter the orchestrator drives directly.
// Satisfied by *eth.Adapter.
type Chain interface {
	EnsureNetwork(ctx context.Context) error
	SimulateAndWrite(ctx context.Context, call eth.Call, from common.Address) (common.Hash, error)
	WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Approver raises the token allowance. Satisfied by *approval.Controller.
type Approver interface {
	EnsureAllowance(ctx context.Context, req approval.Request) (*approval.Result, error)
}

// Borrower borrows from the lending market. Satisfied by *lending.Gateway.
type Borrower interface {
	Borrow(ctx context.Context, asset common.Address, amount *big.Int, onBehalfOf common.Address) (common.Hash, error)
}

// OrderStore persists orders. Satisfied by *backend.Client.
type OrderStore interface {
	CreateOrder(ctx context.Context, order backend.CreateOrderRequest) (*backend.CreateOrderResponse, error)
}

// CartRefresher reloads the user's cart. Satisfied by *cart.Service.
type CartRefresher interface {
	Invalidate(ctx context.Context, userID string)
	Refetch(ctx context.Context, userID string) (*backend.Cart, error)
}

// Journal records attempts. Satisfied by *journal.Store.
type Journal interface {
	Record(ctx context.Context, e journal.Entry) error
}

// View is a screen the front end can show.
type View struct {
	Name   string
	UserID string
}

// Navigator moves the front end to a view.
type Navigator interface {
	Navigate(ctx context.Context, v View) error
}

// Observer is told about every state change. The attempt is a copy.
type Observer interface {
	OnTransition(from, to State, a Attempt)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(from, to State, a Attempt)

// OnTransition implements Observer.
func (f ObserverFunc) OnTransition(from, to State, a Attempt) { f(from, to, a) }

// LogWriter provides logging capabilities.
type LogWriter interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}
