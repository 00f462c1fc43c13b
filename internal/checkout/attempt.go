package checkout

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/paycart/internal/backend"
	"github.com/mrz1836/paycart/internal/journal"
	"github.com/mrz1836/paycart/internal/pricing"
	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

// Attempt is one run of the state machine.
type Attempt struct {
	ID                string
	UserID            string
	Wallet            common.Address
	Strategy          string
	State             State
	Totals            pricing.Totals
	AmountUnits       *big.Int
	BorrowTx          *common.Hash
	ApproveTx         *common.Hash
	OrderTx           *common.Hash
	BlockNumber       uint64
	BlockchainOrderID string
	BackendOrderID    string
	Order             *backend.CreateOrderRequest
	Failure           error
	StartedAt         time.Time
	FinishedAt        time.Time
}

// Committed reports whether any transaction of this attempt reached the
// network.
func (a *Attempt) Committed() bool {
	return a.BorrowTx != nil || a.ApproveTx != nil || a.OrderTx != nil
}

// TxDetails lists the committed transaction hashes and identifiers.
func (a *Attempt) TxDetails() map[string]string {
	d := map[string]string{"attempt_id": a.ID}
	if a.BorrowTx != nil {
		d["borrow_tx_hash"] = a.BorrowTx.Hex()
	}
	if a.ApproveTx != nil {
		d["approve_tx_hash"] = a.ApproveTx.Hex()
	}
	if a.OrderTx != nil {
		d["order_tx_hash"] = a.OrderTx.Hex()
		d["tx_hash"] = a.OrderTx.Hex()
	}
	if a.BlockNumber > 0 {
		d["block_number"] = big.NewInt(0).SetUint64(a.BlockNumber).String()
	}
	if a.BlockchainOrderID != "" {
		d["blockchain_order_id"] = a.BlockchainOrderID
	}
	return d
}

func (a *Attempt) journalEntry() journal.Entry {
	e := journal.Entry{
		AttemptID:         a.ID,
		UserID:            a.UserID,
		Wallet:            a.Wallet.Hex(),
		Strategy:          a.Strategy,
		State:             string(a.State),
		BlockNumber:       a.BlockNumber,
		BlockchainOrderID: a.BlockchainOrderID,
		BackendOrderID:    a.BackendOrderID,
		CreatedAt:         a.StartedAt,
	}
	if !a.Totals.IsZero() {
		e.TotalBase = a.Totals.TotalBase.String()
		e.TotalQuote = a.Totals.TotalQuote.String()
	}
	if a.AmountUnits != nil {
		e.AmountUnits = a.AmountUnits.String()
	}
	e.BorrowTx = hashString(a.BorrowTx)
	e.ApproveTx = hashString(a.ApproveTx)
	e.OrderTx = hashString(a.OrderTx)
	if a.Order != nil {
		if payload, err := json.Marshal(a.Order); err == nil {
			e.Payload = payload
		}
	}
	if a.Failure != nil {
		e.ErrorCode = paycarterr.Code(a.Failure)
		e.ErrorMessage = a.Failure.Error()
	}
	return e
}

func hashString(h *common.Hash) string {
	if h == nil {
		return ""
	}
	return h.Hex()
}

func hashPtr(h common.Hash) *common.Hash {
	return &h
}
