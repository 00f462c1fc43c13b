package checkout

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mrz1836/paycart/internal/backend"
	"github.com/mrz1836/paycart/internal/journal"
	"github.com/mrz1836/paycart/internal/notify"
	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

// ReconcileJournal is the journal surface used for manual reconciliation.
// Satisfied by *journal.Store.
type ReconcileJournal interface {
	Get(ctx context.Context, attemptID string) (*journal.Entry, error)
	ListUnreconciled(ctx context.Context) ([]*journal.Entry, error)
	MarkReconciled(ctx context.Context, attemptID, backendOrderID string) error
}

// Reconciler resubmits the order payload of an attempt whose funds moved
// on-chain but whose backend record is missing. Each Persist call submits
// exactly once.
type Reconciler struct {
	Journal   ReconcileJournal
	Orders    OrderStore
	Cart      CartRefresher
	Publisher notify.Publisher
	Logger    LogWriter
	Now       func() time.Time
}

// Pending lists attempts that still need a backend record.
func (r *Reconciler) Pending(ctx context.Context) ([]*journal.Entry, error) {
	return r.Journal.ListUnreconciled(ctx)
}

// Persist submits the stored order for attemptID. blockchainOrderID
// overrides the recorded on-chain id and is required when the event was
// never correlated.
func (r *Reconciler) Persist(ctx context.Context, attemptID, blockchainOrderID string) (*backend.CreateOrderResponse, error) {
	logger := r.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	entry, err := r.Journal.Get(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if entry.Reconciled {
		return nil, paycarterr.WithDetails(paycarterr.ErrInvalidInput, map[string]string{
			"attempt_id":       attemptID,
			"backend_order_id": entry.BackendOrderID,
			"reason":           "already reconciled",
		})
	}
	if !entry.NeedsReconciliation() {
		return nil, paycarterr.WithDetails(paycarterr.ErrInvalidInput, map[string]string{
			"attempt_id": attemptID,
			"state":      entry.State,
			"reason":     "attempt does not require reconciliation",
		})
	}
	if len(entry.Payload) == 0 {
		return nil, paycarterr.WithDetails(paycarterr.ErrInvalidInput, map[string]string{
			"attempt_id": attemptID,
			"reason":     "no order payload recorded",
		})
	}

	var order backend.CreateOrderRequest
	if err = json.Unmarshal(entry.Payload, &order); err != nil {
		return nil, paycarterr.WithDetails(paycarterr.WithCause(paycarterr.ErrInvalidInput, err), map[string]string{"attempt_id": attemptID})
	}
	if blockchainOrderID == "" {
		blockchainOrderID = entry.BlockchainOrderID
	}
	if blockchainOrderID == "" {
		return nil, paycarterr.WithSuggestion(
			paycarterr.WithDetails(paycarterr.ErrInvalidInput, map[string]string{
				"attempt_id":    attemptID,
				"order_tx_hash": entry.OrderTx,
				"reason":        "blockchain order id unknown",
			}),
			"look up the OrderCreated event for the order transaction and pass --blockchain-order-id",
		)
	}
	order.BlockchainOrderID = blockchainOrderID

	resp, err := r.Orders.CreateOrder(ctx, order)
	if err != nil {
		return nil, paycarterr.WithDetails(paycarterr.WithCause(paycarterr.ErrBackendPersistFailed, err), map[string]string{
			"attempt_id":          attemptID,
			"blockchain_order_id": blockchainOrderID,
			"order_tx_hash":       entry.OrderTx,
		})
	}

	if err = r.Journal.MarkReconciled(ctx, attemptID, resp.OrderID); err != nil {
		logger.Error("reconcile %s: order %s created but journal not updated: %v", attemptID, resp.OrderID, err)
	}
	if r.Cart != nil {
		r.Cart.Invalidate(ctx, order.UserID)
		if _, err = r.Cart.Refetch(ctx, order.UserID); err != nil {
			logger.Error("reconcile %s: cart refetch failed: %v", attemptID, err)
		}
	}
	if r.Publisher != nil {
		now := time.Now
		if r.Now != nil {
			now = r.Now
		}
		pctx, cancel := sideEffectContext(ctx)
		defer cancel()
		if err = r.Publisher.Publish(pctx, notify.Event{
			Type:              notify.EventOrderReconciled,
			AttemptID:         attemptID,
			UserID:            order.UserID,
			Wallet:            entry.Wallet,
			TotalQuote:        entry.TotalQuote,
			OrderTx:           entry.OrderTx,
			BlockchainOrderID: blockchainOrderID,
			BackendOrderID:    resp.OrderID,
			OccurredAt:        now().UTC(),
		}); err != nil {
			logger.Error("reconcile %s: publish: %v", attemptID, err)
		}
	}
	logger.Debug("reconcile %s: persisted order %s", attemptID, resp.OrderID)
	return resp, nil
}
