// Package checkout runs the settlement state machine: validate the form,
// check the wallet's network, optionally borrow, approve the payment token,
// create the on-chain order, correlate its OrderCreated event, persist the
// order on the backend, refresh the cart and navigate to order history.
//
// Nothing is retried automatically. Failures after an on-chain submission
// carry the transaction hashes needed for manual follow-up.
package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/mrz1836/paycart/internal/approval"
	"github.com/mrz1836/paycart/internal/backend"
	"github.com/mrz1836/paycart/internal/chain/eth"
	"github.com/mrz1836/paycart/internal/metrics"
	"github.com/mrz1836/paycart/internal/notify"
	"github.com/mrz1836/paycart/internal/pricing"
	"github.com/mrz1836/paycart/internal/service/cart"
	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

// DefaultHistoryView is where a completed checkout navigates.
const DefaultHistoryView = "order-history"

// sideEffectTimeout bounds journal, publish and navigation calls made after
// the main context may have been canceled.
const sideEffectTimeout = 5 * time.Second

// Config holds the orchestrator's collaborators. Chain, Approver, Orders,
// Correlator, PaymentToken, OrderContract and Wallet are required.
type Config struct {
	Chain         Chain
	Approver      Approver
	Borrower      Borrower
	Orders        OrderStore
	Cart          CartRefresher
	Correlator    Correlator
	Journal       Journal
	Publisher     notify.Publisher
	Navigator     Navigator
	Observer      Observer
	Tracer        trace.Tracer
	Logger        LogWriter
	Converter     pricing.Converter
	PaymentToken  *eth.Contract
	TokenDecimals int32
	OrderContract *eth.Contract
	Wallet        common.Address
	HistoryView   string
	NewID         func() string
	Now           func() time.Time
}

// Orchestrator runs at most one checkout attempt at a time.
type Orchestrator struct {
	cfg Config

	mu      sync.Mutex
	current *Attempt
}

// NewOrchestrator validates cfg and fills optional collaborators.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	missing := map[string]string{}
	if cfg.Chain == nil {
		missing["chain"] = "required"
	}
	if cfg.Approver == nil {
		missing["approver"] = "required"
	}
	if cfg.Orders == nil {
		missing["orders"] = "required"
	}
	if cfg.Correlator == nil {
		missing["correlator"] = "required"
	}
	if cfg.PaymentToken == nil {
		missing["payment_token"] = "required"
	}
	if cfg.OrderContract == nil {
		missing["order_contract"] = "required"
	}
	if eth.IsZeroAddress(cfg.Wallet) {
		missing["wallet"] = "required"
	}
	if len(missing) > 0 {
		return nil, paycarterr.WithDetails(paycarterr.ErrConfigInvalid, missing)
	}

	if cfg.Publisher == nil {
		cfg.Publisher = notify.NopPublisher{}
	}
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer("checkout")
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}
	if cfg.Converter.FeeRate.IsZero() {
		cfg.Converter = pricing.NewConverter(pricing.DefaultFeeRate)
	}
	if cfg.HistoryView == "" {
		cfg.HistoryView = DefaultHistoryView
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{cfg: cfg}, nil
}

// InFlight reports whether an attempt is running.
func (o *Orchestrator) InFlight() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current != nil
}

// Submit runs one checkout attempt to completion or failure. A second
// Submit while one is running fails with ErrCheckoutInFlight and has no
// side effects. The returned attempt is always non-nil when the guard was
// acquired.
func (o *Orchestrator) Submit(ctx context.Context, draft Draft, strategy Strategy) (*Attempt, error) {
	if strategy == nil {
		strategy = DirectPayment{}
	}
	a := &Attempt{
		ID:        o.cfg.NewID(),
		UserID:    draft.UserID,
		Wallet:    o.cfg.Wallet,
		Strategy:  strategy.Name(),
		State:     StateIdle,
		StartedAt: o.cfg.Now().UTC(),
	}

	o.mu.Lock()
	if o.current != nil {
		running := o.current.ID
		o.mu.Unlock()
		return nil, paycarterr.WithDetails(paycarterr.ErrCheckoutInFlight, map[string]string{"attempt_id": running})
	}
	o.current = a
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.current = nil
		o.mu.Unlock()
	}()

	metrics.Global.RecordCheckoutStarted()
	r := &run{o: o, a: a}
	ctx, r.span = o.cfg.Tracer.Start(ctx, "checkout", trace.WithAttributes(
		attribute.String("checkout.attempt_id", a.ID),
		attribute.String("checkout.strategy", a.Strategy),
	))
	defer r.span.End()

	if err := r.execute(ctx, draft, strategy); err != nil {
		return a, r.fail(ctx, err)
	}
	r.complete(ctx)
	return a, nil
}

// run carries the per-attempt tracing state.
type run struct {
	o         *Orchestrator
	a         *Attempt
	span      trace.Span
	stateSpan trace.Span
}

func (r *run) execute(ctx context.Context, draft Draft, strategy Strategy) error {
	cfg := &r.o.cfg
	a := r.a

	ctx = r.enter(ctx, StateValidatingForm)
	if err := draft.Validate(); err != nil {
		return err
	}
	items := payableItems(draft.Cart)
	a.Totals = cfg.Converter.Compute(cart.PricingItems(&backend.Cart{Items: items}), cart.PricingRate(draft.Rate))
	units, err := a.Totals.QuoteUnits(cfg.TokenDecimals)
	if err != nil {
		return paycarterr.WithCause(paycarterr.ErrInvalidAmount, err)
	}
	if units.Sign() <= 0 {
		return paycarterr.ErrEmptyCart
	}
	a.AmountUnits = units
	if err = strategy.check(a.Totals.TotalQuote); err != nil {
		return err
	}
	if _, borrow := strategy.(BorrowThenPay); borrow && cfg.Borrower == nil {
		return paycarterr.WithDetails(paycarterr.ErrConfigInvalid, map[string]string{"borrower": "required for borrow_then_pay"})
	}
	a.Order = &backend.CreateOrderRequest{
		UserID:               draft.UserID,
		Items:                backend.OrderItems(items),
		TotalAmount:          a.Totals.TotalBase.InexactFloat64(),
		TotalAmountUSD:       a.Totals.TotalQuote.InexactFloat64(),
		FullName:             draft.Shipping.FullName,
		Street:               draft.Shipping.Street,
		PostalCode:           draft.Shipping.PostalCode,
		Phone:                draft.Shipping.Phone,
		DeliveryInstructions: draft.Shipping.DeliveryInstructions,
	}

	// Approver and Borrower re-check the network themselves since they also
	// run outside a checkout; the extra chain id reads are accepted.
	ctx = r.enter(ctx, StateCheckingNetwork)
	if err = cfg.Chain.EnsureNetwork(ctx); err != nil {
		return err
	}

	if _, borrow := strategy.(BorrowThenPay); borrow {
		ctx = r.enter(ctx, StateBorrowing)
		hash, borrowErr := cfg.Borrower.Borrow(ctx, cfg.PaymentToken.Address, units, a.Wallet)
		if hash != (common.Hash{}) {
			a.BorrowTx = hashPtr(hash)
		}
		if borrowErr != nil {
			return borrowErr
		}
	}

	ctx = r.enter(ctx, StateApproving)
	res, err := cfg.Approver.EnsureAllowance(ctx, approval.Request{
		Token:   cfg.PaymentToken,
		Spender: cfg.OrderContract.Address,
		Owner:   a.Wallet,
		Amount:  units,
	})
	if res != nil && res.TxHash != nil {
		a.ApproveTx = res.TxHash
	}
	if err != nil {
		if a.ApproveTx == nil {
			if h, ok := txHashDetail(err); ok {
				a.ApproveTx = &h
			}
		}
		return err
	}

	ctx = r.enter(ctx, StateCreatingOnChainOrder)
	call := eth.Call{Contract: cfg.OrderContract, Method: eth.MethodCreateOrder, Args: []any{units}}
	hash, err := cfg.Chain.SimulateAndWrite(ctx, call, a.Wallet)
	if err != nil {
		return err
	}
	a.OrderTx = hashPtr(hash)
	receipt, err := cfg.Chain.WaitForReceipt(ctx, hash)
	if err != nil {
		return err
	}
	if receipt.BlockNumber != nil {
		a.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if !eth.Succeeded(receipt) {
		return paycarterr.WithDetails(paycarterr.ErrOnChainRejected, map[string]string{"reason": "order transaction reverted"})
	}

	ctx = r.enter(ctx, StateWaitingForEvent)
	corr := cfg.Correlator.Correlate(ctx, receipt)
	switch corr.Status {
	case CorrelationFound:
		a.BlockchainOrderID = corr.OrderID.String()
		a.Order.BlockchainOrderID = a.BlockchainOrderID
	case CorrelationNotFound:
		return paycarterr.ErrOrderIDNotFound
	default:
		return paycarterr.WithCause(paycarterr.ErrOrderIDNotFound, corr.Err)
	}

	ctx = r.enter(ctx, StatePersistingOrder)
	resp, err := cfg.Orders.CreateOrder(ctx, *a.Order)
	if err != nil {
		return paycarterr.WithDetails(paycarterr.WithCause(paycarterr.ErrBackendPersistFailed, err), map[string]string{
			"backend_code": paycarterr.Code(err),
		})
	}
	a.BackendOrderID = resp.OrderID

	ctx = r.enter(ctx, StateRefetchingCart)
	if cfg.Cart != nil {
		cfg.Cart.Invalidate(ctx, a.UserID)
		if _, refetchErr := cfg.Cart.Refetch(ctx, a.UserID); refetchErr != nil {
			cfg.Logger.Error("checkout %s: cart refetch failed, order %s exists: %v", a.ID, a.BackendOrderID, refetchErr)
		}
	}

	ctx = r.enter(ctx, StateNavigating)
	if cfg.Navigator != nil {
		if navErr := cfg.Navigator.Navigate(ctx, View{Name: cfg.HistoryView, UserID: a.UserID}); navErr != nil {
			cfg.Logger.Error("checkout %s: navigate to %s: %v", a.ID, cfg.HistoryView, navErr)
		}
	}
	return nil
}

// enter moves the attempt to next, records the transition and opens a
// span for the new state.
func (r *run) enter(ctx context.Context, next State) context.Context {
	r.transition(ctx, next)
	ctx, r.stateSpan = r.o.cfg.Tracer.Start(ctx, "checkout."+string(next))
	return ctx
}

func (r *run) transition(ctx context.Context, next State) {
	cfg := &r.o.cfg
	from := r.a.State
	if !from.CanTransitionTo(next) {
		cfg.Logger.Error("checkout %s: unexpected transition %s -> %s", r.a.ID, from, next)
	}
	if r.stateSpan != nil {
		r.stateSpan.End()
		r.stateSpan = nil
	}
	r.a.State = next
	if next.IsTerminal() || next == StateIdle {
		r.a.FinishedAt = cfg.Now().UTC()
	}
	cfg.Logger.Debug("checkout %s: %s -> %s", r.a.ID, from, next)
	r.span.AddEvent("transition", trace.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(next)),
	))

	if cfg.Journal != nil {
		jctx, cancel := sideEffectContext(ctx)
		if err := cfg.Journal.Record(jctx, r.a.journalEntry()); err != nil {
			cfg.Logger.Error("checkout %s: journal record %s: %v", r.a.ID, next, err)
		}
		cancel()
	}
	if cfg.Observer != nil {
		cfg.Observer.OnTransition(from, next, *r.a)
	}
}

func (r *run) complete(ctx context.Context) {
	cfg := &r.o.cfg
	a := r.a
	r.transition(ctx, StateCompleted)
	metrics.Global.RecordCheckoutOutcome(metrics.OutcomeCompleted)
	r.span.SetStatus(codes.Ok, "")

	r.publish(ctx, notify.Event{
		Type:              notify.EventCheckoutCompleted,
		AttemptID:         a.ID,
		UserID:            a.UserID,
		Wallet:            a.Wallet.Hex(),
		TotalQuote:        a.Totals.TotalQuote.String(),
		OrderTx:           hashString(a.OrderTx),
		BlockchainOrderID: a.BlockchainOrderID,
		BackendOrderID:    a.BackendOrderID,
	})
	cfg.Logger.Debug("checkout %s: completed order=%s onchain=%s", a.ID, a.BackendOrderID, a.BlockchainOrderID)
}

// fail classifies err, attaches the attempt's committed hashes and moves
// the attempt to failed, or back to idle when the user declined.
func (r *run) fail(ctx context.Context, err error) error {
	cfg := &r.o.cfg
	a := r.a

	if orderOutcomeUnknown(a, err) {
		err = paycarterr.WithDetails(paycarterr.WithCause(paycarterr.ErrOrderIDNotFound, err), map[string]string{
			"reason": "order transaction sent but not confirmed",
		})
	}
	var pe *paycarterr.PaycartError
	if !errors.As(err, &pe) {
		err = paycarterr.WithCause(paycarterr.ErrUnexpectedProvider, err)
	}
	err = paycarterr.WithDetails(err, a.TxDetails())
	a.Failure = err

	r.span.RecordError(err)
	r.span.SetStatus(codes.Error, paycarterr.Code(err))
	r.span.SetAttributes(attribute.String("checkout.error_code", paycarterr.Code(err)))

	if errors.Is(err, paycarterr.ErrUserRejected) {
		r.transition(ctx, StateIdle)
		metrics.Global.RecordCheckoutOutcome(metrics.OutcomeAborted)
		cfg.Logger.Debug("checkout %s: declined by user", a.ID)
		return err
	}

	r.transition(ctx, StateFailed)
	if paycarterr.RequiresReconciliation(err) {
		metrics.Global.RecordCheckoutOutcome(metrics.OutcomeReconcile)
		cfg.Logger.Error("checkout %s: reconciliation required: %v", a.ID, err)
		r.publish(ctx, notify.Event{
			Type:              notify.EventReconciliationRequired,
			AttemptID:         a.ID,
			UserID:            a.UserID,
			Wallet:            a.Wallet.Hex(),
			TotalQuote:        a.Totals.TotalQuote.String(),
			OrderTx:           hashString(a.OrderTx),
			BlockchainOrderID: a.BlockchainOrderID,
			ErrorCode:         paycarterr.Code(err),
			Details:           paycarterr.DetailsOf(err),
		})
		return err
	}

	metrics.Global.RecordCheckoutOutcome(metrics.OutcomeFailed)
	if a.Committed() {
		cfg.Logger.Error("checkout %s: failed after submission: %v", a.ID, err)
	} else {
		cfg.Logger.Debug("checkout %s: failed: %v", a.ID, err)
	}
	return err
}

func (r *run) publish(ctx context.Context, ev notify.Event) {
	ev.OccurredAt = r.o.cfg.Now().UTC()
	pctx, cancel := sideEffectContext(ctx)
	defer cancel()
	if err := r.o.cfg.Publisher.Publish(pctx, ev); err != nil {
		r.o.cfg.Logger.Error("checkout %s: publish %s: %v", ev.AttemptID, ev.Type, err)
	}
}

// sideEffectContext survives cancellation of ctx so a canceled checkout is
// still journaled.
func sideEffectContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
}

// orderOutcomeUnknown reports whether the order transaction was sent and the
// failure leaves its funds without a backend record.
func orderOutcomeUnknown(a *Attempt, err error) bool {
	if a.OrderTx == nil || a.BackendOrderID != "" {
		return false
	}
	return !paycarterr.RequiresReconciliation(err) && !errors.Is(err, paycarterr.ErrOnChainRejected)
}

func txHashDetail(err error) (common.Hash, bool) {
	h, ok := paycarterr.DetailsOf(err)["tx_hash"]
	if !ok || len(h) != 2+2*common.HashLength {
		return common.Hash{}, false
	}
	b, err := hexutil.Decode(h)
	if err != nil {
		return common.Hash{}, false
	}
	return common.BytesToHash(b), true
}
