package checkout

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mrz1836/paycart/internal/chain/eth"
)

// CorrelationStatus is the outcome of matching a receipt to its event.
type CorrelationStatus int

// Correlation outcomes.
const (
	CorrelationFound CorrelationStatus = iota
	CorrelationNotFound
	CorrelationError
)

// String implements fmt.Stringer.
func (s CorrelationStatus) String() string {
	switch s {
	case CorrelationFound:
		return "found"
	case CorrelationNotFound:
		return "not_found"
	default:
		return "error"
	}
}

// Correlation is the result of Correlate. OrderID is set only when found.
type Correlation struct {
	Status  CorrelationStatus
	OrderID *big.Int
	Event   *eth.Event
	Err     error
}

// Correlator finds the application order id emitted by a mined order
// transaction.
type Correlator interface {
	Correlate(ctx context.Context, receipt *types.Receipt) Correlation
}

// EventSource queries decoded contract events.
type EventSource interface {
	QueryEvents(ctx context.Context, q eth.EventQuery) ([]eth.Event, error)
}

// CorrelatorOptions tunes the event lookup.
type CorrelatorOptions struct {
	// IndexDelay is waited once before the first query so the node can
	// index the block's logs.
	IndexDelay time.Duration
	Attempts   int
	Interval   time.Duration
	Timeout    time.Duration
}

// EventCorrelator matches OrderCreated events by transaction hash within
// the receipt's block.
type EventCorrelator struct {
	events   EventSource
	contract *eth.Contract
	opts     CorrelatorOptions
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewEventCorrelator returns a correlator for the order contract.
func NewEventCorrelator(events EventSource, orderContract *eth.Contract, opts CorrelatorOptions) *EventCorrelator {
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	return &EventCorrelator{events: events, contract: orderContract, opts: opts, sleep: sleepCtx}
}

// Correlate implements Correlator.
func (c *EventCorrelator) Correlate(ctx context.Context, receipt *types.Receipt) Correlation {
	if receipt == nil || receipt.BlockNumber == nil {
		return Correlation{Status: CorrelationError, Err: errors.New("receipt has no block number")}
	}
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	if err := c.sleep(ctx, c.opts.IndexDelay); err != nil {
		return Correlation{Status: CorrelationError, Err: err}
	}

	q := eth.EventQuery{
		Contract:  c.contract,
		Event:     eth.EventOrderCreated,
		FromBlock: receipt.BlockNumber,
		ToBlock:   receipt.BlockNumber,
	}

	var lastErr error
	scanned := false
	for attempt := 1; attempt <= c.opts.Attempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, c.opts.Interval); err != nil {
				lastErr = err
				break
			}
		}

		events, err := c.events.QueryEvents(ctx, q)
		if err != nil {
			lastErr = err
			continue
		}
		scanned = true

		for i := range events {
			ev := events[i]
			if ev.TxHash != receipt.TxHash {
				continue
			}
			id, ok := ev.BigArg("orderId")
			if !ok {
				return Correlation{Status: CorrelationError, Event: &ev, Err: fmt.Errorf("%s event in %s has no orderId", ev.Name, ev.TxHash.Hex())}
			}
			return Correlation{Status: CorrelationFound, OrderID: id, Event: &ev}
		}
	}

	if !scanned && lastErr != nil {
		return Correlation{Status: CorrelationError, Err: lastErr}
	}
	return Correlation{Status: CorrelationNotFound, Err: lastErr}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
