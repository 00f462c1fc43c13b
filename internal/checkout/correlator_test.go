package checkout_test

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/paycart/internal/chain/eth"
	"github.com/mrz1836/paycart/internal/checkout"
)

// scriptedEvents returns one canned response per query.
type scriptedEvents struct {
	mu        sync.Mutex
	responses []eventsResponse
	queries   []eth.EventQuery
}

type eventsResponse struct {
	events []eth.Event
	err    error
}

func (s *scriptedEvents) QueryEvents(_ context.Context, q eth.EventQuery) ([]eth.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	if len(s.responses) == 0 {
		return nil, nil
	}
	r := s.responses[0]
	s.responses = s.responses[1:]
	return r.events, r.err
}

func orderEvent(tx common.Hash, id int64) eth.Event {
	return eth.Event{
		Name:        eth.EventOrderCreated,
		TxHash:      tx,
		BlockNumber: 7,
		Args:        map[string]any{"orderId": big.NewInt(id)},
	}
}

func minedReceipt(tx common.Hash) *types.Receipt {
	return &types.Receipt{TxHash: tx, Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(7)}
}

func TestCorrelate_MatchesByTxHash(t *testing.T) {
	t.Parallel()
	tx := common.HexToHash("0xabc")
	src := &scriptedEvents{responses: []eventsResponse{{events: []eth.Event{
		orderEvent(common.HexToHash("0xdef"), 41),
		orderEvent(tx, 42),
	}}}}

	c := checkout.NewEventCorrelator(src, orderSys, checkout.CorrelatorOptions{Attempts: 3})
	res := c.Correlate(context.Background(), minedReceipt(tx))

	require.Equal(t, checkout.CorrelationFound, res.Status)
	assert.Equal(t, big.NewInt(42), res.OrderID)
	require.NotNil(t, res.Event)
	assert.Equal(t, tx, res.Event.TxHash)

	require.Len(t, src.queries, 1)
	q := src.queries[0]
	assert.Equal(t, eth.EventOrderCreated, q.Event)
	assert.Equal(t, big.NewInt(7), q.FromBlock)
	assert.Equal(t, big.NewInt(7), q.ToBlock)
	assert.Same(t, orderSys, q.Contract)
}

func TestCorrelate_RetriesUntilIndexed(t *testing.T) {
	t.Parallel()
	tx := common.HexToHash("0xabc")
	src := &scriptedEvents{responses: []eventsResponse{
		{},
		{err: errBoom},
		{events: []eth.Event{orderEvent(tx, 9)}},
	}}

	c := checkout.NewEventCorrelator(src, orderSys, checkout.CorrelatorOptions{Attempts: 3})
	res := c.Correlate(context.Background(), minedReceipt(tx))

	require.Equal(t, checkout.CorrelationFound, res.Status)
	assert.Equal(t, big.NewInt(9), res.OrderID)
	assert.Len(t, src.queries, 3)
}

func TestCorrelate_NotFound(t *testing.T) {
	t.Parallel()
	src := &scriptedEvents{responses: []eventsResponse{
		{events: []eth.Event{orderEvent(common.HexToHash("0xdef"), 41)}},
	}}

	c := checkout.NewEventCorrelator(src, orderSys, checkout.CorrelatorOptions{Attempts: 2})
	res := c.Correlate(context.Background(), minedReceipt(common.HexToHash("0xabc")))

	assert.Equal(t, checkout.CorrelationNotFound, res.Status)
	assert.Nil(t, res.OrderID)
	assert.Len(t, src.queries, 2)
	assert.Equal(t, "not_found", res.Status.String())
}

func TestCorrelate_AllQueriesFailed(t *testing.T) {
	t.Parallel()
	src := &scriptedEvents{responses: []eventsResponse{{err: errBoom}, {err: errBoom}}}

	c := checkout.NewEventCorrelator(src, orderSys, checkout.CorrelatorOptions{Attempts: 2})
	res := c.Correlate(context.Background(), minedReceipt(common.HexToHash("0xabc")))

	assert.Equal(t, checkout.CorrelationError, res.Status)
	require.ErrorIs(t, res.Err, errBoom)
}

func TestCorrelate_EventWithoutOrderID(t *testing.T) {
	t.Parallel()
	tx := common.HexToHash("0xabc")
	ev := orderEvent(tx, 1)
	ev.Args = map[string]any{}
	src := &scriptedEvents{responses: []eventsResponse{{events: []eth.Event{ev}}}}

	c := checkout.NewEventCorrelator(src, orderSys, checkout.CorrelatorOptions{})
	res := c.Correlate(context.Background(), minedReceipt(tx))

	assert.Equal(t, checkout.CorrelationError, res.Status)
	require.Error(t, res.Err)
}

func TestCorrelate_ReceiptWithoutBlock(t *testing.T) {
	t.Parallel()
	src := &scriptedEvents{}
	c := checkout.NewEventCorrelator(src, orderSys, checkout.CorrelatorOptions{})

	res := c.Correlate(context.Background(), &types.Receipt{})
	assert.Equal(t, checkout.CorrelationError, res.Status)
	assert.Empty(t, src.queries)
}

func TestCorrelate_CanceledDuringIndexDelay(t *testing.T) {
	t.Parallel()
	src := &scriptedEvents{}
	c := checkout.NewEventCorrelator(src, orderSys, checkout.CorrelatorOptions{IndexDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := c.Correlate(ctx, minedReceipt(common.HexToHash("0xabc")))

	assert.Equal(t, checkout.CorrelationError, res.Status)
	require.ErrorIs(t, res.Err, context.Canceled)
	assert.Empty(t, src.queries)
}
