package checkout_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/mrz1836/paycart/internal/approval"
	"github.com/mrz1836/paycart/internal/backend"
	"github.com/mrz1836/paycart/internal/chain/eth"
	"github.com/mrz1836/paycart/internal/checkout"
	"github.com/mrz1836/paycart/internal/journal"
	"github.com/mrz1836/paycart/internal/notify"
	"github.com/mrz1836/paycart/internal/observability"
	"github.com/mrz1836/paycart/internal/pricing"
)

var (
	wallet   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	usdc     = eth.MustContract(eth.ABIERC20, "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238")
	orderSys = eth.MustContract(eth.ABIOrderSystem, "0x00000000000000000000000000000000000000d4")
	errBoom  = errors.New("boom")
)

// fakeChain mines every write into its own block and, for createOrder,
// emits OrderCreated unless told not to.
type fakeChain struct {
	mu sync.Mutex

	networkErr error
	allowance  *big.Int
	orderID    *big.Int
	noEvent    bool
	// rejectMethod fails the write of that method with rejectErr
	rejectMethod string
	rejectErr    error
	revertMethod string
	// pendingMethod writes are never mined; waiting on them returns receiptErr
	pendingMethod string
	receiptErr    error
	// gate blocks EnsureNetwork until closed
	gate    chan struct{}
	entered chan struct{}

	networkChecks int
	writes        []eth.Call
	receipts      map[common.Hash]*types.Receipt
	events        []eth.Event
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		allowance: big.NewInt(0),
		orderID:   big.NewInt(42),
		receipts:  map[common.Hash]*types.Receipt{},
	}
}

func (f *fakeChain) EnsureNetwork(ctx context.Context) error {
	f.mu.Lock()
	f.networkChecks++
	gate, entered := f.gate, f.entered
	f.mu.Unlock()
	if gate != nil {
		if entered != nil {
			close(entered)
			f.mu.Lock()
			f.entered = nil
			f.mu.Unlock()
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.networkErr
}

func (f *fakeChain) ReadContract(_ context.Context, call eth.Call) ([]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if call.Method != eth.MethodAllowance {
		return nil, errBoom
	}
	return []any{new(big.Int).Set(f.allowance)}, nil
}

func (f *fakeChain) SimulateAndWrite(_ context.Context, call eth.Call, from common.Address) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if call.Method == f.rejectMethod {
		return common.Hash{}, f.rejectErr
	}
	f.writes = append(f.writes, call)
	n := int64(len(f.writes))
	hash := common.BigToHash(big.NewInt(n))
	block := big.NewInt(100 + n)
	if call.Method == f.pendingMethod {
		return hash, nil
	}

	status := types.ReceiptStatusSuccessful
	if call.Method == f.revertMethod {
		status = types.ReceiptStatusFailed
	}
	f.receipts[hash] = &types.Receipt{TxHash: hash, Status: status, BlockNumber: block}
	if status != types.ReceiptStatusSuccessful {
		return hash, nil
	}

	switch call.Method {
	case eth.MethodApprove:
		f.allowance = new(big.Int).Set(call.Args[1].(*big.Int))
	case eth.MethodCreateOrder:
		if f.noEvent {
			break
		}
		// an unrelated order in the same block
		f.events = append(f.events, eth.Event{
			Name:        eth.EventOrderCreated,
			Address:     call.Contract.Address,
			TxHash:      common.HexToHash("0xff"),
			BlockNumber: block.Uint64(),
			Args:        map[string]any{"orderId": big.NewInt(41), "buyer": common.Address{}, "amount": big.NewInt(1)},
		}, eth.Event{
			Name:        eth.EventOrderCreated,
			Address:     call.Contract.Address,
			TxHash:      hash,
			BlockNumber: block.Uint64(),
			LogIndex:    1,
			Args:        map[string]any{"orderId": f.orderID, "buyer": from, "amount": call.Args[0]},
		})
	}
	return hash, nil
}

func (f *fakeChain) WaitForReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receipts[hash]
	if !ok {
		if f.receiptErr != nil {
			return nil, f.receiptErr
		}
		return nil, errBoom
	}
	return r, nil
}

func (f *fakeChain) QueryEvents(_ context.Context, q eth.EventQuery) ([]eth.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []eth.Event
	for _, ev := range f.events {
		if ev.Name != q.Event || ev.Address != q.Contract.Address {
			continue
		}
		if q.FromBlock != nil && ev.BlockNumber < q.FromBlock.Uint64() {
			continue
		}
		if q.ToBlock != nil && ev.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (f *fakeChain) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.writes))
	for i, w := range f.writes {
		out[i] = w.Method
	}
	return out
}

type stubApprover struct{}

func (stubApprover) EnsureAllowance(context.Context, approval.Request) (*approval.Result, error) {
	return &approval.Result{}, nil
}

type fakeBorrower struct {
	mu     sync.Mutex
	err    error
	calls  int
	asset  common.Address
	amount *big.Int
	user   common.Address
}

func (b *fakeBorrower) Borrow(_ context.Context, asset common.Address, amount *big.Int, user common.Address) (common.Hash, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	b.asset, b.amount, b.user = asset, amount, user
	if b.err != nil {
		return common.Hash{}, b.err
	}
	return common.HexToHash("0xb0"), nil
}

type fakeOrders struct {
	mu     sync.Mutex
	err    error
	orders []backend.CreateOrderRequest
}

func (o *fakeOrders) CreateOrder(_ context.Context, order backend.CreateOrderRequest) (*backend.CreateOrderResponse, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.orders = append(o.orders, order)
	if o.err != nil {
		return nil, o.err
	}
	return &backend.CreateOrderResponse{OrderID: "ord-1", Status: "pending"}, nil
}

func (o *fakeOrders) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.orders)
}

type fakeCart struct {
	mu          sync.Mutex
	err         error
	invalidated []string
	refetched   []string
}

func (c *fakeCart) Invalidate(_ context.Context, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, userID)
}

func (c *fakeCart) Refetch(_ context.Context, userID string) (*backend.Cart, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refetched = append(c.refetched, userID)
	if c.err != nil {
		return nil, c.err
	}
	return &backend.Cart{}, nil
}

type fakeNavigator struct {
	mu    sync.Mutex
	err   error
	views []checkout.View
}

func (n *fakeNavigator) Navigate(_ context.Context, v checkout.View) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.views = append(n.views, v)
	return n.err
}

// fakeJournal keeps the latest entry per attempt and implements both the
// recording and the reconciliation surfaces.
type fakeJournal struct {
	mu         sync.Mutex
	err        error
	records    int
	entries    map[string]journal.Entry
	reconciled map[string]string
}

func newFakeJournal() *fakeJournal {
	return &fakeJournal{entries: map[string]journal.Entry{}, reconciled: map[string]string{}}
}

func (j *fakeJournal) Record(_ context.Context, e journal.Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records++
	if j.err != nil {
		return j.err
	}
	j.entries[e.AttemptID] = e
	return nil
}

func (j *fakeJournal) Get(_ context.Context, id string) (*journal.Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	e, ok := j.entries[id]
	if !ok {
		return nil, errBoom
	}
	return &e, nil
}

func (j *fakeJournal) ListUnreconciled(context.Context) ([]*journal.Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []*journal.Entry
	for _, e := range j.entries {
		if e.NeedsReconciliation() {
			out = append(out, &e)
		}
	}
	return out, nil
}

func (j *fakeJournal) MarkReconciled(_ context.Context, id, backendOrderID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	e := j.entries[id]
	e.Reconciled = true
	e.BackendOrderID = backendOrderID
	j.entries[id] = e
	j.reconciled[id] = backendOrderID
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	err    error
	events []notify.Event
}

func (p *fakePublisher) Publish(_ context.Context, ev notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

// harness wires an orchestrator to fakes plus the real approval
// controller and event correlator.
type harness struct {
	chain     *fakeChain
	borrower  *fakeBorrower
	orders    *fakeOrders
	cart      *fakeCart
	navigator *fakeNavigator
	journal   *fakeJournal
	publisher *fakePublisher
	spans     *tracetest.InMemoryExporter

	mu          sync.Mutex
	transitions []checkout.State

	orch *checkout.Orchestrator
}

func newHarness(t *testing.T, mutate ...func(*harness)) *harness {
	t.Helper()
	h := &harness{
		chain:     newFakeChain(),
		borrower:  &fakeBorrower{},
		orders:    &fakeOrders{},
		cart:      &fakeCart{},
		navigator: &fakeNavigator{},
		journal:   newFakeJournal(),
		publisher: &fakePublisher{},
		spans:     tracetest.NewInMemoryExporter(),
	}
	for _, m := range mutate {
		m(h)
	}

	provider, err := observability.NewWithExporter(observability.Config{ServiceName: "paycart-test"}, h.spans)
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	ids := 0
	h.orch, err = checkout.NewOrchestrator(checkout.Config{
		Chain:      h.chain,
		Approver:   approval.NewController(h.chain, nil),
		Borrower:   h.borrower,
		Orders:     h.orders,
		Cart:       h.cart,
		Correlator: checkout.NewEventCorrelator(h.chain, orderSys, checkout.CorrelatorOptions{Attempts: 2}),
		Journal:    h.journal,
		Publisher:  h.publisher,
		Navigator:  h.navigator,
		Observer: checkout.ObserverFunc(func(_, to checkout.State, _ checkout.Attempt) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.transitions = append(h.transitions, to)
		}),
		Tracer:        provider.Tracer(),
		Converter:     pricing.NewConverter(0.03),
		PaymentToken:  usdc,
		TokenDecimals: 6,
		OrderContract: orderSys,
		Wallet:        wallet,
		NewID: func() string {
			ids++
			return "attempt-" + big.NewInt(int64(ids)).String()
		},
	})
	require.NoError(t, err)
	return h
}

func (h *harness) states() []checkout.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]checkout.State(nil), h.transitions...)
}

// validDraft is one line of 1000 x 2 at a rate of 20 per USD: 2060 base,
// 103 quote.
func validDraft() checkout.Draft {
	return checkout.Draft{
		UserID: "user-1",
		Cart: &backend.Cart{Items: []backend.CartItem{
			{ASIN: "B0001", Title: "Lamp", Price: 1000, Quantity: 2},
		}},
		Rate: &backend.ExchangeRate{SeriesID: "SF43718", Date: "01/05/2025", Value: 20},
		Shipping: checkout.Shipping{
			FullName:   "Ana Perez",
			Street:     "Av. Reforma 1",
			PostalCode: "06600",
			Phone:      "5555555555",
		},
	}
}
