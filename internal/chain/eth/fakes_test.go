package eth_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/paycart/internal/chain/eth"
	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

var (
	errConnRefused       = errors.New("dial tcp 127.0.0.1:8545: connect: connection refused")
	errInsufficientFunds = errors.New("insufficient funds for gas * price + value")
)

// fakeBackend is an in-memory eth.Backend.
type fakeBackend struct {
	mu sync.Mutex

	chainID   *big.Int
	callFn    func(msg ethereum.CallMsg) ([]byte, error)
	estimate  uint64
	gasPrice  *big.Int
	nonce     uint64
	sendErr   error
	sent      []*types.Transaction
	receipts  map[common.Hash]*types.Receipt
	pending   int // receipt lookups answered with NotFound before the receipt appears
	lookups   int
	logs      []types.Log
	closed    bool
	callCount int
}

func newFakeBackend(chainID int64) *fakeBackend {
	return &fakeBackend{
		chainID:  big.NewInt(chainID),
		gasPrice: big.NewInt(1_000_000_000),
		estimate: 50_000,
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) { return f.chainID, nil }

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	f.callCount++
	fn := f.callFn
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(msg)
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return f.estimate, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) { return f.gasPrice, nil }

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.lookups <= f.pending {
		return nil, ethereum.NotFound
	}
	r, ok := f.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (f *fakeBackend) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	var out []types.Log
	for _, lg := range f.logs {
		if q.FromBlock != nil && lg.BlockNumber < q.FromBlock.Uint64() {
			continue
		}
		if q.ToBlock != nil && lg.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		out = append(out, lg)
	}
	return out, nil
}

func (f *fakeBackend) Close() { f.closed = true }

func (f *fakeBackend) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// fakeSigner signs with an in-memory key.
type fakeSigner struct {
	key    *ecdsa.PrivateKey
	reject bool
}

func newFakeSigner(t *testing.T) *fakeSigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &fakeSigner{key: key}
}

func (s *fakeSigner) Address() common.Address { return crypto.PubkeyToAddress(s.key.PublicKey) }

func (s *fakeSigner) SignTx(_ context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if s.reject {
		return nil, paycarterr.ErrUserRejected
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}

// revertError mimics a JSON-RPC execution revert carrying Error(string) data.
type revertError struct{ data string }

func (e revertError) Error() string  { return "execution reverted" }
func (e revertError) ErrorData() any { return e.data }

func newRevertError(t *testing.T, reason string) revertError {
	t.Helper()
	stringType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	require.NoError(t, err)
	selector := crypto.Keccak256([]byte("Error(string)"))[:4]
	return revertError{data: hexutil.Encode(append(selector, packed...))}
}

func newTestAdapter(t *testing.T, reader, writer *fakeBackend, signer eth.Signer) (*eth.Adapter, *int) {
	t.Helper()
	dials := 0
	a, err := eth.NewAdapter(eth.Options{
		ChainID:      big.NewInt(11155111),
		RPCURL:       "https://rpc.example/read",
		WalletRPCURL: "https://rpc.example/wallet",
		Signer:       signer,
		Dialer: func(_ context.Context, rawURL string) (eth.Backend, error) {
			dials++
			if rawURL == "https://rpc.example/wallet" {
				return writer, nil
			}
			return reader, nil
		},
		ReceiptPollInterval: 1,
		ReceiptTimeout:      1e9,
	})
	require.NoError(t, err)
	return a, &dials
}

func uint256Word(t *testing.T, v int64) []byte {
	t.Helper()
	uintType, err := abi.NewType("uint256", "", nil)
	require.NoError(t, err)
	out, err := abi.Arguments{{Type: uintType}}.Pack(big.NewInt(v))
	require.NoError(t, err)
	return out
}
