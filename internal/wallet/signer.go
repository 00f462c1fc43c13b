// Package wallet loads the shopper's signing key and signs checkout
// transactions, asking for confirmation before each signature.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mrz1836/paycart/internal/chain/eth"
	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

// Request describes a transaction awaiting the user's approval.
type Request struct {
	From     common.Address
	To       common.Address
	ChainID  *big.Int
	Nonce    uint64
	Gas      uint64
	GasPrice *big.Int
	Selector string // 4-byte method selector, 0x-prefixed
}

// ConfirmFunc asks the user to approve a signature. Returning false
// rejects the transaction.
type ConfirmFunc func(ctx context.Context, req Request) (bool, error)

// KeySigner signs with an in-memory secp256k1 key.
type KeySigner struct {
	mu      sync.Mutex
	key     *ecdsa.PrivateKey
	secret  *SecureBytes
	address common.Address
	confirm ConfirmFunc
}

// NewKeySigner wraps key. When confirm is nil every signature is approved.
func NewKeySigner(key *ecdsa.PrivateKey, confirm ConfirmFunc, lock bool) *KeySigner {
	raw := crypto.FromECDSA(key)
	s := &KeySigner{
		key:     key,
		secret:  NewSecureBytes(raw, lock),
		address: crypto.PubkeyToAddress(key.PublicKey),
		confirm: confirm,
	}
	zero(raw)
	return s
}

// Address returns the signing account.
func (s *KeySigner) Address() common.Address {
	return s.address
}

// SignTx asks for confirmation and signs tx for chainID.
func (s *KeySigner) SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	key := s.key
	s.mu.Unlock()
	if key == nil {
		return nil, paycarterr.ErrWalletUnavailable
	}

	if s.confirm != nil {
		req := Request{
			From:     s.address,
			ChainID:  chainID,
			Nonce:    tx.Nonce(),
			Gas:      tx.Gas(),
			GasPrice: tx.GasPrice(),
		}
		if tx.To() != nil {
			req.To = *tx.To()
		}
		if data := tx.Data(); len(data) >= 4 {
			req.Selector = hexutil.Encode(data[:4])
		}

		ok, err := s.confirm(ctx, req)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, paycarterr.WithDetails(paycarterr.ErrUserRejected, map[string]string{
				"to":    req.To.Hex(),
				"nonce": hexutil.EncodeUint64(req.Nonce),
			})
		}
	}

	return types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
}

// Close wipes the key material. The signer cannot sign afterwards.
func (s *KeySigner) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key != nil {
		s.key.D.SetInt64(0)
		s.key = nil
	}
	s.secret.Destroy()
}

// compile-time check
var _ eth.Signer = (*KeySigner)(nil)
