package eth

import "sync"

// NonceManager tracks the next nonce per sender so that an approve followed
// immediately by createOrder does not reuse a nonce before the first
// transaction shows up in the node's pending pool.
type NonceManager struct {
	mu     sync.Mutex
	nonces map[string]uint64 // address -> next nonce
}

// NewNonceManager creates a new NonceManager.
func NewNonceManager() *NonceManager {
	return &NonceManager{nonces: make(map[string]uint64)}
}

// Next returns max(pending nonce reported by the node, locally tracked nonce)
// and advances the local counter.
func (nm *NonceManager) Next(address string, pending uint64) uint64 {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	nonce := pending
	if local, ok := nm.nonces[address]; ok && local > pending {
		nonce = local
	}
	nm.nonces[address] = nonce + 1
	return nonce
}

// Reset forgets the local counter for address, used when a signed
// transaction never reached the node.
func (nm *NonceManager) Reset(address string) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	delete(nm.nonces, address)
}
