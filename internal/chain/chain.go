// Package chain provides network identifiers, token-unit math, retry and
// rate limiting shared by the EVM adapter, the backend client and the
// checkout flow.
package chain

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

// Known EVM chain ids.
const (
	ChainIDMainnet     int64 = 1
	ChainIDSepolia     int64 = 11155111
	ChainIDBase        int64 = 8453
	ChainIDBaseSepolia int64 = 84532
)

// networkNames maps known chain ids to display names.
//
//nolint:gochecknoglobals // read-only lookup table
var networkNames = map[int64]string{
	ChainIDMainnet:     "Ethereum Mainnet",
	ChainIDSepolia:     "Sepolia",
	ChainIDBase:        "Base",
	ChainIDBaseSepolia: "Base Sepolia",
}

// NetworkName returns a display name for the chain id.
func NetworkName(chainID *big.Int) string {
	if chainID == nil {
		return "unknown"
	}
	if chainID.IsInt64() {
		if name, ok := networkNames[chainID.Int64()]; ok {
			return name
		}
	}
	return "chain " + chainID.String()
}

// ParseChainID accepts a bare decimal id ("11155111"), a hex id ("0xaa36a7")
// or a CAIP-2 identifier ("eip155:11155111") as reported by wallet providers.
func ParseChainID(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if ns, ref, ok := strings.Cut(s, ":"); ok {
		if ns != "eip155" {
			return nil, paycarterr.WithDetails(paycarterr.ErrInvalidInput, map[string]string{"chain_id": s})
		}
		s = ref
	}

	var (
		id  uint64
		err error
	)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		id, err = strconv.ParseUint(s[2:], 16, 64)
	} else {
		id, err = strconv.ParseUint(s, 10, 64)
	}
	if err != nil || id == 0 {
		return nil, paycarterr.WithDetails(paycarterr.ErrInvalidInput, map[string]string{"chain_id": s})
	}
	return new(big.Int).SetUint64(id), nil
}

// SameChain reports whether a and b are the same non-nil chain id.
func SameChain(a, b *big.Int) bool {
	return a != nil && b != nil && a.Cmp(b) == 0
}

// CAIP2 formats a chain id as an eip155 CAIP-2 identifier.
func CAIP2(chainID *big.Int) string {
	return fmt.Sprintf("eip155:%s", chainID)
}
