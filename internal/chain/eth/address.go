package eth

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

// ParseAddress validates and parses a 0x-prefixed hex address.
// Mixed-case input must carry a valid EIP-55 checksum.
func ParseAddress(address string) (common.Address, error) {
	address = strings.TrimSpace(address)
	if !strings.HasPrefix(address, "0x") || !common.IsHexAddress(address) {
		return common.Address{}, paycarterr.WithDetails(paycarterr.ErrInvalidAddress, map[string]string{
			"address": address,
		})
	}

	addr := common.HexToAddress(address)
	body := address[2:]
	mixedCase := body != strings.ToLower(body) && body != strings.ToUpper(body)
	if mixedCase && addr.Hex() != address {
		return common.Address{}, paycarterr.WithDetails(paycarterr.ErrInvalidAddress, map[string]string{
			"address": address,
			"reason":  "checksum mismatch",
		})
	}
	return addr, nil
}

// IsZeroAddress reports whether addr is the zero address.
func IsZeroAddress(addr common.Address) bool {
	return addr == common.Address{}
}
