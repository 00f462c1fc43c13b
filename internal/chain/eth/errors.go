package eth

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/mrz1836/paycart/internal/chain"
	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

// Adapter errors.
var (
	ErrRPCURLRequired = &paycarterr.PaycartError{
		Code:     "ETH_RPC_URL_REQUIRED",
		Message:  "RPC URL is required",
		ExitCode: paycarterr.ExitInput,
	}

	ErrChainIDRequired = &paycarterr.PaycartError{
		Code:     "ETH_CHAIN_ID_REQUIRED",
		Message:  "target chain id is required",
		ExitCode: paycarterr.ExitInput,
	}

	ErrInvalidCall = &paycarterr.PaycartError{
		Code:     "ETH_INVALID_CALL",
		Message:  "invalid contract call",
		ExitCode: paycarterr.ExitGeneral,
	}

	ErrSenderMismatch = &paycarterr.PaycartError{
		Code:     "ETH_SENDER_MISMATCH",
		Message:  "transaction sender does not match the connected wallet",
		ExitCode: paycarterr.ExitInput,
	}
)

// dataError is implemented by JSON-RPC errors that carry revert data.
type dataError interface {
	ErrorData() any
}

// revertReason extracts a human readable revert reason from a call error.
// ok is false when err does not look like an execution revert.
func revertReason(err error) (string, bool) {
	var de dataError
	if errors.As(err, &de) {
		if s, isString := de.ErrorData().(string); isString {
			if data, decodeErr := hexutil.Decode(s); decodeErr == nil {
				if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					return reason, true
				}
				return s, true
			}
		}
	}

	msg := err.Error()
	if strings.Contains(msg, "execution reverted") || strings.Contains(msg, "revert") {
		_, reason, found := strings.Cut(msg, "execution reverted: ")
		if !found {
			reason = msg
		}
		return reason, true
	}
	return "", false
}

// isRejectedByNode reports errors a node returns for a well-formed but
// unacceptable transaction, which are not transport failures.
func isRejectedByNode(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"insufficient funds", "nonce too low", "replacement transaction underpriced", "intrinsic gas too low", "exceeds block gas limit"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// classifyProviderError maps a transport failure to a retryable network
// error, leaving typed errors untouched.
func classifyProviderError(err error) error {
	var pe *paycarterr.PaycartError
	if errors.As(err, &pe) {
		return err
	}
	return chain.WrapRetryable(paycarterr.WithCause(paycarterr.ErrNetworkError, err))
}
