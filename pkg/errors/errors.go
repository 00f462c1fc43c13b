// Package errors provides structured error handling for paycart.
// It defines the checkout failure taxonomy, exit codes, and helpers for
// attaching operational details and suggestions to errors.
//
//nolint:revive // Package name intentionally shadows stdlib for domain-specific error handling
package errors

import (
	"errors"
	"fmt"
	"maps"
	"sort"
)

// Exit codes returned by the CLI.
const (
	ExitSuccess    = 0 // Successful execution
	ExitGeneral    = 1 // General/unknown error
	ExitInput      = 2 // Invalid input or pre-flight failure
	ExitAuth       = 3 // Authentication failed
	ExitNotFound   = 4 // Resource not found
	ExitPermission = 5 // Permission denied or insufficient funds/credit
	ExitReconcile  = 6 // Funds moved but the order record is incomplete
	ExitAborted    = 7 // User rejected a signature or prompt
)

// CodeRetryable marks transient failures. It wraps a more specific error
// and never replaces its code.
const CodeRetryable = "RETRYABLE_ERROR"

// PaycartError is the structured error type for paycart.
type PaycartError struct {
	Code       string            // Machine-readable error code
	Message    string            // Human-readable message
	Details    map[string]string // Additional context (tx hashes, order ids)
	Suggestion string            // Actionable suggestion for user
	Cause      error             // Underlying error
	ExitCode   int               // Exit code for CLI
}

func (e *PaycartError) Error() string {
	msg := e.Message

	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg = fmt.Sprintf("%s (%s: %s)", msg, k, e.Details[k])
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *PaycartError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for PaycartError.
func (e *PaycartError) Is(target error) bool {
	var t *PaycartError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Checkout failure taxonomy.
var (
	ErrFormIncomplete = &PaycartError{
		Code:     "FORM_INCOMPLETE",
		Message:  "shipping form is incomplete",
		ExitCode: ExitInput,
	}

	ErrEmptyCart = &PaycartError{
		Code:     "EMPTY_CART",
		Message:  "cart is empty",
		ExitCode: ExitInput,
	}

	ErrWrongNetwork = &PaycartError{
		Code:       "WRONG_NETWORK",
		Message:    "wallet is connected to the wrong network",
		Suggestion: "Switch the wallet to the configured chain and submit again",
		ExitCode:   ExitInput,
	}

	ErrApprovalFailed = &PaycartError{
		Code:     "APPROVAL_FAILED",
		Message:  "token approval failed",
		ExitCode: ExitGeneral,
	}

	ErrOnChainRejected = &PaycartError{
		Code:     "ONCHAIN_REJECTED",
		Message:  "transaction rejected on-chain",
		ExitCode: ExitGeneral,
	}

	ErrOrderIDNotFound = &PaycartError{
		Code:       "ORDER_ID_NOT_FOUND",
		Message:    "order transaction mined but no OrderCreated event matched it",
		Suggestion: "Funds have moved. Run 'paycart reconcile list' and contact support with the transaction hash",
		ExitCode:   ExitReconcile,
	}

	ErrBackendPersistFailed = &PaycartError{
		Code:       "BACKEND_PERSIST_FAILED",
		Message:    "on-chain order exists but the backend order was not saved",
		Suggestion: "Funds have moved. Run 'paycart reconcile persist <attempt-id>' to submit the order record again",
		ExitCode:   ExitReconcile,
	}

	ErrBorrowCapacityUnavailable = &PaycartError{
		Code:       "BORROW_CAPACITY_UNAVAILABLE",
		Message:    "could not read borrowing capacity",
		Suggestion: "Try again in a moment",
		ExitCode:   ExitGeneral,
	}

	ErrBorrowCapacityInsufficient = &PaycartError{
		Code:     "BORROW_CAPACITY_INSUFFICIENT",
		Message:  "borrowing capacity does not cover the order total",
		ExitCode: ExitPermission,
	}

	ErrUnexpectedProvider = &PaycartError{
		Code:     "UNEXPECTED_PROVIDER_ERROR",
		Message:  "unexpected provider error",
		ExitCode: ExitGeneral,
	}

	ErrUserRejected = &PaycartError{
		Code:     "USER_REJECTED",
		Message:  "request rejected by user",
		ExitCode: ExitAborted,
	}

	ErrCheckoutInFlight = &PaycartError{
		Code:     "CHECKOUT_IN_FLIGHT",
		Message:  "a checkout attempt is already in progress",
		ExitCode: ExitInput,
	}

	ErrAssetNotInReserves = &PaycartError{
		Code:     "ASSET_NOT_IN_RESERVES",
		Message:  "asset is not listed in the lending pool reserves",
		ExitCode: ExitInput,
	}
)

// General sentinels.
var (
	ErrGeneral = &PaycartError{
		Code:     "GENERAL_ERROR",
		Message:  "an error occurred",
		ExitCode: ExitGeneral,
	}

	ErrInvalidInput = &PaycartError{
		Code:     "INVALID_INPUT",
		Message:  "invalid input",
		ExitCode: ExitInput,
	}

	ErrAuthentication = &PaycartError{
		Code:     "AUTHENTICATION_FAILED",
		Message:  "authentication failed",
		ExitCode: ExitAuth,
	}

	ErrNotFound = &PaycartError{
		Code:     "NOT_FOUND",
		Message:  "resource not found",
		ExitCode: ExitNotFound,
	}

	ErrPermission = &PaycartError{
		Code:     "PERMISSION_DENIED",
		Message:  "permission denied",
		ExitCode: ExitPermission,
	}

	ErrInvalidAddress = &PaycartError{
		Code:     "INVALID_ADDRESS",
		Message:  "invalid address format",
		ExitCode: ExitInput,
	}

	ErrInvalidAmount = &PaycartError{
		Code:     "INVALID_AMOUNT",
		Message:  "invalid amount format",
		ExitCode: ExitInput,
	}

	ErrNetworkError = &PaycartError{
		Code:     "NETWORK_ERROR",
		Message:  "network communication failed",
		ExitCode: ExitGeneral,
	}

	ErrRateLimited = &PaycartError{
		Code:     "RATE_LIMITED",
		Message:  "rate limited by remote service",
		ExitCode: ExitGeneral,
	}

	ErrBackend = &PaycartError{
		Code:     "BACKEND_ERROR",
		Message:  "backend request failed",
		ExitCode: ExitGeneral,
	}

	ErrWalletUnavailable = &PaycartError{
		Code:       "WALLET_UNAVAILABLE",
		Message:    "no wallet signer is available",
		Suggestion: "Configure wallet.source or set PAYCART_PRIVATE_KEY",
		ExitCode:   ExitAuth,
	}

	ErrDecryptionFailed = &PaycartError{
		Code:     "DECRYPTION_FAILED",
		Message:  "decryption failed - wrong passphrase or corrupted file",
		ExitCode: ExitAuth,
	}

	ErrInvalidMnemonic = &PaycartError{
		Code:     "INVALID_MNEMONIC",
		Message:  "invalid mnemonic phrase",
		ExitCode: ExitInput,
	}

	ErrConfigNotFound = &PaycartError{
		Code:     "CONFIG_NOT_FOUND",
		Message:  "configuration file not found",
		ExitCode: ExitNotFound,
	}

	ErrConfigInvalid = &PaycartError{
		Code:     "CONFIG_INVALID",
		Message:  "configuration is invalid",
		ExitCode: ExitInput,
	}

	ErrUnknownConfigKey = &PaycartError{
		Code:     "UNKNOWN_CONFIG_KEY",
		Message:  "unknown config key",
		ExitCode: ExitInput,
	}
)

// New creates a new PaycartError with the given code and message.
func New(code, message string) *PaycartError {
	return &PaycartError{
		Code:     code,
		Message:  message,
		ExitCode: ExitGeneral,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	if pe := primary(err); pe != nil {
		return &PaycartError{
			Code:       pe.Code,
			Message:    fmt.Sprintf("%s: %s", msg, pe.Message),
			Details:    pe.Details,
			Suggestion: pe.Suggestion,
			Cause:      err,
			ExitCode:   pe.ExitCode,
		}
	}

	return &PaycartError{
		Code:     "GENERAL_ERROR",
		Message:  msg,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithCause returns a copy of the sentinel carrying cause as its underlying error.
func WithCause(sentinel *PaycartError, cause error) error {
	return &PaycartError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		Details:    sentinel.Details,
		Suggestion: sentinel.Suggestion,
		Cause:      cause,
		ExitCode:   sentinel.ExitCode,
	}
}

// WithDetails adds details to an error. Existing details are kept; keys
// present in both take the new value. The code and exit code come from the
// most specific PaycartError in the chain.
func WithDetails(err error, details map[string]string) error {
	if err == nil {
		return nil
	}

	if pe := primary(err); pe != nil {
		merged := make(map[string]string, len(pe.Details)+len(details))
		maps.Copy(merged, pe.Details)
		maps.Copy(merged, details)
		return &PaycartError{
			Code:       pe.Code,
			Message:    pe.Message,
			Details:    merged,
			Suggestion: pe.Suggestion,
			Cause:      causeOf(err, pe),
			ExitCode:   pe.ExitCode,
		}
	}

	return &PaycartError{
		Code:     "GENERAL_ERROR",
		Message:  err.Error(),
		Details:  details,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithSuggestion adds a suggestion to an error.
func WithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}

	if pe := primary(err); pe != nil {
		return &PaycartError{
			Code:       pe.Code,
			Message:    pe.Message,
			Details:    pe.Details,
			Suggestion: suggestion,
			Cause:      causeOf(err, pe),
			ExitCode:   pe.ExitCode,
		}
	}

	return &PaycartError{
		Code:       "GENERAL_ERROR",
		Message:    err.Error(),
		Suggestion: suggestion,
		Cause:      err,
		ExitCode:   ExitGeneral,
	}
}

// primary returns the first PaycartError in err's tree that is not the
// generic retryable marker, falling back to the marker itself.
func primary(err error) *PaycartError {
	var marker *PaycartError
	var walk func(error) *PaycartError
	walk = func(e error) *PaycartError {
		for e != nil {
			if pe, ok := e.(*PaycartError); ok {
				if pe.Code != CodeRetryable {
					return pe
				}
				if marker == nil {
					marker = pe
				}
			}
			switch u := e.(type) {
			case interface{ Unwrap() []error }:
				for _, inner := range u.Unwrap() {
					if pe := walk(inner); pe != nil {
						return pe
					}
				}
				return nil
			case interface{ Unwrap() error }:
				e = u.Unwrap()
			default:
				return nil
			}
		}
		return nil
	}
	if pe := walk(err); pe != nil {
		return pe
	}
	return marker
}

// causeOf keeps pe's own cause when err is pe, and the whole chain otherwise.
func causeOf(err error, pe *PaycartError) error {
	if top, ok := err.(*PaycartError); ok && top == pe {
		return pe.Cause
	}
	return err
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	if pe := primary(err); pe != nil {
		return pe.ExitCode
	}

	return ExitGeneral
}

// Code returns the error code for an error.
func Code(err error) string {
	if pe := primary(err); pe != nil {
		return pe.Code
	}
	return "GENERAL_ERROR"
}

// DetailsOf returns the details attached to err, or nil.
func DetailsOf(err error) map[string]string {
	var pe *PaycartError
	if errors.As(err, &pe) {
		return pe.Details
	}
	return nil
}

// RequiresReconciliation reports whether err means funds moved on-chain
// without a matching backend order record.
func RequiresReconciliation(err error) bool {
	return errors.Is(err, ErrOrderIDNotFound) || errors.Is(err, ErrBackendPersistFailed)
}

// SafeToRetry reports whether err was raised before anything was committed
// on-chain, so a fresh submission cannot double-spend.
func SafeToRetry(err error) bool {
	switch Code(err) {
	case ErrFormIncomplete.Code, ErrEmptyCart.Code, ErrWrongNetwork.Code,
		ErrBorrowCapacityUnavailable.Code, ErrBorrowCapacityInsufficient.Code,
		ErrCheckoutInFlight.Code:
		return true
	}
	return false
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience.
func As(err error, target any) bool {
	return errors.As(err, target)
}
