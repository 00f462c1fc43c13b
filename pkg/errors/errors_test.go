package errors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

var (
	errInner     = errors.New("inner")
	errRootCause = errors.New("root cause")
	errPlain     = errors.New("plain error")
	errPlainCode = errors.New("plain")
	errRefused   = errors.New("dial tcp 127.0.0.1:8545: connect: connection refused")
)

func TestExitCodes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"success", nil, paycarterr.ExitSuccess},
		{"general error", paycarterr.ErrGeneral, paycarterr.ExitGeneral},
		{"input error", paycarterr.ErrInvalidInput, paycarterr.ExitInput},
		{"auth error", paycarterr.ErrAuthentication, paycarterr.ExitAuth},
		{"not found error", paycarterr.ErrNotFound, paycarterr.ExitNotFound},
		{"permission error", paycarterr.ErrPermission, paycarterr.ExitPermission},
		{"insufficient credit", paycarterr.ErrBorrowCapacityInsufficient, paycarterr.ExitPermission},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code := paycarterr.ExitCode(tt.err)
			assert.Equal(t, tt.expected, code)
		})
	}
}

func TestExitCodeWrappedError(t *testing.T) {
	t.Parallel()
	wrapped := paycarterr.Wrap(paycarterr.ErrNotFound, "order 42")
	code := paycarterr.ExitCode(wrapped)
	assert.Equal(t, paycarterr.ExitNotFound, code)
}

func TestSentinelErrors(t *testing.T) {
	t.Parallel()
	// Verify that wrapping preserves error identity
	wrapped := paycarterr.Wrap(paycarterr.ErrGeneral, "wrapped")
	require.ErrorIs(t, wrapped, paycarterr.ErrGeneral)

	wrapped = paycarterr.Wrap(paycarterr.ErrInvalidInput, "wrapped")
	require.ErrorIs(t, wrapped, paycarterr.ErrInvalidInput)

	wrapped = paycarterr.Wrap(paycarterr.ErrAuthentication, "wrapped")
	require.ErrorIs(t, wrapped, paycarterr.ErrAuthentication)

	wrapped = paycarterr.Wrap(paycarterr.ErrNotFound, "wrapped")
	require.ErrorIs(t, wrapped, paycarterr.ErrNotFound)

	wrapped = paycarterr.Wrap(paycarterr.ErrPermission, "wrapped")
	require.ErrorIs(t, wrapped, paycarterr.ErrPermission)

	wrapped = paycarterr.Wrap(paycarterr.ErrBorrowCapacityInsufficient, "wrapped")
	require.ErrorIs(t, wrapped, paycarterr.ErrBorrowCapacityInsufficient)
}

func TestErrorCode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err      error
		expected string
	}{
		{paycarterr.ErrGeneral, "GENERAL_ERROR"},
		{paycarterr.ErrInvalidInput, "INVALID_INPUT"},
		{paycarterr.ErrAuthentication, "AUTHENTICATION_FAILED"},
		{paycarterr.ErrNotFound, "NOT_FOUND"},
		{paycarterr.ErrPermission, "PERMISSION_DENIED"},
		{paycarterr.ErrBorrowCapacityInsufficient, "BORROW_CAPACITY_INSUFFICIENT"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			t.Parallel()
			var se *paycarterr.PaycartError
			require.ErrorAs(t, tt.err, &se)
			assert.Equal(t, tt.expected, se.Code)
		})
	}
}

func TestWithDetails(t *testing.T) {
	t.Parallel()
	details := map[string]string{
		"required":  "100",
		"available": "50",
		"symbol":    "USDC",
	}

	err := paycarterr.WithDetails(paycarterr.ErrBorrowCapacityInsufficient, details)

	var se *paycarterr.PaycartError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, details, se.Details)
}

func TestWithSuggestion(t *testing.T) {
	t.Parallel()
	suggestion := "Run 'paycart borrow-capacity' to see available credit"
	err := paycarterr.WithSuggestion(paycarterr.ErrBorrowCapacityInsufficient, suggestion)

	var se *paycarterr.PaycartError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, suggestion, se.Suggestion)
}

func TestWithDetailsAndSuggestion(t *testing.T) {
	t.Parallel()
	details := map[string]string{"key": "value"}
	suggestion := "Try this instead"

	err := paycarterr.WithDetails(paycarterr.ErrGeneral, details)
	err = paycarterr.WithSuggestion(err, suggestion)

	var se *paycarterr.PaycartError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, details, se.Details)
	assert.Equal(t, suggestion, se.Suggestion)
}

func TestWrap(t *testing.T) {
	t.Parallel()
	wrapped := paycarterr.Wrap(paycarterr.ErrNotFound, "order %s", "42")
	assert.Contains(t, wrapped.Error(), "order 42")
	assert.ErrorIs(t, wrapped, paycarterr.ErrNotFound)
}

func TestNew(t *testing.T) {
	t.Parallel()
	err := paycarterr.New("CUSTOM_ERROR", "custom error message")
	assert.Equal(t, "custom error message", err.Error())

	var se *paycarterr.PaycartError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "CUSTOM_ERROR", se.Code)
}

func TestPaycartError_Error(t *testing.T) {
	t.Parallel()

	t.Run("message only", func(t *testing.T) {
		t.Parallel()
		err := &paycarterr.PaycartError{Code: "TEST", Message: "something failed"}
		assert.Equal(t, "something failed", err.Error())
	})

	t.Run("with details sorted", func(t *testing.T) {
		t.Parallel()
		err := &paycarterr.PaycartError{
			Code:    "TEST",
			Message: "failed",
			Details: map[string]string{"beta": "2", "alpha": "1"},
		}
		assert.Equal(t, "failed (alpha: 1) (beta: 2)", err.Error())
	})

	t.Run("with cause", func(t *testing.T) {
		t.Parallel()
		err := &paycarterr.PaycartError{
			Code:    "TEST",
			Message: "outer",
			Cause:   errInner,
		}
		assert.Equal(t, "outer: inner", err.Error())
	})

	t.Run("with details and cause", func(t *testing.T) {
		t.Parallel()
		err := &paycarterr.PaycartError{
			Code:    "TEST",
			Message: "outer",
			Details: map[string]string{"key": "val"},
			Cause:   errInner,
		}
		assert.Equal(t, "outer (key: val): inner", err.Error())
	})
}

func TestPaycartError_Error_deterministic(t *testing.T) {
	t.Parallel()
	err := &paycarterr.PaycartError{
		Code:    "TEST",
		Message: "msg",
		Details: map[string]string{
			"charlie": "3",
			"alpha":   "1",
			"bravo":   "2",
			"delta":   "4",
		},
	}
	first := err.Error()
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, err.Error(), "Error() output must be deterministic (iteration %d)", i)
	}
}

func TestPaycartError_Unwrap(t *testing.T) {
	t.Parallel()

	t.Run("with cause", func(t *testing.T) {
		t.Parallel()
		err := &paycarterr.PaycartError{Code: "TEST", Message: "wrapper", Cause: errRootCause}
		assert.Equal(t, errRootCause, err.Unwrap())
	})

	t.Run("nil cause", func(t *testing.T) {
		t.Parallel()
		err := &paycarterr.PaycartError{Code: "TEST", Message: "no cause"}
		assert.NoError(t, err.Unwrap())
	})
}

func TestPaycartError_Is(t *testing.T) {
	t.Parallel()

	t.Run("matching code", func(t *testing.T) {
		t.Parallel()
		a := &paycarterr.PaycartError{Code: "SAME_CODE", Message: "a"}
		b := &paycarterr.PaycartError{Code: "SAME_CODE", Message: "b"}
		assert.True(t, a.Is(b))
	})

	t.Run("different code", func(t *testing.T) {
		t.Parallel()
		a := &paycarterr.PaycartError{Code: "CODE_A", Message: "a"}
		b := &paycarterr.PaycartError{Code: "CODE_B", Message: "b"}
		assert.False(t, a.Is(b))
	})

	t.Run("non-PaycartError target", func(t *testing.T) {
		t.Parallel()
		a := &paycarterr.PaycartError{Code: "TEST", Message: "a"}
		assert.False(t, a.Is(errPlain))
	})
}

func TestAs(t *testing.T) {
	t.Parallel()

	t.Run("PaycartError target", func(t *testing.T) {
		t.Parallel()
		err := paycarterr.Wrap(paycarterr.ErrNotFound, "wrapped")
		var se *paycarterr.PaycartError
		assert.True(t, paycarterr.As(err, &se))
		assert.Equal(t, "NOT_FOUND", se.Code)
	})

	t.Run("non-PaycartError", func(t *testing.T) {
		t.Parallel()
		var se *paycarterr.PaycartError
		assert.False(t, paycarterr.As(errPlain, &se))
	})
}

func TestIs(t *testing.T) {
	t.Parallel()

	t.Run("matching sentinel", func(t *testing.T) {
		t.Parallel()
		wrapped := paycarterr.Wrap(paycarterr.ErrNotFound, "context")
		assert.True(t, paycarterr.Is(wrapped, paycarterr.ErrNotFound))
	})

	t.Run("non-matching", func(t *testing.T) {
		t.Parallel()
		wrapped := paycarterr.Wrap(paycarterr.ErrNotFound, "context")
		assert.False(t, paycarterr.Is(wrapped, paycarterr.ErrPermission))
	})

	t.Run("nil error", func(t *testing.T) {
		t.Parallel()
		assert.False(t, paycarterr.Is(nil, paycarterr.ErrGeneral))
	})
}

func TestCode_edgeCases(t *testing.T) {
	t.Parallel()

	t.Run("PaycartError", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "NOT_FOUND", paycarterr.Code(paycarterr.ErrNotFound))
	})

	t.Run("non-PaycartError", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "GENERAL_ERROR", paycarterr.Code(errPlainCode))
	})

	t.Run("nil", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "GENERAL_ERROR", paycarterr.Code(nil))
	})
}

func TestWrap_edgeCases(t *testing.T) {
	t.Parallel()

	t.Run("nil input", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, paycarterr.Wrap(nil, "context"))
	})

	t.Run("non-PaycartError", func(t *testing.T) {
		t.Parallel()
		wrapped := paycarterr.Wrap(errPlain, "context")
		var se *paycarterr.PaycartError
		require.ErrorAs(t, wrapped, &se)
		assert.Equal(t, "GENERAL_ERROR", se.Code)
		assert.Equal(t, "context", se.Message)
		assert.Equal(t, errPlain, se.Cause)
	})

	t.Run("format args", func(t *testing.T) {
		t.Parallel()
		wrapped := paycarterr.Wrap(paycarterr.ErrNotFound, "order %s attempt %d", "42", 0)
		assert.Contains(t, wrapped.Error(), "order 42 attempt 0")
	})

	t.Run("field preservation", func(t *testing.T) {
		t.Parallel()
		original := paycarterr.WithDetails(paycarterr.ErrNotFound, map[string]string{"key": "val"})
		original = paycarterr.WithSuggestion(original, "try this")
		wrapped := paycarterr.Wrap(original, "context")

		var se *paycarterr.PaycartError
		require.ErrorAs(t, wrapped, &se)
		assert.Equal(t, "NOT_FOUND", se.Code)
		assert.Equal(t, map[string]string{"key": "val"}, se.Details)
		assert.Equal(t, "try this", se.Suggestion)
		assert.Equal(t, paycarterr.ExitNotFound, se.ExitCode)
	})
}

func TestWithDetails_edgeCases(t *testing.T) {
	t.Parallel()

	t.Run("nil input", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, paycarterr.WithDetails(nil, map[string]string{"k": "v"}))
	})

	t.Run("non-PaycartError input", func(t *testing.T) {
		t.Parallel()
		result := paycarterr.WithDetails(errPlain, map[string]string{"k": "v"})
		var se *paycarterr.PaycartError
		require.ErrorAs(t, result, &se)
		assert.Equal(t, "GENERAL_ERROR", se.Code)
		assert.Equal(t, "plain error", se.Message)
		assert.Equal(t, map[string]string{"k": "v"}, se.Details)
		assert.Equal(t, errPlain, se.Cause)
	})
}

func TestWithSuggestion_edgeCases(t *testing.T) {
	t.Parallel()

	t.Run("nil input", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, paycarterr.WithSuggestion(nil, "suggestion"))
	})

	t.Run("non-PaycartError input", func(t *testing.T) {
		t.Parallel()
		result := paycarterr.WithSuggestion(errPlain, "try this")
		var se *paycarterr.PaycartError
		require.ErrorAs(t, result, &se)
		assert.Equal(t, "GENERAL_ERROR", se.Code)
		assert.Equal(t, "plain error", se.Message)
		assert.Equal(t, "try this", se.Suggestion)
		assert.Equal(t, errPlain, se.Cause)
	})
}

func TestExitCode_nonPaycartError(t *testing.T) {
	t.Parallel()
	assert.Equal(t, paycarterr.ExitGeneral, paycarterr.ExitCode(errPlain))
}

func TestWithDetails_merges(t *testing.T) {
	t.Parallel()
	err := paycarterr.WithDetails(paycarterr.ErrBackendPersistFailed, map[string]string{"tx_hash": "0xabc"})
	err = paycarterr.WithDetails(err, map[string]string{"blockchain_order_id": "42"})

	assert.Equal(t, map[string]string{
		"tx_hash":             "0xabc",
		"blockchain_order_id": "42",
	}, paycarterr.DetailsOf(err))
	assert.ErrorIs(t, err, paycarterr.ErrBackendPersistFailed)
	assert.Nil(t, paycarterr.ErrBackendPersistFailed.Details, "sentinel must not be mutated")
}

func TestWithDetails_KeepsCauseBehindRetryableMarker(t *testing.T) {
	t.Parallel()
	marker := paycarterr.New(paycarterr.CodeRetryable, "retryable error")
	netErr := paycarterr.WithCause(paycarterr.ErrNetworkError, errRefused)
	wrapped := fmt.Errorf("%w: %w", marker, netErr)

	err := paycarterr.WithDetails(wrapped, map[string]string{"attempt_id": "attempt-1"})

	require.ErrorIs(t, err, paycarterr.ErrNetworkError)
	require.ErrorIs(t, err, errRefused)
	assert.Equal(t, "NETWORK_ERROR", paycarterr.Code(err))
	assert.Equal(t, paycarterr.ExitGeneral, paycarterr.ExitCode(err))
	assert.Equal(t, "attempt-1", paycarterr.DetailsOf(err)["attempt_id"])
	assert.Contains(t, err.Error(), "connection refused")

	err = paycarterr.WithSuggestion(wrapped, "check chain.rpc")
	require.ErrorIs(t, err, errRefused)
	assert.Equal(t, "NETWORK_ERROR", paycarterr.Code(err))
}

func TestCode_PrefersSpecificOverRetryable(t *testing.T) {
	t.Parallel()
	marker := paycarterr.New(paycarterr.CodeRetryable, "retryable error")

	assert.Equal(t, paycarterr.CodeRetryable, paycarterr.Code(marker))
	assert.Equal(t, paycarterr.CodeRetryable, paycarterr.Code(fmt.Errorf("%w: %w", marker, errPlain)))
	assert.Equal(t, "NOT_FOUND", paycarterr.Code(fmt.Errorf("%w: %w", marker, paycarterr.ErrNotFound)))
	assert.Equal(t, paycarterr.ExitNotFound, paycarterr.ExitCode(fmt.Errorf("%w: %w", marker, paycarterr.ErrNotFound)))
}

func TestWithCause(t *testing.T) {
	t.Parallel()
	err := paycarterr.WithCause(paycarterr.ErrOnChainRejected, errRootCause)

	require.ErrorIs(t, err, paycarterr.ErrOnChainRejected)
	require.ErrorIs(t, err, errRootCause)
	assert.Equal(t, "transaction rejected on-chain: root cause", err.Error())
}

func TestRequiresReconciliation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"order id not found", paycarterr.ErrOrderIDNotFound, true},
		{"backend persist failed", paycarterr.Wrap(paycarterr.ErrBackendPersistFailed, "attempt 1"), true},
		{"wrong network", paycarterr.ErrWrongNetwork, false},
		{"plain", errPlain, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, paycarterr.RequiresReconciliation(tt.err))
		})
	}
}

func TestSafeToRetry(t *testing.T) {
	t.Parallel()
	assert.True(t, paycarterr.SafeToRetry(paycarterr.ErrWrongNetwork))
	assert.True(t, paycarterr.SafeToRetry(paycarterr.ErrFormIncomplete))
	assert.True(t, paycarterr.SafeToRetry(paycarterr.ErrBorrowCapacityUnavailable))
	assert.False(t, paycarterr.SafeToRetry(paycarterr.ErrOrderIDNotFound))
	assert.False(t, paycarterr.SafeToRetry(paycarterr.ErrApprovalFailed))
	assert.False(t, paycarterr.SafeToRetry(errPlain))
}

func TestTaxonomyExitCodes(t *testing.T) {
	t.Parallel()
	assert.Equal(t, paycarterr.ExitReconcile, paycarterr.ExitCode(paycarterr.ErrOrderIDNotFound))
	assert.Equal(t, paycarterr.ExitReconcile, paycarterr.ExitCode(paycarterr.ErrBackendPersistFailed))
	assert.Equal(t, paycarterr.ExitAborted, paycarterr.ExitCode(paycarterr.ErrUserRejected))
	assert.Equal(t, paycarterr.ExitInput, paycarterr.ExitCode(paycarterr.ErrWrongNetwork))
}
