package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

func TestMetrics_RecordRPCCall(t *testing.T) {
	t.Parallel()
	m := &Metrics{}

	m.RecordRPCCall(100*time.Millisecond, nil)
	m.RecordRPCCall(50*time.Millisecond, paycarterr.ErrNetworkError)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.RPCCallsTotal)
	assert.Equal(t, int64(1), snap.RPCErrorsTotal)
	assert.InDelta(t, 75.0, m.RPCLatencyAvgMs(), 0.001)
}

func TestMetrics_CheckoutOutcomes(t *testing.T) {
	t.Parallel()
	m := &Metrics{}

	m.RecordCheckoutStarted()
	m.RecordCheckoutStarted()
	m.RecordCheckoutStarted()
	m.RecordCheckoutOutcome(OutcomeCompleted)
	m.RecordCheckoutOutcome(OutcomeReconcile)
	m.RecordCheckoutOutcome(OutcomeAborted)

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.CheckoutStarted)
	assert.Equal(t, int64(1), snap.CheckoutCompleted)
	assert.Equal(t, int64(1), snap.CheckoutFailed)
	assert.Equal(t, int64(1), snap.Reconciliations)
	assert.Equal(t, int64(1), snap.CheckoutAborted)
}

func TestMetrics_BackendAndTx(t *testing.T) {
	t.Parallel()
	m := &Metrics{}

	m.RecordBackendRequest(nil)
	m.RecordBackendRequest(paycarterr.ErrBackend)
	m.RecordTxSubmitted()

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.BackendRequests)
	assert.Equal(t, int64(1), snap.BackendErrors)
	assert.Equal(t, int64(1), snap.TxSubmitted)
}

func TestMetrics_CacheHitRate(t *testing.T) {
	t.Parallel()
	m := &Metrics{}
	assert.Zero(t, m.CacheHitRate())

	m.RecordCacheHit()
	m.RecordCacheHit()
	m.RecordCacheHit()
	m.RecordCacheMiss()
	assert.InDelta(t, 75.0, m.CacheHitRate(), 0.001)
}

func TestMetrics_Reset(t *testing.T) {
	t.Parallel()
	m := &Metrics{}
	m.RecordRPCCall(time.Second, nil)
	m.RecordCheckoutStarted()
	m.RecordCacheMiss()

	m.Reset()
	assert.Equal(t, Snapshot{}, m.Snapshot())
	assert.Zero(t, m.RPCLatencyAvgMs())
}

func TestMetrics_Concurrent(t *testing.T) {
	t.Parallel()
	m := &Metrics{}
	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordRPCCall(time.Millisecond, nil)
			m.RecordCacheHit()
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(100), m.Snapshot().RPCCallsTotal)
}
