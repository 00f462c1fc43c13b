// Package metrics provides process-level counters using atomics.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics holds application counters. All methods are safe for concurrent use.
type Metrics struct {
	rpcCallsTotal   atomic.Int64
	rpcErrorsTotal  atomic.Int64
	rpcLatencyNanos atomic.Int64
	txSubmitted     atomic.Int64

	backendRequests atomic.Int64
	backendErrors   atomic.Int64

	checkoutStarted   atomic.Int64
	checkoutCompleted atomic.Int64
	checkoutFailed    atomic.Int64
	checkoutAborted   atomic.Int64
	reconciliations   atomic.Int64

	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
}

// Global is the process-wide metrics instance.
//
//nolint:gochecknoglobals // Intentional global for metrics access
var Global = &Metrics{}

// RecordRPCCall records a JSON-RPC call with its duration and outcome.
func (m *Metrics) RecordRPCCall(duration time.Duration, err error) {
	m.rpcCallsTotal.Add(1)
	m.rpcLatencyNanos.Add(duration.Nanoseconds())
	if err != nil {
		m.rpcErrorsTotal.Add(1)
	}
}

// RecordTxSubmitted records a signed transaction accepted by the node.
func (m *Metrics) RecordTxSubmitted() {
	m.txSubmitted.Add(1)
}

// RecordBackendRequest records a backend HTTP request and its outcome.
func (m *Metrics) RecordBackendRequest(err error) {
	m.backendRequests.Add(1)
	if err != nil {
		m.backendErrors.Add(1)
	}
}

// CheckoutOutcome classifies how a checkout attempt ended.
type CheckoutOutcome int

// Checkout outcomes.
const (
	OutcomeCompleted CheckoutOutcome = iota
	OutcomeFailed
	OutcomeAborted
	OutcomeReconcile
)

// RecordCheckoutStarted records a new checkout attempt.
func (m *Metrics) RecordCheckoutStarted() {
	m.checkoutStarted.Add(1)
}

// RecordCheckoutOutcome records the terminal outcome of an attempt.
// Reconciliation outcomes also count as failures.
func (m *Metrics) RecordCheckoutOutcome(outcome CheckoutOutcome) {
	switch outcome {
	case OutcomeCompleted:
		m.checkoutCompleted.Add(1)
	case OutcomeFailed:
		m.checkoutFailed.Add(1)
	case OutcomeAborted:
		m.checkoutAborted.Add(1)
	case OutcomeReconcile:
		m.checkoutFailed.Add(1)
		m.reconciliations.Add(1)
	}
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit() {
	m.cacheHits.Add(1)
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss() {
	m.cacheMisses.Add(1)
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	RPCCallsTotal     int64 `json:"rpc_calls_total"`
	RPCErrorsTotal    int64 `json:"rpc_errors_total"`
	RPCLatencyNanos   int64 `json:"rpc_latency_nanos"`
	TxSubmitted       int64 `json:"tx_submitted"`
	BackendRequests   int64 `json:"backend_requests"`
	BackendErrors     int64 `json:"backend_errors"`
	CheckoutStarted   int64 `json:"checkout_started"`
	CheckoutCompleted int64 `json:"checkout_completed"`
	CheckoutFailed    int64 `json:"checkout_failed"`
	CheckoutAborted   int64 `json:"checkout_aborted"`
	Reconciliations   int64 `json:"reconciliations"`
	CacheHits         int64 `json:"cache_hits"`
	CacheMisses       int64 `json:"cache_misses"`
}

// Snapshot returns a point-in-time copy of all counters.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		RPCCallsTotal:     m.rpcCallsTotal.Load(),
		RPCErrorsTotal:    m.rpcErrorsTotal.Load(),
		RPCLatencyNanos:   m.rpcLatencyNanos.Load(),
		TxSubmitted:       m.txSubmitted.Load(),
		BackendRequests:   m.backendRequests.Load(),
		BackendErrors:     m.backendErrors.Load(),
		CheckoutStarted:   m.checkoutStarted.Load(),
		CheckoutCompleted: m.checkoutCompleted.Load(),
		CheckoutFailed:    m.checkoutFailed.Load(),
		CheckoutAborted:   m.checkoutAborted.Load(),
		Reconciliations:   m.reconciliations.Load(),
		CacheHits:         m.cacheHits.Load(),
		CacheMisses:       m.cacheMisses.Load(),
	}
}

// RPCLatencyAvgMs returns the average RPC latency in milliseconds, or 0.
func (m *Metrics) RPCLatencyAvgMs() float64 {
	calls := m.rpcCallsTotal.Load()
	if calls == 0 {
		return 0
	}
	return float64(m.rpcLatencyNanos.Load()) / float64(calls) / 1e6
}

// CacheHitRate returns the cache hit rate as a percentage (0-100).
func (m *Metrics) CacheHitRate() float64 {
	hits := m.cacheHits.Load()
	total := hits + m.cacheMisses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// Reset zeroes all counters.
func (m *Metrics) Reset() {
	for _, c := range []*atomic.Int64{
		&m.rpcCallsTotal, &m.rpcErrorsTotal, &m.rpcLatencyNanos, &m.txSubmitted,
		&m.backendRequests, &m.backendErrors,
		&m.checkoutStarted, &m.checkoutCompleted, &m.checkoutFailed, &m.checkoutAborted, &m.reconciliations,
		&m.cacheHits, &m.cacheMisses,
	} {
		c.Store(0)
	}
}
