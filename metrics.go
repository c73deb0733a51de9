package isc

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the send-latency histogram buckets in nanoseconds,
// covering 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Observer receives channel events as they happen, for callers that want
// to wire up their own metrics or tracing rather than poll Metrics.
type Observer interface {
	OnMessage(payloadLen int)
	OnPeerError(rc int32)
}

// Metrics tracks per-channel operational statistics.
type Metrics struct {
	SendOps    atomic.Uint64
	SendBytes  atomic.Uint64
	SendErrors atomic.Uint64

	MessagesDispatched atomic.Uint64
	BoundEvents        atomic.Uint64
	UnbindEvents       atomic.Uint64

	TotalSendLatencyNs atomic.Uint64
	SendLatencyBuckets [numLatencyBuckets]atomic.Uint64

	OpenTime atomic.Int64
}

// NewMetrics returns a fresh, zeroed Metrics with OpenTime stamped now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.OpenTime.Store(time.Now().UnixNano())
	return m
}

func (m *Metrics) observeSend(latency time.Duration, payloadLen int) {
	m.SendOps.Add(1)
	m.SendBytes.Add(uint64(payloadLen))
	ns := uint64(latency.Nanoseconds())
	m.TotalSendLatencyNs.Add(ns)
	for i, bucket := range LatencyBuckets {
		if ns <= bucket {
			m.SendLatencyBuckets[i].Add(1)
			break
		}
	}
}

func (m *Metrics) observeSendError() { m.SendErrors.Add(1) }
func (m *Metrics) observeDispatch()  { m.MessagesDispatched.Add(1) }
func (m *Metrics) observeBound()     { m.BoundEvents.Add(1) }
func (m *Metrics) observeUnbind()    { m.UnbindEvents.Add(1) }

// Snapshot is a point-in-time copy of Metrics, safe to read without races.
type Snapshot struct {
	SendOps            uint64
	SendBytes          uint64
	SendErrors         uint64
	MessagesDispatched uint64
	BoundEvents        uint64
	UnbindEvents       uint64
	AverageSendLatency time.Duration
}

// Snapshot returns a consistent-enough point-in-time copy of the counters.
func (m *Metrics) Snapshot() Snapshot {
	ops := m.SendOps.Load()
	var avg time.Duration
	if ops > 0 {
		avg = time.Duration(m.TotalSendLatencyNs.Load() / ops)
	}
	return Snapshot{
		SendOps:            ops,
		SendBytes:          m.SendBytes.Load(),
		SendErrors:         m.SendErrors.Load(),
		MessagesDispatched: m.MessagesDispatched.Load(),
		BoundEvents:        m.BoundEvents.Load(),
		UnbindEvents:       m.UnbindEvents.Load(),
		AverageSendLatency: avg,
	}
}
