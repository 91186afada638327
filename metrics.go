package goIAM

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter.
type MetricID uint16

const (
	// MetricRegisterSuccess counts accounts created with a confirmation mail sent.
	MetricRegisterSuccess MetricID = iota
	// MetricRegisterConflict counts registrations rejected as duplicates.
	MetricRegisterConflict
	// MetricConfirmEmailSuccess counts redeemed confirmation tokens.
	MetricConfirmEmailSuccess
	// MetricConfirmEmailFailure counts rejected confirmation tokens.
	MetricConfirmEmailFailure
	// MetricLoginSuccess counts issued login pairs.
	MetricLoginSuccess
	// MetricLoginFailure counts rejected logins.
	MetricLoginFailure
	// MetricLoginRateLimited counts throttled logins.
	MetricLoginRateLimited
	// MetricTOTPRequired counts logins stopped for a missing TOTP code.
	MetricTOTPRequired
	// MetricTOTPFailure counts logins with a wrong TOTP code.
	MetricTOTPFailure
	// MetricTOTPEnabled counts TOTP enrollments.
	MetricTOTPEnabled
	// MetricRefreshSuccess counts rotated refresh tokens.
	MetricRefreshSuccess
	// MetricRefreshFailure counts rejected refresh tokens other than reuse.
	MetricRefreshFailure
	// MetricRefreshReuseDetected counts replays of rotated-away refresh tokens.
	MetricRefreshReuseDetected
	// MetricPasswordResetRequest counts forgot-password mails sent.
	MetricPasswordResetRequest
	// MetricPasswordResetConfirmSuccess counts redeemed reset tokens.
	MetricPasswordResetConfirmSuccess
	// MetricPasswordResetConfirmFailure counts rejected reset tokens.
	MetricPasswordResetConfirmFailure
	// MetricPasswordChangeSuccess counts password updates.
	MetricPasswordChangeSuccess
	// MetricPasswordChangeInvalidOld counts updates with a wrong current password.
	MetricPasswordChangeInvalidOld
	// MetricPasswordRehashed counts digests upgraded on login.
	MetricPasswordRehashed
	// MetricLogout counts logouts.
	MetricLogout
	// MetricMailDeliveryFailure counts failed confirmation and reset mails.
	MetricMailDeliveryFailure
	// MetricRollbackFailure counts failed token rollbacks after a mail failure.
	MetricRollbackFailure
	// MetricVerifyAccessFailure counts rejected access tokens.
	MetricVerifyAccessFailure
	// MetricVerifyAccessLatency is the VerifyAccess latency histogram.
	MetricVerifyAccessLatency
	metricIDCount
)

// MetricCount is the number of defined metric ids.
const MetricCount = int(metricIDCount)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free engine counters.
//
// Metrics instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// HistogramBounds are the upper bounds of the latency buckets; the last
// bucket is unbounded.
var HistogramBounds = [histBucketCount - 1]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

// NewMetrics returns the counter set for cfg. A disabled config yields a
// Metrics that records nothing.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc adds one to id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the latency histogram. Only
// MetricVerifyAccessLatency has a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricVerifyAccessLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current count for id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot describes the snapshot operation and its observable behavior.
//
// Snapshot copies the current counter and histogram values. It is safe to
// call concurrently with recording.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricVerifyAccessLatency].buckets[i])
		}
		s.Histograms[MetricVerifyAccessLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	for i, bound := range HistogramBounds {
		if d <= bound {
			return i
		}
	}
	return histBucketCount - 1
}
