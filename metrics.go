package codepass

import internalmetrics "github.com/MrEthical07/codepass/internal/metrics"

// MetricID identifies a counter or latency histogram in [Metrics].
type MetricID = internalmetrics.MetricID

const (
	MetricCodeIssued           = MetricID(internalmetrics.MetricCodeIssued)
	MetricCodeCollision        = MetricID(internalmetrics.MetricCodeCollision)
	MetricCodeExhausted        = MetricID(internalmetrics.MetricCodeExhausted)
	MetricCodeIssueFailure     = MetricID(internalmetrics.MetricCodeIssueFailure)
	MetricVerifySuccess        = MetricID(internalmetrics.MetricVerifySuccess)
	MetricVerifyFailure        = MetricID(internalmetrics.MetricVerifyFailure)
	MetricVerifyReplay         = MetricID(internalmetrics.MetricVerifyReplay)
	MetricReservationRequested = MetricID(internalmetrics.MetricReservationRequested)
	MetricReservationFailure   = MetricID(internalmetrics.MetricReservationFailure)
	MetricTokenPairIssued      = MetricID(internalmetrics.MetricTokenPairIssued)
	MetricValidateSuccess      = MetricID(internalmetrics.MetricValidateSuccess)
	MetricValidateFailure      = MetricID(internalmetrics.MetricValidateFailure)
	MetricRefreshSuccess       = MetricID(internalmetrics.MetricRefreshSuccess)
	MetricRefreshFailure       = MetricID(internalmetrics.MetricRefreshFailure)
	MetricRefreshReuseDetected = MetricID(internalmetrics.MetricRefreshReuseDetected)
	MetricAdminLoginSuccess    = MetricID(internalmetrics.MetricAdminLoginSuccess)
	MetricAdminLoginFailure    = MetricID(internalmetrics.MetricAdminLoginFailure)
	MetricRateLimitHit         = MetricID(internalmetrics.MetricRateLimitHit)
	MetricStoreUnavailable     = MetricID(internalmetrics.MetricStoreUnavailable)
	MetricDirectoryUnavailable = MetricID(internalmetrics.MetricDirectoryUnavailable)
	MetricValidateLatency      = MetricID(internalmetrics.MetricValidateLatency)
	MetricVerifyLatency        = MetricID(internalmetrics.MetricVerifyLatency)
)

// MetricHistogramBuckets is the number of latency buckets per histogram.
const MetricHistogramBuckets = internalmetrics.HistBucketCount

// Metrics holds atomic counters and optional latency histograms.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] instance. When Enabled is false every
// operation is a no-op.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// MetricsSnapshot returns a copy of the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return NewMetrics(MetricsConfig{}).Snapshot()
	}
	return e.metrics.Snapshot()
}
