package goSyncAuth

import internalmetrics "github.com/MrEthical07/goSyncAuth/internal/metrics"

// MetricID identifies one engine counter.
type MetricID = internalmetrics.MetricID

const (
	MetricAuthAttempt        = internalmetrics.MetricAuthAttempt
	MetricAuthSuccess        = internalmetrics.MetricAuthSuccess
	MetricAuthFailure        = internalmetrics.MetricAuthFailure
	MetricAuthTempBanned     = internalmetrics.MetricAuthTempBanned
	MetricAuthPermaBanned    = internalmetrics.MetricAuthPermaBanned
	MetricAuthIdentityBanned = internalmetrics.MetricAuthIdentityBanned
	MetricAuthLocalContent   = internalmetrics.MetricAuthLocalContent
	MetricAuthUnknownError   = internalmetrics.MetricAuthUnknownError
	MetricDuplicateSession   = internalmetrics.MetricDuplicateSession
	MetricTokenIssued        = internalmetrics.MetricTokenIssued
	MetricTokenRenewed       = internalmetrics.MetricTokenRenewed
	MetricTokenRenewFailure  = internalmetrics.MetricTokenRenewFailure
	MetricAuthorizeLatency   = internalmetrics.MetricAuthorizeLatency

	metricIDCount = internalmetrics.MetricIDCount
)

// Metrics holds lock-free engine counters.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all counters and histograms.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a Metrics value from cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:                 cfg.Enabled,
		EnableLatencyHistograms: cfg.EnableLatencyHistograms,
	})
}
