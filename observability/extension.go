// Package observability provides a metrics hook for the credits engine
// that records ledger event counts via a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/credits/hook"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ hook.Hook           = (*MetricsExtension)(nil)
	_ hook.OnInit         = (*MetricsExtension)(nil)
	_ hook.OnGranted      = (*MetricsExtension)(nil)
	_ hook.OnConsumed     = (*MetricsExtension)(nil)
	_ hook.OnSwept        = (*MetricsExtension)(nil)
	_ hook.OnDistributed  = (*MetricsExtension)(nil)
	_ hook.OnBatchFailed  = (*MetricsExtension)(nil)
	_ hook.OnInsufficient = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide ledger metrics. Register it as
// an engine hook to automatically track credit activity.
type MetricsExtension struct {
	factory MetricFactory

	// Grant metrics
	GrantsIssued  Counter
	GrantedAmount Counter

	// Consumption metrics
	Consumptions      Counter
	ConsumedAmount    Counter
	EntriesPerConsume Histogram
	Insufficient      Counter

	// Expiration metrics
	Sweeps        Counter
	ExpiredAmount Counter

	// Distribution metrics
	DistributionRuns    Counter
	DistributedUsers    Counter
	DistributionErrors  Counter
	DistributionLatency Histogram
	BatchFailures       Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided
// MetricFactory. Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Grant metrics
		GrantsIssued:  factory.Counter("credits.grants.issued"),
		GrantedAmount: factory.Counter("credits.grants.amount"),

		// Consumption metrics
		Consumptions:      factory.Counter("credits.consume.count"),
		ConsumedAmount:    factory.Counter("credits.consume.amount"),
		EntriesPerConsume: factory.Histogram("credits.consume.entries_charged"),
		Insufficient:      factory.Counter("credits.consume.insufficient"),

		// Expiration metrics
		Sweeps:        factory.Counter("credits.sweep.count"),
		ExpiredAmount: factory.Counter("credits.sweep.expired_amount"),

		// Distribution metrics
		DistributionRuns:    factory.Counter("credits.distribution.runs"),
		DistributedUsers:    factory.Counter("credits.distribution.users"),
		DistributionErrors:  factory.Counter("credits.distribution.errors"),
		DistributionLatency: factory.Histogram("credits.distribution.latency_ms"),
		BatchFailures:       factory.Counter("credits.distribution.batch_failures"),
	}
}

// Name implements hook.Hook.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements hook.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// OnGranted implements hook.OnGranted.
func (m *MetricsExtension) OnGranted(_ context.Context, ev hook.GrantEvent) error {
	m.GrantsIssued.Inc()
	m.GrantedAmount.Add(float64(ev.Amount))
	return nil
}

// OnConsumed implements hook.OnConsumed.
func (m *MetricsExtension) OnConsumed(_ context.Context, ev hook.ConsumeEvent) error {
	m.Consumptions.Inc()
	m.ConsumedAmount.Add(float64(ev.Amount))
	m.EntriesPerConsume.Observe(float64(ev.EntriesCharged))
	return nil
}

// OnSwept implements hook.OnSwept.
func (m *MetricsExtension) OnSwept(_ context.Context, ev hook.SweepEvent) error {
	m.Sweeps.Inc()
	m.ExpiredAmount.Add(float64(ev.ExpiredTotal))
	return nil
}

// OnDistributed implements hook.OnDistributed.
func (m *MetricsExtension) OnDistributed(_ context.Context, ev hook.DistributionEvent) error {
	m.DistributionRuns.Inc()
	m.DistributedUsers.Add(float64(ev.ProcessedCount))
	m.DistributionErrors.Add(float64(ev.ErrorCount))
	m.DistributionLatency.Observe(float64(ev.Elapsed.Milliseconds()))
	return nil
}

// OnBatchFailed implements hook.OnBatchFailed.
func (m *MetricsExtension) OnBatchFailed(_ context.Context, _ hook.BatchErrorEvent) error {
	m.BatchFailures.Inc()
	return nil
}

// OnInsufficient implements hook.OnInsufficient.
func (m *MetricsExtension) OnInsufficient(_ context.Context, _ hook.InsufficientEvent) error {
	m.Insufficient.Inc()
	return nil
}
