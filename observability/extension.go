// Package observability provides a metrics plugin for Verity that records
// lifecycle event counts and amounts through a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/verity/billing"
	"github.com/xraph/verity/dispute"
	"github.com/xraph/verity/params"
	"github.com/xraph/verity/plugin"
	"github.com/xraph/verity/producer"
	"github.com/xraph/verity/result"
	"github.com/xraph/verity/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                  = (*MetricsExtension)(nil)
	_ plugin.OnInit                  = (*MetricsExtension)(nil)
	_ plugin.OnProducerRegistered    = (*MetricsExtension)(nil)
	_ plugin.OnProducerStatusChanged = (*MetricsExtension)(nil)
	_ plugin.OnStakeSlashed          = (*MetricsExtension)(nil)
	_ plugin.OnEventScheduled        = (*MetricsExtension)(nil)
	_ plugin.OnResultSubmitted       = (*MetricsExtension)(nil)
	_ plugin.OnResultFinalized       = (*MetricsExtension)(nil)
	_ plugin.OnResultInvalidated     = (*MetricsExtension)(nil)
	_ plugin.OnDisputeCreated        = (*MetricsExtension)(nil)
	_ plugin.OnDisputeResolved       = (*MetricsExtension)(nil)
	_ plugin.OnBalanceDeposited      = (*MetricsExtension)(nil)
	_ plugin.OnQueryCharged          = (*MetricsExtension)(nil)
	_ plugin.OnWithdrawal            = (*MetricsExtension)(nil)
	_ plugin.OnPoolPayout            = (*MetricsExtension)(nil)
	_ plugin.OnParamsUpdated         = (*MetricsExtension)(nil)
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

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Verity plugin to track registry, dispute and billing activity.
type MetricsExtension struct {
	factory MetricFactory

	// Registry metrics
	ProducerRegistered  Counter
	ProducerDeactivated Counter
	StakeSlashed        Histogram
	EventScheduled      Counter

	// Submission metrics
	ResultSubmitted   Counter
	ResultFinalized   Counter
	ResultInvalidated Counter
	ResultPayloadSize Histogram

	// Dispute metrics
	DisputeCreated  Counter
	DisputeAccepted Counter
	DisputeRejected Counter
	RewardPaid      Histogram

	// Billing metrics
	Deposits     Histogram
	QueriesPaid  Counter
	QueriesFree  Counter
	FeeCollected Counter
	Withdrawals  Histogram
	PoolPayouts  Histogram

	// Admin metrics
	ParamsUpdated Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Amount histograms observe major currency units.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		ProducerRegistered:  factory.Counter("verity.producer.registered"),
		ProducerDeactivated: factory.Counter("verity.producer.deactivated"),
		StakeSlashed:        factory.Histogram("verity.producer.stake_slashed"),
		EventScheduled:      factory.Counter("verity.event.scheduled"),

		ResultSubmitted:   factory.Counter("verity.result.submitted"),
		ResultFinalized:   factory.Counter("verity.result.finalized"),
		ResultInvalidated: factory.Counter("verity.result.invalidated"),
		ResultPayloadSize: factory.Histogram("verity.result.payload_bytes"),

		DisputeCreated:  factory.Counter("verity.dispute.created"),
		DisputeAccepted: factory.Counter("verity.dispute.accepted"),
		DisputeRejected: factory.Counter("verity.dispute.rejected"),
		RewardPaid:      factory.Histogram("verity.dispute.reward"),

		Deposits:     factory.Histogram("verity.billing.deposit"),
		QueriesPaid:  factory.Counter("verity.billing.queries.paid"),
		QueriesFree:  factory.Counter("verity.billing.queries.free"),
		FeeCollected: factory.Counter("verity.billing.fees"),
		Withdrawals:  factory.Histogram("verity.billing.withdrawal"),
		PoolPayouts:  factory.Histogram("verity.billing.pool_payout"),

		ParamsUpdated: factory.Counter("verity.params.updated"),
	}
}

func major(m types.Money) float64 { return float64(m.Amount) / 100 }

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(context.Context, any) error { return nil }

// ──────────────────────────────────────────────────
// Registry hooks
// ──────────────────────────────────────────────────

func (m *MetricsExtension) OnProducerRegistered(context.Context, *producer.Producer) error {
	m.ProducerRegistered.Inc()
	return nil
}

func (m *MetricsExtension) OnProducerStatusChanged(_ context.Context, p *producer.Producer, _ string) error {
	if !p.Active {
		m.ProducerDeactivated.Inc()
	}
	return nil
}

func (m *MetricsExtension) OnStakeSlashed(_ context.Context, _ *producer.Producer, slashed types.Money, _ string) error {
	m.StakeSlashed.Observe(major(slashed))
	return nil
}

func (m *MetricsExtension) OnEventScheduled(context.Context, *producer.Event) error {
	m.EventScheduled.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Submission hooks
// ──────────────────────────────────────────────────

func (m *MetricsExtension) OnResultSubmitted(_ context.Context, r *result.Result) error {
	m.ResultSubmitted.Inc()
	m.ResultPayloadSize.Observe(float64(len(r.Payload)))
	return nil
}

func (m *MetricsExtension) OnResultFinalized(context.Context, *result.Result) error {
	m.ResultFinalized.Inc()
	return nil
}

func (m *MetricsExtension) OnResultInvalidated(context.Context, *result.Result) error {
	m.ResultInvalidated.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Dispute hooks
// ──────────────────────────────────────────────────

func (m *MetricsExtension) OnDisputeCreated(context.Context, *dispute.Dispute) error {
	m.DisputeCreated.Inc()
	return nil
}

func (m *MetricsExtension) OnDisputeResolved(_ context.Context, d *dispute.Dispute) error {
	if d.Outcome == dispute.OutcomeAccepted {
		m.DisputeAccepted.Inc()
		m.RewardPaid.Observe(major(d.ChallengerReward))
	} else {
		m.DisputeRejected.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Billing hooks
// ──────────────────────────────────────────────────

func (m *MetricsExtension) OnBalanceDeposited(_ context.Context, d *billing.Deposit) error {
	m.Deposits.Observe(major(d.Amount))
	return nil
}

func (m *MetricsExtension) OnQueryCharged(_ context.Context, c *billing.Charge) error {
	if c.Free {
		m.QueriesFree.Inc()
		return nil
	}
	m.QueriesPaid.Inc()
	m.FeeCollected.Add(major(c.Fee))
	return nil
}

func (m *MetricsExtension) OnWithdrawal(_ context.Context, w *billing.Withdrawal) error {
	m.Withdrawals.Observe(major(w.Amount))
	return nil
}

func (m *MetricsExtension) OnPoolPayout(_ context.Context, p *billing.Payout) error {
	m.PoolPayouts.Observe(major(p.Amount))
	return nil
}

func (m *MetricsExtension) OnParamsUpdated(context.Context, *params.Params) error {
	m.ParamsUpdated.Inc()
	return nil
}
