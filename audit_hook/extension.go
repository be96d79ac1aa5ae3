// Package audithook bridges Verity lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit system. Callers inject a RecorderFunc adapter at
// wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/verity/billing"
	"github.com/xraph/verity/dispute"
	"github.com/xraph/verity/params"
	"github.com/xraph/verity/plugin"
	"github.com/xraph/verity/producer"
	"github.com/xraph/verity/result"
	"github.com/xraph/verity/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                  = (*Extension)(nil)
	_ plugin.OnProducerRegistered    = (*Extension)(nil)
	_ plugin.OnProducerStatusChanged = (*Extension)(nil)
	_ plugin.OnStakeSlashed          = (*Extension)(nil)
	_ plugin.OnReputationChanged     = (*Extension)(nil)
	_ plugin.OnEventScheduled        = (*Extension)(nil)
	_ plugin.OnResultSubmitted       = (*Extension)(nil)
	_ plugin.OnResultFinalized       = (*Extension)(nil)
	_ plugin.OnResultInvalidated     = (*Extension)(nil)
	_ plugin.OnDisputeCreated        = (*Extension)(nil)
	_ plugin.OnDisputeResolved       = (*Extension)(nil)
	_ plugin.OnBalanceDeposited      = (*Extension)(nil)
	_ plugin.OnQueryCharged          = (*Extension)(nil)
	_ plugin.OnWithdrawal            = (*Extension)(nil)
	_ plugin.OnPoolPayout            = (*Extension)(nil)
	_ plugin.OnParamsUpdated         = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a single audit trail entry.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Verity lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Registry hooks
// ──────────────────────────────────────────────────

func (e *Extension) OnProducerRegistered(ctx context.Context, p *producer.Producer) error {
	return e.record(ctx, entry{
		action: ActionProducerRegistered, resource: ResourceProducer, category: CategoryRegistry,
		id: p.ID.String(), actor: p.Owner,
	}, "stake", p.Stake.String())
}

func (e *Extension) OnProducerStatusChanged(ctx context.Context, p *producer.Producer, reason string) error {
	return e.record(ctx, entry{
		action: ActionProducerStatus, resource: ResourceProducer, category: CategoryRegistry,
		id: p.ID.String(), severity: SeverityWarning, reason: reason,
	}, "active", p.Active, "banned", p.Banned)
}

func (e *Extension) OnStakeSlashed(ctx context.Context, p *producer.Producer, slashed types.Money, reason string) error {
	return e.record(ctx, entry{
		action: ActionStakeSlashed, resource: ResourceProducer, category: CategoryRegistry,
		id: p.ID.String(), severity: SeverityCritical, reason: reason,
	}, "slashed", slashed.String(), "stake_after", p.Stake.String())
}

func (e *Extension) OnReputationChanged(ctx context.Context, p *producer.Producer, previous int) error {
	return e.record(ctx, entry{
		action: ActionReputationChanged, resource: ResourceProducer, category: CategoryRegistry,
		id: p.ID.String(),
	}, "previous", previous, "reputation", p.Reputation)
}

func (e *Extension) OnEventScheduled(ctx context.Context, ev *producer.Event) error {
	return e.record(ctx, entry{
		action: ActionEventScheduled, resource: ResourceEvent, category: CategoryRegistry,
		id: ev.ID.String(),
	}, "producer_id", ev.ProducerID.String(), "scheduled_at", ev.ScheduledAt)
}

// ──────────────────────────────────────────────────
// Submission hooks
// ──────────────────────────────────────────────────

func (e *Extension) OnResultSubmitted(ctx context.Context, r *result.Result) error {
	return e.record(ctx, entry{
		action: ActionResultSubmitted, resource: ResourceResult, category: CategorySubmission,
		id: r.EventID.String(), actor: r.Submitter,
	}, "fingerprint", r.Fingerprint, "deadline", r.FinalizeDeadline)
}

func (e *Extension) OnResultFinalized(ctx context.Context, r *result.Result) error {
	return e.record(ctx, entry{
		action: ActionResultFinalized, resource: ResourceResult, category: CategorySubmission,
		id: r.EventID.String(),
	}, "fingerprint", r.Fingerprint)
}

func (e *Extension) OnResultInvalidated(ctx context.Context, r *result.Result) error {
	return e.record(ctx, entry{
		action: ActionResultInvalidated, resource: ResourceResult, category: CategorySubmission,
		id: r.EventID.String(), severity: SeverityWarning, outcome: OutcomeFailure,
	}, "dispute_id", r.DisputeID.String())
}

// ──────────────────────────────────────────────────
// Dispute hooks
// ──────────────────────────────────────────────────

func (e *Extension) OnDisputeCreated(ctx context.Context, d *dispute.Dispute) error {
	return e.record(ctx, entry{
		action: ActionDisputeCreated, resource: ResourceDispute, category: CategoryDispute,
		id: d.ID.String(), actor: d.Challenger, severity: SeverityWarning, reason: d.Reason,
	}, "event_id", d.EventID.String(), "stake", d.Stake.String(), "evidence", d.EvidenceRef)
}

func (e *Extension) OnDisputeResolved(ctx context.Context, d *dispute.Dispute) error {
	return e.record(ctx, entry{
		action: ActionDisputeResolved, resource: ResourceDispute, category: CategoryDispute,
		id: d.ID.String(), actor: d.Resolver,
	},
		"outcome", string(d.Outcome),
		"reward_percent", d.RewardPercent,
		"slashed", d.Slashed.String(),
		"challenger_reward", d.ChallengerReward.String(),
	)
}

// ──────────────────────────────────────────────────
// Billing hooks
// ──────────────────────────────────────────────────

func (e *Extension) OnBalanceDeposited(ctx context.Context, d *billing.Deposit) error {
	return e.record(ctx, entry{
		action: ActionBalanceDeposited, resource: ResourceAccount, category: CategoryBilling,
		id: d.ID.String(), actor: d.Consumer,
	},
		"amount", d.Amount.String(),
		"volume_bonus", d.VolumeBonus.String(),
		"referrer", string(d.Referrer),
	)
}

func (e *Extension) OnQueryCharged(ctx context.Context, c *billing.Charge) error {
	return e.record(ctx, entry{
		action: ActionQueryCharged, resource: ResourceAccount, category: CategoryBilling,
		id: c.ID.String(), actor: c.Consumer,
	}, "event_id", c.EventID.String(), "fee", c.Fee.String(), "free", c.Free)
}

func (e *Extension) OnWithdrawal(ctx context.Context, w *billing.Withdrawal) error {
	return e.record(ctx, entry{
		action: ActionWithdrawal, resource: ResourceProducer, category: CategoryBilling,
		id: w.ProducerID.String(), actor: w.To,
	}, "kind", string(w.Kind), "amount", w.Amount.String())
}

func (e *Extension) OnPoolPayout(ctx context.Context, p *billing.Payout) error {
	return e.record(ctx, entry{
		action: ActionPoolPayout, resource: ResourcePool, category: CategoryBilling,
		id: string(p.Pool), severity: SeverityWarning, reason: p.Memo,
	}, "to", string(p.To), "amount", p.Amount.String())
}

// ──────────────────────────────────────────────────
// Admin hooks
// ──────────────────────────────────────────────────

func (e *Extension) OnParamsUpdated(ctx context.Context, p *params.Params) error {
	return e.record(ctx, entry{
		action: ActionParamsUpdated, resource: ResourceParams, category: CategoryAdmin,
		id: fmt.Sprintf("v%d", p.Version), actor: p.UpdatedBy, severity: SeverityWarning,
	}, "query_fee", p.QueryFee.String(), "min_stake", p.MinStake.String())
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

type entry struct {
	action, resource, category string
	id                         string
	actor                      types.Principal
	severity, outcome, reason  string
}

// record builds and sends an audit event if the action is enabled. Recorder
// failures are logged and never surface to the engine.
func (e *Extension) record(ctx context.Context, en entry, kvPairs ...any) error {
	if e.enabled != nil && !e.enabled[en.action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	evt := &AuditEvent{
		Action:     en.action,
		Resource:   en.resource,
		Category:   en.category,
		ResourceID: en.id,
		Actor:      string(en.actor),
		Metadata:   meta,
		Outcome:    en.outcome,
		Severity:   en.severity,
		Reason:     en.reason,
	}
	if evt.Outcome == "" {
		evt.Outcome = OutcomeSuccess
	}
	if evt.Severity == "" {
		evt.Severity = SeverityInfo
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", en.action,
			"resource_id", en.id,
			"error", recErr,
		)
	}
	return nil
}
