// Package plugin lets integrations observe engine state transitions.
// Hooks run after the owning operation has committed; a failing hook is
// logged and never undoes the transition.
package plugin

import (
	"context"

	"github.com/xraph/verity/billing"
	"github.com/xraph/verity/dispute"
	"github.com/xraph/verity/params"
	"github.com/xraph/verity/producer"
	"github.com/xraph/verity/result"
	"github.com/xraph/verity/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called from Engine.Start. engine is the *verity.Engine.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called from Engine.Stop.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Registry hooks
// ──────────────────────────────────────────────────

type OnProducerRegistered interface {
	Plugin
	OnProducerRegistered(ctx context.Context, p *producer.Producer) error
}

// OnStakeSlashed fires for dispute and administrative slashes alike.
type OnStakeSlashed interface {
	Plugin
	OnStakeSlashed(ctx context.Context, p *producer.Producer, slashed types.Money, reason string) error
}

// OnProducerStatusChanged fires when a producer is activated, deactivated,
// banned or unbanned.
type OnProducerStatusChanged interface {
	Plugin
	OnProducerStatusChanged(ctx context.Context, p *producer.Producer, reason string) error
}

type OnReputationChanged interface {
	Plugin
	OnReputationChanged(ctx context.Context, p *producer.Producer, previous int) error
}

type OnEventScheduled interface {
	Plugin
	OnEventScheduled(ctx context.Context, e *producer.Event) error
}

// ──────────────────────────────────────────────────
// Submission hooks
// ──────────────────────────────────────────────────

type OnResultSubmitted interface {
	Plugin
	OnResultSubmitted(ctx context.Context, r *result.Result) error
}

type OnResultFinalized interface {
	Plugin
	OnResultFinalized(ctx context.Context, r *result.Result) error
}

type OnResultInvalidated interface {
	Plugin
	OnResultInvalidated(ctx context.Context, r *result.Result) error
}

// ──────────────────────────────────────────────────
// Dispute hooks
// ──────────────────────────────────────────────────

type OnDisputeCreated interface {
	Plugin
	OnDisputeCreated(ctx context.Context, d *dispute.Dispute) error
}

type OnDisputeResolved interface {
	Plugin
	OnDisputeResolved(ctx context.Context, d *dispute.Dispute) error
}

// ──────────────────────────────────────────────────
// Billing hooks
// ──────────────────────────────────────────────────

type OnBalanceDeposited interface {
	Plugin
	OnBalanceDeposited(ctx context.Context, d *billing.Deposit) error
}

// OnQueryCharged fires for every granted read, including free-quota reads
// (Charge.Free) but not for zero-cost re-reads of an existing grant.
type OnQueryCharged interface {
	Plugin
	OnQueryCharged(ctx context.Context, c *billing.Charge) error
}

type OnWithdrawal interface {
	Plugin
	OnWithdrawal(ctx context.Context, w *billing.Withdrawal) error
}

type OnPoolPayout interface {
	Plugin
	OnPoolPayout(ctx context.Context, p *billing.Payout) error
}

// ──────────────────────────────────────────────────
// Admin hooks
// ──────────────────────────────────────────────────

type OnParamsUpdated interface {
	Plugin
	OnParamsUpdated(ctx context.Context, p *params.Params) error
}
